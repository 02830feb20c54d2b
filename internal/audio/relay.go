package audio

import (
	"context"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

// bridgeRemote copies RTP from an externally supplied remote track into a
// local sender track, so the publisher can hot-swap to it without touching
// the remote side. The remote track is never closed here; stopping the
// bridge only ends the copy loop.
func bridgeRemote(remote *webrtc.TrackRemote, streamID string, logger zerolog.Logger) (*webrtc.TrackLocalStaticRTP, func(), error) {
	local, err := webrtc.NewTrackLocalStaticRTP(remote.Codec().RTPCodecCapability, remote.ID(), streamID)
	if err != nil {
		return nil, nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		for {
			select {
			case <-ctx.Done():
				logger.Debug().Msg("audio bridge stopped")
				return
			default:
			}
			pkt, _, err := remote.ReadRTP()
			if err != nil {
				logger.Debug().Err(err).Msg("audio bridge read ended")
				return
			}
			forward(local, pkt, logger)
		}
	}()

	return local, cancel, nil
}

func forward(local *webrtc.TrackLocalStaticRTP, pkt *rtp.Packet, logger zerolog.Logger) {
	if err := local.WriteRTP(pkt); err != nil {
		logger.Debug().Err(err).Uint16("seq", pkt.SequenceNumber).Msg("audio bridge write failed")
	}
}
