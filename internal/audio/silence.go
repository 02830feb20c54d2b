package audio

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/rs/zerolog"
)

// opusSilence is a canonical Opus DTX silence frame.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

const silenceFrameDuration = 20 * time.Millisecond

// newSilentTrack synthesizes a muted audio track so the outbound session
// always carries audio. Some WHIP receivers refuse sessions without one.
// The writer goroutine runs until the returned stop func is called.
func newSilentTrack(streamID string, logger zerolog.Logger) (*webrtc.TrackLocalStaticSample, func(), error) {
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{
			MimeType:  webrtc.MimeTypeOpus,
			ClockRate: 48000,
			Channels:  2,
		},
		"audio-silence-"+uuid.NewString(),
		streamID,
	)
	if err != nil {
		return nil, nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		ticker := time.NewTicker(silenceFrameDuration)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				logger.Debug().Msg("silent track writer stopped")
				return
			case <-ticker.C:
				if err := track.WriteSample(media.Sample{
					Data:     opusSilence,
					Duration: silenceFrameDuration,
				}); err != nil {
					logger.Debug().Err(err).Msg("silence write failed")
				}
			}
		}
	}()

	return track, cancel, nil
}
