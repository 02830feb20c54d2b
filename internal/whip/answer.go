package whip

import (
	"io"
	"strings"

	"github.com/pion/rtcp"
	"github.com/pion/sdp/v3"
	"github.com/pion/webrtc/v4"
)

// inspectAnswer logs the negotiated media makeup of the remote answer.
func (p *Publisher) inspectAnswer(answerSDP string) {
	var parsed sdp.SessionDescription
	if err := parsed.Unmarshal([]byte(answerSDP)); err != nil {
		p.logger.Debug().Err(err).Msg("answer sdp unparsable")
		return
	}
	kinds := make([]string, 0, len(parsed.MediaDescriptions))
	for _, md := range parsed.MediaDescriptions {
		kinds = append(kinds, md.MediaName.Media)
	}
	p.logger.Info().
		Int("media_sections", len(parsed.MediaDescriptions)).
		Str("media", strings.Join(kinds, ",")).
		Msg("answer applied")
}

// drainRTCP keeps the sender's RTCP path flowing so interceptors run.
// Receiver feedback is logged at debug and otherwise dropped; the remote
// processor owns quality adaptation.
func (p *Publisher) drainRTCP(sender *webrtc.RTPSender) {
	for {
		pkts, _, err := sender.ReadRTCP()
		if err != nil {
			if err != io.EOF {
				p.logger.Debug().Err(err).Msg("rtcp read ended")
			}
			return
		}
		for _, pkt := range pkts {
			switch fb := pkt.(type) {
			case *rtcp.PictureLossIndication:
				p.logger.Debug().Uint32("ssrc", fb.MediaSSRC).Msg("pli from remote")
			case *rtcp.ReceiverReport:
				p.logger.Trace().Msg("receiver report")
			}
		}
	}
}
