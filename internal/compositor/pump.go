package compositor

import (
	"context"
	"errors"
	"time"

	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/rs/zerolog"

	"driftcast/internal/core"
	"driftcast/internal/metrics"
)

// ErrNoSample is returned by encoders that have nothing ready for this tick.
// The pump treats it as a silent skip.
var ErrNoSample = errors.New("no encoded sample ready")

// SampleWriter is the captured-track side of the pump. Satisfied by
// *webrtc.TrackLocalStaticSample.
type SampleWriter interface {
	WriteSample(s media.Sample) error
}

// Pump drives the compositor at the configured frame rate and feeds encoded
// samples into the published video track.
type Pump struct {
	comp   *Compositor
	enc    core.VideoEncoder
	track  SampleWriter
	fps    int
	logger zerolog.Logger
}

func NewPump(comp *Compositor, enc core.VideoEncoder, track SampleWriter, fps int, logger zerolog.Logger) *Pump {
	if fps <= 0 {
		fps = 24
	}
	return &Pump{
		comp:   comp,
		enc:    enc,
		track:  track,
		fps:    fps,
		logger: logger.With().Str("module", "compositor").Logger(),
	}
}

// Run loops until ctx is cancelled. Per-tick failures never crash the loop.
func (p *Pump) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(p.fps)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.logger.Info().Int("fps", p.fps).Int("size", p.comp.Size()).Msg("frame pump started")

	for {
		select {
		case <-ctx.Done():
			p.logger.Info().Msg("frame pump stopped")
			return nil
		case <-ticker.C:
			p.tick(interval)
		}
	}
}

func (p *Pump) tick(interval time.Duration) {
	frame := p.comp.Tick()

	payload, err := p.enc.Encode(frame, interval)
	if err != nil {
		if !errors.Is(err, ErrNoSample) {
			p.logger.Debug().Err(err).Msg("encode failed, skipping tick")
		}
		metrics.FramesSkipped.Inc()
		return
	}

	if err := p.track.WriteSample(media.Sample{Data: payload, Duration: interval}); err != nil {
		p.logger.Debug().Err(err).Msg("sample write failed")
		return
	}
	metrics.FramesComposited.Inc()
}
