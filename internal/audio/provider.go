// Package audio resolves one live audio track from a strict priority order:
// externally supplied, locally captured microphone, synthesized silence.
package audio

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"driftcast/internal/core"
)

// Provider owns the resolution of the published audio track and notifies
// listeners when the resolved track changes so the publisher can swap the
// sender track in place.
type Provider struct {
	device   core.CaptureDevice
	streamID string
	logger   zerolog.Logger

	mu       sync.Mutex
	current  *core.ResolvedAudioTrack
	onChange func(*core.ResolvedAudioTrack)
	onWarn   func(error)
}

func NewProvider(device core.CaptureDevice, streamID string, logger zerolog.Logger) *Provider {
	return &Provider{
		device:   device,
		streamID: streamID,
		logger:   logger.With().Str("module", "audio").Logger(),
	}
}

// OnChange registers the hot-swap notification. The callback fires only for
// swaps after the first resolution.
func (p *Provider) OnChange(fn func(*core.ResolvedAudioTrack)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onChange = fn
}

// OnWarning registers the degradation channel (e.g. microphone denied).
func (p *Provider) OnWarning(fn func(error)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onWarn = fn
}

// Resolve picks the highest-priority live track for spec. Acquisition
// failures never propagate: the provider degrades to the next source and
// reports through the warning channel. The previous owned track, if any, is
// stopped after the swap.
func (p *Provider) Resolve(ctx context.Context, spec core.AudioSourceSpec) *core.ResolvedAudioTrack {
	resolved := p.resolve(ctx, spec)

	p.mu.Lock()
	prev := p.current
	p.current = resolved
	notify := p.onChange
	p.mu.Unlock()

	if prev != nil {
		prev.Stop()
		if notify != nil && (prev.Track != resolved.Track) {
			notify(resolved)
		}
	}
	p.logger.Info().Str("provenance", resolved.Provenance.String()).Msg("audio track resolved")
	return resolved
}

// Current returns the live resolved track, if any.
func (p *Provider) Current() *core.ResolvedAudioTrack {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Close stops the owned side of the current track.
func (p *Provider) Close() {
	p.mu.Lock()
	cur := p.current
	p.current = nil
	p.mu.Unlock()
	cur.Stop()
}

func (p *Provider) resolve(ctx context.Context, spec core.AudioSourceSpec) *core.ResolvedAudioTrack {
	switch spec.Kind {
	case core.AudioExternal:
		if spec.Track != nil {
			// Caller-supplied: no stop hook, teardown must not touch it.
			return core.NewResolvedAudioTrack(spec.Track, core.ProvenanceExternal, nil)
		}
		if spec.Remote != nil {
			local, stop, err := bridgeRemote(spec.Remote, p.streamID, p.logger)
			if err == nil {
				return core.NewResolvedAudioTrack(local, core.ProvenanceExternal, stop)
			}
			p.warn(&core.DeviceUnavailableError{Device: "external audio", Err: err})
		}
		return p.silent()

	case core.AudioMicrophone:
		track, stop, err := p.device.OpenMicrophone(ctx, spec.Constraints)
		if err == nil {
			return core.NewResolvedAudioTrack(track, core.ProvenanceMicrophone, stop)
		}
		p.warn(&core.DeviceUnavailableError{Device: "microphone", Err: err})
		return p.silent()

	default:
		return p.silent()
	}
}

func (p *Provider) silent() *core.ResolvedAudioTrack {
	track, stop, err := newSilentTrack(p.streamID, p.logger)
	if err != nil {
		// NewTrackLocalStaticSample only fails on bad arguments, which are
		// constant here. Keep the session audio-less rather than crash.
		p.logger.Error().Err(err).Msg("silent track creation failed")
		return core.NewResolvedAudioTrack(nil, core.ProvenanceSilent, nil)
	}
	return core.NewResolvedAudioTrack(track, core.ProvenanceSilent, stop)
}

func (p *Provider) warn(err error) {
	p.logger.Warn().Err(err).Msg("audio source degraded")
	p.mu.Lock()
	fn := p.onWarn
	p.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}
