package audio_test

import (
	"context"
	"errors"
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"driftcast/internal/audio"
	"driftcast/internal/core"
)

type fakeDevice struct {
	micErr   error
	micStops int
}

func (d *fakeDevice) OpenCamera(context.Context, core.Facing, int) (core.FrameSource, func(), error) {
	return nil, nil, &core.DeviceUnavailableError{Device: "camera", Err: errors.New("absent")}
}

func (d *fakeDevice) OpenMicrophone(context.Context, core.MicConstraints) (webrtc.TrackLocal, func(), error) {
	if d.micErr != nil {
		return nil, nil, d.micErr
	}
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
		"mic", "stream",
	)
	if err != nil {
		return nil, nil, err
	}
	return track, func() { d.micStops++ }, nil
}

func TestMicrophoneDeniedFallsBackToSilent(t *testing.T) {
	dev := &fakeDevice{micErr: errors.New("permission denied")}
	p := audio.NewProvider(dev, "stream", zerolog.Nop())

	var warned error
	p.OnWarning(func(err error) { warned = err })

	resolved := p.Resolve(context.Background(), core.AudioSourceSpec{Kind: core.AudioMicrophone})
	defer resolved.Stop()

	if resolved.Track == nil {
		t.Fatal("published audio track must be non-nil after denial")
	}
	if resolved.Provenance != core.ProvenanceSilent {
		t.Fatalf("expected silent fallback, got %v", resolved.Provenance)
	}
	var de *core.DeviceUnavailableError
	if !errors.As(warned, &de) {
		t.Fatalf("expected DeviceUnavailableError warning, got %v", warned)
	}
}

func TestMicrophoneGranted(t *testing.T) {
	dev := &fakeDevice{}
	p := audio.NewProvider(dev, "stream", zerolog.Nop())

	resolved := p.Resolve(context.Background(), core.AudioSourceSpec{Kind: core.AudioMicrophone})
	if resolved.Provenance != core.ProvenanceMicrophone {
		t.Fatalf("expected microphone provenance, got %v", resolved.Provenance)
	}
	resolved.Stop()
	resolved.Stop()
	if dev.micStops != 1 {
		t.Fatalf("owned track must be stopped exactly once, got %d", dev.micStops)
	}
}

func TestExternalTrackNeverStopped(t *testing.T) {
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
		"ext", "stream",
	)
	if err != nil {
		t.Fatal(err)
	}
	p := audio.NewProvider(&fakeDevice{}, "stream", zerolog.Nop())

	resolved := p.Resolve(context.Background(), core.AudioSourceSpec{Kind: core.AudioExternal, Track: track})
	if resolved.Provenance != core.ProvenanceExternal {
		t.Fatalf("expected external provenance, got %v", resolved.Provenance)
	}
	// Stop must be a no-op for caller-supplied tracks.
	resolved.Stop()
	if resolved.Track != track {
		t.Fatal("external track identity must be preserved")
	}
}

func TestReResolveStopsPreviousOwnedTrackAndNotifies(t *testing.T) {
	dev := &fakeDevice{}
	p := audio.NewProvider(dev, "stream", zerolog.Nop())

	var swapped *core.ResolvedAudioTrack
	p.OnChange(func(r *core.ResolvedAudioTrack) { swapped = r })

	first := p.Resolve(context.Background(), core.AudioSourceSpec{Kind: core.AudioMicrophone})
	if swapped != nil {
		t.Fatal("initial resolution must not fire onChange")
	}

	second := p.Resolve(context.Background(), core.AudioSourceSpec{Kind: core.AudioSilent})
	defer second.Stop()

	if dev.micStops != 1 {
		t.Fatalf("previous owned track not stopped: %d", dev.micStops)
	}
	if swapped == nil || swapped.Provenance != core.ProvenanceSilent {
		t.Fatalf("expected onChange with silent track, got %+v", swapped)
	}
	if first.Track == second.Track {
		t.Fatal("expected a different track after re-resolution")
	}
}

func TestSilentSpecYieldsSilentTrack(t *testing.T) {
	p := audio.NewProvider(&fakeDevice{}, "stream", zerolog.Nop())
	resolved := p.Resolve(context.Background(), core.AudioSourceSpec{Kind: core.AudioSilent})
	defer p.Close()

	if resolved.Track == nil || resolved.Provenance != core.ProvenanceSilent {
		t.Fatalf("expected live silent track, got %+v", resolved)
	}
}
