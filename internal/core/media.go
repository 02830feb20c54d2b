package core

import (
	"context"
	"image"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
)

// FitMode selects how a source frame maps onto the square surface.
type FitMode int

const (
	// FitCover scales to fill and center-crops the overflow.
	FitCover FitMode = iota
	// FitContain scales to fit entirely and letterboxes the rest.
	FitContain
)

func (m FitMode) String() string {
	if m == FitContain {
		return "contain"
	}
	return "cover"
}

// ParseFitMode maps a config string to a FitMode, defaulting to cover.
func ParseFitMode(s string) FitMode {
	if s == "contain" {
		return FitContain
	}
	return FitCover
}

// Facing is the camera facing mode.
type Facing int

const (
	FacingFront Facing = iota
	FacingBack
)

func ParseFacing(s string) Facing {
	if s == "back" || s == "environment" {
		return FacingBack
	}
	return FacingFront
}

// FrameSource exposes the latest decoded frame of a video source.
// Frame returns ok=false while no frame is available yet.
type FrameSource interface {
	Frame() (image.Image, bool)
}

// SourceKind tags the MediaSourceSpec variant.
type SourceKind int

const (
	SourceBlank SourceKind = iota
	SourceStream
	SourceSurface
	SourceCamera
)

func (k SourceKind) String() string {
	switch k {
	case SourceStream:
		return "stream"
	case SourceSurface:
		return "surface"
	case SourceCamera:
		return "camera"
	default:
		return "blank"
	}
}

// MediaSourceSpec is the caller-supplied video source selection. Re-evaluated
// whenever it changes, never mutated internally.
type MediaSourceSpec struct {
	Kind   SourceKind
	Source FrameSource
	Facing Facing
	Mirror bool
}

func BlankSource() MediaSourceSpec { return MediaSourceSpec{Kind: SourceBlank} }

func StreamSource(src FrameSource) MediaSourceSpec {
	return MediaSourceSpec{Kind: SourceStream, Source: src}
}

func SurfaceSource(src FrameSource) MediaSourceSpec {
	return MediaSourceSpec{Kind: SourceSurface, Source: src}
}

func CameraSource(src FrameSource, facing Facing, mirror bool) MediaSourceSpec {
	return MediaSourceSpec{Kind: SourceCamera, Source: src, Facing: facing, Mirror: mirror}
}

// MicConstraints are passed through to the capture device.
type MicConstraints struct {
	SampleRate       int
	Channels         int
	EchoCancellation bool
}

// AudioKind tags the AudioSourceSpec variant.
type AudioKind int

const (
	AudioExternal AudioKind = iota
	AudioMicrophone
	AudioSilent
)

// AudioSourceSpec is the caller-supplied audio source selection.
type AudioSourceSpec struct {
	Kind AudioKind
	// Track is an already-live local track supplied by the caller.
	Track webrtc.TrackLocal
	// Remote is an incoming RTP track to bridge into the outbound session.
	Remote      *webrtc.TrackRemote
	Constraints MicConstraints
}

// Provenance records where the live audio track came from, so teardown
// knows whether stopping it is permitted.
type Provenance int

const (
	ProvenanceExternal Provenance = iota
	ProvenanceMicrophone
	ProvenanceSilent
)

func (p Provenance) String() string {
	switch p {
	case ProvenanceMicrophone:
		return "microphone"
	case ProvenanceSilent:
		return "silent"
	default:
		return "external"
	}
}

// ResolvedAudioTrack is the currently live audio track tagged with its
// provenance. The stop hook tears down only resources the provider owns; a
// caller-supplied track carries no hook at all, so Stop can never touch it.
// Safe to call more than once.
type ResolvedAudioTrack struct {
	Track      webrtc.TrackLocal
	Provenance Provenance

	stop func()
	once sync.Once
}

func NewResolvedAudioTrack(track webrtc.TrackLocal, prov Provenance, stop func()) *ResolvedAudioTrack {
	return &ResolvedAudioTrack{Track: track, Provenance: prov, stop: stop}
}

func (r *ResolvedAudioTrack) Stop() {
	if r == nil {
		return
	}
	r.once.Do(func() {
		if r.stop != nil {
			r.stop()
		}
	})
}

// CaptureDevice is the platform capture collaborator. Both acquisitions are
// fallible (permission denial, device absence) and callers degrade instead
// of aborting.
type CaptureDevice interface {
	OpenCamera(ctx context.Context, facing Facing, size int) (FrameSource, func(), error)
	OpenMicrophone(ctx context.Context, c MicConstraints) (webrtc.TrackLocal, func(), error)
}

// VideoEncoder turns a composited surface into one encoded sample.
type VideoEncoder interface {
	Encode(frame *image.RGBA, d time.Duration) ([]byte, error)
	Codec() webrtc.RTPCodecCapability
}
