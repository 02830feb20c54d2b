// Package device holds the platform capture and encoding adapters.
package device

import (
	"context"
	"errors"

	"github.com/pion/webrtc/v4"

	"driftcast/internal/core"
)

// Host is the capture integration point for the running platform. The
// default host exposes no devices: camera requests degrade to the blank
// surface and microphone requests degrade to synthesized silence, exactly
// as a denied permission would. Deployments with real capture hardware
// plug their own core.CaptureDevice in instead.
type Host struct{}

func (Host) OpenCamera(_ context.Context, facing core.Facing, _ int) (core.FrameSource, func(), error) {
	return nil, nil, &core.DeviceUnavailableError{
		Device: "camera (" + facingName(facing) + ")",
		Err:    errors.New("no capture backend on this host"),
	}
}

func (Host) OpenMicrophone(context.Context, core.MicConstraints) (webrtc.TrackLocal, func(), error) {
	return nil, nil, &core.DeviceUnavailableError{
		Device: "microphone",
		Err:    errors.New("no capture backend on this host"),
	}
}

func facingName(f core.Facing) string {
	if f == core.FacingBack {
		return "back"
	}
	return "front"
}
