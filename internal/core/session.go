package core

import "context"

// PublishSession identifies one remote processing session. Immutable after
// creation except PlaybackURL, which is filled in from the WHIP answer.
type PublishSession struct {
	ID          string `json:"id"`
	StreamID    string `json:"stream_id"`
	WhipURL     string `json:"whip_url"`
	OutputID    string `json:"output_id"`
	PlaybackURL string `json:"playback_url,omitempty"`
}

// ControlNet describes one sub-processor conditioning the generation.
type ControlNet struct {
	ModelID           string  `json:"model_id"`
	Preprocessor      string  `json:"preprocessor,omitempty"`
	ConditioningScale float64 `json:"conditioning_scale"`
}

// DiffusionParams is the full generation configuration. Treated as an
// immutable value: every update replaces the whole thing, never a patch.
type DiffusionParams struct {
	Prompt         string       `json:"prompt"`
	NegativePrompt string       `json:"negative_prompt,omitempty"`
	InferenceSteps int          `json:"inference_steps,omitempty"`
	GuidanceScale  float64      `json:"guidance_scale,omitempty"`
	Delta          float64      `json:"delta,omitempty"`
	Seed           int64        `json:"seed,omitempty"`
	ControlNets    []ControlNet `json:"controlnets,omitempty"`
	StyleImageURL  string       `json:"style_image_url,omitempty"`
}

// SessionCreator requests a remote session from the processor.
type SessionCreator interface {
	CreateSession(ctx context.Context, pipelineID string, initial *DiffusionParams) (*PublishSession, error)
}

// ParamSender pushes a full parameter replacement to a live session.
type ParamSender interface {
	SendUpdate(ctx context.Context, sessionID string, params DiffusionParams) error
}
