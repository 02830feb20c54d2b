// Package processor is the REST client for the remote AI video processor:
// session creation and live parameter replacement.
package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"driftcast/internal/core"
)

type Client struct {
	baseURL string
	client  *http.Client
	logger  zerolog.Logger
}

func NewClient(baseURL string, logger zerolog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 15 * time.Second},
		logger:  logger.With().Str("module", "processor").Logger(),
	}
}

type createSessionRequest struct {
	PipelineID string                `json:"pipeline_id"`
	Params     *core.DiffusionParams `json:"params,omitempty"`
}

type createSessionResponse struct {
	ID       string `json:"id"`
	StreamID string `json:"stream_id"`
	OutputID string `json:"output_id"`
	WhipURL  string `json:"whip_url"`
}

// CreateSession requests a remote processing session. The caller wraps this
// in its retry policy; errors here are only classified.
func (c *Client) CreateSession(ctx context.Context, pipelineID string, initial *core.DiffusionParams) (*core.PublishSession, error) {
	var out createSessionResponse
	err := c.post(ctx, "/v1/sessions", createSessionRequest{PipelineID: pipelineID, Params: initial}, &out)
	if err != nil {
		return nil, err
	}
	if out.ID == "" || out.WhipURL == "" {
		return nil, &core.TransientError{Err: fmt.Errorf("incomplete session response")}
	}
	c.logger.Info().Str("session_id", out.ID).Str("output_id", out.OutputID).Msg("session created")
	return &core.PublishSession{
		ID:       out.ID,
		StreamID: out.StreamID,
		OutputID: out.OutputID,
		WhipURL:  out.WhipURL,
	}, nil
}

type updateParamsRequest struct {
	Params core.DiffusionParams `json:"params"`
}

// SendUpdate replaces the session's generation parameters wholesale.
func (c *Client) SendUpdate(ctx context.Context, sessionID string, params core.DiffusionParams) error {
	return c.post(ctx, "/v1/sessions/"+sessionID+"/params", updateParamsRequest{Params: params}, nil)
}

// post issues a JSON call and classifies failures the same way the WHIP
// path does: [400,500) terminal, everything else transient.
func (c *Client) post(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return &core.TransientError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &core.TransientError{Err: err}
	}
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return &core.ClientError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &core.TransientError{Status: resp.StatusCode}
	}
	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return &core.TransientError{Err: fmt.Errorf("decode response: %w", err)}
		}
	}
	return nil
}
