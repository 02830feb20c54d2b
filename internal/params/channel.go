// Package params serializes user-driven parameter changes into at most one
// in-flight remote update, coalescing bursts to the latest value.
package params

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"driftcast/internal/core"
	"driftcast/internal/metrics"
	"driftcast/internal/retry"
)

// Channel is a single mutable slot, not a queue: new submissions overwrite
// the pending value, and a drain runs only when the gate is open and no call
// is in flight. The in-flight flag is the whole mutual exclusion story.
type Channel struct {
	ctx       context.Context
	sender    core.ParamSender
	policy    retry.Policy
	sessionID string
	logger    zerolog.Logger

	mu       sync.Mutex
	pending  *core.DiffusionParams
	inFlight bool
	gate     bool
	closed   bool
	onError  func(error)
}

func NewChannel(ctx context.Context, sender core.ParamSender, policy retry.Policy, sessionID string, logger zerolog.Logger) *Channel {
	return &Channel{
		ctx:       ctx,
		sender:    sender,
		policy:    policy,
		sessionID: sessionID,
		logger:    logger.With().Str("module", "params").Str("session_id", sessionID).Logger(),
	}
}

// OnError registers the surface for non-retryable and exhausted failures.
func (c *Channel) OnError(fn func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = fn
}

// Submit overwrites the pending slot with the newest value. Intermediate
// values submitted in quick succession are never sent.
func (c *Channel) Submit(p core.DiffusionParams) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if c.pending != nil {
		metrics.ParamsCoalesced.Inc()
	}
	c.pending = &p
	c.mu.Unlock()

	go c.drain()
}

// OpenGate lets drains run. The controller opens it only after the publish
// connection is up and the settling window has elapsed, so the first real
// update reflects the current configuration.
func (c *Channel) OpenGate() {
	c.mu.Lock()
	c.gate = true
	c.mu.Unlock()
	c.logger.Info().Msg("parameter gate opened")

	go c.drain()
}

// CloseGate pauses sending without discarding the pending value.
func (c *Channel) CloseGate() {
	c.mu.Lock()
	c.gate = false
	c.mu.Unlock()
}

// Close permanently stops the channel.
func (c *Channel) Close() {
	c.mu.Lock()
	c.closed = true
	c.gate = false
	c.pending = nil
	c.mu.Unlock()
}

func (c *Channel) drain() {
	c.mu.Lock()
	if c.closed || !c.gate || c.inFlight || c.pending == nil {
		c.mu.Unlock()
		return
	}
	next := *c.pending
	c.pending = nil
	c.inFlight = true
	c.mu.Unlock()

	err := c.policy.Do(c.ctx, c.logger, "param update", func(ctx context.Context) error {
		return c.sender.SendUpdate(ctx, c.sessionID, next)
	})

	c.mu.Lock()
	c.inFlight = false
	again := c.pending != nil && !c.closed
	onError := c.onError
	c.mu.Unlock()

	if err != nil {
		c.logger.Warn().Err(err).Msg("param update failed")
		if onError != nil {
			onError(err)
		}
	} else {
		metrics.ParamUpdates.Inc()
		c.logger.Debug().Msg("param update delivered")
	}

	// New input arrived while the call was in flight: go again with the
	// latest snapshot.
	if again {
		go c.drain()
	}
}
