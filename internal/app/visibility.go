package app

import (
	"time"

	"driftcast/internal/core"
)

// Visibility applies the mobile background/foreground policy. Going hidden
// while live stops the session and marks a restart owed; coming back after
// more than the restart threshold starts a fresh one. Shorter absences do
// not restart.
func (c *Controller) Visibility(hidden bool) {
	if hidden {
		c.mu.Lock()
		live := c.state == core.SessionLive
		if live {
			c.restartOwed = true
			c.hiddenAt = time.Now()
		}
		c.mu.Unlock()
		if live {
			c.logger.Info().Msg("hidden while live, stopping")
			c.Stop()
		}
		return
	}

	c.mu.Lock()
	owed := c.restartOwed
	away := time.Since(c.hiddenAt)
	c.restartOwed = false
	ctx := c.baseCtx
	c.mu.Unlock()

	if !owed {
		return
	}
	if away <= c.cfg.RestartThreshold {
		c.logger.Info().Dur("away", away).Msg("short absence, not restarting")
		return
	}
	c.logger.Info().Dur("away", away).Msg("restarting after background")
	if err := c.Start(ctx); err != nil {
		c.logger.Error().Err(err).Msg("restart after background failed")
		if c.cb.OnFailed != nil {
			c.cb.OnFailed(err)
		}
	}
}
