package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"driftcast/internal/app"
	"driftcast/internal/core"
)

// SessionController exposes the publish lifecycle over the control API.
type SessionController struct {
	ctrl   *app.Controller
	logger zerolog.Logger
}

func NewSessionController(ctrl *app.Controller, logger zerolog.Logger) *SessionController {
	return &SessionController{
		ctrl:   ctrl,
		logger: logger.With().Str("module", "adapters.http").Logger(),
	}
}

func (s *SessionController) handleStart(ctx context.Context) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.ctrl.Start(ctx); err != nil {
			s.logger.Error().Err(err).Msg("start failed")
			status := http.StatusBadGateway
			var ce *core.ClientError
			if errors.As(err, &ce) {
				status = http.StatusUnprocessableEntity
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		state, sess := s.ctrl.State()
		c.JSON(http.StatusOK, gin.H{
			"state":   state.String(),
			"session": sess,
		})
	}
}

func (s *SessionController) handleStop(c *gin.Context) {
	s.ctrl.Stop()
	state, _ := s.ctrl.State()
	c.JSON(http.StatusOK, gin.H{"state": state.String()})
}

func (s *SessionController) handleState(c *gin.Context) {
	state, sess := s.ctrl.State()
	resp := gin.H{"state": state.String()}
	if sess != nil {
		resp["session"] = sess
	}
	c.JSON(http.StatusOK, resp)
}

func (s *SessionController) handleParams(c *gin.Context) {
	var p core.DiffusionParams
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad params payload"})
		return
	}
	s.ctrl.Submit(p)
	c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}

func (s *SessionController) handleVisibility(c *gin.Context) {
	var payload struct {
		Hidden bool `json:"hidden"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad visibility payload"})
		return
	}
	go s.ctrl.Visibility(payload.Hidden)
	c.JSON(http.StatusAccepted, gin.H{"hidden": payload.Hidden})
}
