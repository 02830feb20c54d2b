// Package http wires the control API: session lifecycle, parameter edits,
// visibility events, metrics and the event socket.
package http

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"driftcast/internal/adapters/events"
	"driftcast/internal/app"
	"driftcast/internal/config"
)

func SetupRouter(ctx context.Context, cfg *config.Config, ctrl *app.Controller, hub *events.Hub) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	sc := NewSessionController(ctrl, log.Logger)

	log.Info().Str("module", "adapters.http").Int("port", cfg.Port).Msg("router setup")

	api := r.Group("/api")
	api.POST("/session/start", sc.handleStart(ctx))
	api.POST("/session/stop", sc.handleStop)
	api.GET("/session", sc.handleState)
	api.POST("/session/params", sc.handleParams)
	api.POST("/session/visibility", sc.handleVisibility)

	api.GET("/ws/events", func(c *gin.Context) {
		hub.HandleSubscribe(ctx, c)
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}
