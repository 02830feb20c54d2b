package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"driftcast/internal/adapters/device"
	"driftcast/internal/adapters/events"
	router "driftcast/internal/adapters/http"
	"driftcast/internal/adapters/processor"
	"driftcast/internal/app"
	"driftcast/internal/config"
	"driftcast/internal/core"
	"driftcast/internal/retry"
	"driftcast/internal/whip"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	encoder, err := device.NewFFmpegEncoder(
		cfg.Encoder.FFmpegPath,
		cfg.Video.Size,
		cfg.Video.FPS,
		cfg.Encoder.Bitrate,
		log.Logger,
	)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start video encoder")
	}
	defer encoder.Close()

	client := processor.NewClient(cfg.ProcessorURL, log.Logger)
	hub := events.NewHub(log.Logger)

	ctrl := app.NewController(
		app.Config{
			PipelineID:       cfg.PipelineID,
			VideoSize:        cfg.Video.Size,
			FPS:              cfg.Video.FPS,
			Fit:              core.ParseFitMode(cfg.Video.Fit),
			SettleWindow:     cfg.SettleWindow,
			RestartThreshold: cfg.RestartThreshold,
			CreatePolicy: retry.Policy{
				MaxRetries: cfg.Whip.ConnectRetries,
				BaseDelay:  cfg.Whip.ConnectBaseDelay,
			},
			ParamPolicy: retry.Policy{
				MaxRetries: cfg.Params.MaxRetries,
				BaseDelay:  cfg.Params.BaseDelay,
			},
			Whip: whip.Config{
				STUNServers:      cfg.Whip.STUNServers,
				ICEGatherTimeout: cfg.Whip.ICEGatherTimeout,
				GracePeriod:      cfg.Whip.GracePeriod,
				CoolDown:         cfg.Whip.CoolDown,
				ConnectPolicy: retry.Policy{
					MaxRetries: cfg.Whip.ConnectRetries,
					BaseDelay:  cfg.Whip.ConnectBaseDelay,
				},
				ReconnectRetries: cfg.Whip.ReconnectRetries,
				ReconnectDelay:   cfg.Whip.ReconnectBaseDelay,
			},
		},
		client,
		client,
		device.Host{},
		encoder,
		log.Logger,
		app.Callbacks{
			OnSessionStarted: func(sess core.PublishSession) {
				hub.Publish(events.Event{Type: "session_started", Message: sess.PlaybackURL})
			},
			OnConnState: func(state core.ConnState) {
				hub.Publish(events.Event{Type: "conn_state", State: state.String()})
			},
			OnRetry: func(attempt int, delay time.Duration) {
				hub.Publish(events.Event{Type: "reconnecting", Attempt: attempt})
			},
			OnFailed: func(err error) {
				hub.Publish(events.Event{Type: "failed", Message: err.Error()})
			},
			OnWarning: func(err error) {
				hub.Publish(events.Event{Type: "warning", Message: err.Error()})
			},
		},
	)

	applySources(ctrl, cfg, device.Host{})

	r := router.SetupRouter(ctx, cfg, ctrl, hub)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", addr).Msg("driftcast server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		ctrl.Stop()
		hub.Close()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server error")
	}
	log.Info().Msg("Server exited gracefully")
}

// applySources selects the configured video and audio sources. Camera and
// microphone requests go through the capture device and degrade on their own
// when the host exposes no hardware.
func applySources(ctrl *app.Controller, cfg *config.Config, dev core.CaptureDevice) {
	switch cfg.Video.Source {
	case "pattern":
		src := device.NewTestPattern(cfg.Video.Size*16/9, cfg.Video.Size)
		ctrl.SetMediaSource(core.StreamSource(src))
	case "camera":
		facing := core.ParseFacing(cfg.Video.Facing)
		src, _, err := dev.OpenCamera(context.Background(), facing, cfg.Video.Size)
		if err != nil {
			log.Warn().Err(err).Msg("camera unavailable, publishing blank surface")
			ctrl.SetMediaSource(core.BlankSource())
			break
		}
		ctrl.SetMediaSource(core.CameraSource(src, facing, cfg.Video.Mirror))
	default:
		ctrl.SetMediaSource(core.BlankSource())
	}

	switch cfg.Audio.Source {
	case "microphone":
		ctrl.SetAudioSource(core.AudioSourceSpec{
			Kind: core.AudioMicrophone,
			Constraints: core.MicConstraints{
				SampleRate:       cfg.Audio.SampleRate,
				Channels:         cfg.Audio.Channels,
				EchoCancellation: true,
			},
		})
	default:
		ctrl.SetAudioSource(core.AudioSourceSpec{Kind: core.AudioSilent})
	}
}
