// Package app orchestrates the publish session: remote session creation,
// track wiring, publisher lifecycle and the parameter gate.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"driftcast/internal/audio"
	"driftcast/internal/compositor"
	"driftcast/internal/core"
	"driftcast/internal/params"
	"driftcast/internal/retry"
	"driftcast/internal/whip"
)

// Publisher is the outbound connection surface the controller drives. The
// concrete implementation lives in internal/whip; tests substitute a fake.
type Publisher interface {
	Connect(ctx context.Context, whipURL string, video, audio webrtc.TrackLocal) error
	ReplaceAudioTrack(track webrtc.TrackLocal) error
	OnStateChange(fn func(core.ConnState))
	OnRetry(fn func(attempt int, delay time.Duration))
	OnRetryExhausted(fn func(err error))
	PlaybackURL() string
	Close()
}

// Config is the controller's slice of the configuration surface.
type Config struct {
	PipelineID       string
	VideoSize        int
	FPS              int
	Fit              core.FitMode
	SettleWindow     time.Duration
	RestartThreshold time.Duration
	CreatePolicy     retry.Policy
	ParamPolicy      retry.Policy
	Whip             whip.Config
}

// Callbacks is the informational surface the UI layer consumes. All fields
// optional; all invoked from pipeline goroutines.
type Callbacks struct {
	OnSessionStarted func(sess core.PublishSession)
	OnConnState      func(state core.ConnState)
	OnRetry          func(attempt int, delay time.Duration)
	OnFailed         func(err error)
	OnWarning        func(err error)
}

// Controller owns exactly one active publish session at a time.
type Controller struct {
	cfg      Config
	creator  core.SessionCreator
	sender   core.ParamSender
	device   core.CaptureDevice
	encoder  core.VideoEncoder
	logger   zerolog.Logger
	cb       Callbacks
	streamID string

	comp     *compositor.Compositor
	provider *audio.Provider

	newPublisher func() Publisher

	mu          sync.Mutex
	state       core.SessionState
	sess        *core.PublishSession
	pub         Publisher
	channel     *params.Channel
	resolved    *core.ResolvedAudioTrack
	cancel      context.CancelFunc
	settleTimer *time.Timer
	gateArmed   bool
	baseCtx     context.Context
	audioSpec   core.AudioSourceSpec
	lastParams  *core.DiffusionParams
	restartOwed bool
	hiddenAt    time.Time
}

func NewController(cfg Config, creator core.SessionCreator, sender core.ParamSender, device core.CaptureDevice, encoder core.VideoEncoder, logger zerolog.Logger, cb Callbacks) *Controller {
	streamID := "driftcast-" + uuid.NewString()
	c := &Controller{
		cfg:      cfg,
		creator:  creator,
		sender:   sender,
		device:   device,
		encoder:  encoder,
		logger:   logger.With().Str("module", "controller").Logger(),
		cb:       cb,
		streamID: streamID,
		comp:     compositor.New(cfg.VideoSize, cfg.Fit),
		state:    core.SessionNotStarted,
		baseCtx:  context.Background(),
		audioSpec: core.AudioSourceSpec{
			Kind: core.AudioSilent,
		},
	}
	c.provider = audio.NewProvider(device, streamID, logger)
	c.newPublisher = func() Publisher {
		return whip.NewPublisher(cfg.Whip, logger)
	}
	c.provider.OnWarning(func(err error) {
		if c.cb.OnWarning != nil {
			c.cb.OnWarning(err)
		}
	})
	c.provider.OnChange(func(r *core.ResolvedAudioTrack) {
		c.mu.Lock()
		pub := c.pub
		c.resolved = r
		c.mu.Unlock()
		if pub != nil && r.Track != nil {
			if err := pub.ReplaceAudioTrack(r.Track); err != nil {
				c.logger.Warn().Err(err).Msg("audio hot-swap failed")
			}
		}
	})
	return c
}

// SetPublisherFactory overrides how publishers are built. Used by tests.
func (c *Controller) SetPublisherFactory(fn func() Publisher) {
	c.newPublisher = fn
}

// SetMediaSource swaps the compositor's video source. Takes effect on the
// next tick.
func (c *Controller) SetMediaSource(spec core.MediaSourceSpec) {
	c.comp.SetSource(spec)
}

// SetAudioSource re-resolves the published audio track. If a session is
// live the publisher picks the new track up via in-place replacement.
func (c *Controller) SetAudioSource(spec core.AudioSourceSpec) {
	c.mu.Lock()
	c.audioSpec = spec
	ctx := c.baseCtx
	live := c.state == core.SessionLive
	c.mu.Unlock()
	if live {
		c.provider.Resolve(ctx, spec)
	}
}

// Submit routes a parameter edit into the coalescing channel. Before the
// session exists the value is kept as the initial configuration.
func (c *Controller) Submit(p core.DiffusionParams) {
	c.mu.Lock()
	c.lastParams = &p
	ch := c.channel
	c.mu.Unlock()
	if ch != nil {
		ch.Submit(p)
	}
}

// Start creates the remote session and brings the publish pipeline up.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state == core.SessionStarting || c.state == core.SessionLive {
		c.mu.Unlock()
		return fmt.Errorf("session already active")
	}
	c.state = core.SessionStarting
	c.baseCtx = ctx
	initial := c.lastParams
	audioSpec := c.audioSpec
	c.mu.Unlock()

	sctx, cancel := context.WithCancel(ctx)

	var sess *core.PublishSession
	err := c.cfg.CreatePolicy.Do(sctx, c.logger, "create session", func(ctx context.Context) error {
		var err error
		sess, err = c.creator.CreateSession(ctx, c.cfg.PipelineID, initial)
		return err
	})
	if err != nil {
		cancel()
		c.setState(core.SessionStopped)
		return fmt.Errorf("create session: %w", err)
	}

	videoTrack, err := webrtc.NewTrackLocalStaticSample(c.encoder.Codec(), "video-"+uuid.NewString(), c.streamID)
	if err != nil {
		cancel()
		c.setState(core.SessionStopped)
		return fmt.Errorf("create video track: %w", err)
	}

	resolved := c.provider.Resolve(sctx, audioSpec)
	channel := params.NewChannel(sctx, c.sender, c.cfg.ParamPolicy, sess.ID, c.logger)
	channel.OnError(func(err error) {
		if c.cb.OnWarning != nil {
			c.cb.OnWarning(err)
		}
	})

	pub := c.newPublisher()
	pub.OnStateChange(c.onConnState)
	pub.OnRetry(func(attempt int, delay time.Duration) {
		if c.cb.OnRetry != nil {
			c.cb.OnRetry(attempt, delay)
		}
	})
	pub.OnRetryExhausted(func(err error) {
		c.logger.Error().Err(err).Msg("publish connection lost for good")
		go c.Stop()
		if c.cb.OnFailed != nil {
			c.cb.OnFailed(err)
		}
	})

	c.mu.Lock()
	c.sess = sess
	c.pub = pub
	c.channel = channel
	c.resolved = resolved
	c.cancel = cancel
	c.gateArmed = false
	c.mu.Unlock()

	if err := pub.Connect(sctx, sess.WhipURL, videoTrack, resolved.Track); err != nil {
		c.teardown()
		return fmt.Errorf("whip connect: %w", err)
	}

	sess.PlaybackURL = pub.PlaybackURL()

	pump := compositor.NewPump(c.comp, c.encoder, videoTrack, c.cfg.FPS, c.logger)
	go func() {
		if err := pump.Run(sctx); err != nil {
			c.logger.Error().Err(err).Msg("frame pump failed")
		}
	}()

	c.setState(core.SessionLive)
	c.logger.Info().
		Str("session_id", sess.ID).
		Str("output_id", sess.OutputID).
		Str("playback_url", sess.PlaybackURL).
		Msg("session live")
	if c.cb.OnSessionStarted != nil {
		c.cb.OnSessionStarted(*sess)
	}
	return nil
}

// onConnState forwards connection health and arms the settling window that
// opens the parameter gate after the first Connected.
func (c *Controller) onConnState(s core.ConnState) {
	if c.cb.OnConnState != nil {
		c.cb.OnConnState(s)
	}
	if s != core.ConnConnected {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gateArmed || c.channel == nil {
		return
	}
	c.gateArmed = true
	ch := c.channel
	c.settleTimer = time.AfterFunc(c.cfg.SettleWindow, ch.OpenGate)
}

// Stop tears the session down. Idempotent and safe from any state: close
// the peer connection first, then owned tracks (which stops any synthesized
// audio), then timers and loops, then clear the session identifiers.
func (c *Controller) Stop() {
	c.mu.Lock()
	if c.state == core.SessionStopping {
		c.mu.Unlock()
		return
	}
	c.state = core.SessionStopping
	c.mu.Unlock()

	c.teardown()
}

func (c *Controller) teardown() {
	c.mu.Lock()
	pub := c.pub
	resolved := c.resolved
	channel := c.channel
	cancel := c.cancel
	settle := c.settleTimer
	c.pub = nil
	c.resolved = nil
	c.channel = nil
	c.cancel = nil
	c.settleTimer = nil
	c.sess = nil
	c.mu.Unlock()

	if pub != nil {
		pub.Close()
	}
	if resolved != nil {
		resolved.Stop()
	}
	if settle != nil {
		settle.Stop()
	}
	if channel != nil {
		channel.Close()
	}
	if cancel != nil {
		cancel()
	}

	c.setState(core.SessionStopped)
	c.logger.Info().Msg("session stopped")
}

// State reports the lifecycle state and current session, if any.
func (c *Controller) State() (core.SessionState, *core.PublishSession) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return c.state, nil
	}
	cp := *c.sess
	return c.state, &cp
}

func (c *Controller) setState(s core.SessionState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}
