package app_test

import (
	"context"
	"errors"
	"image"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"driftcast/internal/app"
	"driftcast/internal/compositor"
	"driftcast/internal/core"
	"driftcast/internal/retry"
)

type fakeCreator struct {
	calls atomic.Int32
	err   error
}

func (f *fakeCreator) CreateSession(context.Context, string, *core.DiffusionParams) (*core.PublishSession, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return &core.PublishSession{
		ID:       "sess-1",
		StreamID: "stream-1",
		OutputID: "out-1",
		WhipURL:  "https://ingest.example.com/whip",
	}, nil
}

type fakeSender struct {
	mu   sync.Mutex
	sent []core.DiffusionParams
}

func (f *fakeSender) SendUpdate(_ context.Context, _ string, p core.DiffusionParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, p)
	return nil
}

func (f *fakeSender) values() []core.DiffusionParams {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]core.DiffusionParams, len(f.sent))
	copy(out, f.sent)
	return out
}

type fakeDevice struct{}

func (fakeDevice) OpenCamera(context.Context, core.Facing, int) (core.FrameSource, func(), error) {
	return nil, nil, &core.DeviceUnavailableError{Device: "camera", Err: errors.New("absent")}
}

func (fakeDevice) OpenMicrophone(context.Context, core.MicConstraints) (webrtc.TrackLocal, func(), error) {
	return nil, nil, &core.DeviceUnavailableError{Device: "microphone", Err: errors.New("denied")}
}

type fakeEncoder struct{}

func (fakeEncoder) Encode(*image.RGBA, time.Duration) ([]byte, error) {
	return nil, compositor.ErrNoSample
}

func (fakeEncoder) Codec() webrtc.RTPCodecCapability {
	return webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeH264, ClockRate: 90000}
}

type fakePublisher struct {
	mu         sync.Mutex
	connectErr error
	connects   int
	closes     int
	replaced   []webrtc.TrackLocal
	onState    func(core.ConnState)
	onRetry    func(int, time.Duration)
	onExhaust  func(error)
}

func (f *fakePublisher) Connect(_ context.Context, _ string, _, _ webrtc.TrackLocal) error {
	f.mu.Lock()
	f.connects++
	err := f.connectErr
	onState := f.onState
	f.mu.Unlock()
	if err != nil {
		return err
	}
	if onState != nil {
		onState(core.ConnConnected)
	}
	return nil
}

func (f *fakePublisher) ReplaceAudioTrack(t webrtc.TrackLocal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replaced = append(f.replaced, t)
	return nil
}

func (f *fakePublisher) OnStateChange(fn func(core.ConnState))          { f.onState = fn }
func (f *fakePublisher) OnRetry(fn func(int, time.Duration))            { f.onRetry = fn }
func (f *fakePublisher) OnRetryExhausted(fn func(error))                { f.onExhaust = fn }
func (f *fakePublisher) PlaybackURL() string                            { return "https://cdn.example.com/play" }
func (f *fakePublisher) Close()                                         { f.mu.Lock(); f.closes++; f.mu.Unlock() }

func testConfig() app.Config {
	return app.Config{
		PipelineID:       "pipe-1",
		VideoSize:        64,
		FPS:              10,
		Fit:              core.FitCover,
		SettleWindow:     20 * time.Millisecond,
		RestartThreshold: 50 * time.Millisecond,
		CreatePolicy:     retry.Policy{MaxRetries: 1, BaseDelay: time.Millisecond},
		ParamPolicy:      retry.Policy{MaxRetries: 1, BaseDelay: time.Millisecond},
	}
}

type harness struct {
	ctrl    *app.Controller
	creator *fakeCreator
	sender  *fakeSender
	pub     *fakePublisher
	started chan core.PublishSession
	failed  chan error
}

func newHarness(t *testing.T, cfg app.Config) *harness {
	t.Helper()
	h := &harness{
		creator: &fakeCreator{},
		sender:  &fakeSender{},
		pub:     &fakePublisher{},
		started: make(chan core.PublishSession, 4),
		failed:  make(chan error, 4),
	}
	h.ctrl = app.NewController(cfg, h.creator, h.sender, fakeDevice{}, fakeEncoder{}, zerolog.Nop(), app.Callbacks{
		OnSessionStarted: func(s core.PublishSession) { h.started <- s },
		OnFailed:         func(err error) { h.failed <- err },
	})
	h.ctrl.SetPublisherFactory(func() app.Publisher { return h.pub })
	t.Cleanup(h.ctrl.Stop)
	return h
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestStartGoesLiveAndOpensGateAfterSettling(t *testing.T) {
	h := newHarness(t, testConfig())

	if err := h.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	state, sess := h.ctrl.State()
	if state != core.SessionLive {
		t.Fatalf("expected Live, got %v", state)
	}
	if sess == nil || sess.ID != "sess-1" {
		t.Fatalf("session not recorded: %+v", sess)
	}
	if sess.PlaybackURL != "https://cdn.example.com/play" {
		t.Fatalf("playback URL not filled from answer: %q", sess.PlaybackURL)
	}

	select {
	case got := <-h.started:
		if got.OutputID != "out-1" {
			t.Fatalf("started callback session: %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("OnSessionStarted never fired")
	}

	// The gate holds updates until the settling window elapses, then the
	// latest submission goes out.
	h.ctrl.Submit(core.DiffusionParams{Prompt: "early"})
	h.ctrl.Submit(core.DiffusionParams{Prompt: "final"})
	waitFor(t, func() bool { return len(h.sender.values()) >= 1 })
	vals := h.sender.values()
	if vals[len(vals)-1].Prompt != "final" {
		t.Fatalf("expected latest value delivered, got %v", vals)
	}
}

func TestDoubleStopIsSafe(t *testing.T) {
	h := newHarness(t, testConfig())
	if err := h.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	h.ctrl.Stop()
	h.ctrl.Stop()

	state, sess := h.ctrl.State()
	if state != core.SessionStopped {
		t.Fatalf("expected Stopped, got %v", state)
	}
	if sess != nil {
		t.Fatal("session identifiers must be cleared on stop")
	}
}

func TestStopBeforeStartIsSafe(t *testing.T) {
	h := newHarness(t, testConfig())
	h.ctrl.Stop()
	h.ctrl.Stop()
}

func TestVisibilityLongAbsenceRestarts(t *testing.T) {
	h := newHarness(t, testConfig())
	if err := h.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	h.ctrl.Visibility(true)
	state, _ := h.ctrl.State()
	if state != core.SessionStopped {
		t.Fatalf("expected Stopped while hidden, got %v", state)
	}

	time.Sleep(60 * time.Millisecond)
	h.ctrl.Visibility(false)

	waitFor(t, func() bool {
		s, _ := h.ctrl.State()
		return s == core.SessionLive
	})
	if got := h.creator.calls.Load(); got != 2 {
		t.Fatalf("expected a fresh session after restart, creator calls=%d", got)
	}
}

func TestVisibilityShortAbsenceDoesNotRestart(t *testing.T) {
	h := newHarness(t, testConfig())
	if err := h.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	h.ctrl.Visibility(true)
	time.Sleep(10 * time.Millisecond)
	h.ctrl.Visibility(false)

	time.Sleep(50 * time.Millisecond)
	state, _ := h.ctrl.State()
	if state != core.SessionStopped {
		t.Fatalf("short absence must not restart, got %v", state)
	}
	if got := h.creator.calls.Load(); got != 1 {
		t.Fatalf("creator must not be called again, calls=%d", got)
	}
}

func TestStartPropagatesClientErrorWithoutRetry(t *testing.T) {
	h := newHarness(t, testConfig())
	h.creator.err = &core.ClientError{Status: 403, Body: "no such pipeline"}

	err := h.ctrl.Start(context.Background())
	var ce *core.ClientError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ClientError, got %v", err)
	}
	if got := h.creator.calls.Load(); got != 1 {
		t.Fatalf("client error must not be retried, calls=%d", got)
	}
}

func TestRetryExhaustedTearsSessionDown(t *testing.T) {
	h := newHarness(t, testConfig())
	if err := h.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	h.pub.onExhaust(&core.RetryExhaustedError{Op: "whip reconnect", Attempts: 3})

	select {
	case <-h.failed:
	case <-time.After(time.Second):
		t.Fatal("OnFailed never fired")
	}
	waitFor(t, func() bool {
		s, _ := h.ctrl.State()
		return s == core.SessionStopped
	})
}
