// Package whip publishes the composited stream to a WHIP endpoint and keeps
// the connection healthy: no-trickle negotiation, ICE restart on degradation
// and full reconnect with exponential backoff behind it.
package whip

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"driftcast/internal/core"
	"driftcast/internal/metrics"
	"driftcast/internal/retry"
)

const (
	contentTypeSDP    = "application/sdp"
	playbackURLHeader = "X-Playback-Url"
)

// Config carries every negotiation and reconnection knob. All values come
// from the configuration surface, none are load-bearing constants.
type Config struct {
	STUNServers      []string
	ICEGatherTimeout time.Duration
	GracePeriod      time.Duration
	CoolDown         time.Duration
	ConnectPolicy    retry.Policy
	ReconnectRetries int
	ReconnectDelay   time.Duration
}

// Publisher owns the outbound peer connection. One instance publishes one
// session; Close is terminal.
type Publisher struct {
	cfg    Config
	logger zerolog.Logger
	client *http.Client

	mu          sync.Mutex
	ctx         context.Context
	pc          *webrtc.PeerConnection
	whipURL     string
	resourceURL string
	playbackURL string
	videoTrack  webrtc.TrackLocal
	audioTrack  webrtc.TrackLocal
	audioSender *webrtc.RTPSender
	state       core.ConnState
	recon       reconnectState
	graceTimer  *time.Timer
	retryTimer  *time.Timer
	exhausted   bool
	closed      bool

	onState     func(core.ConnState)
	onRetry     func(attempt int, delay time.Duration)
	onExhausted func(err error)
}

func NewPublisher(cfg Config, logger zerolog.Logger) *Publisher {
	return &Publisher{
		cfg:    cfg,
		logger: logger.With().Str("module", "whip").Logger(),
		client: &http.Client{Timeout: 15 * time.Second},
		state:  core.ConnIdle,
	}
}

// OnStateChange registers the connection-state callback. Informational only;
// the callback must not call back into the publisher.
func (p *Publisher) OnStateChange(fn func(core.ConnState)) { p.onState = fn }

// OnRetry fires once per scheduled reconnect attempt.
func (p *Publisher) OnRetry(fn func(attempt int, delay time.Duration)) { p.onRetry = fn }

// OnRetryExhausted fires exactly once when the retry budget is spent. The
// session is terminal afterwards and must be restarted explicitly.
func (p *Publisher) OnRetryExhausted(fn func(err error)) { p.onExhausted = fn }

// State returns the current connection state.
func (p *Publisher) State() core.ConnState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// PlaybackURL returns the low-latency playback URL from the WHIP answer, if
// the endpoint advertised one.
func (p *Publisher) PlaybackURL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playbackURL
}

// Connect negotiates against whipURL and publishes both tracks. Initial
// connect failures are retried under ConnectPolicy unless classified as
// client errors; the final error propagates to the caller.
func (p *Publisher) Connect(ctx context.Context, whipURL string, video, audio webrtc.TrackLocal) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return fmt.Errorf("publisher closed")
	}
	p.ctx = ctx
	p.whipURL = whipURL
	p.videoTrack = video
	p.audioTrack = audio
	p.mu.Unlock()

	p.setState(core.ConnNegotiating)
	err := p.cfg.ConnectPolicy.Do(ctx, p.logger, "whip connect", p.negotiate)
	if err != nil {
		p.setState(core.ConnFailed)
		return err
	}
	return nil
}

// ReplaceAudioTrack swaps the published audio track in place, without
// renegotiation. Safe to call while reconnecting; the new track is picked up
// by the next negotiation as well.
func (p *Publisher) ReplaceAudioTrack(track webrtc.TrackLocal) error {
	p.mu.Lock()
	p.audioTrack = track
	sender := p.audioSender
	p.mu.Unlock()

	if sender == nil {
		return nil
	}
	if err := sender.ReplaceTrack(track); err != nil {
		return fmt.Errorf("replace audio track: %w", err)
	}
	p.logger.Info().Msg("audio track replaced in place")
	return nil
}

// Close tears the session down: timers cancelled, WHIP resource deleted
// best-effort, peer connection closed. Idempotent.
func (p *Publisher) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	if p.graceTimer != nil {
		p.graceTimer.Stop()
		p.graceTimer = nil
	}
	if p.retryTimer != nil {
		p.retryTimer.Stop()
		p.retryTimer = nil
	}
	pc := p.pc
	p.pc = nil
	resource := p.resourceURL
	p.mu.Unlock()

	if resource != "" {
		p.deleteResource(resource)
	}
	if pc != nil {
		if err := pc.Close(); err != nil {
			p.logger.Debug().Err(err).Msg("peer connection close")
		}
	}
	p.setState(core.ConnClosed)
}

// negotiate runs one full no-trickle offer/answer exchange and installs the
// resulting peer connection.
func (p *Publisher) negotiate(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return fmt.Errorf("publisher closed")
	}
	whipURL := p.whipURL
	video := p.videoTrack
	audio := p.audioTrack
	p.mu.Unlock()

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: p.cfg.STUNServers}},
	})
	if err != nil {
		return fmt.Errorf("create peer connection: %w", err)
	}

	var audioSender *webrtc.RTPSender
	for _, track := range []webrtc.TrackLocal{video, audio} {
		if track == nil {
			continue
		}
		tr, err := pc.AddTransceiverFromTrack(track, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionSendonly,
		})
		if err != nil {
			_ = pc.Close()
			return fmt.Errorf("add %s track: %w", track.Kind(), err)
		}
		if track.Kind() == webrtc.RTPCodecTypeAudio {
			audioSender = tr.Sender()
		}
	}

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		_ = pc.Close()
		return fmt.Errorf("create offer: %w", err)
	}
	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		_ = pc.Close()
		return fmt.Errorf("set local description: %w", err)
	}

	// Race gathering against the bounded timeout; if the timeout wins the
	// offer goes out with whatever candidates were collected.
	select {
	case <-gatherComplete:
	case <-time.After(p.cfg.ICEGatherTimeout):
		p.logger.Debug().Dur("timeout", p.cfg.ICEGatherTimeout).Msg("ICE gathering timed out, proceeding with partial candidates")
	case <-ctx.Done():
		_ = pc.Close()
		return ctx.Err()
	}

	answer, resource, playback, err := p.postOffer(ctx, whipURL, pc.LocalDescription().SDP)
	if err != nil {
		_ = pc.Close()
		return err
	}

	if err := pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  answer,
	}); err != nil {
		_ = pc.Close()
		return fmt.Errorf("set remote description: %w", err)
	}
	p.inspectAnswer(answer)

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		p.handlePeerState(pc, s)
	})
	for _, sender := range pc.GetSenders() {
		go p.drainRTCP(sender)
	}

	p.mu.Lock()
	old := p.pc
	p.pc = pc
	p.audioSender = audioSender
	p.resourceURL = resource
	if playback != "" {
		p.playbackURL = playback
	}
	p.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}
	p.logger.Info().Str("whip_url", whipURL).Msg("offer accepted")
	return nil
}

// postOffer POSTs the offer SDP and classifies failures: [400,500) is
// terminal, anything else non-2xx is transient and retryable. On success it
// returns the answer SDP, the WHIP resource URL from Location and the
// optional playback URL header.
func (p *Publisher) postOffer(ctx context.Context, url, offerSDP string) (answer, resource, playback string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(offerSDP))
	if err != nil {
		return "", "", "", fmt.Errorf("build whip request: %w", err)
	}
	req.Header.Set("Content-Type", contentTypeSDP)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", "", "", &core.TransientError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", "", "", &core.TransientError{Err: err}
	}
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return "", "", "", &core.ClientError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", "", "", &core.TransientError{Status: resp.StatusCode}
	}

	if loc := resp.Header.Get("Location"); loc != "" {
		if u, err := resp.Request.URL.Parse(loc); err == nil {
			resource = u.String()
		}
	}
	return string(body), resource, resp.Header.Get(playbackURLHeader), nil
}

// handlePeerState drives the connection-health state machine.
func (p *Publisher) handlePeerState(pc *webrtc.PeerConnection, s webrtc.PeerConnectionState) {
	p.mu.Lock()
	if p.closed || p.pc != pc {
		// Stale callback from a superseded connection.
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	p.logger.Info().Str("peer_state", s.String()).Msg("peer state")

	switch s {
	case webrtc.PeerConnectionStateConnected:
		// Recovery cancels the grace window and any pending retry; a
		// scheduled reconnect firing now would renegotiate a healthy
		// connection.
		p.mu.Lock()
		p.recon.reset()
		if p.graceTimer != nil {
			p.graceTimer.Stop()
			p.graceTimer = nil
		}
		if p.retryTimer != nil {
			p.retryTimer.Stop()
			p.retryTimer = nil
		}
		p.mu.Unlock()
		p.setState(core.ConnConnected)

	case webrtc.PeerConnectionStateDisconnected:
		p.setState(core.ConnDegraded)
		go p.restartICE()
		p.mu.Lock()
		if p.graceTimer == nil {
			p.graceTimer = time.AfterFunc(p.cfg.GracePeriod, p.onGraceExpired)
		}
		p.mu.Unlock()

	case webrtc.PeerConnectionStateFailed:
		p.setState(core.ConnDegraded)
		p.evaluateReconnect()

	case webrtc.PeerConnectionStateClosed:
		p.mu.Lock()
		alreadyClosed := p.closed
		p.mu.Unlock()
		if !alreadyClosed {
			p.setState(core.ConnClosed)
		}
	}
}

// onGraceExpired fires when the disconnect grace window lapses without the
// ICE restart healing the connection.
func (p *Publisher) onGraceExpired() {
	p.mu.Lock()
	p.graceTimer = nil
	stillDegraded := p.state == core.ConnDegraded && !p.closed
	p.mu.Unlock()
	if stillDegraded {
		p.evaluateReconnect()
	}
}

// restartICE sends an ICE-restart offer as a PATCH on the WHIP resource.
// Failure here is not an error path: the grace timer escalates to a full
// reconnect.
func (p *Publisher) restartICE() {
	p.mu.Lock()
	pc := p.pc
	ctx := p.ctx
	target := p.resourceURL
	if target == "" {
		target = p.whipURL
	}
	closed := p.closed
	p.mu.Unlock()
	if closed || pc == nil || ctx == nil {
		return
	}

	metrics.ICERestarts.Inc()
	offer, err := pc.CreateOffer(&webrtc.OfferOptions{ICERestart: true})
	if err != nil {
		p.logger.Warn().Err(err).Msg("ice restart offer failed")
		return
	}
	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		p.logger.Warn().Err(err).Msg("ice restart local description failed")
		return
	}
	select {
	case <-gatherComplete:
	case <-time.After(p.cfg.ICEGatherTimeout):
	case <-ctx.Done():
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, target, strings.NewReader(pc.LocalDescription().SDP))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", contentTypeSDP)
	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Warn().Err(err).Msg("ice restart patch failed")
		return
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		p.logger.Warn().Int("status", resp.StatusCode).Msg("ice restart rejected")
		return
	}
	if len(body) > 0 {
		if err := pc.SetRemoteDescription(webrtc.SessionDescription{
			Type: webrtc.SDPTypeAnswer,
			SDP:  string(body),
		}); err != nil {
			p.logger.Warn().Err(err).Msg("ice restart answer rejected")
		}
	}
	p.logger.Info().Msg("ice restart sent")
}

// evaluateReconnect consumes one retry from the budget and schedules a full
// reconnect. Attempts are serialized: nothing is scheduled while a retry
// timer is pending, and exhaustion notifies exactly once.
func (p *Publisher) evaluateReconnect() {
	p.mu.Lock()
	if p.closed || p.state.Terminal() || p.retryTimer != nil {
		p.mu.Unlock()
		return
	}
	attempt, delay, ok := p.recon.next(time.Now(), p.cfg.ReconnectRetries, p.cfg.ReconnectDelay, p.cfg.CoolDown)
	if !ok {
		notify := !p.exhausted
		p.exhausted = true
		p.mu.Unlock()
		p.setState(core.ConnFailed)
		if notify && p.onExhausted != nil {
			p.onExhausted(&core.RetryExhaustedError{
				Op:       "whip reconnect",
				Attempts: p.cfg.ReconnectRetries,
				Last:     fmt.Errorf("connection did not recover"),
			})
		}
		return
	}
	p.retryTimer = time.AfterFunc(delay, p.reconnect)
	p.mu.Unlock()

	metrics.Reconnects.Inc()
	p.setState(core.ConnReconnecting)
	p.logger.Warn().Int("attempt", attempt).Dur("delay", delay).Msg("reconnect scheduled")
	if p.onRetry != nil {
		p.onRetry(attempt, delay)
	}
}

// reconnect repeats the negotiation sequence once. Outcome routing: success
// surfaces through the connected peer state, retryable failure re-enters
// evaluation, terminal failure ends the session.
func (p *Publisher) reconnect() {
	p.mu.Lock()
	p.retryTimer = nil
	ctx := p.ctx
	closed := p.closed
	p.mu.Unlock()
	if closed || ctx == nil || ctx.Err() != nil {
		return
	}

	if err := p.negotiate(ctx); err != nil {
		p.logger.Warn().Err(err).Msg("reconnect attempt failed")
		if !core.Retryable(err) {
			p.mu.Lock()
			notify := !p.exhausted
			p.exhausted = true
			p.mu.Unlock()
			p.setState(core.ConnFailed)
			if notify && p.onExhausted != nil {
				p.onExhausted(err)
			}
			return
		}
		p.evaluateReconnect()
	}
}

func (p *Publisher) deleteResource(resource string) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, resource, nil)
	if err != nil {
		return
	}
	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Debug().Err(err).Msg("whip resource delete failed")
		return
	}
	_ = resp.Body.Close()
}

func (p *Publisher) setState(s core.ConnState) {
	p.mu.Lock()
	if p.state == s {
		p.mu.Unlock()
		return
	}
	p.state = s
	p.mu.Unlock()

	metrics.ConnectionState.Set(float64(s))
	p.logger.Info().Str("state", s.String()).Msg("connection state")
	if p.onState != nil {
		p.onState(s)
	}
}
