package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"driftcast/internal/core"
	"driftcast/internal/retry"
)

func TestDoStopsOnClientError(t *testing.T) {
	p := retry.Policy{MaxRetries: 5, BaseDelay: time.Millisecond}
	calls := 0
	err := p.Do(context.Background(), zerolog.Nop(), "whip", func(context.Context) error {
		calls++
		return &core.ClientError{Status: 404}
	})

	var ce *core.ClientError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ClientError, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("client error must never be retried, got %d calls", calls)
	}
}

func TestDoRetriesTransientUntilExhausted(t *testing.T) {
	p := retry.Policy{MaxRetries: 3, BaseDelay: time.Millisecond}
	calls := 0
	err := p.Do(context.Background(), zerolog.Nop(), "whip", func(context.Context) error {
		calls++
		return &core.TransientError{Status: 503}
	})

	var re *core.RetryExhaustedError
	if !errors.As(err, &re) {
		t.Fatalf("expected RetryExhaustedError, got %v", err)
	}
	if calls != 4 {
		t.Fatalf("expected initial call + 3 retries, got %d calls", calls)
	}
	if re.Attempts != 4 {
		t.Fatalf("unexpected attempt count: %d", re.Attempts)
	}
}

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	p := retry.Policy{MaxRetries: 3, BaseDelay: time.Millisecond}
	calls := 0
	err := p.Do(context.Background(), zerolog.Nop(), "params", func(context.Context) error {
		calls++
		if calls < 3 {
			return &core.TransientError{Status: 502}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestDelayDoubles(t *testing.T) {
	p := retry.Policy{MaxRetries: 4, BaseDelay: 100 * time.Millisecond}
	want := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
	}
	for i, w := range want {
		if got := p.Delay(i + 1); got != w {
			t.Fatalf("delay for attempt %d: got %v want %v", i+1, got, w)
		}
	}
}

func TestDoRespectsContextCancel(t *testing.T) {
	p := retry.Policy{MaxRetries: 10, BaseDelay: time.Hour}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- p.Do(ctx, zerolog.Nop(), "whip", func(context.Context) error {
			return &core.TransientError{Status: 500}
		})
	}()
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Do did not return after cancel")
	}
}
