package config_test

import (
	"testing"
	"time"

	"driftcast/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_ENV", "test-absent")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Port != 8080 {
		t.Fatalf("unexpected port: %d", cfg.Port)
	}
	if cfg.Video.Size != 512 || cfg.Video.FPS != 24 {
		t.Fatalf("unexpected video defaults: %+v", cfg.Video)
	}
	if cfg.Video.Fit != "cover" {
		t.Fatalf("unexpected fit default: %q", cfg.Video.Fit)
	}
	if cfg.SettleWindow != 3*time.Second {
		t.Fatalf("unexpected settle window: %v", cfg.SettleWindow)
	}
	if cfg.RestartThreshold != 5*time.Second {
		t.Fatalf("unexpected restart threshold: %v", cfg.RestartThreshold)
	}
	if cfg.Whip.ConnectRetries != 3 || cfg.Whip.ConnectBaseDelay != 2*time.Second {
		t.Fatalf("unexpected whip connect policy: %+v", cfg.Whip)
	}
	if cfg.Whip.CoolDown != 10*time.Second {
		t.Fatalf("unexpected cool-down: %v", cfg.Whip.CoolDown)
	}
	if cfg.Whip.GracePeriod != 2*time.Second || cfg.Whip.ICEGatherTimeout != 2*time.Second {
		t.Fatalf("unexpected whip timing: %+v", cfg.Whip)
	}
	if len(cfg.Whip.STUNServers) == 0 {
		t.Fatal("expected default STUN servers")
	}
	if cfg.Params.MaxRetries != 2 || cfg.Params.BaseDelay != 500*time.Millisecond {
		t.Fatalf("unexpected param policy: %+v", cfg.Params)
	}
	if cfg.Audio.Source != "silent" {
		t.Fatalf("unexpected audio source default: %q", cfg.Audio.Source)
	}
}
