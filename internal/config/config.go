package config

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type VideoConfig struct {
	Size   int    `mapstructure:"size"`
	FPS    int    `mapstructure:"fps"`
	Fit    string `mapstructure:"fit"`
	Mirror bool   `mapstructure:"mirror"`
	Facing string `mapstructure:"facing"`
	Source string `mapstructure:"source"`
}

type AudioConfig struct {
	Source     string `mapstructure:"source"`
	SampleRate int    `mapstructure:"sample_rate"`
	Channels   int    `mapstructure:"channels"`
}

type WhipRetryConfig struct {
	ConnectRetries     int           `mapstructure:"connect_retries"`
	ConnectBaseDelay   time.Duration `mapstructure:"connect_base_delay"`
	ReconnectRetries   int           `mapstructure:"reconnect_retries"`
	ReconnectBaseDelay time.Duration `mapstructure:"reconnect_base_delay"`
	CoolDown           time.Duration `mapstructure:"cool_down"`
	GracePeriod        time.Duration `mapstructure:"grace_period"`
	ICEGatherTimeout   time.Duration `mapstructure:"ice_gather_timeout"`
	STUNServers        []string      `mapstructure:"stun_servers"`
}

type ParamRetryConfig struct {
	MaxRetries int           `mapstructure:"max_retries"`
	BaseDelay  time.Duration `mapstructure:"base_delay"`
}

type EncoderConfig struct {
	FFmpegPath string `mapstructure:"ffmpeg_path"`
	Bitrate    string `mapstructure:"bitrate"`
}

type Config struct {
	Mode             string           `mapstructure:"mode"`
	Port             int              `mapstructure:"port"`
	ProcessorURL     string           `mapstructure:"processor_url"`
	PipelineID       string           `mapstructure:"pipeline_id"`
	SettleWindow     time.Duration    `mapstructure:"settle_window"`
	RestartThreshold time.Duration    `mapstructure:"restart_threshold"`
	Video            VideoConfig      `mapstructure:"video"`
	Audio            AudioConfig      `mapstructure:"audio"`
	Whip             WhipRetryConfig  `mapstructure:"whip"`
	Params           ParamRetryConfig `mapstructure:"params"`
	Encoder          EncoderConfig    `mapstructure:"encoder"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("processor_url", "http://localhost:9090")
	v.SetDefault("pipeline_id", "")
	v.SetDefault("settle_window", "3s")
	v.SetDefault("restart_threshold", "5s")

	v.SetDefault("video.size", 512)
	v.SetDefault("video.fps", 24)
	v.SetDefault("video.fit", "cover")
	v.SetDefault("video.mirror", true)
	v.SetDefault("video.facing", "front")
	v.SetDefault("video.source", "blank")

	v.SetDefault("audio.source", "silent")
	v.SetDefault("audio.sample_rate", 48000)
	v.SetDefault("audio.channels", 2)

	v.SetDefault("whip.connect_retries", 3)
	v.SetDefault("whip.connect_base_delay", "2s")
	v.SetDefault("whip.reconnect_retries", 3)
	v.SetDefault("whip.reconnect_base_delay", "2s")
	v.SetDefault("whip.cool_down", "10s")
	v.SetDefault("whip.grace_period", "2s")
	v.SetDefault("whip.ice_gather_timeout", "2s")
	v.SetDefault("whip.stun_servers", []string{"stun:stun.l.google.com:19302"})

	v.SetDefault("params.max_retries", 2)
	v.SetDefault("params.base_delay", "500ms")

	v.SetDefault("encoder.ffmpeg_path", "ffmpeg")
	v.SetDefault("encoder.bitrate", "2M")

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("file", fileName).Msg("config loaded")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
