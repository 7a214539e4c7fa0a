package tts

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/viper"
)

// LoadConfig builds the engine configuration. Tagged defaults and
// environment variables come first, then any values set in v. With
// AutomaticEnv on v, environment variables keep precedence over the file.
func LoadConfig(v *viper.Viper) (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return cfg, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	fillDefaults(&cfg)

	if v != nil {
		loadFromViper(v, &cfg)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid TTS configuration: %w", err)
	}
	return cfg, nil
}

// fillDefaults sets values that have no tag default.
func fillDefaults(cfg *Config) {
	def := DefaultConfig()
	if cfg.HighlightStyle == "" {
		cfg.HighlightStyle = def.HighlightStyle
	}
	if cfg.Cache.Dir == "" {
		cfg.Cache.Dir = def.Cache.Dir
	}
	if len(cfg.Native.Command) == 0 {
		cfg.Native.Command = def.Native.Command
	}
	if len(cfg.Native.Voices) == 0 {
		cfg.Native.Voices = def.Native.Voices
	}
	if cfg.Plugin.Dir == "" {
		cfg.Plugin.Dir = def.Plugin.Dir
	}
	if cfg.Plugin.RenderDir == "" {
		cfg.Plugin.RenderDir = def.Plugin.RenderDir
	}
}

func loadFromViper(v *viper.Viper, cfg *Config) {
	if v.IsSet("tts.desktop") {
		cfg.Desktop = v.GetBool("tts.desktop")
	}
	if v.IsSet("tts.highlight_style") {
		cfg.HighlightStyle = v.GetString("tts.highlight_style")
	}
	if v.IsSet("tts.sliding_delay") {
		cfg.SlidingDelay = v.GetDuration("tts.sliding_delay")
	}
	if v.IsSet("tts.max_empty_advances") {
		cfg.MaxEmptyAdvances = v.GetInt("tts.max_empty_advances")
	}

	// Remote service
	if v.IsSet("tts.remote.url") {
		cfg.Remote.URL = v.GetString("tts.remote.url")
	}
	if v.IsSet("tts.remote.token") {
		cfg.Remote.Token = v.GetString("tts.remote.token")
	}
	if v.IsSet("tts.remote.timeout") {
		cfg.Remote.Timeout = v.GetDuration("tts.remote.timeout")
	}
	if v.IsSet("tts.remote.requests_per_minute") {
		cfg.Remote.RequestsPerMinute = v.GetInt("tts.remote.requests_per_minute")
	}

	// Cache
	if v.IsSet("tts.cache.enabled") {
		cfg.Cache.Enabled = v.GetBool("tts.cache.enabled")
	}
	if v.IsSet("tts.cache.dir") {
		cfg.Cache.Dir = v.GetString("tts.cache.dir")
	}
	if v.IsSet("tts.cache.max_size_mb") {
		cfg.Cache.MaxSizeMB = v.GetInt64("tts.cache.max_size_mb")
	}
	if v.IsSet("tts.cache.compression_level") {
		cfg.Cache.CompressionLevel = v.GetInt("tts.cache.compression_level")
	}

	// Native synthesizer
	if v.IsSet("tts.native.command") {
		cfg.Native.Command = v.GetStringSlice("tts.native.command")
	}
	if v.IsSet("tts.native.voices") {
		cfg.Native.Voices = v.GetStringSlice("tts.native.voices")
	}

	// Plugins
	if v.IsSet("tts.plugin.dir") {
		cfg.Plugin.Dir = v.GetString("tts.plugin.dir")
	}
	if v.IsSet("tts.plugin.render_dir") {
		cfg.Plugin.RenderDir = v.GetString("tts.plugin.render_dir")
	}
	if v.IsSet("tts.plugin.timeout") {
		cfg.Plugin.Timeout = v.GetDuration("tts.plugin.timeout")
	}

	// Audio output
	if v.IsSet("tts.audio.sample_rate") {
		cfg.Audio.SampleRate = v.GetInt("tts.audio.sample_rate")
	}
	if v.IsSet("tts.audio.channels") {
		cfg.Audio.Channels = v.GetInt("tts.audio.channels")
	}
	if v.IsSet("tts.audio.buffer_size") {
		cfg.Audio.BufferSize = v.GetDuration("tts.audio.buffer_size")
	}
}
