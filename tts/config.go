package tts

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	gap "github.com/muesli/go-app-paths"
)

// Config contains all reader engine configuration options.
type Config struct {
	// Desktop mirrors the packaged desktop runtime: no remote service,
	// native and plugin voices only.
	Desktop bool `yaml:"desktop" env:"READALOUD_TTS_DESKTOP" envDefault:"false"`

	// Highlight settings
	HighlightStyle string `yaml:"highlight_style" env:"READALOUD_TTS_HIGHLIGHT_STYLE"`

	// Segmenting settings
	SlidingDelay     time.Duration `yaml:"sliding_delay" env:"READALOUD_TTS_SLIDING_DELAY" envDefault:"1s"`
	MaxEmptyAdvances int           `yaml:"max_empty_advances" env:"READALOUD_TTS_MAX_EMPTY_ADVANCES" envDefault:"64"`

	Remote RemoteConfig `yaml:"remote"`
	Cache  CacheConfig  `yaml:"cache"`
	Native NativeConfig `yaml:"native"`
	Plugin PluginConfig `yaml:"plugin"`
	Audio  AudioConfig  `yaml:"audio"`
}

// RemoteConfig configures the networked speech service.
type RemoteConfig struct {
	URL               string        `yaml:"url" env:"READALOUD_TTS_REMOTE_URL"`
	Token             string        `yaml:"token" env:"READALOUD_TTS_REMOTE_TOKEN"`
	Timeout           time.Duration `yaml:"timeout" env:"READALOUD_TTS_REMOTE_TIMEOUT" envDefault:"30s"`
	RequestsPerMinute int           `yaml:"requests_per_minute" env:"READALOUD_TTS_REMOTE_REQUESTS_PER_MINUTE" envDefault:"120"`
}

// CacheConfig configures the persistent synthesis cache.
type CacheConfig struct {
	Enabled          bool   `yaml:"enabled" env:"READALOUD_TTS_CACHE_ENABLED" envDefault:"true"`
	Dir              string `yaml:"dir" env:"READALOUD_TTS_CACHE_DIR"`
	MaxSizeMB        int64  `yaml:"max_size_mb" env:"READALOUD_TTS_CACHE_MAX_SIZE_MB" envDefault:"256"`
	CompressionLevel int    `yaml:"compression_level" env:"READALOUD_TTS_CACHE_COMPRESSION_LEVEL" envDefault:"2"`
}

// NativeConfig configures the on-device synthesizer command.
type NativeConfig struct {
	Command []string `yaml:"command" env:"READALOUD_TTS_NATIVE_COMMAND" envSeparator:" "`
	Voices  []string `yaml:"voices" env:"READALOUD_TTS_NATIVE_VOICES" envSeparator:","`
}

// PluginConfig configures voice packs.
type PluginConfig struct {
	Dir       string        `yaml:"dir" env:"READALOUD_TTS_PLUGIN_DIR"`
	RenderDir string        `yaml:"render_dir" env:"READALOUD_TTS_PLUGIN_RENDER_DIR"`
	Timeout   time.Duration `yaml:"timeout" env:"READALOUD_TTS_PLUGIN_TIMEOUT" envDefault:"60s"`
}

// AudioConfig configures the output device.
type AudioConfig struct {
	SampleRate int           `yaml:"sample_rate" env:"READALOUD_TTS_AUDIO_SAMPLE_RATE" envDefault:"24000"`
	Channels   int           `yaml:"channels" env:"READALOUD_TTS_AUDIO_CHANNELS" envDefault:"1"`
	BufferSize time.Duration `yaml:"buffer_size" env:"READALOUD_TTS_AUDIO_BUFFER_SIZE" envDefault:"100ms"`
}

// DefaultNativeCommand speaks with espeak-ng.
var DefaultNativeCommand = []string{"espeak-ng", "-v", "{voice}", "-s", "{rate}", "{text}"}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		HighlightStyle:   HighlightStyle,
		SlidingDelay:     time.Second,
		MaxEmptyAdvances: 64,
		Remote: RemoteConfig{
			Timeout:           30 * time.Second,
			RequestsPerMinute: 120,
		},
		Cache: CacheConfig{
			Enabled:          true,
			Dir:              cacheDir("speech"),
			MaxSizeMB:        256,
			CompressionLevel: 2,
		},
		Native: NativeConfig{
			Command: DefaultNativeCommand,
			Voices:  []string{"en"},
		},
		Plugin: PluginConfig{
			Dir:       dataDir("plugins"),
			RenderDir: cacheDir("render"),
			Timeout:   60 * time.Second,
		},
		Audio: AudioConfig{
			SampleRate: 24000,
			Channels:   1,
			BufferSize: 100 * time.Millisecond,
		},
	}
}

func cacheDir(name string) string {
	dir, err := gap.NewScope(gap.User, "readaloud").CacheDir()
	if err != nil || dir == "" {
		return filepath.Join(".readaloud", name)
	}
	return filepath.Join(dir, name)
}

func dataDir(name string) string {
	dirs, err := gap.NewScope(gap.User, "readaloud").DataDirs()
	if err != nil || len(dirs) == 0 {
		return filepath.Join(".readaloud", name)
	}
	return filepath.Join(dirs[0], name)
}

// Validate checks if the configuration is valid.
func (c Config) Validate() error {
	var problems []string

	if c.MaxEmptyAdvances < 1 {
		problems = append(problems, "max_empty_advances must be at least 1")
	}
	if c.SlidingDelay < 0 {
		problems = append(problems, "sliding_delay must not be negative")
	}
	if !c.Desktop && c.Remote.URL != "" && !strings.HasPrefix(c.Remote.URL, "http") {
		problems = append(problems, fmt.Sprintf("remote url %q must be http(s)", c.Remote.URL))
	}
	if c.Remote.Timeout <= 0 {
		problems = append(problems, "remote timeout must be positive")
	}
	if c.Remote.RequestsPerMinute < 0 {
		problems = append(problems, "remote requests_per_minute must not be negative")
	}
	if c.Cache.Enabled && c.Cache.Dir == "" {
		problems = append(problems, "cache dir is required when the cache is enabled")
	}
	if c.Cache.CompressionLevel < 1 || c.Cache.CompressionLevel > 4 {
		problems = append(problems, "cache compression_level must be between 1 and 4")
	}
	if len(c.Native.Command) == 0 {
		problems = append(problems, "native command is required")
	}
	switch c.Audio.SampleRate {
	case 8000, 16000, 22050, 24000, 44100, 48000:
	default:
		problems = append(problems, fmt.Sprintf("unsupported sample rate %d", c.Audio.SampleRate))
	}
	if c.Audio.Channels != 1 && c.Audio.Channels != 2 {
		problems = append(problems, "audio channels must be 1 or 2")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}
