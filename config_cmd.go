package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/charmbracelet/x/editor"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultConfig = `# style name or JSON path (default "auto")
style: "auto"
# mouse support (TUI-mode only)
mouse: false
# print segments instead of the TUI
plain: false
# word-wrap at width
width: 80
# blocks per page
page_size: 8
# read code blocks aloud
include_code: false

# Reader engine configuration
tts:
  # on-device and voice pack voices only
  desktop: false
  # CSS-like declarations for the segment being read
  highlight_style: "background: #f3a6a68c;"
  # pause before reading the next page on its own
  sliding_delay: "1s"
  # pages without readable text to skip before stopping
  max_empty_advances: 64

  # Speech service
  remote:
    # url: "https://tts.example.com"
    # token: "secret"
    timeout: "30s"
    requests_per_minute: 120

  # Generated speech kept on disk
  cache:
    enabled: true
    # dir: "~/.cache/readaloud/speech"
    max_size_mb: 256
    # zstd level, 1 (fastest) to 4 (best)
    compression_level: 2

  # On-device synthesizer
  native:
    command: ["espeak-ng", "-v", "{voice}", "-s", "{rate}", "{text}"]
    voices: ["en"]

  # Voice packs
  plugin:
    # dir: "~/.local/share/readaloud/plugins"
    timeout: "60s"

  # Output device
  audio:
    sample_rate: 24000
    channels: 1
    buffer_size: "100ms"
`

var configCmd = &cobra.Command{
	Use:     "config",
	Hidden:  false,
	Short:   "Edit the readaloud config file",
	Long:    paragraph(fmt.Sprintf("\n%s the readaloud config file. We’ll use EDITOR to determine which editor to use. If the config file doesn't exist, it will be created.", keyword("Edit"))),
	Example: paragraph("readaloud config\nreadaloud config --config path/to/config.yml"),
	Args:    cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		if err := ensureConfigFile(); err != nil {
			return err
		}

		c, err := editor.Cmd("Readaloud", configFile)
		if err != nil {
			return fmt.Errorf("unable to set config file: %w", err)
		}
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Run(); err != nil {
			return fmt.Errorf("unable to run command: %w", err)
		}

		fmt.Println("Wrote config file to:", configFile)
		return nil
	},
}

func ensureConfigFile() error {
	if configFile == "" {
		configFile = viper.GetViper().ConfigFileUsed()
		if err := os.MkdirAll(filepath.Dir(configFile), 0o755); err != nil { //nolint:gosec
			return fmt.Errorf("could not write configuration file: %w", err)
		}
	}

	if ext := path.Ext(configFile); ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("'%s' is not a supported configuration type: use '%s' or '%s'", ext, ".yaml", ".yml")
	}

	if _, err := os.Stat(configFile); errors.Is(err, fs.ErrNotExist) {
		// File doesn't exist yet, create all necessary directories and
		// write the default config file
		if err := os.MkdirAll(filepath.Dir(configFile), 0o700); err != nil {
			return fmt.Errorf("unable create directory: %w", err)
		}

		f, err := os.Create(configFile)
		if err != nil {
			return fmt.Errorf("unable to create config file: %w", err)
		}
		defer func() { _ = f.Close() }()

		if _, err := f.WriteString(defaultConfig); err != nil {
			return fmt.Errorf("unable to write config file: %w", err)
		}
	} else if err != nil { // some other error occurred
		return fmt.Errorf("unable to stat config file: %w", err)
	}
	return nil
}
