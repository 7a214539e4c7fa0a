// Package plugin loads voice packs and renders their audio ahead of
// playback.
package plugin

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dgnsrekt/readaloud/tts"
)

// ManifestFile is the name of the manifest inside a plugin directory.
const ManifestFile = "plugin.yml"

// Input modes for handing text to a plugin command.
const (
	InputArg   = "arg"
	InputStdin = "stdin"
)

// Manifest describes an installed plugin.
//
//	key: piper
//	type: voice
//	name: Piper voices
//	command: [piper, --model, "{voice}", --length_scale, "{length}", --output_file, "{output}"]
//	input: stdin
//	voices:
//	  - id: en_US-amy-medium.onnx
//	    name: Amy
//	    locale: en-US
type Manifest struct {
	Key     string          `yaml:"key"`
	Type    string          `yaml:"type"`
	Name    string          `yaml:"name"`
	Command []string        `yaml:"command"`
	Input   string          `yaml:"input,omitempty"`
	Voices  []ManifestVoice `yaml:"voices"`

	// Dir is the directory the manifest was loaded from. Commands run
	// there.
	Dir string `yaml:"-"`
}

// ManifestVoice is one voice offered by a plugin.
type ManifestVoice struct {
	ID     string `yaml:"id"`
	Name   string `yaml:"name"`
	Locale string `yaml:"locale,omitempty"`
}

// Load reads a manifest from disk.
func Load(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, err
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("%s: %w", path, err)
	}
	m.Dir = filepath.Dir(path)
	if m.Key == "" {
		m.Key = filepath.Base(m.Dir)
	}
	if m.Input == "" {
		m.Input = InputArg
	}
	return m, nil
}

// Validate ensures manifest contains required fields.
func Validate(m Manifest) error {
	if m.Key == "" {
		return errors.New("key is required")
	}
	if m.Type == "" {
		return errors.New("type is required")
	}
	if m.Type != tts.PluginTypeVoice {
		return nil
	}
	if len(m.Command) == 0 {
		return errors.New("command is required for voice plugins")
	}
	if !slices.ContainsFunc(m.Command, func(arg string) bool { return strings.Contains(arg, "{output}") }) {
		return errors.New("command must write to {output}")
	}
	switch m.Input {
	case InputArg, InputStdin:
	default:
		return fmt.Errorf("input %q not supported", m.Input)
	}
	if len(m.Voices) == 0 {
		return errors.New("voice plugins must declare at least one voice")
	}
	for i, v := range m.Voices {
		if v.ID == "" {
			return fmt.Errorf("voices[%d].id is required", i)
		}
	}
	return nil
}

// LoadDir loads every plugin directory under dir, sorted by key. Invalid
// manifests are skipped and reported in the returned error. A missing dir
// means no plugins.
func LoadDir(dir string) ([]Manifest, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var (
		manifests []Manifest
		errs      []error
	)
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		path := filepath.Join(dir, e.Name(), ManifestFile)
		m, err := Load(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err == nil {
			err = Validate(m)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("plugin %s: %w", e.Name(), err))
			continue
		}
		manifests = append(manifests, m)
	}

	slices.SortFunc(manifests, func(a, b Manifest) int { return strings.Compare(a.Key, b.Key) })
	return manifests, errors.Join(errs...)
}

// Plugin converts m to the engine's plugin description.
func (m Manifest) Plugin() tts.Plugin {
	p := tts.Plugin{Key: m.Key, Type: m.Type, DisplayName: m.Name}
	for _, v := range m.Voices {
		name := v.Name
		if name == "" {
			name = v.ID
		}
		p.Voices = append(p.Voices, tts.Voice{ID: v.ID, Name: name, Locale: v.Locale, Plugin: m.Key})
	}
	return p
}

// Plugins converts manifests to the engine's plugin list.
func Plugins(manifests []Manifest) []tts.Plugin {
	list := make([]tts.Plugin, 0, len(manifests))
	for _, m := range manifests {
		list = append(list, m.Plugin())
	}
	return list
}
