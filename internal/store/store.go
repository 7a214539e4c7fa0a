// Package store persists reader preferences and per-book records in a
// YAML file.
package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// FileName is the default preferences file name.
const FileName = "reader.yml"

const (
	prefsKey = "reader"
	booksKey = "books"
)

// Store implements tts.ConfigStore on top of viper. Every write is flushed
// to disk.
type Store struct {
	path   string
	logger *log.Logger

	mu sync.Mutex
	v  *viper.Viper
}

// Open loads the preferences file at path. A missing file starts empty.
func Open(path string, logger *log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.Default()
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	}
	return &Store{path: path, v: v, logger: logger.WithPrefix("store")}, nil
}

// Path returns the preferences file.
func (s *Store) Path() string { return s.path }

// Get returns the stored value, or "" when unset.
func (s *Store) Get(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.v.GetString(prefsKey + "." + key)
}

// Set stores a value.
func (s *Store) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.v.Set(prefsKey+"."+key, value)
	return s.writeLocked()
}

// SetObjectConfig stores value for a book under category. Book keys are
// file paths, so records are filed under a stable id derived from the key.
func (s *Store) SetObjectConfig(bookKey string, value any, category string) error {
	obj, err := toMap(value)
	if err != nil {
		return err
	}
	obj["book"] = bookKey

	s.mu.Lock()
	defer s.mu.Unlock()
	s.v.Set(recordKey(bookKey, category), obj)
	return s.writeLocked()
}

// ObjectConfig decodes the value stored for a book under category into
// out. It reports false when nothing is stored.
func (s *Store) ObjectConfig(bookKey, category string, out any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := recordKey(bookKey, category)
	if !s.v.IsSet(key) {
		return false, nil
	}
	if err := s.v.UnmarshalKey(key, out); err != nil {
		return true, fmt.Errorf("failed to decode %s record: %w", category, err)
	}
	return true, nil
}

func (s *Store) writeLocked() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	if err := s.v.WriteConfigAs(s.path); err != nil {
		return fmt.Errorf("failed to write %s: %w", s.path, err)
	}
	s.logger.Debug("Saved preferences", "path", s.path)
	return nil
}

func recordKey(bookKey, category string) string {
	id := uuid.NewSHA1(uuid.NameSpaceURL, []byte(bookKey)).String()
	return strings.Join([]string{booksKey, strings.ToLower(category), id}, ".")
}

// toMap turns value into a map keyed by its yaml field names.
func toMap(value any) (map[string]any, error) {
	data, err := yaml.Marshal(value)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("value must encode as a mapping: %w", err)
	}
	return out, nil
}
