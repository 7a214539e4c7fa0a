package tts

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/charmbracelet/log"
)

// CatalogState tracks the remote voice catalog fetch.
type CatalogState int

const (
	CatalogIdle CatalogState = iota
	CatalogFetching
	CatalogLoaded
	CatalogFailed
)

// String returns the state name.
func (s CatalogState) String() string {
	switch s {
	case CatalogIdle:
		return "idle"
	case CatalogFetching:
		return "fetching"
	case CatalogLoaded:
		return "loaded"
	case CatalogFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Store keys for reader preferences.
const (
	KeyServerVoice   = "ttsServerVoice"
	KeyVoiceIndex    = "voiceIndex"
	KeyVoiceSpeed    = "voiceSpeed"
	KeyHighlight     = "ttsHighlight"
	KeySliding       = "isSliding"
	KeyConvertPDF    = "isConvertPDF"
	KeyReaderMode    = "readerMode"
	CategoryLocation = "recordLocation"
)

// Catalog holds the remote service's voices. It is fetched at most once
// until invalidated.
type Catalog struct {
	remote RemoteService
	store  ConfigStore
	logger *log.Logger

	mu     sync.RWMutex
	state  CatalogState
	voices []ServerVoice
	err    error
}

// NewCatalog creates a catalog backed by remote. A nil remote yields an
// empty catalog.
func NewCatalog(remote RemoteService, store ConfigStore, logger *log.Logger) *Catalog {
	if logger == nil {
		logger = log.Default()
	}
	return &Catalog{
		remote: remote,
		store:  store,
		logger: logger,
	}
}

// Load fetches the catalog if it has not been fetched yet.
func (c *Catalog) Load(ctx context.Context) error {
	c.mu.Lock()
	if c.state != CatalogIdle {
		c.mu.Unlock()
		return c.Err()
	}
	if c.remote == nil {
		c.state = CatalogLoaded
		c.mu.Unlock()
		return nil
	}
	c.state = CatalogFetching
	c.mu.Unlock()

	voices, err := c.remote.Voices(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != CatalogFetching {
		// Invalidated while fetching.
		return nil
	}
	if err != nil {
		c.state = CatalogFailed
		c.voices = nil
		c.err = fmt.Errorf("%w: %w", ErrVoiceCatalogFetchFailed, err)
		c.logger.Warn("Could not load server voices", "err", err)
		return c.err
	}

	c.state = CatalogLoaded
	c.voices = voices
	c.logger.Debug("Loaded server voices", "count", len(voices))

	if len(voices) > 0 && c.store != nil {
		saved := c.store.Get(KeyServerVoice)
		if saved == "" || !slices.ContainsFunc(voices, func(v ServerVoice) bool { return v.ID == saved }) {
			if err := c.store.Set(KeyServerVoice, voices[0].ID); err != nil {
				c.logger.Warn("Could not save server voice", "err", err)
			}
		}
	}
	return nil
}

// State returns the fetch state.
func (c *Catalog) State() CatalogState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Fetching reports whether a fetch is in progress.
func (c *Catalog) Fetching() bool {
	return c.State() == CatalogFetching
}

// Err returns the fetch failure, if any.
func (c *Catalog) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.err
}

// Voices returns a copy of the loaded voices.
func (c *Catalog) Voices() []ServerVoice {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.voices)
}

// SelectedVoice returns the persisted voice, falling back to the first
// catalog entry. It returns "" when neither exists.
func (c *Catalog) SelectedVoice() string {
	if c.store != nil {
		if id := c.store.Get(KeyServerVoice); id != "" {
			return id
		}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.voices) > 0 {
		return c.voices[0].ID
	}
	return ""
}

// Invalidate forgets the catalog so the next Load fetches again.
func (c *Catalog) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = CatalogIdle
	c.voices = nil
	c.err = nil
}
