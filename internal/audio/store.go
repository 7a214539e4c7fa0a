package audio

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/dgnsrekt/readaloud/tts"
)

// ErrReleased is returned when reading a clip after Release.
var ErrReleased = errors.New("audio clip has been released")

// Store hands out playable clips and counts how many are still held.
type Store struct {
	live atomic.Int64
}

// NewStore creates an empty clip store.
func NewStore() *Store {
	return &Store{}
}

// Open wraps audio bytes in a clip. The clip owns a copy of data.
func (s *Store) Open(data []byte, mimeType string) (tts.Resource, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty audio", tts.ErrAudioLoad)
	}
	owned := make([]byte, len(data))
	copy(owned, data)

	s.live.Add(1)
	return &Clip{
		id:    "clip:" + uuid.NewString(),
		mime:  mimeType,
		data:  owned,
		store: s,
	}, nil
}

// OpenFile reads a rendered file into a clip. The file itself is left in
// place for its owner to remove.
func (s *Store) OpenFile(path, mimeType string) (*Clip, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Join(tts.ErrAudioLoad, err)
	}
	res, err := s.Open(data, mimeType)
	if err != nil {
		return nil, err
	}
	clip := res.(*Clip)
	clip.id = path
	return clip, nil
}

// Live returns the number of clips not yet released.
func (s *Store) Live() int {
	return int(s.live.Load())
}

// Clip is audio held in memory until released.
type Clip struct {
	id    string
	mime  string
	store *Store

	mu   sync.Mutex
	data []byte
	once sync.Once
}

// ID identifies the clip.
func (c *Clip) ID() string { return c.id }

// MimeType returns the clip's encoding.
func (c *Clip) MimeType() string { return c.mime }

// Bytes returns the clip data.
func (c *Clip) Bytes() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.data == nil {
		return nil, ErrReleased
	}
	return c.data, nil
}

// Release drops the clip data. Only the first call has any effect.
func (c *Clip) Release() error {
	c.once.Do(func() {
		c.mu.Lock()
		c.data = nil
		c.mu.Unlock()
		c.store.live.Add(-1)
	})
	return nil
}
