package tts

import (
	"sync"

	"github.com/charmbracelet/log"
)

// ResourceManager owns the playing audio and resets all audio state.
// Every method is safe to call repeatedly and on an empty state.
type ResourceManager struct {
	prefetch *Prefetcher
	synth    Synthesizer
	logger   *log.Logger

	mu       sync.Mutex
	owner    *Session
	index    int
	resource Resource
	playback Playback
}

// NewResourceManager creates a manager. prefetch and synth may be nil.
func NewResourceManager(prefetch *Prefetcher, synth Synthesizer, logger *log.Logger) *ResourceManager {
	if logger == nil {
		logger = log.Default()
	}
	return &ResourceManager{
		prefetch: prefetch,
		synth:    synth,
		logger:   logger,
		index:    -1,
	}
}

// SetActive registers pb as the playing handle for segment index of s.
// When s has already stopped the handle is released at once and false is
// returned.
func (m *ResourceManager) SetActive(s *Session, index int, res Resource, pb Playback) bool {
	m.mu.Lock()
	if !s.Active() {
		m.mu.Unlock()
		m.release(index, res, pb)
		return false
	}
	prevIndex, prevRes, prevPb := m.index, m.resource, m.playback
	m.owner, m.index, m.resource, m.playback = s, index, res, pb
	m.mu.Unlock()

	if prevRes != nil || prevPb != nil {
		m.release(prevIndex, prevRes, prevPb)
	}
	return true
}

// ReleaseActive stops the playing handle and releases its resource.
func (m *ResourceManager) ReleaseActive() {
	m.mu.Lock()
	index, res, pb := m.index, m.resource, m.playback
	m.owner, m.index, m.resource, m.playback = nil, -1, nil, nil
	m.mu.Unlock()

	m.release(index, res, pb)
}

// ReleaseSession releases the playing handle only if s registered it.
// A session that is winding down must not touch its successor's audio.
func (m *ResourceManager) ReleaseSession(s *Session) {
	m.mu.Lock()
	if m.owner != s {
		m.mu.Unlock()
		return
	}
	index, res, pb := m.index, m.resource, m.playback
	m.owner, m.index, m.resource, m.playback = nil, -1, nil, nil
	m.mu.Unlock()

	m.release(index, res, pb)
}

// Active returns the segment index being played, or -1.
func (m *ResourceManager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.index
}

// Reset releases the playing handle and every cached resource, then
// cancels on-device speech.
func (m *ResourceManager) Reset() {
	m.ReleaseActive()
	if m.prefetch != nil {
		m.prefetch.Reset()
	}
	if m.synth != nil {
		m.synth.Cancel()
	}
}

func (m *ResourceManager) release(index int, res Resource, pb Playback) {
	if pb != nil {
		pb.Stop()
	}
	if res == nil {
		return
	}
	if m.prefetch != nil {
		m.prefetch.Evict(index, res)
	}
	if err := res.Release(); err != nil {
		m.logger.Warn("Could not release audio", "id", res.ID(), "err", err)
	}
}
