package tts

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Session is one start-to-stop reading run. The queue and cursor belong to
// it alone, and a stopped session never becomes active again.
type Session struct {
	ID         string
	Backend    Backend
	Resolution Resolution
	Speed      float64

	ctx    context.Context
	cancel context.CancelFunc
	active atomic.Bool
	done   chan struct{}

	mu     sync.RWMutex
	queue  []string
	cursor int
}

func newSession(parent context.Context, backend Backend, res Resolution, speed float64) *Session {
	ctx, cancel := context.WithCancel(parent)
	s := &Session{
		ID:         uuid.NewString(),
		Backend:    backend,
		Resolution: res,
		Speed:      speed,
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		cursor:     -1,
	}
	s.active.Store(true)
	return s
}

// Active reports whether the session is still reading. Every continuation
// checks it before acting.
func (s *Session) Active() bool {
	return s.active.Load()
}

// Context is cancelled when the session stops.
func (s *Session) Context() context.Context {
	return s.ctx
}

// Done is closed once the session goroutine has exited.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Segment returns the queued segment at index.
func (s *Session) Segment(index int) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if index < 0 || index >= len(s.queue) {
		return "", false
	}
	return s.queue[index], true
}

// Queue returns a copy of the segment queue.
func (s *Session) Queue() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.queue...)
}

// Len returns the queue length.
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.queue)
}

// Cursor returns the index being spoken, or -1.
func (s *Session) Cursor() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cursor
}

func (s *Session) setQueue(queue []string) {
	s.mu.Lock()
	s.queue = queue
	s.cursor = -1
	s.mu.Unlock()
}

func (s *Session) setCursor(index int) {
	s.mu.Lock()
	s.cursor = index
	s.mu.Unlock()
}

// stop deactivates the session. It reports whether this call did so.
func (s *Session) stop() bool {
	if !s.active.CompareAndSwap(true, false) {
		return false
	}
	s.cancel()
	return true
}
