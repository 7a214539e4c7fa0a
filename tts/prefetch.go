package tts

import (
	"context"
	"errors"
	"sync"
)

// errPrefetchReset is returned to callers whose request was discarded by a
// Reset. The index can be requested again.
var errPrefetchReset = errors.New("prefetch reset")

// RequestFunc produces a playable resource for one segment.
type RequestFunc func(ctx context.Context, text string, speed float64) (Resource, error)

// call is an outstanding request shared by every caller of one index.
type call struct {
	done chan struct{}
	res  Resource
	err  error
}

// Prefetcher caches generated audio by queue index and ensures only one
// request per index is ever in flight.
type Prefetcher struct {
	request RequestFunc
	wg      sync.WaitGroup

	mu       sync.Mutex
	gen      uint64
	cache    map[int]Resource
	inflight map[int]*call
}

// NewPrefetcher creates a prefetcher using request to generate audio.
func NewPrefetcher(request RequestFunc) *Prefetcher {
	return &Prefetcher{
		request:  request,
		cache:    make(map[int]Resource),
		inflight: make(map[int]*call),
	}
}

// Prefetch returns the resource for s's segment index. Out of range indices
// yield nil with no request. Concurrent callers for the same index share a
// single request. A stopped session gets context.Canceled and never adds
// to the cache.
func (p *Prefetcher) Prefetch(ctx context.Context, s *Session, index int, speed float64) (Resource, error) {
	text, ok := s.Segment(index)
	if !ok {
		return nil, nil
	}

	p.mu.Lock()
	if !s.Active() {
		p.mu.Unlock()
		return nil, context.Canceled
	}
	if res, ok := p.cache[index]; ok {
		p.mu.Unlock()
		return res, nil
	}
	c, ok := p.inflight[index]
	if !ok {
		c = &call{done: make(chan struct{})}
		p.inflight[index] = c
		p.wg.Add(1)
		go p.load(s.Context(), p.gen, index, text, speed, c)
	}
	p.mu.Unlock()

	select {
	case <-c.done:
		return c.res, c.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *Prefetcher) load(ctx context.Context, gen uint64, index int, text string, speed float64, c *call) {
	defer p.wg.Done()
	res, err := p.request(ctx, text, speed)

	p.mu.Lock()
	if gen != p.gen {
		// Reset while in flight: the result belongs to no queue.
		p.mu.Unlock()
		if res != nil {
			_ = res.Release()
		}
		c.err = errPrefetchReset
		close(c.done)
		return
	}
	if p.inflight[index] == c {
		delete(p.inflight, index)
	}
	if err == nil && res != nil {
		p.cache[index] = res
	}
	p.mu.Unlock()

	c.res, c.err = res, err
	close(c.done)
}

// Cached returns the cached resource for index without requesting it.
func (p *Prefetcher) Cached(index int) (Resource, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	res, ok := p.cache[index]
	return res, ok
}

// Evict drops index from the cache if it still holds res. The caller owns
// releasing it.
func (p *Prefetcher) Evict(index int, res Resource) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if cur, ok := p.cache[index]; ok && cur == res {
		delete(p.cache, index)
	}
}

// Reset releases every cached resource and forgets in-flight requests.
// Requests that complete afterwards release their own result.
func (p *Prefetcher) Reset() {
	p.mu.Lock()
	p.gen++
	cached := p.cache
	p.cache = make(map[int]Resource)
	p.inflight = make(map[int]*call)
	p.mu.Unlock()

	for _, res := range cached {
		_ = res.Release()
	}
}

// Wait blocks until every outstanding request has returned.
func (p *Prefetcher) Wait() {
	p.wg.Wait()
}

// Len returns the number of cached and in-flight entries.
func (p *Prefetcher) Len() (cached, inflight int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.cache), len(p.inflight)
}
