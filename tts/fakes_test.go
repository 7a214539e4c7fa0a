package tts

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// fakeDocument serves pages of blocks. AudioText returns every block from
// the current page on, and Next past the last page marks the book finished.
type fakeDocument struct {
	mu         sync.Mutex
	pages      [][]string
	page       int
	finished   bool
	highlights []string
	styles     []string
	nexts      int
	jumps      []int
}

func (d *fakeDocument) AudioText(context.Context) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.finished {
		return nil, nil
	}
	var blocks []string
	for _, p := range d.pages[d.page:] {
		blocks = append(blocks, p...)
	}
	return blocks, nil
}

func (d *fakeDocument) VisibleText(context.Context) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.finished || d.page >= len(d.pages) {
		return nil, nil
	}
	return d.pages[d.page], nil
}

func (d *fakeDocument) HighlightAudioNode(text, style string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if text == "" {
		return
	}
	d.highlights = append(d.highlights, text)
	d.styles = append(d.styles, style)
}

func (d *fakeDocument) Next(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nexts++
	if d.page+1 >= len(d.pages) {
		d.finished = true
		return ErrDocumentEnd
	}
	d.page++
	return nil
}

func (d *fakeDocument) GoToChapterIndex(_ context.Context, index int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.jumps = append(d.jumps, index)
	if index >= len(d.pages) {
		d.finished = true
		return ErrDocumentEnd
	}
	d.page = index
	return nil
}

func (d *fakeDocument) Position() Position {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Position{ChapterDocIndex: d.page, Page: d.page}
}

func (d *fakeDocument) Highlights() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.highlights...)
}

// fakeStore is an in-memory ConfigStore.
type fakeStore struct {
	mu      sync.Mutex
	values  map[string]string
	objects map[string]any
}

func newFakeStore(kv ...string) *fakeStore {
	s := &fakeStore{values: map[string]string{}, objects: map[string]any{}}
	for i := 0; i+1 < len(kv); i += 2 {
		s.values[kv[i]] = kv[i+1]
	}
	return s
}

func (s *fakeStore) Get(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values[key]
}

func (s *fakeStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

func (s *fakeStore) SetObjectConfig(bookKey string, value any, category string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[category+"/"+bookKey] = value
	return nil
}

func (s *fakeStore) Object(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.objects[key]
	return v, ok
}

// fakeSynth records utterances and finishes each after a short delay.
type fakeSynth struct {
	mu      sync.Mutex
	voices  []NativeVoice
	spoken  []Utterance
	cancels int
	fail    map[string]bool
	delay   time.Duration
}

func (f *fakeSynth) Voices(context.Context) ([]NativeVoice, error) {
	return f.voices, nil
}

func (f *fakeSynth) Speak(ctx context.Context, u Utterance) error {
	f.mu.Lock()
	f.spoken = append(f.spoken, u)
	fail := f.fail[u.Text]
	f.mu.Unlock()

	select {
	case <-time.After(f.delay):
	case <-ctx.Done():
		return ctx.Err()
	}
	if fail {
		return errors.New("synthesis error")
	}
	return nil
}

func (f *fakeSynth) Cancel() {
	f.mu.Lock()
	f.cancels++
	f.mu.Unlock()
}

func (f *fakeSynth) Cancels() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancels
}

func (f *fakeSynth) Texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	texts := make([]string, len(f.spoken))
	for i, u := range f.spoken {
		texts[i] = u.Text
	}
	return texts
}

// fakeRemote serves a voice list and echoes text back as audio.
type fakeRemote struct {
	mu       sync.Mutex
	voices   []ServerVoice
	voiceErr error
	calls    map[string]int
	requests []SpeakRequest
	fail     map[string]bool
	gates    map[string]chan struct{}
	started  chan string
	vcalls   int
}

func newFakeRemote(voices ...ServerVoice) *fakeRemote {
	return &fakeRemote{
		voices: voices,
		calls:  map[string]int{},
		fail:   map[string]bool{},
		gates:  map[string]chan struct{}{},
	}
}

func (f *fakeRemote) Voices(context.Context) ([]ServerVoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vcalls++
	return f.voices, f.voiceErr
}

func (f *fakeRemote) Speak(_ context.Context, req SpeakRequest) (SpeechAudio, error) {
	f.mu.Lock()
	f.calls[req.Text]++
	f.requests = append(f.requests, req)
	gate := f.gates[req.Text]
	fail := f.fail[req.Text]
	started := f.started
	f.mu.Unlock()

	if started != nil {
		started <- req.Text
	}
	if gate != nil {
		<-gate
	}
	if fail {
		return SpeechAudio{}, errors.New("remote error")
	}
	return SpeechAudio{Data: []byte(req.Text)}, nil
}

func (f *fakeRemote) Calls(text string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[text]
}

// fakeResource counts releases.
type fakeResource struct {
	id       string
	mime     string
	released atomic.Int32
}

func (r *fakeResource) ID() string { return r.id }

func (r *fakeResource) Release() error {
	r.released.Add(1)
	return nil
}

func (r *fakeResource) Released() int { return int(r.released.Load()) }

// fakeSink tracks every resource it opens.
type fakeSink struct {
	mu        sync.Mutex
	resources []*fakeResource
}

func (s *fakeSink) Open(data []byte, mimeType string) (Resource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := &fakeResource{id: string(data), mime: mimeType}
	s.resources = append(s.resources, r)
	return r, nil
}

func (s *fakeSink) All() []*fakeResource {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*fakeResource(nil), s.resources...)
}

// fakePlayer plays every resource for a fixed duration.
type fakePlayer struct {
	mu       sync.Mutex
	duration time.Duration
	started  []string
	failOn   map[string]bool
}

func (p *fakePlayer) Start(res Resource) (Playback, error) {
	p.mu.Lock()
	p.started = append(p.started, res.ID())
	fail := p.failOn[res.ID()]
	d := p.duration
	p.mu.Unlock()

	pb := &fakePlayback{done: make(chan struct{})}
	go func() {
		time.Sleep(d)
		if fail {
			pb.finish(errors.New("decode error"))
			return
		}
		pb.finish(nil)
	}()
	return pb, nil
}

func (p *fakePlayer) Started() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.started...)
}

type fakePlayback struct {
	once sync.Once
	done chan struct{}
	err  error
}

func (pb *fakePlayback) finish(err error) {
	pb.once.Do(func() {
		pb.err = err
		close(pb.done)
	})
}

func (pb *fakePlayback) Done() <-chan struct{} { return pb.done }
func (pb *fakePlayback) Err() error            { <-pb.done; return pb.err }
func (pb *fakePlayback) Stop()                 { pb.finish(errors.New("stopped")) }

// fakePlugins renders instantly and plays each path without delay.
type fakePlugins struct {
	mu      sync.Mutex
	voices  []Voice
	paths   []string
	renders [][]string
	played  []int
	loadErr map[int]bool
	stopAt  map[int]bool
	clears  int
	pauses  int
	resets  int
	ready   chan struct{}
}

func newFakePlugins(voices ...Voice) *fakePlugins {
	return &fakePlugins{voices: voices, loadErr: map[int]bool{}, stopAt: map[int]bool{}, ready: make(chan struct{})}
}

func (f *fakePlugins) VoiceList(plugins []Plugin) []Voice {
	var voices []Voice
	for _, p := range plugins {
		voices = append(voices, p.Voices...)
	}
	if len(voices) == 0 {
		return f.voices
	}
	return voices
}

func (f *fakePlugins) SetAudioPaths() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paths = nil
	f.resets++
	f.ready = make(chan struct{})
}

func (f *fakePlugins) CacheAudio(_ context.Context, texts []string, _ int, _ float64, _ []Plugin) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.renders = append(f.renders, texts)
	f.paths = append(f.paths, texts...)
	if f.ready != nil {
		close(f.ready)
	}
	f.ready = make(chan struct{})
	return nil
}

func (f *fakePlugins) AudioPaths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.paths...)
}

func (f *fakePlugins) WaitAudio(ctx context.Context, index int) error {
	for {
		f.mu.Lock()
		if index < len(f.paths) {
			f.mu.Unlock()
			return nil
		}
		ready := f.ready
		f.mu.Unlock()
		select {
		case <-ready:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (f *fakePlugins) ReadAloud(_ context.Context, index int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.played = append(f.played, index)
	if f.loadErr[index] {
		return ErrAudioLoad
	}
	if f.stopAt[index] {
		return ErrPlaybackStopped
	}
	return nil
}

func (f *fakePlugins) Pause() {
	f.mu.Lock()
	f.pauses++
	f.mu.Unlock()
}

func (f *fakePlugins) Clear(context.Context) error {
	f.mu.Lock()
	f.clears++
	f.mu.Unlock()
	return nil
}

// noticeRecorder collects notices.
type noticeRecorder struct {
	mu      sync.Mutex
	notices []Notice
}

func (r *noticeRecorder) record(n Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
}

func (r *noticeRecorder) Messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	msgs := make([]string, len(r.notices))
	for i, n := range r.notices {
		msgs[i] = n.Message
	}
	return msgs
}

func (r *noticeRecorder) Count(msg string) int {
	n := 0
	for _, m := range r.Messages() {
		if m == msg {
			n++
		}
	}
	return n
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Cache.Enabled = false
	cfg.SlidingDelay = 0
	return cfg
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return cond()
}

func joinLines(s []string) string {
	return strings.Join(s, " | ")
}
