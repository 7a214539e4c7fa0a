// Package tts drives read-aloud playback over a paged document.
package tts

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/readaloud/tts/sentence"
)

// Dependencies are the collaborators a Controller drives.
type Dependencies struct {
	Document    Document
	Book        Book
	Store       ConfigStore
	Synthesizer Synthesizer
	Plugins     PluginVoices
	PluginList  []Plugin
	Remote      RemoteService
	Sink        AudioSink
	Player      Player
	Cache       SpeechCache
	Logger      *log.Logger
}

// Controller orchestrates a reading session and manages state.
type Controller struct {
	deps   Dependencies
	config Config
	logger *log.Logger

	catalog   *Catalog
	resolver  *Resolver
	prefetch  *Prefetcher
	resources *ResourceManager
	segmenter *sentence.Segmenter
	machine   *StateMachine

	startMu   sync.Mutex
	mu        sync.Mutex
	session   *Session
	native    []NativeVoice
	lastError error
	closed    bool

	// Callbacks
	cbMu     sync.RWMutex
	onStatus func(Status)
	onNotice func(Notice)

	// Context for background work
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewController creates a controller over deps.
func NewController(deps Dependencies, config Config) (*Controller, error) {
	if deps.Document == nil {
		return nil, fmt.Errorf("%w: document is required", ErrInvalidConfig)
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("%w: config store is required", ErrInvalidConfig)
	}
	if config.Desktop {
		deps.Remote = nil
	}
	if deps.Remote != nil && (deps.Sink == nil || deps.Player == nil) {
		return nil, fmt.Errorf("%w: remote playback needs an audio sink and player", ErrInvalidConfig)
	}
	if config.MaxEmptyAdvances <= 0 {
		config.MaxEmptyAdvances = sentence.DefaultMaxEmptyAdvances
	}

	logger := deps.Logger
	if logger == nil {
		logger = log.Default()
	}
	logger = logger.WithPrefix("tts")

	ctx, cancel := context.WithCancel(context.Background())

	c := &Controller{
		deps:      deps,
		config:    config,
		logger:    logger,
		segmenter: sentence.NewSegmenter(),
		machine:   NewStateMachine(),
		ctx:       ctx,
		cancel:    cancel,
	}

	c.catalog = NewCatalog(deps.Remote, deps.Store, logger)
	c.resolver = NewResolver(config.Desktop, c.catalog, deps.Plugins, deps.PluginList, deps.Store)

	requester := &speechRequester{
		remote:  deps.Remote,
		sink:    deps.Sink,
		catalog: c.catalog,
		cache:   deps.Cache,
		logger:  logger,
	}
	c.prefetch = NewPrefetcher(requester.RequestAudio)
	c.resources = NewResourceManager(c.prefetch, deps.Synthesizer, logger)

	c.machine.OnEnter(StateIdle, c.emitStatus)
	c.machine.OnEnter(StateOfferInstall, c.emitStatus)

	return c, nil
}

// Init loads native voices and starts fetching the remote catalog in the
// background.
func (c *Controller) Init(ctx context.Context) error {
	if c.isClosed() {
		return ErrControllerClosed
	}

	if c.deps.Synthesizer != nil {
		voices, err := c.deps.Synthesizer.Voices(ctx)
		if err != nil {
			c.logger.Warn("Could not list native voices", "err", err)
		}
		c.mu.Lock()
		c.native = voices
		c.mu.Unlock()
	}

	if c.config.Desktop || c.deps.Remote == nil {
		return nil
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.emitStatus()
		_ = c.catalog.Load(c.ctx)
		c.emitStatus()
	}()
	return nil
}

// OnStatus registers a callback for status changes.
func (c *Controller) OnStatus(fn func(Status)) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	c.onStatus = fn
}

// OnNotice registers a callback for reader-facing notices.
func (c *Controller) OnNotice(fn func(Notice)) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	c.onNotice = fn
}

// Toggle starts reading when idle and stops it otherwise.
func (c *Controller) Toggle(ctx context.Context) error {
	if c.Status().IsActive() {
		c.Stop()
		return nil
	}
	return c.Start(ctx)
}

// Start begins reading from the current position.
func (c *Controller) Start(ctx context.Context) error {
	return c.StartFrom(ctx, "")
}

// StartFrom begins reading at the first segment containing selection.
func (c *Controller) StartFrom(ctx context.Context, selection string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.startMu.Lock()
	defer c.startMu.Unlock()

	c.mu.Lock()
	closed := c.closed
	busy := c.session != nil && c.session.Active()
	native := c.native
	c.mu.Unlock()

	if closed {
		return ErrControllerClosed
	}
	if busy {
		return ErrSessionActive
	}

	if !c.machine.Transition(StateStarting) {
		c.machine.Reset()
		c.machine.Transition(StateStarting)
	}

	res, err := c.resolver.Resolve(native)
	switch {
	case errors.Is(err, ErrVoicesLoading):
		c.machine.Reset()
		c.notice(Notice{Level: NoticeInfo, Message: MsgLoadingVoices, Err: err})
		return err
	case errors.Is(err, ErrVoiceUnavailable):
		c.setLastError(err)
		c.machine.Transition(StateOfferInstall)
		c.notice(Notice{Level: NoticeWarning, Message: MsgInstallVoices, Err: err})
		return err
	case err != nil:
		c.machine.Reset()
		return err
	}

	c.resources.Reset()

	s := newSession(c.ctx, c.backendFor(res.Kind), res, ParseSpeed(c.deps.Store.Get(KeyVoiceSpeed)))
	c.mu.Lock()
	c.session = s
	c.lastError = nil
	c.mu.Unlock()
	c.logger.Info("Reading started", "session", s.ID, "backend", res.Kind, "speed", s.Speed)

	c.wg.Add(1)
	go c.run(s, selection)
	return nil
}

// Stop ends the session, releasing all audio. It is safe to call at any
// time and more than once.
func (c *Controller) Stop() {
	c.mu.Lock()
	s := c.session
	c.mu.Unlock()

	if s == nil {
		c.resources.Reset()
		if c.machine.Current() != StateIdle {
			c.machine.Reset()
		}
		return
	}
	c.stopSession(s)
}

// Wait blocks until the current session ends or ctx is done.
func (c *Controller) Wait(ctx context.Context) error {
	c.mu.Lock()
	s := c.session
	c.mu.Unlock()
	if s == nil {
		return nil
	}
	select {
	case <-s.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops reading and tears the controller down.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.Stop()
	c.cancel()
	c.catalog.Invalidate()
	c.wg.Wait()
	c.prefetch.Wait()
	return nil
}

// SetHighlightEnabled persists the highlight preference and applies it to
// the segment being read.
func (c *Controller) SetHighlightEnabled(enabled bool) error {
	value := "no"
	if enabled {
		value = "yes"
	}
	if err := c.deps.Store.Set(KeyHighlight, value); err != nil {
		return err
	}

	c.mu.Lock()
	s := c.session
	c.mu.Unlock()
	if s != nil && s.Active() {
		if text, ok := s.Segment(s.Cursor()); ok {
			c.deps.Document.HighlightAudioNode(text, c.highlightStyle())
		}
	}
	c.emitStatus()
	return nil
}

// SetServerVoice persists the remote voice. Audio already generated for
// the old voice is discarded.
func (c *Controller) SetServerVoice(id string) error {
	if err := c.deps.Store.Set(KeyServerVoice, id); err != nil {
		return err
	}
	c.prefetch.Reset()
	c.emitStatus()
	return nil
}

// SetVoiceIndex persists the selected native or plugin voice.
func (c *Controller) SetVoiceIndex(index int) error {
	if err := c.deps.Store.Set(KeyVoiceIndex, strconv.Itoa(index)); err != nil {
		return err
	}
	c.notice(Notice{Level: NoticeInfo, Message: MsgNextStartup})
	return nil
}

// SetSpeed persists the reading speed.
func (c *Controller) SetSpeed(speed float64) error {
	if err := c.deps.Store.Set(KeyVoiceSpeed, FormatSpeed(speed)); err != nil {
		return err
	}
	c.notice(Notice{Level: NoticeInfo, Message: MsgInAWhile})
	c.emitStatus()
	return nil
}

// SetPlugins replaces the installed plugin list. A controller offering a
// voice pack install returns to idle so reading can be retried. Sessions
// already reading keep the list they started with.
func (c *Controller) SetPlugins(list []Plugin) {
	c.resolver.SetPlugins(list)
	if c.machine.Current() == StateOfferInstall {
		c.machine.Reset()
		return
	}
	c.emitStatus()
}

// Voices lists the voices a reader can select.
func (c *Controller) Voices() []VoiceDescriptor {
	c.mu.Lock()
	native := c.native
	c.mu.Unlock()
	return c.resolver.VoiceList(native)
}

// ServerVoices lists the remote catalog.
func (c *Controller) ServerVoices() []ServerVoice {
	return c.catalog.Voices()
}

// Status returns a snapshot of the controller.
func (c *Controller) Status() Status {
	c.mu.Lock()
	s := c.session
	lastErr := c.lastError
	c.mu.Unlock()

	st := Status{
		State:            c.machine.Current(),
		Index:            -1,
		LoadingVoices:    c.catalog.Fetching(),
		HighlightEnabled: c.highlightEnabled(),
		ServerVoice:      c.catalog.SelectedVoice(),
		VoiceIndex:       c.resolver.voiceIndex(),
		Speed:            ParseSpeed(c.deps.Store.Get(KeyVoiceSpeed)),
		LastError:        lastErr,
	}
	if s != nil && s.Active() {
		st.SessionID = s.ID
		st.Backend = s.Backend.Kind()
		st.Speed = s.Speed
		st.Index = s.Cursor()
		st.Total = s.Len()
		st.Segment, _ = s.Segment(st.Index)
	}
	return st
}

// run reads queue after queue until the session stops or the document
// runs out of text.
func (c *Controller) run(s *Session, selection string) {
	defer c.wg.Done()
	defer close(s.done)
	defer c.stopSession(s)

	ctx := s.Context()
	for s.Active() {
		c.resources.Reset()

		queue, err := c.segmenter.Build(ctx, docSource{c.deps.Document}, c.segmentOptions(selection))
		selection = ""
		if !s.Active() {
			return
		}
		if err != nil {
			if errors.Is(err, ErrDocumentExhausted) {
				c.logger.Info("Reached the end of the document", "session", s.ID)
			} else {
				c.recordError(NewTTSError(err, "segmenter", "build"))
			}
			return
		}

		s.setQueue(queue)
		c.logger.Debug("Queue built", "session", s.ID, "segments", len(queue))

		if err := s.Backend.Prepare(ctx, s); err != nil {
			c.recordError(err)
			return
		}
		if !c.speakQueue(ctx, s) {
			return
		}

		c.transition(s, StateRefilling)
		c.recordPosition()
		s.Backend.Finish(ctx, s)
		s.setQueue(nil)
	}
}

// speakQueue speaks every segment in order. It reports false when the
// session ended before the queue did.
func (c *Controller) speakQueue(ctx context.Context, s *Session) bool {
	for i := 0; i < s.Len(); i++ {
		if !s.Active() {
			return false
		}
		text, _ := s.Segment(i)

		s.setCursor(i)
		c.transition(s, StateSpeaking)
		c.deps.Document.HighlightAudioNode(text, c.highlightStyle())

		outcome, err := s.Backend.Speak(ctx, s, i)
		if err != nil && s.Active() {
			c.recordError(err)
		}
		// A segment that played out turns the page even when the backend
		// then asks to stop.
		if err == nil && s.Active() {
			c.turnPageAfter(ctx, s, text)
		}
		if outcome == OutcomeEnd || !s.Active() {
			return false
		}
	}
	return s.Active()
}

// turnPageAfter advances the document when text closed the visible page.
func (c *Controller) turnPageAfter(ctx context.Context, s *Session, text string) {
	visible, err := c.deps.Document.VisibleText(ctx)
	if err != nil {
		c.logger.Warn("Could not read visible text", "err", err)
		return
	}

	split := c.splitEnabled()
	if text != c.segmenter.LastVisible(visible, split) || !s.Active() {
		return
	}

	c.transition(s, StateAdvancing)

	if split {
		err = c.deps.Document.Next(ctx)
	} else {
		step := 1
		if c.deps.Store.Get(KeyReaderMode) == "double" {
			step = 2
		}
		err = c.deps.Document.GoToChapterIndex(ctx, c.deps.Document.Position().ChapterDocIndex+step)
	}
	if err != nil && !errors.Is(err, ErrDocumentEnd) && s.Active() {
		c.logger.Warn("Could not turn page", "err", err)
	}
}

func (c *Controller) recordPosition() {
	pos := c.deps.Document.Position()
	if err := c.deps.Store.SetObjectConfig(c.deps.Book.Key, pos, CategoryLocation); err != nil {
		c.logger.Warn("Could not save reading position", "err", err)
	}
}

// stopSession deactivates s and releases everything it held. Only the
// first call for a session has any effect.
func (c *Controller) stopSession(s *Session) {
	if !s.stop() {
		return
	}
	c.teardown(s)
}

// teardown releases shared audio state for a stopped session. It runs
// under startMu so a new session cannot start halfway through, and it
// leaves everything alone once a newer session has taken over.
func (c *Controller) teardown(s *Session) {
	c.startMu.Lock()
	defer c.startMu.Unlock()

	c.mu.Lock()
	current := c.session == s
	c.mu.Unlock()

	s.setQueue(nil)
	if !current {
		c.logger.Debug("Reading stopped after a newer session started", "session", s.ID)
		return
	}

	if c.deps.Synthesizer != nil {
		c.deps.Synthesizer.Cancel()
	}
	if c.deps.Plugins != nil {
		c.deps.Plugins.Pause()
	}
	c.resources.Reset()

	c.deps.Document.HighlightAudioNode("", "")
	c.logger.Info("Reading stopped", "session", s.ID)
	c.machine.Reset()

	c.mu.Lock()
	if c.session == s {
		c.session = nil
	}
	c.mu.Unlock()
}

func (c *Controller) backendFor(kind BackendKind) Backend {
	switch kind {
	case BackendServer:
		return &serverBackend{
			prefetch:  c.prefetch,
			resources: c.resources,
			player:    c.deps.Player,
			logger:    c.logger,
			notify:    c.notice,
			wg:        &c.wg,
		}
	case BackendPlugin:
		return &pluginBackend{
			plugins: c.deps.Plugins,
			list:    c.resolver.Plugins(),
			logger:  c.logger,
			notify:  c.notice,
			wg:      &c.wg,
		}
	default:
		return &nativeBackend{
			synth:  c.deps.Synthesizer,
			logger: c.logger,
		}
	}
}

func (c *Controller) segmentOptions(selection string) sentence.Options {
	opts := sentence.Options{
		Split:            c.splitEnabled(),
		DoublePage:       c.deps.Store.Get(KeyReaderMode) == "double",
		Selection:        selection,
		MaxEmptyAdvances: c.config.MaxEmptyAdvances,
	}
	if c.deps.Store.Get(KeySliding) == "yes" {
		opts.Delay = c.config.SlidingDelay
	}
	return opts
}

// splitEnabled is false for fixed-layout books read page by page.
func (c *Controller) splitEnabled() bool {
	return !(c.deps.Book.FixedLayout() && c.deps.Store.Get(KeyConvertPDF) != "yes")
}

func (c *Controller) highlightEnabled() bool {
	return c.deps.Store.Get(KeyHighlight) != "no"
}

func (c *Controller) highlightStyle() string {
	if !c.highlightEnabled() {
		return ""
	}
	return c.config.HighlightStyle
}

func (c *Controller) recordError(err error) {
	c.setLastError(err)
	c.logger.Error("Reading failed", "err", err)
}

func (c *Controller) setLastError(err error) {
	c.mu.Lock()
	c.lastError = err
	c.mu.Unlock()
}

// transition moves the state machine on behalf of a live session.
func (c *Controller) transition(s *Session, to StateType) {
	if !s.Active() {
		return
	}
	c.machine.Transition(to)
	c.emitStatus()
}

func (c *Controller) emitStatus() {
	c.cbMu.RLock()
	fn := c.onStatus
	c.cbMu.RUnlock()
	if fn != nil {
		fn(c.Status())
	}
}

func (c *Controller) notice(n Notice) {
	c.cbMu.RLock()
	fn := c.onNotice
	c.cbMu.RUnlock()
	if fn != nil {
		fn(n)
	}
}

func (c *Controller) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// docSource adapts a Document to the segmenter.
type docSource struct {
	Document
}

func (d docSource) ChapterIndex() int {
	return d.Position().ChapterDocIndex
}
