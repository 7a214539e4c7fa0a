package tts

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"
)

func newTestController(t *testing.T, deps Dependencies, cfg Config) *Controller {
	t.Helper()
	c, err := NewController(deps, cfg)
	if err != nil {
		t.Fatalf("NewController failed: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	if err := c.Init(context.Background()); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	return c
}

func waitSession(t *testing.T, c *Controller) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Wait(ctx); err != nil {
		t.Fatalf("session did not finish: %v", err)
	}
}

func waitCatalog(t *testing.T, c *Controller) {
	t.Helper()
	if !waitFor(2*time.Second, func() bool { return c.catalog.State() == CatalogLoaded || c.catalog.State() == CatalogFailed }) {
		t.Fatal("catalog did not load")
	}
}

func TestNewControllerValidation(t *testing.T) {
	if _, err := NewController(Dependencies{Store: newFakeStore()}, testConfig()); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Expected ErrInvalidConfig without document, got %v", err)
	}
	if _, err := NewController(Dependencies{Document: &fakeDocument{}}, testConfig()); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Expected ErrInvalidConfig without store, got %v", err)
	}
	deps := Dependencies{Document: &fakeDocument{}, Store: newFakeStore(), Remote: newFakeRemote()}
	if _, err := NewController(deps, testConfig()); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Expected ErrInvalidConfig for remote without player, got %v", err)
	}
}

func TestControllerNativeReadsInOrder(t *testing.T) {
	doc := &fakeDocument{pages: [][]string{
		{"Hello world. Second one."},
		{"", "Third one."},
	}}
	store := newFakeStore()
	synth := &fakeSynth{voices: []NativeVoice{{Name: "en", Lang: "en"}}}

	c := newTestController(t, Dependencies{
		Document:    doc,
		Book:        Book{Key: "book-1", Format: FormatMarkdown},
		Store:       store,
		Synthesizer: synth,
	}, testConfig())

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitSession(t, c)

	expected := []string{"Hello world.", "Second one.", "Third one."}
	if got := synth.Texts(); !reflect.DeepEqual(got, expected) {
		t.Errorf("spoken = %q, want %q", got, expected)
	}
	if got := doc.Highlights(); !reflect.DeepEqual(got, expected) {
		t.Errorf("highlights = %q, want %q", got, expected)
	}
	if doc.styles[0] != HighlightStyle {
		t.Errorf("highlight style = %q, want %q", doc.styles[0], HighlightStyle)
	}
	if doc.nexts < 2 {
		t.Errorf("Expected page turns after each visible page, got %d", doc.nexts)
	}
	if _, ok := store.Object(CategoryLocation + "/book-1"); !ok {
		t.Error("Expected reading position to be recorded at queue end")
	}

	st := c.Status()
	if st.State != StateIdle {
		t.Errorf("state = %v, want idle", st.State)
	}
	if st.LastError != nil {
		t.Errorf("unexpected error: %v", st.LastError)
	}
}

func TestControllerSanitizesNativeText(t *testing.T) {
	doc := &fakeDocument{pages: [][]string{{"Tom\t&  Jerry."}}}
	synth := &fakeSynth{voices: []NativeVoice{{Name: "en"}}}

	c := newTestController(t, Dependencies{Document: doc, Store: newFakeStore(), Synthesizer: synth}, testConfig())
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitSession(t, c)

	if got := synth.Texts(); len(got) != 1 || got[0] != "Tom Jerry." {
		t.Errorf("spoken = %q, want sanitised text", got)
	}
}

func TestControllerHighlightDisabled(t *testing.T) {
	doc := &fakeDocument{pages: [][]string{{"One. Two."}}}
	synth := &fakeSynth{voices: []NativeVoice{{Name: "en"}}}

	c := newTestController(t, Dependencies{
		Document:    doc,
		Store:       newFakeStore(KeyHighlight, "no"),
		Synthesizer: synth,
	}, testConfig())

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitSession(t, c)

	for i, style := range doc.styles {
		if style != "" {
			t.Errorf("style[%d] = %q, want empty", i, style)
		}
	}
	if c.Status().HighlightEnabled {
		t.Error("Expected highlight to be reported disabled")
	}
}

func TestControllerStartFromSelection(t *testing.T) {
	doc := &fakeDocument{pages: [][]string{{"Hello world.", "", "  ", "Second one. Third one."}}}
	synth := &fakeSynth{voices: []NativeVoice{{Name: "en"}}}

	c := newTestController(t, Dependencies{Document: doc, Store: newFakeStore(), Synthesizer: synth}, testConfig())
	if err := c.StartFrom(context.Background(), "third one"); err != nil {
		t.Fatalf("StartFrom failed: %v", err)
	}
	waitSession(t, c)

	if got := synth.Texts(); !reflect.DeepEqual(got, []string{"Third one."}) {
		t.Errorf("spoken = %q, want only the selected segment", got)
	}
}

func TestControllerNativeFailureEndsSession(t *testing.T) {
	doc := &fakeDocument{pages: [][]string{{"One. Two. Three."}}}
	synth := &fakeSynth{voices: []NativeVoice{{Name: "en"}}, fail: map[string]bool{"Two.": true}}

	c := newTestController(t, Dependencies{Document: doc, Store: newFakeStore(), Synthesizer: synth}, testConfig())
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitSession(t, c)

	if got := synth.Texts(); !reflect.DeepEqual(got, []string{"One.", "Two."}) {
		t.Errorf("spoken = %q", got)
	}
	if err := c.Status().LastError; !errors.Is(err, ErrPlaybackFailed) {
		t.Errorf("LastError = %v, want ErrPlaybackFailed", err)
	}
}

func TestControllerServerPlaysWithReadAhead(t *testing.T) {
	doc := &fakeDocument{pages: [][]string{{"One. Two. Three."}}}
	remote := newFakeRemote(ServerVoice{ID: "v1", Name: "Voice"})
	sink := &fakeSink{}
	player := &fakePlayer{duration: 10 * time.Millisecond}
	store := newFakeStore(KeyVoiceSpeed, "1.5")

	c := newTestController(t, Dependencies{
		Document: doc, Store: store, Remote: remote, Sink: sink, Player: player,
	}, testConfig())
	waitCatalog(t, c)

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitSession(t, c)

	expected := []string{"One.", "Two.", "Three."}
	if got := player.Started(); !reflect.DeepEqual(got, expected) {
		t.Errorf("played = %q, want %q", got, expected)
	}
	for _, text := range expected {
		if n := remote.Calls(text); n != 1 {
			t.Errorf("requests for %q = %d, want 1", text, n)
		}
	}
	remote.mu.Lock()
	requests := append([]SpeakRequest(nil), remote.requests...)
	remote.mu.Unlock()
	for i, req := range requests {
		if req.Voice != "v1" || req.Speed != 1.5 {
			t.Errorf("request = %+v, want voice v1 speed 1.5", req)
		}
		if i < len(expected) && req.Text != expected[i] {
			t.Errorf("request %d text = %q, want %q", i, req.Text, expected[i])
		}
	}
	for _, r := range sink.All() {
		if r.Released() != 1 {
			t.Errorf("resource %q released %d times, want 1", r.id, r.Released())
		}
		if r.mime != "audio/wav" {
			t.Errorf("resource %q mime = %q, want audio/wav", r.id, r.mime)
		}
	}
	if cached, inflight := c.prefetch.Len(); cached != 0 || inflight != 0 {
		t.Errorf("prefetch maps not empty: cached=%d inflight=%d", cached, inflight)
	}
	if st := c.Status(); st.State != StateIdle || st.LastError != nil {
		t.Errorf("status = %+v", st)
	}
}

func TestControllerServerGenerationFailureHaltsOnce(t *testing.T) {
	doc := &fakeDocument{pages: [][]string{{"S1. S2. S3. S4. S5."}}}
	remote := newFakeRemote(ServerVoice{ID: "v1"})
	remote.fail["S2."] = true
	sink := &fakeSink{}
	player := &fakePlayer{duration: 10 * time.Millisecond}
	notices := &noticeRecorder{}

	c := newTestController(t, Dependencies{
		Document: doc, Store: newFakeStore(), Remote: remote, Sink: sink, Player: player,
	}, testConfig())
	c.OnNotice(notices.record)
	waitCatalog(t, c)

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitSession(t, c)

	if got := player.Started(); !reflect.DeepEqual(got, []string{"S1."}) {
		t.Errorf("played = %q, want only the first segment", got)
	}
	if n := notices.Count(MsgSpeechFailed); n != 1 {
		t.Errorf("generation failure notices = %d, want 1 (%s)", n, joinLines(notices.Messages()))
	}
	for _, text := range []string{"S3.", "S4.", "S5."} {
		if n := remote.Calls(text); n != 0 {
			t.Errorf("requests for %q = %d, want 0", text, n)
		}
	}
	if err := c.Status().LastError; !errors.Is(err, ErrSpeechGenerationFailed) {
		t.Errorf("LastError = %v, want ErrSpeechGenerationFailed", err)
	}
	if c.Status().State != StateIdle {
		t.Errorf("state = %v, want idle", c.Status().State)
	}
}

func TestControllerStopDuringReadAheadReleasesResource(t *testing.T) {
	doc := &fakeDocument{pages: [][]string{{"First. Second. Third."}}}
	remote := newFakeRemote(ServerVoice{ID: "v1"})
	gate := make(chan struct{})
	remote.gates["Second."] = gate
	remote.started = make(chan string, 8)
	sink := &fakeSink{}
	player := &fakePlayer{duration: time.Minute}

	c := newTestController(t, Dependencies{
		Document: doc, Store: newFakeStore(), Remote: remote, Sink: sink, Player: player,
	}, testConfig())
	waitCatalog(t, c)

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	timeout := time.After(5 * time.Second)
	for seen := false; !seen; {
		select {
		case text := <-remote.started:
			seen = text == "Second."
		case <-timeout:
			t.Fatal("read-ahead request never started")
		}
	}

	c.Stop()
	close(gate)

	if !waitFor(2*time.Second, func() bool { return len(sink.All()) == 2 && sink.All()[1].Released() == 1 }) {
		t.Fatal("late read-ahead resource was not released")
	}
	waitSession(t, c)

	for _, r := range sink.All() {
		if r.Released() != 1 {
			t.Errorf("resource %q released %d times, want 1", r.id, r.Released())
		}
	}
	if cached, inflight := c.prefetch.Len(); cached != 0 || inflight != 0 {
		t.Errorf("prefetch maps not empty: cached=%d inflight=%d", cached, inflight)
	}
	if st := c.Status(); st.State != StateIdle {
		t.Errorf("state = %v, want idle", st.State)
	}
}

func TestControllerServerSanitizesText(t *testing.T) {
	doc := &fakeDocument{pages: [][]string{{"Tom & Jerry\tran home."}}}
	remote := newFakeRemote(ServerVoice{ID: "v1"})
	player := &fakePlayer{duration: time.Millisecond}

	c := newTestController(t, Dependencies{
		Document: doc, Store: newFakeStore(), Remote: remote, Sink: &fakeSink{}, Player: player,
	}, testConfig())
	waitCatalog(t, c)

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitSession(t, c)

	remote.mu.Lock()
	requests := append([]SpeakRequest(nil), remote.requests...)
	remote.mu.Unlock()
	if len(requests) != 1 || requests[0].Text != "Tom Jerry ran home." {
		t.Errorf("requests = %+v, want one request with sanitised text", requests)
	}
	if got := doc.Highlights(); len(got) != 1 || got[0] != "Tom & Jerry\tran home." {
		t.Errorf("highlights = %q, want the original text", got)
	}
}

func TestControllerServerVoiceChangeRegenerates(t *testing.T) {
	doc := &fakeDocument{pages: [][]string{{"One. Two."}}}
	remote := newFakeRemote(ServerVoice{ID: "v1"}, ServerVoice{ID: "v2"})
	gate := make(chan struct{})
	remote.gates["One."] = gate
	remote.started = make(chan string, 8)
	sink := &fakeSink{}
	player := &fakePlayer{duration: 5 * time.Millisecond}
	notices := &noticeRecorder{}

	c := newTestController(t, Dependencies{
		Document: doc, Store: newFakeStore(), Remote: remote, Sink: sink, Player: player,
	}, testConfig())
	c.OnNotice(notices.record)
	waitCatalog(t, c)

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	select {
	case <-remote.started:
	case <-time.After(5 * time.Second):
		t.Fatal("first request never started")
	}

	if err := c.SetServerVoice("v2"); err != nil {
		t.Fatal(err)
	}
	close(gate)
	waitSession(t, c)

	if got := player.Started(); !reflect.DeepEqual(got, []string{"One.", "Two."}) {
		t.Errorf("played = %q, want both segments", got)
	}
	if n := notices.Count(MsgSpeechFailed); n != 0 {
		t.Errorf("generation failure notices = %d, want 0", n)
	}
	if err := c.Status().LastError; err != nil {
		t.Errorf("LastError = %v, want nil", err)
	}

	remote.mu.Lock()
	requests := append([]SpeakRequest(nil), remote.requests...)
	remote.mu.Unlock()
	var regenerated bool
	for _, req := range requests {
		if req.Text == "One." && req.Voice == "v2" {
			regenerated = true
		}
	}
	if !regenerated {
		t.Errorf("requests = %+v, want One. regenerated with v2", requests)
	}
	for _, r := range sink.All() {
		if r.Released() != 1 {
			t.Errorf("resource %q released %d times, want 1", r.id, r.Released())
		}
	}
}

func TestControllerCloseWaitsForReadAhead(t *testing.T) {
	doc := &fakeDocument{pages: [][]string{{"First. Second."}}}
	remote := newFakeRemote(ServerVoice{ID: "v1"})
	gate := make(chan struct{})
	remote.gates["Second."] = gate
	remote.started = make(chan string, 8)
	sink := &fakeSink{}
	player := &fakePlayer{duration: time.Minute}

	c, err := NewController(Dependencies{
		Document: doc, Store: newFakeStore(), Remote: remote, Sink: sink, Player: player,
	}, testConfig())
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Init(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitCatalog(t, c)

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	timeout := time.After(5 * time.Second)
	for seen := false; !seen; {
		select {
		case text := <-remote.started:
			seen = text == "Second."
		case <-timeout:
			t.Fatal("read-ahead request never started")
		}
	}

	closed := make(chan struct{})
	go func() {
		_ = c.Close()
		close(closed)
	}()

	select {
	case <-closed:
		t.Fatal("Close returned while a read-ahead request was outstanding")
	case <-time.After(50 * time.Millisecond):
	}

	close(gate)
	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not return")
	}

	all := sink.All()
	if len(all) != 2 {
		t.Fatalf("opened %d resources, want 2", len(all))
	}
	for _, r := range all {
		if r.Released() != 1 {
			t.Errorf("resource %q released %d times, want 1", r.id, r.Released())
		}
	}
}

func TestControllerStaleTeardownKeepsNewSession(t *testing.T) {
	doc := &fakeDocument{pages: [][]string{{"One. Two."}}}
	synth := &fakeSynth{voices: []NativeVoice{{Name: "en"}}, delay: time.Minute}

	c := newTestController(t, Dependencies{Document: doc, Store: newFakeStore(), Synthesizer: synth}, testConfig())

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !waitFor(time.Second, func() bool { return len(synth.Texts()) == 1 }) {
		t.Fatal("never started speaking")
	}

	// The first session ends on its own, but its cleanup has not run yet.
	c.mu.Lock()
	first := c.session
	c.mu.Unlock()
	first.stop()
	select {
	case <-first.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("first session did not exit")
	}

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("second Start failed: %v", err)
	}
	if !waitFor(time.Second, func() bool { return len(synth.Texts()) == 2 }) {
		t.Fatal("second session never started speaking")
	}
	c.mu.Lock()
	second := c.session
	c.mu.Unlock()
	cancels := synth.Cancels()

	c.teardown(first)

	if !second.Active() {
		t.Error("late cleanup stopped the new session")
	}
	if n := synth.Cancels(); n != cancels {
		t.Errorf("synth cancels = %d, want %d", n, cancels)
	}
	st := c.Status()
	if st.State != StateSpeaking || st.SessionID != second.ID {
		t.Errorf("status = %+v, want the second session speaking", st)
	}
}

func TestControllerZeroServerVoicesFallsBack(t *testing.T) {
	doc := &fakeDocument{pages: [][]string{{"Only text."}}}
	remote := newFakeRemote()
	synth := &fakeSynth{voices: []NativeVoice{{Name: "en"}}}
	player := &fakePlayer{}

	c := newTestController(t, Dependencies{
		Document: doc, Store: newFakeStore(), Remote: remote, Sink: &fakeSink{}, Player: player, Synthesizer: synth,
	}, testConfig())
	waitCatalog(t, c)

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitSession(t, c)

	if len(player.Started()) != 0 {
		t.Error("server playback used with an empty catalog")
	}
	if got := synth.Texts(); !reflect.DeepEqual(got, []string{"Only text."}) {
		t.Errorf("spoken = %q", got)
	}
}

func TestControllerOffersInstallWithoutVoices(t *testing.T) {
	notices := &noticeRecorder{}
	c := newTestController(t, Dependencies{
		Document: &fakeDocument{pages: [][]string{{"Text."}}},
		Store:    newFakeStore(),
	}, testConfig())
	c.OnNotice(notices.record)

	err := c.Start(context.Background())
	if !errors.Is(err, ErrVoiceUnavailable) {
		t.Fatalf("Start error = %v, want ErrVoiceUnavailable", err)
	}
	if st := c.Status().State; st != StateOfferInstall {
		t.Errorf("state = %v, want offer-install", st)
	}
	if notices.Count(MsgInstallVoices) != 1 {
		t.Errorf("notices = %s", joinLines(notices.Messages()))
	}
}

func TestControllerSetPluginsAfterInstallOffer(t *testing.T) {
	plugins := newFakePlugins()
	cfg := testConfig()
	cfg.Desktop = true
	c := newTestController(t, Dependencies{
		Document: &fakeDocument{pages: [][]string{{"Only."}}},
		Store:    newFakeStore(),
		Plugins:  plugins,
	}, cfg)

	if err := c.Start(context.Background()); !errors.Is(err, ErrVoiceUnavailable) {
		t.Fatalf("Start error = %v, want ErrVoiceUnavailable", err)
	}

	c.SetPlugins([]Plugin{{Key: "pack", Type: PluginTypeVoice, Voices: []Voice{{ID: "p1", Name: "Pack voice"}}}})
	if st := c.Status().State; st != StateIdle {
		t.Fatalf("state = %v, want idle after install", st)
	}

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start after install failed: %v", err)
	}
	waitSession(t, c)

	plugins.mu.Lock()
	defer plugins.mu.Unlock()
	if !reflect.DeepEqual(plugins.played, []int{0}) {
		t.Errorf("played = %v, want [0]", plugins.played)
	}
}

func TestControllerPluginBackend(t *testing.T) {
	doc := &fakeDocument{pages: [][]string{{"Alpha. Beta. Gamma."}}}
	plugins := newFakePlugins()
	plugins.loadErr[1] = true
	list := []Plugin{{Key: "pack", Type: PluginTypeVoice, Voices: []Voice{{ID: "p1", Name: "Pack voice"}}}}
	synth := &fakeSynth{voices: []NativeVoice{{Name: "en"}}}
	cfg := testConfig()
	cfg.Desktop = true

	c := newTestController(t, Dependencies{
		Document:    doc,
		Store:       newFakeStore(KeyVoiceIndex, "1", KeyVoiceSpeed, "1.25"),
		Synthesizer: synth,
		Plugins:     plugins,
		PluginList:  list,
	}, cfg)

	if got := len(c.Voices()); got != 2 {
		t.Errorf("voice list length = %d, want native plus plugin", got)
	}

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitSession(t, c)

	if len(synth.Texts()) != 0 {
		t.Errorf("native synth used: %q", synth.Texts())
	}
	plugins.mu.Lock()
	defer plugins.mu.Unlock()
	if !reflect.DeepEqual(plugins.played, []int{0, 1, 2}) {
		t.Errorf("played = %v, want all indices despite load error", plugins.played)
	}
	if len(plugins.renders) < 1 || !reflect.DeepEqual(plugins.renders[0], []string{"Alpha."}) {
		t.Errorf("first render = %v, want only the first segment", plugins.renders)
	}
	if plugins.clears < 1 {
		t.Error("Expected rendered audio to be cleared at queue end")
	}
}

func TestControllerPluginStopTurnsPage(t *testing.T) {
	doc := &fakeDocument{pages: [][]string{{"Alpha. Beta."}, {"Gamma."}}}
	plugins := newFakePlugins()
	plugins.stopAt[1] = true
	list := []Plugin{{Key: "pack", Type: PluginTypeVoice, Voices: []Voice{{ID: "p1", Name: "Pack voice"}}}}
	cfg := testConfig()
	cfg.Desktop = true

	c := newTestController(t, Dependencies{
		Document:   doc,
		Store:      newFakeStore(),
		Plugins:    plugins,
		PluginList: list,
	}, cfg)

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitSession(t, c)

	plugins.mu.Lock()
	played := append([]int(nil), plugins.played...)
	plugins.mu.Unlock()
	if !reflect.DeepEqual(played, []int{0, 1}) {
		t.Errorf("played = %v, want [0 1]", played)
	}
	doc.mu.Lock()
	nexts := doc.nexts
	doc.mu.Unlock()
	if nexts != 1 {
		t.Errorf("page turns = %d, want 1 for the stopped last visible segment", nexts)
	}
	if err := c.Status().LastError; err != nil {
		t.Errorf("LastError = %v, want nil", err)
	}
}

func TestControllerLoadingVoices(t *testing.T) {
	block := make(chan struct{})
	remote := &blockingRemote{fakeRemote: newFakeRemote(ServerVoice{ID: "v1"}), block: block}
	notices := &noticeRecorder{}

	c := newTestController(t, Dependencies{
		Document: &fakeDocument{pages: [][]string{{"Text."}}},
		Store:    newFakeStore(),
		Remote:   remote, Sink: &fakeSink{}, Player: &fakePlayer{},
	}, testConfig())
	c.OnNotice(notices.record)

	if !waitFor(time.Second, c.catalog.Fetching) {
		t.Fatal("catalog fetch did not start")
	}
	if err := c.Start(context.Background()); !errors.Is(err, ErrVoicesLoading) {
		t.Errorf("Start error = %v, want ErrVoicesLoading", err)
	}
	if notices.Count(MsgLoadingVoices) != 1 {
		t.Errorf("notices = %s", joinLines(notices.Messages()))
	}
	if !c.Status().LoadingVoices {
		t.Error("Expected status to report loading voices")
	}
	if c.Status().State != StateIdle {
		t.Errorf("state = %v, want idle", c.Status().State)
	}
	close(block)
}

type blockingRemote struct {
	*fakeRemote
	block chan struct{}
}

func (b *blockingRemote) Voices(ctx context.Context) ([]ServerVoice, error) {
	select {
	case <-b.block:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return b.fakeRemote.Voices(ctx)
}

func TestControllerToggleAndStopIdempotent(t *testing.T) {
	doc := &fakeDocument{pages: [][]string{{"One. Two. Three."}}}
	synth := &fakeSynth{voices: []NativeVoice{{Name: "en"}}, delay: time.Minute}

	c := newTestController(t, Dependencies{Document: doc, Store: newFakeStore(), Synthesizer: synth}, testConfig())

	if err := c.Toggle(context.Background()); err != nil {
		t.Fatalf("Toggle failed: %v", err)
	}
	if !waitFor(time.Second, func() bool { return len(synth.Texts()) == 1 }) {
		t.Fatal("never started speaking")
	}
	if err := c.Start(context.Background()); !errors.Is(err, ErrSessionActive) {
		t.Errorf("second Start error = %v, want ErrSessionActive", err)
	}

	if err := c.Toggle(context.Background()); err != nil {
		t.Fatalf("Toggle off failed: %v", err)
	}
	c.Stop()
	c.Stop()
	waitSession(t, c)

	if st := c.Status(); st.State != StateIdle || st.Index != -1 {
		t.Errorf("status after stop = %+v", st)
	}
	if got := synth.Texts(); len(got) != 1 {
		t.Errorf("spoken = %q, want only the first segment", got)
	}
}

func TestControllerFixedLayoutAdvancesChapters(t *testing.T) {
	doc := &fakeDocument{pages: [][]string{{"Page one. Still one."}, {"Page two."}}}
	synth := &fakeSynth{voices: []NativeVoice{{Name: "en"}}}

	c := newTestController(t, Dependencies{
		Document:    doc,
		Book:        Book{Key: "pdf", Format: FormatPDF},
		Store:       newFakeStore(),
		Synthesizer: synth,
	}, testConfig())

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitSession(t, c)

	if got := synth.Texts(); !reflect.DeepEqual(got, []string{"Page one. Still one.", "Page two."}) {
		t.Errorf("spoken = %q, want whole blocks", got)
	}
	if len(doc.jumps) == 0 || doc.jumps[0] != 1 {
		t.Errorf("chapter jumps = %v, want to start with 1", doc.jumps)
	}
}

func TestControllerSettings(t *testing.T) {
	store := newFakeStore()
	notices := &noticeRecorder{}
	c := newTestController(t, Dependencies{Document: &fakeDocument{}, Store: store}, testConfig())
	c.OnNotice(notices.record)

	if err := c.SetHighlightEnabled(false); err != nil {
		t.Fatal(err)
	}
	if store.Get(KeyHighlight) != "no" {
		t.Errorf("ttsHighlight = %q, want no", store.Get(KeyHighlight))
	}
	if err := c.SetServerVoice("v9"); err != nil {
		t.Fatal(err)
	}
	if c.Status().ServerVoice != "v9" {
		t.Errorf("server voice = %q, want v9", c.Status().ServerVoice)
	}
	if err := c.SetSpeed(3); err != nil {
		t.Fatal(err)
	}
	if store.Get(KeyVoiceSpeed) != "2" {
		t.Errorf("voiceSpeed = %q, want clamped 2", store.Get(KeyVoiceSpeed))
	}
	if err := c.SetVoiceIndex(2); err != nil {
		t.Fatal(err)
	}
	if store.Get(KeyVoiceIndex) != "2" {
		t.Errorf("voiceIndex = %q", store.Get(KeyVoiceIndex))
	}
	if notices.Count(MsgInAWhile) != 1 || notices.Count(MsgNextStartup) != 1 {
		t.Errorf("notices = %s", joinLines(notices.Messages()))
	}
}

func TestControllerClose(t *testing.T) {
	c, err := NewController(Dependencies{Document: &fakeDocument{}, Store: newFakeStore()}, testConfig())
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
	if err := c.Start(context.Background()); !errors.Is(err, ErrControllerClosed) {
		t.Errorf("Start after Close = %v, want ErrControllerClosed", err)
	}
	if err := c.Init(context.Background()); !errors.Is(err, ErrControllerClosed) {
		t.Errorf("Init after Close = %v, want ErrControllerClosed", err)
	}
}
