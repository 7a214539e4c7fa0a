package plugin

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/readaloud/internal/audio"
	"github.com/dgnsrekt/readaloud/internal/subprocess"
	"github.com/dgnsrekt/readaloud/tts"
)

// renderMime is the encoding plugins are expected to write.
const renderMime = "audio/wav"

// errStale is returned for renders that outlived their render set.
var errStale = errors.New("render set replaced")

// slot is one rendered segment. A failed render keeps an empty path so
// later segments stay aligned with the queue.
type slot struct {
	path string
	done bool
	err  error
}

// Renderer implements tts.PluginVoices by running plugin commands into
// numbered wav files and playing them back.
type Renderer struct {
	runner *subprocess.Runner
	store  *audio.Store
	player tts.Player
	dir    string
	logger *log.Logger

	mu        sync.Mutex
	manifests map[string]Manifest
	gen       uint64
	genCtx    context.Context
	cancelGen context.CancelFunc
	slots     []slot
	changed   chan struct{}
	playing   tts.Playback
}

// NewRenderer creates a renderer writing under dir.
func NewRenderer(dir string, manifests []Manifest, runner *subprocess.Runner, store *audio.Store, player tts.Player, logger *log.Logger) *Renderer {
	if logger == nil {
		logger = log.Default()
	}
	if runner == nil {
		runner = subprocess.NewRunner(0)
	}
	genCtx, cancel := context.WithCancel(context.Background())
	r := &Renderer{
		runner:    runner,
		store:     store,
		player:    player,
		dir:       dir,
		logger:    logger.WithPrefix("plugin"),
		genCtx:    genCtx,
		cancelGen: cancel,
		changed:   make(chan struct{}),
	}
	r.SetManifests(manifests)
	return r
}

// SetManifests replaces the installed plugins.
func (r *Renderer) SetManifests(manifests []Manifest) {
	byKey := make(map[string]Manifest, len(manifests))
	for _, m := range manifests {
		byKey[m.Key] = m
	}
	r.mu.Lock()
	r.manifests = byKey
	r.mu.Unlock()
}

// VoiceList flattens the voices of voice plugins in order.
func (r *Renderer) VoiceList(plugins []tts.Plugin) []tts.Voice {
	var voices []tts.Voice
	for _, p := range plugins {
		if p.Type != tts.PluginTypeVoice {
			continue
		}
		for _, v := range p.Voices {
			if v.Plugin == "" {
				v.Plugin = p.Key
			}
			voices = append(voices, v)
		}
	}
	return voices
}

// SetAudioPaths starts a fresh render set. Renders still running for the
// previous set are cancelled and their files discarded.
func (r *Renderer) SetAudioPaths() {
	genCtx, cancel := context.WithCancel(context.Background())

	r.mu.Lock()
	r.cancelGen()
	r.gen++
	r.genCtx, r.cancelGen = genCtx, cancel
	r.slots = nil
	r.broadcastLocked()
	r.mu.Unlock()
}

// CacheAudio renders texts in order and appends them to the current set.
// A failed render is recorded and rendering continues; the first error is
// returned once every text has been tried.
func (r *Renderer) CacheAudio(ctx context.Context, texts []string, voiceIndex int, speedOffset float64, plugins []tts.Plugin) error {
	voice, m, err := r.lookup(plugins, voiceIndex)
	if err != nil {
		return err
	}

	r.mu.Lock()
	gen, genCtx := r.gen, r.genCtx
	r.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(genCtx, cancel)
	defer stop()

	var firstErr error
	for _, text := range texts {
		if err := ctx.Err(); err != nil {
			return err
		}
		index, ok := r.reserve(gen)
		if !ok {
			return errStale
		}

		path, err := r.render(ctx, m, voice, text, speedOffset, gen, index)
		if err != nil && ctx.Err() == nil {
			r.logger.Warn("Render failed", "plugin", m.Key, "index", index, "err", err)
			if firstErr == nil {
				firstErr = err
			}
		}
		if !r.complete(gen, index, path, err) && path != "" {
			_ = os.Remove(path)
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return firstErr
}

// AudioPaths returns the rendered files in order, up to the first segment
// still rendering. Failed renders appear as empty paths.
func (r *Renderer) AudioPaths() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var paths []string
	for _, s := range r.slots {
		if !s.done {
			break
		}
		paths = append(paths, s.path)
	}
	return paths
}

// WaitAudio blocks until the segment at index has been rendered.
func (r *Renderer) WaitAudio(ctx context.Context, index int) error {
	for {
		r.mu.Lock()
		if index < len(r.slots) && r.slots[index].done {
			s := r.slots[index]
			r.mu.Unlock()
			if s.err != nil {
				return errors.Join(tts.ErrAudioLoad, s.err)
			}
			return nil
		}
		changed := r.changed
		r.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// ReadAloud plays the rendered file for index until it ends or ctx is done.
func (r *Renderer) ReadAloud(ctx context.Context, index int) error {
	r.mu.Lock()
	var path string
	if index >= 0 && index < len(r.slots) && r.slots[index].done {
		path = r.slots[index].path
	}
	r.mu.Unlock()
	if path == "" {
		return fmt.Errorf("%w: segment %d was not rendered", tts.ErrAudioLoad, index)
	}

	clip, err := r.store.OpenFile(path, renderMime)
	if err != nil {
		return err
	}
	defer clip.Release()

	pb, err := r.player.Start(clip)
	if err != nil {
		if errors.Is(err, tts.ErrAudioLoad) {
			return err
		}
		return errors.Join(tts.ErrAudioLoad, err)
	}

	r.mu.Lock()
	r.playing = pb
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		if r.playing == pb {
			r.playing = nil
		}
		r.mu.Unlock()
	}()

	select {
	case <-pb.Done():
		if err := pb.Err(); err != nil {
			return err
		}
		r.mu.Lock()
		paused := r.playing != pb
		r.mu.Unlock()
		if paused {
			return tts.ErrPlaybackStopped
		}
		return nil
	case <-ctx.Done():
		pb.Stop()
		return ctx.Err()
	}
}

// Pause stops the file being played.
func (r *Renderer) Pause() {
	r.mu.Lock()
	pb := r.playing
	r.playing = nil
	r.mu.Unlock()
	if pb != nil {
		pb.Stop()
	}
}

// Clear cancels outstanding renders and removes every rendered file.
func (r *Renderer) Clear(context.Context) error {
	r.SetAudioPaths()
	entries, err := os.ReadDir(r.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	r.mu.Lock()
	current := r.setDir(r.gen)
	r.mu.Unlock()

	var errs []error
	for _, e := range entries {
		path := filepath.Join(r.dir, e.Name())
		if path == current {
			continue
		}
		if err := os.RemoveAll(path); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Renderer) lookup(plugins []tts.Plugin, voiceIndex int) (tts.Voice, Manifest, error) {
	voices := r.VoiceList(plugins)
	if len(voices) == 0 {
		return tts.Voice{}, Manifest{}, tts.ErrVoiceUnavailable
	}
	if voiceIndex < 0 || voiceIndex >= len(voices) {
		r.logger.Warn("Voice index out of range, using the first voice", "index", voiceIndex, "voices", len(voices))
		voiceIndex = 0
	}
	voice := voices[voiceIndex]

	r.mu.Lock()
	m, ok := r.manifests[voice.Plugin]
	r.mu.Unlock()
	if !ok {
		return tts.Voice{}, Manifest{}, fmt.Errorf("%w: plugin %q is not installed", tts.ErrVoiceUnavailable, voice.Plugin)
	}
	return voice, m, nil
}

// reserve claims the next slot in set gen.
func (r *Renderer) reserve(gen uint64) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gen != gen {
		return 0, false
	}
	r.slots = append(r.slots, slot{})
	return len(r.slots) - 1, true
}

// complete records a finished render. It reports false when set gen was
// replaced meanwhile.
func (r *Renderer) complete(gen uint64, index int, path string, err error) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gen != gen {
		return false
	}
	if err != nil {
		path = ""
	}
	r.slots[index] = slot{path: path, done: true, err: err}
	r.broadcastLocked()
	return true
}

func (r *Renderer) render(ctx context.Context, m Manifest, voice tts.Voice, text string, speedOffset float64, gen uint64, index int) (string, error) {
	dir := r.setDir(gen)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	out := filepath.Join(dir, fmt.Sprintf("audio_%04d.wav", index))
	part := out + ".part"

	vars := map[string]string{
		"voice":  voice.ID,
		"output": part,
		"speed":  strconv.FormatFloat(speedOffset, 'f', -1, 64),
		"rate":   strconv.FormatFloat(1+speedOffset/100, 'f', 2, 64),
		"length": strconv.FormatFloat(100/(100+speedOffset), 'f', 2, 64),
		"text":   "",
	}
	input := text
	if m.Input == InputArg {
		vars["text"] = text
		input = ""
	}

	if _, err := r.runner.RunIn(ctx, m.Dir, input, subprocess.Expand(m.Command, vars)); err != nil {
		_ = os.Remove(part)
		return "", err
	}
	info, err := os.Stat(part)
	if err != nil || info.Size() == 0 {
		_ = os.Remove(part)
		return "", fmt.Errorf("plugin %s wrote no audio", m.Key)
	}
	if err := os.Rename(part, out); err != nil {
		_ = os.Remove(part)
		return "", err
	}
	return out, nil
}

func (r *Renderer) setDir(gen uint64) string {
	return filepath.Join(r.dir, fmt.Sprintf("set-%d", gen))
}

func (r *Renderer) broadcastLocked() {
	close(r.changed)
	r.changed = make(chan struct{})
}
