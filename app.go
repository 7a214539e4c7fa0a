package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"

	"github.com/dgnsrekt/readaloud/internal/audio"
	"github.com/dgnsrekt/readaloud/internal/cache"
	"github.com/dgnsrekt/readaloud/internal/native"
	"github.com/dgnsrekt/readaloud/internal/plugin"
	"github.com/dgnsrekt/readaloud/internal/remote"
	"github.com/dgnsrekt/readaloud/internal/store"
	"github.com/dgnsrekt/readaloud/internal/subprocess"
	"github.com/dgnsrekt/readaloud/tts"
)

// nativeTimeout bounds one on-device utterance.
const nativeTimeout = 5 * time.Minute

// engine is a wired reading controller and everything it owns.
type engine struct {
	controller *tts.Controller
	store      *store.Store
	closers    []func() error
}

func storePath() string {
	dirs, err := gap.NewScope(gap.User, "readaloud").DataDirs()
	if err != nil || len(dirs) == 0 {
		return filepath.Join(".readaloud", store.FileName)
	}
	return filepath.Join(dirs[0], store.FileName)
}

// openStore opens the reader preferences file.
func openStore() (*store.Store, error) {
	return store.Open(storePath(), log.Default())
}

// newEngine wires the reading controller for doc. Voice sources that
// cannot start are logged and left out. Plugins are reloaded as they are
// installed until ctx is done.
func newEngine(ctx context.Context, cfg tts.Config, doc tts.Document, book tts.Book, st *store.Store) (*engine, error) {
	logger := log.Default()
	e := &engine{store: st}

	deps := tts.Dependencies{
		Document:    doc,
		Book:        book,
		Store:       st,
		Synthesizer: native.New(cfg.Native, subprocess.NewRunner(nativeTimeout), logger),
		Logger:      logger,
	}

	clips := audio.NewStore()
	player, err := audio.NewPlayer(cfg.Audio, logger)
	if err != nil {
		logger.Warn("No audio output, only on-device voices are available", "err", err)
	} else {
		deps.Sink = clips
		deps.Player = player
		e.closers = append(e.closers, func() error { player.Stop(); return nil })
	}

	if player != nil && cfg.Remote.URL != "" && !cfg.Desktop {
		deps.Remote = remote.NewClient(cfg.Remote, logger)
		if cfg.Cache.Enabled {
			sc, err := cache.NewSpeechCache(cfg.Cache, logger)
			if err != nil {
				logger.Warn("Speech cache disabled", "err", err)
			} else {
				deps.Cache = sc
				e.closers = append(e.closers, sc.Close)
			}
		}
	}

	var renderer *plugin.Renderer
	if player != nil {
		manifests, err := plugin.LoadDir(cfg.Plugin.Dir)
		if err != nil {
			logger.Warn("Some voice packs could not be loaded", "err", err)
		}
		renderer = plugin.NewRenderer(cfg.Plugin.RenderDir, manifests, subprocess.NewRunner(cfg.Plugin.Timeout), clips, player, logger)
		deps.Plugins = renderer
		deps.PluginList = plugin.Plugins(manifests)
		e.closers = append(e.closers, func() error { return renderer.Clear(context.Background()) })
	}

	c, err := tts.NewController(deps, cfg)
	if err != nil {
		return nil, fmt.Errorf("could not create reader: %w", err)
	}
	e.controller = c

	if renderer != nil {
		go func() {
			err := plugin.Watch(ctx, cfg.Plugin.Dir, func(ms []plugin.Manifest) {
				renderer.SetManifests(ms)
				c.SetPlugins(plugin.Plugins(ms))
				log.Info("Voice packs reloaded", "count", len(ms))
			}, logger)
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Warn("Not watching voice packs", "err", err)
			}
		}()
	}

	if err := c.Init(ctx); err != nil {
		_ = e.Close()
		return nil, err
	}
	return e, nil
}

// waitForVoices blocks until the remote voice catalog has loaded or
// failed.
func (e *engine) waitForVoices(ctx context.Context) {
	t := time.NewTicker(50 * time.Millisecond)
	defer t.Stop()
	for e.controller.Status().LoadingVoices {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// Close stops reading and releases the engine.
func (e *engine) Close() error {
	var errs []error
	if e.controller != nil {
		errs = append(errs, e.controller.Close())
	}
	for i := len(e.closers) - 1; i >= 0; i-- {
		errs = append(errs, e.closers[i]())
	}
	return errors.Join(errs...)
}
