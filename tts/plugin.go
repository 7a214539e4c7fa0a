package tts

import (
	"context"
	"errors"
	"sync"

	"github.com/charmbracelet/log"
)

// pluginBackend plays files pre-rendered by a voice pack. The first file
// is rendered before reading starts, the rest in the background.
type pluginBackend struct {
	plugins PluginVoices
	list    []Plugin
	logger  *log.Logger
	notify  func(Notice)
	wg      *sync.WaitGroup
}

func (b *pluginBackend) Kind() BackendKind { return BackendPlugin }

func (b *pluginBackend) Prepare(ctx context.Context, s *Session) error {
	queue := s.Queue()
	if len(queue) == 0 {
		return nil
	}

	voice := s.Resolution.PluginVoiceIndex()
	offset := PluginSpeedOffset(s.Speed)

	b.plugins.SetAudioPaths()
	if err := b.plugins.CacheAudio(ctx, queue[:1], voice, offset, b.list); err != nil {
		if !s.Active() {
			return nil
		}
		b.notify(Notice{Level: NoticeError, Message: MsgSpeechFailed, Err: err})
		return NewTTSError(errors.Join(ErrSpeechGenerationFailed, err), "plugin", "render").WithIndex(0)
	}

	if len(queue) > 1 {
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			if err := b.plugins.CacheAudio(ctx, queue[1:], voice, offset, b.list); err != nil && s.Active() {
				b.logger.Warn("Background render failed", "session", s.ID, "err", err)
			}
		}()
	}
	return nil
}

func (b *pluginBackend) Speak(ctx context.Context, s *Session, index int) (Outcome, error) {
	if err := b.plugins.WaitAudio(ctx, index); err != nil {
		if !s.Active() {
			return OutcomeEnd, nil
		}
		if errors.Is(err, ErrAudioLoad) {
			b.logger.Warn("Skipping unrendered segment", "index", index, "err", err)
			return OutcomeContinue, nil
		}
		return OutcomeEnd, NewTTSError(err, "plugin", "wait").WithIndex(index)
	}

	err := b.plugins.ReadAloud(ctx, index)

	// Only this first result decides the outcome.
	if !s.Active() {
		return OutcomeEnd, nil
	}
	switch {
	case err == nil:
		return OutcomeContinue, nil
	case errors.Is(err, ErrPlaybackStopped):
		return OutcomeEnd, nil
	case errors.Is(err, ErrAudioLoad):
		b.logger.Warn("Could not load rendered audio", "index", index, "err", err)
		return OutcomeContinue, nil
	default:
		return OutcomeEnd, NewTTSError(errors.Join(ErrPlaybackFailed, err), "plugin", "play").WithIndex(index)
	}
}

func (b *pluginBackend) Finish(ctx context.Context, s *Session) {
	if err := b.plugins.Clear(ctx); err != nil {
		b.logger.Warn("Could not clear rendered audio", "session", s.ID, "err", err)
	}
}
