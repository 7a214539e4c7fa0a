package tts

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
)

// SpeechCache stores generated audio across sessions.
type SpeechCache interface {
	Get(text, voice string, speed float64) (SpeechAudio, bool)
	Put(text, voice string, speed float64, audio SpeechAudio) error
}

// speechRequester turns segment text into playable remote audio.
type speechRequester struct {
	remote  RemoteService
	sink    AudioSink
	catalog *Catalog
	cache   SpeechCache
	logger  *log.Logger
}

// RequestAudio generates audio for text with the selected server voice.
// The text is sanitised before it is sent or used as a cache key.
func (r *speechRequester) RequestAudio(ctx context.Context, text string, speed float64) (Resource, error) {
	text = SanitizeText(text)
	voice := r.catalog.SelectedVoice()
	if voice == "" {
		return nil, ErrNoVoiceSelected
	}

	m := StartSynthesis(r.logger, BackendServer.String(), text)

	if r.cache != nil {
		if audio, ok := r.cache.Get(text, voice, speed); ok {
			res, err := r.sink.Open(audio.Data, audio.MimeType)
			if err == nil {
				m.End(r.logger, len(audio.Data), true, nil)
				return res, nil
			}
			r.logger.Warn("Discarding unreadable cached audio", "err", err)
		}
	}

	audio, err := r.remote.Speak(ctx, SpeakRequest{Text: text, Voice: voice, Speed: speed})
	if err != nil {
		m.End(r.logger, 0, false, err)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w", ErrSpeechGenerationFailed, err)
	}
	if audio.MimeType == "" {
		audio.MimeType = "audio/wav"
	}

	res, err := r.sink.Open(audio.Data, audio.MimeType)
	if err != nil {
		m.End(r.logger, len(audio.Data), false, err)
		return nil, fmt.Errorf("%w: %w", ErrSpeechGenerationFailed, err)
	}
	m.End(r.logger, len(audio.Data), false, nil)

	if r.cache != nil {
		if err := r.cache.Put(text, voice, speed, audio); err != nil {
			r.logger.Debug("Could not cache audio", "err", err)
		}
	}
	return res, nil
}

// serverBackend plays remote audio with one segment of read-ahead.
type serverBackend struct {
	prefetch  *Prefetcher
	resources *ResourceManager
	player    Player
	logger    *log.Logger
	notify    func(Notice)
	wg        *sync.WaitGroup
}

func (b *serverBackend) Kind() BackendKind { return BackendServer }

func (b *serverBackend) Prepare(context.Context, *Session) error { return nil }

func (b *serverBackend) Finish(context.Context, *Session) {}

func (b *serverBackend) Speak(ctx context.Context, s *Session, index int) (Outcome, error) {
	res, err := b.prefetch.Prefetch(ctx, s, index, s.Speed)
	for errors.Is(err, errPrefetchReset) && s.Active() {
		// The voice changed while generating; ask again with the new one.
		b.logger.Debug("Regenerating after reset", "index", index)
		res, err = b.prefetch.Prefetch(ctx, s, index, s.Speed)
	}
	if !s.Active() {
		return OutcomeEnd, nil
	}
	if err != nil || res == nil {
		return OutcomeEnd, b.generationFailed(index, err)
	}

	// The playing handle belongs to the resource manager from here on.
	b.prefetch.Evict(index, res)
	b.resources.ReleaseSession(s)
	pb, err := b.player.Start(res)
	if err != nil {
		_ = res.Release()
		if !s.Active() {
			return OutcomeEnd, nil
		}
		return OutcomeEnd, NewTTSError(errors.Join(ErrPlaybackFailed, err), "server", "play").WithIndex(index)
	}
	if !b.resources.SetActive(s, index, res, pb) {
		return OutcomeEnd, nil
	}

	b.wg.Add(1)
	go b.readAhead(s, index+1)

	select {
	case <-pb.Done():
	case <-ctx.Done():
		b.resources.ReleaseSession(s)
		return OutcomeEnd, nil
	}
	b.resources.ReleaseSession(s)

	if !s.Active() {
		return OutcomeEnd, nil
	}
	if err := pb.Err(); err != nil {
		b.logger.Error("Playback failed", "index", index, "err", err)
		return OutcomeEnd, NewTTSError(errors.Join(ErrPlaybackFailed, err), "server", "play").WithIndex(index)
	}
	return OutcomeContinue, nil
}

func (b *serverBackend) readAhead(s *Session, index int) {
	defer b.wg.Done()
	_, err := b.prefetch.Prefetch(s.Context(), s, index, s.Speed)
	if err != nil && !errors.Is(err, errPrefetchReset) && s.Active() {
		b.logger.Debug("Read-ahead failed", "index", index, "err", err)
	}
}

// generationFailed reports a foreground failure to the reader once.
func (b *serverBackend) generationFailed(index int, err error) error {
	if err == nil {
		err = ErrSpeechGenerationFailed
	}
	msg := MsgSpeechFailed
	if errors.Is(err, ErrNoVoiceSelected) {
		msg = MsgNoVoiceSelected
	}
	b.notify(Notice{Level: NoticeError, Message: msg, Err: err})
	return NewTTSError(err, "server", "generate").WithIndex(index)
}
