package tts

import (
	"context"

	"github.com/charmbracelet/log"
)

// nativeBackend speaks through the on-device synthesizer.
type nativeBackend struct {
	synth  Synthesizer
	logger *log.Logger
}

func (b *nativeBackend) Kind() BackendKind { return BackendNative }

func (b *nativeBackend) Prepare(context.Context, *Session) error { return nil }

func (b *nativeBackend) Finish(context.Context, *Session) {}

func (b *nativeBackend) Speak(ctx context.Context, s *Session, index int) (Outcome, error) {
	text, ok := s.Segment(index)
	if !ok {
		return OutcomeEnd, nil
	}

	b.synth.Cancel()

	m := StartSynthesis(b.logger, BackendNative.String(), text)
	err := b.synth.Speak(ctx, Utterance{
		Text:  SanitizeText(text),
		Voice: s.Resolution.NativeVoice(),
		Rate:  s.Speed,
	})
	m.End(b.logger, 0, false, err)

	if !s.Active() {
		return OutcomeEnd, nil
	}
	if err != nil {
		return OutcomeEnd, NewTTSError(ErrPlaybackFailed, "native", "speak").WithIndex(index)
	}
	return OutcomeContinue, nil
}
