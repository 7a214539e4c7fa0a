// Package native speaks through an on-device synthesizer command such as
// espeak-ng or say.
package native

import (
	"context"
	"errors"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/readaloud/internal/subprocess"
	"github.com/dgnsrekt/readaloud/tts"
)

// baseWordsPerMinute is the synthesizer rate at speed 1.
const baseWordsPerMinute = 175

// Synthesizer implements tts.Synthesizer by running a command per
// utterance. Only one utterance runs at a time.
type Synthesizer struct {
	command []string
	voices  []string
	runner  *subprocess.Runner
	logger  *log.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	seq    uint64
}

// New creates a synthesizer from cfg. Command arguments may use the
// {text}, {voice} and {rate} placeholders.
func New(cfg tts.NativeConfig, runner *subprocess.Runner, logger *log.Logger) *Synthesizer {
	if logger == nil {
		logger = log.Default()
	}
	if runner == nil {
		runner = subprocess.NewRunner(0)
	}
	command := cfg.Command
	if len(command) == 0 {
		command = tts.DefaultNativeCommand
	}
	return &Synthesizer{
		command: command,
		voices:  cfg.Voices,
		runner:  runner,
		logger:  logger.WithPrefix("native"),
	}
}

// Voices lists the configured voices. It is empty when the command is not
// installed.
func (s *Synthesizer) Voices(context.Context) ([]tts.NativeVoice, error) {
	if err := subprocess.CheckBinary(s.command[0]); err != nil {
		return nil, err
	}
	voices := make([]tts.NativeVoice, 0, len(s.voices))
	for _, v := range s.voices {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		lang, _, _ := strings.Cut(v, "+")
		voices = append(voices, tts.NativeVoice{Name: v, Lang: lang})
	}
	return voices, nil
}

// Speak runs the command for u and blocks until it exits.
func (s *Synthesizer) Speak(ctx context.Context, u tts.Utterance) error {
	if strings.TrimSpace(u.Text) == "" {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.seq++
	seq := s.seq
	s.cancel = cancel
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if s.seq == seq {
			s.cancel = nil
		}
		s.mu.Unlock()
		cancel()
	}()

	argv := subprocess.Expand(s.command, map[string]string{
		"text":  u.Text,
		"voice": u.Voice.Name,
		"rate":  strconv.Itoa(WordsPerMinute(u.Rate)),
	})
	s.logger.Debug("Speaking", "voice", u.Voice.Name, "rate", u.Rate, "chars", len(u.Text))

	_, err := s.runner.Run(ctx, "", argv)
	if errors.Is(err, subprocess.ErrCancelled) {
		return context.Canceled
	}
	return err
}

// Cancel kills the utterance in progress.
func (s *Synthesizer) Cancel() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// WordsPerMinute converts a rate multiplier to the synthesizer's rate.
func WordsPerMinute(rate float64) int {
	if rate <= 0 {
		rate = tts.DefaultSpeed
	}
	return int(math.Round(baseWordsPerMinute * rate))
}
