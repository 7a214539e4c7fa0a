package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/muesli/reflow/wordwrap"

	"github.com/dgnsrekt/readaloud/tts"
)

// speaker is the part of the reading controller plain mode uses.
type speaker interface {
	StartFrom(ctx context.Context, selection string) error
	Wait(ctx context.Context) error
	Stop()
	Status() tts.Status
	OnStatus(fn func(tts.Status))
	OnNotice(fn func(tts.Notice))
}

// runPlain reads the book without a TUI, printing each segment to w as it
// is spoken. It returns once the book is done or ctx is cancelled.
func runPlain(ctx context.Context, w io.Writer, s speaker, selection string, width int) error {
	var (
		mu   sync.Mutex
		last string
	)
	s.OnStatus(func(st tts.Status) {
		if st.State != tts.StateSpeaking || st.Segment == "" {
			return
		}
		key := fmt.Sprintf("%s/%d", st.SessionID, st.Index)
		mu.Lock()
		defer mu.Unlock()
		if key == last {
			return
		}
		last = key
		text := st.Segment
		if width > 0 {
			text = wordwrap.String(text, width)
		}
		_, _ = fmt.Fprintln(w, text)
	})
	s.OnNotice(func(n tts.Notice) {
		if n.Level >= tts.NoticeWarning {
			_, _ = fmt.Fprintln(os.Stderr, n.Message)
		}
	})

	if err := s.StartFrom(ctx, selection); err != nil {
		return err
	}
	err := s.Wait(ctx)
	s.Stop()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	if err != nil {
		return err
	}
	if lastErr := s.Status().LastError; lastErr != nil {
		log.Warn("Reading ended with an error", "err", lastErr)
	}
	return nil
}
