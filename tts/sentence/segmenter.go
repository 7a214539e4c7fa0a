package sentence

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/text/cases"
)

var (
	// ErrDocumentEnd is returned by a Source that cannot move any further.
	ErrDocumentEnd = errors.New("end of document")
	// ErrDocumentExhausted is returned when no speakable text remains.
	ErrDocumentExhausted = errors.New("no readable text left in document")
)

// DefaultMaxEmptyAdvances bounds how many empty pages Build skips.
const DefaultMaxEmptyAdvances = 64

// Source is the part of a document the segmenter reads from.
type Source interface {
	// AudioText returns the blocks from the reading position onward.
	AudioText(ctx context.Context) ([]string, error)
	// Next moves to the next page or section.
	Next(ctx context.Context) error
	// GoToChapterIndex jumps to a chapter of a fixed-layout document.
	GoToChapterIndex(ctx context.Context, index int) error
	// ChapterIndex reports the chapter being read.
	ChapterIndex() int
}

// Options controls how a queue is built.
type Options struct {
	// Split breaks blocks into sentences. Fixed-layout documents are read
	// one block at a time.
	Split bool
	// DoublePage advances two chapters at a time when Split is false.
	DoublePage bool
	// Selection restarts reading from the segment containing it.
	Selection string
	// Delay waits before text is fetched, for paged transitions.
	Delay time.Duration
	// MaxEmptyAdvances bounds the empty-page skipping loop.
	MaxEmptyAdvances int
}

// Segmenter turns document text into a queue of segments.
type Segmenter struct {
	parser *Parser
}

// NewSegmenter returns a Segmenter using the default parser.
func NewSegmenter() *Segmenter {
	return &Segmenter{
		parser: NewParser(),
	}
}

// Build returns the next non-empty segment queue, advancing the source past
// empty pages.
func (s *Segmenter) Build(ctx context.Context, src Source, opts Options) ([]string, error) {
	limit := opts.MaxEmptyAdvances
	if limit <= 0 {
		limit = DefaultMaxEmptyAdvances
	}

	for attempt := 0; ; attempt++ {
		if opts.Delay > 0 {
			t := time.NewTimer(opts.Delay)
			select {
			case <-ctx.Done():
				t.Stop()
				return nil, ctx.Err()
			case <-t.C:
			}
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		blocks, err := src.AudioText(ctx)
		if err != nil {
			return nil, err
		}

		queue := s.Segments(blocks, opts.Split)
		queue = s.FromSelection(queue, opts.Selection)
		if len(queue) > 0 {
			return queue, nil
		}

		if attempt >= limit {
			return nil, ErrDocumentExhausted
		}
		if err := s.advance(ctx, src, opts); err != nil {
			if errors.Is(err, ErrDocumentEnd) {
				return nil, ErrDocumentExhausted
			}
			return nil, err
		}
	}
}

// Segments drops blank blocks and, when split is set, breaks the rest into
// sentences.
func (s *Segmenter) Segments(blocks []string, split bool) []string {
	var queue []string
	for _, block := range blocks {
		if strings.TrimSpace(block) == "" {
			continue
		}
		if !split {
			queue = append(queue, block)
			continue
		}
		queue = append(queue, s.parser.Split(block)...)
	}
	return queue
}

// FromSelection truncates queue to start at the first segment containing
// selection. Matching ignores case and runs of whitespace.
func (s *Segmenter) FromSelection(queue []string, selection string) []string {
	needle := s.Normalize(selection)
	if needle == "" {
		return queue
	}
	for i, seg := range queue {
		if strings.Contains(s.Normalize(seg), needle) {
			if i > 0 {
				return queue[i:]
			}
			return queue
		}
	}
	return queue
}

// LastVisible returns the segment that closes the visible page: the last
// sentence of the last non-blank block, or the whole block when split is
// false.
func (s *Segmenter) LastVisible(visible []string, split bool) string {
	for i := len(visible) - 1; i >= 0; i-- {
		block := strings.TrimSpace(visible[i])
		if block == "" {
			continue
		}
		if !split {
			return visible[i]
		}
		return s.parser.LastSentence(block)
	}
	return ""
}

// Normalize collapses whitespace and case-folds text for comparison.
func (s *Segmenter) Normalize(text string) string {
	return cases.Fold().String(strings.Join(strings.Fields(text), " "))
}

func (s *Segmenter) advance(ctx context.Context, src Source, opts Options) error {
	if opts.Split {
		return src.Next(ctx)
	}
	step := 1
	if opts.DoublePage {
		step = 2
	}
	return src.GoToChapterIndex(ctx, src.ChapterIndex()+step)
}
