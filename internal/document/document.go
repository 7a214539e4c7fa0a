// Package document pages a markdown or plain-text book for reading aloud.
package document

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dgnsrekt/readaloud/tts"
	"github.com/dgnsrekt/readaloud/utils"
)

// DefaultPageSize is the number of blocks on a page.
const DefaultPageSize = 8

// Options configures a Document.
type Options struct {
	Format   string // tts.FormatMarkdown or tts.FormatText
	PageSize int
	ParseOptions
}

// Document holds a parsed book and a reading position. It implements
// tts.Document.
type Document struct {
	opts Options

	mu          sync.Mutex
	chapters    []Chapter
	pageSize    int
	total       int
	chapter     int
	page        int
	finished    bool
	highlight   string
	style       string
	onHighlight func(text, style string)
	onChange    func()
}

// New parses source.
func New(source []byte, opts Options) *Document {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.ChapterLevel == 0 {
		opts.ChapterLevel = 2
	}

	d := &Document{opts: opts, pageSize: opts.PageSize}
	d.load(source)
	return d
}

// Reload replaces the text with a fresh parse of source, keeping the
// reading position where the new text allows.
func (d *Document) Reload(source []byte) {
	d.mu.Lock()
	d.load(source)
	if len(d.chapters) == 0 {
		d.chapter, d.page = 0, 0
	} else {
		d.chapter = min(d.chapter, len(d.chapters)-1)
		d.page = min(d.page, d.pagesLocked(d.chapter)-1)
	}
	d.finished = false
	fn := d.onChange
	d.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (d *Document) load(source []byte) {
	if d.opts.Format == tts.FormatText {
		d.chapters = parsePlain(source)
	} else {
		d.chapters = parseMarkdown(utils.RemoveFrontmatter(source), d.opts.ParseOptions)
	}
	d.total = 0
	for _, c := range d.chapters {
		d.total += len(c.Blocks)
	}
}

// Open reads and parses the file at path. The format follows the
// extension unless opts sets one.
func Open(path string, opts Options) (*Document, tts.Book, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, tts.Book{}, err
	}
	if opts.Format == "" {
		opts.Format = FormatOf(path)
	}
	d := New(data, opts)
	book := tts.Book{
		Key:    BookKey(path),
		Title:  d.Title(),
		Format: opts.Format,
	}
	if book.Title == "" {
		book.Title = filepath.Base(path)
	}
	return d, book, nil
}

// FormatOf guesses a book format from a file name.
func FormatOf(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown", ".mdown", ".mkdn", ".mkd":
		return tts.FormatMarkdown
	default:
		return tts.FormatText
	}
}

// BookKey identifies a book across runs by its absolute path.
func BookKey(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return filepath.ToSlash(path)
}

// OnHighlight registers a callback for highlight changes.
func (d *Document) OnHighlight(fn func(text, style string)) {
	d.mu.Lock()
	d.onHighlight = fn
	d.mu.Unlock()
}

// OnChange registers a callback for page turns.
func (d *Document) OnChange(fn func()) {
	d.mu.Lock()
	d.onChange = fn
	d.mu.Unlock()
}

// Title returns the first chapter title.
func (d *Document) Title() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, c := range d.chapters {
		if c.Title != "" {
			return c.Title
		}
	}
	return ""
}

// Chapters returns the chapter titles.
func (d *Document) Chapters() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	titles := make([]string, len(d.chapters))
	for i, c := range d.chapters {
		titles[i] = c.Title
	}
	return titles
}

// Pages returns how many pages chapter has.
func (d *Document) Pages(chapter int) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pagesLocked(chapter)
}

func (d *Document) pagesLocked(chapter int) int {
	if chapter < 0 || chapter >= len(d.chapters) {
		return 0
	}
	n := len(d.chapters[chapter].Blocks)
	return max(1, (n+d.pageSize-1)/d.pageSize)
}

// CurrentPage returns the blocks on screen.
func (d *Document) CurrentPage() []Block {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pageLocked()
}

// AudioText returns the text from the current page to the end of the
// chapter.
func (d *Document) AudioText(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.finished || d.chapter >= len(d.chapters) {
		return nil, nil
	}
	blocks := d.chapters[d.chapter].Blocks
	start := min(d.page*d.pageSize, len(blocks))
	return texts(blocks[start:]), nil
}

// VisibleText returns the text of the current page.
func (d *Document) VisibleText(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.finished {
		return nil, nil
	}
	return texts(d.pageLocked()), nil
}

// HighlightAudioNode records the segment being spoken.
func (d *Document) HighlightAudioNode(text, style string) {
	d.mu.Lock()
	d.highlight, d.style = text, style
	fn := d.onHighlight
	d.mu.Unlock()
	if fn != nil {
		fn(text, style)
	}
}

// Highlight returns the segment being spoken and its style.
func (d *Document) Highlight() (text, style string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.highlight, d.style
}

// Next turns to the next page, moving into the next chapter at the end of
// one. Past the last page the document is finished and ErrDocumentEnd is
// returned.
func (d *Document) Next(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	switch {
	case d.finished || len(d.chapters) == 0:
		d.finished = true
		d.mu.Unlock()
		return tts.ErrDocumentEnd
	case d.page+1 < d.pagesLocked(d.chapter):
		d.page++
	case d.chapter+1 < len(d.chapters):
		d.chapter++
		d.page = 0
	default:
		d.finished = true
		d.mu.Unlock()
		return tts.ErrDocumentEnd
	}
	fn := d.onChange
	d.mu.Unlock()
	if fn != nil {
		fn()
	}
	return nil
}

// Prev turns back one page.
func (d *Document) Prev() bool {
	d.mu.Lock()
	switch {
	case d.finished:
		d.finished = false
	case d.page > 0:
		d.page--
	case d.chapter > 0:
		d.chapter--
		d.page = d.pagesLocked(d.chapter) - 1
	default:
		d.mu.Unlock()
		return false
	}
	fn := d.onChange
	d.mu.Unlock()
	if fn != nil {
		fn()
	}
	return true
}

// GoToChapterIndex jumps to the first page of a chapter.
func (d *Document) GoToChapterIndex(ctx context.Context, index int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if index < 0 {
		return errors.New("chapter index must not be negative")
	}
	d.mu.Lock()
	if index >= len(d.chapters) {
		d.finished = true
		d.mu.Unlock()
		return tts.ErrDocumentEnd
	}
	d.chapter, d.page, d.finished = index, 0, false
	fn := d.onChange
	d.mu.Unlock()
	if fn != nil {
		fn()
	}
	return nil
}

// Position reports the reading position.
func (d *Document) Position() tts.Position {
	d.mu.Lock()
	defer d.mu.Unlock()

	pos := tts.Position{ChapterDocIndex: d.chapter, Page: d.page}
	if page := d.pageLocked(); len(page) > 0 {
		pos.Text = preview(page[0].Text)
	}
	if d.total > 0 {
		read := 0
		for i := 0; i < d.chapter && i < len(d.chapters); i++ {
			read += len(d.chapters[i].Blocks)
		}
		if d.chapter < len(d.chapters) {
			read += min(d.page*d.pageSize, len(d.chapters[d.chapter].Blocks))
		}
		if d.finished {
			read = d.total
		}
		pos.Percentage = float64(read) / float64(d.total)
	}
	return pos
}

// Seek restores a saved position. Out-of-range positions are clamped.
func (d *Document) Seek(pos tts.Position) {
	d.mu.Lock()
	if len(d.chapters) > 0 {
		d.chapter = min(max(pos.ChapterDocIndex, 0), len(d.chapters)-1)
		d.page = min(max(pos.Page, 0), d.pagesLocked(d.chapter)-1)
	}
	d.finished = false
	fn := d.onChange
	d.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Finished reports whether reading ran past the last page.
func (d *Document) Finished() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.finished
}

func (d *Document) pageLocked() []Block {
	if d.finished || d.chapter >= len(d.chapters) {
		return nil
	}
	blocks := d.chapters[d.chapter].Blocks
	start := min(d.page*d.pageSize, len(blocks))
	end := min(start+d.pageSize, len(blocks))
	return blocks[start:end]
}

func texts(blocks []Block) []string {
	out := make([]string, len(blocks))
	for i, b := range blocks {
		out[i] = b.Text
	}
	return out
}

func preview(s string) string {
	const n = 60
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
