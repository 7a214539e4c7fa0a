package document

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/dgnsrekt/readaloud/tts"
)

const sample = `# The Book

Opening words with a [link](https://example.com) and ` + "`code`" + `.

## First

Para one
continues here.

- item a
- item b

> quoted text

` + "```go\nfmt.Println(\"hi\")\n```" + `

## Second

| Name | Value |
| ---- | ----- |
| a    | 1     |

Last paragraph.
`

func TestParseMarkdown(t *testing.T) {
	d := New([]byte(sample), Options{Format: tts.FormatMarkdown})

	if got := d.Chapters(); !reflect.DeepEqual(got, []string{"The Book", "First", "Second"}) {
		t.Fatalf("Chapters() = %q", got)
	}
	if d.Title() != "The Book" {
		t.Errorf("Title() = %q", d.Title())
	}

	want := [][]Block{
		{
			{Kind: BlockHeading, Level: 1, Text: "The Book"},
			{Kind: BlockParagraph, Text: "Opening words with a link and code."},
		},
		{
			{Kind: BlockHeading, Level: 2, Text: "First"},
			{Kind: BlockParagraph, Text: "Para one continues here."},
			{Kind: BlockListItem, Text: "item a"},
			{Kind: BlockListItem, Text: "item b"},
			{Kind: BlockQuote, Text: "quoted text"},
		},
		{
			{Kind: BlockHeading, Level: 2, Text: "Second"},
			{Kind: BlockTableRow, Text: "Name, Value"},
			{Kind: BlockTableRow, Text: "a, 1"},
			{Kind: BlockParagraph, Text: "Last paragraph."},
		},
	}
	for i, c := range d.chapters {
		if !reflect.DeepEqual(c.Blocks, want[i]) {
			t.Errorf("chapter %d blocks = %+v\nwant %+v", i, c.Blocks, want[i])
		}
	}
}

func TestParseMarkdownIncludeCode(t *testing.T) {
	d := New([]byte(sample), Options{ParseOptions: ParseOptions{IncludeCode: true}})
	var found bool
	for _, b := range d.chapters[1].Blocks {
		if b.Kind == BlockCode && b.Text == `fmt.Println("hi")` {
			found = true
		}
	}
	if !found {
		t.Errorf("code block missing: %+v", d.chapters[1].Blocks)
	}
}

func TestParsePlain(t *testing.T) {
	src := "First line\nsame paragraph.\n\n\nSecond paragraph.\n\fNext chapter.\n"
	d := New([]byte(src), Options{Format: tts.FormatText})

	if len(d.chapters) != 2 {
		t.Fatalf("chapters = %+v", d.chapters)
	}
	got := texts(d.chapters[0].Blocks)
	if !reflect.DeepEqual(got, []string{"First line same paragraph.", "Second paragraph."}) {
		t.Errorf("blocks = %q", got)
	}
	if texts(d.chapters[1].Blocks)[0] != "Next chapter." {
		t.Errorf("second chapter = %+v", d.chapters[1])
	}
}

func TestPaging(t *testing.T) {
	ctx := context.Background()
	d := New([]byte("a\n\nb\n\nc\n\fd\n"), Options{Format: tts.FormatText, PageSize: 2})

	visible, _ := d.VisibleText(ctx)
	audio, _ := d.AudioText(ctx)
	if !reflect.DeepEqual(visible, []string{"a", "b"}) || !reflect.DeepEqual(audio, []string{"a", "b", "c"}) {
		t.Fatalf("visible = %q, audio = %q", visible, audio)
	}

	if err := d.Next(ctx); err != nil {
		t.Fatal(err)
	}
	audio, _ = d.AudioText(ctx)
	if !reflect.DeepEqual(audio, []string{"c"}) {
		t.Errorf("page 2 audio = %q", audio)
	}
	if pos := d.Position(); pos.ChapterDocIndex != 0 || pos.Page != 1 || pos.Text != "c" {
		t.Errorf("Position() = %+v", pos)
	}

	if err := d.Next(ctx); err != nil {
		t.Fatal(err)
	}
	if pos := d.Position(); pos.ChapterDocIndex != 1 || pos.Page != 0 || pos.Percentage != 0.75 {
		t.Errorf("Position() in chapter 2 = %+v", pos)
	}

	if err := d.Next(ctx); !errors.Is(err, tts.ErrDocumentEnd) {
		t.Errorf("Next past end = %v, want ErrDocumentEnd", err)
	}
	if !d.Finished() {
		t.Error("document not finished after the last page")
	}
	audio, _ = d.AudioText(ctx)
	if len(audio) != 0 {
		t.Errorf("finished document still has text %q", audio)
	}
	if d.Position().Percentage != 1 {
		t.Errorf("finished percentage = %v", d.Position().Percentage)
	}

	if !d.Prev() || d.Finished() {
		t.Error("Prev did not reopen the document")
	}
	if !d.Prev() || d.Position().ChapterDocIndex != 0 || d.Position().Page != 1 {
		t.Errorf("Prev across chapters = %+v", d.Position())
	}
}

func TestGoToChapterIndex(t *testing.T) {
	ctx := context.Background()
	d := New([]byte(sample), Options{})

	var changes int
	d.OnChange(func() { changes++ })

	if err := d.GoToChapterIndex(ctx, 2); err != nil {
		t.Fatal(err)
	}
	if d.Position().ChapterDocIndex != 2 || changes != 1 {
		t.Errorf("position = %+v, changes = %d", d.Position(), changes)
	}
	if err := d.GoToChapterIndex(ctx, 3); !errors.Is(err, tts.ErrDocumentEnd) {
		t.Errorf("GoToChapterIndex past end = %v", err)
	}
	if err := d.GoToChapterIndex(ctx, -1); err == nil {
		t.Error("Expected an error for a negative chapter")
	}
}

func TestHighlightAndSeek(t *testing.T) {
	d := New([]byte(sample), Options{PageSize: 2})

	var seen []string
	d.OnHighlight(func(text, style string) { seen = append(seen, text+"/"+style) })
	d.HighlightAudioNode("Para one continues here.", "reverse")
	d.HighlightAudioNode("", "")
	if !reflect.DeepEqual(seen, []string{"Para one continues here./reverse", "/"}) {
		t.Errorf("highlights = %q", seen)
	}
	if text, style := d.Highlight(); text != "" || style != "" {
		t.Errorf("Highlight() = %q, %q", text, style)
	}

	d.Seek(tts.Position{ChapterDocIndex: 1, Page: 9})
	if pos := d.Position(); pos.ChapterDocIndex != 1 || pos.Page != 2 {
		t.Errorf("clamped seek = %+v", pos)
	}
	d.Seek(tts.Position{ChapterDocIndex: 99})
	if pos := d.Position(); pos.ChapterDocIndex != 2 || pos.Page != 0 {
		t.Errorf("clamped chapter = %+v", pos)
	}
}

func TestEmptyDocument(t *testing.T) {
	ctx := context.Background()
	d := New(nil, Options{})
	if audio, err := d.AudioText(ctx); err != nil || len(audio) != 0 {
		t.Errorf("AudioText() = %q, %v", audio, err)
	}
	if err := d.Next(ctx); !errors.Is(err, tts.ErrDocumentEnd) {
		t.Errorf("Next() = %v, want ErrDocumentEnd", err)
	}
}

func TestOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte("Only text."), 0o644); err != nil {
		t.Fatal(err)
	}
	d, book, err := Open(path, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if book.Format != tts.FormatText || book.Title != "notes.txt" || !filepath.IsAbs(filepath.FromSlash(book.Key)) {
		t.Errorf("book = %+v", book)
	}
	if got, _ := d.VisibleText(context.Background()); !reflect.DeepEqual(got, []string{"Only text."}) {
		t.Errorf("VisibleText() = %q", got)
	}
	if FormatOf("README.MD") != tts.FormatMarkdown {
		t.Error("FormatOf ignored the .md extension")
	}
}

func TestReload(t *testing.T) {
	ctx := context.Background()
	d := New([]byte("a\n\nb\n\nc\n"), Options{Format: tts.FormatText, PageSize: 1})
	_ = d.Next(ctx)
	_ = d.Next(ctx)

	var changes int
	d.OnChange(func() { changes++ })
	d.Reload([]byte("x\n\ny\n"))

	if pos := d.Position(); pos.Page != 1 || pos.Text != "y" {
		t.Errorf("position after shrinking reload = %+v", pos)
	}
	if changes != 1 {
		t.Errorf("changes = %d, want 1", changes)
	}
}

func TestFrontmatterSkipped(t *testing.T) {
	d := New([]byte("---\ntitle: hidden\n---\n# Shown\n\nBody.\n"), Options{})
	if d.Title() != "Shown" {
		t.Errorf("Title() = %q", d.Title())
	}
}
