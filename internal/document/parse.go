package document

import (
	"bufio"
	"bytes"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
)

// BlockKind identifies what a block was in the source.
type BlockKind int

const (
	BlockParagraph BlockKind = iota
	BlockHeading
	BlockListItem
	BlockQuote
	BlockCode
	BlockTableRow
)

// Block is one readable unit of a page.
type Block struct {
	Kind  BlockKind
	Level int // heading level
	Text  string
}

// Chapter is a titled run of blocks.
type Chapter struct {
	Title  string
	Blocks []Block
}

// ParseOptions controls how source text becomes blocks.
type ParseOptions struct {
	// IncludeCode keeps code blocks as readable blocks.
	IncludeCode bool
	// ChapterLevel is the deepest heading level that starts a chapter.
	ChapterLevel int
}

var urlInParens = regexp.MustCompile(`\(https?://[^)]+\)`)

// parseMarkdown walks the goldmark AST and groups blocks into chapters.
func parseMarkdown(source []byte, opts ParseOptions) []Chapter {
	md := goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
	)
	doc := md.Parser().Parse(text.NewReader(source))

	b := &chapterBuilder{level: opts.ChapterLevel}
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n := n.(type) {
		case *ast.Heading:
			b.heading(n.Level, extractText(n, source))
			return ast.WalkSkipChildren, nil

		case *ast.Paragraph, *ast.TextBlock:
			kind := BlockParagraph
			if inside[*ast.Blockquote](n) {
				kind = BlockQuote
			} else if inside[*ast.ListItem](n) {
				kind = BlockListItem
			}
			b.add(Block{Kind: kind, Text: extractText(n, source)})
			return ast.WalkSkipChildren, nil

		case *ast.FencedCodeBlock, *ast.CodeBlock:
			if opts.IncludeCode {
				b.add(Block{Kind: BlockCode, Text: codeLines(n, source)})
			}
			return ast.WalkSkipChildren, nil

		case *east.TableRow, *east.TableHeader:
			var cells []string
			for c := n.FirstChild(); c != nil; c = c.NextSibling() {
				if t := extractText(c, source); t != "" {
					cells = append(cells, t)
				}
			}
			b.add(Block{Kind: BlockTableRow, Text: strings.Join(cells, ", ")})
			return ast.WalkSkipChildren, nil

		case *ast.HTMLBlock:
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return b.finish()
}

// parsePlain splits text into paragraphs at blank lines. A form feed
// starts a new chapter.
func parsePlain(source []byte) []Chapter {
	b := &chapterBuilder{}
	var para []string
	flush := func() {
		if len(para) > 0 {
			b.add(Block{Kind: BlockParagraph, Text: strings.Join(para, " ")})
			para = nil
		}
	}

	sc := bufio.NewScanner(bytes.NewReader(source))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := sc.Text()
		for strings.HasPrefix(line, "\f") {
			flush()
			b.breakChapter()
			line = line[1:]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			flush()
			continue
		}
		para = append(para, line)
	}
	flush()
	return b.finish()
}

type chapterBuilder struct {
	level    int
	chapters []Chapter
	current  *Chapter
}

func (b *chapterBuilder) heading(level int, title string) {
	if b.level > 0 && level <= b.level {
		b.breakChapter()
		b.current = &Chapter{Title: title}
	}
	b.add(Block{Kind: BlockHeading, Level: level, Text: title})
}

func (b *chapterBuilder) add(block Block) {
	block.Text = strings.TrimSpace(block.Text)
	if block.Text == "" {
		return
	}
	if b.current == nil {
		b.current = &Chapter{}
	}
	b.current.Blocks = append(b.current.Blocks, block)
}

func (b *chapterBuilder) breakChapter() {
	if b.current != nil && len(b.current.Blocks) > 0 {
		b.chapters = append(b.chapters, *b.current)
	}
	b.current = nil
}

func (b *chapterBuilder) finish() []Chapter {
	b.breakChapter()
	return b.chapters
}

// extractText flattens the inline text below node.
func extractText(node ast.Node, source []byte) string {
	var sb strings.Builder
	writeText(&sb, node, source)
	s := urlInParens.ReplaceAllString(sb.String(), "")
	return strings.Join(strings.Fields(s), " ")
}

func writeText(sb *strings.Builder, node ast.Node, source []byte) {
	for child := node.FirstChild(); child != nil; child = child.NextSibling() {
		switch c := child.(type) {
		case *ast.Text:
			sb.Write(c.Segment.Value(source))
			if c.SoftLineBreak() || c.HardLineBreak() {
				sb.WriteByte(' ')
			}
		case *ast.String:
			sb.Write(c.Value)
		case *ast.Image, *ast.RawHTML:
		case *ast.AutoLink:
			sb.Write(c.Label(source))
		default:
			writeText(sb, c, source)
		}
	}
}

func codeLines(node ast.Node, source []byte) string {
	lines := node.Lines()
	parts := make([]string, 0, lines.Len())
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		parts = append(parts, strings.TrimRight(string(seg.Value(source)), "\n"))
	}
	return strings.Join(parts, "\n")
}

// inside reports whether an ancestor of n has type T.
func inside[T ast.Node](n ast.Node) bool {
	for p := n.Parent(); p != nil; p = p.Parent() {
		if _, ok := p.(T); ok {
			return true
		}
	}
	return false
}
