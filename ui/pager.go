package ui

import (
	"fmt"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
	runewidth "github.com/mattn/go-runewidth"
	"github.com/muesli/reflow/ansi"
	"github.com/muesli/reflow/truncate"
	"github.com/muesli/reflow/wordwrap"

	"github.com/dgnsrekt/readaloud/internal/document"
)

const statusBarHeight = 1

var (
	cream   = lipgloss.AdaptiveColor{Light: "#FFFDF5", Dark: "#FFFDF5"}
	fuchsia = lipgloss.Color("#EE6FF8")
	green   = lipgloss.Color("#04B575")

	mintGreen = lipgloss.AdaptiveColor{Light: "#89F0CB", Dark: "#89F0CB"}
	darkGreen = lipgloss.AdaptiveColor{Light: "#1C8760", Dark: "#1C8760"}

	statusBarNoteFg = lipgloss.AdaptiveColor{Light: "#656565", Dark: "#7D7D7D"}
	statusBarBg     = lipgloss.AdaptiveColor{Light: "#E6E6E6", Dark: "#242424"}

	logoStyle = lipgloss.NewStyle().
			Foreground(cream).
			Background(fuchsia).
			Bold(true)

	statusBarScrollPosStyle = lipgloss.NewStyle().
				Foreground(lipgloss.AdaptiveColor{Light: "#949494", Dark: "#5A5A5A"}).
				Background(statusBarBg).
				Render

	statusBarNoteStyle = lipgloss.NewStyle().
				Foreground(statusBarNoteFg).
				Background(statusBarBg).
				Render

	statusBarHelpStyle = lipgloss.NewStyle().
				Foreground(statusBarNoteFg).
				Background(lipgloss.AdaptiveColor{Light: "#DCDCDC", Dark: "#323232"}).
				Render

	statusBarMessageStyle = lipgloss.NewStyle().
				Foreground(mintGreen).
				Background(darkGreen).
				Render

	statusBarErrorStyle = lipgloss.NewStyle().
				Foreground(cream).
				Background(lipgloss.Color("#C23B22")).
				Render

	statusBarMessageHelpStyle = lipgloss.NewStyle().
					Foreground(lipgloss.Color("#B6FFE4")).
					Background(green).
					Render

	helpViewStyle = lipgloss.NewStyle().
			Foreground(statusBarNoteFg).
			Background(lipgloss.AdaptiveColor{Light: "#f2f2f2", Dark: "#1B1B1B"}).
			Render

	headingStyle = lipgloss.NewStyle().Bold(true).Foreground(fuchsia)
	quoteStyle   = lipgloss.NewStyle().Foreground(statusBarNoteFg).Italic(true)
	codeStyle    = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#5A5A5A", Dark: "#B0B0B0"})
)

func logoView() string {
	return logoStyle.Render(" Readaloud ")
}

// renderPage lays out blocks for the terminal, rendering the segment
// being spoken with style.
func renderPage(blocks []document.Block, segment string, style lipgloss.Style, width int) string {
	var b strings.Builder
	found := segment == ""
	for i, block := range blocks {
		if i > 0 {
			b.WriteString("\n\n")
		}
		text := block.Text
		if !found {
			text, found = HighlightSegment(text, segment, style)
		}
		b.WriteString(renderBlock(block, text, width))
	}
	return b.String()
}

func renderBlock(block document.Block, text string, width int) string {
	wrap := func(s string, indent int) string {
		if width-indent <= 0 {
			return s
		}
		return wordwrap.String(s, width-indent)
	}
	switch block.Kind {
	case document.BlockHeading:
		return headingStyle.Render(strings.Repeat("#", max(block.Level, 1)) + " " + wrap(text, block.Level+1))
	case document.BlockListItem:
		return prefixLines(wrap(text, 2), "• ", "  ")
	case document.BlockQuote:
		return quoteStyle.Render(prefixLines(wrap(text, 2), "│ ", "│ "))
	case document.BlockCode:
		return codeStyle.Render(prefixLines(text, "    ", "    "))
	case document.BlockTableRow:
		return prefixLines(wrap(text, 2), "| ", "  ")
	default:
		return wrap(text, 0)
	}
}

func prefixLines(s, first, rest string) string {
	lines := strings.Split(s, "\n")
	for i := range lines {
		if i == 0 {
			lines[i] = first + lines[i]
		} else {
			lines[i] = rest + lines[i]
		}
	}
	return strings.Join(lines, "\n")
}

// pageMarkdown turns blocks back into markdown for glamour.
func pageMarkdown(blocks []document.Block) string {
	var b strings.Builder
	for i, block := range blocks {
		if i > 0 {
			b.WriteString("\n\n")
		}
		switch block.Kind {
		case document.BlockHeading:
			b.WriteString(strings.Repeat("#", max(block.Level, 1)) + " " + block.Text)
		case document.BlockListItem:
			b.WriteString("- " + block.Text)
		case document.BlockQuote:
			b.WriteString("> " + block.Text)
		case document.BlockCode:
			b.WriteString("```\n" + block.Text + "\n```")
		default:
			b.WriteString(block.Text)
		}
	}
	return b.String()
}

func glamourRender(blocks []document.Block, style string, width int) (string, error) {
	opts := []glamour.TermRendererOption{glamour.WithWordWrap(width)}
	if style == "" || style == "auto" {
		opts = append(opts, glamour.WithAutoStyle())
	} else {
		opts = append(opts, glamour.WithStandardStyle(style))
	}
	r, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return "", err
	}
	out, err := r.Render(pageMarkdown(blocks))
	if err != nil {
		return "", err
	}
	return strings.TrimRight(out, "\n"), nil
}

// statusBar renders the footer: logo, note, book progress and help hint.
func statusBar(width int, note, message string, isError bool, percent float64) string {
	logo := logoView()
	showMessage := message != ""

	pct := fmt.Sprintf(" %3.f%% ", max(0, min(1, percent))*100)
	pct = statusBarScrollPosStyle(pct)

	helpNote := statusBarHelpStyle(" ? Help ")
	if showMessage {
		helpNote = statusBarMessageHelpStyle(" ? Help ")
		note = message
	}

	style := statusBarNoteStyle
	switch {
	case showMessage && isError:
		style = statusBarErrorStyle
	case showMessage:
		style = statusBarMessageStyle
	}

	room := max(0, width-
		ansi.PrintableRuneWidth(logo)-
		ansi.PrintableRuneWidth(pct)-
		ansi.PrintableRuneWidth(helpNote))
	note = truncate.StringWithTail(" "+note+" ", uint(room), ellipsis) //nolint:gosec
	padding := max(0, room-ansi.PrintableRuneWidth(note))

	return logo + style(note) + style(strings.Repeat(" ", padding)) + pct + helpNote
}

func helpView(width int) string {
	col1 := []string{
		"space   start/stop reading",
		"s       stop reading",
		"n/→     next page",
		"p/←     previous page",
		"+/-     faster/slower",
		"v       next voice",
	}
	col2 := []string{
		"h       toggle highlight",
		"c       copy segment",
		"e       edit this book",
		"r       reload this book",
		"i       reading details",
		"q       quit",
	}

	var s string
	s += "\n"
	for i := range col1 {
		s += runewidth.FillRight(col1[i], 30) + col2[i] + "\n"
	}
	s = indent(s, 2)

	// Fill up empty cells with spaces for background coloring
	if width > 0 {
		lines := strings.Split(s, "\n")
		for i := range lines {
			n := max(width-runewidth.StringWidth(lines[i]), 0)
			lines[i] += strings.Repeat(" ", n)
		}
		s = strings.Join(lines, "\n")
	}
	return helpViewStyle(s)
}

func watchDir(w *fsnotify.Watcher, path string) {
	dir := filepath.Dir(path)
	if err := w.Add(dir); err != nil {
		log.Error("error adding dir to fsnotify watcher", "error", err)
		return
	}
	log.Info("fsnotify watching dir", "dir", dir)
}

// waitForChange blocks until the book at path is written, then reports a
// reload. It returns nil once the watcher closes.
func waitForChange(w *fsnotify.Watcher, path string) tea.Cmd {
	return func() tea.Msg {
		for {
			select {
			case event, ok := <-w.Events:
				if !ok {
					return nil
				}
				if filepath.Clean(event.Name) != filepath.Clean(path) {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				log.Debug("fsnotify event", "file", event.Name, "event", event.Op)
				return reloadMsg{}
			case err, ok := <-w.Errors:
				if !ok {
					return nil
				}
				log.Debug("fsnotify error", "file", path, "error", err)
			}
		}
	}
}

// Lightweight version of reflow's indent function.
func indent(s string, n int) string {
	if n <= 0 || s == "" {
		return s
	}
	l := strings.Split(s, "\n")
	b := strings.Builder{}
	i := strings.Repeat(" ", n)
	for _, v := range l {
		fmt.Fprintf(&b, "%s%s\n", i, v)
	}
	return b.String()
}
