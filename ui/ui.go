// Package ui provides the terminal reader.
package ui

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
	"github.com/muesli/termenv"

	"github.com/dgnsrekt/readaloud/internal/document"
	"github.com/dgnsrekt/readaloud/tts"
)

const (
	statusMessageTimeout = time.Second * 3 // how long to show notices like "Copied segment"
	ellipsis             = "…"
)

// Reader is the reading engine the UI drives. *tts.Controller satisfies it.
type Reader interface {
	Toggle(ctx context.Context) error
	StartFrom(ctx context.Context, selection string) error
	Stop()
	Status() tts.Status
	Voices() []tts.VoiceDescriptor
	SetSpeed(speed float64) error
	SetHighlightEnabled(enabled bool) error
	SetVoiceIndex(index int) error
	SetServerVoice(id string) error
	OnStatus(fn func(tts.Status))
	OnNotice(fn func(tts.Notice))
}

// Page is the book on screen. *document.Document satisfies it.
type Page interface {
	CurrentPage() []document.Block
	Highlight() (text, style string)
	Title() string
	Chapters() []string
	Pages(chapter int) int
	Position() tts.Position
	Next(ctx context.Context) error
	Prev() bool
	Reload(source []byte)
	OnHighlight(fn func(text, style string))
	OnChange(fn func())
}

// NewProgram returns a new Tea program reading doc aloud with r.
func NewProgram(ctx context.Context, cfg Config, r Reader, doc Page) *tea.Program {
	log.Debug(
		"Starting readaloud",
		"glamour",
		cfg.GlamourEnabled,
		"path",
		cfg.Path,
	)

	opts := []tea.ProgramOption{tea.WithAltScreen(), tea.WithContext(ctx)}
	if cfg.EnableMouse {
		opts = append(opts, tea.WithMouseCellMotion())
	}
	return tea.NewProgram(newModel(ctx, cfg, r, doc), opts...)
}

type model struct {
	ctx    context.Context
	cfg    Config
	reader Reader
	doc    Page
	events events

	width    int
	height   int
	viewport viewport.Model
	spinner  spinner.Model
	spinning bool

	status    tts.Status
	highlight string
	style     string

	showHelp    bool
	showDetails bool

	statusMessage      string
	statusIsError      bool
	statusMessageTimer *time.Timer

	watcher *fsnotify.Watcher
}

func newModel(ctx context.Context, cfg Config, r Reader, doc Page) model {
	m := model{
		ctx:      ctx,
		cfg:      cfg,
		reader:   r,
		doc:      doc,
		events:   make(events, eventBufferSize),
		viewport: viewport.New(0, 0),
		spinner:  spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(loadingStyle)),
		status:   r.Status(),
	}
	m.highlight, m.style = doc.Highlight()
	m.events.bind(r, doc)

	if cfg.Path != "" {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			log.Error("error creating fsnotify watcher", "error", err)
		} else {
			m.watcher = w
			watchDir(w, cfg.Path)
		}
	}
	return m
}

func (m model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.events.listen()}
	if m.watcher != nil {
		cmds = append(cmds, waitForChange(m.watcher, m.cfg.Path))
	}
	if m.busy() {
		cmds = append(cmds, m.spinner.Tick)
	}
	if m.cfg.AutoStart {
		cmds = append(cmds, m.start(m.cfg.Selection))
	}
	return tea.Batch(cmds...)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.setSize()
		m.render()

	case tea.KeyMsg:
		return m.handleKey(msg)

	case statusMsg:
		m.status = tts.Status(msg)
		if m.showDetails {
			m.setSize()
		}
		m.render()
		cmds = append(cmds, m.events.listen(), m.tick())

	case noticeMsg:
		cmds = append(cmds, m.events.listen(), m.showStatusMessage(msg.Message, msg.Level >= tts.NoticeWarning))

	case highlightMsg:
		m.highlight, m.style = msg.text, msg.style
		m.render()
		cmds = append(cmds, m.events.listen())

	case pageMsg:
		m.render()
		m.viewport.GotoTop()
		cmds = append(cmds, m.events.listen())

	case actionMsg:
		if msg.err != nil {
			cmds = append(cmds, m.actionFailed(msg))
		}

	case reloadMsg:
		cmds = append(cmds, m.reload())
		if m.watcher != nil {
			cmds = append(cmds, waitForChange(m.watcher, m.cfg.Path))
		}

	case editorFinishedMsg:
		if msg.err != nil {
			log.Error("error editing book", "error", msg.err)
			cmds = append(cmds, m.showStatusMessage(msg.err.Error(), true))
		} else if m.watcher == nil {
			cmds = append(cmds, m.reload())
		}

	case statusMessageTimeoutMsg:
		m.statusMessage = ""
		m.statusIsError = false

	case spinner.TickMsg:
		if m.busy() {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			cmds = append(cmds, cmd)
		} else {
			m.spinning = false
		}

	default:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.reader.Stop()
		m.closeWatcher()
		return m, tea.Quit

	case "esc":
		if m.showHelp || m.showDetails {
			m.showHelp, m.showDetails = false, false
			m.setSize()
		}
		return m, nil

	case " ":
		return m, m.toggle()

	case "s":
		m.reader.Stop()
		return m, nil

	case "n", "right":
		m.reader.Stop()
		if err := m.doc.Next(m.ctx); errors.Is(err, tts.ErrDocumentEnd) {
			m.render()
			return m, m.showStatusMessage("End of book", false)
		}
		return m, nil

	case "p", "left":
		m.reader.Stop()
		if !m.doc.Prev() {
			return m, m.showStatusMessage("Start of book", false)
		}
		return m, nil

	case "+", "=":
		return m, m.setSpeed(true)

	case "-", "_":
		return m, m.setSpeed(false)

	case "h":
		enabled := !m.status.HighlightEnabled
		if err := m.reader.SetHighlightEnabled(enabled); err != nil {
			return m, m.showStatusMessage(err.Error(), true)
		}
		m.status = m.reader.Status()
		m.render()
		return m, nil

	case "v":
		return m, m.nextVoice()

	case "c":
		text := m.copyText()
		if text == "" {
			return m, nil
		}
		// Copy using OSC 52
		termenv.Copy(text)
		// Copy using native system clipboard
		_ = clipboard.WriteAll(text)
		return m, m.showStatusMessage("Copied segment", false)

	case "e":
		if m.cfg.Path == "" {
			return m, nil
		}
		m.reader.Stop()
		log.Info("opening editor", "file", m.cfg.Path)
		return m, openEditor(m.cfg.Path)

	case "r":
		return m, m.reload()

	case "i":
		m.showDetails = !m.showDetails
		m.showHelp = false
		m.setSize()
		return m, nil

	case "?":
		m.showHelp = !m.showHelp
		m.showDetails = false
		m.setSize()
		return m, nil
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m model) View() string {
	var b strings.Builder
	fmt.Fprint(&b, m.viewport.View()+"\n")
	fmt.Fprint(&b, statusBar(m.width, m.note(), m.statusMessage, m.statusIsError, m.doc.Position().Percentage))
	switch {
	case m.showHelp:
		fmt.Fprint(&b, "\n"+helpView(m.width))
	case m.showDetails:
		fmt.Fprint(&b, "\n"+indent("\n"+DetailedStatus(m.status, m.width-2), 2))
	}
	return b.String()
}

func (m *model) setSize() {
	m.viewport.Width = m.width
	m.viewport.Height = m.height - statusBarHeight
	switch {
	case m.showHelp:
		m.viewport.Height -= strings.Count(helpView(m.width), "\n") + 1
	case m.showDetails:
		m.viewport.Height -= strings.Count(DetailedStatus(m.status, m.width-2), "\n") + 3
	}
	m.viewport.Height = max(m.viewport.Height, 0)
}

// render lays the current page into the viewport.
func (m *model) render() {
	width := m.pageWidth()
	blocks := m.doc.CurrentPage()
	if len(blocks) == 0 {
		m.viewport.SetContent(indent("\n(nothing left to read)", 2))
		return
	}

	if m.highlight != "" && m.style != "" {
		m.viewport.SetContent(renderPage(blocks, m.highlight, HighlightStyle(m.style), width))
		return
	}
	if m.cfg.GlamourEnabled {
		out, err := glamourRender(blocks, m.cfg.GlamourStyle, width)
		if err == nil {
			m.viewport.SetContent(out)
			return
		}
		log.Error("error rendering with Glamour", "error", err)
	}
	m.viewport.SetContent(renderPage(blocks, "", lipgloss.NewStyle(), width))
}

func (m model) pageWidth() int {
	width := m.width
	if m.cfg.PageWidth > 0 && int(m.cfg.PageWidth) < width { //nolint:gosec
		width = int(m.cfg.PageWidth) //nolint:gosec
	}
	return width
}

// note describes the book position and reading state for the status bar.
func (m model) note() string {
	pos := m.doc.Position()
	parts := []string{m.doc.Title()}
	if chapters := m.doc.Chapters(); pos.ChapterDocIndex < len(chapters) {
		if title := chapters[pos.ChapterDocIndex]; title != "" && title != parts[0] {
			parts = append(parts, title)
		}
		parts = append(parts, fmt.Sprintf("p. %d/%d", pos.Page+1, m.doc.Pages(pos.ChapterDocIndex)))
	}
	note := strings.Join(slices.DeleteFunc(parts, func(p string) bool { return p == "" }), " · ")

	status := CompactStatus(m.status)
	if m.busy() {
		status = m.spinner.View() + status
	}
	if status != "" {
		note += " | " + status
	} else if !m.status.IsActive() {
		note += " | space to read"
	}
	return note
}

// busy reports whether something worth a spinner is happening.
func (m model) busy() bool {
	return m.status.LoadingVoices ||
		m.status.State == tts.StateStarting ||
		m.status.State == tts.StateRefilling
}

func (m *model) tick() tea.Cmd {
	if !m.busy() || m.spinning {
		return nil
	}
	m.spinning = true
	return m.spinner.Tick
}

// toggle starts or stops reading. The first start honours the configured
// selection.
func (m *model) toggle() tea.Cmd {
	if m.status.IsActive() {
		m.reader.Stop()
		return nil
	}
	selection := m.cfg.Selection
	m.cfg.Selection = ""
	return m.start(selection)
}

func (m model) start(selection string) tea.Cmd {
	ctx, r := m.ctx, m.reader
	return func() tea.Msg {
		if selection != "" {
			return actionMsg{action: "start", err: r.StartFrom(ctx, selection)}
		}
		return actionMsg{action: "toggle", err: r.Toggle(ctx)}
	}
}

func (m *model) setSpeed(up bool) tea.Cmd {
	speed := tts.StepSpeed(m.status.Speed, up)
	if err := m.reader.SetSpeed(speed); err != nil {
		return m.showStatusMessage(err.Error(), true)
	}
	m.status = m.reader.Status()
	return nil
}

// nextVoice selects the voice after the current one.
func (m *model) nextVoice() tea.Cmd {
	voices := m.reader.Voices()
	if len(voices) == 0 {
		return m.showStatusMessage(tts.MsgNoVoiceSelected, true)
	}

	current := -1
	for i, v := range voices {
		if v.Kind == tts.BackendServer && v.ID == m.status.ServerVoice ||
			v.Kind != tts.BackendServer && v.Index == m.status.VoiceIndex {
			current = i
			break
		}
	}
	next := voices[(current+1)%len(voices)]

	var err error
	if next.Kind == tts.BackendServer {
		err = m.reader.SetServerVoice(next.ID)
	} else {
		err = m.reader.SetVoiceIndex(next.Index)
	}
	if err != nil {
		return m.showStatusMessage(err.Error(), true)
	}
	m.status = m.reader.Status()
	return m.showStatusMessage("Voice: "+next.Name, false)
}

// copyText returns the segment being spoken, or the page when idle.
func (m model) copyText() string {
	if m.status.Segment != "" {
		return m.status.Segment
	}
	blocks := m.doc.CurrentPage()
	texts := make([]string, len(blocks))
	for i, b := range blocks {
		texts[i] = b.Text
	}
	return strings.Join(texts, "\n\n")
}

func (m *model) reload() tea.Cmd {
	if m.cfg.Path == "" {
		return nil
	}
	data, err := os.ReadFile(m.cfg.Path)
	if err != nil {
		log.Error("error reloading book", "error", err)
		return m.showStatusMessage("Could not reload: "+err.Error(), true)
	}
	m.reader.Stop()
	m.doc.Reload(data)
	m.render()
	return m.showStatusMessage("Reloaded", false)
}

// actionFailed reports a failed reader command. Failures the reader
// already announced through a notice are only logged.
func (m *model) actionFailed(msg actionMsg) tea.Cmd {
	log.Debug("reader action failed", "action", msg.action, "error", msg.err)
	switch {
	case errors.Is(msg.err, tts.ErrVoicesLoading),
		errors.Is(msg.err, tts.ErrVoiceUnavailable),
		errors.Is(msg.err, context.Canceled):
		return nil
	case errors.Is(msg.err, tts.ErrDocumentEnd), errors.Is(msg.err, tts.ErrDocumentExhausted):
		return m.showStatusMessage("End of book", false)
	}
	return m.showStatusMessage(msg.err.Error(), true)
}

func (m *model) showStatusMessage(message string, isError bool) tea.Cmd {
	if message == "" {
		return nil
	}
	m.statusMessage = message
	m.statusIsError = isError
	if m.statusMessageTimer != nil {
		m.statusMessageTimer.Stop()
	}
	m.statusMessageTimer = time.NewTimer(statusMessageTimeout)
	return waitForStatusMessageTimeout(m.statusMessageTimer)
}

func (m model) closeWatcher() {
	if m.watcher == nil {
		return
	}
	if err := m.watcher.Close(); err != nil {
		log.Debug("error closing fsnotify watcher", "error", err)
	}
}

func waitForStatusMessageTimeout(t *time.Timer) tea.Cmd {
	return func() tea.Msg {
		<-t.C
		return statusMessageTimeoutMsg{}
	}
}
