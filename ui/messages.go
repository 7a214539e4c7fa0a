package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/readaloud/tts"
)

type (
	statusMsg    tts.Status
	noticeMsg    tts.Notice
	highlightMsg struct{ text, style string }
	pageMsg      struct{}
	reloadMsg    struct{}

	// actionMsg reports the outcome of a reader command run off the
	// update loop.
	actionMsg struct {
		action string
		err    error
	}

	editorFinishedMsg struct{ err error }

	statusMessageTimeoutMsg struct{}
)

// eventBufferSize bounds how many reader events can queue up between
// renders.
const eventBufferSize = 128

// events carries reader callbacks into the update loop. Callbacks fire on
// reader goroutines, sometimes before the program runs, so sends never
// block.
type events chan tea.Msg

func (e events) send(msg tea.Msg) {
	select {
	case e <- msg:
	default:
		log.Debug("dropping reader event", "msg", msg)
	}
}

// listen waits for the next reader event.
func (e events) listen() tea.Cmd {
	return func() tea.Msg {
		return <-e
	}
}

// bind routes reader and document callbacks into the event channel.
func (e events) bind(r Reader, doc Page) {
	r.OnStatus(func(s tts.Status) { e.send(statusMsg(s)) })
	r.OnNotice(func(n tts.Notice) { e.send(noticeMsg(n)) })
	doc.OnHighlight(func(text, style string) { e.send(highlightMsg{text, style}) })
	doc.OnChange(func() { e.send(pageMsg{}) })
}
