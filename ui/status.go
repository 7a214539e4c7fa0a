package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/truncate"

	"github.com/dgnsrekt/readaloud/tts"
)

var (
	stateGreen  = lipgloss.Color("#00FF00")
	stateBlue   = lipgloss.Color("#00AAFF")
	stateOrange = lipgloss.Color("#FF8800")
	stateRed    = lipgloss.Color("#FF0000")
	stateGray   = lipgloss.Color("#888888")

	counterStyle = lipgloss.NewStyle().Foreground(stateGray)
	loadingStyle = lipgloss.NewStyle().Foreground(stateBlue)
	errorStyle   = lipgloss.NewStyle().Foreground(stateRed)
)

// stateIcon returns an icon for the reading state.
func stateIcon(s tts.StateType) string {
	switch s {
	case tts.StateStarting, tts.StateRefilling:
		return "⟳"
	case tts.StateSpeaking:
		return "▶"
	case tts.StateAdvancing:
		return "»"
	case tts.StateOfferInstall:
		return "✗"
	default:
		return "■"
	}
}

func stateColor(s tts.StateType) lipgloss.Color {
	switch s {
	case tts.StateSpeaking:
		return stateGreen
	case tts.StateStarting, tts.StateRefilling:
		return stateBlue
	case tts.StateAdvancing:
		return stateOrange
	case tts.StateOfferInstall:
		return stateRed
	default:
		return stateGray
	}
}

// CompactStatus returns a one-line summary of st for the status bar. It is
// empty while idle with nothing to report.
func CompactStatus(st tts.Status) string {
	if !st.IsActive() {
		switch {
		case st.State == tts.StateOfferInstall:
			return lipgloss.NewStyle().Foreground(stateRed).Render(stateIcon(st.State) + " no voice")
		case st.LoadingVoices:
			return loadingStyle.Render("⟳ voices")
		}
		return ""
	}

	label := "TTS"
	if st.Backend != tts.BackendNone {
		label = st.Backend.String()
	}
	status := lipgloss.NewStyle().
		Foreground(stateColor(st.State)).
		Render(fmt.Sprintf("%s %s", stateIcon(st.State), label))

	if st.Total > 0 && st.Index >= 0 {
		status += counterStyle.Render(fmt.Sprintf(" %d/%d", st.Index+1, st.Total))
	}
	status += counterStyle.Render(" " + tts.FormatSpeed(st.Speed) + "x")
	if st.LoadingVoices {
		status += loadingStyle.Render(" ⟳")
	}
	return status
}

// DetailedStatus returns a multi-line description of st.
func DetailedStatus(st tts.Status, width int) string {
	var lines []string
	lines = append(lines, lipgloss.NewStyle().Bold(true).Render("Reading"))
	lines = append(lines, lipgloss.NewStyle().
		Foreground(stateColor(st.State)).
		Render(fmt.Sprintf("State: %s %s", stateIcon(st.State), st.State)))

	if st.IsActive() {
		lines = append(lines, "Voice: "+st.Backend.String())
		if st.ServerVoice != "" && st.Backend == tts.BackendServer {
			lines[len(lines)-1] += " (" + st.ServerVoice + ")"
		}
		if st.Total > 0 {
			lines = append(lines, fmt.Sprintf("Segment: %d of %d", st.Index+1, st.Total))
			if width > 20 {
				lines = append(lines, ProgressBar(st, width-4))
			}
		}
	}
	lines = append(lines, "Speed: "+tts.FormatSpeed(st.Speed)+"x")

	highlight := "off"
	if st.HighlightEnabled {
		highlight = "on"
	}
	lines = append(lines, "Highlight: "+highlight)

	if st.LastError != nil {
		msg := truncate.StringWithTail(st.LastError.Error(), uint(max(0, width-9)), ellipsis) //nolint:gosec
		lines = append(lines, errorStyle.Render("Error: "+msg))
	}
	return strings.Join(lines, "\n")
}

// ProgressBar renders how far through the queue st is.
func ProgressBar(st tts.Status, width int) string {
	if st.Total <= 0 || width < 10 {
		return ""
	}
	progress := float64(max(st.Index+1, 0)) / float64(st.Total)
	filled := min(int(progress*float64(width)), width)

	filledStyle := lipgloss.NewStyle().Foreground(stateColor(st.State))
	emptyStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#333333"))
	return filledStyle.Render(strings.Repeat("█", filled)) +
		emptyStyle.Render(strings.Repeat("░", width-filled))
}
