package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	runewidth "github.com/mattn/go-runewidth"
	"github.com/sahilm/fuzzy"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dgnsrekt/readaloud/internal/document"
	"github.com/dgnsrekt/readaloud/tts"
)

var voicesCmd = &cobra.Command{
	Use:     "voices [QUERY]",
	Short:   "List the voices readaloud can read with",
	Long:    paragraph(fmt.Sprintf("\n%s the voices of the speech service, installed voice packs and this device. A query narrows the list by fuzzy match.", keyword("List"))),
	Example: paragraph("readaloud voices\nreadaloud voices aria --server https://tts.example.com"),
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := ""
		if len(args) > 0 {
			query = args[0]
		}

		cfg, err := tts.LoadConfig(viper.GetViper())
		if err != nil {
			return err
		}
		st, err := openStore()
		if err != nil {
			return err
		}
		eng, err := newEngine(cmd.Context(), cfg, document.New(nil, document.Options{}), tts.Book{Key: "voices"}, st)
		if err != nil {
			return err
		}
		defer func() { _ = eng.Close() }()

		eng.waitForVoices(cmd.Context())
		return printVoices(os.Stdout, eng.controller.Voices(), eng.controller.Status(), query)
	},
}

// matchVoices returns the voices matching query, best match first. An
// empty query matches everything in order.
func matchVoices(voices []tts.VoiceDescriptor, query string) []tts.VoiceDescriptor {
	if query == "" {
		return voices
	}
	names := make([]string, len(voices))
	for i, v := range voices {
		names[i] = v.Name + " " + v.ID
	}
	matches := fuzzy.Find(query, names)
	out := make([]tts.VoiceDescriptor, 0, len(matches))
	for _, m := range matches {
		out = append(out, voices[m.Index])
	}
	return out
}

func isCurrentVoice(v tts.VoiceDescriptor, st tts.Status) bool {
	if v.Kind == tts.BackendServer {
		return v.ID == st.ServerVoice
	}
	return v.Index == st.VoiceIndex
}

func printVoices(w io.Writer, voices []tts.VoiceDescriptor, st tts.Status, query string) error {
	voices = matchVoices(voices, query)
	if len(voices) == 0 {
		if query != "" {
			return fmt.Errorf("no voice matches %q", query)
		}
		_, err := fmt.Fprintln(w, "No voices available.")
		return err
	}

	nameWidth := 0
	for _, v := range voices {
		nameWidth = max(nameWidth, runewidth.StringWidth(v.Name))
	}

	var b strings.Builder
	for _, v := range voices {
		mark := "  "
		if isCurrentVoice(v, st) {
			mark = keyword("* ")
		}
		b.WriteString(mark + runewidth.FillRight(v.Name, nameWidth+2) + voiceKindStyle(v.Kind.String()))
		if v.ID != "" && v.ID != v.Name {
			b.WriteString(" " + v.ID)
		}
		b.WriteString("\n")
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// selectVoice makes the best match for query the reading voice.
func selectVoice(ctx context.Context, e *engine, query string) error {
	e.waitForVoices(ctx)
	matches := matchVoices(e.controller.Voices(), query)
	if len(matches) == 0 {
		return fmt.Errorf("no voice matches %q", query)
	}
	v := matches[0]
	if v.Kind == tts.BackendServer {
		return e.controller.SetServerVoice(v.ID)
	}
	return e.controller.SetVoiceIndex(v.Index)
}
