package tts

import "strings"

// HighlightStyle is the style applied to the segment being read.
const HighlightStyle = "background: #f3a6a68c;"

var sanitizer = strings.NewReplacer(
	"\r", " ",
	"\n", " ",
	"\t", " ",
	"&", " ",
	"\f", " ",
)

// SanitizeText prepares text for on-device synthesis by replacing control
// whitespace and ampersands with spaces and collapsing double spaces.
func SanitizeText(text string) string {
	text = sanitizer.Replace(text)
	for strings.Contains(text, "  ") {
		text = strings.ReplaceAll(text, "  ", " ")
	}
	return text
}
