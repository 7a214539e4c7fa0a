// Package sentence splits reader text into speakable segments.
package sentence

import (
	"strings"
	"unicode"
)

// Parser splits plain text blocks into sentences.
type Parser struct {
	// Common abbreviations that don't end sentences
	abbreviations map[string]bool
}

// NewParser creates a new sentence parser.
func NewParser() *Parser {
	return &Parser{
		abbreviations: makeAbbreviationMap(),
	}
}

// Split returns the trimmed, non-empty sentences of text in order.
func (p *Parser) Split(text string) []string {
	runes := []rune(text)
	boundaries := p.findSentenceBoundaries(runes)

	sentences := make([]string, 0, len(boundaries))
	for _, b := range boundaries {
		s := strings.TrimSpace(string(runes[b.start:b.end]))
		if s == "" {
			continue
		}
		sentences = append(sentences, s)
	}
	return sentences
}

// LastSentence returns the final sentence of text, or text itself when it
// holds a single sentence.
func (p *Parser) LastSentence(text string) string {
	sentences := p.Split(text)
	if len(sentences) == 0 {
		return strings.TrimSpace(text)
	}
	return sentences[len(sentences)-1]
}

// findSentenceBoundaries finds sentence boundaries as rune offsets.
func (p *Parser) findSentenceBoundaries(runes []rune) []boundary {
	var boundaries []boundary
	lastStart := 0

	for i := 0; i < len(runes); i++ {
		if !isTerminal(runes[i]) {
			continue
		}

		// Collect all punctuation
		punctEnd := i + 1
		for punctEnd < len(runes) && isTerminal(runes[punctEnd]) {
			punctEnd++
		}

		// Closing quotes/parens belong to the sentence
		for punctEnd < len(runes) && isCloser(runes[punctEnd]) {
			punctEnd++
		}

		if !p.isSentenceEnd(runes, i, punctEnd) {
			i = punctEnd - 1
			continue
		}

		boundaries = append(boundaries, boundary{start: lastStart, end: punctEnd})

		for punctEnd < len(runes) && unicode.IsSpace(runes[punctEnd]) {
			punctEnd++
		}
		lastStart = punctEnd
		i = punctEnd - 1
	}

	if lastStart < len(runes) && strings.TrimSpace(string(runes[lastStart:])) != "" {
		boundaries = append(boundaries, boundary{start: lastStart, end: len(runes)})
	}

	return boundaries
}

// isSentenceEnd reports whether the punctuation run starting at pos and
// ending before end closes a sentence.
func (p *Parser) isSentenceEnd(runes []rune, pos, end int) bool {
	punct := runes[pos]

	if isWideTerminal(punct) {
		return true
	}

	// Ellipsis mid-text is a pause, not an end.
	if punct == '.' && end-pos >= 3 && runes[pos+1] == '.' && runes[pos+2] == '.' {
		if end < len(runes) && !startsSentence(runes, end) {
			return false
		}
	}

	if punct == '.' && end-pos == 1 {
		word := strings.ToLower(wordBefore(runes, pos))

		if p.abbreviations[word] {
			return false
		}

		// Multi-part abbreviations like "Ph.D." or "U.S."
		if isDotted(word) {
			return false
		}

		// Decimal numbers
		if pos > 0 && pos+1 < len(runes) && unicode.IsDigit(runes[pos-1]) && unicode.IsDigit(runes[pos+1]) {
			return false
		}

		// Single capital initials ("J. Smith").
		if len([]rune(word)) == 1 && pos > 0 && unicode.IsUpper(runes[pos-1]) {
			return false
		}
	}

	if end >= len(runes) {
		return true
	}

	// Must have whitespace after punctuation
	if !unicode.IsSpace(runes[end]) {
		return false
	}

	if startsSentence(runes, end) {
		return true
	}

	// Exclamation and question marks are taken at face value.
	return punct == '!' || punct == '?'
}

// startsSentence reports whether the first non-space rune at or after pos
// looks like the start of a sentence.
func startsSentence(runes []rune, pos int) bool {
	for pos < len(runes) && unicode.IsSpace(runes[pos]) {
		pos++
	}
	if pos >= len(runes) {
		return true
	}
	r := runes[pos]
	if r == '"' || r == '\'' || r == '(' || r == '[' || r == '“' {
		if pos+1 < len(runes) {
			r = runes[pos+1]
		}
	}
	return unicode.IsUpper(r) || unicode.IsDigit(r) || unicode.IsLetter(r) && !unicode.IsLower(r)
}

// isDotted reports whether word is a dotted abbreviation such as "e.g".
func isDotted(word string) bool {
	if !strings.Contains(word, ".") {
		return false
	}
	for _, r := range word {
		if r != '.' && !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

// wordBefore returns the word ending at pos, without the punctuation at pos.
func wordBefore(runes []rune, pos int) string {
	start := pos - 1
	for start >= 0 && !unicode.IsSpace(runes[start]) && !isOpener(runes[start]) {
		start--
	}
	return string(runes[start+1 : pos])
}

func isTerminal(r rune) bool {
	return r == '.' || r == '!' || r == '?' || r == '。' || r == '！' || r == '？'
}

func isWideTerminal(r rune) bool {
	return r == '。' || r == '！' || r == '？'
}

func isCloser(r rune) bool {
	return r == '"' || r == '\'' || r == ')' || r == ']' || r == '”' || r == '’'
}

func isOpener(r rune) bool {
	return r == '"' || r == '\'' || r == '(' || r == '[' || r == '“' || r == '‘'
}

// makeAbbreviationMap creates a map of common abbreviations.
func makeAbbreviationMap() map[string]bool {
	abbrevs := []string{
		"mr", "mrs", "ms", "dr", "prof", "sr", "jr", "st",
		"inc", "ltd", "co", "corp", "llc",
		"etc", "vs", "cf", "al", "approx",
		"jan", "feb", "mar", "apr", "jun", "jul", "aug", "sep", "sept", "oct", "nov", "dec",
		"mon", "tue", "wed", "thu", "fri", "sat", "sun",
		"rd", "ave", "blvd", "ln", "ct", "mt",
		"ft", "lbs", "oz", "kg", "km", "cm", "mm", "mi", "yd",
		"hr", "hrs", "min", "mins", "sec", "secs",
		"vol", "pp", "fig", "ch",
	}

	m := make(map[string]bool, len(abbrevs))
	for _, abbrev := range abbrevs {
		m[abbrev] = true
	}
	return m
}

// boundary represents a sentence boundary.
type boundary struct {
	start int
	end   int
}
