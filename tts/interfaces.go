package tts

import (
	"context"
)

// Document is the reader surface the engine drives.
type Document interface {
	// AudioText returns the text blocks from the reading position onward.
	AudioText(ctx context.Context) ([]string, error)

	// VisibleText returns the blocks currently on screen.
	VisibleText(ctx context.Context) ([]string, error)

	// HighlightAudioNode marks the segment being spoken. An empty style
	// clears any highlight.
	HighlightAudioNode(text, style string)

	// Next moves to the next page. It returns ErrDocumentEnd at the end.
	Next(ctx context.Context) error

	// GoToChapterIndex jumps to a chapter. It returns ErrDocumentEnd past
	// the last chapter.
	GoToChapterIndex(ctx context.Context, index int) error

	// Position reports the current reading position.
	Position() Position
}

// ConfigStore persists reader preferences.
type ConfigStore interface {
	// Get returns the stored value, or "" when unset.
	Get(key string) string

	// Set stores a value.
	Set(key, value string) error

	// SetObjectConfig stores a structured value for a book under a category.
	SetObjectConfig(bookKey string, value any, category string) error
}

// Synthesizer speaks text using an on-device voice.
type Synthesizer interface {
	// Voices lists the installed voices.
	Voices(ctx context.Context) ([]NativeVoice, error)

	// Speak blocks until the utterance finishes, fails or ctx is done.
	Speak(ctx context.Context, u Utterance) error

	// Cancel aborts the utterance in progress, if any.
	Cancel()
}

// PluginVoices drives installed voice packs that render audio files.
type PluginVoices interface {
	// VoiceList flattens the voices offered by plugins.
	VoiceList(plugins []Plugin) []Voice

	// SetAudioPaths starts a fresh render set.
	SetAudioPaths()

	// CacheAudio renders texts in order, appending to the render set.
	CacheAudio(ctx context.Context, texts []string, voiceIndex int, speedOffset float64, plugins []Plugin) error

	// AudioPaths returns the rendered files so far.
	AudioPaths() []string

	// WaitAudio blocks until the file for index is rendered.
	WaitAudio(ctx context.Context, index int) error

	// ReadAloud plays the file for index until it ends. It returns
	// ErrAudioLoad when the file cannot be played.
	ReadAloud(ctx context.Context, index int) error

	// Pause stops the file being played.
	Pause()

	// Clear removes rendered files.
	Clear(ctx context.Context) error
}

// RemoteService is a networked speech generator.
type RemoteService interface {
	// Voices fetches the voice catalog.
	Voices(ctx context.Context) ([]ServerVoice, error)

	// Speak generates audio for one segment.
	Speak(ctx context.Context, req SpeakRequest) (SpeechAudio, error)
}

// AudioSink turns encoded audio into playable resources.
type AudioSink interface {
	Open(data []byte, mimeType string) (Resource, error)
}

// Resource is a releasable handle to playable audio.
type Resource interface {
	// ID identifies the resource, typically a file path.
	ID() string

	// Release frees the resource. Calls after the first are no-ops.
	Release() error
}

// Player plays resources.
type Player interface {
	Start(res Resource) (Playback, error)
}

// Playback is a single playing resource.
type Playback interface {
	// Done is closed when playback ends for any reason.
	Done() <-chan struct{}

	// Err reports why playback ended. It is nil after a natural end.
	Err() error

	// Stop halts playback. It is safe to call more than once.
	Stop()
}

// Position is a reading location within a book.
type Position struct {
	ChapterDocIndex int     `yaml:"chapterDocIndex" json:"chapterDocIndex"`
	Page            int     `yaml:"page" json:"page"`
	Text            string  `yaml:"text,omitempty" json:"text,omitempty"`
	Percentage      float64 `yaml:"percentage" json:"percentage"`
}

// Book describes the open document.
type Book struct {
	Key    string
	Title  string
	Format string
}

// FixedLayout reports whether the book paginates as fixed pages.
func (b Book) FixedLayout() bool {
	return b.Format == FormatPDF
}

// Book formats.
const (
	FormatPDF      = "PDF"
	FormatMarkdown = "MD"
	FormatText     = "TXT"
)

// NativeVoice is an on-device voice.
type NativeVoice struct {
	Name string
	Lang string
}

// Utterance is one request to the on-device synthesizer.
type Utterance struct {
	Text  string
	Voice NativeVoice
	Rate  float64
}

// Plugin is an installed extension. Only plugins of type "voice" provide
// voices.
type Plugin struct {
	Key         string
	Type        string
	DisplayName string
	Voices      []Voice
}

// PluginTypeVoice marks voice packs.
const PluginTypeVoice = "voice"

// Voice is a selectable voice of any kind.
type Voice struct {
	ID     string
	Name   string
	Locale string
	Plugin string
}

// ServerVoice is a voice offered by the remote service.
type ServerVoice struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Locale string `json:"locale,omitempty"`
}

// SpeakRequest is a remote generation request.
type SpeakRequest struct {
	Text  string  `json:"text"`
	Voice string  `json:"voice"`
	Speed float64 `json:"speed"`
}

// SpeechAudio is decoded remote audio.
type SpeechAudio struct {
	Data     []byte
	MimeType string
}
