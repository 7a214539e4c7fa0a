package tts

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgnsrekt/readaloud/tts/sentence"
)

// Common errors for the reader engine.
var (
	// Voice errors
	ErrVoiceUnavailable        = errors.New("no voice is available")
	ErrVoiceCatalogFetchFailed = errors.New("voice catalog fetch failed")
	ErrVoicesLoading           = errors.New("voices are still loading")
	ErrNoVoiceSelected         = errors.New("no voice selected")

	// Generation and playback errors
	ErrSpeechGenerationFailed = errors.New("speech generation failed")
	ErrPlaybackFailed         = errors.New("audio playback failed")
	ErrAudioLoad              = errors.New("audio could not be loaded")
	ErrPlaybackStopped        = errors.New("playback was stopped")

	// Document errors
	ErrDocumentEnd       = sentence.ErrDocumentEnd
	ErrDocumentExhausted = sentence.ErrDocumentExhausted

	// Controller errors
	ErrSessionActive    = errors.New("a reading session is already active")
	ErrControllerClosed = errors.New("controller has been closed")
	ErrInvalidConfig    = errors.New("invalid configuration")
)

// IsRecoverableError checks if an error leaves the controller usable.
func IsRecoverableError(err error) bool {
	if err == nil {
		return true
	}

	switch {
	case errors.Is(err, ErrControllerClosed),
		errors.Is(err, ErrInvalidConfig):
		return false
	}

	return true
}

// ErrorSeverity represents the severity of an error.
type ErrorSeverity int

const (
	// SeverityInfo is for informational messages.
	SeverityInfo ErrorSeverity = iota
	// SeverityWarning is for warnings that don't prevent operation.
	SeverityWarning
	// SeverityError is for errors that end a session.
	SeverityError
)

// String returns the severity name.
func (s ErrorSeverity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "unknown"
	}
}

// TTSError provides detailed error information.
type TTSError struct {
	Err       error         // The underlying error
	Component string        // Component that generated the error
	Action    string        // Action being performed when error occurred
	Severity  ErrorSeverity // Severity of the error
	Index     int           // Segment index, or -1
	Timestamp time.Time     // When the error occurred
}

// Error implements the error interface.
func (e *TTSError) Error() string {
	if e.Err == nil {
		return "unknown TTS error"
	}
	if e.Index >= 0 {
		return fmt.Sprintf("%s: %s segment %d: %v", e.Component, e.Action, e.Index, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Component, e.Action, e.Err)
}

// Unwrap returns the underlying error.
func (e *TTSError) Unwrap() error {
	return e.Err
}

// IsRecoverable checks if the error is recoverable.
func (e *TTSError) IsRecoverable() bool {
	return IsRecoverableError(e.Err)
}

// NewTTSError creates a new TTS error with context.
func NewTTSError(err error, component, action string) *TTSError {
	return &TTSError{
		Err:       err,
		Component: component,
		Action:    action,
		Severity:  SeverityError,
		Index:     -1,
		Timestamp: time.Now(),
	}
}

// WithSeverity sets the error severity.
func (e *TTSError) WithSeverity(severity ErrorSeverity) *TTSError {
	e.Severity = severity
	return e
}

// WithIndex records the segment the error relates to.
func (e *TTSError) WithIndex(index int) *TTSError {
	e.Index = index
	return e
}

// NoticeLevel grades a user-facing notice.
type NoticeLevel int

const (
	NoticeInfo NoticeLevel = iota
	NoticeWarning
	NoticeError
)

// Notice is a short message shown to the reader.
type Notice struct {
	Level   NoticeLevel
	Message string
	Err     error
}

// User-facing notice texts.
const (
	MsgLoadingVoices   = "Loading voices, please try again"
	MsgNoVoiceSelected = "No voice selected"
	MsgSpeechFailed    = "Unable to generate speech"
	MsgNextStartup     = "Take effect at next startup"
	MsgInAWhile        = "Take effect in a while"
	MsgInstallVoices   = "No voice available, install a voice pack"
)
