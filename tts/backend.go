package tts

import "context"

// BackendKind names an audio source.
type BackendKind int

const (
	BackendNone BackendKind = iota
	BackendNative
	BackendPlugin
	BackendServer
)

// String returns the backend name.
func (k BackendKind) String() string {
	switch k {
	case BackendNative:
		return "native"
	case BackendPlugin:
		return "plugin"
	case BackendServer:
		return "server"
	default:
		return "none"
	}
}

// Outcome is the result of speaking one segment.
type Outcome int

const (
	// OutcomeContinue moves on to the next segment.
	OutcomeContinue Outcome = iota
	// OutcomeEnd ends the session.
	OutcomeEnd
)

// String returns the outcome name.
func (o Outcome) String() string {
	if o == OutcomeContinue {
		return "start"
	}
	return "end"
}

// Backend speaks segments of a session's queue.
type Backend interface {
	// Kind identifies the backend.
	Kind() BackendKind

	// Prepare runs once for every freshly built queue.
	Prepare(ctx context.Context, s *Session) error

	// Speak plays segment index and blocks until it finishes.
	Speak(ctx context.Context, s *Session, index int) (Outcome, error)

	// Finish runs when a queue has been read to the end.
	Finish(ctx context.Context, s *Session)
}

// VoiceDescriptor is a resolved selectable voice.
type VoiceDescriptor struct {
	Kind  BackendKind
	Index int
	ID    string
	Name  string
}

// Resolution is the outcome of choosing a voice source for a session.
type Resolution struct {
	Kind         BackendKind
	Voices       []VoiceDescriptor
	NativeVoices []NativeVoice
	VoiceIndex   int
}

// NativeVoice returns the on-device voice selected by VoiceIndex, or the
// zero voice when the index is out of range.
func (r Resolution) NativeVoice() NativeVoice {
	if r.VoiceIndex >= 0 && r.VoiceIndex < len(r.NativeVoices) {
		return r.NativeVoices[r.VoiceIndex]
	}
	return NativeVoice{}
}

// PluginVoiceIndex maps VoiceIndex into the plugin voice list.
func (r Resolution) PluginVoiceIndex() int {
	return r.VoiceIndex - len(r.NativeVoices)
}
