package tts

import (
	"slices"
	"sync"
)

// StateType represents the phase of the reading session.
type StateType int

const (
	// StateIdle indicates nothing is being read.
	StateIdle StateType = iota
	// StateStarting indicates a queue is being built and a voice resolved.
	StateStarting
	// StateSpeaking indicates a segment is being spoken.
	StateSpeaking
	// StateAdvancing indicates the document is turning a page.
	StateAdvancing
	// StateRefilling indicates the queue ran out and is being rebuilt.
	StateRefilling
	// StateOfferInstall indicates no voice exists and one should be installed.
	StateOfferInstall
)

// String returns the string representation of the state.
func (s StateType) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateSpeaking:
		return "speaking"
	case StateAdvancing:
		return "advancing"
	case StateRefilling:
		return "refilling"
	case StateOfferInstall:
		return "offer-install"
	default:
		return "unknown"
	}
}

// Status is a snapshot of the controller.
type Status struct {
	State            StateType
	Backend          BackendKind
	SessionID        string
	Index            int    // Current segment index, -1 when idle
	Total            int    // Segments in the queue
	Segment          string // Text being spoken
	LoadingVoices    bool
	HighlightEnabled bool
	ServerVoice      string
	VoiceIndex       int // Stored native or plugin voice selection
	Speed            float64
	LastError        error
}

// IsActive returns true while a session is reading.
func (s Status) IsActive() bool {
	return s.State != StateIdle && s.State != StateOfferInstall
}

// StateMachine validates transitions between session phases.
type StateMachine struct {
	mu          sync.Mutex
	current     StateType
	transitions map[StateType][]StateType
	onEnter     map[StateType]func()
}

// NewStateMachine creates a new state machine with valid transitions.
func NewStateMachine() *StateMachine {
	return &StateMachine{
		current: StateIdle,
		transitions: map[StateType][]StateType{
			StateIdle:         {StateStarting},
			StateStarting:     {StateSpeaking, StateOfferInstall, StateIdle},
			StateSpeaking:     {StateSpeaking, StateAdvancing, StateRefilling, StateIdle},
			StateAdvancing:    {StateSpeaking, StateRefilling, StateIdle},
			StateRefilling:    {StateSpeaking, StateIdle},
			StateOfferInstall: {StateIdle, StateStarting},
		},
		onEnter: make(map[StateType]func()),
	}
}

// Transition attempts to move to the given state.
func (sm *StateMachine) Transition(to StateType) bool {
	sm.mu.Lock()
	if !slices.Contains(sm.transitions[sm.current], to) {
		sm.mu.Unlock()
		return false
	}
	sm.current = to
	enterFn := sm.onEnter[to]
	sm.mu.Unlock()

	if enterFn != nil {
		enterFn()
	}
	return true
}

// Reset forces the machine back to idle.
func (sm *StateMachine) Reset() {
	sm.mu.Lock()
	changed := sm.current != StateIdle
	sm.current = StateIdle
	enterFn := sm.onEnter[StateIdle]
	sm.mu.Unlock()

	if changed && enterFn != nil {
		enterFn()
	}
}

// Current returns the current state.
func (sm *StateMachine) Current() StateType {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.current
}

// OnEnter registers a callback for entering a state.
func (sm *StateMachine) OnEnter(state StateType, fn func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.onEnter[state] = fn
}
