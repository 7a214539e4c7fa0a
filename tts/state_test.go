package tts

import (
	"sync"
	"testing"
)

// TestStateTypeString tests the String() method for StateType.
func TestStateTypeString(t *testing.T) {
	tests := []struct {
		state    StateType
		expected string
	}{
		{StateIdle, "idle"},
		{StateStarting, "starting"},
		{StateSpeaking, "speaking"},
		{StateAdvancing, "advancing"},
		{StateRefilling, "refilling"},
		{StateOfferInstall, "offer-install"},
		{StateType(999), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.state.String(); got != tt.expected {
				t.Errorf("StateType.String() = %v, want %v", got, tt.expected)
			}
		})
	}
}

// TestStatusIsActive tests the IsActive() method.
func TestStatusIsActive(t *testing.T) {
	tests := []struct {
		state    StateType
		expected bool
	}{
		{StateIdle, false},
		{StateOfferInstall, false},
		{StateStarting, true},
		{StateSpeaking, true},
		{StateAdvancing, true},
		{StateRefilling, true},
	}

	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			if got := (Status{State: tt.state}).IsActive(); got != tt.expected {
				t.Errorf("IsActive() = %v, want %v", got, tt.expected)
			}
		})
	}
}

// TestStateMachineTransitions tests valid and invalid transitions.
func TestStateMachineTransitions(t *testing.T) {
	tests := []struct {
		name  string
		path  []StateType
		valid bool
	}{
		{"start then speak", []StateType{StateStarting, StateSpeaking}, true},
		{"speak to next segment", []StateType{StateStarting, StateSpeaking, StateSpeaking}, true},
		{"page turn", []StateType{StateStarting, StateSpeaking, StateAdvancing, StateSpeaking}, true},
		{"refill after page turn", []StateType{StateStarting, StateSpeaking, StateAdvancing, StateRefilling, StateSpeaking}, true},
		{"offer install", []StateType{StateStarting, StateOfferInstall, StateStarting}, true},
		{"idle cannot speak", []StateType{StateSpeaking}, false},
		{"starting cannot advance", []StateType{StateStarting, StateAdvancing}, false},
		{"refilling cannot advance", []StateType{StateStarting, StateSpeaking, StateRefilling, StateAdvancing}, false},
		{"offer install cannot speak", []StateType{StateStarting, StateOfferInstall, StateSpeaking}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sm := NewStateMachine()
			ok := true
			for _, to := range tt.path {
				if !sm.Transition(to) {
					ok = false
					break
				}
			}
			if ok != tt.valid {
				t.Errorf("path %v valid = %v, want %v", tt.path, ok, tt.valid)
			}
		})
	}
}

// TestStateMachineReset tests that reset returns to idle and fires once.
func TestStateMachineReset(t *testing.T) {
	sm := NewStateMachine()
	entered := 0
	sm.OnEnter(StateIdle, func() { entered++ })

	sm.Reset()
	if entered != 0 {
		t.Errorf("Reset from idle fired %d callbacks, want 0", entered)
	}

	sm.Transition(StateStarting)
	sm.Transition(StateSpeaking)
	sm.Reset()
	if sm.Current() != StateIdle {
		t.Errorf("Current() = %v, want idle", sm.Current())
	}
	if entered != 1 {
		t.Errorf("Reset fired %d callbacks, want 1", entered)
	}
}

// TestStateMachineCallbackMayReadState tests that callbacks run unlocked.
func TestStateMachineCallbackMayReadState(t *testing.T) {
	sm := NewStateMachine()
	var seen StateType
	sm.OnEnter(StateStarting, func() { seen = sm.Current() })

	if !sm.Transition(StateStarting) {
		t.Fatal("Transition failed")
	}
	if seen != StateStarting {
		t.Errorf("callback saw %v, want starting", seen)
	}
}

// TestStateMachineConcurrent tests concurrent transitions.
func TestStateMachineConcurrent(t *testing.T) {
	sm := NewStateMachine()
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if sm.Transition(StateStarting) {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("%d goroutines entered starting, want 1", wins)
	}
}
