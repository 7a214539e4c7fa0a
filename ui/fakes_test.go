package ui

import (
	"context"
	"sync"

	"github.com/dgnsrekt/readaloud/tts"
)

type fakeReader struct {
	mu        sync.Mutex
	status    tts.Status
	voices    []tts.VoiceDescriptor
	toggles   int
	stops     int
	selection string
	err       error
	onStatus  func(tts.Status)
	onNotice  func(tts.Notice)
}

func newFakeReader() *fakeReader {
	return &fakeReader{status: tts.Status{State: tts.StateIdle, Index: -1, Speed: 1}}
}

func (f *fakeReader) Toggle(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.toggles++
	return f.err
}

func (f *fakeReader) StartFrom(_ context.Context, selection string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.selection = selection
	return f.err
}

func (f *fakeReader) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	f.status.State = tts.StateIdle
}

func (f *fakeReader) Status() tts.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeReader) Voices() []tts.VoiceDescriptor { return f.voices }

func (f *fakeReader) SetSpeed(speed float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status.Speed = speed
	return nil
}

func (f *fakeReader) SetHighlightEnabled(enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status.HighlightEnabled = enabled
	return nil
}

func (f *fakeReader) SetVoiceIndex(index int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status.VoiceIndex = index
	return nil
}

func (f *fakeReader) SetServerVoice(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status.ServerVoice = id
	return nil
}

func (f *fakeReader) OnStatus(fn func(tts.Status)) { f.onStatus = fn }
func (f *fakeReader) OnNotice(fn func(tts.Notice)) { f.onNotice = fn }
