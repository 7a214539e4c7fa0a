package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ebitengine/oto/v3"

	"github.com/dgnsrekt/readaloud/tts"
)

// pollInterval is how often a playback checks whether the device drained.
const pollInterval = 20 * time.Millisecond

// ErrNotClip is returned when a resource did not come from a Store.
var ErrNotClip = errors.New("resource is not an audio clip")

// voice is one playing stream on a device. *oto.Player satisfies it.
type voice interface {
	Play()
	Pause()
	IsPlaying() bool
	Err() error
	Close() error
}

// device opens streams. *oto.Context is adapted by otoDevice.
type device interface {
	NewVoice(r io.Reader) voice
}

type otoDevice struct {
	ctx *oto.Context
}

func (d otoDevice) NewVoice(r io.Reader) voice {
	return d.ctx.NewPlayer(r)
}

// Player plays clips on the default output device. Only one clip plays at
// a time.
type Player struct {
	device device
	format Format
	logger *log.Logger

	mu      sync.Mutex
	current *Playback
}

// NewPlayer opens the output device.
func NewPlayer(cfg tts.AudioConfig, logger *log.Logger) (*Player, error) {
	if logger == nil {
		logger = log.Default()
	}
	op := &oto.NewContextOptions{
		SampleRate:   cfg.SampleRate,
		ChannelCount: cfg.Channels,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   cfg.BufferSize,
	}
	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("failed to create oto context: %w", err)
	}
	<-ready

	return newPlayer(otoDevice{ctx: ctx}, Format{SampleRate: cfg.SampleRate, Channels: cfg.Channels}, logger), nil
}

func newPlayer(d device, format Format, logger *log.Logger) *Player {
	return &Player{device: d, format: format, logger: logger.WithPrefix("audio")}
}

// Start decodes res and begins playing it, stopping whatever played
// before.
func (p *Player) Start(res tts.Resource) (tts.Playback, error) {
	clip, ok := res.(*Clip)
	if !ok {
		return nil, ErrNotClip
	}
	data, err := clip.Bytes()
	if err != nil {
		return nil, err
	}
	pcm, err := Decode(data, clip.MimeType(), p.format)
	if err != nil {
		return nil, errors.Join(tts.ErrAudioLoad, err)
	}

	p.mu.Lock()
	prev := p.current
	pb := &Playback{
		pcm:  pcm,
		done: make(chan struct{}),
		stop: make(chan struct{}),
	}
	pb.voice = p.device.NewVoice(bytes.NewReader(pb.pcm))
	p.current = pb
	p.mu.Unlock()

	if prev != nil {
		prev.Stop()
	}

	pb.voice.Play()
	go pb.watch()
	p.logger.Debug("Playing clip", "id", clip.ID(), "bytes", len(pcm))
	return pb, nil
}

// Stop halts the clip being played, if any.
func (p *Player) Stop() {
	p.mu.Lock()
	pb := p.current
	p.current = nil
	p.mu.Unlock()
	if pb != nil {
		pb.Stop()
	}
}

// Playback is one clip on the device. The PCM buffer stays referenced
// until the stream is closed.
type Playback struct {
	voice voice
	pcm   []byte

	once sync.Once
	stop chan struct{}
	done chan struct{}
	err  error
}

// Done is closed when the clip finishes or is stopped.
func (pb *Playback) Done() <-chan struct{} { return pb.done }

// Err reports a device failure. It is nil after a natural end or a stop.
func (pb *Playback) Err() error {
	<-pb.done
	return pb.err
}

// Stop halts playback.
func (pb *Playback) Stop() {
	pb.once.Do(func() { close(pb.stop) })
	<-pb.done
}

func (pb *Playback) watch() {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	defer close(pb.done)

	for {
		select {
		case <-pb.stop:
			pb.voice.Pause()
			_ = pb.voice.Close()
			pb.pcm = nil
			return
		case <-ticker.C:
			if pb.voice.IsPlaying() {
				continue
			}
			pb.err = pb.voice.Err()
			_ = pb.voice.Close()
			pb.pcm = nil
			return
		}
	}
}
