package tts

import (
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
)

// Metrics tracks one synthesis request.
type Metrics struct {
	Backend    string
	TextLength int
	Start      time.Time
	Duration   time.Duration
	AudioBytes int
	CacheHit   bool
	Err        error
}

// StartSynthesis starts tracking synthesis metrics.
func StartSynthesis(logger *log.Logger, backend, text string) *Metrics {
	m := &Metrics{
		Backend:    backend,
		TextLength: len(text),
		Start:      time.Now(),
	}
	logger.Debug("Synthesis started", "backend", backend, "textLength", m.TextLength)
	return m
}

// End records the result and logs it.
func (m *Metrics) End(logger *log.Logger, audioBytes int, cacheHit bool, err error) {
	m.Duration = time.Since(m.Start)
	m.AudioBytes = audioBytes
	m.CacheHit = cacheHit
	m.Err = err

	if err != nil {
		logger.Warn("Synthesis failed",
			"backend", m.Backend,
			"duration", m.Duration,
			"err", err)
		return
	}
	logger.Debug("Synthesis completed",
		"backend", m.Backend,
		"duration", m.Duration,
		"size", humanize.Bytes(uint64(audioBytes)),
		"cacheHit", cacheHit)
}
