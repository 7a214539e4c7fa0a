package cache

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/readaloud/tts"
)

// memoryShare is the fraction of the disk capacity kept in memory.
const memoryShare = 8

// SpeechCache keeps generated speech in memory and on disk.
type SpeechCache struct {
	memory *MemoryCache
	disk   *DiskCache
	logger *log.Logger
}

// NewSpeechCache opens a speech cache from the engine configuration.
func NewSpeechCache(cfg tts.CacheConfig, logger *log.Logger) (*SpeechCache, error) {
	if logger == nil {
		logger = log.Default()
	}
	capacity := cfg.MaxSizeMB * 1024 * 1024
	disk, err := NewDiskCache(cfg.Dir, capacity, cfg.CompressionLevel)
	if err != nil {
		return nil, err
	}
	return &SpeechCache{
		memory: NewMemoryCache(capacity / memoryShare),
		disk:   disk,
		logger: logger.WithPrefix("cache"),
	}, nil
}

// Key identifies audio for text spoken by voice at speed.
func Key(text, voice string, speed float64) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00", voice, strconv.FormatFloat(speed, 'f', 2, 64))
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns cached audio, promoting disk hits into memory.
func (c *SpeechCache) Get(text, voice string, speed float64) (tts.SpeechAudio, bool) {
	key := Key(text, voice, speed)

	if raw, ok := c.memory.Get(key); ok {
		audio, err := decodeSpeech(raw)
		if err == nil {
			return audio, true
		}
		_ = c.memory.Delete(key)
	}

	raw, ok := c.disk.Get(key)
	if !ok {
		return tts.SpeechAudio{}, false
	}
	audio, err := decodeSpeech(raw)
	if err != nil {
		c.logger.Debug("Dropping corrupt entry", "key", key[:12], "err", err)
		_ = c.disk.Delete(key)
		return tts.SpeechAudio{}, false
	}
	if err := c.memory.Put(key, raw); err != nil {
		c.logger.Debug("Not promoting entry", "key", key[:12], "err", err)
	}
	return audio, true
}

// Put stores audio in both tiers.
func (c *SpeechCache) Put(text, voice string, speed float64, audio tts.SpeechAudio) error {
	key := Key(text, voice, speed)
	raw := encodeSpeech(audio)

	if err := c.memory.Put(key, raw); err != nil {
		c.logger.Debug("Not caching in memory", "key", key[:12], "err", err)
	}
	return c.disk.Put(key, raw)
}

// Stats returns the counters of both tiers.
func (c *SpeechCache) Stats() map[Level]Stats {
	return map[Level]Stats{
		LevelMemory: c.memory.Stats(),
		LevelDisk:   c.disk.Stats(),
	}
}

// Clear empties both tiers.
func (c *SpeechCache) Clear() error {
	_ = c.memory.Clear()
	return c.disk.Clear()
}

// Prune drops disk entries written before cutoff and reports how many
// went.
func (c *SpeechCache) Prune(cutoff time.Time) int {
	return c.disk.RemoveOlderThan(cutoff)
}

// Close flushes the disk index.
func (c *SpeechCache) Close() error {
	return c.disk.Close()
}

// An entry is the mime type, a NUL byte, then the audio.
func encodeSpeech(audio tts.SpeechAudio) []byte {
	buf := make([]byte, 0, len(audio.MimeType)+1+len(audio.Data))
	buf = append(buf, audio.MimeType...)
	buf = append(buf, 0)
	return append(buf, audio.Data...)
}

func decodeSpeech(raw []byte) (tts.SpeechAudio, error) {
	i := bytes.IndexByte(raw, 0)
	if i < 0 {
		return tts.SpeechAudio{}, ErrCacheCorrupted
	}
	return tts.SpeechAudio{MimeType: string(raw[:i]), Data: raw[i+1:]}, nil
}
