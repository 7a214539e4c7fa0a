package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// ErrUnsupportedFormat is returned for encodings the player cannot decode.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// Format is the PCM layout of the output device.
type Format struct {
	SampleRate int
	Channels   int
}

// Decode converts encoded audio into signed 16-bit little endian PCM in
// the given output format.
func Decode(data []byte, mimeType string, out Format) ([]byte, error) {
	switch normalizeMime(mimeType) {
	case "audio/wav", "audio/wave", "audio/x-wav", "audio/vnd.wave", "":
		return decodeWAV(data, out)
	case "audio/l16", "audio/pcm":
		return data, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, mimeType)
	}
}

func normalizeMime(mimeType string) string {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	return mimeType
}

func decodeWAV(data []byte, out Format) ([]byte, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%w: not a wav file", ErrUnsupportedFormat)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decode wav: %w", err)
	}
	if buf.Format == nil || buf.Format.NumChannels < 1 || buf.Format.SampleRate < 1 {
		return nil, fmt.Errorf("%w: wav without format", ErrUnsupportedFormat)
	}

	samples := to16(buf.Data, int(dec.BitDepth))
	samples = remix(samples, buf.Format.NumChannels, out.Channels)
	samples = resample(samples, out.Channels, buf.Format.SampleRate, out.SampleRate)

	pcm := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(s))
	}
	return pcm, nil
}

// to16 scales integer samples of the given bit depth to 16 bits.
func to16(data []int, bitDepth int) []int16 {
	out := make([]int16, len(data))
	for i, v := range data {
		switch {
		case bitDepth == 8:
			out[i] = int16((v - 128) << 8)
		case bitDepth > 16:
			out[i] = int16(v >> (bitDepth - 16))
		default:
			out[i] = int16(v)
		}
	}
	return out
}

// remix converts between channel counts by averaging or duplicating.
func remix(samples []int16, from, to int) []int16 {
	if from == to || to < 1 {
		return samples
	}
	frames := len(samples) / from
	out := make([]int16, frames*to)
	for f := 0; f < frames; f++ {
		frame := samples[f*from : (f+1)*from]
		var sum int
		for _, s := range frame {
			sum += int(s)
		}
		mono := int16(sum / from)
		for c := 0; c < to; c++ {
			if from == 1 || to == 1 {
				out[f*to+c] = mono
			} else {
				out[f*to+c] = frame[c%from]
			}
		}
	}
	return out
}

// resample changes the sample rate by linear interpolation.
func resample(samples []int16, channels, from, to int) []int16 {
	if from == to || to < 1 || channels < 1 {
		return samples
	}
	frames := len(samples) / channels
	if frames == 0 {
		return samples
	}
	outFrames := int(int64(frames) * int64(to) / int64(from))
	out := make([]int16, outFrames*channels)
	ratio := float64(from) / float64(to)
	for f := 0; f < outFrames; f++ {
		pos := float64(f) * ratio
		i := int(pos)
		frac := pos - float64(i)
		j := i + 1
		if j >= frames {
			j = frames - 1
		}
		for c := 0; c < channels; c++ {
			a := float64(samples[i*channels+c])
			b := float64(samples[j*channels+c])
			out[f*channels+c] = int16(a + (b-a)*frac)
		}
	}
	return out
}

// EncodeWAV writes 16-bit PCM samples as a WAV file.
func EncodeWAV(w io.WriteSeeker, samples []int, format Format) error {
	enc := wav.NewEncoder(w, format.SampleRate, 16, format.Channels, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: format.Channels, SampleRate: format.SampleRate},
		Data:           samples,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close wav encoder: %w", err)
	}
	return nil
}
