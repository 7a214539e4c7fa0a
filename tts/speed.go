package tts

import (
	"math"
	"strconv"
	"strings"
)

// Speed bounds and presets.
var (
	DefaultSpeedSteps = []float64{0.5, 0.75, 1.0, 1.25, 1.5, 2.0}
	DefaultSpeed      = 1.0
	MinSpeed          = 0.5
	MaxSpeed          = 2.0
)

// ParseSpeed reads a stored speed. Missing or unparsable values give
// DefaultSpeed and the result is clamped to [MinSpeed, MaxSpeed].
func ParseSpeed(raw string) float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DefaultSpeed
	}
	speed, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(speed) {
		return DefaultSpeed
	}
	return ClampSpeed(speed)
}

// ClampSpeed limits speed to the supported range.
func ClampSpeed(speed float64) float64 {
	return math.Min(MaxSpeed, math.Max(MinSpeed, speed))
}

// FormatSpeed renders a speed for storage.
func FormatSpeed(speed float64) string {
	return strconv.FormatFloat(ClampSpeed(speed), 'f', -1, 64)
}

// StepSpeed moves to the adjacent preset in the given direction.
func StepSpeed(current float64, up bool) float64 {
	if up {
		for _, s := range DefaultSpeedSteps {
			if s > current+0.001 {
				return s
			}
		}
		return MaxSpeed
	}
	for i := len(DefaultSpeedSteps) - 1; i >= 0; i-- {
		if DefaultSpeedSteps[i] < current-0.001 {
			return DefaultSpeedSteps[i]
		}
	}
	return MinSpeed
}

// PluginSpeedOffset converts a rate multiplier to the percentage offset
// voice packs expect.
func PluginSpeedOffset(speed float64) float64 {
	return speed*100 - 100
}
