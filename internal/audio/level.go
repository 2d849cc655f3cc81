package audio

import (
	"math"
)

// LevelData describes the loudness of one chunk of samples.
type LevelData struct {
	Level    int // 0-100
	Clipping bool
}

// CalculateLevel computes the RMS level of 16-bit samples scaled to 0-100
// and flags clipping. Used by the capture monitor, not the hot callback.
func CalculateLevel(samples []int16) LevelData {
	if len(samples) == 0 {
		return LevelData{}
	}

	var sum float64
	isClipping := false

	for _, sample := range samples {
		abs := math.Abs(float64(sample))
		sum += abs * abs
		if sample == math.MaxInt16 || sample == math.MinInt16 {
			isClipping = true
		}
	}

	rms := math.Sqrt(sum / float64(len(samples)))

	// Convert RMS to decibels relative to full scale, then map the usable
	// -60..-10 dB range onto 0-100.
	db := 20 * math.Log10(rms/32768.0)
	scaledLevel := (db + 60) * (100.0 / 50.0)

	if isClipping {
		scaledLevel = math.Max(scaledLevel, 95)
	}
	if scaledLevel < 0 {
		scaledLevel = 0
	} else if scaledLevel > 100 {
		scaledLevel = 100
	}

	return LevelData{
		Level:    int(scaledLevel),
		Clipping: isClipping,
	}
}
