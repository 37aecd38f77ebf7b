package narration

import (
	"math"
	"strings"
)

// Speaking-rate policy. The natural delivery of the synthesis voices sits
// around BaselineWPM; narration needing far fewer or far more words per minute
// than that is nudged by a fixed step. The buckets are deliberately coarse.
const (
	BaselineWPM = 150
	SlowWPM     = 100
	FastWPM     = 200

	SlowDownPercent = -30
	SpeedUpPercent  = 20

	// minTargetMinutes keeps very short targets from exploding the required rate.
	minTargetMinutes = 0.5
)

// EstimateRate returns the signed percentage adjustment for speaking text in
// roughly targetSeconds. A non-positive target means no adjustment.
func EstimateRate(text string, targetSeconds int) int {
	if targetSeconds <= 0 {
		return 0
	}

	words := len(strings.Fields(text))
	minutes := math.Max(float64(targetSeconds)/60.0, minTargetMinutes)
	wpm := float64(words) / minutes

	switch {
	case wpm < SlowWPM:
		return SlowDownPercent
	case wpm > FastWPM:
		return SpeedUpPercent
	default:
		return 0
	}
}
