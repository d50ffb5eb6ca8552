package odometry

import (
	"math"

	"lidarodom/spatialmath"
)

// AdaptiveThreshold estimates the correspondence search threshold from
// recent motion. Until the first motion sample arrives it reports the
// configured initial threshold (cold start); afterwards it reports the root
// mean square of the accumulated per-frame motion magnitudes. Near-stationary
// frames (below the minimum motion threshold) are discarded so that genuine
// stops do not drag the estimate toward zero.
type AdaptiveThreshold struct {
	initialThreshold float64
	minMotionTh      float64
	maxRange         float64

	modelSSE   float64
	numSamples int
}

// NewAdaptiveThreshold returns a cold-start estimator for the given config.
func NewAdaptiveThreshold(cfg Config) *AdaptiveThreshold {
	return &AdaptiveThreshold{
		initialThreshold: cfg.InitialThreshold,
		minMotionTh:      cfg.MinMotionTh,
		maxRange:         cfg.MaxRange,
	}
}

// ComputeThreshold returns the current correspondence threshold.
func (at *AdaptiveThreshold) ComputeThreshold() float64 {
	if at.numSamples < 1 {
		return at.initialThreshold
	}
	return math.Sqrt(at.modelSSE / float64(at.numSamples))
}

// UpdateMotion folds the motion between the previous accepted pose and the
// new one into the running statistic, unless it is below the minimum motion
// threshold. Called once per successfully registered frame.
func (at *AdaptiveThreshold) UpdateMotion(prev, curr spatialmath.Pose) {
	magnitude := at.motionMagnitude(spatialmath.PoseBetween(prev, curr))
	if magnitude > at.minMotionTh {
		at.modelSSE += magnitude * magnitude
		at.numSamples++
	}
}

// Reset discards all accumulated motion history.
func (at *AdaptiveThreshold) Reset() {
	at.modelSSE = 0
	at.numSamples = 0
}

// motionMagnitude maps a relative pose to a scalar displacement: the chord
// swept at max range by the rotation plus the translation norm. Max range
// acts as the lever arm so that a small rotation of a far-reaching scan
// counts for as much map displacement as it actually causes.
func (at *AdaptiveThreshold) motionMagnitude(delta spatialmath.Pose) float64 {
	deltaRot := 2.0 * at.maxRange * math.Sin(delta.Theta()/2.0)
	return deltaRot + delta.T.Norm()
}
