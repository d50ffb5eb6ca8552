package odometry

import (
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
	"gonum.org/v1/gonum/num/quat"

	"lidarodom/spatialmath"
)

func translationPose(x float64) spatialmath.Pose {
	return spatialmath.NewPose(quat.Number{Real: 1}, r3.Vector{X: x})
}

func TestThresholdColdStart(t *testing.T) {
	cfg := DefaultConfig()
	at := NewAdaptiveThreshold(cfg)
	test.That(t, at.ComputeThreshold(), test.ShouldEqual, cfg.InitialThreshold)
	// near-stationary motion keeps it in cold start
	at.UpdateMotion(spatialmath.NewZeroPose(), translationPose(cfg.MinMotionTh/2))
	test.That(t, at.ComputeThreshold(), test.ShouldEqual, cfg.InitialThreshold)
}

func TestThresholdTracksMotion(t *testing.T) {
	at := NewAdaptiveThreshold(DefaultConfig())
	at.UpdateMotion(spatialmath.NewZeroPose(), translationPose(2.0))
	test.That(t, at.ComputeThreshold(), test.ShouldAlmostEqual, 2.0, 1e-12)

	// a second identical sample keeps the same RMS
	at.UpdateMotion(spatialmath.NewZeroPose(), translationPose(2.0))
	test.That(t, at.ComputeThreshold(), test.ShouldAlmostEqual, 2.0, 1e-12)
}

func TestThresholdMonotonicUnderIncreasingMotion(t *testing.T) {
	at := NewAdaptiveThreshold(DefaultConfig())
	prev := at.ComputeThreshold()
	first := true
	for _, step := range []float64{0.5, 1, 2, 4, 8} {
		at.UpdateMotion(spatialmath.NewZeroPose(), translationPose(step))
		got := at.ComputeThreshold()
		if !first {
			test.That(t, got, test.ShouldBeGreaterThanOrEqualTo, prev)
		}
		prev = got
		first = false
	}
}

func TestThresholdRotationLeverArm(t *testing.T) {
	cfg := DefaultConfig()
	at := NewAdaptiveThreshold(cfg)
	// a 0.1 rad rotation sweeps roughly maxRange*0.1 at the far edge of the
	// scan, an order of magnitude above min_motion_th
	rot := spatialmath.NewPoseFromAxisAngle(r3.Vector{Z: 1}, 0.1)
	at.UpdateMotion(spatialmath.NewZeroPose(), rot)
	got := at.ComputeThreshold()
	test.That(t, got, test.ShouldBeGreaterThan, cfg.MaxRange*0.09)
	test.That(t, got, test.ShouldBeLessThan, cfg.MaxRange*0.11)
}

func TestThresholdReset(t *testing.T) {
	cfg := DefaultConfig()
	at := NewAdaptiveThreshold(cfg)
	at.UpdateMotion(spatialmath.NewZeroPose(), translationPose(5))
	test.That(t, at.ComputeThreshold(), test.ShouldNotEqual, cfg.InitialThreshold)
	at.Reset()
	test.That(t, at.ComputeThreshold(), test.ShouldEqual, cfg.InitialThreshold)
}
