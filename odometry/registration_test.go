package odometry

import (
	"context"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"lidarodom/pointcloud"
	"lidarodom/spatialmath"
)

// sceneCloud samples three mutually orthogonal planes on a coarse grid, a
// geometry that constrains all six degrees of freedom.
func sceneCloud() pointcloud.PointCloud {
	pc := make(pointcloud.PointCloud, 0, 75)
	for u := -5.0; u <= 5.0; u += 2.5 {
		for v := -5.0; v <= 5.0; v += 2.5 {
			pc = append(pc,
				r3.Vector{X: 10, Y: u, Z: v},
				r3.Vector{X: u, Y: 10, Z: v},
				r3.Vector{X: u, Y: v, Z: -2},
			)
		}
	}
	return pc
}

func sceneMap(cfg Config) *pointcloud.VoxelMap {
	vm := pointcloud.NewVoxelMap(cfg.VoxelSize, cfg.MaxPointsPerVoxel)
	vm.Insert(sceneCloud())
	return vm
}

func TestAlignIdentity(t *testing.T) {
	cfg := DefaultConfig()
	sm := NewScanMatcher(cfg)
	pose, matched := sm.Align(
		context.Background(),
		sceneCloud(),
		sceneMap(cfg),
		spatialmath.NewZeroPose(),
		2.0, 0.5,
	)
	test.That(t, spatialmath.AlmostEqual(pose, spatialmath.NewZeroPose(), 1e-6), test.ShouldBeTrue)
	test.That(t, len(matched), test.ShouldEqual, len(sceneCloud()))
	test.That(t, matched, test.ShouldResemble, sceneCloud())
}

func TestAlignTranslation(t *testing.T) {
	cfg := DefaultConfig()
	sm := NewScanMatcher(cfg)

	// the sensor moved +1 on x, so the new scan sees every point shifted -1
	shift := r3.Vector{X: -1}
	source := make(pointcloud.PointCloud, 0)
	for _, p := range sceneCloud() {
		source = append(source, p.Add(shift))
	}

	pose, matched := sm.Align(
		context.Background(),
		source,
		sceneMap(cfg),
		spatialmath.NewZeroPose(),
		3.0, 0.5,
	)
	test.That(t, pose.T.X, test.ShouldAlmostEqual, 1.0, 1e-3)
	test.That(t, pose.T.Y, test.ShouldAlmostEqual, 0.0, 1e-3)
	test.That(t, pose.T.Z, test.ShouldAlmostEqual, 0.0, 1e-3)
	test.That(t, pose.Theta(), test.ShouldAlmostEqual, 0.0, 1e-3)
	test.That(t, len(matched), test.ShouldBeGreaterThan, 0)
	// matched points are reported in the sensor frame, not the map frame
	test.That(t, matched, test.ShouldResemble, source)
}

func TestAlignEmptySource(t *testing.T) {
	cfg := DefaultConfig()
	sm := NewScanMatcher(cfg)
	guess := translationPose(3)
	pose, matched := sm.Align(context.Background(), nil, sceneMap(cfg), guess, 2.0, 0.5)
	// no correspondences: best effort is the initial guess
	test.That(t, spatialmath.AlmostEqual(pose, guess, 1e-12), test.ShouldBeTrue)
	test.That(t, len(matched), test.ShouldEqual, 0)
}

func TestAlignEmptyMap(t *testing.T) {
	cfg := DefaultConfig()
	sm := NewScanMatcher(cfg)
	guess := translationPose(-2)
	emptyMap := pointcloud.NewVoxelMap(cfg.VoxelSize, cfg.MaxPointsPerVoxel)
	pose, matched := sm.Align(context.Background(), sceneCloud(), emptyMap, guess, 2.0, 0.5)
	test.That(t, spatialmath.AlmostEqual(pose, guess, 1e-12), test.ShouldBeTrue)
	test.That(t, len(matched), test.ShouldEqual, 0)
}

func TestAlignThreadCountInvariance(t *testing.T) {
	shift := r3.Vector{X: -0.4, Y: 0.3, Z: 0.1}
	source := make(pointcloud.PointCloud, 0)
	for _, p := range sceneCloud() {
		source = append(source, p.Add(shift))
	}

	var poses []spatialmath.Pose
	for _, threads := range []int{1, 2, 8} {
		cfg := DefaultConfig()
		cfg.MaxNumThreads = threads
		sm := NewScanMatcher(cfg)
		pose, _ := sm.Align(
			context.Background(), source, sceneMap(cfg), spatialmath.NewZeroPose(), 3.0, 0.5)
		poses = append(poses, pose)
	}
	for _, pose := range poses[1:] {
		test.That(t, pose, test.ShouldResemble, poses[0])
	}
}
