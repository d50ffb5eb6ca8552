package odometry

import (
	"context"

	"github.com/edaniels/golog"

	"lidarodom/pointcloud"
	"lidarodom/spatialmath"
)

// Fractions of the map voxel size used for the two per-frame downsampling
// passes: a fine pass for the registration source cloud and a coarse pass
// for the points considered for map insertion.
const (
	sourceVoxelFactor   = 0.5
	keypointVoxelFactor = 1.5
)

// The matcher searches correspondences within three adaptive-threshold
// standard deviations and scales its robust kernel to a third of one.
const (
	searchRadiusFactor = 3.0
	kernelFactor       = 1.0 / 3.0
)

// Pipeline is the frame-to-frame odometry orchestrator. It owns the
// trajectory, the local map, and the adaptive threshold state, and is the
// only component meant for external use.
//
// Frames must be registered strictly in acquisition order from a single
// goroutine: each frame's initial guess and threshold depend on the previous
// frame's accepted result.
type Pipeline struct {
	cfg       Config
	logger    golog.Logger
	localMap  *pointcloud.VoxelMap
	threshold *AdaptiveThreshold
	matcher   *ScanMatcher
	poses     []spatialmath.Pose
}

// NewPipeline returns a pipeline for the given config. The config is
// validated (and normalized where needed) before use.
func NewPipeline(cfg Config, logger golog.Logger) *Pipeline {
	cfg.Validate(logger)
	return &Pipeline{
		cfg:       cfg,
		logger:    logger,
		localMap:  pointcloud.NewVoxelMap(cfg.VoxelSize, cfg.MaxPointsPerVoxel),
		threshold: NewAdaptiveThreshold(cfg),
		matcher:   NewScanMatcher(cfg),
	}
}

// Config returns the validated configuration the pipeline runs with.
func (p *Pipeline) Config() Config {
	return p.cfg
}

// RegisterFrame runs one frame through the full pipeline: deskew, range
// filter, two-resolution downsampling, registration against the local map,
// then map and threshold updates. It returns the deskewed/filtered frame and
// the sensor-frame source points that matched the map. timestamps may be nil;
// when
// present it must parallel frame with per-point relative times in [0,1].
//
// Degenerate frames never fail: an empty frame leaves all state untouched
// and returns empty clouds.
func (p *Pipeline) RegisterFrame(
	ctx context.Context,
	frame pointcloud.PointCloud,
	timestamps []float64,
) (pointcloud.PointCloud, pointcloud.PointCloud) {
	deskewed := frame
	if p.cfg.Deskew && len(p.poses) >= 2 {
		frameMotion := spatialmath.PoseBetween(p.poses[len(p.poses)-2], p.poses[len(p.poses)-1])
		deskewed = DeskewScan(frame, timestamps, frameMotion)
	}

	cropped := deskewed.RangeFilter(p.cfg.MinRange, p.cfg.MaxRange)
	source := pointcloud.VoxelDownsample(cropped, p.cfg.VoxelSize*sourceVoxelFactor)
	if len(source) == 0 {
		p.logger.Debugw("skipping empty frame", "frame", len(p.poses))
		return deskewed, nil
	}
	keypoints := pointcloud.VoxelDownsample(cropped, p.cfg.VoxelSize*keypointVoxelFactor)

	sigma := p.threshold.ComputeThreshold()
	prediction := p.predictNextPose()
	newPose, matched := p.matcher.Align(
		ctx,
		source,
		p.localMap,
		prediction,
		sigma*searchRadiusFactor,
		sigma*kernelFactor,
	)

	p.threshold.UpdateMotion(p.LastPose(), newPose)
	p.poses = append(p.poses, newPose)
	p.localMap.Insert(keypoints.Transform(newPose))
	p.localMap.RemoveFarPoints(newPose.T, p.cfg.MaxRange)

	p.logger.Debugw("registered frame",
		"frame", len(p.poses)-1,
		"points", len(frame),
		"source", len(source),
		"matched", len(matched),
		"threshold", sigma,
		"map_points", p.localMap.PointCount(),
	)
	return deskewed, matched
}

// LastPose returns the most recently appended trajectory entry, or identity
// if no frame has been processed.
func (p *Pipeline) LastPose() spatialmath.Pose {
	if len(p.poses) == 0 {
		return spatialmath.NewZeroPose()
	}
	return p.poses[len(p.poses)-1]
}

// Trajectory returns a copy of every accepted pose in registration order.
func (p *Pipeline) Trajectory() []spatialmath.Pose {
	out := make([]spatialmath.Pose, len(p.poses))
	copy(out, p.poses)
	return out
}

// LocalMap returns a snapshot of all points currently retained by the map.
func (p *Pipeline) LocalMap() pointcloud.PointCloud {
	return p.localMap.Points()
}

// Reset clears the trajectory, the local map, and the adaptive threshold
// back to initial values. The config is retained.
func (p *Pipeline) Reset() {
	p.poses = nil
	p.localMap.Clear()
	p.threshold.Reset()
}

// predictNextPose extrapolates the next pose under a constant-velocity
// assumption from the last two accepted poses, degrading to the last pose
// (or identity) when history is short.
func (p *Pipeline) predictNextPose() spatialmath.Pose {
	n := len(p.poses)
	if n < 2 {
		return p.LastPose()
	}
	velocity := spatialmath.PoseBetween(p.poses[n-2], p.poses[n-1])
	return spatialmath.Compose(p.poses[n-1], velocity)
}
