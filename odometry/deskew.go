package odometry

import (
	"lidarodom/pointcloud"
	"lidarodom/spatialmath"
)

// Scan points are corrected to the sensor frame at the middle of the
// acquisition interval, so a timestamp of 0.5 maps to no correction.
const midScanTimestamp = 0.5

// DeskewScan compensates per-point motion distortion. Each point carries a
// relative timestamp in [0,1] over the acquisition interval; frameMotion is
// the relative motion between the two most recent accepted poses, taken as
// the constant-velocity estimate for this frame. Every point is moved by the
// interpolated fraction of that motion between its own timestamp and
// mid-scan, yielding a new cloud; the input is not mutated.
//
// If timestamps do not pair one-to-one with points, the scan is returned
// unchanged.
func DeskewScan(
	frame pointcloud.PointCloud,
	timestamps []float64,
	frameMotion spatialmath.Pose,
) pointcloud.PointCloud {
	if len(timestamps) != len(frame) || len(frame) == 0 {
		return frame
	}
	identity := spatialmath.NewZeroPose()
	out := make(pointcloud.PointCloud, len(frame))
	for i, p := range frame {
		motion := spatialmath.Interpolate(identity, frameMotion, timestamps[i]-midScanTimestamp)
		out[i] = motion.TransformPoint(p)
	}
	return out
}
