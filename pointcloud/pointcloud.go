// Package pointcloud defines point clouds and the voxel structures the
// odometry pipeline indexes them with.
//
// A cloud here is a flat ordered slice of positions. Odometry never needs
// per-point payloads (color, intensity), so there is no point data type; a
// point is its position and nothing else.
package pointcloud

import (
	"github.com/golang/geo/r3"

	"lidarodom/spatialmath"
)

// PointCloud is an ordered sequence of 3D points.
type PointCloud []r3.Vector

// Clone returns a copy of the cloud.
func (pc PointCloud) Clone() PointCloud {
	out := make(PointCloud, len(pc))
	copy(out, pc)
	return out
}

// Transform returns a new cloud with every point moved by the given pose.
func (pc PointCloud) Transform(pose spatialmath.Pose) PointCloud {
	out := make(PointCloud, len(pc))
	for i, p := range pc {
		out[i] = pose.TransformPoint(p)
	}
	return out
}

// RangeFilter returns the points whose distance from the sensor origin lies
// in (minRange, maxRange). Order is preserved.
func (pc PointCloud) RangeFilter(minRange, maxRange float64) PointCloud {
	out := make(PointCloud, 0, len(pc))
	for _, p := range pc {
		d := p.Norm()
		if d > minRange && d < maxRange {
			out = append(out, p)
		}
	}
	return out
}
