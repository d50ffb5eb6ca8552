package pointcloud

import (
	"math"

	"github.com/golang/geo/r3"
)

// VoxelKey identifies one cubic cell of a regular grid. Two points share a
// key iff they fall in the same cell at the grid's voxel size.
type VoxelKey struct {
	I, J, K int64
}

// KeyForPoint returns the key of the voxel containing p, componentwise
// floor(p / voxelSize).
func KeyForPoint(p r3.Vector, voxelSize float64) VoxelKey {
	return VoxelKey{
		I: int64(math.Floor(p.X / voxelSize)),
		J: int64(math.Floor(p.Y / voxelSize)),
		K: int64(math.Floor(p.Z / voxelSize)),
	}
}

// VoxelDownsample reduces the cloud to one representative point per occupied
// voxel: the first point observed in each cell wins. For a fixed input
// ordering the output is deterministic, in first-occupancy order.
func VoxelDownsample(pc PointCloud, voxelSize float64) PointCloud {
	seen := make(map[VoxelKey]struct{}, len(pc))
	out := make(PointCloud, 0, len(pc))
	for _, p := range pc {
		k := KeyForPoint(p, voxelSize)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, p)
	}
	return out
}
