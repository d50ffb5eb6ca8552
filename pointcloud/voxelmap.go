package pointcloud

import (
	"github.com/golang/geo/r3"
)

// VoxelMap is a sparse voxel-hashed index over accumulated map points. Each
// occupied cell holds at most maxPointsPerVoxel points; inserts into a full
// cell are dropped, so the earliest points in a cell are the ones retained.
// Total memory is bounded by occupied cells times the per-cell capacity.
//
// A VoxelMap is not safe for concurrent mutation; the pipeline owns one and
// touches it from a single goroutine.
type VoxelMap struct {
	voxelSize         float64
	maxPointsPerVoxel int
	voxels            map[VoxelKey][]r3.Vector
}

// NewVoxelMap returns an empty map with the given cell size and per-cell
// capacity.
func NewVoxelMap(voxelSize float64, maxPointsPerVoxel int) *VoxelMap {
	return &VoxelMap{
		voxelSize:         voxelSize,
		maxPointsPerVoxel: maxPointsPerVoxel,
		voxels:            make(map[VoxelKey][]r3.Vector),
	}
}

// Insert adds points to their cells, creating cells as needed and silently
// dropping points whose cell is already at capacity.
func (vm *VoxelMap) Insert(points PointCloud) {
	for _, p := range points {
		k := KeyForPoint(p, vm.voxelSize)
		cell, ok := vm.voxels[k]
		if !ok {
			cell = make([]r3.Vector, 0, vm.maxPointsPerVoxel)
		} else if len(cell) >= vm.maxPointsPerVoxel {
			continue
		}
		vm.voxels[k] = append(cell, p)
	}
}

// NearestNeighbor returns the closest map point to q within maxRadius,
// searching the 3x3x3 block of cells around q's own cell. The second return
// is false if no map point lies within range. Ties at exactly equal distance
// resolve to the earliest candidate visited; cells are visited in a fixed
// key order and points in insertion order, so the result is deterministic.
func (vm *VoxelMap) NearestNeighbor(q r3.Vector, maxRadius float64) (r3.Vector, bool) {
	center := KeyForPoint(q, vm.voxelSize)
	best := r3.Vector{}
	bestDist2 := maxRadius * maxRadius
	found := false
	for di := int64(-1); di <= 1; di++ {
		for dj := int64(-1); dj <= 1; dj++ {
			for dk := int64(-1); dk <= 1; dk++ {
				cell, ok := vm.voxels[VoxelKey{center.I + di, center.J + dj, center.K + dk}]
				if !ok {
					continue
				}
				for _, p := range cell {
					d := p.Sub(q)
					dist2 := d.Dot(d)
					if dist2 < bestDist2 || (!found && dist2 == bestDist2) {
						best = p
						bestDist2 = dist2
						found = true
					}
				}
			}
		}
	}
	return best, found
}

// Correspondences pairs every query point with its nearest map point within
// maxRadius. Query points with no in-range neighbor are skipped; the two
// returned clouds are parallel and follow query order.
func (vm *VoxelMap) Correspondences(query PointCloud, maxRadius float64) (PointCloud, PointCloud) {
	src := make(PointCloud, 0, len(query))
	tgt := make(PointCloud, 0, len(query))
	for _, q := range query {
		if nn, ok := vm.NearestNeighbor(q, maxRadius); ok {
			src = append(src, q)
			tgt = append(tgt, nn)
		}
	}
	return src, tgt
}

// RemoveFarPoints drops entire cells whose representative point (the first
// inserted) is farther than maxRange from origin.
func (vm *VoxelMap) RemoveFarPoints(origin r3.Vector, maxRange float64) {
	maxRange2 := maxRange * maxRange
	for k, cell := range vm.voxels {
		rep := cell[0].Sub(origin)
		if rep.Dot(rep) > maxRange2 {
			delete(vm.voxels, k)
		}
	}
}

// Points returns a snapshot of every retained point. Ordering follows map
// iteration and is unspecified.
func (vm *VoxelMap) Points() PointCloud {
	out := make(PointCloud, 0, vm.PointCount())
	for _, cell := range vm.voxels {
		out = append(out, cell...)
	}
	return out
}

// PointCount returns the number of points currently retained.
func (vm *VoxelMap) PointCount() int {
	n := 0
	for _, cell := range vm.voxels {
		n += len(cell)
	}
	return n
}

// Empty reports whether the map holds no points.
func (vm *VoxelMap) Empty() bool {
	return len(vm.voxels) == 0
}

// Clear drops every cell.
func (vm *VoxelMap) Clear() {
	vm.voxels = make(map[VoxelKey][]r3.Vector)
}
