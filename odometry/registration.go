package odometry

import (
	"context"
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"lidarodom/pointcloud"
	"lidarodom/spatialmath"
	"lidarodom/utils"
)

// ScanMatcher iteratively aligns a downsampled scan against the local map by
// robust weighted point-to-point least squares.
type ScanMatcher struct {
	maxIterations        int
	convergenceCriterion float64
	numThreads           int
}

// NewScanMatcher returns a matcher configured from cfg.
func NewScanMatcher(cfg Config) *ScanMatcher {
	return &ScanMatcher{
		maxIterations:        cfg.MaxNumIterations,
		convergenceCriterion: cfg.ConvergenceCriterion,
		numThreads:           cfg.MaxNumThreads,
	}
}

// normalEquations accumulates the 6x6 system J^T J dx = -J^T r over matched
// point pairs. Sums are associative, so per-goroutine partials merged in a
// fixed order give thread-count-independent results.
type normalEquations struct {
	jtj     [6][6]float64
	jtr     [6]float64
	matched pointcloud.PointCloud
}

func (ne *normalEquations) add(src, tgt r3.Vector, kernel float64) {
	res := src.Sub(tgt)
	// robust kernel: down-weight pairs with large residuals
	res2 := res.Dot(res)
	w := kernel + res2
	w = (kernel * kernel) / (w * w)

	// rows of the 3x6 Jacobian of (T(x) src - tgt) wrt the twist (v, omega)
	rows := [3][6]float64{
		{1, 0, 0, 0, src.Z, -src.Y},
		{0, 1, 0, -src.Z, 0, src.X},
		{0, 0, 1, src.Y, -src.X, 0},
	}
	r := [3]float64{res.X, res.Y, res.Z}
	for k := 0; k < 3; k++ {
		for i := 0; i < 6; i++ {
			ji := rows[k][i]
			if ji == 0 {
				continue
			}
			wji := w * ji
			for j := i; j < 6; j++ {
				ne.jtj[i][j] += wji * rows[k][j]
			}
			ne.jtr[i] += wji * r[k]
		}
	}
}

func (ne *normalEquations) merge(other *normalEquations) {
	for i := 0; i < 6; i++ {
		for j := i; j < 6; j++ {
			ne.jtj[i][j] += other.jtj[i][j]
		}
		ne.jtr[i] += other.jtr[i]
	}
	ne.matched = append(ne.matched, other.matched...)
}

// buildSystem transforms the source by the current estimate, matches every
// point against the map within maxDistance, and accumulates the linearized
// system, fanning the per-point work across the matcher's thread budget.
func (sm *ScanMatcher) buildSystem(
	ctx context.Context,
	source pointcloud.PointCloud,
	localMap *pointcloud.VoxelMap,
	estimate spatialmath.Pose,
	maxDistance, kernel float64,
) normalEquations {
	var partials []normalEquations
	//nolint:errcheck // the group worker never errors
	utils.GroupWorkParallel(
		ctx,
		len(source),
		sm.numThreads,
		func(numGroups int) {
			partials = make([]normalEquations, numGroups)
		},
		func(groupNum, groupSize, from, to int) (utils.MemberWorkFunc, utils.GroupWorkDoneFunc) {
			var local normalEquations
			return func(memberNum, workNum int) {
					src := estimate.TransformPoint(source[workNum])
					tgt, ok := localMap.NearestNeighbor(src, maxDistance)
					if !ok {
						return
					}
					local.add(src, tgt, kernel)
					local.matched = append(local.matched, source[workNum])
				}, func() {
					partials[groupNum] = local
				}
		},
	)
	var system normalEquations
	for i := range partials {
		system.merge(&partials[i])
	}
	return system
}

// solve computes dx = (J^T J)^-1 (-J^T r). The false return covers both an
// empty system and a degenerate (non positive definite) one.
func (ne *normalEquations) solve() (v, w r3.Vector, ok bool) {
	if len(ne.matched) == 0 {
		return r3.Vector{}, r3.Vector{}, false
	}
	sym := mat.NewSymDense(6, nil)
	for i := 0; i < 6; i++ {
		for j := i; j < 6; j++ {
			sym.SetSym(i, j, ne.jtj[i][j])
		}
	}
	neg := make([]float64, 6)
	for i, b := range ne.jtr {
		neg[i] = -b
	}
	var chol mat.Cholesky
	if !chol.Factorize(sym) {
		return r3.Vector{}, r3.Vector{}, false
	}
	var dx mat.VecDense
	if err := chol.SolveVecTo(&dx, mat.NewVecDense(6, neg)); err != nil {
		return r3.Vector{}, r3.Vector{}, false
	}
	v = r3.Vector{X: dx.AtVec(0), Y: dx.AtVec(1), Z: dx.AtVec(2)}
	w = r3.Vector{X: dx.AtVec(3), Y: dx.AtVec(4), Z: dx.AtVec(5)}
	return v, w, true
}

// Align refines initialGuess so that source lines up with the local map, and
// returns the refined pose together with the source points, still in the
// sensor frame, that found a correspondence in the final round. Registration
// always returns a
// best-effort pose: with no correspondences or a degenerate system it stops
// immediately at the current estimate.
func (sm *ScanMatcher) Align(
	ctx context.Context,
	source pointcloud.PointCloud,
	localMap *pointcloud.VoxelMap,
	initialGuess spatialmath.Pose,
	maxDistance, kernel float64,
) (spatialmath.Pose, pointcloud.PointCloud) {
	estimate := initialGuess
	var matched pointcloud.PointCloud
	for iter := 0; iter < sm.maxIterations; iter++ {
		system := sm.buildSystem(ctx, source, localMap, estimate, maxDistance, kernel)
		matched = system.matched
		v, w, ok := system.solve()
		if !ok {
			break
		}
		increment := spatialmath.NewPoseFromTwist(v, w)
		estimate = spatialmath.Compose(increment, estimate).Normalize()
		if math.Hypot(v.Norm(), w.Norm()) < sm.convergenceCriterion {
			break
		}
	}
	return estimate, matched
}
