package pointcloud

import (
	"bytes"
	"math"
	"path/filepath"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"lidarodom/spatialmath"
)

func testCloud() PointCloud {
	return PointCloud{
		{X: 1.25, Y: -2.5, Z: 0},
		{X: 0.001, Y: 100.5, Z: -42},
		{X: 0, Y: 0, Z: 0},
	}
}

func cloudsAlmostEqual(t *testing.T, got, want PointCloud, tol float64) {
	t.Helper()
	test.That(t, len(got), test.ShouldEqual, len(want))
	for i := range want {
		test.That(t, got[i].X, test.ShouldAlmostEqual, want[i].X, tol)
		test.That(t, got[i].Y, test.ShouldAlmostEqual, want[i].Y, tol)
		test.That(t, got[i].Z, test.ShouldAlmostEqual, want[i].Z, tol)
	}
}

func TestPCDRoundTripAscii(t *testing.T) {
	var buf bytes.Buffer
	test.That(t, WritePCD(testCloud(), &buf, PCDAscii), test.ShouldBeNil)
	got, err := ReadPCD(&buf)
	test.That(t, err, test.ShouldBeNil)
	cloudsAlmostEqual(t, got, testCloud(), 1e-5)
}

func TestPCDRoundTripBinary(t *testing.T) {
	var buf bytes.Buffer
	test.That(t, WritePCD(testCloud(), &buf, PCDBinary), test.ShouldBeNil)
	got, err := ReadPCD(&buf)
	test.That(t, err, test.ShouldBeNil)
	// float32 storage
	cloudsAlmostEqual(t, got, testCloud(), 1e-4)
}

func TestPCDFileRoundTrip(t *testing.T) {
	fn := filepath.Join(t.TempDir(), "cloud.pcd")
	test.That(t, WriteToFile(testCloud(), fn), test.ShouldBeNil)
	got, err := NewFromFile(fn)
	test.That(t, err, test.ShouldBeNil)
	cloudsAlmostEqual(t, got, testCloud(), 1e-4)
}

func TestNewFromFileUnknownExt(t *testing.T) {
	_, err := NewFromFile("cloud.xyz")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "do not know how")
}

func TestReadPCDBadHeader(t *testing.T) {
	_, err := ReadPCD(bytes.NewBufferString("VERSION .7\nFIELDS x y z rgb\n"))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "unsupported pcd fields")
}

func TestTransformAndRangeFilter(t *testing.T) {
	pc := PointCloud{{X: 1}, {X: 0.05}, {X: 30}}
	filtered := pc.RangeFilter(0.1, 20)
	test.That(t, filtered, test.ShouldResemble, PointCloud{{X: 1}})

	moved := pc.Transform(spatialmath.NewPoseFromAxisAngle(r3.Vector{Z: 1}, math.Pi))
	test.That(t, moved[0].X, test.ShouldAlmostEqual, -1, 1e-12)
	test.That(t, len(moved), test.ShouldEqual, len(pc))

	cloned := pc.Clone()
	cloned[0].X = 99
	test.That(t, pc[0].X, test.ShouldEqual, 1)
}
