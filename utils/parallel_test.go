package utils

import (
	"context"
	"testing"

	"go.viam.com/test"
)

func sumParallel(t *testing.T, n, threads int) float64 {
	t.Helper()
	var partials []float64
	err := GroupWorkParallel(
		context.Background(),
		n,
		threads,
		func(numGroups int) {
			partials = make([]float64, numGroups)
		},
		func(groupNum, groupSize, from, to int) (MemberWorkFunc, GroupWorkDoneFunc) {
			var local float64
			return func(memberNum, workNum int) {
					local += float64(workNum)
				}, func() {
					partials[groupNum] = local
				}
		},
	)
	test.That(t, err, test.ShouldBeNil)
	var total float64
	for _, p := range partials {
		total += p
	}
	return total
}

func TestGroupWorkParallel(t *testing.T) {
	const n = 5000
	want := float64(n*(n-1)) / 2
	for _, threads := range []int{0, 1, 2, 3, 7, 16, 2000} {
		test.That(t, sumParallel(t, n, threads), test.ShouldEqual, want)
	}
}

func TestGroupWorkParallelEmpty(t *testing.T) {
	called := false
	err := GroupWorkParallel(
		context.Background(),
		0,
		4,
		func(numGroups int) {
			test.That(t, numGroups, test.ShouldEqual, 0)
		},
		func(groupNum, groupSize, from, to int) (MemberWorkFunc, GroupWorkDoneFunc) {
			called = true
			return nil, nil
		},
	)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, called, test.ShouldBeFalse)
}

func TestGroupWorkParallelCoversEveryItem(t *testing.T) {
	const n = 37
	seen := make([]bool, n)
	err := GroupWorkParallel(
		context.Background(),
		n,
		5,
		func(numGroups int) {},
		func(groupNum, groupSize, from, to int) (MemberWorkFunc, GroupWorkDoneFunc) {
			return func(memberNum, workNum int) {
				// groups are disjoint so this is race-free
				seen[workNum] = true
			}, nil
		},
	)
	test.That(t, err, test.ShouldBeNil)
	for _, s := range seen {
		test.That(t, s, test.ShouldBeTrue)
	}
}
