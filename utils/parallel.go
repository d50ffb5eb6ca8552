// Package utils contains small shared helpers for the odometry packages.
package utils

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"

	"go.viam.com/utils"
)

// Work is grouped into fixed-size blocks so that group boundaries depend
// only on the total size. Callers that merge per-group results in group
// order therefore get output that is independent of both goroutine
// scheduling and the worker count.
const parallelBlockSize = 1024

type (
	// BeforeParallelGroupWorkFunc executes before any work starts with the calculated group count.
	BeforeParallelGroupWorkFunc func(numGroups int)
	// MemberWorkFunc runs for each work item (member) of a group.
	MemberWorkFunc func(memberNum, workNum int)
	// GroupWorkDoneFunc runs when a single group's work is done; helpful for merge stages.
	GroupWorkDoneFunc func()
	// GroupWorkFunc runs to determine what work members should do, if any.
	GroupWorkFunc func(groupNum, groupSize, from, to int) (MemberWorkFunc, GroupWorkDoneFunc)
)

// GroupWorkParallel fans totalSize work items, in fixed-size contiguous
// groups, across at most numThreads worker goroutines. numThreads <= 0 means
// one worker per available CPU.
func GroupWorkParallel(
	ctx context.Context,
	totalSize int,
	numThreads int,
	before BeforeParallelGroupWorkFunc,
	groupWork GroupWorkFunc,
) error {
	numGroups := (totalSize + parallelBlockSize - 1) / parallelBlockSize
	before(numGroups)
	if numGroups == 0 {
		return nil
	}
	if numThreads <= 0 {
		numThreads = runtime.GOMAXPROCS(0)
	}
	numWorkers := numThreads
	if numGroups < numWorkers {
		numWorkers = numGroups
	}

	var nextGroup int64
	var wait sync.WaitGroup
	wait.Add(numWorkers)
	for worker := 0; worker < numWorkers; worker++ {
		utils.PanicCapturingGo(func() {
			defer wait.Done()
			for {
				groupNum := int(atomic.AddInt64(&nextGroup, 1)) - 1
				if groupNum >= numGroups {
					return
				}
				from := groupNum * parallelBlockSize
				to := from + parallelBlockSize
				if to > totalSize {
					to = totalSize
				}
				memberWork, groupWorkDone := groupWork(groupNum, to-from, from, to)
				if memberWork != nil {
					memberNum := 0
					for workNum := from; workNum < to; workNum++ {
						memberWork(memberNum, workNum)
						memberNum++
					}
				}
				if groupWorkDone != nil {
					groupWorkDone()
				}
			}
		})
	}
	wait.Wait()
	return nil
}
