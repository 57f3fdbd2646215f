// Package parallel splits row-wise work into contiguous chunks and runs them
// on separate goroutines.
package parallel

import (
	"runtime"
	"sync"
)

// DefaultThreshold is the row count below which transforms and predictions
// stay on the calling goroutine.
const DefaultThreshold = 1000

// Parallelize divides [0, items) into one contiguous range per worker
// (GOMAXPROCS workers at most) and calls fn for each range concurrently.
// fn must only write to rows inside its own range.
func Parallelize(items int, fn func(start, end int)) {
	if items <= 0 {
		return
	}

	numWorkers := runtime.GOMAXPROCS(0)
	if numWorkers > items {
		numWorkers = items
	}
	chunkSize := (items + numWorkers - 1) / numWorkers

	var wg sync.WaitGroup
	for start := 0; start < items; start += chunkSize {
		end := min(start+chunkSize, items)
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			fn(s, e)
		}(start, end)
	}
	wg.Wait()
}

// ParallelizeWithThreshold runs fn(0, items) inline when items <= threshold
// and falls back to Parallelize otherwise.
func ParallelizeWithThreshold(items int, threshold int, fn func(start, end int)) {
	if items <= 0 {
		return
	}
	if items <= threshold {
		fn(0, items)
		return
	}
	Parallelize(items, fn)
}
