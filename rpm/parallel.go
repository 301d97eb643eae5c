package rpm

import (
	"runtime"
	"sync"
)

// parallelRows splits [0, n) into contiguous chunks and runs fn over each
// chunk on its own goroutine. Chunks are disjoint, so workers never write
// the same row. fn is called inline when the range is small or a single
// worker is requested.
func parallelRows(workers, n int, fn func(start, end int)) {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > n {
		workers = n
	}
	if workers <= 1 || n < 2 {
		fn(0, n)
		return
	}

	chunk := (n + workers - 1) / workers
	var wg sync.WaitGroup
	for start := 0; start < n; start += chunk {
		end := start + chunk
		if end > n {
			end = n
		}
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			fn(start, end)
		}(start, end)
	}
	wg.Wait()
}
