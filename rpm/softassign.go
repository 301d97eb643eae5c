package rpm

// softAssign runs alternating row/column normalization sweeps over a
// (K+1) x (N+1) assignment matrix whose last row and column are outlier
// slack. The slack row and column are never divided themselves but their
// entries take part in the sums of the other axis, so mass drains into them
// and the non-slack block converges toward doubly substochastic. A row or
// column whose sum is below eps1 is skipped as already empty.
//
// Runs a fixed number of sweeps; there is no convergence test.
func softAssign(a []float64, k, n, iters int, eps1 float64, workers int) {
	stride := n + 1
	for iter := 0; iter < iters; iter++ {
		parallelRows(workers, k, func(start, end int) {
			for r := start; r < end; r++ {
				row := a[r*stride : (r+1)*stride]
				sum := 0.0
				for _, v := range row {
					sum += v
				}
				if sum < eps1 {
					continue
				}
				inv := 1 / sum
				for i := range row {
					row[i] *= inv
				}
			}
		})

		parallelRows(workers, n, func(start, end int) {
			for c := start; c < end; c++ {
				sum := 0.0
				for r := 0; r <= k; r++ {
					sum += a[r*stride+c]
				}
				if sum < eps1 {
					continue
				}
				inv := 1 / sum
				for r := 0; r <= k; r++ {
					a[r*stride+c] *= inv
				}
			}
		})
	}
}
