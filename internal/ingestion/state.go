package ingestion

// tally is the running failure accounting of a run.
type tally struct {
	consecutiveFailures int
	succeeded           int
}

// advance applies one batch outcome. It reports whether a periodic flush is
// due and whether the failure ceiling has been exceeded.
func advance(t tally, ok bool, cfg Config) (next tally, flush bool, abort bool) {
	if ok {
		t.consecutiveFailures = 0
		t.succeeded++
		flush = cfg.FlushEvery > 0 && t.succeeded%cfg.FlushEvery == 0
		return t, flush, false
	}
	t.consecutiveFailures++
	return t, false, t.consecutiveFailures > cfg.MaxConsecutiveFailures
}

// batchBounds partitions n documents into [start, end) ranges of at most
// size documents, in order.
func batchBounds(n, size int) [][2]int {
	if size < 1 {
		size = 1
	}
	bounds := make([][2]int, 0, (n+size-1)/size)
	for start := 0; start < n; start += size {
		end := start + size
		if end > n {
			end = n
		}
		bounds = append(bounds, [2]int{start, end})
	}
	return bounds
}
