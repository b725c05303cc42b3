package search

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// batchChunk is the number of queries handled by one goroutine at a time.
const batchChunk = 256

// BatchNearestK answers NearestK for every query concurrently. Results are
// returned in query order. workers <= 0 uses GOMAXPROCS. The searcher must be
// safe for concurrent reads, which every built Strategy is.
func BatchNearestK(ctx context.Context, s Searcher, queries [][]float64, k, workers int) ([][]Neighbor, error) {
	if err := ValidateK(k); err != nil {
		return nil, err
	}
	out := make([][]Neighbor, len(queries))
	err := runBatch(ctx, len(queries), workers, func(i int) error {
		ns, err := s.NearestK(queries[i], k)
		out[i] = ns
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// BatchRadius answers Radius for every query concurrently.
func BatchRadius(ctx context.Context, s Searcher, queries [][]float64, r float64, maxResults, workers int) ([][]Neighbor, error) {
	if err := ValidateRadius(r); err != nil {
		return nil, err
	}
	out := make([][]Neighbor, len(queries))
	err := runBatch(ctx, len(queries), workers, func(i int) error {
		ns, err := s.Radius(queries[i], r, maxResults)
		out[i] = ns
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func runBatch(ctx context.Context, n, workers int, fn func(i int) error) error {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for start := 0; start < n; start += batchChunk {
		end := min(start+batchChunk, n)
		g.Go(func() error {
			for i := start; i < end; i++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				if err := fn(i); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}
