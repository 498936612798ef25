package matroska

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
)

// runBatches dispatches each item in jobs to fn through a fixed pool of
// size workers, each pulling the next un-started index from a shared
// channel (a sliding-window claim, equivalent to an atomic counter).
// Results land at their original index regardless of completion order; the
// caller is responsible for re-sorting anything order-sensitive downstream.
// The first error cancels the remaining in-flight and queued work and is
// returned; workers already running are left to settle before returning.
func runBatches[T, R any](ctx context.Context, workers int, jobs []T, fn func(context.Context, T) (R, error)) ([]R, error) {
	results := make([]R, len(jobs))

	if workers < 1 {
		workers = 1
	}
	if workers > len(jobs) {
		workers = len(jobs)
	}
	if workers == 0 {
		return results, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	indices := make(chan int)
	errs := make([]error, len(jobs))

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for idx := range indices {
				result, err := fn(ctx, jobs[idx])
				if err != nil {
					errs[idx] = err
					cancel()

					return
				}

				results[idx] = result
			}
		}()
	}

	go func() {
		defer close(indices)

		for i := range jobs {
			select {
			case indices <- i:
			case <-ctx.Done():
				return
			}
		}
	}()

	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, errors.Wrap(err, "batch fetch failed")
		}
	}

	return results, nil
}
