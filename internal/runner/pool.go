package runner

import (
	"context"
	"sync"
)

type Job func() error

// RunPool executes jobs with at most maxWorkers running concurrently and
// returns the errors they produced. Every job runs even after ctx is
// cancelled: a cancelled job resolves immediately to its own cancelled
// outcome, so no scheduled world is ever dropped. Cancellation only releases
// the throttle, since there is nothing left worth pacing.
func RunPool(ctx context.Context, maxWorkers int, jobs []Job) []error {
	if maxWorkers < 1 {
		maxWorkers = 1
	}

	var (
		mu   sync.Mutex
		errs []error
		wg   sync.WaitGroup
	)
	collect := func(err error) {
		if err == nil {
			return
		}
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}

	sem := make(chan struct{}, maxWorkers)
	for _, job := range jobs {
		wg.Add(1)
		select {
		case sem <- struct{}{}:
			go func(j Job) {
				defer wg.Done()
				defer func() { <-sem }()
				collect(j())
			}(job)
		case <-ctx.Done():
			go func(j Job) {
				defer wg.Done()
				collect(j())
			}(job)
		}
	}
	wg.Wait()
	return errs
}
