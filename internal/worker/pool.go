package worker

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/ternarybob/arbor"
)

// Executor runs job number index. It should return promptly once ctx is cancelled.
type Executor func(ctx context.Context, index int) error

// DoneFunc is called once per job with its result. Calls are serialised, so the
// callback may update shared counters without further locking.
type DoneFunc func(index int, err error)

// WorkerPool runs a fixed batch of jobs on a bounded number of workers
type WorkerPool struct {
	logger     arbor.ILogger
	numWorkers int
}

// NewWorkerPool creates a pool with numWorkers workers (minimum 1)
func NewWorkerPool(logger arbor.ILogger, numWorkers int) *WorkerPool {
	if numWorkers < 1 {
		numWorkers = 1
	}
	return &WorkerPool{
		logger:     logger,
		numWorkers: numWorkers,
	}
}

// Size returns the number of workers
func (wp *WorkerPool) Size() int {
	return wp.numWorkers
}

// Run dispatches jobs 0..count-1 and blocks until every job has been reported
// to done. Jobs not yet started when ctx is cancelled are reported with ctx.Err().
// A panicking job is recovered and reported as an error.
func (wp *WorkerPool) Run(ctx context.Context, count int, execute Executor, done DoneFunc) {
	if count <= 0 {
		return
	}

	workers := wp.numWorkers
	if workers > count {
		workers = count
	}

	jobs := make(chan int)
	var (
		wg     sync.WaitGroup
		doneMu sync.Mutex
	)

	report := func(index int, err error) {
		doneMu.Lock()
		defer doneMu.Unlock()
		if done != nil {
			done(index, err)
		}
	}

	wp.logger.Debug().
		Int("num_workers", workers).
		Int("jobs", count).
		Msg("Starting worker pool")

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for index := range jobs {
				report(index, wp.execute(ctx, workerID, index, execute))
			}
		}(i)
	}

	next := 0
dispatch:
	for ; next < count; next++ {
		select {
		case <-ctx.Done():
			break dispatch
		case jobs <- next:
		}
	}
	close(jobs)
	wg.Wait()

	for ; next < count; next++ {
		report(next, ctx.Err())
	}

	wp.logger.Debug().Int("jobs", count).Msg("Worker pool finished")
}

func (wp *WorkerPool) execute(ctx context.Context, workerID, index int, execute Executor) (err error) {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			wp.logger.Error().
				Int("worker_id", workerID).
				Int("job", index).
				Str("panic", fmt.Sprintf("%v", r)).
				Str("stack", string(buf[:n])).
				Msg("Recovered from panic in worker")
			err = fmt.Errorf("worker panic: %v", r)
		}
	}()

	if err := ctx.Err(); err != nil {
		return err
	}
	return execute(ctx, index)
}
