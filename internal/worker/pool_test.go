package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

func TestWorkerPool_RunsEveryJob(t *testing.T) {
	pool := NewWorkerPool(arbor.NewLogger(), 3)

	results := make(map[int]error)
	pool.Run(context.Background(), 10, func(ctx context.Context, index int) error {
		if index%4 == 0 {
			return errors.New("boom")
		}
		return nil
	}, func(index int, err error) {
		results[index] = err
	})

	require.Len(t, results, 10)
	failed := 0
	for _, err := range results {
		if err != nil {
			failed++
		}
	}
	assert.Equal(t, 3, failed) // 0, 4, 8
}

func TestWorkerPool_BoundsConcurrency(t *testing.T) {
	pool := NewWorkerPool(arbor.NewLogger(), 2)

	var running, peak int32
	pool.Run(context.Background(), 8, func(ctx context.Context, index int) error {
		n := atomic.AddInt32(&running, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(&running, -1)
		return nil
	}, nil)

	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestWorkerPool_CancelReportsRemaining(t *testing.T) {
	pool := NewWorkerPool(arbor.NewLogger(), 1)
	ctx, cancel := context.WithCancel(context.Background())

	reported := 0
	cancelled := 0
	pool.Run(ctx, 5, func(ctx context.Context, index int) error {
		if index == 1 {
			cancel()
		}
		return nil
	}, func(index int, err error) {
		reported++
		if errors.Is(err, context.Canceled) {
			cancelled++
		}
	})

	assert.Equal(t, 5, reported)
	assert.GreaterOrEqual(t, cancelled, 3)
}

func TestWorkerPool_RecoversPanic(t *testing.T) {
	pool := NewWorkerPool(arbor.NewLogger(), 2)

	var errs []error
	pool.Run(context.Background(), 2, func(ctx context.Context, index int) error {
		if index == 0 {
			panic("bad job")
		}
		return nil
	}, func(index int, err error) {
		if err != nil {
			errs = append(errs, err)
		}
	})

	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "bad job")
}
