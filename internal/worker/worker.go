// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package worker runs a bounded pool of goroutines draining a
// queue.Queue, the fixed-size dispatch loop internal/manager drives its
// indexing jobs through.
package worker

import (
	"context"
	"fmt"
	"sync"

	"github.com/northbound/wikify/internal/logx"
	"github.com/northbound/wikify/internal/queue"
)

// HandlerFunc processes a job. It should return an error if processing fails.
type HandlerFunc func(ctx context.Context, job queue.Job) error

// StartWorkers starts a pool of workers that process jobs from the queue.
// It blocks until ctx is cancelled and every worker has returned.
func StartWorkers(ctx context.Context, q queue.Queue, handler HandlerFunc, workerCount int) error {
	logx.Printf("worker: starting %d workers", workerCount)

	var wg sync.WaitGroup
	wg.Add(workerCount)

	for i := 0; i < workerCount; i++ {
		workerID := i + 1
		go func() {
			defer wg.Done()
			workerLoop(ctx, q, handler, workerID)
		}()
	}

	wg.Wait()
	logx.Printf("worker: all workers stopped")
	return nil
}

// workerLoop dequeues and processes jobs until ctx is cancelled. A handler
// panic is recovered and converted into a logged error rather than
// crashing the worker goroutine; the loop then continues with the next job.
func workerLoop(ctx context.Context, q queue.Queue, handler HandlerFunc, workerID int) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := q.Dequeue(ctx)
		if err != nil {
			if err == context.Canceled || err == context.DeadlineExceeded {
				return
			}
			logx.Warnf("worker[%d]: dequeue error: %v", workerID, err)
			continue
		}

		if err := runHandler(ctx, handler, job); err != nil {
			logx.Warnf("worker[%d]: job type=%s failed: %v", workerID, job.Type, err)
		}
	}
}

// runHandler invokes handler, converting any panic into an error so one
// bad job can never take down the worker pool.
func runHandler(ctx context.Context, handler HandlerFunc, job queue.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in job handler: %v", r)
		}
	}()
	return handler(ctx, job)
}
