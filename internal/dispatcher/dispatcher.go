// Package dispatcher runs batches of tasks on a bounded pool of workers.
package dispatcher

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Handler processes a single task.
type Handler[T, R any] func(ctx context.Context, task T) (R, error)

// Result pairs a task with the outcome of its handler.
type Result[T, R any] struct {
	Task  T
	Value R
	Err   error
}

// Pool fans a batch out to a fixed number of workers and joins on all of them.
type Pool[T, R any] struct {
	size    int
	handler Handler[T, R]
	logger  *zap.Logger
}

type job[T any] struct {
	index int
	task  T
}

// New creates a Pool with size workers. Sizes below one are treated as one.
func New[T, R any](size int, handler Handler[T, R], logger *zap.Logger) *Pool[T, R] {
	if size < 1 {
		size = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool[T, R]{size: size, handler: handler, logger: logger}
}

// Size returns the worker count.
func (p *Pool[T, R]) Size() int {
	return p.size
}

// RunBatch processes every task and returns results in submission order. A
// failing task never stops the rest of the batch.
func (p *Pool[T, R]) RunBatch(ctx context.Context, tasks []T) []Result[T, R] {
	results := make([]Result[T, R], len(tasks))
	if len(tasks) == 0 {
		return results
	}

	queue := make(chan job[T])
	var g errgroup.Group
	workers := min(p.size, len(tasks))
	for w := range workers {
		g.Go(func() error {
			for j := range queue {
				value, err := p.run(ctx, j.task)
				results[j.index] = Result[T, R]{Task: j.task, Value: value, Err: err}
				if err != nil {
					p.logger.Debug("task failed", zap.Int("worker", w), zap.Int("index", j.index), zap.Error(err))
				}
			}
			return nil
		})
	}
	for i, task := range tasks {
		queue <- job[T]{index: i, task: task}
	}
	close(queue)
	_ = g.Wait() // workers never return errors
	return results
}

func (p *Pool[T, R]) run(ctx context.Context, task T) (value R, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return p.handler(ctx, task)
}
