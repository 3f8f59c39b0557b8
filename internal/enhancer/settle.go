package enhancer

import (
	"context"
	"sync"
)

// Result is the outcome of one task.
type Result[T any] struct {
	Value T
	Err   error
}

// SettleAll runs every task concurrently and waits for all of them. A
// failing task never cancels its siblings.
func SettleAll[T any](ctx context.Context, tasks []func(context.Context) (T, error)) []Result[T] {
	results := make([]Result[T], len(tasks))

	var wg sync.WaitGroup
	for i, task := range tasks {
		wg.Add(1)
		go func(i int, task func(context.Context) (T, error)) {
			defer wg.Done()
			value, err := task(ctx)
			results[i] = Result[T]{Value: value, Err: err}
		}(i, task)
	}
	wg.Wait()

	return results
}
