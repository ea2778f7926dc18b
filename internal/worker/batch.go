package worker

import (
	"context"
)

// indexedJob runs fn for one slot of a pre-sized output slice
type indexedJob[T any] struct {
	index int
	out   []T
	fn    func(ctx context.Context, i int) T
}

func (j *indexedJob[T]) Execute(ctx context.Context) Result {
	if err := ctx.Err(); err != nil {
		return indexedResult{index: j.index, err: err}
	}
	// Each job owns exactly one slot, so writes never overlap
	j.out[j.index] = j.fn(ctx, j.index)
	return indexedResult{index: j.index}
}

type indexedResult struct {
	index int
	err   error
}

func (r indexedResult) GetError() error {
	return r.err
}

// RunIndexed evaluates fn for every i in [0, n) on a pool of workers and
// returns the results in index order, independent of completion order.
//
// fn is responsible for its own error handling: whatever it returns is what
// lands in the slot. ran[i] reports whether fn was called for slot i; slots
// skipped because ctx ended hold the zero value of T.
func RunIndexed[T any](ctx context.Context, workers, n int, fn func(ctx context.Context, i int) T) (out []T, ran []bool) {
	out = make([]T, n)
	ran = make([]bool, n)
	if n == 0 {
		return out, ran
	}

	pool := NewPool(ctx, workers)
	pool.Start()

	submitted := 0
	for ; submitted < n; submitted++ {
		if !pool.Submit(&indexedJob[T]{index: submitted, out: out, fn: fn}) {
			break
		}
	}

	var results []Result
	if submitted < n {
		results = pool.Shutdown()
	} else {
		results = pool.Wait()
	}
	for _, r := range results {
		res, ok := r.(indexedResult)
		if ok && res.GetError() == nil {
			ran[res.index] = true
		}
	}
	return out, ran
}
