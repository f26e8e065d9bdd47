package sqlbind

import (
	"context"
	"database/sql"
)

// Future is the pending result of a query or statement started with GoSelect,
// GoGet or GoExec
//
// a Future resolves exactly once; Wait and WaitContext may be called from any
// goroutine, any number of times
type Future[T any] struct {
	done  chan struct{}
	value T
	err   error
}

// Wait blocks until the result is available
func (f *Future[T]) Wait() (T, error) {
	<-f.done
	return f.value, f.err
}

// WaitContext blocks until the result is available or ctx is done
//
// on cancellation the in-flight work is not abandoned mid-cleanup - its
// goroutine still releases its rows - but its result is discarded
func (f *Future[T]) WaitContext(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func goFuture[T any](fn func() (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		f.value, f.err = fn()
	}()
	return f
}

// GoSelect starts Select on its own goroutine, returning a Future for the result
//
// pass a ctx with a deadline (or cancel it) to bound the underlying query
func GoSelect[T any](ctx context.Context, sqli SqlInterface, binder *Binder[T], query string, args ...any) *Future[[]T] {
	return goFuture(func() ([]T, error) {
		return Select[T](ctx, sqli, binder, query, args...)
	})
}

// GoGet starts Get on its own goroutine, returning a Future for the result
func GoGet[T any](ctx context.Context, sqli SqlInterface, binder *Binder[T], query string, args ...any) *Future[T] {
	return goFuture(func() (T, error) {
		return Get[T](ctx, sqli, binder, query, args...)
	})
}

// GoExec starts a statement execution on its own goroutine, returning a Future
// for its sql.Result
func GoExec(ctx context.Context, e Execer, query string, args ...any) *Future[sql.Result] {
	return goFuture(func() (sql.Result, error) {
		return e.ExecContext(ctx, query, args...)
	})
}
