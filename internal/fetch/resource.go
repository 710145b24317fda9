// Package fetch implements the asynchronous "fetch, then loading/data/error"
// state machine shared by every marketplace source.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/soyeahso/bazaar/internal/logging"
)

// Race timeouts.
const (
	DefaultTimeout = 30 * time.Second
	SlowTimeout    = 120 * time.Second
)

// ErrTimeout is reported when a fetch does not settle before its deadline.
var ErrTimeout = errors.New("request timeout")

// Func produces a fresh value for a Resource.
type Func[T any] func(ctx context.Context) (T, error)

// State is a point-in-time copy of a Resource.
type State[T any] struct {
	Data    T
	Loading bool
	Err     error
}

// Options configures a Resource. The zero value is usable.
type Options struct {
	// Timeout bounds each Refetch; zero selects DefaultTimeout.
	Timeout time.Duration
	// OnError is called synchronously with every normalized failure.
	OnError func(error)
	// OnChange is called after Loading flips on and again after settling.
	OnChange func()
	Log      *logging.Logger
}

// Resource holds the result of the most recent settled fetch.
//
// Refetch calls are not mutually excluded. When two overlap, whichever
// settles last owns the final state.
type Resource[T any] struct {
	name     string
	fn       Func[T]
	timeout  time.Duration
	onError  func(error)
	onChange func()
	log      *logging.Logger

	mu      sync.Mutex
	data    T
	loading bool
	err     error
	version uint64
}

// New creates an idle Resource holding initial. Nothing is fetched until
// Refetch is called.
func New[T any](name string, fn Func[T], initial T, opts Options) *Resource[T] {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Resource[T]{
		name:     name,
		fn:       fn,
		timeout:  timeout,
		onError:  opts.OnError,
		onChange: opts.OnChange,
		log:      logging.OrNop(opts.Log).Sub("fetch").With("resource", name),
		data:     initial,
	}
}

// Name returns the resource name used in logs.
func (r *Resource[T]) Name() string { return r.name }

// Refetch runs the fetch function against the timeout and records the
// outcome. Failures are stored, never returned.
func (r *Resource[T]) Refetch(ctx context.Context) {
	r.mu.Lock()
	r.loading = true
	r.err = nil
	r.mu.Unlock()
	r.changed()

	data, err := r.race(ctx)

	r.mu.Lock()
	if err != nil {
		r.err = err
	} else {
		r.data = data
		r.version++
	}
	r.loading = false
	r.mu.Unlock()

	if err != nil {
		r.log.Error().Err(err).Msg("fetch failed")
		if r.onError != nil {
			r.onError(err)
		}
	}
	r.changed()
}

func (r *Resource[T]) changed() {
	if r.onChange != nil {
		r.onChange()
	}
}

type outcome[T any] struct {
	data T
	err  error
}

// race returns whichever settles first: the fetch, the timer or ctx.
// The losing fetch keeps running and its result is dropped.
func (r *Resource[T]) race(ctx context.Context) (T, error) {
	done := make(chan outcome[T], 1)

	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- outcome[T]{err: Normalize(p)}
			}
		}()
		data, err := r.fn(ctx)
		done <- outcome[T]{data: data, err: err}
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	var zero T
	select {
	case o := <-done:
		if o.err != nil {
			return zero, o.err
		}
		return o.data, nil
	case <-timer.C:
		return zero, fmt.Errorf("%w after %s", ErrTimeout, r.timeout)
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// State returns a copy of the current state.
func (r *Resource[T]) State() State[T] {
	r.mu.Lock()
	defer r.mu.Unlock()
	return State[T]{Data: r.data, Loading: r.loading, Err: r.err}
}

// Data returns the last successfully fetched value.
func (r *Resource[T]) Data() T {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.data
}

// Loading reports whether a Refetch is in flight.
func (r *Resource[T]) Loading() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loading
}

// Err returns the last failure, or nil after a success.
func (r *Resource[T]) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Current returns Data together with the Version it belongs to.
func (r *Resource[T]) Current() (T, uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.data, r.version
}

// Version increases every time Data is replaced.
func (r *Resource[T]) Version() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.version
}
