// Package capability holds the process-wide transcription and VAD backends
// that every streaming session shares.
//
// Backends are expensive to construct (model loads, connection pools), so
// they are built lazily by the first session that needs them and then reused.
// Concurrent first callers share one construction. A failed construction is
// not remembered: the next session tries again.
package capability

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// InitError reports that a capability could not be constructed.
type InitError struct {
	Capability string
	Err        error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("capability: initialise %s: %v", e.Capability, e.Err)
}

func (e *InitError) Unwrap() error { return e.Err }

// Lazy constructs a T at most once successfully. The zero value is not
// usable; create one with [NewLazy] or [Ready].
type Lazy[T any] struct {
	name  string
	build func(context.Context) (T, error)
	group singleflight.Group
	value atomic.Pointer[T]
}

// NewLazy returns a Lazy that calls build on first use.
func NewLazy[T any](name string, build func(context.Context) (T, error)) *Lazy[T] {
	return &Lazy[T]{name: name, build: build}
}

// Ready returns a Lazy that already holds v.
func Ready[T any](name string, v T) *Lazy[T] {
	l := &Lazy[T]{name: name}
	l.value.Store(&v)
	return l
}

// Name returns the capability name used in errors and logs.
func (l *Lazy[T]) Name() string { return l.name }

// Loaded reports whether construction has succeeded.
func (l *Lazy[T]) Loaded() bool { return l.value.Load() != nil }

// Get returns the constructed value, building it if needed. Construction is
// detached from ctx cancellation because its result is shared by every
// waiting caller. Errors are returned as *InitError.
func (l *Lazy[T]) Get(ctx context.Context) (T, error) {
	if v := l.value.Load(); v != nil {
		return *v, nil
	}
	res, err, _ := l.group.Do(l.name, func() (any, error) {
		if v := l.value.Load(); v != nil {
			return v, nil
		}
		if l.build == nil {
			return nil, errors.New("no constructor")
		}
		v, err := l.build(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		l.value.Store(&v)
		return &v, nil
	})
	if err != nil {
		var zero T
		return zero, &InitError{Capability: l.name, Err: err}
	}
	return *res.(*T), nil
}
