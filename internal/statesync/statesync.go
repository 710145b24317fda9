// Package statesync copies versioned source values into display slots.
//
// A sync acts once per new source version and ignores versions older than
// the newest it has seen, so a late observer cannot roll a slot back.
// Swapping the setter or the
// predicate never counts as a change, so re-subscribing with fresh
// closures cannot cause repeated propagation.
package statesync

import (
	"math"
	"reflect"
	"sync"
)

// Setter receives a propagated value.
type Setter[T any] func(T)

// Predicate gates propagation in a Conditional sync.
type Predicate[T any] func(T) bool

// Conditional forwards a source value to its setter only when the
// predicate holds.
type Conditional[T any] struct {
	// order serializes Observe so setters run in version order.
	order    sync.Mutex
	mu       sync.Mutex
	setter   Setter[T]
	pred     Predicate[T]
	seen     uint64
	observed bool
}

// NewConditional creates a Conditional sync. A nil predicate selects Truthy.
func NewConditional[T any](setter Setter[T], pred Predicate[T]) *Conditional[T] {
	c := &Conditional[T]{setter: setter}
	c.SetPredicate(pred)
	return c
}

// SetSetter replaces the setter without triggering propagation.
func (c *Conditional[T]) SetSetter(s Setter[T]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setter = s
}

// SetPredicate replaces the predicate without triggering propagation.
func (c *Conditional[T]) SetPredicate(p Predicate[T]) {
	if p == nil {
		p = Truthy[T]
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pred = p
}

// Observe reports a source value at version. It returns true when the
// setter was called.
func (c *Conditional[T]) Observe(version uint64, value T) bool {
	c.order.Lock()
	defer c.order.Unlock()

	c.mu.Lock()
	if c.observed && version <= c.seen {
		c.mu.Unlock()
		return false
	}
	c.seen = version
	c.observed = true
	setter, pred := c.setter, c.pred
	c.mu.Unlock()

	if setter == nil || !pred(value) {
		return false
	}
	setter(value)
	return true
}

// WithDefault forwards every new source value, substituting a fixed
// default when the value is nil.
type WithDefault[T any] struct {
	order    sync.Mutex
	mu       sync.Mutex
	setter   Setter[T]
	def      T
	seen     uint64
	observed bool
}

// NewWithDefault creates a WithDefault sync.
func NewWithDefault[T any](setter Setter[T], def T) *WithDefault[T] {
	return &WithDefault[T]{setter: setter, def: def}
}

// SetSetter replaces the setter without triggering propagation.
func (w *WithDefault[T]) SetSetter(s Setter[T]) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.setter = s
}

// Observe reports a source value at version. It returns true when the
// setter was called.
func (w *WithDefault[T]) Observe(version uint64, value T) bool {
	w.order.Lock()
	defer w.order.Unlock()

	w.mu.Lock()
	if w.observed && version <= w.seen {
		w.mu.Unlock()
		return false
	}
	w.seen = version
	w.observed = true
	setter, def := w.setter, w.def
	w.mu.Unlock()

	if setter == nil {
		return false
	}
	if IsNil(value) {
		value = def
	}
	setter(value)
	return true
}

// Truthy reports whether v is a value worth propagating: not nil, not
// false, not zero, not the empty string.
func Truthy[T any](v T) bool {
	rv := reflect.ValueOf(any(v))
	if !rv.IsValid() {
		return false
	}
	switch rv.Kind() {
	case reflect.Bool:
		return rv.Bool()
	case reflect.String:
		return rv.Len() > 0
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return rv.Uint() != 0
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		return f != 0 && !math.IsNaN(f)
	case reflect.Pointer, reflect.Slice, reflect.Map, reflect.Interface, reflect.Func, reflect.Chan:
		return !rv.IsNil()
	default:
		return true
	}
}

// NotNil is the predicate that propagates anything except nil.
func NotNil[T any](v T) bool {
	return !IsNil(v)
}

// IsNil reports whether v is nil or a nil pointer, slice, map, channel,
// function or interface.
func IsNil[T any](v T) bool {
	rv := reflect.ValueOf(any(v))
	if !rv.IsValid() {
		return true
	}
	switch rv.Kind() {
	case reflect.Pointer, reflect.Slice, reflect.Map, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	default:
		return false
	}
}
