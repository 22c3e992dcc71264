// Package query is a keyed cache-and-refetch layer for upstream reads.
//
// Every key has at most one fetch in flight; callers that arrive while a
// fetch is running wait for it instead of starting another request. Each
// real upstream call is tagged with a monotonically increasing sequence
// number and a result older than the one already applied is discarded.
package query

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// Status is the lifecycle of a cache entry
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusSuccess
	StatusFailed
)

// String returns the string representation of Status
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusSuccess:
		return "success"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText lets Status render as its name in JSON
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// State is a point-in-time copy of one cache entry.
// Data is shared with the cache and must not be mutated.
type State[T any] struct {
	Key       string
	Status    Status
	Data      T
	Err       error
	Fetching  bool
	UpdatedAt time.Time
}

// Hooks observe the client. Any of them may be nil.
type Hooks struct {
	OnFetch  func(key string, latency time.Duration, err error)
	OnShared func(key string)
	OnStale  func(key string)
}

type entry[T any] struct {
	state      State[T]
	appliedSeq uint64
	inFlight   int
}

// Client is a keyed single-flight cache.
type Client[T any] struct {
	mu      sync.RWMutex
	entries map[string]*entry[T]
	group   singleflight.Group
	seq     atomic.Uint64
	hooks   Hooks

	// flights mirrors the group's running calls so a caller knows whether
	// it leads or joins. Guarded by flightMu, which is held across DoChan.
	flightMu sync.Mutex
	flights  map[string]uint64
	gen      uint64
}

// NewClient creates an empty client
func NewClient[T any](hooks Hooks) *Client[T] {
	return &Client[T]{
		entries: make(map[string]*entry[T]),
		flights: make(map[string]uint64),
		hooks:   hooks,
	}
}

// Fetch loads key with fn unless a fetch for key is already running, in which
// case it joins that one. It returns the entry state after the fetch.
//
// The caller that starts the fetch runs fn with its ctx and always waits for
// fn to return. A joined caller stops waiting when its own ctx is done.
// A failed fetch leaves the entry in StatusFailed with no data. A fetch
// cancelled through ctx is discarded and the entry keeps its previous state.
func (c *Client[T]) Fetch(ctx context.Context, key string, fn func(context.Context) (T, error)) State[T] {
	c.flightMu.Lock()
	gen, joined := c.flights[key]
	if !joined {
		c.gen++
		gen = c.gen
		c.flights[key] = gen
	}
	ch := c.group.DoChan(key, func() (any, error) {
		defer c.land(key, gen)
		seq := c.begin(key)

		start := time.Now()
		data, err := fn(ctx)
		latency := time.Since(start)

		if c.apply(key, seq, data, err) && c.hooks.OnFetch != nil {
			c.hooks.OnFetch(key, latency, err)
		}
		return nil, err
	})
	c.flightMu.Unlock()

	if !joined {
		<-ch
		return c.Get(key)
	}

	select {
	case <-ch:
		if c.hooks.OnShared != nil {
			c.hooks.OnShared(key)
		}
	case <-ctx.Done():
	}
	return c.Get(key)
}

// land ends the call gen for key. Later callers start a new fetch.
func (c *Client[T]) land(key string, gen uint64) {
	c.flightMu.Lock()
	defer c.flightMu.Unlock()

	if c.flights[key] == gen {
		c.group.Forget(key)
		delete(c.flights, key)
	}
}

// Get returns the current state of key. Unknown keys are idle.
func (c *Client[T]) Get(key string) State[T] {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok {
		return State[T]{Key: key, Status: StatusIdle}
	}
	return e.state
}

// Invalidate resets key to idle and forgets its in-flight fetch, so the next
// Fetch starts a new request. Results of fetches started before the call
// are discarded when they land.
func (c *Client[T]) Invalidate(key string) {
	c.flightMu.Lock()
	c.group.Forget(key)
	delete(c.flights, key)
	c.flightMu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.entryLocked(key)
	e.appliedSeq = c.seq.Load()
	e.state = State[T]{Key: key, Status: StatusIdle, Fetching: e.inFlight > 0}
}

func (c *Client[T]) begin(key string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.entryLocked(key)
	e.inFlight++
	e.state.Fetching = true
	// Success and Failed are kept while refetching
	if e.state.Status == StatusIdle {
		e.state.Status = StatusLoading
	}
	return c.seq.Add(1)
}

// apply records the outcome of fetch seq unless a newer one was applied.
// It reports false for a cancelled fetch, which is dropped without a trace.
func (c *Client[T]) apply(key string, seq uint64, data T, err error) bool {
	c.mu.Lock()
	e := c.entryLocked(key)
	if e.inFlight > 0 {
		e.inFlight--
	}
	e.state.Fetching = e.inFlight > 0

	if errors.Is(err, context.Canceled) {
		if !e.state.Fetching && e.state.Status == StatusLoading {
			e.state.Status = StatusIdle
		}
		c.mu.Unlock()
		return false
	}

	if seq <= e.appliedSeq {
		c.mu.Unlock()
		if c.hooks.OnStale != nil {
			c.hooks.OnStale(key)
		}
		return true
	}
	e.appliedSeq = seq

	if err != nil {
		var zero T
		e.state.Status = StatusFailed
		e.state.Data = zero
		e.state.Err = err
	} else {
		e.state.Status = StatusSuccess
		e.state.Data = data
		e.state.Err = nil
	}
	e.state.UpdatedAt = time.Now()
	c.mu.Unlock()
	return true
}

// Must be called with lock held
func (c *Client[T]) entryLocked(key string) *entry[T] {
	e, ok := c.entries[key]
	if !ok {
		e = &entry[T]{state: State[T]{Key: key, Status: StatusIdle}}
		c.entries[key] = e
	}
	return e
}
