package query

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// State is the lifecycle of a cached record.
type State int

const (
	Idle State = iota
	Loading
	Success
	Error
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Success:
		return "success"
	case Error:
		return "error"
	}
	return "unknown"
}

// Fetcher loads the value behind a key. The context is cancelled when the
// fetch is superseded or its last subscriber tears down.
type Fetcher func(ctx context.Context) (any, error)

// Snapshot is the subscriber-facing view of a record.
type Snapshot struct {
	State     State
	Data      any
	Err       error
	FetchedAt time.Time
}

// Options tune one subscription. The zero value is a disabled subscription;
// callers opt in with Enabled.
type Options struct {
	Enabled          bool
	StaleTime        time.Duration
	RefetchInterval  time.Duration
	KeepPreviousData bool
	InitialData      any
	InitialFetchedAt time.Time
	Select           func(any) any
	OnSuccess        func(any)
	OnError          func(error)
}

type record struct {
	key       Key
	state     State
	data      any
	err       error
	fetchedAt time.Time
	stale     bool

	// At most one fetch is in flight per record. gen fences late responses:
	// a completion whose generation no longer matches is dropped.
	inflight bool
	gen      uint64
	cancel   context.CancelFunc
	fetch    Fetcher

	subs map[int]*Subscription
}

// Cache is the process-wide key-addressed async resource cache. All cached
// data is owned here and mutated only through this API.
type Cache struct {
	mu        sync.Mutex
	records   map[string]*record
	nextSubID int
}

func New() *Cache {
	return &Cache{records: make(map[string]*record)}
}

func (c *Cache) recordLocked(key Key) *record {
	id := key.String()
	rec, ok := c.records[id]
	if !ok {
		rec = &record{key: key, state: Idle, subs: make(map[int]*Subscription)}
		c.records[id] = rec
	}
	return rec
}

// Subscribe attaches a subscriber to the record behind key. Equal keys share
// one record and one in-flight fetch. notify may be nil for callers that
// only poll Snapshot.
func (c *Cache) Subscribe(key Key, fetch Fetcher, opts Options, notify func(Snapshot)) *Subscription {
	c.mu.Lock()

	rec := c.recordLocked(key)
	if rec.state == Idle && opts.InitialData != nil {
		rec.state = Success
		rec.data = opts.InitialData
		rec.fetchedAt = opts.InitialFetchedAt
		if rec.fetchedAt.IsZero() {
			rec.fetchedAt = time.Now()
		}
	}

	c.nextSubID++
	sub := &Subscription{
		cache:  c,
		id:     c.nextSubID,
		key:    key,
		fetch:  fetch,
		opts:   opts,
		notify: notify,
	}
	rec.subs[sub.id] = sub
	rec.fetch = fetch

	if opts.Enabled {
		c.maybeFetchLocked(rec, sub.opts.StaleTime)
	}

	snap := c.snapshotLocked(rec)
	c.mu.Unlock()

	sub.dispatch(snap)
	return sub
}

// maybeFetchLocked starts a fetch unless the record is already in flight,
// fresh within staleTime, or resting in an error state (errors retry only on
// explicit Refetch/Invalidate).
func (c *Cache) maybeFetchLocked(rec *record, staleTime time.Duration) {
	if rec.inflight {
		return
	}

	switch rec.state {
	case Error:
		return
	case Success:
		if !rec.stale && time.Since(rec.fetchedAt) < staleTime {
			return
		}
	}

	c.startFetchLocked(rec)
}

func (c *Cache) startFetchLocked(rec *record) {
	if rec.fetch == nil {
		return
	}
	if rec.inflight && rec.cancel != nil {
		rec.cancel()
	}

	rec.gen++
	gen := rec.gen
	ctx, cancel := context.WithCancel(context.Background())
	rec.cancel = cancel
	rec.inflight = true
	rec.state = Loading
	fetch := rec.fetch

	go func() {
		data, err := fetch(ctx)

		c.mu.Lock()
		if rec.gen != gen {
			// Superseded or cancelled; the result must not touch state.
			c.mu.Unlock()
			return
		}
		rec.inflight = false
		rec.cancel = nil

		if err != nil {
			if errors.Is(err, context.Canceled) {
				// Teardown raced the completion; leave the record as-is.
				if rec.data != nil {
					rec.state = Success
				} else {
					rec.state = Idle
				}
				c.mu.Unlock()
				return
			}
			rec.state = Error
			rec.err = err
			slog.Debug("Query fetch failed", "key", rec.key.String(), "error", err)
		} else {
			rec.state = Success
			rec.data = data
			rec.err = nil
			rec.fetchedAt = time.Now()
			rec.stale = false
		}

		subs := subscribersLocked(rec)
		snap := c.snapshotLocked(rec)
		c.mu.Unlock()

		for _, sub := range subs {
			sub.settle(snap)
		}
	}()
}

func subscribersLocked(rec *record) []*Subscription {
	subs := make([]*Subscription, 0, len(rec.subs))
	for _, sub := range rec.subs {
		subs = append(subs, sub)
	}
	return subs
}

func (c *Cache) snapshotLocked(rec *record) Snapshot {
	return Snapshot{State: rec.state, Data: rec.data, Err: rec.err, FetchedAt: rec.fetchedAt}
}

// Invalidate marks every record under prefix stale and refetches the ones
// with mounted subscribers.
func (c *Cache) Invalidate(prefix Key) {
	c.mu.Lock()
	var refetch []*record
	for _, rec := range c.records {
		if !rec.key.HasPrefix(prefix) {
			continue
		}
		rec.stale = true
		if rec.state == Error {
			rec.state = Idle
			rec.err = nil
		}
		if len(rec.subs) > 0 {
			refetch = append(refetch, rec)
		}
	}
	for _, rec := range refetch {
		c.startFetchLocked(rec)
	}
	c.mu.Unlock()
}

// SetData overwrites the cached value synchronously; subsequent reads observe
// it without a request. Subscribers are notified outside the lock.
func (c *Cache) SetData(key Key, value any) {
	c.mu.Lock()
	rec := c.recordLocked(key)
	rec.state = Success
	rec.data = value
	rec.err = nil
	rec.fetchedAt = time.Now()
	rec.stale = false
	subs := subscribersLocked(rec)
	snap := c.snapshotLocked(rec)
	c.mu.Unlock()

	for _, sub := range subs {
		sub.dispatch(snap)
	}
}

// GetData returns the cached value behind key, if any.
func (c *Cache) GetData(key Key) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.records[key.String()]
	if !ok || rec.state != Success {
		return nil, false
	}
	return rec.data, true
}

// Data is a typed convenience over GetData.
func Data[T any](c *Cache, key Key) (T, bool) {
	var zero T
	value, ok := c.GetData(key)
	if !ok {
		return zero, false
	}
	typed, ok := value.(T)
	if !ok {
		return zero, false
	}
	return typed, true
}

// RemoveQueries cancels and drops every record under prefix.
func (c *Cache) RemoveQueries(prefix Key) {
	c.mu.Lock()
	for id, rec := range c.records {
		if !rec.key.HasPrefix(prefix) {
			continue
		}
		if rec.cancel != nil {
			rec.cancel()
		}
		rec.gen++
		delete(c.records, id)
	}
	c.mu.Unlock()
}

// Refetch forces a fetch for the record behind key regardless of freshness.
func (c *Cache) Refetch(key Key) {
	c.mu.Lock()
	rec, ok := c.records[key.String()]
	if ok {
		c.startFetchLocked(rec)
	}
	c.mu.Unlock()
}

// Clear drops everything; used on logout.
func (c *Cache) Clear() {
	c.mu.Lock()
	for id, rec := range c.records {
		if rec.cancel != nil {
			rec.cancel()
		}
		rec.gen++
		delete(c.records, id)
	}
	c.mu.Unlock()
}
