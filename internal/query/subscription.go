package query

import (
	"sync"
	"time"
)

// Subscription is one subscriber's handle on a cached record. Changing its
// key cancels the superseded fetch when no other subscriber shares it.
type Subscription struct {
	cache  *Cache
	id     int
	notify func(Snapshot)

	mu        sync.Mutex
	key       Key
	fetch     Fetcher
	opts      Options
	prev      any
	pollTimer *time.Timer
	closed    bool
}

// Snapshot returns the subscriber view: Select applied, previous data kept
// visible across a key change when KeepPreviousData is set.
func (s *Subscription) Snapshot() Snapshot {
	s.mu.Lock()
	key := s.key
	s.mu.Unlock()

	s.cache.mu.Lock()
	rec, ok := s.cache.records[key.String()]
	var snap Snapshot
	if ok {
		snap = s.cache.snapshotLocked(rec)
	}
	s.cache.mu.Unlock()

	return s.view(snap)
}

func (s *Subscription) view(snap Snapshot) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	if snap.Data == nil && s.opts.KeepPreviousData && s.prev != nil && snap.State != Error {
		snap.Data = s.prev
		if snap.State == Idle {
			snap.State = Loading
		}
	}

	if snap.Data != nil && s.opts.Select != nil {
		snap.Data = s.opts.Select(snap.Data)
	}
	return snap
}

func (s *Subscription) dispatch(snap Snapshot) {
	s.mu.Lock()
	closed := s.closed
	notify := s.notify
	s.mu.Unlock()

	if closed || notify == nil {
		return
	}
	notify(s.view(snap))
}

// settle is dispatch plus the post-fetch hooks: success/error callbacks and
// the poll timer, which is re-armed only after a successful settle.
func (s *Subscription) settle(snap Snapshot) {
	s.mu.Lock()
	closed := s.closed
	onSuccess := s.opts.OnSuccess
	onError := s.opts.OnError
	s.mu.Unlock()

	if closed {
		return
	}

	switch snap.State {
	case Success:
		if onSuccess != nil {
			onSuccess(snap.Data)
		}
		s.schedulePoll()
	case Error:
		if onError != nil {
			onError(snap.Err)
		}
	}

	s.dispatch(snap)
}

func (s *Subscription) schedulePoll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || !s.opts.Enabled || s.opts.RefetchInterval <= 0 {
		return
	}

	// A single timer per subscription: re-arming replaces the previous one,
	// so polling never stacks.
	if s.pollTimer != nil {
		s.pollTimer.Stop()
	}
	key := s.key
	s.pollTimer = time.AfterFunc(s.opts.RefetchInterval, func() {
		s.mu.Lock()
		active := !s.closed && s.opts.Enabled && s.key.Equal(key)
		s.mu.Unlock()
		if active {
			s.cache.Refetch(key)
		}
	})
}

func (s *Subscription) stopPoll() {
	if s.pollTimer != nil {
		s.pollTimer.Stop()
		s.pollTimer = nil
	}
}

// SetKey moves the subscription to a new record. The outstanding fetch is
// cancelled when this was the only subscriber, and its late response is
// fenced out.
func (s *Subscription) SetKey(key Key, fetch Fetcher) {
	s.mu.Lock()
	if s.closed || s.key.Equal(key) {
		s.mu.Unlock()
		return
	}
	oldKey := s.key
	s.key = key
	s.fetch = fetch
	opts := s.opts
	s.stopPoll()
	s.mu.Unlock()

	c := s.cache
	c.mu.Lock()

	if old, ok := c.records[oldKey.String()]; ok {
		delete(old.subs, s.id)
		if opts.KeepPreviousData && old.data != nil {
			s.mu.Lock()
			s.prev = old.data
			s.mu.Unlock()
		}
		detachLocked(old)
	}

	rec := c.recordLocked(key)
	rec.subs[s.id] = s
	rec.fetch = fetch
	if opts.Enabled {
		c.maybeFetchLocked(rec, opts.StaleTime)
	}
	snap := c.snapshotLocked(rec)
	c.mu.Unlock()

	s.dispatch(snap)
}

// SetEnabled flips the enabled flag; enabling triggers a fetch when the
// record is not fresh, disabling clears the poll timer.
func (s *Subscription) SetEnabled(enabled bool) {
	s.mu.Lock()
	if s.closed || s.opts.Enabled == enabled {
		s.mu.Unlock()
		return
	}
	s.opts.Enabled = enabled
	key := s.key
	staleTime := s.opts.StaleTime
	if !enabled {
		s.stopPoll()
	}
	s.mu.Unlock()

	if !enabled {
		return
	}

	c := s.cache
	c.mu.Lock()
	rec := c.recordLocked(key)
	s.mu.Lock()
	rec.fetch = s.fetch
	s.mu.Unlock()
	c.maybeFetchLocked(rec, staleTime)
	snap := c.snapshotLocked(rec)
	c.mu.Unlock()

	s.dispatch(snap)
}

// Refetch forces a refetch of the current key.
func (s *Subscription) Refetch() {
	s.mu.Lock()
	key := s.key
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return
	}
	s.cache.Refetch(key)
}

// Close detaches the subscription; a sole subscriber's in-flight fetch is
// cancelled and fenced.
func (s *Subscription) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	key := s.key
	s.stopPoll()
	s.mu.Unlock()

	c := s.cache
	c.mu.Lock()
	if rec, ok := c.records[key.String()]; ok {
		delete(rec.subs, s.id)
		detachLocked(rec)
	}
	c.mu.Unlock()
}

// detachLocked cancels the in-flight fetch of a record that lost its last
// subscriber. The generation bump guarantees the late response is dropped.
func detachLocked(rec *record) {
	if len(rec.subs) > 0 || !rec.inflight {
		return
	}
	if rec.cancel != nil {
		rec.cancel()
		rec.cancel = nil
	}
	rec.gen++
	rec.inflight = false
	if rec.data != nil {
		rec.state = Success
	} else {
		rec.state = Idle
	}
}
