// Package nav keeps the console's shareable location: a path plus query
// parameters that encode the current selection. Restoring a location replays
// the selection it encodes.
package nav

import (
	"net/url"
	"sort"
	"sync"
)

// Location is one addressable console state.
type Location struct {
	Path   string
	Params url.Values
}

// Clone deep-copies the location so callers can mutate their copy freely.
func (l Location) Clone() Location {
	params := make(url.Values, len(l.Params))
	for k, vs := range l.Params {
		params[k] = append([]string(nil), vs...)
	}
	return Location{Path: l.Path, Params: params}
}

// Encode renders the location as path?query with stable parameter order.
func (l Location) Encode() string {
	if len(l.Params) == 0 {
		return l.Path
	}
	keys := make([]string, 0, len(l.Params))
	for k := range l.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	q := url.Values{}
	for _, k := range keys {
		for _, v := range l.Params[k] {
			if v != "" {
				q.Add(k, v)
			}
		}
	}
	if len(q) == 0 {
		return l.Path
	}
	return l.Path + "?" + q.Encode()
}

// Parse decodes a path?query string back into a Location.
func Parse(raw string) (Location, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Location{}, err
	}
	return Location{Path: u.Path, Params: u.Query()}, nil
}

// History tracks the current location and an ordered back-stack. Selection
// writes use Replace so stepping back never walks through transient
// selection states.
type History struct {
	mu      sync.RWMutex
	stack   []Location
	subs    map[int]func(Location)
	nextSub int
}

func NewHistory(initial Location) *History {
	if initial.Params == nil {
		initial.Params = url.Values{}
	}
	return &History{
		stack: []Location{initial},
		subs:  make(map[int]func(Location)),
	}
}

// Current returns a copy of the active location.
func (h *History) Current() Location {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.stack[len(h.stack)-1].Clone()
}

// Push records a new location as a distinct history entry.
func (h *History) Push(loc Location) {
	h.mu.Lock()
	h.stack = append(h.stack, loc.Clone())
	subs := h.subscribersLocked()
	cur := h.stack[len(h.stack)-1].Clone()
	h.mu.Unlock()

	for _, fn := range subs {
		fn(cur)
	}
}

// Replace overwrites the active entry in place.
func (h *History) Replace(loc Location) {
	h.mu.Lock()
	h.stack[len(h.stack)-1] = loc.Clone()
	subs := h.subscribersLocked()
	cur := h.stack[len(h.stack)-1].Clone()
	h.mu.Unlock()

	for _, fn := range subs {
		fn(cur)
	}
}

// SetParam replaces one query parameter on the active entry; an empty value
// removes it.
func (h *History) SetParam(key, value string) {
	loc := h.Current()
	if value == "" {
		loc.Params.Del(key)
	} else {
		loc.Params.Set(key, value)
	}
	h.Replace(loc)
}

// SetParams applies several parameter writes as one replace.
func (h *History) SetParams(params map[string]string) {
	loc := h.Current()
	for k, v := range params {
		if v == "" {
			loc.Params.Del(k)
		} else {
			loc.Params.Set(k, v)
		}
	}
	h.Replace(loc)
}

// Param reads one query parameter off the active entry.
func (h *History) Param(key string) string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.stack[len(h.stack)-1].Params.Get(key)
}

// Back pops to the previous entry; it is a no-op at the root.
func (h *History) Back() bool {
	h.mu.Lock()
	if len(h.stack) <= 1 {
		h.mu.Unlock()
		return false
	}
	h.stack = h.stack[:len(h.stack)-1]
	subs := h.subscribersLocked()
	cur := h.stack[len(h.stack)-1].Clone()
	h.mu.Unlock()

	for _, fn := range subs {
		fn(cur)
	}
	return true
}

// Subscribe registers a location-change listener and returns an unsubscribe
// func.
func (h *History) Subscribe(fn func(Location)) func() {
	h.mu.Lock()
	h.nextSub++
	id := h.nextSub
	h.subs[id] = fn
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
	}
}

func (h *History) subscribersLocked() []func(Location) {
	subs := make([]func(Location), 0, len(h.subs))
	for _, fn := range h.subs {
		subs = append(subs, fn)
	}
	return subs
}
