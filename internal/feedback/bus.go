// Package feedback delivers one-line operator notices. The bus holds a
// single slot: a newer notice supersedes whatever is showing, so each action
// yields exactly one visible outcome.
package feedback

import (
	"sync"
	"time"
)

type Tone int

const (
	Info Tone = iota
	Success
	Warning
	Error
)

func (t Tone) String() string {
	switch t {
	case Info:
		return "info"
	case Success:
		return "success"
	case Warning:
		return "warning"
	case Error:
		return "error"
	}
	return "unknown"
}

// Notice is one displayed message.
type Notice struct {
	Tone    Tone
	Message string
	At      time.Time
}

// Bus is the single-slot notice channel.
type Bus struct {
	mu      sync.Mutex
	current *Notice
	seq     uint64
	timer   *time.Timer
	subs    map[int]func(Notice)
	nextSub int

	// DismissAfter is how long a notice stays up before auto-dismissing;
	// zero disables auto-dismiss.
	DismissAfter time.Duration
}

func NewBus(dismissAfter time.Duration) *Bus {
	return &Bus{
		DismissAfter: dismissAfter,
		subs:         make(map[int]func(Notice)),
	}
}

func (b *Bus) publish(tone Tone, message string) {
	b.mu.Lock()
	b.seq++
	seq := b.seq
	notice := Notice{Tone: tone, Message: message, At: time.Now()}
	b.current = &notice

	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	if b.DismissAfter > 0 {
		b.timer = time.AfterFunc(b.DismissAfter, func() {
			b.mu.Lock()
			// A newer notice owns the slot now; leave it alone.
			if b.seq == seq {
				b.current = nil
			}
			b.mu.Unlock()
		})
	}

	subs := make([]func(Notice), 0, len(b.subs))
	for _, fn := range b.subs {
		subs = append(subs, fn)
	}
	b.mu.Unlock()

	for _, fn := range subs {
		fn(notice)
	}
}

func (b *Bus) Info(message string)    { b.publish(Info, message) }
func (b *Bus) Success(message string) { b.publish(Success, message) }
func (b *Bus) Warning(message string) { b.publish(Warning, message) }
func (b *Bus) Error(message string)   { b.publish(Error, message) }

// Current returns the notice occupying the slot, if any.
func (b *Bus) Current() (Notice, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current == nil {
		return Notice{}, false
	}
	return *b.current, true
}

// Dismiss clears the slot.
func (b *Bus) Dismiss() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = nil
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
}

// Subscribe registers a notice listener and returns an unsubscribe func.
func (b *Bus) Subscribe(fn func(Notice)) func() {
	b.mu.Lock()
	b.nextSub++
	id := b.nextSub
	b.subs[id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}
