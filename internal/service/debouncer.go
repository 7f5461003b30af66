package service

import (
	"sync"
	"time"
)

// DefaultDebounceCooldown is the minimum interval between accepted reads of
// the same tag.
const DefaultDebounceCooldown = 3 * time.Second

// Decision is the outcome of offering a tag read to the Debouncer.
type Decision int

const (
	Accept Decision = iota
	SuppressBusy
	SuppressCooldown
)

func (d Decision) String() string {
	switch d {
	case Accept:
		return "accept"
	case SuppressBusy:
		return "busy"
	case SuppressCooldown:
		return "cooldown"
	default:
		return "unknown"
	}
}

// Debouncer filters raw tag reads. It admits at most one tag-triggered
// operation at a time process-wide and ignores repeats of the same tag inside
// the cool-down window. Every Accept must be paired with a call to Done.
type Debouncer struct {
	mu           sync.Mutex
	cooldown     time.Duration
	inFlight     bool
	lastAccepted map[string]time.Time
}

// NewDebouncer creates a Debouncer. A non-positive cooldown uses the default.
func NewDebouncer(cooldown time.Duration) *Debouncer {
	if cooldown <= 0 {
		cooldown = DefaultDebounceCooldown
	}
	return &Debouncer{
		cooldown:     cooldown,
		lastAccepted: make(map[string]time.Time),
	}
}

// OnTagEvent decides whether a read of tagID observed at now is processed.
func (d *Debouncer) OnTagEvent(tagID string, now time.Time) Decision {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.inFlight {
		return SuppressBusy
	}
	if last, ok := d.lastAccepted[tagID]; ok && now.Sub(last) < d.cooldown {
		return SuppressCooldown
	}

	for id, ts := range d.lastAccepted {
		if now.Sub(ts) >= d.cooldown {
			delete(d.lastAccepted, id)
		}
	}
	d.inFlight = true
	d.lastAccepted[tagID] = now
	return Accept
}

// Done clears the in-flight flag. Safe to call when nothing is in flight.
func (d *Debouncer) Done() {
	d.mu.Lock()
	d.inFlight = false
	d.mu.Unlock()
}

// InFlight reports whether an accepted read is still being processed.
func (d *Debouncer) InFlight() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inFlight
}
