package scan

import (
	"strings"
	"sync"
	"time"
)

const (
	defaultMinPayload = 3
	defaultWarmup     = 700 * time.Millisecond
	defaultCooldown   = 1500 * time.Millisecond
)

// ScanEvent is one accepted decode, consumed exactly once downstream.
type ScanEvent struct {
	Payload    string
	CapturedAt time.Time
}

// Debouncer turns the raw decode stream into one event per physical scan.
// Rejection order: noise floor, warm-up window, single-flight, cooldown.
type Debouncer struct {
	mu           sync.Mutex
	minPayload   int
	warmup       time.Duration
	cooldown     time.Duration
	armedAt      time.Time
	lastAccepted time.Time
	inFlight     bool
}

// NewDebouncer builds a debouncer; zero arguments fall back to the defaults.
func NewDebouncer(minPayload int, warmup, cooldown time.Duration) *Debouncer {
	if minPayload <= 0 {
		minPayload = defaultMinPayload
	}
	if warmup <= 0 {
		warmup = defaultWarmup
	}
	if cooldown <= 0 {
		cooldown = defaultCooldown
	}
	return &Debouncer{minPayload: minPayload, warmup: warmup, cooldown: cooldown}
}

// Arm records the moment the decoder started; decodes arriving before the
// warm-up window has passed are stale frames and get rejected.
func (d *Debouncer) Arm(at time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.armedAt = at
}

// Accept applies the rejection rules and, on success, marks the event
// in flight. The caller must Release or Reset once downstream is done.
func (d *Debouncer) Accept(payload string, at time.Time) (ScanEvent, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(strings.TrimSpace(payload)) < d.minPayload {
		return ScanEvent{}, false
	}
	if d.armedAt.IsZero() || at.Sub(d.armedAt) < d.warmup {
		return ScanEvent{}, false
	}
	if d.inFlight {
		return ScanEvent{}, false
	}
	if !d.lastAccepted.IsZero() && at.Sub(d.lastAccepted) < d.cooldown {
		return ScanEvent{}, false
	}

	d.inFlight = true
	d.lastAccepted = at

	return ScanEvent{Payload: payload, CapturedAt: at}, true
}

// Release clears the single-flight guard; the cooldown still applies.
func (d *Debouncer) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.inFlight = false
}

// Reset returns the debouncer to a clean slate for a fresh scan session.
func (d *Debouncer) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.inFlight = false
	d.armedAt = time.Time{}
	d.lastAccepted = time.Time{}
}

// InFlight reports whether an accepted event is still being processed.
func (d *Debouncer) InFlight() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inFlight
}
