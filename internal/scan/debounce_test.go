package scan

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDebouncerRejectsShortPayloads(t *testing.T) {
	d := NewDebouncer(3, time.Millisecond, 50*time.Millisecond)
	start := time.Now()
	d.Arm(start)
	at := start.Add(10 * time.Millisecond)

	for _, payload := range []string{"", " ", "a", "ab", "  ab  "} {
		_, ok := d.Accept(payload, at)
		assert.False(t, ok, "payload %q should be rejected", payload)
	}

	ev, ok := d.Accept("abc", at)
	require.True(t, ok)
	assert.Equal(t, "abc", ev.Payload)
}

func TestDebouncerWarmupWindow(t *testing.T) {
	d := NewDebouncer(3, 100*time.Millisecond, 50*time.Millisecond)

	// not armed at all: stale frames from before start are dropped
	_, ok := d.Accept("email:a@b.com", time.Now())
	assert.False(t, ok)

	start := time.Now()
	d.Arm(start)

	_, ok = d.Accept("email:a@b.com", start.Add(20*time.Millisecond))
	assert.False(t, ok, "decode inside warm-up window should be rejected")

	_, ok = d.Accept("email:a@b.com", start.Add(150*time.Millisecond))
	assert.True(t, ok, "decode after warm-up should be accepted")
}

func TestDebouncerCooldownAbsorbsRereads(t *testing.T) {
	d := NewDebouncer(3, time.Millisecond, 1500*time.Millisecond)
	start := time.Now()
	d.Arm(start)

	accepted := 0
	// a burst of re-reads of the same physical code
	for i := 0; i < 20; i++ {
		at := start.Add(10*time.Millisecond + time.Duration(i)*30*time.Millisecond)
		if _, ok := d.Accept("email:alice@example.com", at); ok {
			accepted++
			d.Release() // downstream finished immediately
		}
	}
	assert.Equal(t, 1, accepted, "exactly one event per physical scan")

	// past the cooldown a new scan is accepted again
	_, ok := d.Accept("email:alice@example.com", start.Add(2*time.Second))
	assert.True(t, ok)
}

func TestDebouncerSingleFlight(t *testing.T) {
	d := NewDebouncer(3, time.Millisecond, 10*time.Millisecond)
	start := time.Now()
	d.Arm(start)

	_, ok := d.Accept("email:alice@example.com", start.Add(5*time.Millisecond))
	require.True(t, ok)
	assert.True(t, d.InFlight())

	// while the first event is processed downstream nothing else gets in,
	// cooldown elapsed or not
	_, ok = d.Accept("email:bob@example.com", start.Add(5*time.Second))
	assert.False(t, ok)

	d.Release()
	_, ok = d.Accept("email:bob@example.com", start.Add(6*time.Second))
	assert.True(t, ok)
}

func TestDebouncerResetClearsSlate(t *testing.T) {
	d := NewDebouncer(3, time.Millisecond, time.Hour)
	start := time.Now()
	d.Arm(start)

	_, ok := d.Accept("email:alice@example.com", start.Add(5*time.Millisecond))
	require.True(t, ok)

	d.Reset()

	assert.False(t, d.InFlight())
	// a fresh session must re-arm before anything is accepted
	_, ok = d.Accept("email:alice@example.com", start.Add(10*time.Millisecond))
	assert.False(t, ok)

	d.Arm(start.Add(20 * time.Millisecond))
	_, ok = d.Accept("email:alice@example.com", start.Add(40*time.Millisecond))
	assert.True(t, ok, "cooldown from before the reset should not linger")
}
