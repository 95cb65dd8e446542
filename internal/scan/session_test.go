package scan

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptGate hands every presented identity to the test and blocks until the
// test scripts a decision.
type scriptGate struct {
	presented chan PendingIdentity
	decide    chan Decision
}

func newScriptGate() *scriptGate {
	return &scriptGate{
		presented: make(chan PendingIdentity, 1),
		decide:    make(chan Decision),
	}
}

func (g *scriptGate) Present(ctx context.Context, token string, identity PendingIdentity) (Decision, error) {
	g.presented <- identity
	select {
	case d := <-g.decide:
		return d, nil
	case <-ctx.Done():
		return Cancelled, ctx.Err()
	}
}

type sessionFixture struct {
	session   *Session
	device    *fakeDevice
	gate      *scriptGate
	card      *VisitCard
	debouncer *Debouncer
	statuses  chan string

	lookupHeld chan struct{} // receives when a "hold" lookup reaches the server
	holdLookup chan struct{} // close to let held lookups finish
}

func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()

	f := &sessionFixture{
		device:     &fakeDevice{},
		gate:       newScriptGate(),
		statuses:   make(chan string, 16),
		lookupHeld: make(chan struct{}, 1),
		holdLookup: make(chan struct{}),
	}

	lookup := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		email := r.URL.Query().Get("email")
		if strings.Contains(email, "hold") {
			f.lookupHeld <- struct{}{}
			<-f.holdLookup
		}
		w.Header().Set("Content-Type", "application/json")
		if strings.Contains(email, "unknown") {
			w.Write([]byte(`{"success":false,"message":"No patient record exists"}`))
			return
		}
		w.Write([]byte(`{"success":true,"patient":{"full_name":"Alice Bekele","email":"alice@example.com","patient_code":"P-0042"}}`))
	}))
	t.Cleanup(lookup.Close)

	reception := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true,"message":"ok"}`))
	}))
	t.Cleanup(reception.Close)

	board := NewBoard()
	card := NewVisitCard(42, reception.URL+"/claim", reception.URL+"/verify", reception.URL+"/finish")
	board.Add(card)
	f.card = card

	// window sizes collapsed so tests drive the pipeline without sleeping
	f.debouncer = NewDebouncer(3, time.Nanosecond, time.Nanosecond)
	f.session = NewSession(f.device, f.debouncer,
		NewResolver(lookup.URL, nil), f.gate,
		NewClaimer(nil, board), board,
		func(kind, message string) { f.statuses <- kind + ": " + message })

	return f
}

func (f *sessionFixture) waitStatus(t *testing.T, want string) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case got := <-f.statuses:
			if got == want {
				return
			}
		case <-deadline:
			t.Fatalf("status %q never arrived", want)
		}
	}
}

func TestSessionScanClaimFlow(t *testing.T) {
	f := newSessionFixture(t)

	require.NoError(t, f.session.BeginScan(context.Background(), 42, ""))
	f.waitStatus(t, "info: Scanner ready")

	f.device.emit("email:alice@example.com;")

	identity := <-f.gate.presented
	assert.True(t, identity.Found)
	assert.Equal(t, "Alice Bekele", identity.Patient.FullName)
	assert.True(t, f.session.ConfirmationPending())

	// a new scan cannot start while the confirmation is open
	err := f.session.BeginScan(context.Background(), 42, "")
	require.Error(t, err)

	f.gate.decide <- Accepted
	f.waitStatus(t, "info: Done.")

	assert.Equal(t, StateClaimed, f.card.State)
	assert.Equal(t, ColumnClaimed, f.card.ContainerKey)
	assert.False(t, f.session.ConfirmationPending())
	assert.False(t, f.device.running(), "scanner stays stopped after an accepted claim")
}

func TestSessionCancelResumesScanning(t *testing.T) {
	f := newSessionFixture(t)

	require.NoError(t, f.session.BeginScan(context.Background(), 42, ""))
	f.device.emit("email:alice@example.com;")
	<-f.gate.presented

	f.gate.decide <- Cancelled
	f.waitStatus(t, "info: Cancelled.")

	require.Eventually(t, func() bool {
		opens, _ := f.device.counts()
		return opens == 2
	}, 2*time.Second, 5*time.Millisecond, "device must be reacquired after a cancel")

	assert.Equal(t, StateUnclaimed, f.card.State, "cancel leaves the card untouched")

	// the resumed session accepts a fresh scan
	f.device.emit("email:alice@example.com;")
	identity := <-f.gate.presented
	assert.True(t, identity.Found)
	f.gate.decide <- Accepted
	f.waitStatus(t, "info: Done.")
}

func TestSessionNotFoundResumes(t *testing.T) {
	f := newSessionFixture(t)

	require.NoError(t, f.session.BeginScan(context.Background(), 42, ""))
	f.device.emit("email:unknown@example.com;")

	f.waitStatus(t, "not-found: No patient record exists for this code.")
	assert.False(t, f.session.ConfirmationPending(), "a negative lookup never opens a confirmation")

	require.Eventually(t, func() bool {
		opens, _ := f.device.counts()
		return opens == 2
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, StateUnclaimed, f.card.State)
}

func TestSessionCloseDropsStaleDecision(t *testing.T) {
	f := newSessionFixture(t)

	require.NoError(t, f.session.BeginScan(context.Background(), 42, ""))
	f.device.emit("email:alice@example.com;")
	<-f.gate.presented

	f.session.Close()
	assert.False(t, f.session.ConfirmationPending())

	// the operator's click lands after the close; it must change nothing
	f.gate.decide <- Accepted

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, StateUnclaimed, f.card.State)
	assert.Equal(t, ColumnUnclaimed, f.card.ContainerKey)
	assert.False(t, f.device.running())
}

func TestSessionManualEntry(t *testing.T) {
	f := newSessionFixture(t)

	done := make(chan error, 1)
	go func() { done <- f.session.SubmitManual(context.Background(), 42, "alice@example.com") }()

	identity := <-f.gate.presented
	assert.True(t, identity.Found)

	f.gate.decide <- Accepted
	require.NoError(t, <-done)
	f.waitStatus(t, "info: Done.")

	assert.Equal(t, StateClaimed, f.card.State)
	opens, _ := f.device.counts()
	assert.Equal(t, 0, opens, "manual entry never touches the capture device")
}

func TestSessionResumeKeepsSource(t *testing.T) {
	f := newSessionFixture(t)

	require.NoError(t, f.session.BeginScan(context.Background(), 42, "aux-camera"))
	assert.Equal(t, "aux-camera", f.device.source())

	f.device.emit("email:unknown@example.com;")
	f.waitStatus(t, "not-found: No patient record exists for this code.")

	require.Eventually(t, func() bool {
		opens, _ := f.device.counts()
		return opens == 2
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, "aux-camera", f.device.source(), "resume must reacquire the source the scan began with")
}

func TestManualLosingRaceKeepsScanInFlight(t *testing.T) {
	f := newSessionFixture(t)

	require.NoError(t, f.session.BeginScan(context.Background(), 42, ""))

	// manual entry passes the pending check, then parks inside the lookup
	done := make(chan error, 1)
	go func() { done <- f.session.SubmitManual(context.Background(), 42, "hold.bob@example.com") }()
	<-f.lookupHeld

	// meanwhile a scan wins the race and opens the confirmation
	f.device.emit("email:alice@example.com;")
	identity := <-f.gate.presented
	require.True(t, identity.Found)
	require.True(t, f.debouncer.InFlight())

	// the manual entry now loses to the open confirmation and must not
	// touch the scan's in-flight flag on its way out
	close(f.holdLookup)
	require.NoError(t, <-done)

	assert.True(t, f.session.ConfirmationPending())
	assert.True(t, f.debouncer.InFlight(), "the scan still owns the in-flight flag")

	f.gate.decide <- Accepted
	f.waitStatus(t, "info: Done.")
	state, _, _ := f.card.Snapshot()
	assert.Equal(t, StateClaimed, state)
}

func TestSessionDeviceUnavailable(t *testing.T) {
	f := newSessionFixture(t)
	f.device.openErr = errors.New("camera busy")

	err := f.session.BeginScan(context.Background(), 42, "")
	require.ErrorIs(t, err, ErrDeviceUnavailable)
	f.waitStatus(t, "error: Camera unavailable. Use manual email entry.")
}

func TestSessionUnknownVisit(t *testing.T) {
	f := newSessionFixture(t)

	require.Error(t, f.session.BeginScan(context.Background(), 99, ""))
	require.Error(t, f.session.SubmitManual(context.Background(), 99, "alice@example.com"))
	require.Error(t, f.session.Finish(context.Background(), 99))
}
