package scan

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingEndpoint is a reception-style endpoint that counts hits and answers
// with a scripted success flag.
type countingEndpoint struct {
	hits    int64
	success atomic.Bool
	started chan struct{} // receives once per request arrival, when set
	release chan struct{} // when set, requests block until closed
}

func (e *countingEndpoint) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&e.hits, 1)
		if e.started != nil {
			e.started <- struct{}{}
		}
		if e.release != nil {
			<-e.release
		}
		w.Header().Set("Content-Type", "application/json")
		if e.success.Load() {
			w.Write([]byte(`{"success":true,"message":"ok"}`))
		} else {
			w.WriteHeader(http.StatusConflict)
			w.Write([]byte(`{"success":false,"message":"Already claimed"}`))
		}
	}
}

func newTestCard(t *testing.T, e *countingEndpoint) (*VisitCard, *Claimer, *Board) {
	t.Helper()
	srv := httptest.NewServer(e.handler())
	t.Cleanup(srv.Close)

	board := NewBoard()
	card := NewVisitCard(42, srv.URL+"/claim", srv.URL+"/verify", srv.URL+"/finish")
	board.Add(card)

	return card, NewClaimer(srv.Client(), board), board
}

func TestClaimHappyPath(t *testing.T) {
	e := &countingEndpoint{}
	e.success.Store(true)
	card, claimer, board := newTestCard(t, e)

	require.NoError(t, claimer.Claim(context.Background(), card))

	assert.Equal(t, StateClaimed, card.State)
	assert.Equal(t, ActionVerify, card.Action)
	assert.Equal(t, ColumnClaimed, card.ContainerKey)
	assert.Empty(t, board.Column(ColumnUnclaimed))
	require.Len(t, board.Column(ColumnClaimed), 1)
	assert.Same(t, card, board.Column(ColumnClaimed)[0], "the moved card is the same value, not a rebuild")
}

func TestClaimRejectedStaysPut(t *testing.T) {
	e := &countingEndpoint{} // success=false: someone else claimed first
	card, claimer, board := newTestCard(t, e)

	err := claimer.Claim(context.Background(), card)
	require.ErrorIs(t, err, ErrClaimFailed)

	assert.Equal(t, StateFailed, card.State)
	assert.Equal(t, ColumnUnclaimed, card.ContainerKey, "no optimistic move on failure")
	require.Len(t, board.Column(ColumnUnclaimed), 1)

	// the action stays usable: a retry after the conflict clears goes through
	e.success.Store(true)
	require.NoError(t, claimer.Claim(context.Background(), card))
	assert.Equal(t, StateClaimed, card.State)
	assert.Equal(t, int64(2), atomic.LoadInt64(&e.hits))
}

func TestClaimSingleFlight(t *testing.T) {
	e := &countingEndpoint{started: make(chan struct{}, 1), release: make(chan struct{})}
	e.success.Store(true)
	card, claimer, _ := newTestCard(t, e)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		claimer.Claim(context.Background(), card)
	}()

	<-e.started // first request is on the wire

	// a second initiation while the first is in flight is swallowed
	require.NoError(t, claimer.Claim(context.Background(), card))

	close(e.release)
	wg.Wait()

	assert.Equal(t, int64(1), atomic.LoadInt64(&e.hits), "double initiation must not double-submit")
	assert.Equal(t, StateClaimed, card.State)
}

func TestClaimGuards(t *testing.T) {
	e := &countingEndpoint{}
	e.success.Store(true)
	card, claimer, board := newTestCard(t, e)

	require.NoError(t, claimer.Claim(context.Background(), card))

	// claiming a claimed card is refused before any request goes out
	err := claimer.Claim(context.Background(), card)
	require.Error(t, err)
	assert.Equal(t, int64(1), atomic.LoadInt64(&e.hits))

	// a card that failed while in the claimed column cannot be re-claimed
	card.State = StateFailed
	err = claimer.Claim(context.Background(), card)
	require.Error(t, err)
	assert.Equal(t, ColumnClaimed, card.ContainerKey)
	_ = board
}

func TestConcurrentClaimAndFinish(t *testing.T) {
	e := &countingEndpoint{}
	e.success.Store(true)
	card, claimer, _ := newTestCard(t, e)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				claimer.Claim(context.Background(), card)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				claimer.Finish(context.Background(), card)
			}
		}()
	}
	wg.Wait()

	// the guard and the in-flight mark are taken in one step, so the storm
	// lands at most one claim and one finish on the server
	hits := atomic.LoadInt64(&e.hits)
	assert.GreaterOrEqual(t, hits, int64(1))
	assert.LessOrEqual(t, hits, int64(2))

	state, column, _ := card.Snapshot()
	switch state {
	case StateClaimed:
		assert.Equal(t, ColumnClaimed, column)
	case StateFinished:
		assert.Equal(t, ColumnFinished, column)
	default:
		t.Fatalf("card ended in state %s, column %s", state, column)
	}
}

func TestVerifyAdvancesAction(t *testing.T) {
	e := &countingEndpoint{}
	e.success.Store(true)
	card, claimer, _ := newTestCard(t, e)

	require.NoError(t, claimer.Claim(context.Background(), card))
	require.NoError(t, claimer.Verify(context.Background(), card, "alice@example.com"))

	assert.Equal(t, StateClaimed, card.State)
	assert.Equal(t, ActionFinish, card.Action)
	assert.Equal(t, ColumnClaimed, card.ContainerKey, "verification never moves the card")
}

func TestVerifyMismatch(t *testing.T) {
	e := &countingEndpoint{}
	e.success.Store(true)
	card, claimer, _ := newTestCard(t, e)
	require.NoError(t, claimer.Claim(context.Background(), card))

	e.success.Store(false)
	err := claimer.Verify(context.Background(), card, "wrong@example.com")
	require.ErrorIs(t, err, ErrVerifyFailed)
	assert.Equal(t, StateFailed, card.State)
	assert.Equal(t, ColumnClaimed, card.ContainerKey)

	// retryable from failed while still in the claimed column
	e.success.Store(true)
	require.NoError(t, claimer.Verify(context.Background(), card, "alice@example.com"))
	assert.Equal(t, ActionFinish, card.Action)
}

func TestFinishHappyPathAndFailure(t *testing.T) {
	e := &countingEndpoint{}
	e.success.Store(true)
	card, claimer, board := newTestCard(t, e)
	require.NoError(t, claimer.Claim(context.Background(), card))

	e.success.Store(false)
	err := claimer.Finish(context.Background(), card)
	require.ErrorIs(t, err, ErrFinishFailed)
	assert.Equal(t, StateFailed, card.State)
	assert.Equal(t, ColumnClaimed, card.ContainerKey, "failed finish keeps the card in claimed")

	e.success.Store(true)
	require.NoError(t, claimer.Finish(context.Background(), card))
	assert.Equal(t, StateFinished, card.State)
	assert.Equal(t, ColumnFinished, card.ContainerKey)
	require.Len(t, board.Column(ColumnFinished), 1)
	assert.Same(t, card, board.Column(ColumnFinished)[0])
}
