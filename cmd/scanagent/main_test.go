package main

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"

	"github.com/mekdim/clinic-services/internal/comm"
	"github.com/mekdim/clinic-services/internal/scan"
)

// stuckDevice blocks in Open until the context ends, like a dial to an
// unreachable kiosk scanner.
type stuckDevice struct{}

func (stuckDevice) Open(ctx context.Context, sourceID string) (<-chan scan.Decode, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (stuckDevice) Close() error { return nil }

func (stuckDevice) Sources(ctx context.Context) ([]scan.Source, error) { return nil, nil }

type nopGate struct{}

func (nopGate) Present(ctx context.Context, token string, identity scan.PendingIdentity) (scan.Decision, error) {
	return scan.Cancelled, nil
}

func controlMsg(t *testing.T, msgType string, ctl comm.ScanControl) *nats.Msg {
	t.Helper()
	data, err := json.Marshal(ctl)
	require.NoError(t, err)
	payload, err := json.Marshal(comm.WSMessage{Type: msgType, Data: data})
	require.NoError(t, err)
	return &nats.Msg{Data: payload}
}

func TestScanBeginDoesNotBlockControlHandling(t *testing.T) {
	board := scan.NewBoard()
	board.Add(scan.NewVisitCard(1, "", "", ""))

	session := scan.NewSession(stuckDevice{}, nil,
		scan.NewResolver("http://127.0.0.1:0", nil), nopGate{},
		scan.NewClaimer(nil, board), board, nil)

	done := make(chan struct{})
	go func() {
		handleControl(session, controlMsg(t, "scan-begin", comm.ScanControl{VisitID: 1}))
		close(done)
	}()

	// the subscription callback must come back while the device dial hangs,
	// or a queued scan-cancel could never be processed
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("control handler blocked behind a hanging device open")
	}
}
