package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	config "github.com/mekdim/clinic-services/configs"
	"github.com/mekdim/clinic-services/internal/comm"
	natscli "github.com/mekdim/clinic-services/internal/nats"
	"github.com/mekdim/clinic-services/internal/scan"
	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
)

const SERVICE_NAME = "scanagent"

var instanceId string

func init() {
	instanceId = config.CreateUniqueInstance(SERVICE_NAME)
	config.Logging(SERVICE_NAME + "_service_" + instanceId)
	config.LoadEnv(SERVICE_NAME)
}

func main() {
	// NATS connection
	n, err := natscli.Connect()
	if err != nil {
		log.Fatalf("Failed to connect to NATS: %v", err)
	}
	defer n.Conn.Close()
	log.Infof("NATS connected at %s", n.Url)

	apiURL := os.Getenv("RECEPTION_API_URL")
	client := &http.Client{
		Timeout:   10 * time.Second,
		Transport: &authTransport{token: os.Getenv("SERVICE_JWT")},
	}

	// bootstrap the board from the reception service
	board := scan.NewBoard()
	if err := loadBoard(client, apiURL, board); err != nil {
		log.Fatalf("Failed to load board snapshot: %v", err)
	}

	device := scan.NewLineDevice(os.Getenv("SCANNER_ADDR"))
	resolver := scan.NewResolver(apiURL+"/v1/patients/lookup", client)
	claimer := scan.NewClaimer(client, board)
	gate := newNatsGate(n)

	session := scan.NewSession(device, nil, resolver, gate, claimer, board, func(kind, message string) {
		publishStatus(n, kind, message)
	})

	// operator decisions coming back from the dashboards
	subConfirm, err := n.Conn.Subscribe("scan.confirm", gate.handleResponse)
	if err != nil {
		log.Fatalf("Subscribe scan.confirm error: %v", err)
	}
	defer subConfirm.Unsubscribe()

	// scan controls from the dashboards
	_, err = n.Conn.Subscribe("scan.control", func(m *nats.Msg) {
		handleControl(session, m)
	})
	if err != nil {
		log.Fatalf("Subscribe scan.control error: %v", err)
	}

	go heartbeat(n)

	log.Infof("%s running for scanner %s", SERVICE_NAME, os.Getenv("SCANNER_ADDR"))
	select {} // run forever
}

// handleControl drives the scan session from dashboard messages.
func handleControl(session *scan.Session, m *nats.Msg) {
	var ws comm.WSMessage
	if err := json.Unmarshal(m.Data, &ws); err != nil {
		log.Errorf("invalid WSMessage: %v", err)
		return
	}

	var ctl comm.ScanControl
	if err := json.Unmarshal(ws.Data, &ctl); err != nil {
		log.Errorf("invalid ScanControl: %v", err)
		return
	}

	ctx := context.Background()

	switch ws.Type {
	case "scan-begin":
		// off the subscription callback: a slow scanner dial must not hold
		// up a queued scan-cancel
		go func() {
			if err := session.BeginScan(ctx, ctl.VisitID, ctl.SourceID); err != nil {
				log.Errorf("scan-begin visit %d: %v", ctl.VisitID, err)
			}
		}()
	case "scan-cancel":
		session.Close()
	case "manual-entry":
		go func() {
			if err := session.SubmitManual(ctx, ctl.VisitID, ctl.Email); err != nil {
				log.Errorf("manual-entry visit %d: %v", ctl.VisitID, err)
			}
		}()
	case "finish-visit":
		go func() {
			if err := session.Finish(ctx, ctl.VisitID); err != nil {
				log.Errorf("finish-visit visit %d: %v", ctl.VisitID, err)
			}
		}()
	default:
		log.Warnf("unknown control message: %s", ws.Type)
	}
}

// natsGate presents confirmations on the dashboards and waits for the
// operator's decision, matched back by session token.
type natsGate struct {
	n       *natscli.Nats
	mu      sync.Mutex
	pending map[string]chan bool
}

func newNatsGate(n *natscli.Nats) *natsGate {
	return &natsGate{n: n, pending: make(map[string]chan bool)}
}

func (g *natsGate) Present(ctx context.Context, token string, identity scan.PendingIdentity) (scan.Decision, error) {
	ch := make(chan bool, 1)
	g.mu.Lock()
	g.pending[token] = ch
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		delete(g.pending, token)
		g.mu.Unlock()
	}()

	req := comm.ConfirmRequest{
		Token: token,
		Patient: comm.PatientData{
			FullName:        identity.Patient.FullName,
			Email:           identity.Patient.Email,
			PatientCode:     identity.Patient.PatientCode,
			ProfilePhotoURL: identity.Patient.ProfilePhotoURL,
		},
	}
	if err := publish(g.n, "board.events", "confirm-request", req); err != nil {
		return scan.Cancelled, err
	}

	select {
	case accepted := <-ch:
		if accepted {
			return scan.Accepted, nil
		}
		return scan.Cancelled, nil
	case <-ctx.Done():
		return scan.Cancelled, ctx.Err()
	}
}

func (g *natsGate) handleResponse(m *nats.Msg) {
	var ws comm.WSMessage
	if err := json.Unmarshal(m.Data, &ws); err != nil {
		log.Errorf("invalid WSMessage: %v", err)
		return
	}
	if ws.Type != "confirm-response" {
		return
	}

	var resp comm.ConfirmResponse
	if err := json.Unmarshal(ws.Data, &resp); err != nil {
		log.Errorf("invalid ConfirmResponse: %v", err)
		return
	}

	g.mu.Lock()
	ch, ok := g.pending[resp.Token]
	g.mu.Unlock()
	if !ok {
		log.Warnf("confirm response for unknown token %s", resp.Token)
		return
	}

	select {
	case ch <- resp.Accepted:
	default:
	}
}

// loadBoard pulls the board snapshot and materializes visit cards bound to
// their reception endpoints.
func loadBoard(client *http.Client, apiURL string, board *scan.Board) error {
	resp, err := client.Get(apiURL + "/v1/board")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var envelope struct {
		Data map[string][]struct {
			VisitID     int64  `json:"visit_id"`
			PatientName string `json:"patient_name"`
			Status      string `json:"status"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("decode board snapshot: %w", err)
	}

	claimURL := apiURL + "/v1/visits/claim"
	verifyURL := apiURL + "/v1/visits/verify"
	finishURL := apiURL + "/v1/visits/finish"

	for column, rows := range envelope.Data {
		for _, row := range rows {
			card := scan.NewVisitCard(row.VisitID, claimURL, verifyURL, finishURL)
			card.PatientName = row.PatientName
			switch column {
			case "claimed":
				card.State = scan.StateClaimed
				card.ContainerKey = scan.ColumnClaimed
				card.Action = scan.ActionVerify
				if row.Status == "ready" {
					card.Action = scan.ActionFinish
				}
			case "finished":
				card.State = scan.StateFinished
				card.ContainerKey = scan.ColumnFinished
				card.Action = ""
			}
			board.Add(card)
		}
	}

	return nil
}

func publishStatus(n *natscli.Nats, kind, message string) {
	if err := publish(n, "board.events", "scan-status", comm.ScanStatus{Kind: kind, Message: message}); err != nil {
		log.Errorf("unable to publish scan status: %v", err)
	}
}

func heartbeat(n *natscli.Nats) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		hb := comm.ServiceHeartbeat{ID: instanceId, Timestamp: time.Now()}
		if err := publish(n, "board.events", "agent-heartbeat", hb); err != nil {
			log.Errorf("unable to publish heartbeat: %v", err)
		}
	}
}

func publish(n *natscli.Nats, topic, msgType string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	msg := &comm.WSMessage{Type: msgType, Data: data}
	bytes, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	return n.Conn.Publish(topic, bytes)
}

// authTransport stamps the staff service token on every reception API call.
type authTransport struct {
	token string
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.Header.Set("Authorization", "Bearer "+t.token)
	return http.DefaultTransport.RoundTrip(req)
}
