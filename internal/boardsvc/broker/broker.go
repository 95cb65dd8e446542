package broker

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"

	"github.com/mekdim/clinic-services/internal/comm"
)

// Broker relays board traffic from NATS to connected dashboard sockets and
// keeps a liveness view of the scan agent.
type Broker struct {
	Conn               *nats.Conn
	GetConnection      func(string) (*websocket.Conn, bool)
	ForEachConnection  func(func(string, *websocket.Conn))
	LastHeartbeatMap   sync.Map // agent id -> last heartbeat time
	heartbeatThreshold time.Duration
}

func NewBroker(conn *nats.Conn, fncGetConnection func(string) (*websocket.Conn, bool),
	fncForEach func(func(string, *websocket.Conn))) *Broker {
	return &Broker{
		Conn:               conn,
		GetConnection:      fncGetConnection,
		ForEachConnection:  fncForEach,
		heartbeatThreshold: time.Second * 15,
	}
}

func (b *Broker) Subscribe(topic string) (*nats.Subscription, error) {
	sub, err := b.Conn.Subscribe(topic, b.handleMessages)
	if err != nil {
		return nil, err
	}

	return sub, nil
}

func (b *Broker) Publish(topic string, payload []byte) error {
	err := b.Conn.Publish(topic, payload)
	if err != nil {
		log.Errorf("Error publishing to topic %s: %s", topic, err)
		return err
	}

	return nil
}

// handleMessages receives board events from reception service and scan agent
func (b *Broker) handleMessages(msgNats *nats.Msg) {
	message := &comm.WSMessage{}
	err := json.Unmarshal(msgNats.Data, &message)
	if err != nil {
		log.Errorf("Error %s", err)
		return
	}

	switch message.Type {
	case "card-moved", "confirm-request", "scan-status":
		b.broadcast(message)
	case "agent-heartbeat":
		b.trackHeartbeat(message)
	default:
		log.Warnf("unknown board event: %s", message.Type)
	}
}

// broadcast delivers to the addressed socket when set, all sockets otherwise.
func (b *Broker) broadcast(m *comm.WSMessage) {
	if m.SocketId != "" {
		if conn, ok := b.GetConnection(m.SocketId); ok {
			b.write(m.SocketId, conn, m)
		}
		return
	}

	b.ForEachConnection(func(socketId string, conn *websocket.Conn) {
		b.write(socketId, conn, m)
	})
}

func (b *Broker) write(socketId string, conn *websocket.Conn, m *comm.WSMessage) {
	if err := conn.WriteJSON(m); err != nil {
		log.Errorf("Error writing to socket %s: %s", socketId, err)
	}
}

func (b *Broker) trackHeartbeat(m *comm.WSMessage) {
	var hb comm.ServiceHeartbeat
	if err := json.Unmarshal(m.Data, &hb); err != nil {
		log.Errorf("invalid heartbeat payload: %s", err)
		return
	}
	b.LastHeartbeatMap.Store(hb.ID, hb.Timestamp)
}

// AgentAlive reports whether any scan agent has sent a heartbeat within the
// threshold window.
func (b *Broker) AgentAlive() bool {
	alive := false
	now := time.Now()
	b.LastHeartbeatMap.Range(func(key, value any) bool {
		if ts, ok := value.(time.Time); ok && now.Sub(ts) < b.heartbeatThreshold {
			alive = true
			return false // stop iteration
		}
		return true
	})
	return alive
}
