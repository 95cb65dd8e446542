package ws

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/mekdim/clinic-services/internal/boardsvc/broker"
	"github.com/mekdim/clinic-services/internal/comm"
)

// Ws tracks open dashboard sockets and routes their messages onto NATS.
type Ws struct {
	connMap sync.Map // socketId -> *websocket.Conn
	Broker  *broker.Broker
}

func NewWs() *Ws {
	return &Ws{}
}

// handle socket message from dashboard clients
func (s *Ws) SocketMessage(socketId string, message *comm.WSMessage) {
	switch message.Type {
	case "init":
		s.handleInit(socketId, message)
	case "confirm-response":
		s.forward(socketId, message, "scan.confirm")
	case "scan-begin", "scan-cancel", "manual-entry", "finish-visit":
		s.forward(socketId, message, "scan.control")
	default:
		log.Warnf("unknown event received: %s", message.Type)
	}
}

func (s *Ws) handleInit(socketId string, msg *comm.WSMessage) {
	var payload struct {
		StaffId int64  `json:"staff_id"`
		Name    string `json:"name"`
	}

	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		log.Errorf("Error: invalid_init_data Malformed init payload %s", err)
		return
	}

	if payload.StaffId == 0 {
		log.Error("Invalid init payload: missing staff id")
		return
	}

	log.Infof("dashboard socket %s registered for staff %d", socketId, payload.StaffId)
}

// forward stamps the socket id and republishes the dashboard message on NATS
// for the scan agent.
func (s *Ws) forward(socketId string, msg *comm.WSMessage, topic string) {
	msg.SocketId = socketId

	bytes, err := json.Marshal(msg)
	if err != nil {
		log.Errorf("Failed to marshal WSMessage for NATS: %v", err)
		return
	}

	if err := s.Broker.Publish(topic, bytes); err != nil {
		log.Errorf("Failed to publish to NATS topic %s: %v", topic, err)
		return
	}

	log.Infof("Published %s message from socket %s to topic %s", msg.Type, socketId, topic)
}

func (s *Ws) StoreConnection(socketId string, conn *websocket.Conn) {
	s.connMap.Store(socketId, conn)
}

func (s *Ws) GetConnection(socketId string) (*websocket.Conn, bool) {
	conn, ok := s.connMap.Load(socketId)
	if !ok {
		return nil, false
	}
	return conn.(*websocket.Conn), true
}

func (s *Ws) ForEachConnection(f func(socketId string, conn *websocket.Conn)) {
	s.connMap.Range(func(key, value interface{}) bool {
		f(key.(string), value.(*websocket.Conn))
		return true // continue iterating
	})
}

func (s *Ws) HandleDisconnect(socketId string) {
	s.connMap.Delete(socketId)
}
