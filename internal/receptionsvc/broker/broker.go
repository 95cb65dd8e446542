package broker

import (
	"encoding/json"

	"github.com/mekdim/clinic-services/internal/comm"
	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
)

const boardTopic = "board.events"

// Broker publishes board events for open dashboards. boardsvc fans them out
// to websocket clients.
type Broker struct {
	Conn *nats.Conn
}

func NewBroker(nc *nats.Conn) *Broker {
	return &Broker{Conn: nc}
}

func (b *Broker) PublishCardMove(m comm.CardMove) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}

	msg := &comm.WSMessage{
		Type: "card-moved",
		Data: data,
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	if err := b.Conn.Publish(boardTopic, payload); err != nil {
		log.Errorf("Error publishing to topic %s: %s", boardTopic, err)
		return err
	}

	return nil
}
