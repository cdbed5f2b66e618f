package amqp

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"saldo/internal/core"
)

// ChangeMessage is the wire form of a core.Change. It names the collection
// and record that changed; consumers re-read the data from the remote.
type ChangeMessage struct {
	core.Change
	Timestamp time.Time `json:"timestamp"`
}

func NewChangeMessage(change core.Change) *ChangeMessage {
	return &ChangeMessage{
		Change:    change,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *ChangeMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ChangeMessageFromJSON decodes a message and rejects ones that do not
// name a known kind and an owner.
func ChangeMessageFromJSON(data []byte) (*ChangeMessage, error) {
	var msg ChangeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if !msg.Kind.IsValid() {
		return nil, fmt.Errorf("unknown kind %q", msg.Kind)
	}
	if msg.OwnerID == "" {
		return nil, errors.New("message without owner")
	}
	return &msg, nil
}
