package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ledger/internal/core"
)

// RecordChangedMessage announces a committed mutation. It carries no record
// data; consumers re-read the store.
type RecordChangedMessage struct {
	MessageID string        `json:"message_id"`
	ID        int64         `json:"id"`
	Op        core.ChangeOp `json:"op"`
	Timestamp time.Time     `json:"timestamp"`
}

func NewRecordChangedMessage(id int64, op core.ChangeOp) *RecordChangedMessage {
	return &RecordChangedMessage{
		MessageID: uuid.NewString(),
		ID:        id,
		Op:        op,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *RecordChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// RecordChangedMessageFromJSON decodes and checks a message body.
func RecordChangedMessageFromJSON(data []byte) (*RecordChangedMessage, error) {
	var msg RecordChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	switch msg.Op {
	case core.ChangeCreated, core.ChangeUpdated, core.ChangeDeleted:
	default:
		return nil, fmt.Errorf("unknown change op %q", msg.Op)
	}
	return &msg, nil
}
