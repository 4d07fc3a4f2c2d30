package protocol

import (
	"encoding/json"
	"fmt"

	"relaychat/internal/model"
)

// Frame type discriminators. Every frame on the wire is a JSON object
// carrying exactly one of these in its "type" field.
const (
	TypeSendMessage      = "send_message"
	TypeAckMessage       = "ack_message"
	TypePing             = "ping"
	TypeIncomingMessage  = "incoming_message"
	TypePresenceUpdate   = "presence_update"
	TypeUndeliveredBatch = "undelivered_batch"
	TypeError            = "error"
	TypePong             = "pong"
)

// Presence statuses carried by presence_update frames.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

type (
	// Frame is the wire envelope for every message in both directions.
	// Which fields are meaningful depends on Type.
	//
	// An ack_message frame is read two ways on the client side: with
	// ClientMsgID set it is a transport receipt for one of the client's
	// own sends; without it, a delivery acknowledgment relayed from the
	// recipient.
	Frame struct {
		Type        string       `json:"type"`
		ServerMsgID string       `json:"serverMsgId,omitempty"`
		ClientMsgID string       `json:"clientMsgId,omitempty"`
		From        string       `json:"from,omitempty"`
		To          string       `json:"to,omitempty"`
		Body        string       `json:"body,omitempty"`
		Timestamp   int64        `json:"ts,omitempty"`
		User        string       `json:"user,omitempty"`
		Status      string       `json:"status,omitempty"`
		Messages    []BatchEntry `json:"messages,omitempty"`
		Error       string       `json:"error,omitempty"`
		PongTime    int64        `json:"timestamp,omitempty"`
	}

	// BatchEntry is one message inside an undelivered_batch frame. It
	// carries the same field subset as an incoming_message frame: the
	// recipient never sees the sender's correlation id or the routing
	// address.
	BatchEntry struct {
		ServerMsgID string `json:"serverMsgId"`
		From        string `json:"from"`
		Body        string `json:"body"`
		Timestamp   int64  `json:"ts"`
	}
)

// Decode parses a raw frame. A frame without a type discriminator is
// malformed; per the error taxonomy it is the caller's job to log and
// drop it, not to tear the connection down.
func Decode(data []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("unmarshal frame: %w", err)
	}
	if f.Type == "" {
		return nil, fmt.Errorf("frame missing type discriminator")
	}
	return &f, nil
}

func SendMessage(clientMsgID, to, body string, ts int64) *Frame {
	return &Frame{
		Type:        TypeSendMessage,
		ClientMsgID: clientMsgID,
		To:          to,
		Body:        body,
		Timestamp:   ts,
	}
}

// Receipt is the transport receipt returned to a sender once the server
// has accepted its message. It confirms acceptance, not delivery.
func Receipt(serverMsgID, clientMsgID, to string) *Frame {
	return &Frame{
		Type:        TypeAckMessage,
		ServerMsgID: serverMsgID,
		ClientMsgID: clientMsgID,
		To:          to,
	}
}

// Ack acknowledges delivery of one message, identified only by its
// server-assigned id.
func Ack(serverMsgID string) *Frame {
	return &Frame{
		Type:        TypeAckMessage,
		ServerMsgID: serverMsgID,
	}
}

func Incoming(m *model.Message) *Frame {
	return &Frame{
		Type:        TypeIncomingMessage,
		ServerMsgID: m.ServerMsgID,
		From:        m.From,
		Body:        m.Body,
		Timestamp:   m.Timestamp,
	}
}

func Presence(user, status string) *Frame {
	return &Frame{
		Type:   TypePresenceUpdate,
		User:   user,
		Status: status,
	}
}

func UndeliveredBatch(messages []model.Message) *Frame {
	entries := make([]BatchEntry, 0, len(messages))
	for _, m := range messages {
		entries = append(entries, BatchEntry{
			ServerMsgID: m.ServerMsgID,
			From:        m.From,
			Body:        m.Body,
			Timestamp:   m.Timestamp,
		})
	}
	return &Frame{
		Type:     TypeUndeliveredBatch,
		Messages: entries,
	}
}

func Ping() *Frame {
	return &Frame{Type: TypePing}
}

func Pong(ts int64) *Frame {
	return &Frame{Type: TypePong, PongTime: ts}
}
