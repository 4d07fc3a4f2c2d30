package model

type (
	// Message is the unit of transfer between two identities.
	//
	// ServerMsgID is assigned exactly once when the server accepts the
	// message; after acceptance it is the sole identifier used for
	// deduplication and acknowledgment correlation. ClientMsgID is only
	// meaningful to the sender's own session and is never trusted by
	// the recipient.
	Message struct {
		ServerMsgID string `json:"serverMsgId"`
		ClientMsgID string `json:"clientMsgId,omitempty"`
		From        string `json:"from" validate:"required"`
		To          string `json:"to" validate:"required"`
		Body        string `json:"body" validate:"required"`
		Timestamp   int64  `json:"ts"`
	}
)
