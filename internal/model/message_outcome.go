// internal/model/message_outcome.go
package model

type Status string

const (
	// StatusPending is accepted by the schema but never written by the intake pipeline.
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Statuses lists every status in display order.
var Statuses = []Status{StatusPending, StatusSuccess, StatusFailed}

const (
	MissingDestination = "N/A"

	ReasonMissingPhone    = "Missing phone number"
	ReasonInvalidPhone    = "Invalid phone number"
	ReasonMessageTooLong  = "Message exceeds 200 characters"
	MaxMessageLength      = 200
	MaxErrorMessageLength = 200
)

// MessageOutcome is the persisted result of processing one contact.
type MessageOutcome struct {
	ID           int64  `db:"id" json:"id"`
	Destination  string `db:"phone_number" json:"phone_number"`
	Message      string `db:"message" json:"message"`
	Status       Status `db:"status" json:"status"`
	ErrorMessage string `db:"error_message" json:"error_message,omitempty"`
}

// DedupKey is the pair that may only be stored once.
type DedupKey struct {
	Destination string
	Message     string
}

func (m *MessageOutcome) Key() DedupKey {
	return DedupKey{Destination: m.Destination, Message: m.Message}
}
