package model

type Sender string

const (
	SenderUser   Sender = "user"
	SenderDoctor Sender = "doctor"
)

type MessageStatus string

const (
	MessageSent      MessageStatus = "sent"
	MessageDelivered MessageStatus = "delivered"
	MessageSeen      MessageStatus = "seen"
)

// PatientMessage is one entry of the chat transcript mirrored for the
// dashboard.
type PatientMessage struct {
	ID                string        `db:"id" json:"id"`
	PatientID         string        `db:"patient_id" json:"patientId"`
	Text              string        `db:"text" json:"text,omitempty"`
	Image             string        `db:"image" json:"image,omitempty"`
	Voice             string        `db:"voice" json:"voice,omitempty"`
	Sender            Sender        `db:"sender" json:"sender"`
	Status            MessageStatus `db:"status" json:"status"`
	ExternalMessageID string        `db:"external_message_id" json:"externalMessageId,omitempty"`
	Edited            bool          `db:"edited" json:"edited"`
	CreatedAt         string        `db:"created_at" json:"createdAt"`
}
