package model

import "time"

// InboundMessage is a new chat message received from a patient.
type InboundMessage struct {
	ChatID      string
	MessageID   string
	Text        string
	PhotoFileID string
	VoiceFileID string
	ReceivedAt  time.Time
}

func (m InboundMessage) HasAttachment() bool {
	return m.PhotoFileID != "" || m.VoiceFileID != ""
}

// MessageRef points at an earlier chat message, as carried by a reply.
type MessageRef struct {
	MessageID string
	Text      string
}

// DeleteCommand is a "/del" sent as a reply to the message to remove.
type DeleteCommand struct {
	ChatID           string
	CommandMessageID string
	Target           MessageRef
}

// InboundEdit is a patient editing a previously sent text message.
type InboundEdit struct {
	ChatID    string
	MessageID string
	Text      string
}

// ChatSession carries verification handshake state between chat updates.
type ChatSession struct {
	ChatID    string    `db:"chat_id" json:"chatId"`
	Language  string    `db:"language" json:"language"`
	ExpiresAt time.Time `db:"expires_at" json:"expiresAt"`
}

// ContactShare is a user sharing a phone number during verification. Owned
// is false when the shared contact is not the sender's own.
type ContactShare struct {
	ChatID string
	Phone  string
	Owned  bool
}
