package model

import (
	"fmt"
	"time"
)

type TaskStatus string

const (
	TaskPending    TaskStatus = "PENDING"
	TaskProcessing TaskStatus = "PROCESSING"
	TaskDelivered  TaskStatus = "delivered"
	TaskFailed     TaskStatus = "FAILED"
	TaskEdited     TaskStatus = "EDITED"
	TaskDeleted    TaskStatus = "DELETED"

	// TaskSent is written by older dashboard builds instead of TaskDelivered.
	TaskSent TaskStatus = "SENT"
)

// TerminalStatuses are the statuses housekeeping is allowed to remove.
var TerminalStatuses = []TaskStatus{TaskSent, TaskDelivered, TaskFailed, TaskEdited, TaskDeleted}

type Action string

const (
	ActionSend   Action = "SEND"
	ActionEdit   Action = "EDIT"
	ActionDelete Action = "DELETE"
)

// ParseAction decodes the stored action column. Tasks written without an
// action are sends.
func ParseAction(raw string) (Action, error) {
	switch Action(raw) {
	case "", ActionSend:
		return ActionSend, nil
	case ActionEdit:
		return ActionEdit, nil
	case ActionDelete:
		return ActionDelete, nil
	default:
		return "", fmt.Errorf("unknown action %s", raw)
	}
}

// OutboundTask is a queued outbound chat operation. Empty strings mean the
// field is absent.
type OutboundTask struct {
	ID                string     `db:"id" json:"id"`
	Status            TaskStatus `db:"status" json:"status"`
	Action            string     `db:"action" json:"action,omitempty"`
	TargetChatID      string     `db:"target_chat_id" json:"targetChatId"`
	Text              string     `db:"text" json:"text,omitempty"`
	ImageURL          string     `db:"image_url" json:"imageUrl,omitempty"`
	VoiceURL          string     `db:"voice_url" json:"voiceUrl,omitempty"`
	TargetMessageID   string     `db:"target_message_id" json:"targetMessageId,omitempty"`
	OriginalMessageID string     `db:"original_message_id" json:"originalMessageId,omitempty"`
	PatientID         string     `db:"patient_id" json:"patientId,omitempty"`
	CreatedAt         string     `db:"created_at" json:"createdAt"`
	SentAt            string     `db:"sent_at" json:"sentAt,omitempty"`
	ClaimedAt         string     `db:"claimed_at" json:"claimedAt,omitempty"`
	Error             string     `db:"error" json:"error,omitempty"`
}

func (t OutboundTask) HasContent() bool {
	return t.Text != "" || t.ImageURL != "" || t.VoiceURL != ""
}

// LinksBack reports whether the task references a transcript entry.
func (t OutboundTask) LinksBack() bool {
	return t.PatientID != "" && t.OriginalMessageID != ""
}

const timestampLayout = "2006-01-02T15:04:05.000Z"

// Timestamp renders t as a fixed-width UTC ISO-8601 string so that
// lexicographic and chronological order agree.
func Timestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}
