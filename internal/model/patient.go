package model

import "time"

type InjectionStatus string

const (
	InjectionScheduled InjectionStatus = "Scheduled"
	InjectionCompleted InjectionStatus = "Completed"
	InjectionCancelled InjectionStatus = "Cancelled"
)

type Injection struct {
	ID        string          `db:"id" json:"id"`
	PatientID string          `db:"patient_id" json:"patientId"`
	Date      string          `db:"date" json:"date"`
	Status    InjectionStatus `db:"status" json:"status"`
}

// Day returns the calendar date of the injection in loc. Dates carrying an
// explicit offset are converted, local dates ("2026-10-15T09:00") are taken
// as written.
func (i Injection) Day(loc *time.Location) (string, bool) {
	if t, err := time.Parse(time.RFC3339, i.Date); err == nil {
		return t.In(loc).Format(time.DateOnly), true
	}
	if len(i.Date) < len(time.DateOnly) {
		return "", false
	}
	day := i.Date[:len(time.DateOnly)]
	if _, err := time.Parse(time.DateOnly, day); err != nil {
		return "", false
	}
	return day, true
}

type Patient struct {
	ID                 string `db:"id" json:"id"`
	FullName           string `db:"full_name" json:"fullName"`
	Phone              string `db:"phone" json:"phone"`
	ChatIdentity       string `db:"chat_identity" json:"chatIdentity,omitempty"`
	PreferredLanguage  string `db:"preferred_language" json:"preferredLanguage,omitempty"`
	LastActiveAt       string `db:"last_active_at" json:"lastActiveAt,omitempty"`
	UnreadCount        int    `db:"unread_count" json:"unreadCount"`
	LastMessagePreview string `db:"last_message_preview" json:"lastMessagePreview,omitempty"`
	IsTyping           bool   `db:"is_typing" json:"isTyping"`

	Injections []Injection `db:"-" json:"injections,omitempty"`
}

// Activity is the inbound metadata recorded on a patient for every new
// user message.
type Activity struct {
	At      string
	Preview string
}
