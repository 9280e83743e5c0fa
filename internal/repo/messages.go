package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Mirjalol49/promed-bot/internal/model"
)

const messageColumns = `id, patient_id, text, image, voice, sender, status,
	COALESCE(external_message_id, '') AS external_message_id, edited, created_at`

func (s *Store) FindByExternalID(ctx context.Context, patientID, externalID string) (*model.PatientMessage, error) {
	if externalID == "" {
		return nil, ErrNotFound
	}
	return s.getMessage(ctx, `
		SELECT `+messageColumns+`
		FROM patient_messages
		WHERE patient_id = ? AND external_message_id = ?
		LIMIT 1
	`, patientID, externalID)
}

// FindByText returns the oldest message of the patient whose text is exactly
// text.
func (s *Store) FindByText(ctx context.Context, patientID, text string) (*model.PatientMessage, error) {
	if text == "" {
		return nil, ErrNotFound
	}
	return s.getMessage(ctx, `
		SELECT `+messageColumns+`
		FROM patient_messages
		WHERE patient_id = ? AND text = ?
		ORDER BY created_at ASC
		LIMIT 1
	`, patientID, text)
}

func (s *Store) getMessage(ctx context.Context, query string, args ...any) (*model.PatientMessage, error) {
	var m model.PatientMessage
	err := s.db.GetContext(ctx, &m, s.q(query), args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching message: %w", err)
	}
	return &m, nil
}

func (s *Store) InsertMessage(ctx context.Context, m model.PatientMessage) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO patient_messages
			(id, patient_id, text, image, voice, sender, status, external_message_id, edited, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (patient_id, external_message_id) WHERE external_message_id IS NOT NULL DO NOTHING
	`), m.ID, m.PatientID, m.Text, m.Image, m.Voice, m.Sender, m.Status,
		nullable(m.ExternalMessageID), m.Edited, m.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("inserting message: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("getting rows affected: %w", err)
	}
	return n == 1, nil
}

func (s *Store) DeleteMessage(ctx context.Context, patientID, id string) error {
	return s.execOne(ctx, `DELETE FROM patient_messages WHERE patient_id = ? AND id = ?`, patientID, id)
}

func (s *Store) UpdateMessageText(ctx context.Context, patientID, id, text string) error {
	return s.execOne(ctx, `
		UPDATE patient_messages
		SET text = ?, edited = ?
		WHERE patient_id = ? AND id = ?
	`, text, true, patientID, id)
}

// LinkDelivered links a dispatched doctor message to its chat message id.
// Re-applying it with the same id is a no-op.
func (s *Store) LinkDelivered(ctx context.Context, patientID, id, externalID string) error {
	return s.execOne(ctx, `
		UPDATE patient_messages
		SET status = ?, external_message_id = ?
		WHERE patient_id = ? AND id = ?
	`, model.MessageDelivered, externalID, patientID, id)
}

func (s *Store) MarkDoctorMessagesSeen(ctx context.Context, patientID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.q(`
		UPDATE patient_messages
		SET status = ?
		WHERE patient_id = ? AND sender = ? AND status <> ?
	`), model.MessageSeen, patientID, model.SenderDoctor, model.MessageSeen)
	if err != nil {
		return 0, fmt.Errorf("marking messages seen: %w", err)
	}
	return res.RowsAffected()
}
