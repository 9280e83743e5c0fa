package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Mirjalol49/promed-bot/internal/model"
)

const patientColumns = `id, full_name, phone, chat_identity, preferred_language,
	last_active_at, unread_count, last_message_preview, is_typing`

func (s *Store) FindByChatIdentity(ctx context.Context, chatID string) (*model.Patient, error) {
	if chatID == "" {
		return nil, ErrNotFound
	}
	return s.getPatient(ctx, `SELECT `+patientColumns+` FROM patients WHERE chat_identity = ? LIMIT 1`, chatID)
}

func (s *Store) FindByPhone(ctx context.Context, phone string) (*model.Patient, error) {
	if phone == "" {
		return nil, ErrNotFound
	}
	return s.getPatient(ctx, `SELECT `+patientColumns+` FROM patients WHERE phone = ? LIMIT 1`, phone)
}

func (s *Store) getPatient(ctx context.Context, query string, args ...any) (*model.Patient, error) {
	var p model.Patient
	err := s.db.GetContext(ctx, &p, s.q(query), args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching patient: %w", err)
	}
	return &p, nil
}

// LinkChatIdentity binds a chat to the patient. A patient already linked to
// a different chat is left untouched and ErrNotFound is returned.
func (s *Store) LinkChatIdentity(ctx context.Context, patientID, chatID, language string) error {
	return s.execOne(ctx, `
		UPDATE patients
		SET chat_identity = ?, preferred_language = ?
		WHERE id = ? AND (chat_identity = '' OR chat_identity = ?)
	`, chatID, language, patientID, chatID)
}

func (s *Store) RecordActivity(ctx context.Context, patientID string, a model.Activity) error {
	return s.execOne(ctx, `
		UPDATE patients
		SET last_active_at = ?,
		    unread_count = unread_count + 1,
		    last_message_preview = ?,
		    is_typing = ?
		WHERE id = ?
	`, a.At, a.Preview, false, patientID)
}

func (s *Store) ListWithInjections(ctx context.Context) ([]model.Patient, error) {
	var patients []model.Patient
	if err := s.db.SelectContext(ctx, &patients, `SELECT `+patientColumns+` FROM patients ORDER BY id`); err != nil {
		return nil, fmt.Errorf("listing patients: %w", err)
	}

	var injections []model.Injection
	if err := s.db.SelectContext(ctx, &injections, `
		SELECT id, patient_id, date, status
		FROM patient_injections
		ORDER BY date
	`); err != nil {
		return nil, fmt.Errorf("listing injections: %w", err)
	}

	byPatient := make(map[string][]model.Injection, len(patients))
	for _, inj := range injections {
		byPatient[inj.PatientID] = append(byPatient[inj.PatientID], inj)
	}
	for i := range patients {
		patients[i].Injections = byPatient[patients[i].ID]
	}
	return patients, nil
}

// SavePatient upserts a patient and replaces its injections. The dashboard
// owns patient records; this exists for seeding and tests.
func (s *Store) SavePatient(ctx context.Context, p model.Patient) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM patient_injections WHERE patient_id = ?`), p.ID); err != nil {
		return fmt.Errorf("clearing injections: %w", err)
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM patients WHERE id = ?`), p.ID); err != nil {
		return fmt.Errorf("clearing patient: %w", err)
	}
	if _, err := tx.NamedExecContext(ctx, `
		INSERT INTO patients (`+patientColumns+`)
		VALUES (:id, :full_name, :phone, :chat_identity, :preferred_language,
			:last_active_at, :unread_count, :last_message_preview, :is_typing)
	`, p); err != nil {
		return fmt.Errorf("inserting patient: %w", err)
	}
	for _, inj := range p.Injections {
		inj.PatientID = p.ID
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO patient_injections (id, patient_id, date, status)
			VALUES (:id, :patient_id, :date, :status)
		`, inj); err != nil {
			return fmt.Errorf("inserting injection: %w", err)
		}
	}
	return tx.Commit()
}
