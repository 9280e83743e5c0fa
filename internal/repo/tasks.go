package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Mirjalol49/promed-bot/internal/model"
	"github.com/jmoiron/sqlx"
)

const taskColumns = `id, status, action, target_chat_id, text, image_url, voice_url,
	target_message_id, original_message_id, patient_id, created_at, sent_at, claimed_at, error`

func (s *Store) Enqueue(ctx context.Context, t model.OutboundTask) error {
	if t.Status == "" {
		t.Status = model.TaskPending
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO outbound_tasks (`+taskColumns+`)
		VALUES (:id, :status, :action, :target_chat_id, :text, :image_url, :voice_url,
			:target_message_id, :original_message_id, :patient_id, :created_at, :sent_at, :claimed_at, :error)
	`, t)
	if err != nil {
		return fmt.Errorf("inserting task: %w", err)
	}
	return nil
}

func (s *Store) ListPending(ctx context.Context) ([]model.OutboundTask, error) {
	var tasks []model.OutboundTask
	err := s.db.SelectContext(ctx, &tasks, s.q(`
		SELECT `+taskColumns+`
		FROM outbound_tasks
		WHERE status = ?
		ORDER BY created_at ASC
	`), model.TaskPending)
	if err != nil {
		return nil, fmt.Errorf("listing pending tasks: %w", err)
	}
	return tasks, nil
}

// Claim moves a task from PENDING to PROCESSING inside a transaction. The
// status is re-read under the transaction; the update is additionally
// guarded on status so concurrent claimers cannot both win.
func (s *Store) Claim(ctx context.Context, id, claimedAt string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var status model.TaskStatus
	err = tx.GetContext(ctx, &status, s.q(`SELECT status FROM outbound_tasks WHERE id = ?`+s.forUpdate), id)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrTaskGone
	}
	if err != nil {
		return fmt.Errorf("reading task %s: %w", id, err)
	}
	if status != model.TaskPending {
		return ErrClaimConflict
	}

	if err := claimTx(ctx, tx, id, claimedAt); err != nil {
		return err
	}
	return tx.Commit()
}

func claimTx(ctx context.Context, tx *sqlx.Tx, id, claimedAt string) error {
	res, err := tx.ExecContext(ctx, tx.Rebind(`
		UPDATE outbound_tasks
		SET status = ?, claimed_at = ?
		WHERE id = ? AND status = ?
	`), model.TaskProcessing, claimedAt, id, model.TaskPending)
	if err != nil {
		return fmt.Errorf("claiming task %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if n != 1 {
		return ErrClaimConflict
	}
	return nil
}

func (s *Store) MarkDelivered(ctx context.Context, id, targetMessageID, sentAt string) error {
	return s.execOne(ctx, `
		UPDATE outbound_tasks
		SET status = ?, target_message_id = ?, sent_at = ?, error = ''
		WHERE id = ?
	`, model.TaskDelivered, targetMessageID, sentAt, id)
}

func (s *Store) MarkFailed(ctx context.Context, id, reason string) error {
	return s.execOne(ctx, `
		UPDATE outbound_tasks
		SET status = ?, error = ?
		WHERE id = ?
	`, model.TaskFailed, reason, id)
}

func (s *Store) MarkStatus(ctx context.Context, id string, status model.TaskStatus) error {
	return s.execOne(ctx, `UPDATE outbound_tasks SET status = ?, error = '' WHERE id = ?`, status, id)
}

func (s *Store) RequeueStale(ctx context.Context, claimedBefore string) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.q(`
		UPDATE outbound_tasks
		SET status = ?, claimed_at = '', error = ''
		WHERE status = ? AND claimed_at <> '' AND claimed_at < ?
	`), model.TaskPending, model.TaskProcessing, claimedBefore)
	if err != nil {
		return 0, fmt.Errorf("requeueing stale tasks: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) DeleteTerminalBefore(ctx context.Context, createdBefore string) (int64, error) {
	query, args, err := sqlx.In(`
		DELETE FROM outbound_tasks
		WHERE status IN (?) AND created_at < ?
	`, model.TerminalStatuses, createdBefore)
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, s.q(query), args...)
	if err != nil {
		return 0, fmt.Errorf("deleting terminal tasks: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) ListByStatus(ctx context.Context, status model.TaskStatus, limit, offset int) ([]model.OutboundTask, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var tasks []model.OutboundTask
	err := s.db.SelectContext(ctx, &tasks, s.q(`
		SELECT `+taskColumns+`
		FROM outbound_tasks
		WHERE status = ?
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`), status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing %s tasks: %w", status, err)
	}
	return tasks, nil
}
