package repo

import (
	"context"
	"errors"

	"github.com/Mirjalol49/promed-bot/internal/model"
)

var (
	ErrNotFound = errors.New("not found")

	// ErrClaimConflict means another worker already moved the task out of
	// PENDING.
	ErrClaimConflict = errors.New("task is no longer pending")

	// ErrTaskGone means the task was deleted before it could be claimed.
	ErrTaskGone = errors.New("task no longer exists")
)

type TaskRepository interface {
	Enqueue(ctx context.Context, task model.OutboundTask) error
	ListPending(ctx context.Context) ([]model.OutboundTask, error)
	Claim(ctx context.Context, id, claimedAt string) error
	MarkDelivered(ctx context.Context, id, targetMessageID, sentAt string) error
	MarkFailed(ctx context.Context, id, reason string) error
	MarkStatus(ctx context.Context, id string, status model.TaskStatus) error
	RequeueStale(ctx context.Context, claimedBefore string) (int64, error)
	DeleteTerminalBefore(ctx context.Context, createdBefore string) (int64, error)
	ListByStatus(ctx context.Context, status model.TaskStatus, limit, offset int) ([]model.OutboundTask, error)
}

type PatientRepository interface {
	FindByChatIdentity(ctx context.Context, chatID string) (*model.Patient, error)
	FindByPhone(ctx context.Context, phone string) (*model.Patient, error)
	LinkChatIdentity(ctx context.Context, patientID, chatID, language string) error
	RecordActivity(ctx context.Context, patientID string, activity model.Activity) error
	ListWithInjections(ctx context.Context) ([]model.Patient, error)
}

type MessageRepository interface {
	FindByExternalID(ctx context.Context, patientID, externalID string) (*model.PatientMessage, error)
	FindByText(ctx context.Context, patientID, text string) (*model.PatientMessage, error)
	// InsertMessage returns false when a message with the same external id already
	// exists for the patient.
	InsertMessage(ctx context.Context, msg model.PatientMessage) (bool, error)
	DeleteMessage(ctx context.Context, patientID, id string) error
	UpdateMessageText(ctx context.Context, patientID, id, text string) error
	LinkDelivered(ctx context.Context, patientID, id, externalID string) error
	MarkDoctorMessagesSeen(ctx context.Context, patientID string) (int64, error)
}

type SessionRepository interface {
	PutSession(ctx context.Context, session model.ChatSession) error
	GetSession(ctx context.Context, chatID string) (*model.ChatSession, error)
	DeleteSession(ctx context.Context, chatID string) error
}
