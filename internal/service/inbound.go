package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Mirjalol49/promed-bot/internal/metrics"
	"github.com/Mirjalol49/promed-bot/internal/model"
	"github.com/Mirjalol49/promed-bot/internal/repo"
	"github.com/google/uuid"
)

const (
	previewMax       = 100
	defaultNoticeTTL = 5 * time.Second
)

type Downloader interface {
	Download(ctx context.Context, url string) (data []byte, contentType string, err error)
}

type Uploader interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) (url string, err error)
}

// Inbound mirrors chat events from patients into the message store.
type Inbound struct {
	patients repo.PatientRepository
	messages repo.MessageRepository
	gateway  Gateway

	files   Downloader
	objects Uploader

	noticeTTL time.Duration
	afterFunc func(time.Duration, func())

	log   *slog.Logger
	now   func() time.Time
	newID func() string
}

func NewInbound(patients repo.PatientRepository, messages repo.MessageRepository, gateway Gateway, log *slog.Logger) *Inbound {
	return &Inbound{
		patients:  patients,
		messages:  messages,
		gateway:   gateway,
		noticeTTL: defaultNoticeTTL,
		afterFunc: func(d time.Duration, f func()) { time.AfterFunc(d, f) },
		log:       log,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// WithAttachmentStore re-hosts photos and voice messages in objects.
// Without it, messages keep the gateway's expiring file URL.
func (i *Inbound) WithAttachmentStore(files Downloader, objects Uploader) *Inbound {
	i.files = files
	i.objects = objects
	return i
}

func (i *Inbound) WithNoticeTTL(ttl time.Duration) *Inbound {
	if ttl > 0 {
		i.noticeTTL = ttl
	}
	return i
}

// resolve returns nil without error for chats that belong to no patient.
func (i *Inbound) resolve(ctx context.Context, kind, chatID string) (*model.Patient, error) {
	patient, err := i.patients.FindByChatIdentity(ctx, chatID)
	if errors.Is(err, repo.ErrNotFound) {
		metrics.InboundEvents.WithLabelValues(kind, "unregistered").Inc()
		i.log.Debug("dropping event from unregistered chat", "kind", kind, "chat_id", chatID)
		return nil, nil
	}
	if err != nil {
		metrics.InboundEvents.WithLabelValues(kind, "error").Inc()
		return nil, fmt.Errorf("resolving patient for chat %s: %w", chatID, err)
	}
	return patient, nil
}

// HandleMessage stores new text, photo or voice content from a patient.
// Redelivered messages are stored once.
func (i *Inbound) HandleMessage(ctx context.Context, msg model.InboundMessage) error {
	const kind = "message"

	patient, err := i.resolve(ctx, kind, msg.ChatID)
	if err != nil || patient == nil {
		return err
	}

	// a redelivery must not bump the unread counter or upload twice
	_, err = i.messages.FindByExternalID(ctx, patient.ID, msg.MessageID)
	switch {
	case err == nil:
		metrics.InboundEvents.WithLabelValues(kind, "duplicate").Inc()
		i.log.Debug("message already stored", "patient_id", patient.ID, "external_id", msg.MessageID)
		return nil
	case !errors.Is(err, repo.ErrNotFound):
		metrics.InboundEvents.WithLabelValues(kind, "error").Inc()
		return fmt.Errorf("looking up message: %w", err)
	}

	receivedAt := msg.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = i.now()
	}
	lang := patient.PreferredLanguage

	activity := model.Activity{At: model.Timestamp(receivedAt), Preview: preview(msg, lang)}
	if err := i.patients.RecordActivity(ctx, patient.ID, activity); err != nil {
		metrics.InboundEvents.WithLabelValues(kind, "error").Inc()
		return fmt.Errorf("recording activity: %w", err)
	}

	i.markSeen(ctx, patient.ID)

	var image, voice string
	if msg.PhotoFileID != "" {
		image = i.rehost(ctx, patient.ID, "photo", msg.PhotoFileID)
	}
	if msg.VoiceFileID != "" {
		voice = i.rehost(ctx, patient.ID, "voice", msg.VoiceFileID)
	}

	inserted, err := i.messages.InsertMessage(ctx, model.PatientMessage{
		ID:                i.newID(),
		PatientID:         patient.ID,
		Text:              msg.Text,
		Image:             image,
		Voice:             voice,
		Sender:            model.SenderUser,
		Status:            model.MessageSent,
		ExternalMessageID: msg.MessageID,
		CreatedAt:         model.Timestamp(receivedAt),
	})
	if err != nil {
		metrics.InboundEvents.WithLabelValues(kind, "error").Inc()
		return err
	}
	if !inserted {
		metrics.InboundEvents.WithLabelValues(kind, "duplicate").Inc()
		return nil
	}

	metrics.InboundEvents.WithLabelValues(kind, "stored").Inc()
	i.log.Info("inbound message stored", "patient_id", patient.ID, "external_id", msg.MessageID)
	return nil
}

// markSeen is a non-blocking side effect of a patient writing.
func (i *Inbound) markSeen(ctx context.Context, patientID string) {
	n, err := i.messages.MarkDoctorMessagesSeen(ctx, patientID)
	if err != nil {
		i.log.Warn("marking doctor messages seen failed", "patient_id", patientID, "err", err)
		return
	}
	if n > 0 {
		i.log.Debug("doctor messages marked seen", "patient_id", patientID, "count", n)
	}
}

// rehost copies an attachment into object storage and returns its stable
// URL, or the gateway's transient URL when that is not possible.
func (i *Inbound) rehost(ctx context.Context, patientID, kind, fileID string) string {
	fileURL, err := i.gateway.FileURL(ctx, fileID)
	if err != nil {
		i.log.Warn("resolving attachment url failed", "patient_id", patientID, "file_id", fileID, "err", err)
		return ""
	}
	if i.files == nil || i.objects == nil {
		return fileURL
	}

	data, contentType, err := i.files.Download(ctx, fileURL)
	if err != nil {
		i.log.Warn("downloading attachment failed", "patient_id", patientID, "kind", kind, "err", err)
		return fileURL
	}

	key := fmt.Sprintf("patients/%s/%s/%d%s", patientID, kind, i.now().UnixNano(), extension(kind, contentType))
	stable, err := i.objects.Upload(ctx, key, data, contentType)
	if err != nil {
		i.log.Warn("uploading attachment failed", "patient_id", patientID, "key", key, "err", err)
		return fileURL
	}
	return stable
}

func extension(kind, contentType string) string {
	switch strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]) {
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/jpeg":
		return ".jpg"
	case "audio/mpeg":
		return ".mp3"
	case "audio/ogg":
		return ".ogg"
	}
	if kind == "voice" {
		return ".ogg"
	}
	return ".jpg"
}

func preview(msg model.InboundMessage, lang string) string {
	text := msg.Text
	switch {
	case text != "":
	case msg.PhotoFileID != "":
		text = textsFor(lang).PhotoPreview
	case msg.VoiceFileID != "":
		text = textsFor(lang).VoicePreview
	}
	if utf8.RuneCountInString(text) <= previewMax {
		return text
	}
	return string([]rune(text)[:previewMax]) + "…"
}

// HandleDelete removes the replied-to message from the chat and from the
// store. The chat side and the store side fail independently.
func (i *Inbound) HandleDelete(ctx context.Context, cmd model.DeleteCommand) error {
	const kind = "delete"

	patient, err := i.resolve(ctx, kind, cmd.ChatID)
	if err != nil || patient == nil {
		return err
	}

	i.deleteFromChat(ctx, cmd.ChatID, cmd.Target.MessageID)
	i.deleteFromChat(ctx, cmd.ChatID, cmd.CommandMessageID)

	msg, err := i.messages.FindByExternalID(ctx, patient.ID, cmd.Target.MessageID)
	if errors.Is(err, repo.ErrNotFound) {
		// messages stored before ids were linked can only be matched by text
		msg, err = i.messages.FindByText(ctx, patient.ID, cmd.Target.Text)
	}
	if errors.Is(err, repo.ErrNotFound) {
		metrics.InboundEvents.WithLabelValues(kind, "not_found").Inc()
		i.notice(ctx, cmd.ChatID, textsFor(patient.PreferredLanguage).NothingToDelete)
		return nil
	}
	if err != nil {
		metrics.InboundEvents.WithLabelValues(kind, "error").Inc()
		return fmt.Errorf("looking up message to delete: %w", err)
	}

	if err := i.messages.DeleteMessage(ctx, patient.ID, msg.ID); err != nil && !errors.Is(err, repo.ErrNotFound) {
		metrics.InboundEvents.WithLabelValues(kind, "error").Inc()
		return fmt.Errorf("deleting message: %w", err)
	}

	metrics.InboundEvents.WithLabelValues(kind, "deleted").Inc()
	i.log.Info("message deleted by patient", "patient_id", patient.ID, "message_id", msg.ID)
	return nil
}

func (i *Inbound) deleteFromChat(ctx context.Context, chatID, messageID string) {
	if messageID == "" {
		return
	}
	if err := i.gateway.DeleteMessage(ctx, chatID, messageID); err != nil {
		i.log.Debug("gateway delete failed", "chat_id", chatID, "message_id", messageID, "err", err)
	}
}

// notice sends text and removes it again after the notice TTL.
func (i *Inbound) notice(ctx context.Context, chatID, text string) {
	msgID, err := i.gateway.SendText(ctx, chatID, text, model.FormatPlain)
	if err != nil {
		i.log.Warn("sending notice failed", "chat_id", chatID, "err", err)
		return
	}
	i.afterFunc(i.noticeTTL, func() {
		i.deleteFromChat(context.Background(), chatID, msgID)
	})
}

// HandleEdit syncs a patient's edit of an earlier text message.
func (i *Inbound) HandleEdit(ctx context.Context, edit model.InboundEdit) error {
	const kind = "edit"

	patient, err := i.resolve(ctx, kind, edit.ChatID)
	if err != nil || patient == nil {
		return err
	}

	msg, err := i.messages.FindByExternalID(ctx, patient.ID, edit.MessageID)
	if errors.Is(err, repo.ErrNotFound) {
		metrics.InboundEvents.WithLabelValues(kind, "not_found").Inc()
		i.log.Debug("edited message is not stored", "patient_id", patient.ID, "external_id", edit.MessageID)
		return nil
	}
	if err != nil {
		metrics.InboundEvents.WithLabelValues(kind, "error").Inc()
		return fmt.Errorf("looking up edited message: %w", err)
	}

	if err := i.messages.UpdateMessageText(ctx, patient.ID, msg.ID, edit.Text); err != nil {
		metrics.InboundEvents.WithLabelValues(kind, "error").Inc()
		return fmt.Errorf("updating message text: %w", err)
	}

	metrics.InboundEvents.WithLabelValues(kind, "edited").Inc()
	return nil
}
