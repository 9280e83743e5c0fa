package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Mirjalol49/promed-bot/internal/model"
	"github.com/Mirjalol49/promed-bot/internal/repo"
)

const defaultSessionTTL = 15 * time.Minute

// Verifier links a chat to a patient once the user proves the patient's
// phone number: /start, a language command, then a contact share.
type Verifier struct {
	patients repo.PatientRepository
	sessions repo.SessionRepository
	gateway  ContactGateway
	ttl      time.Duration

	log *slog.Logger
	now func() time.Time
}

func NewVerifier(patients repo.PatientRepository, sessions repo.SessionRepository, gateway ContactGateway, log *slog.Logger) *Verifier {
	return &Verifier{
		patients: patients,
		sessions: sessions,
		gateway:  gateway,
		ttl:      defaultSessionTTL,
		log:      log,
		now:      time.Now,
	}
}

func (v *Verifier) WithSessionTTL(ttl time.Duration) *Verifier {
	if ttl > 0 {
		v.ttl = ttl
	}
	return v
}

func (v *Verifier) Start(ctx context.Context, chatID string) error {
	_, err := v.gateway.SendText(ctx, chatID, languagePrompt, model.FormatPlain)
	return err
}

func (v *Verifier) ChooseLanguage(ctx context.Context, chatID, lang string) error {
	if !SupportedLanguage(lang) {
		return fmt.Errorf("unsupported language %q", lang)
	}

	session := model.ChatSession{ChatID: chatID, Language: lang, ExpiresAt: v.now().Add(v.ttl)}
	if err := v.sessions.PutSession(ctx, session); err != nil {
		return err
	}

	t := textsFor(lang)
	return v.gateway.RequestContact(ctx, chatID, t.SharePhone, t.ShareButton)
}

// Contact completes verification. Without a live session the default
// language is used.
func (v *Verifier) Contact(ctx context.Context, share model.ContactShare) error {
	lang := defaultLanguage
	session, err := v.sessions.GetSession(ctx, share.ChatID)
	switch {
	case err == nil:
		lang = session.Language
	case !errors.Is(err, repo.ErrNotFound):
		v.log.Warn("loading session failed", "chat_id", share.ChatID, "err", err)
	}
	t := textsFor(lang)

	if !share.Owned {
		return v.reply(ctx, share.ChatID, t.OwnContactOnly)
	}

	patient, err := v.findByPhone(ctx, share.Phone)
	if errors.Is(err, repo.ErrNotFound) {
		v.log.Info("verification phone not found", "chat_id", share.ChatID)
		return v.reply(ctx, share.ChatID, t.PhoneNotFound)
	}
	if err != nil {
		return err
	}

	err = v.patients.LinkChatIdentity(ctx, patient.ID, share.ChatID, lang)
	if errors.Is(err, repo.ErrNotFound) {
		v.log.Warn("patient already linked to another chat", "patient_id", patient.ID, "chat_id", share.ChatID)
		return v.reply(ctx, share.ChatID, t.AlreadyLinked)
	}
	if err != nil {
		return fmt.Errorf("linking chat identity: %w", err)
	}

	if err := v.sessions.DeleteSession(ctx, share.ChatID); err != nil {
		v.log.Warn("deleting session failed", "chat_id", share.ChatID, "err", err)
	}

	v.log.Info("patient verified", "patient_id", patient.ID, "chat_id", share.ChatID, "language", lang)
	return v.reply(ctx, share.ChatID, fmt.Sprintf(t.Verified, patient.FullName))
}

// findByPhone matches the stored phone with and without a leading plus.
func (v *Verifier) findByPhone(ctx context.Context, phone string) (*model.Patient, error) {
	digits := NormalizePhone(phone)
	if digits == "" {
		return nil, repo.ErrNotFound
	}
	patient, err := v.patients.FindByPhone(ctx, "+"+digits)
	if errors.Is(err, repo.ErrNotFound) {
		return v.patients.FindByPhone(ctx, digits)
	}
	return patient, err
}

func (v *Verifier) reply(ctx context.Context, chatID, text string) error {
	_, err := v.gateway.SendText(ctx, chatID, text, model.FormatPlain)
	return err
}

// NormalizePhone keeps only the digits of phone.
func NormalizePhone(phone string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, phone)
}
