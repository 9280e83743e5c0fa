// Package bot turns Telegram updates into verification and inbound sync
// calls.
package bot

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/Mirjalol49/promed-bot/internal/model"
	"github.com/mymmrac/telego"
)

const deleteCommand = "/del"

type Verifier interface {
	Start(ctx context.Context, chatID string) error
	ChooseLanguage(ctx context.Context, chatID, lang string) error
	Contact(ctx context.Context, share model.ContactShare) error
}

type Inbound interface {
	HandleMessage(ctx context.Context, msg model.InboundMessage) error
	HandleDelete(ctx context.Context, cmd model.DeleteCommand) error
	HandleEdit(ctx context.Context, edit model.InboundEdit) error
}

// UpdateSource delivers updates until ctx is done.
type UpdateSource interface {
	UpdatesViaLongPolling(ctx context.Context, params *telego.GetUpdatesParams, options ...telego.LongPollingOption) (<-chan telego.Update, error)
}

type Router struct {
	verifier Verifier
	inbound  Inbound
	log      *slog.Logger
}

func NewRouter(verifier Verifier, inbound Inbound, log *slog.Logger) *Router {
	return &Router{verifier: verifier, inbound: inbound, log: log}
}

// Run long-polls src and handles updates one at a time until ctx is
// done.
func (r *Router) Run(ctx context.Context, src UpdateSource) error {
	updates, err := src.UpdatesViaLongPolling(ctx, &telego.GetUpdatesParams{
		Timeout:        30,
		AllowedUpdates: []string{"message", "edited_message"},
	})
	if err != nil {
		return err
	}

	r.log.Info("telegram update polling started")
	for update := range updates {
		r.Handle(ctx, update)
	}
	r.log.Info("telegram update polling stopped")
	return nil
}

// Handle dispatches one update. Handler errors are logged.
func (r *Router) Handle(ctx context.Context, update telego.Update) {
	var err error
	switch {
	case update.Message != nil:
		err = r.handleMessage(ctx, update.Message)
	case update.EditedMessage != nil:
		err = r.handleEdit(ctx, update.EditedMessage)
	default:
		return
	}
	if err != nil {
		r.log.Error("handling update failed", "update_id", update.UpdateID, "err", err)
	}
}

func (r *Router) handleMessage(ctx context.Context, msg *telego.Message) error {
	chatID := strconv.FormatInt(msg.Chat.ID, 10)

	if msg.Contact != nil {
		owned := msg.From != nil && msg.Contact.UserID == msg.From.ID
		return r.verifier.Contact(ctx, model.ContactShare{ChatID: chatID, Phone: msg.Contact.PhoneNumber, Owned: owned})
	}

	switch cmd := command(msg.Text); cmd {
	case "":
	case "/start":
		return r.verifier.Start(ctx, chatID)
	case "/uz", "/ru", "/en":
		return r.verifier.ChooseLanguage(ctx, chatID, strings.TrimPrefix(cmd, "/"))
	case deleteCommand:
		if msg.ReplyToMessage == nil {
			return nil
		}
		return r.inbound.HandleDelete(ctx, model.DeleteCommand{
			ChatID:           chatID,
			CommandMessageID: strconv.Itoa(msg.MessageID),
			Target:           replyRef(msg.ReplyToMessage),
		})
	}

	inbound := model.InboundMessage{
		ChatID:     chatID,
		MessageID:  strconv.Itoa(msg.MessageID),
		Text:       msg.Text,
		ReceivedAt: time.Unix(msg.Date, 0),
	}
	if len(msg.Photo) > 0 {
		// sizes are ordered smallest first
		inbound.PhotoFileID = msg.Photo[len(msg.Photo)-1].FileID
		inbound.Text = msg.Caption
	}
	if msg.Voice != nil {
		inbound.VoiceFileID = msg.Voice.FileID
	}
	if inbound.Text == "" && !inbound.HasAttachment() {
		return nil
	}
	return r.inbound.HandleMessage(ctx, inbound)
}

func (r *Router) handleEdit(ctx context.Context, msg *telego.Message) error {
	if msg.Text == "" {
		return nil
	}
	return r.inbound.HandleEdit(ctx, model.InboundEdit{
		ChatID:    strconv.FormatInt(msg.Chat.ID, 10),
		MessageID: strconv.Itoa(msg.MessageID),
		Text:      msg.Text,
	})
}

func replyRef(msg *telego.Message) model.MessageRef {
	text := msg.Text
	if text == "" {
		text = msg.Caption
	}
	return model.MessageRef{MessageID: strconv.Itoa(msg.MessageID), Text: text}
}

// command returns the leading bot command of text without any @botname
// suffix, or "" when text is not a command.
func command(text string) string {
	if !strings.HasPrefix(text, "/") {
		return ""
	}
	cmd, _, _ := strings.Cut(text, " ")
	cmd, _, _ = strings.Cut(cmd, "@")
	return strings.ToLower(cmd)
}
