package service

import (
	"context"

	"github.com/Mirjalol49/promed-bot/internal/model"
)

// Gateway is the chat platform the worker delivers through. Chat and
// message ids are opaque strings.
type Gateway interface {
	SendText(ctx context.Context, chatID, text string, format model.Format) (messageID string, err error)
	SendPhoto(ctx context.Context, chatID, url, caption string, format model.Format) (messageID string, err error)
	SendVoice(ctx context.Context, chatID, url string) (messageID string, err error)
	// EditText fails on messages without text, such as photos; their
	// captions need EditCaption.
	EditText(ctx context.Context, chatID, messageID, text string, format model.Format) error
	EditCaption(ctx context.Context, chatID, messageID, caption string, format model.Format) error
	DeleteMessage(ctx context.Context, chatID, messageID string) error
	FileURL(ctx context.Context, fileID string) (string, error)
}

// ContactGateway is a Gateway that can ask a user to share their phone
// number.
type ContactGateway interface {
	Gateway
	RequestContact(ctx context.Context, chatID, prompt, button string) error
}
