// Package gateway delivers chat operations through the Telegram Bot API.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/Mirjalol49/promed-bot/internal/model"
	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
)

var errNoMessage = errors.New("telegram returned no message")

type Telegram struct {
	bot *telego.Bot
}

// NewTelegram creates a gateway for token. apiURL overrides the Bot API
// server and may be empty.
func NewTelegram(token, apiURL string) (*Telegram, error) {
	opts := []telego.BotOption{telego.WithDiscardLogger()}
	if apiURL != "" {
		opts = append(opts, telego.WithAPIServer(apiURL))
	}

	bot, err := telego.NewBot(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating telegram bot: %w", err)
	}
	return &Telegram{bot: bot}, nil
}

func (t *Telegram) Bot() *telego.Bot {
	return t.bot
}

func (t *Telegram) SendText(ctx context.Context, chatID, text string, format model.Format) (string, error) {
	id, err := parseChatID(chatID)
	if err != nil {
		return "", err
	}
	msg, err := t.bot.SendMessage(ctx, tu.Message(id, text).WithParseMode(parseMode(format)))
	return messageID(msg, err)
}

func (t *Telegram) SendPhoto(ctx context.Context, chatID, url, caption string, format model.Format) (string, error) {
	id, err := parseChatID(chatID)
	if err != nil {
		return "", err
	}
	msg, err := t.bot.SendPhoto(ctx, &telego.SendPhotoParams{
		ChatID:    id,
		Photo:     tu.FileFromURL(url),
		Caption:   caption,
		ParseMode: parseMode(format),
	})
	return messageID(msg, err)
}

func (t *Telegram) SendVoice(ctx context.Context, chatID, url string) (string, error) {
	id, err := parseChatID(chatID)
	if err != nil {
		return "", err
	}
	msg, err := t.bot.SendVoice(ctx, &telego.SendVoiceParams{
		ChatID: id,
		Voice:  tu.FileFromURL(url),
	})
	return messageID(msg, err)
}

func (t *Telegram) EditText(ctx context.Context, chatID, msgID, text string, format model.Format) error {
	id, mid, err := parseRef(chatID, msgID)
	if err != nil {
		return err
	}
	_, err = t.bot.EditMessageText(ctx, &telego.EditMessageTextParams{
		ChatID:    id,
		MessageID: mid,
		Text:      text,
		ParseMode: parseMode(format),
	})
	return err
}

func (t *Telegram) EditCaption(ctx context.Context, chatID, msgID, caption string, format model.Format) error {
	id, mid, err := parseRef(chatID, msgID)
	if err != nil {
		return err
	}
	_, err = t.bot.EditMessageCaption(ctx, &telego.EditMessageCaptionParams{
		ChatID:    id,
		MessageID: mid,
		Caption:   caption,
		ParseMode: parseMode(format),
	})
	return err
}

func (t *Telegram) DeleteMessage(ctx context.Context, chatID, msgID string) error {
	id, mid, err := parseRef(chatID, msgID)
	if err != nil {
		return err
	}
	return t.bot.DeleteMessage(ctx, tu.Delete(id, mid))
}

// FileURL resolves fileID to a download URL. The URL embeds the bot token
// and expires after about an hour.
func (t *Telegram) FileURL(ctx context.Context, fileID string) (string, error) {
	file, err := t.bot.GetFile(ctx, &telego.GetFileParams{FileID: fileID})
	if err != nil {
		return "", err
	}
	if file.FilePath == "" {
		return "", fmt.Errorf("file %s has no download path", fileID)
	}
	return t.bot.FileDownloadURL(file.FilePath), nil
}

// RequestContact sends prompt with a one-time keyboard asking the user to
// share their phone number.
func (t *Telegram) RequestContact(ctx context.Context, chatID, prompt, button string) error {
	id, err := parseChatID(chatID)
	if err != nil {
		return err
	}
	keyboard := tu.Keyboard(
		tu.KeyboardRow(tu.KeyboardButton(button).WithRequestContact()),
	).WithResizeKeyboard().WithOneTimeKeyboard()

	_, err = t.bot.SendMessage(ctx, tu.Message(id, prompt).WithReplyMarkup(keyboard))
	return err
}

func parseMode(format model.Format) string {
	if format == model.FormatMarkdown {
		return telego.ModeMarkdown
	}
	return ""
}

func parseChatID(chatID string) (telego.ChatID, error) {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return telego.ChatID{}, fmt.Errorf("invalid chat id %q", chatID)
	}
	return tu.ID(id), nil
}

func parseRef(chatID, msgID string) (telego.ChatID, int, error) {
	id, err := parseChatID(chatID)
	if err != nil {
		return telego.ChatID{}, 0, err
	}
	mid, err := strconv.Atoi(msgID)
	if err != nil {
		return telego.ChatID{}, 0, fmt.Errorf("invalid message id %q", msgID)
	}
	return id, mid, nil
}

func messageID(msg *telego.Message, err error) (string, error) {
	if err != nil {
		return "", err
	}
	if msg == nil {
		return "", errNoMessage
	}
	return strconv.Itoa(msg.MessageID), nil
}
