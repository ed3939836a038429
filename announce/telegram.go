// Package announce posts, edits and deletes offer announcements on Telegram.
package announce

import (
	"context"
	"strconv"

	"github.com/pkg/errors"
	"gopkg.in/tucnak/telebot.v2"

	"github.com/slashbinslashnoname/telegram-stock-bot/models"
)

// messenger is the subset of *telebot.Bot used by the gateway.
type messenger interface {
	Send(to telebot.Recipient, what interface{}, options ...interface{}) (*telebot.Message, error)
	Edit(msg telebot.Editable, what interface{}, options ...interface{}) (*telebot.Message, error)
	Delete(msg telebot.Editable) error
}

// TelegramGateway sends announcements through the Telegram Bot API.
// Calls are not retried; the caller decides.
type TelegramGateway struct {
	bot messenger
}

// NewTelegramGateway wraps a telebot instance
func NewTelegramGateway(bot *telebot.Bot) *TelegramGateway {
	return &TelegramGateway{bot: bot}
}

// Post sends text to chatID and returns a reference to the posted message.
func (g *TelegramGateway) Post(ctx context.Context, chatID int64, text string) (models.AnnouncementRef, error) {
	var sent *telebot.Message
	err := call(ctx, "send announcement", func() error {
		var err error
		sent, err = g.bot.Send(telebot.ChatID(chatID), text)
		return err
	})
	if err != nil {
		return models.AnnouncementRef{}, err
	}

	ref := models.AnnouncementRef{ChatID: chatID, MessageID: sent.ID}
	if sent.Chat != nil {
		ref.ChatID = sent.Chat.ID
	}
	return ref, nil
}

// Edit replaces the text of a posted announcement.
func (g *TelegramGateway) Edit(ctx context.Context, ref models.AnnouncementRef, text string) error {
	return call(ctx, "edit announcement", func() error {
		_, err := g.bot.Edit(storedMessage(ref), text)
		return err
	})
}

// Delete removes a posted announcement. Telegram refuses to delete messages
// that are gone, too old, or outside the bot's permissions.
func (g *TelegramGateway) Delete(ctx context.Context, ref models.AnnouncementRef) error {
	return call(ctx, "delete announcement", func() error {
		return g.bot.Delete(storedMessage(ref))
	})
}

func storedMessage(ref models.AnnouncementRef) telebot.StoredMessage {
	return telebot.StoredMessage{MessageID: strconv.Itoa(ref.MessageID), ChatID: ref.ChatID}
}

// call runs fn and returns when it finishes or ctx is done. telebot has no
// context support, so an abandoned call keeps running in its goroutine.
func call(ctx context.Context, op string, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return deliveryError(op, err)
	}

	done := make(chan error, 1)
	go func() { done <- fn() }()

	select {
	case err := <-done:
		if err != nil {
			return deliveryError(op, err)
		}
		return nil
	case <-ctx.Done():
		return deliveryError(op, ctx.Err())
	}
}

type deliveryErr struct {
	op  string
	err error
}

func (e *deliveryErr) Error() string { return "failed to " + e.op + ": " + e.err.Error() }

func (e *deliveryErr) Unwrap() error { return e.err }

func (e *deliveryErr) Is(target error) bool { return target == models.ErrDelivery }

func deliveryError(op string, err error) error {
	return errors.WithStack(&deliveryErr{op: op, err: err})
}
