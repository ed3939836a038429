package announce

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/tucnak/telebot.v2"

	"github.com/slashbinslashnoname/telegram-stock-bot/models"
)

type fakeMessenger struct {
	sent    []string
	edited  []telebot.Editable
	deleted []telebot.Editable
	err     error
	block   chan struct{}
	nextID  int
}

func (f *fakeMessenger) Send(to telebot.Recipient, what interface{}, options ...interface{}) (*telebot.Message, error) {
	if f.block != nil {
		<-f.block
	}
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, what.(string))
	f.nextID++
	chatID, _ := to.(telebot.ChatID)
	return &telebot.Message{ID: f.nextID, Chat: &telebot.Chat{ID: int64(chatID)}}, nil
}

func (f *fakeMessenger) Edit(msg telebot.Editable, what interface{}, options ...interface{}) (*telebot.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.edited = append(f.edited, msg)
	return &telebot.Message{}, nil
}

func (f *fakeMessenger) Delete(msg telebot.Editable) error {
	if f.err != nil {
		return f.err
	}
	f.deleted = append(f.deleted, msg)
	return nil
}

func TestPostReturnsRef(t *testing.T) {
	fake := &fakeMessenger{nextID: 40}
	gateway := &TelegramGateway{bot: fake}

	ref, err := gateway.Post(context.Background(), -100123, "Hey!")
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
	if ref != (models.AnnouncementRef{ChatID: -100123, MessageID: 41}) {
		t.Errorf("unexpected ref %+v", ref)
	}
	if len(fake.sent) != 1 || fake.sent[0] != "Hey!" {
		t.Errorf("unexpected sent messages %v", fake.sent)
	}
}

func TestDeleteAndEditUseStoredMessage(t *testing.T) {
	fake := &fakeMessenger{}
	gateway := &TelegramGateway{bot: fake}
	ref := models.AnnouncementRef{ChatID: 5, MessageID: 12}

	if err := gateway.Edit(context.Background(), ref, "updated"); err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if err := gateway.Delete(context.Background(), ref); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	for _, msg := range append(fake.edited, fake.deleted...) {
		messageID, chatID := msg.MessageSig()
		if messageID != "12" || chatID != 5 {
			t.Errorf("unexpected message signature %s/%d", messageID, chatID)
		}
	}
}

func TestFailuresAreDeliveryErrors(t *testing.T) {
	cause := errors.New("telegram: message can't be deleted (400)")
	gateway := &TelegramGateway{bot: &fakeMessenger{err: cause}}
	ctx := context.Background()
	ref := models.AnnouncementRef{ChatID: 1, MessageID: 1}

	if _, err := gateway.Post(ctx, 1, "x"); !errors.Is(err, models.ErrDelivery) {
		t.Errorf("Post: expected ErrDelivery, got %v", err)
	}
	if err := gateway.Edit(ctx, ref, "x"); !errors.Is(err, models.ErrDelivery) {
		t.Errorf("Edit: expected ErrDelivery, got %v", err)
	}
	err := gateway.Delete(ctx, ref)
	if !errors.Is(err, models.ErrDelivery) {
		t.Errorf("Delete: expected ErrDelivery, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Errorf("Delete: expected cause to be preserved, got %v", err)
	}
}

func TestTimeoutIsDeliveryError(t *testing.T) {
	fake := &fakeMessenger{block: make(chan struct{})}
	defer close(fake.block)
	gateway := &TelegramGateway{bot: fake}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := gateway.Post(ctx, 1, "slow")
	if !errors.Is(err, models.ErrDelivery) {
		t.Fatalf("expected ErrDelivery, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded cause, got %v", err)
	}
}

func TestCancelledContextSkipsCall(t *testing.T) {
	fake := &fakeMessenger{}
	gateway := &TelegramGateway{bot: fake}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := gateway.Delete(ctx, models.AnnouncementRef{ChatID: 1, MessageID: 2}); !errors.Is(err, models.ErrDelivery) {
		t.Fatalf("expected ErrDelivery, got %v", err)
	}
	if len(fake.deleted) != 0 {
		t.Errorf("expected no delete call, got %d", len(fake.deleted))
	}
}
