package bot

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gopkg.in/tucnak/telebot.v2"

	"github.com/slashbinslashnoname/telegram-stock-bot/config"
	"github.com/slashbinslashnoname/telegram-stock-bot/models"
	"github.com/slashbinslashnoname/telegram-stock-bot/offers"
)

const (
	msgNotAuthorized = "Not authorized. Ask the owner to add you as an admin."
	msgNotFound      = "Offer not found."
	msgInactive      = "Offer not found or inactive."
	msgUnavailable   = "Storage is unavailable right now, try again shortly."
)

// Offers is the offer lifecycle used by the command handlers
type Offers interface {
	Add(ctx context.Context, name string, quantity int, price decimal.Decimal) (*models.Offer, error)
	SetQuantity(ctx context.Context, id int64, quantity int) (*offers.Result, error)
	SetPrice(ctx context.Context, id int64, price decimal.Decimal) (*offers.Result, error)
	MarkSoldOut(ctx context.Context, id int64) (*offers.Result, error)
	Restock(ctx context.Context, id int64, quantity int) (*offers.Result, error)
	Announce(ctx context.Context, id, chatID int64, tmpl string) (*models.Offer, error)
	ListStock(ctx context.Context) (string, error)
}

// handlerFunc turns a command message into the reply text
type handlerFunc func(ctx context.Context, m *telebot.Message) string

// Bot represents the Telegram bot with its dependencies
type Bot struct {
	teleBot  *telebot.Bot
	offers   Offers
	config   *config.Config
	logger   *zap.Logger
	template string
}

// NewBot creates a new Bot instance
func NewBot(teleBot *telebot.Bot, o Offers, cfg *config.Config, logger *zap.Logger) *Bot {
	return &Bot{
		teleBot:  teleBot,
		offers:   o,
		config:   cfg,
		logger:   logger,
		template: AnnouncementTemplate(cfg),
	}
}

// AnnouncementTemplate returns the configured announcement template, or the
// default one followed by the contact text
func AnnouncementTemplate(cfg *config.Config) string {
	if cfg.AnnounceTemplate != "" {
		return cfg.AnnounceTemplate
	}
	if cfg.ContactText == "" {
		return offers.DefaultTemplate
	}
	return offers.DefaultTemplate + " " + cfg.ContactText
}

// Start registers command handlers and starts polling. It blocks until Stop is called.
func (b *Bot) Start() {
	b.handle("/start", false, b.start)
	b.handle("/help", false, b.help)
	b.handle("/stock", false, b.stock)
	b.handle("/list", false, b.stock)

	b.handle("/add", true, b.addOffer)
	b.handle("/setqty", true, b.setQuantity)
	b.handle("/setprice", true, b.setPrice)
	b.handle("/soldout", true, b.soldOut)
	b.handle("/remove", true, b.soldOut)
	b.handle("/announce", true, b.announce)
	b.handle("/restock", true, b.restock)

	b.handle(telebot.OnText, false, b.textTrigger)

	b.logger.Info("Bot started and ready to accept commands")
	b.teleBot.Start()
}

// Stop stops polling
func (b *Bot) Stop() {
	b.teleBot.Stop()
}

// handle registers fn for endpoint, gating admin commands and replying with its result
func (b *Bot) handle(endpoint string, admin bool, fn handlerFunc) {
	b.teleBot.Handle(endpoint, func(m *telebot.Message) {
		reply := b.dispatch(m, admin, fn)
		if reply == "" {
			return
		}
		if _, err := b.teleBot.Send(m.Chat, reply); err != nil {
			b.logger.Warn("Failed to send reply", zap.String("command", endpoint), zap.Error(err))
		}
	})
}

func (b *Bot) dispatch(m *telebot.Message, admin bool, fn handlerFunc) string {
	if admin && !b.isAdmin(m) {
		return msgNotAuthorized
	}
	ctx, cancel := context.WithTimeout(context.Background(), b.config.GatewayTimeout)
	defer cancel()
	return fn(ctx, m)
}

func (b *Bot) isAdmin(m *telebot.Message) bool {
	if m.Sender == nil {
		return false
	}
	return b.config.IsAdmin(m.Sender.ID)
}

// announcementChatID returns the configured announcement chat or the current one
func (b *Bot) announcementChatID(m *telebot.Message) int64 {
	if b.config.AnnounceChatID != 0 {
		return b.config.AnnounceChatID
	}
	if m.Chat == nil {
		return 0
	}
	return m.Chat.ID
}

func (b *Bot) start(ctx context.Context, m *telebot.Message) string {
	return "Hey! Use /stock to see what's available right now."
}

func (b *Bot) help(ctx context.Context, m *telebot.Message) string {
	lines := []string{"Customer commands:", "/stock - show current offers"}
	if b.isAdmin(m) {
		lines = append(lines,
			"",
			"Admin commands:",
			"/add Name | qty | price",
			"/setqty <id> <qty>",
			"/setprice <id> <price>",
			"/soldout <id>",
			"/restock <id> <qty>",
			"/announce <id>",
		)
	}
	return strings.Join(lines, "\n")
}

func (b *Bot) stock(ctx context.Context, m *telebot.Message) string {
	text, err := b.offers.ListStock(ctx)
	if err != nil {
		return b.errorReply("stock", err)
	}
	return text
}

// textTrigger answers plain "stock", "offers" or "list" messages
func (b *Bot) textTrigger(ctx context.Context, m *telebot.Message) string {
	switch strings.ToLower(strings.TrimSpace(m.Text)) {
	case "stock", "offers", "list":
		return b.stock(ctx, m)
	}
	return ""
}

func (b *Bot) addOffer(ctx context.Context, m *telebot.Message) string {
	if strings.TrimSpace(m.Payload) == "" {
		return "Usage: /add Name | qty | price"
	}
	name, quantity, price, err := parseAddPayload(m.Payload)
	if err != nil {
		return err.Error()
	}

	offer, err := b.offers.Add(ctx, name, quantity, price)
	if err != nil {
		return b.errorReply("add", err)
	}

	chatID := b.announcementChatID(m)
	if _, err := b.offers.Announce(ctx, offer.ID, chatID, b.template); err != nil {
		return fmt.Sprintf("Added offer #%d. Announcement failed: %s", offer.ID, err)
	}

	if m.Chat != nil && chatID == m.Chat.ID {
		return fmt.Sprintf("Added offer #%d.", offer.ID)
	}
	return fmt.Sprintf("Added offer #%d and announced it.", offer.ID)
}

func (b *Bot) setQuantity(ctx context.Context, m *telebot.Message) string {
	fields := strings.Fields(m.Payload)
	if len(fields) != 2 {
		return "Usage: /setqty <id> <qty>"
	}
	id, err := parseOfferID(fields[0])
	if err != nil {
		return err.Error()
	}
	quantity, err := parseQuantity(fields[1])
	if err != nil {
		return err.Error()
	}

	res, err := b.offers.SetQuantity(ctx, id, quantity)
	if err != nil {
		return b.errorReply("setqty", err)
	}
	if quantity == 0 {
		return soldOutReply(res)
	}
	return fmt.Sprintf("Updated #%d quantity to %d.", id, quantity)
}

func (b *Bot) setPrice(ctx context.Context, m *telebot.Message) string {
	fields := strings.Fields(m.Payload)
	if len(fields) != 2 {
		return "Usage: /setprice <id> <price>"
	}
	id, err := parseOfferID(fields[0])
	if err != nil {
		return err.Error()
	}
	price, err := parsePrice(fields[1])
	if err != nil {
		return err.Error()
	}

	res, err := b.offers.SetPrice(ctx, id, price)
	if err != nil {
		return b.errorReply("setprice", err)
	}
	return fmt.Sprintf("Updated #%d price to $%s.", id, res.Offer.Price.String())
}

func (b *Bot) soldOut(ctx context.Context, m *telebot.Message) string {
	if strings.TrimSpace(m.Payload) == "" {
		return "Usage: /soldout <id>"
	}
	id, err := parseOfferID(m.Payload)
	if err != nil {
		return err.Error()
	}

	res, err := b.offers.MarkSoldOut(ctx, id)
	if err != nil {
		return b.errorReply("soldout", err)
	}
	return soldOutReply(res)
}

func (b *Bot) restock(ctx context.Context, m *telebot.Message) string {
	fields := strings.Fields(m.Payload)
	if len(fields) != 2 {
		return "Usage: /restock <id> <qty>"
	}
	id, err := parseOfferID(fields[0])
	if err != nil {
		return err.Error()
	}
	quantity, err := parseQuantity(fields[1])
	if err != nil {
		return err.Error()
	}

	res, err := b.offers.Restock(ctx, id, quantity)
	if err != nil {
		return b.errorReply("restock", err)
	}
	return fmt.Sprintf("Restocked #%d with %d available.", id, res.Offer.Quantity)
}

func (b *Bot) announce(ctx context.Context, m *telebot.Message) string {
	if strings.TrimSpace(m.Payload) == "" {
		return "Usage: /announce <id>"
	}
	id, err := parseOfferID(m.Payload)
	if err != nil {
		return err.Error()
	}

	if _, err := b.offers.Announce(ctx, id, b.announcementChatID(m), b.template); err != nil {
		if errors.Is(err, models.ErrNotFound) || errors.Is(err, models.ErrPrecondition) {
			return msgInactive
		}
		return b.errorReply("announce", err)
	}
	return fmt.Sprintf("Announced #%d.", id)
}

func soldOutReply(res *offers.Result) string {
	if res.Retracted {
		return fmt.Sprintf("Marked #%d as sold out and removed the announcement.", res.Offer.ID)
	}
	return fmt.Sprintf("Marked #%d as sold out.", res.Offer.ID)
}

// errorReply maps lifecycle errors to user-facing replies
func (b *Bot) errorReply(command string, err error) string {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return msgNotFound
	case errors.Is(err, models.ErrValidation),
		errors.Is(err, models.ErrPrecondition),
		errors.Is(err, models.ErrConflict),
		errors.Is(err, models.ErrDelivery):
		return err.Error()
	default:
		b.logger.Error("Command failed", zap.String("command", command), zap.Error(err))
		return msgUnavailable
	}
}
