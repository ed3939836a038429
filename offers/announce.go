package offers

import (
	"context"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/slashbinslashnoname/telegram-stock-bot/models"
)

// DefaultTemplate is the announcement text used by the bot.
const DefaultTemplate = "Hey! I have {name} in right now. {quantity} available at ${price}."

// Render fills the {id}, {name}, {quantity} and {price} placeholders of tmpl.
func Render(tmpl string, offer models.Offer) string {
	return strings.NewReplacer(
		"{id}", strconv.FormatInt(offer.ID, 10),
		"{name}", offer.Name,
		"{quantity}", strconv.Itoa(offer.Quantity),
		"{price}", offer.Price.String(),
	).Replace(tmpl)
}

// Announce posts the rendered template to chatID and records the new message
// as the offer's announcement. A previous announcement is left in the chat.
func (m *Manager) Announce(ctx context.Context, id, chatID int64, tmpl string) (offer *models.Offer, err error) {
	ctx, span := m.startSpan(ctx, "offers.Announce", id)
	defer func() { endSpan(span, err) }()
	span.SetAttributes(attribute.Int64("announce.chat_id", chatID))

	current, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !current.Active() {
		return nil, models.Errorf(models.ErrPrecondition, "Offer not found or inactive.")
	}

	ref, err := m.gateway.Post(ctx, chatID, Render(tmpl, *current))
	if err != nil {
		m.logger.Warn("Announcement send failed", zap.Int64("offer_id", id), zap.Error(err))
		return nil, err
	}

	var stale *models.AnnouncementRef
	offer, err = m.update(ctx, id, func(o models.Offer) (models.Offer, error) {
		if !o.Active() {
			return o, models.Errorf(models.ErrPrecondition, "Offer #%d sold out while announcing.", id)
		}
		stale = o.Announcement
		o.Announcement = &ref
		return o, nil
	})
	if err != nil {
		// The new message was never recorded, so nothing else would remove it.
		m.retract(ctx, id, ref)
		return nil, err
	}

	if stale != nil {
		m.logger.Debug("Stale announcement abandoned",
			zap.Int64("offer_id", id),
			zap.Int64("chat_id", stale.ChatID),
			zap.Int("message_id", stale.MessageID),
		)
	}
	m.logger.Info("Offer announced",
		zap.Int64("offer_id", id),
		zap.Int64("chat_id", ref.ChatID),
		zap.Int("message_id", ref.MessageID),
	)
	return offer, nil
}

// refresh re-renders the live announcement of an active offer. Failures are
// logged only; the stored state already changed.
func (m *Manager) refresh(ctx context.Context, offer *models.Offer) {
	if m.refreshTemplate == "" || !offer.Active() || offer.Announcement == nil {
		return
	}
	if err := m.gateway.Edit(ctx, *offer.Announcement, Render(m.refreshTemplate, *offer)); err != nil {
		m.logger.Warn("Announcement refresh failed", zap.Int64("offer_id", offer.ID), zap.Error(err))
	}
}
