// Package offers owns the offer lifecycle: it serializes admin mutations
// through the store and keeps the posted announcement consistent with the
// stored state.
package offers

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/slashbinslashnoname/telegram-stock-bot/models"
)

const (
	// DefaultMaxAttempts bounds optimistic update retries.
	DefaultMaxAttempts = 5
	// DefaultRetractTimeout bounds an announcement delete that runs after the
	// caller's context is done.
	DefaultRetractTimeout = 10 * time.Second
)

// Store is the durable offer table.
type Store interface {
	Create(ctx context.Context, name string, quantity int, price decimal.Decimal) (*models.Offer, error)
	Get(ctx context.Context, id int64) (*models.Offer, error)
	ListActive(ctx context.Context) ([]models.Offer, error)
	Update(ctx context.Context, id int64, mutate func(models.Offer) (models.Offer, error)) (*models.Offer, error)
}

// Gateway posts and retracts announcements on the chat platform.
type Gateway interface {
	Post(ctx context.Context, chatID int64, text string) (models.AnnouncementRef, error)
	Edit(ctx context.Context, ref models.AnnouncementRef, text string) error
	Delete(ctx context.Context, ref models.AnnouncementRef) error
}

// Result describes the outcome of a mutation.
type Result struct {
	Offer models.Offer
	// SoldOut is set when this call moved the offer to sold out.
	SoldOut bool
	// Retracted is set when the previous announcement was deleted.
	Retracted bool
}

// Manager runs the offer lifecycle operations.
type Manager struct {
	store           Store
	gateway         Gateway
	logger          *zap.Logger
	tracer          trace.Tracer
	maxAttempts     int
	retractTimeout  time.Duration
	refreshTemplate string
}

// Option configures a Manager.
type Option func(*Manager)

// WithMaxAttempts sets how many times a conflicting update is attempted.
func WithMaxAttempts(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxAttempts = n
		}
	}
}

// WithRetractTimeout sets the timeout of announcement deletes.
func WithRetractTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.retractTimeout = d
		}
	}
}

// WithRefreshTemplate makes quantity and price changes re-render the live
// announcement of an active offer with tmpl.
func WithRefreshTemplate(tmpl string) Option {
	return func(m *Manager) { m.refreshTemplate = tmpl }
}

// WithTracer overrides the global tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(m *Manager) { m.tracer = tracer }
}

// NewManager creates a Manager over the given store and gateway.
func NewManager(store Store, gateway Gateway, logger *zap.Logger, opts ...Option) *Manager {
	m := &Manager{
		store:          store,
		gateway:        gateway,
		logger:         logger,
		tracer:         otel.Tracer("github.com/slashbinslashnoname/telegram-stock-bot/offers"),
		maxAttempts:    DefaultMaxAttempts,
		retractTimeout: DefaultRetractTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Add creates a new active offer.
func (m *Manager) Add(ctx context.Context, name string, quantity int, price decimal.Decimal) (offer *models.Offer, err error) {
	ctx, span := m.tracer.Start(ctx, "offers.Add")
	defer func() { endSpan(span, err) }()

	offer, err = m.store.Create(ctx, name, quantity, price)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int64("offer.id", offer.ID))
	m.logger.Info("Offer added",
		zap.Int64("offer_id", offer.ID),
		zap.String("name", offer.Name),
		zap.Int("quantity", offer.Quantity),
		zap.String("price", offer.Price.String()),
	)
	return offer, nil
}

// Get returns a single offer.
func (m *Manager) Get(ctx context.Context, id int64) (*models.Offer, error) {
	return m.store.Get(ctx, id)
}

// SetQuantity sets the quantity of an offer. Zero sells the offer out.
func (m *Manager) SetQuantity(ctx context.Context, id int64, quantity int) (res *Result, err error) {
	ctx, span := m.startSpan(ctx, "offers.SetQuantity", id)
	defer func() { endSpan(span, err) }()
	span.SetAttributes(attribute.Int("offer.quantity", quantity))

	if quantity < 0 {
		return nil, models.Errorf(models.ErrValidation, "Quantity must be zero or greater")
	}
	if quantity == 0 {
		return m.sellOut(ctx, id, true)
	}

	offer, err := m.update(ctx, id, func(o models.Offer) (models.Offer, error) {
		if !o.Active() {
			return o, models.Errorf(models.ErrPrecondition, "Offer #%d is sold out. Use /restock to bring it back.", id)
		}
		o.Quantity = quantity
		return o, nil
	})
	if err != nil {
		return nil, err
	}

	m.logger.Info("Offer quantity updated", zap.Int64("offer_id", id), zap.Int("quantity", quantity))
	m.refresh(ctx, offer)
	return &Result{Offer: *offer}, nil
}

// SetPrice sets the price of an offer.
func (m *Manager) SetPrice(ctx context.Context, id int64, price decimal.Decimal) (res *Result, err error) {
	ctx, span := m.startSpan(ctx, "offers.SetPrice", id)
	defer func() { endSpan(span, err) }()

	if price.IsNegative() {
		return nil, models.Errorf(models.ErrValidation, "Price must be zero or greater")
	}

	offer, err := m.update(ctx, id, func(o models.Offer) (models.Offer, error) {
		o.Price = price
		return o, nil
	})
	if err != nil {
		return nil, err
	}

	m.logger.Info("Offer price updated", zap.Int64("offer_id", id), zap.String("price", offer.Price.String()))
	m.refresh(ctx, offer)
	return &Result{Offer: *offer}, nil
}

// MarkSoldOut sells an offer out without touching its quantity. Calling it on
// a sold-out offer is a no-op.
func (m *Manager) MarkSoldOut(ctx context.Context, id int64) (res *Result, err error) {
	ctx, span := m.startSpan(ctx, "offers.MarkSoldOut", id)
	defer func() { endSpan(span, err) }()

	return m.sellOut(ctx, id, false)
}

// Restock reactivates an offer with a positive quantity.
func (m *Manager) Restock(ctx context.Context, id int64, quantity int) (res *Result, err error) {
	ctx, span := m.startSpan(ctx, "offers.Restock", id)
	defer func() { endSpan(span, err) }()

	if quantity <= 0 {
		return nil, models.Errorf(models.ErrValidation, "Quantity must be greater than zero")
	}

	offer, err := m.update(ctx, id, func(o models.Offer) (models.Offer, error) {
		o.Quantity = quantity
		o.Status = models.StatusActive
		return o, nil
	})
	if err != nil {
		return nil, err
	}

	m.logger.Info("Offer restocked", zap.Int64("offer_id", id), zap.Int("quantity", quantity))
	m.refresh(ctx, offer)
	return &Result{Offer: *offer}, nil
}

// sellOut commits the sold-out state first and only then retracts the
// announcement, so a failed or lost delete can leave an orphaned message but
// never an active-looking offer without one.
func (m *Manager) sellOut(ctx context.Context, id int64, zeroQuantity bool) (*Result, error) {
	var (
		previous   *models.AnnouncementRef
		transition bool
	)
	offer, err := m.update(ctx, id, func(o models.Offer) (models.Offer, error) {
		previous = o.Announcement
		transition = o.Active()
		if zeroQuantity {
			o.Quantity = 0
		}
		o.Status = models.StatusSoldOut
		o.Announcement = nil
		return o, nil
	})
	if err != nil {
		return nil, err
	}

	res := &Result{Offer: *offer, SoldOut: transition}
	if transition {
		m.logger.Info("Offer sold out", zap.Int64("offer_id", id))
	}
	if previous != nil {
		res.Retracted = m.retract(ctx, id, *previous)
	}
	return res, nil
}

// retract deletes an announcement, logging failures instead of returning them.
// The delete outlives ctx: the state it follows is already committed, or the
// message was never recorded.
func (m *Manager) retract(ctx context.Context, id int64, ref models.AnnouncementRef) bool {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.retractTimeout)
	defer cancel()

	if err := m.gateway.Delete(ctx, ref); err != nil {
		m.logger.Warn("Announcement delete failed",
			zap.Int64("offer_id", id),
			zap.Int64("chat_id", ref.ChatID),
			zap.Int("message_id", ref.MessageID),
			zap.Error(err),
		)
		return false
	}
	return true
}

// update runs Store.Update, retrying lost optimistic races.
func (m *Manager) update(ctx context.Context, id int64, mutate func(models.Offer) (models.Offer, error)) (*models.Offer, error) {
	var err error
	for attempt := 1; attempt <= m.maxAttempts; attempt++ {
		var offer *models.Offer
		offer, err = m.store.Update(ctx, id, mutate)
		if err == nil {
			return offer, nil
		}
		if !errors.Is(err, models.ErrConflict) {
			return nil, err
		}
		m.logger.Debug("Offer update conflict, retrying", zap.Int64("offer_id", id), zap.Int("attempt", attempt))
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, models.Unavailable(errors.Wrap(ctxErr, "offer update abandoned"))
		}
	}
	return nil, err
}

func (m *Manager) startSpan(ctx context.Context, name string, id int64) (context.Context, trace.Span) {
	return m.tracer.Start(ctx, name, trace.WithAttributes(attribute.Int64("offer.id", id)))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
