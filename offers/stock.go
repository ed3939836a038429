package offers

import (
	"context"
	"fmt"
	"strings"

	"github.com/slashbinslashnoname/telegram-stock-bot/models"
)

// SoldOutText is the stock listing shown when nothing is for sale.
const SoldOutText = "All sold out right now."

// ListActive returns all active offers ordered by id.
func (m *Manager) ListActive(ctx context.Context) (offers []models.Offer, err error) {
	ctx, span := m.tracer.Start(ctx, "offers.ListActive")
	defer func() { endSpan(span, err) }()

	return m.store.ListActive(ctx)
}

// ListStock renders the customer-facing stock listing.
func (m *Manager) ListStock(ctx context.Context) (string, error) {
	offers, err := m.ListActive(ctx)
	if err != nil {
		return "", err
	}
	return FormatStock(offers), nil
}

// FormatStock renders offers as the stock listing.
func FormatStock(offers []models.Offer) string {
	if len(offers) == 0 {
		return SoldOutText
	}

	var b strings.Builder
	b.WriteString("Current stock:")
	for _, o := range offers {
		fmt.Fprintf(&b, "\n#%d - %s — %d @ $%s", o.ID, o.Name, o.Quantity, o.Price.String())
	}
	return b.String()
}
