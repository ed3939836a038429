package bot

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/slashbinslashnoname/telegram-stock-bot/models"
)

// parseOfferID parses an offer id argument
func parseOfferID(text string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(strings.TrimSpace(text), "#"), 10, 64)
	if err != nil {
		return 0, errors.New("Offer id must be a number")
	}
	return id, nil
}

// parseQuantity parses a non-negative whole quantity
func parseQuantity(text string) (int, error) {
	quantity, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil {
		return 0, errors.New("Quantity must be a whole number")
	}
	if quantity < 0 {
		return 0, errors.New("Quantity must be zero or greater")
	}
	return quantity, nil
}

// parsePrice parses a positive price, rounded to cents
func parsePrice(text string) (decimal.Decimal, error) {
	price, err := decimal.NewFromString(strings.TrimPrefix(strings.TrimSpace(text), "$"))
	if err != nil {
		return decimal.Zero, errors.New("Price must be a number")
	}
	price = models.NormalizePrice(price)
	if !price.IsPositive() {
		return decimal.Zero, errors.New("Price must be greater than zero")
	}
	return price, nil
}

// parseAddPayload parses "Name | qty | price"
func parseAddPayload(payload string) (string, int, decimal.Decimal, error) {
	parts := strings.Split(payload, "|")
	if len(parts) != 3 {
		return "", 0, decimal.Zero, errors.New("Expected three values: name | quantity | price")
	}

	name := strings.TrimSpace(parts[0])
	if name == "" {
		return "", 0, decimal.Zero, errors.New("Name is required")
	}

	quantity, err := parseQuantity(parts[1])
	if err != nil {
		return "", 0, decimal.Zero, err
	}
	if quantity == 0 {
		return "", 0, decimal.Zero, errors.New("Quantity must be greater than zero")
	}

	price, err := parsePrice(parts[2])
	if err != nil {
		return "", 0, decimal.Zero, err
	}

	return name, quantity, price, nil
}
