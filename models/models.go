package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OfferStatus represents the status of an offer
type OfferStatus string

const (
	// StatusActive indicates an offer that is for sale and shown in the stock listing
	StatusActive OfferStatus = "active"
	// StatusSoldOut indicates an offer that is no longer for sale
	StatusSoldOut OfferStatus = "sold_out"
)

// Valid reports whether s is a known status.
func (s OfferStatus) Valid() bool {
	return s == StatusActive || s == StatusSoldOut
}

// AnnouncementRef identifies a posted announcement message
type AnnouncementRef struct {
	ChatID    int64
	MessageID int
}

// Offer represents an item for sale
type Offer struct {
	ID       int64
	Name     string
	Quantity int
	Price    decimal.Decimal
	Status   OfferStatus
	// Announcement is nil when the offer was never announced or its announcement was retracted.
	Announcement *AnnouncementRef
	// Version is bumped on every write and guards optimistic updates.
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Active reports whether the offer is for sale.
func (o Offer) Active() bool {
	return o.Status == StatusActive
}

// ValidateOffer checks the user-editable fields of an offer.
func ValidateOffer(name string, quantity int, price decimal.Decimal) error {
	if strings.TrimSpace(name) == "" {
		return Errorf(ErrValidation, "Name is required")
	}
	if quantity < 0 {
		return Errorf(ErrValidation, "Quantity must be zero or greater")
	}
	if price.IsNegative() {
		return Errorf(ErrValidation, "Price must be zero or greater")
	}
	if !price.Equal(NormalizePrice(price)) {
		return Errorf(ErrValidation, "Price can have at most two decimal places")
	}
	return nil
}

// NormalizePrice rounds a price to cents.
func NormalizePrice(price decimal.Decimal) decimal.Decimal {
	return price.Round(2)
}
