package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
)

// GiftCardOrder has its own payment lifecycle and is one of the possible
// targets of a payment notification.
type GiftCardOrder struct {
	ID             int64           `json:"id"`
	PurchaserName  string          `json:"purchaser_name"`
	PurchaserEmail string          `json:"purchaser_email"`
	RecipientName  string          `json:"recipient_name"`
	RecipientEmail string          `json:"recipient_email"`
	Amount         decimal.Decimal `json:"amount"`
	PaymentStatus  PaymentStatus   `json:"payment_status"`
	PaidAt         *time.Time      `json:"paid_at,omitempty"`
	AccessToken    string          `json:"-"`
	ExpiresAt      time.Time       `json:"expires_at"`
	CreatedAt      time.Time       `json:"created_at"`
}

// AccessEmail is where the gift card access link goes: the recipient when
// known, the purchaser otherwise.
func (g *GiftCardOrder) AccessEmail() (name, email string) {
	if g.RecipientEmail != "" {
		return g.RecipientName, g.RecipientEmail
	}
	return g.PurchaserName, g.PurchaserEmail
}
