package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Package is an immutable commercial template referenced by challenges.
type Package struct {
	ID                 int64           `json:"id"`
	Name               string          `json:"name"`
	BasePrice          decimal.Decimal `json:"base_price"`
	ChallengePrice     decimal.Decimal `json:"challenge_price"`
	DiscountPercentage decimal.Decimal `json:"discount_percentage"`
	IncludedItems      []string        `json:"included_items"`
	Active             bool            `json:"active"`
	CreatedAt          time.Time       `json:"created_at"`
}

// ChallengeDiscount derives the discount a challenge freezes at creation.
// The amount never goes below zero; when the package carries no explicit
// percentage it is derived from the amount and rounded to two places.
func (p *Package) ChallengeDiscount() (amount, percentage decimal.Decimal) {
	amount = p.BasePrice.Sub(p.ChallengePrice)
	if amount.IsNegative() {
		amount = decimal.Zero
	}
	percentage = p.DiscountPercentage
	if percentage.IsZero() && p.BasePrice.IsPositive() {
		percentage = amount.Div(p.BasePrice).Mul(hundred).Round(2)
	}
	return amount, percentage
}

type Location struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Address     string `json:"address"`
	Description string `json:"description,omitempty"`
}
