package domain

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// NotificationCompleted is the only gateway status that triggers domain effects.
const NotificationCompleted = "COMPLETED"

const (
	SourcePayU   = "payu"
	SourceStripe = "stripe"
)

// Notification is a gateway callback normalised across payment providers.
type Notification struct {
	Source      string          `json:"source"`
	OrderID     string          `json:"order_id"`
	ExtOrderID  string          `json:"ext_order_id"`
	Status      string          `json:"status"`
	TotalAmount string          `json:"total_amount,omitempty"`
	Currency    string          `json:"currency,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

func (n *Notification) IsCompleted() bool {
	return strings.EqualFold(n.Status, NotificationCompleted)
}

type ResourceType string

const (
	ResourceBooking   ResourceType = "booking"
	ResourceGiftCard  ResourceType = "gift_card"
	ResourceChallenge ResourceType = "challenge"
)

const (
	PrefixBooking   = "BOOKING"
	PrefixGiftCard  = "GIFTCARD"
	PrefixChallenge = "CHALLENGE"
)

// ExtOrderRef is the parsed merchant reference of a notification.
type ExtOrderRef struct {
	Prefix    string
	HasPrefix bool
	ID        int64
	Valid     bool
}

// PrefixIs compares the reference prefix case-insensitively.
func (r ExtOrderRef) PrefixIs(prefix string) bool {
	return r.HasPrefix && strings.EqualFold(r.Prefix, prefix)
}

// ParseExtOrderID splits an extOrderId on its first '_' or '-'. The numeric id
// is the segment after the delimiter, up to the next one, so checkout suffixes
// such as "CHALLENGE_42_1700000000" still resolve to 42. A bare number has no prefix.
func ParseExtOrderID(s string) ExtOrderRef {
	s = strings.TrimSpace(s)
	var ref ExtOrderRef
	numeric := s
	if i := strings.IndexAny(s, "_-"); i >= 0 {
		ref.Prefix = s[:i]
		ref.HasPrefix = i > 0
		numeric = s[i+1:]
		if j := strings.IndexAny(numeric, "_-"); j >= 0 {
			numeric = numeric[:j]
		}
	}
	if id, err := strconv.ParseInt(numeric, 10, 64); err == nil && id > 0 {
		ref.ID = id
		ref.Valid = true
	}
	return ref
}

type PaymentOutcome string

const (
	OutcomePending   PaymentOutcome = "pending"
	OutcomeIgnored   PaymentOutcome = "ignored"
	OutcomeHandled   PaymentOutcome = "handled"
	OutcomeDuplicate PaymentOutcome = "duplicate"
	OutcomeUnhandled PaymentOutcome = "unhandled"
	OutcomeFailed    PaymentOutcome = "failed"
)

func ParsePaymentOutcome(s string) (PaymentOutcome, bool) {
	switch PaymentOutcome(s) {
	case OutcomePending, OutcomeIgnored, OutcomeHandled, OutcomeDuplicate, OutcomeUnhandled, OutcomeFailed:
		return PaymentOutcome(s), true
	default:
		return "", false
	}
}

// PaymentLogEntry is the durable audit record of one inbound notification.
type PaymentLogEntry struct {
	ID           int64          `json:"id"`
	Notification Notification   `json:"notification"`
	Outcome      PaymentOutcome `json:"outcome"`
	ResourceType *ResourceType  `json:"resource_type,omitempty"`
	ResourceID   *int64         `json:"resource_id,omitempty"`
	Error        string         `json:"error,omitempty"`
	ReceivedAt   time.Time      `json:"received_at"`
	ProcessedAt  *time.Time     `json:"processed_at,omitempty"`
}

// PaymentResult is what applying a notification did.
type PaymentResult struct {
	Outcome      PaymentOutcome
	ResourceType ResourceType
	ResourceID   int64
}
