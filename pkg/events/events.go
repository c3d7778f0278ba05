package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/diagnosis/photo-challenges/pkg/logger"
	"github.com/nats-io/nats.go"
)

type Publisher interface {
	Publish(ctx context.Context, subject string, data interface{}) error
	Close() error
}

type Subscriber interface {
	Subscribe(subject string, handler func(msg *Message)) error
	QueueSubscribe(subject, queue string, handler func(msg *Message)) error
	Close() error
}

type EventBus interface {
	Publisher
	Subscriber
}

type Message struct {
	Subject   string
	Data      []byte
	Timestamp time.Time
	ID        string
}

type NATSEventBus struct {
	conn *nats.Conn
}

func NewNATSEventBus(url, name string) (*NATSEventBus, error) {
	conn, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &NATSEventBus{conn: conn}, nil
}

func (n *NATSEventBus) Publish(ctx context.Context, subject string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	logger.DebugContext(ctx, "Publishing event", "subject", subject, "data", string(payload))

	return n.conn.Publish(subject, payload)
}

func (n *NATSEventBus) Subscribe(subject string, handler func(msg *Message)) error {
	_, err := n.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(toMessage(msg))
	})
	return err
}

func (n *NATSEventBus) QueueSubscribe(subject, queue string, handler func(msg *Message)) error {
	_, err := n.conn.QueueSubscribe(subject, queue, func(msg *nats.Msg) {
		handler(toMessage(msg))
	})
	return err
}

// Drain lets in-flight handlers finish before closing the connection.
func (n *NATSEventBus) Drain() error {
	return n.conn.Drain()
}

func (n *NATSEventBus) Close() error {
	n.conn.Close()
	return nil
}

func toMessage(msg *nats.Msg) *Message {
	id := msg.Header.Get(nats.MsgIdHdr)
	if id == "" {
		id = fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return &Message{
		Subject:   msg.Subject,
		Data:      msg.Data,
		Timestamp: time.Now(),
		ID:        id,
	}
}

// Event types and subjects
const (
	// Challenge events
	ChallengeCreated  = "challenge.created"
	ChallengeViewed   = "challenge.viewed"
	ChallengeAccepted = "challenge.accepted"
	ChallengeRejected = "challenge.rejected"
	ChallengeExpired  = "challenge.expired"
	ChallengeUpdated  = "challenge.updated"

	// Booking events
	BookingCreated = "booking.created"

	// Payment events
	PaymentCompleted = "payment.completed"
	PaymentUnhandled = "payment.unhandled"

	// Notification events
	NotifySend = "notify.send"
)

// Event payloads
type ChallengeEvent struct {
	ChallengeID int64      `json:"challenge_id"`
	UniqueLink  string     `json:"unique_link"`
	Status      string     `json:"status"`
	SessionDate *time.Time `json:"session_date,omitempty"`
	OccurredAt  time.Time  `json:"occurred_at"`
}

type BookingCreatedEvent struct {
	BookingID   int64     `json:"booking_id"`
	ChallengeID int64     `json:"challenge_id"`
	ClientEmail string    `json:"client_email"`
	ClientName  string    `json:"client_name"`
	PackageName string    `json:"package_name"`
	Price       string    `json:"price"`
	StartsAt    time.Time `json:"starts_at"`
	CreatedAt   time.Time `json:"created_at"`
}

type PaymentCompletedEvent struct {
	NotificationID int64     `json:"notification_id"`
	Source         string    `json:"source"`
	OrderID        string    `json:"order_id"`
	ExtOrderID     string    `json:"ext_order_id"`
	ResourceType   string    `json:"resource_type,omitempty"`
	ResourceID     int64     `json:"resource_id,omitempty"`
	Outcome        string    `json:"outcome"`
	ProcessedAt    time.Time `json:"processed_at"`
}

type NotificationEvent struct {
	Type      string                 `json:"type"`
	Recipient string                 `json:"recipient"`
	Name      string                 `json:"name,omitempty"`
	Subject   string                 `json:"subject"`
	Template  string                 `json:"template"`
	Data      map[string]interface{} `json:"data"`
}
