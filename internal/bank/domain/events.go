package domain

import "time"

type OutboxMessageStatus string

const (
	OutboxStatusPending OutboxMessageStatus = "PENDING"
	OutboxStatusSent    OutboxMessageStatus = "SENT"
	OutboxStatusFailed  OutboxMessageStatus = "FAILED"
)

// OutboxMessage is an event written in the same database transaction as the
// state change it describes, published to Kafka by the outbox processor.
type OutboxMessage struct {
	ID          string
	AggregateID string
	MessageType string
	Topic       string
	Key         string
	Payload     []byte
	Status      OutboxMessageStatus
	CreatedAt   time.Time
	SentAt      *time.Time
}

// PaymentStatusEvent announces a transaction status change.
type PaymentStatusEvent struct {
	PaymentID           string    `json:"payment_id"`
	GlobalTransactionID string    `json:"global_transaction_id"`
	Stan                string    `json:"stan"`
	MerchantID          string    `json:"merchant_id"`
	Amount              float64   `json:"amount"`
	Currency            string    `json:"currency"`
	Status              string    `json:"status"`
	FailureReason       string    `json:"failure_reason,omitempty"`
	Timestamp           time.Time `json:"timestamp"`
}

// PaymentAuditEvent records one payment attempt with a masked PAN.
type PaymentAuditEvent struct {
	PaymentID   string    `json:"payment_id"`
	PANLastFour string    `json:"pan_last_four,omitempty"`
	Result      string    `json:"result"`
	Detail      string    `json:"detail"`
	ClientIP    string    `json:"client_ip,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}
