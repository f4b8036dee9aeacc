package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pavlovicisidora/sep/internal/bank/domain"
)

const (
	MessageTypePaymentStatus = "payment.status"
	MessageTypePaymentAudit  = "payment.audit"
)

// NewStatusMessage builds an outbox row announcing a transaction status
// change, keyed by payment id so one payment's events stay ordered.
func NewStatusMessage(topic string, tx *domain.Transaction, failureReason string, eventTime time.Time) (*domain.OutboxMessage, error) {
	event := domain.PaymentStatusEvent{
		PaymentID:           tx.PaymentID,
		GlobalTransactionID: tx.GlobalTransactionID,
		Stan:                tx.Stan,
		MerchantID:          tx.MerchantID,
		Amount:              tx.Amount,
		Currency:            tx.Currency,
		Status:              string(tx.Status),
		FailureReason:       failureReason,
		Timestamp:           eventTime,
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payment status event: %w", err)
	}

	return &domain.OutboxMessage{
		ID:          uuid.NewString(),
		AggregateID: tx.PaymentID,
		MessageType: MessageTypePaymentStatus,
		Topic:       topic,
		Key:         tx.PaymentID,
		Payload:     payload,
		Status:      domain.OutboxStatusPending,
		CreatedAt:   eventTime,
	}, nil
}

// NewAuditMessage builds an outbox row recording one payment attempt. The
// PAN never leaves the service; only the last four digits are carried.
func NewAuditMessage(topic, paymentID, panLastFour, result, detail, clientIP string, eventTime time.Time) (*domain.OutboxMessage, error) {
	event := domain.PaymentAuditEvent{
		PaymentID:   paymentID,
		PANLastFour: panLastFour,
		Result:      result,
		Detail:      detail,
		ClientIP:    clientIP,
		Timestamp:   eventTime,
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payment audit event: %w", err)
	}

	return &domain.OutboxMessage{
		ID:          uuid.NewString(),
		AggregateID: paymentID,
		MessageType: MessageTypePaymentAudit,
		Topic:       topic,
		Key:         paymentID,
		Payload:     payload,
		Status:      domain.OutboxStatusPending,
		CreatedAt:   eventTime,
	}, nil
}
