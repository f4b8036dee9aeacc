// Package psp implements the payment service provider: merchant-facing
// session initialization, dispatch to the acquiring bank, and resolution of
// the payer's redirect once the bank reports the outcome.
package psp

import (
	"errors"
	"time"
)

var (
	ErrSessionNotFound   = errors.New("payment session not found")
	ErrMerchantInvalid   = errors.New("unknown merchant or bad credentials")
	ErrUnsupportedMethod = errors.New("unsupported payment method")
)

type SessionStatus string

const (
	SessionStatusCreated SessionStatus = "CREATED"
	SessionStatusPending SessionStatus = "PENDING"
	SessionStatusSuccess SessionStatus = "SUCCESS"
	SessionStatusFailed  SessionStatus = "FAILED"
	SessionStatusError   SessionStatus = "ERROR"
)

type PaymentMethod string

const (
	MethodCard PaymentMethod = "card"
	MethodQR   PaymentMethod = "qr"
)

// Merchant is one registered webshop.
type Merchant struct {
	ID       string
	Password string
}

// Session is one payment from initialization to outcome. It lives in Redis
// under its STAN with alias keys for the bank payment id and the merchant
// order id.
type Session struct {
	Stan            string        `json:"stan"`
	MerchantID      string        `json:"merchantId"`
	MerchantOrderID string        `json:"merchantOrderId"`
	Amount          float64       `json:"amount"`
	Currency        string        `json:"currency"`
	PaymentMethod   PaymentMethod `json:"paymentMethod"`

	SuccessURL  string `json:"successUrl"`
	FailedURL   string `json:"failedUrl"`
	ErrorURL    string `json:"errorUrl"`
	CallbackURL string `json:"callbackUrl"`

	BankPaymentID       string `json:"bankPaymentId,omitempty"`
	PaymentURL          string `json:"paymentUrl,omitempty"`
	GlobalTransactionID string `json:"globalTransactionId,omitempty"`
	FailureReason       string `json:"failureReason,omitempty"`

	Status            SessionStatus `json:"status"`
	CreatedAt         time.Time     `json:"createdAt"`
	UpdatedAt         time.Time     `json:"updatedAt"`
	AcquirerTimestamp time.Time     `json:"acquirerTimestamp,omitempty"`
}
