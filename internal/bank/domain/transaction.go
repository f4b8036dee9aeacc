package domain

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

var (
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrIllegalTransition   = errors.New("illegal transaction status transition")
	ErrAccountNotFound     = errors.New("account not found")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrCardNotFound        = errors.New("card not found")
)

// Querier lets repository methods run inside or outside a transaction.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "PENDING"
	TransactionStatusCompleted TransactionStatus = "COMPLETED"
	TransactionStatusFailed    TransactionStatus = "FAILED"
	TransactionStatusExpired   TransactionStatus = "EXPIRED"
	TransactionStatusError     TransactionStatus = "ERROR"
)

// Terminal reports whether the transaction can no longer change state.
func (s TransactionStatus) Terminal() bool {
	return s != TransactionStatusPending
}

type PaymentMethod string

const (
	PaymentMethodCard PaymentMethod = "CARD"
	PaymentMethodQR   PaymentMethod = "QR"
)

// Transaction is one acquiring-side payment attempt created on behalf of the
// PSP.
type Transaction struct {
	ID                  int64
	GlobalTransactionID string
	MerchantID          string
	Stan                string
	PSPTimestamp        time.Time
	PaymentID           string
	PaymentURL          string
	PaymentURLExpiresAt time.Time
	AccountID           sql.NullInt64
	Amount              float64
	Currency            string
	Status              TransactionStatus
	AcquirerTimestamp   time.Time
	FailureReason       sql.NullString
	CreatedAt           time.Time
	PaymentMethod       PaymentMethod
}

// Expired reports whether the hosted payment URL deadline has passed.
func (t *Transaction) Expired(now time.Time) bool {
	return now.After(t.PaymentURLExpiresAt)
}

// Account is a payer or merchant settlement account at this bank.
type Account struct {
	ID            int64
	AccountNumber string
	HolderName    string
	Balance       float64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Card ties a PAN to an account. Matching is exact on every field the payer
// submits.
type Card struct {
	ID             int64
	AccountID      int64
	PAN            string
	CardHolderName string
	ExpiryDate     string
	SecurityCode   string
}
