// Package service implements the acquiring bank's payment processing: hosted
// card sessions, IPS QR sessions, and the money movement behind both.
package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pavlovicisidora/sep/internal/bank/domain"
	"github.com/pavlovicisidora/sep/internal/bank/outbox"
	"github.com/pavlovicisidora/sep/internal/bank/pspclient"
	"github.com/pavlovicisidora/sep/internal/bank/repository/accounts_repo"
	"github.com/pavlovicisidora/sep/internal/bank/repository/cards_repo"
	"github.com/pavlovicisidora/sep/internal/bank/repository/outbox_repo"
	"github.com/pavlovicisidora/sep/internal/bank/repository/transactions_repo"
	"github.com/pavlovicisidora/sep/internal/metrics"
)

// Failure reason codes returned to the payer-facing client.
const (
	FailureInvalidCard       = "INVALID_CARD"
	FailureCardNotFound      = "CARD_NOT_FOUND"
	FailureAccountNotFound   = "ACCOUNT_NOT_FOUND"
	FailureInsufficientFunds = "INSUFFICIENT_FUNDS"
	FailureExpired           = "PAYMENT_EXPIRED"
	FailureAlreadyProcessed  = "ALREADY_PROCESSED"
)

// PaymentFailure is a declined or rejected payment. It still carries the
// merchant redirect resolved through the PSP when one exists, so the payer
// can be routed to the merchant's failure page.
type PaymentFailure struct {
	Reason      string
	Message     string
	RedirectURL string
}

func (f *PaymentFailure) Error() string {
	return fmt.Sprintf("payment failed (%s): %s", f.Reason, f.Message)
}

// PSPNotifier delivers outcome callbacks. pspclient.Client satisfies it.
type PSPNotifier interface {
	NotifyOutcome(ctx context.Context, req pspclient.CallbackRequest) (string, error)
}

var _ PSPNotifier = (*pspclient.Client)(nil)

type CreateRequest struct {
	MerchantID   string
	Amount       float64
	Currency     string
	Stan         string
	PSPTimestamp time.Time
}

type CreateResult struct {
	PaymentID  string
	PaymentURL string
	Status     domain.TransactionStatus
	Message    string
}

type ProcessResult struct {
	GlobalTransactionID string
	Stan                string
	Status              domain.TransactionStatus
	Message             string
	RedirectURL         string
}

// Config carries the values the service needs beyond its collaborators.
type Config struct {
	FrontendURL           string
	MerchantAccountNumber string
	MerchantAccountName   string
	StatusTopic           string
	AuditTopic            string
	SessionTTL            time.Duration
}

type Service struct {
	db           *sql.DB
	transactions transactions_repo.TransactionRepository
	accounts     accounts_repo.AccountRepository
	cards        cards_repo.CardRepository
	outboxRepo   outbox_repo.OutboxRepository
	psp          PSPNotifier
	metrics      *metrics.Metrics
	cfg          Config
	logger       *zap.Logger
	now          func() time.Time
}

func New(
	db *sql.DB,
	transactions transactions_repo.TransactionRepository,
	accounts accounts_repo.AccountRepository,
	cards cards_repo.CardRepository,
	outboxRepo outbox_repo.OutboxRepository,
	psp PSPNotifier,
	m *metrics.Metrics,
	cfg Config,
	logger *zap.Logger,
) *Service {
	return &Service{
		db:           db,
		transactions: transactions,
		accounts:     accounts,
		cards:        cards,
		outboxRepo:   outboxRepo,
		psp:          psp,
		metrics:      m,
		cfg:          cfg,
		logger:       logger,
		now:          time.Now,
	}
}

func newGlobalTransactionID() string {
	return "GTX-" + strings.ToUpper(uuid.NewString())
}

func newCardPaymentID() string {
	return "PAY-" + strings.ToUpper(uuid.NewString())
}

// writeStatusMessage records a status event in the same database transaction
// as the state change it describes.
func (s *Service) writeStatusMessage(ctx context.Context, tx *sql.Tx, txn *domain.Transaction, failureReason string) error {
	msg, err := outbox.NewStatusMessage(s.cfg.StatusTopic, txn, failureReason, s.now())
	if err != nil {
		return err
	}
	return s.outboxRepo.CreateMessageTx(ctx, tx, msg)
}

func (s *Service) writeAuditMessage(ctx context.Context, tx *sql.Tx, paymentID, panLastFour, result, detail, clientIP string) error {
	msg, err := outbox.NewAuditMessage(s.cfg.AuditTopic, paymentID, panLastFour, result, detail, clientIP, s.now())
	if err != nil {
		return err
	}
	return s.outboxRepo.CreateMessageTx(ctx, tx, msg)
}

// notifyPSP reports the outcome and resolves the merchant redirect. The
// transaction is already committed at this point; a failed callback only
// costs the payer the redirect, so it is logged and swallowed.
func (s *Service) notifyPSP(ctx context.Context, txn *domain.Transaction, failureReason string) string {
	redirectURL, err := s.psp.NotifyOutcome(ctx, pspclient.CallbackRequest{
		Stan:                txn.Stan,
		GlobalTransactionID: txn.GlobalTransactionID,
		Status:              string(txn.Status),
		FailureReason:       failureReason,
		AcquirerTimestamp:   s.now(),
	})
	if err != nil {
		s.metrics.PSPCallbacks.WithLabelValues("error").Inc()
		s.logger.Error("Failed to deliver PSP callback",
			zap.String("payment_id", txn.PaymentID),
			zap.String("stan", txn.Stan),
			zap.Error(err))
		return ""
	}
	s.metrics.PSPCallbacks.WithLabelValues("ok").Inc()
	return redirectURL
}

// failTransaction moves a pending transaction to FAILED together with its
// outbox events and commits. A lost transition race surfaces as
// ALREADY_PROCESSED.
func (s *Service) failTransaction(ctx context.Context, tx *sql.Tx, txn *domain.Transaction, reason, message, panLastFour, clientIP string) error {
	err := s.transactions.TransitionStatusTx(ctx, tx, txn.PaymentID, domain.TransactionStatusPending, domain.TransactionStatusFailed, message)
	if err != nil {
		tx.Rollback()
		if err == domain.ErrIllegalTransition {
			return &PaymentFailure{Reason: FailureAlreadyProcessed, Message: "Payment has already been processed."}
		}
		return fmt.Errorf("failed to mark transaction %s as failed: %w", txn.PaymentID, err)
	}
	txn.Status = domain.TransactionStatusFailed

	if err := s.writeStatusMessage(ctx, tx, txn, message); err != nil {
		tx.Rollback()
		return err
	}
	if err := s.writeAuditMessage(ctx, tx, txn.PaymentID, panLastFour, "FAILED", message, clientIP); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit failed transaction %s: %w", txn.PaymentID, err)
	}

	s.metrics.PaymentsProcessed.WithLabelValues(string(txn.PaymentMethod), string(domain.TransactionStatusFailed)).Inc()
	s.logger.Warn("Payment failed",
		zap.String("payment_id", txn.PaymentID),
		zap.String("reason", reason),
		zap.String("message", message))

	redirectURL := s.notifyPSP(ctx, txn, message)
	return &PaymentFailure{Reason: reason, Message: message, RedirectURL: redirectURL}
}

// expireTransaction moves a pending transaction past its deadline to EXPIRED
// and commits. The caller already holds the open database transaction.
func (s *Service) expireTransaction(ctx context.Context, tx *sql.Tx, txn *domain.Transaction) error {
	err := s.transactions.TransitionStatusTx(ctx, tx, txn.PaymentID, domain.TransactionStatusPending, domain.TransactionStatusExpired, "payment URL expired")
	if err != nil {
		tx.Rollback()
		if err == domain.ErrIllegalTransition {
			return &PaymentFailure{Reason: FailureAlreadyProcessed, Message: "Payment has already been processed."}
		}
		return fmt.Errorf("failed to expire transaction %s: %w", txn.PaymentID, err)
	}
	txn.Status = domain.TransactionStatusExpired

	if err := s.writeStatusMessage(ctx, tx, txn, "payment URL expired"); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit expired transaction %s: %w", txn.PaymentID, err)
	}

	s.metrics.PaymentsProcessed.WithLabelValues(string(txn.PaymentMethod), string(domain.TransactionStatusExpired)).Inc()
	s.logger.Info("Payment session expired", zap.String("payment_id", txn.PaymentID))

	redirectURL := s.notifyPSP(ctx, txn, "payment URL expired")
	return &PaymentFailure{Reason: FailureExpired, Message: "Payment session has expired.", RedirectURL: redirectURL}
}

// settle debits the payer and credits the merchant, then completes the
// transaction. Everything runs inside the caller's database transaction; a
// lost status transition rolls the money movement back with it.
func (s *Service) settle(ctx context.Context, tx *sql.Tx, txn *domain.Transaction, payerAccount *domain.Account, panLastFour, clientIP string) error {
	if err := s.accounts.UpdateBalanceTx(ctx, tx, payerAccount.ID, -txn.Amount); err != nil {
		return err
	}

	merchantAccount, err := s.accounts.GetByNumberTx(ctx, tx, s.cfg.MerchantAccountNumber)
	if err != nil {
		return fmt.Errorf("failed to load merchant settlement account: %w", err)
	}
	if err := s.accounts.UpdateBalanceTx(ctx, tx, merchantAccount.ID, txn.Amount); err != nil {
		return fmt.Errorf("failed to credit merchant account: %w", err)
	}

	if err := s.transactions.SetAccountTx(ctx, tx, txn.PaymentID, payerAccount.ID); err != nil {
		return err
	}
	if err := s.transactions.TransitionStatusTx(ctx, tx, txn.PaymentID, domain.TransactionStatusPending, domain.TransactionStatusCompleted, ""); err != nil {
		return err
	}
	txn.Status = domain.TransactionStatusCompleted

	if err := s.writeStatusMessage(ctx, tx, txn, ""); err != nil {
		return err
	}
	return s.writeAuditMessage(ctx, tx, txn.PaymentID, panLastFour, "SUCCESS", "", clientIP)
}
