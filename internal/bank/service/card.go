package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pavlovicisidora/sep/internal/bank/domain"
	"github.com/pavlovicisidora/sep/internal/card"
)

type FormData struct {
	PaymentID string
	Amount    float64
	Currency  string
	Expired   bool
}

type ProcessCardRequest struct {
	PaymentID      string
	PAN            string
	CardHolderName string
	ExpiryDate     string
	SecurityCode   string
	ClientIP       string
}

// CreatePayment opens a hosted card payment session on behalf of the PSP.
// Retried create requests for the same merchant and STAN return the existing
// session.
func (s *Service) CreatePayment(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	existing, err := s.transactions.GetByStanTx(ctx, tx, req.MerchantID, req.Stan)
	if err != nil && err != domain.ErrTransactionNotFound {
		tx.Rollback()
		return nil, fmt.Errorf("failed to check for existing transaction: %w", err)
	}
	if existing != nil {
		tx.Rollback()
		s.logger.Info("Returning existing payment session for retried create",
			zap.String("stan", req.Stan),
			zap.String("payment_id", existing.PaymentID))
		return &CreateResult{
			PaymentID:  existing.PaymentID,
			PaymentURL: existing.PaymentURL,
			Status:     existing.Status,
			Message:    "Payment session already exists.",
		}, nil
	}

	now := s.now()
	paymentID := newCardPaymentID()
	txn := &domain.Transaction{
		GlobalTransactionID: newGlobalTransactionID(),
		MerchantID:          req.MerchantID,
		Stan:                req.Stan,
		PSPTimestamp:        req.PSPTimestamp,
		PaymentID:           paymentID,
		PaymentURL:          fmt.Sprintf("%s/payment/%s", s.cfg.FrontendURL, paymentID),
		PaymentURLExpiresAt: now.Add(s.cfg.SessionTTL),
		Amount:              req.Amount,
		Currency:            req.Currency,
		Status:              domain.TransactionStatusPending,
		AcquirerTimestamp:   now,
		CreatedAt:           now,
		PaymentMethod:       domain.PaymentMethodCard,
	}
	if err := s.transactions.CreateTx(ctx, tx, txn); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit payment creation: %w", err)
	}

	s.logger.Info("Card payment session created",
		zap.String("payment_id", txn.PaymentID),
		zap.String("merchant_id", req.MerchantID),
		zap.Float64("amount", req.Amount))

	return &CreateResult{
		PaymentID:  txn.PaymentID,
		PaymentURL: txn.PaymentURL,
		Status:     txn.Status,
		Message:    "Payment session created.",
	}, nil
}

// GetFormData backs the hosted payment form. A session past its deadline is
// transitioned to EXPIRED here so the payer sees the expiry on first load.
func (s *Service) GetFormData(ctx context.Context, paymentID string) (*FormData, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	txn, err := s.transactions.GetByPaymentIDTx(ctx, tx, paymentID)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	data := &FormData{
		PaymentID: txn.PaymentID,
		Amount:    txn.Amount,
		Currency:  txn.Currency,
		Expired:   txn.Status == domain.TransactionStatusExpired,
	}

	if txn.Status == domain.TransactionStatusPending && txn.Expired(s.now()) {
		data.Expired = true
		// The session is expired either way; a lost transition race just
		// means someone else already moved it.
		err := s.expireTransaction(ctx, tx, txn)
		var failure *PaymentFailure
		if err != nil && !errors.As(err, &failure) {
			return nil, err
		}
		return data, nil
	}

	tx.Rollback()
	return data, nil
}

// ProcessCard runs the staged card flow: format validation, card record
// match, funds check, then settlement. Each stage that fails moves the
// transaction to FAILED, notifies the PSP, and reports the failure with the
// merchant's recovery redirect when one resolves.
func (s *Service) ProcessCard(ctx context.Context, req ProcessCardRequest) (*ProcessResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	txn, err := s.transactions.GetByPaymentIDTx(ctx, tx, req.PaymentID)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if txn.Status == domain.TransactionStatusExpired {
		tx.Rollback()
		return nil, &PaymentFailure{Reason: FailureExpired, Message: "Payment session has expired."}
	}
	if txn.Status.Terminal() {
		tx.Rollback()
		return nil, &PaymentFailure{Reason: FailureAlreadyProcessed, Message: "Payment has already been processed."}
	}
	if txn.Expired(s.now()) {
		return nil, s.expireTransaction(ctx, tx, txn)
	}

	// Stage 1: format validation. Nothing below runs on malformed input.
	pan, message := validateCardDetails(req, s.now())
	panLastFour := lastFour(pan)
	if message != "" {
		return nil, s.failTransaction(ctx, tx, txn, FailureInvalidCard, message, panLastFour, req.ClientIP)
	}

	// Stage 2: the submitted details must match an issued card exactly.
	issuedCard, err := s.cards.FindMatchTx(ctx, tx, pan, strings.TrimSpace(req.CardHolderName), req.ExpiryDate, req.SecurityCode)
	if err != nil {
		if err == domain.ErrCardNotFound {
			return nil, s.failTransaction(ctx, tx, txn, FailureCardNotFound, "Card details do not match any issued card.", panLastFour, req.ClientIP)
		}
		tx.Rollback()
		return nil, err
	}

	// Stage 3: funds check against the card's account.
	payerAccount, err := s.accounts.GetByIDTx(ctx, tx, issuedCard.AccountID)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if payerAccount.Balance < txn.Amount {
		return nil, s.failTransaction(ctx, tx, txn, FailureInsufficientFunds, "Insufficient funds.", panLastFour, req.ClientIP)
	}

	// Stage 4: settlement.
	if err := s.settle(ctx, tx, txn, payerAccount, panLastFour, req.ClientIP); err != nil {
		tx.Rollback()
		if err == domain.ErrIllegalTransition {
			return nil, &PaymentFailure{Reason: FailureAlreadyProcessed, Message: "Payment has already been processed."}
		}
		if err == domain.ErrInsufficientFunds {
			// The balance moved between the check and the debit.
			tx, beginErr := s.db.BeginTx(ctx, nil)
			if beginErr != nil {
				return nil, fmt.Errorf("failed to begin transaction: %w", beginErr)
			}
			return nil, s.failTransaction(ctx, tx, txn, FailureInsufficientFunds, "Insufficient funds.", panLastFour, req.ClientIP)
		}
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit card payment %s: %w", txn.PaymentID, err)
	}

	s.metrics.PaymentsProcessed.WithLabelValues(string(domain.PaymentMethodCard), string(domain.TransactionStatusCompleted)).Inc()
	s.logger.Info("Card payment completed",
		zap.String("payment_id", txn.PaymentID),
		zap.String("global_transaction_id", txn.GlobalTransactionID),
		zap.Float64("amount", txn.Amount))

	redirectURL := s.notifyPSP(ctx, txn, "")
	return &ProcessResult{
		GlobalTransactionID: txn.GlobalTransactionID,
		Stan:                txn.Stan,
		Status:              txn.Status,
		Message:             "Payment completed successfully.",
		RedirectURL:         redirectURL,
	}, nil
}

// validateCardDetails returns the normalized PAN and the first validation
// failure message, empty when everything checks out.
func validateCardDetails(req ProcessCardRequest, now time.Time) (string, string) {
	pan, err := card.Normalize(req.PAN)
	if err != nil {
		return "", "Invalid card number."
	}
	if !card.Valid(pan) {
		return pan, "Invalid card number."
	}
	if len(strings.TrimSpace(req.CardHolderName)) < 3 {
		return pan, "Cardholder name is required."
	}
	if err := card.ValidateExpiry(req.ExpiryDate, now); err != nil {
		return pan, "Invalid or expired card expiry date."
	}
	if err := card.ValidateSecurityCode(req.SecurityCode); err != nil {
		return pan, "Invalid security code."
	}
	return pan, ""
}

func lastFour(pan string) string {
	if len(pan) < 4 {
		return ""
	}
	return pan[len(pan)-4:]
}
