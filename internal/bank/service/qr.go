package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pavlovicisidora/sep/internal/bank/domain"
	"github.com/pavlovicisidora/sep/internal/ipsqr"
)

type QRCreateResult struct {
	PaymentID    string
	PaymentURL   string
	QRCodeBase64 string
	Status       domain.TransactionStatus
	Message      string
}

type QRData struct {
	PaymentID     string
	Amount        float64
	Currency      string
	RecipientName string
	QRCodeBase64  string
	ExpiresAt     time.Time
	Stan          string
	Status        domain.TransactionStatus
}

// CreateQRPayment opens a QR payment session on behalf of the PSP. The
// payment id embeds the numeric transaction id, which the payer's confirm
// call refers back to.
func (s *Service) CreateQRPayment(ctx context.Context, req CreateRequest) (*QRCreateResult, error) {
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
		s.logger.Info("Returning existing QR session for retried create",
			zap.String("stan", req.Stan),
			zap.String("payment_id", existing.PaymentID))
		qrCode, err := s.renderQR(existing)
		if err != nil {
			return nil, err
		}
		return &QRCreateResult{
			PaymentID:    existing.PaymentID,
			PaymentURL:   existing.PaymentURL,
			QRCodeBase64: qrCode,
			Status:       existing.Status,
			Message:      "Payment session already exists.",
		}, nil
	}

	now := s.now()
	txn := &domain.Transaction{
		GlobalTransactionID: newGlobalTransactionID(),
		MerchantID:          req.MerchantID,
		Stan:                req.Stan,
		PSPTimestamp:        req.PSPTimestamp,
		PaymentURLExpiresAt: now.Add(s.cfg.SessionTTL),
		Amount:              req.Amount,
		Currency:            req.Currency,
		Status:              domain.TransactionStatusPending,
		AcquirerTimestamp:   now,
		CreatedAt:           now,
		PaymentMethod:       domain.PaymentMethodQR,
	}
	if err := s.transactions.CreateTx(ctx, tx, txn); err != nil {
		tx.Rollback()
		return nil, err
	}

	txn.PaymentID = fmt.Sprintf("QR-%d", txn.ID)
	txn.PaymentURL = fmt.Sprintf("%s/qr-payment/%s", s.cfg.FrontendURL, txn.PaymentID)
	if err := s.transactions.SetPaymentRefTx(ctx, tx, txn.ID, txn.PaymentID, txn.PaymentURL); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit QR payment creation: %w", err)
	}

	qrCode, err := s.renderQR(txn)
	if err != nil {
		return nil, err
	}

	s.logger.Info("QR payment session created",
		zap.String("payment_id", txn.PaymentID),
		zap.String("merchant_id", req.MerchantID),
		zap.Float64("amount", req.Amount))

	return &QRCreateResult{
		PaymentID:    txn.PaymentID,
		PaymentURL:   txn.PaymentURL,
		QRCodeBase64: qrCode,
		Status:       txn.Status,
		Message:      "Payment session created.",
	}, nil
}

// GetQRData backs the hosted QR payment page. Like the card form, a session
// past its deadline is expired on load.
func (s *Service) GetQRData(ctx context.Context, paymentID string) (*QRData, error) {
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

	if txn.Status == domain.TransactionStatusPending && txn.Expired(s.now()) {
		expireErr := s.expireTransaction(ctx, tx, txn)
		var failure *PaymentFailure
		if expireErr != nil && !errors.As(expireErr, &failure) {
			return nil, expireErr
		}
	} else {
		tx.Rollback()
	}

	qrCode, err := s.renderQR(txn)
	if err != nil {
		return nil, err
	}

	return &QRData{
		PaymentID:     txn.PaymentID,
		Amount:        txn.Amount,
		Currency:      txn.Currency,
		RecipientName: s.cfg.MerchantAccountName,
		QRCodeBase64:  qrCode,
		ExpiresAt:     txn.PaymentURLExpiresAt,
		Stan:          txn.Stan,
		Status:        txn.Status,
	}, nil
}

// ValidateQRPayload runs the IPS payload validator. Pure; nothing is looked
// up or mutated.
func (s *Service) ValidateQRPayload(payload string) ipsqr.Result {
	result := ipsqr.Parse(payload)
	outcome := "valid"
	if !result.Valid {
		outcome = "invalid"
	}
	s.metrics.QRValidations.WithLabelValues(outcome).Inc()
	return result
}

// ConfirmQR settles a QR payment from the payer's named settlement account.
func (s *Service) ConfirmQR(ctx context.Context, transactionID int64, accountNumber string) (*ProcessResult, error) {
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

	txn, err := s.transactions.GetByIDTx(ctx, tx, transactionID)
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

	payerAccount, err := s.accounts.GetByNumberTx(ctx, tx, accountNumber)
	if err != nil {
		if err == domain.ErrAccountNotFound {
			return nil, s.failTransaction(ctx, tx, txn, FailureAccountNotFound, "Account not found.", "", "")
		}
		tx.Rollback()
		return nil, err
	}
	if payerAccount.Balance < txn.Amount {
		return nil, s.failTransaction(ctx, tx, txn, FailureInsufficientFunds, "Insufficient funds.", "", "")
	}

	if err := s.settle(ctx, tx, txn, payerAccount, "", ""); err != nil {
		tx.Rollback()
		if err == domain.ErrIllegalTransition {
			return nil, &PaymentFailure{Reason: FailureAlreadyProcessed, Message: "Payment has already been processed."}
		}
		if err == domain.ErrInsufficientFunds {
			retryTx, beginErr := s.db.BeginTx(ctx, nil)
			if beginErr != nil {
				return nil, fmt.Errorf("failed to begin transaction: %w", beginErr)
			}
			return nil, s.failTransaction(ctx, retryTx, txn, FailureInsufficientFunds, "Insufficient funds.", "", "")
		}
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit QR payment %s: %w", txn.PaymentID, err)
	}

	s.metrics.PaymentsProcessed.WithLabelValues(string(domain.PaymentMethodQR), string(domain.TransactionStatusCompleted)).Inc()
	s.logger.Info("QR payment completed",
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

// renderQR builds the IPS payload for a transaction and encodes it as a
// base64 PNG.
func (s *Service) renderQR(txn *domain.Transaction) (string, error) {
	payload := ipsqr.Build(ipsqr.Payment{
		RecipientAccount: s.cfg.MerchantAccountNumber,
		RecipientName:    s.cfg.MerchantAccountName,
		Amount:           txn.Amount,
		Currency:         txn.Currency,
		Reference:        txn.Stan,
	})
	qrCode, err := ipsqr.EncodePNGBase64(payload)
	if err != nil {
		return "", fmt.Errorf("failed to render QR code for %s: %w", txn.PaymentID, err)
	}
	return qrCode, nil
}
