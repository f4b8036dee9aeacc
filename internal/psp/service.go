package psp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type InitializeRequest struct {
	MerchantID       string
	MerchantPassword string
	Amount           float64
	Currency         string
	MerchantOrderID  string
	PaymentMethod    PaymentMethod
	SuccessURL       string
	FailedURL        string
	ErrorURL         string
	CallbackURL      string
}

type InitializeResult struct {
	PaymentID    string
	PaymentURL   string
	QRCodeBase64 string
	Stan         string
	Status       SessionStatus
	Message      string
}

type CallbackRequest struct {
	Stan                string
	GlobalTransactionID string
	Status              string
	FailureReason       string
	AcquirerTimestamp   time.Time
}

type Service struct {
	merchants map[string]Merchant
	sessions  *SessionStore
	bank      AcquirerClient
	notifier  MerchantNotifier
	logger    *zap.Logger
	now       func() time.Time
}

func NewService(
	merchants []Merchant,
	sessions *SessionStore,
	bank AcquirerClient,
	notifier MerchantNotifier,
	logger *zap.Logger,
) *Service {
	registry := make(map[string]Merchant, len(merchants))
	for _, m := range merchants {
		registry[m.ID] = m
	}
	return &Service{
		merchants: registry,
		sessions:  sessions,
		bank:      bank,
		notifier:  notifier,
		logger:    logger,
		now:       time.Now,
	}
}

func newStan() string {
	return "PSP-" + strings.ToUpper(uuid.NewString()[:8])
}

// Initialize validates the merchant, opens a session at the bank for the
// requested method, and hands back the hosted payment location.
func (s *Service) Initialize(ctx context.Context, req InitializeRequest) (*InitializeResult, error) {
	merchant, ok := s.merchants[req.MerchantID]
	if !ok || merchant.Password != req.MerchantPassword {
		return nil, ErrMerchantInvalid
	}
	if req.PaymentMethod != MethodCard && req.PaymentMethod != MethodQR {
		return nil, ErrUnsupportedMethod
	}

	now := s.now()
	sess := &Session{
		Stan:            newStan(),
		MerchantID:      req.MerchantID,
		MerchantOrderID: req.MerchantOrderID,
		Amount:          req.Amount,
		Currency:        req.Currency,
		PaymentMethod:   req.PaymentMethod,
		SuccessURL:      req.SuccessURL,
		FailedURL:       req.FailedURL,
		ErrorURL:        req.ErrorURL,
		CallbackURL:     req.CallbackURL,
		Status:          SessionStatusCreated,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	bankResult, err := s.bank.CreateSession(ctx, req.PaymentMethod, BankCreateRequest{
		MerchantID:   req.MerchantID,
		Amount:       req.Amount,
		Currency:     req.Currency,
		Stan:         sess.Stan,
		PSPTimestamp: now,
	})
	if err != nil {
		s.logger.Error("Failed to open bank payment session",
			zap.String("stan", sess.Stan),
			zap.String("merchant_order_id", req.MerchantOrderID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to open bank payment session: %w", err)
	}

	sess.BankPaymentID = bankResult.PaymentID
	sess.PaymentURL = bankResult.PaymentURL
	sess.Status = SessionStatusPending
	sess.UpdatedAt = s.now()
	if err := s.sessions.Save(ctx, sess); err != nil {
		return nil, err
	}

	s.logger.Info("Payment session initialized",
		zap.String("stan", sess.Stan),
		zap.String("merchant_order_id", req.MerchantOrderID),
		zap.String("payment_id", sess.BankPaymentID),
		zap.String("method", string(req.PaymentMethod)))

	return &InitializeResult{
		PaymentID:    sess.BankPaymentID,
		PaymentURL:   sess.PaymentURL,
		QRCodeBase64: bankResult.QRCodeBase64,
		Stan:         sess.Stan,
		Status:       sess.Status,
		Message:      "Payment session initialized.",
	}, nil
}

// HandleCallback records the bank's outcome and resolves the payer's
// redirect. The merchant's callback reply wins; the session's configured
// outcome URL is the fallback when the merchant is unreachable.
func (s *Service) HandleCallback(ctx context.Context, req CallbackRequest) (string, error) {
	sess, err := s.sessions.GetByStan(ctx, req.Stan)
	if err != nil {
		return "", err
	}

	sess.GlobalTransactionID = req.GlobalTransactionID
	sess.FailureReason = req.FailureReason
	sess.AcquirerTimestamp = req.AcquirerTimestamp
	sess.Status = mapAcquirerStatus(req.Status)
	sess.UpdatedAt = s.now()
	if err := s.sessions.Save(ctx, sess); err != nil {
		return "", err
	}

	fallback := s.outcomeURL(sess)
	redirectURL, err := s.notifier.Notify(ctx, sess.CallbackURL, MerchantNotification{
		MerchantOrderID:     sess.MerchantOrderID,
		Stan:                sess.Stan,
		GlobalTransactionID: sess.GlobalTransactionID,
		Status:              string(sess.Status),
		FailureReason:       sess.FailureReason,
		Timestamp:           s.now(),
	})
	if err != nil {
		s.logger.Warn("Merchant callback failed, falling back to configured outcome URL",
			zap.String("stan", sess.Stan),
			zap.Error(err))
		return fallback, nil
	}
	if redirectURL == "" {
		redirectURL = fallback
	}

	s.logger.Info("Payment outcome recorded",
		zap.String("stan", sess.Stan),
		zap.String("status", string(sess.Status)),
		zap.String("redirect_url", redirectURL))
	return redirectURL, nil
}

// Status serves the merchant's order poller.
func (s *Service) Status(ctx context.Context, merchantOrderID string) (*Session, error) {
	return s.sessions.GetByOrderID(ctx, merchantOrderID)
}

func mapAcquirerStatus(status string) SessionStatus {
	switch status {
	case "COMPLETED":
		return SessionStatusSuccess
	case "FAILED", "EXPIRED":
		return SessionStatusFailed
	default:
		return SessionStatusError
	}
}

func (s *Service) outcomeURL(sess *Session) string {
	switch sess.Status {
	case SessionStatusSuccess:
		return sess.SuccessURL
	case SessionStatusFailed:
		return sess.FailedURL
	default:
		return sess.ErrorURL
	}
}
