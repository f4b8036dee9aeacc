// Package session owns the lifecycle of one payment session on the payer
// side, for both the card and the QR path. Both converge on the same
// outcome contract so the merchant only ever consumes one redirect shape.
package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pavlovicisidora/sep/internal/bankclient"
	"github.com/pavlovicisidora/sep/internal/card"
	"github.com/pavlovicisidora/sep/internal/ipsqr"
	"github.com/pavlovicisidora/sep/internal/redirect"
	"github.com/pavlovicisidora/sep/internal/sched"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusFailed    Status = "FAILED"
	StatusExpired   Status = "EXPIRED"
)

// Terminal reports whether no further transition is permitted.
func (s Status) Terminal() bool {
	return s == StatusConfirmed || s == StatusFailed || s == StatusExpired
}

var (
	ErrNotLoaded            = errors.New("session not loaded")
	ErrSessionExpired       = errors.New("session expired")
	ErrSessionTerminal      = errors.New("session already in a terminal state")
	ErrConfirmationInFlight = errors.New("a confirmation is already in flight")
	ErrSessionClosed        = errors.New("session closed")
	ErrFormInvalid          = errors.New("card form is invalid")
	ErrDescriptorInvalid    = errors.New("QR descriptor is invalid")
	ErrAccountRequired      = errors.New("settlement account number is required")
)

// PaymentSession is the payer's view of one payment. It is owned exclusively
// by the Machine and exists from load until teardown.
type PaymentSession struct {
	ID            string
	Amount        float64
	Currency      string
	RecipientName string
	Stan          string
	QRCodeBase64  string
	CreatedAt     time.Time
	ExpiresAt     time.Time
	Status        Status
}

// Backend is the payment backend the machine submits to. bankclient.Client
// satisfies it.
type Backend interface {
	FetchCardSession(ctx context.Context, paymentID string) (*bankclient.FormData, error)
	FetchQRSession(ctx context.Context, paymentID string) (*bankclient.QRData, error)
	SubmitCard(ctx context.Context, req bankclient.ProcessRequest) (*bankclient.ConfirmResult, error)
	ConfirmQR(ctx context.Context, transactionID int64, accountNumber string) (*bankclient.ConfirmResult, error)
}

// Machine is the payment session state machine. All state is guarded by one
// mutex; the in-flight flag, not the lock, is what makes confirmation
// exactly-once, because the network call happens outside the lock.
type Machine struct {
	backend   Backend
	scheduler sched.Scheduler
	logger    *zap.Logger

	mu              sync.Mutex
	sess            *PaymentSession
	remaining       int64
	inFlight        bool
	closed          bool
	outcome         *redirect.Outcome
	cancelCountdown sched.CancelFunc
}

func NewMachine(backend Backend, scheduler sched.Scheduler, logger *zap.Logger) *Machine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Machine{backend: backend, scheduler: scheduler, logger: logger}
}

// LoadCard fetches the session behind a hosted card form. A session the
// backend already reports expired starts directly in Expired.
func (m *Machine) LoadCard(ctx context.Context, paymentID string) (*PaymentSession, error) {
	data, err := m.backend.FetchCardSession(ctx, paymentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load payment session: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrSessionClosed
	}

	status := StatusPending
	if data.Expired {
		status = StatusExpired
	}
	m.sess = &PaymentSession{
		ID:        data.PaymentID,
		Amount:    data.Amount,
		Currency:  data.Currency,
		CreatedAt: m.scheduler.Now(),
		Status:    status,
	}
	m.logger.Info("payment session loaded",
		zap.String("payment_id", data.PaymentID),
		zap.String("status", string(status)),
	)
	return m.snapshotLocked(), nil
}

// LoadQR fetches a QR payment session including its deadline and rendered
// code.
func (m *Machine) LoadQR(ctx context.Context, paymentID string) (*PaymentSession, error) {
	data, err := m.backend.FetchQRSession(ctx, paymentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load QR payment session: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrSessionClosed
	}

	status := StatusPending
	if data.Status == string(StatusExpired) {
		status = StatusExpired
	}
	m.sess = &PaymentSession{
		ID:            data.PaymentID,
		Amount:        data.Amount,
		Currency:      data.Currency,
		RecipientName: data.RecipientName,
		Stan:          data.Stan,
		QRCodeBase64:  data.QRCodeBase64,
		CreatedAt:     m.scheduler.Now(),
		ExpiresAt:     data.ExpiresAt,
		Status:        status,
	}
	m.tickLocked(m.scheduler.Now())
	m.logger.Info("QR payment session loaded",
		zap.String("payment_id", data.PaymentID),
		zap.Int64("remaining_seconds", m.remaining),
	)
	return m.snapshotLocked(), nil
}

// Tick recomputes the remaining time in whole seconds and expires a Pending
// session exactly once when it reaches zero. Ticking a terminal session is a
// no-op.
func (m *Machine) Tick(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tickLocked(now)
}

func (m *Machine) tickLocked(now time.Time) {
	if m.sess == nil || m.sess.Status != StatusPending || m.sess.ExpiresAt.IsZero() {
		return
	}

	remaining := m.sess.ExpiresAt.Sub(now).Milliseconds() / 1000
	if remaining < 0 {
		remaining = 0
	}
	m.remaining = remaining

	if remaining == 0 {
		m.sess.Status = StatusExpired
		if m.cancelCountdown != nil {
			m.cancelCountdown()
			m.cancelCountdown = nil
		}
		m.logger.Info("payment session expired", zap.String("payment_id", m.sess.ID))
	}
}

// StartCountdown updates the remaining time immediately and then once per
// second until the session leaves Pending or the machine closes. onTick may
// be nil.
func (m *Machine) StartCountdown(onTick func(remaining int64)) {
	var step func()
	step = func() {
		m.mu.Lock()
		if m.closed || m.sess == nil {
			m.mu.Unlock()
			return
		}
		m.tickLocked(m.scheduler.Now())
		remaining := m.remaining
		if m.sess.Status == StatusPending {
			m.cancelCountdown = m.scheduler.Schedule(time.Second, step)
		}
		m.mu.Unlock()

		if onTick != nil {
			onTick(remaining)
		}
	}
	step()
}

// ConfirmCard gates the card form and submits the payment. Invalid input
// blocks submission locally: every field is marked touched so errors surface
// and no network call is made.
func (m *Machine) ConfirmCard(ctx context.Context, form *card.Form) (*redirect.Outcome, error) {
	if errs := form.Validate(m.scheduler.Now()); len(errs) > 0 {
		form.MarkAllTouched()
		return nil, fmt.Errorf("%w: %s", ErrFormInvalid, errs[0].Message)
	}

	if err := m.beginConfirm(); err != nil {
		return nil, err
	}

	input := form.Submission()
	m.mu.Lock()
	paymentID := m.sess.ID
	m.mu.Unlock()

	result, err := m.backend.SubmitCard(ctx, bankclient.ProcessRequest{
		PaymentID:      paymentID,
		PAN:            input.PAN,
		CardHolderName: input.CardHolderName,
		ExpiryDate:     input.ExpiryDate,
		SecurityCode:   input.SecurityCode,
	})
	return m.finishConfirm(result, err)
}

// ConfirmQR submits a QR confirmation for a validated descriptor and the
// payer's settlement account.
func (m *Machine) ConfirmQR(ctx context.Context, desc ipsqr.Result, accountNumber string) (*redirect.Outcome, error) {
	if !desc.Valid {
		return nil, ErrDescriptorInvalid
	}
	accountNumber = strings.TrimSpace(accountNumber)
	if accountNumber == "" {
		return nil, ErrAccountRequired
	}

	if err := m.beginConfirm(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	transactionID, err := transactionIDFrom(m.sess.ID)
	m.mu.Unlock()
	if err != nil {
		m.clearInFlight()
		return nil, err
	}

	result, submitErr := m.backend.ConfirmQR(ctx, transactionID, accountNumber)
	return m.finishConfirm(result, submitErr)
}

// beginConfirm checks every precondition under the lock and raises the
// in-flight flag. The expiry tick runs first so a late confirm click always
// loses to expiry, before any network round-trip.
func (m *Machine) beginConfirm() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrSessionClosed
	}
	if m.sess == nil {
		return ErrNotLoaded
	}

	m.tickLocked(m.scheduler.Now())

	if m.sess.Status == StatusExpired {
		return ErrSessionExpired
	}
	if m.sess.Status.Terminal() {
		return ErrSessionTerminal
	}
	if m.inFlight {
		return ErrConfirmationInFlight
	}

	m.inFlight = true
	return nil
}

func (m *Machine) clearInFlight() {
	m.mu.Lock()
	m.inFlight = false
	m.mu.Unlock()
}

// finishConfirm applies the backend response. A response arriving after
// Close is dropped; a transport failure leaves the session Pending so the
// payer can retry.
func (m *Machine) finishConfirm(result *bankclient.ConfirmResult, err error) (*redirect.Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.inFlight = false

	if m.closed {
		m.logger.Debug("dropping confirmation response after teardown")
		return nil, ErrSessionClosed
	}
	if m.sess.Status.Terminal() {
		// Expiry won the race while the request was in flight.
		m.logger.Debug("dropping confirmation response for terminal session",
			zap.String("status", string(m.sess.Status)),
		)
		return nil, ErrSessionTerminal
	}

	if err != nil {
		var paymentErr *bankclient.PaymentError
		if errors.As(err, &paymentErr) {
			m.sess.Status = StatusFailed
			m.outcome = &redirect.Outcome{
				Success:          false,
				Target:           paymentErr.RedirectURL,
				Message:          paymentErr.Message,
				MerchantSupplied: paymentErr.RedirectURL != "",
			}
			m.logger.Warn("payment rejected",
				zap.String("payment_id", m.sess.ID),
				zap.String("message", paymentErr.Message),
			)
			return m.outcome, nil
		}
		// Transport failure: no decision from the backend, stay Pending.
		return nil, fmt.Errorf("confirmation request failed: %w", err)
	}

	m.sess.Status = StatusConfirmed
	m.outcome = &redirect.Outcome{
		Success:          true,
		Target:           result.RedirectURL,
		Message:          result.Message,
		MerchantSupplied: result.RedirectURL != "",
	}
	m.logger.Info("payment confirmed",
		zap.String("payment_id", m.sess.ID),
		zap.String("redirect_url", result.RedirectURL),
	)
	return m.outcome, nil
}

// Outcome returns the terminal outcome, or nil while the session is live.
func (m *Machine) Outcome() *redirect.Outcome {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.outcome
}

func (m *Machine) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess == nil {
		return ""
	}
	return m.sess.Status
}

// Remaining is the last computed remaining time in whole seconds.
func (m *Machine) Remaining() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.remaining
}

// InFlight reports whether a confirmation is currently awaiting a response.
// The hosting view uses it to block resubmission and warn on unload.
func (m *Machine) InFlight() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inFlight
}

// Session returns a copy of the current session data.
func (m *Machine) Session() *PaymentSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Machine) snapshotLocked() *PaymentSession {
	if m.sess == nil {
		return nil
	}
	snapshot := *m.sess
	return &snapshot
}

// Close tears the machine down on navigation away. The countdown stops and
// any response still in flight will be ignored.
func (m *Machine) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	if m.cancelCountdown != nil {
		m.cancelCountdown()
		m.cancelCountdown = nil
	}
}

// transactionIDFrom extracts the numeric bank transaction id from a QR
// payment id of the form "QR-<number>".
func transactionIDFrom(paymentID string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(paymentID, "QR-"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed QR payment id %q: %w", paymentID, err)
	}
	return id, nil
}
