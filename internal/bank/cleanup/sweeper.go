// Package cleanup expires stale pending payment sessions whose hosted URL
// deadline has passed without the payer ever completing the flow.
package cleanup

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pavlovicisidora/sep/internal/bank/domain"
	"github.com/pavlovicisidora/sep/internal/bank/outbox"
	"github.com/pavlovicisidora/sep/internal/bank/pspclient"
	"github.com/pavlovicisidora/sep/internal/bank/repository/outbox_repo"
	"github.com/pavlovicisidora/sep/internal/bank/repository/transactions_repo"
)

const sweepBatchSize = 50

// PSPNotifier delivers outcome callbacks. pspclient.Client satisfies it.
type PSPNotifier interface {
	NotifyOutcome(ctx context.Context, req pspclient.CallbackRequest) (string, error)
}

type Sweeper struct {
	db           *sql.DB
	transactions transactions_repo.TransactionRepository
	outboxRepo   outbox_repo.OutboxRepository
	psp          PSPNotifier
	statusTopic  string
	interval     time.Duration
	logger       *zap.Logger
	stopOnce     sync.Once
	stopped      chan struct{}
}

func NewSweeper(
	db *sql.DB,
	transactions transactions_repo.TransactionRepository,
	outboxRepo outbox_repo.OutboxRepository,
	psp PSPNotifier,
	statusTopic string,
	interval time.Duration,
	logger *zap.Logger,
) *Sweeper {
	return &Sweeper{
		db:           db,
		transactions: transactions,
		outboxRepo:   outboxRepo,
		psp:          psp,
		statusTopic:  statusTopic,
		interval:     interval,
		logger:       logger,
		stopped:      make(chan struct{}),
	}
}

func (s *Sweeper) Start(ctx context.Context) {
	s.logger.Info("Starting transaction cleanup sweeper...", zap.Duration("interval", s.interval))
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				s.logger.Info("Cleanup sweeper stopped: context cancelled.")
				return
			case <-s.stopped:
				s.logger.Info("Cleanup sweeper stopped.")
				return
			case <-ticker.C:
				s.sweep(ctx)
			}
		}
	}()
}

func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopped)
	})
}

func (s *Sweeper) sweep(ctx context.Context) {
	stale, err := s.transactions.ListExpiredPending(ctx, time.Now(), sweepBatchSize)
	if err != nil {
		s.logger.Error("Failed to list stale pending transactions", zap.Error(err))
		return
	}
	if len(stale) == 0 {
		return
	}

	expired := 0
	for i := range stale {
		if s.expireOne(ctx, &stale[i]) {
			expired++
		}
	}
	s.logger.Info("Expired stale payment sessions", zap.Int("count", expired))
}

func (s *Sweeper) expireOne(ctx context.Context, txn *domain.Transaction) bool {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.logger.Error("Failed to begin cleanup transaction", zap.Error(err))
		return false
	}

	err = s.transactions.TransitionStatusTx(ctx, tx, txn.PaymentID,
		domain.TransactionStatusPending, domain.TransactionStatusExpired, "payment URL expired")
	if err != nil {
		tx.Rollback()
		if err != domain.ErrIllegalTransition {
			s.logger.Error("Failed to expire stale transaction",
				zap.String("payment_id", txn.PaymentID), zap.Error(err))
		}
		return false
	}
	txn.Status = domain.TransactionStatusExpired

	msg, err := outbox.NewStatusMessage(s.statusTopic, txn, "payment URL expired", time.Now())
	if err != nil {
		tx.Rollback()
		s.logger.Error("Failed to build status event for expired transaction",
			zap.String("payment_id", txn.PaymentID), zap.Error(err))
		return false
	}
	if err := s.outboxRepo.CreateMessageTx(ctx, tx, msg); err != nil {
		tx.Rollback()
		s.logger.Error("Failed to write status event for expired transaction",
			zap.String("payment_id", txn.PaymentID), zap.Error(err))
		return false
	}

	if err := tx.Commit(); err != nil {
		s.logger.Error("Failed to commit expiry",
			zap.String("payment_id", txn.PaymentID), zap.Error(err))
		return false
	}

	// The PSP has no Kafka consumer; without the callback the merchant's
	// order poller would never see a terminal state for an abandoned session.
	if _, err := s.psp.NotifyOutcome(ctx, pspclient.CallbackRequest{
		Stan:                txn.Stan,
		GlobalTransactionID: txn.GlobalTransactionID,
		Status:              string(txn.Status),
		FailureReason:       "payment URL expired",
		AcquirerTimestamp:   time.Now(),
	}); err != nil {
		s.logger.Error("Failed to deliver PSP callback for expired session",
			zap.String("payment_id", txn.PaymentID),
			zap.String("stan", txn.Stan),
			zap.Error(err))
	}
	return true
}
