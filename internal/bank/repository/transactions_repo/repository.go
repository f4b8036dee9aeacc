package transactions_repo

import (
	"context"
	"time"

	"github.com/pavlovicisidora/sep/internal/bank/domain"
)

type TransactionRepository interface {
	CreateTx(ctx context.Context, querier domain.Querier, tx *domain.Transaction) error
	GetByIDTx(ctx context.Context, querier domain.Querier, id int64) (*domain.Transaction, error)
	GetByPaymentIDTx(ctx context.Context, querier domain.Querier, paymentID string) (*domain.Transaction, error)
	// SetPaymentRefTx fills in the payment id and hosted URL once the row id
	// is known. QR payment ids embed the numeric transaction id.
	SetPaymentRefTx(ctx context.Context, querier domain.Querier, id int64, paymentID, paymentURL string) error
	GetByStanTx(ctx context.Context, querier domain.Querier, merchantID, stan string) (*domain.Transaction, error)
	// TransitionStatusTx moves the transaction from one status to another and
	// reports domain.ErrIllegalTransition when the row is no longer in the
	// expected status.
	TransitionStatusTx(ctx context.Context, querier domain.Querier, paymentID string, from, to domain.TransactionStatus, failureReason string) error
	SetAccountTx(ctx context.Context, querier domain.Querier, paymentID string, accountID int64) error
	ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]domain.Transaction, error)
}
