package accounts_repo

import (
	"context"

	"github.com/pavlovicisidora/sep/internal/bank/domain"
)

type AccountRepository interface {
	GetByNumberTx(ctx context.Context, querier domain.Querier, accountNumber string) (*domain.Account, error)
	GetByIDTx(ctx context.Context, querier domain.Querier, id int64) (*domain.Account, error)
	// UpdateBalanceTx adds amount to the account balance. A negative amount
	// debits the account and fails with domain.ErrInsufficientFunds when the
	// balance would go below zero.
	UpdateBalanceTx(ctx context.Context, querier domain.Querier, accountID int64, amount float64) error
}
