package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pavlovicisidora/sep/internal/bank/domain"
)

type AccountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) GetByNumberTx(ctx context.Context, querier domain.Querier, accountNumber string) (*domain.Account, error) {
	query := `
		SELECT id, account_number, holder_name, balance, created_at, updated_at
		FROM bank_accounts
		WHERE account_number = $1
		FOR UPDATE
	`
	return scanAccount(querier.QueryRowContext(ctx, query, accountNumber))
}

func (r *AccountRepository) GetByIDTx(ctx context.Context, querier domain.Querier, id int64) (*domain.Account, error) {
	query := `
		SELECT id, account_number, holder_name, balance, created_at, updated_at
		FROM bank_accounts
		WHERE id = $1
		FOR UPDATE
	`
	return scanAccount(querier.QueryRowContext(ctx, query, id))
}

func (r *AccountRepository) UpdateBalanceTx(ctx context.Context, querier domain.Querier, accountID int64, amount float64) error {
	checkBalanceQuery := `SELECT balance FROM bank_accounts WHERE id = $1 FOR UPDATE`
	var currentBalance float64
	err := querier.QueryRowContext(ctx, checkBalanceQuery, accountID).Scan(&currentBalance)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.ErrAccountNotFound
		}
		return fmt.Errorf("failed to check current balance for account %d: %w", accountID, err)
	}
	if currentBalance+amount < 0 {
		return domain.ErrInsufficientFunds
	}

	query := `
		UPDATE bank_accounts
		SET balance = balance + $1, updated_at = $2
		WHERE id = $3
	`
	res, err := querier.ExecContext(ctx, query, amount, time.Now(), accountID)
	if err != nil {
		return fmt.Errorf("failed to update account balance for %d: %w", accountID, err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

func scanAccount(row *sql.Row) (*domain.Account, error) {
	account := &domain.Account{}
	err := row.Scan(
		&account.ID,
		&account.AccountNumber,
		&account.HolderName,
		&account.Balance,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return account, nil
}
