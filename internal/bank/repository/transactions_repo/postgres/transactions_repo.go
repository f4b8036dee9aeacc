package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pavlovicisidora/sep/internal/bank/domain"
)

type TransactionRepository struct {
	db *sql.DB
}

func NewTransactionRepository(db *sql.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

const transactionColumns = `
	id, global_transaction_id, merchant_id, stan, psp_timestamp,
	payment_id, payment_url, payment_url_expires_at, account_id,
	amount, currency, status, acquirer_timestamp, failure_reason,
	created_at, payment_method
`

func (r *TransactionRepository) CreateTx(ctx context.Context, querier domain.Querier, tx *domain.Transaction) error {
	query := `
		INSERT INTO bank_transactions (
			global_transaction_id, merchant_id, stan, psp_timestamp,
			payment_id, payment_url, payment_url_expires_at,
			amount, currency, status, acquirer_timestamp, created_at, payment_method
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id
	`
	err := querier.QueryRowContext(ctx, query,
		tx.GlobalTransactionID,
		tx.MerchantID,
		tx.Stan,
		tx.PSPTimestamp,
		tx.PaymentID,
		tx.PaymentURL,
		tx.PaymentURLExpiresAt,
		tx.Amount,
		tx.Currency,
		tx.Status,
		tx.AcquirerTimestamp,
		tx.CreatedAt,
		tx.PaymentMethod,
	).Scan(&tx.ID)
	if err != nil {
		return fmt.Errorf("failed to create transaction %s: %w", tx.PaymentID, err)
	}
	return nil
}

func (r *TransactionRepository) GetByIDTx(ctx context.Context, querier domain.Querier, id int64) (*domain.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM bank_transactions
		WHERE id = $1
	`
	return scanTransaction(querier.QueryRowContext(ctx, query, id))
}

func (r *TransactionRepository) SetPaymentRefTx(ctx context.Context, querier domain.Querier, id int64, paymentID, paymentURL string) error {
	query := `
		UPDATE bank_transactions
		SET payment_id = $1, payment_url = $2
		WHERE id = $3
	`
	res, err := querier.ExecContext(ctx, query, paymentID, paymentURL, id)
	if err != nil {
		return fmt.Errorf("failed to set payment ref on transaction %d: %w", id, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for payment ref update: %w", err)
	}
	if rowsAffected == 0 {
		return domain.ErrTransactionNotFound
	}
	return nil
}

func (r *TransactionRepository) GetByPaymentIDTx(ctx context.Context, querier domain.Querier, paymentID string) (*domain.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM bank_transactions
		WHERE payment_id = $1
	`
	return scanTransaction(querier.QueryRowContext(ctx, query, paymentID))
}

func (r *TransactionRepository) GetByStanTx(ctx context.Context, querier domain.Querier, merchantID, stan string) (*domain.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM bank_transactions
		WHERE merchant_id = $1 AND stan = $2
	`
	return scanTransaction(querier.QueryRowContext(ctx, query, merchantID, stan))
}

func (r *TransactionRepository) TransitionStatusTx(ctx context.Context, querier domain.Querier, paymentID string, from, to domain.TransactionStatus, failureReason string) error {
	query := `
		UPDATE bank_transactions
		SET status = $1, failure_reason = NULLIF($2, ''), acquirer_timestamp = $3
		WHERE payment_id = $4 AND status = $5
	`
	res, err := querier.ExecContext(ctx, query, to, failureReason, time.Now(), paymentID, from)
	if err != nil {
		return fmt.Errorf("failed to transition transaction %s to %s: %w", paymentID, to, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for status transition: %w", err)
	}
	if rowsAffected == 0 {
		return domain.ErrIllegalTransition
	}
	return nil
}

func (r *TransactionRepository) SetAccountTx(ctx context.Context, querier domain.Querier, paymentID string, accountID int64) error {
	query := `
		UPDATE bank_transactions
		SET account_id = $1
		WHERE payment_id = $2
	`
	res, err := querier.ExecContext(ctx, query, accountID, paymentID)
	if err != nil {
		return fmt.Errorf("failed to set account on transaction %s: %w", paymentID, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for account update: %w", err)
	}
	if rowsAffected == 0 {
		return domain.ErrTransactionNotFound
	}
	return nil
}

func (r *TransactionRepository) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]domain.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM bank_transactions
		WHERE status = $1 AND payment_url_expires_at < $2
		ORDER BY payment_url_expires_at ASC
		LIMIT $3
	`
	rows, err := r.db.QueryContext(ctx, query, domain.TransactionStatusPending, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired pending transactions: %w", err)
	}
	defer rows.Close()

	var transactions []domain.Transaction
	for rows.Next() {
		tx := domain.Transaction{}
		if err := scanTransactionRow(rows, &tx); err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating expired transactions: %w", err)
	}
	return transactions, nil
}

func scanTransaction(row *sql.Row) (*domain.Transaction, error) {
	tx := &domain.Transaction{}
	err := row.Scan(
		&tx.ID,
		&tx.GlobalTransactionID,
		&tx.MerchantID,
		&tx.Stan,
		&tx.PSPTimestamp,
		&tx.PaymentID,
		&tx.PaymentURL,
		&tx.PaymentURLExpiresAt,
		&tx.AccountID,
		&tx.Amount,
		&tx.Currency,
		&tx.Status,
		&tx.AcquirerTimestamp,
		&tx.FailureReason,
		&tx.CreatedAt,
		&tx.PaymentMethod,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return tx, nil
}

func scanTransactionRow(rows *sql.Rows, tx *domain.Transaction) error {
	err := rows.Scan(
		&tx.ID,
		&tx.GlobalTransactionID,
		&tx.MerchantID,
		&tx.Stan,
		&tx.PSPTimestamp,
		&tx.PaymentID,
		&tx.PaymentURL,
		&tx.PaymentURLExpiresAt,
		&tx.AccountID,
		&tx.Amount,
		&tx.Currency,
		&tx.Status,
		&tx.AcquirerTimestamp,
		&tx.FailureReason,
		&tx.CreatedAt,
		&tx.PaymentMethod,
	)
	if err != nil {
		return fmt.Errorf("failed to scan transaction: %w", err)
	}
	return nil
}
