package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pavlovicisidora/sep/internal/bank/domain"
)

type CardRepository struct {
	db *sql.DB
}

func NewCardRepository(db *sql.DB) *CardRepository {
	return &CardRepository{db: db}
}

func (r *CardRepository) FindMatchTx(ctx context.Context, querier domain.Querier, pan, holderName, expiryDate, securityCode string) (*domain.Card, error) {
	query := `
		SELECT id, account_id, pan, card_holder_name, expiry_date, security_code
		FROM bank_cards
		WHERE pan = $1 AND card_holder_name = $2 AND expiry_date = $3 AND security_code = $4
	`
	card := &domain.Card{}
	err := querier.QueryRowContext(ctx, query, pan, holderName, expiryDate, securityCode).Scan(
		&card.ID,
		&card.AccountID,
		&card.PAN,
		&card.CardHolderName,
		&card.ExpiryDate,
		&card.SecurityCode,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrCardNotFound
		}
		return nil, fmt.Errorf("failed to look up card: %w", err)
	}
	return card, nil
}
