package cards_repo

import (
	"context"

	"github.com/pavlovicisidora/sep/internal/bank/domain"
)

type CardRepository interface {
	// FindMatchTx returns the card only when every submitted detail matches
	// the stored record exactly.
	FindMatchTx(ctx context.Context, querier domain.Querier, pan, holderName, expiryDate, securityCode string) (*domain.Card, error)
}
