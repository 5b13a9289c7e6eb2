package ports

import (
	"context"

	"github.com/bft-labs/dropship/internal/domain"
)

// RecipientSource loads the recipient snapshot for a run.
// The pipeline treats it as an opaque data provider; rows may omit
// optional fields.
type RecipientSource interface {
	// Fetch returns the rows for date. testMode selects fixture or test data.
	Fetch(ctx context.Context, date string, testMode bool) ([]domain.RawEntry, error)
}
