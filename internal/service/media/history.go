package media

import (
	"fmt"

	"honestai/internal/models"
)

const (
	DefaultHistoryLimit = 10
	MaxHistoryLimit     = 50
)

// HistoryQuery selects one page of analysis history.
type HistoryQuery struct {
	Skip  int
	Limit int
	Sort  models.SortOrder
}

// DefaultHistoryQuery is newest first, ten per page.
func DefaultHistoryQuery() HistoryQuery {
	return HistoryQuery{Skip: 0, Limit: DefaultHistoryLimit, Sort: models.SortDescending}
}

// Validate rejects out-of-range values instead of clamping them.
func (q HistoryQuery) Validate() error {
	if q.Skip < 0 {
		return fmt.Errorf("%w: skip must be >= 0", models.ErrValidation)
	}
	if q.Limit < 1 || q.Limit > MaxHistoryLimit {
		return fmt.Errorf("%w: limit must be between 1 and %d", models.ErrValidation, MaxHistoryLimit)
	}
	switch q.Sort {
	case models.SortAscending, models.SortDescending:
	default:
		return fmt.Errorf("%w: sort must be asc or desc", models.ErrValidation)
	}
	return nil
}
