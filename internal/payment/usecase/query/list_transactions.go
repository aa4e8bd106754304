package query

import (
	"context"
	"fmt"

	"github.com/tair/course-payments/internal/payment/domain"
)

// ListTransactionsQuery represents the query to list a user's ledger entries
type ListTransactionsQuery struct {
	UserID        uint
	IncludeSystem bool
	Limit         int
	Offset        int
}

// ListTransactionsHandler handles list transactions query
type ListTransactionsHandler struct {
	repo domain.LedgerRepository
}

// NewListTransactionsHandler creates a new list transactions handler
func NewListTransactionsHandler(repo domain.LedgerRepository) *ListTransactionsHandler {
	return &ListTransactionsHandler{repo: repo}
}

// Handle executes the list transactions query, newest first.
// System pass-through entries are hidden unless IncludeSystem is set.
func (h *ListTransactionsHandler) Handle(ctx context.Context, query ListTransactionsQuery) ([]domain.LedgerEntry, error) {
	if query.UserID == 0 {
		return nil, domain.Validationf("user_id is required")
	}
	limit, offset := page(query.Limit, query.Offset)

	entries, err := h.repo.ListEntries(ctx, query.UserID, query.IncludeSystem, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}

	return entries, nil
}
