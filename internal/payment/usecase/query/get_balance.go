package query

import (
	"context"
	"fmt"

	"github.com/tair/course-payments/internal/payment/domain"
)

// GetBalanceQuery represents the query to get a user's balance
type GetBalanceQuery struct {
	UserID uint
}

// GetBalanceHandler handles get balance query
type GetBalanceHandler struct {
	repo domain.LedgerRepository
}

// NewGetBalanceHandler creates a new get balance handler
func NewGetBalanceHandler(repo domain.LedgerRepository) *GetBalanceHandler {
	return &GetBalanceHandler{repo: repo}
}

// Handle executes the get balance query. A user without ledger history has a zero balance.
func (h *GetBalanceHandler) Handle(ctx context.Context, query GetBalanceQuery) (*domain.Balance, error) {
	if query.UserID == 0 {
		return nil, domain.Validationf("user_id is required")
	}

	balance, err := h.repo.GetBalance(ctx, query.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}

	return balance, nil
}
