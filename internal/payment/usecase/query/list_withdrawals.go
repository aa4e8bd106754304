package query

import (
	"context"
	"fmt"

	"github.com/tair/course-payments/internal/payment/domain"
)

// ListWithdrawalsQuery lists one user's requests, or all requests in a status when UserID is 0
type ListWithdrawalsQuery struct {
	UserID uint
	Status domain.WithdrawalStatus
	Limit  int
	Offset int
}

// ListWithdrawalsHandler handles list withdrawals query
type ListWithdrawalsHandler struct {
	repo domain.WithdrawalRepository
}

// NewListWithdrawalsHandler creates a new list withdrawals handler
func NewListWithdrawalsHandler(repo domain.WithdrawalRepository) *ListWithdrawalsHandler {
	return &ListWithdrawalsHandler{repo: repo}
}

// Handle executes the list withdrawals query
func (h *ListWithdrawalsHandler) Handle(ctx context.Context, query ListWithdrawalsQuery) ([]domain.WithdrawalRequest, error) {
	limit, offset := page(query.Limit, query.Offset)

	if query.UserID != 0 {
		requests, err := h.repo.FindByUserID(ctx, query.UserID, limit, offset)
		if err != nil {
			return nil, fmt.Errorf("failed to list user withdrawals: %w", err)
		}
		return requests, nil
	}

	status := query.Status
	if status == "" {
		status = domain.WithdrawalPending
	}
	switch status {
	case domain.WithdrawalPending, domain.WithdrawalProcessing, domain.WithdrawalCompleted, domain.WithdrawalFailed:
	default:
		return nil, domain.Validationf("invalid status: %s", status)
	}

	requests, err := h.repo.FindByStatus(ctx, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list withdrawals: %w", err)
	}
	return requests, nil
}
