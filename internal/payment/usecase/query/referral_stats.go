package query

import (
	"context"
	"fmt"

	"github.com/tair/course-payments/internal/payment/domain"
)

// GetReferralStatsQuery represents the query to get a referrer's statistics
type GetReferralStatsQuery struct {
	ReferrerID uint
}

// GetReferralStatsHandler handles get referral stats query
type GetReferralStatsHandler struct {
	repo domain.ReferralRepository
}

// NewGetReferralStatsHandler creates a new get referral stats handler
func NewGetReferralStatsHandler(repo domain.ReferralRepository) *GetReferralStatsHandler {
	return &GetReferralStatsHandler{repo: repo}
}

// Handle executes the get referral stats query
func (h *GetReferralStatsHandler) Handle(ctx context.Context, query GetReferralStatsQuery) (*domain.ReferralStats, error) {
	if query.ReferrerID == 0 {
		return nil, domain.Validationf("user_id is required")
	}

	stats, err := h.repo.Stats(ctx, query.ReferrerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get referral stats: %w", err)
	}

	return stats, nil
}
