package query

import (
	"context"
	"fmt"

	"github.com/tair/course-payments/internal/payment/domain"
)

// ListPaymentsQuery represents the query to list payments.
// Empty filter fields match everything.
type ListPaymentsQuery struct {
	UserID  uint
	Status  string
	Purpose string
	Limit   int
	Offset  int
}

// ListPaymentsHandler handles list payments query
type ListPaymentsHandler struct {
	repo domain.PaymentRepository
}

// NewListPaymentsHandler creates a new list payments handler
func NewListPaymentsHandler(repo domain.PaymentRepository) *ListPaymentsHandler {
	return &ListPaymentsHandler{repo: repo}
}

// Handle executes the list payments query
func (h *ListPaymentsHandler) Handle(ctx context.Context, query ListPaymentsQuery) ([]domain.Payment, error) {
	filter := domain.PaymentFilter{
		UserID:  query.UserID,
		Status:  domain.PaymentStatus(query.Status),
		Purpose: domain.PurposeKind(query.Purpose),
	}
	if filter.Status != "" && !domain.IsValidPaymentStatus(filter.Status) {
		return nil, domain.Validationf("invalid status: %s", query.Status)
	}
	if filter.Purpose != "" && !domain.IsValidPurpose(filter.Purpose) {
		return nil, domain.Validationf("invalid purpose_kind: %s", query.Purpose)
	}
	limit, offset := page(query.Limit, query.Offset)

	payments, err := h.repo.FindAll(ctx, filter, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}

	return payments, nil
}
