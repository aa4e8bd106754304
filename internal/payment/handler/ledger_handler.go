package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/tair/course-payments/internal/payment/domain"
	"github.com/tair/course-payments/internal/payment/usecase/command"
	"github.com/tair/course-payments/internal/payment/usecase/query"
	"github.com/tair/course-payments/pkg/logger"
)

// GetBalance handles GET /api/balance
func (h *PaymentHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFrom(r.Context())
	if !ok {
		respondJSON(w, http.StatusUnauthorized, Response{Success: false, Error: "User ID not found in context"})
		return
	}

	balance, err := h.balanceHandler.Handle(r.Context(), query.GetBalanceQuery{UserID: userID})
	if err != nil {
		respondError(w, r, err, "Failed to get balance")
		return
	}

	respondJSON(w, http.StatusOK, Response{Success: true, Data: balance})
}

// ListTransactions handles GET /api/balance/transactions
func (h *PaymentHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFrom(r.Context())
	if !ok {
		respondJSON(w, http.StatusUnauthorized, Response{Success: false, Error: "User ID not found in context"})
		return
	}
	limit, offset := pagination(r)

	entries, err := h.transactionsHandler.Handle(r.Context(), query.ListTransactionsQuery{
		UserID: userID,
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		respondError(w, r, err, "Failed to list transactions")
		return
	}

	respondJSON(w, http.StatusOK, Response{
		Success: true,
		Data: map[string]interface{}{
			"transactions": entries,
			"total":        len(entries),
		},
	})
}

// CreateWithdrawal handles POST /api/withdrawals
func (h *PaymentHandler) CreateWithdrawal(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFrom(r.Context())
	if !ok {
		respondJSON(w, http.StatusUnauthorized, Response{Success: false, Error: "User ID not found in context"})
		return
	}

	var req struct {
		AmountMinor    int64              `json:"amount_minor"`
		Method         string             `json:"method"`
		Destination    domain.Destination `json:"destination"`
		IsInstant      bool               `json:"is_instant"`
		IdempotencyKey string             `json:"idempotency_key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, Response{Success: false, Error: "Invalid request body"})
		return
	}
	if key := strings.TrimSpace(r.Header.Get("Idempotency-Key")); key != "" {
		req.IdempotencyKey = key
	}

	withdrawal, err := h.withdrawalManager.Create(r.Context(), command.CreateWithdrawalCommand{
		UserID:         userID,
		AmountMinor:    req.AmountMinor,
		Method:         domain.WithdrawalMethod(req.Method),
		Destination:    req.Destination,
		IsInstant:      req.IsInstant,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		h.respondWithdrawalError(w, r, withdrawal, err)
		return
	}

	respondJSON(w, http.StatusCreated, Response{
		Success: true,
		Message: "Withdrawal request created",
		Data:    withdrawal,
	})
}

// GetMyWithdrawals handles GET /api/withdrawals/my
func (h *PaymentHandler) GetMyWithdrawals(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFrom(r.Context())
	if !ok {
		respondJSON(w, http.StatusUnauthorized, Response{Success: false, Error: "User ID not found in context"})
		return
	}
	limit, offset := pagination(r)

	requests, err := h.withdrawalsHandler.Handle(r.Context(), query.ListWithdrawalsQuery{
		UserID: userID,
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		respondError(w, r, err, "Failed to list withdrawals")
		return
	}

	respondJSON(w, http.StatusOK, Response{
		Success: true,
		Data: map[string]interface{}{
			"withdrawals": requests,
			"total":       len(requests),
		},
	})
}

// ListWithdrawals handles GET /api/withdrawals?status=pending (admin)
func (h *PaymentHandler) ListWithdrawals(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)

	requests, err := h.withdrawalsHandler.Handle(r.Context(), query.ListWithdrawalsQuery{
		Status: domain.WithdrawalStatus(r.URL.Query().Get("status")),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		respondError(w, r, err, "Failed to list withdrawals")
		return
	}

	respondJSON(w, http.StatusOK, Response{
		Success: true,
		Data: map[string]interface{}{
			"withdrawals": requests,
			"total":       len(requests),
		},
	})
}

// ProcessWithdrawal handles POST /api/withdrawals/{id}/process (admin)
func (h *PaymentHandler) ProcessWithdrawal(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "Invalid withdrawal ID")
	if !ok {
		return
	}

	withdrawal, err := h.withdrawalManager.Process(r.Context(), id)
	if err != nil {
		h.respondWithdrawalError(w, r, withdrawal, err)
		return
	}

	respondJSON(w, http.StatusOK, Response{
		Success: true,
		Message: "Withdrawal sent to payout",
		Data:    withdrawal,
	})
}

// RejectWithdrawal handles POST /api/withdrawals/{id}/reject (admin)
func (h *PaymentHandler) RejectWithdrawal(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "Invalid withdrawal ID")
	if !ok {
		return
	}

	var req struct {
		Reason string `json:"reason"`
	}
	// the reason is optional; an empty body is fine
	_ = json.NewDecoder(r.Body).Decode(&req)

	withdrawal, err := h.withdrawalManager.Reject(r.Context(), id, req.Reason)
	if err != nil {
		respondError(w, r, err, "Failed to reject withdrawal")
		return
	}

	respondJSON(w, http.StatusOK, Response{
		Success: true,
		Message: "Withdrawal rejected, funds returned to balance",
		Data:    withdrawal,
	})
}

// respondWithdrawalError reports a failed payout together with the request,
// whose balance reservation has already been returned.
func (h *PaymentHandler) respondWithdrawalError(w http.ResponseWriter, r *http.Request, withdrawal *domain.WithdrawalRequest, err error) {
	if withdrawal == nil || !(errors.Is(err, domain.ErrPayoutFailed) || errors.Is(err, domain.ErrReconciliationRequired)) {
		respondError(w, r, err, "Failed to create withdrawal")
		return
	}

	logger.Warn(r.Context()).Err(err).Uint("withdrawal_id", withdrawal.ID).Msg("Withdrawal payout failed")
	respondJSON(w, statusFor(err), Response{
		Success: false,
		Error:   domain.UserMessage(err, ""),
		Data:    withdrawal,
	})
}
