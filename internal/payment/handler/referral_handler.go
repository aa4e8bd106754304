package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/tair/course-payments/internal/payment/domain"
	"github.com/tair/course-payments/internal/payment/usecase/command"
	"github.com/tair/course-payments/internal/payment/usecase/query"
)

// AttachReferral handles POST /api/referrals/attach
func (h *PaymentHandler) AttachReferral(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFrom(r.Context())
	if !ok {
		respondJSON(w, http.StatusUnauthorized, Response{Success: false, Error: "User ID not found in context"})
		return
	}

	var req struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, Response{Success: false, Error: "Invalid request body"})
		return
	}

	result, err := h.attachReferralHandler.Handle(r.Context(), command.AttachReferralCommand{
		ReferredID: userID,
		Code:       req.Code,
	})
	if err != nil {
		respondError(w, r, err, "Failed to attach referral")
		return
	}

	message := "Referral attached"
	if !result.Attached {
		message = "Referral already attached"
	}
	respondJSON(w, http.StatusOK, Response{Success: true, Message: message, Data: result})
}

// GetReferralStats handles GET /api/referrals/stats
func (h *PaymentHandler) GetReferralStats(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFrom(r.Context())
	if !ok {
		respondJSON(w, http.StatusUnauthorized, Response{Success: false, Error: "User ID not found in context"})
		return
	}

	stats, err := h.referralStatsHandler.Handle(r.Context(), query.GetReferralStatsQuery{ReferrerID: userID})
	if err != nil {
		respondError(w, r, err, "Failed to get referral stats")
		return
	}

	respondJSON(w, http.StatusOK, Response{Success: true, Data: stats})
}

// ApplyPromocode handles POST /api/promocodes/apply
func (h *PaymentHandler) ApplyPromocode(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFrom(r.Context())
	if !ok {
		respondJSON(w, http.StatusUnauthorized, Response{Success: false, Error: "User ID not found in context"})
		return
	}

	var req struct {
		Code     string `json:"code"`
		CourseID *uint  `json:"course_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, Response{Success: false, Error: "Invalid request body"})
		return
	}

	quote, err := h.promocodeEvaluator.Handle(r.Context(), command.ApplyPromocodeCommand{
		UserID:   userID,
		Code:     req.Code,
		CourseID: req.CourseID,
	})
	if err != nil {
		respondJSON(w, statusFor(err), Response{Success: false, Error: domain.UserMessage(err, "")})
		return
	}

	respondJSON(w, http.StatusOK, Response{Success: true, Message: "Promocode applied", Data: quote})
}

// CreatePromocode handles POST /api/promocodes (admin)
func (h *PaymentHandler) CreatePromocode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code                string     `json:"code"`
		Kind                string     `json:"kind"`
		DiscountPercent     int64      `json:"discount_percent"`
		DiscountAmountMinor int64      `json:"discount_amount_minor"`
		CommissionPercent   int64      `json:"commission_percent"`
		MaxActivations      int64      `json:"max_activations"`
		ValidFrom           *time.Time `json:"valid_from"`
		ValidUntil          *time.Time `json:"valid_until"`
		CourseID            *uint      `json:"course_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, Response{Success: false, Error: "Invalid request body"})
		return
	}

	promo, err := h.createPromocodeHandler.Handle(r.Context(), command.CreatePromocodeCommand{
		Code:                req.Code,
		Kind:                domain.PromocodeKind(req.Kind),
		DiscountPercent:     req.DiscountPercent,
		DiscountAmountMinor: req.DiscountAmountMinor,
		CommissionPercent:   req.CommissionPercent,
		MaxActivations:      req.MaxActivations,
		ValidFrom:           req.ValidFrom,
		ValidUntil:          req.ValidUntil,
		CourseID:            req.CourseID,
	})
	if err != nil {
		respondError(w, r, err, "Failed to create promocode")
		return
	}

	respondJSON(w, http.StatusCreated, Response{Success: true, Message: "Promocode created", Data: promo})
}
