package handler

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/tair/course-payments/internal/payment/domain"
	"github.com/tair/course-payments/internal/payment/usecase/command"
	"github.com/tair/course-payments/internal/payment/usecase/query"
	"github.com/tair/course-payments/pkg/logger"
)

// PaymentHandler handles HTTP requests for payments, the ledger, withdrawals,
// referrals and promocodes using CQRS pattern
type PaymentHandler struct {
	// Command handlers
	createHandler          *command.CreatePaymentHandler
	updateStatusHandler    *command.UpdateStatusHandler
	gatewayEventHandler    *command.HandleGatewayEventHandler
	withdrawalManager      *command.WithdrawalManager
	attachReferralHandler  *command.AttachReferralHandler
	promocodeEvaluator     *command.PromocodeEvaluator
	createPromocodeHandler *command.CreatePromocodeHandler

	// Query handlers
	getHandler           *query.GetPaymentHandler
	listHandler          *query.ListPaymentsHandler
	getMyHandler         *query.GetMyPaymentsHandler
	balanceHandler       *query.GetBalanceHandler
	transactionsHandler  *query.ListTransactionsHandler
	withdrawalsHandler   *query.ListWithdrawalsHandler
	referralStatsHandler *query.GetReferralStatsHandler

	middleware MiddlewareConfig
}

// NewPaymentHandlerWithDI creates a new payment handler using dependency injection
func NewPaymentHandlerWithDI(
	createHandler *command.CreatePaymentHandler,
	updateStatusHandler *command.UpdateStatusHandler,
	gatewayEventHandler *command.HandleGatewayEventHandler,
	withdrawalManager *command.WithdrawalManager,
	attachReferralHandler *command.AttachReferralHandler,
	promocodeEvaluator *command.PromocodeEvaluator,
	createPromocodeHandler *command.CreatePromocodeHandler,
	getHandler *query.GetPaymentHandler,
	listHandler *query.ListPaymentsHandler,
	getMyHandler *query.GetMyPaymentsHandler,
	balanceHandler *query.GetBalanceHandler,
	transactionsHandler *query.ListTransactionsHandler,
	withdrawalsHandler *query.ListWithdrawalsHandler,
	referralStatsHandler *query.GetReferralStatsHandler,
	middleware MiddlewareConfig,
) *PaymentHandler {
	return &PaymentHandler{
		createHandler:          createHandler,
		updateStatusHandler:    updateStatusHandler,
		gatewayEventHandler:    gatewayEventHandler,
		withdrawalManager:      withdrawalManager,
		attachReferralHandler:  attachReferralHandler,
		promocodeEvaluator:     promocodeEvaluator,
		createPromocodeHandler: createPromocodeHandler,
		getHandler:             getHandler,
		listHandler:            listHandler,
		getMyHandler:           getMyHandler,
		balanceHandler:         balanceHandler,
		transactionsHandler:    transactionsHandler,
		withdrawalsHandler:     withdrawalsHandler,
		referralStatsHandler:   referralStatsHandler,
		middleware:             middleware,
	}
}

type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// CreatePayment handles POST /api/payments
func (h *PaymentHandler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFrom(r.Context())
	if !ok {
		respondJSON(w, http.StatusUnauthorized, Response{Success: false, Error: "User ID not found in context"})
		return
	}

	var req struct {
		PurposeKind    string `json:"purpose_kind"`
		AmountMinor    int64  `json:"amount_minor"`
		CourseID       *uint  `json:"course_id"`
		Method         string `json:"payment_method"`
		ReceiptContact string `json:"receipt_contact"`
		Promocode      string `json:"promocode"`
		FullAccess     bool   `json:"full_access"` // admin only
		ReturnURL      string `json:"return_url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, Response{Success: false, Error: "Invalid request body"})
		return
	}

	method := domain.PaymentMethod(req.Method)
	result, err := h.createHandler.Handle(r.Context(), command.CreatePaymentCommand{
		UserID:             userID,
		Purpose:            domain.PurposeKind(req.PurposeKind),
		AmountMinor:        req.AmountMinor,
		CourseID:           req.CourseID,
		Method:             method,
		ReceiptContact:     req.ReceiptContact,
		Promocode:          req.Promocode,
		FullAccessOverride: req.FullAccess && isAdmin(r.Context()),
		ReturnURL:          req.ReturnURL,
	})
	if err != nil {
		logger.Error(r.Context()).Err(err).
			Uint("user_id", userID).
			Str("purpose_kind", req.PurposeKind).
			Str("method", req.Method).
			Msg("Failed to create payment")
		respondJSON(w, statusFor(err), Response{Success: false, Error: domain.UserMessage(err, method)})
		return
	}

	respondJSON(w, http.StatusCreated, Response{
		Success: true,
		Message: "Payment created successfully",
		Data:    result,
	})
}

// GetPayment handles GET /api/payments/{id}
func (h *PaymentHandler) GetPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "Invalid payment ID")
	if !ok {
		return
	}

	payment, err := h.getHandler.Handle(r.Context(), query.GetPaymentQuery{ID: id})
	if err != nil {
		respondError(w, r, err, "Payment not found")
		return
	}

	respondJSON(w, http.StatusOK, Response{
		Success: true,
		Data:    payment,
	})
}

// ListPayments handles GET /api/payments?status=&purpose_kind=&user_id=
func (h *PaymentHandler) ListPayments(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	params := r.URL.Query()

	var userID uint
	if raw := params.Get("user_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			respondJSON(w, http.StatusBadRequest, Response{Success: false, Error: "Invalid user_id"})
			return
		}
		userID = uint(id)
	}

	payments, err := h.listHandler.Handle(r.Context(), query.ListPaymentsQuery{
		UserID:  userID,
		Status:  params.Get("status"),
		Purpose: params.Get("purpose_kind"),
		Limit:   limit,
		Offset:  offset,
	})
	if err != nil {
		respondError(w, r, err, "Failed to list payments")
		return
	}

	respondJSON(w, http.StatusOK, Response{
		Success: true,
		Data: map[string]interface{}{
			"payments": payments,
			"total":    len(payments),
		},
	})
}

// UpdatePaymentStatus handles PATCH /api/payments/{id}/status
func (h *PaymentHandler) UpdatePaymentStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "Invalid payment ID")
	if !ok {
		return
	}

	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, Response{Success: false, Error: "Invalid request body"})
		return
	}

	adminID, _ := userIDFrom(r.Context())
	payment, err := h.updateStatusHandler.Handle(r.Context(), command.UpdateStatusCommand{
		PaymentID: id,
		Status:    domain.PaymentStatus(req.Status),
		AdminID:   adminID,
	})
	if err != nil {
		respondError(w, r, err, "Failed to update payment status")
		return
	}

	respondJSON(w, http.StatusOK, Response{
		Success: true,
		Message: "Payment status updated successfully",
		Data:    payment,
	})
}

// GetMyPayments handles GET /api/payments/my (authenticated user)
func (h *PaymentHandler) GetMyPayments(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFrom(r.Context())
	if !ok {
		respondJSON(w, http.StatusUnauthorized, Response{Success: false, Error: "User ID not found in context"})
		return
	}
	limit, offset := pagination(r)

	payments, err := h.getMyHandler.Handle(r.Context(), query.GetMyPaymentsQuery{
		UserID: userID,
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		respondError(w, r, err, "Failed to get payments")
		return
	}

	respondJSON(w, http.StatusOK, Response{
		Success: true,
		Data: map[string]interface{}{
			"payments": payments,
			"total":    len(payments),
		},
	})
}

// GetMiddlewareConfig returns middleware configuration
func (h *PaymentHandler) GetMiddlewareConfig() MiddlewareConfig {
	return h.middleware
}

// RegisterRoutes registers all routes of the service
func (h *PaymentHandler) RegisterRoutes(router *mux.Router) {
	mw := h.GetMiddlewareConfig()
	user := mw.GetAuthMiddleware()
	admin := mw.GetAdminMiddleware()
	limit := mw.GetRateLimitMiddleware()
	limited := func(next http.HandlerFunc) http.HandlerFunc { return user(limit(next)) }

	// Gateway notifications (shared token, no session)
	router.HandleFunc("/api/webhooks/gateway", mw.GetWebhookMiddleware()(h.GatewayWebhook)).Methods("POST")

	// Authenticated user routes (any logged-in user)
	router.HandleFunc("/api/payments/my", user(h.GetMyPayments)).Methods("GET")
	router.HandleFunc("/api/payments", limited(h.CreatePayment)).Methods("POST")
	router.HandleFunc("/api/balance", user(h.GetBalance)).Methods("GET")
	router.HandleFunc("/api/balance/transactions", user(h.ListTransactions)).Methods("GET")
	router.HandleFunc("/api/withdrawals/my", user(h.GetMyWithdrawals)).Methods("GET")
	router.HandleFunc("/api/withdrawals", limited(h.CreateWithdrawal)).Methods("POST")
	router.HandleFunc("/api/referrals/attach", user(h.AttachReferral)).Methods("POST")
	router.HandleFunc("/api/referrals/stats", user(h.GetReferralStats)).Methods("GET")
	router.HandleFunc("/api/promocodes/apply", limited(h.ApplyPromocode)).Methods("POST")

	// Admin routes (require admin role)
	router.HandleFunc("/api/payments", admin(h.ListPayments)).Methods("GET")
	router.HandleFunc("/api/payments/{id}", admin(h.GetPayment)).Methods("GET")
	router.HandleFunc("/api/payments/{id}/status", admin(h.UpdatePaymentStatus)).Methods("PATCH")
	router.HandleFunc("/api/withdrawals", admin(h.ListWithdrawals)).Methods("GET")
	router.HandleFunc("/api/withdrawals/{id}/process", admin(h.ProcessWithdrawal)).Methods("POST")
	router.HandleFunc("/api/withdrawals/{id}/reject", admin(h.RejectWithdrawal)).Methods("POST")
	router.HandleFunc("/api/promocodes", admin(h.CreatePromocode)).Methods("POST")
}

// RegisterHealthCheck registers health check endpoint
func (h *PaymentHandler) RegisterHealthCheck(router *mux.Router, db *sql.DB) {
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			respondJSON(w, http.StatusServiceUnavailable, Response{
				Success: false,
				Error:   "Database unavailable",
			})
			return
		}

		respondJSON(w, http.StatusOK, Response{
			Success: true,
			Message: "Payment service is healthy",
		})
	}).Methods("GET")
}

// statusFor maps the error taxonomy to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrPromocodeUnavailable),
		errors.Is(err, domain.ErrSelfReferral):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadyProcessed),
		errors.Is(err, domain.ErrDuplicateRedemption),
		errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, domain.ErrGatewayUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrPayoutFailed):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// respondError logs err and answers with its mapped status. Internal errors
// get the generic message instead of the error text.
func respondError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	status := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = fallback
		logger.Error(r.Context()).Err(err).Str("path", r.URL.Path).Msg(fallback)
	} else {
		logger.Warn(r.Context()).Err(err).Str("path", r.URL.Path).Int("status", status).Msg(fallback)
	}
	respondJSON(w, status, Response{Success: false, Error: message})
}

func pathID(w http.ResponseWriter, r *http.Request, invalid string) (uint, bool) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 32)
	if err != nil || id == 0 {
		respondJSON(w, http.StatusBadRequest, Response{Success: false, Error: invalid})
		return 0, false
	}
	return uint(id), true
}

func pagination(r *http.Request) (int, int) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	return limit, offset
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}
