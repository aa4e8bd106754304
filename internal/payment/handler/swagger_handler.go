package handler

import (
	"net/http"

	"github.com/gorilla/mux"
)

// RegisterSwaggerDocs registers Swagger documentation routes
// @Summary Swagger documentation
// @Description Swagger API documentation
// @Tags Swagger
// @Success 200 {string} string "Swagger UI"
// @Router /swagger/ [get]
func RegisterSwaggerDocs(router *mux.Router, swaggerHandler http.Handler) {
	router.PathPrefix("/swagger/").Handler(swaggerHandler)
}

// CreatePayment godoc
// @Summary Create a payment
// @Description Start a course purchase, final-modules purchase, promotion or balance top-up. Gateway methods return a confirmation URL; the balance method completes immediately. full_access is honored only for administrators.
// @Tags Payments
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body object{purpose_kind=string,amount_minor=int,course_id=int,payment_method=string,receipt_contact=string,promocode=string,full_access=bool,return_url=string} true "Payment data"
// @Success 201 {object} object{success=bool,message=string,data=object{payment_id=int,status=string,confirmation_url=string,amount_minor=int,is_full_access=bool}}
// @Failure 400 {object} object{success=bool,error=string}
// @Failure 401 {object} object{success=bool,error=string}
// @Failure 402 {object} object{success=bool,error=string}
// @Failure 503 {object} object{success=bool,error=string}
// @Router /api/payments [post]
func (h *PaymentHandler) CreatePaymentDoc() {}

// GetPayment godoc
// @Summary Get payment by ID
// @Description Get a specific payment by its ID (Admin only)
// @Tags Payments
// @Security BearerAuth
// @Produce json
// @Param id path int true "Payment ID"
// @Success 200 {object} object{success=bool,data=object}
// @Failure 400 {object} object{success=bool,error=string}
// @Failure 403 {object} object{success=bool,error=string}
// @Failure 404 {object} object{success=bool,error=string}
// @Router /api/payments/{id} [get]
func (h *PaymentHandler) GetPaymentDoc() {}

// ListPayments godoc
// @Summary List all payments
// @Description Get a list of all payments with pagination (Admin only)
// @Tags Payments
// @Security BearerAuth
// @Produce json
// @Param limit query int false "Limit"
// @Param offset query int false "Offset"
// @Success 200 {object} object{success=bool,data=object{payments=array,total=int}}
// @Failure 403 {object} object{success=bool,error=string}
// @Router /api/payments [get]
func (h *PaymentHandler) ListPaymentsDoc() {}

// UpdatePaymentStatus godoc
// @Summary Override payment status
// @Description Move a payment along the status machine and apply the ledger effects of the new status (Admin only)
// @Tags Payments
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path int true "Payment ID"
// @Param request body object{status=string} true "Target status (completed/failed/refunded)"
// @Success 200 {object} object{success=bool,message=string,data=object}
// @Failure 400 {object} object{success=bool,error=string}
// @Failure 409 {object} object{success=bool,error=string}
// @Router /api/payments/{id}/status [patch]
func (h *PaymentHandler) UpdatePaymentStatusDoc() {}

// GetMyPayments godoc
// @Summary Get my payments
// @Description Get payments for the authenticated user
// @Tags Payments
// @Security BearerAuth
// @Produce json
// @Param limit query int false "Limit"
// @Param offset query int false "Offset"
// @Success 200 {object} object{success=bool,data=object{payments=array,total=int}}
// @Failure 401 {object} object{success=bool,error=string}
// @Router /api/payments/my [get]
func (h *PaymentHandler) GetMyPaymentsDoc() {}

// GatewayWebhook godoc
// @Summary Gateway notification
// @Description Receives payment, refund and payout notifications. Answers 200 for duplicates and business no-ops, 5xx only when the gateway should retry.
// @Tags Webhooks
// @Accept json
// @Produce json
// @Param X-Webhook-Token header string true "Shared webhook token"
// @Success 200 {object} object{success=bool,message=string}
// @Failure 401 {object} object{success=bool,error=string}
// @Failure 500 {object} object{success=bool,error=string}
// @Router /api/webhooks/gateway [post]
func (h *PaymentHandler) GatewayWebhookDoc() {}

// GetBalance godoc
// @Summary Get my balance
// @Tags Balance
// @Security BearerAuth
// @Produce json
// @Success 200 {object} object{success=bool,data=object{user_id=int,balance=int,total_earned=int,total_withdrawn=int}}
// @Router /api/balance [get]
func (h *PaymentHandler) GetBalanceDoc() {}

// ListTransactions godoc
// @Summary List my ledger entries
// @Tags Balance
// @Security BearerAuth
// @Produce json
// @Param limit query int false "Limit"
// @Param offset query int false "Offset"
// @Success 200 {object} object{success=bool,data=object{transactions=array,total=int}}
// @Router /api/balance/transactions [get]
func (h *PaymentHandler) ListTransactionsDoc() {}

// CreateWithdrawal godoc
// @Summary Request a withdrawal
// @Description Reserves the full amount. Instant withdrawals pay out immediately with a commission; a declined payout returns the funds.
// @Tags Withdrawals
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param Idempotency-Key header string false "Idempotency key"
// @Param request body object{amount_minor=int,method=string,destination=object{card_number=string,phone=string,bank_id=string,wallet_id=string},is_instant=bool} true "Withdrawal data"
// @Success 201 {object} object{success=bool,message=string,data=object}
// @Failure 400 {object} object{success=bool,error=string}
// @Failure 402 {object} object{success=bool,error=string}
// @Failure 502 {object} object{success=bool,error=string,data=object}
// @Router /api/withdrawals [post]
func (h *PaymentHandler) CreateWithdrawalDoc() {}

// GetMyWithdrawals godoc
// @Summary List my withdrawals
// @Tags Withdrawals
// @Security BearerAuth
// @Produce json
// @Success 200 {object} object{success=bool,data=object{withdrawals=array,total=int}}
// @Router /api/withdrawals/my [get]
func (h *PaymentHandler) GetMyWithdrawalsDoc() {}

// ListWithdrawals godoc
// @Summary List withdrawals by status
// @Tags Withdrawals
// @Security BearerAuth
// @Produce json
// @Param status query string false "pending (default), processing, completed, failed"
// @Success 200 {object} object{success=bool,data=object{withdrawals=array,total=int}}
// @Router /api/withdrawals [get]
func (h *PaymentHandler) ListWithdrawalsDoc() {}

// ProcessWithdrawal godoc
// @Summary Pay out a pending withdrawal (Admin only)
// @Tags Withdrawals
// @Security BearerAuth
// @Produce json
// @Param id path int true "Withdrawal ID"
// @Success 200 {object} object{success=bool,data=object}
// @Failure 409 {object} object{success=bool,error=string}
// @Failure 502 {object} object{success=bool,error=string,data=object}
// @Router /api/withdrawals/{id}/process [post]
func (h *PaymentHandler) ProcessWithdrawalDoc() {}

// RejectWithdrawal godoc
// @Summary Reject a pending withdrawal (Admin only)
// @Tags Withdrawals
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path int true "Withdrawal ID"
// @Param request body object{reason=string} false "Reason"
// @Success 200 {object} object{success=bool,data=object}
// @Failure 409 {object} object{success=bool,error=string}
// @Router /api/withdrawals/{id}/reject [post]
func (h *PaymentHandler) RejectWithdrawalDoc() {}

// AttachReferral godoc
// @Summary Attach a referral code
// @Tags Referrals
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body object{code=string} true "Referral code"
// @Success 200 {object} object{success=bool,data=object{referral=object,attached=bool}}
// @Failure 400 {object} object{success=bool,error=string}
// @Failure 404 {object} object{success=bool,error=string}
// @Router /api/referrals/attach [post]
func (h *PaymentHandler) AttachReferralDoc() {}

// GetReferralStats godoc
// @Summary My referral statistics
// @Tags Referrals
// @Security BearerAuth
// @Produce json
// @Success 200 {object} object{success=bool,data=object{code=string,commission_percent=int,total_referrals=int,active_referrals=int,total_earned_minor=int}}
// @Router /api/referrals/stats [get]
func (h *PaymentHandler) GetReferralStatsDoc() {}

// ApplyPromocode godoc
// @Summary Apply a promocode
// @Description Discount codes return a price preview; referral-access codes grant partner status.
// @Tags Promocodes
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body object{code=string,course_id=int} true "Promocode"
// @Success 200 {object} object{success=bool,data=object}
// @Failure 400 {object} object{success=bool,error=string}
// @Failure 409 {object} object{success=bool,error=string}
// @Router /api/promocodes/apply [post]
func (h *PaymentHandler) ApplyPromocodeDoc() {}

// CreatePromocode godoc
// @Summary Create a promocode (Admin only)
// @Tags Promocodes
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body object{code=string,kind=string,discount_percent=int,discount_amount_minor=int,commission_percent=int,max_activations=int,course_id=int} true "Promocode"
// @Success 201 {object} object{success=bool,data=object}
// @Failure 400 {object} object{success=bool,error=string}
// @Router /api/promocodes [post]
func (h *PaymentHandler) CreatePromocodeDoc() {}

// HealthCheck godoc
// @Summary Health check
// @Description Check service health and database connectivity
// @Tags Health
// @Produce json
// @Success 200 {object} object{success=bool,message=string}
// @Failure 503 {object} object{success=bool,error=string}
// @Router /health [get]
func (h *PaymentHandler) HealthCheckDoc() {}
