package command

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gorm.io/datatypes"

	"github.com/tair/course-payments/internal/payment/config"
	"github.com/tair/course-payments/internal/payment/domain"
	"github.com/tair/course-payments/internal/payment/metrics"
	"github.com/tair/course-payments/pkg/logger"
)

// CreatePaymentCommand represents the command to create a payment
type CreatePaymentCommand struct {
	UserID             uint
	Purpose            domain.PurposeKind
	AmountMinor        int64
	CourseID           *uint
	Method             domain.PaymentMethod
	ReceiptContact     string
	Promocode          string
	FullAccessOverride bool
	ReturnURL          string
}

// CreatePaymentResult is returned to the buyer
type CreatePaymentResult struct {
	PaymentID       uint                 `json:"payment_id"`
	Status          domain.PaymentStatus `json:"status"`
	ConfirmationURL string               `json:"confirmation_url,omitempty"`
	AmountMinor     int64                `json:"amount_minor"`
	IsFullAccess    bool                 `json:"is_full_access"`
}

// CreatePaymentHandler handles create payment command
type CreatePaymentHandler struct {
	repos     domain.Repositories
	gateway   domain.Gateway
	promos    *PromocodeEvaluator
	effects   *PaymentEffects
	publisher domain.EventPublisher
	metrics   *metrics.Metrics
	rules     config.BusinessConfig
	now       func() time.Time
}

// NewCreatePaymentHandler creates a new create payment handler
func NewCreatePaymentHandler(
	repos domain.Repositories,
	gateway domain.Gateway,
	promos *PromocodeEvaluator,
	effects *PaymentEffects,
	publisher domain.EventPublisher,
	m *metrics.Metrics,
	rules config.BusinessConfig,
) *CreatePaymentHandler {
	return &CreatePaymentHandler{
		repos:     repos,
		gateway:   gateway,
		promos:    promos,
		effects:   effects,
		publisher: publisher,
		metrics:   m,
		rules:     rules,
		now:       time.Now,
	}
}

// Handle executes the create payment command.
// Gateway methods call the gateway before anything is persisted; the balance
// method completes the purchase in one transaction without the gateway.
func (h *CreatePaymentHandler) Handle(ctx context.Context, cmd CreatePaymentCommand) (*CreatePaymentResult, error) {
	course, err := h.validate(ctx, cmd)
	if err != nil {
		h.metrics.PaymentCreated(string(cmd.Purpose), string(cmd.Method), "rejected")
		return nil, err
	}

	payment := &domain.Payment{
		UserID:         cmd.UserID,
		CourseID:       cmd.CourseID,
		AmountMinor:    cmd.AmountMinor,
		Currency:       h.rules.Currency,
		Method:         cmd.Method,
		Status:         domain.StatusPending,
		PurposeKind:    cmd.Purpose,
		ReceiptContact: strings.TrimSpace(cmd.ReceiptContact),
	}

	referencePrice := int64(0)
	if course != nil {
		referencePrice = course.PriceMinor
		if cmd.Purpose == domain.PurposeFinalModules {
			referencePrice = course.FinalModulesPriceMinor
		}
	}
	if cmd.Promocode != "" {
		promo, quote, err := h.promos.Preview(ctx, cmd.UserID, cmd.Promocode, cmd.CourseID, referencePrice)
		if err != nil {
			h.metrics.PaymentCreated(string(cmd.Purpose), string(cmd.Method), "rejected")
			return nil, err
		}
		payment.PromocodeID = &promo.ID
		if quote.PriceMinor > 0 {
			referencePrice = quote.FinalPriceMinor
		}
	}
	payment.IsFullAccess = IsFullAccess(cmd.Purpose, cmd.AmountMinor, referencePrice, cmd.FullAccessOverride)
	payment.IdempotencyKey = ChargeIdempotencyKey(cmd.Purpose, cmd.UserID, cmd.CourseID, h.now(), h.rules.ChargeKeyWindow)
	payment.Metadata = datatypes.JSONMap{}
	for k, v := range chargeMetadata(payment) {
		payment.Metadata[k] = v
	}

	if cmd.Method == domain.MethodBalance {
		return h.payFromBalance(ctx, payment)
	}
	return h.payWithGateway(ctx, payment, cmd.ReturnURL)
}

func (h *CreatePaymentHandler) validate(ctx context.Context, cmd CreatePaymentCommand) (*domain.Course, error) {
	if cmd.UserID == 0 {
		return nil, domain.Validationf("user_id is required")
	}
	if !domain.IsValidPurpose(cmd.Purpose) {
		return nil, domain.Validationf("invalid purpose_kind: %s", cmd.Purpose)
	}
	if !domain.IsValidPaymentMethod(cmd.Method) {
		return nil, domain.Validationf("invalid payment method: %s", cmd.Method)
	}
	if cmd.AmountMinor < h.rules.MinPaymentMinor {
		return nil, domain.Validationf("amount must be at least %d minor units", h.rules.MinPaymentMinor)
	}
	if cmd.Method == domain.MethodBalance {
		if cmd.Purpose == domain.PurposeBalanceTopup {
			return nil, domain.Validationf("balance top-up cannot be paid from balance")
		}
	} else if strings.TrimSpace(cmd.ReceiptContact) == "" {
		return nil, domain.Validationf("receipt email or phone is required")
	}
	if cmd.Purpose == domain.PurposeBalanceTopup && (cmd.CourseID != nil || cmd.Promocode != "") {
		return nil, domain.Validationf("balance top-up takes neither a course nor a promocode")
	}

	if cmd.CourseID == nil {
		if cmd.Purpose.RequiresCourse() {
			return nil, domain.Validationf("course_id is required for %s", cmd.Purpose)
		}
		return nil, nil
	}

	course, err := h.repos.Courses.FindByID(ctx, *cmd.CourseID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.Validationf("unknown course %d", *cmd.CourseID)
		}
		return nil, err
	}
	if !course.IsActive {
		return nil, domain.Validationf("course %d is not for sale", course.ID)
	}
	return course, nil
}

func (h *CreatePaymentHandler) payWithGateway(ctx context.Context, payment *domain.Payment, returnURL string) (*CreatePaymentResult, error) {
	charge, err := h.gateway.CreateCharge(ctx, domain.ChargeRequest{
		AmountMinor:    payment.AmountMinor,
		Currency:       payment.Currency,
		Description:    purchaseDescription(payment),
		Method:         payment.Method,
		ReceiptContact: payment.ReceiptContact,
		ReturnURL:      returnURL,
		Metadata:       chargeMetadata(payment),
	}, payment.IdempotencyKey)
	if err != nil {
		h.metrics.PaymentCreated(string(payment.PurposeKind), string(payment.Method), "gateway_error")
		if errors.Is(err, domain.ErrGatewayUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
	}

	payment.ExternalPaymentID = &charge.ExternalID
	payment.ConfirmationURL = charge.ConfirmationURL

	if err := h.repos.Payments.Create(ctx, payment); err != nil {
		// The gateway answers a repeated idempotency key with the same charge
		if existing, findErr := h.repos.Payments.FindByExternalID(ctx, charge.ExternalID); findErr == nil {
			return resultOf(existing), nil
		}

		h.metrics.ReconciliationRequired("payment_persist")
		logger.Alert(ctx).Err(err).
			Uint("user_id", payment.UserID).
			Str("external_payment_id", charge.ExternalID).
			Str("idempotency_key", payment.IdempotencyKey).
			Str("purpose_kind", string(payment.PurposeKind)).
			Int64("amount_minor", payment.AmountMinor).
			Msg("Charge created but payment was not persisted")
		publish(ctx, h.publisher, newEvent(domain.TopicLedgerAlerts, domain.EventTypeReconciliationRequired, payment.UserID, charge.ExternalID,
			map[string]interface{}{
				"operation":       "payment_persist",
				"reference":       charge.ExternalID,
				"idempotency_key": payment.IdempotencyKey,
				"amount_minor":    payment.AmountMinor,
				"error":           err.Error(),
			}))
		return nil, fmt.Errorf("%w: charge %s not persisted: %v", domain.ErrReconciliationRequired, charge.ExternalID, err)
	}

	h.metrics.PaymentCreated(string(payment.PurposeKind), string(payment.Method), "pending")
	logger.Info(ctx).
		Uint("payment_id", payment.ID).
		Uint("user_id", payment.UserID).
		Str("external_payment_id", charge.ExternalID).
		Str("purpose_kind", string(payment.PurposeKind)).
		Int64("amount_minor", payment.AmountMinor).
		Bool("is_full_access", payment.IsFullAccess).
		Msg("Payment created")

	return resultOf(payment), nil
}

func (h *CreatePaymentHandler) payFromBalance(ctx context.Context, payment *domain.Payment) (*CreatePaymentResult, error) {
	err := h.repos.Tx.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		if err := repos.Idempotency.MarkProcessed(ctx, "balance-payment:"+payment.IdempotencyKey, "created"); err != nil {
			return err
		}
		completedAt := h.now()
		payment.Status = domain.StatusCompleted
		payment.CompletedAt = &completedAt
		if err := repos.Payments.Create(ctx, payment); err != nil {
			return fmt.Errorf("failed to create payment: %w", err)
		}
		return h.effects.Complete(ctx, repos, payment)
	})
	if errors.Is(err, domain.ErrAlreadyProcessed) {
		// A retried purchase answers with the payment completed the first time
		existing, findErr := h.repos.Payments.FindByIdempotencyKey(ctx, payment.IdempotencyKey, domain.MethodBalance)
		if findErr != nil {
			return nil, fmt.Errorf("balance payment %s already processed: %w", payment.IdempotencyKey, findErr)
		}
		logger.Info(ctx).
			Uint("payment_id", existing.ID).
			Uint("user_id", existing.UserID).
			Msg("Balance payment already completed, returning it")
		return resultOf(existing), nil
	}
	if err != nil {
		h.metrics.PaymentCreated(string(payment.PurposeKind), string(payment.Method), "rejected")
		return nil, err
	}

	h.metrics.PaymentCreated(string(payment.PurposeKind), string(payment.Method), "completed")
	logger.Info(ctx).
		Uint("payment_id", payment.ID).
		Uint("user_id", payment.UserID).
		Int64("amount_minor", payment.AmountMinor).
		Msg("Payment completed from balance")
	publish(ctx, h.publisher, paymentEvent(domain.EventTypePaymentCompleted, payment))
	return resultOf(payment), nil
}

// IsFullAccess decides the full-access flag at creation time: only a course
// purchase paying at least the reference price, or an explicit override.
func IsFullAccess(purpose domain.PurposeKind, amount, referencePrice int64, override bool) bool {
	if purpose != domain.PurposeCoursePurchase {
		return false
	}
	return override || amount >= referencePrice
}

// ChargeIdempotencyKey derives the gateway key from the purchase intent and
// a coarse time bucket: retries within the window reuse the same charge.
func ChargeIdempotencyKey(purpose domain.PurposeKind, userID uint, courseID *uint, now time.Time, window time.Duration) string {
	if window <= 0 {
		window = 10 * time.Minute
	}
	bucket := now.UTC().Truncate(window).Unix()
	raw := fmt.Sprintf("%s|%d|%d|%d", purpose, userID, derefUint(courseID), bucket)
	sum := sha256.Sum256([]byte(raw))
	key := hex.EncodeToString(sum[:])
	if len(key) > 64 {
		key = key[:64]
	}
	return key
}

// chargeMetadata carries enough to rebuild the payment from a webhook
func chargeMetadata(p *domain.Payment) map[string]string {
	md := map[string]string{
		metaUserID:      strconv.FormatUint(uint64(p.UserID), 10),
		metaPurpose:     string(p.PurposeKind),
		metaAmount:      strconv.FormatInt(p.AmountMinor, 10),
		metaMethod:      string(p.Method),
		metaFullAccess:  strconv.FormatBool(p.IsFullAccess),
		metaIdempotency: p.IdempotencyKey,
	}
	if p.CourseID != nil {
		md[metaCourseID] = strconv.FormatUint(uint64(*p.CourseID), 10)
	}
	if p.PromocodeID != nil {
		md[metaPromocodeID] = strconv.FormatUint(uint64(*p.PromocodeID), 10)
	}
	return md
}

func resultOf(p *domain.Payment) *CreatePaymentResult {
	return &CreatePaymentResult{
		PaymentID:       p.ID,
		Status:          p.Status,
		ConfirmationURL: p.ConfirmationURL,
		AmountMinor:     p.AmountMinor,
		IsFullAccess:    p.IsFullAccess,
	}
}

// Charge metadata keys
const (
	metaUserID      = "user_id"
	metaCourseID    = "course_id"
	metaPurpose     = "purpose_kind"
	metaAmount      = "amount_minor"
	metaMethod      = "method"
	metaFullAccess  = "is_full_access"
	metaPromocodeID = "promocode_id"
	metaIdempotency = "idempotency_key"
)
