package command

import (
	"context"
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

// CreateWithdrawalCommand represents the command to create a withdrawal
type CreateWithdrawalCommand struct {
	UserID         uint
	AmountMinor    int64
	Method         domain.WithdrawalMethod
	Destination    domain.Destination
	IsInstant      bool
	IdempotencyKey string
}

// WithdrawalManager reserves funds for withdrawals, pays them out and
// returns the full reservation when a payout fails.
type WithdrawalManager struct {
	repos     domain.Repositories
	gateway   domain.Gateway
	publisher domain.EventPublisher
	metrics   *metrics.Metrics
	rules     config.BusinessConfig
	now       func() time.Time
}

// NewWithdrawalManager creates a new withdrawal manager
func NewWithdrawalManager(
	repos domain.Repositories,
	gateway domain.Gateway,
	publisher domain.EventPublisher,
	m *metrics.Metrics,
	rules config.BusinessConfig,
) *WithdrawalManager {
	return &WithdrawalManager{
		repos:     repos,
		gateway:   gateway,
		publisher: publisher,
		metrics:   m,
		rules:     rules,
		now:       time.Now,
	}
}

// Create reserves the full amount and, for instant requests, pays out.
// A repeated idempotency key returns the request created the first time.
func (m *WithdrawalManager) Create(ctx context.Context, cmd CreateWithdrawalCommand) (*domain.WithdrawalRequest, error) {
	quote, err := m.validate(cmd)
	if err != nil {
		return nil, err
	}

	var key *string
	if k := strings.TrimSpace(cmd.IdempotencyKey); k != "" {
		if len(k) > 64 {
			return nil, domain.Validationf("idempotency key is longer than 64 characters")
		}
		key = &k
		if existing, err := m.repos.Withdrawals.FindByIdempotencyKey(ctx, cmd.UserID, k); err == nil {
			return existing, nil
		}
	}

	status := domain.WithdrawalPending
	if cmd.IsInstant {
		status = domain.WithdrawalProcessing
	}
	req := &domain.WithdrawalRequest{
		UserID:         cmd.UserID,
		AmountMinor:    quote.PayableMinor,
		Method:         cmd.Method,
		Destination:    cmd.Destination,
		Status:         status,
		IsInstant:      cmd.IsInstant,
		IdempotencyKey: key,
		Metadata: datatypes.JSONMap{
			domain.MetaOriginalAmount:    quote.OriginalMinor,
			domain.MetaCommissionAmount:  quote.CommissionMinor,
			domain.MetaCommissionPercent: m.commissionPercent(cmd.IsInstant),
		},
	}

	err = m.repos.Tx.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		if err := repos.Withdrawals.Create(ctx, req); err != nil {
			return err
		}
		_, err := repos.Ledger.Debit(ctx, req.UserID, quote.OriginalMinor, reservationEntries(req, quote)...)
		return err
	})
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyProcessed) && key != nil {
			return m.repos.Withdrawals.FindByIdempotencyKey(ctx, cmd.UserID, *key)
		}
		m.metrics.Withdrawal(string(cmd.Method), "rejected")
		return nil, err
	}

	logger.Info(ctx).
		Uint("withdrawal_id", req.ID).
		Uint("user_id", req.UserID).
		Int64("original_amount", quote.OriginalMinor).
		Int64("commission", quote.CommissionMinor).
		Int64("payable", quote.PayableMinor).
		Bool("is_instant", req.IsInstant).
		Msg("Withdrawal reserved")
	m.metrics.Withdrawal(string(req.Method), string(req.Status))

	if !req.IsInstant {
		return req, nil
	}
	return m.payout(ctx, req)
}

// Process starts the payout of a pending request (admin). A processing
// request whose payout was never confirmed is paid out again under the same
// gateway idempotency key.
func (m *WithdrawalManager) Process(ctx context.Context, id uint) (*domain.WithdrawalRequest, error) {
	req, err := m.repos.Withdrawals.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Status == domain.WithdrawalProcessing && req.ExternalPayoutID == nil {
		return m.payout(ctx, req)
	}
	if err := m.repos.Withdrawals.Transition(ctx, id, domain.WithdrawalPending, domain.WithdrawalProcessing, domain.WithdrawalUpdate{At: m.now()}); err != nil {
		return nil, err
	}
	req.Status = domain.WithdrawalProcessing
	return m.payout(ctx, req)
}

// Reject fails a pending request and returns the reserved funds (admin)
func (m *WithdrawalManager) Reject(ctx context.Context, id uint, reason string) (*domain.WithdrawalRequest, error) {
	req, err := m.repos.Withdrawals.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(reason) == "" {
		reason = "rejected by administrator"
	}

	err = m.repos.Tx.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		return m.compensate(ctx, repos, req, domain.WithdrawalPending, domain.WithdrawalUpdate{ErrorMessage: reason, At: m.now()})
	})
	if err != nil {
		return nil, err
	}

	m.metrics.Withdrawal(string(req.Method), string(domain.WithdrawalFailed))
	publish(ctx, m.publisher, withdrawalEvent(domain.EventTypeWithdrawalFailed, req))
	return req, nil
}

// payout calls the gateway with no transaction open. A declined payout is
// compensated before returning. When the outcome is unknown (timeout or
// gateway unavailable) the request stays processing with its reservation
// and the payout webhook settles it.
func (m *WithdrawalManager) payout(ctx context.Context, req *domain.WithdrawalRequest) (*domain.WithdrawalRequest, error) {
	res, err := m.gateway.CreatePayout(ctx, domain.PayoutRequest{
		AmountMinor: req.AmountMinor,
		Currency:    m.rules.Currency,
		Method:      req.Method,
		Destination: req.Destination,
		Description: fmt.Sprintf("Withdrawal #%d", req.ID),
		Metadata: map[string]string{
			"withdrawal_id": req.ReferenceID(),
			"user_id":       strconv.FormatUint(uint64(req.UserID), 10),
		},
	}, "withdrawal-"+req.ReferenceID())

	if err != nil && payoutOutcomeUnknown(err) {
		logger.Warn(ctx).Err(err).
			Uint("withdrawal_id", req.ID).
			Uint("user_id", req.UserID).
			Msg("Payout outcome unknown, reservation kept until the gateway reports")
		m.metrics.Withdrawal(string(req.Method), "unconfirmed")
		return req, nil
	}

	if err != nil {
		upd := domain.WithdrawalUpdate{ErrorMessage: truncateMessage(err.Error()), At: m.now()}
		if res != nil && res.ExternalID != "" {
			upd.ExternalPayoutID = &res.ExternalID
		}
		compErr := m.repos.Tx.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
			return m.compensate(ctx, repos, req, domain.WithdrawalProcessing, upd)
		})
		if errors.Is(compErr, domain.ErrInvalidTransition) && m.alreadyFailed(ctx, req) {
			// a payout.canceled notification compensated the request first
			logger.Info(ctx).
				Uint("withdrawal_id", req.ID).
				Msg("Payout failure already compensated")
			return req, fmt.Errorf("%w: %v", domain.ErrPayoutFailed, err)
		}
		if compErr != nil {
			m.metrics.ReconciliationRequired("withdrawal_compensation")
			reconciliationAlert(ctx, m.publisher, req.UserID, "withdrawal_compensation", req.ReferenceID(), compErr)
			return req, fmt.Errorf("%w: withdrawal %d payout failed (%v) and compensation failed: %v",
				domain.ErrReconciliationRequired, req.ID, err, compErr)
		}

		logger.Warn(ctx).Err(err).
			Uint("withdrawal_id", req.ID).
			Uint("user_id", req.UserID).
			Int64("refunded", req.OriginalAmount()).
			Msg("Payout failed, reservation returned")
		m.metrics.Withdrawal(string(req.Method), string(domain.WithdrawalFailed))
		publish(ctx, m.publisher, withdrawalEvent(domain.EventTypeWithdrawalFailed, req))
		return req, fmt.Errorf("%w: %v", domain.ErrPayoutFailed, err)
	}

	if res.Status == domain.PayoutSucceeded {
		err := m.repos.Withdrawals.Transition(ctx, req.ID, domain.WithdrawalProcessing, domain.WithdrawalCompleted,
			domain.WithdrawalUpdate{ExternalPayoutID: &res.ExternalID, At: m.now()})
		if err != nil && !errors.Is(err, domain.ErrInvalidTransition) {
			return req, err
		}
		if err == nil {
			now := m.now()
			req.Status = domain.WithdrawalCompleted
			req.ProcessedAt = &now
			m.metrics.Withdrawal(string(req.Method), string(domain.WithdrawalCompleted))
			publish(ctx, m.publisher, withdrawalEvent(domain.EventTypeWithdrawalCompleted, req))
		}
	} else if err := m.repos.Withdrawals.SetExternalPayoutID(ctx, req.ID, res.ExternalID); err != nil {
		return req, err
	}
	req.ExternalPayoutID = &res.ExternalID

	logger.Info(ctx).
		Uint("withdrawal_id", req.ID).
		Str("external_payout_id", res.ExternalID).
		Str("payout_status", string(res.Status)).
		Msg("Payout created")
	return req, nil
}

// HandlePayoutEvent applies payout.succeeded / payout.canceled notifications
func (m *WithdrawalManager) HandlePayoutEvent(ctx context.Context, ev domain.GatewayEvent) (*GatewayEventResult, error) {
	key := ev.OperationKey()
	if done, err := m.repos.Idempotency.IsProcessed(ctx, key); err == nil && done {
		m.metrics.GatewayEvent(ev.Type, OutcomeDuplicate)
		return &GatewayEventResult{Outcome: OutcomeDuplicate}, nil
	}

	var (
		req     *domain.WithdrawalRequest
		outcome = OutcomeIgnored
	)
	err := m.repos.Tx.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		if err := repos.Idempotency.MarkProcessed(ctx, key, ev.Type); err != nil {
			return err
		}

		r, err := m.findForEvent(ctx, repos, ev)
		if err != nil {
			return err
		}
		req = r

		switch ev.Type {
		case domain.EventPayoutSucceeded:
			switch r.Status {
			case domain.WithdrawalCompleted:
				return nil
			case domain.WithdrawalProcessing:
				if err := repos.Withdrawals.Transition(ctx, r.ID, domain.WithdrawalProcessing, domain.WithdrawalCompleted,
					domain.WithdrawalUpdate{ExternalPayoutID: &ev.ExternalID, At: m.now()}); err != nil {
					return err
				}
				r.Status = domain.WithdrawalCompleted
				outcome = OutcomeApplied
				return nil
			}
			return fmt.Errorf("%w: payout %s succeeded for withdrawal %d in status %s",
				domain.ErrReconciliationRequired, ev.ExternalID, r.ID, r.Status)

		case domain.EventPayoutCanceled:
			switch r.Status {
			case domain.WithdrawalFailed:
				return nil
			case domain.WithdrawalProcessing:
				reason := "payout canceled by gateway"
				if v := ev.Metadata["reason"]; v != "" {
					reason = v
				}
				if err := m.compensate(ctx, repos, r, domain.WithdrawalProcessing,
					domain.WithdrawalUpdate{ExternalPayoutID: &ev.ExternalID, ErrorMessage: reason, At: m.now()}); err != nil {
					return err
				}
				outcome = OutcomeApplied
				return nil
			}
			return fmt.Errorf("%w: payout %s canceled for withdrawal %d in status %s",
				domain.ErrReconciliationRequired, ev.ExternalID, r.ID, r.Status)
		}
		return nil
	})

	switch {
	case errors.Is(err, domain.ErrAlreadyProcessed):
		m.metrics.GatewayEvent(ev.Type, OutcomeDuplicate)
		return &GatewayEventResult{Outcome: OutcomeDuplicate}, nil
	case errors.Is(err, domain.ErrReconciliationRequired):
		m.metrics.GatewayEvent(ev.Type, "reconciliation_required")
		m.metrics.ReconciliationRequired(ev.Type)
		userID := uint(0)
		if req != nil {
			userID = req.UserID
		}
		reconciliationAlert(ctx, m.publisher, userID, ev.Type, ev.ExternalID, err)
		return nil, err
	case err != nil:
		m.metrics.GatewayEvent(ev.Type, "error")
		return nil, err
	}

	m.metrics.GatewayEvent(ev.Type, outcome)
	if outcome == OutcomeApplied {
		m.metrics.Withdrawal(string(req.Method), string(req.Status))
		eventType := domain.EventTypeWithdrawalCompleted
		if req.Status == domain.WithdrawalFailed {
			eventType = domain.EventTypeWithdrawalFailed
		}
		publish(ctx, m.publisher, withdrawalEvent(eventType, req))
	}
	return &GatewayEventResult{Outcome: outcome, Status: string(req.Status)}, nil
}

// compensate fails the request and credits back the full reservation:
// the payable part as a user-facing reversal, the commission as a system entry.
func (m *WithdrawalManager) compensate(ctx context.Context, repos domain.Repositories, req *domain.WithdrawalRequest, from domain.WithdrawalStatus, upd domain.WithdrawalUpdate) error {
	if err := repos.Withdrawals.Transition(ctx, req.ID, from, domain.WithdrawalFailed, upd); err != nil {
		return err
	}

	original := req.OriginalAmount()
	commission := req.CommissionAmount()
	payable := original - commission
	entries := []domain.LedgerEntry{{
		UserID:        req.UserID,
		Type:          domain.EntryRefund,
		AmountMinor:   payable,
		ReferenceType: domain.RefWithdrawalReversal,
		ReferenceID:   req.ReferenceID(),
		Description:   "Withdrawal returned: " + upd.ErrorMessage,
	}}
	if commission > 0 {
		entries = append(entries, domain.LedgerEntry{
			UserID:        req.UserID,
			Type:          domain.EntryRefund,
			AmountMinor:   commission,
			ReferenceType: domain.RefWithdrawalCommission,
			ReferenceID:   req.ReferenceID(),
			Description:   "Withdrawal commission returned",
			IsSystem:      true,
		})
	}
	if _, err := repos.Ledger.Credit(ctx, req.UserID, original, entries...); err != nil {
		return err
	}

	at := upd.At
	req.Status = domain.WithdrawalFailed
	req.ErrorMessage = upd.ErrorMessage
	req.FailedAt = &at
	if upd.ExternalPayoutID != nil {
		req.ExternalPayoutID = upd.ExternalPayoutID
	}
	return nil
}

// alreadyFailed reloads req and reports whether it was failed elsewhere
func (m *WithdrawalManager) alreadyFailed(ctx context.Context, req *domain.WithdrawalRequest) bool {
	stored, err := m.repos.Withdrawals.FindByID(ctx, req.ID)
	if err != nil || stored.Status != domain.WithdrawalFailed {
		return false
	}
	*req = *stored
	return true
}

// payoutOutcomeUnknown reports errors after which the payout may still exist
// at the gateway. Classified rejections are definite failures.
func payoutOutcomeUnknown(err error) bool {
	if errors.Is(err, domain.ErrCircuitOpen) {
		return false
	}
	return errors.Is(err, domain.ErrGatewayUnavailable) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled)
}

func (m *WithdrawalManager) findForEvent(ctx context.Context, repos domain.Repositories, ev domain.GatewayEvent) (*domain.WithdrawalRequest, error) {
	req, err := repos.Withdrawals.FindByExternalPayoutID(ctx, ev.ExternalID)
	if err == nil {
		return req, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	// The webhook can overtake the synchronous response that stores the payout id
	if id, convErr := strconv.ParseUint(ev.Metadata["withdrawal_id"], 10, 64); convErr == nil {
		if req, err := repos.Withdrawals.FindByID(ctx, uint(id)); err == nil {
			return req, nil
		}
	}
	return nil, fmt.Errorf("%w: %s for unknown payout %s", domain.ErrReconciliationRequired, ev.Type, ev.ExternalID)
}

func (m *WithdrawalManager) validate(cmd CreateWithdrawalCommand) (domain.WithdrawalQuote, error) {
	if cmd.UserID == 0 {
		return domain.WithdrawalQuote{}, domain.Validationf("user_id is required")
	}
	if cmd.AmountMinor < m.rules.MinWithdrawalMinor {
		return domain.WithdrawalQuote{}, domain.Validationf("minimum withdrawal is %d minor units", m.rules.MinWithdrawalMinor)
	}
	if err := domain.ValidateDestination(cmd.Method, cmd.Destination); err != nil {
		return domain.WithdrawalQuote{}, err
	}

	quote := domain.QuoteWithdrawal(cmd.AmountMinor, cmd.IsInstant, m.commissionPercent(cmd.IsInstant))
	if quote.PayableMinor < m.rules.MinWithdrawalMinor {
		return domain.WithdrawalQuote{}, domain.Validationf("amount after %d%% commission is below the minimum withdrawal of %d minor units",
			m.rules.InstantWithdrawalCommission, m.rules.MinWithdrawalMinor)
	}
	return quote, nil
}

func (m *WithdrawalManager) commissionPercent(isInstant bool) int64 {
	if !isInstant {
		return 0
	}
	return m.rules.InstantWithdrawalCommission
}

func reservationEntries(req *domain.WithdrawalRequest, quote domain.WithdrawalQuote) []domain.LedgerEntry {
	entries := []domain.LedgerEntry{{
		UserID:        req.UserID,
		Type:          domain.EntryWithdrawn,
		AmountMinor:   quote.PayableMinor,
		ReferenceType: domain.RefWithdrawal,
		ReferenceID:   req.ReferenceID(),
		Description:   fmt.Sprintf("Withdrawal #%d (%s)", req.ID, req.Method),
	}}
	if quote.CommissionMinor > 0 {
		entries = append(entries, domain.LedgerEntry{
			UserID:        req.UserID,
			Type:          domain.EntrySpent,
			AmountMinor:   quote.CommissionMinor,
			ReferenceType: domain.RefWithdrawalCommission,
			ReferenceID:   req.ReferenceID(),
			Description:   "Instant withdrawal commission",
			IsSystem:      true,
		})
	}
	return entries
}

func truncateMessage(s string) string {
	if len(s) > 500 {
		return s[:500]
	}
	return s
}
