package repository

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tair/course-payments/internal/payment/domain"
)

var tracer = otel.Tracer("payment-repository")

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// LedgerRepositoryWithTracing wraps a LedgerRepository with spans
type LedgerRepositoryWithTracing struct {
	next domain.LedgerRepository
}

// NewLedgerRepositoryWithTracing creates a new repository with tracing
func NewLedgerRepositoryWithTracing(next domain.LedgerRepository) *LedgerRepositoryWithTracing {
	return &LedgerRepositoryWithTracing{next: next}
}

// Credit with tracing
func (r *LedgerRepositoryWithTracing) Credit(ctx context.Context, userID uint, amount int64, entries ...domain.LedgerEntry) (*domain.Balance, error) {
	ctx, span := tracer.Start(ctx, "repository.LedgerCredit",
		trace.WithAttributes(
			attribute.Int("user.id", int(userID)),
			attribute.Int64("ledger.amount", amount),
			attribute.Int("ledger.entries", len(entries)),
		),
	)
	bal, err := r.next.Credit(ctx, userID, amount, entries...)
	if err == nil {
		span.SetAttributes(attribute.Int64("ledger.balance", bal.Balance))
	}
	endSpan(span, err)
	return bal, err
}

// Debit with tracing
func (r *LedgerRepositoryWithTracing) Debit(ctx context.Context, userID uint, amount int64, entries ...domain.LedgerEntry) (*domain.Balance, error) {
	ctx, span := tracer.Start(ctx, "repository.LedgerDebit",
		trace.WithAttributes(
			attribute.Int("user.id", int(userID)),
			attribute.Int64("ledger.amount", amount),
			attribute.Int("ledger.entries", len(entries)),
		),
	)
	bal, err := r.next.Debit(ctx, userID, amount, entries...)
	if err == nil {
		span.SetAttributes(attribute.Int64("ledger.balance", bal.Balance))
	}
	endSpan(span, err)
	return bal, err
}

// GetBalance with tracing
func (r *LedgerRepositoryWithTracing) GetBalance(ctx context.Context, userID uint) (*domain.Balance, error) {
	ctx, span := tracer.Start(ctx, "repository.GetBalance",
		trace.WithAttributes(attribute.Int("user.id", int(userID))),
	)
	bal, err := r.next.GetBalance(ctx, userID)
	endSpan(span, err)
	return bal, err
}

// ListEntries with tracing
func (r *LedgerRepositoryWithTracing) ListEntries(ctx context.Context, userID uint, includeSystem bool, limit, offset int) ([]domain.LedgerEntry, error) {
	ctx, span := tracer.Start(ctx, "repository.ListEntries",
		trace.WithAttributes(
			attribute.Int("user.id", int(userID)),
			attribute.Int("query.limit", limit),
			attribute.Int("query.offset", offset),
		),
	)
	entries, err := r.next.ListEntries(ctx, userID, includeSystem, limit, offset)
	if err == nil {
		span.SetAttributes(attribute.Int("result.count", len(entries)))
	}
	endSpan(span, err)
	return entries, err
}

// DerivedBalance with tracing
func (r *LedgerRepositoryWithTracing) DerivedBalance(ctx context.Context, userID uint) (int64, error) {
	ctx, span := tracer.Start(ctx, "repository.DerivedBalance",
		trace.WithAttributes(attribute.Int("user.id", int(userID))),
	)
	sum, err := r.next.DerivedBalance(ctx, userID)
	endSpan(span, err)
	return sum, err
}

// PaymentRepositoryWithTracing wraps a PaymentRepository with spans
type PaymentRepositoryWithTracing struct {
	domain.PaymentRepository
}

// NewPaymentRepositoryWithTracing creates a new repository with tracing
func NewPaymentRepositoryWithTracing(next domain.PaymentRepository) *PaymentRepositoryWithTracing {
	return &PaymentRepositoryWithTracing{PaymentRepository: next}
}

// Create with tracing
func (r *PaymentRepositoryWithTracing) Create(ctx context.Context, payment *domain.Payment) error {
	ctx, span := tracer.Start(ctx, "repository.CreatePayment",
		trace.WithAttributes(
			attribute.Int("user.id", int(payment.UserID)),
			attribute.String("payment.purpose", string(payment.PurposeKind)),
			attribute.Int64("payment.amount", payment.AmountMinor),
		),
	)
	err := r.PaymentRepository.Create(ctx, payment)
	if err == nil {
		span.SetAttributes(attribute.Int("payment.id", int(payment.ID)))
	}
	endSpan(span, err)
	return err
}

// FindByExternalID with tracing
func (r *PaymentRepositoryWithTracing) FindByExternalID(ctx context.Context, externalID string) (*domain.Payment, error) {
	ctx, span := tracer.Start(ctx, "repository.FindPaymentByExternalID",
		trace.WithAttributes(attribute.String("payment.external_id", externalID)),
	)
	p, err := r.PaymentRepository.FindByExternalID(ctx, externalID)
	endSpan(span, err)
	return p, err
}

// Transition with tracing
func (r *PaymentRepositoryWithTracing) Transition(ctx context.Context, id uint, from, to domain.PaymentStatus, at time.Time) error {
	ctx, span := tracer.Start(ctx, "repository.TransitionPayment",
		trace.WithAttributes(
			attribute.Int("payment.id", int(id)),
			attribute.String("payment.from", string(from)),
			attribute.String("payment.to", string(to)),
		),
	)
	err := r.PaymentRepository.Transition(ctx, id, from, to, at)
	endSpan(span, err)
	return err
}

// WithdrawalRepositoryWithTracing wraps a WithdrawalRepository with spans
type WithdrawalRepositoryWithTracing struct {
	domain.WithdrawalRepository
}

// NewWithdrawalRepositoryWithTracing creates a new repository with tracing
func NewWithdrawalRepositoryWithTracing(next domain.WithdrawalRepository) *WithdrawalRepositoryWithTracing {
	return &WithdrawalRepositoryWithTracing{WithdrawalRepository: next}
}

// Transition with tracing
func (r *WithdrawalRepositoryWithTracing) Transition(ctx context.Context, id uint, from, to domain.WithdrawalStatus, upd domain.WithdrawalUpdate) error {
	ctx, span := tracer.Start(ctx, "repository.TransitionWithdrawal",
		trace.WithAttributes(
			attribute.Int("withdrawal.id", int(id)),
			attribute.String("withdrawal.from", string(from)),
			attribute.String("withdrawal.to", string(to)),
		),
	)
	err := r.WithdrawalRepository.Transition(ctx, id, from, to, upd)
	endSpan(span, err)
	return err
}
