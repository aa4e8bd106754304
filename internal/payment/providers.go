package payment

import (
	"github.com/google/wire"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/tair/course-payments/internal/payment/config"
	"github.com/tair/course-payments/internal/payment/domain"
	"github.com/tair/course-payments/internal/payment/gateway"
	"github.com/tair/course-payments/internal/payment/handler"
	"github.com/tair/course-payments/internal/payment/metrics"
	"github.com/tair/course-payments/internal/payment/repository"
	"github.com/tair/course-payments/internal/payment/usecase/command"
	"github.com/tair/course-payments/internal/payment/usecase/query"
	"github.com/tair/course-payments/pkg/auth"
)

// ProvideRepositories provides the repository bundle bound to db
func ProvideRepositories(db *gorm.DB) domain.Repositories {
	return repository.NewGormRepositories(db)
}

// ProvideGateway provides the payment gateway client
func ProvideGateway(cfg *config.Config, m *metrics.Metrics) domain.Gateway {
	return gateway.NewClient(cfg.Gateway, m)
}

// ProvideIdempotencyGuard puts the Redis cache in front of the durable key table
func ProvideIdempotencyGuard(client *redis.Client, repos domain.Repositories, cfg *config.Config) domain.IdempotencyGuard {
	return repository.NewRedisGuard(client, repos.Idempotency, cfg.Redis.IdempotencyTTL)
}

func ProvideBusinessRules(cfg *config.Config) config.BusinessConfig {
	return cfg.Business
}

// Command Handlers Providers
func ProvidePromocodeEvaluator(repos domain.Repositories, rules config.BusinessConfig) *command.PromocodeEvaluator {
	return command.NewPromocodeEvaluator(repos, rules.DefaultReferralCommission)
}

func ProvideHandleGatewayEventHandler(
	repos domain.Repositories,
	guard domain.IdempotencyGuard,
	effects *command.PaymentEffects,
	payouts *command.WithdrawalManager,
	publisher domain.EventPublisher,
	m *metrics.Metrics,
	rules config.BusinessConfig,
) *command.HandleGatewayEventHandler {
	return command.NewHandleGatewayEventHandler(repos, guard, effects, payouts, publisher, m, rules.Currency)
}

func ProvideCreatePromocodeHandler(repos domain.Repositories) *command.CreatePromocodeHandler {
	return command.NewCreatePromocodeHandler(repos.Promocodes)
}

// Query Handlers Providers
func ProvideGetPaymentHandler(repos domain.Repositories) *query.GetPaymentHandler {
	return query.NewGetPaymentHandler(repos.Payments)
}

func ProvideListPaymentsHandler(repos domain.Repositories) *query.ListPaymentsHandler {
	return query.NewListPaymentsHandler(repos.Payments)
}

func ProvideGetMyPaymentsHandler(repos domain.Repositories) *query.GetMyPaymentsHandler {
	return query.NewGetMyPaymentsHandler(repos.Payments)
}

func ProvideGetBalanceHandler(repos domain.Repositories) *query.GetBalanceHandler {
	return query.NewGetBalanceHandler(repos.Ledger)
}

func ProvideListTransactionsHandler(repos domain.Repositories) *query.ListTransactionsHandler {
	return query.NewListTransactionsHandler(repos.Ledger)
}

func ProvideListWithdrawalsHandler(repos domain.Repositories) *query.ListWithdrawalsHandler {
	return query.NewListWithdrawalsHandler(repos.Withdrawals)
}

func ProvideGetReferralStatsHandler(repos domain.Repositories) *query.GetReferralStatsHandler {
	return query.NewGetReferralStatsHandler(repos.Referrals)
}

// ProvideMiddlewareConfig provides the HTTP middleware configuration
func ProvideMiddlewareConfig(cfg *config.Config, redisClient *redis.Client, m *metrics.Metrics) handler.MiddlewareConfig {
	mw := handler.DefaultMiddlewareConfig(auth.NewValidator(cfg.Auth.JWTSecret), cfg.Auth.WebhookToken, m)
	mw.RateLimiter = handler.NewRateLimiter(redisClient, cfg.Redis.RateLimitRequests, cfg.Redis.RateLimitWindow)
	return mw
}

// Wire sets
var InfrastructureSet = wire.NewSet(
	ProvideRepositories,
	ProvideGateway,
	ProvideIdempotencyGuard,
	ProvideBusinessRules,
)

var CommandHandlerSet = wire.NewSet(
	command.NewReferralEngine,
	command.NewPaymentEffects,
	ProvidePromocodeEvaluator,
	command.NewCreatePaymentHandler,
	command.NewWithdrawalManager,
	ProvideHandleGatewayEventHandler,
	command.NewUpdateStatusHandler,
	command.NewAttachReferralHandler,
	ProvideCreatePromocodeHandler,
)

var QueryHandlerSet = wire.NewSet(
	ProvideGetPaymentHandler,
	ProvideListPaymentsHandler,
	ProvideGetMyPaymentsHandler,
	ProvideGetBalanceHandler,
	ProvideListTransactionsHandler,
	ProvideListWithdrawalsHandler,
	ProvideGetReferralStatsHandler,
)

var AllHandlersSet = wire.NewSet(
	InfrastructureSet,
	CommandHandlerSet,
	QueryHandlerSet,
	ProvideMiddlewareConfig,
)
