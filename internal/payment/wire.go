//go:build wireinject
// +build wireinject

package payment

import (
	"github.com/google/wire"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/tair/course-payments/internal/payment/config"
	"github.com/tair/course-payments/internal/payment/domain"
	"github.com/tair/course-payments/internal/payment/handler"
	"github.com/tair/course-payments/internal/payment/metrics"
)

// InitializeHandler initializes payment handler with all dependencies
func InitializeHandler(
	db *gorm.DB,
	cfg *config.Config,
	redisClient *redis.Client,
	publisher domain.EventPublisher,
	m *metrics.Metrics,
) (*handler.PaymentHandler, error) {
	wire.Build(
		AllHandlersSet,
		handler.NewPaymentHandlerWithDI,
	)
	return nil, nil
}
