package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/tair/course-payments/pkg/database"
	"github.com/tair/course-payments/pkg/tracing"
)

// Config is the payment service configuration
type Config struct {
	ServiceName string
	Environment string
	LogLevel    string
	HTTPPort    string

	Database database.Config
	Tracing  tracing.Config
	Redis    RedisConfig
	Kafka    KafkaConfig
	Gateway  GatewayConfig
	Auth     AuthConfig
	Business BusinessConfig
}

type RedisConfig struct {
	Addr           string
	Password       string
	DB             int
	IdempotencyTTL time.Duration

	// RateLimitRequests caps money-moving requests per user; 0 disables
	RateLimitRequests int
	RateLimitWindow   time.Duration
}

type KafkaConfig struct {
	Brokers       []string
	ConsumerGroup string
	// ConsumeGatewayEvents enables the gateway-event relay consumer
	ConsumeGatewayEvents bool
}

type GatewayConfig struct {
	BaseURL   string
	ShopID    string
	SecretKey string
	ReturnURL string
	Timeout   time.Duration

	BreakerMaxFailures int
	BreakerTimeout     time.Duration
}

type AuthConfig struct {
	JWTSecret    string
	WebhookToken string
}

// BusinessConfig holds money rules; all amounts are minor units
type BusinessConfig struct {
	Currency                    string
	MinPaymentMinor             int64
	MinWithdrawalMinor          int64
	InstantWithdrawalCommission int64
	DefaultReferralCommission   int64
	ChargeKeyWindow             time.Duration
}

// IsDevelopment reports whether pretty logging should be used
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("otel_service_name", "payment-service")
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("http_port", "8083")

	v.SetDefault("db_host", "localhost")
	v.SetDefault("db_port", "5432")
	v.SetDefault("db_user", "postgres")
	v.SetDefault("db_password", "postgres")
	v.SetDefault("db_name", "paymentdb")
	v.SetDefault("db_sslmode", "disable")
	v.SetDefault("db_max_open_conns", 25)
	v.SetDefault("db_max_idle_conns", 5)
	v.SetDefault("db_conn_max_lifetime", "5m")

	v.SetDefault("jaeger_endpoint", "http://localhost:14268/api/traces")
	v.SetDefault("trace_sample_ratio", 1.0)
	v.SetDefault("service_version", "1.0.0")

	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)
	v.SetDefault("redis_idempotency_ttl", "24h")
	v.SetDefault("rate_limit_requests", 30)
	v.SetDefault("rate_limit_window", "1m")

	v.SetDefault("kafka_brokers", "localhost:9092")
	v.SetDefault("kafka_consumer_group", "payment-service")
	v.SetDefault("kafka_consume_gateway_events", false)

	v.SetDefault("gateway_base_url", "https://api.yookassa.ru/v3")
	v.SetDefault("gateway_shop_id", "")
	v.SetDefault("gateway_secret_key", "")
	v.SetDefault("gateway_return_url", "http://localhost:3000/payments/return")
	v.SetDefault("gateway_timeout", "15s")
	v.SetDefault("gateway_breaker_max_failures", 5)
	v.SetDefault("gateway_breaker_timeout", "30s")

	v.SetDefault("jwt_secret", "change-me")
	v.SetDefault("webhook_token", "")

	v.SetDefault("currency", "RUB")
	v.SetDefault("min_payment_minor", 100)
	v.SetDefault("min_withdrawal_minor", 50000)
	v.SetDefault("instant_withdrawal_commission_percent", 3)
	v.SetDefault("default_referral_commission_percent", 10)
	v.SetDefault("charge_key_window", "10m")
}

// Load reads .env (if present) and the environment
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	return build(v), nil
}

func build(v *viper.Viper) *Config {
	return &Config{
		ServiceName: v.GetString("otel_service_name"),
		Environment: v.GetString("environment"),
		LogLevel:    v.GetString("log_level"),
		HTTPPort:    v.GetString("http_port"),
		Database: database.Config{
			Host:            v.GetString("db_host"),
			Port:            v.GetString("db_port"),
			User:            v.GetString("db_user"),
			Password:        v.GetString("db_password"),
			DBName:          v.GetString("db_name"),
			SSLMode:         v.GetString("db_sslmode"),
			MaxOpenConns:    v.GetInt("db_max_open_conns"),
			MaxIdleConns:    v.GetInt("db_max_idle_conns"),
			ConnMaxLifetime: v.GetDuration("db_conn_max_lifetime"),
		},
		Tracing: tracing.Config{
			ServiceName:    v.GetString("otel_service_name"),
			ServiceVersion: v.GetString("service_version"),
			JaegerEndpoint: v.GetString("jaeger_endpoint"),
			SampleRatio:    v.GetFloat64("trace_sample_ratio"),
		},
		Redis: RedisConfig{
			Addr:           v.GetString("redis_addr"),
			Password:       v.GetString("redis_password"),
			DB:             v.GetInt("redis_db"),
			IdempotencyTTL: v.GetDuration("redis_idempotency_ttl"),

			RateLimitRequests: v.GetInt("rate_limit_requests"),
			RateLimitWindow:   v.GetDuration("rate_limit_window"),
		},
		Kafka: KafkaConfig{
			Brokers:              splitList(v.GetString("kafka_brokers")),
			ConsumerGroup:        v.GetString("kafka_consumer_group"),
			ConsumeGatewayEvents: v.GetBool("kafka_consume_gateway_events"),
		},
		Gateway: GatewayConfig{
			BaseURL:            v.GetString("gateway_base_url"),
			ShopID:             v.GetString("gateway_shop_id"),
			SecretKey:          v.GetString("gateway_secret_key"),
			ReturnURL:          v.GetString("gateway_return_url"),
			Timeout:            v.GetDuration("gateway_timeout"),
			BreakerMaxFailures: v.GetInt("gateway_breaker_max_failures"),
			BreakerTimeout:     v.GetDuration("gateway_breaker_timeout"),
		},
		Auth: AuthConfig{
			JWTSecret:    v.GetString("jwt_secret"),
			WebhookToken: v.GetString("webhook_token"),
		},
		Business: BusinessConfig{
			Currency:                    strings.ToUpper(v.GetString("currency")),
			MinPaymentMinor:             v.GetInt64("min_payment_minor"),
			MinWithdrawalMinor:          v.GetInt64("min_withdrawal_minor"),
			InstantWithdrawalCommission: v.GetInt64("instant_withdrawal_commission_percent"),
			DefaultReferralCommission:   v.GetInt64("default_referral_commission_percent"),
			ChargeKeyWindow:             v.GetDuration("charge_key_window"),
		},
	}
}

// DefaultBusiness returns the business rules with their default values
func DefaultBusiness() BusinessConfig {
	v := viper.New()
	setDefaults(v)
	return build(v).Business
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
