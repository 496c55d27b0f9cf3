package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/viper"
)

// Gateway providers.
const (
	GatewayMock      = "mock"
	GatewayShurjoPay = "shurjopay"
	GatewayStripe    = "stripe"
)

type Config struct {
	Port     string `mapstructure:"PORT" validate:"required"`
	GinMode  string `mapstructure:"GIN_MODE"`
	LogLevel string `mapstructure:"LOG_LEVEL" validate:"oneof=debug info warn error"`

	Database Database `mapstructure:",squash"`
	Auth     Auth     `mapstructure:",squash"`
	Payment  Payment  `mapstructure:",squash"`
	Worker   Worker   `mapstructure:",squash"`
	Kafka    Kafka    `mapstructure:",squash"`

	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`
}

type Database struct {
	Host     string `mapstructure:"BLUEPRINT_DB_HOST" validate:"required"`
	Port     string `mapstructure:"BLUEPRINT_DB_PORT" validate:"required"`
	Name     string `mapstructure:"BLUEPRINT_DB_DATABASE" validate:"required"`
	Username string `mapstructure:"BLUEPRINT_DB_USERNAME" validate:"required"`
	Password string `mapstructure:"BLUEPRINT_DB_PASSWORD"`
	Schema   string `mapstructure:"BLUEPRINT_DB_SCHEMA"`
}

func (d Database) DSN() string {
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", d.Username, d.Password, d.Host, d.Port, d.Name)
	if d.Schema != "" {
		dsn += "&search_path=" + d.Schema
	}
	return dsn
}

type Auth struct {
	AccessSecret string `mapstructure:"JWT_ACCESS_SECRET" validate:"required"`
}

type Payment struct {
	Provider string        `mapstructure:"PAYMENT_PROVIDER" validate:"oneof=mock shurjopay stripe"`
	Currency string        `mapstructure:"PAYMENT_CURRENCY" validate:"required"`
	Timeout  time.Duration `mapstructure:"PAYMENT_GATEWAY_TIMEOUT" validate:"gt=0"`

	SPEndpoint  string `mapstructure:"SP_ENDPOINT" validate:"required_if=Provider shurjopay"`
	SPUsername  string `mapstructure:"SP_USERNAME" validate:"required_if=Provider shurjopay"`
	SPPassword  string `mapstructure:"SP_PASSWORD" validate:"required_if=Provider shurjopay"`
	SPPrefix    string `mapstructure:"SP_PREFIX" validate:"required_if=Provider shurjopay"`
	SPReturnURL string `mapstructure:"SP_RETURN_URL" validate:"required_if=Provider shurjopay"`

	StripeKey        string `mapstructure:"STRIPE_SECRET_KEY" validate:"required_if=Provider stripe"`
	StripeSuccessURL string `mapstructure:"STRIPE_SUCCESS_URL" validate:"required_if=Provider stripe"`
	StripeCancelURL  string `mapstructure:"STRIPE_CANCEL_URL" validate:"required_if=Provider stripe"`
}

type Worker struct {
	Interval   time.Duration `mapstructure:"RECONCILE_INTERVAL" validate:"gt=0"`
	StuckAfter time.Duration `mapstructure:"RECONCILE_STUCK_AFTER" validate:"gte=0"`
	BatchSize  int           `mapstructure:"RECONCILE_BATCH_SIZE" validate:"gt=0"`
}

type Kafka struct {
	Brokers []string `mapstructure:"KAFKA_BROKERS"`
	Topic   string   `mapstructure:"KAFKA_ORDER_TOPIC"`
}

func (k Kafka) Enabled() bool {
	return len(k.Brokers) > 0
}

var defaults = map[string]any{
	"PORT":                    "8080",
	"GIN_MODE":                "debug",
	"LOG_LEVEL":               "info",
	"BLUEPRINT_DB_HOST":       "localhost",
	"BLUEPRINT_DB_PORT":       "5432",
	"BLUEPRINT_DB_DATABASE":   "",
	"BLUEPRINT_DB_USERNAME":   "",
	"BLUEPRINT_DB_PASSWORD":   "",
	"BLUEPRINT_DB_SCHEMA":     "public",
	"JWT_ACCESS_SECRET":       "",
	"PAYMENT_PROVIDER":        GatewayMock,
	"PAYMENT_CURRENCY":        "BDT",
	"PAYMENT_GATEWAY_TIMEOUT": 10 * time.Second,
	"SP_ENDPOINT":             "",
	"SP_USERNAME":             "",
	"SP_PASSWORD":             "",
	"SP_PREFIX":               "",
	"SP_RETURN_URL":           "",
	"STRIPE_SECRET_KEY":       "",
	"STRIPE_SUCCESS_URL":      "",
	"STRIPE_CANCEL_URL":       "",
	"RECONCILE_INTERVAL":      time.Minute,
	"RECONCILE_STUCK_AFTER":   5 * time.Minute,
	"RECONCILE_BATCH_SIZE":    50,
	"KAFKA_BROKERS":           "",
	"KAFKA_ORDER_TOPIC":       "storefront.orders",
	"CORS_ORIGINS":            "*",
}

// Load reads the environment (and a .env file, when present) into a Config.
func Load() (*Config, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.AutomaticEnv()
	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Kafka.Brokers = splitList(v.GetString("KAFKA_BROKERS"))
	cfg.CORSOrigins = splitList(v.GetString("CORS_ORIGINS"))

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func splitList(csv string) []string {
	var out []string
	for _, s := range strings.Split(csv, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
