package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/cartsync/internal/cart"
	"github.com/vladislavdragonenkov/cartsync/internal/domain"
	"github.com/vladislavdragonenkov/cartsync/internal/messaging/kafka"
)

// EnvPrefix задаёт общий префикс переменных окружения сервиса.
const EnvPrefix = "CART_"

// StorageDriver выбирает реализацию key-value хранилища.
type StorageDriver string

const (
	StorageDriverMemory   StorageDriver = "memory"
	StorageDriverSQLite   StorageDriver = "sqlite"
	StorageDriverPostgres StorageDriver = "postgres"
	StorageDriverRedis    StorageDriver = "redis"
)

// Config описывает настройки запуска сервиса корзины.
type Config struct {
	HTTPAddr        string        `env:"HTTP_ADDR"`
	GRPCAddr        string        `env:"GRPC_ADDR"`
	MetricsAddr     string        `env:"METRICS_ADDR"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT"`

	StorageDriver       StorageDriver `env:"STORAGE_DRIVER"`
	SQLitePath          string        `env:"SQLITE_PATH"`
	PostgresDSN         string        `env:"POSTGRES_DSN"`
	PostgresAutoMigrate bool          `env:"POSTGRES_AUTO_MIGRATE"`
	RedisAddr           string        `env:"REDIS_ADDR"`

	Namespace         string        `env:"NAMESPACE"`
	MalformedSnapshot string        `env:"MALFORMED_SNAPSHOT"`
	WriteMaxAttempts  int           `env:"WRITE_MAX_ATTEMPTS"`
	WriteRetryDelay   time.Duration `env:"WRITE_RETRY_DELAY"`
	WriteDebounce     time.Duration `env:"WRITE_DEBOUNCE"`

	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"KAFKA_TOPIC"`

	OTelEndpoint string `env:"OTEL_ENDPOINT"`
	LogLevel     string `env:"LOG_LEVEL"`
}

// DefaultConfig возвращает конфигурацию для локального запуска.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:            ":8080",
		GRPCAddr:            ":50051",
		MetricsAddr:         ":9090",
		RequestTimeout:      5 * time.Second,
		ShutdownTimeout:     10 * time.Second,
		StorageDriver:       StorageDriverMemory,
		SQLitePath:          "cart.db",
		PostgresAutoMigrate: true,
		Namespace:           domain.DefaultNamespace,
		MalformedSnapshot:   string(cart.MalformedDiscard),
		WriteMaxAttempts:    3,
		WriteRetryDelay:     50 * time.Millisecond,
		KafkaTopic:          kafka.TopicCartSnapshots,
		LogLevel:            "info",
	}
}

// LoadConfig читает CART_* переменные поверх DefaultConfig.
func LoadConfig() (Config, error) {
	return loadConfig(env.Options{Prefix: EnvPrefix})
}

// LoadConfigFromMap читает конфигурацию из переданного окружения.
func LoadConfigFromMap(environment map[string]string) (Config, error) {
	return loadConfig(env.Options{Prefix: EnvPrefix, Environment: environment})
}

func loadConfig(opts env.Options) (Config, error) {
	cfg := DefaultConfig()
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	cfg.StorageDriver = StorageDriver(strings.ToLower(strings.TrimSpace(string(cfg.StorageDriver))))
	cfg.PostgresDSN = strings.TrimSpace(cfg.PostgresDSN)
	cfg.RedisAddr = strings.TrimSpace(cfg.RedisAddr)
	cfg.KafkaBrokers = normalizeBrokers(cfg.KafkaBrokers)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate проверяет согласованность настроек.
func (c Config) Validate() error {
	var errs []error

	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			errs = append(errs, errors.New("sqlite path is required for sqlite storage"))
		}
	case StorageDriverPostgres:
		if c.PostgresDSN == "" {
			errs = append(errs, errors.New("postgres dsn is required for postgres storage"))
		}
	case StorageDriverRedis:
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("redis address is required for redis storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported storage driver %q", c.StorageDriver))
	}

	if _, err := cart.ParseMalformedSnapshotPolicy(c.MalformedSnapshot); err != nil {
		errs = append(errs, err)
	}
	if c.WriteMaxAttempts <= 0 {
		errs = append(errs, errors.New("write max attempts must be > 0"))
	}
	if c.WriteRetryDelay < 0 || c.WriteDebounce < 0 {
		errs = append(errs, errors.New("write delays must be >= 0"))
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("invalid log level: %w", err))
	}

	return errors.Join(errs...)
}

// CartOptions переводит настройки в опции cart.Store.
func (c Config) CartOptions() []cart.Option {
	policy, err := cart.ParseMalformedSnapshotPolicy(c.MalformedSnapshot)
	if err != nil {
		policy = cart.MalformedDiscard
	}
	return []cart.Option{
		cart.WithNamespace(c.Namespace),
		cart.WithMalformedSnapshotPolicy(policy),
		cart.WithMaxWriteAttempts(c.WriteMaxAttempts),
		cart.WithWriteRetryDelay(c.WriteRetryDelay),
		cart.WithWriteDebounce(c.WriteDebounce),
	}
}

func normalizeBrokers(brokers []string) []string {
	out := brokers[:0]
	for _, b := range brokers {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
