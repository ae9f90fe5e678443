package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config is built once at process start and handed to the components that
// need it. Nothing in the service reads the environment after Load returns.
type Config struct {
	App       AppConfig
	HTTP      HTTPConfig
	DB        DBConfig
	Kafka     KafkaConfig
	Telemetry TelemetryConfig
}

type AppConfig struct {
	ServiceName string `envconfig:"SERVICE_NAME" default:"storefront"`
	Version     string `envconfig:"SERVICE_VERSION" default:"0.1.0"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
}

type HTTPConfig struct {
	Port            string        `envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `envconfig:"HTTP_WRITE_TIMEOUT" default:"10s"`
	ShutdownTimeout time.Duration `envconfig:"HTTP_SHUTDOWN_TIMEOUT" default:"10s"`
}

type DBConfig struct {
	URL string `envconfig:"POSTGRES_URL"`

	Host     string `envconfig:"DB_HOST"`
	Port     int    `envconfig:"DB_PORT" default:"5432"`
	User     string `envconfig:"DB_USER"`
	Password string `envconfig:"DB_PASSWORD"`
	Name     string `envconfig:"DB_NAME"`
	SSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"DB_CONN_MAX_LIFETIME" default:"1h"`

	TxMaxAttempts int  `envconfig:"DB_TX_MAX_ATTEMPTS" default:"3"`
	AutoMigrate   bool `envconfig:"DB_AUTO_MIGRATE" default:"false"`
}

type KafkaConfig struct {
	Brokers           []string `envconfig:"KAFKA_BROKERS"`
	OrderCreatedTopic string   `envconfig:"KAFKA_ORDER_CREATED_TOPIC" default:"order.created"`
	ConsumerGroup     string   `envconfig:"KAFKA_CONSUMER_GROUP" default:"notification-worker"`
}

type TelemetryConfig struct {
	TracingEnabled bool   `envconfig:"OTEL_TRACING_ENABLED" default:"true"`
	OTLPEndpoint   string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT" default:"localhost:4317"`
	// SampleRatio applies to root spans only; requests arriving with a
	// sampled parent stay sampled.
	SampleRatio float64 `envconfig:"OTEL_TRACES_SAMPLE_RATIO" default:"1"`
}

// WorkerConfig is what the notification worker reads. The worker has no
// database.
type WorkerConfig struct {
	App             AppConfig
	Kafka           KafkaConfig
	Telemetry       TelemetryConfig
	EmailServiceURL string `envconfig:"EMAIL_SERVICE_URL" required:"true"`
}

// Load reads an optional .env file and then the process environment.
func Load(envFiles ...string) (*Config, error) {
	var cfg Config
	if err := process(&cfg, envFiles); err != nil {
		return nil, err
	}
	if err := cfg.DB.ensureURL(); err != nil {
		return nil, err
	}
	if cfg.DB.TxMaxAttempts < 1 {
		cfg.DB.TxMaxAttempts = 1
	}
	return &cfg, nil
}

func LoadWorker(envFiles ...string) (*WorkerConfig, error) {
	var cfg WorkerConfig
	if err := process(&cfg, envFiles); err != nil {
		return nil, err
	}
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required")
	}
	return &cfg, nil
}

func process(dest any, envFiles []string) error {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading env file: %w", err)
	}

	if err := envconfig.Process("", dest); err != nil {
		return fmt.Errorf("parsing config: %w", err)
	}
	return nil
}

// ensureURL builds the connection URL from the discrete DB_* variables when
// POSTGRES_URL is not set.
func (c *DBConfig) ensureURL() error {
	if c.URL != "" {
		return nil
	}
	if c.Host == "" || c.User == "" || c.Name == "" {
		return errors.New("POSTGRES_URL or DB_HOST, DB_USER and DB_NAME are required")
	}

	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   c.Host + ":" + strconv.Itoa(c.Port),
		Path:   "/" + c.Name,
	}
	q := u.Query()
	q.Set("sslmode", c.SSLMode)
	u.RawQuery = q.Encode()
	c.URL = u.String()
	return nil
}

// KafkaEnabled reports whether order events should be published.
func (c *Config) KafkaEnabled() bool {
	return len(c.Kafka.Brokers) > 0
}

// ParseLevel maps LOG_LEVEL to a slog level, defaulting to info.
func ParseLevel(value string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
