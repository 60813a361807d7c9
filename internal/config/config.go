// Package config loads process settings from the environment.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Port     string `env:"PORT,default=8080" validate:"required,numeric"`
	GRPCPort string `env:"GRPC_PORT,default=9090" validate:"required,numeric"`

	DBDriver string `env:"DB_DRIVER,default=postgres" validate:"oneof=postgres sqlite"`
	DBDSN    string `env:"DB_DSN,required=true" validate:"required"`

	// AMQPURL empty means events are logged instead of published.
	AMQPURL      string `env:"AMQP_URL"`
	AMQPExchange string `env:"AMQP_EXCHANGE,default=chat.events" validate:"required"`

	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName  string `env:"SERVICE_NAME,default=chat-realtime" validate:"required"`
	Environment  string `env:"APP_ENV,default=development" validate:"required"`
	LogLevel     string `env:"LOG_LEVEL,default=info" validate:"oneof=debug info warn error"`
	DebugRoutes  bool   `env:"DEBUG_ROUTES,default=false"`

	WSSendBuffer     int           `env:"WS_SEND_BUFFER,default=256" validate:"gt=0"`
	WSPongWait       time.Duration `env:"WS_PONG_WAIT,default=60s" validate:"gt=0"`
	WSWriteWait      time.Duration `env:"WS_WRITE_WAIT,default=10s" validate:"gt=0"`
	WSMaxMessageSize int64         `env:"WS_MAX_MESSAGE_SIZE,default=65536" validate:"gt=0"`

	HealthCheckInterval time.Duration `env:"HEALTH_CHECK_INTERVAL,default=15s" validate:"gt=0"`
}

// Load reads .env files when present, then the environment.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load env file: %w", err)
	}
	return FromEnviron()
}

// FromEnviron builds a validated Config from the current environment.
func FromEnviron() (Config, error) {
	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// NewLogger returns a JSON logger at level. Unknown levels fall back to info.
func NewLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
}
