package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Server holds process settings for decylo serve, read from the environment.
type Server struct {
	Addr                  string        `env:"DECYLO_ADDR" envDefault:"127.0.0.1:8080"`
	BasePath              string        `env:"DECYLO_BASE_PATH" envDefault:"/v0"`
	JWTSecret             string        `env:"DECYLO_JWT_SECRET"`
	OTelEndpoint          string        `env:"DECYLO_OTEL_ENDPOINT"`
	AllowLegacyUserHeader bool          `env:"DECYLO_ALLOW_LEGACY_USER_HEADER" envDefault:"false"`
	AllowDevLogin         bool          `env:"DECYLO_ALLOW_DEV_LOGIN" envDefault:"false"`
	TokenTTL              time.Duration `env:"DECYLO_TOKEN_TTL" envDefault:"24h"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// ServerFromEnv parses Server settings.
func ServerFromEnv() (Server, error) {
	var s Server
	if err := ParseEnv(&s); err != nil {
		return Server{}, err
	}
	return s, nil
}
