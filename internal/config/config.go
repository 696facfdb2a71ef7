package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
)

type Config struct {
	Port                 int           `env:"APP_PORT,default=8084"`
	DBDriver             string        `env:"DB_DRIVER,default=mysql"`
	DBDSN                string        `env:"DB_DSN,required=true"`
	JWTSecret            string        `env:"JWT_SECRET,required=true"`
	TokenTTL             time.Duration `env:"TOKEN_TTL,default=168h"`
	WSInsecureSkipVerify bool          `env:"WS_INSECURE_SKIP_VERIFY,default=false"`
	SocketBufferSize     int           `env:"SOCKET_BUFFER_SIZE,default=64"`
	LogLevel             string        `env:"LOG_LEVEL,default=INFO"`
}

// Load reads an optional .env file, then the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	if cfg.DBDSN == "" || cfg.JWTSecret == "" {
		return Config{}, errors.New("config error: DB_DSN and JWT_SECRET must not be empty")
	}
	return cfg, nil
}
