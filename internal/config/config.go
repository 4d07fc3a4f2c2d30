package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type (
	// Server holds configuration for the server binary.
	Server struct {
		ListenAddr string        `env:"RELAY_LISTEN_ADDR" envDefault:"localhost:9090"`
		RedisAddr  string        `env:"RELAY_REDIS_ADDR" envDefault:"localhost:6379"`
		MongoURI   string        `env:"RELAY_MONGO_URI" envDefault:"mongodb://localhost:27017"`
		MongoDB    string        `env:"RELAY_MONGO_DB" envDefault:"relaychat"`
		JWTSecret  string        `env:"RELAY_JWT_SECRET" envDefault:"dev-only-secret"`
		TokenTTL   time.Duration `env:"RELAY_TOKEN_TTL" envDefault:"24h"`
		Debug      bool          `env:"RELAY_DEBUG" envDefault:"false"`
	}

	// Client holds configuration for the client binary.
	Client struct {
		ServerHost string `env:"RELAY_SERVER_HOST" envDefault:"localhost:9090"`
		Debug      bool   `env:"RELAY_DEBUG" envDefault:"false"`
	}
)

func LoadServer() (*Server, error) {
	var cfg Server
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return &cfg, nil
}

func LoadClient() (*Client, error) {
	var cfg Client
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return &cfg, nil
}
