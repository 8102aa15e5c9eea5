package centrifugo

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config holds the configuration of the Centrifugo gRPC API client.
type Config struct {
	Address string `env:"CENTRIFUGO_ADDRESS" envDefault:"http://localhost:10000"` // gRPC API endpoint, http:// or https://
	APIKey  string `env:"CENTRIFUGO_API_KEY"`                                     // Optional grpc_api_key sent as "authorization: apikey <key>"
}

// LoadConfig loads the client configuration from environment variables.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse centrifugo config: %w", err)
	}
	return cfg, nil
}
