package config

import (
	"fmt"
	"os"
	"strings"
)

// Config aggregates chatd's settings.
type Config struct {
	Server ServerConfig
	Store  StoreConfig
	Auth   AuthConfig
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr string
}

// StoreConfig describes the document store.
type StoreConfig struct {
	Path string
}

// AuthConfig describes token-based sign-in. An empty secret disables it;
// every session is then anonymous.
type AuthConfig struct {
	JWTSecret string
}

// Load reads chatd configuration from the environment.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server: server,
		Store: StoreConfig{
			Path: getEnvOrDefault("CHATD_DB", "chatd.db"),
		},
		Auth: AuthConfig{
			JWTSecret: strings.TrimSpace(os.Getenv("CHATD_JWT_SECRET")),
		},
	}, nil
}

// loadServerConfig parses the listen address.
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// Allow passing ":8080" or "127.0.0.1:8080" directly.
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}
