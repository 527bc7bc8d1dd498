package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// ClientConfig describes how the chat client reaches the remote service.
type ClientConfig struct {
	ServerURL string        `mapstructure:"url"`
	AppID     string        `mapstructure:"appId"`
	AuthToken string        `mapstructure:"authToken"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// LoadClient reads configs/config.yaml, overridable through VIBECHAT_*
// environment variables. A missing file is fine; missing required values are
// a fatal configuration error for the session.
func LoadClient() (*ClientConfig, error) {
	v := viper.New()
	v.AddConfigPath("./configs")
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix("VIBECHAT")
	v.AutomaticEnv()
	_ = v.BindEnv("server.url", "VIBECHAT_SERVER_URL")
	_ = v.BindEnv("server.appId", "VIBECHAT_APP_ID")
	_ = v.BindEnv("server.authToken", "VIBECHAT_AUTH_TOKEN")
	_ = v.BindEnv("server.timeout", "VIBECHAT_TIMEOUT")

	v.SetDefault("server.url", "http://localhost:8080")
	v.SetDefault("server.appId", "vibechat-dev")
	v.SetDefault("server.authToken", "")
	v.SetDefault("server.timeout", "10s")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg ClientConfig
	if err := v.UnmarshalKey("server", &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if cfg.ServerURL == "" {
		return nil, errors.New("server.url is required (set VIBECHAT_SERVER_URL or configs/config.yaml)")
	}
	if cfg.AppID == "" {
		return nil, errors.New("server.appId is required (set VIBECHAT_APP_ID or configs/config.yaml)")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	return &cfg, nil
}
