// Package config содержит логику чтения конфигурации сервиса платёжных ссылок.
package config

import (
	"flag"
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config содержит параметры конфигурации сервиса. Реквизиты терминала и
// адреса внешних систем всегда приходят извне и нигде не зашиты в код.
type Config struct {
	RunAddress  string `env:"RUN_ADDRESS"`
	DatabaseURI string `env:"DATABASE_URI"`

	GatewayAddress   string `env:"GATEWAY_ADDRESS"`
	TerminalKey      string `env:"TERMINAL_KEY"`
	TerminalPassword string `env:"TERMINAL_PASSWORD"`
	// LegacyKeySort включает регистронезависимую сортировку ключей при
	// подписи: старое соглашение некоторых версий API банка.
	LegacyKeySort bool `env:"LEGACY_KEY_SORT"`

	AdminAPIKey string `env:"ADMIN_API_KEY"`

	AdminChatID        int64  `env:"ADMIN_CHAT_ID"`
	TelegramBotToken   string `env:"TELEGRAM_BOT_TOKEN"`
	TelegramAPIAddress string `env:"TELEGRAM_API_ADDRESS"`

	DadataAPIKey string `env:"DADATA_API_KEY"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных
// окружения; окружение имеет приоритет.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envGatewayAddress := cfg.GatewayAddress

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.GatewayAddress, "g", "", "acquiring gateway address")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envGatewayAddress != "" {
		cfg.GatewayAddress = envGatewayAddress
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}

	return cfg, nil
}
