// internal/workers/ai-conversation/parse-user-intent/config.go
package parseuserintent

import (
	"crm-assistant/internal/common/config"
)

type Config struct {
	Temperature float64
	MaxTokens   int
}

func LoadConfig(cfg *config.Config) *Config {
	return &Config{
		Temperature: cfg.LLM.Temperatures.Extraction,
		MaxTokens:   cfg.LLM.MaxTokens,
	}
}
