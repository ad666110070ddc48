// internal/workers/ai-conversation/llm-synthesis/config.go
package llmsynthesis

import "crm-assistant/internal/common/config"

// Config holds the decoding temperature of each model-backed answer type.
type Config struct {
	AggregateTemperature float64
	RecordTemperature    float64
	GeneralTemperature   float64
	MaxTokens            int
}

func LoadConfig(cfg *config.Config) *Config {
	return &Config{
		AggregateTemperature: cfg.LLM.Temperatures.Aggregate,
		RecordTemperature:    cfg.LLM.Temperatures.Record,
		GeneralTemperature:   cfg.LLM.Temperatures.General,
		MaxTokens:            cfg.LLM.MaxTokens,
	}
}
