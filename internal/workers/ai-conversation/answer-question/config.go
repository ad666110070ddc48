// internal/workers/ai-conversation/answer-question/config.go
package answerquestion

import (
	"time"

	"crm-assistant/internal/common/config"
)

type Config struct {
	// Timeout bounds one job. HTTP requests use the server request timeout.
	Timeout time.Duration
}

func LoadConfig(cfg *config.Config) *Config {
	timeout := config.GetDuration(config.GetWorkerConfig(cfg, TaskType).Timeout)
	if timeout <= 0 {
		timeout = config.GetDuration(cfg.Server.RequestTimeout)
	}
	return &Config{Timeout: timeout}
}
