// internal/workers/data-access/query-postgresql/config.go
package querypostgresql

import (
	"time"

	"crm-assistant/internal/common/config"
)

type Config struct {
	Timeout   time.Duration
	ListLimit int
}

func LoadConfig(cfg *config.Config) *Config {
	c := &Config{
		Timeout:   config.GetDuration(cfg.Database.Postgres.QueryTimeout),
		ListLimit: cfg.Pipeline.ListLimit,
	}
	if c.ListLimit <= 0 {
		c.ListLimit = DefaultListLimit
	}
	return c
}
