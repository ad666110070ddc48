package queries

import (
	"context"
	"database/sql"

	"crm-assistant/internal/models"
)

// countStrategy pushes every predicate down into a server-side COUNT.
type countStrategy struct {
	table             string
	status            string
	allowStatusFilter bool
}

func (s countStrategy) Table() string { return s.table }

func (s countStrategy) Execute(ctx context.Context, db *sql.DB, req Request) (interface{}, error) {
	spec := models.Catalog[s.table]
	b := NewSelect(s.table, "COUNT(*)")
	if err := applySlots(b, spec, req, s.status, s.allowStatusFilter); err != nil {
		return nil, err
	}

	query, args := b.Build()
	var count int64
	if err := db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return nil, err
	}
	return count, nil
}
