package queries

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"crm-assistant/internal/models"
)

// fetchCountStrategy loads candidate rows and counts those passing a test
// that is not a plain equality.
type fetchCountStrategy struct {
	table             string
	columns           []string
	allowStatusFilter bool
	notNull           string
	match             func(row map[string]interface{}, now time.Time) bool
}

func (s fetchCountStrategy) Table() string { return s.table }

func (s fetchCountStrategy) Execute(ctx context.Context, db *sql.DB, req Request) (interface{}, error) {
	spec := models.Catalog[s.table]
	b := NewSelect(s.table, s.columns...)
	if err := applySlots(b, spec, req, "", s.allowStatusFilter); err != nil {
		return nil, err
	}
	if s.notNull != "" {
		if err := b.WhereNotNull(s.notNull); err != nil {
			return nil, err
		}
	}

	query, args := b.Build()
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var count int64
	for rows.Next() {
		dest := make([]interface{}, len(s.columns))
		ptrs := make([]interface{}, len(s.columns))
		for i := range dest {
			ptrs[i] = &dest[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]interface{}, len(s.columns))
		for i, c := range s.columns {
			row[c] = dest[i]
		}
		if s.match(row, req.Now) {
			count++
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return count, nil
}

func text(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(t)
	case string:
		return t
	default:
		return ""
	}
}

func isQualified(row map[string]interface{}, _ time.Time) bool {
	s := strings.ToLower(text(row["status"]))
	return strings.Contains(s, "qualified") &&
		!strings.Contains(s, "unqualified") &&
		!strings.Contains(s, "disqualified") &&
		!strings.Contains(s, "not qualified")
}

func isCall(row map[string]interface{}, _ time.Time) bool {
	return strings.Contains(strings.ToLower(text(row["activity_type"])), "call")
}

var followUpStripper = strings.NewReplacer(" ", "", "-", "", "_", "")

func isFollowUp(row map[string]interface{}, _ time.Time) bool {
	for _, col := range []string{"activity_type", "subject"} {
		if strings.Contains(followUpStripper.Replace(strings.ToLower(text(row[col]))), "followup") {
			return true
		}
	}
	return false
}

var closedTaskStatuses = map[string]bool{
	"completed": true,
	"complete":  true,
	"done":      true,
	"cancelled": true,
	"canceled":  true,
	"closed":    true,
}

func isOverdue(row map[string]interface{}, now time.Time) bool {
	if closedTaskStatuses[strings.ToLower(strings.TrimSpace(text(row["status"])))] {
		return false
	}
	due, ok := asTime(row["due_date"])
	if !ok {
		return false
	}
	// Due dates are calendar days: a task due today is not overdue until tomorrow.
	dueDay := time.Date(due.Year(), due.Month(), due.Day(), 0, 0, 0, 0, now.Location())
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return dueDay.Before(today)
}

func asTime(v interface{}) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string, []byte:
		s := text(t)
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02"} {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed, true
			}
		}
	}
	return time.Time{}, false
}
