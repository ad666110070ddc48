package queries

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strconv"

	"crm-assistant/internal/models"
)

// averageProbabilityStrategy averages a score across matching rows and reports
// it as a rounded percentage. Every row is read on the table's ScoreScale.
type averageProbabilityStrategy struct {
	table  string
	column string
}

func (s averageProbabilityStrategy) Table() string { return s.table }

func (s averageProbabilityStrategy) Execute(ctx context.Context, db *sql.DB, req Request) (interface{}, error) {
	spec := models.Catalog[s.table]
	b := NewSelect(s.table, s.column)
	if err := applySlots(b, spec, req, "", true); err != nil {
		return nil, err
	}
	if err := b.WhereNotNull(s.column); err != nil {
		return nil, err
	}

	query, args := b.Build()
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sum float64
	var n int
	for rows.Next() {
		var raw interface{}
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		score, ok := asScore(raw, spec.ScoreScale)
		if !ok {
			continue
		}
		sum += score
		n++
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if n == 0 {
		return "0%", nil
	}
	return FormatPercent(sum / float64(n)), nil
}

// FormatPercent renders a 0-1 score as a whole percentage, e.g. 0.456 -> "46%".
func FormatPercent(score float64) string {
	return fmt.Sprintf("%d%%", int(math.Round(score*100)))
}

// asScore normalizes a stored score to 0-1, clamping values outside the scale.
func asScore(v interface{}, scale float64) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int64:
		f = float64(t)
	case int:
		f = float64(t)
	case []byte:
		parsed, err := strconv.ParseFloat(string(t), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if scale > 0 {
		f /= scale
	}
	if f < 0 {
		f = 0
	}
	if f > 1 {
		f = 1
	}
	return f, true
}
