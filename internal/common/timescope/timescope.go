// Package timescope resolves relative time range tokens and caller scope
// into concrete query bounds. Everything here is pure.
package timescope

import (
	"strings"
	"time"

	"crm-assistant/internal/models"
)

// Token is a relative, named time window.
type Token string

const (
	Today      Token = "today"
	ThisWeek   Token = "this_week"
	LastWeek   Token = "last_week"
	ThisMonth  Token = "this_month"
	LastMonth  Token = "last_month"
	Last7Days  Token = "last_7_days"
	Last30Days Token = "last_30_days"

	// DefaultToken replaces any token that is not recognised.
	DefaultToken = Last7Days
)

// Tokens lists the recognised tokens in a stable order.
var Tokens = []Token{Today, ThisWeek, LastWeek, ThisMonth, LastMonth, Last7Days, Last30Days}

// IsKnownToken reports whether s names a recognised token.
func IsKnownToken(s string) bool {
	for _, t := range Tokens {
		if string(t) == s {
			return true
		}
	}
	return false
}

// Range is an inclusive [Start, End] window.
type Range struct {
	Start time.Time
	End   time.Time
}

// ResolveTimeRange converts token to absolute bounds in now's location.
// Unknown tokens resolve as last_7_days.
func ResolveTimeRange(token string, now time.Time) Range {
	today := startOfDay(now)
	endOfToday := today.AddDate(0, 0, 1).Add(-time.Nanosecond)

	switch Token(strings.ToLower(strings.TrimSpace(token))) {
	case Today:
		return Range{Start: today, End: endOfToday}
	case ThisWeek:
		return Range{Start: startOfWeek(today), End: endOfToday}
	case LastWeek:
		thisWeek := startOfWeek(today)
		return Range{Start: thisWeek.AddDate(0, 0, -7), End: thisWeek.Add(-time.Nanosecond)}
	case ThisMonth:
		return Range{Start: startOfMonth(today), End: endOfToday}
	case LastMonth:
		thisMonth := startOfMonth(today)
		return Range{Start: thisMonth.AddDate(0, -1, 0), End: thisMonth.Add(-time.Nanosecond)}
	case Last30Days:
		return Range{Start: today.AddDate(0, 0, -30), End: endOfToday}
	default:
		return Range{Start: today.AddDate(0, 0, -7), End: endOfToday}
	}
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// startOfWeek returns the most recent Sunday at 00:00, which is day itself on Sundays.
func startOfWeek(day time.Time) time.Time {
	return day.AddDate(0, 0, -int(day.Weekday()))
}

func startOfMonth(day time.Time) time.Time {
	y, m, _ := day.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, day.Location())
}

// OwnershipPredicate maps a user-scoped query onto the table's owner column.
// ok is false for global scope, unknown tables, or a caller without any id.
func OwnershipPredicate(table string, scope models.Scope, caller models.CallerContext) (column, value string, ok bool) {
	if scope != models.ScopeUser {
		return "", "", false
	}
	spec, found := models.LookupTable(table)
	if !found || spec.OwnerColumn == "" {
		return "", "", false
	}
	id := caller.OwnershipID()
	if id == "" {
		return "", "", false
	}
	return spec.OwnerColumn, id, true
}

// NormalizeScope defaults a missing or invalid scope to global.
func NormalizeScope(s models.Scope) models.Scope {
	if s.Valid() {
		return s
	}
	return models.ScopeGlobal
}
