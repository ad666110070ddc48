package validateintent

import (
	"regexp"
	"strings"

	"crm-assistant/internal/common/timescope"
	"crm-assistant/internal/models"
)

// Step is one named corrective normalization applied before validation.
type Step struct {
	Name  string
	Apply func(intent *models.Intent, question string) bool
}

// Steps run in order; each reports whether it changed the intent.
var Steps = []Step{
	{Name: "default_scope", Apply: DefaultScope},
	{Name: "inject_time_range", Apply: InjectTimeRange},
}

// DefaultScope sets a missing or invalid scope to global.
func DefaultScope(intent *models.Intent, _ string) bool {
	normalized := timescope.NormalizeScope(intent.Scope)
	if normalized == intent.Scope {
		return false
	}
	intent.Scope = normalized
	return true
}

// datePhrases maps phrases in the raw question to tokens. Longer phrases come
// first so "last week" is not read as "week".
var datePhrases = []struct {
	pattern *regexp.Regexp
	token   timescope.Token
}{
	{regexp.MustCompile(`\blast 30 days\b`), timescope.Last30Days},
	{regexp.MustCompile(`\blast 7 days\b`), timescope.Last7Days},
	{regexp.MustCompile(`\blast week\b`), timescope.LastWeek},
	{regexp.MustCompile(`\blast month\b`), timescope.LastMonth},
	{regexp.MustCompile(`\bthis week\b`), timescope.ThisWeek},
	{regexp.MustCompile(`\bthis month\b`), timescope.ThisMonth},
	{regexp.MustCompile(`\btoday\b`), timescope.Today},
}

// InjectTimeRange adds a time_range filter to an aggregate intent that lacks
// one, or carries a blank one, when the question names a relative date.
func InjectTimeRange(intent *models.Intent, question string) bool {
	if intent.QueryType != models.QueryTypeAggregate {
		return false
	}
	cleared := false
	if v, ok := intent.Filters[models.FilterTimeRange]; ok {
		if strings.TrimSpace(v) != "" {
			return false
		}
		// A blank range is a missing range.
		delete(intent.Filters, models.FilterTimeRange)
		cleared = true
	}
	q := strings.ToLower(question)
	for _, p := range datePhrases {
		if p.pattern.MatchString(q) {
			if intent.Filters == nil {
				intent.Filters = map[string]string{}
			}
			intent.Filters[models.FilterTimeRange] = string(p.token)
			return true
		}
	}
	return cleared
}

// Normalize returns a normalized copy of intent and the names of the steps that changed it.
func Normalize(intent models.Intent, question string) (models.Intent, []string) {
	out := intent.Clone()
	var applied []string
	for _, s := range Steps {
		if s.Apply(&out, question) {
			applied = append(applied, s.Name)
		}
	}
	return out, applied
}
