package querypostgresql

import (
	"regexp"
	"sort"
	"strings"

	"crm-assistant/internal/common/timescope"
	"crm-assistant/internal/models"
	"crm-assistant/internal/workers/data-access/query-postgresql/queries"
)

// leadCodePattern matches human-readable lead codes such as "LD-101".
var leadCodePattern = regexp.MustCompile(`^[A-Za-z]{1,5}-\d+$`)

func isIdentifierKey(key string) bool {
	return key == "id" || key == "lead_id" || strings.HasSuffix(key, "_id")
}

// applyFilters adds ownership scoping and then each filter as an equality
// predicate. Keys are applied in sorted order so the SQL is deterministic.
func applyFilters(b *queries.SelectBuilder, table models.TableSpec, intent models.Intent, caller models.CallerContext) error {
	if col, id, ok := timescope.OwnershipPredicate(table.Name, intent.Scope, caller); ok {
		if err := b.Where(col, id); err != nil {
			return err
		}
	}

	keys := make([]string, 0, len(intent.Filters))
	for k := range intent.Filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := strings.TrimSpace(intent.Filters[key])
		var err error
		switch {
		case key == "lead_id" && leadCodePattern.MatchString(value):
			code := strings.ToUpper(value)
			if table.Name == models.TableLeads {
				err = b.Where(models.LeadCodeColumn, code)
			} else {
				err = b.WhereLeadCode("lead_id", code)
			}
		case key == "lead_id" && table.Name == models.TableLeads:
			err = b.Where("id", value)
		case isIdentifierKey(key):
			err = b.Where(key, value)
		case key == models.FilterStatus:
			err = b.Where(key, queries.NormalizeStatus(value))
		default:
			err = b.Where(key, value)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
