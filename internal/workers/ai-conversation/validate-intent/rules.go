package validateintent

import (
	"fmt"
	"regexp"
	"strings"

	"crm-assistant/internal/models"
)

// revenueKeywords reject any metric that looks monetary, whitelisted or not.
var revenueKeywords = []string{
	"revenue", "money", "amount", "price", "income", "profit", "earning",
	"payment", "invoice", "billing", "sales", "dollar", "currency", "cost",
	"deal_value", "dealvalue",
}

// IsRevenueMetric reports whether metric contains a monetary keyword.
func IsRevenueMetric(metric string) bool {
	m := strings.ToLower(metric)
	for _, kw := range revenueKeywords {
		if strings.Contains(m, kw) {
			return true
		}
	}
	return false
}

// filterKeyRule decides which filter keys an intent may carry.
type filterKeyRule func(table models.TableSpec, key string) bool

func aggregateKeys(_ models.TableSpec, key string) bool {
	for _, k := range models.AggregateFilterKeys {
		if k == key {
			return true
		}
	}
	return false
}

func tableColumns(table models.TableSpec, key string) bool {
	return table.AcceptsFilter(key)
}

type ruleKey struct {
	table     string
	queryType models.QueryType
}

// filterRules is keyed by (table, query_type). Aggregates share one generic
// allow-list; row queries are limited to the target table's real columns.
var filterRules = buildFilterRules()

func buildFilterRules() map[ruleKey]filterKeyRule {
	rules := map[ruleKey]filterKeyRule{}
	for _, table := range models.TableNames {
		rules[ruleKey{table, models.QueryTypeAggregate}] = aggregateKeys
		rules[ruleKey{table, models.QueryTypeRecordLookup}] = tableColumns
		rules[ruleKey{table, models.QueryTypeFieldLookup}] = tableColumns
		rules[ruleKey{table, models.QueryTypeList}] = tableColumns
	}
	return rules
}

// literalDate catches calendar dates the extractor was told never to emit.
var literalDate = regexp.MustCompile(`\d{4}-\d{1,2}-\d{1,2}|\d{1,2}/\d{1,2}/\d{2,4}`)

func checkFilters(intent models.Intent, table models.TableSpec) error {
	rule, ok := filterRules[ruleKey{table.Name, intent.QueryType}]
	if !ok {
		return fmt.Errorf("no filter rules for %s on %s", intent.QueryType, table.Name)
	}
	for key, value := range intent.Filters {
		if !rule(table, key) {
			if intent.QueryType == models.QueryTypeAggregate {
				return fmt.Errorf("filter %q is not allowed for aggregate queries; allowed filters: %s",
					key, strings.Join(models.AggregateFilterKeys, ", "))
			}
			return fmt.Errorf("filter %q is not a column of %s", key, table.Name)
		}
		if key == models.FilterTimeRange && literalDate.MatchString(value) {
			return fmt.Errorf("time_range must be a relative range, not a date (%q)", value)
		}
	}
	return nil
}

// columnOwner returns a table that has col as a column, for corrective errors.
func columnOwner(col string) (string, bool) {
	for _, name := range models.TableNames {
		if models.Catalog[name].HasColumn(col) {
			return name, true
		}
	}
	return "", false
}
