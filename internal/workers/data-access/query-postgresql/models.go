// internal/workers/data-access/query-postgresql/models.go
package querypostgresql

import (
	"fmt"
	"sort"
	"strings"
)

// DefaultListLimit caps list results.
const DefaultListLimit = 100

// QueryError wraps a data-access failure with the context it happened in.
type QueryError struct {
	QueryType string
	Metric    string
	Table     string
	Filters   map[string]string
	Err       error
}

func (e *QueryError) Error() string {
	keys := make([]string, 0, len(e.Filters))
	for k := range e.Filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := []string{"queryType=" + e.QueryType, "table=" + e.Table}
	if e.Metric != "" {
		parts = append(parts, "metric="+e.Metric)
	}
	if len(keys) > 0 {
		parts = append(parts, "filters="+strings.Join(keys, ","))
	}
	return fmt.Sprintf("query failed (%s): %v", strings.Join(parts, " "), e.Err)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

// Metadata returns the error context for logging and error responses.
func (e *QueryError) Metadata() map[string]interface{} {
	return map[string]interface{}{
		"queryType": e.QueryType,
		"metric":    e.Metric,
		"table":     e.Table,
		"filters":   e.Filters,
	}
}
