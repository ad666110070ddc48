// internal/models/query_types.go
package models

import "strings"

// QueryType is the closed set of question shapes the pipeline can answer.
type QueryType string

const (
	QueryTypeAggregate      QueryType = "aggregate"
	QueryTypeRecordLookup   QueryType = "record_lookup"
	QueryTypeFieldLookup    QueryType = "field_lookup"
	QueryTypeList           QueryType = "list"
	QueryTypeGeneralMessage QueryType = "general_message"
	QueryTypeUnsupported    QueryType = "unsupported"
)

// AllQueryTypes lists every QueryType in a stable order.
var AllQueryTypes = []QueryType{
	QueryTypeAggregate,
	QueryTypeRecordLookup,
	QueryTypeFieldLookup,
	QueryTypeList,
	QueryTypeGeneralMessage,
	QueryTypeUnsupported,
}

func (q QueryType) Valid() bool {
	for _, t := range AllQueryTypes {
		if q == t {
			return true
		}
	}
	return false
}

// IsConversational reports whether the query type is answered without touching data.
func (q QueryType) IsConversational() bool {
	return q == QueryTypeGeneralMessage || q == QueryTypeUnsupported
}

// Scope restricts a query to the caller's own records or the whole dataset.
type Scope string

const (
	ScopeUser   Scope = "user"
	ScopeGlobal Scope = "global"
)

func (s Scope) Valid() bool {
	return s == ScopeUser || s == ScopeGlobal
}

// FilterTimeRange is the filter key carrying a relative time range token.
const FilterTimeRange = "time_range"

// FilterStatus is the filter key matched against a table's status column.
const FilterStatus = "status"

// Intent is the structured form of a question. It is untrusted until validated.
type Intent struct {
	QueryType QueryType         `json:"query_type"`
	Table     string            `json:"table,omitempty"`
	Metric    string            `json:"metric,omitempty"`
	Field     string            `json:"field,omitempty"`
	Filters   map[string]string `json:"filters,omitempty"`
	Scope     Scope             `json:"scope,omitempty"`
}

// Clone returns a deep copy so normalization never mutates the caller's intent.
func (i Intent) Clone() Intent {
	out := i
	if i.Filters != nil {
		out.Filters = make(map[string]string, len(i.Filters))
		for k, v := range i.Filters {
			out.Filters[k] = v
		}
	}
	return out
}

// CallerContext identifies who is asking; it is resolved by an external auth layer.
type CallerContext struct {
	ID      string `json:"id"`
	Role    string `json:"role,omitempty"`
	OwnerID string `json:"ownerId,omitempty"`
}

// OwnershipID is the id matched against a table's owner column for user-scoped queries.
func (c CallerContext) OwnershipID() string {
	if strings.TrimSpace(c.OwnerID) != "" {
		return c.OwnerID
	}
	return c.ID
}

// ValidationResult is the outcome of whitelist validation.
type ValidationResult struct {
	Valid          bool   `json:"valid"`
	Code           string `json:"code,omitempty"`
	Error          string `json:"error,omitempty"`
	IsConversation bool   `json:"isConversation,omitempty"`
	Intent         Intent `json:"intent"`
}
