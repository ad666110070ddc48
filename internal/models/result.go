package models

// Record is one row, keeping the column order of the query.
type Record struct {
	Columns []string      `json:"columns"`
	Values  []interface{} `json:"values"`
}

// Get returns the value of a column and whether the column is present.
func (r *Record) Get(col string) (interface{}, bool) {
	if r == nil {
		return nil, false
	}
	for i, c := range r.Columns {
		if c == col {
			return r.Values[i], true
		}
	}
	return nil, false
}

// Map returns the record as a column->value map.
func (r *Record) Map() map[string]interface{} {
	out := make(map[string]interface{}, len(r.Columns))
	for i, c := range r.Columns {
		out[c] = r.Values[i]
	}
	return out
}

// QueryResult is a tagged union over the executor outputs. Exactly one of the
// shapes is populated, selected by QueryType.
type QueryResult struct {
	QueryType QueryType   `json:"queryType"`
	Table     string      `json:"table"`
	Value     interface{} `json:"value,omitempty"`
	Record    *Record     `json:"record,omitempty"`
	Data      []Record    `json:"data,omitempty"`
	Count     int         `json:"count"`
}

// AnswerSource tells whether an answer's text came from data formatting or a model call.
type AnswerSource string

const (
	AnswerSourceData  AnswerSource = "data"
	AnswerSourceModel AnswerSource = "model"
)

// Answer is the final response to a question.
type Answer struct {
	Text      string       `json:"answer"`
	Source    AnswerSource `json:"source"`
	QueryType QueryType    `json:"queryType"`
	RequestID string       `json:"requestId,omitempty"`
}
