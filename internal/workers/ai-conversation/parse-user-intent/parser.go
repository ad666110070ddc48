package parseuserintent

import (
	"encoding/json"
	"fmt"
	"strings"

	"crm-assistant/internal/common/validation"
	"crm-assistant/internal/models"
)

// baseSchema is checked first; it only pins down value types.
const baseSchema = `{
  "type": "object",
  "properties": {
    "query_type": {"type": "string", "enum": ["aggregate", "record_lookup", "field_lookup", "list", "general_message", "unsupported"]},
    "table":      {"type": ["string", "null"]},
    "metric":     {"type": ["string", "null"]},
    "field":      {"type": ["string", "null"]},
    "scope":      {"type": ["string", "null"]},
    "filters": {
      "type": ["object", "null"],
      "additionalProperties": {"type": ["string", "number", "boolean", "null"]}
    }
  },
  "required": ["query_type"]
}`

const nonEmptyString = `{"type": "string", "minLength": 1}`

// typeSchemas holds the keys each query type requires.
var typeSchemas = map[models.QueryType]*validation.Schema{
	models.QueryTypeAggregate:    requiredSchema("table", "metric"),
	models.QueryTypeRecordLookup: requiredSchema("table"),
	models.QueryTypeFieldLookup:  requiredSchema("table", "field"),
	models.QueryTypeList:         requiredSchema("table"),
}

var compiledBase = validation.MustCompile(baseSchema)

func requiredSchema(keys ...string) *validation.Schema {
	props := make([]string, len(keys))
	quoted := make([]string, len(keys))
	for i, k := range keys {
		props[i] = fmt.Sprintf("%q: %s", k, nonEmptyString)
		quoted[i] = fmt.Sprintf("%q", k)
	}
	return validation.MustCompile(fmt.Sprintf(`{"type": "object", "properties": {%s}, "required": [%s]}`,
		strings.Join(props, ", "), strings.Join(quoted, ", ")))
}

// extractJSONObject strips code fences and returns the first balanced
// top-level object in reply. String literals are honoured when matching braces.
func extractJSONObject(reply string) (string, error) {
	s := strings.TrimSpace(reply)
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```JSON", "")
	s = strings.ReplaceAll(s, "```", "")
	s = strings.TrimSpace(s)

	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", fmt.Errorf("%w: no JSON object in reply", ErrMalformedOutput)
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], nil
			}
		}
	}
	return "", fmt.Errorf("%w: unbalanced braces", ErrMalformedOutput)
}

// ParseReply turns raw model output into a Result. It fails with
// ErrMalformedOutput when no JSON object can be decoded and with
// ErrStructureInvalid when the object does not describe an intent.
func ParseReply(reply string) (*Result, error) {
	block, err := extractJSONObject(reply)
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(block, "{") {
		return nil, fmt.Errorf("%w: reply does not start with an object", ErrMalformedOutput)
	}

	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(block), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}

	if t, ok := raw["type"].(string); ok && strings.EqualFold(t, "conversation") {
		if _, hasQueryType := raw["query_type"]; !hasQueryType {
			return &Result{Conversation: true}, nil
		}
	}

	if res := compiledBase.Validate(raw); !res.Valid {
		return nil, fmt.Errorf("%w: %s", ErrStructureInvalid, res.Summary())
	}

	qt := models.QueryType(raw["query_type"].(string))
	if qt == models.QueryTypeGeneralMessage {
		return &Result{Conversation: true, Intent: &models.Intent{QueryType: qt}}, nil
	}

	if schema, ok := typeSchemas[qt]; ok {
		if res := schema.Validate(raw); !res.Valid {
			return nil, fmt.Errorf("%w: %s: %s", ErrStructureInvalid, qt, res.Summary())
		}
	}

	intent := &models.Intent{
		QueryType: qt,
		Table:     stringValue(raw["table"]),
		Metric:    stringValue(raw["metric"]),
		Field:     stringValue(raw["field"]),
		Scope:     models.Scope(stringValue(raw["scope"])),
		Filters:   map[string]string{},
	}

	if intent.Metric != "" && qt != models.QueryTypeAggregate {
		return nil, fmt.Errorf("%w: metric is only allowed for aggregate queries", ErrStructureInvalid)
	}
	if intent.Field != "" && qt != models.QueryTypeFieldLookup {
		return nil, fmt.Errorf("%w: field is only allowed for field_lookup queries", ErrStructureInvalid)
	}

	// Blank filter values carry no constraint and are dropped like nulls.
	if filters, ok := raw["filters"].(map[string]interface{}); ok {
		for k, v := range filters {
			if v == nil {
				continue
			}
			key, value := strings.TrimSpace(k), strings.TrimSpace(fmt.Sprint(v))
			if key == "" || value == "" {
				continue
			}
			intent.Filters[key] = value
		}
	}

	return &Result{Intent: intent}, nil
}

func stringValue(v interface{}) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}
