package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSchema = `{
	"type": "object",
	"required": ["question"],
	"properties": {
		"question": {"type": "string", "minLength": 1},
		"limit": {"type": "integer"}
	}
}`

func TestValidateInput(t *testing.T) {
	tests := []struct {
		name      string
		input     map[string]interface{}
		wantValid bool
		wantCode  string
		wantField string
	}{
		{
			name:      "valid",
			input:     map[string]interface{}{"question": "How many leads?"},
			wantValid: true,
		},
		{
			name:     "missing required",
			input:    map[string]interface{}{},
			wantCode: "REQUIRED",
		},
		{
			name:      "wrong type",
			input:     map[string]interface{}{"question": "q", "limit": "ten"},
			wantCode:  "INVALID_TYPE",
			wantField: "limit",
		},
		{
			name:      "empty string",
			input:     map[string]interface{}{"question": ""},
			wantCode:  "STRING_GTE",
			wantField: "question",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ValidateInput(tt.input, testSchema)
			require.NoError(t, err)

			assert.Equal(t, tt.wantValid, result.Valid)
			if tt.wantValid {
				assert.Empty(t, result.Errors)
				return
			}
			require.NotEmpty(t, result.Errors)
			assert.Equal(t, tt.wantCode, result.Errors[0].Code)
			if tt.wantField != "" {
				assert.True(t, result.HasErrors(tt.wantField))
			}
			assert.NotEmpty(t, result.Summary())
		})
	}
}

func TestCompile_CachesAndRejects(t *testing.T) {
	a, err := Compile(testSchema)
	require.NoError(t, err)
	b, err := Compile(testSchema)
	require.NoError(t, err)
	assert.Same(t, a, b)

	_, err = Compile(`{"type": 12}`)
	assert.Error(t, err)

	assert.Panics(t, func() { MustCompile(`{`) })
}

func TestGetErrorMessages(t *testing.T) {
	vr := &ValidationResult{Errors: []ValidationError{
		{Field: "question", Message: "is required"},
		{Field: "caller.id", Message: "must not be blank"},
	}}

	assert.Equal(t, []string{"question: is required", "caller.id: must not be blank"}, vr.GetErrorMessages())
	assert.Equal(t, "question: is required; caller.id: must not be blank", vr.Summary())
	assert.False(t, vr.HasErrors("missing"))
}
