// internal/workers/ai-conversation/answer-question/models.go
package answerquestion

import (
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"crm-assistant/internal/models"
)

// MaxQuestionLength bounds the question text in characters.
const MaxQuestionLength = 1000

// Request is one question from an already authenticated caller.
type Request struct {
	Question string               `json:"question"`
	Caller   models.CallerContext `json:"caller"`
}

var notBlank = validation.By(func(value interface{}) error {
	s, _ := value.(string)
	if strings.TrimSpace(s) == "" {
		return validation.NewError("validation_blank", "must not be blank")
	}
	return nil
})

// Validate rejects requests that must not enter the pipeline.
func (r Request) Validate() error {
	if err := validation.ValidateStruct(&r,
		validation.Field(&r.Question, validation.Required, notBlank, validation.RuneLength(1, MaxQuestionLength)),
	); err != nil {
		return err
	}
	return validation.Errors{
		"caller.id": validation.Validate(r.Caller.ID, validation.Required, notBlank),
	}.Filter()
}

// Output is the variable set a completed job hands back to the process.
type Output struct {
	Answer       string              `json:"answer"`
	AnswerSource models.AnswerSource `json:"answerSource"`
	QueryType    models.QueryType    `json:"queryType"`
	RequestID    string              `json:"requestId"`
}

func newOutput(a *models.Answer) *Output {
	return &Output{
		Answer:       a.Text,
		AnswerSource: a.Source,
		QueryType:    a.QueryType,
		RequestID:    a.RequestID,
	}
}

// jobInputSchema is checked against job variables before they are decoded.
const jobInputSchema = `{
	"type": "object",
	"required": ["question", "caller"],
	"properties": {
		"question": {"type": "string", "minLength": 1},
		"caller": {
			"type": "object",
			"required": ["id"],
			"properties": {
				"id": {"type": "string", "minLength": 1},
				"role": {"type": "string"},
				"ownerId": {"type": "string"}
			}
		}
	}
}`
