// Package llmsynthesis renders query results as answers. Aggregate, record and
// conversational answers go through the model under a per-type contract; list
// and field answers are formatted directly from the data.
package llmsynthesis

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"crm-assistant/internal/common/llm"
	"crm-assistant/internal/common/logger"
	"crm-assistant/internal/common/metrics"
	"crm-assistant/internal/common/observability"
	"crm-assistant/internal/models"
)

const (
	StageName = "generate_answer"
)

var (
	ErrAnswerGenerationFailed = errors.New("ANSWER_GENERATION_FAILED")
	ErrMissingResult          = errors.New("MISSING_QUERY_RESULT")
)

type Handler struct {
	config *Config
	client llm.ChatClient
	obs    *observability.Observability
	logger logger.Logger
}

func NewHandler(config *Config, client llm.ChatClient, obs *observability.Observability, log logger.Logger) *Handler {
	return &Handler{
		config: config,
		client: client,
		obs:    obs,
		logger: log.With(map[string]interface{}{"stage": StageName}),
	}
}

// Generate dispatches on the result's query type. Conversational questions
// have no result and go through GenerateGeneralMessage instead.
func (h *Handler) Generate(ctx context.Context, question string, result *models.QueryResult) (*models.Answer, error) {
	if result == nil {
		return nil, ErrMissingResult
	}

	ctx, span := h.obs.StartSpan(ctx, StageName, attribute.String("query.type", string(result.QueryType)))
	start := time.Now()

	answer, err := h.generate(ctx, question, result)

	metrics.StageDuration.WithLabelValues(StageName).Observe(time.Since(start).Seconds())
	observability.EndSpan(span, err)
	if err != nil {
		logger.FromContext(ctx, h.logger).Error("answer generation failed", map[string]interface{}{
			"queryType": string(result.QueryType),
			"error":     err.Error(),
		})
		return nil, err
	}
	return answer, nil
}

func (h *Handler) generate(ctx context.Context, question string, result *models.QueryResult) (*models.Answer, error) {
	answer := &models.Answer{QueryType: result.QueryType}

	var err error
	switch result.QueryType {
	case models.QueryTypeAggregate:
		answer.Source = models.AnswerSourceModel
		answer.Text, err = h.GenerateAggregateAnswer(ctx, question, result.Value)
	case models.QueryTypeFieldLookup:
		answer.Source = models.AnswerSourceData
		answer.Text = GenerateFieldAnswer(result.Value)
	case models.QueryTypeRecordLookup:
		answer.Source = models.AnswerSourceModel
		if result.Record == nil {
			answer.Source = models.AnswerSourceData
		}
		answer.Text, err = h.GenerateRecordAnswer(ctx, question, result.Table, result.Record)
	case models.QueryTypeList:
		answer.Source = models.AnswerSourceData
		answer.Text = GenerateListAnswer(result.Table, result.Data)
	default:
		return nil, fmt.Errorf("%w: no answer format for %q", ErrAnswerGenerationFailed, result.QueryType)
	}
	if err != nil {
		return nil, err
	}
	return answer, nil
}

// GenerateAggregateAnswer asks for one sentence carrying value verbatim. A reply
// that drops or alters the value is a failure; the bare value is never
// substituted for it.
func (h *Handler) GenerateAggregateAnswer(ctx context.Context, question string, value interface{}) (string, error) {
	if value == nil {
		return "", fmt.Errorf("%w: aggregate result has no value", ErrAnswerGenerationFailed)
	}
	valueText := fmt.Sprint(value)

	user := fmt.Sprintf("Question: %s\nValue: %s", question, valueText)
	reply, err := h.chat(ctx, aggregateInstruction, user, h.config.AggregateTemperature)
	if err != nil {
		return "", err
	}

	sentence := firstLine(reply)
	if !containsValue(sentence, valueText) {
		return "", fmt.Errorf("%w: reply does not contain the value %q", ErrAnswerGenerationFailed, valueText)
	}
	return sentence, nil
}

// GenerateFieldAnswer returns the value itself as text.
func GenerateFieldAnswer(value interface{}) string {
	if value == nil {
		return NoFieldValueAnswer
	}
	return fmt.Sprint(value)
}

// GenerateRecordAnswer describes a record by its display label only.
func (h *Handler) GenerateRecordAnswer(ctx context.Context, question, table string, record *models.Record) (string, error) {
	if record == nil {
		return NoRecordAnswer, nil
	}

	user := fmt.Sprintf("Question: %s\nRecord: %s", question, DisplayLabel(table, *record))
	reply, err := h.chat(ctx, recordInstruction, user, h.config.RecordTemperature)
	if err != nil {
		return "", err
	}
	return firstLine(reply), nil
}

// GenerateListAnswer renders one "- label" line per record.
func GenerateListAnswer(table string, records []models.Record) string {
	if len(records) == 0 {
		return NoRecordsAnswer
	}
	lines := make([]string, len(records))
	for i, r := range records {
		lines[i] = "- " + DisplayLabel(table, r)
	}
	return strings.Join(lines, "\n")
}

// GenerateGeneralMessage answers small talk and anything the pipeline could not
// classify. It never receives data.
func (h *Handler) GenerateGeneralMessage(ctx context.Context, question string) (string, error) {
	ctx, span := h.obs.StartSpan(ctx, StageName, attribute.String("query.type", string(models.QueryTypeGeneralMessage)))
	reply, err := h.chat(ctx, generalInstruction, question, h.config.GeneralTemperature)
	observability.EndSpan(span, err)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(reply), nil
}

func (h *Handler) chat(ctx context.Context, system, user string, temperature float64) (string, error) {
	reply, err := h.client.Chat(ctx, llm.SystemAndUser(system, user), llm.ChatOptions{
		Temperature: temperature,
		MaxTokens:   h.config.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAnswerGenerationFailed, err)
	}
	if strings.TrimSpace(reply) == "" {
		return "", fmt.Errorf("%w: empty reply", ErrAnswerGenerationFailed)
	}
	return reply, nil
}

// containsValue reports whether value occurs in text as a whole number, so a
// value of 1 is not found inside "12", "2021" or "1.5".
func containsValue(text, value string) bool {
	if value == "" {
		return false
	}
	pattern := `(?:^|[^\d.])` + regexp.QuoteMeta(value) + `(?:$|[^\d.]|\.(?:$|[^\d]))`
	return regexp.MustCompile(pattern).MatchString(text)
}

// firstLine keeps the first non-empty line and strips wrapping quotes.
func firstLine(reply string) string {
	for _, line := range strings.Split(reply, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			return strings.Trim(line, "\"“”")
		}
	}
	return ""
}

// DisplayLabel picks the text that stands for a record: the table's display
// column, then a common title or name column, then the first value that is
// neither an identifier nor a timestamp.
func DisplayLabel(table string, record models.Record) string {
	if spec, ok := models.LookupTable(table); ok && spec.DisplayColumn != "" {
		if label, ok := labelFrom(record, spec.DisplayColumn); ok {
			return label
		}
	}
	for _, col := range commonLabelColumns {
		if label, ok := labelFrom(record, col); ok {
			return label
		}
	}
	for i, col := range record.Columns {
		if isIdentifierColumn(col) || isTimestampColumn(col) {
			continue
		}
		if _, isTime := record.Values[i].(time.Time); isTime {
			continue
		}
		if label, ok := labelFrom(record, col); ok {
			return label
		}
	}
	return UntitledLabel
}

func labelFrom(record models.Record, col string) (string, bool) {
	v, ok := record.Get(col)
	if !ok || v == nil {
		return "", false
	}
	s := strings.TrimSpace(fmt.Sprint(v))
	if s == "" {
		return "", false
	}
	return s, true
}

func isIdentifierColumn(col string) bool {
	return col == "id" || strings.HasSuffix(col, "_id") || strings.HasSuffix(col, "_code")
}

func isTimestampColumn(col string) bool {
	for _, suffix := range []string{"_at", "_time", "_date"} {
		if strings.HasSuffix(col, suffix) {
			return true
		}
	}
	return false
}
