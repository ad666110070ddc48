// Package validateintent whitelist-checks extracted intents and applies the
// named corrective normalizations.
package validateintent

import (
	"context"
	"fmt"
	"time"

	"crm-assistant/internal/common/logger"
	"crm-assistant/internal/common/metrics"
	"crm-assistant/internal/models"
)

const (
	StageName = "validate_intent"

	CodeInvalidIntent   = "invalid_intent"
	CodeForbiddenMetric = "forbidden_metric"
)

type Handler struct {
	logger logger.Logger
}

func NewHandler(log logger.Logger) *Handler {
	return &Handler{logger: log.With(map[string]interface{}{"stage": StageName})}
}

// Execute normalizes the intent against the raw question, then validates it.
func (h *Handler) Execute(ctx context.Context, intent models.Intent, question string) models.ValidationResult {
	start := time.Now()
	defer func() {
		metrics.StageDuration.WithLabelValues(StageName).Observe(time.Since(start).Seconds())
	}()

	normalized, applied := Normalize(intent, question)
	result := Validate(normalized)

	log := logger.FromContext(ctx, h.logger)
	fields := map[string]interface{}{
		"queryType":      string(result.Intent.QueryType),
		"table":          result.Intent.Table,
		"metric":         result.Intent.Metric,
		"normalizations": applied,
		"valid":          result.Valid,
	}
	if !result.Valid {
		fields["code"] = result.Code
		fields["reason"] = result.Error
		log.Warn("intent rejected", fields)
	} else {
		log.Info("intent validated", fields)
	}
	return result
}

// Validate checks an already normalized intent against the allow-lists.
func Validate(intent models.Intent) models.ValidationResult {
	if !intent.QueryType.Valid() {
		return reject(intent, CodeInvalidIntent, fmt.Sprintf("unknown query type %q", intent.QueryType))
	}
	if intent.QueryType.IsConversational() {
		return models.ValidationResult{Valid: true, IsConversation: true, Intent: intent}
	}

	// Runs before any whitelist so monetary metrics are refused even if listed.
	if intent.Metric != "" && IsRevenueMetric(intent.Metric) {
		return reject(intent, CodeForbiddenMetric, fmt.Sprintf("metric %q is a revenue or money metric and is not available", intent.Metric))
	}

	table, ok := models.LookupTable(intent.Table)
	if !ok {
		return reject(intent, CodeInvalidIntent, fmt.Sprintf("table %q is not available", intent.Table))
	}

	switch intent.QueryType {
	case models.QueryTypeAggregate:
		if err := checkMetric(intent.Metric); err != nil {
			return reject(intent, CodeInvalidIntent, err.Error())
		}
	case models.QueryTypeFieldLookup:
		if intent.Field == "" {
			return reject(intent, CodeInvalidIntent, "field_lookup requires a field")
		}
		if !table.HasColumn(intent.Field) {
			return reject(intent, CodeInvalidIntent, fmt.Sprintf("field %q is not a column of %s", intent.Field, table.Name))
		}
	}

	if intent.QueryType != models.QueryTypeAggregate && intent.Metric != "" {
		return reject(intent, CodeInvalidIntent, "metric is only allowed for aggregate queries")
	}
	if intent.QueryType != models.QueryTypeFieldLookup && intent.Field != "" {
		return reject(intent, CodeInvalidIntent, "field is only allowed for field_lookup queries")
	}

	if err := checkFilters(intent, table); err != nil {
		return reject(intent, CodeInvalidIntent, err.Error())
	}

	return models.ValidationResult{Valid: true, Intent: intent}
}

func checkMetric(metric string) error {
	if metric == "" {
		return fmt.Errorf("aggregate queries require a metric")
	}
	if _, ok := models.LookupMetric(metric); ok {
		return nil
	}
	if owner, ok := columnOwner(metric); ok {
		return fmt.Errorf("%q is a column of %s, not a metric; use a count metric and filter on %s instead", metric, owner, metric)
	}
	return fmt.Errorf("metric %q is not available", metric)
}

func reject(intent models.Intent, code, reason string) models.ValidationResult {
	return models.ValidationResult{Valid: false, Code: code, Error: reason, Intent: intent}
}
