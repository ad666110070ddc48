// Package querypostgresql executes validated intents against PostgreSQL. It is
// the only component that touches the data store.
package querypostgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"crm-assistant/internal/common/logger"
	"crm-assistant/internal/common/metrics"
	"crm-assistant/internal/common/observability"
	"crm-assistant/internal/models"
	"crm-assistant/internal/workers/data-access/query-postgresql/queries"
)

const (
	StageName = "execute_query"
)

var (
	ErrUnsupportedQueryType = errors.New("UNSUPPORTED_QUERY_TYPE")
	ErrUnknownTable         = errors.New("UNKNOWN_TABLE")
)

type Handler struct {
	config *Config
	db     *sql.DB
	obs    *observability.Observability
	logger logger.Logger
	now    func() time.Time
}

func NewHandler(config *Config, db *sql.DB, obs *observability.Observability, log logger.Logger) *Handler {
	return &Handler{
		config: config,
		db:     db,
		obs:    obs,
		logger: log.WithFields(map[string]interface{}{"stage": StageName}),
		now:    time.Now,
	}
}

// WithClock overrides the time source used for time ranges and overdue checks.
func (h *Handler) WithClock(now func() time.Time) *Handler {
	h.now = now
	return h
}

// Execute runs a validated intent. Absent rows are not errors: lookups return
// a nil Record or Value instead.
func (h *Handler) Execute(ctx context.Context, intent models.Intent, caller models.CallerContext) (*models.QueryResult, error) {
	ctx, span := h.obs.StartSpan(ctx, StageName,
		attribute.String("query.type", string(intent.QueryType)),
		attribute.String("query.table", intent.Table),
		attribute.String("query.metric", intent.Metric),
	)
	start := time.Now()

	if h.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.config.Timeout)
		defer cancel()
	}

	result, err := h.execute(ctx, intent, caller)

	metrics.StageDuration.WithLabelValues(StageName).Observe(time.Since(start).Seconds())
	log := logger.FromContext(ctx, h.logger)
	if err != nil {
		log.Error("query failed", map[string]interface{}{
			"queryType": string(intent.QueryType),
			"table":     intent.Table,
			"metric":    intent.Metric,
			"error":     err.Error(),
		})
	} else {
		log.Info("query executed", map[string]interface{}{
			"queryType": string(intent.QueryType),
			"table":     result.Table,
			"metric":    intent.Metric,
			"count":     result.Count,
			"duration":  time.Since(start).Milliseconds(),
		})
	}
	observability.EndSpan(span, err)
	return result, err
}

func (h *Handler) execute(ctx context.Context, intent models.Intent, caller models.CallerContext) (*models.QueryResult, error) {
	switch intent.QueryType {
	case models.QueryTypeAggregate:
		return h.aggregate(ctx, intent, caller)
	case models.QueryTypeRecordLookup:
		return h.recordLookup(ctx, intent, caller)
	case models.QueryTypeFieldLookup:
		return h.fieldLookup(ctx, intent, caller)
	case models.QueryTypeList:
		return h.list(ctx, intent, caller)
	case models.QueryTypeGeneralMessage, models.QueryTypeUnsupported:
		return nil, fmt.Errorf("%w: %s has no query", ErrUnsupportedQueryType, intent.QueryType)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedQueryType, intent.QueryType)
	}
}

func (h *Handler) wrap(intent models.Intent, table string, err error) error {
	return &QueryError{
		QueryType: string(intent.QueryType),
		Metric:    intent.Metric,
		Table:     table,
		Filters:   intent.Filters,
		Err:       err,
	}
}

func (h *Handler) aggregate(ctx context.Context, intent models.Intent, caller models.CallerContext) (*models.QueryResult, error) {
	strategy, ok := queries.Registry[intent.Metric]
	if !ok {
		return nil, h.wrap(intent, intent.Table, fmt.Errorf("%w: %s", queries.ErrUnknownMetric, intent.Metric))
	}

	value, err := strategy.Execute(ctx, h.db, queries.Request{
		Filters: intent.Filters,
		Caller:  caller,
		Scope:   intent.Scope,
		Now:     h.now(),
	})
	if err != nil {
		metrics.MetricQueries.WithLabelValues(intent.Metric, "error").Inc()
		return nil, h.wrap(intent, strategy.Table(), err)
	}
	metrics.MetricQueries.WithLabelValues(intent.Metric, "success").Inc()

	return &models.QueryResult{
		QueryType: models.QueryTypeAggregate,
		Table:     strategy.Table(),
		Value:     value,
		Count:     1,
	}, nil
}

func (h *Handler) tableFor(intent models.Intent) (models.TableSpec, error) {
	spec, ok := models.LookupTable(intent.Table)
	if !ok {
		return models.TableSpec{}, h.wrap(intent, intent.Table, fmt.Errorf("%w: %s", ErrUnknownTable, intent.Table))
	}
	return spec, nil
}

func (h *Handler) recordLookup(ctx context.Context, intent models.Intent, caller models.CallerContext) (*models.QueryResult, error) {
	spec, err := h.tableFor(intent)
	if err != nil {
		return nil, err
	}

	b := queries.NewSelect(spec.Name, spec.Columns...).OrderByDesc(spec.DateColumn).Limit(1)
	if err := applyFilters(b, spec, intent, caller); err != nil {
		return nil, h.wrap(intent, spec.Name, err)
	}

	records, err := h.fetch(ctx, b)
	if err != nil {
		return nil, h.wrap(intent, spec.Name, err)
	}

	result := &models.QueryResult{QueryType: models.QueryTypeRecordLookup, Table: spec.Name}
	if len(records) > 0 {
		result.Record = &records[0]
		result.Count = 1
	}
	return result, nil
}

func (h *Handler) fieldLookup(ctx context.Context, intent models.Intent, caller models.CallerContext) (*models.QueryResult, error) {
	spec, err := h.tableFor(intent)
	if err != nil {
		return nil, err
	}
	if !spec.HasColumn(intent.Field) {
		return nil, h.wrap(intent, spec.Name, fmt.Errorf("column %q does not exist", intent.Field))
	}

	b := queries.NewSelect(spec.Name, intent.Field).OrderByDesc(spec.DateColumn).Limit(1)
	if err := applyFilters(b, spec, intent, caller); err != nil {
		return nil, h.wrap(intent, spec.Name, err)
	}

	records, err := h.fetch(ctx, b)
	if err != nil {
		return nil, h.wrap(intent, spec.Name, err)
	}

	result := &models.QueryResult{QueryType: models.QueryTypeFieldLookup, Table: spec.Name}
	if len(records) > 0 {
		result.Value = records[0].Values[0]
		if result.Value != nil {
			result.Count = 1
		}
	}
	return result, nil
}

func (h *Handler) list(ctx context.Context, intent models.Intent, caller models.CallerContext) (*models.QueryResult, error) {
	spec, err := h.tableFor(intent)
	if err != nil {
		return nil, err
	}

	b := queries.NewSelect(spec.Name, spec.Columns...).OrderByDesc(spec.DateColumn).Limit(h.config.ListLimit)
	if err := applyFilters(b, spec, intent, caller); err != nil {
		return nil, h.wrap(intent, spec.Name, err)
	}

	records, err := h.fetch(ctx, b)
	if err != nil {
		return nil, h.wrap(intent, spec.Name, err)
	}

	return &models.QueryResult{
		QueryType: models.QueryTypeList,
		Table:     spec.Name,
		Data:      records,
		Count:     len(records),
	}, nil
}

func (h *Handler) fetch(ctx context.Context, b *queries.SelectBuilder) ([]models.Record, error) {
	query, args := b.Build()
	rows, err := h.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	records := []models.Record{}
	for rows.Next() {
		values := make([]interface{}, len(columns))
		ptrs := make([]interface{}, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i, v := range values {
			values[i] = normalizeValue(v)
		}
		records = append(records, models.Record{Columns: columns, Values: values})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func normalizeValue(v interface{}) interface{} {
	switch t := v.(type) {
	case []byte:
		return string(t)
	case time.Time:
		return t.Format(time.RFC3339)
	default:
		return v
	}
}
