// Package queries holds the fixed, audited set of aggregate metric templates.
// Natural language can only select among these; nothing here builds free-form SQL.
package queries

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"crm-assistant/internal/common/timescope"
	"crm-assistant/internal/models"
)

var ErrUnknownMetric = errors.New("unknown metric")

// Request carries the validated inputs of one aggregate query.
type Request struct {
	Filters map[string]string
	Caller  models.CallerContext
	Scope   models.Scope
	Now     time.Time
}

// Strategy computes one metric.
type Strategy interface {
	Table() string
	Execute(ctx context.Context, db *sql.DB, req Request) (interface{}, error)
}

var Registry = map[string]Strategy{
	models.MetricLeadCount:          countStrategy{table: models.TableLeads, allowStatusFilter: true},
	models.MetricNewLeadCount:       countStrategy{table: models.TableLeads, status: "New"},
	models.MetricWonLeadCount:       countStrategy{table: models.TableLeads, status: "Won"},
	models.MetricLostLeadCount:      countStrategy{table: models.TableLeads, status: "Lost"},
	models.MetricTaskCount:          countStrategy{table: models.TableTasks, allowStatusFilter: true},
	models.MetricPendingTaskCount:   countStrategy{table: models.TableTasks, status: "Pending"},
	models.MetricCompletedTaskCount: countStrategy{table: models.TableTasks, status: "Completed"},

	models.MetricQualifiedLeadCount: fetchCountStrategy{
		table:   models.TableLeads,
		columns: []string{"status"},
		match:   isQualified,
	},
	models.MetricOverdueTaskCount: fetchCountStrategy{
		table:             models.TableTasks,
		columns:           []string{"due_date", "status"},
		allowStatusFilter: true,
		notNull:           "due_date",
		match:             isOverdue,
	},
	models.MetricCallCount: fetchCountStrategy{
		table:   models.TableActivities,
		columns: []string{"activity_type"},
		match:   isCall,
	},
	models.MetricFollowUpCount: fetchCountStrategy{
		table:   models.TableActivities,
		columns: []string{"activity_type", "subject"},
		match:   isFollowUp,
	},

	models.MetricConversionProbability: averageProbabilityStrategy{table: models.TableLeads, column: "probability"},
}

// Execute runs the strategy registered for metric.
func Execute(ctx context.Context, db *sql.DB, metric string, req Request) (interface{}, error) {
	s, exists := Registry[metric]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMetric, metric)
	}
	return s.Execute(ctx, db, req)
}

var titleCaser = cases.Title(language.English)

// NormalizeStatus title-cases a status value so "won" and "WON" match "Won".
func NormalizeStatus(s string) string {
	return titleCaser.String(strings.ToLower(strings.TrimSpace(s)))
}

// applySlots adds the fixed optional predicate slots shared by every metric:
// status, date range and ownership.
func applySlots(b *SelectBuilder, table models.TableSpec, req Request, status string, allowStatusFilter bool) error {
	if status == "" && allowStatusFilter && table.StatusColumn != "" {
		status = NormalizeStatus(req.Filters[models.FilterStatus])
	}
	if status != "" {
		if err := b.Where(table.StatusColumn, status); err != nil {
			return err
		}
	}

	if token, ok := req.Filters[models.FilterTimeRange]; ok && table.DateColumn != "" {
		r := timescope.ResolveTimeRange(token, req.Now)
		if err := b.WhereAtLeast(table.DateColumn, r.Start); err != nil {
			return err
		}
		if err := b.WhereAtMost(table.DateColumn, r.End); err != nil {
			return err
		}
	}

	if col, id, ok := timescope.OwnershipPredicate(table.Name, req.Scope, req.Caller); ok {
		if err := b.Where(col, id); err != nil {
			return err
		}
	}
	return nil
}
