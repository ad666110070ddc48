package models

// TableSpec describes one table the assistant may read.
type TableSpec struct {
	Name          string
	Columns       []string
	OwnerColumn   string
	DisplayColumn string
	DateColumn    string
	StatusColumn  string
	// FilterAliases are filter keys accepted in addition to the columns.
	FilterAliases []string
	// ScoreScale is the full-scale value of the probability column, e.g. 100
	// for percentages. Zero means scores are stored as 0-1.
	ScoreScale float64
}

// HasColumn reports whether col is one of the table's columns.
func (t TableSpec) HasColumn(col string) bool {
	for _, c := range t.Columns {
		if c == col {
			return true
		}
	}
	return false
}

const (
	TableLeads      = "leads"
	TableTasks      = "tasks"
	TableActivities = "activities"
	TableBookings   = "bookings"
)

// Catalog is the fixed allow-list of readable tables.
var Catalog = map[string]TableSpec{
	TableLeads: {
		Name: TableLeads,
		Columns: []string{
			"id", "lead_code", "lead_name", "company", "email", "phone", "status",
			"source", "probability", "owner_id", "next_action", "created_at", "updated_at",
		},
		OwnerColumn:   "owner_id",
		DisplayColumn: "lead_name",
		DateColumn:    "created_at",
		StatusColumn:  "status",
		FilterAliases: []string{"lead_id"},
		ScoreScale:    100,
	},
	TableTasks: {
		Name: TableTasks,
		Columns: []string{
			"id", "title", "description", "status", "priority", "due_date",
			"lead_id", "assigned_to", "created_at", "updated_at",
		},
		OwnerColumn:   "assigned_to",
		DisplayColumn: "title",
		DateColumn:    "created_at",
		StatusColumn:  "status",
	},
	TableActivities: {
		Name: TableActivities,
		Columns: []string{
			"id", "activity_type", "subject", "notes", "lead_id", "user_id", "created_at",
		},
		OwnerColumn:   "user_id",
		DisplayColumn: "subject",
		DateColumn:    "created_at",
	},
	TableBookings: {
		Name: TableBookings,
		Columns: []string{
			"id", "title", "customer_name", "start_time", "end_time", "status", "host_id", "created_at",
		},
		OwnerColumn:   "host_id",
		DisplayColumn: "title",
		DateColumn:    "start_time",
		StatusColumn:  "status",
	},
}

// TableNames lists the catalog tables in a stable order.
var TableNames = []string{TableLeads, TableTasks, TableActivities, TableBookings}

// AcceptsFilter reports whether key may be used as a row filter on the table.
func (t TableSpec) AcceptsFilter(key string) bool {
	if t.HasColumn(key) {
		return true
	}
	for _, a := range t.FilterAliases {
		if a == key {
			return true
		}
	}
	return false
}

// LookupTable returns the catalog entry for a table in the allow-list.
func LookupTable(name string) (TableSpec, bool) {
	t, ok := Catalog[name]
	return t, ok
}

// LeadCodeColumn holds the human-readable lead identifier such as "LD-101".
const LeadCodeColumn = "lead_code"

// MetricSpec names an aggregate metric and the table it is computed over.
type MetricSpec struct {
	Name        string
	Table       string
	Description string
}

const (
	MetricLeadCount             = "lead_count"
	MetricNewLeadCount          = "new_lead_count"
	MetricWonLeadCount          = "won_lead_count"
	MetricLostLeadCount         = "lost_lead_count"
	MetricQualifiedLeadCount    = "qualified_lead_count"
	MetricConversionProbability = "conversion_probability"
	MetricTaskCount             = "task_count"
	MetricPendingTaskCount      = "pending_task_count"
	MetricCompletedTaskCount    = "completed_task_count"
	MetricOverdueTaskCount      = "overdue_task_count"
	MetricCallCount             = "call_count"
	MetricFollowUpCount         = "follow_up_count"
)

// Metrics is the fixed allow-list of aggregate metrics.
var Metrics = []MetricSpec{
	{MetricLeadCount, TableLeads, "number of leads, optionally by status"},
	{MetricNewLeadCount, TableLeads, "number of leads with status New"},
	{MetricWonLeadCount, TableLeads, "number of leads with status Won"},
	{MetricLostLeadCount, TableLeads, "number of leads with status Lost"},
	{MetricQualifiedLeadCount, TableLeads, "number of qualified leads"},
	{MetricConversionProbability, TableLeads, "average lead conversion probability as a percentage"},
	{MetricTaskCount, TableTasks, "number of tasks, optionally by status"},
	{MetricPendingTaskCount, TableTasks, "number of pending tasks"},
	{MetricCompletedTaskCount, TableTasks, "number of completed tasks"},
	{MetricOverdueTaskCount, TableTasks, "number of open tasks past their due date"},
	{MetricCallCount, TableActivities, "number of call activities"},
	{MetricFollowUpCount, TableActivities, "number of follow-up activities"},
}

// LookupMetric returns the catalog entry of an allowed metric.
func LookupMetric(name string) (MetricSpec, bool) {
	for _, m := range Metrics {
		if m.Name == name {
			return m, true
		}
	}
	return MetricSpec{}, false
}

// AggregateFilterKeys is the only filter keys an aggregate intent may carry.
var AggregateFilterKeys = []string{FilterStatus, FilterTimeRange}
