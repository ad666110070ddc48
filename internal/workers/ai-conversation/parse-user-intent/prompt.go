package parseuserintent

import (
	"fmt"
	"strings"

	"crm-assistant/internal/common/timescope"
	"crm-assistant/internal/models"
)

var systemPrompt = buildSystemPrompt()

// SystemPrompt returns the fixed extraction instruction.
func SystemPrompt() string {
	return systemPrompt
}

func buildSystemPrompt() string {
	var sb strings.Builder

	sb.WriteString("You translate questions about a CRM into a JSON intent. ")
	sb.WriteString("Reply with exactly one JSON object and nothing else: no prose, no code fences.\n\n")

	sb.WriteString("Fields:\n")
	sb.WriteString("- query_type: one of aggregate, record_lookup, field_lookup, list, general_message, unsupported\n")
	sb.WriteString("- table: the table the question is about\n")
	sb.WriteString("- metric: only for aggregate, one of the metrics below\n")
	sb.WriteString("- field: only for field_lookup, the column whose value is asked for\n")
	sb.WriteString("- filters: object of column -> string value equality filters\n")
	sb.WriteString("- scope: \"user\" when the question says my/mine, otherwise \"global\"\n\n")

	sb.WriteString("Tables and columns:\n")
	for _, name := range models.TableNames {
		t := models.Catalog[name]
		fmt.Fprintf(&sb, "- %s: %s\n", t.Name, strings.Join(t.Columns, ", "))
	}

	sb.WriteString("\nAggregate metrics:\n")
	for _, m := range models.Metrics {
		fmt.Fprintf(&sb, "- %s (%s): %s\n", m.Name, m.Table, m.Description)
	}

	fmt.Fprintf(&sb, "\nAggregate filters may only use the keys: %s.\n", strings.Join(models.AggregateFilterKeys, ", "))
	tokens := make([]string, len(timescope.Tokens))
	for i, t := range timescope.Tokens {
		tokens[i] = string(t)
	}
	fmt.Fprintf(&sb, "time_range must be one of: %s. Never output a calendar date.\n", strings.Join(tokens, ", "))
	sb.WriteString("Revenue, money, prices and deal values are not available; use unsupported for them.\n")
	sb.WriteString("Greetings and small talk use general_message. Questions outside the CRM use unsupported.\n\n")

	sb.WriteString("Examples:\n")
	for _, ex := range examples {
		fmt.Fprintf(&sb, "Q: %s\nA: %s\n", ex.question, ex.intent)
	}

	return sb.String()
}

var examples = []struct {
	question string
	intent   string
}{
	{"How many won leads?", `{"query_type":"aggregate","table":"leads","metric":"lead_count","filters":{"status":"Won"},"scope":"global"}`},
	{"How many new leads did I get this week?", `{"query_type":"aggregate","table":"leads","metric":"new_lead_count","filters":{"time_range":"this_week"},"scope":"user"}`},
	{"How many calls were logged last month?", `{"query_type":"aggregate","table":"activities","metric":"call_count","filters":{"time_range":"last_month"},"scope":"global"}`},
	{"Show all pending tasks", `{"query_type":"list","table":"tasks","filters":{"status":"Pending"},"scope":"global"}`},
	{"What is the lead name of LD-101?", `{"query_type":"field_lookup","table":"leads","field":"lead_name","filters":{"lead_id":"LD-101"},"scope":"global"}`},
	{"Show me the lead from Acme Corp", `{"query_type":"record_lookup","table":"leads","filters":{"company":"Acme Corp"},"scope":"global"}`},
	{"Hello!", `{"query_type":"general_message"}`},
	{"What is our total revenue?", `{"query_type":"unsupported"}`},
}
