package queries

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/lib/pq"
)

var ErrInconsistentQuery = errors.New("query builder produced mismatched placeholders")

type predicateKind int

const (
	predEquals predicateKind = iota
	predAtLeast
	predAtMost
	predInLeadCode
	predIsNotNull
)

// step is one recorded predicate; the WHERE clause can always be rebuilt from steps.
type step struct {
	kind   predicateKind
	column string
	value  interface{}
}

// SelectBuilder renders parameterized SELECT statements over a single catalog
// table. Identifiers are quoted and every value is a $n bind argument.
type SelectBuilder struct {
	table   string
	columns []string
	orderBy string
	limit   int

	steps   []step
	clauses []string
	args    []interface{}

	rebuilds int
}

// NewSelect starts a query over table returning columns. A single "COUNT(*)"
// column is rendered verbatim.
func NewSelect(table string, columns ...string) *SelectBuilder {
	return &SelectBuilder{table: table, columns: columns}
}

func (b *SelectBuilder) Where(column string, value interface{}) error {
	return b.add(step{kind: predEquals, column: column, value: value})
}

func (b *SelectBuilder) WhereAtLeast(column string, value interface{}) error {
	return b.add(step{kind: predAtLeast, column: column, value: value})
}

func (b *SelectBuilder) WhereAtMost(column string, value interface{}) error {
	return b.add(step{kind: predAtMost, column: column, value: value})
}

func (b *SelectBuilder) WhereNotNull(column string) error {
	return b.add(step{kind: predIsNotNull, column: column})
}

// WhereLeadCode matches column (a lead foreign key) against the lead whose
// display code equals code.
func (b *SelectBuilder) WhereLeadCode(column, code string) error {
	return b.add(step{kind: predInLeadCode, column: column, value: code})
}

func (b *SelectBuilder) OrderByDesc(column string) *SelectBuilder {
	b.orderBy = column
	return b
}

func (b *SelectBuilder) Limit(n int) *SelectBuilder {
	b.limit = n
	return b
}

// Rebuilds reports how many times the WHERE clause was rebuilt from its steps.
func (b *SelectBuilder) Rebuilds() int {
	return b.rebuilds
}

func (b *SelectBuilder) add(s step) error {
	b.steps = append(b.steps, s)
	b.render(s)

	if b.consistent() {
		return nil
	}
	b.rebuild()
	if b.consistent() {
		return nil
	}
	return fmt.Errorf("%w: %d clauses, %d args", ErrInconsistentQuery, len(b.clauses), len(b.args))
}

func (b *SelectBuilder) render(s step) {
	col := pq.QuoteIdentifier(s.column)
	next := func() string {
		return "$" + strconv.Itoa(len(b.args)+1)
	}

	switch s.kind {
	case predEquals:
		b.clauses = append(b.clauses, col+" = "+next())
		b.args = append(b.args, s.value)
	case predAtLeast:
		b.clauses = append(b.clauses, col+" >= "+next())
		b.args = append(b.args, s.value)
	case predAtMost:
		b.clauses = append(b.clauses, col+" <= "+next())
		b.args = append(b.args, s.value)
	case predIsNotNull:
		b.clauses = append(b.clauses, col+" IS NOT NULL")
	case predInLeadCode:
		b.clauses = append(b.clauses, fmt.Sprintf("%s IN (SELECT %s FROM %s WHERE %s = %s)",
			col, pq.QuoteIdentifier("id"), pq.QuoteIdentifier("leads"), pq.QuoteIdentifier("lead_code"), next()))
		b.args = append(b.args, s.value)
	}
}

// rebuild discards the rendered clause state and replays the recorded steps.
func (b *SelectBuilder) rebuild() {
	b.rebuilds++
	b.clauses = nil
	b.args = nil
	for _, s := range b.steps {
		b.render(s)
	}
}

var placeholderRe = regexp.MustCompile(`\$(\d+)`)

// consistent checks that placeholders are exactly $1..$len(args), in order.
func (b *SelectBuilder) consistent() bool {
	matches := placeholderRe.FindAllStringSubmatch(strings.Join(b.clauses, " "), -1)
	if len(matches) != len(b.args) {
		return false
	}
	for i, m := range matches {
		if m[1] != strconv.Itoa(i+1) {
			return false
		}
	}
	return true
}

// Build returns the SQL text and its bind arguments.
func (b *SelectBuilder) Build() (string, []interface{}) {
	cols := make([]string, len(b.columns))
	for i, c := range b.columns {
		if c == "COUNT(*)" {
			cols[i] = c
			continue
		}
		cols[i] = pq.QuoteIdentifier(c)
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(cols, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(pq.QuoteIdentifier(b.table))
	if len(b.clauses) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(b.clauses, " AND "))
	}
	if b.orderBy != "" {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(pq.QuoteIdentifier(b.orderBy))
		sb.WriteString(" DESC")
	}
	if b.limit > 0 {
		sb.WriteString(" LIMIT ")
		sb.WriteString(strconv.Itoa(b.limit))
	}

	args := make([]interface{}, len(b.args))
	copy(args, b.args)
	return sb.String(), args
}
