// Package sqlbuilder provides a typed intermediate representation for the
// ClickHouse statements this project generates. Statements are assembled from
// per-clause values (select columns, joins, filters, group-by) and rendered to
// text only at the boundary, so table and column references live in code
// rather than format strings.
package sqlbuilder

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrTableRequired is returned when a statement is rendered without a table name
	ErrTableRequired = errors.New("table name is required")
	// ErrNoColumns is returned when a statement is rendered without any columns
	ErrNoColumns = errors.New("at least one column is required")
	// ErrEmptyFrom is returned when a select has neither a table nor a subquery source
	ErrEmptyFrom = errors.New("select requires a FROM table or subquery")
	// ErrWhereRequired is returned when a destructive statement is rendered without any predicate
	ErrWhereRequired = errors.New("destructive statement requires a WHERE clause")
)

// JoinKind is the join operator rendered between the driving table and a
// joined source.
type JoinKind string

// Supported join kinds.
const (
	InnerJoin JoinKind = "INNER JOIN"
	LeftJoin  JoinKind = "LEFT JOIN"
)

// SelectColumn is a single select-list entry.
type SelectColumn struct {
	Expr  string
	Alias string
}

// Col is a shorthand for a bare column reference.
func Col(expr string) SelectColumn {
	return SelectColumn{Expr: expr}
}

// ColAs is a shorthand for an aliased expression.
func ColAs(expr, alias string) SelectColumn {
	return SelectColumn{Expr: expr, Alias: alias}
}

func (c SelectColumn) render() string {
	if c.Alias == "" || c.Alias == c.Expr {
		return c.Expr
	}

	return fmt.Sprintf("%s AS %s", c.Expr, c.Alias)
}

// TableRef names a select source: either a concrete table or a subquery.
type TableRef struct {
	Name  string
	Sub   *SelectQuery
	Alias string
}

// Table references a named table with an alias.
func Table(name, alias string) TableRef {
	return TableRef{Name: name, Alias: alias}
}

// Subquery references a nested select with an alias.
func Subquery(q *SelectQuery, alias string) TableRef {
	return TableRef{Sub: q, Alias: alias}
}

func (t TableRef) render(indent string) (string, error) {
	var source string

	switch {
	case t.Sub != nil:
		inner, err := t.Sub.render(indent + "    ")
		if err != nil {
			return "", err
		}

		source = fmt.Sprintf("(\n%s\n%s)", inner, indent)
	case t.Name != "":
		source = t.Name
	default:
		return "", ErrEmptyFrom
	}

	if t.Alias != "" {
		source += " AS " + t.Alias
	}

	return source, nil
}

// Join attaches a source to the driving table of a select.
type Join struct {
	Kind  JoinKind
	Table TableRef
	On    []string
}

// SelectQuery is the typed form of one SELECT statement. Where conditions are
// combined with AND; empty clause slices are omitted from the rendered text.
type SelectQuery struct {
	Columns []SelectColumn
	From    TableRef
	Joins   []Join
	Where   []string
	GroupBy []string
	Having  []string
	OrderBy []string

	// Settings is rendered as a trailing SETTINGS clause. An empty map
	// renders nothing so callers never emit a dangling keyword.
	Settings map[string]string
}

// SQL renders the statement.
func (q *SelectQuery) SQL() (string, error) {
	return q.render("")
}

func (q *SelectQuery) render(indent string) (string, error) {
	if len(q.Columns) == 0 {
		return "", ErrNoColumns
	}

	var b strings.Builder

	b.WriteString(indent + "SELECT\n")

	for i, col := range q.Columns {
		b.WriteString(indent + "    " + col.render())

		if i < len(q.Columns)-1 {
			b.WriteString(",")
		}

		b.WriteString("\n")
	}

	from, err := q.From.render(indent)
	if err != nil {
		return "", err
	}

	b.WriteString(indent + "FROM " + from)

	for _, j := range q.Joins {
		source, jerr := j.Table.render(indent)
		if jerr != nil {
			return "", jerr
		}

		b.WriteString("\n" + indent + string(j.Kind) + " " + source)

		if len(j.On) > 0 {
			b.WriteString(" ON " + strings.Join(j.On, " AND "))
		}
	}

	if len(q.Where) > 0 {
		b.WriteString("\n" + indent + "WHERE " + strings.Join(q.Where, "\n"+indent+"    AND "))
	}

	if len(q.GroupBy) > 0 {
		b.WriteString("\n" + indent + "GROUP BY " + strings.Join(q.GroupBy, ", "))
	}

	if len(q.Having) > 0 {
		b.WriteString("\n" + indent + "HAVING " + strings.Join(q.Having, " AND "))
	}

	if len(q.OrderBy) > 0 {
		b.WriteString("\n" + indent + "ORDER BY " + strings.Join(q.OrderBy, ", "))
	}

	if clause := RenderSettings(q.Settings); clause != "" {
		b.WriteString("\n" + indent + clause)
	}

	return b.String(), nil
}

// InsertQuery renders INSERT INTO <table> (<columns>) <select>. The column
// list is always explicit so the select list and the destination schema stay
// aligned by position.
type InsertQuery struct {
	Table   string
	Columns []string
	Select  *SelectQuery
}

// SQL renders the statement.
func (q *InsertQuery) SQL() (string, error) {
	if q.Table == "" {
		return "", ErrTableRequired
	}

	if len(q.Columns) == 0 {
		return "", ErrNoColumns
	}

	sel, err := q.Select.SQL()
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("INSERT INTO %s\n(%s)\n%s", q.Table, strings.Join(q.Columns, ", "), sel), nil
}

// RenderSettings renders a SETTINGS clause from a settings map, with keys in
// deterministic order. Returns the empty string when no settings are present.
func RenderSettings(settings map[string]string) string {
	if len(settings) == 0 {
		return ""
	}

	keys := make([]string, 0, len(settings))
	for k := range settings {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, fmt.Sprintf("%s = %s", k, settings[k]))
	}

	return "SETTINGS " + strings.Join(pairs, ", ")
}

// Fn renders a function call expression.
func Fn(name string, args ...string) string {
	return fmt.Sprintf("%s(%s)", name, strings.Join(args, ", "))
}

// Quote renders a single-quoted string literal, escaping embedded quotes and
// backslashes the way ClickHouse expects.
func Quote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `'`, `\'`)

	return "'" + s + "'"
}

// InInt64 renders an IN predicate over an integer list.
func InInt64(expr string, values []int64) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprintf("%d", v)
	}

	return fmt.Sprintf("%s IN (%s)", expr, strings.Join(parts, ", "))
}
