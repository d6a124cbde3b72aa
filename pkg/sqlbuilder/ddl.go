package sqlbuilder

import (
	"fmt"
	"strings"
)

// ColumnDef is a column declaration inside CREATE TABLE.
type ColumnDef struct {
	Name    string
	Type    string
	Default string
	Comment string
}

func (c ColumnDef) render() string {
	s := fmt.Sprintf("`%s` %s", c.Name, c.Type)

	if c.Default != "" {
		s += " DEFAULT " + c.Default
	}

	if c.Comment != "" {
		s += " COMMENT " + Quote(c.Comment)
	}

	return s
}

// CreateTable is the typed form of a CREATE TABLE statement.
type CreateTable struct {
	Name        string
	OnCluster   string
	IfNotExists bool
	// Replace renders CREATE OR REPLACE TABLE, used for staging tables that
	// supersede a previous table of the same name.
	Replace bool

	Columns     []ColumnDef
	Engine      string
	PartitionBy string
	OrderBy     []string
	TTL         string
	Settings    map[string]string
}

// SQL renders the statement.
func (t *CreateTable) SQL() (string, error) {
	if t.Name == "" {
		return "", ErrTableRequired
	}

	if len(t.Columns) == 0 {
		return "", ErrNoColumns
	}

	var b strings.Builder

	switch {
	case t.Replace:
		b.WriteString("CREATE OR REPLACE TABLE ")
	case t.IfNotExists:
		b.WriteString("CREATE TABLE IF NOT EXISTS ")
	default:
		b.WriteString("CREATE TABLE ")
	}

	b.WriteString(t.Name)

	if t.OnCluster != "" {
		b.WriteString(" ON CLUSTER " + t.OnCluster)
	}

	b.WriteString("\n(\n")

	for i, col := range t.Columns {
		b.WriteString("    " + col.render())

		if i < len(t.Columns)-1 {
			b.WriteString(",")
		}

		b.WriteString("\n")
	}

	b.WriteString(")")

	if t.Engine != "" {
		b.WriteString("\nENGINE = " + t.Engine)
	}

	if t.PartitionBy != "" {
		b.WriteString("\nPARTITION BY " + t.PartitionBy)
	}

	if len(t.OrderBy) > 0 {
		b.WriteString("\nORDER BY (" + strings.Join(t.OrderBy, ", ") + ")")
	}

	if t.TTL != "" {
		b.WriteString("\nTTL " + t.TTL)
	}

	if clause := RenderSettings(t.Settings); clause != "" {
		b.WriteString("\n" + clause)
	}

	return b.String(), nil
}

// AlterDropPartition is the typed form of ALTER TABLE ... DROP PARTITION.
type AlterDropPartition struct {
	Table     string
	OnCluster string
	IfExists  bool
	Partition string
}

// SQL renders the statement. The partition key is always quoted; ClickHouse
// accepts string partition ids for both toYYYYMMDD and formatDateTime
// partition expressions.
func (a *AlterDropPartition) SQL() (string, error) {
	if a.Table == "" {
		return "", ErrTableRequired
	}

	var b strings.Builder

	b.WriteString("ALTER TABLE " + a.Table)

	if a.OnCluster != "" {
		b.WriteString(" ON CLUSTER " + a.OnCluster)
	}

	b.WriteString(" DROP PARTITION ")

	if a.IfExists {
		b.WriteString("IF EXISTS ")
	}

	b.WriteString(Quote(a.Partition))

	return b.String(), nil
}

// AlterReplacePartition is the typed form of ALTER TABLE ... REPLACE
// PARTITION ... FROM, the atomic per-partition swap used when promoting
// staging data.
type AlterReplacePartition struct {
	Table     string
	OnCluster string
	Partition string
	From      string
}

// SQL renders the statement.
func (a *AlterReplacePartition) SQL() (string, error) {
	if a.Table == "" || a.From == "" {
		return "", ErrTableRequired
	}

	var b strings.Builder

	b.WriteString("ALTER TABLE " + a.Table)

	if a.OnCluster != "" {
		b.WriteString(" ON CLUSTER " + a.OnCluster)
	}

	b.WriteString(" REPLACE PARTITION " + Quote(a.Partition) + " FROM " + a.From)

	return b.String(), nil
}

// AlterDelete is the typed form of ALTER TABLE ... DELETE WHERE, the mutation
// used by the destructive cleanup path.
type AlterDelete struct {
	Table     string
	OnCluster string
	Where     []string
}

// SQL renders the statement.
func (a *AlterDelete) SQL() (string, error) {
	if a.Table == "" {
		return "", ErrTableRequired
	}

	if len(a.Where) == 0 {
		return "", fmt.Errorf("delete on %s: %w", a.Table, ErrWhereRequired)
	}

	var b strings.Builder

	b.WriteString("ALTER TABLE " + a.Table)

	if a.OnCluster != "" {
		b.WriteString(" ON CLUSTER " + a.OnCluster)
	}

	b.WriteString(" DELETE WHERE " + strings.Join(a.Where, " AND "))

	return b.String(), nil
}

// DropTable is the typed form of DROP TABLE.
type DropTable struct {
	Table     string
	OnCluster string
	IfExists  bool
	Sync      bool
}

// SQL renders the statement.
func (d *DropTable) SQL() (string, error) {
	if d.Table == "" {
		return "", ErrTableRequired
	}

	var b strings.Builder

	b.WriteString("DROP TABLE ")

	if d.IfExists {
		b.WriteString("IF EXISTS ")
	}

	b.WriteString(d.Table)

	if d.OnCluster != "" {
		b.WriteString(" ON CLUSTER " + d.OnCluster)
	}

	if d.Sync {
		b.WriteString(" SYNC")
	}

	return b.String(), nil
}
