package database

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/matthieukhl/segmentor/internal/apperr"
	"github.com/matthieukhl/segmentor/internal/models"
)

// SchemaVersion is bumped whenever a table definition below changes.
const SchemaVersion = 1

type Kind int

const (
	KindBigInt Kind = iota
	KindInt
	KindFloat
	KindKey
	KindText
	KindTime
)

// Column is one column of a table. Header is the matching CSV column name, if
// the column comes from a table file.
type Column struct {
	Name     string
	Kind     Kind
	Nullable bool
	Header   string
}

type Table struct {
	Name       string
	Columns    []Column
	PrimaryKey string
}

var featureColumns = []Column{
	{Name: "customer_id", Kind: KindBigInt, Header: models.ColCustomerID},
	{Name: "total_spend", Kind: KindFloat, Header: models.ColTotalSpend},
	{Name: "num_orders", Kind: KindInt, Header: models.ColNumOrders},
	{Name: "avg_order_value", Kind: KindFloat, Header: models.ColAvgOrderValue},
	{Name: "recency_days", Kind: KindInt, Header: models.ColRecencyDays},
}

var (
	FeaturesTable = Table{
		Name:       "dim_customer_features",
		Columns:    featureColumns,
		PrimaryKey: "customer_id",
	}
	ClustersTable = Table{
		Name:       "dim_customer_clusters",
		Columns:    append(append([]Column{}, featureColumns...), Column{Name: "cluster", Kind: KindInt, Header: models.ColCluster}),
		PrimaryKey: "customer_id",
	}
	RunsTable = Table{
		Name: "pipeline_runs",
		Columns: []Column{
			{Name: "id", Kind: KindKey},
			{Name: "started_at", Kind: KindTime},
			{Name: "finished_at", Kind: KindTime, Nullable: true},
			{Name: "status", Kind: KindKey},
			{Name: "num_customers", Kind: KindInt},
			{Name: "k", Kind: KindInt},
			{Name: "seed", Kind: KindBigInt},
			{Name: "inertia", Kind: KindFloat},
			{Name: "error", Kind: KindText, Nullable: true},
		},
		PrimaryKey: "id",
	}
	VersionTable = Table{
		Name: "segmentor_schema",
		Columns: []Column{
			{Name: "version", Kind: KindInt},
			{Name: "applied_at", Kind: KindTime},
		},
		PrimaryKey: "version",
	}
)

// Tables lists every table owned by the pipeline, in creation order.
var Tables = []Table{VersionTable, FeaturesTable, ClustersTable, RunsTable}

// ColumnNames returns the SQL column names in order.
func (t Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// CreateSQL renders CREATE TABLE IF NOT EXISTS for the dialect.
func (t Table) CreateSQL(d Dialect) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", t.Name)
	for _, c := range t.Columns {
		null := " NOT NULL"
		if c.Nullable {
			null = ""
		}
		fmt.Fprintf(&b, "    %s %s%s,\n", c.Name, d.columnType(c.Kind), null)
	}
	fmt.Fprintf(&b, "    PRIMARY KEY (%s)\n)", t.PrimaryKey)
	return b.String()
}

// ValidateHeader checks that a table file's header carries every column this
// table stores.
func (t Table) ValidateHeader(header []string) error {
	have := make(map[string]bool, len(header))
	for _, h := range header {
		have[h] = true
	}
	var missing []string
	for _, c := range t.Columns {
		if c.Header != "" && !have[c.Header] {
			missing = append(missing, c.Header)
		}
	}
	if len(missing) > 0 {
		return &apperr.SchemaError{Source: t.Name, Missing: missing}
	}
	return nil
}

// ValidateRows checks rows against the table's constraints before they are
// written: every value must match its column, ids must be unique within the
// write and counts must be in range.
func (t Table) ValidateRows(rows [][]any) error {
	pk := -1
	for i, c := range t.Columns {
		if c.Name == t.PrimaryKey {
			pk = i
		}
	}
	seen := make(map[any]bool, len(rows))
	for r, row := range rows {
		if len(row) != len(t.Columns) {
			return &apperr.ValidationError{
				Field:  t.Name,
				Reason: fmt.Sprintf("row %d has %d values for %d columns", r+1, len(row), len(t.Columns)),
			}
		}
		for i, c := range t.Columns {
			if err := checkValue(c, row[i]); err != nil {
				return &apperr.ValidationError{Field: t.Name + "." + c.Name, Reason: fmt.Sprintf("row %d: %s", r+1, err)}
			}
		}
		if pk >= 0 {
			if seen[row[pk]] {
				return &apperr.ValidationError{Field: t.Name + "." + t.PrimaryKey, Reason: fmt.Sprintf("duplicate key %v in row %d", row[pk], r+1)}
			}
			seen[row[pk]] = true
		}
	}
	return nil
}

func checkValue(c Column, v any) error {
	if v == nil {
		if c.Nullable {
			return nil
		}
		return fmt.Errorf("null value")
	}
	switch c.Kind {
	case KindBigInt:
		if _, ok := v.(int64); !ok {
			return fmt.Errorf("expected int64, got %T", v)
		}
	case KindInt:
		n, ok := v.(int)
		if !ok {
			return fmt.Errorf("expected int, got %T", v)
		}
		switch c.Name {
		case "num_orders":
			if n < 1 {
				return fmt.Errorf("must be at least 1, got %d", n)
			}
		case "recency_days", "cluster":
			if n < 0 {
				return fmt.Errorf("must not be negative, got %d", n)
			}
		}
	case KindFloat:
		f, ok := v.(float64)
		if !ok {
			return fmt.Errorf("expected float64, got %T", v)
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("not a finite number")
		}
	case KindKey, KindText:
		if _, ok := v.(string); !ok {
			return fmt.Errorf("expected string, got %T", v)
		}
	case KindTime:
		if _, ok := v.(time.Time); !ok {
			return fmt.Errorf("expected time, got %T", v)
		}
	}
	return nil
}

// Migrate creates every table that does not exist yet and records the schema
// version. A database already at a newer version is rejected.
func (db *DB) Migrate(ctx context.Context) error {
	for _, t := range Tables {
		if _, err := db.ExecContext(ctx, t.CreateSQL(db.Dialect)); err != nil {
			return fmt.Errorf("failed to create %s: %w", t.Name, err)
		}
	}

	var current sql.NullInt64
	if err := db.QueryRowContext(ctx, "SELECT MAX(version) FROM "+VersionTable.Name).Scan(&current); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	switch {
	case current.Valid && current.Int64 > SchemaVersion:
		return &apperr.ValidationError{
			Field:  VersionTable.Name,
			Reason: fmt.Sprintf("database is at version %d, this build knows %d", current.Int64, SchemaVersion),
		}
	case current.Valid && current.Int64 == SchemaVersion:
		return nil
	}

	q := fmt.Sprintf("INSERT INTO %s (version, applied_at) VALUES (%s, %s)",
		VersionTable.Name, db.Dialect.Placeholder(1), db.Dialect.Placeholder(2))
	if _, err := db.ExecContext(ctx, q, SchemaVersion, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}
	return nil
}

// Version returns the recorded schema version, 0 when none.
func (db *DB) Version(ctx context.Context) (int, error) {
	var v sql.NullInt64
	if err := db.QueryRowContext(ctx, "SELECT MAX(version) FROM "+VersionTable.Name).Scan(&v); err != nil {
		return 0, err
	}
	return int(v.Int64), nil
}

// DropAll removes every pipeline table.
func (db *DB) DropAll(ctx context.Context) error {
	for i := len(Tables) - 1; i >= 0; i-- {
		if _, err := db.ExecContext(ctx, "DROP TABLE IF EXISTS "+Tables[i].Name); err != nil {
			return fmt.Errorf("failed to drop %s: %w", Tables[i].Name, err)
		}
	}
	return nil
}
