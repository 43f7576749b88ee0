package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/matthieukhl/segmentor/internal/models"
)

// ClusterCount is the number of stored customers in one cluster.
type ClusterCount struct {
	Cluster int `json:"cluster"`
	Count   int `json:"count"`
}

func (db *DB) placeholders(from, n int) string {
	ps := make([]string, n)
	for i := range ps {
		ps[i] = db.Dialect.Placeholder(from + i)
	}
	return strings.Join(ps, ", ")
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

// RecordRun inserts a run row, normally in the running state.
func (db *DB) RecordRun(ctx context.Context, run *models.PipelineRun) error {
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		RunsTable.Name, strings.Join(RunsTable.ColumnNames(), ", "), db.placeholders(1, len(RunsTable.Columns)))
	_, err := db.ExecContext(ctx, q,
		run.ID, run.StartedAt.UTC(), nullableTime(run.FinishedAt), run.Status,
		run.NumCustomers, run.K, run.Seed, run.Inertia, nullableString(run.Error))
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", run.ID, err)
	}
	return nil
}

// FinishRun updates the outcome columns of an existing run.
func (db *DB) FinishRun(ctx context.Context, run *models.PipelineRun) error {
	d := db.Dialect
	q := fmt.Sprintf("UPDATE %s SET finished_at = %s, status = %s, num_customers = %s, inertia = %s, error = %s WHERE id = %s",
		RunsTable.Name, d.Placeholder(1), d.Placeholder(2), d.Placeholder(3), d.Placeholder(4), d.Placeholder(5), d.Placeholder(6))
	res, err := db.ExecContext(ctx, q,
		nullableTime(run.FinishedAt), run.Status, run.NumCustomers, run.Inertia, nullableString(run.Error), run.ID)
	if err != nil {
		return fmt.Errorf("failed to finish run %s: %w", run.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("run %s not found", run.ID)
	}
	return nil
}

// RecentRuns returns up to limit runs, newest first.
func (db *DB) RecentRuns(ctx context.Context, limit int) ([]models.PipelineRun, error) {
	q := fmt.Sprintf("SELECT %s FROM %s ORDER BY started_at DESC LIMIT %d",
		strings.Join(RunsTable.ColumnNames(), ", "), RunsTable.Name, limit)
	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []models.PipelineRun
	for rows.Next() {
		var (
			r        models.PipelineRun
			finished sql.NullTime
			errText  sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.StartedAt, &finished, &r.Status, &r.NumCustomers, &r.K, &r.Seed, &r.Inertia, &errText); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if finished.Valid {
			t := finished.Time
			r.FinishedAt = &t
		}
		r.Error = errText.String
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// ClusterCounts returns stored customers per cluster, ordered by cluster.
func (db *DB) ClusterCounts(ctx context.Context) ([]ClusterCount, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf(
		"SELECT cluster, COUNT(*) FROM %s GROUP BY cluster ORDER BY cluster", ClustersTable.Name))
	if err != nil {
		return nil, fmt.Errorf("failed to query cluster counts: %w", err)
	}
	defer rows.Close()

	var out []ClusterCount
	for rows.Next() {
		var c ClusterCount
		if err := rows.Scan(&c.Cluster, &c.Count); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// LoadSegments reads the stored segmented table ordered by customer id.
func (db *DB) LoadSegments(ctx context.Context) ([]models.SegmentedCustomer, error) {
	q := fmt.Sprintf("SELECT %s FROM %s ORDER BY customer_id",
		strings.Join(ClustersTable.ColumnNames(), ", "), ClustersTable.Name)
	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to query segments: %w", err)
	}
	defer rows.Close()

	var out []models.SegmentedCustomer
	for rows.Next() {
		var r models.SegmentedCustomer
		if err := rows.Scan(&r.CustomerID, &r.TotalSpend, &r.NumOrders, &r.AvgOrderValue, &r.RecencyDays, &r.Cluster); err != nil {
			return nil, fmt.Errorf("failed to scan segment: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
