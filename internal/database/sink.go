package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/matthieukhl/segmentor/internal/apperr"
	"github.com/matthieukhl/segmentor/internal/config"
	"github.com/matthieukhl/segmentor/internal/models"
	log "github.com/sirupsen/logrus"
)

// Sink writes the feature and cluster tables. Each logical write runs in one
// transaction and is committed once at the end.
type Sink struct {
	db        *DB
	batchSize int
}

func NewSink(db *DB, batchSize int) *Sink {
	if batchSize < 1 {
		batchSize = 500
	}
	return &Sink{db: db, batchSize: batchSize}
}

func featureValues(f models.CustomerFeatures) []any {
	return []any{f.CustomerID, f.TotalSpend, f.NumOrders, f.AvgOrderValue, f.RecencyDays}
}

// WriteFeatures stores the features table under mode.
func (s *Sink) WriteFeatures(ctx context.Context, rows []models.CustomerFeatures, mode string) error {
	values := make([][]any, len(rows))
	for i, f := range rows {
		values[i] = featureValues(f)
	}
	return s.write(ctx, FeaturesTable, values, mode)
}

// WriteSegments stores the segmented table under mode.
func (s *Sink) WriteSegments(ctx context.Context, rows []models.SegmentedCustomer, mode string) error {
	values := make([][]any, len(rows))
	for i, r := range rows {
		values[i] = append(featureValues(r.CustomerFeatures), r.Cluster)
	}
	return s.write(ctx, ClustersTable, values, mode)
}

func (s *Sink) write(ctx context.Context, t Table, rows [][]any, mode string) (err error) {
	switch mode {
	case config.ModeUpsert, config.ModeTruncate, config.ModeAppend:
	default:
		return &apperr.ValidationError{Field: "write mode", Reason: fmt.Sprintf("unknown mode %q", mode)}
	}
	if err := t.ValidateRows(rows); err != nil {
		return err
	}

	logger := log.WithFields(log.Fields{"table": t.Name, "rows": len(rows), "mode": mode})
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				logger.WithError(rbErr).Warn("Rollback failed")
			}
		}
	}()

	if mode == config.ModeTruncate {
		if _, err = tx.ExecContext(ctx, "DELETE FROM "+t.Name); err != nil {
			return fmt.Errorf("failed to clear %s: %w", t.Name, err)
		}
	}

	batch := BatchRows(s.db.Dialect, t, s.batchSize)
	if batch < s.batchSize {
		logger.WithFields(log.Fields{"batch_size": s.batchSize, "capped": batch}).Debug("Batch size capped at bind parameter limit")
	}
	for start := 0; start < len(rows); start += batch {
		end := min(start+batch, len(rows))
		if err = s.insertBatch(ctx, tx, t, rows[start:end], mode == config.ModeUpsert); err != nil {
			if isDuplicateKey(err) {
				return &apperr.ConstraintError{Table: t.Name, Err: err}
			}
			return fmt.Errorf("failed to write %s: %w", t.Name, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit %s: %w", t.Name, err)
	}
	logger.Info("Table written")
	return nil
}

// BatchRows caps the rows per INSERT so a batch stays within the dialect's
// bind parameter limit.
func BatchRows(d Dialect, t Table, requested int) int {
	return max(1, min(requested, d.MaxParams()/len(t.Columns)))
}

// InsertSQL renders a multi-row INSERT for n rows, optionally as an upsert.
func InsertSQL(d Dialect, t Table, n int, upsert bool) string {
	cols := t.ColumnNames()
	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES ", t.Name, strings.Join(cols, ", "))
	p := 1
	for r := 0; r < n; r++ {
		if r > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for c := range cols {
			if c > 0 {
				b.WriteString(", ")
			}
			b.WriteString(d.Placeholder(p))
			p++
		}
		b.WriteByte(')')
	}
	if upsert {
		b.WriteString(d.upsertClause(t))
	}
	return b.String()
}

func (s *Sink) insertBatch(ctx context.Context, tx *sql.Tx, t Table, rows [][]any, upsert bool) error {
	args := make([]any, 0, len(rows)*len(t.Columns))
	for _, r := range rows {
		args = append(args, r...)
	}
	_, err := tx.ExecContext(ctx, InsertSQL(s.db.Dialect, t, len(rows), upsert), args...)
	return err
}
