package database

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/matthieukhl/segmentor/internal/apperr"
	"github.com/mattn/go-sqlite3"
)

// Dialect captures the SQL differences between the supported drivers.
type Dialect int

const (
	DialectPostgres Dialect = iota
	DialectMySQL
	DialectSQLite
)

func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case "postgres":
		return DialectPostgres, nil
	case "mysql":
		return DialectMySQL, nil
	case "sqlite3":
		return DialectSQLite, nil
	}
	return 0, &apperr.ValidationError{Field: "db.driver", Reason: fmt.Sprintf("unsupported driver %q", driver)}
}

// Driver is the database/sql driver name.
func (d Dialect) Driver() string {
	switch d {
	case DialectMySQL:
		return "mysql"
	case DialectSQLite:
		return "sqlite3"
	default:
		return "postgres"
	}
}

func (d Dialect) String() string { return d.Driver() }

// Placeholder returns the n-th (1-based) bind parameter.
func (d Dialect) Placeholder(n int) string {
	if d == DialectPostgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// MaxParams is the number of bind parameters one statement may carry.
func (d Dialect) MaxParams() int {
	if d == DialectSQLite {
		return 32766
	}
	return 65535
}

func (d Dialect) columnType(k Kind) string {
	switch k {
	case KindBigInt:
		return "BIGINT"
	case KindInt:
		return "INTEGER"
	case KindFloat:
		switch d {
		case DialectPostgres:
			return "DOUBLE PRECISION"
		case DialectMySQL:
			return "DOUBLE"
		default:
			return "REAL"
		}
	case KindKey:
		return "VARCHAR(64)"
	case KindTime:
		switch d {
		case DialectPostgres:
			return "TIMESTAMPTZ"
		case DialectMySQL:
			return "DATETIME(6)"
		default:
			return "TIMESTAMP"
		}
	default:
		return "TEXT"
	}
}

// upsertClause is appended to a multi-row INSERT so that rows whose primary key
// already exists are updated in place.
func (d Dialect) upsertClause(t Table) string {
	var sets []string
	for _, c := range t.Columns {
		if c.Name == t.PrimaryKey {
			continue
		}
		if d == DialectMySQL {
			sets = append(sets, fmt.Sprintf("%s = VALUES(%s)", c.Name, c.Name))
		} else {
			sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", c.Name, c.Name))
		}
	}
	if d == DialectMySQL {
		return " ON DUPLICATE KEY UPDATE " + strings.Join(sets, ", ")
	}
	return fmt.Sprintf(" ON CONFLICT (%s) DO UPDATE SET %s", t.PrimaryKey, strings.Join(sets, ", "))
}

// isDuplicateKey reports whether err is a primary key or unique violation from
// any supported driver.
func isDuplicateKey(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey || liteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}
