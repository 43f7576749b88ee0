package database

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"strconv"

	"github.com/go-sql-driver/mysql"
	"github.com/matthieukhl/segmentor/internal/apperr"
	"github.com/matthieukhl/segmentor/internal/config"
)

type DB struct {
	*sql.DB
	Dialect Dialect
}

// DSN builds the driver connection string from config. An explicit db.dsn
// wins over the individual fields.
func DSN(cfg *config.DBConfig) (string, error) {
	if cfg.DSN != "" {
		return cfg.DSN, nil
	}
	switch cfg.Driver {
	case DialectPostgres.Driver():
		q := url.Values{}
		if cfg.SSLMode != "" {
			q.Set("sslmode", cfg.SSLMode)
		}
		if secs := int(cfg.ConnectTimeout.Seconds()); secs > 0 {
			q.Set("connect_timeout", strconv.Itoa(secs))
		}
		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(cfg.User, cfg.Password),
			Host:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
			Path:     "/" + cfg.Name,
			RawQuery: q.Encode(),
		}
		return u.String(), nil
	case DialectMySQL.Driver():
		mc := mysql.NewConfig()
		mc.User = cfg.User
		mc.Passwd = cfg.Password
		mc.Net = "tcp"
		mc.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
		mc.DBName = cfg.Name
		mc.ParseTime = true
		mc.Timeout = cfg.ConnectTimeout
		return mc.FormatDSN(), nil
	case DialectSQLite.Driver():
		return cfg.Name, nil
	default:
		return "", &apperr.ValidationError{Field: "db.driver", Reason: fmt.Sprintf("unsupported driver %q", cfg.Driver)}
	}
}

// NewConnection opens the configured database and pings it within the connect
// timeout. An unreachable database yields *apperr.ConnectionError.
func NewConnection(ctx context.Context, cfg *config.DBConfig) (*DB, error) {
	dialect, err := DialectFor(cfg.Driver)
	if err != nil {
		return nil, err
	}
	dsn, err := DSN(cfg)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(dialect.Driver(), dsn)
	if err != nil {
		return nil, &apperr.ConnectionError{Driver: cfg.Driver, Err: err}
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	pingCtx := ctx
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, &apperr.ConnectionError{Driver: cfg.Driver, Err: err}
	}

	return &DB{DB: db, Dialect: dialect}, nil
}

// HealthCheck performs a simple health check on the database
func (db *DB) HealthCheck(ctx context.Context) error {
	return db.PingContext(ctx)
}
