package collab

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/dolthub/driver"      // registers "dolt" driver (embedded, versioned upstream sources)
	_ "github.com/go-sql-driver/mysql" // registers "mysql" driver
	_ "github.com/lib/pq"              // registers "postgres" driver (Redshift speaks the Postgres wire protocol)
)

// ConnectOptions controls how a connection is acquired: read-only
// connections are capped to a single open connection, autocommit
// connections disable idle connection reuse.
type ConnectOptions struct {
	ReadOnly   bool
	Autocommit bool
}

// ScopedConn is a connection acquired for the duration of one operation.
// Callers must release it on every exit path; no connection should outlive
// the task that acquired it.
type ScopedConn struct {
	DB     *sql.DB
	Driver string
	dsn    string
	owned  bool
}

// Close releases the underlying *sql.DB if this ScopedConn owns it.
func (c *ScopedConn) Close() error {
	if !c.owned || c.DB == nil {
		return nil
	}
	return c.DB.Close()
}

// SQL is the warehouse/source connection collaborator. Driver
// selection is keyed by the scheme of the DSN ("postgres://", "mysql://",
// "dolt://") so a single ExtractorBase can extract from heterogeneous
// upstream sources in the same run.
type SQL struct {
	// ConnectTimeout bounds a single connection attempt.
	ConnectTimeout time.Duration
	// MaxRetries bounds the backoff-driven retry loop in Connect.
	MaxRetries uint64
}

// NewSQL returns a SQL collaborator with sensible defaults.
func NewSQL() *SQL {
	return &SQL{ConnectTimeout: 10 * time.Second, MaxRetries: 4}
}

// Connect opens a short-lived, retried connection to dsn. The caller must
// Close() the returned ScopedConn on every exit path.
//
// Only the connection handshake is retried here; extraction-level retry
// decisions belong to the caller.
func (s *SQL) Connect(ctx context.Context, driverName, dsn string, opts ConnectOptions) (*ScopedConn, error) {
	var db *sql.DB

	operation := func() error {
		var err error
		db, err = sql.Open(driverName, dsn)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("open %s dsn: %w", driverName, err))
		}
		pingCtx, cancel := context.WithTimeout(ctx, s.ConnectTimeout)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			_ = db.Close()
			return fmt.Errorf("ping %s: %w", driverName, err)
		}
		return nil
	}

	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), s.MaxRetries)
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		return nil, fmt.Errorf("connect %s: %w", driverName, err)
	}

	if opts.ReadOnly {
		db.SetMaxOpenConns(1)
	}
	if opts.Autocommit {
		db.SetMaxIdleConns(0)
	}

	return &ScopedConn{DB: db, Driver: driverName, dsn: dsn, owned: true}, nil
}

// FetchTableSize returns the upstream table's on-disk byte size, used to
// compute the extraction mapper count.
func (s *SQL) FetchTableSize(ctx context.Context, conn *ScopedConn, identifier string) (int64, error) {
	var sizeQuery string
	switch conn.Driver {
	case "postgres":
		sizeQuery = "SELECT pg_total_relation_size($1)"
	case "mysql", "dolt":
		sizeQuery = "SELECT COALESCE(SUM(data_length + index_length), 0) FROM information_schema.tables WHERE CONCAT(table_schema, '.', table_name) = ?"
	default:
		return 0, fmt.Errorf("fetch table size: unsupported driver %q", conn.Driver)
	}

	var size int64
	if err := conn.DB.QueryRowContext(ctx, sizeQuery, identifier).Scan(&size); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("fetch table size for %q: %w", identifier, err)
	}
	return size, nil
}

// DriverForDSN picks the registered database/sql driver name for a DSN
// scheme ("postgres://", "mysql://", "dolt://"), defaulting to postgres
// since Redshift (this system's load target) speaks the Postgres wire
// protocol.
func DriverForDSN(scheme string) string {
	switch scheme {
	case "mysql":
		return "mysql"
	case "dolt":
		return "dolt"
	default:
		return "postgres"
	}
}
