// Package database executes guarded statements against SQLite, PostgreSQL
// or MySQL through sqlx.
package database

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/Neural-Bridge/sql-analyst/internal/application/port/output"
	"github.com/Neural-Bridge/sql-analyst/internal/domain/entity"
	"github.com/Neural-Bridge/sql-analyst/internal/domain/sqlguard"
)

const (
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"
	DialectMySQL    = "mysql"
)

// database/sql driver name per dialect.
var driverNames = map[string]string{
	DialectSQLite:   "sqlite",
	DialectPostgres: "pgx",
	DialectMySQL:    "mysql",
}

var listTablesQueries = map[string]string{
	DialectSQLite: `SELECT name FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`,
	DialectPostgres: `SELECT table_name FROM information_schema.tables
		WHERE table_schema = current_schema() AND table_type = 'BASE TABLE' ORDER BY table_name`,
	DialectMySQL: `SELECT TABLE_NAME FROM information_schema.TABLES
		WHERE TABLE_SCHEMA = DATABASE() AND TABLE_TYPE = 'BASE TABLE' ORDER BY TABLE_NAME`,
}

var _ output.DatabasePort = (*Adapter)(nil)

type Adapter struct {
	db      *sqlx.DB
	dialect string
	maxRows int
	logger  output.LoggerPort
}

type Option func(*Adapter)

// WithMaxRows stops reading a result after n rows. The adapter reads one
// extra row so callers can tell the result was cut.
func WithMaxRows(n int) Option {
	return func(a *Adapter) { a.maxRows = n }
}

func Open(ctx context.Context, dialect, dsn string, logger output.LoggerPort, opts ...Option) (*Adapter, error) {
	driver, ok := driverNames[dialect]
	if !ok {
		return nil, fmt.Errorf("unsupported database dialect %q", dialect)
	}

	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", dialect, err)
	}
	if dialect == DialectSQLite {
		// An in-memory database exists per connection.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	return New(db, dialect, logger, opts...), nil
}

// New wraps an open connection pool.
func New(db *sqlx.DB, dialect string, logger output.LoggerPort, opts ...Option) *Adapter {
	a := &Adapter{db: db, dialect: dialect, logger: logger}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// DB exposes the pool for setup work that must bypass the guard, such as
// seeding fixtures.
func (a *Adapter) DB() *sqlx.DB {
	return a.db
}

func (a *Adapter) Dialect() string {
	return a.dialect
}

func (a *Adapter) ListTables(ctx context.Context) ([]string, error) {
	query, ok := listTablesQueries[a.dialect]
	if !ok {
		return nil, fmt.Errorf("list tables: unsupported dialect %q", a.dialect)
	}
	var names []string
	if err := a.db.SelectContext(ctx, &names, query); err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	return names, nil
}

func (a *Adapter) Execute(ctx context.Context, stmt sqlguard.Statement) (*entity.QueryResult, error) {
	if stmt.IsZero() {
		return nil, fmt.Errorf("execute: empty statement")
	}

	start := time.Now()
	rows, err := a.db.QueryxContext(ctx, stmt.SQL())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("read column types: %w", err)
	}

	result := &entity.QueryResult{Columns: columns, Rows: [][]any{}}
	for rows.Next() {
		if a.maxRows > 0 && len(result.Rows) > a.maxRows {
			break
		}
		values, err := rows.SliceScan()
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		for i, v := range values {
			values[i] = Normalize(v, types[i].DatabaseTypeName())
		}
		result.Rows = append(result.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	a.logger.Debug("query executed",
		"dialect", a.dialect,
		"rows", len(result.Rows),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}

func (a *Adapter) Close() error {
	return a.db.Close()
}

// Normalize maps driver values onto the cell types the rest of the program
// understands: string, int64, float64, bool and nil.
func Normalize(v any, typeName string) any {
	switch x := v.(type) {
	case nil, string, int64, float64, bool:
		return x
	case []byte:
		return fromText(string(x), typeName)
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case int16:
		return int64(x)
	case int8:
		return int64(x)
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		return int64(x)
	case float32:
		return float64(x)
	case time.Time:
		return x.Format(time.RFC3339)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

// fromText converts the text protocol's byte values back to numbers when
// the column type says they are numbers.
func fromText(s, typeName string) any {
	t := strings.ToUpper(typeName)
	switch {
	case strings.Contains(t, "INT"):
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n
		}
	case strings.Contains(t, "DEC"), strings.Contains(t, "NUMERIC"),
		strings.Contains(t, "FLOAT"), strings.Contains(t, "DOUBLE"), strings.Contains(t, "REAL"):
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	return s
}
