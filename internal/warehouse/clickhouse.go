// Package warehouse executes generated SQL against ClickHouse and returns
// results in a column/row form the rest of the bot can filter and render.
package warehouse

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/sfc-gh-anathan/cortex-slack-for-sales/internal/result"
)

// Client represents a ClickHouse database connection.
type Client interface {
	Conn(ctx context.Context) (Connection, error)
	Close() error
}

// Connection represents a ClickHouse connection.
type Connection interface {
	Exec(ctx context.Context, query string, args ...any) error
	Query(ctx context.Context, query string, args ...any) (driver.Rows, error)
	Close() error
}

type client struct {
	conn driver.Conn
	log  *slog.Logger
}

type connection struct {
	conn driver.Conn
}

// NewClient creates a new ClickHouse client.
func NewClient(ctx context.Context, log *slog.Logger, addr string, database string, username string, password string) (Client, error) {
	options := &clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: database,
			Username: username,
			Password: password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout: 5 * time.Second,
	}

	conn, err := clickhouse.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open ClickHouse connection: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	log.Info("ClickHouse client initialized", "addr", addr, "database", database)

	return &client{
		conn: conn,
		log:  log,
	}, nil
}

func (c *client) Conn(ctx context.Context) (Connection, error) {
	return &connection{conn: c.conn}, nil
}

func (c *client) Close() error {
	return c.conn.Close()
}

func (c *connection) Exec(ctx context.Context, query string, args ...any) error {
	return c.conn.Exec(ctx, query, args...)
}

func (c *connection) Query(ctx context.Context, query string, args ...any) (driver.Rows, error) {
	return c.conn.Query(ctx, query, args...)
}

func (c *connection) Close() error {
	// Connection is shared, don't close it
	return nil
}

// Warehouse runs read-only queries for the bot.
type Warehouse struct {
	db  Client
	log *slog.Logger
}

func New(db Client, log *slog.Logger) *Warehouse {
	return &Warehouse{db: db, log: log}
}

// Query executes sql and materializes every row. The result is fully held in
// memory so interactive filtering never needs another round trip.
func (w *Warehouse) Query(ctx context.Context, sql string) (result.Tabular, error) {
	sql = strings.TrimSuffix(strings.TrimSpace(sql), ";")

	conn, err := w.db.Conn(ctx)
	if err != nil {
		return result.Tabular{}, fmt.Errorf("connection error: %w", err)
	}
	defer conn.Close()

	w.log.Debug("executing query", "sql", sql)

	rows, err := conn.Query(ctx, sql)
	if err != nil {
		return result.Tabular{}, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	return Collect(rows)
}

// Collect drains driver rows into a Tabular, scanning each column through its
// native ClickHouse scan type.
func Collect(rows driver.Rows) (result.Tabular, error) {
	cols := rows.Columns()
	types := rows.ColumnTypes()

	out := result.Tabular{Columns: cols, Rows: []map[string]any{}}
	for rows.Next() {
		vals := make([]any, len(types))
		for i, ct := range types {
			vals[i] = reflect.New(ct.ScanType()).Interface()
		}
		if err := rows.Scan(vals...); err != nil {
			return result.Tabular{}, fmt.Errorf("scan failed: %w", err)
		}

		row := make(map[string]any, len(cols))
		for i, col := range cols {
			row[col] = normalize(reflect.ValueOf(vals[i]).Elem().Interface())
		}
		out.Rows = append(out.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return result.Tabular{}, fmt.Errorf("row iteration failed: %w", err)
	}

	out.Count = len(out.Rows)
	return out, nil
}

// normalize flattens driver-specific scan values: Nullable columns arrive as
// pointers, fixed and decimal types as their Go equivalents.
func normalize(v any) any {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil
		}
		return normalize(rv.Elem().Interface())
	}
	switch t := v.(type) {
	case time.Time:
		return t
	case []byte:
		return string(t)
	default:
		return v
	}
}
