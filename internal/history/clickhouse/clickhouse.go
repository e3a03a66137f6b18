package clickhouse

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/loykin/handover/internal/history"
)

// Sink sends restart events to ClickHouse using the official ClickHouse Go client.
type Sink struct {
	conn  driver.Conn
	table string
}

func New(dsn, table string) (*Sink, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{dsn},
		Auth: clickhouse.Auth{
			Database: "default",
			Username: "default",
			Password: "",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	if err := conn.Ping(context.Background()); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	s := &Sink{conn: conn, table: table}
	if err := s.ensureSchema(context.Background()); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *Sink) ensureSchema(ctx context.Context) error {
	err := s.conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS `+s.table+` (
			event String,
			occurred_at DateTime64(6),
			pid UInt32,
			generation UInt64,
			child_pid Nullable(UInt32),
			source String,
			kind Nullable(String),
			detail Nullable(String)
		) ENGINE = MergeTree()
		ORDER BY (occurred_at, pid)
	`)
	if err != nil {
		return fmt.Errorf("failed to create ClickHouse table: %w", err)
	}
	return nil
}

func (s *Sink) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	query := fmt.Sprintf(`INSERT INTO %s (event, occurred_at, pid, generation, child_pid, source, kind, detail) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, s.table)

	var childPID *uint32
	if e.ChildPID > 0 {
		v := uint32(e.ChildPID)
		childPID = &v
	}
	var kind *string
	if e.Kind != "" {
		kind = &e.Kind
	}
	var detail *string
	if e.Detail != "" {
		detail = &e.Detail
	}

	err := s.conn.Exec(ctx, query,
		string(e.Type),
		e.OccurredAt,
		uint32(e.PID),
		uint64(e.Generation),
		childPID,
		string(e.Source),
		kind,
		detail,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event into ClickHouse: %w", err)
	}
	return nil
}
