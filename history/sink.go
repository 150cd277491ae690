package history

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/dailyyoga/vidcache/logger"
	"go.uber.org/zap"
)

// Sink stores batches of attempt rows
type Sink interface {
	Insert(ctx context.Context, rows []Row) error
	Close() error
}

const createTableSQL = "CREATE TABLE IF NOT EXISTS `%s` (" +
	"attempt_id String, " +
	"pipeline LowCardinality(String), " +
	"started_at DateTime64(3), " +
	"finished_at DateTime64(3), " +
	"duration_ms UInt32, " +
	"fetched UInt32, " +
	"items UInt32, " +
	"version UInt64, " +
	"success UInt8, " +
	"failure_kind LowCardinality(String), " +
	"error String" +
	") ENGINE = MergeTree ORDER BY (pipeline, started_at)"

const insertSQL = "INSERT INTO `%s` (attempt_id, pipeline, started_at, finished_at, duration_ms, " +
	"fetched, items, version, success, failure_kind, error)"

type clickhouseSink struct {
	conn  driver.Conn
	table string
}

// NewClickHouseSink connects to ClickHouse and creates the attempt table if needed
func NewClickHouseSink(ctx context.Context, log logger.Logger, cfg *Config) (Sink, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: cfg.Hosts,
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		DialTimeout: cfg.DialTimeout,
		Debug:       cfg.Debug,
		Settings:    cfg.Settings,
	})
	if err != nil {
		return nil, ErrConnection(err)
	}

	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, ErrConnection(err)
	}
	if err := conn.Exec(ctx, fmt.Sprintf(createTableSQL, cfg.Table)); err != nil {
		conn.Close()
		return nil, ErrConnection(err)
	}

	log.Info("clickhouse history sink initialized",
		zap.Strings("hosts", cfg.Hosts),
		zap.String("database", cfg.Database),
		zap.String("table", cfg.Table),
	)
	return &clickhouseSink{conn: conn, table: cfg.Table}, nil
}

func (s *clickhouseSink) Insert(ctx context.Context, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}
	batch, err := s.conn.PrepareBatch(ctx, fmt.Sprintf(insertSQL, s.table))
	if err != nil {
		return ErrInsert(s.table, err)
	}
	for _, r := range rows {
		if err := batch.Append(
			r.AttemptID,
			r.Pipeline,
			r.StartedAt,
			r.FinishedAt,
			r.DurationMs,
			r.Fetched,
			r.Items,
			r.Version,
			r.Success,
			r.FailureKind,
			r.Error,
		); err != nil {
			_ = batch.Abort()
			return ErrInsert(s.table, err)
		}
	}
	if err := batch.Send(); err != nil {
		return ErrInsert(s.table, err)
	}
	return nil
}

func (s *clickhouseSink) Close() error {
	return s.conn.Close()
}
