package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"
	_ "modernc.org/sqlite"
)

// DefaultSQLitePath is the checkpoint file used when no path is configured.
const DefaultSQLitePath = "checkpoints.sqlite"

type threadRow struct {
	bun.BaseModel `bun:"table:threads,alias:t"`

	ID           string    `bun:"id,pk"`
	MessageCount int64     `bun:"message_count,notnull"`
	CreatedAt    time.Time `bun:"created_at,notnull"`
	UpdatedAt    time.Time `bun:"updated_at,notnull"`
}

type messageRow struct {
	bun.BaseModel `bun:"table:messages,alias:m"`

	ThreadID  string    `bun:"thread_id,pk"`
	Seq       int64     `bun:"seq,pk"`
	Role      string    `bun:"role,notnull"`
	Content   string    `bun:"content,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull"`
}

// SQLStore persists threads through bun on SQLite or Postgres.
type SQLStore struct {
	db  *bun.DB
	now func() time.Time
}

// OpenSQLite opens (creating if needed) a SQLite checkpoint file. The store
// uses a single connection so appends from one process are serialized.
func OpenSQLite(ctx context.Context, path string) (*SQLStore, error) {
	p := filepath.Clean(strings.TrimSpace(path))
	if p == "" || p == "." {
		p = DefaultSQLitePath
	}
	if dir := filepath.Dir(p); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create checkpoint dir: %w", err)
		}
	}

	sqldb, err := sql.Open("sqlite", p+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	sqldb.SetMaxOpenConns(1)
	sqldb.SetMaxIdleConns(1)

	return newSQLStore(ctx, bun.NewDB(sqldb, sqlitedialect.New()))
}

func OpenPostgres(ctx context.Context, dsn string) (*SQLStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("postgres dsn is required")
	}
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return newSQLStore(ctx, bun.NewDB(sqldb, pgdialect.New()))
}

func newSQLStore(ctx context.Context, db *bun.DB) (*SQLStore, error) {
	s := &SQLStore{db: db, now: time.Now}
	if err := s.InitSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// InitSchema creates the tables and index if missing. Safe to call repeatedly.
func (s *SQLStore) InitSchema(ctx context.Context) error {
	for _, model := range []any{(*threadRow)(nil), (*messageRow)(nil)} {
		if _, err := s.db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	_, err := s.db.NewCreateIndex().
		Model((*threadRow)(nil)).
		Index("threads_updated_at_idx").
		Column("updated_at").
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	return nil
}

func (s *SQLStore) Append(ctx context.Context, threadID string, msgs ...Message) error {
	id, err := normalizeThreadID(threadID)
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		return nil
	}

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var lastSeq int64
		err := tx.NewSelect().
			Model((*messageRow)(nil)).
			ColumnExpr("COALESCE(MAX(seq), 0)").
			Where("thread_id = ?", id).
			Scan(ctx, &lastSeq)
		if err != nil {
			return fmt.Errorf("read last seq: %w", err)
		}

		now := s.now().UTC()
		stamped, err := prepare(msgs, lastSeq, now)
		if err != nil {
			return err
		}

		rows := make([]messageRow, len(stamped))
		for i, m := range stamped {
			rows[i] = messageRow{
				ThreadID:  id,
				Seq:       m.Seq,
				Role:      string(m.Role),
				Content:   m.Content,
				CreatedAt: m.CreatedAt,
			}
		}
		if _, err := tx.NewInsert().Model(&rows).Exec(ctx); err != nil {
			return fmt.Errorf("insert messages: %w", err)
		}

		th := threadRow{
			ID:           id,
			MessageCount: lastSeq + int64(len(rows)),
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		_, err = tx.NewInsert().
			Model(&th).
			On("CONFLICT (id) DO UPDATE").
			Set("message_count = EXCLUDED.message_count").
			Set("updated_at = EXCLUDED.updated_at").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("upsert thread: %w", err)
		}
		return nil
	})
}

func (s *SQLStore) Load(ctx context.Context, threadID string) ([]Message, error) {
	id, err := normalizeThreadID(threadID)
	if err != nil {
		return nil, err
	}

	var rows []messageRow
	err = s.db.NewSelect().
		Model(&rows).
		Where("thread_id = ?", id).
		Order("seq ASC").
		Scan(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("load messages: %w", err)
	}

	out := make([]Message, 0, len(rows))
	for _, r := range rows {
		out = append(out, Message{
			Seq:       r.Seq,
			Role:      Role(r.Role),
			Content:   r.Content,
			CreatedAt: r.CreatedAt.UTC(),
		})
	}
	return out, nil
}

// ListThreads returns the most recently updated threads first.
func (s *SQLStore) ListThreads(ctx context.Context, limit int) ([]Thread, error) {
	var rows []threadRow
	q := s.db.NewSelect().Model(&rows).Order("updated_at DESC", "id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("list threads: %w", err)
	}

	out := make([]Thread, 0, len(rows))
	for _, r := range rows {
		out = append(out, Thread{
			ID:           r.ID,
			MessageCount: r.MessageCount,
			CreatedAt:    r.CreatedAt.UTC(),
			UpdatedAt:    r.UpdatedAt.UTC(),
		})
	}
	return out, nil
}

func (s *SQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
