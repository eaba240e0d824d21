package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/lib/pq"
	"github.com/redis/go-redis/v9"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const maxTxRetries = 5

// PGStore is the production Store: one JSONB documents table, keyed by
// (collection, key). Transactions run at SERIALIZABLE isolation with
// bounded retry on serialization failures, so transactional reads
// (including queries) are covered by the same consistency guarantee as
// the writes.
type PGStore struct {
	log      *log.Logger
	conn     *sql.DB
	notifier *notifier
}

// NewPGStore opens the database, applies pending migrations and starts
// the change notifier. rdb may be nil, in which case subscriptions are
// process-local.
func NewPGStore(logger *log.Logger, dsn string, rdb *redis.Client) (*PGStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	s := &PGStore{
		log:      logger,
		conn:     db,
		notifier: newNotifier(logger, rdb),
	}

	if err := s.migrateUp(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	s.notifier.run()
	return s, nil
}

func (s *PGStore) migrateUp() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return err
	}

	driver, err := migratepg.WithInstance(s.conn, &migratepg.Config{})
	if err != nil {
		return err
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return err
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

func (s *PGStore) Close() error {
	s.notifier.stop()
	return s.conn.Close()
}

func (s *PGStore) Online(ctx context.Context) error {
	if err := s.conn.PingContext(ctx); err != nil {
		return ErrOffline
	}
	return nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func getDoc(ctx context.Context, q querier, collection, key string) (Document, error) {
	var raw []byte
	err := q.QueryRowContext(ctx,
		"SELECT doc FROM documents WHERE collection = $1 AND key = $2",
		collection, key,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, fmt.Errorf("get document: %w", err)
	}

	fields := make(map[string]any)
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Document{}, fmt.Errorf("decode document: %w", err)
	}
	return Document{Key: key, Fields: fields}, nil
}

func setDoc(ctx context.Context, q querier, collection, key string, fields map[string]any) error {
	resolved, err := resolvePGTimestamps(ctx, q, fields)
	if err != nil {
		return err
	}

	raw, err := json.Marshal(resolved)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}

	_, err = q.ExecContext(ctx,
		"INSERT INTO documents (collection, key, doc) VALUES ($1, $2, $3) "+
			"ON CONFLICT (collection, key) DO UPDATE SET doc = EXCLUDED.doc, updated_at = now()",
		collection, key, raw,
	)
	if err != nil {
		return fmt.Errorf("set document: %w", err)
	}
	return nil
}

func deleteDoc(ctx context.Context, q querier, collection, key string) error {
	_, err := q.ExecContext(ctx,
		"DELETE FROM documents WHERE collection = $1 AND key = $2",
		collection, key,
	)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

func queryDocs(ctx context.Context, q querier, collection string, filters []Filter) ([]Document, error) {
	query := "SELECT key, doc FROM documents WHERE collection = $1"
	args := []any{collection}
	for _, f := range filters {
		field := strconv.Itoa(len(args) + 1)
		value := strconv.Itoa(len(args) + 2)
		switch f.Op {
		case OpEqual:
			query += " AND doc->>$" + field + " = $" + value
		case OpContains:
			query += " AND doc->$" + field + " ? $" + value
		}
		args = append(args, f.Field, f.Value)
	}
	query += " ORDER BY key"

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var (
			key string
			raw []byte
		)
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		fields := make(map[string]any)
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, fmt.Errorf("decode document: %w", err)
		}
		docs = append(docs, Document{Key: key, Fields: fields})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return docs, nil
}

// resolvePGTimestamps substitutes ServerTimestamp sentinels with the
// database server's clock, fetched once per write that needs it.
func resolvePGTimestamps(ctx context.Context, q querier, fields map[string]any) (map[string]any, error) {
	needed := false
	for _, v := range fields {
		if _, ok := v.(serverTimestamp); ok {
			needed = true
			break
		}
	}
	if !needed {
		return fields, nil
	}

	var now time.Time
	if err := q.QueryRowContext(ctx, "SELECT now()").Scan(&now); err != nil {
		return nil, fmt.Errorf("server timestamp: %w", err)
	}

	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if _, ok := v.(serverTimestamp); ok {
			out[k] = now.UTC()
			continue
		}
		out[k] = v
	}
	return out, nil
}

func (s *PGStore) Get(ctx context.Context, collection, key string) (Document, error) {
	return getDoc(ctx, s.conn, collection, key)
}

func (s *PGStore) Set(ctx context.Context, collection, key string, fields map[string]any) error {
	if err := setDoc(ctx, s.conn, collection, key, fields); err != nil {
		return err
	}
	s.notifier.publish(ctx, collection)
	return nil
}

func (s *PGStore) Delete(ctx context.Context, collection, key string) error {
	if err := deleteDoc(ctx, s.conn, collection, key); err != nil {
		return err
	}
	s.notifier.publish(ctx, collection)
	return nil
}

func (s *PGStore) Query(ctx context.Context, collection string, filters ...Filter) ([]Document, error) {
	return queryDocs(ctx, s.conn, collection, filters)
}

type pgTx struct {
	ctx     context.Context
	tx      *sql.Tx
	touched map[string]struct{}
}

func (t *pgTx) Get(collection, key string) (Document, error) {
	return getDoc(t.ctx, t.tx, collection, key)
}

func (t *pgTx) Set(collection, key string, fields map[string]any) error {
	if err := setDoc(t.ctx, t.tx, collection, key, fields); err != nil {
		return err
	}
	t.touched[collection] = struct{}{}
	return nil
}

func (t *pgTx) Delete(collection, key string) error {
	if err := deleteDoc(t.ctx, t.tx, collection, key); err != nil {
		return err
	}
	t.touched[collection] = struct{}{}
	return nil
}

func (t *pgTx) Query(collection string, filters ...Filter) ([]Document, error) {
	return queryDocs(t.ctx, t.tx, collection, filters)
}

func (s *PGStore) RunTransaction(ctx context.Context, fn func(tx Tx) error) error {
	for attempt := 0; attempt < maxTxRetries; attempt++ {
		tx, err := s.conn.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}

		handle := &pgTx{ctx: ctx, tx: tx, touched: make(map[string]struct{})}

		if err := fn(handle); err != nil {
			tx.Rollback()
			if isSerializationFailure(err) {
				continue
			}
			return err
		}

		if err := tx.Commit(); err != nil {
			if isSerializationFailure(err) {
				continue
			}
			return fmt.Errorf("commit transaction: %w", err)
		}

		for collection := range handle.touched {
			s.notifier.publish(ctx, collection)
		}
		return nil
	}

	return ErrConflict
}

func isSerializationFailure(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == "40001" || pqErr.Code == "40P01"
}

func (s *PGStore) Subscribe(ctx context.Context, collection string, filters ...Filter) (Subscription, error) {
	if err := s.Online(ctx); err != nil {
		return nil, err
	}
	return s.notifier.subscribe(s, collection, filters), nil
}
