// Package sqlstore is a repository.DocumentStore on database/sql. It runs on
// SQLite (modernc.org/sqlite, pure Go) and PostgreSQL (pgx). Documents live in
// a single table as JSON bodies; the configured index field is copied into an
// indexed column on every write so prefix range scans use the index.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"geoindex/internal/domain/entities"
	"geoindex/internal/logging"
	"geoindex/internal/repository"
)

// Driver names as registered with database/sql.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

// Store is a SQL-backed document store.
type Store struct {
	db         *sql.DB
	driver     string
	indexField string
	logger     *slog.Logger
}

var _ repository.DocumentStore = (*Store)(nil)

// Open connects to the database, tunes the connection pool for the driver and
// creates the schema when missing. indexField is a gjson path into the
// document body; only string values are indexed.
func Open(ctx context.Context, driver, dsn, indexField string, logger *slog.Logger) (*Store, error) {
	driver = strings.ToLower(strings.TrimSpace(driver))
	switch driver {
	case DriverSQLite, DriverPostgres:
	case "postgres", "postgresql":
		driver = DriverPostgres
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}
	if dsn == "" {
		return nil, errors.New("database dsn is empty")
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("error opening the database: %w", err)
	}

	if driver == DriverSQLite {
		// One physical connection; SQLite serializes writers anyway and the
		// pragmas below are per connection.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
	} else {
		db.SetMaxOpenConns(16)
		db.SetMaxIdleConns(4)
		db.SetConnMaxIdleTime(2 * time.Minute)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("error connecting to the database: %w", err)
	}

	s, err := New(ctx, db, driver, indexField, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an already opened database handle and migrates the schema.
func New(ctx context.Context, db *sql.DB, driver, indexField string, logger *slog.Logger) (*Store, error) {
	if indexField == "" {
		return nil, errors.New("index field is empty")
	}
	s := &Store{
		db:         db,
		driver:     driver,
		indexField: indexField,
		logger:     logging.OrDiscard(logger),
	}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	var stmts []string
	switch s.driver {
	case DriverSQLite:
		stmts = []string{
			"PRAGMA journal_mode=WAL",
			"PRAGMA busy_timeout=5000",
			`CREATE TABLE IF NOT EXISTS documents (
				collection TEXT NOT NULL,
				id         TEXT NOT NULL,
				body       TEXT NOT NULL,
				index_key  TEXT,
				PRIMARY KEY (collection, id)
			)`,
		}
	default:
		// Byte-order collation: index keys are compared as raw strings and
		// "~" must sort after every geohash symbol.
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS documents (
				collection TEXT NOT NULL,
				id         TEXT NOT NULL,
				body       JSONB NOT NULL,
				index_key  TEXT COLLATE "C",
				PRIMARY KEY (collection, id)
			)`,
		}
	}
	stmts = append(stmts,
		"CREATE INDEX IF NOT EXISTS documents_index_key ON documents (collection, index_key)")

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate documents table: %w", err)
		}
	}
	s.logger.Info("document table ready", "driver", s.driver, "index_field", s.indexField)
	return nil
}

// DB exposes the underlying handle, mainly for tests and admin commands.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Get(ctx context.Context, collection, id string) (*entities.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var body []byte
	err := s.db.QueryRowContext(ctx,
		s.rebind("SELECT body FROM documents WHERE collection = ? AND id = ?"),
		collection, id,
	).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return decode(id, body)
}

func (s *Store) Set(ctx context.Context, collection string, doc *entities.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if doc == nil || doc.ID == "" {
		return fmt.Errorf("%w: missing id", repository.ErrInvalidDocument)
	}
	body, err := json.Marshal(doc.Fields)
	if err != nil {
		return fmt.Errorf("%w: %v", repository.ErrInvalidDocument, err)
	}
	return s.upsert(ctx, s.db, collection, doc.ID, body)
}

// Update merges fields into the stored body inside a transaction.
func (s *Store) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	defer tx.Rollback()

	query := "SELECT body FROM documents WHERE collection = ? AND id = ?"
	if s.driver == DriverPostgres {
		query += " FOR UPDATE"
	}
	var body []byte
	err = tx.QueryRowContext(ctx, s.rebind(query), collection, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return repository.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", collection, id, err)
	}

	doc, err := decode(id, body)
	if err != nil {
		return err
	}
	for k, v := range fields {
		doc.Fields[k] = v
	}
	merged, err := json.Marshal(doc.Fields)
	if err != nil {
		return fmt.Errorf("%w: %v", repository.ErrInvalidDocument, err)
	}
	if err := s.upsert(ctx, tx, collection, id, merged); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		s.rebind("DELETE FROM documents WHERE collection = ? AND id = ?"),
		collection, id)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	return nil
}

// RangeQuery only supports the index field; any other field would need a full
// scan of JSON bodies.
func (s *Store) RangeQuery(ctx context.Context, collection, field, start, end string) ([]*entities.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if field != s.indexField {
		return nil, fmt.Errorf("%w: %q (indexed: %q)", repository.ErrUnsupportedField, field, s.indexField)
	}
	return s.query(ctx,
		"SELECT id, body FROM documents WHERE collection = ? AND index_key >= ? AND index_key < ? ORDER BY index_key, id",
		collection, start, end)
}

func (s *Store) List(ctx context.Context, collection string) ([]*entities.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.query(ctx, "SELECT id, body FROM documents WHERE collection = ? ORDER BY id", collection)
}

func (s *Store) Close() error {
	return s.db.Close()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) upsert(ctx context.Context, ex execer, collection, id string, body []byte) error {
	var indexKey sql.NullString
	if res := gjson.GetBytes(body, s.indexField); res.Type == gjson.String {
		indexKey = sql.NullString{String: res.Str, Valid: true}
	}

	_, err := ex.ExecContext(ctx, s.rebind(`INSERT INTO documents (collection, id, body, index_key)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (collection, id) DO UPDATE SET body = excluded.body, index_key = excluded.index_key`),
		collection, id, string(body), indexKey)
	if err != nil {
		return fmt.Errorf("write %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *Store) query(ctx context.Context, query string, args ...any) ([]*entities.Document, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	var docs []*entities.Document
	for rows.Next() {
		var (
			id   string
			body []byte
		)
		if err := rows.Scan(&id, &body); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		doc, err := decode(id, body)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	return docs, nil
}

// rebind turns "?" placeholders into PostgreSQL's "$1, $2, ..." form.
func (s *Store) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var sb strings.Builder
	sb.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteByte(query[i])
	}
	return sb.String()
}

func decode(id string, body []byte) (*entities.Document, error) {
	fields := make(map[string]any)
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("decode document %s: %w", id, err)
	}
	return entities.NewDocument(id, fields), nil
}
