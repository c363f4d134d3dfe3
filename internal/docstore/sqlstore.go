package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/julianstephens/routineo/internal/constants"
	apperrors "github.com/julianstephens/routineo/internal/errors"
	"github.com/julianstephens/routineo/internal/logger"
	"github.com/julianstephens/routineo/internal/migration"
	"github.com/julianstephens/routineo/internal/utils"
	"github.com/julianstephens/routineo/migrations"
)

type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// timestampLayout is fixed width so lexical order equals chronological order.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

const defaultPollInterval = time.Second

// DetectDialect picks the backend for a --config value.
func DetectDialect(dsn string) Dialect {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return DialectPostgres
	}
	// keyword/value form, e.g. "host=localhost dbname=routineo"
	if strings.Contains(dsn, "host=") && strings.Contains(dsn, " ") {
		return DialectPostgres
	}
	return DialectSQLite
}

type Option func(*SQLStore)

// WithClock overrides the clock used for created_at/updated_at.
func WithClock(now func() time.Time) Option {
	return func(s *SQLStore) { s.now = now }
}

// WithPollInterval sets how often a SQLite store checks for commits made by
// other processes. Zero disables polling.
func WithPollInterval(d time.Duration) Option {
	return func(s *SQLStore) { s.pollInterval = d }
}

// WithIDGenerator overrides the id generator used by Add.
func WithIDGenerator(newID func() string) Option {
	return func(s *SQLStore) { s.newID = newID }
}

// SQLStore implements Store on SQLite or PostgreSQL.
type SQLStore struct {
	dsn          string
	dialect      Dialect
	db           *sqlx.DB
	hub          *hub
	now          func() time.Time
	newID        func() string
	pollInterval time.Duration

	mu      sync.Mutex
	seen    map[string]int64 // last revision delivered per collection
	started bool

	stop      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
	listener  listener
}

// listener receives commit notifications from other connections.
type listener interface {
	Close() error
}

// New returns an unopened store for dsn, which is either a SQLite file path
// or a PostgreSQL URL. Call Init or Load before use.
func New(dsn string, opts ...Option) *SQLStore {
	s := &SQLStore{
		dsn:          dsn,
		dialect:      DetectDialect(dsn),
		now:          time.Now,
		newID:        func() string { return uuid.New().String() },
		pollInterval: defaultPollInterval,
		seen:         make(map[string]int64),
		stop:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.dialect == DialectPostgres {
		s.dsn = ensureSearchPath(s.dsn)
	}
	s.hub = newHub(s.Query)
	return s
}

func (s *SQLStore) Dialect() Dialect { return s.dialect }

// Path returns a display-safe identifier for the store location.
func (s *SQLStore) Path() string {
	if s.dialect == DialectPostgres {
		return "postgresql"
	}
	return s.dsn
}

// DB exposes the connection for maintenance commands.
func (s *SQLStore) DB() *sqlx.DB { return s.db }

// Init creates the database if needed and applies all migrations.
func (s *SQLStore) Init() error {
	if s.dialect == DialectSQLite {
		path, err := utils.ExpandHome(s.dsn)
		if err != nil {
			return err
		}
		s.dsn = path
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := s.open(); err != nil {
		return err
	}
	if s.dialect == DialectPostgres {
		if _, err := s.db.Exec("CREATE SCHEMA IF NOT EXISTS " + constants.AppName); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	if _, err := s.Migrate(nil); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return s.start()
}

// Open connects to an initialized database without checking its schema.
// Maintenance commands use it; everything else calls Load.
func (s *SQLStore) Open() error {
	if s.db != nil {
		return nil
	}
	if s.dialect == DialectSQLite {
		path, err := utils.ExpandHome(s.dsn)
		if err != nil {
			return err
		}
		s.dsn = path
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return fmt.Errorf("storage not initialized, run '%s init' first", constants.AppName)
		}
	}
	return s.open()
}

// Load opens an initialized database and checks its schema version.
func (s *SQLStore) Load() error {
	if s.db != nil {
		return nil
	}
	if err := s.Open(); err != nil {
		return err
	}
	runner, err := s.runner()
	if err != nil {
		return err
	}
	pending, err := runner.Pending()
	if err != nil {
		return err
	}
	if len(pending) > 0 {
		return fmt.Errorf("database schema is out of date, run '%s migrate'", constants.AppName)
	}
	if err := runner.ValidateVersion(); err != nil {
		return err
	}
	return s.start()
}

// SchemaVersion reports the applied and the latest known migration version.
func (s *SQLStore) SchemaVersion() (current, latest int, err error) {
	runner, err := s.runner()
	if err != nil {
		return 0, 0, err
	}
	if current, err = runner.GetCurrentVersion(); err != nil {
		return 0, 0, fmt.Errorf("failed to get current schema version: %w", err)
	}
	if latest, err = runner.GetLatestVersion(); err != nil {
		return 0, 0, fmt.Errorf("failed to get latest schema version: %w", err)
	}
	return current, latest, nil
}

// Migrate applies pending migrations and reports how many ran.
func (s *SQLStore) Migrate(logFn func(string)) (int, error) {
	runner, err := s.runner()
	if err != nil {
		return 0, err
	}
	return runner.ApplyMigrations(logFn)
}

func (s *SQLStore) runner() (*migration.Runner, error) {
	sub, err := fs.Sub(migrations.FS, string(s.dialect))
	if err != nil {
		return nil, fmt.Errorf("failed to access %s migrations: %w", s.dialect, err)
	}
	return migration.NewRunner(s.db, sub), nil
}

func (s *SQLStore) open() error {
	if s.db != nil {
		return nil
	}
	var (
		db  *sqlx.DB
		err error
	)
	switch s.dialect {
	case DialectPostgres:
		db, err = sqlx.Open("postgres", s.dsn)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(25)
		db.SetConnMaxLifetime(5 * time.Minute)
	default:
		db, err = sqlx.Open("sqlite", sqliteDSN(s.dsn))
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		// One connection keeps in-process writers from racing for the lock.
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		if s.dialect == DialectPostgres && strings.Contains(err.Error(), "SSL is not enabled on the server") && !hasSSLMode(s.dsn) {
			return fmt.Errorf("failed to connect to database: %w (hint: try adding ?sslmode=disable to your connection string)", err)
		}
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	s.db = db
	return nil
}

func sqliteDSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate"
}

// start records current revisions and begins watching for remote commits.
func (s *SQLStore) start() error {
	if s.started {
		return nil
	}
	s.started = true
	revs, err := s.revisions(context.Background())
	if err != nil {
		return err
	}
	s.mu.Lock()
	for c, r := range revs {
		s.seen[c] = r
	}
	s.mu.Unlock()

	switch s.dialect {
	case DialectPostgres:
		l, err := s.listen()
		if err != nil {
			logger.Warn("Live updates from other devices disabled", "error", err)
			return nil
		}
		s.listener = l
	default:
		if s.pollInterval > 0 {
			s.wg.Add(1)
			go s.poll()
		}
	}
	return nil
}

func (s *SQLStore) revisions(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Collection string `db:"collection"`
		Revision   int64  `db:"revision"`
	}
	if err := s.db.SelectContext(ctx, &rows, "SELECT collection, revision FROM revisions"); err != nil {
		return nil, fmt.Errorf("failed to read revisions: %w", err)
	}
	revs := make(map[string]int64, len(rows))
	for _, r := range rows {
		revs[r.Collection] = r.Revision
	}
	return revs, nil
}

// observe records a revision and reports whether it is new.
func (s *SQLStore) observe(collection string, revision int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if revision <= s.seen[collection] {
		return false
	}
	s.seen[collection] = revision
	return true
}

// poll picks up commits made by other processes sharing the SQLite file.
func (s *SQLStore) poll() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			if !s.hub.active() {
				continue
			}
			revs, err := s.revisions(context.Background())
			if err != nil {
				logger.Debug("Revision poll failed", "error", err)
				continue
			}
			var changed []string
			for c, r := range revs {
				if s.observe(c, r) {
					changed = append(changed, c)
				}
			}
			if len(changed) > 0 {
				logger.Debug("Picked up external commits", "collections", changed)
				s.hub.notify(changed...)
			}
		}
	}
}

func (s *SQLStore) Ping(ctx context.Context) error {
	if s.db == nil {
		return ErrClosed
	}
	return s.db.PingContext(ctx)
}

func (s *SQLStore) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.stop)
		if s.listener != nil {
			s.listener.Close()
		}
		s.wg.Wait()
		s.hub.close()
		if s.db != nil {
			err = s.db.Close()
		}
	})
	return err
}

type docRow struct {
	ID        string `db:"id"`
	Data      string `db:"data"`
	CreatedAt string `db:"created_at"`
	UpdatedAt string `db:"updated_at"`
}

func (r docRow) document() (Document, error) {
	created, err := time.Parse(timestampLayout, r.CreatedAt)
	if err != nil {
		return Document{}, fmt.Errorf("invalid created_at on %s: %w", r.ID, err)
	}
	updated, err := time.Parse(timestampLayout, r.UpdatedAt)
	if err != nil {
		return Document{}, fmt.Errorf("invalid updated_at on %s: %w", r.ID, err)
	}
	return Document{ID: r.ID, Data: json.RawMessage(r.Data), CreatedAt: created, UpdatedAt: updated}, nil
}

func (s *SQLStore) Get(ctx context.Context, collection, id string) (Document, error) {
	if s.db == nil {
		return Document{}, ErrClosed
	}
	var row docRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(
		"SELECT id, data, created_at, updated_at FROM documents WHERE collection = ? AND id = ?"),
		collection, id)
	if err == sql.ErrNoRows {
		return Document{}, fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	if err != nil {
		return Document{}, fmt.Errorf("failed to get %s/%s: %w", collection, id, err)
	}
	return row.document()
}

// Query returns the documents in collection matching every filter, ordered
// by creation time.
func (s *SQLStore) Query(ctx context.Context, collection string, filters ...Filter) ([]Document, error) {
	if s.db == nil {
		return nil, ErrClosed
	}
	query := "SELECT id, data, created_at, updated_at FROM documents WHERE collection = ?"
	args := []any{collection}
	if owner, ok := ownerFilter(filters); ok {
		query += " AND user_id = ?"
		args = append(args, owner)
	}
	query += " ORDER BY created_at, id"

	var rows []docRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", collection, err)
	}

	docs := make([]Document, 0, len(rows))
	for _, row := range rows {
		doc, err := row.document()
		if err != nil {
			return nil, err
		}
		if len(filters) > 0 {
			body, err := doc.Fields()
			if err != nil {
				return nil, err
			}
			if !matchAll(body, filters) {
				continue
			}
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Subscribe opens a live query. The first snapshot is available on the
// returned channel immediately; later ones follow every commit that touches
// collection. The subscription ends when ctx is cancelled.
func (s *SQLStore) Subscribe(ctx context.Context, collection string, filters ...Filter) (*Subscription, error) {
	if s.db == nil {
		return nil, ErrClosed
	}
	return s.hub.subscribe(ctx, collection, filters)
}

func (s *SQLStore) Add(ctx context.Context, collection string, data any) (string, error) {
	id := s.newID()
	if err := s.Batch(ctx, []Write{CreateWrite(collection, id, data)}); err != nil {
		return "", err
	}
	return id, nil
}

func (s *SQLStore) Create(ctx context.Context, collection, id string, data any) error {
	return s.Batch(ctx, []Write{CreateWrite(collection, id, data)})
}

func (s *SQLStore) Set(ctx context.Context, collection, id string, data any, merge bool) error {
	return s.Batch(ctx, []Write{SetWrite(collection, id, data, merge)})
}

func (s *SQLStore) Update(ctx context.Context, collection, id string, fields map[string]any, require ...Precondition) error {
	return s.Batch(ctx, []Write{UpdateWrite(collection, id, fields, require...)})
}

func (s *SQLStore) Delete(ctx context.Context, collection, id string, require ...Precondition) error {
	return s.Batch(ctx, []Write{DeleteWrite(collection, id, require...)})
}

// Batch applies writes in a single transaction. Any failure, including a
// failed precondition, rolls back every write in the batch.
func (s *SQLStore) Batch(ctx context.Context, writes []Write) error {
	if s.db == nil {
		return ErrClosed
	}
	if len(writes) == 0 {
		return nil
	}
	for i, w := range writes {
		if w.Collection == "" || w.ID == "" {
			return fmt.Errorf("write %d: collection and id are required", i)
		}
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := s.now().UTC().Format(timestampLayout)
	var touched []string
	seen := make(map[string]bool)
	for _, w := range writes {
		if err := s.apply(ctx, tx, w, now); err != nil {
			return err
		}
		if !seen[w.Collection] {
			seen[w.Collection] = true
			touched = append(touched, w.Collection)
		}
	}

	bumped := make(map[string]int64, len(touched))
	for _, c := range touched {
		rev, err := s.bump(ctx, tx, c)
		if err != nil {
			return err
		}
		bumped[c] = rev
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}

	for c, r := range bumped {
		s.observe(c, r)
	}
	logger.Debug("Committed batch", "writes", len(writes), "collections", touched)
	s.hub.notify(touched...)
	return nil
}

func (s *SQLStore) bump(ctx context.Context, tx *sqlx.Tx, collection string) (int64, error) {
	var rev int64
	err := tx.GetContext(ctx, &rev, tx.Rebind(`
		INSERT INTO revisions (collection, revision) VALUES (?, 1)
		ON CONFLICT (collection) DO UPDATE SET revision = revisions.revision + 1
		RETURNING revision`), collection)
	if err != nil {
		return 0, fmt.Errorf("failed to bump revision for %s: %w", collection, err)
	}
	if s.dialect == DialectPostgres {
		payload := fmt.Sprintf("%s:%d", collection, rev)
		if _, err := tx.ExecContext(ctx, "SELECT pg_notify($1, $2)", constants.NotifyChannel, payload); err != nil {
			return 0, fmt.Errorf("failed to notify: %w", err)
		}
	}
	return rev, nil
}

// load reads the current body of a document inside tx.
func (s *SQLStore) load(ctx context.Context, tx *sqlx.Tx, collection, id string) (map[string]any, bool, error) {
	query := "SELECT data FROM documents WHERE collection = ? AND id = ?"
	if s.dialect == DialectPostgres {
		query += " FOR UPDATE"
	}
	var data string
	err := tx.GetContext(ctx, &data, tx.Rebind(query), collection, id)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read %s/%s: %w", collection, id, err)
	}
	var body map[string]any
	if err := json.Unmarshal([]byte(data), &body); err != nil {
		return nil, false, fmt.Errorf("corrupt document %s/%s: %w", collection, id, err)
	}
	return body, true, nil
}

func (s *SQLStore) apply(ctx context.Context, tx *sqlx.Tx, w Write, now string) error {
	existing, found, err := s.load(ctx, tx, w.Collection, w.ID)
	if err != nil {
		return err
	}

	if len(w.Require) > 0 {
		if !found {
			return fmt.Errorf("%s/%s: %w", w.Collection, w.ID, ErrNotFound)
		}
		for _, p := range w.Require {
			if !equalValues(existing[p.Field], p.Value) {
				return fmt.Errorf("%s/%s: %s must be %v: %w", w.Collection, w.ID, p.Field, p.Value, ErrPrecondition)
			}
		}
	}

	var body map[string]any
	switch w.Op {
	case OpCreate:
		if found {
			return fmt.Errorf("%s/%s: %w", w.Collection, w.ID, ErrAlreadyExists)
		}
		if body, err = toBody(w.Data); err != nil {
			return err
		}
	case OpSet:
		if body, err = toBody(w.Data); err != nil {
			return err
		}
	case OpMerge:
		fields, err := toBody(w.Data)
		if err != nil {
			return err
		}
		body = merge(existing, fields)
	case OpUpdate:
		if !found {
			return fmt.Errorf("%s/%s: %w", w.Collection, w.ID, ErrNotFound)
		}
		fields, err := toBody(w.Fields)
		if err != nil {
			return err
		}
		body = merge(existing, fields)
	case OpDelete:
		if !found {
			return nil
		}
		_, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM documents WHERE collection = ? AND id = ?"), w.Collection, w.ID)
		if err != nil {
			return fmt.Errorf("failed to delete %s/%s: %w", w.Collection, w.ID, err)
		}
		return nil
	default:
		return fmt.Errorf("unknown write op %q", w.Op)
	}

	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode %s/%s: %w", w.Collection, w.ID, err)
	}
	owner, _ := body["user_id"].(string)

	if found {
		_, err = tx.ExecContext(ctx, tx.Rebind(`
			UPDATE documents SET user_id = ?, data = ?, updated_at = ?
			WHERE collection = ? AND id = ?`),
			owner, string(data), now, w.Collection, w.ID)
	} else {
		_, err = tx.ExecContext(ctx, tx.Rebind(`
			INSERT INTO documents (collection, id, user_id, data, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)`),
			w.Collection, w.ID, owner, string(data), now, now)
	}
	if err != nil {
		return fmt.Errorf("failed to write %s/%s: %w", w.Collection, w.ID, err)
	}
	return nil
}

// toBody converts a value into a JSON object body.
func toBody(v any) (map[string]any, error) {
	if v == nil {
		return map[string]any{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	var body map[string]any
	if err := json.Unmarshal(data, &body); err != nil || body == nil {
		return nil, apperrors.Validation("docstore", "document body must be a JSON object")
	}
	return body, nil
}

func merge(base, fields map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(fields))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range fields {
		out[k] = v
	}
	return out
}
