// Package migration applies routineo's embedded schema scripts to the
// document store. The store picks the script directory for its dialect
// (migrations/sqlite or migrations/postgres) and hands it to a Runner; the
// Runner only sees NNN_name.sql files and a single-row schema_version table,
// so the same code upgrades either backend.
package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/julianstephens/routineo/internal/logger"
)

// ErrSchemaTooNew is returned when the store was upgraded by a newer routineo
// build than the one running.
var ErrSchemaTooNew = errors.New("document store schema is newer than this routineo build")

// Migration is one numbered schema script for a single dialect.
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// Runner upgrades one document store connection. Placeholders are rebound
// for the connection's driver, so SQLite (?) and PostgreSQL ($1) share it.
type Runner struct {
	db      *sqlx.DB
	scripts fs.FS
}

// NewRunner binds a store connection to the script directory of its dialect.
func NewRunner(db *sqlx.DB, scripts fs.FS) *Runner {
	return &Runner{db: db, scripts: scripts}
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

// EnsureSchemaVersionTable creates the schema_version bookkeeping table.
func (r *Runner) EnsureSchemaVersionTable() error {
	_, err := r.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY)`)
	return err
}

// GetCurrentVersion reports the last script applied to the store; a store
// that has never been migrated is at version 0.
func (r *Runner) GetCurrentVersion() (int, error) {
	if err := r.EnsureSchemaVersionTable(); err != nil {
		return 0, fmt.Errorf("create schema_version table: %w", err)
	}
	var version int
	switch err := r.db.QueryRow("SELECT version FROM schema_version").Scan(&version); {
	case errors.Is(err, sql.ErrNoRows):
		return 0, nil
	case err != nil:
		return 0, fmt.Errorf("read document store schema version: %w", err)
	}
	return version, nil
}

// SetVersion records version as applied without running any script.
func (r *Runner) SetVersion(version int) error {
	if err := r.EnsureSchemaVersionTable(); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}
	return r.recordVersion(r.db, version)
}

// recordVersion keeps schema_version at exactly one row.
func (r *Runner) recordVersion(ex execer, version int) error {
	if _, err := ex.Exec("DELETE FROM schema_version"); err != nil {
		return fmt.Errorf("clear schema_version: %w", err)
	}
	if _, err := ex.Exec(r.db.Rebind("INSERT INTO schema_version (version) VALUES (?)"), version); err != nil {
		return fmt.Errorf("record schema version %d: %w", version, err)
	}
	return nil
}

// parseScriptName splits "002_revisions.sql" into 2 and "revisions".
func parseScriptName(filename string) (int, string, error) {
	prefix, rest, ok := strings.Cut(filename, "_")
	if !ok {
		return 0, "", fmt.Errorf("schema script %s is not named NNN_name.sql", filename)
	}
	version, err := strconv.Atoi(prefix)
	if err != nil {
		return 0, "", fmt.Errorf("schema script %s has a non-numeric version: %w", filename, err)
	}
	if version < 1 {
		return 0, "", fmt.Errorf("schema script %s: versions start at 001", filename)
	}
	return version, strings.TrimSuffix(rest, ".sql"), nil
}

// ReadMigrationFiles loads every .sql script in the dialect directory,
// ordered by version. Other files are ignored.
func (r *Runner) ReadMigrationFiles() ([]Migration, error) {
	entries, err := fs.ReadDir(r.scripts, ".")
	if err != nil {
		return nil, fmt.Errorf("list schema scripts: %w", err)
	}

	var scripts []Migration
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		version, name, err := parseScriptName(entry.Name())
		if err != nil {
			return nil, err
		}
		body, err := fs.ReadFile(r.scripts, entry.Name())
		if err != nil {
			return nil, fmt.Errorf("load schema script %s: %w", entry.Name(), err)
		}
		scripts = append(scripts, Migration{Version: version, Name: name, SQL: string(body)})
	}

	sort.Slice(scripts, func(i, j int) bool { return scripts[i].Version < scripts[j].Version })
	for i := 1; i < len(scripts); i++ {
		if scripts[i].Version == scripts[i-1].Version {
			return nil, fmt.Errorf("two schema scripts claim version %d", scripts[i].Version)
		}
	}
	return scripts, nil
}

// GetLatestVersion is the highest script version this build ships.
func (r *Runner) GetLatestVersion() (int, error) {
	scripts, err := r.ReadMigrationFiles()
	if err != nil {
		return 0, err
	}
	if len(scripts) == 0 {
		return 0, nil
	}
	return scripts[len(scripts)-1].Version, nil
}

func tooNew(current, latest int) error {
	return fmt.Errorf("%w: store is at version %d, this build knows up to %d; upgrade routineo", ErrSchemaTooNew, current, latest)
}

// ApplyMigrations runs every pending script, each in its own transaction
// together with its schema_version update, and returns how many ran.
// Progress lines go to logFn for the migrate command to print.
func (r *Runner) ApplyMigrations(logFn func(string)) (int, error) {
	if logFn == nil {
		logFn = func(string) {}
	}

	current, err := r.GetCurrentVersion()
	if err != nil {
		return 0, err
	}
	scripts, err := r.ReadMigrationFiles()
	if err != nil {
		return 0, err
	}
	if len(scripts) == 0 {
		logFn("No schema scripts found for this store")
		return 0, nil
	}

	latest := scripts[len(scripts)-1].Version
	if current > latest {
		return 0, tooNew(current, latest)
	}

	pending := pendingAfter(scripts, current)
	if len(pending) == 0 {
		logFn(fmt.Sprintf("Document store is at schema version %d, nothing to apply", current))
		return 0, nil
	}

	logFn(fmt.Sprintf("Upgrading document store from schema version %d to %d (%d script(s))", current, latest, len(pending)))

	start := time.Now()
	applied := 0
	for _, m := range pending {
		logFn(fmt.Sprintf("  %03d %s", m.Version, m.Name))
		if err := r.applyOne(m); err != nil {
			return applied, err
		}
		applied++
		logger.Info("Applied schema script", "version", m.Version, "name", m.Name)
	}

	logFn(fmt.Sprintf("Document store upgraded in %v", time.Since(start).Round(time.Millisecond)))
	return applied, nil
}

func (r *Runner) applyOne(m Migration) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("schema script %03d: begin transaction: %w", m.Version, err)
	}
	if _, err := tx.Exec(m.SQL); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("schema script %03d (%s) failed: %w", m.Version, m.Name, err)
	}
	if err := r.recordVersion(tx, m.Version); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("schema script %03d: %w", m.Version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("schema script %03d: commit: %w", m.Version, err)
	}
	return nil
}

func pendingAfter(scripts []Migration, current int) []Migration {
	var pending []Migration
	for _, m := range scripts {
		if m.Version > current {
			pending = append(pending, m)
		}
	}
	return pending
}

// Pending returns the scripts the store has not applied yet.
func (r *Runner) Pending() ([]Migration, error) {
	current, err := r.GetCurrentVersion()
	if err != nil {
		return nil, err
	}
	scripts, err := r.ReadMigrationFiles()
	if err != nil {
		return nil, err
	}
	return pendingAfter(scripts, current), nil
}

// ValidateVersion fails with ErrSchemaTooNew when the store is ahead of
// this build's scripts.
func (r *Runner) ValidateVersion() error {
	current, err := r.GetCurrentVersion()
	if err != nil {
		return err
	}
	latest, err := r.GetLatestVersion()
	if err != nil {
		return err
	}
	if current > latest {
		return tooNew(current, latest)
	}
	return nil
}
