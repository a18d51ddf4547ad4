package resources

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/goliatone/go-formio-validator/pkg/form"
	"github.com/goliatone/go-formio-validator/pkg/processing"
	"github.com/goliatone/go-formio-validator/pkg/sandbox"
)

// SQLite is a Store persisting resources and submissions in SQLite.
type SQLite struct {
	db        *sql.DB
	closeOnce sync.Once
}

var _ Store = (*SQLite)(nil)

// SQLiteConfig configures the SQLite store.
type SQLiteConfig struct {
	// Path is the database file. Empty or ":memory:" opens a private
	// in-memory database.
	Path string

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// OpenSQLite opens the database and creates the schema.
func OpenSQLite(cfg SQLiteConfig) (*SQLite, error) {
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	dsn := ":memory:"
	if path := strings.TrimSpace(cfg.Path); path != "" && path != ":memory:" {
		dsn = fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)",
			path, cfg.BusyTimeout.Milliseconds())
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("resources: open database: %w", err)
	}
	// one connection keeps in-memory databases shared and serializes writers
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	store := &SQLite{db: db}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("resources: initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLite) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS resources (
		id TEXT PRIMARY KEY,
		definition TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS submissions (
		id TEXT PRIMARY KEY,
		form TEXT NOT NULL,
		data TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_submissions_form ON submissions(form);
	`
	_, err := s.db.Exec(schema)
	return err
}

// PutResource stores or replaces the resource definition under id.
func (s *SQLite) PutResource(ctx context.Context, id string, f *form.Form) error {
	if f == nil {
		return errors.New("resources: resource form is nil")
	}
	raw, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("resources: encode resource %s: %w", id, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO resources (id, definition, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			definition = excluded.definition,
			updated_at = excluded.updated_at
	`, id, string(raw), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("resources: save resource %s: %w", id, err)
	}
	return nil
}

// PutSubmission stores submission data for formKey and returns its id.
func (s *SQLite) PutSubmission(ctx context.Context, formKey string, data map[string]any) (string, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("resources: encode submission: %w", err)
	}
	id := uuid.NewString()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO submissions (id, form, data, created_at) VALUES (?, ?, ?, ?)`,
		id, formKey, string(raw), time.Now().UnixMilli())
	if err != nil {
		return "", fmt.Errorf("resources: save submission: %w", err)
	}
	return id, nil
}

// LoadResource implements processing.ResourceLoader.
func (s *SQLite) LoadResource(ctx context.Context, id string) (*form.Form, bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT definition FROM resources WHERE id = ?`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("resources: load resource %s: %w", id, err)
	}
	f, err := form.Parse([]byte(raw))
	if err != nil {
		return nil, false, fmt.Errorf("resources: decode resource %s: %w", id, err)
	}
	return f, true, nil
}

// IsUnique implements processing.UniqueChecker.
func (s *SQLite) IsUnique(ctx context.Context, req processing.UniqueRequest) (bool, error) {
	clause, args, err := UniqueQuery(req.Path, req.Value)
	if err != nil {
		return false, err
	}
	query := `SELECT EXISTS (SELECT 1 FROM submissions AS s WHERE s.form = ? AND ` + clause + `)`
	var exists int
	if err := s.db.QueryRowContext(ctx, query, append([]any{FormKey(req.Form)}, args...)...).Scan(&exists); err != nil {
		return false, fmt.Errorf("resources: unique lookup %s: %w", req.Path, err)
	}
	return exists == 0, nil
}

// Fetch serves resource data sources with the stored submissions of the
// resource, oldest first.
func (s *SQLite) Fetch(ctx context.Context, req sandbox.FetchRequest) (any, error) {
	if req.DataSrc != "resource" {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedSource, req.DataSrc)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM submissions WHERE form = ? ORDER BY created_at, rowid`, req.Resource)
	if err != nil {
		return nil, fmt.Errorf("resources: fetch %s: %w", req.Resource, err)
	}
	defer rows.Close()

	out := make([]any, 0)
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("resources: fetch %s: %w", req.Resource, err)
		}
		var data map[string]any
		if err := json.Unmarshal([]byte(raw), &data); err != nil {
			return nil, fmt.Errorf("resources: decode submission: %w", err)
		}
		out = append(out, data)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *SQLite) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.db.Close()
	})
	return err
}
