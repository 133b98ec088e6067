package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"strconv"
	"sync"

	"github.com/pressly/goose/v3"
)

// DefaultDir is where the migrate CLI reads and writes migration files.
const DefaultDir = "pkg/migrate/migrations"

const embeddedDir = "migrations"

//go:embed migrations/*.sql
var embedded embed.FS

// goose holds its dialect and base filesystem in package state.
var gooseMu sync.Mutex

// Runner applies goose SQL migrations to a Postgres database.
type Runner struct {
	db   *sql.DB
	fsys fs.FS
	dir  string
}

// NewRunner reads migrations from dir on disk. An empty dir selects the
// migrations compiled into the binary.
func NewRunner(db *sql.DB, dir string) (*Runner, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	if dir == "" {
		return &Runner{db: db, fsys: embedded, dir: embeddedDir}, nil
	}
	return &Runner{db: db, dir: dir}, nil
}

func (r *Runner) locked(fn func() error) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(r.fsys)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	return fn()
}

// Run executes a goose command such as up, down, redo or status.
func (r *Runner) Run(ctx context.Context, command string, args ...string) error {
	return r.locked(func() error {
		if err := goose.RunContext(ctx, command, r.db, r.dir, args...); err != nil {
			return fmt.Errorf("goose %s: %w", command, err)
		}
		return nil
	})
}

// Version reports the latest applied migration.
func (r *Runner) Version(ctx context.Context) (int64, error) {
	var version int64
	err := r.locked(func() error {
		v, err := goose.GetDBVersionContext(ctx, r.db)
		if err != nil {
			return fmt.Errorf("get db version: %w", err)
		}
		version = v
		return nil
	})
	return version, err
}

// ToVersion migrates up or down until target is the latest applied version.
func (r *Runner) ToVersion(ctx context.Context, target string) error {
	version, err := parseVersion(target)
	if err != nil {
		return err
	}
	return r.locked(func() error {
		current, err := goose.GetDBVersionContext(ctx, r.db)
		if err != nil {
			return fmt.Errorf("get db version: %w", err)
		}
		switch {
		case current == version:
			return nil
		case current < version:
			if err := goose.UpToContext(ctx, r.db, r.dir, version); err != nil {
				return fmt.Errorf("goose up-to %d: %w", version, err)
			}
		default:
			if err := goose.DownToContext(ctx, r.db, r.dir, version); err != nil {
				return fmt.Errorf("goose down-to %d: %w", version, err)
			}
		}
		return nil
	})
}

func parseVersion(raw string) (int64, error) {
	if raw == "" {
		return 0, fmt.Errorf("target version is required")
	}
	if len(raw) != len(versionLayout) {
		return 0, fmt.Errorf("invalid version %q (expected %d digits)", raw, len(versionLayout))
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid version %q: %w", raw, err)
	}
	return v, nil
}
