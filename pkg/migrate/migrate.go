package migrate

import (
	"context"
	"fmt"
	"io/fs"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
)

// Runner applies embedded goose migrations against the primary database.
type Runner struct {
	db  *sqlx.DB
	dir string
}

// New prepares a migration runner over the given filesystem.
func New(db *sqlx.DB, fsys fs.FS, dir string) (*Runner, error) {
	if err := goose.SetDialect("postgres"); err != nil {
		return nil, fmt.Errorf("set goose dialect: %w", err)
	}
	goose.SetBaseFS(fsys)
	return &Runner{db: db, dir: dir}, nil
}

// Up applies all pending migrations.
func (r *Runner) Up(ctx context.Context) error {
	if err := goose.UpContext(ctx, r.db.DB, r.dir); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Version reports the current migration version.
func (r *Runner) Version(ctx context.Context) (int64, error) {
	version, err := goose.GetDBVersionContext(ctx, r.db.DB)
	if err != nil {
		return 0, fmt.Errorf("get migration version: %w", err)
	}
	return version, nil
}
