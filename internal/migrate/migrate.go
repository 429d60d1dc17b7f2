// Package migrate applies embedded SQL migrations on startup.
package migrate

import (
	"context"
	"database/sql"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/and161185/conote/migrations"
)

// Up runs all pending migrations from the embedded filesystem.
func Up(ctx context.Context, dsn string) error {
	return run(ctx, dsn, goose.UpContext)
}

// Down rolls back the most recent migration.
func Down(ctx context.Context, dsn string) error {
	return run(ctx, dsn, goose.DownContext)
}

func run(ctx context.Context, dsn string, step func(context.Context, *sql.DB, string, ...goose.OptionsFunc) error) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}

	return step(ctx, db, ".")
}
