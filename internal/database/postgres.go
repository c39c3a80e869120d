package database

import (
	"context"
	"database/sql"
	"fmt"
)

type PgGoPlazaRepository struct {
	conn *sql.DB
}

func NewPgGoPlazaRepository(dsn string) (*PgGoPlazaRepository, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	return &PgGoPlazaRepository{conn: db}, nil
}

// DB exposes the underlying pool for schema migrations.
func (db *PgGoPlazaRepository) DB() *sql.DB {
	return db.conn
}

func (db *PgGoPlazaRepository) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

func (db *PgGoPlazaRepository) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

func (db *PgGoPlazaRepository) withTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}

	return tx.Commit()
}
