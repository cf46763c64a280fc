package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"osintwarn/internal/config"
	"osintwarn/internal/model"
)

// Store keeps a copy of the indicator definitions so the service can start
// without the YAML file on disk.
type Store interface {
	Init(ctx context.Context) error
	Close() error
	SaveDefinitions(ctx context.Context, defs []model.IndicatorDefinition) error
	LoadDefinitions(ctx context.Context) ([]model.IndicatorDefinition, error)
}

var ErrUnsupportedDriver = errors.New("unsupported storage driver")

func NewStore(cfg config.StorageConfig) (Store, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	switch strings.ToLower(cfg.Driver) {
	case "sqlite":
		return NewSQLite(cfg.DSN)
	case "postgres", "postgresql":
		return NewPostgres(cfg.DSN)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, cfg.Driver)
	}
}

// baseStore holds the SQL shared by both drivers. Only the placeholder style
// and the DDL differ.
type baseStore struct {
	db          *sql.DB
	placeholder func(n int) string
}

func (b *baseStore) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

func (b *baseStore) SaveDefinitions(ctx context.Context, defs []model.IndicatorDefinition) error {
	if b.db == nil {
		return nil
	}
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM indicators`); err != nil {
		_ = tx.Rollback()
		return err
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		`INSERT INTO indicators (position, id, document) VALUES (%s, %s, %s)`,
		b.placeholder(1), b.placeholder(2), b.placeholder(3)))
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()
	for i, def := range defs {
		doc, err := encodeJSON(def)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("encode definition %s: %w", def.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, i, def.ID, doc); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (b *baseStore) LoadDefinitions(ctx context.Context) ([]model.IndicatorDefinition, error) {
	if b.db == nil {
		return nil, nil
	}
	rows, err := b.db.QueryContext(ctx, `SELECT id, document FROM indicators ORDER BY position`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.IndicatorDefinition
	for rows.Next() {
		var id string
		var doc []byte
		if err := rows.Scan(&id, &doc); err != nil {
			return nil, err
		}
		var def model.IndicatorDefinition
		if err := json.Unmarshal(doc, &def); err != nil {
			return nil, fmt.Errorf("decode definition %s: %w", id, err)
		}
		out = append(out, def)
	}
	return out, rows.Err()
}

func encodeJSON(value any) (string, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
