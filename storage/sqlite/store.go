// Package sqlite stores descriptor records in a local SQLite database, for
// offline use without a NATS server.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/c360studio/semsolver/descriptor"
	"github.com/c360studio/semsolver/storage"
)

//go:embed schema.sql
var schema string

// Store implements storage.Store over database/sql with the sqlite3 driver.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ storage.Store = (*Store)(nil)

// Open opens (creating if needed) the database at path and applies the
// schema. Use ":memory:" for a throwaway database.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// Each :memory: connection is a separate database.
	db.SetMaxOpenConns(1)

	s, err := New(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an open database and applies the schema.
func New(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save implements storage.Store.
func (s *Store) Save(ctx context.Context, r *storage.Record) (string, error) {
	if r != nil && r.ID != "" {
		if err := storage.ValidateID(r.ID); err != nil {
			return "", err
		}
		var created time.Time
		err := s.db.QueryRowContext(ctx, "SELECT created_at FROM descriptors WHERE id = ?", r.ID).Scan(&created)
		switch {
		case err == nil:
			r.CreatedAt = created
		case errors.Is(err, sql.ErrNoRows):
		default:
			return "", fmt.Errorf("failed to look up descriptor: %w", err)
		}
	}

	if err := storage.Prepare(r, s.now()); err != nil {
		return "", err
	}

	ip, cf, al, err := encodeRegions(r.Descriptor)
	if err != nil {
		return "", err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO descriptors (id, name, description, input_parameters, cost_function, algorithm_logic,
			source_path, source_hash, origin, request_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			input_parameters = excluded.input_parameters,
			cost_function = excluded.cost_function,
			algorithm_logic = excluded.algorithm_logic,
			source_path = excluded.source_path,
			source_hash = excluded.source_hash,
			origin = excluded.origin,
			request_id = excluded.request_id,
			updated_at = excluded.updated_at`,
		r.ID, r.Descriptor.Name, r.Descriptor.Description, ip, cf, al,
		nullString(r.Source.Path), nullString(r.Source.Hash), nullString(string(r.Source.Origin)), nullString(r.Source.RequestID),
		r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return "", fmt.Errorf("failed to save descriptor: %w", err)
	}
	return r.ID, nil
}

const selectColumns = `SELECT id, name, description, input_parameters, cost_function, algorithm_logic,
	source_path, source_hash, origin, request_id, created_at, updated_at FROM descriptors`

// Get implements storage.Store.
func (s *Store) Get(ctx context.Context, id string) (*storage.Record, error) {
	if err := storage.ValidateID(id); err != nil {
		return nil, err
	}
	r, err := scanRecord(s.db.QueryRowContext(ctx, selectColumns+" WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get descriptor: %w", err)
	}
	return r, nil
}

// List implements storage.Store.
func (s *Store) List(ctx context.Context) ([]*storage.Record, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+" ORDER BY created_at, id")
	if err != nil {
		return nil, fmt.Errorf("failed to list descriptors: %w", err)
	}
	defer rows.Close()

	var records []*storage.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan descriptor: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	storage.SortRecords(records)
	return records, nil
}

// Delete implements storage.Store.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := storage.ValidateID(id); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, "DELETE FROM descriptors WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete descriptor: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete descriptor: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*storage.Record, error) {
	var (
		r                  storage.Record
		ip, cf, al         string
		path, hash, origin sql.NullString
		requestID          sql.NullString
	)
	err := row.Scan(&r.ID, &r.Descriptor.Name, &r.Descriptor.Description, &ip, &cf, &al,
		&path, &hash, &origin, &requestID, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}

	for _, col := range []struct {
		raw string
		dst *descriptor.Region
	}{
		{ip, &r.Descriptor.InputParameters},
		{cf, &r.Descriptor.CostFunction},
		{al, &r.Descriptor.AlgorithmLogic},
	} {
		if err := json.Unmarshal([]byte(col.raw), col.dst); err != nil {
			return nil, fmt.Errorf("decode region: %w", err)
		}
	}

	r.Source = storage.Provenance{
		Path:      path.String,
		Hash:      hash.String,
		Origin:    storage.Origin(origin.String),
		RequestID: requestID.String,
	}
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	return &r, nil
}

func encodeRegions(d descriptor.SolverDescriptor) (string, string, string, error) {
	var out [3]string
	for i, region := range []descriptor.Region{d.InputParameters, d.CostFunction, d.AlgorithmLogic} {
		b, err := json.Marshal(region)
		if err != nil {
			return "", "", "", fmt.Errorf("encode region: %w", err)
		}
		out[i] = string(b)
	}
	return out[0], out[1], out[2], nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
