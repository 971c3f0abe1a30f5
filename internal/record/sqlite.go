// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package record

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SQLiteStore persists records in the webanalytics_records table.
// It implements both Store and Locker.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps an open database handle.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

const recordColumns = "id, type, name, enabled, location, trackadmin, track_only_students, categories, cleanurl, settings"

// Get returns the record with the given id, or nil when absent.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+recordColumns+" FROM webanalytics_records WHERE id = ?", id)

	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting record %s: %w", id, err)
	}
	return r, nil
}

// GetAll returns every stored record in insertion order.
func (s *SQLiteStore) GetAll(ctx context.Context) ([]*Record, error) {
	return s.query(ctx,
		"SELECT "+recordColumns+" FROM webanalytics_records ORDER BY rowid")
}

// GetEnabled returns enabled records only, in insertion order.
func (s *SQLiteStore) GetEnabled(ctx context.Context) ([]*Record, error) {
	return s.query(ctx,
		"SELECT "+recordColumns+" FROM webanalytics_records WHERE enabled = 1 ORDER BY rowid")
}

func (s *SQLiteStore) query(ctx context.Context, q string) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating records: %w", err)
	}
	return records, nil
}

// Save inserts the record when its ID is empty and updates it otherwise.
// The stored type always wins on update.
func (s *SQLiteStore) Save(ctx context.Context, r *Record) (string, error) {
	if r.Location == "" {
		r.Location = "head"
	}

	categories, err := json.Marshal(r.Categories)
	if err != nil {
		return "", fmt.Errorf("encoding categories: %w", err)
	}
	if r.Categories == nil {
		categories = []byte("[]")
	}
	settings := r.Settings.Encode()

	if r.ID != "" {
		if existing, err := s.Get(ctx, r.ID); err != nil {
			return "", err
		} else if existing != nil {
			_, err = s.db.ExecContext(ctx, `
				UPDATE webanalytics_records
				SET name = ?, enabled = ?, location = ?, trackadmin = ?, track_only_students = ?,
				    categories = ?, cleanurl = ?, settings = ?, updated_at = CURRENT_TIMESTAMP
				WHERE id = ?`,
				r.Name, boolInt(r.Enabled), r.Location, boolInt(r.TrackAdmin), boolInt(r.TrackOnlyStudents),
				string(categories), boolInt(r.CleanURL), string(settings), r.ID)
			if err != nil {
				return "", fmt.Errorf("updating record %s: %w", r.ID, err)
			}
			r.Type = existing.Type
			return r.ID, nil
		}
	}

	id := r.ID
	if id == "" {
		for {
			id = uuid.NewString()
			if existing, err := s.Get(ctx, id); err != nil {
				return "", err
			} else if existing == nil {
				break
			}
		}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO webanalytics_records
			(id, type, name, enabled, location, trackadmin, track_only_students, categories, cleanurl, settings)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, r.Type, r.Name, boolInt(r.Enabled), r.Location, boolInt(r.TrackAdmin), boolInt(r.TrackOnlyStudents),
		string(categories), boolInt(r.CleanURL), string(settings))
	if err != nil {
		return "", fmt.Errorf("inserting record: %w", err)
	}

	r.ID = id
	return id, nil
}

// Delete removes a record. Deleting an absent id is a no-op.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM webanalytics_records WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting record %s: %w", id, err)
	}
	return nil
}

// Ready reports whether the records table exists yet.
func (s *SQLiteStore) Ready(ctx context.Context) bool {
	var name string
	err := s.db.QueryRowContext(ctx,
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'webanalytics_records'").Scan(&name)
	return err == nil
}

// TryLock acquires the advisory lock for kind. Locks older than ttl are
// treated as abandoned and stolen.
func (s *SQLiteStore) TryLock(ctx context.Context, kind string, ttl time.Duration) (bool, error) {
	cutoff := time.Now().UTC().Add(-ttl)
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM provision_locks WHERE kind = ? AND locked_at < ?", kind, cutoff); err != nil {
		return false, fmt.Errorf("expiring provision lock: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO provision_locks (kind, locked_at) VALUES (?, ?)",
		kind, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("acquiring provision lock: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking provision lock: %w", err)
	}
	return n > 0, nil
}

// Unlock releases the advisory lock for kind.
func (s *SQLiteStore) Unlock(ctx context.Context, kind string) error {
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM provision_locks WHERE kind = ?", kind); err != nil {
		return fmt.Errorf("releasing provision lock: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*Record, error) {
	var (
		r          Record
		enabled    int
		trackAdmin int
		students   int
		cleanURL   int
		categories string
		settings   string
	)
	err := row.Scan(&r.ID, &r.Type, &r.Name, &enabled, &r.Location, &trackAdmin, &students,
		&categories, &cleanURL, &settings)
	if err != nil {
		return nil, err
	}

	r.Enabled = enabled == 1
	r.TrackAdmin = trackAdmin == 1
	r.TrackOnlyStudents = students == 1
	r.CleanURL = cleanURL == 1
	r.Settings = DecodeSettings([]byte(settings))
	if err := json.Unmarshal([]byte(categories), &r.Categories); err != nil {
		r.Categories = nil
	}

	return &r, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
