package state

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/surge-downloader/trickle/internal/engine/types"
)

// ErrNotFound is returned when no record matches an ID.
var ErrNotFound = errors.New("transfer not found")

const recordColumns = `id, url, filename, dest_path, total_size, downloaded, status, error, mime_type, started_at, finished_at`

// RecordTransfer inserts or replaces rec, keyed by its ID.
func RecordTransfer(rec types.TransferRecord) error {
	conn, err := GetDB()
	if err != nil {
		return err
	}
	_, err = conn.Exec(
		`INSERT OR REPLACE INTO transfers (`+recordColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.URL, rec.Filename, rec.DestPath, rec.TotalSize, rec.Downloaded,
		rec.Status, rec.Error, rec.MimeType, rec.StartedAt, rec.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record transfer %s: %w", rec.ID, err)
	}
	return nil
}

// GetTransfer returns the record with the given ID.
func GetTransfer(id string) (*types.TransferRecord, error) {
	conn, err := GetDB()
	if err != nil {
		return nil, err
	}
	row := conn.QueryRow(`SELECT `+recordColumns+` FROM transfers WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// ListHistory returns records newest first. limit <= 0 returns everything.
func ListHistory(limit int) ([]types.TransferRecord, error) {
	conn, err := GetDB()
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + recordColumns + ` FROM transfers ORDER BY finished_at DESC, rowid DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []types.TransferRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// ClearHistory deletes every record and returns how many were removed.
func ClearHistory() (int64, error) {
	conn, err := GetDB()
	if err != nil {
		return 0, err
	}
	res, err := conn.Exec(`DELETE FROM transfers`)
	if err != nil {
		return 0, fmt.Errorf("failed to clear history: %w", err)
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*types.TransferRecord, error) {
	var rec types.TransferRecord
	err := s.Scan(
		&rec.ID, &rec.URL, &rec.Filename, &rec.DestPath, &rec.TotalSize, &rec.Downloaded,
		&rec.Status, &rec.Error, &rec.MimeType, &rec.StartedAt, &rec.FinishedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
