package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Source is a place cards are imported from, either a local path or a Git URL.
type Source struct {
	ID          int64
	Path        string
	Type        string // "local" or "git"
	LastScanned *time.Time
}

// ImportedCard links the content hash of an imported card to the card created for it.
type ImportedCard struct {
	Hash     string
	SourceID int64
	CardID   int64
}

// InsertSource inserts a new source and returns its ID.
func InsertSource(ctx context.Context, q Querier, path, sourceType string) (int64, error) {
	res, err := q.ExecContext(ctx, `
		INSERT INTO import_source (path, type)
		VALUES (?, ?)
	`, path, sourceType)
	if err != nil {
		return 0, fmt.Errorf("failed to insert source %s: %w", path, classify(err))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for source %s: %w", path, err)
	}
	return id, nil
}

// FindSourceByPath retrieves a source by its path, or nil if there is none.
func (db *DB) FindSourceByPath(ctx context.Context, path string) (*Source, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT id, path, type, last_scanned
		FROM import_source WHERE path = ?
	`, path)
	s, err := scanSource(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find source by path %s: %w", path, err)
	}
	return &s, nil
}

// GetAllSources retrieves all stored sources.
func (db *DB) GetAllSources(ctx context.Context) ([]Source, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, path, type, last_scanned
		FROM import_source ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get all sources: %w", err)
	}
	defer rows.Close()

	var sources []Source
	for rows.Next() {
		s, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan source row: %w", err)
		}
		sources = append(sources, s)
	}
	return sources, rows.Err()
}

func scanSource(s scanner) (Source, error) {
	var src Source
	var lastScanned sql.NullInt64
	if err := s.Scan(&src.ID, &src.Path, &src.Type, &lastScanned); err != nil {
		return src, err
	}
	if lastScanned.Valid {
		t := fromMillis(lastScanned.Int64)
		src.LastScanned = &t
	}
	return src, nil
}

// UpdateSourceLastScanned records when a source was last reconciled.
func UpdateSourceLastScanned(ctx context.Context, q Querier, sourceID int64, at time.Time) error {
	_, err := q.ExecContext(ctx, `
		UPDATE import_source
		SET last_scanned = ?
		WHERE id = ?
	`, millis(at), sourceID)
	if err != nil {
		return fmt.Errorf("failed to update last scanned for source ID %d: %w", sourceID, err)
	}
	return nil
}

// FindImportedCard returns the import record for a content hash, or nil.
func (db *DB) FindImportedCard(ctx context.Context, hash string) (*ImportedCard, error) {
	var ic ImportedCard
	err := db.conn.QueryRowContext(ctx, `
		SELECT hash, source_id, card_id FROM imported_card WHERE hash = ?
	`, hash).Scan(&ic.Hash, &ic.SourceID, &ic.CardID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find imported card %s: %w", hash, err)
	}
	return &ic, nil
}

// InsertImportedCard records that hash was imported as cardID.
func InsertImportedCard(ctx context.Context, q Querier, ic ImportedCard) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO imported_card (hash, source_id, card_id)
		VALUES (?, ?, ?)
	`, ic.Hash, ic.SourceID, ic.CardID)
	if err != nil {
		return fmt.Errorf("failed to record imported card %s: %w", ic.Hash, classify(err))
	}
	return nil
}

// GetImportedCardsBySourceID returns every import record of a source.
func (db *DB) GetImportedCardsBySourceID(ctx context.Context, sourceID int64) ([]ImportedCard, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT hash, source_id, card_id FROM imported_card WHERE source_id = ?
	`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get imported cards for source ID %d: %w", sourceID, err)
	}
	defer rows.Close()

	var cards []ImportedCard
	for rows.Next() {
		var ic ImportedCard
		if err := rows.Scan(&ic.Hash, &ic.SourceID, &ic.CardID); err != nil {
			return nil, fmt.Errorf("failed to scan imported card row for source ID %d: %w", sourceID, err)
		}
		cards = append(cards, ic)
	}
	return cards, rows.Err()
}

// DeleteImportedCard removes the import record for a content hash.
func DeleteImportedCard(ctx context.Context, q Querier, hash string) error {
	_, err := q.ExecContext(ctx, `
		DELETE FROM imported_card
		WHERE hash = ?
	`, hash)
	if err != nil {
		return fmt.Errorf("failed to delete imported card with hash %s: %w", hash, err)
	}
	return nil
}
