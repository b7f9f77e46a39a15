package storage

import (
	"context"
	"fmt"

	"github.com/conorfennell/knolcards/internal/domain"
)

// AppendValidation adds an answer to the validation log and returns its record ID.
// Log entries are never updated or versioned.
func AppendValidation(ctx context.Context, q Querier, e domain.ValidationLogEntry) (int64, error) {
	res, err := q.ExecContext(ctx, `
		INSERT INTO validation_log (card_id, timestamp, provided_translation, matched)
		VALUES (?, ?, ?, ?)
	`, e.CardID, millis(e.Timestamp), e.ProvidedTranslation, e.Matched)
	if err != nil {
		return 0, fmt.Errorf("failed to log validation for card %d: %w", e.CardID, classify(err))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for validation of card %d: %w", e.CardID, err)
	}
	return id, nil
}

// Validations returns a card's validation log, newest first.
func Validations(ctx context.Context, q Querier, cardID int64) ([]domain.ValidationLogEntry, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT rec_id, card_id, timestamp, provided_translation, matched
		FROM validation_log WHERE card_id = ?
		ORDER BY timestamp DESC, rec_id DESC
	`, cardID)
	if err != nil {
		return nil, fmt.Errorf("failed to get validations for card %d: %w", cardID, err)
	}
	defer rows.Close()

	var entries []domain.ValidationLogEntry
	for rows.Next() {
		var e domain.ValidationLogEntry
		var ts int64
		if err := rows.Scan(&e.RecID, &e.CardID, &ts, &e.ProvidedTranslation, &e.Matched); err != nil {
			return nil, fmt.Errorf("failed to scan validation row for card %d: %w", cardID, err)
		}
		e.Timestamp = fromMillis(ts)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
