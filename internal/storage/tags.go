package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/conorfennell/knolcards/internal/domain"
)

// InsertTag creates a tag and returns its ID. A duplicate name yields
// ErrUniqueViolation.
func InsertTag(ctx context.Context, q Querier, name string, createdAt time.Time) (int64, error) {
	res, err := q.ExecContext(ctx, `
		INSERT INTO tag (name, created_at)
		VALUES (?, ?)
	`, name, millis(createdAt))
	if err != nil {
		return 0, fmt.Errorf("failed to insert tag %q: %w", name, classify(err))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for tag %q: %w", name, err)
	}
	return id, nil
}

// FindTag returns the tag with the given ID, or nil if it does not exist.
func FindTag(ctx context.Context, q Querier, id int64) (*domain.Tag, error) {
	return scanTag(q.QueryRowContext(ctx, `
		SELECT id, name, created_at FROM tag WHERE id = ?
	`, id))
}

// FindTagByName returns the tag with the given name, or nil if it does not exist.
func FindTagByName(ctx context.Context, q Querier, name string) (*domain.Tag, error) {
	return scanTag(q.QueryRowContext(ctx, `
		SELECT id, name, created_at FROM tag WHERE name = ?
	`, name))
}

func scanTag(row *sql.Row) (*domain.Tag, error) {
	var t domain.Tag
	var createdAt int64
	if err := row.Scan(&t.ID, &t.Name, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan tag: %w", err)
	}
	t.CreatedAt = fromMillis(createdAt)
	return &t, nil
}

// AllTags returns every tag ordered by name.
func AllTags(ctx context.Context, q Querier) ([]domain.Tag, error) {
	rows, err := q.QueryContext(ctx, `SELECT id, name, created_at FROM tag ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to get all tags: %w", err)
	}
	defer rows.Close()

	var tags []domain.Tag
	for rows.Next() {
		var t domain.Tag
		var createdAt int64
		if err := rows.Scan(&t.ID, &t.Name, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan tag row: %w", err)
		}
		t.CreatedAt = fromMillis(createdAt)
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

// RenameTag changes a tag's name.
func RenameTag(ctx context.Context, q Querier, id int64, name string) error {
	res, err := q.ExecContext(ctx, `UPDATE tag SET name = ? WHERE id = ?`, name, id)
	if err != nil {
		return fmt.Errorf("failed to rename tag %d: %w", id, classify(err))
	}
	return requireAffected(res, "tag", id)
}

// DeleteTag removes a tag. It fails with ErrForeignKeyViolation while any
// card is still linked to it.
func DeleteTag(ctx context.Context, q Querier, id int64) error {
	res, err := q.ExecContext(ctx, `DELETE FROM tag WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete tag %d: %w", id, classify(err))
	}
	return requireAffected(res, "tag", id)
}

// CardTagIDs returns the IDs of the tags linked to a card, ascending.
func CardTagIDs(ctx context.Context, q Querier, cardID int64) ([]int64, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT tag_id FROM card_tag WHERE card_id = ? ORDER BY tag_id
	`, cardID)
	if err != nil {
		return nil, fmt.Errorf("failed to get tags for card %d: %w", cardID, err)
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan card tag row: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// TagUsage returns the number of cards linked to each tag that has any.
func TagUsage(ctx context.Context, q Querier) (map[int64]int, error) {
	rows, err := q.QueryContext(ctx, `SELECT tag_id, COUNT(*) FROM card_tag GROUP BY tag_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to count tag usage: %w", err)
	}
	defer rows.Close()

	usage := make(map[int64]int)
	for rows.Next() {
		var id int64
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("failed to scan tag usage row: %w", err)
		}
		usage[id] = n
	}
	return usage, rows.Err()
}

// ReplaceCardTags sets the card's tag links to exactly tagIDs.
func (db *DB) ReplaceCardTags(ctx context.Context, q Querier, cardID int64, tagIDs []int64) error {
	if err := db.DeleteCardTags(ctx, q, cardID); err != nil {
		return err
	}
	for _, tagID := range tagIDs {
		_, err := q.ExecContext(ctx, `
			INSERT OR IGNORE INTO card_tag (card_id, tag_id) VALUES (?, ?)
		`, cardID, tagID)
		if err != nil {
			return fmt.Errorf("failed to link tag %d to card %d: %w", tagID, cardID, classify(err))
		}
	}
	if len(tagIDs) > 0 {
		db.tagLinksChanged(q)
	}
	return nil
}

// DeleteCardTags removes all tag links of a card.
func (db *DB) DeleteCardTags(ctx context.Context, q Querier, cardID int64) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM card_tag WHERE card_id = ?`, cardID); err != nil {
		return fmt.Errorf("failed to unlink tags from card %d: %w", cardID, classify(err))
	}
	db.tagLinksChanged(q)
	return nil
}

func requireAffected(res sql.Result, table string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows for %s %d: %w", table, id, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", table, id, ErrNotFound)
	}
	return nil
}
