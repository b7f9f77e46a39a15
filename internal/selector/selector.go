// Package selector finds cards matching ad-hoc filters.
package selector

import (
	"context"
	"fmt"
	"time"

	"github.com/conorfennell/knolcards/internal/delay"
	"github.com/conorfennell/knolcards/internal/domain"
	"github.com/conorfennell/knolcards/internal/storage"
)

// TextFilter constrains one content field. Zero values do not filter.
type TextFilter struct {
	Contains  string `json:"contains,omitempty"`
	MinLength *int   `json:"minLength,omitempty"`
	MaxLength *int   `json:"maxLength,omitempty"`
}

// TimeRange bounds a timestamp, both ends inclusive. Nil ends are open.
type TimeRange struct {
	From *time.Time `json:"from,omitempty"`
	Till *time.Time `json:"till,omitempty"`
}

// Filter describes a card search.
type Filter struct {
	Type            domain.CardType `json:"type,omitempty"`
	TagsIncluded    []int64         `json:"tagsIncluded,omitempty"`
	TagsExcluded    []int64         `json:"tagsExcluded,omitempty"`
	Paused          *bool           `json:"paused,omitempty"`
	TextToTranslate TextFilter      `json:"textToTranslate"`
	Translation     TextFilter      `json:"translation"`
	NoteText        TextFilter      `json:"noteText"`
	CreatedAt       TimeRange       `json:"createdAt"`
	NextAccessAt    TimeRange       `json:"nextAccessAt"`
	OverdueAtLeast  *float64        `json:"overdueAtLeast,omitempty"`
	SortBy          SortField       `json:"sortBy"`
	SortDir         SortDir         `json:"sortDir"`
	Limit           int             `json:"limit,omitempty"`
}

// Builder compiles f into a query builder evaluated at now.
func (f Filter) Builder(now time.Time) *Builder {
	b := NewBuilder(now.UnixMilli())
	b.Where(&TypePredicate{Type: f.Type})
	if f.Paused != nil {
		b.Where(&PausedPredicate{Paused: *f.Paused})
	}
	for _, t := range []struct {
		col string
		tf  TextFilter
	}{
		{ColumnTextToTranslate, f.TextToTranslate},
		{ColumnTranslation, f.Translation},
		{ColumnNoteText, f.NoteText},
	} {
		b.Where(&ContainsPredicate{Column: t.col, Text: t.tf.Contains})
		b.Where(&LengthPredicate{Column: t.col, Min: t.tf.MinLength, Max: t.tf.MaxLength})
	}
	b.Where(rangePredicate(ColumnCreatedAt, f.CreatedAt))
	b.Where(rangePredicate(ColumnNextAccessAt, f.NextAccessAt))
	if f.OverdueAtLeast != nil {
		b.Where(&OverduePredicate{Now: now.UnixMilli(), Min: *f.OverdueAtLeast})
	}
	return b.IncludeTags(f.TagsIncluded...).
		ExcludeTags(f.TagsExcluded...).
		OrderBy(f.SortBy, f.SortDir).
		Limit(f.Limit)
}

func rangePredicate(col string, r TimeRange) *RangePredicate {
	p := &RangePredicate{Column: col}
	if r.From != nil {
		ms := r.From.UnixMilli()
		p.From = &ms
	}
	if r.Till != nil {
		ms := r.Till.UnixMilli()
		p.Till = &ms
	}
	return p
}

// Selector runs filters against the card store.
type Selector struct {
	usage *TagUsage
}

// New creates a Selector whose tag-usage cache follows db's tag link changes.
func New(db *storage.DB) *Selector {
	s := &Selector{usage: &TagUsage{}}
	db.OnTagLinksChanged(s.usage.Invalidate)
	return s
}

// Search returns the ids of cards matching f, in f's order.
func (s *Selector) Search(ctx context.Context, q storage.Querier, f Filter, now time.Time) ([]int64, error) {
	return s.run(ctx, q, f.Builder(now))
}

// TopOverdue returns up to limit due cards, most overdue first. When none
// are due it reports how long until the earliest matching card is, or ""
// when no card matches at all.
func (s *Selector) TopOverdue(ctx context.Context, q storage.Querier, f Filter, limit int, now time.Time) ([]int64, string, error) {
	due := f
	zero := 0.0
	due.OverdueAtLeast = &zero
	due.SortBy, due.SortDir, due.Limit = SortByOverdue, Desc, limit
	ids, err := s.Search(ctx, q, due, now)
	if err != nil {
		return nil, "", err
	}
	if len(ids) > 0 {
		return ids, "", nil
	}

	next := f
	next.OverdueAtLeast = nil
	next.SortBy, next.SortDir, next.Limit = SortByNextAccessAt, Asc, 1
	upcoming, err := s.Search(ctx, q, next, now)
	if err != nil {
		return nil, "", err
	}
	if len(upcoming) == 0 {
		return []int64{}, "", nil
	}
	sch, err := storage.Schedules.Get(ctx, q, upcoming[0])
	if err != nil {
		return nil, "", err
	}
	if sch == nil {
		return nil, "", fmt.Errorf("schedule for card %d: %w", upcoming[0], storage.ErrNotFound)
	}
	return []int64{}, delay.FormatMillis(sch.NextAccessAt.UnixMilli() - now.UnixMilli()), nil
}

func (s *Selector) run(ctx context.Context, q storage.Querier, b *Builder) ([]int64, error) {
	pivot, err := s.usage.LeastUsed(ctx, q, b.Included())
	if err != nil {
		return nil, err
	}
	query, args := b.Build(Plan{PivotTag: pivot})
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select cards (%s): %w", b, err)
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan card id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
