package selector

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/conorfennell/knolcards/internal/domain"
	"github.com/conorfennell/knolcards/internal/storage"
)

type fixture struct {
	t   *testing.T
	db  *storage.DB
	sel *Selector
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &fixture{t: t, db: db, sel: New(db)}
}

// card inserts a card created at createdAt (ms) with a schedule that became
// active at updatedAt and waits inMillis.
func (f *fixture) card(content domain.Content, createdAt, updatedAt, inMillis int64, tags ...int64) int64 {
	f.t.Helper()
	ctx := context.Background()
	q := f.db.Reader()
	id, err := storage.Cards.Insert(ctx, q, domain.Card{Type: content.CardType(), CreatedAt: time.UnixMilli(createdAt)})
	require.NoError(f.t, err)
	require.NoError(f.t, storage.InsertContent(ctx, q, id, content))
	_, err = storage.Schedules.Insert(ctx, q, domain.Schedule{
		CardID:             id,
		UpdatedAt:          time.UnixMilli(updatedAt),
		OrigDelay:          "1s",
		Delay:              "1s",
		RandomFactor:       1,
		NextAccessInMillis: inMillis,
		NextAccessAt:       time.UnixMilli(updatedAt + inMillis),
	})
	require.NoError(f.t, err)
	if len(tags) > 0 {
		require.NoError(f.t, f.db.ReplaceCardTags(ctx, q, id, tags))
	}
	return id
}

func (f *fixture) tag(name string) int64 {
	f.t.Helper()
	id, err := storage.InsertTag(context.Background(), f.db.Reader(), name, time.UnixMilli(0))
	require.NoError(f.t, err)
	return id
}

func intPtr(n int) *int { return &n }

func boolPtr(b bool) *bool { return &b }

func TestSearch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.UnixMilli(100_000)

	red := f.tag("red")
	blue := f.tag("blue")

	a := f.card(domain.TranslationContent{TextToTranslate: "Hello", Translation: "Hallo"}, 1000, 0, 1000, red, blue)
	b := f.card(domain.TranslationContent{TextToTranslate: "Goodbye", Translation: "Tschuess"}, 2000, 0, 50_000, red)
	c := f.card(domain.NoteContent{Text: "remember the milk"}, 3000, 0, 200_000)
	d := f.card(domain.TranslationContent{TextToTranslate: "World", Translation: "Welt"}, 4000, 0, 1000, blue)

	testCases := []struct {
		name   string
		filter Filter
		want   []int64
	}{
		{"empty filter orders by creation", Filter{}, []int64{a, b, c, d}},
		{"descending", Filter{SortDir: Desc}, []int64{d, c, b, a}},
		{"by type", Filter{Type: domain.Note}, []int64{c}},
		{"unknown type is ignored", Filter{Type: "BOGUS"}, []int64{a, b, c, d}},
		{"contains is case-insensitive", Filter{TextToTranslate: TextFilter{Contains: "hel"}}, []int64{a}},
		{"translation length", Filter{Translation: TextFilter{MinLength: intPtr(5), MaxLength: intPtr(5)}}, []int64{a}},
		{"inverted length bounds are ignored", Filter{Translation: TextFilter{MinLength: intPtr(9), MaxLength: intPtr(1)}}, []int64{a, b, c, d}},
		{"note text", Filter{NoteText: TextFilter{Contains: "MILK"}}, []int64{c}},
		{"include one tag", Filter{TagsIncluded: []int64{red}}, []int64{a, b}},
		{"include all tags", Filter{TagsIncluded: []int64{red, blue}}, []int64{a}},
		{"exclude tag", Filter{TagsExcluded: []int64{red}}, []int64{c, d}},
		{"include and exclude", Filter{TagsIncluded: []int64{blue}, TagsExcluded: []int64{red}}, []int64{d}},
		{"created range is inclusive", Filter{CreatedAt: rangeOf(2000, 3000)}, []int64{b, c}},
		{"next access range", Filter{NextAccessAt: rangeOf(0, 60_000)}, []int64{a, b, d}},
		{"overdue threshold", Filter{OverdueAtLeast: floatPtr(2)}, []int64{a, d}},
		{"overdue threshold is inclusive", Filter{OverdueAtLeast: floatPtr(1)}, []int64{a, b, d}},
		{"sort by overdue desc", Filter{SortBy: SortByOverdue, SortDir: Desc, Limit: 3}, []int64{d, a, b}},
		{"sort by next access", Filter{SortBy: SortByNextAccessAt}, []int64{a, d, b, c}},
		{"paused", Filter{Paused: boolPtr(true)}, []int64{}},
		{"limit", Filter{Limit: 2}, []int64{a, b}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := f.sel.Search(ctx, f.db.Reader(), tc.filter, now)
			require.NoError(t, err)
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("Search() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSearchFoldsUnicode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.UnixMilli(100_000)

	ru := f.card(domain.TranslationContent{TextToTranslate: "Привет мир", Translation: "Hello world"}, 1000, 0, 1000)
	de := f.card(domain.TranslationContent{TextToTranslate: "over", Translation: "ÜBER"}, 2000, 0, 1000)

	testCases := []struct {
		name   string
		filter Filter
		want   []int64
	}{
		{"lower case cyrillic", Filter{TextToTranslate: TextFilter{Contains: "привет"}}, []int64{ru}},
		{"upper case cyrillic", Filter{TextToTranslate: TextFilter{Contains: "ПРИВЕТ"}}, []int64{ru}},
		{"lower case umlaut", Filter{Translation: TextFilter{Contains: "über"}}, []int64{de}},
		{"exact case umlaut", Filter{Translation: TextFilter{Contains: "ÜBER"}}, []int64{de}},
		{"no match", Filter{Translation: TextFilter{Contains: "uber"}}, []int64{}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := f.sel.Search(ctx, f.db.Reader(), tc.filter, now)
			require.NoError(t, err)
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("Search() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFilterBuilderIsStable(t *testing.T) {
	f := Filter{
		TextToTranslate: TextFilter{Contains: "a"},
		Translation:     TextFilter{Contains: "b", MinLength: intPtr(1)},
		NoteText:        TextFilter{Contains: "c"},
	}
	now := time.UnixMilli(0)
	query, args := f.Builder(now).Build(Plan{})
	for i := 0; i < 20; i++ {
		q, a := f.Builder(now).Build(Plan{})
		require.Equal(t, query, q)
		require.Equal(t, args, a)
	}
	require.Less(t, strings.Index(query, ColumnTextToTranslate), strings.Index(query, ColumnTranslation+")"))
}

func rangeOf(from, till int64) TimeRange {
	f, t := time.UnixMilli(from), time.UnixMilli(till)
	return TimeRange{From: &f, Till: &t}
}

func floatPtr(v float64) *float64 { return &v }

func TestTopOverdue(t *testing.T) {
	ctx := context.Background()

	t.Run("most overdue first", func(t *testing.T) {
		f := newFixture(t)
		now := time.UnixMilli(10_000)
		a := f.card(domain.NoteContent{Text: "a"}, 0, 0, 5000)
		b := f.card(domain.NoteContent{Text: "b"}, 1, 0, 1000)
		f.card(domain.NoteContent{Text: "c"}, 2, 0, 60_000)

		ids, wait, err := f.sel.TopOverdue(ctx, f.db.Reader(), Filter{}, 10, now)
		require.NoError(t, err)
		require.Equal(t, []int64{b, a}, ids)
		require.Empty(t, wait)
	})

	t.Run("reports time until next card", func(t *testing.T) {
		f := newFixture(t)
		now := time.UnixMilli(0)
		f.card(domain.NoteContent{Text: "a"}, 0, 0, 90*60*1000+30_000)
		f.card(domain.NoteContent{Text: "b"}, 0, 0, 2*24*60*60*1000)

		ids, wait, err := f.sel.TopOverdue(ctx, f.db.Reader(), Filter{}, 10, now)
		require.NoError(t, err)
		require.Empty(t, ids)
		require.Equal(t, "1h 30m 30s", wait)
	})

	t.Run("no matching cards", func(t *testing.T) {
		f := newFixture(t)
		ids, wait, err := f.sel.TopOverdue(ctx, f.db.Reader(), Filter{Type: domain.Note}, 10, time.UnixMilli(0))
		require.NoError(t, err)
		require.Empty(t, ids)
		require.Empty(t, wait)
	})
}

func TestBuildUsesPivot(t *testing.T) {
	b := NewBuilder(0).IncludeTags(3, 5).ExcludeTags(7)

	query, args := b.Build(Plan{PivotTag: 5})
	require.Contains(t, query, "JOIN card_tag pivot")
	require.Equal(t, []any{int64(5), int64(3), 1, int64(7)}, args)
	require.Equal(t, strings.Count(query, "?"), len(args))

	query, args = b.Build(Plan{PivotTag: 99})
	require.NotContains(t, query, "pivot")
	require.Equal(t, []any{int64(3), int64(5), 2, int64(7)}, args)
}

func TestLeastUsedFollowsTagLinks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	q := f.db.Reader()

	common := f.tag("common")
	rare := f.tag("rare")
	f.card(domain.NoteContent{Text: "a"}, 0, 0, 1, common)
	f.card(domain.NoteContent{Text: "b"}, 0, 0, 1, common)
	c := f.card(domain.NoteContent{Text: "c"}, 0, 0, 1, common, rare)

	got, err := f.sel.usage.LeastUsed(ctx, q, []int64{common, rare})
	require.NoError(t, err)
	require.Equal(t, rare, got)

	// Equal counts fall back to the lower id.
	require.NoError(t, f.db.ReplaceCardTags(ctx, q, c, []int64{rare}))
	f.card(domain.NoteContent{Text: "d"}, 0, 0, 1, rare)
	got, err = f.sel.usage.LeastUsed(ctx, q, []int64{rare, common})
	require.NoError(t, err)
	require.Equal(t, common, got)

	got, err = f.sel.usage.LeastUsed(ctx, q, nil)
	require.NoError(t, err)
	require.Zero(t, got)
}
