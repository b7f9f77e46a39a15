package selector

import (
	"fmt"
	"strings"

	"github.com/conorfennell/knolcards/internal/domain"
	"github.com/conorfennell/knolcards/internal/storage"
)

// Predicate is a single WHERE condition over the joined card row.
// Aliases available: c (card), s (schedule), tc (translation_content),
// nc (note_content).
type Predicate interface {
	// SQL returns the SQL fragment for this predicate.
	SQL() string
	// Args returns the arguments for the placeholders in SQL, in order.
	Args() []any
	// Valid reports whether the predicate constrains anything.
	Valid() bool
}

// Content columns that text predicates may target.
const (
	ColumnTextToTranslate = "tc.text_to_translate"
	ColumnTranslation     = "tc.translation"
	ColumnNoteText        = "nc.text"
)

// Time columns that range predicates may target.
const (
	ColumnCreatedAt    = "c.created_at"
	ColumnNextAccessAt = "s.next_access_at"
)

// TypePredicate keeps cards of one type.
type TypePredicate struct {
	Type domain.CardType
}

func (p *TypePredicate) Valid() bool { return p.Type.Valid() }
func (p *TypePredicate) SQL() string { return "c.type = ?" }
func (p *TypePredicate) Args() []any { return []any{string(p.Type)} }

// PausedPredicate keeps cards whose paused flag equals Paused.
type PausedPredicate struct {
	Paused bool
}

func (p *PausedPredicate) Valid() bool { return true }
func (p *PausedPredicate) SQL() string { return "c.paused = ?" }
func (p *PausedPredicate) Args() []any { return []any{p.Paused} }

// ContainsPredicate matches a case-insensitive substring of a content column.
type ContainsPredicate struct {
	Column string
	Text   string
}

func (p *ContainsPredicate) Valid() bool {
	return validTextColumn(p.Column) && p.Text != ""
}

func (p *ContainsPredicate) SQL() string {
	return fmt.Sprintf("instr(%s(%s), ?) > 0", storage.FoldFunc, p.Column)
}

func (p *ContainsPredicate) Args() []any { return []any{storage.Fold(p.Text)} }

// LengthPredicate bounds the character length of a content column.
// Either bound may be nil.
type LengthPredicate struct {
	Column string
	Min    *int
	Max    *int
}

func (p *LengthPredicate) Valid() bool {
	if !validTextColumn(p.Column) || (p.Min == nil && p.Max == nil) {
		return false
	}
	return p.Min == nil || p.Max == nil || *p.Min <= *p.Max
}

func (p *LengthPredicate) SQL() string {
	var parts []string
	if p.Min != nil {
		parts = append(parts, fmt.Sprintf("length(%s) >= ?", p.Column))
	}
	if p.Max != nil {
		parts = append(parts, fmt.Sprintf("length(%s) <= ?", p.Column))
	}
	return strings.Join(parts, " AND ")
}

func (p *LengthPredicate) Args() []any {
	var args []any
	if p.Min != nil {
		args = append(args, *p.Min)
	}
	if p.Max != nil {
		args = append(args, *p.Max)
	}
	return args
}

// RangePredicate bounds a millisecond timestamp column, both ends inclusive.
type RangePredicate struct {
	Column string
	From   *int64
	Till   *int64
}

func (p *RangePredicate) Valid() bool {
	if p.Column != ColumnCreatedAt && p.Column != ColumnNextAccessAt {
		return false
	}
	if p.From == nil && p.Till == nil {
		return false
	}
	return p.From == nil || p.Till == nil || *p.From <= *p.Till
}

func (p *RangePredicate) SQL() string {
	var parts []string
	if p.From != nil {
		parts = append(parts, p.Column+" >= ?")
	}
	if p.Till != nil {
		parts = append(parts, p.Column+" <= ?")
	}
	return strings.Join(parts, " AND ")
}

func (p *RangePredicate) Args() []any {
	var args []any
	if p.From != nil {
		args = append(args, *p.From)
	}
	if p.Till != nil {
		args = append(args, *p.Till)
	}
	return args
}

// OverduePredicate keeps cards whose overdue ratio at Now is at least Min.
type OverduePredicate struct {
	Now int64
	Min float64
}

func (p *OverduePredicate) Valid() bool { return true }
func (p *OverduePredicate) SQL() string { return overdueExpr + " >= ?" }
func (p *OverduePredicate) Args() []any { return []any{p.Now, p.Min} }

// overdueExpr computes (now - next_access_at) / next_access_in_millis,
// dividing by 1 when the interval is zero. It takes now as its only argument.
const overdueExpr = "((CAST(? AS REAL) - s.next_access_at) / " +
	"(CASE WHEN s.next_access_in_millis = 0 THEN 1 ELSE s.next_access_in_millis END))"

func validTextColumn(col string) bool {
	switch col {
	case ColumnTextToTranslate, ColumnTranslation, ColumnNoteText:
		return true
	}
	return false
}
