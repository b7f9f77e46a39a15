package selector

import (
	"fmt"
	"strings"
)

// SortField selects the ordering column.
type SortField int

const (
	SortByCreatedAt SortField = iota
	SortByNextAccessAt
	SortByOverdue
)

// SortDir is the ordering direction.
type SortDir int

const (
	Asc SortDir = iota
	Desc
)

// Plan carries planner hints computed outside the builder.
type Plan struct {
	// PivotTag is the include tag joined physically; 0 means none.
	PivotTag int64
}

// Builder assembles a card query from predicates, tag sets, a sort and a limit.
type Builder struct {
	now        int64
	predicates []Predicate
	include    []int64
	exclude    []int64
	sortField  SortField
	sortDir    SortDir
	limit      int
}

// NewBuilder creates a Builder evaluating overdue at now (Unix millis).
func NewBuilder(now int64) *Builder {
	return &Builder{now: now}
}

// Where adds a predicate. Invalid predicates are ignored.
func (b *Builder) Where(p Predicate) *Builder {
	if p.Valid() {
		b.predicates = append(b.predicates, p)
	}
	return b
}

// IncludeTags requires every given tag to be linked.
func (b *Builder) IncludeTags(ids ...int64) *Builder {
	b.include = appendUnique(b.include, ids)
	return b
}

// ExcludeTags requires none of the given tags to be linked.
func (b *Builder) ExcludeTags(ids ...int64) *Builder {
	b.exclude = appendUnique(b.exclude, ids)
	return b
}

// OrderBy sets the ordering. Ties are broken by card id in the same direction.
func (b *Builder) OrderBy(field SortField, dir SortDir) *Builder {
	b.sortField, b.sortDir = field, dir
	return b
}

// Limit caps the number of rows; n <= 0 means no limit.
func (b *Builder) Limit(n int) *Builder {
	b.limit = n
	return b
}

// Included returns the tags that must be present.
func (b *Builder) Included() []int64 {
	return b.include
}

// Build returns a parameterized query selecting matching card ids.
func (b *Builder) Build(plan Plan) (string, []any) {
	var sb strings.Builder
	var args []any

	sb.WriteString(`SELECT c.id
FROM card c
JOIN schedule s ON s.card_id = c.id
LEFT JOIN translation_content tc ON tc.card_id = c.id
LEFT JOIN note_content nc ON nc.card_id = c.id`)

	remaining := b.include
	if plan.PivotTag != 0 && contains(b.include, plan.PivotTag) {
		sb.WriteString("\nJOIN card_tag pivot ON pivot.card_id = c.id AND pivot.tag_id = ?")
		args = append(args, plan.PivotTag)
		remaining = without(b.include, plan.PivotTag)
	}

	grouped := len(remaining) > 0 || len(b.exclude) > 0
	if grouped {
		sb.WriteString("\nLEFT JOIN card_tag ct ON ct.card_id = c.id")
	}

	if len(b.predicates) > 0 {
		parts := make([]string, len(b.predicates))
		for i, p := range b.predicates {
			parts[i] = "(" + p.SQL() + ")"
			args = append(args, p.Args()...)
		}
		sb.WriteString("\nWHERE ")
		sb.WriteString(strings.Join(parts, " AND "))
	}

	if grouped {
		sb.WriteString("\nGROUP BY c.id")
		var having []string
		if len(remaining) > 0 {
			having = append(having, fmt.Sprintf(
				"COUNT(DISTINCT CASE WHEN ct.tag_id IN (%s) THEN ct.tag_id END) = ?", placeholders(len(remaining))))
			args = append(args, int64sToArgs(remaining)...)
			args = append(args, len(remaining))
		}
		if len(b.exclude) > 0 {
			having = append(having, fmt.Sprintf(
				"COUNT(CASE WHEN ct.tag_id IN (%s) THEN 1 END) = 0", placeholders(len(b.exclude))))
			args = append(args, int64sToArgs(b.exclude)...)
		}
		sb.WriteString("\nHAVING ")
		sb.WriteString(strings.Join(having, " AND "))
	}

	dir := "ASC"
	if b.sortDir == Desc {
		dir = "DESC"
	}
	sb.WriteString("\nORDER BY ")
	switch b.sortField {
	case SortByNextAccessAt:
		sb.WriteString("s.next_access_at " + dir)
	case SortByOverdue:
		sb.WriteString(overdueExpr + " " + dir)
		args = append(args, b.now)
	default:
		sb.WriteString("c.created_at " + dir)
	}
	sb.WriteString(", c.id " + dir)

	if b.limit > 0 {
		sb.WriteString("\nLIMIT ?")
		args = append(args, b.limit)
	}
	return sb.String(), args
}

// String describes the builder for logging.
func (b *Builder) String() string {
	parts := make([]string, 0, len(b.predicates)+2)
	for _, p := range b.predicates {
		parts = append(parts, fmt.Sprintf("%T", p))
	}
	if len(b.include) > 0 {
		parts = append(parts, fmt.Sprintf("include%v", b.include))
	}
	if len(b.exclude) > 0 {
		parts = append(parts, fmt.Sprintf("exclude%v", b.exclude))
	}
	if len(parts) == 0 {
		return "(no filters)"
	}
	return strings.Join(parts, ", ")
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func int64sToArgs(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

func appendUnique(dst, ids []int64) []int64 {
	for _, id := range ids {
		if !contains(dst, id) {
			dst = append(dst, id)
		}
	}
	return dst
}

func contains(ids []int64, id int64) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

func without(ids []int64, id int64) []int64 {
	out := make([]int64, 0, len(ids))
	for _, x := range ids {
		if x != id {
			out = append(out, x)
		}
	}
	return out
}
