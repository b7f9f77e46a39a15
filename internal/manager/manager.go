// Package manager is the public face of the card engine. Every operation is
// serialized behind one mutex and every mutation runs in one transaction.
package manager

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/conorfennell/knolcards/internal/apperr"
	"github.com/conorfennell/knolcards/internal/delay"
	"github.com/conorfennell/knolcards/internal/domain"
	"github.com/conorfennell/knolcards/internal/scheduler"
	"github.com/conorfennell/knolcards/internal/selector"
	"github.com/conorfennell/knolcards/internal/storage"
)

// Manager owns the database and scheduler. It is safe for concurrent use.
type Manager struct {
	mu       sync.Mutex
	db       *storage.DB
	sched    *scheduler.Scheduler
	sel      *selector.Selector
	now      func() time.Time
	validate *validator.Validate
	log      *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithLogger sets the logger; the default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// New creates a Manager over an open database.
func New(db *storage.DB, sched *scheduler.Scheduler, opts ...Option) *Manager {
	m := &Manager{
		db:       db,
		sched:    sched,
		sel:      selector.New(db),
		now:      time.Now,
		validate: domain.NewValidator(),
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// run serializes op, tags its log lines with an op id, recovers panics and
// converts every failure to an *apperr.Error.
func (m *Manager) run(op string, fn func(log *slog.Logger) error) (err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	log := m.log.With("op", op, "op_id", uuid.NewString())
	defer func() {
		if r := recover(); r != nil {
			err = apperr.Wrap(apperr.Unexpected, op+" failed", fmt.Errorf("panic: %v", r))
		}
		if err == nil {
			return
		}
		ae := translate(err)
		if ae.Code == apperr.Unexpected {
			log.Error("operation failed", "error", ae)
		} else {
			log.Debug("operation rejected", "code", ae.Code, "error", ae.Message)
		}
		err = ae
	}()

	return fn(log)
}

func translate(err error) *apperr.Error {
	var ae *apperr.Error
	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &ae):
		return ae
	case errors.As(err, &verrs):
		return apperr.Wrap(apperr.Validation, describe(verrs), err)
	case errors.Is(err, storage.ErrUniqueViolation):
		return apperr.Wrap(apperr.Constraint, "value already exists", err)
	case errors.Is(err, storage.ErrForeignKeyViolation):
		return apperr.Wrap(apperr.Constraint, "referenced row is missing or still in use", err)
	case errors.Is(err, storage.ErrNotFound):
		return apperr.Wrap(apperr.NotFound, "not found", err)
	case errors.Is(err, delay.ErrInvalidDelayFormat), errors.Is(err, scheduler.ErrEmptyDelay):
		return apperr.Wrap(apperr.Validation, "invalid delay", err)
	}
	return apperr.Wrap(apperr.Unexpected, "unexpected error", err)
}

func describe(verrs validator.ValidationErrors) string {
	if len(verrs) == 0 {
		return "invalid request"
	}
	fe := verrs[0]
	return fmt.Sprintf("%s failed on %q", fe.Namespace(), fe.Tag())
}

func (m *Manager) tx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return m.db.InTx(ctx, fn)
}

// Exclusive runs fn in a transaction inside the manager's critical section,
// for writes to tables the manager does not own. Errors are translated like
// those of any other operation.
func (m *Manager) Exclusive(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	return m.run(op, func(log *slog.Logger) error {
		return m.tx(ctx, fn)
	})
}

func (m *Manager) loadCard(ctx context.Context, q storage.Querier, id int64) (*domain.Card, error) {
	card, err := storage.Cards.Get(ctx, q, id)
	if err != nil {
		return nil, err
	}
	if card == nil {
		return nil, apperr.New(apperr.NotFound, "card %d not found", id)
	}
	return card, nil
}

// view builds the read model of one card as of now.
func (m *Manager) view(ctx context.Context, q storage.Querier, id int64, now time.Time) (domain.CardView, error) {
	card, err := m.loadCard(ctx, q, id)
	if err != nil {
		return domain.CardView{}, err
	}
	sch, err := storage.Schedules.Get(ctx, q, id)
	if err != nil {
		return domain.CardView{}, err
	}
	if sch == nil {
		return domain.CardView{}, fmt.Errorf("schedule of card %d is missing", id)
	}
	content, err := storage.GetContent(ctx, q, id, card.Type)
	if err != nil {
		return domain.CardView{}, err
	}
	tagIDs, err := storage.CardTagIDs(ctx, q, id)
	if err != nil {
		return domain.CardView{}, err
	}

	v := domain.CardView{
		ID:        card.ID,
		Type:      card.Type,
		CreatedAt: card.CreatedAt,
		Paused:    card.Paused,
		TagIDs:    tagIDs,
		Schedule:  *sch,
		Overdue:   domain.Overdue(*sch, now),
		Content:   content,
	}
	if card.LastCheckedAt != nil {
		v.TimeSinceLastCheck = delay.FormatMillis(now.Sub(*card.LastCheckedAt).Milliseconds())
	}
	if sch.NextAccessAt.After(now) {
		v.ActivatesIn = delay.FormatMillis(sch.NextAccessAt.Sub(now).Milliseconds())
	}
	return v, nil
}

func (m *Manager) views(ctx context.Context, q storage.Querier, ids []int64, now time.Time) ([]domain.CardView, error) {
	out := make([]domain.CardView, 0, len(ids))
	for _, id := range ids {
		v, err := m.view(ctx, q, id, now)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
