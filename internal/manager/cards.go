package manager

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"

	"github.com/conorfennell/knolcards/internal/apperr"
	"github.com/conorfennell/knolcards/internal/domain"
	"github.com/conorfennell/knolcards/internal/history"
	"github.com/conorfennell/knolcards/internal/scheduler"
	"github.com/conorfennell/knolcards/internal/selector"
	"github.com/conorfennell/knolcards/internal/storage"
)

// CreateCardRequest describes a new card. Content must match Type.
type CreateCardRequest struct {
	Type    domain.CardType `json:"type" validate:"required,oneof=TRANSLATION NOTE"`
	Content domain.Content  `json:"content" validate:"-"`
	TagIDs  []int64         `json:"tagIds"`
	Paused  bool            `json:"paused"`
}

// UpdateCardRequest changes an existing card. Nil fields are left as they
// are; a non-nil empty TagIDs clears every tag.
type UpdateCardRequest struct {
	ID               int64          `json:"id" validate:"gt=0"`
	Content          domain.Content `json:"content" validate:"-"`
	TagIDs           []int64        `json:"tagIds"`
	Paused           *bool          `json:"paused"`
	Delay            *string        `json:"delay" validate:"omitnil,delay"`
	RecalculateDelay bool           `json:"recalculateDelay"`
}

// checkContent trims c and verifies it belongs to a card of type t.
func (m *Manager) checkContent(t domain.CardType, c domain.Content) (domain.Content, error) {
	if c == nil {
		return nil, apperr.New(apperr.Validation, "content is required")
	}
	if c.CardType() != t {
		return nil, apperr.New(apperr.Validation, "%s content does not fit a %s card", c.CardType(), t)
	}
	trimmed := c.Trimmed()
	if err := m.validate.Struct(trimmed); err != nil {
		return nil, err
	}
	return trimmed, nil
}

// TxHook runs inside the transaction of a card mutation, after the card's
// own rows are written. An error rolls the whole mutation back.
type TxHook func(ctx context.Context, tx *sql.Tx, cardID int64) error

// CreateCard stores a card with its initial schedule, content and tags.
func (m *Manager) CreateCard(ctx context.Context, req CreateCardRequest) (int64, error) {
	return m.CreateCardWith(ctx, req, nil)
}

// CreateCardWith is CreateCard with hook run in the same transaction.
func (m *Manager) CreateCardWith(ctx context.Context, req CreateCardRequest, hook TxHook) (int64, error) {
	var id int64
	err := m.run("create_card", func(log *slog.Logger) error {
		if err := m.validate.Struct(req); err != nil {
			return err
		}
		content, err := m.checkContent(req.Type, req.Content)
		if err != nil {
			return err
		}

		now := m.now()
		err = m.tx(ctx, func(tx *sql.Tx) error {
			id, err = storage.Cards.Insert(ctx, tx, domain.Card{Type: req.Type, CreatedAt: now, Paused: req.Paused})
			if err != nil {
				return err
			}
			if _, err := storage.Schedules.Insert(ctx, tx, scheduler.Initial(id, now)); err != nil {
				return err
			}
			if err := storage.InsertContent(ctx, tx, id, content); err != nil {
				return err
			}
			if len(req.TagIDs) > 0 {
				if err := m.db.ReplaceCardTags(ctx, tx, id, req.TagIDs); err != nil {
					return err
				}
			}
			if hook != nil {
				return hook(ctx, tx, id)
			}
			return nil
		})
		if err != nil {
			return err
		}
		log.Debug("card created", "card_id", id, "type", req.Type, "tags", len(req.TagIDs))
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// ReadCardByID returns the current view of a card.
func (m *Manager) ReadCardByID(ctx context.Context, id int64) (domain.CardView, error) {
	var v domain.CardView
	err := m.run("read_card", func(log *slog.Logger) error {
		var err error
		v, err = m.view(ctx, m.db.Reader(), id, m.now())
		return err
	})
	return v, err
}

// UpdateCard applies the supplied changes. The schedule is recomputed only
// when RecalculateDelay is set or the requested delay differs from the
// persisted one.
func (m *Manager) UpdateCard(ctx context.Context, req UpdateCardRequest) error {
	return m.run("update_card", func(log *slog.Logger) error {
		if err := m.validate.Struct(req); err != nil {
			return err
		}
		now := m.now()
		return m.tx(ctx, func(tx *sql.Tx) error {
			card, err := m.loadCard(ctx, tx, req.ID)
			if err != nil {
				return err
			}

			if req.Content != nil {
				content, err := m.checkContent(card.Type, req.Content)
				if err != nil {
					return err
				}
				changed, err := storage.WriteContent(ctx, tx, card.ID, content, now)
				if err != nil {
					return err
				}
				if changed {
					log.Debug("content changed", "card_id", card.ID)
				}
			}

			if req.Paused != nil && *req.Paused != card.Paused {
				card.Paused = *req.Paused
				if _, err := storage.Cards.Write(ctx, tx, *card, now); err != nil {
					return err
				}
			}

			if req.TagIDs != nil {
				if err := m.db.ReplaceCardTags(ctx, tx, card.ID, req.TagIDs); err != nil {
					return err
				}
			}

			cur, err := storage.Schedules.Get(ctx, tx, card.ID)
			if err != nil {
				return err
			}
			if cur == nil {
				return apperr.New(apperr.Unexpected, "schedule of card %d is missing", card.ID)
			}
			next, changed, err := m.sched.Next(*cur, req.Delay, req.RecalculateDelay, now)
			if err != nil {
				return err
			}
			if changed {
				if _, err := storage.Schedules.Write(ctx, tx, next, now); err != nil {
					return err
				}
				log.Debug("schedule changed", "card_id", card.ID, "delay", next.Delay, "next_access_at", next.NextAccessAt)
			}
			return nil
		})
	})
}

// DeleteCard removes a card. Tag links go first, then the schedule, the
// content and the card itself; every tracked row leaves a final version.
func (m *Manager) DeleteCard(ctx context.Context, id int64) error {
	return m.DeleteCardWith(ctx, id, nil)
}

// DeleteCardWith is DeleteCard with hook run in the same transaction.
func (m *Manager) DeleteCardWith(ctx context.Context, id int64, hook TxHook) error {
	return m.run("delete_card", func(log *slog.Logger) error {
		now := m.now()
		err := m.tx(ctx, func(tx *sql.Tx) error {
			card, err := m.loadCard(ctx, tx, id)
			if err != nil {
				return err
			}
			if err := m.db.DeleteCardTags(ctx, tx, id); err != nil {
				return err
			}
			if err := storage.Schedules.Delete(ctx, tx, id, now); err != nil {
				return err
			}
			if err := storage.DeleteContent(ctx, tx, id, card.Type, now); err != nil {
				return err
			}
			if err := storage.Cards.Delete(ctx, tx, id, now); err != nil {
				return err
			}
			if hook != nil {
				return hook(ctx, tx, id)
			}
			return nil
		})
		if err != nil {
			return err
		}
		log.Debug("card deleted", "card_id", id)
		return nil
	})
}

// ValidateAnswer checks provided against a translation card's answer. The
// comparison ignores surrounding whitespace and case. Every attempt is logged
// and stamps the card's last check time.
func (m *Manager) ValidateAnswer(ctx context.Context, id int64, provided string) (domain.ValidationResult, error) {
	var res domain.ValidationResult
	err := m.run("validate_answer", func(log *slog.Logger) error {
		now := m.now()
		return m.tx(ctx, func(tx *sql.Tx) error {
			card, err := m.loadCard(ctx, tx, id)
			if err != nil {
				return err
			}
			if card.Type != domain.Translation {
				return apperr.New(apperr.Validation, "card %d is a %s card and has no answer", id, card.Type)
			}
			content, err := storage.GetContent(ctx, tx, id, card.Type)
			if err != nil {
				return err
			}
			tc, ok := content.(domain.TranslationContent)
			if !ok {
				return apperr.New(apperr.Unexpected, "translation content of card %d is missing", id)
			}

			provided = strings.TrimSpace(provided)
			res = domain.ValidationResult{
				IsCorrect:      strings.EqualFold(provided, strings.TrimSpace(tc.Translation)),
				ExpectedAnswer: tc.Translation,
			}
			if _, err := storage.AppendValidation(ctx, tx, domain.ValidationLogEntry{
				CardID:              id,
				Timestamp:           now,
				ProvidedTranslation: provided,
				Matched:             res.IsCorrect,
			}); err != nil {
				return err
			}
			card.LastCheckedAt = &now
			if _, err := storage.Cards.Write(ctx, tx, *card, now); err != nil {
				return err
			}
			log.Debug("answer checked", "card_id", id, "matched", res.IsCorrect)
			return nil
		})
	})
	return res, err
}

// SelectTopOverdue returns up to limit due cards matching f, most overdue
// first. When none are due, NextCardIn tells how long until one is.
func (m *Manager) SelectTopOverdue(ctx context.Context, f selector.Filter, limit int) (domain.TopOverdue, error) {
	var out domain.TopOverdue
	err := m.run("select_top_overdue", func(log *slog.Logger) error {
		if limit <= 0 {
			return apperr.New(apperr.Validation, "limit must be positive, got %d", limit)
		}
		now := m.now()
		q := m.db.Reader()
		ids, wait, err := m.sel.TopOverdue(ctx, q, f, limit, now)
		if err != nil {
			return err
		}
		cards, err := m.views(ctx, q, ids, now)
		if err != nil {
			return err
		}
		out = domain.TopOverdue{Cards: cards, NextCardIn: wait}
		return nil
	})
	return out, err
}

// SearchByFilter returns every card matching f in f's order.
func (m *Manager) SearchByFilter(ctx context.Context, f selector.Filter) ([]domain.CardView, error) {
	var out []domain.CardView
	err := m.run("search", func(log *slog.Logger) error {
		now := m.now()
		q := m.db.Reader()
		ids, err := m.sel.Search(ctx, q, f, now)
		if err != nil {
			return err
		}
		out, err = m.views(ctx, q, ids, now)
		return err
	})
	return out, err
}

// ReadHistory returns a card's content epochs with the answers given during
// each, newest first.
func (m *Manager) ReadHistory(ctx context.Context, id int64) (domain.History, error) {
	var h domain.History
	err := m.run("read_history", func(log *slog.Logger) error {
		q := m.db.Reader()
		card, err := m.loadCard(ctx, q, id)
		if err != nil {
			return err
		}
		current, err := storage.GetContent(ctx, q, id, card.Type)
		if err != nil {
			return err
		}
		versions, err := storage.ContentVersions(ctx, q, id, card.Type)
		if err != nil {
			return err
		}
		validations, err := storage.Validations(ctx, q, id)
		if err != nil {
			return err
		}
		h = history.Build(card.CreatedAt, current, versions, validations)
		return nil
	})
	return h, err
}

// ReadScheduleHistory lists the superseded schedules of a card, newest
// first. It keeps working after the card is deleted.
func (m *Manager) ReadScheduleHistory(ctx context.Context, id int64) ([]domain.ScheduleVersion, error) {
	var out []domain.ScheduleVersion
	err := m.run("read_schedule_history", func(log *slog.Logger) error {
		q := m.db.Reader()
		versions, err := storage.Schedules.Versions(ctx, q, id)
		if err != nil {
			return err
		}
		if len(versions) == 0 {
			if _, err := m.loadCard(ctx, q, id); err != nil {
				return err
			}
		}
		out = make([]domain.ScheduleVersion, len(versions))
		for i, v := range versions {
			out[i] = domain.ScheduleVersion{VerID: v.VerID, VerTime: v.VerTime, Schedule: v.Row}
		}
		return nil
	})
	return out, err
}
