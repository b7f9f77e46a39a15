package manager

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"

	"github.com/conorfennell/knolcards/internal/apperr"
	"github.com/conorfennell/knolcards/internal/domain"
	"github.com/conorfennell/knolcards/internal/storage"
)

func (m *Manager) tagName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if err := m.validate.Var(name, "notblank"); err != nil {
		return "", apperr.New(apperr.Validation, "tag name must not be blank")
	}
	return name, nil
}

// CreateTag adds a tag. Names are unique after trimming.
func (m *Manager) CreateTag(ctx context.Context, name string) (int64, error) {
	var id int64
	err := m.run("create_tag", func(log *slog.Logger) error {
		name, err := m.tagName(name)
		if err != nil {
			return err
		}
		id, err = storage.InsertTag(ctx, m.db.Reader(), name, m.now())
		if err != nil {
			return err
		}
		log.Debug("tag created", "tag_id", id, "name", name)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// RenameTag changes the name of a tag.
func (m *Manager) RenameTag(ctx context.Context, id int64, name string) error {
	return m.run("rename_tag", func(log *slog.Logger) error {
		name, err := m.tagName(name)
		if err != nil {
			return err
		}
		if err := storage.RenameTag(ctx, m.db.Reader(), id, name); err != nil {
			return err
		}
		log.Debug("tag renamed", "tag_id", id, "name", name)
		return nil
	})
}

// DeleteTag removes a tag that no card references.
func (m *Manager) DeleteTag(ctx context.Context, id int64) error {
	return m.run("delete_tag", func(log *slog.Logger) error {
		err := m.tx(ctx, func(tx *sql.Tx) error {
			return storage.DeleteTag(ctx, tx, id)
		})
		if err != nil {
			return err
		}
		log.Debug("tag deleted", "tag_id", id)
		return nil
	})
}

// ListTags returns every tag ordered by name.
func (m *Manager) ListTags(ctx context.Context) ([]domain.Tag, error) {
	var tags []domain.Tag
	err := m.run("list_tags", func(log *slog.Logger) error {
		var err error
		tags, err = storage.AllTags(ctx, m.db.Reader())
		if tags == nil {
			tags = []domain.Tag{}
		}
		return err
	})
	return tags, err
}
