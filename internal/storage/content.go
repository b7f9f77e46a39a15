package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/conorfennell/knolcards/internal/domain"
)

// InsertContent stores the type-specific content row for a new card.
func InsertContent(ctx context.Context, q Querier, cardID int64, content domain.Content) error {
	var err error
	switch c := content.(type) {
	case domain.TranslationContent:
		_, err = Translations.Insert(ctx, q, TranslationRow{CardID: cardID, TranslationContent: c})
	case domain.NoteContent:
		_, err = Notes.Insert(ctx, q, NoteRow{CardID: cardID, NoteContent: c})
	default:
		err = fmt.Errorf("unsupported content type %T", content)
	}
	return err
}

// GetContent returns the current content of a card of the given type,
// or nil if the card has none.
func GetContent(ctx context.Context, q Querier, cardID int64, cardType domain.CardType) (domain.Content, error) {
	switch cardType {
	case domain.Translation:
		r, err := Translations.Get(ctx, q, cardID)
		if err != nil || r == nil {
			return nil, err
		}
		return r.TranslationContent, nil
	case domain.Note:
		r, err := Notes.Get(ctx, q, cardID)
		if err != nil || r == nil {
			return nil, err
		}
		return r.NoteContent, nil
	}
	return nil, fmt.Errorf("unsupported card type %q", cardType)
}

// WriteContent replaces a card's content, versioning the old value if it changed.
func WriteContent(ctx context.Context, q Querier, cardID int64, content domain.Content, at time.Time) (bool, error) {
	switch c := content.(type) {
	case domain.TranslationContent:
		return Translations.Write(ctx, q, TranslationRow{CardID: cardID, TranslationContent: c}, at)
	case domain.NoteContent:
		return Notes.Write(ctx, q, NoteRow{CardID: cardID, NoteContent: c}, at)
	}
	return false, fmt.Errorf("unsupported content type %T", content)
}

// DeleteContent versions and removes a card's content.
func DeleteContent(ctx context.Context, q Querier, cardID int64, cardType domain.CardType, at time.Time) error {
	switch cardType {
	case domain.Translation:
		return Translations.Delete(ctx, q, cardID, at)
	case domain.Note:
		return Notes.Delete(ctx, q, cardID, at)
	}
	return fmt.Errorf("unsupported card type %q", cardType)
}

// ContentVersions returns a card's superseded content, newest first.
func ContentVersions(ctx context.Context, q Querier, cardID int64, cardType domain.CardType) ([]ContentVersion, error) {
	var out []ContentVersion
	switch cardType {
	case domain.Translation:
		versions, err := Translations.Versions(ctx, q, cardID)
		if err != nil {
			return nil, err
		}
		for _, v := range versions {
			out = append(out, ContentVersion{VerTime: v.VerTime, Content: v.Row.TranslationContent})
		}
	case domain.Note:
		versions, err := Notes.Versions(ctx, q, cardID)
		if err != nil {
			return nil, err
		}
		for _, v := range versions {
			out = append(out, ContentVersion{VerTime: v.VerTime, Content: v.Row.NoteContent})
		}
	default:
		return nil, fmt.Errorf("unsupported card type %q", cardType)
	}
	return out, nil
}
