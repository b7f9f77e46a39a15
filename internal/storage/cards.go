package storage

import (
	"database/sql"
	"time"

	"github.com/conorfennell/knolcards/internal/domain"
)

// Cards is the versioned card table. Stamping last_checked_at does not
// create a version row.
var Cards = &Table[domain.Card]{
	Name:    "card",
	AutoKey: true,
	Columns: []Column[domain.Card]{
		{Name: "id", Value: func(c domain.Card) any { return c.ID }},
		{Name: "type", Value: func(c domain.Card) any { return string(c.Type) }},
		{Name: "created_at", Value: func(c domain.Card) any { return millis(c.CreatedAt) }},
		{Name: "paused", Value: func(c domain.Card) any { return c.Paused }},
		{Name: "last_checked_at", Untracked: true, Value: func(c domain.Card) any {
			if c.LastCheckedAt == nil {
				return nil
			}
			return millis(*c.LastCheckedAt)
		}},
	},
	Scan: func(s scanner) (domain.Card, error) {
		var c domain.Card
		var cardType string
		var createdAt int64
		var lastChecked sql.NullInt64
		if err := s.Scan(&c.ID, &cardType, &createdAt, &c.Paused, &lastChecked); err != nil {
			return c, err
		}
		c.Type = domain.CardType(cardType)
		c.CreatedAt = fromMillis(createdAt)
		if lastChecked.Valid {
			t := fromMillis(lastChecked.Int64)
			c.LastCheckedAt = &t
		}
		return c, nil
	},
}

// Schedules is the versioned schedule table, one row per card.
var Schedules = &Table[domain.Schedule]{
	Name: "schedule",
	Columns: []Column[domain.Schedule]{
		{Name: "card_id", Value: func(s domain.Schedule) any { return s.CardID }},
		{Name: "updated_at", Value: func(s domain.Schedule) any { return millis(s.UpdatedAt) }},
		{Name: "orig_delay", Value: func(s domain.Schedule) any { return s.OrigDelay }},
		{Name: "delay", Value: func(s domain.Schedule) any { return s.Delay }},
		{Name: "random_factor", Value: func(s domain.Schedule) any { return s.RandomFactor }},
		{Name: "next_access_in_millis", Value: func(s domain.Schedule) any { return s.NextAccessInMillis }},
		{Name: "next_access_at", Value: func(s domain.Schedule) any { return millis(s.NextAccessAt) }},
	},
	Scan: func(s scanner) (domain.Schedule, error) {
		var sch domain.Schedule
		var updatedAt, nextAccessAt int64
		err := s.Scan(&sch.CardID, &updatedAt, &sch.OrigDelay, &sch.Delay,
			&sch.RandomFactor, &sch.NextAccessInMillis, &nextAccessAt)
		if err != nil {
			return sch, err
		}
		sch.UpdatedAt = fromMillis(updatedAt)
		sch.NextAccessAt = fromMillis(nextAccessAt)
		return sch, nil
	},
}

// TranslationRow is a translation_content row.
type TranslationRow struct {
	CardID int64
	domain.TranslationContent
}

// Translations is the versioned translation content table.
var Translations = &Table[TranslationRow]{
	Name: "translation_content",
	Columns: []Column[TranslationRow]{
		{Name: "card_id", Value: func(r TranslationRow) any { return r.CardID }},
		{Name: "text_to_translate", Value: func(r TranslationRow) any { return r.TextToTranslate }},
		{Name: "translation", Value: func(r TranslationRow) any { return r.Translation }},
	},
	Scan: func(s scanner) (TranslationRow, error) {
		var r TranslationRow
		err := s.Scan(&r.CardID, &r.TextToTranslate, &r.Translation)
		return r, err
	},
}

// NoteRow is a note_content row.
type NoteRow struct {
	CardID int64
	domain.NoteContent
}

// Notes is the versioned note content table.
var Notes = &Table[NoteRow]{
	Name: "note_content",
	Columns: []Column[NoteRow]{
		{Name: "card_id", Value: func(r NoteRow) any { return r.CardID }},
		{Name: "text", Value: func(r NoteRow) any { return r.Text }},
	},
	Scan: func(s scanner) (NoteRow, error) {
		var r NoteRow
		err := s.Scan(&r.CardID, &r.Text)
		return r, err
	},
}

// ContentVersion is a superseded content value.
type ContentVersion struct {
	VerTime time.Time
	Content domain.Content
}
