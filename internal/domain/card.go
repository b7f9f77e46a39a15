package domain

import "time"

// CardType identifies the kind of content a card owns.
type CardType string

const (
	Translation CardType = "TRANSLATION"
	Note        CardType = "NOTE"
)

// Valid reports whether t is a known card type.
func (t CardType) Valid() bool {
	return t == Translation || t == Note
}

// Card is the identity row shared by all card types.
type Card struct {
	ID            int64
	Type          CardType
	CreatedAt     time.Time
	Paused        bool
	LastCheckedAt *time.Time // nil until the first answer
}

// Schedule holds when a card is next due.
// NextAccessAt is always UpdatedAt plus NextAccessInMillis.
type Schedule struct {
	CardID             int64     `json:"cardId"`
	UpdatedAt          time.Time `json:"updatedAt"`
	OrigDelay          string    `json:"origDelay"` // as requested, may be a coefficient
	Delay              string    `json:"delay"`     // resolved absolute delay
	RandomFactor       float64   `json:"randomFactor"`
	NextAccessInMillis int64     `json:"nextAccessInMillis"`
	NextAccessAt       time.Time `json:"nextAccessAt"`
}

// Content is implemented by TranslationContent and NoteContent.
type Content interface {
	CardType() CardType
	// Trimmed returns a copy with surrounding whitespace removed from every field.
	Trimmed() Content
}

// TranslationContent is a prompt and its expected answer.
type TranslationContent struct {
	TextToTranslate string `json:"textToTranslate" validate:"notblank"`
	Translation     string `json:"translation" validate:"notblank"`
}

func (TranslationContent) CardType() CardType { return Translation }

func (c TranslationContent) Trimmed() Content {
	return TranslationContent{
		TextToTranslate: trim(c.TextToTranslate),
		Translation:     trim(c.Translation),
	}
}

// NoteContent is free text without an answer.
type NoteContent struct {
	Text string `json:"text" validate:"notblank"`
}

func (NoteContent) CardType() CardType { return Note }

func (c NoteContent) Trimmed() Content {
	return NoteContent{Text: trim(c.Text)}
}

// Tag labels cards. Names are unique after trimming.
type Tag struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// ValidationLogEntry records one answer given for a translation card.
type ValidationLogEntry struct {
	RecID               int64
	CardID              int64
	Timestamp           time.Time
	ProvidedTranslation string
	Matched             bool
}
