package domain

import (
	"strings"
	"time"
)

func trim(s string) string { return strings.TrimSpace(s) }

// CardView is a card as returned to callers, with derived timing fields.
type CardView struct {
	ID                 int64     `json:"id"`
	Type               CardType  `json:"type"`
	CreatedAt          time.Time `json:"createdAt"`
	Paused             bool      `json:"paused"`
	TagIDs             []int64   `json:"tagIds"`
	Schedule           Schedule  `json:"schedule"`
	TimeSinceLastCheck string    `json:"timeSinceLastCheck"`
	Overdue            float64   `json:"overdue"`
	ActivatesIn        string    `json:"activatesIn"`
	Content            Content   `json:"content"`
}

// Overdue returns (now - nextAccessAt) / nextAccessInMillis. Values >= 0 mean
// the card is due.
func Overdue(s Schedule, now time.Time) float64 {
	denom := s.NextAccessInMillis
	if denom == 0 {
		denom = 1
	}
	return float64(now.UnixMilli()-s.NextAccessAt.UnixMilli()) / float64(denom)
}

// ValidationResult is the outcome of answering a translation card.
type ValidationResult struct {
	IsCorrect      bool   `json:"isCorrect"`
	ExpectedAnswer string `json:"expectedAnswer"`
}

// TopOverdue lists the most overdue cards. When none are due, NextCardIn
// tells how long until the earliest one is; it is empty when nothing matched.
type TopOverdue struct {
	Cards      []CardView `json:"cards"`
	NextCardIn string     `json:"nextCardIn"`
}

// ValidationRecord is a log entry as shown in history.
type ValidationRecord struct {
	RecID               int64     `json:"recId"`
	Timestamp           time.Time `json:"timestamp"`
	ProvidedTranslation string    `json:"providedTranslation"`
	Matched             bool      `json:"matched"`
	ActualDelay         string    `json:"actualDelay,omitempty"`
}

// Epoch is one content version together with the answers given while it was current.
type Epoch struct {
	Timestamp         time.Time          `json:"timestamp"`
	Content           Content            `json:"content"`
	ValidationHistory []ValidationRecord `json:"validationHistory"`
}

// History lists content epochs newest first.
type History struct {
	Epochs []Epoch `json:"epochs"`
}

// ScheduleVersion is a superseded schedule and the time it was replaced.
type ScheduleVersion struct {
	VerID    int64     `json:"verId"`
	VerTime  time.Time `json:"verTime"`
	Schedule Schedule  `json:"schedule"`
}
