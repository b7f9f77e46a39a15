// Package history rebuilds a card's content timeline together with the
// answers given against each version.
package history

import (
	"time"

	"github.com/conorfennell/knolcards/internal/delay"
	"github.com/conorfennell/knolcards/internal/domain"
	"github.com/conorfennell/knolcards/internal/storage"
)

// Build assembles the epochs of a card.
//
// versions and validations must be ordered newest first. Epoch 0 holds the
// current content and each later epoch one superseded version. An epoch
// starts at the ver_time of the version row that replaced the content before
// it; the oldest epoch starts at createdAt. Each validation is nested in the
// epoch whose window contains its timestamp, and validations older than the
// oldest epoch fall into it.
func Build(createdAt time.Time, current domain.Content, versions []storage.ContentVersion, validations []domain.ValidationLogEntry) domain.History {
	n := len(versions) + 1
	epochs := make([]domain.Epoch, n)
	epochs[0].Content = current
	for i, v := range versions {
		epochs[i].Timestamp = v.VerTime
		epochs[i+1].Content = v.Content
	}
	epochs[n-1].Timestamp = createdAt
	for i := range epochs {
		epochs[i].ValidationHistory = []domain.ValidationRecord{}
	}

	records := make([]domain.ValidationRecord, len(validations))
	for i, e := range validations {
		records[i] = domain.ValidationRecord{
			RecID:               e.RecID,
			Timestamp:           e.Timestamp,
			ProvidedTranslation: e.ProvidedTranslation,
			Matched:             e.Matched,
		}
		if i+1 < len(validations) {
			gap := e.Timestamp.Sub(validations[i+1].Timestamp).Milliseconds()
			records[i].ActualDelay = delay.FormatMillis(gap)
		}
	}

	// Walk both lists oldest first; the cursor only moves towards newer epochs.
	cursor := n - 1
	for i := len(records) - 1; i >= 0; i-- {
		ts := records[i].Timestamp
		for cursor > 0 && !ts.Before(epochs[cursor-1].Timestamp) {
			cursor--
		}
		epochs[cursor].ValidationHistory = append(epochs[cursor].ValidationHistory, records[i])
	}

	for i := range epochs {
		reverse(epochs[i].ValidationHistory)
	}
	return domain.History{Epochs: epochs}
}

func reverse(rs []domain.ValidationRecord) {
	for i, j := 0, len(rs)-1; i < j; i, j = i+1, j-1 {
		rs[i], rs[j] = rs[j], rs[i]
	}
}
