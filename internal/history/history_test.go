package history

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/conorfennell/knolcards/internal/domain"
	"github.com/conorfennell/knolcards/internal/storage"
)

func ms(n int64) time.Time { return time.UnixMilli(n) }

func entry(id, at int64, provided string, matched bool) domain.ValidationLogEntry {
	return domain.ValidationLogEntry{RecID: id, CardID: 1, Timestamp: ms(at), ProvidedTranslation: provided, Matched: matched}
}

func TestBuild(t *testing.T) {
	v1 := domain.TranslationContent{TextToTranslate: "A", Translation: "a"}
	v2 := domain.TranslationContent{TextToTranslate: "B", Translation: "a"}
	v3 := domain.TranslationContent{TextToTranslate: "B", Translation: "b"}

	testCases := []struct {
		name        string
		versions    []storage.ContentVersion
		validations []domain.ValidationLogEntry
		expected    domain.History
	}{
		{
			name:     "no edits and no answers",
			expected: domain.History{Epochs: []domain.Epoch{{Timestamp: ms(0), Content: v3, ValidationHistory: []domain.ValidationRecord{}}}},
		},
		{
			name: "answers nest into their epochs",
			// v1 current from 0, v2 from 10000, v3 from 20000.
			versions: []storage.ContentVersion{
				{VerTime: ms(20000), Content: v2},
				{VerTime: ms(10000), Content: v1},
			},
			validations: []domain.ValidationLogEntry{
				entry(4, 25000, "b", true),
				entry(3, 20000, "a", false),
				entry(2, 15000, "a", true),
				entry(1, 5000, "x", false),
			},
			expected: domain.History{Epochs: []domain.Epoch{
				{Timestamp: ms(20000), Content: v3, ValidationHistory: []domain.ValidationRecord{
					{RecID: 4, Timestamp: ms(25000), ProvidedTranslation: "b", Matched: true, ActualDelay: "5s"},
					{RecID: 3, Timestamp: ms(20000), ProvidedTranslation: "a", Matched: false, ActualDelay: "5s"},
				}},
				{Timestamp: ms(10000), Content: v2, ValidationHistory: []domain.ValidationRecord{
					{RecID: 2, Timestamp: ms(15000), ProvidedTranslation: "a", Matched: true, ActualDelay: "10s"},
				}},
				{Timestamp: ms(0), Content: v1, ValidationHistory: []domain.ValidationRecord{
					{RecID: 1, Timestamp: ms(5000), ProvidedTranslation: "x", Matched: false},
				}},
			}},
		},
		{
			name:     "answers before creation land in the oldest epoch",
			versions: []storage.ContentVersion{{VerTime: ms(10000), Content: v1}},
			validations: []domain.ValidationLogEntry{
				entry(1, -3000, "a", true),
			},
			expected: domain.History{Epochs: []domain.Epoch{
				{Timestamp: ms(10000), Content: v3, ValidationHistory: []domain.ValidationRecord{}},
				{Timestamp: ms(0), Content: v1, ValidationHistory: []domain.ValidationRecord{
					{RecID: 1, Timestamp: ms(-3000), ProvidedTranslation: "a", Matched: true},
				}},
			}},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := Build(ms(0), v3, tc.versions, tc.validations)
			if diff := cmp.Diff(tc.expected, got); diff != "" {
				t.Errorf("Build() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestBuildEpochCount(t *testing.T) {
	versions := make([]storage.ContentVersion, 5)
	for i := range versions {
		versions[i] = storage.ContentVersion{VerTime: ms(int64(5-i) * 1000), Content: domain.NoteContent{Text: "old"}}
	}
	got := Build(ms(0), domain.NoteContent{Text: "new"}, versions, nil)
	if len(got.Epochs) != 6 {
		t.Fatalf("Expected 6 epochs, but got %d", len(got.Epochs))
	}
	if oldest := got.Epochs[5].Timestamp; !oldest.Equal(ms(0)) {
		t.Errorf("Expected the oldest epoch at createdAt, but got %v", oldest)
	}
}
