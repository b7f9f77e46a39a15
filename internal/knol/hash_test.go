package knol

import (
	"crypto/sha256"
	"fmt"
	"testing"

	"github.com/conorfennell/knolcards/internal/domain"
)

func TestNormalize(t *testing.T) {
	testCases := []struct {
		name     string
		content  domain.Content
		expected string
	}{
		{
			name:     "translation",
			content:  domain.TranslationContent{TextToTranslate: "  What is HTMX? \r\n", Translation: "A library for AJAX."},
			expected: "TRANSLATION\nwhat is htmx?\na library for ajax.",
		},
		{
			name:     "note",
			content:  domain.NoteContent{Text: "Line one\r\nLine Two "},
			expected: "NOTE\nline one\nline two",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Normalize(tc.content); got != tc.expected {
				t.Errorf("Expected normalized string to be '%s', but got '%s'", tc.expected, got)
			}
		})
	}
}

func TestHash(t *testing.T) {
	t.Run("is the sha256 of the normalized content", func(t *testing.T) {
		content := domain.TranslationContent{TextToTranslate: "Q", Translation: "A"}
		expected := fmt.Sprintf("%x", sha256.Sum256([]byte("TRANSLATION\nq\na")))
		if hash := Hash(content); hash != expected {
			t.Errorf("Expected hash '%s', but got '%s'", expected, hash)
		}
	})

	t.Run("normalization produces same hash", func(t *testing.T) {
		card1 := domain.TranslationContent{TextToTranslate: "  what is go? ", Translation: "A programming language."}
		card2 := domain.TranslationContent{TextToTranslate: "What Is Go?", Translation: "A programming language."}
		if Hash(card1) != Hash(card2) {
			t.Error("Expected hashes to be the same after normalization, but they were different.")
		}
	})

	t.Run("card type is part of the hash", func(t *testing.T) {
		note := domain.NoteContent{Text: "same"}
		translation := domain.TranslationContent{TextToTranslate: "same"}
		if Hash(note) == Hash(translation) {
			t.Error("Expected a note and a translation to hash differently")
		}
	})

	t.Run("different cards have different hashes", func(t *testing.T) {
		if Hash(domain.NoteContent{Text: "Card 1"}) == Hash(domain.NoteContent{Text: "Card 2"}) {
			t.Error("Expected hashes for different cards to be different")
		}
	})
}
