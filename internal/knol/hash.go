package knol

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/conorfennell/knolcards/internal/domain"
)

// Normalize concatenates the card type and its content fields after cleaning
// each part. It trims whitespace, lowercases, and normalizes line endings for
// each field before joining them.
func Normalize(content domain.Content) string {
	normalizePart := func(part string) string {
		p := strings.ToLower(part)
		p = strings.ReplaceAll(p, "\r\n", "\n")
		p = strings.TrimSpace(p)
		return p
	}

	parts := []string{string(content.CardType())}
	switch c := content.(type) {
	case domain.TranslationContent:
		parts = append(parts, normalizePart(c.TextToTranslate), normalizePart(c.Translation))
	case domain.NoteContent:
		parts = append(parts, normalizePart(c.Text))
	}

	// Joined with a newline so "question" and "answer" never become
	// "questionanswer".
	return strings.Join(parts, "\n")
}

// Hash normalizes the content and returns its SHA-256 hash as a hex string.
func Hash(content domain.Content) string {
	hashBytes := sha256.Sum256([]byte(Normalize(content)))
	return fmt.Sprintf("%x", hashBytes)
}
