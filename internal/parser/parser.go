package parser

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/conorfennell/knolcards/internal/domain"
)

const (
	questionPrefix = "Q:"
	answerPrefix   = "A:"
	notePrefix     = "N:"
	tagsPrefix     = "T:"
	separator      = "---"
)

type state int

const (
	seeking state = iota
	readingQuestion
	readingAnswer
	readingNote
)

// Draft is a card found in a markdown file, not yet stored.
type Draft struct {
	Content domain.Content
	Tags    []string
}

// ParseFile reads a file from the given path and extracts all cards.
func ParseFile(path string) ([]Draft, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return Parse(file)
}

// Parse reads from an io.Reader and extracts all cards.
//
// "Q:" and "A:" blocks form a translation card, an "N:" block a note card.
// Blocks continue over following lines until the next prefix or a "---"
// separator. A "T:" line attaches comma-separated tags to the current card.
// Questions without an answer are dropped.
func Parse(r io.Reader) ([]Draft, error) {
	scanner := bufio.NewScanner(r)
	var drafts []Draft
	var question, answer, note string
	var tags []string
	var currentBlock []string
	currentState := seeking

	flushBlock := func() {
		if len(currentBlock) == 0 {
			return
		}
		content := strings.Join(currentBlock, "\n")
		switch currentState {
		case readingQuestion:
			question = content
		case readingAnswer:
			answer = content
		case readingNote:
			note = content
		}
		currentBlock = nil
	}

	finishCard := func() {
		flushBlock()
		switch {
		case strings.TrimSpace(note) != "":
			drafts = append(drafts, Draft{Content: domain.NoteContent{Text: note}.Trimmed(), Tags: tags})
		case strings.TrimSpace(question) != "" && strings.TrimSpace(answer) != "":
			drafts = append(drafts, Draft{
				Content: domain.TranslationContent{TextToTranslate: question, Translation: answer}.Trimmed(),
				Tags:    tags,
			})
		}
		question, answer, note, tags = "", "", "", nil
		currentState = seeking
	}

	for scanner.Scan() {
		line := scanner.Text()

		if line == separator {
			finishCard()
			continue
		}

		switch {
		case strings.HasPrefix(line, questionPrefix), strings.HasPrefix(line, notePrefix):
			// A new question or note always starts a new card.
			if currentState != seeking {
				finishCard()
			}
			if strings.HasPrefix(line, questionPrefix) {
				currentState = readingQuestion
			} else {
				currentState = readingNote
			}
			currentBlock = append(currentBlock, stripPrefix(line))
		case strings.HasPrefix(line, answerPrefix):
			flushBlock()
			currentState = readingAnswer
			currentBlock = append(currentBlock, stripPrefix(line))
		case strings.HasPrefix(line, tagsPrefix):
			flushBlock()
			tags = append(tags, splitTags(stripPrefix(line))...)
		default:
			if currentState != seeking && len(currentBlock) > 0 {
				currentBlock = append(currentBlock, line)
			}
		}
	}

	finishCard() // Finish the very last card in the file

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return drafts, nil
}

// stripPrefix drops the two-character prefix and one following space.
func stripPrefix(line string) string {
	return strings.TrimPrefix(line[2:], " ")
}

func splitTags(s string) []string {
	var tags []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
