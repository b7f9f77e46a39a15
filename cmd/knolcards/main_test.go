package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/conorfennell/knolcards/internal/apperr"
)

func runCLI(t *testing.T, db string, args ...string) ([]byte, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), append([]string{"--db", db, "--log-level", "error"}, args...), &stdout, &stderr)
	return stdout.Bytes(), err
}

func TestRunCardLifecycle(t *testing.T) {
	db := filepath.Join(t.TempDir(), "cards.db")

	out, err := runCLI(t, db, "tag-add", "german")
	require.NoError(t, err)
	var tag struct{ ID int64 }
	require.NoError(t, json.Unmarshal(out, &tag))

	out, err = runCLI(t, db, "add", "--text", "der Hund", "--translation", "the dog", "--tag", "1")
	require.NoError(t, err)
	var created struct{ ID int64 }
	require.NoError(t, json.Unmarshal(out, &created))
	require.Equal(t, int64(1), created.ID)

	out, err = runCLI(t, db, "update", "1", "--translation", "the hound", "--paused")
	require.NoError(t, err)
	var view struct {
		Paused  bool
		TagIDs  []int64 `json:"tagIds"`
		Content struct{ Translation string }
	}
	require.NoError(t, json.Unmarshal(out, &view))
	require.True(t, view.Paused)
	require.Equal(t, []int64{tag.ID}, view.TagIDs)
	require.Equal(t, "the hound", view.Content.Translation)

	out, err = runCLI(t, db, "answer", "1", "The", "Hound")
	require.NoError(t, err)
	require.Contains(t, string(out), `"isCorrect": true`)

	out, err = runCLI(t, db, "search", "--paused", "--translation", "hound")
	require.NoError(t, err)
	var found []struct{ ID int64 }
	require.NoError(t, json.Unmarshal(out, &found))
	require.Len(t, found, 1)

	_, err = runCLI(t, db, "delete", "1")
	require.NoError(t, err)
	_, err = runCLI(t, db, "show", "1")
	require.True(t, apperr.Is(err, apperr.NotFound), "Expected NOT_FOUND, but got %v", err)
}

func TestRunRejectsBadInput(t *testing.T) {
	db := filepath.Join(t.TempDir(), "cards.db")
	testCases := []struct {
		name string
		args []string
	}{
		{"no command", nil},
		{"unknown command", []string{"frobnicate"}},
		{"missing id", []string{"show"}},
		{"bad id", []string{"show", "abc"}},
		{"bad sort", []string{"search", "--sort", "sideways"}},
		{"bad delay", []string{"update", "1", "--delay", "soon"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := runCLI(t, db, tc.args...)
			require.True(t, apperr.Is(err, apperr.Validation) || apperr.Is(err, apperr.NotFound),
				"Expected a validation error, but got %v", err)
		})
	}
}
