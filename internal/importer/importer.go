// Package importer reconciles markdown card files from local directories and
// git repositories with the card store.
package importer

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/conorfennell/knolcards/internal/apperr"
	"github.com/conorfennell/knolcards/internal/domain"
	"github.com/conorfennell/knolcards/internal/gitsource"
	"github.com/conorfennell/knolcards/internal/knol"
	"github.com/conorfennell/knolcards/internal/manager"
	"github.com/conorfennell/knolcards/internal/parser"
	"github.com/conorfennell/knolcards/internal/storage"
)

const (
	SourceLocal = "local"
	SourceGit   = "git"
)

// CardStore is the subset of the manager the importer writes through. Every
// write, including the importer's own bookkeeping, happens inside it.
type CardStore interface {
	CreateCardWith(ctx context.Context, req manager.CreateCardRequest, hook manager.TxHook) (int64, error)
	DeleteCardWith(ctx context.Context, id int64, hook manager.TxHook) error
	ListTags(ctx context.Context) ([]domain.Tag, error)
	CreateTag(ctx context.Context, name string) (int64, error)
	Exclusive(ctx context.Context, op string, fn func(tx *sql.Tx) error) error
}

// Report summarizes one run.
type Report struct {
	Sources int `json:"sources"`
	Parsed  int `json:"parsed"`
	Created int `json:"created"`
	Deleted int `json:"deleted"`
	Errors  int `json:"errors"`
}

type Importer struct {
	db       *storage.DB
	cards    CardStore
	reposDir string
	now      func() time.Time
	// Progress receives git clone and pull output; nil discards it.
	Progress io.Writer
}

func New(db *storage.DB, cards CardStore, reposDir string) *Importer {
	return &Importer{db: db, cards: cards, reposDir: reposDir, now: time.Now}
}

// AddSource registers a local directory or a git URL.
func (im *Importer) AddSource(ctx context.Context, path string) (int64, error) {
	sourceType := SourceLocal
	if isGitURL(path) {
		sourceType = SourceGit
	} else {
		abs, err := filepath.Abs(path)
		if err != nil {
			return 0, fmt.Errorf("failed to resolve %s: %w", path, err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return 0, fmt.Errorf("failed to stat %s: %w", abs, err)
		}
		if !info.IsDir() {
			return 0, fmt.Errorf("source %s is not a directory", abs)
		}
		path = abs
	}

	existing, err := im.db.FindSourceByPath(ctx, path)
	if err != nil {
		return 0, err
	}
	if existing != nil {
		return existing.ID, nil
	}
	var id int64
	err = im.cards.Exclusive(ctx, "add_source", func(tx *sql.Tx) (err error) {
		id, err = storage.InsertSource(ctx, tx, path, sourceType)
		return err
	})
	if err != nil {
		return 0, err
	}
	slog.Info("source added", "id", id, "type", sourceType, "path", path)
	return id, nil
}

// Run iterates over all sources and reconciles them.
func (im *Importer) Run(ctx context.Context) (Report, error) {
	var report Report
	slog.Info("starting import for all sources")
	sources, err := im.db.GetAllSources(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to get sources: %w", err)
	}
	if len(sources) == 0 {
		slog.Info("no sources configured, add one with source-add <path/or/url.git>")
		return report, nil
	}

	if err := os.MkdirAll(im.reposDir, os.ModePerm); err != nil {
		return report, fmt.Errorf("failed to create repos directory: %w", err)
	}

	tags, err := im.loadTags(ctx)
	if err != nil {
		return report, err
	}

	for _, source := range sources {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		slog.Info("importing source", "id", source.ID, "type", source.Type, "path", source.Path)
		report.Sources++

		dir := source.Path
		if source.Type == SourceGit {
			dir, err = gitURLToLocalPath(im.reposDir, source.Path)
			if err != nil {
				slog.Error("error determining local path for git repo", "url", source.Path, "error", err)
				report.Errors++
				continue
			}
			if err := gitsource.Sync(ctx, source.Path, dir, im.Progress); err != nil {
				slog.Error("error syncing git repo", "url", source.Path, "error", err)
				report.Errors++
				continue
			}
		}
		im.reconcile(ctx, source, dir, tags, &report)
	}
	slog.Info("import complete", "created", report.Created, "deleted", report.Deleted, "errors", report.Errors)
	return report, nil
}

// tagIndex maps existing tag names to ids. Missing tags are added on demand.
type tagIndex struct {
	cards CardStore
	ids   map[string]int64
}

func (im *Importer) loadTags(ctx context.Context) (*tagIndex, error) {
	all, err := im.cards.ListTags(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}
	idx := &tagIndex{cards: im.cards, ids: make(map[string]int64, len(all))}
	for _, t := range all {
		idx.ids[t.Name] = t.ID
	}
	return idx, nil
}

func (idx *tagIndex) resolve(ctx context.Context, names []string) ([]int64, error) {
	ids := make([]int64, 0, len(names))
	for _, name := range names {
		id, ok := idx.ids[name]
		if !ok {
			var err error
			id, err = idx.cards.CreateTag(ctx, name)
			if err != nil {
				return nil, fmt.Errorf("failed to create tag %q: %w", name, err)
			}
			idx.ids[name] = id
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (im *Importer) reconcile(ctx context.Context, source storage.Source, dir string, tags *tagIndex, report *Report) {
	var drafts []parser.Draft
	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && d.Name() == ".git" {
			return filepath.SkipDir
		}
		if !d.IsDir() && strings.HasSuffix(strings.ToLower(d.Name()), ".md") {
			fileDrafts, parseErr := parser.ParseFile(path)
			if parseErr != nil {
				slog.Warn("failed to parse file", "path", path, "error", parseErr)
				report.Errors++
			}
			drafts = append(drafts, fileDrafts...)
		}
		return nil
	})
	if walkErr != nil {
		slog.Error("error walking directory", "path", dir, "error", walkErr)
		report.Errors++
		return
	}
	report.Parsed += len(drafts)

	found := make(map[string]bool, len(drafts))
	for _, draft := range drafts {
		hash := knol.Hash(draft.Content)
		if found[hash] {
			continue
		}
		found[hash] = true

		existing, err := im.db.FindImportedCard(ctx, hash)
		if err != nil {
			slog.Warn("failed to look up imported card", "hash", hash, "error", err)
			report.Errors++
			continue
		}
		if existing != nil {
			continue
		}
		if err := im.create(ctx, source.ID, hash, draft, tags); err != nil {
			slog.Warn("failed to import card", "hash", hash, "error", err)
			report.Errors++
			continue
		}
		report.Created++
	}

	imported, err := im.db.GetImportedCardsBySourceID(ctx, source.ID)
	if err != nil {
		slog.Error("error getting imported cards for source", "source_id", source.ID, "error", err)
		report.Errors++
		return
	}
	for _, ic := range imported {
		if found[ic.Hash] {
			continue
		}
		slog.Info("orphaned card, deleting", "hash", ic.Hash, "card_id", ic.CardID)
		if err := im.forget(ctx, ic); err != nil {
			slog.Warn("failed to delete orphaned card", "card_id", ic.CardID, "error", err)
			report.Errors++
			continue
		}
		report.Deleted++
	}

	err = im.cards.Exclusive(ctx, "mark_source_scanned", func(tx *sql.Tx) error {
		return storage.UpdateSourceLastScanned(ctx, tx, source.ID, im.now())
	})
	if err != nil {
		slog.Warn("failed to update last scanned for source", "source_id", source.ID, "error", err)
	}
}

func (im *Importer) create(ctx context.Context, sourceID int64, hash string, draft parser.Draft, tags *tagIndex) error {
	tagIDs, err := tags.resolve(ctx, draft.Tags)
	if err != nil {
		return err
	}
	req := manager.CreateCardRequest{
		Type:    draft.Content.CardType(),
		Content: draft.Content,
		TagIDs:  tagIDs,
	}
	cardID, err := im.cards.CreateCardWith(ctx, req, func(ctx context.Context, tx *sql.Tx, cardID int64) error {
		return storage.InsertImportedCard(ctx, tx, storage.ImportedCard{Hash: hash, SourceID: sourceID, CardID: cardID})
	})
	if err != nil {
		return err
	}
	slog.Debug("card imported", "hash", hash, "card_id", cardID)
	return nil
}

// forget deletes an orphaned card together with its import record. A card
// already deleted by hand only loses the record.
func (im *Importer) forget(ctx context.Context, ic storage.ImportedCard) error {
	err := im.cards.DeleteCardWith(ctx, ic.CardID, func(ctx context.Context, tx *sql.Tx, _ int64) error {
		return storage.DeleteImportedCard(ctx, tx, ic.Hash)
	})
	if !apperr.Is(err, apperr.NotFound) {
		return err
	}
	return im.cards.Exclusive(ctx, "forget_import", func(tx *sql.Tx) error {
		return storage.DeleteImportedCard(ctx, tx, ic.Hash)
	})
}

func isGitURL(path string) bool {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return true
	}
	return strings.HasPrefix(path, "git@") || strings.HasSuffix(path, ".git")
}

// gitURLToLocalPath maps https://host/owner/repo.git and git@host:owner/repo.git
// to baseDir/host/owner/repo.
func gitURLToLocalPath(baseDir, repoURL string) (string, error) {
	if u, err := url.Parse(repoURL); err == nil && (u.Scheme == "https" || u.Scheme == "http") {
		return filepath.Join(baseDir, u.Host, strings.TrimSuffix(u.Path, ".git")), nil
	}
	userHost, repoPath, ok := strings.Cut(repoURL, ":")
	if !ok || strings.Contains(repoPath, ":") {
		return "", fmt.Errorf("could not parse git URL: %s", repoURL)
	}
	_, host, ok := strings.Cut(userHost, "@")
	if !ok || host == "" || strings.Contains(host, "@") {
		return "", fmt.Errorf("could not parse git URL: %s", repoURL)
	}
	return filepath.Join(baseDir, host, strings.TrimSuffix(repoPath, ".git")), nil
}
