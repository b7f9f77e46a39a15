package main

import (
	"context"
	"strconv"
	"strings"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/conorfennell/knolcards/internal/apperr"
	"github.com/conorfennell/knolcards/internal/domain"
	"github.com/conorfennell/knolcards/internal/manager"
	"github.com/conorfennell/knolcards/internal/selector"
)

type command struct {
	usage string
	help  string
	// args is the number of required positional arguments.
	args  int
	flags func(fs *flag.FlagSet)
	run   func(ctx context.Context, a *app, fs *flag.FlagSet) (any, error)
}

var commands = map[string]command{
	"add": {
		help:  "create a card",
		flags: contentFlags,
		run:   addCard,
	},
	"show": {
		usage: "<id>",
		help:  "show a card",
		args:  1,
		run: func(ctx context.Context, a *app, fs *flag.FlagSet) (any, error) {
			id, err := idArg(fs, 0)
			if err != nil {
				return nil, err
			}
			return a.cards.ReadCardByID(ctx, id)
		},
	},
	"update": {
		usage: "<id>",
		help:  "change content, tags, pause state or delay",
		args:  1,
		flags: func(fs *flag.FlagSet) {
			contentFlags(fs)
			fs.Bool("clear-tags", false, "remove every tag")
			fs.String("delay", "", `new delay such as "3d" or "x1.5"`)
			fs.Bool("recalc", false, "recalculate the schedule even if the delay is unchanged")
		},
		run: updateCard,
	},
	"delete": {
		usage: "<id>",
		help:  "delete a card",
		args:  1,
		run: func(ctx context.Context, a *app, fs *flag.FlagSet) (any, error) {
			id, err := idArg(fs, 0)
			if err != nil {
				return nil, err
			}
			return map[string]int64{"deleted": id}, a.cards.DeleteCard(ctx, id)
		},
	},
	"answer": {
		usage: "<id> <answer>",
		help:  "check an answer to a translation card",
		args:  2,
		run: func(ctx context.Context, a *app, fs *flag.FlagSet) (any, error) {
			id, err := idArg(fs, 0)
			if err != nil {
				return nil, err
			}
			return a.cards.ValidateAnswer(ctx, id, strings.Join(fs.Args()[1:], " "))
		},
	},
	"due": {
		help: "list the most overdue cards",
		flags: func(fs *flag.FlagSet) {
			filterFlags(fs)
			fs.Lookup("limit").DefValue = "10"
			_ = fs.Set("limit", "10")
		},
		run: func(ctx context.Context, a *app, fs *flag.FlagSet) (any, error) {
			f, err := parseFilter(fs)
			if err != nil {
				return nil, err
			}
			return a.cards.SelectTopOverdue(ctx, f, f.Limit)
		},
	},
	"search": {
		help:  "search cards",
		flags: filterFlags,
		run: func(ctx context.Context, a *app, fs *flag.FlagSet) (any, error) {
			f, err := parseFilter(fs)
			if err != nil {
				return nil, err
			}
			return a.cards.SearchByFilter(ctx, f)
		},
	},
	"history": {
		usage: "<id>",
		help:  "show content versions and answers",
		args:  1,
		run: func(ctx context.Context, a *app, fs *flag.FlagSet) (any, error) {
			id, err := idArg(fs, 0)
			if err != nil {
				return nil, err
			}
			return a.cards.ReadHistory(ctx, id)
		},
	},
	"schedule-history": {
		usage: "<id>",
		help:  "show superseded schedules",
		args:  1,
		run: func(ctx context.Context, a *app, fs *flag.FlagSet) (any, error) {
			id, err := idArg(fs, 0)
			if err != nil {
				return nil, err
			}
			return a.cards.ReadScheduleHistory(ctx, id)
		},
	},
	"tags": {
		help: "list tags",
		run: func(ctx context.Context, a *app, fs *flag.FlagSet) (any, error) {
			return a.cards.ListTags(ctx)
		},
	},
	"tag-add": {
		usage: "<name>",
		help:  "create a tag",
		args:  1,
		run: func(ctx context.Context, a *app, fs *flag.FlagSet) (any, error) {
			id, err := a.cards.CreateTag(ctx, strings.Join(fs.Args(), " "))
			return map[string]int64{"id": id}, err
		},
	},
	"tag-rename": {
		usage: "<id> <name>",
		help:  "rename a tag",
		args:  2,
		run: func(ctx context.Context, a *app, fs *flag.FlagSet) (any, error) {
			id, err := idArg(fs, 0)
			if err != nil {
				return nil, err
			}
			return map[string]int64{"renamed": id}, a.cards.RenameTag(ctx, id, strings.Join(fs.Args()[1:], " "))
		},
	},
	"tag-rm": {
		usage: "<id>",
		help:  "delete an unused tag",
		args:  1,
		run: func(ctx context.Context, a *app, fs *flag.FlagSet) (any, error) {
			id, err := idArg(fs, 0)
			if err != nil {
				return nil, err
			}
			return map[string]int64{"deleted": id}, a.cards.DeleteTag(ctx, id)
		},
	},
	"source-add": {
		usage: "<path|git-url>",
		help:  "register a directory or git repository of markdown cards",
		args:  1,
		run: func(ctx context.Context, a *app, fs *flag.FlagSet) (any, error) {
			id, err := a.importer.AddSource(ctx, fs.Arg(0))
			if err != nil {
				return nil, apperr.Wrap(apperr.Validation, "cannot add source", err)
			}
			return map[string]int64{"id": id}, nil
		},
	},
	"sync": {
		help: "import cards from every source",
		run: func(ctx context.Context, a *app, fs *flag.FlagSet) (any, error) {
			return a.importer.Run(ctx)
		},
	},
}

func idArg(fs *flag.FlagSet, i int) (int64, error) {
	id, err := strconv.ParseInt(fs.Arg(i), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.New(apperr.Validation, "invalid id %q", fs.Arg(i))
	}
	return id, nil
}

func contentFlags(fs *flag.FlagSet) {
	fs.String("type", string(domain.Translation), "card type: TRANSLATION or NOTE")
	fs.String("text", "", "text to translate")
	fs.String("translation", "", "expected translation")
	fs.String("note", "", "note text")
	fs.Int64Slice("tag", nil, "tag id, repeatable")
	fs.Bool("paused", false, "pause the card")
}

func addCard(ctx context.Context, a *app, fs *flag.FlagSet) (any, error) {
	typ, _ := fs.GetString("type")
	cardType := domain.CardType(strings.ToUpper(typ))
	tags, _ := fs.GetInt64Slice("tag")
	paused, _ := fs.GetBool("paused")
	id, err := a.cards.CreateCard(ctx, manager.CreateCardRequest{
		Type:    cardType,
		Content: contentFromFlags(fs, cardType, nil),
		TagIDs:  tags,
		Paused:  paused,
	})
	if err != nil {
		return nil, err
	}
	return map[string]int64{"id": id}, nil
}

// contentFromFlags builds content from the text flags, falling back to
// current for fields that were not given.
func contentFromFlags(fs *flag.FlagSet, t domain.CardType, current domain.Content) domain.Content {
	get := func(name, fallback string) string {
		if fs.Changed(name) {
			v, _ := fs.GetString(name)
			return v
		}
		return fallback
	}
	if t == domain.Note {
		var c domain.NoteContent
		if cur, ok := current.(domain.NoteContent); ok {
			c = cur
		}
		return domain.NoteContent{Text: get("note", c.Text)}
	}
	var c domain.TranslationContent
	if cur, ok := current.(domain.TranslationContent); ok {
		c = cur
	}
	return domain.TranslationContent{
		TextToTranslate: get("text", c.TextToTranslate),
		Translation:     get("translation", c.Translation),
	}
}

func updateCard(ctx context.Context, a *app, fs *flag.FlagSet) (any, error) {
	id, err := idArg(fs, 0)
	if err != nil {
		return nil, err
	}
	req := manager.UpdateCardRequest{ID: id}
	req.RecalculateDelay, _ = fs.GetBool("recalc")

	if fs.Changed("text") || fs.Changed("translation") || fs.Changed("note") {
		cur, err := a.cards.ReadCardByID(ctx, id)
		if err != nil {
			return nil, err
		}
		req.Content = contentFromFlags(fs, cur.Type, cur.Content)
	}
	if fs.Changed("tag") {
		req.TagIDs, _ = fs.GetInt64Slice("tag")
	}
	if clearTags, _ := fs.GetBool("clear-tags"); clearTags {
		req.TagIDs = []int64{}
	}
	if fs.Changed("paused") {
		paused, _ := fs.GetBool("paused")
		req.Paused = &paused
	}
	if fs.Changed("delay") {
		d, _ := fs.GetString("delay")
		req.Delay = &d
	}

	if err := a.cards.UpdateCard(ctx, req); err != nil {
		return nil, err
	}
	return a.cards.ReadCardByID(ctx, id)
}

func filterFlags(fs *flag.FlagSet) {
	fs.String("type", "", "only cards of this type")
	fs.Int64Slice("tag", nil, "require this tag id, repeatable")
	fs.Int64Slice("exclude-tag", nil, "reject cards with this tag id, repeatable")
	fs.String("text", "", "text to translate contains")
	fs.String("translation", "", "translation contains")
	fs.String("note", "", "note text contains")
	fs.Bool("paused", false, "only paused (or, with =false, active) cards")
	fs.Float64("overdue", 0, "minimum overdue ratio")
	fs.String("created-from", "", "created at or after (RFC 3339)")
	fs.String("created-till", "", "created at or before (RFC 3339)")
	fs.String("sort", "created", "sort by created, next or overdue")
	fs.Bool("desc", false, "sort descending")
	fs.Int("limit", 0, "maximum number of cards")
}

func parseFilter(fs *flag.FlagSet) (selector.Filter, error) {
	var f selector.Filter
	typ, _ := fs.GetString("type")
	f.Type = domain.CardType(strings.ToUpper(typ))
	f.TagsIncluded, _ = fs.GetInt64Slice("tag")
	f.TagsExcluded, _ = fs.GetInt64Slice("exclude-tag")
	f.TextToTranslate.Contains, _ = fs.GetString("text")
	f.Translation.Contains, _ = fs.GetString("translation")
	f.NoteText.Contains, _ = fs.GetString("note")
	if fs.Changed("paused") {
		paused, _ := fs.GetBool("paused")
		f.Paused = &paused
	}
	if fs.Changed("overdue") {
		ratio, _ := fs.GetFloat64("overdue")
		f.OverdueAtLeast = &ratio
	}
	for name, dst := range map[string]**time.Time{"created-from": &f.CreatedAt.From, "created-till": &f.CreatedAt.Till} {
		s, _ := fs.GetString(name)
		if s == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return f, apperr.Wrap(apperr.Validation, "invalid --"+name, err)
		}
		*dst = &t
	}

	sortBy, _ := fs.GetString("sort")
	switch sortBy {
	case "created":
		f.SortBy = selector.SortByCreatedAt
	case "next":
		f.SortBy = selector.SortByNextAccessAt
	case "overdue":
		f.SortBy = selector.SortByOverdue
	default:
		return f, apperr.New(apperr.Validation, "unknown sort %q", sortBy)
	}
	if desc, _ := fs.GetBool("desc"); desc {
		f.SortDir = selector.Desc
	}
	f.Limit, _ = fs.GetInt("limit")
	return f, nil
}
