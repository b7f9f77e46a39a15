package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/conorfennell/knolcards/internal/apperr"
	"github.com/conorfennell/knolcards/internal/config"
	"github.com/conorfennell/knolcards/internal/importer"
	"github.com/conorfennell/knolcards/internal/manager"
	"github.com/conorfennell/knolcards/internal/scheduler"
	"github.com/conorfennell/knolcards/internal/storage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if err != nil {
		writeJSON(os.Stderr, apperr.From(err))
		os.Exit(1)
	}
}

// app holds what commands operate on.
type app struct {
	cards    *manager.Manager
	importer *importer.Importer
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("knolcards", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.SetInterspersed(false)
	config.RegisterFlags(fs)
	fs.Usage = func() { usage(stderr, fs) }
	if err := fs.Parse(args); err != nil {
		return apperr.Wrap(apperr.Validation, "invalid flags", err)
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return apperr.New(apperr.Validation, "missing command")
	}
	cmd, ok := commands[fs.Arg(0)]
	if !ok {
		fs.Usage()
		return apperr.New(apperr.Validation, "unknown command %q", fs.Arg(0))
	}

	configPath, _ := fs.GetString("config")
	cfg, err := config.Load(configPath, fs)
	if err != nil {
		return apperr.Wrap(apperr.Validation, "invalid configuration", err)
	}
	logger := cfg.Log.Logger(stderr)

	db, err := storage.Open(cfg.DB.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	params := scheduler.DefaultParams()
	params.MaxDelay = cfg.Schedule.MaxDelay
	sched, err := scheduler.New(params, nil)
	if err != nil {
		return apperr.Wrap(apperr.Validation, "invalid schedule settings", err)
	}

	cards := manager.New(db, sched, manager.WithLogger(logger))
	imp := importer.New(db, cards, cfg.Import.ReposDir)
	imp.Progress = stderr
	a := &app{cards: cards, importer: imp}

	cmdFlags := flag.NewFlagSet(fs.Arg(0), flag.ContinueOnError)
	cmdFlags.SetOutput(stderr)
	if cmd.flags != nil {
		cmd.flags(cmdFlags)
	}
	if err := cmdFlags.Parse(fs.Args()[1:]); err != nil {
		return apperr.Wrap(apperr.Validation, "invalid flags for "+fs.Arg(0), err)
	}
	if cmdFlags.NArg() < cmd.args {
		return apperr.New(apperr.Validation, "usage: knolcards %s %s", fs.Arg(0), cmd.usage)
	}

	out, err := cmd.run(ctx, a, cmdFlags)
	if err != nil {
		return err
	}
	return writeJSON(stdout, out)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return errors.Join(apperr.New(apperr.Unexpected, "failed to encode output"), err)
	}
	return nil
}

func usage(w io.Writer, fs *flag.FlagSet) {
	fmt.Fprintln(w, "Usage: knolcards [flags] <command> [command flags] [args]")
	fmt.Fprintln(w, "\nCommands:")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		c := commands[name]
		fmt.Fprintf(w, "  %-18s %s\n", strings.TrimSpace(name+" "+c.usage), c.help)
	}
	fmt.Fprintln(w, "\nFlags:")
	fmt.Fprint(w, fs.FlagUsages())
}
