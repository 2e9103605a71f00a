// Command inboxctl logs into one or more IMAP mailboxes, searches each
// selected folder with a configurable filter, and runs one or more of
// count, mark, fetch-and-deliver, or delete against the results.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/nugget/inboxctl/internal/buildinfo"
	"github.com/nugget/inboxctl/internal/config"
	"github.com/nugget/inboxctl/internal/hookrun"
	"github.com/nugget/inboxctl/internal/orchestrate"
	"github.com/nugget/inboxctl/internal/report"
	"github.com/nugget/inboxctl/internal/schedule"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run returns the process exit code spec.md §6 defines: 0 on a clean
// cycle, 1 on any recorded error (including -very-dry-run, which
// always exits 1 after describing its plan), 2 on argument-parsing
// failure.
func run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return 2
	}

	switch args[0] {
	case "version":
		fmt.Println(buildinfo.String())
		for k, v := range buildinfo.Info() {
			fmt.Printf("  %-12s %s\n", k+":", v)
		}
		return 0
	case "help", "-h", "--help":
		printUsage()
		return 0
	}

	kind := args[0]
	rest := args[1:]

	fs, g := newGlobalFlagSet(kind)
	if err := fs.Parse(rest); err != nil {
		return 2
	}
	tail := fs.Args()

	var cfg *config.Config
	var err error

	if g.configPath != "" {
		path, ferr := config.FindConfig(g.configPath)
		if ferr != nil {
			fmt.Fprintln(os.Stderr, ferr)
			return 2
		}
		cfg, err = config.Load(path)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 2
		}
		cfg.DryRun, cfg.VeryDryRun, cfg.Trace = g.dryRun, g.veryDryRun, g.trace
	} else {
		var actions []config.ActionConfig
		if kind == "for-each" {
			for _, seg := range splitForEach(tail) {
				if len(seg) == 0 {
					continue
				}
				act, leftover, aerr := parseActionArgs(seg[0], seg[1:])
				if aerr != nil {
					fmt.Fprintln(os.Stderr, aerr)
					return 2
				}
				if len(leftover) > 0 {
					fmt.Fprintf(os.Stderr, "%s: unexpected arguments %v\n", seg[0], leftover)
					return 2
				}
				actions = append(actions, act)
			}
			tail = nil
		} else {
			act, leftover, aerr := parseActionArgs(kind, tail)
			if aerr != nil {
				fmt.Fprintln(os.Stderr, aerr)
				return 2
			}
			actions = []config.ActionConfig{act}
			tail = leftover
		}

		if len(tail) > 0 {
			fmt.Fprintf(os.Stderr, "unexpected arguments: %v\n", tail)
			return 2
		}

		cfg = g.config(actions)
		if err := cfg.Validate(); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 2
		}
	}

	if cfg.VeryDryRun {
		describePlan(cfg)
		return 1
	}

	level := slog.LevelInfo
	if cfg.Trace {
		level = config.LevelTrace
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}))

	notifier := g.notifier
	if g.configPath != "" {
		notifier = cfg.Reporting.NotifyCommand
	}
	hooks := &hookrun.Runner{Logger: logger, Notifier: notifier}
	rep := report.New(cfg.Reporting, hooks)

	orch := orchestrate.New(logger, hooks, orchestrate.WithProgress(rep.Progress))

	sched := schedule.New(
		time.Duration(cfg.Polling.EverySec)*time.Second,
		time.Duration(cfg.Polling.JitterSec)*time.Second,
		logger,
	)

	failed := false
	err = sched.Run(context.Background(), func(ctx context.Context, tok schedule.Token) error {
		cr, rerr := orch.Run(tok, cfg)
		if rerr != nil {
			failed = true
			return rerr
		}
		for _, ar := range cr.Accounts {
			rep.ReportLines(ar.Lines)
		}
		rep.Summary(cr)
		if cr.Failed() {
			failed = true
		}
		return nil
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		failed = true
	}

	if failed {
		return 1
	}
	return 0
}

func printUsage() {
	fmt.Println("inboxctl - IMAP mailbox automation")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  list                      list selectable folders")
	fmt.Println("  count                     count messages matching the filter")
	fmt.Println("  mark {seen|unseen|flagged|unflagged}   set or clear a flag on matching messages")
	fmt.Println("  fetch                     fetch and deliver matching messages")
	fmt.Println("  delete                    delete matching messages")
	fmt.Println("  for-each ARG [\\; ARG ...] run several of the above against one session")
	fmt.Println("  version                   print build information")
	fmt.Println()
	fmt.Println("Run `inboxctl <command> -h` for that command's options.")
}

func describePlan(cfg *config.Config) {
	for _, a := range cfg.Accounts {
		fmt.Printf("account %s (%s@%s:%d, %s)\n", a.Name, a.User, a.Host, a.Port, a.Transport)
		for _, act := range a.Actions {
			fmt.Printf("  %s\n", describeAction(act))
		}
	}
}

func describeAction(act config.ActionConfig) string {
	switch act.Kind {
	case config.ActionFetch:
		dest := act.Maildir
		if dest == "" {
			dest = act.MDACommand
		}
		return fmt.Sprintf("fetch -> %s (mode=%s, mark=%s)", dest, act.Paranoid, act.FetchMark)
	case config.ActionMark:
		return fmt.Sprintf("mark %s", act.Mark)
	case config.ActionDelete:
		return fmt.Sprintf("delete (method=%s)", act.DeleteMethod)
	default:
		return string(act.Kind)
	}
}
