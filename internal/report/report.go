// Package report turns a cycle's results into the text a user or a
// calling script sees: per-batch progress lines while a fetch is in
// flight, and a final summary once every account has been visited
// (spec.md §4.8). Porcelain mode trades the human phrasing for a
// stable, greppable format; quiet mode drops progress lines, report
// lines and the summary text, but still fires hooks and notifications.
package report

import (
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"github.com/nugget/inboxctl/internal/config"
	"github.com/nugget/inboxctl/internal/hookrun"
	"github.com/nugget/inboxctl/internal/orchestrate"
)

// Reporter renders cycle output and dispatches the success/failure
// notification hooks spec.md §3's ReportingConfig describes.
type Reporter struct {
	cfg         config.ReportingConfig
	hooks       *hookrun.Runner
	out         io.Writer
	err         io.Writer
	interactive bool
}

// Option configures a Reporter.
type Option func(*Reporter)

// WithWriters overrides the default os.Stdout/os.Stderr pair, for tests.
func WithWriters(out, err io.Writer) Option {
	return func(r *Reporter) { r.out = out; r.err = err }
}

// New builds a Reporter. hooks may be nil if no success/failure
// commands are ever configured. Whether stdout is a terminal is
// decided once at construction time, matching the teacher's habit of
// deciding presentation up front rather than per line.
func New(cfg config.ReportingConfig, hooks *hookrun.Runner, opts ...Option) *Reporter {
	r := &Reporter{
		cfg:   cfg,
		hooks: hooks,
		out:   os.Stdout,
		err:   os.Stderr,
	}
	if f, ok := r.out.(*os.File); ok {
		r.interactive = isatty.IsTerminal(f.Fd())
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Progress reports one delivered fetch batch. It is wired as the
// Orchestrator's progress callback (internal/orchestrate.WithProgress)
// and is a no-op under Quiet or Porcelain — porcelain callers get only
// the final per-folder count, not an in-flight stream.
func (r *Reporter) Progress(account, folder string, delivered, bytes int) {
	if r.cfg.Quiet || r.cfg.Porcelain || delivered == 0 {
		return
	}
	// Progress lines are transient and only worth the terminal's
	// attention; a pipe or log file gets the final Summary instead.
	if !r.interactive {
		return
	}
	fmt.Fprintf(r.out, "%s/%s: delivered %d message%s (%s)\n",
		account, folder, delivered, plural(delivered), humanize.Bytes(uint64(bytes)))
}

// ReportLines emits the list/count sub-action output collected for one
// account. Porcelain mode passes each line through unchanged (spec.md
// §6 guarantees `<count> <folder>` and folder names as stable,
// script-parseable text); human mode just prints them, one per line,
// since count/list lines are already reader-friendly.
func (r *Reporter) ReportLines(lines []string) {
	if r.cfg.Quiet {
		return
	}
	for _, line := range lines {
		fmt.Fprintln(r.out, line)
	}
}

// Summary renders the cycle's final outcome: per-account telemetry
// counters, routed to stdout on success and stderr on failure, then
// dispatches the configured success/failure hook and desktop
// notification. It always runs, even under Quiet, because a caller
// relying on NotifyFailure to learn about trouble must not have that
// silenced by the same flag that silences progress chatter.
func (r *Reporter) Summary(cr *orchestrate.CycleResult) {
	failed := cr.Failed()
	w := r.out
	if failed {
		w = r.err
	}

	if !r.cfg.Quiet {
		for _, ar := range cr.Accounts {
			fmt.Fprintf(w, "%s: delivered=%d marked=%d trashed=%d deleted=%d errors=%d\n",
				ar.Account, ar.Telemetry.Delivered, ar.Telemetry.Marked,
				ar.Telemetry.Trashed, ar.Telemetry.Deleted, len(ar.Telemetry.Errors))
			for _, e := range ar.Telemetry.Errors {
				fmt.Fprintf(w, "  %s\n", e)
			}
		}
	}

	r.notify(cr, failed)
}

func (r *Reporter) notify(cr *orchestrate.CycleResult, failed bool) {
	if r.hooks == nil {
		return
	}
	title := "inboxctl cycle succeeded"
	body := summaryBody(cr)
	if failed {
		title = "inboxctl cycle failed"
	}

	if failed && r.cfg.NotifyFailure {
		r.hooks.NotifyDesktop("mail.error", "inboxctl", title, body)
		r.hooks.RunHook(r.cfg.FailureCmd, title, body)
	}
	if !failed && r.cfg.NotifySuccess {
		r.hooks.NotifyDesktop("mail", "inboxctl", title, body)
		r.hooks.RunHook(r.cfg.SuccessCmd, title, body)
	}
}

func summaryBody(cr *orchestrate.CycleResult) string {
	var delivered int
	for _, ar := range cr.Accounts {
		delivered += ar.Telemetry.Delivered
	}
	return fmt.Sprintf("%d account(s), %d message(s) delivered", len(cr.Accounts), delivered)
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
