package hookrun

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"time"
)

// hookTimeout bounds how long a user hook or notifier may run before
// it is killed and logged as failed.
const hookTimeout = 30 * time.Second

// Runner dispatches hooks and desktop notifications. Every call is
// fire-and-forget: errors are logged, never returned to the caller,
// matching the "Ignored" error scope spec.md §7 assigns this class of
// failure.
type Runner struct {
	Logger   *slog.Logger
	Notifier string // notifier binary; empty disables NotifyDesktop
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

// RunHook spawns argv[0] with argv[1:] as arguments (a one-element argv
// is run as a command line through `sh -c`), feeding "TITLE\nBODY\n" to
// its standard input. Used for new-mail, success, and failure hooks.
func (r *Runner) RunHook(argv []string, title, body string) {
	if len(argv) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), hookTimeout)
	defer cancel()

	var cmd *exec.Cmd
	if len(argv) == 1 {
		cmd = exec.CommandContext(ctx, "sh", "-c", argv[0])
	} else {
		cmd = exec.CommandContext(ctx, argv[0], argv[1:]...)
	}

	var stdin bytes.Buffer
	fmt.Fprintf(&stdin, "%s\n%s\n", title, body)
	cmd.Stdin = &stdin

	if err := cmd.Run(); err != nil {
		r.logger().Warn("hook command failed", "argv", argv, "error", err)
	}
}

// NotifyDesktop shells out to the configured notifier binary with
// positional arguments (category, app, title, body). A zero-value
// Notifier disables this no-op silently, so hosts without a desktop
// session need no special configuration.
func (r *Runner) NotifyDesktop(category, app, title, body string) {
	if r.Notifier == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), hookTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.Notifier, category, app, title, body)
	if err := cmd.Run(); err != nil {
		r.logger().Warn("desktop notification failed", "notifier", r.Notifier, "error", err)
	}
}
