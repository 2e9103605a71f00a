// Package orchestrate runs one polling cycle: for each configured
// account, connect and authenticate once, visit every selected folder,
// run the account's ordered sub-action sequence against each, logout,
// then dispatch the cycle's deduplicated new-mail hooks (spec.md §4.7).
package orchestrate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/nugget/inboxctl/internal/action"
	"github.com/nugget/inboxctl/internal/config"
	"github.com/nugget/inboxctl/internal/deliver"
	"github.com/nugget/inboxctl/internal/filter"
	"github.com/nugget/inboxctl/internal/hookrun"
	"github.com/nugget/inboxctl/internal/imapnet"
	"github.com/nugget/inboxctl/internal/mailbox"
	"github.com/nugget/inboxctl/internal/result"
	"github.com/nugget/inboxctl/internal/schedule"
)

const traceLevel = config.LevelTrace

// AccountResult is one account's outcome for a cycle: its accumulated
// telemetry (spec.md §3: "an account's telemetry counters for a cycle
// equal the sum of contributions from each folder visited") and any
// list/count report lines in folder-visit order.
type AccountResult struct {
	Account   string
	Telemetry action.Telemetry
	Lines     []string
}

// CycleResult is the aggregate outcome of one cycle.
type CycleResult struct {
	ID       string
	Accounts []AccountResult
}

// Failed reports whether any account recorded an error this cycle.
func (r *CycleResult) Failed() bool {
	for i := range r.Accounts {
		if r.Accounts[i].Telemetry.Failed() {
			return true
		}
	}
	return false
}

// Dialer abstracts session establishment so tests can substitute a
// fake IMAP server instead of dialing a real socket.
type Dialer func(opts imapnet.Options) (*imapnet.Session, error)

// Orchestrator is the component described above.
type Orchestrator struct {
	logger   *slog.Logger
	dial     Dialer
	hooks    *hookrun.Runner
	progress func(account, folder string, delivered, bytes int)
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithDialer overrides session establishment, for tests.
func WithDialer(d Dialer) Option {
	return func(o *Orchestrator) { o.dial = d }
}

// WithProgress registers a callback invoked once per fetch batch,
// named by account and folder, for the Reporter's per-batch line.
func WithProgress(fn func(account, folder string, delivered, bytes int)) Option {
	return func(o *Orchestrator) { o.progress = fn }
}

// New builds an Orchestrator. hooks may be nil if no new-mail hooks
// are ever configured.
func New(logger *slog.Logger, hooks *hookrun.Runner, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{
		logger: logger,
		dial:   imapnet.Dial,
		hooks:  hooks,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes one cycle against every account in cfg, honoring tok at
// the safe points spec.md §4.6 names (before contacting each account,
// before processing each folder).
func (o *Orchestrator) Run(tok schedule.Token, cfg *config.Config) (*CycleResult, error) {
	id := uuid.NewString()
	logger := o.logger.With("cycle_id", id)
	cr := &CycleResult{ID: id}

	var pendingHooks [][]string
	seenHooks := make(map[string]bool)

	for _, acct := range cfg.Accounts {
		if tok.Cancelled() {
			logger.Info("cycle cancelled before account", "account", acct.Name)
			break
		}

		ar := o.runAccount(tok, logger, acct, cfg.DryRun, cfg.Trace, &pendingHooks, seenHooks)
		cr.Accounts = append(cr.Accounts, ar)
	}

	if o.hooks != nil {
		for _, h := range pendingHooks {
			o.hooks.RunHook(h, "new mail", "new messages delivered")
		}
	}

	return cr, nil
}

func (o *Orchestrator) runAccount(tok schedule.Token, logger *slog.Logger, acct config.AccountConfig, dryRun, trace bool, pendingHooks *[][]string, seenHooks map[string]bool) AccountResult {
	ar := AccountResult{Account: acct.Name}
	tel := &ar.Telemetry

	secret, err := hookrun.ResolveSecret(acct).Password()
	if err != nil {
		scoped := result.New(result.Account, "secret", err).With(acct.Name, "")
		tel.AddError(scoped)
		logger.Error("account secret resolution failed", "account", acct.Name, "error", scoped)
		return ar
	}

	var traceFn imapnet.TraceFunc
	if trace {
		traceFn = func(direction byte, line string) {
			logger.Log(context.Background(), traceLevel, "wire", "account", acct.Name, "dir", string(direction), "line", line)
		}
	}

	s, err := o.dial(imapnet.Options{
		Transport: acct.Transport,
		Host:      acct.Host,
		Port:      acct.Port,
		Timeout:   acct.Timeout(),
		Trace:     traceFn,
		Logger:    logger,
	})
	if err != nil {
		scoped := result.New(result.Account, "connect", err).With(acct.Name, "")
		tel.AddError(scoped)
		logger.Error("account connect failed", "account", acct.Name, "error", scoped)
		return ar
	}
	defer s.Logout()

	caps, err := s.Capability()
	if err != nil {
		scoped := result.New(result.Account, "capability", err).With(acct.Name, "")
		tel.AddError(scoped)
		logger.Error("account capability failed", "account", acct.Name, "error", scoped)
		return ar
	}
	allowLogin := acct.AllowLogin && (acct.Transport != config.TransportPlain || acct.AllowPlain)
	if err := s.Authenticate(caps, acct.User, secret, allowLogin); err != nil {
		scoped := result.New(result.Account, "auth", err).With(acct.Name, "")
		tel.AddError(scoped)
		logger.Error("account authentication failed", "account", acct.Name, "error", scoped)
		return ar
	}

	folders, err := resolveFolders(s, acct)
	if err != nil {
		scoped := result.New(result.Account, "list-folders", err).With(acct.Name, "")
		tel.AddError(scoped)
		logger.Error("account folder listing failed", "account", acct.Name, "error", scoped)
		return ar
	}

	for _, folder := range folders {
		if tok.Cancelled() {
			logger.Info("cycle cancelled before folder", "account", acct.Name, "folder", folder)
			break
		}
		o.runFolder(tok, logger, s, acct, folder, tel, &ar, dryRun, pendingHooks, seenHooks)
	}

	return ar
}

func (o *Orchestrator) runFolder(tok schedule.Token, logger *slog.Logger, s *imapnet.Session, acct config.AccountConfig, folder string, tel *action.Telemetry, ar *AccountResult, dryRun bool, pendingHooks *[][]string, seenHooks map[string]bool) {
	if _, err := mailbox.Select(s, acct.Name, folder); err != nil {
		tel.AddError(err)
		logger.Warn("folder select failed, skipping", "account", acct.Name, "folder", folder, "error", err)
		return
	}
	defer func() {
		if err := mailbox.Close(s, acct.Name, folder); err != nil {
			tel.AddError(err)
		}
	}()

	for _, act := range acct.Actions {
		// The filter is re-rendered fresh for every sub-action so a
		// time-dependent bound (older-than/newer-than) reflects the
		// cycle's current instant rather than a value cached earlier.
		fs := filter.FromConfig(acct.Filter)

		var onProgress func(folder string, delivered, bytes int)
		if o.progress != nil {
			onProgress = func(folder string, delivered, bytes int) {
				o.progress(acct.Name, folder, delivered, bytes)
			}
		}

		if dryRun && (act.Kind == config.ActionMark || act.Kind == config.ActionDelete) {
			logger.Info("dry-run: skipping server-mutating action", "account", acct.Name, "folder", folder, "action", act.Kind)
			continue
		}

		lines, hooks, err := runSubAction(tok, s, acct, folder, act, fs, tel, onProgress, dryRun)
		ar.Lines = append(ar.Lines, lines...)
		for _, h := range hooks {
			key := strings.Join(h, "\x00")
			if !seenHooks[key] {
				seenHooks[key] = true
				*pendingHooks = append(*pendingHooks, h)
			}
		}
		if err != nil {
			logger.Warn("sub-action failed", "account", acct.Name, "folder", folder, "action", act.Kind, "error", err)
		}
	}
}

// runSubAction dispatches a single ActionConfig entry against the
// session's currently-selected folder. progress, if non-nil, is called
// once per fetch batch with (folder, delivered count, bytes).
func runSubAction(tok schedule.Token, s *imapnet.Session, acct config.AccountConfig, folder string, act config.ActionConfig, fs filter.Spec, tel *action.Telemetry, progress func(folder string, delivered, bytes int), dryRun bool) (lines []string, hooks [][]string, err error) {
	query := fs.Render()
	batching := acct.Batching

	switch act.Kind {
	case config.ActionList:
		names, err := action.List(s, acct.Name, tel)
		return names, nil, err

	case config.ActionCount:
		n, err := action.Count(s, acct.Name, folder, query, tel)
		if err != nil {
			return nil, nil, err
		}
		return []string{fmt.Sprintf("%d %s", n, folder)}, nil, nil

	case config.ActionMark:
		err := action.Mark(s, acct.Name, folder, query, act.Mark, batching.StoreNumber, tel)
		return nil, nil, err

	case config.ActionDelete:
		err := action.Delete(s, acct.Name, folder, query, act.DeleteMethod, acct.Host, tel)
		return nil, nil, err

	case config.ActionFetch:
		d, err := buildDeliverer(act)
		if err != nil {
			scoped := result.New(result.Account, "fetch-config", err).With(acct.Name, folder)
			tel.AddError(scoped)
			return nil, nil, scoped
		}
		mark := act.FetchMark
		if dryRun {
			// Fetch still retrieves and delivers locally under dry-run;
			// only the server-side STORE that marks messages is a
			// mutation, so it is the part dry-run suppresses.
			mark = config.MarkNoop
		}
		cfg := action.FetchConfig{
			FetchNumber: batching.FetchNumber,
			BatchNumber: batching.BatchNumber,
			BatchSize:   batching.BatchSize,
			StoreNumber: batching.StoreNumber,
			Mode:        act.Paranoid,
			Mark:        mark,
			NewMailHook: act.NewMailHook,
		}
		if progress != nil {
			cfg.Progress = func(delivered, bytes int) { progress(folder, delivered, bytes) }
		}
		cfg.Cancelled = tok.Cancelled
		hooks, err := action.Fetch(s, acct.Name, folder, query, fs.Seen, fs.Flagged, cfg, d, tel)
		return nil, hooks, err

	default:
		return nil, nil, fmt.Errorf("unknown action kind %q", act.Kind)
	}
}

// buildDeliverer picks the fetch action's Deliverer per spec.md §3's
// mutually-exclusive maildir/mda_command option.
func buildDeliverer(act config.ActionConfig) (deliver.Deliverer, error) {
	switch {
	case act.Maildir != "":
		return &deliver.Maildir{Root: act.Maildir}, nil
	case act.MDACommand != "":
		return &deliver.MDA{Command: act.MDACommand}, nil
	default:
		return nil, fmt.Errorf("fetch action requires maildir or mda_command")
	}
}

// resolveFolders applies spec.md §3's FoldersConfig: All lists every
// selectable folder minus Exclude; otherwise Include names them
// directly; with neither set, INBOX is the default.
func resolveFolders(s *imapnet.Session, acct config.AccountConfig) ([]string, error) {
	if acct.Folders.All {
		all, err := mailbox.ListFolders(s, acct.Name)
		if err != nil {
			return nil, err
		}
		excl := make(map[string]bool, len(acct.Folders.Exclude))
		for _, f := range acct.Folders.Exclude {
			excl[f] = true
		}
		var names []string
		for _, f := range all {
			if f.Selectable && !excl[f.Name] {
				names = append(names, f.Name)
			}
		}
		return names, nil
	}
	if len(acct.Folders.Include) > 0 {
		return acct.Folders.Include, nil
	}
	return []string{"INBOX"}, nil
}
