package main

import (
	"flag"
	"fmt"
	"time"

	"github.com/nugget/inboxctl/internal/config"
)

// globalFlags holds every connection/folder/filter/batching/polling/
// reporting/debug option spec.md §9's option table enumerates. A single
// FlagSet instance is shared by every invocation shape (a lone
// sub-command or for-each's shared prefix), since those options name
// one account, not one action.
type globalFlags struct {
	configPath string

	host       string
	port       int
	transport  string
	user       string
	password   string
	passFile   string
	passCmd    string
	passPin    bool
	allowLogin bool
	allowPlain bool
	timeout    time.Duration

	storeNumber int
	fetchNumber int
	batchNumber int
	batchSize   int

	allFolders bool
	folders    stringList
	exclude    stringList

	seen               string
	flagged            string
	from               stringList
	notFrom            stringList
	olderDays          intList
	olderFile          stringList
	olderTimestampFile stringList
	newerDays          intList
	newerFile          stringList
	newerTimestampFile stringList

	everySec  int
	jitterSec int

	quiet         bool
	porcelain     bool
	notifySuccess bool
	notifyFailure bool
	successCmd    string
	failureCmd    string
	notifier      string

	dryRun     bool
	veryDryRun bool
	trace      bool
}

func newGlobalFlagSet(name string) (*flag.FlagSet, *globalFlags) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	g := &globalFlags{}

	fs.StringVar(&g.configPath, "config", "", "load accounts/actions from a YAML config file instead of flags")

	fs.StringVar(&g.host, "host", "", "IMAP server hostname")
	fs.IntVar(&g.port, "port", 0, "IMAP server port (defaults by transport)")
	fs.StringVar(&g.transport, "transport", "ssl", "plain, starttls, or ssl")
	fs.StringVar(&g.user, "user", "", "IMAP login user")
	fs.StringVar(&g.password, "password", "", "IMAP password, verbatim")
	fs.StringVar(&g.passFile, "password-file", "", "read password from this file's first line")
	fs.StringVar(&g.passCmd, "password-command", "", "run this shell command and read its first stdout line as the password")
	fs.BoolVar(&g.passPin, "password-pinentry", false, "prompt for the password via pinentry")
	fs.BoolVar(&g.allowLogin, "allow-login", true, "permit the LOGIN command when CRAM-MD5 is unavailable")
	fs.BoolVar(&g.allowPlain, "allow-plain", false, "permit LOGIN/plaintext auth over an unencrypted transport")
	fs.DurationVar(&g.timeout, "timeout", 30*time.Second, "socket timeout")

	fs.IntVar(&g.storeNumber, "store-number", 0, "max UIDs per STORE command (0 = default)")
	fs.IntVar(&g.fetchNumber, "fetch-number", 0, "max UIDs per size-probing FETCH command (0 = default)")
	fs.IntVar(&g.batchNumber, "batch-number", 0, "max messages per delivery batch (0 = default)")
	fs.IntVar(&g.batchSize, "batch-size", 0, "max bytes per delivery batch (0 = default)")

	fs.BoolVar(&g.allFolders, "all-folders", false, "visit every selectable folder instead of INBOX")
	fs.Var(&g.folders, "folder", "folder to visit (repeatable; default INBOX)")
	fs.Var(&g.exclude, "exclude-folder", "folder to skip when -all-folders is set (repeatable)")

	fs.StringVar(&g.seen, "seen", "", "yes/no: require messages be seen/unseen")
	fs.StringVar(&g.flagged, "flagged", "", "yes/no: require messages be flagged/unflagged")
	fs.Var(&g.from, "from", "require From: header to contain this substring (repeatable; every given substring must match)")
	fs.Var(&g.notFrom, "not-from", "exclude messages whose From: header contains this substring (repeatable)")
	fs.Var(&g.olderDays, "older-than-days", "require messages older than this many days (repeatable)")
	fs.Var(&g.olderFile, "older-than-file", "require messages older than this file's mtime (repeatable)")
	fs.Var(&g.olderTimestampFile, "older-than-timestamp-in", "require messages older than the Unix timestamp on this file's first line (repeatable)")
	fs.Var(&g.newerDays, "newer-than-days", "require messages newer than this many days (repeatable)")
	fs.Var(&g.newerFile, "newer-than-file", "require messages newer than this file's mtime (repeatable)")
	fs.Var(&g.newerTimestampFile, "newer-than-timestamp-in", "require messages newer than the Unix timestamp on this file's first line (repeatable)")

	fs.IntVar(&g.everySec, "every", 0, "re-run the cycle every N seconds instead of once")
	fs.IntVar(&g.jitterSec, "jitter", 60, "add up to N seconds of random jitter to the inter-cycle sleep")

	fs.BoolVar(&g.quiet, "quiet", false, "suppress progress and summary text (notifications still fire)")
	fs.BoolVar(&g.porcelain, "porcelain", false, "stable machine-readable output for list/count")
	fs.BoolVar(&g.notifySuccess, "notify-success", false, "run -success-cmd and notify the desktop on a clean cycle")
	fs.BoolVar(&g.notifyFailure, "notify-failure", false, "run -failure-cmd and notify the desktop when a cycle records an error")
	fs.StringVar(&g.successCmd, "success-cmd", "", "shell command run on cycle success when -notify-success is set")
	fs.StringVar(&g.failureCmd, "failure-cmd", "", "shell command run on cycle failure when -notify-failure is set")
	fs.StringVar(&g.notifier, "notifier", "", "desktop notifier binary (e.g. notify-send); empty disables desktop notifications")

	fs.BoolVar(&g.dryRun, "dry-run", false, "connect and search, but make no changes on the server")
	fs.BoolVar(&g.veryDryRun, "very-dry-run", false, "describe the plan and exit 1 without contacting the server")
	fs.BoolVar(&g.trace, "trace", false, "log the raw IMAP wire protocol")

	return fs, g
}

// filterConfig translates the filter-related flags into the YAML
// shape, so a flag-built invocation and a config-file invocation share
// exactly the same downstream resolution path (internal/filter.FromConfig).
func (g *globalFlags) filterConfig() config.FilterConfig {
	return config.FilterConfig{
		Seen:                   config.Tri(g.seen),
		Flagged:                config.Tri(g.flagged),
		FromIncludes:           []string(g.from),
		FromExcludes:           []string(g.notFrom),
		OlderThanDays:          []int(g.olderDays),
		OlderThanFile:          []string(g.olderFile),
		OlderThanTimestampFile: []string(g.olderTimestampFile),
		NewerThanDays:          []int(g.newerDays),
		NewerThanFile:          []string(g.newerFile),
		NewerThanTimestampFile: []string(g.newerTimestampFile),
	}
}

func (g *globalFlags) folderConfig() config.FoldersConfig {
	return config.FoldersConfig{
		All:     g.allFolders,
		Include: []string(g.folders),
		Exclude: []string(g.exclude),
	}
}

func (g *globalFlags) batchingConfig() config.BatchingConfig {
	return config.BatchingConfig{
		StoreNumber: g.storeNumber,
		FetchNumber: g.fetchNumber,
		BatchNumber: g.batchNumber,
		BatchSize:   g.batchSize,
	}
}

func (g *globalFlags) reportingConfig() config.ReportingConfig {
	var successCmd, failureCmd []string
	if g.successCmd != "" {
		successCmd = []string{g.successCmd}
	}
	if g.failureCmd != "" {
		failureCmd = []string{g.failureCmd}
	}
	return config.ReportingConfig{
		Quiet:         g.quiet,
		Porcelain:     g.porcelain,
		NotifySuccess: g.notifySuccess,
		NotifyFailure: g.notifyFailure,
		SuccessCmd:    successCmd,
		FailureCmd:    failureCmd,
	}
}

// account builds the single AccountConfig a flag-driven (non -config)
// invocation describes, with actions filled in by the caller.
func (g *globalFlags) account(actions []config.ActionConfig) config.AccountConfig {
	return config.AccountConfig{
		Name:         g.host,
		Transport:    config.Transport(g.transport),
		Host:         g.host,
		Port:         g.port,
		User:         g.user,
		Password:     g.password,
		PasswordFile: g.passFile,
		PasswordPin:  g.passPin,
		PasswordCmd:  g.passCmd,
		AllowLogin:   g.allowLogin,
		AllowPlain:   g.allowPlain,
		TimeoutSec:   int(g.timeout / time.Second),
		Folders:      g.folderConfig(),
		Filter:       g.filterConfig(),
		Actions:      actions,
	}
}

// config assembles the top-level Config for a flag-driven invocation
// around one account running actions.
func (g *globalFlags) config(actions []config.ActionConfig) *config.Config {
	cfg := &config.Config{
		Accounts:   []config.AccountConfig{g.account(actions)},
		Batching:   g.batchingConfig(),
		Polling:    config.PollingConfig{EverySec: g.everySec, JitterSec: g.jitterSec},
		Reporting:  g.reportingConfig(),
		DryRun:     g.dryRun,
		VeryDryRun: g.veryDryRun,
		Trace:      g.trace,
	}
	cfg.ApplyDefaults()
	return cfg
}

// parseActionArgs consumes one ARG segment of a for-each invocation (or
// the single sub-command of a direct invocation): the kind name plus
// that kind's own options, per spec.md §6.
func parseActionArgs(kind string, args []string) (config.ActionConfig, []string, error) {
	switch kind {
	case "list":
		return config.ActionConfig{Kind: config.ActionList}, args, nil

	case "count":
		return config.ActionConfig{Kind: config.ActionCount}, args, nil

	case "mark":
		if len(args) == 0 {
			return config.ActionConfig{}, nil, fmt.Errorf("mark requires a target: seen, unseen, flagged, or unflagged")
		}
		target := args[0]
		switch target {
		case "seen", "unseen", "flagged", "unflagged":
		default:
			return config.ActionConfig{}, nil, fmt.Errorf("mark: unknown target %q", target)
		}
		return config.ActionConfig{Kind: config.ActionMark, Mark: config.Marking(target)}, args[1:], nil

	case "fetch":
		fs := flag.NewFlagSet("fetch", flag.ContinueOnError)
		maildir := fs.String("maildir", "", "deliver to this maildir directory")
		mda := fs.String("mda-command", "", "pipe each message to this command instead of a maildir")
		mode := fs.String("delivery-mode", string(config.DeliveryCareful), "yolo, careful, or paranoid")
		mark := fs.String("fetch-mark", string(config.MarkAuto), "seen, unseen, flagged, unflagged, noop, or auto")
		hook := fs.String("new-mail-hook", "", "shell command run once per cycle if any message was delivered")
		if err := fs.Parse(args); err != nil {
			return config.ActionConfig{}, nil, err
		}
		var hookArgv []string
		if *hook != "" {
			hookArgv = []string{*hook}
		}
		return config.ActionConfig{
			Kind:        config.ActionFetch,
			Maildir:     *maildir,
			MDACommand:  *mda,
			Paranoid:    config.DeliveryMode(*mode),
			FetchMark:   config.Marking(*mark),
			NewMailHook: hookArgv,
		}, fs.Args(), nil

	case "delete":
		fs := flag.NewFlagSet("delete", flag.ContinueOnError)
		method := fs.String("delete-method", string(config.DeleteAuto), "auto, delete, delete-noexpunge, or gmail-trash")
		if err := fs.Parse(args); err != nil {
			return config.ActionConfig{}, nil, err
		}
		return config.ActionConfig{Kind: config.ActionDelete, DeleteMethod: config.DeleteMethod(*method)}, fs.Args(), nil

	default:
		return config.ActionConfig{}, nil, fmt.Errorf("unknown action %q", kind)
	}
}

// splitForEach breaks a for-each invocation's trailing arguments into
// ARG segments at each literal ";" token (the shell delivers "\;" as a
// bare ";" once escaping is removed, the same convention find -exec uses).
func splitForEach(args []string) [][]string {
	var segments [][]string
	var current []string
	for _, a := range args {
		if a == ";" || a == "\\;" {
			segments = append(segments, current)
			current = nil
			continue
		}
		current = append(current, a)
	}
	if len(current) > 0 {
		segments = append(segments, current)
	}
	return segments
}
