// Package config loads and validates inboxctl's per-invocation
// configuration: accounts, the filter/action to run, batching knobs, and
// reporting/polling options.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order. An explicit
// path (from -config) is checked first by FindConfig; this is the
// fallback order when none is given.
func DefaultSearchPaths() []string {
	paths := []string{"inboxctl.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "inboxctl", "config.yaml"))
	}

	paths = append(paths, "/etc/inboxctl/config.yaml")
	return paths
}

// searchPathsFunc is overridden in tests to avoid matching real config
// files on the developer/deploy machine.
var searchPathsFunc = DefaultSearchPaths

// FindConfig locates a config file. If explicit is non-empty, it must
// exist. Otherwise searches searchPathsFunc() and returns the first hit.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	paths := searchPathsFunc()
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", paths)
}

// Transport selects how the Connection dials the server (spec.md §3).
type Transport string

const (
	TransportPlain    Transport = "plain"
	TransportStartTLS Transport = "starttls"
	TransportSSL      Transport = "ssl"
)

// Tri is a three-valued predicate: unset / require-true / require-false.
type Tri string

const (
	TriUnset   Tri = ""
	TriTrue    Tri = "yes"
	TriFalse   Tri = "no"
)

// Config is the top-level, per-invocation configuration: one or more
// accounts plus the action each one runs this cycle.
type Config struct {
	Accounts []AccountConfig `yaml:"accounts"`

	// Batching is the default batching policy, overridable per account.
	Batching BatchingConfig `yaml:"batching"`

	// Polling controls the Scheduler (spec.md §4.6). Every == 0 means
	// single-shot: run once and return.
	Polling PollingConfig `yaml:"polling"`

	Reporting ReportingConfig `yaml:"reporting"`

	DryRun     bool `yaml:"-"`
	VeryDryRun bool `yaml:"-"`
	Trace      bool `yaml:"-"`
}

// AccountConfig is the YAML shape of spec.md's immutable Account
// descriptor plus the per-account action to run.
type AccountConfig struct {
	Name string `yaml:"name"`

	Transport Transport `yaml:"transport"`
	Host      string    `yaml:"host"`
	Port      int       `yaml:"port"`
	User      string    `yaml:"user"`

	// Secret acquisition: exactly one should be set. Password is used
	// verbatim if present (e.g. from an already-expanded ${VAR}); the
	// others name an external collaborator (spec.md §1) invoked lazily.
	Password      string `yaml:"password"`
	PasswordFile  string `yaml:"password_file"`
	PasswordPin   bool   `yaml:"password_pinentry"`
	PasswordCmd   string `yaml:"password_command"`

	AllowLogin bool `yaml:"allow_login"`
	AllowPlain bool `yaml:"allow_plain"`

	TimeoutSec int `yaml:"timeout_sec"`

	Batching *BatchingConfig `yaml:"batching"`

	Folders FoldersConfig `yaml:"folders"`
	Filter  FilterConfig  `yaml:"filter"`

	// Actions is the ordered sub-action sequence run against this
	// account each cycle (spec.md §4.7 Orchestrator); a single-action
	// invocation (e.g. `count`) populates this with one entry.
	Actions []ActionConfig `yaml:"actions"`
}

// Timeout returns the configured socket timeout, defaulting to 30s.
func (a AccountConfig) Timeout() time.Duration {
	if a.TimeoutSec <= 0 {
		return 30 * time.Second
	}
	return time.Duration(a.TimeoutSec) * time.Second
}

// BatchingConfig holds the four knobs spec.md §9 enumerates.
type BatchingConfig struct {
	StoreNumber int `yaml:"store_number"`
	FetchNumber int `yaml:"fetch_number"`
	BatchNumber int `yaml:"batch_number"`
	BatchSize   int `yaml:"batch_size"`
}

// FoldersConfig selects which folders an action iterates.
type FoldersConfig struct {
	All     bool     `yaml:"all"`
	Include []string `yaml:"include"`
	Exclude []string `yaml:"exclude"`
}

// FilterConfig is the YAML shape of a FilterSpec (spec.md §3).
type FilterConfig struct {
	Seen    Tri `yaml:"seen"`
	Flagged Tri `yaml:"flagged"`

	FromIncludes []string `yaml:"from_includes"`
	FromExcludes []string `yaml:"from_excludes"`

	OlderThanDays          []int    `yaml:"older_than_days"`
	OlderThanFile          []string `yaml:"older_than_file"`
	OlderThanTimestampFile []string `yaml:"older_than_timestamp_file"`
	NewerThanDays          []int    `yaml:"newer_than_days"`
	NewerThanFile          []string `yaml:"newer_than_file"`
	NewerThanTimestampFile []string `yaml:"newer_than_timestamp_file"`
}

// ActionKind enumerates spec.md §3's ActionSpec variants.
type ActionKind string

const (
	ActionList   ActionKind = "list"
	ActionCount  ActionKind = "count"
	ActionMark   ActionKind = "mark"
	ActionFetch  ActionKind = "fetch"
	ActionDelete ActionKind = "delete"
)

// Marking enumerates mark targets and the fetch post-delivery marking.
type Marking string

const (
	MarkAuto      Marking = "auto"
	MarkNoop      Marking = "noop"
	MarkSeen      Marking = "seen"
	MarkUnseen    Marking = "unseen"
	MarkFlagged   Marking = "flagged"
	MarkUnflagged Marking = "unflagged"
)

// DeleteMethod enumerates spec.md §3's deletion methods.
type DeleteMethod string

const (
	DeleteAuto        DeleteMethod = "auto"
	DeleteExpunge     DeleteMethod = "delete"
	DeleteNoExpunge   DeleteMethod = "delete-noexpunge"
	DeleteGmailTrash  DeleteMethod = "gmail-trash"
)

// DeliveryMode selects the fetch action's per-batch failure tolerance
// (spec.md §4.4 step 7).
type DeliveryMode string

const (
	DeliveryYolo     DeliveryMode = "yolo"
	DeliveryCareful  DeliveryMode = "careful"
	DeliveryParanoid DeliveryMode = "paranoid"
)

// ActionConfig is one entry of an Orchestrator sub-action sequence.
type ActionConfig struct {
	Kind ActionKind `yaml:"kind"`

	// Mark: which flag this mark action sets/clears.
	Mark Marking `yaml:"mark"`

	// Fetch options.
	Maildir     string       `yaml:"maildir"`
	MDACommand  string       `yaml:"mda_command"`
	Paranoid    DeliveryMode `yaml:"delivery_mode"`
	FetchMark   Marking      `yaml:"fetch_mark"`
	NewMailHook []string     `yaml:"new_mail_hooks"`

	// Delete options.
	DeleteMethod DeleteMethod `yaml:"delete_method"`
}

// PollingConfig controls the Scheduler.
type PollingConfig struct {
	EverySec int `yaml:"every_sec"`
	JitterSec int `yaml:"jitter_sec"`
}

// ReportingConfig controls Reporter output.
type ReportingConfig struct {
	Quiet          bool     `yaml:"quiet"`
	Porcelain      bool     `yaml:"porcelain"`
	NotifySuccess  bool     `yaml:"notify_success"`
	NotifyFailure  bool     `yaml:"notify_failure"`
	SuccessCmd     []string `yaml:"success_cmd"`
	FailureCmd     []string `yaml:"failure_cmd"`
	NotifyCommand  string   `yaml:"notify_command"`
}

// Load reads configuration from a YAML file, expands ${VAR} environment
// references, applies defaults, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// ApplyDefaults fills zero-value fields with the spec's defaults.
func (c *Config) ApplyDefaults() {
	if c.Batching.FetchNumber == 0 {
		c.Batching.FetchNumber = 150
	}
	if c.Batching.BatchNumber == 0 {
		c.Batching.BatchNumber = 150
	}
	if c.Batching.BatchSize == 0 {
		c.Batching.BatchSize = 4 * 1024 * 1024
	}
	if c.Batching.StoreNumber == 0 {
		c.Batching.StoreNumber = 150
	}
	if c.Polling.JitterSec == 0 {
		c.Polling.JitterSec = 60
	}

	for i := range c.Accounts {
		a := &c.Accounts[i]
		if a.Transport == "" {
			a.Transport = TransportSSL
		}
		if a.Port == 0 {
			switch a.Transport {
			case TransportSSL:
				a.Port = 993
			default:
				a.Port = 143
			}
		}
		if a.Batching == nil {
			b := c.Batching
			a.Batching = &b
		} else {
			if a.Batching.FetchNumber == 0 {
				a.Batching.FetchNumber = c.Batching.FetchNumber
			}
			if a.Batching.BatchNumber == 0 {
				a.Batching.BatchNumber = c.Batching.BatchNumber
			}
			if a.Batching.BatchSize == 0 {
				a.Batching.BatchSize = c.Batching.BatchSize
			}
			if a.Batching.StoreNumber == 0 {
				a.Batching.StoreNumber = c.Batching.StoreNumber
			}
		}
		for j := range a.Actions {
			act := &a.Actions[j]
			if act.Kind == ActionFetch {
				if act.Paranoid == "" {
					act.Paranoid = DeliveryCareful
				}
				if act.FetchMark == "" {
					act.FetchMark = MarkAuto
				}
			}
			if act.Kind == ActionDelete && act.DeleteMethod == "" {
				act.DeleteMethod = DeleteAuto
			}
		}
	}
}

// Validate checks internal consistency. Runs after ApplyDefaults.
func (c *Config) Validate() error {
	names := make(map[string]bool, len(c.Accounts))
	for i, a := range c.Accounts {
		if a.Name == "" {
			return fmt.Errorf("accounts[%d].name must not be empty", i)
		}
		if names[a.Name] {
			return fmt.Errorf("accounts[%d].name %q is a duplicate", i, a.Name)
		}
		names[a.Name] = true

		if a.Host == "" {
			return fmt.Errorf("accounts[%d] (%s): host is required", i, a.Name)
		}
		if a.User == "" {
			return fmt.Errorf("accounts[%d] (%s): user is required", i, a.Name)
		}
		if a.Port < 1 || a.Port > 65535 {
			return fmt.Errorf("accounts[%d] (%s): port %d out of range (1-65535)", i, a.Name, a.Port)
		}
		switch a.Transport {
		case TransportPlain, TransportStartTLS, TransportSSL:
		default:
			return fmt.Errorf("accounts[%d] (%s): unknown transport %q", i, a.Name, a.Transport)
		}
		for j, act := range a.Actions {
			switch act.Kind {
			case ActionList, ActionCount, ActionMark, ActionFetch, ActionDelete:
			default:
				return fmt.Errorf("accounts[%d] (%s).actions[%d]: unknown kind %q", i, a.Name, j, act.Kind)
			}
			if act.Kind == ActionFetch && act.Maildir != "" && act.MDACommand != "" {
				return fmt.Errorf("accounts[%d] (%s).actions[%d]: maildir and mda_command are mutually exclusive", i, a.Name, j)
			}
		}
	}
	return nil
}
