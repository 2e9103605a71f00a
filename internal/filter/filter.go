// Package filter renders a message-selection FilterSpec into the IMAP
// SEARCH query string spec.md §4.9 requires: a deterministic, testable
// term order rather than whatever order a caller happened to populate
// the spec's slices in. It does no I/O; internal/mailbox hands the
// rendered string straight to a UID SEARCH command.
package filter

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/nugget/inboxctl/internal/config"
	"github.com/nugget/inboxctl/internal/wire"
)

// Spec is the resolved, immutable selection criteria for one SEARCH.
// It is built once per sub-action invocation from config.FilterConfig
// plus the clock, and re-rendered (via Render) before every folder's
// SEARCH so that day-relative terms stay correct across a long cycle.
type Spec struct {
	Seen    config.Tri
	Flagged config.Tri

	FromIncludes []string
	FromExcludes []string

	// OlderThanDays/NewerThanDays are day counts; OlderThanFiles/
	// NewerThanFiles name files whose mtime is merged in at Render time,
	// and OlderThanTimestampFiles/NewerThanTimestampFiles name files
	// whose first line is a Unix timestamp instead (spec.md §3: "merged
	// with file-derived timestamps, taking the most restrictive bound").
	OlderThanDays           []int
	OlderThanFiles          []string
	OlderThanTimestampFiles []string
	NewerThanDays           []int
	NewerThanFiles          []string
	NewerThanTimestampFiles []string

	// Now is injected for deterministic tests; zero means time.Now.
	Now func() time.Time
}

// FromConfig builds a Spec from the YAML shape.
func FromConfig(c config.FilterConfig) Spec {
	return Spec{
		Seen:                    c.Seen,
		Flagged:                 c.Flagged,
		FromIncludes:            c.FromIncludes,
		FromExcludes:            c.FromExcludes,
		OlderThanDays:           c.OlderThanDays,
		OlderThanFiles:          c.OlderThanFile,
		OlderThanTimestampFiles: c.OlderThanTimestampFile,
		NewerThanDays:           c.NewerThanDays,
		NewerThanFiles:          c.NewerThanFile,
		NewerThanTimestampFiles: c.NewerThanTimestampFile,
	}
}

// Dynamic reports whether Render's output can change between two calls
// at different times — i.e. whether the Orchestrator must re-render
// this Spec between sub-actions within the same cycle (spec.md §4.7).
func (s Spec) Dynamic() bool {
	return len(s.OlderThanDays) > 0 || len(s.OlderThanFiles) > 0 || len(s.OlderThanTimestampFiles) > 0 ||
		len(s.NewerThanDays) > 0 || len(s.NewerThanFiles) > 0 || len(s.NewerThanTimestampFiles) > 0
}

func (s Spec) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Render produces the IMAP SEARCH query string for this Spec's terms in
// a fixed order: SEEN/UNSEEN, FLAGGED/UNFLAGGED, FROM includes, NOT FROM
// excludes, BEFORE, NOT BEFORE. An empty Spec renders "ALL" (wrapped, to
// satisfy SEARCH's one-argument-minimum grammar, as "(ALL)"); a
// non-empty Spec's terms are parenthesised together.
func (s Spec) Render() string {
	var terms []string

	switch s.Seen {
	case config.TriTrue:
		terms = append(terms, "SEEN")
	case config.TriFalse:
		terms = append(terms, "UNSEEN")
	}
	switch s.Flagged {
	case config.TriTrue:
		terms = append(terms, "FLAGGED")
	case config.TriFalse:
		terms = append(terms, "UNFLAGGED")
	}
	for _, from := range s.FromIncludes {
		terms = append(terms, fmt.Sprintf("FROM %s", wire.Quote(from)))
	}
	for _, from := range s.FromExcludes {
		terms = append(terms, fmt.Sprintf("NOT FROM %s", wire.Quote(from)))
	}

	if before, ok := s.beforeDate(); ok {
		terms = append(terms, fmt.Sprintf("BEFORE %s", wire.Quote(wire.FormatDate(before.UTC()))))
	}
	if after, ok := s.notBeforeDate(); ok {
		terms = append(terms, fmt.Sprintf("NOT BEFORE %s", wire.Quote(wire.FormatDate(after.UTC()))))
	}

	if len(terms) == 0 {
		return "(ALL)"
	}
	return "(" + strings.Join(terms, " ") + ")"
}

// beforeDate AND-merges every older-than bound (day counts and file
// mtimes) into the single earliest candidate date: a message is older
// than every configured bound iff it is older than the earliest one, so
// the earliest date is the one BEFORE term that represents all of them.
func (s Spec) beforeDate() (time.Time, bool) {
	var candidates []time.Time
	now := s.now()
	for _, d := range s.OlderThanDays {
		candidates = append(candidates, now.AddDate(0, 0, -d))
	}
	for _, f := range s.OlderThanFiles {
		if t, ok := fileModTime(f); ok {
			candidates = append(candidates, t)
		}
	}
	for _, f := range s.OlderThanTimestampFiles {
		if t, ok := fileTimestamp(f); ok {
			candidates = append(candidates, t)
		}
	}
	if len(candidates) == 0 {
		return time.Time{}, false
	}
	earliest := candidates[0]
	for _, c := range candidates[1:] {
		if c.Before(earliest) {
			earliest = c
		}
	}
	return earliest, true
}

// notBeforeDate is beforeDate's mirror for the newer-than bound: a
// message is newer than every configured bound iff it is newer than the
// latest one, so the latest candidate date represents all of them.
func (s Spec) notBeforeDate() (time.Time, bool) {
	var candidates []time.Time
	now := s.now()
	for _, d := range s.NewerThanDays {
		candidates = append(candidates, now.AddDate(0, 0, -d))
	}
	for _, f := range s.NewerThanFiles {
		if t, ok := fileModTime(f); ok {
			candidates = append(candidates, t)
		}
	}
	for _, f := range s.NewerThanTimestampFiles {
		if t, ok := fileTimestamp(f); ok {
			candidates = append(candidates, t)
		}
	}
	if len(candidates) == 0 {
		return time.Time{}, false
	}
	latest := candidates[0]
	for _, c := range candidates[1:] {
		if c.After(latest) {
			latest = c
		}
	}
	return latest, true
}

func fileModTime(path string) (time.Time, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, false
	}
	return info.ModTime(), true
}

// fileTimestamp reads a Unix timestamp (seconds since the epoch,
// optionally fractional) from a file's first line, the --older/newer
// -than-timestamp-in source the mtime-based fileModTime doesn't cover.
func fileTimestamp(path string) (time.Time, bool) {
	f, err := os.Open(path)
	if err != nil {
		return time.Time{}, false
	}
	defer f.Close()

	line, err := bufio.NewReader(f).ReadString('\n')
	if err != nil && line == "" {
		return time.Time{}, false
	}
	secs, err := strconv.ParseFloat(strings.TrimSpace(line), 64)
	if err != nil {
		return time.Time{}, false
	}
	whole := int64(secs)
	frac := secs - float64(whole)
	return time.Unix(whole, int64(frac*1e9)), true
}
