package filter

import (
	"os"
	"testing"
	"time"

	"github.com/nugget/inboxctl/internal/config"
)

func fixedNow(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestRenderEmptyIsAll(t *testing.T) {
	s := Spec{}
	if got := s.Render(); got != "(ALL)" {
		t.Errorf("Render() = %q, want (ALL)", got)
	}
	if s.Dynamic() {
		t.Error("empty spec should not be dynamic")
	}
}

func TestRenderTermOrder(t *testing.T) {
	s := Spec{
		Seen:         config.TriFalse,
		Flagged:      config.TriTrue,
		FromIncludes: []string{"alice@example.com"},
		FromExcludes: []string{"bots@example.com"},
	}
	got := s.Render()
	want := `(UNSEEN FLAGGED FROM "alice@example.com" NOT FROM "bots@example.com")`
	if got != want {
		t.Errorf("Render() = %q, want %q", got, want)
	}
}

func TestRenderBeforeMergesMultipleDayValues(t *testing.T) {
	now := time.Date(2026, time.July, 31, 12, 0, 0, 0, time.UTC)
	s := Spec{OlderThanDays: []int{30, 7, 90}, Now: fixedNow(now)}
	got := s.Render()
	want := `(BEFORE "2-May-2026")`
	if got != want {
		t.Errorf("Render() = %q, want %q (AND-merge of older-than bounds = earliest/strictest cutoff)", got, want)
	}
}

func TestRenderNewerThanMergesToLatest(t *testing.T) {
	now := time.Date(2026, time.July, 31, 12, 0, 0, 0, time.UTC)
	s := Spec{NewerThanDays: []int{30, 7, 90}, Now: fixedNow(now)}
	got := s.Render()
	want := `(NOT BEFORE "24-Jul-2026")`
	if got != want {
		t.Errorf("Render() = %q, want %q (most restrictive = smallest day count)", got, want)
	}
}

func TestRenderOlderThanFileUsesModTime(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "marker")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	mtime := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	if err := os.Chtimes(f.Name(), mtime, mtime); err != nil {
		t.Fatal(err)
	}

	s := Spec{OlderThanFiles: []string{f.Name()}, Now: fixedNow(time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC))}
	got := s.Render()
	want := `(BEFORE "1-Jan-2026")`
	if got != want {
		t.Errorf("Render() = %q, want %q", got, want)
	}
}

func TestDynamicWithDayWindow(t *testing.T) {
	s := Spec{OlderThanDays: []int{1}}
	if !s.Dynamic() {
		t.Error("spec with older_than_days should be dynamic")
	}
}

func TestRenderOlderThanTimestampFileUsesFirstLine(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "marker")
	if err != nil {
		t.Fatal(err)
	}
	// 2026-01-01T00:00:00Z
	if _, err := f.WriteString("1767225600\n"); err != nil {
		t.Fatal(err)
	}
	f.Close()

	s := Spec{OlderThanTimestampFiles: []string{f.Name()}, Now: fixedNow(time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC))}
	got := s.Render()
	want := `(BEFORE "1-Jan-2026")`
	if got != want {
		t.Errorf("Render() = %q, want %q", got, want)
	}
	if !s.Dynamic() {
		t.Error("spec with older_than_timestamp_in should be dynamic")
	}
}

func TestRenderTimestampFileMergesWithDayCountToMostRestrictive(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "marker")
	if err != nil {
		t.Fatal(err)
	}
	// 2026-07-01T00:00:00Z — newer than the 90-day bound (2026-05-02), so
	// the earlier day-count bound is the more restrictive one and wins.
	if _, err := f.WriteString("1782864000\n"); err != nil {
		t.Fatal(err)
	}
	f.Close()

	now := time.Date(2026, time.July, 31, 0, 0, 0, 0, time.UTC)
	s := Spec{OlderThanDays: []int{90}, OlderThanTimestampFiles: []string{f.Name()}, Now: fixedNow(now)}
	got := s.Render()
	want := `(BEFORE "2-May-2026")`
	if got != want {
		t.Errorf("Render() = %q, want %q (90-day bound is the earlier, stricter bound)", got, want)
	}
}
