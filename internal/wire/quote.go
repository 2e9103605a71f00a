package wire

import (
	"fmt"
	"strings"
	"time"
)

// monthAbbrev are the three-letter English month names IMAP dates use.
var monthAbbrev = [...]string{
	"Jan", "Feb", "Mar", "Apr", "May", "Jun",
	"Jul", "Aug", "Sep", "Oct", "Nov", "Dec",
}

// Quote wraps s in double quotes, escaping backslash and double-quote,
// per the IMAP quoted-string production. Callers pass the result
// directly in a command line; Quote never emits a literal.
func Quote(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\\' || c == '"' {
			b.WriteByte('\\')
		}
		b.WriteByte(c)
	}
	b.WriteByte('"')
	return b.String()
}

// FormatDate renders t as an IMAP date (D-Mon-YYYY, e.g. "3-Jan-2025"),
// using t's own location — callers are expected to have already
// converted to the server's reference timezone (UTC, per spec).
func FormatDate(t time.Time) string {
	return fmt.Sprintf("%d-%s-%04d", t.Day(), monthAbbrev[t.Month()-1], t.Year())
}
