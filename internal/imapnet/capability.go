package imapnet

import (
	"fmt"
	"strings"
)

// Capabilities is the set of capability tokens the server advertised,
// keyed upper-case for case-insensitive lookup.
type Capabilities map[string]bool

// Has reports whether the server advertised tok (case-insensitive).
func (c Capabilities) Has(tok string) bool {
	return c[strings.ToUpper(tok)]
}

// Capability issues CAPABILITY and requires IMAP4rev1 among the
// response, per spec.md §4.2's capability handshake.
func (s *Session) Capability() (Capabilities, error) {
	resp, err := s.Command("CAPABILITY")
	if err != nil {
		return nil, err
	}
	if !resp.OK {
		return nil, fmt.Errorf("CAPABILITY rejected: %s %s", resp.Status, resp.Text)
	}

	caps := Capabilities{}
	for _, nodes := range resp.Untagged {
		if len(nodes) < 2 || !strings.EqualFold(nodes[1].Text(), "CAPABILITY") {
			continue
		}
		for _, n := range nodes[2:] {
			caps[strings.ToUpper(n.Text())] = true
		}
	}

	if !caps.Has("IMAP4rev1") {
		return caps, fmt.Errorf("server did not advertise IMAP4rev1 capability")
	}
	return caps, nil
}
