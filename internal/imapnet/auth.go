package imapnet

import (
	"encoding/base64"
	"fmt"

	"github.com/emersion/go-sasl"
	"github.com/nugget/inboxctl/internal/wire"
)

// AuthPolicyFailure reports that the account's auth policy (spec.md §3's
// AllowLogin/AllowPlain) rejected every mechanism the server offered.
type AuthPolicyFailure struct {
	Offered []string
}

func (e *AuthPolicyFailure) Error() string {
	return fmt.Sprintf("no acceptable auth mechanism (server offered: %v)", e.Offered)
}

// Authenticate negotiates credentials per spec.md §4.2 step 2: CRAM-MD5
// via AUTHENTICATE is preferred whenever the server advertises it,
// falling back to plaintext LOGIN only when allowLogin permits it. The
// plain-transport rule is folded into allowLogin by the caller: the
// orchestrator passes false on a plain transport unless AllowPlain is
// set.
func (s *Session) Authenticate(caps Capabilities, user, password string, allowLogin bool) error {
	if caps.Has("AUTH=CRAM-MD5") {
		if err := s.authCRAMMD5(user, password); err != nil {
			return fmt.Errorf("CRAM-MD5: %w", err)
		}
		s.Authenticated = true
		return nil
	}

	if !allowLogin {
		return &AuthPolicyFailure{Offered: []string{"LOGIN (disallowed by policy)"}}
	}

	resp, err := s.Command("LOGIN %s %s", wire.Quote(user), wire.Quote(password))
	if err != nil {
		return fmt.Errorf("LOGIN: %w", err)
	}
	if !resp.OK {
		return fmt.Errorf("LOGIN rejected: %s %s", resp.Status, resp.Text)
	}
	s.Authenticated = true
	return nil
}

// authCRAMMD5 drives the AUTHENTICATE CRAM-MD5 continuation exchange
// using go-sasl's mechanism implementation, decoupled from any
// particular IMAP client library the way the SASL package is designed
// to be used.
func (s *Session) authCRAMMD5(user, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	client := sasl.NewCramMD5Client(user, password)
	_, ir, err := client.Start()
	if err != nil {
		return err
	}
	if len(ir) != 0 {
		return fmt.Errorf("unexpected initial response for CRAM-MD5")
	}

	tag := s.nextTag()
	if err := s.writeLine(tag + " AUTHENTICATE CRAM-MD5"); err != nil {
		return err
	}

	challengeB64, err := s.ReadContinuation()
	if err != nil {
		return err
	}
	challenge, err := base64.StdEncoding.DecodeString(challengeB64)
	if err != nil {
		return fmt.Errorf("decode challenge: %w", err)
	}

	resp, err := client.Next(challenge)
	if err != nil {
		return err
	}
	if err := s.SendContinuation(base64.StdEncoding.EncodeToString(resp)); err != nil {
		return err
	}

	return s.readTaggedCompletion(tag)
}

// readTaggedCompletion reads response lines until it finds the tagged
// completion for tag, used when a command's initial Command() call
// cannot own the read loop (mid-AUTHENTICATE continuations).
func (s *Session) readTaggedCompletion(tag string) error {
	for {
		chunks, err := s.readLogicalLine()
		if err != nil {
			return err
		}
		data, literals := wire.Reassemble(chunks)
		nodes, err := wire.ParseLine(data, literals)
		if err != nil {
			return err
		}
		if len(nodes) == 0 {
			continue
		}
		if nodes[0].Text() == tag {
			if len(nodes) < 2 {
				return fmt.Errorf("malformed tagged response: %q", data)
			}
			status := nodes[1].Text()
			if status != "OK" {
				return fmt.Errorf("AUTHENTICATE rejected: %s", status)
			}
			return nil
		}
	}
}
