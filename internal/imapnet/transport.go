package imapnet

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/nugget/inboxctl/internal/config"
)

// Options configures Dial. Auth policy is not part of it: it is passed
// to Session.Authenticate. Trace, when non-nil, receives the raw C:/S:
// lines (spec.md §4.2's debug trace).
type Options struct {
	Transport  config.Transport
	Host       string
	Port       int
	Timeout    time.Duration
	Trace      TraceFunc
	Logger     *slog.Logger
}

// Dial establishes the transport (spec.md §4.2 step 1: plain, STARTTLS,
// or implicit SSL), reads the server greeting, and — for starttls —
// negotiates TLS before returning. It does not authenticate; callers
// invoke Capability and Authenticate next.
func Dial(opts Options) (*Session, error) {
	addr := fmt.Sprintf("%s:%d", opts.Host, opts.Port)
	dialer := &net.Dialer{Timeout: opts.Timeout}

	var conn net.Conn
	var err error
	switch opts.Transport {
	case config.TransportSSL:
		conn, err = tls.DialWithDialer(dialer, "tcp", addr, &tls.Config{ServerName: opts.Host})
	case config.TransportPlain, config.TransportStartTLS:
		conn, err = dialer.Dial("tcp", addr)
	default:
		return nil, fmt.Errorf("unknown transport %q", opts.Transport)
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	s := newSession(conn, opts.Timeout, opts.Trace, opts.Logger)

	greeting, err := s.ReadGreeting()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("read greeting: %w", err)
	}
	if !greeting.OK {
		conn.Close()
		return nil, fmt.Errorf("server greeting was not OK/PREAUTH (%s)", greeting.Status)
	}

	if opts.Transport == config.TransportStartTLS {
		if err := s.startTLS(opts.Host); err != nil {
			conn.Close()
			return nil, fmt.Errorf("starttls: %w", err)
		}
	}

	return s, nil
}

// startTLS issues STARTTLS and wraps the connection in a TLS client,
// replacing the session's reader so no plaintext buffered ahead of the
// handshake is lost or replayed.
func (s *Session) startTLS(host string) error {
	resp, err := s.Command("STARTTLS")
	if err != nil {
		return err
	}
	if !resp.OK {
		return fmt.Errorf("STARTTLS rejected: %s %s", resp.Status, resp.Text)
	}

	tlsConn := tls.Client(s.conn, &tls.Config{ServerName: host})
	if err := tlsConn.HandshakeContext(context.Background()); err != nil {
		return fmt.Errorf("tls handshake: %w", err)
	}
	s.conn = tlsConn
	s.r.Reset(tlsConn)
	return nil
}
