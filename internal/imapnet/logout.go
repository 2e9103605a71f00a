package imapnet

import "fmt"

// Logout issues LOGOUT and closes the transport regardless of the
// server's response, matching spec.md §9's scoped-resource discipline:
// the socket is always released at the end of an account's cycle.
func (s *Session) Logout() error {
	resp, cmdErr := s.Command("LOGOUT")
	closeErr := s.conn.Close()
	if cmdErr != nil {
		return fmt.Errorf("LOGOUT: %w", cmdErr)
	}
	if !resp.OK {
		return fmt.Errorf("LOGOUT rejected: %s %s", resp.Status, resp.Text)
	}
	return closeErr
}
