package hookrun

import "github.com/nugget/inboxctl/internal/config"

// ResolveSecret picks the configured password back-end for an account
// (spec.md §3). If more than one of Password/PasswordFile/PasswordPin/
// PasswordCmd is set, PasswordFile wins, then PasswordCmd, then
// PasswordPin, then the literal Password.
func ResolveSecret(a config.AccountConfig) Secret {
	switch {
	case a.PasswordFile != "":
		return FileSecret{Path: a.PasswordFile}
	case a.PasswordCmd != "":
		return CommandSecret{Command: a.PasswordCmd}
	case a.PasswordPin:
		return PinEntry{Prompt: a.Name + " IMAP password"}
	default:
		return Literal(a.Password)
	}
}
