package hookrun

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nugget/inboxctl/internal/config"
)

func TestFileSecretTrimsTrailingNewline(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pw")
	if err := os.WriteFile(path, []byte("hunter2\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	pw, err := (FileSecret{Path: path}).Password()
	if err != nil {
		t.Fatalf("Password: %v", err)
	}
	if pw != "hunter2" {
		t.Errorf("Password = %q, want %q", pw, "hunter2")
	}
}

func TestCommandSecretTakesFirstLine(t *testing.T) {
	pw, err := (CommandSecret{Command: "printf 'swordfish\\nextra'"}).Password()
	if err != nil {
		t.Fatalf("Password: %v", err)
	}
	if pw != "swordfish" {
		t.Errorf("Password = %q, want %q", pw, "swordfish")
	}
}

func TestLiteralPassword(t *testing.T) {
	pw, err := Literal("plain").Password()
	if err != nil || pw != "plain" {
		t.Errorf("Password = (%q, %v), want (%q, nil)", pw, err, "plain")
	}
}

func TestResolveSecretPrefersFileOverLiteral(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pw")
	os.WriteFile(path, []byte("fromfile\n"), 0o600)

	a := config.AccountConfig{Name: "work", Password: "ignored", PasswordFile: path}
	s := ResolveSecret(a)
	pw, err := s.Password()
	if err != nil {
		t.Fatalf("Password: %v", err)
	}
	if pw != "fromfile" {
		t.Errorf("Password = %q, want %q", pw, "fromfile")
	}
}

func TestResolveSecretDefaultsToLiteral(t *testing.T) {
	a := config.AccountConfig{Name: "work", Password: "plain"}
	s := ResolveSecret(a)
	pw, err := s.Password()
	if err != nil || pw != "plain" {
		t.Errorf("Password = (%q, %v), want (%q, nil)", pw, err, "plain")
	}
}
