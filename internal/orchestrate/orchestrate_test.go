package orchestrate

import (
	"bufio"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/nugget/inboxctl/internal/config"
	"github.com/nugget/inboxctl/internal/imapnet"
	"github.com/nugget/inboxctl/internal/schedule"
)

func scriptedDialer(t *testing.T, script map[string]string) Dialer {
	t.Helper()
	return func(opts imapnet.Options) (*imapnet.Session, error) {
		client, server := net.Pipe()
		go func() {
			server.Write([]byte("* OK ready\r\n"))
			r := bufio.NewReader(server)
			for {
				line, err := r.ReadString('\n')
				if err != nil {
					return
				}
				line = strings.TrimRight(line, "\r\n")
				tag := strings.SplitN(line, " ", 2)[0]
				reply, ok := script[line]
				if !ok {
					reply = tag + " BAD unscripted: " + line + "\r\n"
				}
				server.Write([]byte(reply))
			}
		}()
		return imapnet.Wrap(client, 2*time.Second)
	}
}

func baseAccount(actions ...config.ActionConfig) config.AccountConfig {
	b := config.BatchingConfig{StoreNumber: 150, FetchNumber: 150, BatchNumber: 150, BatchSize: 4 << 20}
	return config.AccountConfig{
		Name:       "work",
		Transport:  config.TransportPlain,
		Host:       "imap.example.com",
		Port:       143,
		User:       "alice",
		Password:   "secret",
		AllowLogin: true,
		AllowPlain: true,
		Batching:   &b,
		Actions:    actions,
	}
}

func TestRunCountProducesPorcelainLine(t *testing.T) {
	script := map[string]string{
		"A0001 CAPABILITY":             "* CAPABILITY IMAP4rev1\r\nA0001 OK CAPABILITY completed\r\n",
		`A0002 LOGIN "alice" "secret"`: "A0002 OK LOGIN completed\r\n",
		`A0003 SELECT "INBOX"`:         "* 4 EXISTS\r\nA0003 OK SELECT completed\r\n",
		"A0004 UID SEARCH (ALL)":       "* SEARCH 1 2 3 4\r\nA0004 OK SEARCH completed\r\n",
		"A0005 CLOSE":                  "A0005 OK CLOSE completed\r\n",
		"A0006 LOGOUT":                 "* BYE\r\nA0006 OK LOGOUT completed\r\n",
	}

	cfg := &config.Config{Accounts: []config.AccountConfig{
		baseAccount(config.ActionConfig{Kind: config.ActionCount}),
	}}

	o := New(nil, nil, WithDialer(scriptedDialer(t, script)))
	cr, err := o.Run(schedule.Token{}, cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(cr.Accounts) != 1 {
		t.Fatalf("expected 1 account result, got %d", len(cr.Accounts))
	}
	ar := cr.Accounts[0]
	if len(ar.Lines) != 1 || ar.Lines[0] != "4 INBOX" {
		t.Errorf("Lines = %v, want [\"4 INBOX\"]", ar.Lines)
	}
	if ar.Telemetry.Failed() {
		t.Errorf("unexpected telemetry failure: %v", ar.Telemetry.Errors)
	}
}

func TestRunAccountConnectFailureIsIsolated(t *testing.T) {
	cfg := &config.Config{Accounts: []config.AccountConfig{
		baseAccount(config.ActionConfig{Kind: config.ActionCount}),
	}}

	o := New(nil, nil, WithDialer(func(opts imapnet.Options) (*imapnet.Session, error) {
		client, server := net.Pipe()
		go func() {
			server.Write([]byte("* BYE unavailable\r\n"))
			server.Close()
		}()
		return imapnet.Wrap(client, time.Second)
	}))

	cr, err := o.Run(schedule.Token{}, cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !cr.Accounts[0].Telemetry.Failed() {
		t.Error("expected connect failure to be recorded in account telemetry")
	}
}

func TestResolveFoldersDefaultsToInbox(t *testing.T) {
	acct := baseAccount()
	folders, err := resolveFolders(nil, acct)
	if err != nil {
		t.Fatalf("resolveFolders: %v", err)
	}
	if len(folders) != 1 || folders[0] != "INBOX" {
		t.Errorf("folders = %v, want [INBOX]", folders)
	}
}

func TestResolveFoldersUsesIncludeList(t *testing.T) {
	acct := baseAccount()
	acct.Folders.Include = []string{"Archive", "Sent"}
	folders, err := resolveFolders(nil, acct)
	if err != nil {
		t.Fatalf("resolveFolders: %v", err)
	}
	if len(folders) != 2 || folders[0] != "Archive" || folders[1] != "Sent" {
		t.Errorf("folders = %v", folders)
	}
}
