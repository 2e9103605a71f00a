package action

import (
	"bufio"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/nugget/inboxctl/internal/config"
	"github.com/nugget/inboxctl/internal/deliver"
	"github.com/nugget/inboxctl/internal/imapnet"
)

func fakeSession(t *testing.T, script map[string]string) *imapnet.Session {
	t.Helper()
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
	s, err := imapnet.Wrap(client, 2*time.Second)
	if err != nil {
		t.Fatalf("wrap: %v", err)
	}
	return s
}

func TestCountReturnsSearchResultSize(t *testing.T) {
	s := fakeSession(t, map[string]string{
		"A0001 UID SEARCH (UNSEEN)": "* SEARCH 1 2 3 4\r\nA0001 OK SEARCH completed\r\n",
	})
	tel := &Telemetry{}
	n, err := Count(s, "work", "INBOX", "(UNSEEN)", tel)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 4 {
		t.Errorf("Count = %d, want 4", n)
	}
	if tel.Failed() {
		t.Errorf("Telemetry recorded an error on a successful search: %v", tel.Errors)
	}
}

func TestCountRecordsTelemetryErrorOnSearchFailure(t *testing.T) {
	s := fakeSession(t, map[string]string{
		"A0001 UID SEARCH (UNSEEN)": "A0001 BAD could not parse command\r\n",
	})
	tel := &Telemetry{}
	if _, err := Count(s, "work", "INBOX", "(UNSEEN)", tel); err == nil {
		t.Fatal("expected an error from a BAD SEARCH response")
	}
	if !tel.Failed() {
		t.Error("Count did not record the SEARCH failure in Telemetry")
	}
}

func TestListRecordsTelemetryErrorOnListFailure(t *testing.T) {
	s := fakeSession(t, map[string]string{
		`A0001 LIST "" "*"`: "A0001 BAD could not parse command\r\n",
	})
	tel := &Telemetry{}
	if _, err := List(s, "work", tel); err == nil {
		t.Fatal("expected an error from a BAD LIST response")
	}
	if !tel.Failed() {
		t.Error("List did not record the LIST failure in Telemetry")
	}
}

func TestMarkSeenIssuesStoreWithPlusFlag(t *testing.T) {
	s := fakeSession(t, map[string]string{
		"A0001 UID SEARCH (UNSEEN)":                 "* SEARCH 5 6\r\nA0001 OK SEARCH completed\r\n",
		`A0002 UID STORE 5,6 +FLAGS.SILENT (\Seen)`: "A0002 OK STORE completed\r\n",
	})
	tel := &Telemetry{}
	if err := Mark(s, "work", "INBOX", "(UNSEEN)", config.MarkSeen, 150, tel); err != nil {
		t.Fatalf("Mark: %v", err)
	}
	if tel.Marked != 2 {
		t.Errorf("Marked = %d, want 2", tel.Marked)
	}
}

func TestDeleteBarrierSkipsWhenPriorErrorRecorded(t *testing.T) {
	s := fakeSession(t, map[string]string{})
	tel := &Telemetry{Errors: []string{"prior fetch failure"}}
	err := Delete(s, "work", "INBOX", "(ALL)", config.DeleteExpunge, "imap.example.com", tel)
	if err == nil {
		t.Fatal("expected barrier-skip error")
	}
	if tel.Deleted != 0 {
		t.Errorf("Deleted = %d, want 0 (barrier should skip before any STORE)", tel.Deleted)
	}
}

func TestDeleteExpungeStoresThenExpunges(t *testing.T) {
	s := fakeSession(t, map[string]string{
		"A0001 UID SEARCH (ALL)":                        "* SEARCH 1\r\nA0001 OK SEARCH completed\r\n",
		`A0002 UID STORE 1 +FLAGS.SILENT (\Deleted)`:      "A0002 OK STORE completed\r\n",
		"A0003 EXPUNGE":                                  "* 1 EXPUNGE\r\nA0003 OK EXPUNGE completed\r\n",
	})
	tel := &Telemetry{}
	if err := Delete(s, "work", "INBOX", "(ALL)", config.DeleteExpunge, "imap.example.com", tel); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if tel.Deleted != 1 {
		t.Errorf("Deleted = %d, want 1", tel.Deleted)
	}
}

func TestDeleteGmailTrashUsesLabelsNotDeleted(t *testing.T) {
	s := fakeSession(t, map[string]string{
		"A0001 UID SEARCH (ALL)": "* SEARCH 9\r\nA0001 OK SEARCH completed\r\n",
		`A0002 UID STORE 9 +X-GM-LABELS (\Trash)`: "A0002 OK STORE completed\r\n",
	})
	tel := &Telemetry{}
	if err := Delete(s, "work", "[Gmail]/All Mail", "(ALL)", config.DeleteAuto, "imap.gmail.com", tel); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if tel.Trashed != 1 {
		t.Errorf("Trashed = %d, want 1", tel.Trashed)
	}
}

type fakeDeliverer struct {
	calls      [][]deliver.Message
	alwaysFail bool
}

func (f *fakeDeliverer) DeliverBatch(msgs []deliver.Message) (delivered, undelivered []uint32) {
	f.calls = append(f.calls, msgs)
	for _, m := range msgs {
		if f.alwaysFail {
			undelivered = append(undelivered, m.UID)
		} else {
			delivered = append(delivered, m.UID)
		}
	}
	return delivered, undelivered
}

func TestFetchDeliversAndMarksSeen(t *testing.T) {
	s := fakeSession(t, map[string]string{
		"A0001 UID SEARCH (UNSEEN)":      "* SEARCH 1\r\nA0001 OK SEARCH completed\r\n",
		"A0002 UID FETCH 1 (RFC822.SIZE)": "* 1 FETCH (UID 1 RFC822.SIZE 9)\r\nA0002 OK FETCH completed\r\n",
		"A0003 UID FETCH 1 (BODY.PEEK[HEADER] BODY.PEEK[TEXT])": "* 1 FETCH (UID 1 BODY[HEADER] {7}\r\nSubj: x BODY[TEXT] {2}\r\nhi)\r\nA0003 OK FETCH completed\r\n",
		`A0004 UID STORE 1 +FLAGS.SILENT (\Seen)`: "A0004 OK STORE completed\r\n",
	})
	tel := &Telemetry{}
	d := &fakeDeliverer{}
	cfg := FetchConfig{FetchNumber: 150, BatchNumber: 150, BatchSize: 4 << 20, StoreNumber: 150, Mode: config.DeliveryCareful, Mark: config.MarkAuto}

	hooks, err := Fetch(s, "work", "INBOX", "(UNSEEN)", config.TriFalse, config.TriUnset, cfg, d, tel)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if tel.Delivered != 1 {
		t.Errorf("Delivered = %d, want 1", tel.Delivered)
	}
	if tel.Marked != 1 {
		t.Errorf("Marked = %d, want 1", tel.Marked)
	}
	if len(d.calls) != 1 || len(d.calls[0]) != 1 {
		t.Fatalf("expected 1 delivery call with 1 message, got %v", d.calls)
	}
	if d.calls[0][0].Header[len(d.calls[0][0].Header)-1] == '\r' {
		t.Error("header should have CRLF normalized to LF")
	}
	_ = hooks
}

func TestFetchCarefulModeAbortsOnZeroDelivery(t *testing.T) {
	s := fakeSession(t, map[string]string{
		"A0001 UID SEARCH (UNSEEN)":      "* SEARCH 1\r\nA0001 OK SEARCH completed\r\n",
		"A0002 UID FETCH 1 (RFC822.SIZE)": "* 1 FETCH (UID 1 RFC822.SIZE 9)\r\nA0002 OK FETCH completed\r\n",
		"A0003 UID FETCH 1 (BODY.PEEK[HEADER] BODY.PEEK[TEXT])": "* 1 FETCH (UID 1 BODY[HEADER] {1}\r\nh BODY[TEXT] {1}\r\nb)\r\nA0003 OK FETCH completed\r\n",
	})
	tel := &Telemetry{}
	d := &fakeDeliverer{}
	d.fail()
	cfg := FetchConfig{FetchNumber: 150, BatchNumber: 150, BatchSize: 4 << 20, StoreNumber: 150, Mode: config.DeliveryCareful, Mark: config.MarkNoop}

	_, err := Fetch(s, "work", "INBOX", "(UNSEEN)", config.TriFalse, config.TriUnset, cfg, d, tel)
	if err == nil {
		t.Fatal("expected careful-mode abort error")
	}
	if !tel.Failed() {
		t.Error("expected Telemetry to record the careful-mode failure")
	}
}

func (f *fakeDeliverer) fail() { f.alwaysFail = true }
