package mailbox

import (
	"bufio"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/nugget/inboxctl/internal/imapnet"
	"github.com/nugget/inboxctl/internal/result"
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
				reply = tag + " BAD unscripted\r\n"
			}
			server.Write([]byte(reply))
		}
	}()

	s, err := imapnet.Wrap(client, 2*time.Second)
	if err != nil {
		t.Fatalf("wrap test conn: %v", err)
	}
	return s
}

func TestListFoldersSkipsNothingButFlagsNoselect(t *testing.T) {
	s := fakeSession(t, map[string]string{
		`A0001 LIST "" "*"`: "* LIST (\\HasNoChildren) \"/\" INBOX\r\n" +
			"* LIST (\\Noselect \\HasChildren) \"/\" [Gmail]\r\n" +
			"A0001 OK LIST completed\r\n",
	})

	folders, err := ListFolders(s, "work")
	if err != nil {
		t.Fatalf("ListFolders: %v", err)
	}
	if len(folders) != 2 {
		t.Fatalf("got %d folders, want 2", len(folders))
	}
	if folders[0].Name != "INBOX" || !folders[0].Selectable {
		t.Errorf("INBOX: %+v", folders[0])
	}
	if folders[1].Selectable {
		t.Errorf("[Gmail] should not be selectable: %+v", folders[1])
	}
}

func TestSelectReadsExists(t *testing.T) {
	s := fakeSession(t, map[string]string{
		`A0001 SELECT "INBOX"`: "* 42 EXISTS\r\n* 1 RECENT\r\nA0001 OK [READ-WRITE] SELECT completed\r\n",
	})

	n, err := Select(s, "work", "INBOX")
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if n != 42 {
		t.Errorf("exists = %d, want 42", n)
	}
}

func TestSearchReturnsUIDsInOrder(t *testing.T) {
	s := fakeSession(t, map[string]string{
		"A0001 UID SEARCH (UNSEEN)": "* SEARCH 3 9 42\r\nA0001 OK SEARCH completed\r\n",
	})

	uids, err := Search(s, "work", "INBOX", "(UNSEEN)")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	want := []uint32{3, 9, 42}
	if len(uids) != len(want) {
		t.Fatalf("got %v, want %v", uids, want)
	}
	for i := range want {
		if uids[i] != want[i] {
			t.Errorf("uids[%d] = %d, want %d", i, uids[i], want[i])
		}
	}
}

func TestSelectRejectedReturnsFolderScopedError(t *testing.T) {
	s := fakeSession(t, map[string]string{
		`A0001 SELECT "Missing"`: "A0001 NO Mailbox does not exist\r\n",
	})

	_, err := Select(s, "work", "Missing")
	if err == nil {
		t.Fatal("expected error")
	}
	if !result.IsScope(err, result.Folder) {
		t.Errorf("expected Folder scope, got %v", err)
	}
}
