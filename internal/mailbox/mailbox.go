// Package mailbox implements spec.md §4.3's Folder Ops: listing
// selectable mailboxes, SELECTing one, and running a UID SEARCH built
// from an internal/filter rendering. It is a thin, folder-scoped layer
// over an already-authenticated *imapnet.Session — connection lifetime
// belongs to internal/orchestrate, not here, matching the one
// connect-per-account-per-cycle rule of spec.md §4.7.
package mailbox

import (
	"sort"
	"strconv"
	"strings"

	"github.com/nugget/inboxctl/internal/imapnet"
	"github.com/nugget/inboxctl/internal/result"
	"github.com/nugget/inboxctl/internal/wire"
)

// Folder describes one mailbox as LIST reports it.
type Folder struct {
	Name       string
	Attributes []string
	Selectable bool
}

func hasAttr(attrs []string, want string) bool {
	for _, a := range attrs {
		if strings.EqualFold(a, want) {
			return true
		}
	}
	return false
}

// ListFolders runs LIST "" "*" and returns every mailbox, sorted by
// name, skipping nothing — callers inspect Selectable to decide whether
// a folder participates in an action.
func ListFolders(s *imapnet.Session, account string) ([]Folder, error) {
	resp, err := s.Command(`LIST "" "*"`)
	if err != nil {
		return nil, result.New(result.Account, "list", err).With(account, "")
	}
	if !resp.OK {
		return nil, result.New(result.Account, "list", statusErr(resp)).With(account, "")
	}

	var folders []Folder
	for _, nodes := range resp.Untagged {
		if len(nodes) < 2 || !strings.EqualFold(nodes[1].Text(), "LIST") {
			continue
		}
		f, ok := parseListLine(nodes)
		if ok {
			folders = append(folders, f)
		}
	}

	sort.Slice(folders, func(i, j int) bool { return folders[i].Name < folders[j].Name })
	return folders, nil
}

// parseListLine expects `* LIST (attrs...) "delim" name`.
func parseListLine(nodes []wire.Node) (Folder, bool) {
	if len(nodes) < 5 || !nodes[2].IsList {
		return Folder{}, false
	}
	var attrs []string
	for _, a := range nodes[2].List {
		attrs = append(attrs, a.Text())
	}
	name := nodes[len(nodes)-1].Text()
	return Folder{
		Name:       name,
		Attributes: attrs,
		Selectable: !hasAttr(attrs, `\Noselect`),
	}, true
}

// Select issues SELECT for folder and returns the message count the
// server reports via EXISTS.
func Select(s *imapnet.Session, account, folder string) (exists int, err error) {
	resp, cmdErr := s.Command("SELECT %s", wire.Quote(folder))
	if cmdErr != nil {
		return 0, result.New(result.Folder, "select", cmdErr).With(account, folder)
	}
	if !resp.OK {
		return 0, result.New(result.Folder, "select", statusErr(resp)).With(account, folder)
	}
	for _, nodes := range resp.Untagged {
		if len(nodes) == 3 && strings.EqualFold(nodes[2].Text(), "EXISTS") {
			n, convErr := strconv.Atoi(nodes[1].Text())
			if convErr == nil {
				exists = n
			}
		}
	}
	return exists, nil
}

// Close issues CLOSE, which both deselects the current mailbox and,
// as IMAP mandates, expunges any messages marked \Deleted in it.
func Close(s *imapnet.Session, account, folder string) error {
	resp, err := s.Command("CLOSE")
	if err != nil {
		return result.New(result.Folder, "close", err).With(account, folder)
	}
	if !resp.OK {
		return result.New(result.Folder, "close", statusErr(resp)).With(account, folder)
	}
	return nil
}

// Search runs a UID SEARCH with a pre-rendered filter query string
// (internal/filter.Spec.Render) and returns the matching UIDs in the
// order the server reported them.
func Search(s *imapnet.Session, account, folder, query string) ([]uint32, error) {
	resp, err := s.Command("UID SEARCH %s", query)
	if err != nil {
		return nil, result.New(result.Folder, "search", err).With(account, folder)
	}
	if !resp.OK {
		return nil, result.New(result.Folder, "search", statusErr(resp)).With(account, folder)
	}

	var uids []uint32
	for _, nodes := range resp.Untagged {
		if len(nodes) < 2 || !strings.EqualFold(nodes[1].Text(), "SEARCH") {
			continue
		}
		for _, n := range nodes[2:] {
			if n.IsList {
				continue
			}
			v, convErr := strconv.ParseUint(n.Text(), 10, 32)
			if convErr == nil {
				uids = append(uids, uint32(v))
			}
		}
	}
	return uids, nil
}

func statusErr(resp *imapnet.Response) error {
	return serverError(resp.Status + " " + resp.Text)
}

type serverError string

func (e serverError) Error() string { return string(e) }
