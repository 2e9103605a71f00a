package action

import (
	"github.com/nugget/inboxctl/internal/imapnet"
	"github.com/nugget/inboxctl/internal/mailbox"
)

// Count runs the count sub-action: UID SEARCH and the size of the
// result set, nothing else (spec.md §4.4).
func Count(s *imapnet.Session, account, folder, query string, tel *Telemetry) (int, error) {
	uids, err := mailbox.Search(s, account, folder, query)
	if err != nil {
		tel.AddError(err)
		return 0, err
	}
	return len(uids), nil
}
