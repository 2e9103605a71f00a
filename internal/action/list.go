package action

import (
	"github.com/nugget/inboxctl/internal/imapnet"
	"github.com/nugget/inboxctl/internal/mailbox"
)

// List runs the supplemental list sub-command: every selectable folder
// for the account, without running any SEARCH against it. Reporting
// decides porcelain vs. human formatting; this just returns the names.
func List(s *imapnet.Session, account string, tel *Telemetry) ([]string, error) {
	folders, err := mailbox.ListFolders(s, account)
	if err != nil {
		tel.AddError(err)
		return nil, err
	}

	var names []string
	for _, f := range folders {
		if f.Selectable {
			names = append(names, f.Name)
		}
	}
	return names, nil
}
