package action

import (
	"github.com/nugget/inboxctl/internal/config"
	"github.com/nugget/inboxctl/internal/imapnet"
	"github.com/nugget/inboxctl/internal/mailbox"
	"github.com/nugget/inboxctl/internal/result"
)

// markFlag maps a Marking to the wire flag name and the STORE sign:
// '+' for {seen, flagged}, '-' for {unseen, unflagged} (spec.md §4.4).
func markFlag(m config.Marking) (flag string, add bool, ok bool) {
	switch m {
	case config.MarkSeen:
		return `\Seen`, true, true
	case config.MarkUnseen:
		return `\Seen`, false, true
	case config.MarkFlagged:
		return `\Flagged`, true, true
	case config.MarkUnflagged:
		return `\Flagged`, false, true
	default:
		return "", false, false
	}
}

// Mark runs the mark sub-action: UID SEARCH, grouped by store-number,
// UID STORE ±FLAGS.SILENT per group.
func Mark(s *imapnet.Session, account, folder, query string, mark config.Marking, storeNumber int, tel *Telemetry) error {
	flag, add, ok := markFlag(mark)
	if !ok {
		return nil
	}

	uids, err := mailbox.Search(s, account, folder, query)
	if err != nil {
		tel.AddError(err)
		return err
	}
	if len(uids) == 0 {
		return nil
	}

	return storeFlag(s, account, folder, uids, storeNumber, flag, add, tel)
}

// storeFlag issues UID STORE ±FLAGS.SILENT <flag> in groups of at most
// storeNumber UIDs, incrementing tel.Marked by each successful group's
// size and recording an error for any rejected group.
func storeFlag(s *imapnet.Session, account, folder string, uids []uint32, storeNumber int, flag string, add bool, tel *Telemetry) error {
	sign := "-"
	if add {
		sign = "+"
	}

	var firstErr error
	for _, group := range chunkUIDs(uids, storeNumber) {
		if len(group) == 0 {
			continue
		}
		resp, err := s.Command("UID STORE %s %sFLAGS.SILENT (%s)", uidSet(group), sign, flag)
		if err != nil {
			scoped := result.New(result.Folder, "store", err).With(account, folder)
			tel.AddError(scoped)
			if firstErr == nil {
				firstErr = scoped
			}
			continue
		}
		if !resp.OK {
			scoped := result.New(result.Folder, "store", serverErr(resp)).With(account, folder)
			tel.AddError(scoped)
			if firstErr == nil {
				firstErr = scoped
			}
			continue
		}
		tel.Marked += len(group)
	}
	return firstErr
}

type serverErrText string

func (e serverErrText) Error() string { return string(e) }

func serverErr(resp *imapnet.Response) error {
	return serverErrText(resp.Status + " " + resp.Text)
}
