package action

import (
	"fmt"

	"github.com/nugget/inboxctl/internal/config"
	"github.com/nugget/inboxctl/internal/imapnet"
	"github.com/nugget/inboxctl/internal/mailbox"
	"github.com/nugget/inboxctl/internal/result"
)

// resolveDeleteMethod resolves config.DeleteAuto per spec.md §3: the
// Gmail IMAP server, on any folder except its own Trash, auto-resolves
// to gmail-trash so that a plain EXPUNGE doesn't silently leave the
// message recoverable in [Gmail]/All Mail while the user believed it
// deleted.
func resolveDeleteMethod(method config.DeleteMethod, host, folder string) config.DeleteMethod {
	if method != config.DeleteAuto {
		return method
	}
	if host == "imap.gmail.com" && folder != "[Gmail]/Trash" {
		return config.DeleteGmailTrash
	}
	return config.DeleteExpunge
}

// Delete runs the delete sub-action, honoring the cross-action failure
// barrier: if tel already carries an error from an earlier sub-action
// this cycle, delete is skipped entirely and a descriptive error is
// appended instead of running.
func Delete(s *imapnet.Session, account, folder, query string, method config.DeleteMethod, host string, tel *Telemetry) error {
	if tel.Failed() {
		err := result.New(result.AccountSoft, "barrier-skip", fmt.Errorf("delete skipped: an earlier sub-action this cycle recorded an error")).With(account, folder)
		tel.AddError(err)
		return err
	}

	uids, err := mailbox.Search(s, account, folder, query)
	if err != nil {
		tel.AddError(err)
		return err
	}
	if len(uids) == 0 {
		return nil
	}

	resolved := resolveDeleteMethod(method, host, folder)

	switch resolved {
	case config.DeleteGmailTrash:
		return gmailTrash(s, account, folder, uids, tel)
	case config.DeleteNoExpunge:
		return storeDeleted(s, account, folder, uids, tel, false)
	default: // DeleteExpunge
		return storeDeleted(s, account, folder, uids, tel, true)
	}
}

func storeDeleted(s *imapnet.Session, account, folder string, uids []uint32, tel *Telemetry, expunge bool) error {
	resp, err := s.Command(`UID STORE %s +FLAGS.SILENT (\Deleted)`, uidSet(uids))
	if err != nil {
		scoped := result.New(result.Folder, "store-deleted", err).With(account, folder)
		tel.AddError(scoped)
		return scoped
	}
	if !resp.OK {
		scoped := result.New(result.Folder, "store-deleted", serverErr(resp)).With(account, folder)
		tel.AddError(scoped)
		return scoped
	}
	tel.Deleted += len(uids)

	if !expunge {
		return nil
	}

	eresp, err := s.Command("EXPUNGE")
	if err != nil {
		scoped := result.New(result.Folder, "expunge", err).With(account, folder)
		tel.AddError(scoped)
		return scoped
	}
	if !eresp.OK {
		scoped := result.New(result.Folder, "expunge", serverErr(eresp)).With(account, folder)
		tel.AddError(scoped)
		return scoped
	}
	return nil
}

func gmailTrash(s *imapnet.Session, account, folder string, uids []uint32, tel *Telemetry) error {
	resp, err := s.Command(`UID STORE %s +X-GM-LABELS (\Trash)`, uidSet(uids))
	if err != nil {
		scoped := result.New(result.Folder, "gmail-trash", err).With(account, folder)
		tel.AddError(scoped)
		return scoped
	}
	if !resp.OK {
		scoped := result.New(result.Folder, "gmail-trash", serverErr(resp)).With(account, folder)
		tel.AddError(scoped)
		return scoped
	}
	tel.Trashed += len(uids)
	return nil
}
