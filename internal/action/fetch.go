package action

import (
	"bytes"
	"fmt"

	"github.com/nugget/inboxctl/internal/config"
	"github.com/nugget/inboxctl/internal/deliver"
	"github.com/nugget/inboxctl/internal/imapnet"
	"github.com/nugget/inboxctl/internal/mailbox"
	"github.com/nugget/inboxctl/internal/result"
	"github.com/nugget/inboxctl/internal/wire"
)

// FetchConfig bundles the batching/delivery knobs one fetch sub-action
// needs (spec.md §3's BatchingConfig plus the per-action delivery
// settings).
type FetchConfig struct {
	FetchNumber int
	BatchNumber int
	BatchSize   int
	StoreNumber int

	Mode        config.DeliveryMode
	Mark        config.Marking
	NewMailHook []string

	// Progress, if set, is called once per batch after delivery with
	// the number of messages delivered and their combined byte size
	// (header+body), for the Reporter's per-batch progress line.
	Progress func(delivered, bytes int)

	// Cancelled, if set, is checked before each batch's FETCH/STORE
	// round trip — the safe point spec.md §4.6 names between the
	// folder- and account-level checks the orchestrator already makes.
	Cancelled func() bool
}

type sizedUID struct {
	uid  uint32
	size int
}

// Fetch runs the fetch sub-action end to end: SEARCH, size probing,
// batch packing, body retrieval, delivery, and conditional marking
// (spec.md §4.4). filterSeen/filterFlagged are the originating
// FilterSpec's Tri values, needed to resolve config.MarkAuto. It
// returns the new-mail hook commands to enqueue (one entry per
// non-empty delivered batch; callers dedupe across folders/accounts).
func Fetch(s *imapnet.Session, account, folder, query string, filterSeen, filterFlagged config.Tri, cfg FetchConfig, d deliver.Deliverer, tel *Telemetry) ([][]string, error) {
	uids, err := mailbox.Search(s, account, folder, query)
	if err != nil {
		tel.AddError(err)
		return nil, err
	}
	if len(uids) == 0 {
		return nil, nil
	}

	sized, err := probeSizes(s, account, folder, uids, cfg.FetchNumber, tel)
	if err != nil {
		return nil, err
	}
	if len(sized) == 0 {
		return nil, nil
	}

	mark := resolveMark(cfg.Mark, filterSeen, filterFlagged)
	batches := packBatches(sized, cfg.BatchNumber, cfg.BatchSize)

	var hooks [][]string
	for _, batch := range batches {
		if cfg.Cancelled != nil && cfg.Cancelled() {
			return hooks, nil
		}

		msgs, err := fetchBodies(s, account, folder, batch, tel)
		if err != nil {
			return hooks, err
		}
		if len(msgs) == 0 {
			continue
		}

		delivered, undelivered := d.DeliverBatch(msgs)
		tel.Delivered += len(delivered)
		tel.Undelivered += len(undelivered)

		if cfg.Progress != nil {
			cfg.Progress(len(delivered), batchBytes(msgs, delivered))
		}

		if err := applyDeliveryMode(cfg.Mode, account, folder, len(batch), delivered, undelivered, tel); err != nil {
			return hooks, err
		}

		if len(delivered) > 0 {
			if flag := markFlagOrNoop(mark); flag != "" {
				storeFlag(s, account, folder, delivered, cfg.StoreNumber, flag, markAddOrNoop(mark), tel)
			}
			if len(cfg.NewMailHook) > 0 {
				hooks = append(hooks, cfg.NewMailHook)
			}
		}
	}

	return hooks, nil
}

func markFlagOrNoop(m config.Marking) string {
	flag, _, ok := markFlag(m)
	if !ok {
		return ""
	}
	return flag
}

func markAddOrNoop(m config.Marking) bool {
	_, add, _ := markFlag(m)
	return add
}

// resolveMark implements config.MarkAuto's resolution (spec.md §3):
// seen iff the filter requires unseen only; flagged iff it requires
// unflagged only; otherwise noop.
func resolveMark(m config.Marking, seen, flagged config.Tri) config.Marking {
	if m != config.MarkAuto {
		return m
	}
	if seen == config.TriFalse {
		return config.MarkSeen
	}
	if flagged == config.TriFalse {
		return config.MarkFlagged
	}
	return config.MarkNoop
}

// applyDeliveryMode implements the three per-batch failure policies
// (spec.md §4.4 step 7).
func applyDeliveryMode(mode config.DeliveryMode, account, folder string, batchLen int, delivered, undelivered []uint32, tel *Telemetry) error {
	switch mode {
	case config.DeliveryYolo:
		return nil
	case config.DeliveryParanoid:
		if len(undelivered) > 0 {
			err := result.New(result.Catastrophic, "paranoid-delivery-loss", fmt.Errorf("%d of %d messages undelivered", len(undelivered), batchLen)).With(account, folder)
			tel.AddError(err)
			return err
		}
		return nil
	default: // DeliveryCareful
		if len(delivered) == 0 {
			err := result.New(result.AccountSoft, "careful-zero-delivery", fmt.Errorf("0 of %d messages in batch were delivered", batchLen)).With(account, folder)
			tel.AddError(err)
			return err
		}
		return nil
	}
}

// probeSizes issues UID FETCH (RFC822.SIZE) in groups of at most
// fetchNumber, returning (uid,size) pairs in search order. A response
// missing UID or RFC822.SIZE (e.g. a bare FLAGS update from another
// client) is treated as a concurrent-mutation signal: it is recorded
// as a folder-scoped error and the corresponding UID is simply dropped
// from the sized list rather than fetched.
func probeSizes(s *imapnet.Session, account, folder string, uids []uint32, fetchNumber int, tel *Telemetry) ([]sizedUID, error) {
	sizeOf := make(map[uint32]int)

	for _, group := range chunkUIDs(uids, fetchNumber) {
		resp, err := s.Command("UID FETCH %s (RFC822.SIZE)", uidSet(group))
		if err != nil {
			scoped := result.New(result.Folder, "fetch-size", err).With(account, folder)
			tel.AddError(scoped)
			return nil, scoped
		}
		if !resp.OK {
			scoped := result.New(result.Folder, "fetch-size", serverErr(resp)).With(account, folder)
			tel.AddError(scoped)
			return nil, scoped
		}

		for _, nodes := range resp.Untagged {
			attrs, uid, ok := fetchAttrs(nodes)
			if !ok {
				if len(nodes) >= 3 && nodes[2].EqualFold("FETCH") {
					tel.AddError(result.New(result.Folder, "conflict", fmt.Errorf("untagged FETCH without UID during size probe")).With(account, folder))
				}
				continue
			}
			sizeNode, hasSize := attrs["RFC822.SIZE"]
			if !hasSize {
				tel.AddError(result.New(result.Folder, "conflict", fmt.Errorf("untagged FETCH without RFC822.SIZE during size probe (uid=%d)", uid)).With(account, folder))
				continue
			}
			var sz int
			fmt.Sscanf(sizeNode.Text(), "%d", &sz)
			sizeOf[uid] = sz
		}
	}

	var out []sizedUID
	for _, u := range uids {
		if sz, ok := sizeOf[u]; ok {
			out = append(out, sizedUID{uid: u, size: sz})
		}
	}
	return out, nil
}

// fetchAttrs extracts the UID and data-item map from one untagged
// `* N FETCH (...)` response, reporting ok=false for anything that
// isn't that shape or lacks a UID attribute — the concurrent-mutation
// signal spec.md §7 describes.
func fetchAttrs(nodes []wire.Node) (attrs map[string]wire.Node, uid uint32, ok bool) {
	if len(nodes) < 3 || !nodes[len(nodes)-1].IsList || !nodes[2].EqualFold("FETCH") {
		return nil, 0, false
	}
	m, err := wire.AttrMap(nodes[len(nodes)-1].List)
	if err != nil {
		return nil, 0, false
	}
	uidNode, hasUID := m["UID"]
	if !hasUID {
		return nil, 0, false
	}
	var u uint32
	if _, err := fmt.Sscanf(uidNode.Text(), "%d", &u); err != nil {
		return nil, 0, false
	}
	return m, u, true
}

// packBatches greedily groups sized UIDs (spec.md §4.4 step 3): each
// batch holds at most batchNumber UIDs, and the running size total
// plus the next message's size must stay strictly below batchSize,
// except that a single oversize message always gets its own batch.
func packBatches(sized []sizedUID, batchNumber, batchSize int) [][]uint32 {
	var batches [][]uint32
	var current []uint32
	var total int

	flush := func() {
		if len(current) > 0 {
			batches = append(batches, current)
			current = nil
			total = 0
		}
	}

	for _, su := range sized {
		fitsCount := batchNumber <= 0 || len(current)+1 <= batchNumber
		fitsSize := batchSize <= 0 || total+su.size < batchSize
		if len(current) > 0 && (!fitsCount || !fitsSize) {
			flush()
		}
		current = append(current, su.uid)
		total += su.size
		if batchNumber > 0 && len(current) >= batchNumber {
			flush()
		}
	}
	flush()
	return batches
}

// fetchBodies issues UID FETCH (BODY.PEEK[HEADER] BODY.PEEK[TEXT]) for
// one batch, normalizing CRLF to LF in both parts before returning.
func fetchBodies(s *imapnet.Session, account, folder string, uids []uint32, tel *Telemetry) ([]deliver.Message, error) {
	resp, err := s.Command("UID FETCH %s (BODY.PEEK[HEADER] BODY.PEEK[TEXT])", uidSet(uids))
	if err != nil {
		scoped := result.New(result.Folder, "fetch-body", err).With(account, folder)
		tel.AddError(scoped)
		return nil, scoped
	}
	if !resp.OK {
		scoped := result.New(result.Folder, "fetch-body", serverErr(resp)).With(account, folder)
		tel.AddError(scoped)
		return nil, scoped
	}

	var msgs []deliver.Message
	for _, nodes := range resp.Untagged {
		attrs, uid, ok := fetchAttrs(nodes)
		if !ok {
			if len(nodes) >= 3 && nodes[2].EqualFold("FETCH") {
				tel.AddError(result.New(result.Folder, "conflict", fmt.Errorf("untagged FETCH without UID during body retrieval")).With(account, folder))
			}
			continue
		}
		header, hasHeader := attrs["BODY[HEADER]"]
		body, hasBody := attrs["BODY[TEXT]"]
		if !hasHeader || !hasBody {
			tel.AddError(result.New(result.Folder, "conflict", fmt.Errorf("untagged FETCH missing body parts during body retrieval (uid=%d)", uid)).With(account, folder))
			continue
		}
		msgs = append(msgs, deliver.Message{
			UID:    uid,
			Header: normalizeLineEndings(header.Atom),
			Body:   normalizeLineEndings(body.Atom),
		})
	}
	return msgs, nil
}

func normalizeLineEndings(b []byte) []byte {
	return bytes.ReplaceAll(b, []byte("\r\n"), []byte("\n"))
}

// batchBytes sums the header+body size of every message in msgs whose
// UID appears in delivered, for the Reporter's progress line.
func batchBytes(msgs []deliver.Message, delivered []uint32) int {
	ok := make(map[uint32]bool, len(delivered))
	for _, u := range delivered {
		ok[u] = true
	}
	var total int
	for _, m := range msgs {
		if ok[m.UID] {
			total += len(m.Header) + len(m.Body)
		}
	}
	return total
}
