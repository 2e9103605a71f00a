package action

import (
	"strconv"
	"strings"
)

// chunkUIDs splits uids into groups of at most n (n<=0 means one chunk).
func chunkUIDs(uids []uint32, n int) [][]uint32 {
	if n <= 0 || len(uids) <= n {
		return [][]uint32{uids}
	}
	var chunks [][]uint32
	for len(uids) > 0 {
		take := n
		if take > len(uids) {
			take = len(uids)
		}
		chunks = append(chunks, uids[:take])
		uids = uids[take:]
	}
	return chunks
}

// uidSet renders a UID list as IMAP's comma-separated set syntax.
func uidSet(uids []uint32) string {
	parts := make([]string, len(uids))
	for i, u := range uids {
		parts[i] = strconv.FormatUint(uint64(u), 10)
	}
	return strings.Join(parts, ",")
}
