package email

import (
	"cmp"
	"context"
	"slices"

	"github.com/emersion/go-imap/v2"
)

// DefaultSnapshotSize is how many of the newest messages a snapshot holds
const DefaultSnapshotSize = 20

// Identifier locates one message in the selected mailbox
type Identifier struct {
	UID    uint32
	SeqNum uint32
}

// ListUIDs returns every message identifier in the mailbox, oldest first,
// without fetching any content. An empty mailbox yields an empty slice.
func ListUIDs(ctx context.Context, conn *Conn) ([]Identifier, error) {
	data, err := conn.client.UIDSearch(&imap.SearchCriteria{}, nil).Wait()
	if err != nil {
		if ctx.Err() != nil {
			return nil, newError(ErrNetwork, "search", ctx.Err())
		}
		return nil, classify("search", err, ErrProtocol)
	}

	uids := data.AllUIDs()
	slices.Sort(uids)

	// Sequence numbers follow ascending UID order within a mailbox
	ids := make([]Identifier, len(uids))
	for i, uid := range uids {
		ids[i] = Identifier{UID: uint32(uid), SeqNum: uint32(i + 1)}
	}
	return ids, nil
}

// SelectRecent returns the n identifiers with the highest UIDs, highest
// first. UIDs grow with delivery, so this is "most recently delivered"
// without trusting any Date header. The input is not modified.
func SelectRecent(ids []Identifier, n int) []Identifier {
	sorted := slices.Clone(ids)
	slices.SortFunc(sorted, func(a, b Identifier) int {
		return cmp.Compare(b.UID, a.UID)
	})
	if n >= 0 && len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}
