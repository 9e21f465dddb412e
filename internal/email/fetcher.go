package email

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/univo-tech-dev/univo-tech-dev-sub002/internal/parser"
	"github.com/univo-tech-dev/univo-tech-dev-sub002/pkg/models"
)

// Fetcher retrieves and normalizes message headers
type Fetcher struct {
	logger *slog.Logger
	now    func() time.Time
}

// NewFetcher creates a new header fetcher
func NewFetcher(logger *slog.Logger) *Fetcher {
	return &Fetcher{
		logger: logger.With("component", "fetcher"),
		now:    time.Now,
	}
}

var headerSection = &imap.FetchItemBodySection{
	Specifier: imap.PartSpecifierHeader,
	Peek:      true,
}

type fetchResult struct {
	uid  uint32
	bufs []*imapclient.FetchMessageBuffer
	err  error
}

// FetchHeaders returns one summary per identifier, highest UID first.
//
// One UID FETCH is issued per message and all of them are in flight on the
// connection before any is awaited. A message whose header cannot be
// fetched or parsed still gets a summary built from sentinel values.
func (f *Fetcher) FetchHeaders(ctx context.Context, conn *Conn, ids []Identifier) models.Snapshot {
	if len(ids) == 0 {
		return models.Snapshot{}
	}

	options := &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{headerSection},
	}

	results := make([]fetchResult, len(ids))
	var wg sync.WaitGroup
	for i, id := range ids {
		cmd := conn.client.Fetch(imap.UIDSetNum(imap.UID(id.UID)), options)

		// Drain each command as soon as it is issued so the connection
		// reader never blocks on an unconsumed response
		wg.Add(1)
		go func(i int, uid uint32, cmd *imapclient.FetchCommand) {
			defer wg.Done()
			bufs, err := cmd.Collect()
			results[i] = fetchResult{uid: uid, bufs: bufs, err: err}
		}(i, id.UID, cmd)
	}
	wg.Wait()

	// Pool by the UID each response carries
	byUID := make(map[uint32]*imapclient.FetchMessageBuffer, len(ids))
	for _, r := range results {
		if r.err != nil {
			f.logger.Warn("failed to fetch header", "uid", r.uid, "error", r.err)
		}
		for _, buf := range r.bufs {
			if buf == nil || buf.UID == 0 {
				continue
			}
			byUID[uint32(buf.UID)] = buf
		}
	}

	now := f.now()
	snapshot := make(models.Snapshot, 0, len(ids))
	var total int
	for _, id := range ids {
		summary := models.MessageSummary{UID: id.UID, SeqNum: id.SeqNum}

		var h parser.Header
		var raw []byte
		if buf, ok := byUID[id.UID]; ok {
			raw = buf.FindBodySection(headerSection)
			if buf.SeqNum != 0 {
				summary.SeqNum = buf.SeqNum
			}
		}
		if raw == nil {
			if ctx.Err() == nil {
				f.logger.Warn("header missing from response", "uid", id.UID)
			}
			h = parser.Sentinel(now)
		} else {
			total += len(raw)
			h = parser.ParseHeader(raw, now)
		}

		summary.Subject = h.Subject
		summary.From = h.From
		summary.DateRaw = h.DateRaw
		summary.Timestamp = h.Timestamp
		snapshot = append(snapshot, summary)
	}

	slices.SortFunc(snapshot, func(a, b models.MessageSummary) int {
		return cmp.Compare(b.UID, a.UID)
	})

	f.logger.Debug("fetched headers",
		"count", len(snapshot),
		"size", humanize.Bytes(uint64(total)))
	return snapshot
}
