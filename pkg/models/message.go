package models

import "time"

// Sentinels substituted when a header field is missing or unreadable
const (
	NoSubject     = "(no subject)"
	UnknownSender = "(unknown sender)"
)

// MessageSummary is the header-only view of one INBOX message
type MessageSummary struct {
	UID       uint32 `json:"id"`                // IMAP UID
	SeqNum    uint32 `json:"seq"`               // Sequence number at fetch time
	Subject   string `json:"subject"`           // Decoded Subject header
	From      string `json:"from"`              // Display form of the first From address
	DateRaw   string `json:"date"`              // Date header as sent
	Timestamp int64  `json:"timestamp"`         // Epoch milliseconds parsed from DateRaw
	Starred   bool   `json:"starred,omitempty"` // Caller marked this UID as starred
}

// Time returns the parsed timestamp as a time.Time
func (m MessageSummary) Time() time.Time {
	return time.UnixMilli(m.Timestamp)
}

// Snapshot is an ordered list of summaries, newest UID first
type Snapshot []MessageSummary

// UIDs returns the UIDs in snapshot order
func (s Snapshot) UIDs() []uint32 {
	uids := make([]uint32, len(s))
	for i, m := range s {
		uids[i] = m.UID
	}
	return uids
}

// MarkStarred flags every summary whose UID is in starred
func (s Snapshot) MarkStarred(starred []uint32) {
	if len(starred) == 0 {
		return
	}
	set := make(map[uint32]struct{}, len(starred))
	for _, uid := range starred {
		set[uid] = struct{}{}
	}
	for i := range s {
		if _, ok := set[s[i].UID]; ok {
			s[i].Starred = true
		}
	}
}
