package parser

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"regexp"
	"strings"
	"time"

	_ "github.com/emersion/go-message/charset" // legacy charsets in encoded words
	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-message/textproto"

	"github.com/univo-tech-dev/univo-tech-dev-sub002/pkg/models"
)

// Header is the normalized view of a message header block
type Header struct {
	Subject   string
	From      string
	DateRaw   string
	Timestamp int64 // epoch milliseconds
}

var (
	whitespaceRegex = regexp.MustCompile(`\s+`)
	// Zero-width and other invisible characters some mailers put in subjects
	invisibleRegex = regexp.MustCompile(`[\x{200B}-\x{200D}\x{FEFF}\x{00AD}\x{2060}-\x{2064}]+`)
)

// Date layouts tried when net/mail rejects the Date header
var fallbackLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04 -0700",
	time.RFC3339,
}

// Sentinel returns the header used when nothing could be read for a message
func Sentinel(now time.Time) Header {
	return Header{
		Subject:   models.NoSubject,
		From:      models.UnknownSender,
		DateRaw:   now.UTC().Format(time.RFC3339),
		Timestamp: now.UnixMilli(),
	}
}

// ParseHeader normalizes a raw RFC 5322 header block. It never fails:
// fields that are missing or unreadable get sentinel values, and a missing
// or unparseable date falls back to now.
func ParseHeader(raw []byte, now time.Time) Header {
	h := Sentinel(now)

	th, err := textproto.ReadHeader(bufio.NewReader(bytes.NewReader(raw)))
	if err != nil && !errors.Is(err, io.EOF) && th.Len() == 0 {
		return h
	}
	mh := mail.Header{}
	mh.Header.Header = th

	if subject := decodeSubject(&mh); subject != "" {
		h.Subject = subject
	}
	if from := formatFrom(&mh); from != "" {
		h.From = from
	}

	if dateRaw := strings.TrimSpace(mh.Get("Date")); dateRaw != "" {
		h.DateRaw = dateRaw
		if t, ok := parseDate(&mh, clean(dateRaw)); ok {
			h.Timestamp = t.UnixMilli()
		}
	}

	return h
}

func decodeSubject(h *mail.Header) string {
	// Subject returns the raw text on a decoding error
	subject, _ := h.Subject()
	return clean(subject)
}

// formatFrom renders the first From address as "Name <addr>" or "addr".
// When the list does not parse, the decoded raw field is used as is.
func formatFrom(h *mail.Header) string {
	addrs, err := h.AddressList("From")
	if err == nil && len(addrs) > 0 {
		a := addrs[0]
		name := clean(a.Name)
		switch {
		case name != "" && a.Address != "":
			return name + " <" + a.Address + ">"
		case a.Address != "":
			return a.Address
		case name != "":
			return name
		}
	}

	text, _ := h.Text("From")
	return clean(text)
}

func parseDate(h *mail.Header, raw string) (time.Time, bool) {
	if t, err := h.Date(); err == nil && !t.IsZero() {
		return t, true
	}

	// Strip a trailing comment such as "(UTC)" or "(+03)"
	if i := strings.IndexByte(raw, '('); i > 0 {
		raw = strings.TrimSpace(raw[:i])
	}
	for _, layout := range fallbackLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// clean removes invisible characters and collapses folded whitespace
func clean(s string) string {
	s = invisibleRegex.ReplaceAllString(s, "")
	s = whitespaceRegex.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
