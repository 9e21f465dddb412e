package mailtest

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/backend"
	"github.com/emersion/go-imap/backend/backendutil"
	"github.com/emersion/go-message/textproto"
)

// Message is one INBOX message
type Message struct {
	UID  uint32
	Raw  []byte // full RFC 5322 message
	Seen bool

	// Omit makes the server answer FETCH for this message with nothing
	Omit bool
}

// Header builds a minimal message with the given header fields. Empty
// values leave the field out.
func Header(subject, from string, date time.Time) []byte {
	var b bytes.Buffer
	if from != "" {
		fmt.Fprintf(&b, "From: %s\r\n", from)
	}
	if subject != "" {
		fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	}
	if !date.IsZero() {
		fmt.Fprintf(&b, "Date: %s\r\n", date.Format(time.RFC1123Z))
	}
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\nbody\r\n")
	return b.Bytes()
}

type account struct {
	password   string
	messages   []*Message // ascending UID
	failSearch bool
}

// Backend implements backend.Backend over in-memory accounts
type Backend struct {
	mu       sync.Mutex
	accounts map[string]*account
	open     int
	logins   int
	fetches  int
}

// NewBackend creates an empty backend
func NewBackend() *Backend {
	return &Backend{accounts: make(map[string]*account)}
}

// AddUser creates an account with an empty INBOX
func (b *Backend) AddUser(username, password string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.accounts[username] = &account{password: password}
}

// SetPassword changes the password of an existing account
func (b *Backend) SetPassword(username, password string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if a, ok := b.accounts[username]; ok {
		a.password = password
	}
}

// Deliver adds messages to the user's INBOX. UIDs must be unique.
func (b *Backend) Deliver(username string, msgs ...*Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	a := b.accounts[username]
	a.messages = append(a.messages, msgs...)
	slices.SortFunc(a.messages, func(x, y *Message) int {
		return int(x.UID) - int(y.UID)
	})
}

// FailSearch makes SEARCH fail for the user
func (b *Backend) FailSearch(username string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.accounts[username].failSearch = true
}

// SeenCount returns how many of the user's messages carry \Seen
func (b *Backend) SeenCount(username string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, m := range b.accounts[username].messages {
		if m.Seen {
			n++
		}
	}
	return n
}

// OpenSessions returns the number of authenticated connections not yet
// closed
func (b *Backend) OpenSessions() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.open
}

// Logins returns the number of successful logins so far
func (b *Backend) Logins() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.logins
}

// Fetches returns the number of messages served by FETCH so far
func (b *Backend) Fetches() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fetches
}

// WaitClosed waits until every authenticated connection is closed
func (b *Backend) WaitClosed(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if b.OpenSessions() == 0 {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return b.OpenSessions() == 0
}

// Login authenticates a user
func (b *Backend) Login(_ *imap.ConnInfo, username, password string) (backend.User, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	a, ok := b.accounts[username]
	if !ok || a.password != password {
		return nil, backend.ErrInvalidCredentials
	}

	b.open++
	b.logins++
	return &user{name: username, backend: b}, nil
}

type user struct {
	name    string
	backend *Backend
	once    sync.Once
}

func (u *user) Username() string {
	return u.name
}

func (u *user) ListMailboxes(bool) ([]backend.Mailbox, error) {
	return []backend.Mailbox{&mailbox{user: u}}, nil
}

func (u *user) GetMailbox(name string) (backend.Mailbox, error) {
	if name != "INBOX" {
		return nil, backend.ErrNoSuchMailbox
	}
	return &mailbox{user: u}, nil
}

func (u *user) CreateMailbox(string) error {
	return errors.New("creating mailboxes is not supported")
}

func (u *user) DeleteMailbox(string) error {
	return errors.New("deleting mailboxes is not supported")
}

func (u *user) RenameMailbox(string, string) error {
	return errors.New("renaming mailboxes is not supported")
}

// Logout runs when the connection closes, whatever the reason
func (u *user) Logout() error {
	u.once.Do(func() {
		u.backend.mu.Lock()
		u.backend.open--
		u.backend.mu.Unlock()
	})
	return nil
}

type mailbox struct {
	user *user
}

func (m *mailbox) account() *account {
	return m.user.backend.accounts[m.user.name]
}

func (m *mailbox) Name() string {
	return "INBOX"
}

func (m *mailbox) Info() (*imap.MailboxInfo, error) {
	return &imap.MailboxInfo{Delimiter: "/", Name: "INBOX"}, nil
}

func (m *mailbox) Status(items []imap.StatusItem) (*imap.MailboxStatus, error) {
	b := m.user.backend
	b.mu.Lock()
	defer b.mu.Unlock()
	msgs := m.account().messages

	status := imap.NewMailboxStatus("INBOX", items)
	status.Flags = []string{imap.SeenFlag}
	status.PermanentFlags = []string{imap.SeenFlag}

	for _, item := range items {
		switch item {
		case imap.StatusMessages:
			status.Messages = uint32(len(msgs))
		case imap.StatusUidNext:
			next := uint32(1)
			if len(msgs) > 0 {
				next = msgs[len(msgs)-1].UID + 1
			}
			status.UidNext = next
		case imap.StatusUidValidity:
			status.UidValidity = 1
		}
	}
	return status, nil
}

func (m *mailbox) SetSubscribed(bool) error {
	return nil
}

func (m *mailbox) Check() error {
	return nil
}

func (m *mailbox) ListMessages(uid bool, seqset *imap.SeqSet, items []imap.FetchItem, ch chan<- *imap.Message) error {
	defer close(ch)

	b := m.user.backend
	b.mu.Lock()
	var out []*imap.Message
	for i, msg := range m.account().messages {
		seqNum := uint32(i + 1)
		id := seqNum
		if uid {
			id = msg.UID
		}
		if !seqset.Contains(id) || msg.Omit {
			continue
		}

		fetched, err := fetch(msg, seqNum, items)
		if err != nil {
			continue
		}
		b.fetches++
		out = append(out, fetched)
	}
	b.mu.Unlock()

	for _, msg := range out {
		ch <- msg
	}
	return nil
}

func fetch(msg *Message, seqNum uint32, items []imap.FetchItem) (*imap.Message, error) {
	fetched := imap.NewMessage(seqNum, items)
	for _, item := range items {
		switch item {
		case imap.FetchUid:
			fetched.Uid = msg.UID
		case imap.FetchFlags:
			if msg.Seen {
				fetched.Flags = []string{imap.SeenFlag}
			}
		case imap.FetchRFC822Size:
			fetched.Size = uint32(len(msg.Raw))
		default:
			section, err := imap.ParseBodySectionName(item)
			if err != nil {
				break
			}

			body := bufio.NewReader(bytes.NewReader(msg.Raw))
			hdr, err := textproto.ReadHeader(body)
			if err != nil && !errors.Is(err, io.EOF) {
				return nil, err
			}

			l, err := backendutil.FetchBodySection(hdr, body, section)
			if err != nil {
				return nil, err
			}
			fetched.Body[section] = l

			if !section.Peek {
				msg.Seen = true
			}
		}
	}
	return fetched, nil
}

func (m *mailbox) SearchMessages(uid bool, _ *imap.SearchCriteria) ([]uint32, error) {
	b := m.user.backend
	b.mu.Lock()
	defer b.mu.Unlock()

	a := m.account()
	if a.failSearch {
		return nil, errors.New("search backend unavailable")
	}

	ids := make([]uint32, 0, len(a.messages))
	for i, msg := range a.messages {
		if uid {
			ids = append(ids, msg.UID)
		} else {
			ids = append(ids, uint32(i+1))
		}
	}
	return ids, nil
}

func (m *mailbox) CreateMessage([]string, time.Time, imap.Literal) error {
	return errors.New("append is not supported")
}

func (m *mailbox) UpdateMessagesFlags(bool, *imap.SeqSet, imap.FlagsOp, []string) error {
	return errors.New("store is not supported")
}

func (m *mailbox) CopyMessages(bool, *imap.SeqSet, string) error {
	return errors.New("copy is not supported")
}

func (m *mailbox) Expunge() error {
	return errors.New("expunge is not supported")
}
