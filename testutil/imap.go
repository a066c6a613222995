package testutil

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/emersion/go-imap/backend/memory"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-imap/server"
	"github.com/stretchr/testify/require"

	"mailsync/mailbox"
	"mailsync/models"
)

// Credentials accepted by the in-process IMAP server
const (
	IMAPUsername = "username"
	IMAPPassword = "password"
)

// IMAPServer is a real IMAP server backed by go-imap's in-memory backend.
// Its INBOX starts with one message.
type IMAPServer struct {
	Host string
	Port int

	addr    string
	mu      sync.Mutex
	folders map[string]bool
}

// StartIMAPServer listens on a loopback port until the test ends
func StartIMAPServer(t *testing.T) *IMAPServer {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := server.New(memory.New())
	s.AllowInsecureAuth = true
	go func() {
		_ = s.Serve(ln)
	}()
	t.Cleanup(func() { _ = s.Close() })

	host, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	return &IMAPServer{
		Host:    host,
		Port:    port,
		addr:    ln.Addr().String(),
		folders: map[string]bool{"INBOX": true},
	}
}

// Config returns plaintext connection parameters for the server
func (s *IMAPServer) Config() models.IMAPConfig {
	return models.IMAPConfig{Host: s.Host, Port: s.Port, UseSSL: false}
}

// Append stores raw in folder, creating the folder on first use
func (s *IMAPServer) Append(t *testing.T, folder string, raw []byte) {
	t.Helper()

	c, err := client.Dial(s.addr)
	require.NoError(t, err)
	defer c.Logout()
	require.NoError(t, c.Login(IMAPUsername, IMAPPassword))

	s.mu.Lock()
	if !s.folders[folder] {
		require.NoError(t, c.Create(folder))
		s.folders[folder] = true
	}
	s.mu.Unlock()

	require.NoError(t, c.Append(folder, nil, time.Now(), bytes.NewBuffer(raw)))
}

// RawMessage builds a minimal plain text message
func RawMessage(messageID, subject string) []byte {
	return []byte(fmt.Sprintf(
		"From: Sender <sender@example.com>\r\n"+
			"To: owner@example.com\r\n"+
			"Subject: %s\r\n"+
			"Date: Mon, 02 Jan 2006 15:04:05 +0000\r\n"+
			"Message-ID: %s\r\n"+
			"Content-Type: text/plain; charset=utf-8\r\n"+
			"\r\n"+
			"body of %s\r\n",
		subject, messageID, subject,
	))
}

// FakeSession is a scripted mailbox.Session
type FakeSession struct {
	mu sync.Mutex

	// Folders maps folder path to its messages, in server order
	Folders map[string][][]byte
	// Lines overrides the listing lines built from Folders
	Lines []string
	// FetchErrors fails fetches of the given sequence numbers
	FetchErrors map[uint32]error
	SelectErr   error
	SearchErr   error
	// Unselectable folders fail Select
	Unselectable map[string]bool

	selected string
	Fetched  []uint32
	LogOuts  int
}

func NewFakeSession() *FakeSession {
	return &FakeSession{
		Folders:      map[string][][]byte{},
		FetchErrors:  map[uint32]error{},
		Unselectable: map[string]bool{},
	}
}

func (f *FakeSession) Select(folder string, _ bool) (uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SelectErr != nil {
		return 0, f.SelectErr
	}
	msgs, ok := f.Folders[folder]
	if !ok || f.Unselectable[folder] {
		return 0, fmt.Errorf("no such folder %q", folder)
	}
	f.selected = folder
	return uint32(len(msgs)), nil
}

func (f *FakeSession) ListFolders() ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Lines != nil {
		return f.Lines, nil
	}
	lines := make([]string, 0, len(f.Folders))
	for name := range f.Folders {
		lines = append(lines, fmt.Sprintf(`(\HasNoChildren) "/" "%s"`, name))
	}
	return lines, nil
}

func (f *FakeSession) SearchAll() ([]uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SearchErr != nil {
		return nil, f.SearchErr
	}
	ids := make([]uint32, len(f.Folders[f.selected]))
	for i := range ids {
		ids[i] = uint32(i + 1)
	}
	return ids, nil
}

func (f *FakeSession) FetchRaw(seqNum uint32) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Fetched = append(f.Fetched, seqNum)
	if err := f.FetchErrors[seqNum]; err != nil {
		return nil, err
	}
	msgs := f.Folders[f.selected]
	if seqNum == 0 || int(seqNum) > len(msgs) {
		return nil, errors.New("no such message")
	}
	return msgs[seqNum-1], nil
}

func (f *FakeSession) Logout() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.LogOuts++
	return nil
}

// FakeDialer hands out one FakeSession, or fails with Err
type FakeDialer struct {
	Session *FakeSession
	Err     error

	mu        sync.Mutex
	Dials     int
	Passwords []string
}

func (d *FakeDialer) Dial(_ context.Context, _ models.IMAPConfig, _, password string) (mailbox.Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Dials++
	d.Passwords = append(d.Passwords, password)
	if d.Err != nil {
		return nil, d.Err
	}
	return d.Session, nil
}
