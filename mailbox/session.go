package mailbox

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/sirupsen/logrus"

	"mailsync/models"
	"mailsync/utils"
)

// Session is one authenticated, exclusively owned connection to a mail server.
// It must not be shared between concurrent callers.
type Session interface {
	// Select opens folder and returns the number of messages it holds
	Select(folder string, readOnly bool) (uint32, error)
	// ListFolders returns one raw listing line per folder
	ListFolders() ([]string, error)
	// SearchAll returns every message sequence number of the selected folder, ascending
	SearchAll() ([]uint32, error)
	// FetchRaw returns the full RFC 822 bytes of one message
	FetchRaw(seqNum uint32) ([]byte, error)
	Logout() error
}

// Dialer opens authenticated sessions
type Dialer interface {
	Dial(ctx context.Context, cfg models.IMAPConfig, email, password string) (Session, error)
}

// IMAPDialer opens sessions with go-imap
type IMAPDialer struct {
	ConnectTimeout time.Duration
	CommandTimeout time.Duration
	TLSConfig      *tls.Config
	Log            logrus.FieldLogger
}

func NewIMAPDialer(connectTimeout, commandTimeout time.Duration, log logrus.FieldLogger) *IMAPDialer {
	return &IMAPDialer{
		ConnectTimeout: connectTimeout,
		CommandTimeout: commandTimeout,
		Log:            log,
	}
}

// Dial connects (implicit TLS when cfg.UseSSL), logs in and returns the session.
// Connect-phase timeouts come back as KindTimeout, every other connect or
// login failure as KindAuthFailure.
func (d *IMAPDialer) Dial(ctx context.Context, cfg models.IMAPConfig, email, password string) (Session, error) {
	addr := net.JoinHostPort(cfg.Host, fmt.Sprint(cfg.Port))
	logContext := logrus.Fields{
		"imap_host": cfg.Host,
		"imap_port": cfg.Port,
		"use_ssl":   cfg.UseSSL,
	}

	connectTimeout := d.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 10 * time.Second
	}
	dialCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	// go-imap only bounds the greeting read when handed a *net.Dialer with a Timeout
	dialer := &net.Dialer{Timeout: connectTimeout}
	if deadline, ok := dialCtx.Deadline(); ok {
		dialer.Deadline = deadline
	}

	var (
		c   *client.Client
		err error
	)
	if cfg.UseSSL {
		tlsConfig := d.TLSConfig
		if tlsConfig == nil {
			tlsConfig = &tls.Config{ServerName: cfg.Host}
		}
		c, err = client.DialWithDialerTLS(dialer, addr, tlsConfig)
	} else {
		c, err = client.DialWithDialer(dialer, addr)
	}
	if err != nil {
		d.Log.WithFields(logContext).WithError(err).Error("IMAP connection error")
		if isTimeout(err) || errors.Is(dialCtx.Err(), context.DeadlineExceeded) {
			return nil, utils.Timeout(
				fmt.Sprintf("IMAP connection timed out after %s; port %d may be blocked by a firewall", connectTimeout, cfg.Port),
				err,
			)
		}
		return nil, utils.AuthFailure("IMAP connection failed", err)
	}

	c.Timeout = connectTimeout
	if err := c.Login(email, password); err != nil {
		d.Log.WithFields(logContext).WithError(err).Error("IMAP login error")
		_ = c.Logout()
		if isTimeout(err) {
			return nil, utils.Timeout(
				fmt.Sprintf("IMAP login timed out after %s; port %d may be blocked by a firewall", connectTimeout, cfg.Port),
				err,
			)
		}
		return nil, utils.AuthFailure("IMAP connection failed", err)
	}
	c.Timeout = d.CommandTimeout

	return &IMAPSession{client: c}, nil
}

func isTimeout(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, context.DeadlineExceeded)
}

// IMAPSession is a Session backed by a go-imap client
type IMAPSession struct {
	client *client.Client
}

func (s *IMAPSession) Select(folder string, readOnly bool) (uint32, error) {
	status, err := s.client.Select(folder, readOnly)
	if err != nil {
		return 0, err
	}
	return status.Messages, nil
}

func (s *IMAPSession) ListFolders() ([]string, error) {
	mailboxes := make(chan *imap.MailboxInfo, 10)
	done := make(chan error, 1)
	go func() {
		done <- s.client.List("", "*", mailboxes)
	}()

	var lines []string
	for info := range mailboxes {
		lines = append(lines, listingLine(info))
	}

	if err := <-done; err != nil {
		return lines, err
	}
	return lines, nil
}

// listingLine renders a LIST response the way servers put it on the wire:
// (attributes) "delimiter" "name"
func listingLine(info *imap.MailboxInfo) string {
	delimiter := "NIL"
	if info.Delimiter != "" {
		delimiter = `"` + info.Delimiter + `"`
	}
	return fmt.Sprintf(`(%s) %s "%s"`, strings.Join(info.Attributes, " "), delimiter, info.Name)
}

func (s *IMAPSession) SearchAll() ([]uint32, error) {
	return s.client.Search(imap.NewSearchCriteria())
}

func (s *IMAPSession) FetchRaw(seqNum uint32) ([]byte, error) {
	seqset := new(imap.SeqSet)
	seqset.AddNum(seqNum)

	// BODY.PEEK[] leaves the \Seen flag alone
	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{section.FetchItem()}

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- s.client.Fetch(seqset, items, messages)
	}()

	var (
		raw     []byte
		readErr error
		found   bool
	)
	for msg := range messages {
		literal := msg.GetBody(section)
		if literal == nil || found {
			continue
		}
		found = true
		raw, readErr = io.ReadAll(literal)
	}

	if err := <-done; err != nil {
		return nil, err
	}
	if readErr != nil {
		return nil, readErr
	}
	if !found {
		return nil, fmt.Errorf("message %d has no body", seqNum)
	}
	return raw, nil
}

func (s *IMAPSession) Logout() error {
	return s.client.Logout()
}
