package testutil

import (
	"io"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/emersion/go-smtp"
	"github.com/stretchr/testify/require"

	"mailsync/models"
)

// Delivery is one message accepted by the capture server
type Delivery struct {
	From string
	To   []string
	Data []byte
}

// SMTPServer is an in-process go-smtp server that records every delivery
type SMTPServer struct {
	Host string
	Port int

	mu         sync.Mutex
	deliveries []Delivery
}

// StartSMTPServer listens on a loopback port until the test ends
func StartSMTPServer(t *testing.T) *SMTPServer {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	capture := &SMTPServer{}
	s := smtp.NewServer(capture)
	s.Domain = "localhost"
	s.ReadTimeout = 10 * time.Second
	s.WriteTimeout = 10 * time.Second
	go func() {
		_ = s.Serve(ln)
	}()
	t.Cleanup(func() { _ = s.Close() })

	host, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	capture.Host = host
	capture.Port, err = strconv.Atoi(portStr)
	require.NoError(t, err)

	return capture
}

// Config returns plaintext submission parameters for the server
func (s *SMTPServer) Config() models.SMTPConfig {
	return models.SMTPConfig{Host: s.Host, Port: s.Port, UseTLS: false}
}

// Deliveries returns a copy of everything received so far
func (s *SMTPServer) Deliveries() []Delivery {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Delivery(nil), s.deliveries...)
}

func (s *SMTPServer) NewSession(_ *smtp.Conn) (smtp.Session, error) {
	return &captureSession{server: s}, nil
}

type captureSession struct {
	server *SMTPServer
	from   string
	to     []string
}

func (c *captureSession) AuthPlain(_, _ string) error {
	return smtp.ErrAuthUnsupported
}

func (c *captureSession) Mail(from string, _ *smtp.MailOptions) error {
	c.from = from
	return nil
}

func (c *captureSession) Rcpt(to string, _ *smtp.RcptOptions) error {
	c.to = append(c.to, to)
	return nil
}

func (c *captureSession) Data(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	c.server.mu.Lock()
	c.server.deliveries = append(c.server.deliveries, Delivery{From: c.from, To: c.to, Data: data})
	c.server.mu.Unlock()
	return nil
}

func (c *captureSession) Reset() {
	c.from = ""
	c.to = nil
}

func (c *captureSession) Logout() error {
	return nil
}
