package mailbox

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"

	"mailsync/models"
	"mailsync/utils"
)

const (
	implicitTLSPort = 465
	submissionPort  = 587
)

// OutgoingAttachment is one file attached to an outbound message
type OutgoingAttachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// OutgoingMessage is an outbound message before MIME assembly
type OutgoingMessage struct {
	To          []string
	Cc          []string
	Subject     string
	Body        string
	Attachments []OutgoingAttachment
}

// BuildMessage assembles msg as sent by from. Attachments keep their declared
// content type and travel base64 encoded.
func BuildMessage(from string, msg OutgoingMessage, now time.Time) *gomail.Message {
	m := gomail.NewMessage()
	m.SetHeader("From", from)
	m.SetHeader("To", msg.To...)
	if len(msg.Cc) > 0 {
		m.SetHeader("Cc", msg.Cc...)
	}
	m.SetHeader("Subject", msg.Subject)
	m.SetDateHeader("Date", now)
	m.SetHeader("Message-ID", fmt.Sprintf("<%s@%s>", uuid.NewString(), messageIDDomain(from)))
	m.SetBody("text/plain", msg.Body)

	for _, att := range msg.Attachments {
		content := att.Content
		filename := filepath.Base(att.Filename)

		contentType := att.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		header := mime.FormatMediaType(contentType, map[string]string{"name": filename})
		if header == "" {
			header = mime.FormatMediaType("application/octet-stream", map[string]string{"name": filename})
		}

		m.Attach(filename,
			gomail.SetHeader(map[string][]string{"Content-Type": {header}}),
			gomail.SetCopyFunc(func(w io.Writer) error {
				_, err := w.Write(content)
				return err
			}),
		)
	}

	return m
}

func messageIDDomain(from string) string {
	if i := strings.LastIndexByte(from, '@'); i >= 0 && i < len(from)-1 {
		return strings.TrimRight(from[i+1:], ">")
	}
	return "mailsync.local"
}

// SMTPSender submits messages assembled with gomail over a go-smtp client
type SMTPSender struct {
	Timeout time.Duration
	Log     logrus.FieldLogger
}

func NewSMTPSender(timeout time.Duration, log logrus.FieldLogger) *SMTPSender {
	return &SMTPSender{Timeout: timeout, Log: log}
}

// Send submits m. Port 465 is encrypted from the first byte. Port 587 and any
// port with cfg.UseTLS demand a STARTTLS upgrade and fail when the server
// does not offer one; everything else stays plaintext.
func (s *SMTPSender) Send(ctx context.Context, cfg models.SMTPConfig, username, password string, m *gomail.Message) error {
	logContext := logrus.Fields{
		"smtp_host": cfg.Host,
		"smtp_port": cfg.Port,
		"use_tls":   cfg.UseTLS,
		"username":  username,
	}

	from, recipients, err := envelope(m)
	if err != nil {
		return utils.Unexpected("failed to build email", err)
	}
	var body bytes.Buffer
	if _, err := m.WriteTo(&body); err != nil {
		return utils.Unexpected("failed to build email", err)
	}

	timeout := s.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	errChan := make(chan error, 1)
	go func() {
		errChan <- submit(cfg, username, password, from, recipients, &body)
	}()

	select {
	case err := <-errChan:
		if err != nil {
			s.Log.WithFields(logContext).WithError(err).Error("SMTP send failed")
			return utils.Unexpected("failed to send email", err)
		}
	case <-ctx.Done():
		s.Log.WithFields(logContext).WithError(ctx.Err()).Error("SMTP send timed out")
		return utils.Timeout(fmt.Sprintf("sending email timed out after %s", timeout), ctx.Err())
	}

	s.Log.WithFields(logContext).Info("Email sent")
	return nil
}

func submit(cfg models.SMTPConfig, username, password, from string, recipients []string, body io.Reader) error {
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	tlsConfig := &tls.Config{ServerName: cfg.Host}

	var (
		c   *smtp.Client
		err error
	)
	if cfg.Port == implicitTLSPort {
		c, err = smtp.DialTLS(addr, tlsConfig)
	} else {
		c, err = smtp.Dial(addr)
	}
	if err != nil {
		return err
	}
	defer c.Close()

	if requiresStartTLS(cfg) {
		if ok, _ := c.Extension("STARTTLS"); !ok {
			return errors.New("server does not offer STARTTLS")
		}
		if err := c.StartTLS(tlsConfig); err != nil {
			return err
		}
	}

	if ok, _ := c.Extension("AUTH"); ok && username != "" {
		if err := c.Auth(sasl.NewPlainClient("", username, password)); err != nil {
			return err
		}
	}

	if err := c.SendMail(from, recipients, body); err != nil {
		return err
	}
	return c.Quit()
}

func requiresStartTLS(cfg models.SMTPConfig) bool {
	if cfg.Port == implicitTLSPort {
		return false
	}
	return cfg.UseTLS || cfg.Port == submissionPort
}

// envelope reads the SMTP envelope out of the message headers
func envelope(m *gomail.Message) (string, []string, error) {
	fromHeader := m.GetHeader("Sender")
	if len(fromHeader) == 0 {
		fromHeader = m.GetHeader("From")
	}
	if len(fromHeader) == 0 {
		return "", nil, errors.New("missing From header")
	}
	from, err := mail.ParseAddress(fromHeader[0])
	if err != nil {
		return "", nil, fmt.Errorf("invalid From header: %w", err)
	}

	var recipients []string
	for _, field := range []string{"To", "Cc", "Bcc"} {
		for _, value := range m.GetHeader(field) {
			addr, err := mail.ParseAddress(value)
			if err != nil {
				return "", nil, fmt.Errorf("invalid %s address %q: %w", field, value, err)
			}
			recipients = append(recipients, addr.Address)
		}
	}
	if len(recipients) == 0 {
		return "", nil, errors.New("no recipients")
	}
	return from.Address, recipients, nil
}
