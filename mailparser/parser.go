package mailparser

import (
	"bytes"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-message/textproto"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"mailsync/models"
	"mailsync/utils"
)

const (
	mediaTypePlain = "text/plain"
	mediaTypeHTML  = "text/html"

	maxConsecutivePartErrors = 5
)

var looseFilename = regexp.MustCompile(`(?i)(?:file)?name\*?\s*=\s*"?([^";]+)"?`)

// Parser converts raw RFC 822 messages into cache records
type Parser struct {
	log   logrus.FieldLogger
	now   func() time.Time
	newID func() string
}

func NewParser(log logrus.FieldLogger) *Parser {
	return &Parser{
		log:   log,
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
}

// Parse builds the record for one message owned by accountID in folder.
// A message whose header block cannot be read yields a KindParseFailure
// error and no record; a broken part is logged and skipped.
func (p *Parser) Parse(raw []byte, accountID uint, folder string) (*models.Email, error) {
	entity, err := message.Read(bytes.NewReader(raw))
	if entity == nil || (err != nil && !isRecoverable(err)) {
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
		return nil, utils.ParseFailure("failed to parse message", err)
	}

	now := p.now()
	header := mail.Header{Header: entity.Header}

	email := &models.Email{
		ID:          p.newID(),
		AccountID:   accountID,
		Folder:      folder,
		Subject:     models.DefaultSubject,
		FromAddress: NormalizeAddress(header.Get("From")),
		ToAddress:   SplitAddresses(header.Get("To")),
		CcAddress:   SplitAddresses(header.Get("Cc")),
		Attachments: []models.EmailAttachment{},
		IsRead:      false,
		Date:        now,
		CachedAt:    now,
	}

	if subject := header.Get("Subject"); subject != "" {
		email.Subject = DecodeHeader(subject)
	}

	if date, err := header.Date(); err == nil && !date.IsZero() {
		email.Date = date
	}

	email.MessageID = strings.TrimSpace(cleanText(header.Get("Message-ID")))
	if email.MessageID == "" {
		// Not stable across syncs: the same message synced again gets a new value.
		email.MessageID = "<" + p.newID() + "@mailsync.local>"
	}

	if t, params, err := entity.Header.ContentType(); err == nil && isMultipart(t, params) {
		p.walkMultipart(entity.Body, params["boundary"], email)
	} else {
		p.collectSinglePart(entity, email)
	}

	return email, nil
}

// walkMultipart visits every leaf part in document order, descending into
// nested multiparts. A part that cannot be read is logged and skipped; the
// walk gives up after maxConsecutivePartErrors failures in a row.
func (p *Parser) walkMultipart(body io.Reader, boundary string, email *models.Email) {
	mr := textproto.NewMultipartReader(body, boundary)
	failures := 0
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return
		}
		if err != nil {
			failures++
			p.log.WithError(err).WithFields(logrus.Fields{
				"message_id": email.MessageID,
				"failures":   failures,
			}).Warn("Error reading email part")
			if failures >= maxConsecutivePartErrors {
				return
			}
			continue
		}
		failures = 0

		p.visitPart(message.Header{Header: part.Header}, part, email)
	}
}

func (p *Parser) visitPart(h message.Header, body io.Reader, email *models.Email) {
	t, params, err := h.ContentType()
	if err == nil && isMultipart(t, params) {
		p.walkMultipart(body, params["boundary"], email)
		return
	}

	// Attachments are stored byte for byte as sent
	if err == nil && isAttachment(&h) && params["charset"] != "" {
		h = withoutCharset(h, t, params)
	}

	part, err := message.New(h, body)
	if part == nil || (err != nil && !isRecoverable(err)) {
		p.log.WithError(err).WithFields(logrus.Fields{
			"message_id":   email.MessageID,
			"content_type": mediaType(&h),
		}).Warn("Error decoding email part")
		return
	}

	if err := p.collectPart(part, email); err != nil {
		p.log.WithError(err).WithFields(logrus.Fields{
			"message_id":   email.MessageID,
			"content_type": mediaType(&part.Header),
		}).Warn("Error parsing email part")
	}
}

func (p *Parser) collectPart(part *message.Entity, email *models.Email) error {
	contentType := mediaType(&part.Header)

	if isAttachment(&part.Header) {
		filename := partFilename(&part.Header)
		if filename == "" {
			return nil
		}

		data, err := io.ReadAll(part.Body)
		if err != nil {
			return err
		}
		if len(data) == 0 {
			return nil
		}

		email.Attachments = append(email.Attachments, models.EmailAttachment{
			Filename:    filename,
			Content:     data,
			ContentType: contentType,
			Size:        len(data),
		})
		return nil
	}

	switch {
	case contentType == mediaTypePlain && email.BodyText == "":
		text, err := readText(part.Body)
		if err != nil {
			return err
		}
		email.BodyText = text
	case contentType == mediaTypeHTML && email.BodyHTML == "":
		html, err := readText(part.Body)
		if err != nil {
			return err
		}
		email.BodyHTML = html
	}
	return nil
}

func (p *Parser) collectSinglePart(entity *message.Entity, email *models.Email) {
	body, err := readText(entity.Body)
	if err != nil {
		p.log.WithError(err).WithField("message_id", email.MessageID).Warn("Error reading email body")
		return
	}

	if mediaType(&entity.Header) == mediaTypeHTML {
		email.BodyHTML = body
	} else {
		email.BodyText = body
	}
}

func readText(r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return cleanText(string(data)), nil
}

// mediaType returns the lower-cased media type, text/plain when absent
func mediaType(h *message.Header) string {
	if t, _, err := h.ContentType(); err == nil && t != "" {
		return t
	}

	raw := strings.TrimSpace(h.Get("Content-Type"))
	if raw == "" {
		return mediaTypePlain
	}
	if i := strings.IndexByte(raw, ';'); i >= 0 {
		raw = raw[:i]
	}
	return strings.ToLower(strings.TrimSpace(cleanText(raw)))
}

func isMultipart(t string, params map[string]string) bool {
	return strings.HasPrefix(t, "multipart/") && params["boundary"] != ""
}

func isAttachment(h *message.Header) bool {
	return strings.Contains(strings.ToLower(h.Get("Content-Disposition")), "attachment")
}

// withoutCharset returns a copy of h whose Content-Type drops the charset
// parameter, so decoding stops at the transfer encoding.
func withoutCharset(h message.Header, t string, params map[string]string) message.Header {
	stripped := message.Header{Header: h.Header.Copy()}
	kept := make(map[string]string, len(params))
	for k, v := range params {
		if k != "charset" {
			kept[k] = v
		}
	}
	stripped.SetContentType(t, kept)
	return stripped
}

func partFilename(h *message.Header) string {
	if _, params, err := h.ContentDisposition(); err == nil && params["filename"] != "" {
		return DecodeHeader(params["filename"])
	}
	if _, params, err := h.ContentType(); err == nil && params["name"] != "" {
		return DecodeHeader(params["name"])
	}

	// Malformed parameter lists still usually carry a readable filename
	for _, field := range []string{"Content-Disposition", "Content-Type"} {
		if match := looseFilename.FindStringSubmatch(h.Get(field)); match != nil {
			return DecodeHeader(strings.TrimSpace(match[1]))
		}
	}
	return ""
}

func isRecoverable(err error) bool {
	return message.IsUnknownCharset(err) || message.IsUnknownEncoding(err)
}
