package routes_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	fastws "github.com/fasthttp/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"mailsync/mailbox"
	"mailsync/mailparser"
	"mailsync/models"
	"mailsync/routes"
	"mailsync/services"
	"mailsync/synclock"
	"mailsync/testutil"
	"mailsync/utils"
)

type RoutesSuite struct {
	suite.Suite

	app      *fiber.App
	accounts *testutil.AccountStore
	emails   *testutil.EmailStore
	session  *testutil.FakeSession
	dialer   *testutil.FakeDialer
	cipher   *utils.Cipher
	tokens   *utils.TokenIssuer
	smtp     *testutil.SMTPServer
}

func TestRoutesSuite(t *testing.T) {
	suite.Run(t, new(RoutesSuite))
}

func (s *RoutesSuite) SetupTest() {
	logger, _ := test.NewNullLogger()

	var err error
	s.cipher, err = utils.NewCipher("routes-test-key")
	s.Require().NoError(err)
	s.tokens = utils.NewTokenIssuer("routes-test-secret", time.Hour)
	s.accounts = testutil.NewAccountStore()
	s.emails = testutil.NewEmailStore()
	s.session = testutil.NewFakeSession()
	s.dialer = &testutil.FakeDialer{Session: s.session}
	s.smtp = testutil.StartSMTPServer(s.T())

	syncService := services.NewSyncService(s.accounts, s.emails, s.cipher, s.dialer,
		mailparser.NewParser(logger), synclock.NewLocalLocker(), logger, services.SyncServiceConfig{})

	svc := routes.Services{
		Accounts: services.NewAccountService(s.accounts, s.cipher, s.dialer, s.tokens, logger),
		Emails:   services.NewEmailService(s.emails),
		Sync:     syncService,
		Send:     services.NewSendService(s.accounts, s.cipher, mailbox.NewSMTPSender(5*time.Second, logger), logger),
		Folders:  services.NewFolderService(s.accounts, s.cipher, s.dialer, logger),
		Contacts: services.NewContactService(s.accounts, s.emails),
		Tokens:   s.tokens,
	}

	s.app = fiber.New()
	routes.SetupRoutes(s.app, svc, routes.Limits{SyncPerMinute: 2, SendPerMinute: 5}, logger)
}

// seed stores an account whose SMTP settings point at the capture server
func (s *RoutesSuite) seed(email string) (*models.MailAccount, string) {
	encrypted, err := s.cipher.Encrypt("secret")
	s.Require().NoError(err)
	account := &models.MailAccount{
		Email:             email,
		EncryptedPassword: encrypted,
		IMAP:              models.IMAPConfig{Host: "imap.example.com", Port: 993, UseSSL: true},
		SMTP:              s.smtp.Config(),
	}
	s.Require().NoError(s.accounts.Save(context.Background(), account))

	token, err := s.tokens.Generate(account.ID, account.Email)
	s.Require().NoError(err)
	return account, token
}

func (s *RoutesSuite) cache(accountID uint, id, folder, subject string, date time.Time) {
	s.Require().NoError(s.emails.Insert(context.Background(), &models.Email{
		ID:          id,
		AccountID:   accountID,
		Folder:      folder,
		MessageID:   "<" + id + "@example.com>",
		Subject:     subject,
		FromAddress: "sender@example.com",
		ToAddress:   []string{"owner@example.com"},
		CcAddress:   []string{},
		BodyText:    "body of " + subject,
		Date:        date,
		CachedAt:    date,
	}))
}

func (s *RoutesSuite) do(method, path, token string, body interface{}) (*http.Response, []byte) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.app.Test(req, 5000)
	s.Require().NoError(err)
	data, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)
	return resp, data
}

func (s *RoutesSuite) TestHealth() {
	resp, body := s.do(http.MethodGet, "/api/", "", nil)
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Contains(string(body), "running")

	resp, _ = s.do(http.MethodGet, "/health", "", nil)
	s.Equal(http.StatusOK, resp.StatusCode)

	resp, body = s.do(http.MethodGet, "/metrics", "", nil)
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Contains(string(body), "go_goroutines")
}

func (s *RoutesSuite) TestLogin() {
	resp, body := s.do(http.MethodPost, "/api/auth/login", "", fiber.Map{
		"email":       "owner@example.com",
		"password":    "secret",
		"imap_config": fiber.Map{"host": "imap.example.com"},
		"smtp_config": fiber.Map{"host": "smtp.example.com", "port": 465},
	})
	s.Require().Equal(http.StatusOK, resp.StatusCode, string(body))

	var out struct {
		UserID  uint   `json:"user_id"`
		Email   string `json:"email"`
		Token   string `json:"token"`
		Message string `json:"message"`
	}
	s.Require().NoError(json.Unmarshal(body, &out))
	s.Equal("owner@example.com", out.Email)
	s.Equal("Login successful", out.Message)
	s.NotZero(out.UserID)

	stored, err := s.accounts.FindByID(context.Background(), out.UserID)
	s.Require().NoError(err)
	s.Equal(993, stored.IMAP.Port)
	s.True(stored.IMAP.UseSSL)
	s.Equal(465, stored.SMTP.Port)
	s.NotEqual("secret", stored.EncryptedPassword)

	resp, body = s.do(http.MethodGet, "/api/auth/me", out.Token, nil)
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Contains(string(body), "owner@example.com")
	s.NotContains(string(body), stored.EncryptedPassword)
}

func (s *RoutesSuite) TestLoginFailures() {
	resp, _ := s.do(http.MethodPost, "/api/auth/login", "", fiber.Map{"email": "not-an-address"})
	s.Equal(http.StatusUnprocessableEntity, resp.StatusCode)

	s.dialer.Err = utils.AuthFailure("IMAP connection failed", errors.New("bad credentials"))
	resp, body := s.do(http.MethodPost, "/api/auth/login", "", fiber.Map{
		"email":       "owner@example.com",
		"password":    "wrong",
		"imap_config": fiber.Map{"host": "imap.example.com"},
		"smtp_config": fiber.Map{"host": "smtp.example.com"},
	})
	s.Equal(http.StatusUnauthorized, resp.StatusCode)
	s.Contains(string(body), "IMAP connection failed")

	s.dialer.Err = utils.Timeout("IMAP connection timed out", nil)
	resp, _ = s.do(http.MethodPost, "/api/auth/login", "", fiber.Map{
		"email":       "owner@example.com",
		"password":    "secret",
		"imap_config": fiber.Map{"host": "imap.example.com"},
		"smtp_config": fiber.Map{"host": "smtp.example.com"},
	})
	s.Equal(http.StatusRequestTimeout, resp.StatusCode)
}

func (s *RoutesSuite) TestProtectedRoutesRequireToken() {
	resp, _ := s.do(http.MethodGet, "/api/emails", "", nil)
	s.Equal(http.StatusUnauthorized, resp.StatusCode)

	resp, _ = s.do(http.MethodGet, "/api/emails", "garbage", nil)
	s.Equal(http.StatusUnauthorized, resp.StatusCode)

	_, token := s.seed("owner@example.com")
	req := httptest.NewRequest(http.MethodGet, "/api/emails?token="+token, nil)
	res, err := s.app.Test(req)
	s.Require().NoError(err)
	s.Equal(http.StatusOK, res.StatusCode)
}

func (s *RoutesSuite) TestListSearchGetUpdateDelete() {
	account, token := s.seed("owner@example.com")
	other, _ := s.seed("other@example.com")
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.cache(account.ID, "a", "INBOX", "Quarterly report", base)
	s.cache(account.ID, "b", "INBOX", "Lunch", base.Add(time.Hour))
	s.cache(account.ID, "c", "Archive", "Old report", base)
	s.cache(other.ID, "d", "INBOX", "Not yours", base)

	resp, body := s.do(http.MethodGet, "/api/emails", token, nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	var list []models.Email
	s.Require().NoError(json.Unmarshal(body, &list))
	s.Require().Len(list, 2)
	s.Equal("b", list[0].ID)
	s.Equal("a", list[1].ID)

	resp, body = s.do(http.MethodGet, "/api/emails?folder=INBOX&skip=1&limit=1", token, nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Require().NoError(json.Unmarshal(body, &list))
	s.Require().Len(list, 1)
	s.Equal("a", list[0].ID)

	resp, body = s.do(http.MethodGet, "/api/emails/search?query=REPORT", token, nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Require().NoError(json.Unmarshal(body, &list))
	s.Len(list, 2)

	resp, _ = s.do(http.MethodGet, "/api/emails/search?query=%20", token, nil)
	s.Equal(http.StatusUnprocessableEntity, resp.StatusCode)

	resp, body = s.do(http.MethodGet, "/api/emails/a", token, nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	var email models.Email
	s.Require().NoError(json.Unmarshal(body, &email))
	s.Equal("Quarterly report", email.Subject)
	s.False(email.IsRead)

	resp, _ = s.do(http.MethodGet, "/api/emails/d", token, nil)
	s.Equal(http.StatusNotFound, resp.StatusCode)

	resp, _ = s.do(http.MethodPut, "/api/emails/a/read", token, fiber.Map{"is_read": true})
	s.Equal(http.StatusOK, resp.StatusCode)
	got, err := s.emails.Get(context.Background(), account.ID, "a")
	s.Require().NoError(err)
	s.True(got.IsRead)

	resp, _ = s.do(http.MethodPut, "/api/emails/a/read", token, fiber.Map{})
	s.Equal(http.StatusUnprocessableEntity, resp.StatusCode)

	resp, _ = s.do(http.MethodPut, "/api/emails/missing/read", token, fiber.Map{"is_read": true})
	s.Equal(http.StatusNotFound, resp.StatusCode)

	resp, body = s.do(http.MethodDelete, "/api/emails/a", token, nil)
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Contains(string(body), "Email deleted")

	resp, _ = s.do(http.MethodDelete, "/api/emails/a", token, nil)
	s.Equal(http.StatusNotFound, resp.StatusCode)
}

func (s *RoutesSuite) TestSyncEndpoint() {
	account, token := s.seed("owner@example.com")
	for i := 1; i <= 5; i++ {
		s.session.Folders["INBOX"] = append(s.session.Folders["INBOX"],
			testutil.RawMessage(fmt.Sprintf("<m%d@example.com>", i), fmt.Sprintf("Message %d", i)))
	}

	resp, body := s.do(http.MethodPost, "/api/emails/sync", token, fiber.Map{"folder": "INBOX", "limit": 2})
	s.Require().Equal(http.StatusOK, resp.StatusCode, string(body))

	var out struct {
		Message     string `json:"message"`
		SyncedCount int    `json:"synced_count"`
		Folder      string `json:"folder"`
	}
	s.Require().NoError(json.Unmarshal(body, &out))
	s.Equal(2, out.SyncedCount)
	s.Equal("Synced 2 new emails", out.Message)
	s.Equal("INBOX", out.Folder)

	ids, err := s.emails.MessageIDs(context.Background(), account.ID, "INBOX")
	s.Require().NoError(err)
	s.ElementsMatch([]string{"<m4@example.com>", "<m5@example.com>"}, ids)

	// an empty body syncs the INBOX with the default limit
	resp, body = s.do(http.MethodPost, "/api/emails/sync", token, nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode, string(body))
	s.Require().NoError(json.Unmarshal(body, &out))
	s.Equal(3, out.SyncedCount)

	// the limiter allows two syncs per minute
	resp, _ = s.do(http.MethodPost, "/api/emails/sync", token, nil)
	s.Equal(http.StatusTooManyRequests, resp.StatusCode)
}

func (s *RoutesSuite) TestSyncAuthFailure() {
	_, token := s.seed("owner@example.com")
	s.dialer.Err = utils.AuthFailure("IMAP connection failed", errors.New("password changed"))

	resp, body := s.do(http.MethodPost, "/api/emails/sync", token, fiber.Map{"folder": "INBOX"})
	s.Equal(http.StatusUnauthorized, resp.StatusCode)
	s.Contains(string(body), "password changed")
}

func (s *RoutesSuite) TestSendEmail() {
	_, token := s.seed("owner@example.com")

	resp, body := s.do(http.MethodPost, "/api/emails/send", token, fiber.Map{
		"to":      []string{"bob@example.com"},
		"cc":      []string{"carol@example.com"},
		"subject": "Hello",
		"body":    "Hi Bob",
		"attachments": []fiber.Map{{
			"filename":     "notes.txt",
			"content":      []byte("attached text"),
			"content_type": "text/plain",
		}},
	})
	s.Require().Equal(http.StatusOK, resp.StatusCode, string(body))
	s.Contains(string(body), "Email sent successfully")

	deliveries := s.smtp.Deliveries()
	s.Require().Len(deliveries, 1)
	s.Equal("owner@example.com", deliveries[0].From)
	s.ElementsMatch([]string{"bob@example.com", "carol@example.com"}, deliveries[0].To)

	resp, _ = s.do(http.MethodPost, "/api/emails/send", token, fiber.Map{"to": []string{"not an address"}})
	s.Equal(http.StatusUnprocessableEntity, resp.StatusCode)

	resp, _ = s.do(http.MethodPost, "/api/emails/send", token, fiber.Map{"to": []string{}})
	s.Equal(http.StatusUnprocessableEntity, resp.StatusCode)
}

func (s *RoutesSuite) TestFoldersAndContacts() {
	account, token := s.seed("owner@example.com")
	s.session.Folders["INBOX"] = [][]byte{testutil.RawMessage("<a@example.com>", "A")}
	s.session.Folders["[Gmail]/Sent Mail"] = [][]byte{}

	resp, body := s.do(http.MethodGet, "/api/folders", token, nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode, string(body))
	var folders []models.FolderInfo
	s.Require().NoError(json.Unmarshal(body, &folders))
	s.Require().Len(folders, 2)
	s.Equal(models.FolderInfo{Name: "Inbox", Path: "INBOX", MessageCount: 1}, folders[0])
	s.Equal("Sent", folders[1].Name)

	s.cache(account.ID, "x", "INBOX", "One", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	resp, body = s.do(http.MethodGet, "/api/contacts", token, nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	var contacts []models.Contact
	s.Require().NoError(json.Unmarshal(body, &contacts))
	s.Require().Len(contacts, 1)
	s.Equal("sender@example.com", contacts[0].Email)
}

func (s *RoutesSuite) TestNotFound() {
	resp, body := s.do(http.MethodGet, "/nope", "", nil)
	s.Equal(http.StatusNotFound, resp.StatusCode)
	s.Contains(string(body), "Not Found")
}

func (s *RoutesSuite) TestSyncStream() {
	_, token := s.seed("owner@example.com")
	for i := 1; i <= 3; i++ {
		s.session.Folders["INBOX"] = append(s.session.Folders["INBOX"],
			testutil.RawMessage(fmt.Sprintf("<s%d@example.com>", i), fmt.Sprintf("Stream %d", i)))
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	s.Require().NoError(err)
	go func() { _ = s.app.Listener(ln) }()
	s.T().Cleanup(func() { _ = s.app.Shutdown() })

	url := fmt.Sprintf("ws://%s/api/ws/sync?token=%s", ln.Addr().String(), token)
	conn, _, err := fastws.DefaultDialer.Dial(url, nil)
	s.Require().NoError(err)
	defer conn.Close()

	s.Require().NoError(conn.WriteJSON(fiber.Map{"folder": "INBOX", "limit": 10}))

	type event struct {
		Type     string                 `json:"type"`
		Progress *services.SyncProgress `json:"progress"`
		Result   *services.SyncResult   `json:"result"`
		Error    string                 `json:"error"`
	}

	var progress []services.SyncProgress
	for {
		var ev event
		s.Require().NoError(conn.SetReadDeadline(time.Now().Add(5 * time.Second)))
		s.Require().NoError(conn.ReadJSON(&ev))
		if ev.Type == "progress" {
			s.Require().NotNil(ev.Progress)
			progress = append(progress, *ev.Progress)
			continue
		}
		s.Require().Equal("result", ev.Type, ev.Error)
		s.Require().NotNil(ev.Result)
		s.Equal(3, ev.Result.SyncedCount)
		break
	}

	s.Require().Len(progress, 3)
	s.Equal(1, progress[0].Processed)
	s.Equal(3, progress[2].Processed)
	s.Equal(3, progress[2].Total)
	s.Equal("Stream 3", progress[0].Subject)

	// a second request on the same socket finds nothing new
	s.Require().NoError(conn.WriteJSON(fiber.Map{}))
	for {
		var ev event
		s.Require().NoError(conn.ReadJSON(&ev))
		if ev.Type == "result" {
			s.Equal(0, ev.Result.SyncedCount)
			s.Equal(3, ev.Result.Duplicates)
			break
		}
	}
}

func TestSyncStreamRejectsPlainHTTP(t *testing.T) {
	logger, _ := test.NewNullLogger()
	tokens := utils.NewTokenIssuer("secret", time.Hour)
	app := fiber.New()
	routes.SetupRoutes(app, routes.Services{Tokens: tokens}, routes.Limits{SyncPerMinute: 1, SendPerMinute: 1}, logger)

	token, err := tokens.Generate(1, "owner@example.com")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/ws/sync", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUpgradeRequired, resp.StatusCode)
}
