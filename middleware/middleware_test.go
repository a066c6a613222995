package middleware

import (
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailsync/utils"
)

func TestCORSAllowlist(t *testing.T) {
	cfg := DefaultCORSConfig()
	cfg.AllowedOrigins = []string{"https://app.example.com"}

	app := fiber.New()
	app.Use(CORS(cfg))
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString("ok") })

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Origin", "https://app.example.com")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, "https://app.example.com", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", resp.Header.Get("Access-Control-Allow-Credentials"))
	assert.Equal(t, "Origin", resp.Header.Get("Vary"))

	req = httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestCORSPreflight(t *testing.T) {
	app := fiber.New()
	app.Use(CORS())
	app.Post("/api/emails/send", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusTeapot) })

	req := httptest.NewRequest("OPTIONS", "/api/emails/send", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "http://localhost:3000", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "3600", resp.Header.Get("Access-Control-Max-Age"))
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Headers"), "Authorization")
}

func TestRateLimiterPerAccount(t *testing.T) {
	logger, hook := test.NewNullLogger()
	tokens := utils.NewTokenIssuer("secret", time.Hour)

	app := fiber.New()
	app.Post("/sync", Protected(tokens), RateLimiter(2, nil, logger), func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})

	send := func(accountID uint) int {
		token, err := tokens.Generate(accountID, "a@example.com")
		require.NoError(t, err)
		req := httptest.NewRequest("POST", "/sync", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp.StatusCode
	}

	assert.Equal(t, fiber.StatusOK, send(1))
	assert.Equal(t, fiber.StatusOK, send(1))
	assert.Equal(t, fiber.StatusTooManyRequests, send(1))
	assert.Equal(t, fiber.StatusOK, send(2))

	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "rate_limit_hit", hook.LastEntry().Data["event_type"])
}

func TestProtectedHeaderFormat(t *testing.T) {
	app := fiber.New()
	app.Get("/", Protected(utils.NewTokenIssuer("secret", time.Hour)), func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Token abc")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestRedisStorage(t *testing.T) {
	addr := os.Getenv("MAILSYNC_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("MAILSYNC_TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	storage := NewRedisStorage(client)
	require.NoError(t, storage.Reset())

	val, err := storage.Get("missing")
	require.NoError(t, err)
	assert.Nil(t, val)

	require.NoError(t, storage.Set("k", []byte("v"), time.Minute))
	val, err = storage.Get("k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), val)

	require.NoError(t, storage.Delete("k"))
	val, err = storage.Get("k")
	require.NoError(t, err)
	assert.Nil(t, val)
}
