package utils

import (
	"io"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateRateLimitKey(t *testing.T) {
	assert.Equal(t, "rl:7:/api/emails/sync", GenerateRateLimitKey(7, "/api/emails/sync"))
}

func TestQueryInt(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString(strconv.Itoa(QueryInt(c, "n", 50, 500)))
	})

	cases := map[string]string{
		"/":         "50",
		"/?n=10":    "10",
		"/?n=0":     "0",
		"/?n=-3":    "50",
		"/?n=abc":   "50",
		"/?n=9999":  "500",
		"/?n=%2012": "12",
	}
	for query, want := range cases {
		resp, err := app.Test(httptest.NewRequest("GET", query, nil))
		require.NoError(t, err)
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, want, string(body), query)
	}
}
