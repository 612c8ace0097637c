package middleware

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenBucket(t *testing.T) {
	b := NewTokenBucket(2, 1)
	assert.True(t, b.Allow())
	assert.True(t, b.Allow())
	assert.False(t, b.Allow())
}

func TestRateLimiter_Middleware(t *testing.T) {
	rl := NewRateLimiter(1, 2)
	app := fiber.New()
	app.Use(rl.Middleware())
	app.Post("/validate", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })
	app.Post("/trial", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	codes := make([]int, 0, 3)
	for range 3 {
		resp, err := app.Test(httptest.NewRequest("POST", "/validate", nil))
		require.NoError(t, err)
		codes = append(codes, resp.StatusCode)
	}
	assert.Equal(t, []int{200, 200, 429}, codes)

	// Buckets are per path
	resp, err := app.Test(httptest.NewRequest("POST", "/trial", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	assert.Equal(t, 2, rl.GetStats()["active_buckets"])
	assert.Zero(t, rl.CleanupOldBuckets(time.Hour))
	assert.Equal(t, 2, rl.CleanupOldBuckets(-time.Second))
}
