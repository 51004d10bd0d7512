package middleware_test

import (
	"net/http/httptest"
	"testing"

	"tokoorder/internal/middleware"
	"tokoorder/internal/services"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newApp(auth *services.AuthService) *fiber.App {
	app := fiber.New()
	app.Use(middleware.AuthRequired(auth, nil))
	app.Get("/whoami", func(c *fiber.Ctx) error {
		return c.SendString(c.Locals(middleware.LocalUserID).(string))
	})
	return app
}

func TestAuthRequired(t *testing.T) {
	auth := services.NewAuthService("test_jwt_secret")
	app := newApp(auth)
	token, err := auth.IssueToken("u1", "budi")
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", fiber.StatusUnauthorized},
		{"wrong scheme", "Basic abc", fiber.StatusUnauthorized},
		{"bad token", "Bearer nope", fiber.StatusUnauthorized},
		{"valid token", "Bearer " + token, fiber.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(fiber.MethodGet, "/whoami", nil)
			if tt.header != "" {
				req.Header.Set(fiber.HeaderAuthorization, tt.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}
