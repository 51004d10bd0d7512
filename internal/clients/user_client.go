package clients

import (
	"context"
	"net/url"
	"time"

	"tokoorder/internal/models"

	"github.com/gofiber/fiber/v2"
)

// UserServiceClient talks to the identity service.
type UserServiceClient struct {
	baseClient
}

// NewUserServiceClient creates a client for the identity service at baseURL.
func NewUserServiceClient(baseURL string, timeout time.Duration) *UserServiceClient {
	return &UserServiceClient{baseClient: newBaseClient(baseURL, timeout)}
}

// GetUser calls GET /users/{id}.
func (c *UserServiceClient) GetUser(ctx context.Context, userID string) (models.UserView, error) {
	var view models.UserView
	agent := fiber.Get(c.baseURL + "/users/" + url.PathEscape(userID))
	if err := c.send(ctx, agent, &view, nil); err != nil {
		return models.UserView{}, err
	}
	return view, nil
}
