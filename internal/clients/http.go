// Package clients holds the HTTP adapters for the identity and catalog services.
package clients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"tokoorder/internal/resilience"

	"github.com/gofiber/fiber/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

var (
	// ErrNotFound is returned (as a rejection) when the remote answers 404.
	ErrNotFound = errors.New("remote resource not found")
	// ErrStockRejected is returned (as a rejection) when the catalog refuses a stock change.
	ErrStockRejected = errors.New("stock update rejected")
)

// StatusError carries an unexpected HTTP status from a remote service.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("remote returned status %d: %s", e.Code, e.Body)
}

type baseClient struct {
	baseURL string
	timeout time.Duration
}

func newBaseClient(baseURL string, timeout time.Duration) baseClient {
	return baseClient{baseURL: strings.TrimRight(baseURL, "/"), timeout: timeout}
}

// send executes agent and decodes a 2xx JSON body into out. 404 and the 4xx codes
// the catalog uses for business refusals come back as resilience rejections;
// everything else non-2xx is a fault.
func (c baseClient) send(ctx context.Context, agent *fiber.Agent, out interface{}, refusal error) error {
	headers := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, headers)
	for k, v := range headers {
		agent.Set(k, v)
	}
	agent.Set(fiber.HeaderAccept, fiber.MIMEApplicationJSON)
	if c.timeout > 0 {
		agent.Timeout(c.timeout)
	}

	code, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return fmt.Errorf("request failed: %w", errors.Join(errs...))
	}

	switch {
	case code == fiber.StatusNotFound:
		return resilience.Reject(fmt.Errorf("%w: %s", ErrNotFound, strings.TrimSpace(string(body))))
	case refusal != nil && (code == fiber.StatusConflict || code == fiber.StatusUnprocessableEntity || code == fiber.StatusBadRequest):
		return resilience.Reject(fmt.Errorf("%w: %w", refusal, &StatusError{Code: code, Body: string(body)}))
	case code < 200 || code >= 300:
		return &StatusError{Code: code, Body: string(body)}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
