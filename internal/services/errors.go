package services

import "errors"

var (
	// ErrInvalidOrder is returned for malformed create requests.
	ErrInvalidOrder = errors.New("invalid order request")
	// ErrOrderNotFound is returned when the order does not exist.
	ErrOrderNotFound = errors.New("order not found")
	// ErrInvalidTransition is returned when the lifecycle forbids the requested status.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrNonCancellable is returned when cancelling a shipped or delivered order.
	ErrNonCancellable = errors.New("order can no longer be cancelled")
	// ErrInsufficientStock is returned when the catalog refuses a reservation.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrUserIneligible is returned when the user exists but may not order.
	ErrUserIneligible = errors.New("user is not eligible to order")
	// ErrUpstreamUnavailable is returned when the identity service cannot answer.
	ErrUpstreamUnavailable = errors.New("user service unavailable")
	// ErrProductUnavailable is returned when the catalog cannot answer for a product.
	ErrProductUnavailable = errors.New("product service unavailable")
	// ErrPersistenceFailure is returned when the order store fails or loses a version race.
	ErrPersistenceFailure = errors.New("failed to persist order")
)

// IsRetryable reports whether the client may retry the same request later.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUpstreamUnavailable) ||
		errors.Is(err, ErrProductUnavailable) ||
		errors.Is(err, ErrPersistenceFailure)
}
