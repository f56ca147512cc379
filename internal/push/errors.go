package push

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNotConfigured is returned when no VAPID key pair is available.
var ErrNotConfigured = errors.New("VAPID keys not configured")

// DeliveryError is a non-2xx answer from a push service.
type DeliveryError struct {
	StatusCode int
	Body       string
}

func (e *DeliveryError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("push service returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("push service returned status %d: %s", e.StatusCode, e.Body)
}

// Gone reports whether the endpoint no longer exists.
func (e *DeliveryError) Gone() bool {
	return e.StatusCode == http.StatusNotFound || e.StatusCode == http.StatusGone
}

// IsGone reports whether err means the subscription is permanently dead.
func IsGone(err error) bool {
	var de *DeliveryError
	return errors.As(err, &de) && de.Gone()
}
