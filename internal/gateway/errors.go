package gateway

import "fmt"

// APIError is a non-2xx response from the gateway.
type APIError struct {
	StatusCode int
	Message    string
	RequestID  string
}

func (e *APIError) Error() string {
	switch {
	case e.RequestID != "" && e.Message != "":
		return fmt.Sprintf("gateway error %d: %s (request_id: %s)", e.StatusCode, e.Message, e.RequestID)
	case e.Message != "":
		return fmt.Sprintf("gateway error %d: %s", e.StatusCode, e.Message)
	default:
		return fmt.Sprintf("gateway error %d", e.StatusCode)
	}
}

// TransportError is a network-level failure before any HTTP status was
// received.
type TransportError struct {
	Err     error
	URL     string
	Attempt int
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("gateway transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
