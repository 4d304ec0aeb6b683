package sealbox

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sealbox/client-go/internal/delivery"
	"github.com/sealbox/client-go/internal/gateway"
	"github.com/sealbox/client-go/internal/seal"
)

// Sentinel errors for errors.Is() checks
var (
	// ErrMissingAPIKey is returned when no API key is provided.
	ErrMissingAPIKey = errors.New("API key is required")

	// ErrClientClosed is returned when operations are attempted on a closed client.
	ErrClientClosed = errors.New("client has been closed")

	// ErrUnauthorized is returned when the API key is invalid or expired.
	ErrUnauthorized = errors.New("invalid or expired API key")

	// ErrInboxNotFound is returned when an inbox is not found.
	ErrInboxNotFound = errors.New("inbox not found")

	// ErrEmailNotFound is returned when an email is not found.
	ErrEmailNotFound = errors.New("email not found")

	// ErrInboxAlreadyExists is returned when trying to import an inbox that already exists.
	ErrInboxAlreadyExists = errors.New("inbox already exists")

	// ErrInvalidImportData is returned when imported inbox data is invalid.
	ErrInvalidImportData = errors.New("invalid import data")

	// ErrDecryptionFailed is returned when email decryption fails.
	ErrDecryptionFailed = errors.New("decryption failed")

	// ErrSignatureInvalid is returned when signature verification fails.
	ErrSignatureInvalid = errors.New("signature verification failed")

	// ErrServerKeyMismatch is returned when an envelope carries a signing
	// key other than the one pinned at inbox creation.
	ErrServerKeyMismatch = errors.New("server signing key mismatch")

	// ErrPushChannel is returned when the push channel fails.
	ErrPushChannel = errors.New("push channel error")

	// ErrInvalidSecretKeySize is returned when the secret key size is invalid.
	ErrInvalidSecretKeySize = errors.New("invalid secret key size")

	// ErrInboxExpired is returned when an inbox has expired.
	ErrInboxExpired = errors.New("inbox has expired")

	// ErrRateLimited is returned when the API rate limit is exceeded.
	ErrRateLimited = errors.New("rate limit exceeded")
)

// SealboxError is implemented by all SDK errors.
type SealboxError interface {
	error
	SealboxError() // marker method
}

// APIError represents an HTTP error from the Sealbox API.
type APIError struct {
	StatusCode int
	Message    string
	RequestID  string // if returned by server
}

func (e *APIError) Error() string {
	if e.RequestID != "" {
		if e.Message != "" {
			return fmt.Sprintf("API error %d: %s (request_id: %s)", e.StatusCode, e.Message, e.RequestID)
		}
		return fmt.Sprintf("API error %d (request_id: %s)", e.StatusCode, e.RequestID)
	}
	if e.Message != "" {
		return fmt.Sprintf("API error %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("API error %d", e.StatusCode)
}

// SealboxError implements the SealboxError interface.
func (e *APIError) SealboxError() {}

// Is implements errors.Is for sentinel error matching.
func (e *APIError) Is(target error) bool {
	switch e.StatusCode {
	case 401:
		return target == ErrUnauthorized
	case 404:
		// The status code alone cannot distinguish a missing inbox from
		// a missing email; the message decides.
		msgLower := strings.ToLower(e.Message)
		hasInbox := strings.Contains(msgLower, "inbox")
		hasEmail := strings.Contains(msgLower, "email") || strings.Contains(msgLower, "message")

		if target == ErrInboxNotFound {
			return hasInbox || (!hasInbox && !hasEmail)
		}
		if target == ErrEmailNotFound {
			return hasEmail || (!hasInbox && !hasEmail)
		}
		return false
	case 409:
		return target == ErrInboxAlreadyExists
	case 410:
		return target == ErrInboxExpired
	case 429:
		return target == ErrRateLimited
	}
	return false
}

// NetworkError represents a network-level failure.
type NetworkError struct {
	Err     error
	URL     string
	Attempt int
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *NetworkError) Unwrap() error {
	return e.Err
}

// SealboxError implements the SealboxError interface.
func (e *NetworkError) SealboxError() {}

// TimeoutError represents an operation that exceeded its deadline.
type TimeoutError struct {
	Operation string
	Timeout   time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %v", e.Operation, e.Timeout)
}

// SealboxError implements the SealboxError interface.
func (e *TimeoutError) SealboxError() {}

// WaitTimeoutError is returned when a wait expires before a matching email
// arrives.
type WaitTimeoutError struct {
	Timeout time.Duration
}

func (e *WaitTimeoutError) Error() string {
	return fmt.Sprintf("wait for email timed out after %v", e.Timeout)
}

// SealboxError implements the SealboxError interface.
func (e *WaitTimeoutError) SealboxError() {}

// DecryptionError represents a failure to decrypt email content.
type DecryptionError struct {
	Stage   string // "kem", "hkdf", "aes", "decode"
	Message string
	Err     error
}

func (e *DecryptionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decryption failed at %s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("decryption failed at %s: %s", e.Stage, e.Message)
}

// Unwrap returns the underlying error.
func (e *DecryptionError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is for sentinel error matching.
func (e *DecryptionError) Is(target error) bool {
	return target == ErrDecryptionFailed
}

// SealboxError implements the SealboxError interface.
func (e *DecryptionError) SealboxError() {}

// SignatureVerificationError indicates potential tampering.
type SignatureVerificationError struct {
	Message string
}

func (e *SignatureVerificationError) Error() string {
	return fmt.Sprintf("signature verification failed: %s", e.Message)
}

// Is implements errors.Is for sentinel error matching.
func (e *SignatureVerificationError) Is(target error) bool {
	return target == ErrSignatureInvalid
}

// SealboxError implements the SealboxError interface.
func (e *SignatureVerificationError) SealboxError() {}

// ServerKeyMismatchError indicates an envelope signed by a key other than
// the one pinned for the inbox.
type ServerKeyMismatchError struct {
	Pinned   string
	Received string
}

func (e *ServerKeyMismatchError) Error() string {
	return "server signing key mismatch: envelope not signed by the pinned key"
}

// Is implements errors.Is for sentinel error matching.
func (e *ServerKeyMismatchError) Is(target error) bool {
	return target == ErrServerKeyMismatch
}

// SealboxError implements the SealboxError interface.
func (e *ServerKeyMismatchError) SealboxError() {}

// PushChannelError represents a push channel that exhausted its reconnect
// budget.
type PushChannelError struct {
	Err      error
	Attempts int
}

func (e *PushChannelError) Error() string {
	return fmt.Sprintf("push channel failed after %d attempts: %v", e.Attempts, e.Err)
}

// Unwrap returns the underlying error.
func (e *PushChannelError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is for sentinel error matching.
func (e *PushChannelError) Is(target error) bool {
	return target == ErrPushChannel
}

// SealboxError implements the SealboxError interface.
func (e *PushChannelError) SealboxError() {}

// ValidationError contains multiple validation failures.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %v", e.Errors)
}

// Is implements errors.Is for sentinel error matching.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidImportData
}

// SealboxError implements the SealboxError interface.
func (e *ValidationError) SealboxError() {}

// wrapError converts internal transport errors to public errors.
// This ensures that errors.Is() checks work with public sentinel errors.
func wrapError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *gateway.APIError
	if errors.As(err, &apiErr) {
		return &APIError{
			StatusCode: apiErr.StatusCode,
			Message:    apiErr.Message,
			RequestID:  apiErr.RequestID,
		}
	}

	var netErr *gateway.TransportError
	if errors.As(err, &netErr) {
		return &NetworkError{
			Err:     netErr.Err,
			URL:     netErr.URL,
			Attempt: netErr.Attempt,
		}
	}

	return err
}

// wrapSealError maps envelope failures to public errors. Signature and
// pinned-key failures are security errors; callers must never swallow them.
func wrapSealError(err error, stage string) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, seal.ErrServerKeyMismatch):
		return &ServerKeyMismatchError{}
	case errors.Is(err, seal.ErrSignatureInvalid):
		return &SignatureVerificationError{Message: err.Error()}
	case errors.Is(err, seal.ErrMalformedEnvelope), errors.Is(err, seal.ErrMalformedCiphertext):
		return &DecryptionError{Stage: "decode", Err: err}
	default:
		return &DecryptionError{Stage: stage, Err: err}
	}
}

// isSecurityError reports whether err must abort processing rather than
// skip the email.
func isSecurityError(err error) bool {
	return errors.Is(err, ErrSignatureInvalid) || errors.Is(err, ErrServerKeyMismatch)
}

func wrapPushError(err error) error {
	var ex *delivery.ExhaustedError
	if errors.As(err, &ex) {
		return &PushChannelError{Err: ex.Err, Attempts: ex.Attempts}
	}
	return &PushChannelError{Err: err}
}
