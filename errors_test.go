package sealbox

import (
	"errors"
	"strings"
	"testing"
)

func TestAPIErrorSentinelMapping(t *testing.T) {
	tests := []struct {
		name    string
		err     *APIError
		target  error
		matches bool
	}{
		{"401 unauthorized", &APIError{StatusCode: 401}, ErrUnauthorized, true},
		{"404 inbox message", &APIError{StatusCode: 404, Message: "inbox not found"}, ErrInboxNotFound, true},
		{"404 inbox message not email", &APIError{StatusCode: 404, Message: "inbox not found"}, ErrEmailNotFound, false},
		{"404 email message", &APIError{StatusCode: 404, Message: "email not found"}, ErrEmailNotFound, true},
		{"404 ambiguous matches both", &APIError{StatusCode: 404}, ErrInboxNotFound, true},
		{"404 ambiguous matches email too", &APIError{StatusCode: 404}, ErrEmailNotFound, true},
		{"409 conflict", &APIError{StatusCode: 409}, ErrInboxAlreadyExists, true},
		{"410 gone", &APIError{StatusCode: 410}, ErrInboxExpired, true},
		{"429 rate limit", &APIError{StatusCode: 429}, ErrRateLimited, true},
		{"500 matches nothing", &APIError{StatusCode: 500}, ErrUnauthorized, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errors.Is(tt.err, tt.target); got != tt.matches {
				t.Errorf("errors.Is(%v, %v) = %v, want %v", tt.err, tt.target, got, tt.matches)
			}
		})
	}
}

func TestAPIErrorString(t *testing.T) {
	e := &APIError{StatusCode: 429, Message: "slow down", RequestID: "req-1"}
	s := e.Error()
	if !strings.Contains(s, "429") || !strings.Contains(s, "slow down") || !strings.Contains(s, "req-1") {
		t.Errorf("Error() = %q", s)
	}
}

func TestTypedErrorsMatchSentinels(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
	}{
		{"decryption", &DecryptionError{Stage: "aes", Message: "bad tag"}, ErrDecryptionFailed},
		{"signature", &SignatureVerificationError{Message: "bad sig"}, ErrSignatureInvalid},
		{"server key", &ServerKeyMismatchError{}, ErrServerKeyMismatch},
		{"push channel", &PushChannelError{Err: errors.New("eof"), Attempts: 10}, ErrPushChannel},
		{"validation", &ValidationError{Errors: []string{"missing field"}}, ErrInvalidImportData},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.target) {
				t.Errorf("errors.Is(%T, %v) = false", tt.err, tt.target)
			}
		})
	}
}

func TestDecryptionErrorUnwrap(t *testing.T) {
	inner := errors.New("cipher: message authentication failed")
	err := &DecryptionError{Stage: "aes", Err: inner}
	if !errors.Is(err, inner) {
		t.Error("Unwrap does not expose the inner error")
	}
	if !strings.Contains(err.Error(), "aes") {
		t.Errorf("Error() = %q, stage missing", err.Error())
	}
}

func TestIsSecurityError(t *testing.T) {
	if !isSecurityError(&SignatureVerificationError{}) {
		t.Error("signature failure not classified as security error")
	}
	if !isSecurityError(&ServerKeyMismatchError{}) {
		t.Error("key mismatch not classified as security error")
	}
	if isSecurityError(&DecryptionError{Stage: "aes"}) {
		t.Error("plain decrypt failure classified as security error")
	}
	if isSecurityError(nil) {
		t.Error("nil classified as security error")
	}
}

func TestSealboxErrorMarker(t *testing.T) {
	for _, err := range []error{
		&APIError{StatusCode: 500},
		&NetworkError{Err: errors.New("refused")},
		&TimeoutError{Operation: "wait"},
		&WaitTimeoutError{},
		&DecryptionError{},
		&SignatureVerificationError{},
		&ServerKeyMismatchError{},
		&PushChannelError{},
		&ValidationError{},
	} {
		if _, ok := err.(SealboxError); !ok {
			t.Errorf("%T does not implement SealboxError", err)
		}
	}
}
