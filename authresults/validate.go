package authresults

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrSPFFailed is returned when SPF check failed.
	ErrSPFFailed = errors.New("SPF check failed")

	// ErrDKIMFailed is returned when DKIM check failed.
	ErrDKIMFailed = errors.New("DKIM check failed")

	// ErrDMARCFailed is returned when DMARC check failed.
	ErrDMARCFailed = errors.New("DMARC check failed")

	// ErrNoAuthResults is returned when no auth results are available.
	ErrNoAuthResults = errors.New("no authentication results available")
)

// ValidationError contains details about a validation failure.
type ValidationError struct {
	SPF   error
	DKIM  error
	DMARC error
}

func (e *ValidationError) Error() string {
	var parts []string
	if e.SPF != nil {
		parts = append(parts, fmt.Sprintf("SPF: %v", e.SPF))
	}
	if e.DKIM != nil {
		parts = append(parts, fmt.Sprintf("DKIM: %v", e.DKIM))
	}
	if e.DMARC != nil {
		parts = append(parts, fmt.Sprintf("DMARC: %v", e.DMARC))
	}
	if len(parts) == 0 {
		return "validation failed"
	}
	return strings.Join(parts, "; ")
}

// Validate checks that every present primary check passed and returns a
// *ValidationError describing the ones that did not.
func Validate(results *AuthResults) error {
	if results == nil {
		return ErrNoAuthResults
	}

	var validationErr ValidationError
	hasError := false

	if results.SPF != nil && !passedOrSkipped(results.SPF.Result) {
		validationErr.SPF = fmt.Errorf("%w: %s", ErrSPFFailed, results.SPF.Result)
		hasError = true
	}

	if len(results.DKIM) > 0 && !results.dkimPassed() {
		validationErr.DKIM = fmt.Errorf("%w: no passing signature", ErrDKIMFailed)
		hasError = true
	}

	if results.DMARC != nil && !passedOrSkipped(results.DMARC.Result) {
		validationErr.DMARC = fmt.Errorf("%w: %s", ErrDMARCFailed, results.DMARC.Result)
		hasError = true
	}

	if hasError {
		return &validationErr
	}

	return nil
}

// ValidateSPF validates only SPF results.
func ValidateSPF(results *AuthResults) error {
	if results == nil || results.SPF == nil {
		return ErrNoAuthResults
	}
	if !passedOrSkipped(results.SPF.Result) {
		return fmt.Errorf("%w: %s", ErrSPFFailed, results.SPF.Result)
	}
	return nil
}

// ValidateDKIM validates only DKIM results.
func ValidateDKIM(results *AuthResults) error {
	if results == nil || len(results.DKIM) == 0 {
		return ErrNoAuthResults
	}
	if !results.dkimPassed() {
		return fmt.Errorf("%w: no passing signature", ErrDKIMFailed)
	}
	return nil
}

// ValidateDMARC validates only DMARC results.
func ValidateDMARC(results *AuthResults) error {
	if results == nil || results.DMARC == nil {
		return ErrNoAuthResults
	}
	if !passedOrSkipped(results.DMARC.Result) {
		return fmt.Errorf("%w: %s", ErrDMARCFailed, results.DMARC.Result)
	}
	return nil
}
