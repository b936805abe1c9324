package router

import (
	"fmt"
	"time"

	"github.com/liammagee/six-authors-in-search-of-a-character/pkg/models"
)

// MissingCredentialError is returned by a driver whose API key is not set
// at the time it is first called.
type MissingCredentialError struct {
	Provider models.Provider
	EnvVar   string
}

func (e *MissingCredentialError) Error() string {
	return fmt.Sprintf("%s API key not configured (set %s)", e.Provider.DisplayName(), e.EnvVar)
}

// StatusError is a non-200 answer from a provider. Body is the raw response text.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Code, e.Body)
}

// ProviderError wraps every driver failure that is not a timeout. It always
// names the provider and the logical model the caller asked for.
type ProviderError struct {
	Provider models.Provider
	Model    string
	Cause    error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("error with %s (%s): %v", e.Provider, e.Model, e.Cause)
}

func (e *ProviderError) Unwrap() error { return e.Cause }

// TimeoutError is returned when a provider call exceeds its bounded wait.
type TimeoutError struct {
	Provider models.Provider
	Model    string
	After    time.Duration
	Cause    error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s (%s) did not answer within %s", e.Provider, e.Model, e.After)
}

func (e *TimeoutError) Unwrap() error { return e.Cause }
