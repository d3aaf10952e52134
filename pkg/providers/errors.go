package providers

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Tsahi-Elkayam/orbyte/pkg/types"
)

// Common provider errors
var (
	// ErrProviderNotFound is returned when a provider is not registered
	ErrProviderNotFound = errors.New("provider not found")

	// ErrProviderNotAuthenticated is returned when a provider is not authenticated
	ErrProviderNotAuthenticated = errors.New("provider not authenticated")

	// ErrInvalidConfiguration is returned when provider configuration is invalid
	ErrInvalidConfiguration = errors.New("invalid provider configuration")

	// ErrUnsupportedOperation is returned when a provider does not offer an action
	ErrUnsupportedOperation = errors.New("operation not supported")

	// ErrInvalidCommand is returned when a remediation command cannot be parsed
	ErrInvalidCommand = errors.New("invalid remediation command")
)

// ActionError reports a failed remediation action
type ActionError struct {
	Provider string
	Action   string
	Args     []string
	Cause    error
}

// Error implements the error interface
func (e *ActionError) Error() string {
	return fmt.Sprintf("provider %s action %s [%s] failed: %v",
		e.Provider, e.Action, strings.Join(e.Args, " "), e.Cause)
}

// Unwrap returns the underlying error
func (e *ActionError) Unwrap() error {
	return e.Cause
}

// NewActionError creates a new action error
func NewActionError(provider, action string, args []string, cause error) *ActionError {
	return &ActionError{
		Provider: provider,
		Action:   action,
		Args:     args,
		Cause:    cause,
	}
}

// AuthenticationError represents an authentication-related error
type AuthenticationError struct {
	Provider string
	Message  string
	Cause    error
}

// Error implements the error interface
func (e *AuthenticationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("authentication failed for provider %s: %s (caused by: %v)",
			e.Provider, e.Message, e.Cause)
	}
	return fmt.Sprintf("authentication failed for provider %s: %s",
		e.Provider, e.Message)
}

// Unwrap returns the underlying error
func (e *AuthenticationError) Unwrap() error {
	return e.Cause
}

// NewAuthenticationError creates a new authentication error
func NewAuthenticationError(provider, message string, cause error) *AuthenticationError {
	return &AuthenticationError{
		Provider: provider,
		Message:  message,
		Cause:    cause,
	}
}

// IsNotFound checks if an error indicates a resource was not found
func IsNotFound(err error) bool {
	return errors.Is(err, types.ErrResourceNotFound)
}

// IsAuthenticationError checks if an error is an authentication error
func IsAuthenticationError(err error) bool {
	var authErr *AuthenticationError
	return errors.As(err, &authErr) || errors.Is(err, ErrProviderNotAuthenticated)
}

// IsUnsupported checks if an error reports an unknown provider, action or command
func IsUnsupported(err error) bool {
	return errors.Is(err, ErrUnsupportedOperation) ||
		errors.Is(err, ErrProviderNotFound) ||
		errors.Is(err, ErrInvalidCommand)
}
