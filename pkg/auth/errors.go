package auth

import (
	"errors"
	"fmt"
)

// Predefined errors related to the OAuth process.
var (
	// ErrFailedToGetUserInfo matches both ProfileFetchError and ProfileParseError via errors.Is.
	ErrFailedToGetUserInfo = errors.New("failed to get user info")
	// ErrFailedToExchangeCode indicates an error occurred during the token exchange process.
	ErrFailedToExchangeCode = errors.New("failed to exchange code for token")
	// ErrFailedToRefreshToken indicates the refresh token grant failed.
	ErrFailedToRefreshToken = errors.New("failed to refresh token")
	// ErrInvalidState indicates the state token is unknown, expired or was already used.
	ErrInvalidState = errors.New("invalid oauth state")
	// ErrAuthenticationDenied is returned when the verify callback yields no user.
	ErrAuthenticationDenied = errors.New("authentication denied")
	// ErrProviderNotRegistered is returned for lookups of an unknown provider name.
	ErrProviderNotRegistered = errors.New("oauth provider not registered")

	ErrStateProtectionRequired = errors.New("state protection cannot be disabled for LINE Login v2.1")
	ErrMissingChannelID        = errors.New("line channel id is required")
	ErrMissingChannelSecret    = errors.New("line channel secret is required")
	ErrInvalidEndpoint         = errors.New("invalid endpoint url")

	ErrMissingAccessToken  = errors.New("access token is required")
	ErrMissingProfileField = errors.New("profile response is missing a required field")
)

// ConfigurationError is returned synchronously by NewLineStrategy when the
// supplied configuration cannot be used. Construction does not proceed.
type ConfigurationError struct {
	Field string
	Err   error
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return "line: invalid configuration: " + e.Err.Error()
	}
	return fmt.Sprintf("line: invalid configuration %s: %v", e.Field, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// ProfileFetchError wraps a transport-level failure while requesting the user profile.
type ProfileFetchError struct {
	Err error
}

func (e *ProfileFetchError) Error() string {
	return "failed to fetch user profile: " + e.Err.Error()
}

func (e *ProfileFetchError) Unwrap() error { return e.Err }

func (e *ProfileFetchError) Is(target error) bool { return target == ErrFailedToGetUserInfo }

// ProfileParseError wraps a failure to decode the profile response body.
type ProfileParseError struct {
	Err error
}

func (e *ProfileParseError) Error() string {
	return "failed to parse user profile: " + e.Err.Error()
}

func (e *ProfileParseError) Unwrap() error { return e.Err }

func (e *ProfileParseError) Is(target error) bool { return target == ErrFailedToGetUserInfo }

// HTTPStatusError describes a non-2xx response from a provider endpoint.
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("unexpected status %d, body: %s", e.StatusCode, e.Body)
}
