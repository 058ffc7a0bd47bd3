package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// maxProfileBodySize caps the accepted profile response size.
const maxProfileBodySize = 1 << 20

var errProfileTooLarge = fmt.Errorf("user profile response exceeds %d bytes", maxProfileBodySize)

// lineUserInfo represents the response of the LINE profile endpoint (GET /v2/profile).
// See: https://developers.line.biz/en/reference/line-login/#get-user-profile
type lineUserInfo struct {
	UserID        string          `json:"userId"`        // The user's LINE ID, stable per channel provider.
	DisplayName   *string         `json:"displayName"`   // The user's display name.
	PictureURL    json.RawMessage `json:"pictureUrl"`    // Profile image URL. Omitted when the user has none.
	StatusMessage json.RawMessage `json:"statusMessage"` // Omitted when the user has none.
}

// Profile is the normalized LINE user profile.
type Profile struct {
	Provider      string  `json:"provider"`
	ID            string  `json:"id"`
	DisplayName   string  `json:"displayName"`
	PictureURL    *string `json:"pictureUrl,omitempty"`    // nil when LINE supplied none.
	StatusMessage *string `json:"statusMessage,omitempty"` // nil when LINE supplied none.

	// Raw is the unmodified response body.
	Raw string `json:"-"`
	// Parsed is the fully decoded response, for fields not mapped above.
	Parsed map[string]any `json:"-"`
}

// User maps the profile onto the provider-agnostic User.
func (p *Profile) User() *User {
	user := &User{
		ID:       p.ID,
		Provider: p.Provider,
		Username: p.DisplayName,
	}
	if p.PictureURL != nil {
		user.AvatarUrl = *p.PictureURL
	}
	return user
}

// ProfileResult is the outcome of an asynchronous profile fetch.
// Exactly one of Profile and Err is set.
type ProfileResult struct {
	Profile *Profile
	Err     error
}

// UserProfile fetches the LINE profile for accessToken and normalizes it.
// Transport failures and non-2xx responses return *ProfileFetchError; an
// undecodable body returns *ProfileParseError. There are no retries.
func (s *LineStrategy) UserProfile(ctx context.Context, accessToken string) (*Profile, error) {
	logger := s.logEnricher(ctx, s.logger).Named("line_profile")
	started := time.Now()

	if accessToken == "" {
		s.metrics.observeProfile(outcomeFetchError, started)
		return nil, &ProfileFetchError{Err: ErrMissingAccessToken}
	}

	body, err := s.fetchProfile(ctx, accessToken)
	if err != nil {
		logger.Error("Failed to fetch LINE user profile", zap.Error(err))
		s.metrics.observeProfile(outcomeFetchError, started)
		return nil, &ProfileFetchError{Err: err}
	}

	profile, err := parseLineProfile(body)
	if err != nil {
		logger.Error("Failed to parse LINE user profile", zap.Error(err))
		s.metrics.observeProfile(outcomeParseError, started)
		return nil, err
	}

	s.metrics.observeProfile(outcomeSuccess, started)
	logger.Debug("Fetched LINE user profile", zap.String("line_user_id", profile.ID))
	return profile, nil
}

// UserProfileAsync runs UserProfile in its own goroutine. The returned channel
// receives exactly one result and is then closed. Cancel ctx to abandon the request.
func (s *LineStrategy) UserProfileAsync(ctx context.Context, accessToken string) <-chan ProfileResult {
	results := make(chan ProfileResult, 1)
	go func() {
		defer close(results)
		profile, err := s.UserProfile(ctx, accessToken)
		results <- ProfileResult{Profile: profile, Err: err}
	}()
	return results
}

// fetchProfile performs the authenticated GET, sending the token in the
// Authorization header, and returns the body of a 2xx response.
func (s *LineStrategy) fetchProfile(ctx context.Context, accessToken string) ([]byte, error) {
	client := &http.Client{
		Transport: &oauth2.Transport{
			Base:   s.httpClient.Transport,
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}),
		},
		Timeout: s.httpClient.Timeout,
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.profileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create user profile request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute user profile request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProfileBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read user profile response: %w", err)
	}
	if len(body) > maxProfileBodySize {
		return nil, errProfileTooLarge
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPStatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

// parseLineProfile decodes a profile body. Optional fields that are absent,
// empty or not a string stay nil on the returned Profile.
func parseLineProfile(body []byte) (*Profile, error) {
	var parsed map[string]any
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, &ProfileParseError{Err: err}
	}

	var info lineUserInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, &ProfileParseError{Err: err}
	}
	if info.UserID == "" {
		return nil, &ProfileParseError{Err: fmt.Errorf("%w: userId", ErrMissingProfileField)}
	}
	if info.DisplayName == nil {
		return nil, &ProfileParseError{Err: fmt.Errorf("%w: displayName", ErrMissingProfileField)}
	}

	return &Profile{
		Provider:      LineStrategyName,
		ID:            info.UserID,
		DisplayName:   *info.DisplayName,
		PictureURL:    optionalString(info.PictureURL),
		StatusMessage: optionalString(info.StatusMessage),
		Raw:           string(body),
		Parsed:        parsed,
	}, nil
}

// optionalString returns the value only when raw holds a non-empty JSON string.
func optionalString(raw json.RawMessage) *string {
	var s string
	if len(raw) == 0 || json.Unmarshal(raw, &s) != nil || s == "" {
		return nil
	}
	return &s
}
