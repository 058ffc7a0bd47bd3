package auth

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	ternary "github.com/julien040/go-ternary"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// ===== LINE Login v2.1 =====

const (
	// LineStrategyName is the fixed name the LINE strategy is registered under.
	LineStrategyName = "line"

	LineAuthorizationURL = "https://access.line.me/oauth2/v2.1/authorize"
	LineTokenURL         = "https://api.line.me/oauth2/v2.1/token"
	LineProfileURL       = "https://api.line.me/v2/profile"

	defaultLineScope    = "profile"
	defaultStateTTL     = 10 * time.Minute
	defaultHTTPTimeout  = 10 * time.Second
	defaultStateCleanup = time.Minute
)

// LineOAuthConfig holds the LINE channel credentials and optional overrides.
// The env tags allow loading it with github.com/caarlos0/env.
type LineOAuthConfig struct {
	ChannelID     string `env:"LINE_CHANNEL_ID"`
	ChannelSecret string `env:"LINE_CHANNEL_SECRET"`
	CallbackURL   string `env:"LINE_CALLBACK_URL"`

	// Scopes defaults to "profile".
	Scopes []string `env:"LINE_SCOPES" envSeparator:","`

	// Endpoint overrides. Empty values use the LINE v2.1 endpoints.
	AuthorizationURL string `env:"LINE_AUTHORIZATION_URL"`
	TokenURL         string `env:"LINE_TOKEN_URL"`
	ProfileURL       string `env:"LINE_PROFILE_URL"`

	// State controls CSRF state protection. Nil means enabled; an explicit false is rejected.
	State    *bool         `env:"LINE_STATE"`
	StateTTL time.Duration `env:"LINE_STATE_TTL"`

	PKCE      bool   `env:"LINE_PKCE"`
	Prompt    string `env:"LINE_PROMPT"`     // e.g. "consent"
	BotPrompt string `env:"LINE_BOT_PROMPT"` // "normal" or "aggressive"
}

// LogEnricher adds request-scoped fields (such as a trace ID) to a logger.
type LogEnricher func(ctx context.Context, logger *zap.Logger) *zap.Logger

// VerifyFunc is called after a successful handshake and profile fetch. Returning
// a nil user with a nil error denies the login.
type VerifyFunc func(ctx context.Context, accessToken, refreshToken string, profile *Profile) (*User, error)

// LineStrategy authenticates users with LINE Login. It owns the generic OAuth2
// engine and adds LINE specific configuration and profile normalization.
type LineStrategy struct {
	engine      Handshaker
	config      LineOAuthConfig
	profileURL  string
	stateTTL    time.Duration
	authParams  []oauth2.AuthCodeOption
	httpClient  *http.Client
	states      StateStore
	verify      VerifyFunc
	metrics     *Metrics
	logger      *zap.Logger
	logEnricher LogEnricher
}

type LineOption func(*LineStrategy)

// WithHTTPClient sets the base client for token and profile requests.
// Its Timeout and Transport apply to every request.
func WithHTTPClient(client *http.Client) LineOption {
	return func(s *LineStrategy) {
		if client != nil {
			s.httpClient = client
		}
	}
}

// WithStateStore replaces the default in-memory state store.
func WithStateStore(store StateStore) LineOption {
	return func(s *LineStrategy) {
		if store != nil {
			s.states = store
		}
	}
}

func WithMetrics(m *Metrics) LineOption {
	return func(s *LineStrategy) {
		s.metrics = m
	}
}

// NewLineStrategy validates the configuration and builds the strategy. No network I/O happens here.
// A nil verify maps the profile onto a User directly.
func NewLineStrategy(logger *zap.Logger, logEnricher LogEnricher, config LineOAuthConfig, verify VerifyFunc, opts ...LineOption) (*LineStrategy, error) {
	if config.State != nil && !*config.State {
		return nil, &ConfigurationError{Field: "State", Err: ErrStateProtectionRequired}
	}
	if config.ChannelID == "" {
		return nil, &ConfigurationError{Field: "ChannelID", Err: ErrMissingChannelID}
	}
	if config.ChannelSecret == "" {
		return nil, &ConfigurationError{Field: "ChannelSecret", Err: ErrMissingChannelSecret}
	}

	enabled := true
	config.State = &enabled
	config.AuthorizationURL = ternary.If(config.AuthorizationURL != "", config.AuthorizationURL, LineAuthorizationURL)
	config.TokenURL = ternary.If(config.TokenURL != "", config.TokenURL, LineTokenURL)
	config.ProfileURL = ternary.If(config.ProfileURL != "", config.ProfileURL, LineProfileURL)
	config.StateTTL = ternary.If(config.StateTTL > 0, config.StateTTL, defaultStateTTL)
	if len(config.Scopes) == 0 {
		config.Scopes = []string{defaultLineScope}
	}

	for _, ep := range []struct{ field, raw string }{
		{"AuthorizationURL", config.AuthorizationURL},
		{"TokenURL", config.TokenURL},
		{"ProfileURL", config.ProfileURL},
	} {
		if err := validateEndpoint(ep.raw); err != nil {
			return nil, &ConfigurationError{Field: ep.field, Err: err}
		}
	}

	if logger == nil {
		logger = zap.NewNop()
	}
	if logEnricher == nil {
		logEnricher = func(_ context.Context, l *zap.Logger) *zap.Logger { return l }
	}
	if verify == nil {
		verify = defaultLineVerify
	}

	s := &LineStrategy{
		engine: &oauth2.Config{
			ClientID:     config.ChannelID,
			ClientSecret: config.ChannelSecret,
			RedirectURL:  config.CallbackURL,
			Scopes:       config.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   config.AuthorizationURL,
				TokenURL:  config.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams, // LINE expects client_id and client_secret in the form body.
			},
		},
		config:      config,
		profileURL:  config.ProfileURL,
		stateTTL:    config.StateTTL,
		httpClient:  &http.Client{Timeout: defaultHTTPTimeout},
		verify:      verify,
		logger:      logger.Named(LineStrategyName),
		logEnricher: logEnricher,
	}
	if config.Prompt != "" {
		s.authParams = append(s.authParams, oauth2.SetAuthURLParam("prompt", config.Prompt))
	}
	if config.BotPrompt != "" {
		s.authParams = append(s.authParams, oauth2.SetAuthURLParam("bot_prompt", config.BotPrompt))
	}

	for _, opt := range opts {
		opt(s)
	}
	if s.states == nil {
		s.states = NewMemoryStateStore(defaultStateCleanup)
	}

	return s, nil
}

func validateEndpoint(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return errors.Join(ErrInvalidEndpoint, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrInvalidEndpoint
	}
	return nil
}

func (s *LineStrategy) Name() string { return LineStrategyName }

// Config returns the effective configuration after defaults were applied.
func (s *LineStrategy) Config() LineOAuthConfig { return s.config }

// Handshaker exposes the underlying OAuth2 engine.
func (s *LineStrategy) Handshaker() Handshaker { return s.engine }

// StateProtection reports whether CSRF state protection is enabled. It always is.
func (s *LineStrategy) StateProtection() bool { return *s.config.State }

func (s *LineStrategy) withHTTPClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
}

// AuthURL issues a new state token (and PKCE verifier when enabled), stores it
// and returns the LINE authorization URL to redirect the user to.
func (s *LineStrategy) AuthURL(ctx context.Context) (string, error) {
	logger := s.logEnricher(ctx, s.logger).Named("line_auth_url")

	state := newStateToken()
	data := StateData{CreatedAt: time.Now()}
	opts := append([]oauth2.AuthCodeOption{}, s.authParams...)
	if s.config.PKCE {
		data.CodeVerifier = oauth2.GenerateVerifier()
		opts = append(opts, oauth2.S256ChallengeOption(data.CodeVerifier))
	}

	if err := s.states.Save(ctx, state, data, s.stateTTL); err != nil {
		logger.Error("Failed to save state", zap.Error(err))
		return "", err
	}
	return s.engine.AuthCodeURL(state, opts...), nil
}

// Exchange verifies and consumes the state, then exchanges the code for a token.
func (s *LineStrategy) Exchange(ctx context.Context, code, state string) (*oauth2.Token, error) {
	logger := s.logEnricher(ctx, s.logger).Named("line_exchange")

	data, err := s.states.Consume(ctx, state)
	if err != nil {
		logger.Warn("State verification failed", zap.Error(err))
		if errors.Is(err, ErrInvalidState) {
			return nil, ErrInvalidState
		}
		return nil, err
	}

	var opts []oauth2.AuthCodeOption
	if data.CodeVerifier != "" {
		opts = append(opts, oauth2.VerifierOption(data.CodeVerifier))
	}

	token, err := s.engine.Exchange(s.withHTTPClient(ctx), code, opts...)
	if err != nil {
		logger.Error("Failed to exchange code for token", zap.Error(err))
		return nil, errors.Join(ErrFailedToExchangeCode, err)
	}
	if !token.Valid() {
		logger.Error("Received invalid token")
		return nil, ErrFailedToExchangeCode
	}
	return token, nil
}

// Refresh obtains a new token using a refresh token.
func (s *LineStrategy) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	logger := s.logEnricher(ctx, s.logger).Named("line_refresh")

	token, err := s.engine.TokenSource(s.withHTTPClient(ctx), &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		logger.Error("Failed to refresh token", zap.Error(err))
		return nil, errors.Join(ErrFailedToRefreshToken, err)
	}
	return token, nil
}

// Authenticate completes a login: state check, code exchange, profile fetch and verify callback.
func (s *LineStrategy) Authenticate(ctx context.Context, code, state string) (*User, error) {
	logger := s.logEnricher(ctx, s.logger).Named("line_login")

	token, err := s.Exchange(ctx, code, state)
	if err != nil {
		s.metrics.observeLogin(ternary.If(errors.Is(err, ErrInvalidState), outcomeInvalidState, outcomeExchangeError))
		return nil, err
	}

	profile, err := s.UserProfile(ctx, token.AccessToken)
	if err != nil {
		s.metrics.observeLogin(outcomeError)
		return nil, err
	}

	user, err := s.verify(ctx, token.AccessToken, token.RefreshToken, profile)
	if err != nil {
		logger.Error("Verify callback failed", zap.Error(err))
		s.metrics.observeLogin(outcomeError)
		return nil, err
	}
	if user == nil {
		logger.Info("Login denied by verify callback", zap.String("line_user_id", profile.ID))
		s.metrics.observeLogin(outcomeDenied)
		return nil, ErrAuthenticationDenied
	}

	s.metrics.observeLogin(outcomeSuccess)
	logger.Info("LINE login successful", zap.String("line_user_id", profile.ID))
	return user, nil
}

// Login implements Provider.
func (s *LineStrategy) Login(ctx context.Context, code, state string) (*User, error) {
	return s.Authenticate(ctx, code, state)
}

func defaultLineVerify(_ context.Context, _, _ string, profile *Profile) (*User, error) {
	return profile.User(), nil
}
