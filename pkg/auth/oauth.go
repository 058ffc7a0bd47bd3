package auth

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// User represents a standardized user profile obtained after successful OAuth authentication.
// Fields are populated based on the information available from the specific provider.
type User struct {
	ID        string `json:"id"`         // Provider-assigned user identifier
	Provider  string `json:"provider"`   // Name of the provider that authenticated the user
	Username  string `json:"username"`   // Best available username or display name
	Email     string `json:"email"`      // User's email address (if available and scope granted)
	AvatarUrl string `json:"avatar_url"` // URL to the user's profile picture (if available)
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"` // User's last name (if available)
}

// OAuthConfig holds the configuration for the providers registered by NewOAuthHandler.
type OAuthConfig struct {
	// LINE Login configuration. Registration is skipped when ChannelID is empty.
	Line LineOAuthConfig

	// LineVerify is passed to NewLineStrategy; nil maps the profile onto a User.
	LineVerify VerifyFunc
	// LineOptions are passed to NewLineStrategy (state store, HTTP client, metrics).
	LineOptions []LineOption
}

// OAuthHandler keeps the registered providers and dispatches by provider name.
type OAuthHandler struct {
	mu          sync.RWMutex
	providers   map[string]Provider
	regErrors   map[string]error
	logger      *zap.Logger
	logEnricher LogEnricher

	config OAuthConfig // Stores the initial configuration.
}

// NewOAuthHandler creates and initializes a new OAuthHandler instance.
// Providers without configuration are skipped. Providers whose configuration is
// invalid are not registered and their errors are kept for RegistrationErrors.
// Returns nil if the provided config is nil.
func NewOAuthHandler(logger *zap.Logger, logEnricher LogEnricher, config *OAuthConfig) *OAuthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config == nil {
		logger.Error("OAuth config is nil")
		return nil
	}
	if logEnricher == nil {
		logEnricher = func(_ context.Context, l *zap.Logger) *zap.Logger { return l }
	}

	handler := &OAuthHandler{
		providers:   make(map[string]Provider),
		regErrors:   make(map[string]error),
		logger:      logger.Named("oauth"),
		logEnricher: logEnricher,
		config:      *config,
	}
	handler.registerOAuthProviders(context.Background())
	return handler
}

// registerOAuthProviders initializes the providers that have credentials configured.
func (h *OAuthHandler) registerOAuthProviders(ctx context.Context) {
	logger := h.logger.Named("registration")

	if h.config.Line.ChannelID != "" {
		if err := h.registerLineOAuth(ctx); err != nil {
			h.regErrors[LineStrategyName] = err
			logger.Error("Failed to register LINE OAuth", zap.Error(err))
		} else {
			logger.Info("LINE OAuth registered successfully")
		}
	} else {
		logger.Info("LINE OAuth registration skipped (missing config)")
	}
}

func (h *OAuthHandler) registerLineOAuth(ctx context.Context) error {
	logger := h.logEnricher(ctx, h.logger).Named("register_line")

	strategy, err := NewLineStrategy(h.logger, h.logEnricher, h.config.Line, h.config.LineVerify, h.config.LineOptions...)
	if err != nil {
		logger.Error("Invalid LINE OAuth configuration", zap.Error(err))
		return err
	}
	h.Register(strategy)
	return nil
}

// RegistrationErrors returns the errors of configured providers that failed to
// register, keyed by provider name. Hosts should treat a non-empty result as fatal.
func (h *OAuthHandler) RegistrationErrors() map[string]error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	errs := make(map[string]error, len(h.regErrors))
	for name, err := range h.regErrors {
		errs[name] = err
	}
	return errs
}

// Err joins all registration errors, or returns nil when every configured provider registered.
func (h *OAuthHandler) Err() error {
	errs := h.RegistrationErrors()
	names := make([]string, 0, len(errs))
	for name := range errs {
		names = append(names, name)
	}
	sort.Strings(names)

	joined := make([]error, 0, len(names))
	for _, name := range names {
		joined = append(joined, fmt.Errorf("%s: %w", name, errs[name]))
	}
	return errors.Join(joined...)
}

// Register adds or replaces a provider under its Name.
func (h *OAuthHandler) Register(p Provider) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.providers[p.Name()] = p
}

// Provider returns the provider registered under name.
func (h *OAuthHandler) Provider(name string) (Provider, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	p, ok := h.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotRegistered, name)
	}
	return p, nil
}

// Providers lists the registered provider names in sorted order.
func (h *OAuthHandler) Providers() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.providers))
	for name := range h.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AuthURL returns the authorization URL of the named provider.
func (h *OAuthHandler) AuthURL(ctx context.Context, provider string) (string, error) {
	p, err := h.Provider(provider)
	if err != nil {
		h.logEnricher(ctx, h.logger).Error("Invalid OAuth provider", zap.String("provider", provider))
		return "", err
	}
	return p.AuthURL(ctx)
}

// LoginWithCode completes the callback of the named provider.
func (h *OAuthHandler) LoginWithCode(ctx context.Context, provider, code, state string) (*User, error) {
	p, err := h.Provider(provider)
	if err != nil {
		h.logEnricher(ctx, h.logger).Error("Invalid OAuth provider", zap.String("provider", provider))
		return nil, err
	}
	return p.Login(ctx, code, state)
}

// Stop performs any cleanup needed for the OAuthHandler
func (h *OAuthHandler) Stop() {
	h.logger.Info("OAuthHandler stopped.")
}
