package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockProvider is a mock implementation of Provider.
type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) Name() string {
	return m.Called().String(0)
}

func (m *MockProvider) AuthURL(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockProvider) Login(ctx context.Context, code, state string) (*User, error) {
	args := m.Called(ctx, code, state)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*User), args.Error(1)
}

func TestNewOAuthHandler(t *testing.T) {
	t.Run("nil config", func(t *testing.T) {
		assert.Nil(t, NewOAuthHandler(zap.NewNop(), nil, nil))
	})

	t.Run("registers LINE when configured", func(t *testing.T) {
		h := NewOAuthHandler(zap.NewNop(), nil, &OAuthConfig{Line: testLineConfig()})
		require.NotNil(t, h)
		assert.Equal(t, []string{"line"}, h.Providers())

		p, err := h.Provider("line")
		require.NoError(t, err)
		assert.IsType(t, &LineStrategy{}, p)
	})

	t.Run("skips LINE without channel id", func(t *testing.T) {
		h := NewOAuthHandler(zap.NewNop(), nil, &OAuthConfig{})
		require.NotNil(t, h)
		assert.Empty(t, h.Providers())
	})

	t.Run("skips invalid LINE configuration", func(t *testing.T) {
		cfg := testLineConfig()
		cfg.State = boolPtr(false)
		h := NewOAuthHandler(zap.NewNop(), nil, &OAuthConfig{Line: cfg})
		require.NotNil(t, h)

		_, err := h.Provider("line")
		assert.ErrorIs(t, err, ErrProviderNotRegistered)

		regErrs := h.RegistrationErrors()
		require.Len(t, regErrs, 1)
		assert.ErrorIs(t, regErrs[LineStrategyName], ErrStateProtectionRequired)
		assert.ErrorIs(t, h.Err(), ErrStateProtectionRequired)
		assert.Contains(t, h.Err().Error(), "line: ")

		var cfgErr *ConfigurationError
		assert.ErrorAs(t, h.Err(), &cfgErr)
	})

	t.Run("reports no registration errors for valid or absent configuration", func(t *testing.T) {
		valid := NewOAuthHandler(zap.NewNop(), nil, &OAuthConfig{Line: testLineConfig()})
		require.NotNil(t, valid)
		assert.Empty(t, valid.RegistrationErrors())
		assert.NoError(t, valid.Err())

		empty := NewOAuthHandler(zap.NewNop(), nil, &OAuthConfig{})
		require.NotNil(t, empty)
		assert.Empty(t, empty.RegistrationErrors())
		assert.NoError(t, empty.Err())
		assert.Empty(t, empty.Providers())
	})
}

func TestOAuthHandler_Dispatch(t *testing.T) {
	ctx := context.Background()
	h := NewOAuthHandler(zap.NewNop(), nil, &OAuthConfig{})
	require.NotNil(t, h)

	p := new(MockProvider)
	p.On("Name").Return("mock")
	p.On("AuthURL", ctx).Return("https://idp.example.com/authorize?state=s", nil)
	p.On("Login", ctx, "code", "s").Return(&User{ID: "42", Provider: "mock"}, nil)
	h.Register(p)

	authURL, err := h.AuthURL(ctx, "mock")
	require.NoError(t, err)
	assert.Equal(t, "https://idp.example.com/authorize?state=s", authURL)

	user, err := h.LoginWithCode(ctx, "mock", "code", "s")
	require.NoError(t, err)
	assert.Equal(t, "42", user.ID)

	_, err = h.AuthURL(ctx, "unknown")
	assert.ErrorIs(t, err, ErrProviderNotRegistered)
	_, err = h.LoginWithCode(ctx, "unknown", "code", "s")
	assert.ErrorIs(t, err, ErrProviderNotRegistered)

	p.AssertExpectations(t)
}

func TestOAuthHandler_LineLoginWithCode(t *testing.T) {
	server := newMockLineServer(t)
	var traced int
	enricher := func(_ context.Context, l *zap.Logger) *zap.Logger {
		traced++
		return l
	}
	h := NewOAuthHandler(zap.NewNop(), enricher, &OAuthConfig{Line: server.config()})
	require.NotNil(t, h)

	authURL, err := h.AuthURL(context.Background(), LineStrategyName)
	require.NoError(t, err)

	user, err := h.LoginWithCode(context.Background(), LineStrategyName, "auth-code", stateFromAuthURL(t, authURL).Get("state"))
	require.NoError(t, err)
	assert.Equal(t, &User{ID: "123456", Provider: "line", Username: "Snoop Doggy Dogg"}, user)
	assert.Positive(t, traced)
}
