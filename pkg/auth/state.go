package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
)

// StateData is the information saved alongside a state token between the
// authorization redirect and the callback.
type StateData struct {
	CodeVerifier string    `json:"code_verifier,omitempty"` // PKCE verifier, empty when PKCE is off.
	CreatedAt    time.Time `json:"created_at"`
}

// StateStore persists state tokens for CSRF protection.
// Consume is one-time: a consumed, expired or unknown state returns ErrInvalidState.
type StateStore interface {
	Save(ctx context.Context, state string, data StateData, ttl time.Duration) error
	Consume(ctx context.Context, state string) (StateData, error)
}

var errStateExists = errors.New("state already exists")

func newStateToken() string {
	return uuid.NewString()
}

// MemoryStateStore keeps state tokens in process memory. It is suitable for a
// single instance; use RedisStateStore when callbacks may land on another instance.
type MemoryStateStore struct {
	mu    sync.Mutex
	cache *gocache.Cache
}

// NewMemoryStateStore creates an in-memory store that purges expired entries
// every cleanupInterval.
func NewMemoryStateStore(cleanupInterval time.Duration) *MemoryStateStore {
	return &MemoryStateStore{
		cache: gocache.New(gocache.NoExpiration, cleanupInterval),
	}
}

func (m *MemoryStateStore) Save(_ context.Context, state string, data StateData, ttl time.Duration) error {
	if state == "" {
		return ErrInvalidState
	}
	if err := m.cache.Add(state, data, ttl); err != nil {
		return errStateExists
	}
	return nil
}

func (m *MemoryStateStore) Consume(_ context.Context, state string) (StateData, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.cache.Get(state)
	if !ok {
		return StateData{}, ErrInvalidState
	}
	m.cache.Delete(state)

	data, ok := v.(StateData)
	if !ok {
		return StateData{}, ErrInvalidState
	}
	return data, nil
}
