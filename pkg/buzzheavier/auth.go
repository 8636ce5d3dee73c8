package buzzheavier

import (
	"context"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// AuthManager caches bearer-token validation so hot paths do not hit the
// account endpoint on every call. A 401 marks the token invalid until the
// next successful check.
type AuthManager struct {
	client   *Client
	cacheTTL time.Duration

	mu        sync.Mutex
	lastCheck time.Time
	valid     bool
	account   *AccountInfo
}

// NewAuthManagerFromConfig reads the cache TTL from the buzzheavier config
// block.
func NewAuthManagerFromConfig(conf *viper.Viper, client *Client) *AuthManager {
	return NewAuthManager(client, time.Duration(conf.GetInt("buzzheavier.auth_cache_minutes"))*time.Minute)
}

func NewAuthManager(client *Client, cacheTTL time.Duration) *AuthManager {
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &AuthManager{
		client:   client,
		cacheTTL: cacheTTL,
	}
}

// Validate returns the cached verdict when fresh, otherwise re-checks the
// token against the account endpoint.
func (m *AuthManager) Validate(ctx context.Context) (*AccountInfo, error) {
	m.mu.Lock()
	if time.Since(m.lastCheck) < m.cacheTTL && m.valid {
		account := m.account
		m.mu.Unlock()
		return account, nil
	}
	m.mu.Unlock()

	account, err := m.client.GetAccountInfo(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastCheck = time.Now()
	if err != nil {
		m.valid = false
		m.account = nil
		return nil, err
	}
	m.valid = true
	m.account = account
	return account, nil
}

// IsValid reports the last known verdict without touching the network.
func (m *AuthManager) IsValid() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.valid
}

// Invalidate drops the cached verdict, forcing the next Validate to
// re-check.
func (m *AuthManager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.valid = false
	m.lastCheck = time.Time{}
}
