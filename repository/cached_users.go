package repository

import (
	"context"
	"strconv"
	"strings"
	"time"

	authgate "github.com/goliatone/go-authgate"
	"github.com/goliatone/go-authgate/cache"
)

// CachedUsers serves account lookups from a cache in front of a UserStore.
// Misses are not cached. Cached records carry no password hash, so password
// checks always go to the underlying store.
type CachedUsers struct {
	next   authgate.UserStore
	cache  cache.Cache[*authgate.User]
	ttl    time.Duration
	logger authgate.Logger
}

// CachedUsersOption configures CachedUsers.
type CachedUsersOption func(*CachedUsers)

func WithCacheTTL(ttl time.Duration) CachedUsersOption {
	return func(c *CachedUsers) { c.ttl = ttl }
}

func WithCacheLogger(logger authgate.Logger) CachedUsersOption {
	return func(c *CachedUsers) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func NewCachedUsers(next authgate.UserStore, c cache.Cache[*authgate.User], opts ...CachedUsersOption) *CachedUsers {
	cu := &CachedUsers{
		next:   next,
		cache:  c,
		logger: noopLogger{},
	}
	for _, opt := range opts {
		opt(cu)
	}
	return cu
}

var _ authgate.UserStore = (*CachedUsers)(nil)

func (c *CachedUsers) FindByEmail(ctx context.Context, email string) (*authgate.User, error) {
	return cache.GetOrLoad(ctx, c.cache, emailKey(email), func(ctx context.Context) (*authgate.User, time.Duration, error) {
		user, err := c.next.FindByEmail(ctx, email)
		if err != nil {
			return nil, 0, err
		}
		c.logger.Debug("user cache miss", "key", emailKey(email))
		return user, c.ttl, nil
	})
}

func (c *CachedUsers) FindByID(ctx context.Context, id int64) (*authgate.User, error) {
	return cache.GetOrLoad(ctx, c.cache, idKey(id), func(ctx context.Context) (*authgate.User, time.Duration, error) {
		user, err := c.next.FindByID(ctx, id)
		if err != nil {
			return nil, 0, err
		}
		c.logger.Debug("user cache miss", "key", idKey(id))
		return user, c.ttl, nil
	})
}

// VerifyCredentials delegates to the underlying store when it verifies
// credentials, and fails with ErrUserNotFound otherwise.
func (c *CachedUsers) VerifyCredentials(ctx context.Context, identifier, password string) (*authgate.User, error) {
	verifier, ok := c.next.(authgate.CredentialVerifier)
	if !ok {
		return nil, authgate.ErrUserNotFound
	}
	return verifier.VerifyCredentials(ctx, identifier, password)
}

// Invalidate drops the cached entries of user.
func (c *CachedUsers) Invalidate(ctx context.Context, user *authgate.User) error {
	if user == nil {
		return nil
	}
	if err := c.cache.Delete(ctx, idKey(user.ID)); err != nil {
		return err
	}
	return c.cache.Delete(ctx, emailKey(user.Email))
}

func emailKey(email string) string {
	return "user:email:" + strings.ToLower(strings.TrimSpace(email))
}

func idKey(id int64) string {
	return "user:id:" + strconv.FormatInt(id, 10)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
