package authgate_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	authgate "github.com/goliatone/go-authgate"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testPassword = "correct horse battery"

var testKey = []byte("root-test-signing-key-0123456789")

// memoryStore is an in memory UserStore and CredentialVerifier.
type memoryStore struct {
	users []*authgate.User
	err   error
}

func (s *memoryStore) FindByEmail(ctx context.Context, email string) (*authgate.User, error) {
	if s.err != nil {
		return nil, s.err
	}
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return nil, authgate.ErrUserNotFound
}

func (s *memoryStore) FindByID(ctx context.Context, id int64) (*authgate.User, error) {
	if s.err != nil {
		return nil, s.err
	}
	for _, u := range s.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, authgate.ErrUserNotFound
}

func (s *memoryStore) VerifyCredentials(ctx context.Context, identifier, password string) (*authgate.User, error) {
	if s.err != nil {
		return nil, s.err
	}
	for _, u := range s.users {
		if strings.EqualFold(u.Email, identifier) || (u.Username != "" && u.Username == identifier) {
			if err := authgate.ComparePasswordAndHash(password, u.PasswordHash); err != nil {
				return nil, err
			}
			return u, nil
		}
	}
	return nil, authgate.ErrUserNotFound
}

func newStore(t *testing.T) *memoryStore {
	t.Helper()
	hash, err := authgate.HashPasswordWithCost(testPassword, bcrypt.MinCost)
	require.NoError(t, err)

	return &memoryStore{users: []*authgate.User{
		{
			ID:           1,
			Email:        "ada@example.com",
			Username:     "ada",
			PasswordHash: hash,
			Roles:        []string{authgate.RoleUser},
			Providers: []*authgate.UserProvider{
				{UserID: 1, Provider: authgate.ProviderEmail},
				{UserID: 1, Provider: authgate.ProviderGitHub},
			},
		},
		{
			ID:           2,
			Email:        "grace@example.com",
			PasswordHash: hash,
			Roles:        []string{authgate.RoleUser, authgate.RoleAdmin},
			Providers:    []*authgate.UserProvider{{UserID: 2, Provider: authgate.ProviderEmail}},
		},
	}}
}

type recordingSink struct {
	mu     sync.Mutex
	events []authgate.ActivityEvent
}

func (s *recordingSink) Record(ctx context.Context, event authgate.ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) types() []authgate.ActivityEventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]authgate.ActivityEventType, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.EventType)
	}
	return out
}

type fakeClock struct {
	now time.Time
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }
