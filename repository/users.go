package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	authgate "github.com/goliatone/go-authgate"
	"github.com/uptrace/bun"
)

// Users is the bun backed account store. Every lookup loads the linked
// identity providers.
type Users struct {
	db     bun.IDB
	hasher authgate.PasswordAuthenticator
	now    func() time.Time
}

// UsersOption configures Users.
type UsersOption func(*Users)

// WithPasswordHasher replaces the default bcrypt hasher.
func WithPasswordHasher(h authgate.PasswordAuthenticator) UsersOption {
	return func(u *Users) {
		if h != nil {
			u.hasher = h
		}
	}
}

// WithUsersClock overrides the time source used for timestamps.
func WithUsersClock(now func() time.Time) UsersOption {
	return func(u *Users) {
		if now != nil {
			u.now = now
		}
	}
}

func NewUsers(db bun.IDB, opts ...UsersOption) *Users {
	u := &Users{
		db:     db,
		hasher: authgate.BcryptHasher{},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

var (
	_ authgate.UserStore          = (*Users)(nil)
	_ authgate.CredentialVerifier = (*Users)(nil)
)

func (u *Users) FindByEmail(ctx context.Context, email string) (*authgate.User, error) {
	return u.FindByEmailTx(ctx, u.db, email)
}

// FindByEmailTx matches email case insensitively.
func (u *Users) FindByEmailTx(ctx context.Context, tx bun.IDB, email string) (*authgate.User, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, fmt.Errorf("%w: empty email", authgate.ErrUserNotFound)
	}
	return u.findOne(ctx, tx, "lower(?TableAlias.email) = ?", strings.ToLower(email))
}

func (u *Users) FindByID(ctx context.Context, id int64) (*authgate.User, error) {
	return u.FindByIDTx(ctx, u.db, id)
}

func (u *Users) FindByIDTx(ctx context.Context, tx bun.IDB, id int64) (*authgate.User, error) {
	return u.findOne(ctx, tx, "?TableAlias.id = ?", id)
}

func (u *Users) FindByIdentifier(ctx context.Context, identifier string) (*authgate.User, error) {
	return u.FindByIdentifierTx(ctx, u.db, identifier)
}

// FindByIdentifierTx tries the identifier as an email when it parses as one,
// then as a username.
func (u *Users) FindByIdentifierTx(ctx context.Context, tx bun.IDB, identifier string) (*authgate.User, error) {
	trimmed := strings.TrimSpace(identifier)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty identifier", authgate.ErrUserNotFound)
	}

	if isEmail(trimmed) {
		user, err := u.FindByEmailTx(ctx, tx, trimmed)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, authgate.ErrUserNotFound) {
			return nil, err
		}
	}

	return u.findOne(ctx, tx, "?TableAlias.username = ?", trimmed)
}

// VerifyCredentials returns authgate.ErrUserNotFound for unknown identifiers
// and authgate.ErrInvalidPassword on mismatch.
func (u *Users) VerifyCredentials(ctx context.Context, identifier, password string) (*authgate.User, error) {
	user, err := u.FindByIdentifier(ctx, identifier)
	if err != nil {
		return nil, err
	}
	if user.PasswordHash == "" {
		return nil, authgate.ErrInvalidPassword
	}
	if err := u.hasher.ComparePasswordAndHash(password, user.PasswordHash); err != nil {
		return nil, err
	}
	return user, nil
}

// NewUser describes an account to create. Password may be empty for
// accounts that only sign in through external providers.
type NewUser struct {
	Email         string
	Username      string
	Password      string
	EmailVerified bool
	Roles         []string
	Providers     []authgate.ProviderID
}

func (u *Users) Create(ctx context.Context, in NewUser) (*authgate.User, error) {
	var created *authgate.User
	err := u.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		created, err = u.CreateTx(ctx, tx, in)
		return err
	})
	return created, err
}

// CreateTx inserts the account and its provider links. Roles default to USER.
func (u *Users) CreateTx(ctx context.Context, tx bun.IDB, in NewUser) (*authgate.User, error) {
	email := strings.TrimSpace(in.Email)
	if email == "" {
		return nil, errors.New("repository: user email is required")
	}

	roles := in.Roles
	if len(roles) == 0 {
		roles = []string{authgate.RoleUser}
	}

	now := u.now().UTC()
	record := &authgate.User{
		Email:         email,
		Username:      strings.TrimSpace(in.Username),
		EmailVerified: in.EmailVerified,
		Roles:         roles,
		CreatedAt:     &now,
		UpdatedAt:     &now,
	}

	if in.Password != "" {
		hash, err := u.hasher.HashPassword(in.Password)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		record.PasswordHash = hash
	}

	if _, err := tx.NewInsert().Model(record).Exec(ctx); err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}

	links := NewProviderLinks(tx, WithLinksClock(u.now))
	for _, provider := range in.Providers {
		link, err := links.LinkTx(ctx, tx, record.ID, provider, "")
		if err != nil {
			return nil, err
		}
		record.Providers = append(record.Providers, link)
	}

	return record, nil
}

// UpdatePassword stores a new hash for the account.
func (u *Users) UpdatePassword(ctx context.Context, id int64, password string) error {
	hash, err := u.hasher.HashPassword(password)
	if err != nil {
		return err
	}

	res, err := u.db.NewUpdate().
		Model((*authgate.User)(nil)).
		Set("password_hash = ?", hash).
		Set("updated_at = ?", u.now().UTC()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: id %d", authgate.ErrUserNotFound, id)
	}
	return nil
}

func (u *Users) findOne(ctx context.Context, tx bun.IDB, where string, arg any) (*authgate.User, error) {
	record := &authgate.User{}
	err := tx.NewSelect().
		Model(record).
		Relation("Providers").
		Where(where, arg).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %v", authgate.ErrUserNotFound, arg)
		}
		return nil, err
	}
	return record, nil
}

func isEmail(identifier string) bool {
	_, err := mail.ParseAddress(identifier)
	return err == nil
}
