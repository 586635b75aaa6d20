package repository

import (
	"context"
	"database/sql"
	"errors"
	"log"

	authgate "github.com/goliatone/go-authgate"
	"github.com/uptrace/bun"
)

// Manager groups the stores that share one database handle.
type Manager struct {
	db    *bun.DB
	users *Users
	links *ProviderLinks
}

func NewManager(db *bun.DB, opts ...UsersOption) *Manager {
	return &Manager{
		db:    db,
		users: NewUsers(db, opts...),
		links: NewProviderLinks(db),
	}
}

func (m *Manager) Validate() error {
	if m.db == nil {
		return errors.New("repository db should be initialized")
	}
	if m.users == nil {
		return errors.New("repository users should be initialized")
	}
	if m.links == nil {
		return errors.New("repository provider links should be initialized")
	}
	return nil
}

func (m *Manager) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m *Manager) Users() *Users { return m.users }

func (m *Manager) Links() *ProviderLinks { return m.links }

func (m *Manager) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

// CreateSchema creates the account tables when missing.
func (m *Manager) CreateSchema(ctx context.Context) error {
	return m.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return CreateSchema(ctx, tx)
	})
}

// CreateSchema creates the users and user_auth_providers tables and the
// unique (user_id, provider) index.
func CreateSchema(ctx context.Context, db bun.IDB) error {
	models := []any{
		(*authgate.User)(nil),
		(*authgate.UserProvider)(nil),
	}
	for _, model := range models {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return err
		}
	}

	_, err := db.NewCreateIndex().
		Model((*authgate.UserProvider)(nil)).
		Index("uq_user_auth_providers_user_provider").
		Unique().
		IfNotExists().
		Column("user_id", "provider").
		Exec(ctx)
	return err
}
