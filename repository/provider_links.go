package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	authgate "github.com/goliatone/go-authgate"
	"github.com/uptrace/bun"
)

// ProviderLinks manages the identity providers registered on accounts.
// A user holds at most one link per provider.
type ProviderLinks struct {
	db  bun.IDB
	now func() time.Time
}

// ProviderLinksOption configures ProviderLinks.
type ProviderLinksOption func(*ProviderLinks)

func WithLinksClock(now func() time.Time) ProviderLinksOption {
	return func(p *ProviderLinks) {
		if now != nil {
			p.now = now
		}
	}
}

func NewProviderLinks(db bun.IDB, opts ...ProviderLinksOption) *ProviderLinks {
	p := &ProviderLinks{db: db, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// FindByUserID lists the links of an account, oldest first.
func (p *ProviderLinks) FindByUserID(ctx context.Context, userID int64) ([]*authgate.UserProvider, error) {
	var links []*authgate.UserProvider
	err := p.db.NewSelect().
		Model(&links).
		Where("user_id = ?", userID).
		OrderExpr("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return links, nil
}

func (p *ProviderLinks) Link(ctx context.Context, userID int64, provider authgate.ProviderID, providerUserID string) (*authgate.UserProvider, error) {
	return p.LinkTx(ctx, p.db, userID, provider, providerUserID)
}

// LinkTx registers provider on the account. Linking an already linked
// provider is a no-op and returns the stored link.
func (p *ProviderLinks) LinkTx(ctx context.Context, tx bun.IDB, userID int64, provider authgate.ProviderID, providerUserID string) (*authgate.UserProvider, error) {
	now := p.now().UTC()
	link := &authgate.UserProvider{
		UserID:         userID,
		Provider:       provider,
		ProviderUserID: providerUserID,
		LinkedAt:       &now,
	}

	_, err := tx.NewInsert().
		Model(link).
		On("CONFLICT (user_id, provider) DO NOTHING").
		Exec(ctx)
	// returning dialects report no rows when the link already exists
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	stored := &authgate.UserProvider{}
	err = tx.NewSelect().
		Model(stored).
		Where("user_id = ? AND provider = ?", userID, provider).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return stored, nil
}

// Unlink removes provider from the account and reports whether a link existed.
func (p *ProviderLinks) Unlink(ctx context.Context, userID int64, provider authgate.ProviderID) (bool, error) {
	res, err := p.db.NewDelete().
		Model((*authgate.UserProvider)(nil)).
		Where("user_id = ? AND provider = ?", userID, provider).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
