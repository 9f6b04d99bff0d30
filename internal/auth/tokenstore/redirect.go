package tokenstore

import (
	"context"
	"errors"
	"fmt"

	"conductor-console/internal/storage"
	"conductor-console/pkg/platform/sentinel"
)

// KeyRedirectURI is the session storage key of the pending return address.
const KeyRedirectURI = "redirectURI"

// PendingRedirect holds at most one return address across the IdP round-trip.
type PendingRedirect struct {
	storage storage.Store
}

func NewPendingRedirect(st storage.Store) *PendingRedirect {
	return &PendingRedirect{storage: st}
}

// Save records uri, replacing any earlier value.
func (p *PendingRedirect) Save(ctx context.Context, uri string) error {
	if err := p.storage.SetMany(ctx, map[string]string{KeyRedirectURI: uri}); err != nil {
		return fmt.Errorf("save redirect uri: %w", err)
	}
	return nil
}

// Take returns the recorded address and deletes it.
func (p *PendingRedirect) Take(ctx context.Context) (string, bool, error) {
	uri, err := p.storage.Get(ctx, KeyRedirectURI)
	if errors.Is(err, sentinel.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read redirect uri: %w", err)
	}
	if err := p.Clear(ctx); err != nil {
		return "", false, err
	}
	return uri, uri != "", nil
}

func (p *PendingRedirect) Clear(ctx context.Context) error {
	if err := p.storage.Delete(ctx, KeyRedirectURI); err != nil {
		return fmt.Errorf("clear redirect uri: %w", err)
	}
	return nil
}
