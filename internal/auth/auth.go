// Package auth abstracts the identity of the ledger owner. The server
// runs single tenant, so the default provider just pins the user id
// from configuration, but the interface keeps the door open for a real
// identity backend.
package auth

import (
	"context"
	"errors"
)

var ErrNoUser = errors.New("no authenticated user")

type Provider interface {
	// CurrentUserID returns the id that scopes every document store
	// operation for this request.
	CurrentUserID(ctx context.Context) (string, error)
	SignOut(ctx context.Context) error
}

// Static is a fixed-identity provider backed by configuration.
type Static struct {
	userID string
}

func NewStatic(userID string) *Static {
	return &Static{userID: userID}
}

func (s *Static) CurrentUserID(_ context.Context) (string, error) {
	if s.userID == "" {
		return "", ErrNoUser
	}
	return s.userID, nil
}

// SignOut is a no-op for a static identity. The HTTP layer still
// exposes the endpoint so clients can clear their local session.
func (s *Static) SignOut(_ context.Context) error {
	return nil
}
