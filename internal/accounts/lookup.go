package accounts

import (
	"context"

	"github.com/tazhibayda/qna-service/internal/domain"
)

// LookupState makes the "user not yet synced" case explicit instead of
// threading nils through every handler.
type LookupState int

const (
	// Absent: no (valid) provider session at all.
	Absent LookupState = iota
	// Pending: the session subject is valid but the account.created
	// webhook has not landed yet.
	Pending
	// Found: session subject resolves to a local account.
	Found
)

type Lookup struct {
	State LookupState
	User  *domain.User
}

func AbsentLookup() Lookup { return Lookup{State: Absent} }

// Lookup resolves a verified session subject to the local account.
// Callers must only pass subjects from verified tokens; an unknown
// subject therefore means "not synced yet", not "no such session".
func (s *Synchronizer) Lookup(ctx context.Context, externalID string) (Lookup, error) {
	if externalID == "" {
		return AbsentLookup(), nil
	}
	u, err := s.store.FindUserByExternalID(ctx, externalID)
	if err != nil {
		return AbsentLookup(), err
	}
	if u == nil {
		return Lookup{State: Pending}, nil
	}
	return Lookup{State: Found, User: u}, nil
}
