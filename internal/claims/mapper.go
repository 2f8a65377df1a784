package claims

import (
	"context"
	"fmt"

	"github.com/pilab-dev/ssobridge/domain"
)

// Mapper turns account records into assertions. It is stateless; every call
// reads the account fresh so assertions are never cached or persisted.
type Mapper struct {
	accounts domain.AccountStore
}

func NewMapper(accounts domain.AccountStore) *Mapper {
	return &Mapper{accounts: accounts}
}

// IssueAssertion returns the claims for accountID, or an empty set when the
// account does not exist.
func (m *Mapper) IssueAssertion(ctx context.Context, accountID string) (Set, error) {
	acc, err := m.accounts.FindByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("load account %s: %w", accountID, err)
	}
	if acc == nil {
		return Set{}, nil
	}

	return FromAccount(acc), nil
}

// IsActive reports whether accountID still refers to a usable account. Lookup
// errors count as inactive.
func (m *Mapper) IsActive(ctx context.Context, accountID string) bool {
	acc, err := m.accounts.FindByID(ctx, accountID)
	if err != nil || acc == nil {
		return false
	}

	return acc.Active
}

// FromAccount maps an account onto the fixed claim vocabulary. Empty optional
// fields are omitted.
func FromAccount(acc *domain.Account) Set {
	s := Set{
		{Name: Subject, Value: acc.ID},
		{Name: Name, Value: acc.Username},
		{Name: PreferredUsername, Value: acc.Username},
	}
	if acc.Email != "" {
		s = append(s, Claim{Name: Email, Value: acc.Email})
	}
	if acc.FullName != "" {
		s = append(s, Claim{Name: FullName, Value: acc.FullName})
	}

	return s
}
