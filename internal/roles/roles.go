/*

This file contains the role registry used to gate privileged vault operations.

Roles are capability tags attached to account addresses. Every privileged entry point calls
Authorize first and receives either a typed Authorization or ErrAccessDenied.

*/

package roles

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	sdk "github.com/cosmos/cosmos-sdk/types"
)

// Role is a capability tag.
type Role string

const (
	Admin    Role = "ADMIN"
	Owner    Role = "OWNER"
	Strategy Role = "STRATEGY"
)

var (
	ErrAccessDenied = errors.New("access denied")
	ErrZeroAddress  = errors.New("address is empty")
	ErrUnknownRole  = errors.New("unknown role")
)

// Authorization records which role let a caller through.
type Authorization struct {
	Caller sdk.AccAddress
	Role   Role
}

// Registry maps account identities to capability sets.
type Registry struct {
	mu       sync.RWMutex
	members  map[string]map[Role]struct{}
	strategy sdk.AccAddress // Holder of STRATEGY granted through rotation
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{members: make(map[string]map[Role]struct{})}
}

// Authorize returns an Authorization for the first role in anyOf held by caller.
func (r *Registry) Authorize(caller sdk.AccAddress, anyOf ...Role) (Authorization, error) {
	if caller.Empty() {
		return Authorization{}, fmt.Errorf("%w: caller is empty", ErrAccessDenied)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.members[caller.String()]
	for _, role := range anyOf {
		if _, ok := set[role]; ok {
			return Authorization{Caller: caller, Role: role}, nil
		}
	}
	return Authorization{}, fmt.Errorf("%w: %s lacks %v", ErrAccessDenied, caller, anyOf)
}

// Has reports whether account holds role.
func (r *Registry) Has(account sdk.AccAddress, role Role) bool {
	if account.Empty() {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.members[account.String()][role]
	return ok
}

// Grant adds role to account. Granting an already held role is a no-op and reports false.
func (r *Registry) Grant(account sdk.AccAddress, role Role) (bool, error) {
	if err := validate(account, role); err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.grantLocked(account, role), nil
}

// Revoke removes role from account and reports whether it was held.
func (r *Registry) Revoke(account sdk.AccAddress, role Role) (bool, error) {
	if err := validate(account, role); err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	revoked := r.revokeLocked(account, role)
	if revoked && role == Strategy && r.strategy.Equals(account) {
		r.strategy = nil
	}
	return revoked, nil
}

// RotateStrategy revokes STRATEGY from the current rotation holder and grants it to next
// in one step. It returns the previous holder, which may be empty.
func (r *Registry) RotateStrategy(next sdk.AccAddress) (sdk.AccAddress, error) {
	if next.Empty() {
		return nil, ErrZeroAddress
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	previous := r.strategy
	if !previous.Empty() && !previous.Equals(next) {
		r.revokeLocked(previous, Strategy)
	}
	r.grantLocked(next, Strategy)
	r.strategy = next
	return previous, nil
}

// SetStrategyHolder restores the rotation holder, used when a transaction is rolled back.
func (r *Registry) SetStrategyHolder(holder sdk.AccAddress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategy = holder
}

// StrategyHolder returns the account that currently holds STRATEGY through rotation.
func (r *Registry) StrategyHolder() sdk.AccAddress {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.strategy
}

// Members returns the sorted addresses holding role.
func (r *Registry) Members(role Role) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for addr, set := range r.members {
		if _, ok := set[role]; ok {
			out = append(out, addr)
		}
	}
	sort.Strings(out)
	return out
}

func (r *Registry) grantLocked(account sdk.AccAddress, role Role) bool {
	key := account.String()
	set, ok := r.members[key]
	if !ok {
		set = make(map[Role]struct{})
		r.members[key] = set
	}
	if _, held := set[role]; held {
		return false
	}
	set[role] = struct{}{}
	return true
}

func (r *Registry) revokeLocked(account sdk.AccAddress, role Role) bool {
	key := account.String()
	set, ok := r.members[key]
	if !ok {
		return false
	}
	if _, held := set[role]; !held {
		return false
	}
	delete(set, role)
	if len(set) == 0 {
		delete(r.members, key)
	}
	return true
}

func validate(account sdk.AccAddress, role Role) error {
	if account.Empty() {
		return ErrZeroAddress
	}
	switch role {
	case Admin, Owner, Strategy:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}
}
