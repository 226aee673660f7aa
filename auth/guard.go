package auth

import (
	"fmt"

	"sunnyflow/fault"
)

// Witness answers whether the current invocation was signed by id.
type Witness interface {
	IsWitness(id Identity) bool
}

// Signers is a fixed witness set.
type Signers map[Identity]struct{}

func NewSigners(ids ...Identity) Signers {
	s := make(Signers, len(ids))
	for _, id := range ids {
		if id != "" {
			s[id] = struct{}{}
		}
	}
	return s
}

func (s Signers) IsWitness(id Identity) bool {
	_, ok := s[id]
	return ok
}

// Guard checks the invoking witness against the identity a role requires.
type Guard struct {
	witness Witness
	owner   Identity
}

func NewGuard(witness Witness, owner Identity) Guard {
	return Guard{witness: witness, owner: owner}
}

func (g Guard) Owner() Identity {
	return g.owner
}

// IsAuthorized is a pure predicate with no failure mode of its own.
func (g Guard) IsAuthorized(id Identity) bool {
	if id == "" || g.witness == nil {
		return false
	}
	return g.witness.IsWitness(id)
}

// Require fails with ErrUnauthorized unless the caller can act as id.
func (g Guard) Require(role Role, id Identity, action string) error {
	if !g.IsAuthorized(id) {
		return fmt.Errorf("auth: must be %s to %s: %w", role, action, fault.ErrUnauthorized)
	}
	return nil
}

func (g Guard) RequireOwner(action string) error {
	return g.Require(RoleOwner, g.owner, action)
}

// RequireAny passes when the caller can act as at least one of ids.
func (g Guard) RequireAny(roles []Role, ids []Identity, action string) error {
	for _, id := range ids {
		if g.IsAuthorized(id) {
			return nil
		}
	}
	return fmt.Errorf("auth: must be %s to %s: %w", joinRoles(roles), action, fault.ErrUnauthorized)
}

func joinRoles(roles []Role) string {
	switch len(roles) {
	case 0:
		return "authorized"
	case 1:
		return string(roles[0])
	}
	out := ""
	for i, r := range roles {
		switch {
		case i == 0:
		case i == len(roles)-1:
			out += " or "
		default:
			out += ", "
		}
		out += string(r)
	}
	return out
}
