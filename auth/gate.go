/*
Package auth decides whether a caller may run a command.

PURPOSE:
  Two checks guard every command:
  - Blacklist: a blacklisted identity may only check its own balance.
  - Admin: privileged commands require the caller to pass an Authorizer.

AUTHORIZERS:
  RoleAuthorizer:       caller holds one of the configured admin roles
                        (case-sensitive exact match)
  PermissionAuthorizer: caller's permission bits include ADMINISTRATOR
  AnyOf:                passes if any wrapped authorizer passes

  Command code only ever asks IsAdmin(caller); where the answer comes from
  is a deployment decision made in config.

SEE ALSO:
  - bot/router.go: Applies the gate before dispatch
  - config/config.go: Admin role configuration
*/
package auth

import (
	"context"

	"github.com/warp/credit-bot/ledger"
)

// PermissionAdministrator is Discord's ADMINISTRATOR permission bit.
const PermissionAdministrator uint64 = 1 << 3

// Caller is the identity issuing a command, with whatever authorization
// facts the platform attached to it.
type Caller struct {
	Identity    ledger.Identity
	Roles       []string
	Permissions uint64
}

// Authorizer answers the admin capability question.
type Authorizer interface {
	IsAdmin(caller Caller) bool
}

// AuthorizerFunc adapts a function to Authorizer.
type AuthorizerFunc func(caller Caller) bool

func (f AuthorizerFunc) IsAdmin(caller Caller) bool { return f(caller) }

// RoleAuthorizer grants admin to callers holding any of Roles.
type RoleAuthorizer struct {
	Roles []string
}

// NewRoleAuthorizer creates a RoleAuthorizer.
func NewRoleAuthorizer(roles ...string) *RoleAuthorizer {
	return &RoleAuthorizer{Roles: roles}
}

func (a *RoleAuthorizer) IsAdmin(caller Caller) bool {
	for _, have := range caller.Roles {
		for _, want := range a.Roles {
			if have == want {
				return true
			}
		}
	}
	return false
}

// PermissionAuthorizer grants admin to callers whose permission bits
// contain Mask.
type PermissionAuthorizer struct {
	Mask uint64
}

func (a PermissionAuthorizer) IsAdmin(caller Caller) bool {
	return a.Mask != 0 && caller.Permissions&a.Mask == a.Mask
}

// AnyOf passes if any of the given authorizers passes.
func AnyOf(authorizers ...Authorizer) Authorizer {
	return AuthorizerFunc(func(caller Caller) bool {
		for _, a := range authorizers {
			if a != nil && a.IsAdmin(caller) {
				return true
			}
		}
		return false
	})
}

// BlacklistChecker is the slice of the ledger the gate needs.
type BlacklistChecker interface {
	IsBlacklisted(ctx context.Context, id ledger.Identity) (bool, error)
}

// Gate bundles the blacklist and admin checks.
type Gate struct {
	Blacklist  BlacklistChecker
	Authorizer Authorizer
}

// NewGate creates a Gate.
func NewGate(blacklist BlacklistChecker, authorizer Authorizer) *Gate {
	return &Gate{Blacklist: blacklist, Authorizer: authorizer}
}

// CheckBlacklist reports whether id is blacklisted.
func (g *Gate) CheckBlacklist(ctx context.Context, id ledger.Identity) (bool, error) {
	return g.Blacklist.IsBlacklisted(ctx, id)
}

// RequireAdmin reports whether caller has the admin capability.
func (g *Gate) RequireAdmin(caller Caller) bool {
	if g.Authorizer == nil {
		return false
	}
	return g.Authorizer.IsAdmin(caller)
}
