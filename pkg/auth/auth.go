// Package auth resolves callers into principals and gates operations on
// their permissions.
//
// Agents authenticate with an opaque API key that resolves to the agent, its
// owning user and its permission set. The admin surface authenticates with
// either the shared admin token, which resolves to the default user, or a
// session token issued at register or login, which resolves to that user.
package auth

import (
	"errors"
	"fmt"
	"slices"

	"github.com/papercomputeco/swarm/pkg/utils"
)

var (
	// ErrUnauthenticated is returned for a missing or invalid credential.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrPermissionDenied is returned when a valid principal lacks a
	// permission.
	ErrPermissionDenied = errors.New("permission denied")
)

// Permissions an agent can hold.
const (
	PermRead  = "read"
	PermWrite = "write"
)

// DefaultPermissions are granted to agents created without an explicit set.
const DefaultPermissions = PermRead + "," + PermWrite

// Principal is a resolved caller.
type Principal struct {
	AgentID     string   `json:"agent_id,omitempty"`
	UserID      string   `json:"user_id"`
	Permissions []string `json:"permissions"`

	// Admin principals act on behalf of their user through the admin surface.
	Admin bool `json:"admin,omitempty"`
}

// ParsePermissions reads the stored comma separated permission set.
func ParsePermissions(s string) []string {
	return utils.SplitSet(s)
}

// Can reports whether the principal holds perm. Admins hold every permission.
func (p Principal) Can(perm string) bool {
	return p.Admin || slices.Contains(p.Permissions, perm)
}

// Require returns ErrPermissionDenied unless the principal holds perm.
func (p Principal) Require(perm string) error {
	if !p.Can(perm) {
		return fmt.Errorf("%w: %s permission required", ErrPermissionDenied, perm)
	}
	return nil
}

// Source is the name written into provenance fields for the principal.
func (p Principal) Source() string {
	if p.AgentID == "" {
		return "admin"
	}
	return p.AgentID
}

// ActingAgent is the agent id recorded in audit entries, empty for admins.
func (p Principal) ActingAgent() string {
	return p.AgentID
}
