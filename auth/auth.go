// Package auth decides whether a chat member may run a command.
package auth

import (
	"context"
	"log/slog"

	"github.com/itizir/emotepoll/command"
)

// RoleLookup resolves the roles of a guild member when the triggering event
// did not carry them.
type RoleLookup interface {
	MemberRoles(ctx context.Context, guildID, userID string) ([]string, error)
}

type Issuer struct {
	ID      string
	GuildID string
	// Roles as delivered with the event; nil means unknown.
	Roles []string
}

type Authorizer struct {
	adminRoles map[string]bool
	adminUsers map[string]bool
	lookup     RoleLookup
	logger     *slog.Logger
}

// New returns an Authorizer granting the admin capability to members holding
// any of adminRoleIDs, and to the users in adminUserIDs. lookup may be nil.
func New(adminRoleIDs, adminUserIDs []string, lookup RoleLookup, logger *slog.Logger) *Authorizer {
	a := &Authorizer{
		adminRoles: make(map[string]bool, len(adminRoleIDs)),
		adminUsers: make(map[string]bool, len(adminUserIDs)),
		lookup:     lookup,
		logger:     logger,
	}
	for _, id := range adminRoleIDs {
		if id != "" {
			a.adminRoles[id] = true
		}
	}
	for _, id := range adminUserIDs {
		if id != "" {
			a.adminUsers[id] = true
		}
	}
	return a
}

func (a *Authorizer) Authorize(ctx context.Context, issuer Issuer, required command.Capability) bool {
	if required == command.CapabilityNone {
		return true
	}
	if required != command.CapabilityAdmin {
		return false
	}
	if a.adminUsers[issuer.ID] {
		return true
	}

	roles := issuer.Roles
	if roles == nil && a.lookup != nil && issuer.GuildID != "" {
		var err error
		roles, err = a.lookup.MemberRoles(ctx, issuer.GuildID, issuer.ID)
		if err != nil {
			a.logger.WarnContext(ctx, "role lookup failed, denying", "user", issuer.ID, "guild", issuer.GuildID, "error", err)
			return false
		}
	}
	for _, r := range roles {
		if a.adminRoles[r] {
			return true
		}
	}
	return false
}
