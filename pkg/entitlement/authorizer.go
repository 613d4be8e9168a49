package entitlement

import (
	"context"
	"strings"
)

// Authorizer decides whether a user may run administrator actions.
type Authorizer interface {
	IsAdmin(ctx context.Context, userID string) bool
}

// AdminAllowlist is an Authorizer backed by a fixed set of user ids.
type AdminAllowlist map[string]struct{}

// NewAdminAllowlist builds an allowlist, ignoring blank ids.
func NewAdminAllowlist(userIDs ...string) AdminAllowlist {
	list := make(AdminAllowlist, len(userIDs))
	for _, id := range userIDs {
		if id = strings.TrimSpace(id); id != "" {
			list[id] = struct{}{}
		}
	}
	return list
}

func (a AdminAllowlist) IsAdmin(_ context.Context, userID string) bool {
	if userID == "" {
		return false
	}
	_, ok := a[userID]
	return ok
}
