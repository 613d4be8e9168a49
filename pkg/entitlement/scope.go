package entitlement

import "fmt"

// Scope identifies the content subset a scoped grant unlocks.
// A role-level scope has both ids; a document-level scope has an empty RoleID.
type Scope struct {
	DocumentID string `json:"document_id"`
	RoleID     string `json:"role_id,omitempty"`
}

// RoleLevel reports whether the scope narrows access to a single role.
func (s Scope) RoleLevel() bool {
	return s.RoleID != ""
}

// Contains reports whether a grant with scope s unlocks the requested scope.
// Document scopes unlock every role of the document. Role scopes unlock only
// the identical pair and never the parent document or sibling roles.
func (s Scope) Contains(requested Scope) bool {
	if s.DocumentID == "" || s.DocumentID != requested.DocumentID {
		return false
	}
	if !s.RoleLevel() {
		return true
	}
	return s.RoleID == requested.RoleID
}

func (s Scope) String() string {
	if s.RoleLevel() {
		return fmt.Sprintf("document=%s role=%s", s.DocumentID, s.RoleID)
	}
	return "document=" + s.DocumentID
}

// ValidateScope checks that scope has the shape the tier requires.
func ValidateScope(tier Tier, scope *Scope) error {
	switch tier {
	case TierRole:
		if scope == nil || scope.DocumentID == "" || scope.RoleID == "" {
			return fmt.Errorf("%w: role tier requires document and role ids", ErrInvalidScope)
		}
	case TierDocument:
		if scope == nil || scope.DocumentID == "" {
			return fmt.Errorf("%w: document tier requires a document id", ErrInvalidScope)
		}
		if scope.RoleID != "" {
			return fmt.Errorf("%w: document tier must not carry a role id", ErrInvalidScope)
		}
	case TierTrial, TierUnlimited:
		if scope != nil {
			return fmt.Errorf("%w: %s tier carries no scope", ErrInvalidScope, tier)
		}
	default:
		return ErrUnknownTier
	}
	return nil
}
