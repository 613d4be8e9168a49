package entitlement

// CanAccess reports whether rec unlocks the requested content scope.
// It reads only the already loaded record and performs no I/O.
func CanAccess(rec *Record, requested Scope) bool {
	if rec == nil {
		return false
	}
	switch rec.EffectiveTier {
	case TierUnlimited, TierTrial:
		return true
	case TierRole, TierDocument:
		for _, g := range rec.ActiveGrants {
			if !g.Tier.Scoped() || !g.Status.GrantsAccess() || g.Scope == nil {
				continue
			}
			if g.Scope.Contains(requested) {
				return true
			}
		}
	}
	return false
}
