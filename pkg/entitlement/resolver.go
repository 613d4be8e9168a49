package entitlement

// Resolve returns the highest tier among grants whose status grants access,
// or TierNone when there is none. It is the only place that ranks grants.
func Resolve(grants []Grant) Tier {
	effective := TierNone
	for _, g := range grants {
		if g.Status.GrantsAccess() && g.Tier > effective {
			effective = g.Tier
		}
	}
	return effective
}
