package entitlement

import "fmt"

// Tier is the access level of a grant.
// Values are declared in rank order; comparing two tiers with < or > is the
// only supported way to rank them.
type Tier int

const (
	TierNone Tier = iota
	TierTrial
	TierRole
	TierDocument
	TierUnlimited
)

var tierNames = [...]string{
	TierNone:      "",
	TierTrial:     "trial",
	TierRole:      "role",
	TierDocument:  "document",
	TierUnlimited: "unlimited",
}

// ParseTier converts a wire name into a Tier.
// The empty string maps to TierNone; unknown names return ErrUnknownTier.
func ParseTier(s string) (Tier, error) {
	for t, name := range tierNames {
		if name == s {
			return Tier(t), nil
		}
	}
	return TierNone, fmt.Errorf("%w: %q", ErrUnknownTier, s)
}

func (t Tier) String() string {
	if t < TierNone || t > TierUnlimited {
		return fmt.Sprintf("tier(%d)", int(t))
	}
	if t == TierNone {
		return "none"
	}
	return tierNames[t]
}

// Valid reports whether t is one of the purchasable or trial tiers.
func (t Tier) Valid() bool {
	return t >= TierTrial && t <= TierUnlimited
}

// Scoped reports whether grants of this tier are restricted to a content scope.
func (t Tier) Scoped() bool {
	return t == TierRole || t == TierDocument
}

// Recurring reports whether the tier is billed as a provider subscription.
// Role and document tiers are one-time purchases.
func (t Tier) Recurring() bool {
	return t == TierUnlimited
}

// Paid reports whether the tier is acquired through a purchase.
func (t Tier) Paid() bool {
	return t >= TierRole && t <= TierUnlimited
}

// MarshalText encodes the tier by name so stored records and JSON payloads
// stay readable.
func (t Tier) MarshalText() ([]byte, error) {
	if t < TierNone || t > TierUnlimited {
		return nil, fmt.Errorf("%w: %d", ErrUnknownTier, int(t))
	}
	return []byte(tierNames[t]), nil
}

// UnmarshalText parses a tier name. Unknown names are rejected with ErrUnknownTier.
func (t *Tier) UnmarshalText(b []byte) error {
	parsed, err := ParseTier(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
