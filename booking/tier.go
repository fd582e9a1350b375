/*
tier.go - Credit-to-session compatibility

PURPOSE:
  Decides which allowance may pay for which session. A session resolves to
  a numeric tier (service-kind base + instructor tier); an allowance
  authorizes a kind and a tier. Compatibility requires both that the
  allowance kind covers the session kind and that the authorized tier is
  at least the session tier.

KIND LATTICE:
  PRIVATE > GROUP > COURSE_STEP for what a credit may be spent on:
  - private credits pay for private, group, or course sessions
  - group credits pay for group or course sessions, never private
  - course credits are single-purpose

CROSS-TIER:
  Spending a strictly higher authorization on a lower requirement (private
  credit on a group class, premium credit on a standard session) is allowed
  but must be explicitly confirmed by the caller. The gate is tier
  direction only - price/cost never enters the decision.

SIDE EFFECTS: none. Everything here is pure; callers decide whether a
failed match is a hard rejection or a confirmation prompt.
*/
package booking

import (
	"fmt"
	"sort"
)

// =============================================================================
// TIER RESOLUTION
// =============================================================================

// Base tier values per service kind. COURSE_STEP is the floor; the gaps
// leave room for instructor tier offsets without kinds colliding.
const (
	tierBaseCourseStep = 0
	tierBaseGroup      = 10
	tierBasePrivate    = 20
)

func kindBase(k ServiceKind) int {
	switch k {
	case KindPrivate:
		return tierBasePrivate
	case KindGroup:
		return tierBaseGroup
	default:
		return tierBaseCourseStep
	}
}

// kindRank orders service kinds for the spend lattice.
func kindRank(k ServiceKind) int {
	switch k {
	case KindPrivate:
		return 2
	case KindGroup:
		return 1
	default:
		return 0
	}
}

// ResolveSessionTier maps a session to its numeric tier: the base value of
// its service kind plus the instructor's tier offset.
func ResolveSessionTier(s *Session) int {
	return kindBase(s.Kind) + s.InstructorTier
}

// AllowanceTier maps an allowance to the numeric tier it authorizes, in the
// same space as ResolveSessionTier so the two compare directly.
func AllowanceTier(a Allowance) int {
	return kindBase(a.Kind) + a.Tier
}

// =============================================================================
// COMPATIBILITY
// =============================================================================

// kindCovers reports whether a credit of kind a may be spent on a session
// of kind s. Equal kind always covers; otherwise a must rank strictly
// higher, except COURSE_STEP credits which are single-purpose.
func kindCovers(a, s ServiceKind) bool {
	if a == s {
		return true
	}
	if a == KindCourseStep {
		return false
	}
	return kindRank(a) > kindRank(s)
}

// CanUseAllowance reports whether the allowance may pay for the session:
// the allowance kind must cover the session kind and the authorized tier
// must be at least the session's resolved tier.
func CanUseAllowance(a Allowance, s *Session) bool {
	return kindCovers(a.Kind, s.Kind) && AllowanceTier(a) >= ResolveSessionTier(s)
}

// IsCrossTier reports whether spending this allowance on this session is a
// cross-tier booking: a strictly higher kind, or a strictly higher
// authorized tier than the session requires. Cross-tier bookings are valid
// but need explicit caller confirmation.
func IsCrossTier(a Allowance, s *Session) bool {
	if !CanUseAllowance(a, s) {
		return false
	}
	return a.Kind != s.Kind || AllowanceTier(a) > ResolveSessionTier(s)
}

// CrossTierWarning renders the confirmation text shown to the caller
// before a cross-tier booking proceeds.
func CrossTierWarning(a Allowance, s *Session) string {
	if a.Kind != s.Kind {
		return fmt.Sprintf(
			"this booking spends a %s credit on a %s session; the credit authorizes more than the session requires",
			a.Kind, s.Kind)
	}
	return fmt.Sprintf(
		"this booking spends a tier-%d credit on a tier-%d session",
		AllowanceTier(a), ResolveSessionTier(s))
}

// =============================================================================
// ALLOWANCE SELECTION
// =============================================================================

// SelectAllowance picks the allowance of the package that will pay for the
// session. An explicit selector wins (and is validated). Without a
// selector, the first qualifying allowance in stable order by allowance id
// is chosen, so repeated calls always pick the same one.
//
// Returns a TierMismatchError when nothing on the package qualifies, or
// when the explicitly selected allowance does not.
func SelectAllowance(pkg *CreditPackage, s *Session, selector *AllowanceID) (Allowance, error) {
	if selector != nil {
		a, ok := pkg.Allowance(*selector)
		if !ok {
			return Allowance{}, &NotFoundError{Kind: "allowance", ID: string(*selector)}
		}
		if !CanUseAllowance(a, s) {
			return Allowance{}, newTierMismatch(a, s)
		}
		return a, nil
	}

	candidates := make([]Allowance, 0, len(pkg.Allowances))
	for _, a := range pkg.Allowances {
		if CanUseAllowance(a, s) {
			candidates = append(candidates, a)
		}
	}
	if len(candidates) == 0 {
		var first Allowance
		if len(pkg.Allowances) > 0 {
			first = pkg.Allowances[0]
		}
		return Allowance{}, newTierMismatch(first, s)
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].ID < candidates[j].ID })
	return candidates[0], nil
}

func newTierMismatch(a Allowance, s *Session) *TierMismatchError {
	return &TierMismatchError{
		AllowanceKind: a.Kind,
		AllowanceTier: AllowanceTier(a),
		SessionKind:   s.Kind,
		SessionTier:   ResolveSessionTier(s),
	}
}
