package booking_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/booking-engine/booking"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func session(kind booking.ServiceKind, instructorTier int) *booking.Session {
	start := time.Date(2026, time.March, 10, 18, 0, 0, 0, time.UTC)
	return &booking.Session{
		ID:             "sess-1",
		Kind:           kind,
		StartAt:        start,
		EndAt:          start.Add(time.Hour),
		Capacity:       1,
		Status:         booking.SessionScheduled,
		InstructorID:   "inst-1",
		InstructorTier: instructorTier,
	}
}

func allowance(id string, kind booking.ServiceKind, tier int) booking.Allowance {
	return booking.Allowance{ID: booking.AllowanceID(id), Kind: kind, Tier: tier, UnitMinutes: 60, Granted: 10}
}

// =============================================================================
// TIER RESOLUTION
// =============================================================================

func TestResolveSessionTier_KindDominatesInstructorTier(t *testing.T) {
	// GIVEN: A course session with a very senior instructor
	// WHEN: Comparing to a group session with a junior instructor
	// THEN: The group session still resolves strictly higher

	course := booking.ResolveSessionTier(session(booking.KindCourseStep, 9))
	group := booking.ResolveSessionTier(session(booking.KindGroup, 0))
	private := booking.ResolveSessionTier(session(booking.KindPrivate, 0))

	assert.Less(t, course, group)
	assert.Less(t, group, private)
}

func TestResolveSessionTier_InstructorTierOrdersWithinKind(t *testing.T) {
	junior := booking.ResolveSessionTier(session(booking.KindGroup, 1))
	senior := booking.ResolveSessionTier(session(booking.KindGroup, 3))
	assert.Less(t, junior, senior)
}

// =============================================================================
// COMPATIBILITY
// =============================================================================

func TestCanUseAllowance_ExactMatch_Allowed(t *testing.T) {
	s := session(booking.KindGroup, 2)
	a := allowance("a-1", booking.KindGroup, 2)

	assert.True(t, booking.CanUseAllowance(a, s))
	assert.False(t, booking.IsCrossTier(a, s), "exact match is not cross-tier")
}

func TestCanUseAllowance_GroupCreditOnPrivateSession_Rejected(t *testing.T) {
	// GIVEN: A group credit of a very high tier
	// WHEN: Spending it on a private session
	// THEN: Rejected regardless of tier; group never covers private

	s := session(booking.KindPrivate, 0)
	a := allowance("a-1", booking.KindGroup, 99)

	assert.False(t, booking.CanUseAllowance(a, s))
}

func TestCanUseAllowance_PrivateCreditOnGroupSession_AllowedCrossTier(t *testing.T) {
	s := session(booking.KindGroup, 0)
	a := allowance("a-1", booking.KindPrivate, 0)

	assert.True(t, booking.CanUseAllowance(a, s))
	assert.True(t, booking.IsCrossTier(a, s), "kind downgrade is cross-tier")
	assert.NotEmpty(t, booking.CrossTierWarning(a, s))
}

func TestCanUseAllowance_CourseCredit_SinglePurpose(t *testing.T) {
	a := allowance("a-1", booking.KindCourseStep, 5)

	assert.True(t, booking.CanUseAllowance(a, session(booking.KindCourseStep, 1)))
	assert.False(t, booking.CanUseAllowance(a, session(booking.KindGroup, 0)))
	assert.False(t, booking.CanUseAllowance(a, session(booking.KindPrivate, 0)))
}

func TestCanUseAllowance_SeniorInstructor_RejectsJuniorCredit(t *testing.T) {
	// GIVEN: A credit authorized up to instructor tier 1
	// WHEN: Booking a tier-3 instructor of the same kind
	// THEN: Rejected; the authorization ceiling is below the requirement

	s := session(booking.KindPrivate, 3)
	a := allowance("a-1", booking.KindPrivate, 1)

	assert.False(t, booking.CanUseAllowance(a, s))
}

func TestCanUseAllowance_QualificationMonotonicInTier(t *testing.T) {
	// GIVEN: An allowance tier that qualifies for a session
	// WHEN: Raising the allowance tier, same kind
	// THEN: Every higher tier qualifies too; qualification never flips
	//       back off as the allowance gets stronger

	for _, kind := range []booking.ServiceKind{booking.KindCourseStep, booking.KindGroup, booking.KindPrivate} {
		for instructorTier := 0; instructorTier <= 4; instructorTier++ {
			s := session(kind, instructorTier)
			qualified := false
			for tier := 0; tier <= 9; tier++ {
				ok := booking.CanUseAllowance(allowance("a-1", kind, tier), s)
				if qualified {
					assert.True(t, ok,
						"kind %s instructor tier %d: tier %d must qualify once a lower tier did",
						kind, instructorTier, tier)
				}
				qualified = qualified || ok
			}
			assert.True(t, qualified, "kind %s instructor tier %d: some tier must qualify", kind, instructorTier)
		}
	}
}

func TestIsCrossTier_HigherTierSameKind_RequiresConfirmation(t *testing.T) {
	s := session(booking.KindPrivate, 1)
	a := allowance("a-1", booking.KindPrivate, 3)

	assert.True(t, booking.CanUseAllowance(a, s))
	assert.True(t, booking.IsCrossTier(a, s))
	assert.Contains(t, booking.CrossTierWarning(a, s), "tier")
}

func TestIsCrossTier_IncompatibleAllowance_NotCrossTier(t *testing.T) {
	// An unusable allowance is a mismatch, never a confirmation prompt.
	s := session(booking.KindPrivate, 0)
	a := allowance("a-1", booking.KindGroup, 0)

	assert.False(t, booking.IsCrossTier(a, s))
}

// =============================================================================
// ALLOWANCE SELECTION
// =============================================================================

func TestSelectAllowance_NoSelector_DeterministicFirstQualifier(t *testing.T) {
	// GIVEN: Two allowances that both qualify
	// WHEN: Selecting without an explicit selector, repeatedly
	// THEN: The allowance with the smaller id always wins

	s := session(booking.KindGroup, 0)
	pkg := &booking.CreditPackage{
		ID:         "pkg-1",
		CustomerID: "cust-1",
		Allowances: []booking.Allowance{
			allowance("b-allowance", booking.KindGroup, 2),
			allowance("a-allowance", booking.KindGroup, 1),
		},
		Remaining: 20,
	}

	for i := 0; i < 5; i++ {
		got, err := booking.SelectAllowance(pkg, s, nil)
		require.NoError(t, err)
		assert.Equal(t, booking.AllowanceID("a-allowance"), got.ID)
	}
}

func TestSelectAllowance_ExplicitSelector_Wins(t *testing.T) {
	s := session(booking.KindGroup, 0)
	pkg := &booking.CreditPackage{
		ID: "pkg-1",
		Allowances: []booking.Allowance{
			allowance("a-allowance", booking.KindGroup, 1),
			allowance("b-allowance", booking.KindGroup, 2),
		},
	}

	sel := booking.AllowanceID("b-allowance")
	got, err := booking.SelectAllowance(pkg, s, &sel)
	require.NoError(t, err)
	assert.Equal(t, sel, got.ID)
}

func TestSelectAllowance_SelectorMissing_NotFound(t *testing.T) {
	s := session(booking.KindGroup, 0)
	pkg := &booking.CreditPackage{
		ID:         "pkg-1",
		Allowances: []booking.Allowance{allowance("a-1", booking.KindGroup, 1)},
	}

	sel := booking.AllowanceID("nope")
	_, err := booking.SelectAllowance(pkg, s, &sel)
	assert.True(t, booking.IsNotFound(err))
}

func TestSelectAllowance_SelectorUnqualified_TierMismatch(t *testing.T) {
	// GIVEN: The package also holds a qualifying allowance
	// WHEN: Explicitly selecting the one that cannot pay
	// THEN: TierMismatchError; the selector is never silently replaced

	s := session(booking.KindPrivate, 2)
	pkg := &booking.CreditPackage{
		ID: "pkg-1",
		Allowances: []booking.Allowance{
			allowance("good", booking.KindPrivate, 3),
			allowance("weak", booking.KindGroup, 1),
		},
	}

	sel := booking.AllowanceID("weak")
	_, err := booking.SelectAllowance(pkg, s, &sel)

	var mismatch *booking.TierMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, booking.KindGroup, mismatch.AllowanceKind)
}

func TestSelectAllowance_NothingQualifies_TierMismatch(t *testing.T) {
	s := session(booking.KindPrivate, 3)
	pkg := &booking.CreditPackage{
		ID:         "pkg-1",
		Allowances: []booking.Allowance{allowance("a-1", booking.KindCourseStep, 1)},
	}

	_, err := booking.SelectAllowance(pkg, s, nil)
	assert.ErrorIs(t, err, booking.ErrTierMismatch)
}
