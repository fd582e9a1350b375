package booking_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/booking-engine/booking"
)

func TestAllowancesFromLegacyJSON_CurrentFieldNames(t *testing.T) {
	raw := []byte(`[
		{"id": "priv-60", "service_type": "private", "min_teacher_level": 2, "unit_minutes": 60, "credits": 10}
	]`)

	got, err := booking.AllowancesFromLegacyJSON(raw)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, booking.AllowanceID("priv-60"), got[0].ID)
	assert.Equal(t, booking.KindPrivate, got[0].Kind)
	assert.Equal(t, 2, got[0].Tier)
	assert.Equal(t, 60, got[0].UnitMinutes)
	assert.Equal(t, 10, got[0].Granted)
}

func TestAllowancesFromLegacyJSON_OldFieldNames(t *testing.T) {
	// GIVEN: A blob written by the previous system (type/level/duration)
	// WHEN: Resolving it
	// THEN: Same typed shape as current-format allowances

	raw := []byte(`[
		{"type": "group_class", "level": 1, "duration": 30, "credits": 8},
		{"type": "one_on_one", "level": 3, "duration": 60, "credits": 5}
	]`)

	got, err := booking.AllowancesFromLegacyJSON(raw)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, booking.KindGroup, got[0].Kind)
	assert.Equal(t, 30, got[0].UnitMinutes)
	assert.Equal(t, booking.KindPrivate, got[1].Kind)
}

func TestAllowancesFromLegacyJSON_SynthesizedIDs_Stable(t *testing.T) {
	raw := []byte(`[
		{"type": "group", "duration": 60, "credits": 4},
		{"type": "course", "duration": 45, "credits": 6}
	]`)

	first, err := booking.AllowancesFromLegacyJSON(raw)
	require.NoError(t, err)
	second, err := booking.AllowancesFromLegacyJSON(raw)
	require.NoError(t, err)

	assert.Equal(t, booking.AllowanceID("legacy-00"), first[0].ID)
	assert.Equal(t, booking.AllowanceID("legacy-01"), first[1].ID)
	assert.Equal(t, first, second, "resolution must be deterministic")
}

func TestAllowancesFromLegacyJSON_UnknownServiceType_Rejected(t *testing.T) {
	raw := []byte(`[{"type": "seminar", "duration": 60, "credits": 1}]`)

	_, err := booking.AllowancesFromLegacyJSON(raw)
	assert.ErrorIs(t, err, booking.ErrInvalidRequest)
}

func TestAllowancesFromLegacyJSON_MissingDuration_Rejected(t *testing.T) {
	raw := []byte(`[{"type": "group", "credits": 1}]`)

	_, err := booking.AllowancesFromLegacyJSON(raw)
	assert.ErrorIs(t, err, booking.ErrInvalidRequest)
}

func TestAllowancesFromLegacyJSON_MalformedBlob_Rejected(t *testing.T) {
	_, err := booking.AllowancesFromLegacyJSON([]byte(`{"not": "an array"`))
	assert.ErrorIs(t, err, booking.ErrInvalidRequest)
}
