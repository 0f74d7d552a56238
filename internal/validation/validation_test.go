package validation

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAddress = "0x1234567890aBcDeF1234567890abcdef12345678"

func validSubmission() ScoreSubmission {
	return ScoreSubmission{
		TournamentID: 1,
		Address:      testAddress,
		Score:        50_000,
		Name:         "",
		Metadata:     "",
	}
}

func TestValidateScoreBounds(t *testing.T) {
	cases := []struct {
		name   string
		score  float64
		reason Reason
		ok     bool
	}{
		{"zero", 0, "", true},
		{"max", MaxScore, "", true},
		{"negative", -1, ReasonNegativeScore, false},
		{"above max", MaxScore + 1, ReasonScoreTooHigh, false},
		{"nan", math.NaN(), ReasonInvalidScore, false},
		{"positive infinity", math.Inf(1), ReasonInvalidScore, false},
		{"negative infinity", math.Inf(-1), ReasonInvalidScore, false},
		{"fractional", 12.5, ReasonInvalidScore, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			reason, ok := ValidateScoreBounds(tc.score)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.reason, reason)
		})
	}
}

func TestValidateScoreSubmission_FirstFailingReasonWins(t *testing.T) {
	// A submission with a bad score AND a bad tournament id reports the
	// score reason: checks run score, tournament id, address, metadata.
	input := validSubmission()
	input.Score = -1
	input.TournamentID = 0

	_, reason, ok := ValidateScoreSubmission(input)
	require.False(t, ok)
	assert.Equal(t, ReasonNegativeScore, reason)
}

func TestValidateScoreSubmission_TournamentID(t *testing.T) {
	for _, tid := range []int64{0, -1, -100} {
		input := validSubmission()
		input.TournamentID = tid
		_, reason, ok := ValidateScoreSubmission(input)
		require.False(t, ok, "tournament id %d", tid)
		assert.Equal(t, ReasonInvalidTournamentID, reason)
	}
}

func TestValidateScoreSubmission_AddressFormat(t *testing.T) {
	bad := []string{
		"",
		"0x",
		"1234567890abcdef1234567890abcdef12345678",     // missing prefix
		"0x1234567890abcdef1234567890abcdef1234567",    // too short
		"0x1234567890abcdef1234567890abcdef123456789",  // too long
		"0x1234567890abcdef1234567890abcdef1234567g",   // non-hex
		"0X1234567890abcdef1234567890abcdef12345678",   // uppercase prefix
	}
	for _, address := range bad {
		input := validSubmission()
		input.Address = address
		_, reason, ok := ValidateScoreSubmission(input)
		require.False(t, ok, "address %q", address)
		assert.Equal(t, ReasonInvalidAddressFormat, reason)
	}
}

func TestValidateScoreSubmission_NormalizesAddressToLowercase(t *testing.T) {
	input := validSubmission()
	input.Address = strings.ToUpper(testAddress[2:])
	input.Address = "0x" + input.Address

	sanitized, _, ok := ValidateScoreSubmission(input)
	require.True(t, ok)
	assert.Equal(t, strings.ToLower(testAddress), sanitized.Address)
}

func TestValidateGameMetadata_EmptyAndBlank(t *testing.T) {
	for _, raw := range []string{"", "   ", "\n\t"} {
		data, reason, ok := ValidateGameMetadata(raw)
		require.True(t, ok, "input %q", raw)
		assert.Empty(t, reason)
		assert.Empty(t, data)
		assert.NotNil(t, data)
	}
}

func TestValidateGameMetadata_RejectsNonObjects(t *testing.T) {
	cases := map[string]Reason{
		"[1,2,3]":   ReasonMetadataNotObject,
		"null":      ReasonMetadataNotObject,
		"42":        ReasonMetadataNotObject,
		`"text"`:    ReasonMetadataNotObject,
		"{broken":   ReasonMetadataInvalidJSON,
		"not json":  ReasonMetadataInvalidJSON,
	}
	for raw, want := range cases {
		_, reason, ok := ValidateGameMetadata(raw)
		require.False(t, ok, "input %q", raw)
		assert.Equal(t, want, reason, "input %q", raw)
	}
}

func TestValidateGameMetadata_SizeCap(t *testing.T) {
	oversized := `{"pad":"` + strings.Repeat("a", MaxMetadataLength) + `"}`
	_, reason, ok := ValidateGameMetadata(oversized)
	require.False(t, ok)
	assert.Equal(t, ReasonMetadataTooLarge, reason)
}

func TestValidateGameMetadata_KnownFieldRanges(t *testing.T) {
	cases := map[string]Reason{
		`{"duration": -1}`:        ReasonMetadataDuration,
		`{"duration": 3600001}`:   ReasonMetadataDuration,
		`{"duration": "fast"}`:    ReasonMetadataDuration,
		`{"ballsUsed": 1001}`:     ReasonMetadataBallsUsed,
		`{"ballsUsed": -1}`:       ReasonMetadataBallsUsed,
		`{"tableId": 101}`:        ReasonMetadataTableID,
		`{"timestamp": 0}`:        ReasonMetadataTimestamp,
		`{"timestamp": -5}`:       ReasonMetadataTimestamp,
	}
	for raw, want := range cases {
		_, reason, ok := ValidateGameMetadata(raw)
		require.False(t, ok, "input %q", raw)
		assert.Equal(t, want, reason, "input %q", raw)
	}
}

func TestValidateGameMetadata_AcceptsInRangeAndUnknownFields(t *testing.T) {
	data, reason, ok := ValidateGameMetadata(
		`{"duration": 120000, "ballsUsed": 3, "tableId": 7, "timestamp": 1700000000000, "flipperStyle": "ambidextrous"}`)
	require.True(t, ok, "reason %s", reason)
	assert.Equal(t, float64(3), data["ballsUsed"])
	assert.Equal(t, "ambidextrous", data["flipperStyle"])
}

func TestCanonicalMetadata(t *testing.T) {
	encoded, err := CanonicalMetadata(nil)
	require.NoError(t, err)
	assert.Equal(t, "{}", encoded)

	encoded, err = CanonicalMetadata(map[string]any{"b": 2.0, "a": 1.0})
	require.NoError(t, err)
	// Keys are emitted sorted, so identical objects always encode identically.
	assert.Equal(t, `{"a":1,"b":2}`, encoded)
}
