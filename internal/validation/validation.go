/**
 * @description
 * This file implements input validation for score submissions. It is the first
 * gate a claim passes through before touching any stateful component, so every
 * rejection here is guaranteed to leave the nonce ledger and rate limiter
 * untouched.
 *
 * Key features:
 * - Bounds Checking: Scores are checked against a fixed plausible maximum.
 * - Address Normalization: Player addresses are lowercased in the sanitized
 *   output; every downstream component keys on the lowercase form.
 * - Metadata Schema: Game metadata is a bounded JSON object with a small set
 *   of known optional fields that are individually range-checked; unknown
 *   fields pass through unvalidated.
 *
 * @notes
 * - Player names are NOT validated because they are wallet-derived (0x + 40
 *   hex digits) or a fixed default, never free-form user text. A deployment
 *   that later allows custom names must add sanitization here.
 */

package validation

import (
	"encoding/json"
	"math"
	"regexp"
	"sort"
	"strings"
)

// Maximum plausible score (reasonable upper bound for any game).
const MaxScore = 10_000_000

// Maximum raw metadata length in bytes before parsing is attempted.
const MaxMetadataLength = 10_000

// Reason identifies why a submission failed validation. The codes are stable
// and surfaced verbatim in API error responses.
type Reason string

const (
	ReasonNegativeScore        Reason = "NEGATIVE_SCORE"
	ReasonScoreTooHigh         Reason = "SCORE_TOO_HIGH"
	ReasonInvalidScore         Reason = "INVALID_SCORE"
	ReasonInvalidTournamentID  Reason = "INVALID_TOURNAMENT_ID"
	ReasonInvalidAddressFormat Reason = "INVALID_ADDRESS_FORMAT"
	ReasonMetadataTooLarge     Reason = "METADATA_TOO_LARGE"
	ReasonMetadataInvalidJSON  Reason = "METADATA_INVALID_JSON"
	ReasonMetadataNotObject    Reason = "METADATA_NOT_OBJECT"
	ReasonMetadataDuration     Reason = "METADATA_INVALID_DURATION"
	ReasonMetadataBallsUsed    Reason = "METADATA_INVALID_BALLS_USED"
	ReasonMetadataTableID      Reason = "METADATA_INVALID_TABLE_ID"
	ReasonMetadataTimestamp    Reason = "METADATA_INVALID_TIMESTAMP"
)

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// metadataFieldRange bounds a known optional metadata field. Known fields
// must be JSON numbers within [Min, Max]; Timestamp additionally excludes
// zero via ExclusiveMin.
type metadataFieldRange struct {
	Min          float64
	Max          float64
	ExclusiveMin bool
	Reason       Reason
}

// Known optional metadata fields and their accepted ranges. Anything not
// listed here passes through unvalidated.
var knownMetadataFields = map[string]metadataFieldRange{
	"duration":  {Min: 0, Max: 3_600_000, Reason: ReasonMetadataDuration},
	"ballsUsed": {Min: 0, Max: 1_000, Reason: ReasonMetadataBallsUsed},
	"tableId":   {Min: 0, Max: 100, Reason: ReasonMetadataTableID},
	"timestamp": {Min: 0, Max: math.MaxFloat64, ExclusiveMin: true, Reason: ReasonMetadataTimestamp},
}

// ScoreSubmission is the raw, untrusted claim as received from the client.
type ScoreSubmission struct {
	TournamentID int64
	Address      string
	Score        float64
	Name         string
	Metadata     string
}

// SanitizedSubmission is the validated claim handed to the rest of the
// pipeline. Address is lowercased and Metadata is the parsed object.
type SanitizedSubmission struct {
	TournamentID int64
	Address      string
	Score        int64
	Name         string
	Metadata     map[string]any
}

// ValidateScoreBounds checks a score against the accepted range.
// The checks run in a fixed order so callers always see the first failing
// reason: finiteness, then sign, then upper bound.
func ValidateScoreBounds(score float64) (Reason, bool) {
	if math.IsNaN(score) || math.IsInf(score, 0) || score != math.Trunc(score) {
		return ReasonInvalidScore, false
	}
	if score < 0 {
		return ReasonNegativeScore, false
	}
	if score > MaxScore {
		return ReasonScoreTooHigh, false
	}
	return "", true
}

// ValidateGameMetadata parses and range-checks the raw metadata string.
// Empty or whitespace-only input validates to an empty object. The input must
// otherwise be a JSON object; arrays, null and scalars are rejected.
func ValidateGameMetadata(metadataStr string) (map[string]any, Reason, bool) {
	if len(metadataStr) > MaxMetadataLength {
		return nil, ReasonMetadataTooLarge, false
	}

	if strings.TrimSpace(metadataStr) == "" {
		return map[string]any{}, "", true
	}

	var raw any
	if err := json.Unmarshal([]byte(metadataStr), &raw); err != nil {
		return nil, ReasonMetadataInvalidJSON, false
	}

	data, ok := raw.(map[string]any)
	if !ok {
		return nil, ReasonMetadataNotObject, false
	}

	// Range-check known optional fields when present. Check in sorted key
	// order so the reported reason is deterministic when several are bad.
	keys := make([]string, 0, len(data))
	for key := range data {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		bounds, known := knownMetadataFields[key]
		if !known {
			continue
		}
		value, isNumber := data[key].(float64)
		if !isNumber || value < bounds.Min || value > bounds.Max {
			return nil, bounds.Reason, false
		}
		if bounds.ExclusiveMin && value <= bounds.Min {
			return nil, bounds.Reason, false
		}
	}

	return data, "", true
}

// GetPlayerName returns the player name to embed in the signed claim.
// Names come from the wallet address or a hardcoded default, so they are
// passed through as-is.
func GetPlayerName(input string) string {
	return input
}

/**
 * @description
 * ValidateScoreSubmission runs the full validation pipeline over a raw claim.
 *
 * @param input The untrusted claim from the client.
 * @returns The sanitized claim on success, or the first failing check's reason.
 *
 * @notes
 * - Check order is part of the contract: score bounds, then tournament id,
 *   then address format, then metadata. Callers and tests must expect the
 *   first failing reason, never an aggregate.
 */
func ValidateScoreSubmission(input ScoreSubmission) (SanitizedSubmission, Reason, bool) {
	if reason, ok := ValidateScoreBounds(input.Score); !ok {
		return SanitizedSubmission{}, reason, false
	}

	if input.TournamentID <= 0 {
		return SanitizedSubmission{}, ReasonInvalidTournamentID, false
	}

	if !addressPattern.MatchString(input.Address) {
		return SanitizedSubmission{}, ReasonInvalidAddressFormat, false
	}

	metadata, reason, ok := ValidateGameMetadata(input.Metadata)
	if !ok {
		return SanitizedSubmission{}, reason, false
	}

	return SanitizedSubmission{
		TournamentID: input.TournamentID,
		Address:      strings.ToLower(input.Address),
		Score:        int64(input.Score),
		Name:         GetPlayerName(input.Name),
		Metadata:     metadata,
	}, "", true
}

// CanonicalMetadata serializes a validated metadata object to the canonical
// JSON string that feeds the metadata hash in the signing digest. Go's JSON
// encoder emits object keys in sorted order, which makes the encoding
// deterministic for identical objects.
func CanonicalMetadata(metadata map[string]any) (string, error) {
	if metadata == nil {
		metadata = map[string]any{}
	}
	encoded, err := json.Marshal(metadata)
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}
