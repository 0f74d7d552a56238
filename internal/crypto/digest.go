/**
 * @description
 * This file implements the canonical signing-digest construction for score
 * claims. The digest must match, byte for byte, what the on-chain tournament
 * contract reconstructs before running ecrecover, so the packing discipline
 * here is the contract between the oracle and the verifier.
 *
 * Key features:
 * - Versioned Encoding: Two tagged message formats coexist. V1 (deprecated)
 *   omits the nonce and chain id and is kept only so old signatures can still
 *   be verified; V2 binds both and is the only format used for new issuance.
 * - Packed Encoding: Fields follow abi.encodePacked discipline — raw tag
 *   bytes, 32-byte big-endian unsigned integers, 20-byte addresses, raw
 *   bytes32 — concatenated in a fixed order and hashed with Keccak256.
 * - Personal-Message Wrapping: The content hash is wrapped as
 *   keccak256("\x19Ethereum Signed Message:\n32" || contentHash); the wrapped
 *   digest, not the content hash, is what gets signed.
 *
 * @notes
 * - The chain id is a package constant (Arbitrum One). Binding signatures to
 *   one network is deliberate; it must never come from caller input.
 * - Oversized numeric inputs are rejected, never truncated.
 */

package crypto

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ArbitrumOneChainID is the only chain the oracle signs for.
const ArbitrumOneChainID = 42161

// Domain-separation tags for the two message formats. The distinct literals
// guarantee V1 and V2 content hashes can never collide for shared inputs.
const (
	tagV1 = "PINBALL_SCORE:"
	tagV2 = "PINBALL_SCORE:v2"
)

// personalMessagePrefix is the EIP-191 prefix for a 32-byte message.
const personalMessagePrefix = "\x19Ethereum Signed Message:\n32"

// HashVersion selects which message format BuildDigest produces.
type HashVersion int

const (
	// V1 is deprecated: no nonce, no chain id, vulnerable to replay. Kept
	// for backward verification only, never for new issuance.
	V1 HashVersion = iota + 1
	// V2 is the current format with nonce and chain id bound in.
	V2
)

func (v HashVersion) String() string {
	switch v {
	case V1:
		return "v1"
	case V2:
		return "v2"
	default:
		return fmt.Sprintf("HashVersion(%d)", int(v))
	}
}

// ErrUnknownVersion is returned when BuildDigest is called with a version it
// does not implement.
var ErrUnknownVersion = errors.New("unknown hash version")

// ScoreMessage carries the fields packed into a score content hash. Nonce is
// ignored for V1.
type ScoreMessage struct {
	TournamentID *big.Int
	Player       common.Address
	Score        *big.Int
	Nonce        *big.Int
	NameHash     common.Hash
	MetaHash     common.Hash
}

// BuildDigest produces the final personal-message digest for a score claim.
// This is the single dispatch point over message versions; call sites never
// select a packing rule themselves.
func BuildDigest(version HashVersion, msg ScoreMessage) (common.Hash, error) {
	var content common.Hash
	var err error

	switch version {
	case V1:
		content, err = scoreContentHashV1(msg)
	case V2:
		content, err = scoreContentHashV2(msg)
	default:
		return common.Hash{}, fmt.Errorf("%w: %d", ErrUnknownVersion, int(version))
	}
	if err != nil {
		return common.Hash{}, err
	}

	return PersonalDigest(content), nil
}

// PersonalDigest wraps a content hash in the EIP-191 personal-message
// convention the verifying contract mirrors before recovery.
func PersonalDigest(contentHash common.Hash) common.Hash {
	data := make([]byte, 0, len(personalMessagePrefix)+common.HashLength)
	data = append(data, personalMessagePrefix...)
	data = append(data, contentHash.Bytes()...)
	return crypto.Keccak256Hash(data)
}

// HashUTF8 hashes the UTF-8 bytes of a string. The empty string hashes to
// the Keccak256 of the empty byte sequence, not a sentinel value.
func HashUTF8(s string) common.Hash {
	return crypto.Keccak256Hash([]byte(s))
}

// scoreContentHashV1 packs the deprecated, replay-vulnerable V1 layout:
// tag || tournamentId || player || score || nameHash || metaHash.
func scoreContentHashV1(msg ScoreMessage) (common.Hash, error) {
	var data []byte
	data = append(data, tagV1...)

	tid, err := packUint256("tournamentId", msg.TournamentID)
	if err != nil {
		return common.Hash{}, err
	}
	data = append(data, tid...)
	data = append(data, msg.Player.Bytes()...)

	score, err := packUint256("score", msg.Score)
	if err != nil {
		return common.Hash{}, err
	}
	data = append(data, score...)
	data = append(data, msg.NameHash.Bytes()...)
	data = append(data, msg.MetaHash.Bytes()...)

	return crypto.Keccak256Hash(data), nil
}

// scoreContentHashV2 packs the current layout:
// tag || tournamentId || player || score || nonce || chainId || nameHash || metaHash.
func scoreContentHashV2(msg ScoreMessage) (common.Hash, error) {
	var data []byte
	data = append(data, tagV2...)

	tid, err := packUint256("tournamentId", msg.TournamentID)
	if err != nil {
		return common.Hash{}, err
	}
	data = append(data, tid...)
	data = append(data, msg.Player.Bytes()...)

	score, err := packUint256("score", msg.Score)
	if err != nil {
		return common.Hash{}, err
	}
	data = append(data, score...)

	nonce, err := packUint256("nonce", msg.Nonce)
	if err != nil {
		return common.Hash{}, err
	}
	data = append(data, nonce...)

	chainID, err := packUint256("chainId", big.NewInt(ArbitrumOneChainID))
	if err != nil {
		return common.Hash{}, err
	}
	data = append(data, chainID...)
	data = append(data, msg.NameHash.Bytes()...)
	data = append(data, msg.MetaHash.Bytes()...)

	return crypto.Keccak256Hash(data), nil
}

// packUint256 encodes a non-negative integer as a 32-byte big-endian word.
// Values that do not fit the target width are rejected, not truncated.
func packUint256(field string, value *big.Int) ([]byte, error) {
	if value == nil {
		return nil, fmt.Errorf("%s must not be nil", field)
	}
	if value.Sign() < 0 {
		return nil, fmt.Errorf("%s must not be negative", field)
	}
	if value.BitLen() > 256 {
		return nil, fmt.Errorf("%s exceeds 256 bits", field)
	}
	return common.LeftPadBytes(value.Bytes(), 32), nil
}
