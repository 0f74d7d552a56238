/**
 * @description
 * This file contains the signing half of the oracle's cryptographic core. It
 * is the only component that touches key material.
 *
 * Key features:
 * - Go-Ethereum Integration: Leverages the `go-ethereum` crypto package for
 *   key parsing and ECDSA signing, ensuring correctness and security.
 * - Separation of Concerns: The signer consumes a pre-built digest and never
 *   re-derives it; digest construction lives in digest.go. This separation
 *   prevents accidental double-hashing bugs.
 *
 * @dependencies
 * - github.com/ethereum/go-ethereum/crypto: For key management and signing.
 * - github.com/ethereum/go-ethereum/common/hexutil: For signature encoding.
 */

package crypto

import (
	"crypto/ecdsa"
	"errors"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signer holds the oracle's private key and produces ECDSA signatures over
// pre-built digests.
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
	logger  *slog.Logger
}

/**
 * @description
 * NewSigner creates a Signer from a hex-encoded ECDSA private key.
 *
 * @param privateKeyHex The hexadecimal private key; a "0x" prefix is tolerated.
 * @param logger A structured logger for signing operations.
 * @returns A pointer to a new Signer, or an error if the key is malformed.
 *
 * @notes
 * - A malformed key is a configuration-level failure: the caller is expected
 *   to treat it as fatal at startup, not retryable.
 */
func NewSigner(privateKeyHex string, logger *slog.Logger) (*Signer, error) {
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		logger.Error("failed to parse signer private key", "error", err)
		return nil, errors.New("invalid private key format")
	}

	return &Signer{
		key:     privateKey,
		address: crypto.PubkeyToAddress(privateKey.PublicKey),
		logger:  logger,
	}, nil
}

// Address returns the public address derived from the signing key. Used for
// the startup self-check against the configured oracle address.
func (s *Signer) Address() common.Address {
	return s.address
}

/**
 * @description
 * SignDigest signs a pre-built 32-byte digest with the oracle's key.
 *
 * @param digest The personal-message digest produced by BuildDigest.
 * @returns The 65-byte [R || S || V] signature as a hex string.
 *
 * @notes
 * - `crypto.Sign` returns V as 0 or 1; it is adjusted to 27/28 as the
 *   verifying contract's ecrecover expects.
 */
func (s *Signer) SignDigest(digest common.Hash) (string, error) {
	signature, err := crypto.Sign(digest.Bytes(), s.key)
	if err != nil {
		s.logger.Error("failed to sign digest", "error", err)
		return "", errors.New("failed to sign digest")
	}

	if len(signature) != 65 {
		return "", errors.New("signature generated with incorrect length")
	}
	signature[64] += 27

	return hexutil.Encode(signature), nil
}
