/**
 * @description
 * This file contains the HTTP handler for the score-signing endpoint — the
 * request orchestrator composing validation, admission control, nonce
 * issuance, digest construction and signing.
 *
 * Key features:
 * - Ordered Gates: validate → rate-limit → issue nonce → build digest → sign.
 *   Validation and admission failures short-circuit before any nonce state is
 *   touched, so rejected requests never advance a player's sequence.
 * - Atomic Issuance: The nonce is reserved with a single increment-and-store,
 *   so concurrent requests for the same player never share a nonce.
 * - No Key Leakage: Signing failures return a generic error; details stay in
 *   the error-level log.
 */

package api

import (
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"github.com/thisyearnofear/pinball/internal/crypto"
	"github.com/thisyearnofear/pinball/internal/validation"
)

// signScoreRequest defines the JSON body for `POST /api/scores/sign`.
// Bounds and format checks are the validator's job; binding only rejects
// structurally malformed bodies.
type signScoreRequest struct {
	TournamentID int64   `json:"tournamentId"`
	Address      string  `json:"address"`
	Score        float64 `json:"score"`
	Name         string  `json:"name"`
	Metadata     string  `json:"metadata"`
}

// signScoreResponse is the success payload. The nonce is a decimal string so
// clients never lose precision parsing it.
type signScoreResponse struct {
	Signature          string `json:"signature"`
	Nonce              string `json:"nonce"`
	RateLimitRemaining int    `json:"rateLimitRemaining"`
	RateLimitResetAt   int64  `json:"rateLimitResetAt"`
}

/**
 * @description
 * signScore is the Gin handler implementing the signing pipeline.
 *
 * @param c *gin.Context The Gin context for the request.
 *
 * @notes
 * - The response carries the issued nonce; the on-chain contract's acceptance
 *   of the submission is the true commit point. The ledger holds the nonce
 *   provisionally and rolls it back if it is never confirmed.
 */
func (server *Server) signScore(c *gin.Context) {
	// 1. Parse the incoming JSON body.
	var req signScoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		server.logger.Warn("invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "INVALID_BODY",
			"message": "Request body validation failed",
		})
		return
	}

	// 2. Validate and sanitize the claim. The sanitized address is lowercase;
	// every stateful component below keys on that form.
	sanitized, reason, ok := validation.ValidateScoreSubmission(validation.ScoreSubmission{
		TournamentID: req.TournamentID,
		Address:      req.Address,
		Score:        req.Score,
		Name:         req.Name,
		Metadata:     req.Metadata,
	})
	if !ok {
		server.logger.Warn("score validation failed",
			"event", "VALIDATION_FAILED",
			"address", req.Address,
			"score", req.Score,
			"reason", reason,
		)
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "VALIDATION_FAILED",
			"message": "Score submission validation failed: " + string(reason),
			"reason":  reason,
		})
		return
	}

	// 3. Per-address admission check. A rejection here consumes no quota and
	// touches no nonce state.
	rate, err := server.limiter.Allow(c.Request.Context(), sanitized.Address)
	if err != nil {
		server.logger.Error("admission limiter unavailable", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "SERVICE_UNAVAILABLE"})
		return
	}
	if !rate.Allowed {
		server.logger.Warn("rate limit exceeded",
			"event", "RATE_LIMIT_EXCEEDED",
			"address", sanitized.Address,
			"resetAt", rate.ResetAt,
		)
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":     "RATE_LIMIT_EXCEEDED",
			"message":   "Too many requests for this address. Try again after " + rate.ResetAt.UTC().Format(time.RFC3339),
			"remaining": rate.Remaining,
			"resetAt":   rate.ResetAt.UnixMilli(),
		})
		return
	}

	// 4. Atomically reserve the next nonce for this (tournament, player) key.
	issuedNonce, err := server.ledger.Issue(c.Request.Context(), sanitized.TournamentID, sanitized.Address)
	if err != nil {
		server.logger.Error("nonce issuance failed",
			"event", "SIGN_FAILED",
			"error", err,
			"address", sanitized.Address,
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "SIGN_FAIL",
			"message": "Failed to sign score. Please try again later.",
		})
		return
	}

	// 5. Build the V2 digest and sign it.
	canonicalMeta, err := validation.CanonicalMetadata(sanitized.Metadata)
	if err != nil {
		server.logger.Error("metadata serialization failed", "event", "SIGN_FAILED", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "SIGN_FAIL",
			"message": "Failed to sign score. Please try again later.",
		})
		return
	}

	digest, err := crypto.BuildDigest(crypto.V2, crypto.ScoreMessage{
		TournamentID: big.NewInt(sanitized.TournamentID),
		Player:       common.HexToAddress(sanitized.Address),
		Score:        big.NewInt(sanitized.Score),
		Nonce:        new(big.Int).SetUint64(issuedNonce),
		NameHash:     crypto.HashUTF8(sanitized.Name),
		MetaHash:     crypto.HashUTF8(canonicalMeta),
	})
	if err != nil {
		server.logger.Error("digest construction failed", "event", "SIGN_FAILED", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "SIGN_FAIL",
			"message": "Failed to sign score. Please try again later.",
		})
		return
	}

	signature, err := server.signer.SignDigest(digest)
	if err != nil {
		server.logger.Error("score signing failed",
			"event", "SIGN_FAILED",
			"error", err,
			"address", sanitized.Address,
			"score", sanitized.Score,
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "SIGN_FAIL",
			"message": "Failed to sign score. Please try again later.",
		})
		return
	}

	server.logger.Info("score signed",
		"event", "SCORE_SIGNED",
		"address", sanitized.Address,
		"score", sanitized.Score,
		"tournamentId", sanitized.TournamentID,
		"nonce", strconv.FormatUint(issuedNonce, 10),
		"rateLimitRemaining", rate.Remaining,
	)

	c.JSON(http.StatusOK, signScoreResponse{
		Signature:          signature,
		Nonce:              strconv.FormatUint(issuedNonce, 10),
		RateLimitRemaining: rate.Remaining,
		RateLimitResetAt:   rate.ResetAt.UnixMilli(),
	})
}
