/**
 * @description
 * This file contains the operator-facing admin handlers: rate-limit
 * inspection and reset, nonce inspection, the on-chain confirmation feedback
 * path, and the nonce resets used to recover from an on-chain desync.
 *
 * @notes
 * - These endpoints mutate or expose replay-protection state. They are meant
 *   to sit behind deployment-level access control; no authentication happens
 *   here.
 */

package api

import (
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

var adminAddressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// paramAddress validates and lowercases the :address path parameter. Writes
// the error response itself when invalid.
func paramAddress(c *gin.Context) (string, bool) {
	address := c.Param("address")
	if !adminAddressPattern.MatchString(address) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_ADDRESS"})
		return "", false
	}
	return strings.ToLower(address), true
}

// paramTournamentID validates the :tournamentId path parameter.
func paramTournamentID(c *gin.Context) (int64, bool) {
	tid, err := strconv.ParseInt(c.Param("tournamentId"), 10, 64)
	if err != nil || tid <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_TOURNAMENT_ID"})
		return 0, false
	}
	return tid, true
}

// getRateLimitStatus reports the current admission window for an address.
func (server *Server) getRateLimitStatus(c *gin.Context) {
	address, ok := paramAddress(c)
	if !ok {
		return
	}

	status, err := server.limiter.Status(c.Request.Context(), address)
	if err != nil {
		server.logger.Error("rate limit status failed", "error", err, "address", address)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "STATUS_UNAVAILABLE"})
		return
	}

	if status == nil {
		c.JSON(http.StatusOK, gin.H{"address": address, "status": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"address": address,
		"status": gin.H{
			"count":     status.Count,
			"remaining": status.Remaining,
			"resetAt":   status.ResetAt.UnixMilli(),
		},
	})
}

// resetRateLimit clears the admission window for an address.
func (server *Server) resetRateLimit(c *gin.Context) {
	address, ok := paramAddress(c)
	if !ok {
		return
	}

	if err := server.limiter.Reset(c.Request.Context(), address); err != nil {
		server.logger.Error("rate limit reset failed", "error", err, "address", address)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "RESET_FAILED"})
		return
	}

	server.logger.Info("rate limit reset", "event", "RATE_LIMIT_RESET", "address", address)
	c.JSON(http.StatusOK, gin.H{"ok": true, "message": "Rate limit reset for " + address})
}

// getNonce reports the confirmed and next nonce for a (tournament, player)
// key. Reads never perturb issuance state.
func (server *Server) getNonce(c *gin.Context) {
	tid, ok := paramTournamentID(c)
	if !ok {
		return
	}
	address, ok := paramAddress(c)
	if !ok {
		return
	}

	current, exists, err := server.ledger.CurrentNonce(c.Request.Context(), tid, address)
	if err != nil {
		server.logger.Error("nonce read failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "STATUS_UNAVAILABLE"})
		return
	}
	next, err := server.ledger.NextNonce(c.Request.Context(), tid, address)
	if err != nil {
		server.logger.Error("nonce read failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "STATUS_UNAVAILABLE"})
		return
	}

	var currentNonce any
	if exists {
		currentNonce = strconv.FormatUint(current, 10)
	}
	c.JSON(http.StatusOK, gin.H{
		"tournamentId": tid,
		"address":      address,
		"currentNonce": currentNonce,
		"nextNonce":    strconv.FormatUint(next, 10),
	})
}

// confirmNonceRequest is the body for the confirmation endpoint.
type confirmNonceRequest struct {
	Nonce uint64 `json:"nonce" binding:"required"`
}

// confirmNonce records a nonce as accepted on-chain, finalizing the
// provisional issuance so it can no longer be rolled back.
func (server *Server) confirmNonce(c *gin.Context) {
	tid, ok := paramTournamentID(c)
	if !ok {
		return
	}
	address, ok := paramAddress(c)
	if !ok {
		return
	}

	var req confirmNonceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_NONCE"})
		return
	}

	if err := server.ledger.Commit(c.Request.Context(), tid, address, req.Nonce); err != nil {
		server.logger.Error("nonce confirm failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "CONFIRM_FAILED"})
		return
	}

	server.logger.Info("nonce confirmed",
		"event", "NONCE_CONFIRMED",
		"tournamentId", tid,
		"address", address,
		"nonce", req.Nonce,
	)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// resetPlayerNonce deletes the nonce record for a single player key.
func (server *Server) resetPlayerNonce(c *gin.Context) {
	tid, ok := paramTournamentID(c)
	if !ok {
		return
	}
	address, ok := paramAddress(c)
	if !ok {
		return
	}

	if err := server.ledger.ResetPlayer(c.Request.Context(), tid, address); err != nil {
		server.logger.Error("nonce reset failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "RESET_FAILED"})
		return
	}

	server.logger.Info("nonce reset",
		"event", "NONCE_RESET",
		"tournamentId", tid,
		"address", address,
	)
	c.JSON(http.StatusOK, gin.H{
		"ok":      true,
		"message": "Nonce reset for player " + address + " in tournament " + strconv.FormatInt(tid, 10),
	})
}

// resetTournamentNonces deletes every nonce record in a tournament.
func (server *Server) resetTournamentNonces(c *gin.Context) {
	tid, ok := paramTournamentID(c)
	if !ok {
		return
	}

	if err := server.ledger.ResetTournament(c.Request.Context(), tid); err != nil {
		server.logger.Error("tournament nonce reset failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "RESET_FAILED"})
		return
	}

	server.logger.Info("tournament nonces reset",
		"event", "TOURNAMENT_NONCE_RESET",
		"tournamentId", tid,
	)
	c.JSON(http.StatusOK, gin.H{
		"ok":      true,
		"message": "All nonces reset for tournament " + strconv.FormatInt(tid, 10),
	})
}

// getStats reports ledger occupancy and, when available, limiter occupancy
// for monitoring.
func (server *Server) getStats(c *gin.Context) {
	ledgerStats, err := server.ledger.Stats(c.Request.Context())
	if err != nil {
		server.logger.Error("stats failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "STATUS_UNAVAILABLE"})
		return
	}

	response := gin.H{"nonces": ledgerStats}
	if mem, ok := server.limiter.(interface{ TrackedAddresses() int }); ok {
		response["rateLimiter"] = gin.H{"totalTrackedAddresses": mem.TrackedAddresses()}
	}
	c.JSON(http.StatusOK, response)
}
