/**
 * @description
 * This file sets up the HTTP server for the score oracle using the Gin
 * framework. It is responsible for initializing the router, setting up
 * middleware, and defining API routes.
 *
 * Key features:
 * - Gin Router: Utilizes Gin for high-performance HTTP routing.
 * - Middleware: CORS driven by the configured allowed origins, plus a global
 *   per-client-IP request ceiling in front of every route.
 * - Dependency Injection: The server holds explicitly constructed instances
 *   of the signer, nonce ledger and admission limiter; nothing is a
 *   module-level singleton, so tests can build isolated servers per case.
 */

package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/thisyearnofear/pinball/internal/config"
	"github.com/thisyearnofear/pinball/internal/crypto"
	"github.com/thisyearnofear/pinball/internal/nonce"
	"github.com/thisyearnofear/pinball/internal/ratelimit"
)

// Server serves HTTP requests for the score oracle.
type Server struct {
	config    config.Config
	logger    *slog.Logger
	signer    *crypto.Signer
	ledger    nonce.Ledger
	limiter   ratelimit.Limiter
	ipLimiter ratelimit.Limiter
	Router    *gin.Engine
}

/**
 * @description
 * NewServer creates a new HTTP server and sets up all routing.
 *
 * @param cfg The application configuration.
 * @param logger The structured logger shared across handlers.
 * @param signer The oracle's signing component.
 * @param ledger The nonce ledger (memory or Redis backed).
 * @param limiter The per-address admission limiter for the signing endpoint.
 * @param ipLimiter The global per-client-IP limiter applied to every route.
 * @returns A pointer to a new Server instance.
 */
func NewServer(
	cfg config.Config,
	logger *slog.Logger,
	signer *crypto.Signer,
	ledger nonce.Ledger,
	limiter ratelimit.Limiter,
	ipLimiter ratelimit.Limiter,
) *Server {
	server := &Server{
		config:    cfg,
		logger:    logger,
		signer:    signer,
		ledger:    ledger,
		limiter:   limiter,
		ipLimiter: ipLimiter,
	}

	router := gin.Default()
	router.Use(server.corsMiddleware())
	router.Use(server.globalRateLimitMiddleware())

	router.GET("/health", server.health)
	router.POST("/api/scores/sign", server.signScore)

	// Admin routes are operator-only. Access control is the surrounding
	// deployment's responsibility (network policy / reverse proxy), not this
	// subsystem's.
	admin := router.Group("/admin")
	{
		admin.GET("/rate-limit/:address", server.getRateLimitStatus)
		admin.POST("/rate-limit/:address/reset", server.resetRateLimit)
		admin.GET("/nonce/:tournamentId/:address", server.getNonce)
		admin.POST("/nonce/:tournamentId/:address/reset", server.resetPlayerNonce)
		admin.POST("/nonce/:tournamentId/:address/confirm", server.confirmNonce)
		admin.POST("/tournament/:tournamentId/reset", server.resetTournamentNonces)
		admin.GET("/stats", server.getStats)
	}

	server.Router = router
	return server
}

func (server *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// corsMiddleware allows requests from the configured origins. With
// AllowAllOrigins set, any origin is echoed back.
func (server *Server) corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		allowed := server.config.AllowAllOrigins
		if !allowed && origin != "" {
			for _, allowedOrigin := range server.config.AllowedOrigins {
				if origin == allowedOrigin {
					allowed = true
					break
				}
			}
		}

		if allowed && origin != "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// globalRateLimitMiddleware enforces the per-client-IP request ceiling. It is
// a coarse spam guard in front of the per-address admission limiter; it fails
// closed if the limiter backend is unavailable.
func (server *Server) globalRateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := server.ipLimiter.Allow(c.Request.Context(), c.ClientIP())
		if err != nil {
			server.logger.Error("global rate limiter unavailable", "error", err)
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "SERVICE_UNAVAILABLE"})
			return
		}
		if !result.Allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   "TOO_MANY_REQUESTS",
				"resetAt": result.ResetAt.UnixMilli(),
			})
			return
		}
		c.Next()
	}
}
