package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/beliefcore/core/internal/crypto"
	"github.com/beliefcore/core/internal/middleware"
	"github.com/beliefcore/core/internal/scheduler"
)

// operatorClaims is the JWT payload required of every bearer token
// presented to a mutating control-surface route.
type operatorClaims struct {
	jwt.RegisteredClaims
	OperatorIDHash string `json:"operator_id_hash"`
}

// registerControlRoutes wires the control surface named in §6: tick(),
// force_halt(reason), reset(), and a health probe. force_halt and reset
// are operator-gated behind a bearer HS256 JWT signed with jwtSecret that
// carries a non-empty operator_id_hash claim. hasher is not consulted.
func registerControlRoutes(router *gin.Engine, sched *scheduler.Scheduler, jwtSecret string, hasher *crypto.OperatorIdentityHasher) {
	router.GET("/health", middleware.HealthCheckTelemetryMiddleware(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.POST("/v1/tick", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
		defer cancel()
		sched.Tick(ctx)
		c.JSON(http.StatusOK, gin.H{"status": "ticked"})
	})

	operatorOnly := requireOperator(jwtSecret)

	router.POST("/v1/force_halt", operatorOnly, func(c *gin.Context) {
		var body struct {
			Reason string `json:"reason" binding:"required"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			middleware.RecordError(c, err, "force_halt body decode")
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		middleware.AddSpanAttribute(c, "halt_reason", body.Reason)
		sched.ForceHalt(c.Request.Context(), body.Reason)
		c.JSON(http.StatusOK, gin.H{"status": "halted", "reason": body.Reason})
	})

	router.POST("/v1/reset", operatorOnly, func(c *gin.Context) {
		var body struct {
			Reason string `json:"reason" binding:"required"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			middleware.RecordError(c, err, "reset body decode")
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		n := sched.Reset(body.Reason)
		c.JSON(http.StatusOK, gin.H{"status": "reset", "markets_reset": n})
	})
}

// requireOperator verifies a bearer JWT signed with jwtSecret carries a
// non-empty operator_id_hash claim. The claim is not checked against any
// stored operator identity.
func requireOperator(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		tokenString := strings.TrimPrefix(header, "Bearer ")

		claims := &operatorClaims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
			return []byte(jwtSecret), nil
		}, jwt.WithValidMethods([]string{"HS256"}))
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		if strings.TrimSpace(claims.OperatorIDHash) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token missing operator identity"})
			return
		}
		c.Set("operator_id_hash", claims.OperatorIDHash)
		c.Next()
	}
}
