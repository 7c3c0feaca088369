package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/raffleworks/raffle-backend/internal/config"
	"github.com/raffleworks/raffle-backend/internal/handlers"
	"github.com/raffleworks/raffle-backend/internal/middleware"
)

// HandlerDependencies bundles the handlers the router wires up
type HandlerDependencies struct {
	AuthHandler  *handlers.AuthHandler
	RoundHandler *handlers.RoundHandler
}

// SetupRouter sets up the router
func SetupRouter(cfg *config.Config, deps HandlerDependencies) *gin.Engine {
	router := gin.Default()

	router.Use(middleware.CORSMiddleware(cfg))
	router.Use(middleware.RequestIDMiddleware())

	// Public routes
	public := router.Group("/api/v1")
	{
		public.GET("/health", func(c *gin.Context) {
			c.JSON(200, gin.H{
				"status": "ok",
			})
		})

		public.POST("/auth/login", deps.AuthHandler.Login)

		// Round lifecycle: anyone may enter, poll eligibility and
		// trigger settlement once eligible.
		public.POST("/entries", deps.RoundHandler.Enter)
		public.GET("/eligibility", deps.RoundHandler.CheckEligibility)
		public.POST("/settlements", deps.RoundHandler.RequestSettlement)
		public.GET("/round", deps.RoundHandler.GetRound)
	}

	// Randomness delivery: restricted to the configured oracle identity
	oracleCallback := router.Group("/api/v1")
	oracleCallback.Use(middleware.OracleAuthMiddleware(cfg))
	{
		oracleCallback.POST("/randomness", deps.RoundHandler.DeliverRandomness)
	}

	// Operator routes
	admin := router.Group("/api/v1/admin")
	admin.Use(middleware.JWTAuthMiddleware(cfg))
	{
		admin.POST("/rerequest", deps.RoundHandler.RerequestRandomness)
	}

	return router
}
