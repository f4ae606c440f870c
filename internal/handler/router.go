package handler

import (
	"log/slog"
	"net/http"

	"carbonledger/internal/auth"
	"carbonledger/internal/config"
	"carbonledger/internal/logging"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// SetupRouter builds the gin engine. rdb may be nil.
func SetupRouter(db *gorm.DB, rdb *redis.Client, cfg *config.Config, logger *slog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	httpLogger := logging.Component(logger, "http")
	r.Use(RecoveryMiddleware(httpLogger))
	r.Use(LoggerMiddleware(httpLogger))
	r.Use(CORSMiddleware())

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, cfg.Auth.AccessTokenTTL())
	h := NewHandler(db, rdb, tokens, cfg, logger)

	api := r.Group("/api/v1")
	{
		user := api.Group("/user", APIKeyRequired(cfg.Auth.APIKey))
		{
			user.POST("", h.CreateUser)
			user.POST("/sign-in", h.SignIn)
		}

		authed := api.Group("", AuthRequired(tokens))

		wallet := authed.Group("/wallet")
		{
			wallet.GET("", h.GetWallet)
			wallet.GET("/transactions", h.ListTransactions)
			wallet.PUT("/topup/:wallet_id", h.Topup)
		}

		project := authed.Group("/project")
		{
			project.POST("", h.CreateProject)
			project.GET("", h.ListProjects)
			project.GET("/:id", h.GetProject)
			project.DELETE("/:id", h.DeactivateProject)
		}

		authed.POST("/transaction/purchase", h.Purchase)
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return r
}
