package handlers

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"video-accounts/pkg/auth"
)

type RouterOptions struct {
	// ProtectRenewal puts the expiry renewal route behind the bearer check
	// and restricts it to the account owner.
	ProtectRenewal bool
}

func NewRouter(h *Handler, verifier auth.Verifier, log *logrus.Logger, opts RouterOptions) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(log), cors.Default())

	r.GET("/healthz", h.Health)

	requireToken := auth.RequireBearer(verifier)

	api := r.Group("/api")
	api.POST("/create-user", h.Register)
	api.POST("/login", h.Login)
	if opts.ProtectRenewal {
		api.PUT("/renew-expiry/:id", requireToken, h.RenewExpiry)
	} else {
		api.PUT("/renew-expiry/:id", h.RenewExpiry)
	}

	watches := api.Group("/video-watch", requireToken)
	watches.POST("", h.LogWatch)
	watches.GET("", h.ListWatches)
	watches.POST("/export", h.ExportWatches)

	return r
}
