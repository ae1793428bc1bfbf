package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"video-accounts/pkg/auth"
	"video-accounts/pkg/service"
)

// isoMillis matches the timestamp layout clients already parse.
const isoMillis = "2006-01-02T15:04:05.000Z07:00"

type HealthChecker interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	accounts *service.Accounts
	watches  *service.Watches
	health   HealthChecker
	log      *logrus.Logger
}

func New(accounts *service.Accounts, watches *service.Watches, health HealthChecker, log *logrus.Logger) *Handler {
	return &Handler{accounts: accounts, watches: watches, health: health, log: log}
}

type Credentials struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type WatchRequest struct {
	VideoTitle   string `json:"video_title" binding:"required"`
	VideoURL     string `json:"video_url" binding:"required"`
	WatchSeconds *int64 `json:"watch_seconds" binding:"required"`
}

func (h *Handler) Register(c *gin.Context) {
	var creds Credentials
	if err := c.ShouldBindJSON(&creds); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Missing username or password"})
		return
	}

	user, err := h.accounts.Register(c.Request.Context(), creds.Username, creds.Password)
	if err != nil {
		h.fail(c, err, "Failed to create user")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":   "User created successfully",
		"id":        user.ID,
		"username":  user.Username,
		"expiresAt": user.ExpiryDate,
	})
}

func (h *Handler) Login(c *gin.Context) {
	var creds Credentials
	if err := c.ShouldBindJSON(&creds); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Missing username or password"})
		return
	}

	session, err := h.accounts.Login(c.Request.Context(), creds.Username, creds.Password)
	if err != nil {
		h.fail(c, err, "Login failed")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":   "Login successful",
		"token":     session.Token,
		"id":        session.UserID,
		"expiresAt": session.ExpiresAt,
	})
}

func (h *Handler) RenewExpiry(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 0)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid user ID"})
		return
	}

	var caller *auth.Identity
	if who, ok := auth.IdentityFrom(c); ok {
		caller = &who
	}

	next, err := h.accounts.RenewExpiry(c.Request.Context(), uint(id), caller)
	if err != nil {
		h.fail(c, err, "Failed to renew expiry date")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":       "Expiry date renewed for 3 more days",
		"id":            uint(id),
		"newExpiryDate": next.UTC().Format(isoMillis),
	})
}

func (h *Handler) LogWatch(c *gin.Context) {
	who, ok := auth.IdentityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Access token required"})
		return
	}

	var req WatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Missing video_title, video_url or watch_seconds"})
		return
	}

	entry, err := h.watches.Log(c.Request.Context(), who, service.WatchInput{
		VideoTitle:   req.VideoTitle,
		VideoURL:     req.VideoURL,
		WatchSeconds: req.WatchSeconds,
	})
	if err != nil {
		h.fail(c, err, "Failed to log video watch")
		return
	}

	c.JSON(http.StatusOK, entry)
}

func (h *Handler) ListWatches(c *gin.Context) {
	who, ok := auth.IdentityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Access token required"})
		return
	}

	logs, err := h.watches.List(c.Request.Context(), who)
	if err != nil {
		h.fail(c, err, "Failed to fetch watch history")
		return
	}
	c.JSON(http.StatusOK, gin.H{"watches": logs})
}

func (h *Handler) ExportWatches(c *gin.Context) {
	who, ok := auth.IdentityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Access token required"})
		return
	}

	location, err := h.watches.Export(c.Request.Context(), who)
	if err != nil {
		h.fail(c, err, "Failed to export watch history")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Watch history exported", "location": location})
}

func (h *Handler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := h.health.Ping(ctx); err != nil {
		h.log.WithError(err).Warn("health check failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// fail maps service outcomes onto status codes. Unexpected errors are logged
// in full and reported to the client only as fallback.
func (h *Handler) fail(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"message": validationMessage(err)})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"message": "User not found"})
	case errors.Is(err, service.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"message": "Username already exists"})
	case errors.Is(err, service.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Invalid password"})
	case errors.Is(err, service.ErrAccountExpired):
		c.JSON(http.StatusForbidden, gin.H{"message": "Account expired"})
	case errors.Is(err, service.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"message": "Not allowed to modify this account"})
	case errors.Is(err, service.ErrExportDisabled):
		c.JSON(http.StatusServiceUnavailable, gin.H{"message": "Watch history export is not available"})
	default:
		h.log.WithFields(logrus.Fields{
			"method":     c.Request.Method,
			"path":       c.FullPath(),
			"request_id": c.GetString(requestIDKey),
		}).WithError(err).Error(fallback)
		c.JSON(http.StatusInternalServerError, gin.H{"message": fallback})
	}
}

func validationMessage(err error) string {
	var ve *service.ValidationError
	if errors.As(err, &ve) {
		return ve.Reason
	}
	return "Invalid request"
}
