package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"

	"ipv6-provision-backend/config"
	"ipv6-provision-backend/internal/provision"
	"ipv6-provision-backend/internal/reconcile"
	"ipv6-provision-backend/internal/store"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store      store.Store
	service    *provision.Service
	reconciler *reconcile.Reconciler
	cfg        *config.Config
	webpush    *webpush.Options
}

// NewHandler creates a new API handler.
func NewHandler(cfg *config.Config, s store.Store, svc *provision.Service, rec *reconcile.Reconciler, webpushOptions *webpush.Options) *Handler {
	return &Handler{
		store:      s,
		service:    svc,
		reconciler: rec,
		cfg:        cfg,
		webpush:    webpushOptions,
	}
}

// callbackURL is the absolute URL the provider should call back on. Without a
// configured public base URL it is derived from the incoming request.
func (h *Handler) callbackURL(c *gin.Context, path string) string {
	if h.cfg.Server.PublicBaseURL != "" {
		return h.cfg.CallbackURL(path)
	}
	scheme := "http"
	if c.Request.TLS != nil || strings.EqualFold(c.GetHeader("X-Forwarded-Proto"), "https") {
		scheme = "https"
	}
	return scheme + "://" + c.Request.Host + path
}

func parseID(c *gin.Context) (int64, bool) {
	return parseIDFrom(c, 1)
}

// parseIDFrom reads the :id parameter, rejecting values below min.
func parseIDFrom(c *gin.Context, min int64) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < min {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

// respondError maps workflow errors to HTTP responses.
func respondError(c *gin.Context, err error) {
	_ = c.Error(err)

	var fe *provision.FieldError
	var de *provision.DispatchError
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.As(err, &fe):
		c.JSON(http.StatusBadRequest, gin.H{"error": fe.Message, "field": fe.Field})
	case errors.Is(err, provision.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, provision.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.As(err, &de):
		c.JSON(http.StatusBadGateway, gin.H{
			"error":       de.Result.ErrorText(),
			"status_code": de.Result.StatusCode,
			"response":    de.Result.Body,
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
