package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ipv6-provision-backend/internal/provision"
)

// ListConfigs returns network configurations, newest first.
func (h *Handler) ListConfigs(c *gin.Context) {
	configs, err := h.store.ListConfigs(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, configs)
}

// CreateConfig stores a new network configuration.
func (h *Handler) CreateConfig(c *gin.Context) {
	var in provision.ConfigInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cfg, err := h.service.CreateConfig(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, cfg)
}

// UpdateConfig edits a network configuration.
func (h *Handler) UpdateConfig(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var in provision.ConfigInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cfg, err := h.service.UpdateConfig(c.Request.Context(), id, in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

// SendConfig dispatches a network configuration to the provider.
func (h *Handler) SendConfig(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	cfg, err := h.service.SendConfig(c.Request.Context(), id, h.callbackURL(c, h.cfg.Callbacks.ConfigPath))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, cfg)
}
