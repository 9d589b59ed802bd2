package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ListDevices returns approved devices.
func (h *Handler) ListDevices(c *gin.Context) {
	devices, err := h.store.ListDevices(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, devices)
}

// OfflineDevice asks the provider to withdraw a device.
func (h *Handler) OfflineDevice(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	d, err := h.service.OfflineDevice(c.Request.Context(), id, h.callbackURL(c, h.cfg.Callbacks.OfflinePath))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, d)
}
