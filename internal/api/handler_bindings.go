package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"ipv6-provision-backend/internal/addr"
	"ipv6-provision-backend/internal/model"
	"ipv6-provision-backend/internal/store"
)

// bindingView adds the decoded failure message of bind_failed records.
type bindingView struct {
	model.AddressBinding
	ErrorMessage *string `json:"error_message,omitempty"`
}

func newBindingView(b *model.AddressBinding) bindingView {
	v := bindingView{AddressBinding: *b}
	if msg, ok := b.ErrorMessage(); ok {
		v.ErrorMessage = &msg
	}
	return v
}

// ListBindings returns bindings filtered by ?status= (repeatable or comma
// separated), ?owner= and ?mac=.
func (h *Handler) ListBindings(c *gin.Context) {
	var filter store.BindingFilter
	for _, raw := range c.QueryArray("status") {
		for _, s := range strings.Split(raw, ",") {
			if s = strings.TrimSpace(s); s != "" {
				filter.Statuses = append(filter.Statuses, model.BindingStatus(s))
			}
		}
	}
	filter.Owner = c.Query("owner")
	if mac := c.Query("mac"); mac != "" {
		normalized, err := addr.NormalizeMAC(mac)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		filter.MAC = normalized
	}

	bindings, err := h.store.ListBindings(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	views := make([]bindingView, len(bindings))
	for i := range bindings {
		views[i] = newBindingView(&bindings[i])
	}
	c.JSON(http.StatusOK, views)
}

// GetBinding returns one binding.
func (h *Handler) GetBinding(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	b, err := h.store.GetBinding(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newBindingView(b))
}

// SendBinding manually dispatches a binding to the provider.
func (h *Handler) SendBinding(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	b, err := h.service.SendBinding(c.Request.Context(), id, h.callbackURL(c, h.cfg.Callbacks.BindingPath))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, newBindingView(b))
}

// DeleteBinding removes a binding.
func (h *Handler) DeleteBinding(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := h.service.DeleteBinding(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type retryRequest struct {
	ClearFailed bool `json:"clear_failed"`
}

// RetryBindings runs the manual retry pass, or only clears the retry state of
// failed bindings when clear_failed is set.
func (h *Handler) RetryBindings(c *gin.Context) {
	var req retryRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	if req.ClearFailed {
		n, err := h.service.ClearFailed(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"cleared": n})
		return
	}

	summary, err := h.service.RetryFailed(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}
