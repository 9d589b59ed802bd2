package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"ipv6-provision-backend/internal/model"
	"ipv6-provision-backend/internal/provision"
)

// SubmitApproval records a device approval request.
func (h *Handler) SubmitApproval(c *gin.Context) {
	var req provision.ApprovalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	a, err := h.service.SubmitApproval(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, a)
}

// ListApprovals returns approval requests, optionally narrowed by ?status=.
func (h *Handler) ListApprovals(c *gin.Context) {
	var status *model.ApprovalStatus
	if raw := c.Query("status"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < int(model.ApprovalRejected) || n > int(model.ApprovalPending) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "status must be 0, 1 or 2"})
			return
		}
		s := model.ApprovalStatus(n)
		status = &s
	}

	approvals, err := h.store.ListApprovals(c.Request.Context(), status)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, approvals)
}

// Approve grants an approval and dispatches the generated address.
func (h *Handler) Approve(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	res, err := h.service.Approve(c.Request.Context(), id, h.callbackURL(c, h.cfg.Callbacks.BindingPath))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"approval": res.Approval,
		"binding":  newBindingView(res.Binding),
		"device":   res.Device,
	})
}

// Reject closes a pending approval.
func (h *Handler) Reject(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	a, err := h.service.Reject(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}
