package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"ipv6-provision-backend/internal/model"
)

// ListDepartments returns every department.
func (h *Handler) ListDepartments(c *gin.Context) {
	departments, err := h.store.ListDepartments(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, departments)
}

type putDepartmentRequest struct {
	Title string `json:"title" binding:"required"`
}

// maxDepartmentID is the largest department number the address layout holds.
const maxDepartmentID = 15

// PutDepartment creates or renames a department.
func (h *Handler) PutDepartment(c *gin.Context) {
	id, ok := parseIDFrom(c, 0)
	if !ok {
		return
	}
	if id > maxDepartmentID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "department id must be between 0 and 15"})
		return
	}
	var req putDepartmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	d := &model.Department{ID: id, Title: strings.TrimSpace(req.Title)}
	if err := h.store.UpsertDepartment(c.Request.Context(), d); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}
