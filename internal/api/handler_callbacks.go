package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"ipv6-provision-backend/internal/reconcile"
)

// callbackPayload decodes a provider callback. Requests that cannot be
// reconciled, whether sent with another method or carrying an unreadable
// body, still get a 200 with a failure ack so the provider does not retry
// them.
func callbackPayload(c *gin.Context) (reconcile.Payload, bool) {
	if c.Request.Method != http.MethodPost {
		c.JSON(http.StatusOK, gin.H{"success": false, "message": reconcile.MsgPostOnly})
		return nil, false
	}
	body, err := c.GetRawData()
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusOK, gin.H{"success": false, "message": "无法读取回调数据", "error": err.Error()})
		return nil, false
	}
	p, err := reconcile.ParsePayload(c.GetHeader("Content-Type"), body)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusOK, gin.H{"success": false, "message": "回调数据格式错误", "error": err.Error()})
		return nil, false
	}
	return p, true
}

func callbackFailed(c *gin.Context, message string, err error) {
	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": message + ": " + err.Error()})
}

// BindingCallback receives the provider's address-binding result.
func (h *Handler) BindingCallback(c *gin.Context) {
	p, ok := callbackPayload(c)
	if !ok {
		return
	}
	ack, err := h.reconciler.Binding(c.Request.Context(), p)
	if err != nil {
		callbackFailed(c, ack.Message, err)
		return
	}
	c.JSON(http.StatusOK, ack)
}

// OfflineCallback receives the provider's device-offline result.
func (h *Handler) OfflineCallback(c *gin.Context) {
	p, ok := callbackPayload(c)
	if !ok {
		return
	}
	ack, err := h.reconciler.Offline(c.Request.Context(), p)
	if err != nil {
		callbackFailed(c, ack.Message, err)
		return
	}
	c.JSON(http.StatusOK, ack)
}

// ConfigCallback receives the provider's network-config result.
func (h *Handler) ConfigCallback(c *gin.Context) {
	p, ok := callbackPayload(c)
	if !ok {
		return
	}
	ack, err := h.reconciler.Config(c.Request.Context(), p)
	if err != nil {
		callbackFailed(c, ack.Message, err)
		return
	}
	c.JSON(http.StatusOK, ack)
}

// CallbackProbe lets operators check that the provider can reach us. GET
// describes the endpoint; POST echoes a JSON body back.
func (h *Handler) CallbackProbe(c *gin.Context) {
	now := time.Now().Format(time.RFC3339)
	if c.Request.Method == http.MethodGet {
		c.JSON(http.StatusOK, gin.H{
			"success":   true,
			"message":   "KEA回调测试端点正常",
			"url":       h.callbackURL(c, c.Request.URL.Path),
			"method":    http.MethodGet,
			"timestamp": now,
		})
		return
	}

	var received any = gin.H{"message": "POST请求收到", "timestamp": now}
	if c.ContentType() == "application/json" {
		if err := c.ShouldBindJSON(&received); err != nil {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "测试出错: " + err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"message":       "回调测试成功",
		"received_data": received,
		"timestamp":     now,
	})
}
