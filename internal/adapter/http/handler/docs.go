package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Docs handles GET /docs: a static machine-readable description of the API
// surface, enough for a client to discover routes without external docs.
func Docs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":    "paylink-gateway",
		"version": "1.0",
		"auth": gin.H{
			"header": "x-api-key",
			"note":   "API keys are issued by POST /generate-api-key and shown exactly once",
		},
		"endpoints": []gin.H{
			{"method": "POST", "path": "/generate-api-key", "auth": false, "description": "Register a merchant and issue an API key + webhook secret"},
			{"method": "POST", "path": "/rotate-api-key", "auth": true, "description": "Replace the caller's API key and webhook secret"},
			{"method": "POST", "path": "/create-payment-link", "auth": true, "description": "Create a payment link"},
			{"method": "GET", "path": "/payment/:id", "auth": false, "description": "Public payment status for a link"},
			{"method": "POST", "path": "/verify-payment", "auth": false, "description": "Apply an on-chain payment proof to a pending link"},
			{"method": "GET", "path": "/payment-links", "auth": true, "description": "List the caller's payment links (status, limit, offset)"},
			{"method": "POST", "path": "/cancel/:id", "auth": true, "description": "Cancel a pending link owned by the caller"},
			{"method": "GET", "path": "/webhook-deliveries/dead", "auth": true, "description": "Dead-lettered webhook deliveries for the caller"},
			{"method": "GET", "path": "/health", "auth": false, "description": "Deep health check of postgres and redis"},
		},
		"webhooks": gin.H{
			"events":    []string{"payment.completed", "payment.expired", "payment.cancelled"},
			"signature": "X-PM-Signature: hex HMAC-SHA256 of the unsigned payload under the merchant webhook secret",
			"retries":   "15s, 1m, 2m, 5m, 10m, then dead-letter",
		},
	})
}
