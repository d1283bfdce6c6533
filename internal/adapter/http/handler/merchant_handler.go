package handler

import (
	"net/http"

	"paylink-gateway/internal/adapter/http/dto"
	"paylink-gateway/internal/adapter/http/middleware"
	"paylink-gateway/internal/core/ports"
	"paylink-gateway/pkg/apperror"
	"paylink-gateway/pkg/response"

	"github.com/gin-gonic/gin"
)

// MerchantHandler handles API-key issuance and rotation.
type MerchantHandler struct {
	merchantSvc ports.MerchantService
}

// NewMerchantHandler creates a new MerchantHandler.
func NewMerchantHandler(merchantSvc ports.MerchantService) *MerchantHandler {
	return &MerchantHandler{merchantSvc: merchantSvc}
}

// GenerateKey handles POST /generate-api-key. The returned key and webhook
// secret are shown exactly once.
func (h *MerchantHandler) GenerateKey(c *gin.Context) {
	var req dto.GenerateKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	issued, err := h.merchantSvc.IssueKey(c.Request.Context(), req.WalletAddress, req.MerchantName)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.GenerateKeyResponse{
		MerchantID:    issued.MerchantID.String(),
		APIKey:        issued.APIKey,
		WebhookSecret: issued.WebhookSecret,
		Warning:       dto.KeyDisclosureWarning,
	})
}

// RotateKey handles POST /rotate-api-key. The previous key stops working
// immediately.
func (h *MerchantHandler) RotateKey(c *gin.Context) {
	merchantID, ok := middleware.MerchantID(c)
	if !ok {
		response.Error(c, apperror.ErrMissingAPIKey())
		return
	}

	issued, err := h.merchantSvc.RotateKey(c.Request.Context(), merchantID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.GenerateKeyResponse{
		MerchantID:    issued.MerchantID.String(),
		APIKey:        issued.APIKey,
		WebhookSecret: issued.WebhookSecret,
		Warning:       dto.KeyDisclosureWarning,
	})
}

// HealthCheck handles GET /health — deep health check verifying all dependencies.
func HealthCheck(checkers ...ports.HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		type depStatus struct {
			Status string `json:"status"`
			Error  string `json:"error,omitempty"`
		}

		deps := make(map[string]depStatus)
		allHealthy := true

		for _, checker := range checkers {
			if err := checker.Ping(c.Request.Context()); err != nil {
				deps[checker.Name()] = depStatus{Status: "unhealthy", Error: err.Error()}
				allHealthy = false
			} else {
				deps[checker.Name()] = depStatus{Status: "healthy"}
			}
		}

		status := "healthy"
		httpCode := http.StatusOK
		if !allHealthy {
			status = "degraded"
			httpCode = http.StatusServiceUnavailable
		}

		c.JSON(httpCode, gin.H{
			"status":       status,
			"dependencies": deps,
		})
	}
}
