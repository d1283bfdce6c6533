package middleware

import (
	"errors"
	"net/http"
	"time"

	"paylink-gateway/internal/core/domain"
	"paylink-gateway/internal/core/ports"
	"paylink-gateway/pkg/apperror"
	"paylink-gateway/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	// HeaderAPIKey carries the merchant API key on protected routes.
	HeaderAPIKey = "x-api-key"

	// Context keys
	CtxRequestID   = "request_id"
	CtxMerchantID  = "merchant_id"
	CtxMerchantKey = "merchant"
)

// RequestID assigns each request an id used in logs and response envelopes.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		c.Set(CtxRequestID, id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

// APIKeyAuth authenticates the x-api-key header against the merchant
// registry. A missing key and an unknown key produce distinct error kinds.
func APIKeyAuth(merchants ports.MerchantService, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := c.GetHeader(HeaderAPIKey)

		merchant, err := merchants.Authenticate(c.Request.Context(), apiKey)
		if err != nil {
			var appErr *apperror.AppError
			if !errors.As(err, &appErr) || appErr.Kind == apperror.KindInternal {
				log.Error().Err(err).Msg("merchant authentication failed")
			}
			response.Error(c, err)
			c.Abort()
			return
		}

		c.Set(CtxMerchantID, merchant.ID)
		c.Set(CtxMerchantKey, merchant)
		c.Next()
	}
}

// MerchantID returns the authenticated merchant's id from the context.
// Second return is false on unauthenticated routes.
func MerchantID(c *gin.Context) (uuid.UUID, bool) {
	v, exists := c.Get(CtxMerchantID)
	if !exists {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}

// Merchant returns the authenticated merchant from the context.
func Merchant(c *gin.Context) (*domain.Merchant, bool) {
	v, exists := c.Get(CtxMerchantKey)
	if !exists {
		return nil, false
	}
	m, ok := v.(*domain.Merchant)
	return m, ok
}

// RequestLogger creates a middleware that logs every HTTP request.
func RequestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		status := c.Writer.Status()

		event := log.Info()
		if status >= http.StatusInternalServerError {
			event = log.Error()
		} else if status >= http.StatusBadRequest {
			event = log.Warn()
		}

		event.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", latency).
			Str("client_ip", c.ClientIP()).
			Str("request_id", c.GetString(CtxRequestID)).
			Msg("http request")
	}
}

// Recovery creates a panic recovery middleware.
func Recovery(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Str("path", c.Request.URL.Path).Msg("panic recovered")
				response.Error(c, apperror.InternalError(nil))
				c.Abort()
			}
		}()
		c.Next()
	}
}

// MaxBodySize rejects request bodies larger than limit bytes.
func MaxBodySize(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		c.Next()
	}
}
