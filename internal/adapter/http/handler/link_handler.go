package handler

import (
	"strconv"

	"paylink-gateway/internal/adapter/http/dto"
	"paylink-gateway/internal/adapter/http/middleware"
	"paylink-gateway/internal/core/domain"
	"paylink-gateway/internal/core/ports"
	"paylink-gateway/pkg/apperror"
	"paylink-gateway/pkg/response"

	"github.com/gin-gonic/gin"
)

// LinkHandler handles payment-link lifecycle endpoints.
type LinkHandler struct {
	linkSvc    ports.LinkService
	outboxRepo ports.WebhookOutboxRepository
}

// NewLinkHandler creates a new LinkHandler.
func NewLinkHandler(linkSvc ports.LinkService, outboxRepo ports.WebhookOutboxRepository) *LinkHandler {
	return &LinkHandler{linkSvc: linkSvc, outboxRepo: outboxRepo}
}

// Create handles POST /create-payment-link.
func (h *LinkHandler) Create(c *gin.Context) {
	merchantID, ok := middleware.MerchantID(c)
	if !ok {
		response.Error(c, apperror.ErrMissingAPIKey())
		return
	}

	var req dto.CreateLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	link, err := h.linkSvc.Create(c.Request.Context(), merchantID, ports.CreateLinkRequest{
		Amount:      req.Amount,
		Currency:    req.Currency,
		Description: req.Description,
		OrderID:     req.OrderID,
		ExpiresIn:   req.ExpiresIn,
		WebhookURL:  req.WebhookURL,
		RedirectURL: req.RedirectURL,
		Metadata:    req.Metadata,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.FromLink(link))
}

// GetStatus handles GET /payment/:id. Public: payers poll it, so it returns
// the payer-facing projection and performs the lazy expiry check.
func (h *LinkHandler) GetStatus(c *gin.Context) {
	link, err := h.linkSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.FromLinkPublic(link))
}

// List handles GET /payment-links.
func (h *LinkHandler) List(c *gin.Context) {
	merchantID, ok := middleware.MerchantID(c)
	if !ok {
		response.Error(c, apperror.ErrMissingAPIKey())
		return
	}

	params := ports.LinkListParams{MerchantID: merchantID}

	if s := c.Query("status"); s != "" {
		status := domain.LinkStatus(s)
		switch status {
		case domain.LinkStatusPending, domain.LinkStatusPaid, domain.LinkStatusExpired, domain.LinkStatusCancelled:
			params.Status = &status
		default:
			response.Error(c, apperror.Validation("unknown status filter"))
			return
		}
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			response.Error(c, apperror.Validation("limit must be an integer"))
			return
		}
		params.Limit = n
	}
	if v := c.Query("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			response.Error(c, apperror.Validation("offset must be an integer"))
			return
		}
		params.Offset = n
	}

	links, total, err := h.linkSvc.List(c.Request.Context(), params)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.PaymentLinkResponse, 0, len(links))
	for i := range links {
		items = append(items, dto.FromLink(&links[i]))
	}

	response.OK(c, dto.LinkListResponse{
		Items:  items,
		Total:  total,
		Limit:  params.Limit,
		Offset: params.Offset,
	})
}

// Cancel handles POST /cancel/:id.
func (h *LinkHandler) Cancel(c *gin.Context) {
	merchantID, ok := middleware.MerchantID(c)
	if !ok {
		response.Error(c, apperror.ErrMissingAPIKey())
		return
	}

	link, err := h.linkSvc.Cancel(c.Request.Context(), c.Param("id"), merchantID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.FromLink(link))
}

// Verify handles POST /verify-payment. Called by the trusted on-chain
// verifier after it observes the transaction.
func (h *LinkHandler) Verify(c *gin.Context) {
	var req dto.VerifyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	link, err := h.linkSvc.Verify(c.Request.Context(), ports.VerifyRequest{
		PaymentLinkID:   req.PaymentLinkID,
		TransactionHash: req.TransactionHash,
		PaidAmount:      req.PaidAmount,
		PaidCurrency:    req.PaidCurrency,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.FromLink(link))
}

// ListDeadDeliveries handles GET /webhook-deliveries/dead: the merchant's
// dead-lettered webhook deliveries, for manual inspection and replay.
func (h *LinkHandler) ListDeadDeliveries(c *gin.Context) {
	merchantID, ok := middleware.MerchantID(c)
	if !ok {
		response.Error(c, apperror.ErrMissingAPIKey())
		return
	}

	limit := 50
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			response.Error(c, apperror.Validation("limit must be a positive integer"))
			return
		}
		if n > 200 {
			n = 200
		}
		limit = n
	}

	deliveries, err := h.outboxRepo.ListDead(c.Request.Context(), merchantID, limit)
	if err != nil {
		response.Error(c, apperror.InternalError(err))
		return
	}

	items := make([]dto.DeadDeliveryResponse, 0, len(deliveries))
	for i := range deliveries {
		items = append(items, dto.FromDelivery(&deliveries[i]))
	}

	response.OK(c, items)
}
