package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	refunddomain "github.com/campuskit/billing/internal/refund/domain"
)

type createRefundRequest struct {
	Amount int64  `json:"amount"`
	Reason string `json:"reason,omitempty"`
}

func (s *Server) CreateRefund(c *gin.Context) {
	paymentID, ok := parseIDParam(c)
	if !ok {
		return
	}

	var req createRefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("body", "invalid_body", "invalid request body"))
		return
	}

	refund, err := s.refundSvc.Create(c.Request.Context(), refunddomain.CreateRequest{
		PaymentID: paymentID,
		Amount:    req.Amount,
		Reason:    req.Reason,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": refund})
}

func (s *Server) ListRefunds(c *gin.Context) {
	paymentID, ok := parseIDParam(c)
	if !ok {
		return
	}

	refunds, err := s.refundSvc.ListByPayment(c.Request.Context(), paymentID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": refunds})
}

func (s *Server) ApproveRefund(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	refund, err := s.refundSvc.Approve(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": refund})
}

func (s *Server) CancelRefund(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	refund, err := s.refundSvc.Cancel(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": refund})
}
