package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	installmentdomain "github.com/campuskit/billing/internal/installment/domain"
)

type createInstallmentsRequest struct {
	Count        int        `json:"count"`
	FirstDueDate *time.Time `json:"first_due_date,omitempty"`
}

func (s *Server) CreateInstallments(c *gin.Context) {
	paymentID, ok := parseIDParam(c)
	if !ok {
		return
	}

	var req createInstallmentsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("body", "invalid_body", "invalid request body"))
		return
	}

	plan, err := s.installmentSvc.Create(c.Request.Context(), installmentdomain.CreateRequest{
		PaymentID:    paymentID,
		Count:        req.Count,
		FirstDueDate: req.FirstDueDate,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": plan})
}

func (s *Server) ListInstallments(c *gin.Context) {
	paymentID, ok := parseIDParam(c)
	if !ok {
		return
	}

	plan, err := s.installmentSvc.ListByPayment(c.Request.Context(), paymentID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": plan})
}

func (s *Server) PayInstallment(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	installment, err := s.installmentSvc.MarkPaid(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": installment})
}
