package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) GetBill(c *gin.Context) {
	paymentID, ok := parseIDParam(c)
	if !ok {
		return
	}

	bill, err := s.billSvc.GetByPayment(c.Request.Context(), paymentID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": bill})
}
