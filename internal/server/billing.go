package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	billingdomain "github.com/smallbiznis/zeltra/internal/billing/domain"
	"github.com/smallbiznis/zeltra/pkg/apperror"
)

type transitionRequest struct {
	Status string `json:"status"`
}

func (s *Server) GenerateBilling(c *gin.Context) {
	p, err := parsePeriod(c.Param("period"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	summary, err := s.billingSvc.GenerateBilling(c.Request.Context(), p)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": summary})
}

func (s *Server) ListSummaries(c *gin.Context) {
	year, err := parseOptionalInt(c.Query("year"))
	if err != nil {
		AbortWithError(c, apperror.Validation(billingdomain.ErrInvalidYear))
		return
	}

	var items []billingdomain.BillingSummary
	if year != nil {
		items, err = s.billingSvc.ListSummariesByYear(c.Request.Context(), *year)
	} else {
		items, err = s.billingSvc.ListSummaries(c.Request.Context())
	}
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if items == nil {
		items = []billingdomain.BillingSummary{}
	}

	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) GetSummary(c *gin.Context) {
	p, err := parsePeriod(c.Param("period"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	summary, err := s.billingSvc.GetSummary(c.Request.Context(), p)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": summary})
}

func (s *Server) TransitionSummary(c *gin.Context) {
	p, err := parsePeriod(c.Param("period"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	summary, err := s.billingSvc.Transition(c.Request.Context(), p, billingdomain.SummaryStatus(req.Status))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": summary})
}

func (s *Server) GetCostBreakdown(c *gin.Context) {
	p, err := parsePeriod(c.Param("period"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	breakdown, err := s.billingSvc.CostBreakdown(c.Request.Context(), p)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": breakdown})
}

func (s *Server) GetBudgetStatus(c *gin.Context) {
	p, err := parsePeriod(c.Param("period"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	status, err := s.billingSvc.BudgetStatus(c.Request.Context(), p)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": status})
}
