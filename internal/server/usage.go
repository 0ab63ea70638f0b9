package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	usagedomain "github.com/smallbiznis/zeltra/internal/usage/domain"
)

type recordUsageRequest struct {
	ServiceType   string          `json:"service_type"`
	UsageType     string          `json:"usage_type"`
	Quantity      decimal.Decimal `json:"quantity"`
	UnitCost      decimal.Decimal `json:"unit_cost"`
	ResourceID    *string         `json:"resource_id"`
	BillingPeriod string          `json:"billing_period"`
	Metadata      map[string]any  `json:"metadata"`
}

type trackInstanceRequest struct {
	InstanceID   string `json:"instance_id"`
	InstanceType string `json:"instance_type"`
}

func (s *Server) RecordUsage(c *gin.Context) {
	var req recordUsageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	p, err := parseOptionalPeriod(req.BillingPeriod)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	event, err := s.usagesvc.RecordUsage(c.Request.Context(), usagedomain.RecordUsageRequest{
		ServiceType:   req.ServiceType,
		UsageType:     req.UsageType,
		Quantity:      req.Quantity,
		UnitCost:      req.UnitCost,
		ResourceID:    req.ResourceID,
		BillingPeriod: p,
		Metadata:      req.Metadata,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": event})
}

func (s *Server) ListUsage(c *gin.Context) {
	p, err := parseOptionalPeriod(c.Query("period"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	events, err := s.usagesvc.ListUsage(c.Request.Context(), usagedomain.ListUsageRequest{
		BillingPeriod: p,
		ServiceType:   strings.TrimSpace(c.Query("service_type")),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if events == nil {
		events = []usagedomain.UsageEvent{}
	}

	c.JSON(http.StatusOK, gin.H{"data": events})
}

func (s *Server) TrackInstanceUsage(c *gin.Context) {
	var req trackInstanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	event, err := s.usagesvc.TrackInstanceUsage(c.Request.Context(), req.InstanceID, req.InstanceType)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": event})
}

func (s *Server) TrackStorageUsage(c *gin.Context) {
	var req usagedomain.TrackStorageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	events, err := s.usagesvc.TrackStorageUsage(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": events})
}

