package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	identitydomain "github.com/smallbiznis/zeltra/internal/identity/domain"
)

func (s *Server) GetProfile(c *gin.Context) {
	owner, err := s.identitySvc.Current(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"owner_id":     owner.ID,
		"display_name": owner.Profile.DisplayName(),
		"full_name":    owner.Profile.FullName,
		"username":     owner.Profile.Username,
		"email":        owner.Profile.Email,
	}})
}

func (s *Server) UpsertProfile(c *gin.Context) {
	var req identitydomain.UpsertProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	profile, err := s.identitySvc.UpsertProfile(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": profile})
}
