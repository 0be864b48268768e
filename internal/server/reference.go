package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	referencedomain "github.com/smallbiznis/consigna/internal/reference/domain"
)

type upsertSiteRequest struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

type upsertClientRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

func (s *Server) ListSites(c *gin.Context) {
	sites, err := s.referenceSvc.ListSites(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": sites})
}

func (s *Server) ListClients(c *gin.Context) {
	clients, err := s.referenceSvc.ListClients(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": clients})
}

func (s *Server) UpsertSite(c *gin.Context) {
	var req upsertSiteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	site, err := s.referenceSvc.UpsertSite(c.Request.Context(), referencedomain.Site{
		Code:    strings.TrimSpace(c.Param("code")),
		Name:    strings.TrimSpace(req.Name),
		Address: strings.TrimSpace(req.Address),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": site})
}

func (s *Server) UpsertClient(c *gin.Context) {
	var req upsertClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	client, err := s.referenceSvc.UpsertClient(c.Request.Context(), referencedomain.Client{
		Code:  strings.TrimSpace(c.Param("code")),
		Name:  strings.TrimSpace(req.Name),
		Email: strings.TrimSpace(req.Email),
		Phone: strings.TrimSpace(req.Phone),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": client})
}
