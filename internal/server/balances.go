package server

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	balancedomain "github.com/smallbiznis/consigna/internal/balance/domain"
	documentdomain "github.com/smallbiznis/consigna/internal/document/domain"
	ledgerdomain "github.com/smallbiznis/consigna/internal/ledger/domain"
	"github.com/smallbiznis/consigna/pkg/db/pagination"
	"go.uber.org/zap"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type listBalancesQuery struct {
	PageToken  string `form:"page_token"`
	PageSize   int    `form:"page_size"`
	ClientCode string `form:"client_code"`
	SiteCode   string `form:"site_code"`
}

type balanceResponse struct {
	ClientCode string `json:"client_code"`
	SiteCode   string `json:"site_code"`
	Balance    string `json:"balance"`
	Pallets    int    `json:"pallets"`
}

func (s *Server) ListBalances(c *gin.Context) {
	var query listBalancesQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	tagSite(c, query.SiteCode)
	resp, err := s.balanceSvc.List(c.Request.Context(), balancedomain.ListBalancesRequest{
		Pagination: pagination.Pagination{
			PageToken: strings.TrimSpace(query.PageToken),
			PageSize:  query.PageSize,
		},
		ClientCode: strings.TrimSpace(query.ClientCode),
		SiteCode:   strings.TrimSpace(query.SiteCode),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Balances, "page_info": resp.PageInfo})
}

func (s *Server) GetBalance(c *gin.Context) {
	client := strings.TrimSpace(c.Param("client"))
	site := strings.TrimSpace(c.Param("site"))
	tagSite(c, site)

	value, err := s.balanceSvc.GetBalance(c.Request.Context(), client, site)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": balanceResponse{
		ClientCode: client,
		SiteCode:   site,
		Balance:    value.StringFixed(2),
		Pallets:    ledgerdomain.PalletsForAmount(value),
	}})
}

func (s *Server) RecalculateBalance(c *gin.Context) {
	client := strings.TrimSpace(c.Param("client"))
	site := strings.TrimSpace(c.Param("site"))
	tagSite(c, site)
	ctx := balancedomain.WithTrigger(c.Request.Context(), balancedomain.TriggerManual)

	value, err := s.balanceSvc.Recalculate(ctx, client, site)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	targetID := client + "/" + site
	if err := s.auditSvc.AuditLog(ctx, "", nil, "balance.recalculate", "balance", &targetID, map[string]any{
		"client_code": client,
		"site_code":   site,
		"balance":     value.StringFixed(2),
	}); err != nil {
		s.log.Warn("failed to audit balance recalculation", zap.Error(err))
	}

	c.JSON(http.StatusOK, gin.H{"data": balanceResponse{
		ClientCode: client,
		SiteCode:   site,
		Balance:    value.StringFixed(2),
		Pallets:    ledgerdomain.PalletsForAmount(value),
	}})
}

func (s *Server) ExportBalances(c *gin.Context) {
	tagSite(c, c.Query("site_code"))
	out, err := s.documentSvc.ExportBalancesXLSX(c.Request.Context(), documentdomain.BalanceExportFilter{
		ClientCode: strings.TrimSpace(c.Query("client_code")),
		SiteCode:   strings.TrimSpace(c.Query("site_code")),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	filename := fmt.Sprintf("balances-%s.xlsx", time.Now().UTC().Format("20060102"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, xlsxContentType, out)
}
