package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/consigna/internal/authorization"
	ledgerdomain "github.com/smallbiznis/consigna/internal/ledger/domain"
	seqdomain "github.com/smallbiznis/consigna/internal/sequence/domain"
	"github.com/smallbiznis/consigna/pkg/db/pagination"
)

type createDocumentRequest struct {
	SiteCode   string           `json:"site_code"`
	ClientCode string           `json:"client_code"`
	Amount     *decimal.Decimal `json:"amount"`
	Pallets    *int             `json:"pallets"`
	Validated  bool             `json:"validated"`
	Notes      string           `json:"notes"`
}

type updateDocumentRequest struct {
	Amount           *decimal.Decimal               `json:"amount"`
	Pallets          *int                           `json:"pallets"`
	Notes            *string                        `json:"notes"`
	ValidationStatus *ledgerdomain.ValidationStatus `json:"validation_status"`
}

type listDocumentsQuery struct {
	PageToken   string `form:"page_token"`
	PageSize    int    `form:"page_size"`
	ClientCode  string `form:"client_code"`
	SiteCode    string `form:"site_code"`
	Status      string `form:"validation_status"`
	CreatedFrom string `form:"created_from"`
	CreatedTo   string `form:"created_to"`
}

func (s *Server) CreateDocument(kind seqdomain.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createDocumentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
		if err := checkCreateFields(kind, req); err != nil {
			AbortWithError(c, err)
			return
		}
		if req.Validated {
			if err := s.authorizeWithContext(c, authorization.ObjectLedger, authorization.ActionLedgerValidate); err != nil {
				AbortWithError(c, err)
				return
			}
		}

		tagSite(c, req.SiteCode)

		ctx := c.Request.Context()
		var (
			record ledgerdomain.Record
			err    error
		)
		switch kind {
		case seqdomain.KindCaution:
			record, err = s.ledgerSvc.CreateCaution(ctx, ledgerdomain.CreateCautionRequest{
				SiteCode:   req.SiteCode,
				ClientCode: req.ClientCode,
				Amount:     amountOrZero(req.Amount),
				Validated:  req.Validated,
				Notes:      req.Notes,
			})
		case seqdomain.KindRestitution:
			record, err = s.ledgerSvc.CreateRestitution(ctx, ledgerdomain.CreateRestitutionRequest{
				SiteCode:   req.SiteCode,
				ClientCode: req.ClientCode,
				Amount:     amountOrZero(req.Amount),
				Validated:  req.Validated,
				Notes:      req.Notes,
			})
		case seqdomain.KindConsignation:
			record, err = s.ledgerSvc.CreateConsignation(ctx, ledgerdomain.CreateConsignationRequest{
				SiteCode:   req.SiteCode,
				ClientCode: req.ClientCode,
				Pallets:    palletsOrZero(req.Pallets),
				Notes:      req.Notes,
			})
		case seqdomain.KindDeconsignation:
			record, err = s.ledgerSvc.CreateDeconsignation(ctx, ledgerdomain.CreateDeconsignationRequest{
				SiteCode:   req.SiteCode,
				ClientCode: req.ClientCode,
				Pallets:    palletsOrZero(req.Pallets),
				Notes:      req.Notes,
			})
		default:
			err = seqdomain.ErrInvalidKind
		}
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.JSON(http.StatusCreated, gin.H{"data": record})
	}
}

func (s *Server) ListDocuments(kind seqdomain.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		var query listDocumentsQuery
		if err := c.ShouldBindQuery(&query); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}

		status, err := parseOptionalStatus(query.Status)
		if err != nil {
			AbortWithError(c, newValidationError("validation_status", "invalid_validation_status", "invalid validation_status"))
			return
		}
		createdFrom, err := parseOptionalTime(query.CreatedFrom, false)
		if err != nil {
			AbortWithError(c, newValidationError("created_from", "invalid_created_from", "invalid created_from"))
			return
		}
		createdTo, err := parseOptionalTime(query.CreatedTo, true)
		if err != nil {
			AbortWithError(c, newValidationError("created_to", "invalid_created_to", "invalid created_to"))
			return
		}

		tagSite(c, query.SiteCode)
		resp, err := s.ledgerSvc.List(c.Request.Context(), kind, ledgerdomain.ListRequest{
			Pagination: pagination.Pagination{
				PageToken: strings.TrimSpace(query.PageToken),
				PageSize:  query.PageSize,
			},
			ClientCode:  strings.TrimSpace(query.ClientCode),
			SiteCode:    strings.TrimSpace(query.SiteCode),
			Status:      status,
			CreatedFrom: createdFrom,
			CreatedTo:   createdTo,
		})
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"data": resp.Records, "page_info": resp.PageInfo})
	}
}

func (s *Server) GetDocument(kind seqdomain.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		record, err := s.ledgerSvc.Get(c.Request.Context(), kind, strings.TrimSpace(c.Param("number")))
		if err != nil {
			AbortWithError(c, err)
			return
		}
		tagSite(c, record.Header().SiteCode)
		c.JSON(http.StatusOK, gin.H{"data": record})
	}
}

func (s *Server) UpdateDocument(kind seqdomain.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req updateDocumentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
		// a status change through PATCH needs the same right as the explicit transition
		if req.ValidationStatus != nil {
			action := authorization.ActionLedgerInvalidate
			if *req.ValidationStatus == ledgerdomain.StatusValidated {
				action = authorization.ActionLedgerValidate
			}
			if err := s.authorizeWithContext(c, authorization.ObjectLedger, action); err != nil {
				AbortWithError(c, err)
				return
			}
		}

		update := ledgerdomain.UpdateRequest{
			Amount:  req.Amount,
			Pallets: req.Pallets,
			Notes:   req.Notes,
			Status:  req.ValidationStatus,
		}
		ctx := c.Request.Context()
		number := strings.TrimSpace(c.Param("number"))

		var (
			record ledgerdomain.Record
			err    error
		)
		switch kind {
		case seqdomain.KindCaution:
			record, err = s.ledgerSvc.UpdateCaution(ctx, number, update)
		case seqdomain.KindConsignation:
			record, err = s.ledgerSvc.UpdateConsignation(ctx, number, update)
		case seqdomain.KindDeconsignation:
			record, err = s.ledgerSvc.UpdateDeconsignation(ctx, number, update)
		case seqdomain.KindRestitution:
			record, err = s.ledgerSvc.UpdateRestitution(ctx, number, update)
		default:
			err = seqdomain.ErrInvalidKind
		}
		if err != nil {
			AbortWithError(c, err)
			return
		}
		tagSite(c, record.Header().SiteCode)

		c.JSON(http.StatusOK, gin.H{"data": record})
	}
}

func (s *Server) ValidateDocument(kind seqdomain.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, _ := actorFromContext(c)
		record, err := s.ledgerSvc.Validate(c.Request.Context(), kind, strings.TrimSpace(c.Param("number")), actor.ID)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		tagSite(c, record.Header().SiteCode)
		c.JSON(http.StatusOK, gin.H{"data": record})
	}
}

func (s *Server) InvalidateDocument(kind seqdomain.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, _ := actorFromContext(c)
		record, err := s.ledgerSvc.Invalidate(c.Request.Context(), kind, strings.TrimSpace(c.Param("number")), actor.ID)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		tagSite(c, record.Header().SiteCode)
		c.JSON(http.StatusOK, gin.H{"data": record})
	}
}

func (s *Server) DocumentVoucher(kind seqdomain.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		number := strings.TrimSpace(c.Param("number"))
		pdf, err := s.documentSvc.RenderVoucherPDF(c.Request.Context(), kind, number)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", number+".pdf"))
		c.Data(http.StatusOK, "application/pdf", pdf)
	}
}

// checkCreateFields rejects fields the kind does not carry instead of dropping them.
// Pallet movements are always created NOT_VALIDATED.
func checkCreateFields(kind seqdomain.Kind, req createDocumentRequest) error {
	moneyKind := kind == seqdomain.KindCaution || kind == seqdomain.KindRestitution
	switch {
	case moneyKind && req.Pallets != nil:
		return fmt.Errorf("%w: pallets", ledgerdomain.ErrFieldNotApplicable)
	case !moneyKind && req.Amount != nil:
		return fmt.Errorf("%w: amount", ledgerdomain.ErrFieldNotApplicable)
	case !moneyKind && req.Validated:
		return fmt.Errorf("%w: validated", ledgerdomain.ErrFieldNotApplicable)
	}
	return nil
}

func amountOrZero(value *decimal.Decimal) decimal.Decimal {
	if value == nil {
		return decimal.Zero
	}
	return *value
}

func palletsOrZero(value *int) int {
	if value == nil {
		return 0
	}
	return *value
}
