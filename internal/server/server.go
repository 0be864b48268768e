package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/consigna/internal/audit"
	auditdomain "github.com/smallbiznis/consigna/internal/audit/domain"
	"github.com/smallbiznis/consigna/internal/authorization"
	"github.com/smallbiznis/consigna/internal/balance"
	balancedomain "github.com/smallbiznis/consigna/internal/balance/domain"
	"github.com/smallbiznis/consigna/internal/config"
	"github.com/smallbiznis/consigna/internal/document"
	documentdomain "github.com/smallbiznis/consigna/internal/document/domain"
	"github.com/smallbiznis/consigna/internal/ledger"
	ledgerdomain "github.com/smallbiznis/consigna/internal/ledger/domain"
	"github.com/smallbiznis/consigna/internal/observability"
	obsmiddleware "github.com/smallbiznis/consigna/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/consigna/internal/observability/metrics"
	obstracing "github.com/smallbiznis/consigna/internal/observability/tracing"
	"github.com/smallbiznis/consigna/internal/reconcile"
	"github.com/smallbiznis/consigna/internal/reference"
	referencedomain "github.com/smallbiznis/consigna/internal/reference/domain"
	seqdomain "github.com/smallbiznis/consigna/internal/sequence/domain"
	"github.com/smallbiznis/consigna/internal/validation"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	authorization.Module,
	audit.Module,
	reference.Module,
	balance.Module,
	validation.Module,
	ledger.Module,
	document.Module,
	reconcile.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine       *gin.Engine
	cfg          config.Config
	log          *zap.Logger
	authzSvc     authorization.Service
	auditSvc     auditdomain.Service
	ledgerSvc    ledgerdomain.Service
	balanceSvc   balancedomain.Service
	documentSvc  documentdomain.Service
	referenceSvc referencedomain.Service
	reconciler   *reconcile.Reconciler
}

type ServerParams struct {
	fx.In

	Gin          *gin.Engine
	Cfg          config.Config
	Log          *zap.Logger
	AuthzSvc     authorization.Service
	AuditSvc     auditdomain.Service
	LedgerSvc    ledgerdomain.Service
	BalanceSvc   balancedomain.Service
	DocumentSvc  documentdomain.Service
	ReferenceSvc referencedomain.Service
	Reconciler   *reconcile.Reconciler `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:       p.Gin,
		cfg:          p.Cfg,
		log:          p.Log.Named("http.server"),
		authzSvc:     p.AuthzSvc,
		auditSvc:     p.AuditSvc,
		ledgerSvc:    p.LedgerSvc,
		balanceSvc:   p.BalanceSvc,
		documentSvc:  p.DocumentSvc,
		referenceSvc: p.ReferenceSvc,
		reconciler:   p.Reconciler,
	}

	svc.registerAPIRoutes()
	svc.registerAdminRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/v1", ActorContext())

	for _, kind := range seqdomain.Kinds() {
		docs := api.Group("/" + kind.Table())
		docs.POST("", s.authorize(authorization.ObjectLedger, authorization.ActionLedgerCreate), s.CreateDocument(kind))
		docs.GET("", s.authorize(authorization.ObjectLedger, authorization.ActionLedgerView), s.ListDocuments(kind))
		docs.GET("/:number", s.authorize(authorization.ObjectLedger, authorization.ActionLedgerView), s.GetDocument(kind))
		docs.PATCH("/:number", s.authorize(authorization.ObjectLedger, authorization.ActionLedgerUpdate), s.UpdateDocument(kind))
		docs.POST("/:number/validate", s.authorize(authorization.ObjectLedger, authorization.ActionLedgerValidate), s.ValidateDocument(kind))
		docs.POST("/:number/invalidate", s.authorize(authorization.ObjectLedger, authorization.ActionLedgerInvalidate), s.InvalidateDocument(kind))
		docs.GET("/:number/voucher.pdf", s.authorize(authorization.ObjectLedger, authorization.ActionLedgerView), s.DocumentVoucher(kind))
	}

	api.GET("/balances", s.authorize(authorization.ObjectBalance, authorization.ActionBalanceView), s.ListBalances)
	api.GET("/balances/export.xlsx", s.authorize(authorization.ObjectBalance, authorization.ActionBalanceExport), s.ExportBalances)
	api.GET("/balances/:client/:site", s.authorize(authorization.ObjectBalance, authorization.ActionBalanceView), s.GetBalance)
	api.POST("/balances/:client/:site/recalculate", s.authorize(authorization.ObjectBalance, authorization.ActionBalanceRecalculate), s.RecalculateBalance)

	api.GET("/audit-logs", s.authorize(authorization.ObjectAuditLog, authorization.ActionAuditLogView), s.ListAuditLogs)

	api.GET("/sites", s.authorize(authorization.ObjectReference, authorization.ActionReferenceView), s.ListSites)
	api.PUT("/sites/:code", s.authorize(authorization.ObjectReference, authorization.ActionReferenceManage), s.UpsertSite)
	api.GET("/clients", s.authorize(authorization.ObjectReference, authorization.ActionReferenceView), s.ListClients)
	api.PUT("/clients/:code", s.authorize(authorization.ObjectReference, authorization.ActionReferenceManage), s.UpsertClient)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/v1/admin", ActorContext())
	admin.POST("/reconcile", s.authorize(authorization.ObjectReconcile, authorization.ActionReconcileRun), s.RunReconcile)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
