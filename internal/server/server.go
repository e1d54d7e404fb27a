package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/turioshq/gateway/internal/account"
	accountdomain "github.com/turioshq/gateway/internal/account/domain"
	"github.com/turioshq/gateway/internal/config"
	"github.com/turioshq/gateway/internal/contact"
	contactdomain "github.com/turioshq/gateway/internal/contact/domain"
	"github.com/turioshq/gateway/internal/forwarder"
	"github.com/turioshq/gateway/internal/inbound"
	"github.com/turioshq/gateway/internal/inbound/normalizer"
	"github.com/turioshq/gateway/internal/ledger"
	ledgerdomain "github.com/turioshq/gateway/internal/ledger/domain"
	"github.com/turioshq/gateway/internal/message"
	messagedomain "github.com/turioshq/gateway/internal/message/domain"
	"github.com/turioshq/gateway/internal/observability"
	obsmiddleware "github.com/turioshq/gateway/internal/observability/logger"
	obsmetrics "github.com/turioshq/gateway/internal/observability/metrics"
	obstracing "github.com/turioshq/gateway/internal/observability/tracing"
	"github.com/turioshq/gateway/internal/payment"
	"github.com/turioshq/gateway/internal/payment/checkout"
	paymentdomain "github.com/turioshq/gateway/internal/payment/domain"
	"github.com/turioshq/gateway/internal/pipeline"
	"github.com/turioshq/gateway/internal/ratelimit"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	config.Module,
	fx.Provide(registerGin),
	account.Module,
	contact.Module,
	message.Module,
	ledger.Module,
	inbound.Module,
	forwarder.Module,
	pipeline.Module,
	payment.Module,
	ratelimit.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
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

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
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
	engine         *gin.Engine
	cfg            config.Config
	db             *gorm.DB
	genID          *snowflake.Node
	accountSvc     accountdomain.Service
	contactSvc     contactdomain.Service
	messageSvc     messagedomain.Service
	ledgerSvc      ledgerdomain.Service
	pipelineSvc    *pipeline.Service
	normalizer     *normalizer.Normalizer
	paymentSvc     paymentdomain.Service
	checkoutSvc    *checkout.Service
	obsMetrics     *obsmetrics.Metrics
	webhookLimiter *ratelimit.WebhookIngestLimiter
}

type ServerParams struct {
	fx.In

	Gin            *gin.Engine
	Cfg            config.Config
	DB             *gorm.DB
	GenID          *snowflake.Node
	AccountSvc     accountdomain.Service
	ContactSvc     contactdomain.Service
	MessageSvc     messagedomain.Service
	LedgerSvc      ledgerdomain.Service
	PipelineSvc    *pipeline.Service
	Normalizer     *normalizer.Normalizer
	PaymentSvc     paymentdomain.Service
	CheckoutSvc    *checkout.Service
	ObsMetrics     *obsmetrics.Metrics             `optional:"true"`
	WebhookLimiter *ratelimit.WebhookIngestLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:         p.Gin,
		cfg:            p.Cfg,
		db:             p.DB,
		genID:          p.GenID,
		accountSvc:     p.AccountSvc,
		contactSvc:     p.ContactSvc,
		messageSvc:     p.MessageSvc,
		ledgerSvc:      p.LedgerSvc,
		pipelineSvc:    p.PipelineSvc,
		normalizer:     p.Normalizer,
		paymentSvc:     p.PaymentSvc,
		checkoutSvc:    p.CheckoutSvc,
		obsMetrics:     p.ObsMetrics,
		webhookLimiter: p.WebhookLimiter,
	}

	svc.registerWebhookRoutes()
	svc.registerBillingRoutes()
	svc.registerAccountRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerWebhookRoutes() {
	s.engine.GET("/webhook", s.VerifyWebhook)
	s.engine.POST("/webhook", s.IngestWebhook)
	s.engine.POST("/ia-response", s.HandleAgentResponse)
}

func (s *Server) registerBillingRoutes() {
	s.engine.POST("/create-checkout-session", s.CreateCheckoutSession)
	s.engine.POST("/payments/webhooks/:provider", s.HandlePaymentWebhook)
}

func (s *Server) registerAccountRoutes() {
	accounts := s.engine.Group("/accounts")

	accounts.POST("", s.CreateAccount)
	accounts.GET("/:id", s.GetAccountByID)
	accounts.POST("/bind", s.BindChannel)
}
