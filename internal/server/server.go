package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/schoolbilling/internal/authorization"
	"github.com/smallbiznis/schoolbilling/internal/billingcycle"
	billingcycledomain "github.com/smallbiznis/schoolbilling/internal/billingcycle/domain"
	"github.com/smallbiznis/schoolbilling/internal/config"
	"github.com/smallbiznis/schoolbilling/internal/customcharge"
	customchargedomain "github.com/smallbiznis/schoolbilling/internal/customcharge/domain"
	"github.com/smallbiznis/schoolbilling/internal/entitlement"
	entitlementdomain "github.com/smallbiznis/schoolbilling/internal/entitlement/domain"
	"github.com/smallbiznis/schoolbilling/internal/feature"
	featuredomain "github.com/smallbiznis/schoolbilling/internal/feature/domain"
	"github.com/smallbiznis/schoolbilling/internal/lock"
	"github.com/smallbiznis/schoolbilling/internal/notification"
	"github.com/smallbiznis/schoolbilling/internal/observability"
	obsmiddleware "github.com/smallbiznis/schoolbilling/internal/observability/logger"
	obstracing "github.com/smallbiznis/schoolbilling/internal/observability/tracing"
	"github.com/smallbiznis/schoolbilling/internal/payment"
	paymentdomain "github.com/smallbiznis/schoolbilling/internal/payment/domain"
	"github.com/smallbiznis/schoolbilling/internal/paymentprovider"
	paymentproviderdomain "github.com/smallbiznis/schoolbilling/internal/paymentprovider/domain"
	"github.com/smallbiznis/schoolbilling/internal/platformfee"
	processorstripe "github.com/smallbiznis/schoolbilling/internal/processor/stripe"
	"github.com/smallbiznis/schoolbilling/internal/school"
	schooldomain "github.com/smallbiznis/schoolbilling/internal/school/domain"
	"github.com/smallbiznis/schoolbilling/internal/subscription"
	subscriptiondomain "github.com/smallbiznis/schoolbilling/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	authorization.Module,
	processorstripe.Module,
	platformfee.Module,
	lock.Module,
	school.Module,
	feature.Module,
	entitlement.Module,
	notification.Module,
	payment.Module,
	customcharge.Module,
	subscription.Module,
	paymentprovider.Module,
	billingcycle.Module,
	fx.Provide(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config) *gin.Engine {
	return NewEngine(obsCfg)
}

func run(lc fx.Lifecycle, cfg config.Config, s *Server, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           s.Engine(),
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
	engine    *gin.Engine
	cfg       config.Config
	log       *zap.Logger
	jwtSecret []byte

	authzSvc           authorization.Service
	schoolSvc          schooldomain.Service
	featureSvc         featuredomain.Service
	entitlementSvc     entitlementdomain.Service
	paymentSvc         paymentdomain.Service
	webhookSvc         paymentdomain.WebhookService
	customChargeSvc    customchargedomain.Service
	subscriptionSvc    subscriptiondomain.Service
	paymentProviderSvc paymentproviderdomain.Service
	billingCycleSvc    billingcycledomain.Service
	fees               *platformfee.Calculator
}

type ServerParams struct {
	fx.In

	Gin                *gin.Engine
	Cfg                config.Config
	Log                *zap.Logger
	AuthzSvc           authorization.Service
	SchoolSvc          schooldomain.Service
	FeatureSvc         featuredomain.Service
	EntitlementSvc     entitlementdomain.Service
	PaymentSvc         paymentdomain.Service
	WebhookSvc         paymentdomain.WebhookService
	CustomChargeSvc    customchargedomain.Service
	SubscriptionSvc    subscriptiondomain.Service
	PaymentProviderSvc paymentproviderdomain.Service
	BillingCycleSvc    billingcycledomain.Service
	Fees               *platformfee.Calculator
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:             p.Gin,
		cfg:                p.Cfg,
		log:                p.Log.Named("http.server"),
		jwtSecret:          []byte(p.Cfg.AuthJWTSecret),
		authzSvc:           p.AuthzSvc,
		schoolSvc:          p.SchoolSvc,
		featureSvc:         p.FeatureSvc,
		entitlementSvc:     p.EntitlementSvc,
		paymentSvc:         p.PaymentSvc,
		webhookSvc:         p.WebhookSvc,
		customChargeSvc:    p.CustomChargeSvc,
		subscriptionSvc:    p.SubscriptionSvc,
		paymentProviderSvc: p.PaymentProviderSvc,
		billingCycleSvc:    p.BillingCycleSvc,
		fees:               p.Fees,
	}
	if len(svc.jwtSecret) == 0 {
		svc.log.Warn("AUTH_JWT_SECRET is empty, authenticated routes will reject every request")
	}

	svc.registerWebhookRoutes()
	svc.registerCronRoutes()
	svc.registerAdminRoutes()
	svc.registerSchoolRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerWebhookRoutes() {
	s.engine.POST("/webhooks/stripe", s.HandleStripeWebhook)
}

func (s *Server) registerCronRoutes() {
	cron := s.engine.Group("/api/cron", s.CronOrAdmin())

	cron.GET("/check-overdue", s.BillingSummary)
	cron.POST("/check-overdue", s.BillingSweep)
	cron.POST("/expire-feature-trials", s.ExpireFeatureTrials)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/api/admin", s.Authenticated())

	// -------- Feature catalog --------
	admin.GET("/features", s.authorizePlatformAction(authorization.ObjectFeature, authorization.ActionFeatureView), s.ListFeatureCatalog)
	admin.PUT("/features/catalog", s.authorizePlatformAction(authorization.ObjectFeature, authorization.ActionFeatureManage), s.UpsertFeatureCatalog)

	// -------- Entitlements --------
	admin.POST("/features/enable", s.authorizePlatformAction(authorization.ObjectFeature, authorization.ActionFeatureManage), s.EnableFeature)
	admin.POST("/features/disable", s.authorizePlatformAction(authorization.ObjectFeature, authorization.ActionFeatureManage), s.DisableFeature)
	admin.POST("/features/toggle", s.authorizePlatformAction(authorization.ObjectFeature, authorization.ActionFeatureManage), s.ToggleFeature)
	admin.PUT("/features/pricing", s.authorizePlatformAction(authorization.ObjectFeature, authorization.ActionFeatureManage), s.UpdateFeaturePricing)
	admin.POST("/features/mark-paid", s.authorizePlatformAction(authorization.ObjectPayment, authorization.ActionPaymentRecord), s.MarkFeaturePaid)

	// -------- Payments --------
	admin.POST("/payments", s.authorizePlatformAction(authorization.ObjectPayment, authorization.ActionPaymentRecord), s.RecordPayment)

	// -------- Schools --------
	admin.GET("/schools/:id/features", s.authorizeSchoolAction(authorization.ObjectFeature, authorization.ActionFeatureView), s.ListSchoolFeatures)
	admin.GET("/schools/:id/payments", s.authorizeSchoolAction(authorization.ObjectPayment, authorization.ActionPaymentView), s.ListSchoolPayments)
	admin.POST("/schools/:id/custom-charges", s.authorizeSchoolAction(authorization.ObjectCustomCharge, authorization.ActionCustomChargeCreate), s.CreateCustomCharge)
}

func (s *Server) registerSchoolRoutes() {
	schools := s.engine.Group("/api/schools/:id", s.Authenticated())

	// -------- Owner billing --------
	schools.POST("/billing/checkout", s.authorizeSchoolAction(authorization.ObjectBilling, authorization.ActionBillingManage), s.CreateSubscriptionCheckout)
	schools.POST("/billing/portal", s.authorizeSchoolAction(authorization.ObjectBilling, authorization.ActionBillingManage), s.CreateBillingPortal)
	schools.PUT("/billing/day", s.authorizeSchoolAction(authorization.ObjectBilling, authorization.ActionBillingManage), s.SetBillingDay)
	schools.POST("/billing/payment-method", s.authorizeSchoolAction(authorization.ObjectBilling, authorization.ActionBillingManage), s.SavePaymentMethod)
	schools.POST("/features/:code/checkout", s.authorizeSchoolAction(authorization.ObjectBilling, authorization.ActionBillingManage), s.CreateFeatureCheckout)
	schools.POST("/features/:code/charge", s.authorizeSchoolAction(authorization.ObjectBilling, authorization.ActionBillingManage), s.ChargeFeature)

	// -------- Connected account --------
	schools.POST("/connect/onboard", s.authorizeSchoolAction(authorization.ObjectConnect, authorization.ActionConnectManage), s.OnboardConnectedAccount)
	schools.GET("/connect/dashboard", s.authorizeSchoolAction(authorization.ObjectConnect, authorization.ActionConnectManage), s.ConnectedAccountDashboard)
	schools.GET("/connect/status", s.authorizeSchoolAction(authorization.ObjectConnect, authorization.ActionConnectView), s.ConnectedAccountStatus)

	// -------- Members --------
	schools.GET("/platform-fee", s.authorizeSchoolAction(authorization.ObjectPlatformFee, authorization.ActionPlatformFeeView), s.PreviewPlatformFee)
	schools.GET("/features/:code", s.authorizeSchoolAction(authorization.ObjectFeature, authorization.ActionFeatureCheck), s.CheckFeature)
	schools.GET("/families/:familyId/charges", s.authorizeSchoolAction(authorization.ObjectCustomCharge, authorization.ActionCustomChargePay), s.ListFamilyCharges)
	schools.POST("/families/:familyId/charges/:chargeId/checkout", s.authorizeSchoolAction(authorization.ObjectCustomCharge, authorization.ActionCustomChargePay), s.CheckoutCustomCharge)
}
