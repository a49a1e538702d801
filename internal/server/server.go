package server

import (
	"context"
	"net/http"
	"time"

	"gymcore/internal/auth"
	"gymcore/internal/checkin"
	"gymcore/internal/pricing"
	"gymcore/internal/reconcile"
	"gymcore/internal/subscription"
	"gymcore/internal/user"

	"github.com/gin-gonic/gin"
)

// Handlers bundles the HTTP surface of every module.
type Handlers struct {
	Users         *user.Handler
	Pricing       *pricing.Handler
	Subscriptions *subscription.Handler
	CheckIn       *checkin.Handler
	Payments      *reconcile.Handler
	Health        *HealthChecker
}

// Limits are the per-client rate limiters of the public routes.
type Limits struct {
	CheckIn *RateLimiter
	Auth    *RateLimiter
}

type Server struct {
	router *gin.Engine
	http   *http.Server
}

func New(jwtSecret string, limits Limits, h Handlers) *Server {
	router := gin.New()
	router.Use(
		gin.Recovery(),
		RequestIDMiddleware(),
		RequestLoggingMiddleware(),
		MetricsMiddleware(),
		corsMiddleware(),
	)

	router.GET("/health", h.Health.Handle)
	router.GET("/metrics", Metrics())

	public := router.Group("/auth")
	public.Use(limits.Auth.Middleware())
	{
		public.POST("/register", h.Users.Register)
		public.POST("/login", h.Users.Login)
		public.POST("/refresh", h.Users.RefreshToken)
	}

	router.GET("/packages", h.Pricing.ListPackages)
	router.GET("/packages/:id/quote", h.Pricing.Quote)
	router.GET("/packages/:id/time-slots", h.Subscriptions.AvailableTimeSlots)

	router.POST("/checkin", limits.CheckIn.Middleware(), h.CheckIn.CheckIn)

	// Gateway callbacks are authenticated by their signature.
	router.GET("/payments/vnpay/ipn", h.Payments.IPN)
	router.GET("/payments/vnpay/return", h.Payments.Return)

	authMiddleware := auth.AuthMiddleware(jwtSecret)
	protected := router.Group("/")
	protected.Use(authMiddleware)
	{
		protected.GET("/me", h.Users.GetMe)

		protected.GET("/subscriptions/:id", h.Subscriptions.Get)
		protected.GET("/subscriptions/:id/upgrade-quote", h.Subscriptions.QuoteUpgrade)
		protected.GET("/members/:memberID/subscriptions", h.Subscriptions.ListByMember)

		protected.POST("/subscriptions/:id/checkin", h.CheckIn.CheckInSubscription)
		protected.POST("/subscriptions/:id/checkout", h.CheckIn.Checkout)
		protected.GET("/attendance", h.CheckIn.History)

		protected.POST("/payments/vnpay/subscriptions", h.Payments.BeginSubscription)
		protected.POST("/payments/vnpay/renewals", h.Payments.BeginRenewal)
		protected.POST("/payments/vnpay/upgrades", h.Payments.BeginUpgrade)
	}

	staff := router.Group("/")
	staff.Use(authMiddleware, auth.RequireRole(auth.RoleAdmin, auth.RoleStaff))
	{
		staff.POST("/subscriptions", h.Subscriptions.Create)
		staff.POST("/subscriptions/renew", h.Subscriptions.Renew)
		staff.POST("/subscriptions/:id/freeze", h.Subscriptions.Freeze)
		staff.POST("/subscriptions/:id/unfreeze", h.Subscriptions.Unfreeze)
		staff.POST("/subscriptions/:id/cancel", h.Subscriptions.Cancel)
		staff.POST("/subscriptions/:id/refund", h.Subscriptions.Refund)
		staff.POST("/subscriptions/:id/upgrade", h.Subscriptions.Upgrade)
		staff.POST("/subscriptions/:id/transfer", h.Subscriptions.Transfer)

		staff.POST("/payments/vnpay/sales/:id", h.Payments.BeginSale)
	}

	admin := router.Group("/admin")
	admin.Use(authMiddleware, auth.RequireRole(auth.RoleAdmin))
	{
		admin.POST("/accounts", h.Users.CreateAccount)
	}

	return &Server{router: router}
}

func (s *Server) Start(port string) error {
	s.http = &http.Server{
		Addr:              ":" + port,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s.http.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, X-Request-ID, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
