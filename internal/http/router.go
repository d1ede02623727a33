package http

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"storefront/internal/domain"
	"storefront/internal/service"
)

// NewRouter configura el router de Gin con middlewares y rutas.
func NewRouter(
	logger *zap.Logger,
	sessionSvc *service.SessionService,
	authH *AuthHandler,
	catalogH *CatalogHandler,
	orderH *OrderHandler,
	adminH *AdminHandler,
) *gin.Engine {
	r := gin.New()

	// Middlewares basicos: logging, recovery y JSON content-type.
	r.Use(zapLoggerMiddleware(logger), gin.Recovery(), jsonContentTypeMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	auth := r.Group("/auth")
	auth.POST("/register", authH.Register)
	auth.POST("/otp/request", authH.RequestOTP)
	auth.POST("/otp/verify", authH.VerifyOTP)
	auth.POST("/otp/login", authH.OTPLogin)
	auth.POST("/login", authH.Login)
	auth.POST("/oauth", authH.OAuthLogin)
	auth.POST("/password/forgot", authH.ForgotPassword)
	auth.POST("/password/reset", authH.ResetPassword)
	auth.POST("/logout", authH.Logout)
	auth.GET("/me", SessionAuthMiddleware(sessionSvc), authH.Me)

	products := r.Group("/products")
	products.GET("", catalogH.ListProducts)
	products.GET("/:id", catalogH.GetProduct)

	orders := r.Group("/orders", SessionAuthMiddleware(sessionSvc))
	orders.POST("", orderH.PlaceOrder)
	orders.GET("", orderH.ListOrders)
	orders.GET("/:id", orderH.GetOrder)
	orders.POST("/:id/cancel", orderH.CancelOrder)

	admin := r.Group("/admin", SessionAuthMiddleware(sessionSvc), RequireRole(domain.RoleAdmin))
	admin.GET("/products", catalogH.AdminListProducts)
	admin.POST("/products", catalogH.CreateProduct)
	admin.PUT("/products/:id", catalogH.UpdateProduct)
	admin.DELETE("/products/:id", catalogH.DeleteProduct)
	admin.GET("/orders", orderH.AdminListOrders)
	admin.PUT("/orders/:id/status", orderH.AdminUpdateOrderStatus)
	admin.GET("/dashboard", adminH.Dashboard)
	admin.GET("/analytics/sales", adminH.Sales)
	admin.GET("/analytics/top-products", adminH.TopProducts)
	admin.GET("/analytics/signups", adminH.Signups)

	return r
}

// zapLoggerMiddleware crea un middleware simple de logging con zap.
func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// jsonContentTypeMiddleware fuerza Content-Type: application/json en responses.
func jsonContentTypeMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Content-Type", "application/json")
		c.Next()
	}
}
