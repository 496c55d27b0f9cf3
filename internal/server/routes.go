package server

import (
	"net/http"

	"bike-storefront/internal/domain"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func (s *Server) RegisterRoutes() http.Handler {
	if s.cfg.GinMode == gin.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(TraceID(), Logger(), gin.Recovery())
	if s.metrics != nil {
		r.Use(Metrics(s.metrics.Server))
		r.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	r.Use(cors.New(cors.Config{
		AllowOrigins:     s.cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: !allowsAny(s.cfg.CORSOrigins),
	}))

	r.GET("/health", s.healthHandler)

	auth := Authentication(s.cfg.Auth.AccessSecret)
	api := r.Group("/api")
	{
		bikes := api.Group("/bikes")
		bikes.GET("", s.listBikes)
		bikes.GET("/:id", s.getBike)
		bikes.POST("", auth, RequireRole(domain.RoleAdmin), s.createBike)

		orders := api.Group("/orders", auth)
		orders.POST("", RequireRole(domain.RoleCustomer, domain.RoleAdmin), s.createOrder)
		orders.GET("", RequireRole(domain.RoleCustomer, domain.RoleAdmin), s.listOrders)
		orders.PATCH("/verify", RequireRole(domain.RoleAdmin), s.verifyPayment)
		orders.GET("/:orderId", s.getOrder)
		orders.GET("/:orderId/payments", s.listPayments)
		orders.PATCH("/:orderId/status", RequireRole(domain.RoleAdmin), s.updateOrderStatus)
	}
	return r
}

func allowsAny(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}

func (s *Server) healthHandler(c *gin.Context) {
	if s.db == nil {
		c.JSON(http.StatusOK, gin.H{"status": "up"})
		return
	}
	stats := s.db.Health(c.Request.Context())
	code := http.StatusOK
	if stats["status"] != "up" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, stats)
}
