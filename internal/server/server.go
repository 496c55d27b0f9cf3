package server

import (
	"fmt"
	"net/http"
	"time"

	"bike-storefront/internal/config"
	"bike-storefront/internal/database"
	"bike-storefront/internal/metrics"
	"bike-storefront/internal/service"
)

type Server struct {
	cfg     *config.Config
	db      database.Service
	orders  service.OrderService
	catalog service.CatalogService
	metrics *metrics.Metrics
}

func New(cfg *config.Config, db database.Service, orders service.OrderService, catalog service.CatalogService, m *metrics.Metrics) *Server {
	return &Server{cfg: cfg, db: db, orders: orders, catalog: catalog, metrics: m}
}

// HTTPServer wires the routes into a configured *http.Server.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf(":%s", s.cfg.Port),
		Handler:      s.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}
