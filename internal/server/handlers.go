package server

import (
	"errors"
	"fmt"
	"net/http"

	"bike-storefront/internal/domain"
	"bike-storefront/internal/query"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type orderLineRequest struct {
	ProductID string `json:"_id" binding:"required,uuid"`
	Quantity  int    `json:"quantity" binding:"required"`
}

type createOrderRequest struct {
	Products []orderLineRequest `json:"products" binding:"required,min=1,dive"`
}

type verifyRequest struct {
	OrderID string `json:"order_id" binding:"required"`
}

type statusRequest struct {
	Status string `json:"status" binding:"required"`
}

type createBikeRequest struct {
	Name        string          `json:"name" binding:"required"`
	Brand       string          `json:"brand" binding:"required"`
	Model       string          `json:"model" binding:"required"`
	Description string          `json:"description"`
	Category    string          `json:"category" binding:"required"`
	RiderType   string          `json:"riderType" binding:"required"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int             `json:"quantity" binding:"gte=0"`
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		abortWithError(c, fmt.Errorf("%w: %v", domain.ErrValidation, err))
		return false
	}
	return true
}

func pathID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		abortWithError(c, fmt.Errorf("%w: %s is not a valid id", domain.ErrValidation, name))
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) createOrder(c *gin.Context) {
	p, _ := principal(c)
	var req createOrderRequest
	if !bindJSON(c, &req) {
		return
	}
	lines := make([]domain.OrderLine, len(req.Products))
	for i, l := range req.Products {
		lines[i] = domain.OrderLine{ProductID: uuid.MustParse(l.ProductID), Quantity: l.Quantity}
	}

	checkout, err := s.orders.CreateOrder(c.Request.Context(), p.UserID, lines, c.ClientIP())
	if err != nil {
		if checkout != nil && errors.Is(err, domain.ErrGatewayUnavailable) {
			status := http.StatusServiceUnavailable
			c.AbortWithStatusJSON(status, envelope{
				Success:    false,
				Message:    "Order placed but payment could not be started, please retry verification later",
				StatusCode: status,
				Code:       domain.CodeUnavailable,
				Data:       checkout,
			})
			return
		}
		abortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, "Order create successfully", checkout)
}

func (s *Server) listOrders(c *gin.Context) {
	p, _ := principal(c)
	page, err := s.orders.ListOrders(c.Request.Context(), p, query.FromValues(c.Request.URL.Query()))
	if err != nil {
		abortWithError(c, err)
		return
	}
	data, err := page.Data()
	if err != nil {
		abortWithError(c, err)
		return
	}
	respondPage(c, "Order get successfully", data, page.Meta, page.Warnings)
}

func (s *Server) getOrder(c *gin.Context) {
	p, _ := principal(c)
	id, ok := pathID(c, "orderId")
	if !ok {
		return
	}
	order, err := s.orders.GetOrder(c.Request.Context(), p, id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, "Order retrieved successfully", order)
}

func (s *Server) listPayments(c *gin.Context) {
	p, _ := principal(c)
	id, ok := pathID(c, "orderId")
	if !ok {
		return
	}
	attempts, err := s.orders.Payments(c.Request.Context(), p, id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, "Payment attempts retrieved successfully", attempts)
}

func (s *Server) verifyPayment(c *gin.Context) {
	var req verifyRequest
	if !bindJSON(c, &req) {
		return
	}
	v, err := s.orders.VerifyPayment(c.Request.Context(), req.OrderID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, "verify order successfully", v)
}

func (s *Server) updateOrderStatus(c *gin.Context) {
	id, ok := pathID(c, "orderId")
	if !ok {
		return
	}
	var req statusRequest
	if !bindJSON(c, &req) {
		return
	}
	order, err := s.orders.UpdateOrderStatus(c.Request.Context(), id, domain.OrderStatus(req.Status))
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, "Order status updated to "+req.Status, order)
}

func (s *Server) listBikes(c *gin.Context) {
	page, err := s.catalog.ListBikes(c.Request.Context(), query.FromValues(c.Request.URL.Query()))
	if err != nil {
		abortWithError(c, err)
		return
	}
	data, err := page.Data()
	if err != nil {
		abortWithError(c, err)
		return
	}
	respondPage(c, "Bikes retrieved successfully", data, page.Meta, page.Warnings)
}

func (s *Server) getBike(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	bike, err := s.catalog.GetBike(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, "Bike retrieved successfully", bike)
}

func (s *Server) createBike(c *gin.Context) {
	var req createBikeRequest
	if !bindJSON(c, &req) {
		return
	}
	bike := &domain.Bike{
		Name:        req.Name,
		Brand:       req.Brand,
		Model:       req.Model,
		Description: req.Description,
		Category:    req.Category,
		RiderType:   req.RiderType,
		Price:       req.Price,
		Quantity:    req.Quantity,
	}
	if err := s.catalog.AddBike(c.Request.Context(), bike); err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, http.StatusCreated, "Bike created successfully", bike)
}
