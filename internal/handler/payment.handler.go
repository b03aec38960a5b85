package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"fitpay/internal/database"
	"fitpay/internal/domain"
	"fitpay/internal/service"
)

type PaymentHandler struct {
	orders    *service.OrderService
	reconcile *service.ReconcileService
	db        database.Service
	log       *logrus.Logger
}

func NewPaymentHandler(orders *service.OrderService, reconcile *service.ReconcileService, db database.Service, log *logrus.Logger) *PaymentHandler {
	return &PaymentHandler{orders: orders, reconcile: reconcile, db: db, log: log}
}

func (h *PaymentHandler) Register(r *gin.Engine) {
	r.GET("/health", h.health)
	pay := r.Group("/payment")
	pay.POST("/create-payment", h.createPayment)
	pay.POST("/callback/:gateway", h.callback)
	pay.GET("/check-status/:orderId", h.checkStatus)
}

type createPaymentRequest struct {
	OwnerID       int64  `json:"owner_id" binding:"required"`
	ProductRef    string `json:"product_ref" binding:"required"`
	Amount        int64  `json:"amount" binding:"required"`
	PaymentMethod string `json:"payment_method" binding:"required"`
}

func (h *PaymentHandler) createPayment(c *gin.Context) {
	var req createPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.orders.Create(c.Request.Context(), req.OwnerID, req.ProductRef, req.Amount, req.PaymentMethod)

	var vErr *domain.ValidationError
	if errors.As(err, &vErr) {
		c.JSON(http.StatusBadRequest, gin.H{"error": vErr.Error()})
		return
	}

	var gwErr *domain.GatewayError
	if errors.As(err, &gwErr) {
		// The order exists and the sweeper will resolve it; tell the
		// caller retrying checkout is safe.
		c.JSON(http.StatusBadGateway, gin.H{
			"error": "gateway unavailable, try again",
			"order": result.Order,
		})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create order"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"order":       result.Order,
		"payment_url": result.PayURL,
	})
}

// callback always answers 200; the gateway reads the ack body, not the HTTP
// status, to decide whether to redeliver.
func (h *PaymentHandler) callback(c *gin.Context) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusOK, service.CallbackAck{ReturnCode: 0, ReturnMessage: "unreadable body"})
		return
	}
	ack := h.orders.ApplyCallback(c.Request.Context(), c.Param("gateway"), raw)
	c.JSON(http.StatusOK, ack)
}

func (h *PaymentHandler) checkStatus(c *gin.Context) {
	result, err := h.reconcile.Check(c.Request.Context(), c.Param("orderId"))
	if errors.Is(err, domain.ErrOrderNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
		return
	}
	var gwErr *domain.GatewayError
	if errors.As(err, &gwErr) {
		c.JSON(http.StatusBadGateway, gin.H{"error": "gateway unavailable, try again"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not check order status"})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *PaymentHandler) health(c *gin.Context) {
	c.JSON(http.StatusOK, h.db.Health())
}
