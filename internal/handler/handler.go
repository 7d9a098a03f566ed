// Package handler содержит HTTP-обработчики API сервиса платёжных ссылок.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/paylink-service/internal/gateway"
	"github.com/mmeshcher/paylink-service/internal/middleware"
	"github.com/mmeshcher/paylink-service/internal/model"
	"github.com/mmeshcher/paylink-service/internal/repository"
	"github.com/mmeshcher/paylink-service/internal/service"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	Ping(ctx context.Context) error
	CreateProduct(ctx context.Context, in service.CreateProductInput) (int64, error)
	CreateOrder(ctx context.Context, in service.CreateOrderInput) (*service.CreateOrderResult, error)
	ProcessNotification(ctx context.Context, payload map[string]any) error
	PaymentState(ctx context.Context, orderID string) (string, error)
	ListOrders(ctx context.Context, limit int) ([]model.Order, error)
	ArchiveOrder(ctx context.Context, orderID string) error
}

// Suggester определяет контракт подсказок адресов.
type Suggester interface {
	SuggestAddress(ctx context.Context, query string, count int) (json.RawMessage, error)
}

// Handler реализует HTTP-обработчики API.
type Handler struct {
	service        Service
	suggester      Suggester
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
// suggester может быть nil, если подсказки адресов не настроены.
func NewHandler(s Service, suggester Suggester, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		suggester:      suggester,
		logger:         logger,
		authMiddleware: auth,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type createProductRequest struct {
	SKU     string `json:"sku,omitempty"`
	Title   string `json:"title"`
	Price   int64  `json:"base_price"` // рубли
	Percent int    `json:"percent"`    // агентский %
}

type createProductResponse struct {
	ProductID int64 `json:"product_id"`
}

// CreateProduct создаёт продукт — шаблон цены для платёжной ссылки.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req createProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	id, err := h.service.CreateProduct(r.Context(), service.CreateProductInput{
		SKU:            req.SKU,
		Title:          req.Title,
		BasePriceCents: req.Price * 100,
		AgentPercent:   req.Percent,
	})
	if err != nil {
		if errors.Is(err, service.ErrValidation) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if errors.Is(err, repository.ErrProductExists) {
			http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
			return
		}
		h.logger.Error("create product error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, createProductResponse{ProductID: id})
}

type createOrderRequest struct {
	ProductID int64  `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Fullname  string `json:"fullname"`
	Phone     string `json:"phone"`
	Email     string `json:"email"`
	City      string `json:"city"`
	Address   string `json:"address"`
	Comment   string `json:"comment"`
}

type createOrderResponse struct {
	OrderID         string `json:"order_id"`
	ConfirmationURL string `json:"confirmation_url"`
}

// CreateOrder принимает заказ покупателя, создаёт платёж и возвращает
// ссылку на оплату.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	res, err := h.service.CreateOrder(r.Context(), service.CreateOrderInput{
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
		Fullname:  req.Fullname,
		Phone:     req.Phone,
		Email:     req.Email,
		City:      req.City,
		Address:   req.Address,
		Comment:   req.Comment,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrValidation):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, repository.ErrProductNotFound):
			http.Error(w, "product not found", http.StatusNotFound)
		default:
			var gwErr *gateway.Error
			if errors.As(err, &gwErr) {
				// Заказ сохранён в статусе error, сообщение банка отдаём оператору.
				http.Error(w, "payment error: "+gwErr.Message, http.StatusBadGateway)
				return
			}
			h.logger.Error("create order error", zap.Error(err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusOK, createOrderResponse{
		OrderID:         res.OrderID,
		ConfirmationURL: res.PaymentURL,
	})
}

type webhookResponse struct {
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
}

// Webhook принимает server-to-server уведомление банка о смене статуса
// платежа. Подпись проверяется до любого обращения к заказам.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	var payload map[string]any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, webhookResponse{OK: false, Detail: "invalid json"})
		return
	}

	err := h.service.ProcessNotification(r.Context(), payload)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidToken):
			writeJSON(w, http.StatusBadRequest, webhookResponse{OK: false, Detail: "invalid token"})
		case errors.Is(err, repository.ErrOrderNotFound):
			writeJSON(w, http.StatusNotFound, webhookResponse{OK: false, Detail: "order not found"})
		default:
			h.logger.Error("webhook processing error", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, webhookResponse{OK: false, Detail: "internal error"})
		}
		return
	}

	writeJSON(w, http.StatusOK, webhookResponse{OK: true})
}

type orderResponse struct {
	OrderID     string `json:"order_id"`
	ProductID   int64  `json:"product_id"`
	Quantity    int    `json:"quantity"`
	TotalAmount int64  `json:"total_amount"`
	AgentFee    int64  `json:"agent_fee"`
	Status      string `json:"status"`
	PaymentID   string `json:"payment_id,omitempty"`
	Fullname    string `json:"fullname,omitempty"`
	City        string `json:"city,omitempty"`
	CreatedAt   string `json:"created_at"`
	PaidAt      string `json:"paid_at,omitempty"`
}

// ListOrders возвращает последние заказы для отчёта оператору.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.ListOrders(r.Context(), 100)
	if err != nil {
		h.logger.Error("list orders error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(orders) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		item := orderResponse{
			OrderID:     o.OrderID,
			ProductID:   o.ProductID,
			Quantity:    o.Quantity,
			TotalAmount: o.TotalAmountCents,
			AgentFee:    o.AgentFeeCents,
			Status:      string(o.Status),
			PaymentID:   o.ProviderPaymentID,
			Fullname:    o.CustomerFullname,
			City:        o.CustomerCity,
			CreatedAt:   o.CreatedAt.Format(time.RFC3339),
		}
		if o.PaidAt != nil {
			item.PaidAt = o.PaidAt.Format(time.RFC3339)
		}
		resp = append(resp, item)
	}

	writeJSON(w, http.StatusOK, resp)
}

type paymentStateResponse struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

// PaymentState запрашивает статус платежа на стороне банка.
func (h *Handler) PaymentState(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")

	status, err := h.service.PaymentState(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			http.Error(w, "order not found", http.StatusNotFound)
			return
		}
		var gwErr *gateway.Error
		if errors.As(err, &gwErr) {
			http.Error(w, "payment error: "+gwErr.Message, http.StatusBadGateway)
			return
		}
		h.logger.Error("payment state error", zap.Error(err), zap.String("order", orderID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, paymentStateResponse{OrderID: orderID, Status: status})
}

// ArchiveOrder выполняет мягкое удаление заказа.
func (h *Handler) ArchiveOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")

	if err := h.service.ArchiveOrder(r.Context(), orderID); err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			http.Error(w, "order not found", http.StatusNotFound)
			return
		}
		h.logger.Error("archive order error", zap.Error(err), zap.String("order", orderID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

type suggestRequest struct {
	Query string `json:"query"`
	Count int    `json:"count"`
}

// SuggestAddress проксирует запрос подсказок адресов к DaData.
func (h *Handler) SuggestAddress(w http.ResponseWriter, r *http.Request) {
	if h.suggester == nil {
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}

	var req suggestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Query == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	raw, err := h.suggester.SuggestAddress(r.Context(), req.Query, req.Count)
	if err != nil {
		h.logger.Error("address suggest error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

// Ping проверяет доступность БД.
func (h *Handler) Ping(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Ping(r.Context()); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}
