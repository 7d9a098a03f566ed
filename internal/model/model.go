// Package model содержит доменные сущности сервиса платёжных ссылок.
package model

import "time"

// Product описывает шаблон цены, по которому создаются заказы.
type Product struct {
	ID             int64
	SKU            string
	Title          string
	BasePriceCents int64
	AgentPercent   int
	CreatedAt      time.Time
}

// OrderStatus описывает статус обработки заказа.
type OrderStatus string

const (
	OrderStatusCreated   OrderStatus = "created"
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusError     OrderStatus = "error"
	OrderStatusArchived  OrderStatus = "archived"
)

// Order описывает одну попытку покупки. Цена и процент продукта фиксируются
// в заказе в момент создания: последующие правки продукта заказ не меняют.
type Order struct {
	ID               int64
	OrderID          string // формат YYYYMMDD_NNN, назначается один раз
	ProductID        int64
	Quantity         int
	TotalAmountCents int64
	AgentFeeCents    int64

	CustomerFullname string
	CustomerPhone    string
	CustomerEmail    string
	CustomerCity     string
	CustomerAddress  string
	Comment          string

	Status OrderStatus

	// ProviderPaymentID — идентификатор платежа на стороне эквайринга.
	// Пустой до ответа банка; после установки никогда не переназначается.
	ProviderPaymentID string

	CreatedAt time.Time
	PaidAt    *time.Time
	DeletedAt *time.Time
}
