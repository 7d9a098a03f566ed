// Package metrics содержит счётчики Prometheus по жизненному циклу заказов.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics агрегирует счётчики сервиса. Нулевой указатель безопасен:
// все методы в этом случае ничего не делают.
type Metrics struct {
	ordersCreated   prometheus.Counter
	ordersPaid      prometheus.Counter
	ordersCancelled prometheus.Counter
	ordersFailed    prometheus.Counter

	webhooksRejected  *prometheus.CounterVec
	webhooksDuplicate prometheus.Counter
}

// New регистрирует счётчики в указанном реестре.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ordersCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "paylink_orders_created_total",
			Help: "Количество созданных заказов",
		}),
		ordersPaid: factory.NewCounter(prometheus.CounterOpts{
			Name: "paylink_orders_paid_total",
			Help: "Количество оплаченных заказов",
		}),
		ordersCancelled: factory.NewCounter(prometheus.CounterOpts{
			Name: "paylink_orders_cancelled_total",
			Help: "Количество отменённых заказов",
		}),
		ordersFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "paylink_orders_failed_total",
			Help: "Количество заказов с ошибкой инициации платежа",
		}),
		webhooksRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "paylink_webhooks_rejected_total",
			Help: "Количество отклонённых уведомлений банка",
		}, []string{"reason"}),
		webhooksDuplicate: factory.NewCounter(prometheus.CounterOpts{
			Name: "paylink_webhooks_duplicate_total",
			Help: "Количество повторных доставок уведомлений",
		}),
	}
}

// OrderCreated учитывает созданный заказ.
func (m *Metrics) OrderCreated() {
	if m == nil {
		return
	}
	m.ordersCreated.Inc()
}

// OrderPaid учитывает оплату заказа.
func (m *Metrics) OrderPaid() {
	if m == nil {
		return
	}
	m.ordersPaid.Inc()
}

// OrderCancelled учитывает отмену заказа.
func (m *Metrics) OrderCancelled() {
	if m == nil {
		return
	}
	m.ordersCancelled.Inc()
}

// OrderFailed учитывает ошибку инициации платежа.
func (m *Metrics) OrderFailed() {
	if m == nil {
		return
	}
	m.ordersFailed.Inc()
}

// WebhookRejected учитывает отклонённое уведомление с причиной.
func (m *Metrics) WebhookRejected(reason string) {
	if m == nil {
		return
	}
	m.webhooksRejected.WithLabelValues(reason).Inc()
}

// WebhookDuplicate учитывает повторную доставку уведомления.
func (m *Metrics) WebhookDuplicate() {
	if m == nil {
		return
	}
	m.webhooksDuplicate.Inc()
}
