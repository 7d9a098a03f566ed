// Package service реализует бизнес-логику сервиса платёжных ссылок:
// создание заказов, инициацию платежей и сверку статусов по уведомлениям.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/paylink-service/internal/gateway"
	"github.com/mmeshcher/paylink-service/internal/metrics"
	"github.com/mmeshcher/paylink-service/internal/model"
	"github.com/mmeshcher/paylink-service/internal/notifier"
	"github.com/mmeshcher/paylink-service/internal/repository"
	"github.com/mmeshcher/paylink-service/internal/signature"
	"github.com/mmeshcher/paylink-service/internal/validation"
)

// ErrValidation возвращается при некорректных входных данных заказа или продукта.
var (
	ErrValidation = errors.New("validation error")
	// ErrInvalidToken возвращается при несовпадении подписи уведомления.
	// Никакие изменения заказа при этом не применяются.
	ErrInvalidToken = errors.New("invalid notification token")
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	Ping(ctx context.Context) error
	CreateProduct(ctx context.Context, p model.Product) (int64, error)
	GetProduct(ctx context.Context, id int64) (*model.Product, error)
	NextOrderSeq(ctx context.Context, day time.Time) (int, error)
	CreateOrder(ctx context.Context, o *model.Order) (int64, error)
	GetOrderByNumber(ctx context.Context, orderID string) (*model.Order, error)
	GetOrderByPaymentID(ctx context.Context, paymentID string) (*model.Order, error)
	SetOrderPending(ctx context.Context, orderID, paymentID string) error
	MarkOrderError(ctx context.Context, orderID string) error
	ApplyOutcome(ctx context.Context, orderID string, target model.OrderStatus, paidAt time.Time) (repository.TransitionResult, error)
	ArchiveOrder(ctx context.Context, orderID string, now time.Time) error
	ListOrders(ctx context.Context, limit int) ([]model.Order, error)
}

// Gateway описывает контракт клиента эквайринга.
type Gateway interface {
	InitPayment(ctx context.Context, req gateway.InitRequest) (*gateway.InitResult, error)
	GetState(ctx context.Context, paymentID string) (string, error)
	CheckOrder(ctx context.Context, orderID string) (string, error)
}

// Notifier описывает контракт отправки уведомлений оператору.
type Notifier interface {
	Notify(ctx context.Context, msg notifier.Message)
}

// Deps — зависимости сервиса. Notifier и Metrics опциональны.
type Deps struct {
	Repo        Repository
	Gateway     Gateway
	Signer      *signature.Signer
	Notifier    Notifier
	Metrics     *metrics.Metrics
	Logger      *zap.Logger
	AdminChatID int64
}

// Service содержит бизнес-логику сервиса платёжных ссылок.
type Service struct {
	repo        Repository
	gateway     Gateway
	signer      *signature.Signer
	notifier    Notifier
	metrics     *metrics.Metrics
	logger      *zap.Logger
	adminChatID int64

	now func() time.Time
}

// NewService создаёт сервис с указанными зависимостями.
func NewService(d Deps) *Service {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		repo:        d.Repo,
		gateway:     d.Gateway,
		signer:      d.Signer,
		notifier:    d.Notifier,
		metrics:     d.Metrics,
		logger:      logger,
		adminChatID: d.AdminChatID,
		now:         time.Now,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// Ping проверяет доступность хранилища.
func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

// CreateProductInput — параметры нового продукта.
type CreateProductInput struct {
	SKU            string
	Title          string
	BasePriceCents int64
	AgentPercent   int
}

// CreateProduct создаёт продукт. Пустой SKU генерируется автоматически.
func (s *Service) CreateProduct(ctx context.Context, in CreateProductInput) (int64, error) {
	if in.Title == "" {
		return 0, fmt.Errorf("%w: empty title", ErrValidation)
	}
	if in.BasePriceCents <= 0 {
		return 0, fmt.Errorf("%w: base price must be positive", ErrValidation)
	}
	if !validation.IsValidPercent(in.AgentPercent) {
		return 0, fmt.Errorf("%w: agent percent out of range", ErrValidation)
	}

	if in.SKU == "" {
		in.SKU = uuid.NewString()
	}

	return s.repo.CreateProduct(ctx, model.Product{
		SKU:            in.SKU,
		Title:          in.Title,
		BasePriceCents: in.BasePriceCents,
		AgentPercent:   in.AgentPercent,
	})
}

// CreateOrderInput — данные покупателя и выбранный продукт.
type CreateOrderInput struct {
	ProductID int64
	Quantity  int
	Fullname  string
	Phone     string
	Email     string
	City      string
	Address   string
	Comment   string
}

// CreateOrderResult — номер заказа и ссылка на оплату.
type CreateOrderResult struct {
	OrderID    string
	PaymentURL string
}

// CreateOrder создаёт заказ и инициирует платёж.
//
// Цена и процент продукта фиксируются в заказе в момент создания:
// total = base*quantity + fee, fee = floor(base*quantity*percent/100),
// всё в копейках. Заказ создаётся в статусе created; после успешного Init
// переводится в pending, при любой ошибке инициации — в error и
// сохраняется для разбора оператором.
func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput) (*CreateOrderResult, error) {
	if in.Quantity == 0 {
		in.Quantity = 1
	}
	if !validation.IsValidQuantity(in.Quantity) {
		return nil, fmt.Errorf("%w: quantity must be positive", ErrValidation)
	}
	if in.Email != "" && !validation.IsValidEmail(in.Email) {
		return nil, fmt.Errorf("%w: malformed email", ErrValidation)
	}

	product, err := s.repo.GetProduct(ctx, in.ProductID)
	if err != nil {
		return nil, err
	}

	orderID, err := s.allocateOrderID(ctx)
	if err != nil {
		return nil, err
	}

	baseAmount := product.BasePriceCents * int64(in.Quantity)
	agentFee := baseAmount * int64(product.AgentPercent) / 100
	total := baseAmount + agentFee

	order := &model.Order{
		OrderID:          orderID,
		ProductID:        product.ID,
		Quantity:         in.Quantity,
		TotalAmountCents: total,
		AgentFeeCents:    agentFee,
		CustomerFullname: in.Fullname,
		CustomerPhone:    in.Phone,
		CustomerEmail:    in.Email,
		CustomerCity:     in.City,
		CustomerAddress:  in.Address,
		Comment:          in.Comment,
		Status:           model.OrderStatusCreated,
	}

	if _, err := s.repo.CreateOrder(ctx, order); err != nil {
		return nil, err
	}
	s.metrics.OrderCreated()

	res, err := s.gateway.InitPayment(ctx, gateway.InitRequest{
		Amount:      total,
		OrderID:     orderID,
		Description: product.Title,
		Email:       in.Email,
		Phone:       in.Phone,
		PayType:     "SBP",
	})
	if err != nil {
		s.failOrder(ctx, orderID, err)
		return nil, fmt.Errorf("init payment: %w", err)
	}

	if err := s.repo.SetOrderPending(ctx, orderID, res.PaymentID); err != nil {
		return nil, fmt.Errorf("set order pending: %w", err)
	}

	s.dispatch(fmt.Sprintf("Новый заказ %s на сумму %s ₽, ожидает оплаты", orderID, rubles(total)))

	return &CreateOrderResult{
		OrderID:    orderID,
		PaymentURL: res.PaymentURL,
	}, nil
}

// allocateOrderID выдаёт номер вида YYYYMMDD_NNN: дата по UTC и
// трёхзначный порядковый номер, начинающийся с 1 каждый день.
func (s *Service) allocateOrderID(ctx context.Context) (string, error) {
	day := s.now().UTC()

	seq, err := s.repo.NextOrderSeq(ctx, day)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%s_%03d", day.Format("20060102"), seq), nil
}

// failOrder переводит заказ в error. Контекст запроса к этому моменту мог
// истечь, поэтому используется отвязанный контекст с собственным таймаутом.
func (s *Service) failOrder(ctx context.Context, orderID string, cause error) {
	markCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := s.repo.MarkOrderError(markCtx, orderID); err != nil {
		s.logger.Error("mark order error failed",
			zap.String("order", orderID),
			zap.Error(err),
		)
	}

	s.metrics.OrderFailed()
	s.logger.Error("payment init failed",
		zap.String("order", orderID),
		zap.Error(cause),
	)
}

// ProcessNotification проверяет подпись входящего уведомления банка,
// находит заказ и применяет переход статуса ровно один раз.
func (s *Service) ProcessNotification(ctx context.Context, payload map[string]any) error {
	if !s.signer.Verify(payload) {
		received, _ := payload["Token"].(string)
		// Дайджесты безопасны для логирования, секрет из них не восстановим.
		s.logger.Warn("webhook token mismatch",
			zap.String("computed", s.signer.WebhookToken(payload)),
			zap.String("received", received),
		)
		s.metrics.WebhookRejected("bad_token")
		return ErrInvalidToken
	}

	paymentID := asString(payload["PaymentId"])
	orderNumber := asString(payload["OrderId"])
	status := asString(payload["Status"])

	order, err := s.resolveOrder(ctx, paymentID, orderNumber)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			s.logger.Warn("webhook for unknown order",
				zap.String("paymentID", paymentID),
				zap.String("orderID", orderNumber),
			)
			s.metrics.WebhookRejected("not_found")
		}
		return err
	}

	target, ok := classifyStatus(status)
	if !ok {
		// Банк может присылать промежуточные или новые статусы —
		// заказ не меняем и отвечаем успехом.
		s.logger.Info("webhook status ignored",
			zap.String("order", order.OrderID),
			zap.String("status", status),
		)
		return nil
	}

	result, err := s.repo.ApplyOutcome(ctx, order.OrderID, target, s.now().UTC())
	if err != nil {
		return err
	}

	switch result {
	case repository.TransitionApplied:
		switch target {
		case model.OrderStatusPaid:
			s.metrics.OrderPaid()
			s.dispatch(fmt.Sprintf("Заказ %s оплачен, сумма %s ₽", order.OrderID, rubles(order.TotalAmountCents)))
		case model.OrderStatusCancelled:
			s.metrics.OrderCancelled()
			s.dispatch(fmt.Sprintf("Заказ %s отменён банком (статус %s)", order.OrderID, status))
		}
	case repository.TransitionDuplicate:
		s.metrics.WebhookDuplicate()
		s.logger.Info("duplicate webhook delivery",
			zap.String("order", order.OrderID),
			zap.String("status", status),
		)
	case repository.TransitionSkipped:
		s.logger.Warn("webhook transition skipped",
			zap.String("order", order.OrderID),
			zap.String("orderStatus", string(order.Status)),
			zap.String("status", status),
		)
	}

	return nil
}

// resolveOrder ищет заказ сначала по идентификатору платежа банка,
// затем по номеру заказа. Заказ-заглушка никогда не создаётся.
func (s *Service) resolveOrder(ctx context.Context, paymentID, orderNumber string) (*model.Order, error) {
	if paymentID != "" {
		order, err := s.repo.GetOrderByPaymentID(ctx, paymentID)
		if err == nil {
			return order, nil
		}
		if !errors.Is(err, repository.ErrOrderNotFound) {
			return nil, err
		}
	}

	if orderNumber != "" {
		return s.repo.GetOrderByNumber(ctx, orderNumber)
	}

	return nil, repository.ErrOrderNotFound
}

// PaymentState возвращает статус платежа на стороне банка: по
// идентификатору платежа, а если он ещё не назначен — по номеру заказа.
func (s *Service) PaymentState(ctx context.Context, orderNumber string) (string, error) {
	order, err := s.repo.GetOrderByNumber(ctx, orderNumber)
	if err != nil {
		return "", err
	}

	if order.ProviderPaymentID != "" {
		return s.gateway.GetState(ctx, order.ProviderPaymentID)
	}

	return s.gateway.CheckOrder(ctx, order.OrderID)
}

// ListOrders возвращает последние заказы для отчёта оператору.
func (s *Service) ListOrders(ctx context.Context, limit int) ([]model.Order, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	return s.repo.ListOrders(ctx, limit)
}

// ArchiveOrder выполняет мягкое удаление заказа.
func (s *Service) ArchiveOrder(ctx context.Context, orderNumber string) error {
	return s.repo.ArchiveOrder(ctx, orderNumber, s.now().UTC())
}

// dispatch отправляет уведомление оператору, не дожидаясь доставки.
func (s *Service) dispatch(text string) {
	if s.notifier == nil || s.adminChatID == 0 {
		return
	}

	msg := notifier.Message{ChatID: s.adminChatID, Text: text}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		s.notifier.Notify(ctx, msg)
	}()
}

// successStatuses и failureStatuses — классы нормализованных статусов банка.
var (
	successStatuses = map[string]struct{}{
		"confirmed": {}, "completed": {}, "authorized": {}, "success": {},
	}
	failureStatuses = map[string]struct{}{
		"reversed": {}, "refunded": {}, "failed": {}, "declined": {},
		"rejected": {}, "canceled": {}, "cancelled": {},
	}
)

// classifyStatus относит статус уведомления к исходу paid/cancelled.
// Неизвестные статусы перехода не вызывают.
func classifyStatus(status string) (model.OrderStatus, bool) {
	s := strings.ToLower(strings.TrimSpace(status))
	if _, ok := successStatuses[s]; ok {
		return model.OrderStatusPaid, true
	}
	if _, ok := failureStatuses[s]; ok {
		return model.OrderStatusCancelled, true
	}
	return "", false
}

// asString приводит значение из JSON-тела к строке: PaymentId банк может
// прислать и числом, и строкой.
func asString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case json.Number:
		return val.String()
	case int64:
		return strconv.FormatInt(val, 10)
	case nil:
		return ""
	}
	return fmt.Sprint(v)
}

func rubles(cents int64) string {
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}
