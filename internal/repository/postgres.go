// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/sethvargo/go-retry"

	"github.com/mmeshcher/paylink-service/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrProductExists возвращается при попытке создать продукт с занятым SKU.
var (
	ErrProductExists = errors.New("product already exists")
	// ErrProductNotFound возвращается, если продукт не найден.
	ErrProductNotFound = errors.New("product not found")
	// ErrOrderExists возвращается при коллизии номера заказа.
	ErrOrderExists = errors.New("order already exists")
	// ErrOrderNotFound возвращается, если заказ не найден.
	ErrOrderNotFound = errors.New("order not found")
)

// TransitionResult описывает исход применения перехода статуса заказа.
type TransitionResult int

const (
	// TransitionApplied — переход применён.
	TransitionApplied TransitionResult = iota
	// TransitionDuplicate — заказ уже в целевом статусе, повторная доставка.
	TransitionDuplicate
	// TransitionSkipped — текущий статус не допускает перехода.
	TransitionSkipped
)

// PostgresRepository предоставляет доступ к хранилищу продуктов и заказов.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// withRetry повторяет операцию при временных ошибках БД: deadlock,
// serialization failure, обрыв соединения.
func (r *PostgresRepository) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(3, retry.NewFibonacci(500*time.Millisecond))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if isRetryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
	}

	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// Ping проверяет доступность БД.
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// CreateProduct сохраняет новый продукт и возвращает его идентификатор.
func (r *PostgresRepository) CreateProduct(ctx context.Context, p model.Product) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO products (sku, title, base_price_cents, agent_percent)
		 VALUES ($1, $2, $3, $4) RETURNING id`,
		p.SKU, p.Title, p.BasePriceCents, p.AgentPercent,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return 0, fmt.Errorf("%w: sku %s", ErrProductExists, p.SKU)
		}
		return 0, fmt.Errorf("create product: %w", err)
	}
	return id, nil
}

// GetProduct возвращает продукт по идентификатору.
func (r *PostgresRepository) GetProduct(ctx context.Context, id int64) (*model.Product, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, sku, title, base_price_cents, agent_percent, created_at
		 FROM products WHERE id = $1`,
		id,
	)

	var p model.Product
	err := row.Scan(&p.ID, &p.SKU, &p.Title, &p.BasePriceCents, &p.AgentPercent, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}

	return &p, nil
}

// NextOrderSeq атомарно выдаёт следующий порядковый номер заказа за день.
// Счётчик хранится в отдельной строке на дату: инкремент сериализуется
// блокировкой строки, гонка count-then-insert исключена.
func (r *PostgresRepository) NextOrderSeq(ctx context.Context, day time.Time) (int, error) {
	var seq int
	err := r.withRetry(ctx, func(ctx context.Context) error {
		return r.pool.QueryRow(ctx,
			`INSERT INTO order_day_counters (day, last_seq) VALUES ($1, 1)
			 ON CONFLICT (day) DO UPDATE SET last_seq = order_day_counters.last_seq + 1
			 RETURNING last_seq`,
			day.UTC().Format("2006-01-02"),
		).Scan(&seq)
	})
	if err != nil {
		return 0, fmt.Errorf("next order seq: %w", err)
	}
	return seq, nil
}

// CreateOrder сохраняет новый заказ в статусе created.
func (r *PostgresRepository) CreateOrder(ctx context.Context, o *model.Order) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO orders (
			order_id_str, product_id, quantity, total_amount_cents, agent_fee_cents,
			customer_fullname, customer_phone, customer_email, customer_city,
			customer_address, comment, status
		 ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 RETURNING id`,
		o.OrderID, o.ProductID, o.Quantity, o.TotalAmountCents, o.AgentFeeCents,
		o.CustomerFullname, o.CustomerPhone, o.CustomerEmail, o.CustomerCity,
		o.CustomerAddress, o.Comment, string(model.OrderStatusCreated),
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return 0, fmt.Errorf("%w: %s", ErrOrderExists, o.OrderID)
		}
		return 0, fmt.Errorf("create order: %w", err)
	}
	return id, nil
}

const orderColumns = `id, order_id_str, product_id, quantity, total_amount_cents, agent_fee_cents,
	customer_fullname, customer_phone, customer_email, customer_city, customer_address, comment,
	status, COALESCE(provider_payment_id, ''), created_at, paid_at, deleted_at`

func scanOrder(row pgx.Row) (*model.Order, error) {
	var o model.Order
	var status string
	err := row.Scan(
		&o.ID, &o.OrderID, &o.ProductID, &o.Quantity, &o.TotalAmountCents, &o.AgentFeeCents,
		&o.CustomerFullname, &o.CustomerPhone, &o.CustomerEmail, &o.CustomerCity,
		&o.CustomerAddress, &o.Comment, &status, &o.ProviderPaymentID,
		&o.CreatedAt, &o.PaidAt, &o.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	o.Status = model.OrderStatus(status)
	return &o, nil
}

// GetOrderByNumber возвращает заказ по его строковому номеру.
func (r *PostgresRepository) GetOrderByNumber(ctx context.Context, orderID string) (*model.Order, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE order_id_str = $1`, orderID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

// GetOrderByPaymentID возвращает заказ по идентификатору платежа банка.
func (r *PostgresRepository) GetOrderByPaymentID(ctx context.Context, paymentID string) (*model.Order, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE provider_payment_id = $1`, paymentID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order by payment id: %w", err)
	}
	return o, nil
}

// SetOrderPending проставляет идентификатор платежа и переводит заказ в
// pending. Срабатывает только из created и только если идентификатор ещё
// не назначен: однажды установленный provider_payment_id не переназначается.
func (r *PostgresRepository) SetOrderPending(ctx context.Context, orderID, paymentID string) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE orders SET status = $2, provider_payment_id = $3
		 WHERE order_id_str = $1 AND status = $4 AND provider_payment_id IS NULL`,
		orderID, string(model.OrderStatusPending), paymentID, string(model.OrderStatusCreated),
	)
	if err != nil {
		return fmt.Errorf("set order pending: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// MarkOrderError помечает заказ как ошибочный после неудачной инициации
// платежа. Заказ сохраняется для разбора оператором.
func (r *PostgresRepository) MarkOrderError(ctx context.Context, orderID string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE orders SET status = $2 WHERE order_id_str = $1 AND status = $3`,
		orderID, string(model.OrderStatusError), string(model.OrderStatusCreated),
	)
	if err != nil {
		return fmt.Errorf("mark order error: %w", err)
	}
	return nil
}

// ApplyOutcome переводит заказ из pending в конечный статус paid или
// cancelled. Строка заказа блокируется на время перехода, поэтому
// конкурентные доставки одного уведомления сериализуются. Повторная
// доставка уже применённого исхода — no-op.
func (r *PostgresRepository) ApplyOutcome(ctx context.Context, orderID string, target model.OrderStatus, paidAt time.Time) (TransitionResult, error) {
	var result TransitionResult

	err := r.withRetry(ctx, func(ctx context.Context) error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		var current string
		err = tx.QueryRow(ctx,
			`SELECT status FROM orders WHERE order_id_str = $1 FOR UPDATE`,
			orderID,
		).Scan(&current)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrOrderNotFound
			}
			return fmt.Errorf("lock order: %w", err)
		}

		switch model.OrderStatus(current) {
		case target:
			result = TransitionDuplicate
			return tx.Commit(ctx)
		case model.OrderStatusPending:
			// переход допустим
		default:
			result = TransitionSkipped
			return tx.Commit(ctx)
		}

		if target == model.OrderStatusPaid {
			_, err = tx.Exec(ctx,
				`UPDATE orders SET status = $2, paid_at = COALESCE(paid_at, $3) WHERE order_id_str = $1`,
				orderID, string(target), paidAt,
			)
		} else {
			_, err = tx.Exec(ctx,
				`UPDATE orders SET status = $2 WHERE order_id_str = $1`,
				orderID, string(target),
			)
		}
		if err != nil {
			return fmt.Errorf("update order status: %w", err)
		}

		result = TransitionApplied
		return tx.Commit(ctx)
	})
	if err != nil {
		return 0, err
	}

	return result, nil
}

// ArchiveOrder выполняет мягкое удаление заказа из любого статуса.
func (r *PostgresRepository) ArchiveOrder(ctx context.Context, orderID string, now time.Time) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE orders SET status = $2, deleted_at = $3
		 WHERE order_id_str = $1 AND deleted_at IS NULL`,
		orderID, string(model.OrderStatusArchived), now,
	)
	if err != nil {
		return fmt.Errorf("archive order: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// ListOrders возвращает неархивированные заказы, новые первыми.
func (r *PostgresRepository) ListOrders(ctx context.Context, limit int) ([]model.Order, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+orderColumns+` FROM orders
		 WHERE deleted_at IS NULL
		 ORDER BY created_at DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return orders, nil
}
