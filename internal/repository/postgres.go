// Package repository содержит реализацию доступа к данным в PostgreSQL.
//
// Все операции жизненного цикла заказа выполняются в одной транзакции.
// Порядок блокировок фиксирован: сначала строка заказа, затем запись
// месячной книги. При создании заказа вместо строки заказа блокируется
// строка пользователя — это сериализует проверку квоты и резервирование
// для одного пользователя и закрывает гонку "проверил-потом-записал".
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

	"github.com/mmeshcher/clubhouse-system/internal/model"
	"github.com/mmeshcher/clubhouse-system/internal/quota"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrUserExists возвращается при попытке создать пользователя с уже существующим логином.
var (
	ErrUserExists = errors.New("user already exists")
	// ErrUserNotFound возвращается, если пользователь не найден.
	ErrUserNotFound = errors.New("user not found")
	// ErrOrderNotFound возвращается, если заказ не найден.
	ErrOrderNotFound = errors.New("order not found")
	// ErrProductNotFound возвращается, если позиция заказа ссылается на несуществующий товар.
	ErrProductNotFound = errors.New("product not found")
	// ErrInvalidQuantity возвращается, если количество в позиции не является положительным числом.
	ErrInvalidQuantity = errors.New("invalid quantity")
	// ErrDuplicatePending возвращается, если у пользователя уже есть PENDING-заказ на эту дату.
	ErrDuplicatePending = errors.New("pending order already exists for this date")
	// ErrOrderCompleted возвращается при попытке изменить завершённый заказ.
	ErrOrderCompleted = errors.New("order already completed")
	// ErrOrderCancelled возвращается при попытке отменить уже отменённый заказ.
	ErrOrderCancelled = errors.New("order already cancelled")
	// ErrOrderNoOwner возвращается при попытке завершить заказ без владельца.
	ErrOrderNoOwner = errors.New("order has no owner")
)

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
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

func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delays := []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		// Если ошибка контекста — выходим сразу
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		// Ретраи полезны для Serialization Failure или Deadlocks.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected {
				if i < len(delays) {
					time.Sleep(delays[i])
					continue
				}
			}
		}

		// Если это не pg-ошибка, но сетевая
		if isConnectionError(err) {
			if i < len(delays) {
				time.Sleep(delays[i])
				continue
			}
		}

		break
	}
	return err
}

func isConnectionError(err error) bool {
	// Упрощенная проверка на ошибки соединения
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// CreateUser создаёт нового пользователя, опционально привязанного к клубу.
func (r *PostgresRepository) CreateUser(ctx context.Context, login string, passwordHash []byte, clubID *int64) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (login, password_hash, club_id) VALUES ($1, $2, $3) RETURNING id`,
		login, passwordHash, clubID,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return 0, fmt.Errorf("%w: %s", ErrUserExists, login)
		}
		return 0, fmt.Errorf("create user: %w", err)
	}
	return id, nil
}

// GetUserByLogin возвращает пользователя по логину.
func (r *PostgresRepository) GetUserByLogin(ctx context.Context, login string) (*model.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, login, password_hash, club_id, created_at FROM users WHERE login = $1`,
		login,
	)

	var u model.User
	err := row.Scan(&u.ID, &u.Login, &u.PasswordHash, &u.ClubID, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	return &u, nil
}

// OrderItemParams описывает позицию создаваемого заказа.
type OrderItemParams struct {
	ProductID int64
	Grams     float64
}

// CreateOrderParams описывает входные данные для создания заказа.
type CreateOrderParams struct {
	UserID     int64
	Date       time.Time
	Hour       string
	Comment    string
	TotalCents int64
	Items      []OrderItemParams
}

// CreateOrder создаёт заказ в статусе PENDING и резервирует его граммы в
// месячной книге пользователя. Стоимость в граммах пересчитывается из
// позиций — итогу клиента здесь не доверяют. При отказе по квоте ничего
// не сохраняется, возвращается вердикт с Accepted=false и nil-ошибкой.
func (r *PostgresRepository) CreateOrder(ctx context.Context, p CreateOrderParams) (*model.Order, *model.QuotaVerdict, error) {
	var (
		order   *model.Order
		verdict *model.QuotaVerdict
	)

	err := r.withRetry(ctx, func() error {
		var err error
		order, verdict, err = r.createOrderTx(ctx, p)
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	return order, verdict, nil
}

func (r *PostgresRepository) createOrderTx(ctx context.Context, p CreateOrderParams) (*model.Order, *model.QuotaVerdict, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// Блокируем строку пользователя: все проверки квоты и резервирования
	// одного пользователя выполняются строго по очереди.
	var clubLimit *float64
	err = tx.QueryRow(ctx,
		`SELECT c.max_monthly_grams
		 FROM users u
		 LEFT JOIN clubs c ON c.id = u.club_id
		 WHERE u.id = $1
		 FOR UPDATE OF u`,
		p.UserID,
	).Scan(&clubLimit)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, fmt.Errorf("%w: id %d", ErrUserNotFound, p.UserID)
		}
		return nil, nil, fmt.Errorf("lock user for update: %w", err)
	}

	// Пересчитываем стоимость заказа в граммах, проверяя каждую позицию.
	var totalMilli int64
	items := make([]model.OrderItem, 0, len(p.Items))
	for _, it := range p.Items {
		var name string
		err := tx.QueryRow(ctx, `SELECT name FROM products WHERE id = $1`, it.ProductID).Scan(&name)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, nil, fmt.Errorf("%w: product %d", ErrProductNotFound, it.ProductID)
			}
			return nil, nil, fmt.Errorf("get product: %w", err)
		}

		if !quota.ValidGrams(it.Grams) {
			return nil, nil, fmt.Errorf("%w: %v for product %s", ErrInvalidQuantity, it.Grams, name)
		}

		totalMilli += quota.GramsToMilli(it.Grams)
		items = append(items, model.OrderItem{
			ProductID: it.ProductID,
			Product:   name,
			Grams:     it.Grams,
		})
	}

	// Одна резервная позиция на пользователя в день.
	var duplicate bool
	err = tx.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM orders
		   WHERE user_id = $1 AND order_date = $2 AND status = $3
		 )`,
		p.UserID, p.Date, string(model.OrderStatusPending),
	).Scan(&duplicate)
	if err != nil {
		return nil, nil, fmt.Errorf("check pending order: %w", err)
	}
	if duplicate {
		return nil, nil, fmt.Errorf("%w: user %d, date %s",
			ErrDuplicatePending, p.UserID, p.Date.Format("2006-01-02"))
	}

	// Проверка квоты до записи заказа: заказ, который нельзя выполнить,
	// не должен попадать в книгу.
	year, month := p.Date.Year(), int(p.Date.Month())

	var reservedMilli, confirmedMilli int64
	err = tx.QueryRow(ctx,
		`SELECT reserved_milligrams, confirmed_milligrams
		 FROM user_monthly_stats
		 WHERE user_id = $1 AND year = $2 AND month = $3`,
		p.UserID, year, month,
	).Scan(&reservedMilli, &confirmedMilli)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, fmt.Errorf("get monthly stats: %w", err)
	}

	v := quota.Evaluate(quota.ResolveLimitMilli(clubLimit), reservedMilli+confirmedMilli, totalMilli)
	if !v.Accepted {
		return nil, &v, nil // rollback через defer
	}

	var (
		orderID   int64
		createdAt time.Time
	)
	err = tx.QueryRow(ctx,
		`INSERT INTO orders (user_id, order_date, order_hour, comment, total_cents, status)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at`,
		p.UserID, p.Date, p.Hour, p.Comment, p.TotalCents, string(model.OrderStatusPending),
	).Scan(&orderID, &createdAt)
	if err != nil {
		return nil, nil, fmt.Errorf("insert order: %w", err)
	}

	for _, it := range items {
		_, err := tx.Exec(ctx,
			`INSERT INTO order_items (order_id, product_id, milligrams) VALUES ($1, $2, $3)`,
			orderID, it.ProductID, quota.GramsToMilli(it.Grams),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("insert order item: %w", err)
		}
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO user_monthly_stats (user_id, year, month, reserved_milligrams)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id, year, month) DO UPDATE
		 SET reserved_milligrams = user_monthly_stats.reserved_milligrams + EXCLUDED.reserved_milligrams`,
		p.UserID, year, month, totalMilli,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("reserve grams: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("commit tx: %w", err)
	}

	userID := p.UserID
	return &model.Order{
		ID:         orderID,
		UserID:     &userID,
		Date:       p.Date,
		Hour:       p.Hour,
		Comment:    p.Comment,
		TotalCents: p.TotalCents,
		Status:     model.OrderStatusPending,
		Items:      items,
		CreatedAt:  createdAt,
	}, &v, nil
}

// CompleteOrder переводит заказ PENDING -> COMPLETED и переносит его граммы
// из зарезервированных в подтверждённые. Резерв уменьшается не ниже нуля:
// если части резерва уже нет, недостача всё равно добавляется в
// подтверждённые — сверка мягкая, подтверждённые всегда получают полный
// вес заказа.
func (r *PostgresRepository) CompleteOrder(ctx context.Context, orderID int64) (*model.Order, error) {
	var order *model.Order

	err := r.withRetry(ctx, func() error {
		var err error
		order, err = r.completeOrderTx(ctx, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}

	return order, nil
}

func (r *PostgresRepository) completeOrderTx(ctx context.Context, orderID int64) (*model.Order, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	o, err := lockOrder(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}

	if o.Status == model.OrderStatusCompleted {
		return nil, fmt.Errorf("%w: order %d", ErrOrderCompleted, orderID)
	}
	// Отменённый заказ терминален: его резерв уже возвращён, повторное
	// попадание граммов в книгу обошло бы проверку квоты.
	if o.Status == model.OrderStatusCancelled {
		return nil, fmt.Errorf("%w: cannot complete order %d", ErrOrderCancelled, orderID)
	}
	if o.UserID == nil {
		return nil, fmt.Errorf("%w: order %d", ErrOrderNoOwner, orderID)
	}

	items, totalMilli, err := loadOrderItems(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx,
		`UPDATE orders SET status = $2 WHERE id = $1`,
		orderID, string(model.OrderStatusCompleted),
	); err != nil {
		return nil, fmt.Errorf("update order status: %w", err)
	}

	// Upsert покрывает и заказы, чей месяц ещё не имеет записи в книге
	// (подтверждение без резерва у старых данных).
	year, month := o.Date.Year(), int(o.Date.Month())
	_, err = tx.Exec(ctx,
		`INSERT INTO user_monthly_stats (user_id, year, month, confirmed_milligrams, order_count)
		 VALUES ($1, $2, $3, $4, 1)
		 ON CONFLICT (user_id, year, month) DO UPDATE
		 SET reserved_milligrams = GREATEST(user_monthly_stats.reserved_milligrams - EXCLUDED.confirmed_milligrams, 0),
		     confirmed_milligrams = user_monthly_stats.confirmed_milligrams + EXCLUDED.confirmed_milligrams,
		     order_count = user_monthly_stats.order_count + 1`,
		*o.UserID, year, month, totalMilli,
	)
	if err != nil {
		return nil, fmt.Errorf("confirm grams: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	o.Status = model.OrderStatusCompleted
	o.Items = items
	return o, nil
}

// CancelOrder переводит заказ в CANCELLED и возвращает весь его резерв в
// месячную книгу. У заказа без владельца книга не трогается.
func (r *PostgresRepository) CancelOrder(ctx context.Context, orderID int64) (*model.Order, error) {
	var order *model.Order

	err := r.withRetry(ctx, func() error {
		var err error
		order, err = r.cancelOrderTx(ctx, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}

	return order, nil
}

func (r *PostgresRepository) cancelOrderTx(ctx context.Context, orderID int64) (*model.Order, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	o, err := lockOrder(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}

	if o.Status == model.OrderStatusCompleted {
		return nil, fmt.Errorf("%w: cannot cancel order %d", ErrOrderCompleted, orderID)
	}
	if o.Status == model.OrderStatusCancelled {
		return nil, fmt.Errorf("%w: order %d", ErrOrderCancelled, orderID)
	}

	items, totalMilli, err := loadOrderItems(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx,
		`UPDATE orders SET status = $2 WHERE id = $1`,
		orderID, string(model.OrderStatusCancelled),
	); err != nil {
		return nil, fmt.Errorf("update order status: %w", err)
	}

	if o.UserID != nil && totalMilli > 0 {
		if err := releaseReserved(ctx, tx, *o.UserID, o.Date, totalMilli); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	o.Status = model.OrderStatusCancelled
	o.Items = items
	return o, nil
}

// DeleteOrder безвозвратно удаляет незавершённый заказ вместе с позициями.
// Резерв возвращается только у PENDING-заказа: у отменённого он уже был
// возвращён при отмене, второй раз освобождать нечего.
func (r *PostgresRepository) DeleteOrder(ctx context.Context, orderID int64) (*model.Order, error) {
	var order *model.Order

	err := r.withRetry(ctx, func() error {
		var err error
		order, err = r.deleteOrderTx(ctx, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}

	return order, nil
}

func (r *PostgresRepository) deleteOrderTx(ctx context.Context, orderID int64) (*model.Order, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	o, err := lockOrder(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}

	if o.Status == model.OrderStatusCompleted {
		return nil, fmt.Errorf("%w: cannot delete order %d", ErrOrderCompleted, orderID)
	}

	items, totalMilli, err := loadOrderItems(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}

	if o.Status == model.OrderStatusPending && o.UserID != nil && totalMilli > 0 {
		if err := releaseReserved(ctx, tx, *o.UserID, o.Date, totalMilli); err != nil {
			return nil, err
		}
	}

	// Позиции удаляются каскадом.
	if _, err := tx.Exec(ctx, `DELETE FROM orders WHERE id = $1`, orderID); err != nil {
		return nil, fmt.Errorf("delete order: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	o.Items = items
	return o, nil
}

func lockOrder(ctx context.Context, tx pgx.Tx, orderID int64) (*model.Order, error) {
	row := tx.QueryRow(ctx,
		`SELECT id, user_id, order_date, order_hour, comment, total_cents, status, created_at
		 FROM orders
		 WHERE id = $1
		 FOR UPDATE`,
		orderID,
	)

	var (
		o      model.Order
		status string
	)
	err := row.Scan(&o.ID, &o.UserID, &o.Date, &o.Hour, &o.Comment, &o.TotalCents, &status, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: id %d", ErrOrderNotFound, orderID)
		}
		return nil, fmt.Errorf("lock order: %w", err)
	}

	o.Status = model.OrderStatus(status)
	return &o, nil
}

func loadOrderItems(ctx context.Context, tx pgx.Tx, orderID int64) ([]model.OrderItem, int64, error) {
	rows, err := tx.Query(ctx,
		`SELECT i.product_id, p.name, i.milligrams
		 FROM order_items i
		 JOIN products p ON p.id = i.product_id
		 WHERE i.order_id = $1`,
		orderID,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("select order items: %w", err)
	}
	defer rows.Close()

	var (
		items      []model.OrderItem
		totalMilli int64
	)
	for rows.Next() {
		var (
			productID int64
			name      string
			milli     int64
		)
		if err := rows.Scan(&productID, &name, &milli); err != nil {
			return nil, 0, fmt.Errorf("scan order item: %w", err)
		}

		totalMilli += milli
		items = append(items, model.OrderItem{
			ProductID: productID,
			Product:   name,
			Grams:     quota.MilliToGrams(milli),
		})
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("rows error: %w", err)
	}

	return items, totalMilli, nil
}

func releaseReserved(ctx context.Context, tx pgx.Tx, userID int64, orderDate time.Time, totalMilli int64) error {
	// Резерв не может уйти в минус, даже если книга разошлась с заказами.
	_, err := tx.Exec(ctx,
		`INSERT INTO user_monthly_stats (user_id, year, month)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (user_id, year, month) DO UPDATE
		 SET reserved_milligrams = GREATEST(user_monthly_stats.reserved_milligrams - $4, 0)`,
		userID, orderDate.Year(), int(orderDate.Month()), totalMilli,
	)
	if err != nil {
		return fmt.Errorf("release reserved grams: %w", err)
	}
	return nil
}

// GetOrdersByUser возвращает заказы пользователя с позициями, новые первыми.
func (r *PostgresRepository) GetOrdersByUser(ctx context.Context, userID int64) ([]model.Order, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, order_date, order_hour, comment, total_cents, status, created_at
		 FROM orders
		 WHERE user_id = $1
		 ORDER BY order_date DESC, order_hour DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		var (
			o      model.Order
			status string
		)
		if err := rows.Scan(&o.ID, &o.UserID, &o.Date, &o.Hour, &o.Comment, &o.TotalCents, &status, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		o.Status = model.OrderStatus(status)
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	if len(orders) == 0 {
		return orders, nil
	}

	ids := make([]int64, 0, len(orders))
	index := make(map[int64]int, len(orders))
	for i, o := range orders {
		ids = append(ids, o.ID)
		index[o.ID] = i
	}

	itemRows, err := r.pool.Query(ctx,
		`SELECT i.order_id, i.product_id, p.name, i.milligrams
		 FROM order_items i
		 JOIN products p ON p.id = i.product_id
		 WHERE i.order_id = ANY($1)`,
		ids,
	)
	if err != nil {
		return nil, fmt.Errorf("select order items: %w", err)
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var (
			orderID   int64
			productID int64
			name      string
			milli     int64
		)
		if err := itemRows.Scan(&orderID, &productID, &name, &milli); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}

		i := index[orderID]
		orders[i].Items = append(orders[i].Items, model.OrderItem{
			ProductID: productID,
			Product:   name,
			Grams:     quota.MilliToGrams(milli),
		})
	}
	if err := itemRows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return orders, nil
}

// GetMonthlyStats возвращает записи месячной книги пользователя по
// возрастанию (год, месяц), опционально только за указанный год.
func (r *PostgresRepository) GetMonthlyStats(ctx context.Context, userID int64, year *int) ([]model.MonthlyStats, error) {
	var (
		rows pgx.Rows
		err  error
	)

	if year == nil {
		rows, err = r.pool.Query(ctx,
			`SELECT year, month, reserved_milligrams, confirmed_milligrams, order_count
			 FROM user_monthly_stats
			 WHERE user_id = $1
			 ORDER BY year, month`,
			userID,
		)
	} else {
		rows, err = r.pool.Query(ctx,
			`SELECT year, month, reserved_milligrams, confirmed_milligrams, order_count
			 FROM user_monthly_stats
			 WHERE user_id = $1 AND year = $2
			 ORDER BY month`,
			userID, *year,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("select monthly stats: %w", err)
	}
	defer rows.Close()

	var res []model.MonthlyStats
	for rows.Next() {
		var (
			s              model.MonthlyStats
			reservedMilli  int64
			confirmedMilli int64
		)
		if err := rows.Scan(&s.Year, &s.Month, &reservedMilli, &confirmedMilli, &s.OrderCount); err != nil {
			return nil, fmt.Errorf("scan monthly stats: %w", err)
		}

		s.ReservedGrams = quota.MilliToGrams(reservedMilli)
		s.ConfirmedGrams = quota.MilliToGrams(confirmedMilli)
		res = append(res, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// GetClubEmailForUser возвращает контактный адрес клуба пользователя.
// Пустая строка означает, что уведомлять некого.
func (r *PostgresRepository) GetClubEmailForUser(ctx context.Context, userID int64) (string, error) {
	var email string
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(c.contact_email, '')
		 FROM users u
		 LEFT JOIN clubs c ON c.id = u.club_id
		 WHERE u.id = $1`,
		userID,
	).Scan(&email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("%w: id %d", ErrUserNotFound, userID)
		}
		return "", fmt.Errorf("get club email: %w", err)
	}

	return email, nil
}
