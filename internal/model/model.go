// Package model содержит доменные сущности сервиса клубных заказов.
package model

import "time"

// User представляет зарегистрированного участника клуба.
type User struct {
	ID           int64
	Login        string
	PasswordHash []byte
	ClubID       *int64
	CreatedAt    time.Time
}

// OrderStatus описывает состояние жизненного цикла заказа.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusCompleted OrderStatus = "COMPLETED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// OrderItem описывает позицию заказа: товар и его количество в граммах.
type OrderItem struct {
	ProductID int64
	Product   string
	Grams     float64
}

// Order описывает заказ участника клуба. UserID равен nil у осиротевших
// заказов, оставшихся после удаления пользователя.
type Order struct {
	ID         int64
	UserID     *int64
	Date       time.Time
	Hour       string
	Comment    string
	TotalCents int64
	Status     OrderStatus
	Items      []OrderItem
	CreatedAt  time.Time
}

// MonthlyStats — запись месячной книги потребления пользователя:
// зарезервированные и подтверждённые граммы за (год, месяц).
type MonthlyStats struct {
	Year           int     `json:"year"`
	Month          int     `json:"month"`
	ReservedGrams  float64 `json:"reserved"`
	ConfirmedGrams float64 `json:"confirmed"`
	OrderCount     int     `json:"orders"`
}

// QuotaVerdict — результат проверки заказа против месячного лимита.
// Отказ — ожидаемый бизнес-исход, а не ошибка: вердикт содержит все
// числа, необходимые для сообщения пользователю.
type QuotaVerdict struct {
	Accepted            bool     `json:"accepted"`
	MonthlyLimit        float64  `json:"monthly_limit"`
	UsedGrams           float64  `json:"used"`
	AvailableGrams      float64  `json:"available"`
	RequestedGrams      float64  `json:"requested"`
	AvailableAfterOrder *float64 `json:"available_after_order,omitempty"`
}
