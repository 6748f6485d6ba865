// Package service реализует бизнес-логику сервиса клубных заказов.
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/clubhouse-system/internal/model"
	"github.com/mmeshcher/clubhouse-system/internal/repository"
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	CreateUser(ctx context.Context, login string, passwordHash []byte, clubID *int64) (int64, error)
	GetUserByLogin(ctx context.Context, login string) (*model.User, error)
	CreateOrder(ctx context.Context, p repository.CreateOrderParams) (*model.Order, *model.QuotaVerdict, error)
	CompleteOrder(ctx context.Context, orderID int64) (*model.Order, error)
	CancelOrder(ctx context.Context, orderID int64) (*model.Order, error)
	DeleteOrder(ctx context.Context, orderID int64) (*model.Order, error)
	GetOrdersByUser(ctx context.Context, userID int64) ([]model.Order, error)
	GetMonthlyStats(ctx context.Context, userID int64, year *int) ([]model.MonthlyStats, error)
	GetClubEmailForUser(ctx context.Context, userID int64) (string, error)
}

// Notifier отправляет уведомление клубу о новом заказе.
type Notifier interface {
	SendNewOrderNotification(ctx context.Context, order *model.Order, clubEmail string) error
}

const notifyTimeout = 30 * time.Second

// Service содержит бизнес-логику сервиса клубных заказов.
type Service struct {
	repo     Repository
	notifier Notifier
	logger   *zap.Logger
}

// NewService создаёт новый сервис с указанным репозиторием и отправителем уведомлений.
func NewService(repo Repository, notifier Notifier, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:     repo,
		notifier: notifier,
		logger:   logger,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// RegisterUser регистрирует нового участника клуба.
func (s *Service) RegisterUser(ctx context.Context, login, password string, clubID *int64) (int64, error) {
	hashed := hashPassword(login, password)
	id, err := s.repo.CreateUser(ctx, login, hashed, clubID)
	if err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			return 0, repository.ErrUserExists
		}
		return 0, err
	}
	return id, nil
}

// AuthenticateUser проверяет логин и пароль пользователя и возвращает его идентификатор.
func (s *Service) AuthenticateUser(ctx context.Context, login, password string) (int64, error) {
	u, err := s.repo.GetUserByLogin(ctx, login)
	if err != nil {
		return 0, err
	}

	hashed := hashPassword(login, password)
	if hex.EncodeToString(hashed) != hex.EncodeToString(u.PasswordHash) {
		return 0, errors.New("invalid credentials")
	}

	return u.ID, nil
}

func hashPassword(login, password string) []byte {
	sum := sha256.Sum256([]byte(login + ":" + password))
	return sum[:]
}

// CreateOrder создаёт заказ и резервирует его граммы в месячной книге.
// Отказ по квоте — не ошибка: возвращается (nil, вердикт, nil).
// После успешного коммита клубу отправляется уведомление; его судьба
// никак не влияет на результат создания заказа.
func (s *Service) CreateOrder(ctx context.Context, p repository.CreateOrderParams) (*model.Order, *model.QuotaVerdict, error) {
	if len(p.Items) == 0 {
		return nil, nil, fmt.Errorf("%w: order has no items", repository.ErrInvalidQuantity)
	}

	order, verdict, err := s.repo.CreateOrder(ctx, p)
	if err != nil || order == nil {
		return order, verdict, err
	}

	s.dispatchNewOrderNotification(order)

	return order, verdict, nil
}

// dispatchNewOrderNotification отправляет уведомление в отдельной горутине.
// Вызывающий никогда не ждёт её завершения: ошибки только логируются.
func (s *Service) dispatchNewOrderNotification(order *model.Order) {
	if s.notifier == nil || order.UserID == nil {
		return
	}

	userID := *order.UserID

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()

		email, err := s.repo.GetClubEmailForUser(ctx, userID)
		if err != nil {
			s.logger.Error("resolve club email",
				zap.Error(err), zap.Int64("orderID", order.ID))
			return
		}
		if email == "" {
			return
		}

		if err := s.notifier.SendNewOrderNotification(ctx, order, email); err != nil {
			s.logger.Error("send new order notification",
				zap.Error(err), zap.Int64("orderID", order.ID))
		}
	}()
}

// CompleteOrder завершает заказ и подтверждает его граммы в книге.
func (s *Service) CompleteOrder(ctx context.Context, orderID int64) (*model.Order, error) {
	return s.repo.CompleteOrder(ctx, orderID)
}

// CancelOrder отменяет заказ и возвращает его резерв.
func (s *Service) CancelOrder(ctx context.Context, orderID int64) (*model.Order, error) {
	return s.repo.CancelOrder(ctx, orderID)
}

// DeleteOrder удаляет незавершённый заказ, освобождая резерв.
func (s *Service) DeleteOrder(ctx context.Context, orderID int64) (*model.Order, error) {
	return s.repo.DeleteOrder(ctx, orderID)
}

// GetOrdersByUser возвращает список заказов пользователя.
func (s *Service) GetOrdersByUser(ctx context.Context, userID int64) ([]model.Order, error) {
	return s.repo.GetOrdersByUser(ctx, userID)
}

// GetMonthlyStats возвращает месячную книгу пользователя.
func (s *Service) GetMonthlyStats(ctx context.Context, userID int64, year *int) ([]model.MonthlyStats, error) {
	return s.repo.GetMonthlyStats(ctx, userID, year)
}
