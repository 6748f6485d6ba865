package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/mmeshcher/clubhouse-system/internal/model"
	"github.com/mmeshcher/clubhouse-system/internal/repository"
)

type stubRepo struct {
	createUserID  int64
	createUserErr error

	getUser    *model.User
	getUserErr error

	createOrderResp    *model.Order
	createOrderVerdict *model.QuotaVerdict
	createOrderErr     error
	createOrderCalls   int

	completeResp *model.Order
	completeErr  error

	cancelResp *model.Order
	cancelErr  error

	deleteResp *model.Order
	deleteErr  error

	orders    []model.Order
	ordersErr error

	stats    []model.MonthlyStats
	statsErr error

	clubEmail    string
	clubEmailErr error
}

func (s *stubRepo) Close() error { return nil }

func (s *stubRepo) CreateUser(ctx context.Context, login string, passwordHash []byte, clubID *int64) (int64, error) {
	return s.createUserID, s.createUserErr
}

func (s *stubRepo) GetUserByLogin(ctx context.Context, login string) (*model.User, error) {
	return s.getUser, s.getUserErr
}

func (s *stubRepo) CreateOrder(ctx context.Context, p repository.CreateOrderParams) (*model.Order, *model.QuotaVerdict, error) {
	s.createOrderCalls++
	return s.createOrderResp, s.createOrderVerdict, s.createOrderErr
}

func (s *stubRepo) CompleteOrder(ctx context.Context, orderID int64) (*model.Order, error) {
	return s.completeResp, s.completeErr
}

func (s *stubRepo) CancelOrder(ctx context.Context, orderID int64) (*model.Order, error) {
	return s.cancelResp, s.cancelErr
}

func (s *stubRepo) DeleteOrder(ctx context.Context, orderID int64) (*model.Order, error) {
	return s.deleteResp, s.deleteErr
}

func (s *stubRepo) GetOrdersByUser(ctx context.Context, userID int64) ([]model.Order, error) {
	return s.orders, s.ordersErr
}

func (s *stubRepo) GetMonthlyStats(ctx context.Context, userID int64, year *int) ([]model.MonthlyStats, error) {
	return s.stats, s.statsErr
}

func (s *stubRepo) GetClubEmailForUser(ctx context.Context, userID int64) (string, error) {
	return s.clubEmail, s.clubEmailErr
}

type stubNotifier struct {
	err  error
	sent chan string
}

func newStubNotifier(err error) *stubNotifier {
	return &stubNotifier{err: err, sent: make(chan string, 1)}
}

func (n *stubNotifier) SendNewOrderNotification(ctx context.Context, order *model.Order, clubEmail string) error {
	n.sent <- clubEmail
	return n.err
}

func pendingOrder(id, userID int64) *model.Order {
	return &model.Order{
		ID:     id,
		UserID: &userID,
		Date:   time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC),
		Status: model.OrderStatusPending,
		Items: []model.OrderItem{
			{ProductID: 1, Product: "Amnesia", Grams: 10},
		},
	}
}

func acceptedVerdict() *model.QuotaVerdict {
	after := 30.0
	return &model.QuotaVerdict{
		Accepted:            true,
		MonthlyLimit:        40,
		AvailableGrams:      40,
		RequestedGrams:      10,
		AvailableAfterOrder: &after,
	}
}

func orderParams() repository.CreateOrderParams {
	return repository.CreateOrderParams{
		UserID: 1,
		Date:   time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC),
		Items: []repository.OrderItemParams{
			{ProductID: 1, Grams: 10},
		},
	}
}

func TestHashPasswordDeterministic(t *testing.T) {
	a := hashPassword("user", "pass")
	b := hashPassword("user", "pass")
	c := hashPassword("user", "other")

	if string(a) != string(b) {
		t.Fatalf("hashPassword must be deterministic, got %x and %x", a, b)
	}
	if string(a) == string(c) {
		t.Fatalf("different passwords must produce different hashes")
	}
}

func TestRegisterUser_PropagatesDuplicateError(t *testing.T) {
	repo := &stubRepo{
		createUserErr: repository.ErrUserExists,
	}
	svc := NewService(repo, nil, nil)

	_, err := svc.RegisterUser(context.Background(), "login", "pass", nil)
	if !errors.Is(err, repository.ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
}

func TestAuthenticateUser_InvalidCredentials(t *testing.T) {
	hashed := hashPassword("user", "correct")
	repo := &stubRepo{
		getUser: &model.User{
			ID:           1,
			Login:        "user",
			PasswordHash: hashed,
		},
	}

	svc := NewService(repo, nil, nil)

	_, err := svc.AuthenticateUser(context.Background(), "user", "wrong")
	if err == nil {
		t.Fatalf("expected error for invalid credentials")
	}
}

func TestCreateOrder_RejectsEmptyItems(t *testing.T) {
	repo := &stubRepo{}
	svc := NewService(repo, nil, nil)

	_, _, err := svc.CreateOrder(context.Background(), repository.CreateOrderParams{UserID: 1})
	if !errors.Is(err, repository.ErrInvalidQuantity) {
		t.Fatalf("expected ErrInvalidQuantity, got %v", err)
	}
	if repo.createOrderCalls != 0 {
		t.Fatalf("repository must not be called for an order without items")
	}
}

func TestCreateOrder_QuotaRejectedIsNotAnError(t *testing.T) {
	rejected := &model.QuotaVerdict{
		Accepted:       false,
		MonthlyLimit:   40,
		UsedGrams:      25,
		AvailableGrams: 15,
		RequestedGrams: 20,
	}
	repo := &stubRepo{createOrderVerdict: rejected}
	notifier := newStubNotifier(nil)
	svc := NewService(repo, notifier, nil)

	order, verdict, err := svc.CreateOrder(context.Background(), orderParams())
	if err != nil {
		t.Fatalf("quota rejection must not be an error, got %v", err)
	}
	if order != nil {
		t.Fatalf("rejected order must be nil, got %+v", order)
	}
	if verdict == nil || verdict.Accepted {
		t.Fatalf("expected rejected verdict, got %+v", verdict)
	}

	select {
	case email := <-notifier.sent:
		t.Fatalf("notification must not be sent for rejected order, got %q", email)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestCreateOrder_DispatchesNotification(t *testing.T) {
	repo := &stubRepo{
		createOrderResp:    pendingOrder(15, 1),
		createOrderVerdict: acceptedVerdict(),
		clubEmail:          "club@example.com",
	}
	notifier := newStubNotifier(nil)
	svc := NewService(repo, notifier, nil)

	order, verdict, err := svc.CreateOrder(context.Background(), orderParams())
	if err != nil {
		t.Fatalf("CreateOrder error: %v", err)
	}
	if order == nil || !verdict.Accepted {
		t.Fatalf("expected accepted order, got %+v / %+v", order, verdict)
	}

	select {
	case email := <-notifier.sent:
		if email != "club@example.com" {
			t.Fatalf("notification sent to %q, want club@example.com", email)
		}
	case <-time.After(time.Second):
		t.Fatalf("notification was not dispatched")
	}
}

func TestCreateOrder_NotifierFailureDoesNotFailCreation(t *testing.T) {
	repo := &stubRepo{
		createOrderResp:    pendingOrder(15, 1),
		createOrderVerdict: acceptedVerdict(),
		clubEmail:          "club@example.com",
	}
	notifier := newStubNotifier(errors.New("relay is down"))
	svc := NewService(repo, notifier, nil)

	order, _, err := svc.CreateOrder(context.Background(), orderParams())
	if err != nil {
		t.Fatalf("notifier failure must not fail creation, got %v", err)
	}
	if order == nil {
		t.Fatalf("expected created order")
	}

	select {
	case <-notifier.sent:
	case <-time.After(time.Second):
		t.Fatalf("notification was not attempted")
	}
}

func TestCreateOrder_NoClubEmailSkipsNotification(t *testing.T) {
	repo := &stubRepo{
		createOrderResp:    pendingOrder(15, 1),
		createOrderVerdict: acceptedVerdict(),
		clubEmail:          "",
	}
	notifier := newStubNotifier(nil)
	svc := NewService(repo, notifier, nil)

	if _, _, err := svc.CreateOrder(context.Background(), orderParams()); err != nil {
		t.Fatalf("CreateOrder error: %v", err)
	}

	select {
	case email := <-notifier.sent:
		t.Fatalf("notification must be skipped without club email, got %q", email)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestCompleteOrder_PassesThroughConflict(t *testing.T) {
	repo := &stubRepo{
		completeErr: fmt.Errorf("%w: order 15", repository.ErrOrderCompleted),
	}
	svc := NewService(repo, nil, nil)

	_, err := svc.CompleteOrder(context.Background(), 15)
	if !errors.Is(err, repository.ErrOrderCompleted) {
		t.Fatalf("expected ErrOrderCompleted, got %v", err)
	}
}

func TestGetMonthlyStats_PassThrough(t *testing.T) {
	repo := &stubRepo{
		stats: []model.MonthlyStats{
			{Year: 2025, Month: 6, ReservedGrams: 10, ConfirmedGrams: 15, OrderCount: 2},
		},
	}
	svc := NewService(repo, nil, nil)

	stats, err := svc.GetMonthlyStats(context.Background(), 1, nil)
	if err != nil {
		t.Fatalf("GetMonthlyStats error: %v", err)
	}
	if len(stats) != 1 || stats[0].ConfirmedGrams != 15 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}
