// Package handler содержит HTTP-обработчики API сервиса клубных заказов.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/clubhouse-system/internal/middleware"
	"github.com/mmeshcher/clubhouse-system/internal/model"
	"github.com/mmeshcher/clubhouse-system/internal/repository"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RegisterUser(ctx context.Context, login, password string, clubID *int64) (int64, error)
	AuthenticateUser(ctx context.Context, login, password string) (int64, error)
	CreateOrder(ctx context.Context, p repository.CreateOrderParams) (*model.Order, *model.QuotaVerdict, error)
	CompleteOrder(ctx context.Context, orderID int64) (*model.Order, error)
	CancelOrder(ctx context.Context, orderID int64) (*model.Order, error)
	DeleteOrder(ctx context.Context, orderID int64) (*model.Order, error)
	GetOrdersByUser(ctx context.Context, userID int64) ([]model.Order, error)
	GetMonthlyStats(ctx context.Context, userID int64, year *int) ([]model.MonthlyStats, error)
}

// Handler реализует HTTP-обработчики API сервиса клубных заказов.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

type credentialsRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
	ClubID   *int64 `json:"club_id,omitempty"`
}

// Register обрабатывает регистрацию нового участника клуба.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Login == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	userID, err := h.service.RegisterUser(r.Context(), req.Login, req.Password, req.ClubID)
	if err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
			return
		}
		h.logger.Error("register user error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.authMiddleware.SetAuthCookie(w, userID)
	w.WriteHeader(http.StatusOK)
}

// Login выполняет аутентификацию пользователя и установку cookie.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Login == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	userID, err := h.service.AuthenticateUser(r.Context(), req.Login, req.Password)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) || err.Error() == "invalid credentials" {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		h.logger.Error("login user error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.authMiddleware.SetAuthCookie(w, userID)
	w.WriteHeader(http.StatusOK)
}

type orderItemRequest struct {
	ProductID int64   `json:"product_id"`
	Quantity  float64 `json:"quantity"`
}

type createOrderRequest struct {
	Date    string             `json:"date"`
	Hour    string             `json:"time"`
	Comment string             `json:"comment"`
	Total   float64            `json:"total"`
	Items   []orderItemRequest `json:"items"`
}

type orderItemResponse struct {
	ProductID int64   `json:"product_id"`
	Product   string  `json:"product"`
	Grams     float64 `json:"grams"`
}

type orderResponse struct {
	ID        int64               `json:"id"`
	Date      string              `json:"date"`
	Hour      string              `json:"time,omitempty"`
	Comment   string              `json:"comment,omitempty"`
	Total     float64             `json:"total"`
	Status    string              `json:"status"`
	Items     []orderItemResponse `json:"items,omitempty"`
	CreatedAt string              `json:"created_at"`
}

type createOrderResponse struct {
	Order orderResponse      `json:"order"`
	Quota model.QuotaVerdict `json:"quota"`
}

type quotaRejectionResponse struct {
	Error string             `json:"error"`
	Quota model.QuotaVerdict `json:"quota"`
}

func toOrderResponse(o *model.Order) orderResponse {
	resp := orderResponse{
		ID:        o.ID,
		Date:      o.Date.Format("2006-01-02"),
		Hour:      o.Hour,
		Comment:   o.Comment,
		Total:     float64(o.TotalCents) / 100,
		Status:    string(o.Status),
		CreatedAt: o.CreatedAt.Format(time.RFC3339),
	}
	for _, it := range o.Items {
		resp.Items = append(resp.Items, orderItemResponse{
			ProductID: it.ProductID,
			Product:   it.Product,
			Grams:     it.Grams,
		})
	}
	return resp
}

// CreateOrder принимает новый заказ текущего пользователя. Отказ по квоте
// возвращается как 422 с полным вердиктом, а не как безликая ошибка.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		http.Error(w, "invalid date, want YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	if len(req.Items) == 0 || req.Total <= 0 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	params := repository.CreateOrderParams{
		UserID:     userID,
		Date:       date,
		Hour:       req.Hour,
		Comment:    req.Comment,
		TotalCents: int64(math.Round(req.Total * 100)),
	}
	for _, it := range req.Items {
		params.Items = append(params.Items, repository.OrderItemParams{
			ProductID: it.ProductID,
			Grams:     it.Quantity,
		})
	}

	order, verdict, err := h.service.CreateOrder(r.Context(), params)
	if err != nil {
		status := statusForError(err)
		if status == http.StatusInternalServerError {
			h.logger.Error("create order error", zap.Error(err), zap.Int64("userID", userID))
		}
		http.Error(w, err.Error(), status)
		return
	}

	if order == nil {
		// Квота не позволила: вердикт содержит лимит, занятое и доступное.
		writeJSON(w, http.StatusUnprocessableEntity, quotaRejectionResponse{
			Error: fmt.Sprintf("monthly limit exceeded: limit %.2fg, used %.2fg, available %.2fg, requested %.2fg",
				verdict.MonthlyLimit, verdict.UsedGrams, verdict.AvailableGrams, verdict.RequestedGrams),
			Quota: *verdict,
		})
		return
	}

	writeJSON(w, http.StatusCreated, createOrderResponse{
		Order: toOrderResponse(order),
		Quota: *verdict,
	})
}

// GetOrders возвращает список заказов текущего пользователя.
func (h *Handler) GetOrders(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	orders, err := h.service.GetOrdersByUser(r.Context(), userID)
	if err != nil {
		h.logger.Error("get orders error", zap.Error(err), zap.Int64("userID", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(orders) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]orderResponse, 0, len(orders))
	for i := range orders {
		resp = append(resp, toOrderResponse(&orders[i]))
	}

	writeJSON(w, http.StatusOK, resp)
}

// CompleteOrder переводит заказ в COMPLETED.
func (h *Handler) CompleteOrder(w http.ResponseWriter, r *http.Request) {
	h.transitionOrder(w, r, h.service.CompleteOrder, "complete order error")
}

// CancelOrder переводит заказ в CANCELLED.
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	h.transitionOrder(w, r, h.service.CancelOrder, "cancel order error")
}

// DeleteOrder удаляет незавершённый заказ.
func (h *Handler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	h.transitionOrder(w, r, h.service.DeleteOrder, "delete order error")
}

func (h *Handler) transitionOrder(w http.ResponseWriter, r *http.Request, op func(context.Context, int64) (*model.Order, error), logMsg string) {
	orderID, err := strconv.ParseInt(chi.URLParam(r, "orderID"), 10, 64)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	order, err := op(r.Context(), orderID)
	if err != nil {
		status := statusForError(err)
		if status == http.StatusInternalServerError {
			h.logger.Error(logMsg, zap.Error(err), zap.Int64("orderID", orderID))
		}
		http.Error(w, err.Error(), status)
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

// GetMonthlyStats возвращает месячную книгу текущего пользователя,
// опционально только за год из query-параметра.
func (h *Handler) GetMonthlyStats(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var year *int
	if v := r.URL.Query().Get("year"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			http.Error(w, "invalid year", http.StatusBadRequest)
			return
		}
		year = &parsed
	}

	stats, err := h.service.GetMonthlyStats(r.Context(), userID, year)
	if err != nil {
		h.logger.Error("get monthly stats error", zap.Error(err), zap.Int64("userID", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(stats) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// statusForError — единая точка соответствия ошибок ядра HTTP-статусам.
func statusForError(err error) int {
	switch {
	case errors.Is(err, repository.ErrUserNotFound),
		errors.Is(err, repository.ErrOrderNotFound),
		errors.Is(err, repository.ErrProductNotFound):
		return http.StatusNotFound
	case errors.Is(err, repository.ErrInvalidQuantity),
		errors.Is(err, repository.ErrOrderNoOwner):
		return http.StatusBadRequest
	case errors.Is(err, repository.ErrDuplicatePending),
		errors.Is(err, repository.ErrOrderCompleted),
		errors.Is(err, repository.ErrOrderCancelled),
		errors.Is(err, repository.ErrUserExists):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}
