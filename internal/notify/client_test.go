package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mmeshcher/clubhouse-system/internal/model"
)

func testOrder() *model.Order {
	userID := int64(7)
	return &model.Order{
		ID:         15,
		UserID:     &userID,
		Date:       time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC),
		Hour:       "18:30",
		TotalCents: 4550,
		Status:     model.OrderStatusPending,
		Items: []model.OrderItem{
			{ProductID: 1, Product: "Amnesia", Grams: 10},
			{ProductID: 2, Product: "Critical", Grams: 5},
		},
	}
}

func TestSendNewOrderNotification_OK(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/api/emails" {
			t.Fatalf("path = %s, want /api/emails", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-token" {
			t.Fatalf("authorization = %q, want bearer token", auth)
		}

		var payload orderNotification
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		if payload.To != "club@example.com" {
			t.Fatalf("to = %q, want club@example.com", payload.To)
		}
		if payload.OrderID != 15 {
			t.Fatalf("order id = %d, want 15", payload.OrderID)
		}
		if len(payload.Items) != 2 || payload.Items[0].Grams != 10 {
			t.Fatalf("unexpected items: %+v", payload.Items)
		}

		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "test-token")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := client.SendNewOrderNotification(ctx, testOrder(), "club@example.com"); err != nil {
		t.Fatalf("SendNewOrderNotification error: %v", err)
	}
}

func TestSendNewOrderNotification_RelayRejects(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 4xx не ретраится клиентом, тест не ждёт бэкоффов.
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err := client.SendNewOrderNotification(ctx, testOrder(), "club@example.com")
	if err == nil {
		t.Fatalf("expected error for rejected notification")
	}
}

func TestSendNewOrderNotification_NotConfigured(t *testing.T) {
	client := NewClient("", "")

	err := client.SendNewOrderNotification(context.Background(), testOrder(), "club@example.com")
	if err == nil {
		t.Fatalf("expected error for unconfigured client")
	}
}

func TestSendNewOrderNotification_EmptyEmail(t *testing.T) {
	client := NewClient("localhost:9999", "")

	err := client.SendNewOrderNotification(context.Background(), testOrder(), "")
	if err == nil {
		t.Fatalf("expected error for empty club email")
	}
}
