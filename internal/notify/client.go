// Package notify предоставляет клиент почтового релея для уведомлений клуба.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/mmeshcher/clubhouse-system/internal/model"
)

// Client инкапсулирует HTTP-взаимодействие с почтовым релеем.
// Доставка best-effort: релей бывает недоступен, поэтому запросы
// ретраятся, а окончательная неудача — забота вызывающего лога.
type Client struct {
	baseURL    string
	token      string
	httpClient *retryablehttp.Client
}

type itemLine struct {
	Product string  `json:"product"`
	Grams   float64 `json:"grams"`
}

type orderNotification struct {
	To      string     `json:"to"`
	Subject string     `json:"subject"`
	OrderID int64      `json:"order_id"`
	Date    string     `json:"date"`
	Hour    string     `json:"time,omitempty"`
	Status  string     `json:"status"`
	Total   float64    `json:"total"`
	Items   []itemLine `json:"items"`
}

// NewClient создаёт клиент релея по указанному адресу и токену авторизации.
func NewClient(baseURL, token string) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 2
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.HTTPClient.Timeout = 5 * time.Second
	rc.Logger = nil

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: rc,
	}
}

// SendNewOrderNotification отправляет клубу письмо о новом заказе.
func (c *Client) SendNewOrderNotification(ctx context.Context, order *model.Order, clubEmail string) error {
	if c == nil || c.baseURL == "" {
		return fmt.Errorf("notify client not configured")
	}
	if clubEmail == "" {
		return fmt.Errorf("club email is required")
	}

	base := c.baseURL
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	payload := orderNotification{
		To:      clubEmail,
		Subject: fmt.Sprintf("New order #%d", order.ID),
		OrderID: order.ID,
		Date:    order.Date.Format("2006-01-02"),
		Hour:    order.Hour,
		Status:  string(order.Status),
		Total:   float64(order.TotalCents) / 100,
	}
	for _, it := range order.Items {
		payload.Items = append(payload.Items, itemLine{
			Product: it.Product,
			Grams:   it.Grams,
		})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	url := fmt.Sprintf("%s/api/emails", base)

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	return nil
}
