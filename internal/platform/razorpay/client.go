package razorpay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/brightmoor/memberpay/pkg/apperr"
	"github.com/brightmoor/memberpay/pkg/config"
)

const defaultBaseURL = "https://api.razorpay.com/v1"

// Order is the gateway's order entity, created before any payment happens.
type Order struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

// Payment is the gateway's payment entity as returned by the per-order
// payment listing. Status values follow the gateway: created, authorized,
// captured, refunded, failed.
type Payment struct {
	ID       string `json:"id"`
	OrderID  string `json:"order_id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
	Email    string `json:"email"`
	Contact  string `json:"contact"`
	Method   string `json:"method"`
}

func (p *Payment) Captured() bool { return p != nil && p.Status == "captured" }

// Client talks to the gateway REST API with basic auth and a bounded timeout.
type Client struct {
	cfg     config.RazorpayConfig
	baseURL string
	http    *http.Client
}

func NewClient(cfg *config.Config) *Client {
	return &Client{
		cfg:     cfg.Razorpay,
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// Configured reports whether API credentials are present. Callers must check
// before use; an unconfigured client returns apperr.ErrUnavailable.
func (c *Client) Configured() bool { return c.cfg.Configured() }

// KeyID is the publishable key handed to checkout clients.
func (c *Client) KeyID() string { return c.cfg.KeyID }

func (c *Client) Currency() string { return c.cfg.Currency }

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if !c.Configured() {
		return apperr.ErrUnavailable
	}
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.cfg.KeyID, c.cfg.KeySecret)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrTransientGateway, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: gateway returned %d", apperr.ErrTransientGateway, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error struct {
				Code        string `json:"code"`
				Description string `json:"description"`
			} `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return fmt.Errorf("gateway rejected %s %s: %s %s", method, path, apiErr.Error.Code, apiErr.Error.Description)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// CreateOrder opens a payment intent with the gateway.
func (c *Client) CreateOrder(ctx context.Context, amount int64, currency, receipt string, notes map[string]string) (*Order, error) {
	payload := map[string]any{
		"amount":   amount,
		"currency": currency,
		"receipt":  receipt,
	}
	if len(notes) > 0 {
		payload["notes"] = notes
	}
	var order Order
	if err := c.do(ctx, http.MethodPost, "/orders", payload, &order); err != nil {
		return nil, err
	}
	if order.ID == "" {
		return nil, fmt.Errorf("gateway returned order without id")
	}
	return &order, nil
}

// ListPayments fetches the gateway's authoritative payment list for an order.
// The reconciler uses it to recover captures whose webhook was lost.
func (c *Client) ListPayments(ctx context.Context, orderID string) ([]*Payment, error) {
	var out struct {
		Count int        `json:"count"`
		Items []*Payment `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, "/orders/"+orderID+"/payments", nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}
