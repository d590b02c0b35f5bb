package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const defaultTimeout = 10 * time.Second

// Capture is the provider's verdict on a captured order.
type Capture struct {
	Status   string
	Amount   float64
	Currency string
}

// Provider is the payment processor consumed by the bridge.
type Provider interface {
	CreateOrder(ctx context.Context, amount float64, currency, description string) (string, error)
	CaptureOrder(ctx context.Context, orderID string) (*Capture, error)
}

// Client talks to a PayPal-v2-checkout-style API: client-credentials OAuth,
// hosted orders, server-side capture.
type Client struct {
	baseURL      string
	clientID     string
	clientSecret string
	client       *http.Client
}

func NewClient(baseURL, clientID, clientSecret string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:      baseURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		client:       &http.Client{Timeout: timeout},
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
}

type amountPayload struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type createOrderRequest struct {
	Intent        string `json:"intent"`
	PurchaseUnits []struct {
		Amount      amountPayload `json:"amount"`
		Description string        `json:"description"`
	} `json:"purchase_units"`
}

type orderResponse struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	PurchaseUnits []struct {
		Payments struct {
			Captures []struct {
				ID     string        `json:"id"`
				Status string        `json:"status"`
				Amount amountPayload `json:"amount"`
			} `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.clientID, c.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token endpoint returned status %d", resp.StatusCode)
	}

	var token tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}
	if token.AccessToken == "" {
		return "", fmt.Errorf("token endpoint returned no access token")
	}

	return token.AccessToken, nil
}

// CreateOrder requests a provider-hosted charge and returns the provider's
// order identifier for client-side approval.
func (c *Client) CreateOrder(ctx context.Context, amount float64, currency, description string) (string, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return "", err
	}

	var reqBody createOrderRequest
	reqBody.Intent = "CAPTURE"
	reqBody.PurchaseUnits = make([]struct {
		Amount      amountPayload `json:"amount"`
		Description string        `json:"description"`
	}, 1)
	reqBody.PurchaseUnits[0].Amount = amountPayload{
		CurrencyCode: currency,
		Value:        fmt.Sprintf("%.2f", amount),
	}
	reqBody.PurchaseUnits[0].Description = description

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v2/checkout/orders", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("create order returned status %d: %s", resp.StatusCode, raw)
	}

	var order orderResponse
	if err := json.NewDecoder(resp.Body).Decode(&order); err != nil {
		return "", fmt.Errorf("failed to decode order response: %w", err)
	}
	if order.ID == "" {
		return "", fmt.Errorf("create order returned no order id")
	}

	return order.ID, nil
}

// CaptureOrder captures an approved order server-side and reports the
// captured status and amount.
func (c *Client) CaptureOrder(ctx context.Context, orderID string) (*Capture, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	captureURL := fmt.Sprintf("%s/v2/checkout/orders/%s/capture", c.baseURL, orderID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, captureURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("capture returned status %d: %s", resp.StatusCode, raw)
	}

	var order orderResponse
	if err := json.NewDecoder(resp.Body).Decode(&order); err != nil {
		return nil, fmt.Errorf("failed to decode capture response: %w", err)
	}

	capture := &Capture{Status: order.Status}
	if len(order.PurchaseUnits) > 0 && len(order.PurchaseUnits[0].Payments.Captures) > 0 {
		captured := order.PurchaseUnits[0].Payments.Captures[0]
		capture.Currency = captured.Amount.CurrencyCode
		amount, err := strconv.ParseFloat(captured.Amount.Value, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse captured amount %q: %w", captured.Amount.Value, err)
		}
		capture.Amount = amount
	}

	return capture, nil
}
