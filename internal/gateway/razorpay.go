package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultBaseURL = "https://api.razorpay.com"

// Gateway is the payment-provider contract the booking core depends on. All
// network operations can fail transiently; callers must treat errors as
// retryable, never as proof the underlying payment state is unchanged.
type Gateway interface {
	CreateOrder(ctx context.Context, amountPaise int64, receipt string, notes map[string]string) (string, error)
	VerifySignature(orderID, paymentID, signature string) bool
	VerifyWebhookSignature(body []byte, signature string) bool
	IssueRefund(ctx context.Context, paymentID string, amountPaise int64) (string, error)
	KeyID() string
}

// RazorpayClient talks to the Razorpay REST API with basic auth.
type RazorpayClient struct {
	keyID         string
	keySecret     string
	webhookSecret string
	baseURL       string
	httpClient    *http.Client
}

func NewRazorpayClient(keyID, keySecret, webhookSecret string) *RazorpayClient {
	return &RazorpayClient{
		keyID:         keyID,
		keySecret:     keySecret,
		webhookSecret: webhookSecret,
		baseURL:       defaultBaseURL,
		httpClient:    &http.Client{Timeout: 15 * time.Second},
	}
}

// NewRazorpayClientWithBaseURL is used by tests to point the client at a
// local server.
func NewRazorpayClientWithBaseURL(keyID, keySecret, webhookSecret, baseURL string) *RazorpayClient {
	c := NewRazorpayClient(keyID, keySecret, webhookSecret)
	c.baseURL = baseURL
	return c
}

func (c *RazorpayClient) KeyID() string {
	return c.keyID
}

// CreateOrder opens a gateway order for the given amount in paise. The notes
// map is persisted at the gateway and echoed back on webhook events; it must
// carry enough booking detail to recreate a reservation that was never saved.
func (c *RazorpayClient) CreateOrder(ctx context.Context, amountPaise int64, receipt string, notes map[string]string) (string, error) {
	payload := map[string]interface{}{
		"amount":   amountPaise,
		"currency": "INR",
		"receipt":  receipt,
		"notes":    notes,
	}

	var resp struct {
		ID string `json:"id"`
	}
	if err := c.post(ctx, "/v1/orders", payload, &resp); err != nil {
		return "", fmt.Errorf("failed to create order: %w", err)
	}
	if resp.ID == "" {
		return "", fmt.Errorf("gateway returned order without id")
	}
	return resp.ID, nil
}

// IssueRefund refunds a captured payment. A zero amount requests a full
// refund.
func (c *RazorpayClient) IssueRefund(ctx context.Context, paymentID string, amountPaise int64) (string, error) {
	payload := map[string]interface{}{}
	if amountPaise > 0 {
		payload["amount"] = amountPaise
	}

	var resp struct {
		ID string `json:"id"`
	}
	path := fmt.Sprintf("/v1/payments/%s/refund", paymentID)
	if err := c.post(ctx, path, payload, &resp); err != nil {
		return "", fmt.Errorf("failed to refund payment %s: %w", paymentID, err)
	}
	return resp.ID, nil
}

// VerifySignature checks the checkout callback signature: HMAC-SHA256 over
// "orderID|paymentID" keyed with the API secret.
func (c *RazorpayClient) VerifySignature(orderID, paymentID, signature string) bool {
	expected := hmacHex(c.keySecret, []byte(orderID+"|"+paymentID))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// VerifyWebhookSignature checks the X-Razorpay-Signature header: HMAC-SHA256
// over the raw request body keyed with the webhook secret.
func (c *RazorpayClient) VerifyWebhookSignature(body []byte, signature string) bool {
	expected := hmacHex(c.webhookSecret, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}

func hmacHex(secret string, data []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *RazorpayClient) post(ctx context.Context, path string, payload interface{}, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %v", err)
	}
	req.SetBasicAuth(c.keyID, c.keySecret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gateway request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("gateway returned %d: %s", resp.StatusCode, string(snippet))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode gateway response: %v", err)
	}
	return nil
}
