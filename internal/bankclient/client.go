// Package bankclient is the payer-side HTTP client for the acquiring bank's
// payment API.
package bankclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pavlovicisidora/sep/internal/ipsqr"
)

// PaymentError is a backend-rejected confirmation. It may carry a recovery
// redirect so the payer can still be routed back to the merchant.
type PaymentError struct {
	StatusCode  int
	Message     string
	RedirectURL string
}

func (e *PaymentError) Error() string {
	return fmt.Sprintf("payment rejected (%d): %s", e.StatusCode, e.Message)
}

type FormData struct {
	PaymentID string  `json:"paymentId"`
	Amount    float64 `json:"amount"`
	Currency  string  `json:"currency"`
	Expired   bool    `json:"expired"`
}

type QRData struct {
	PaymentID     string    `json:"paymentId"`
	Amount        float64   `json:"amount"`
	Currency      string    `json:"currency"`
	RecipientName string    `json:"recipientName"`
	QRCodeBase64  string    `json:"qrCodeBase64"`
	ExpiresAt     time.Time `json:"expiresAt"`
	Stan          string    `json:"stan"`
	Status        string    `json:"status,omitempty"`
}

type ProcessRequest struct {
	PaymentID      string `json:"paymentId"`
	PAN            string `json:"pan"`
	CardHolderName string `json:"cardHolderName"`
	ExpiryDate     string `json:"expiryDate"`
	SecurityCode   string `json:"securityCode"`
}

type ConfirmResult struct {
	GlobalTransactionID string `json:"globalTransactionId,omitempty"`
	Stan                string `json:"stan,omitempty"`
	Status              string `json:"status"`
	Message             string `json:"message"`
	RedirectURL         string `json:"redirectUrl"`
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{baseURL: baseURL, httpClient: httpClient}
}

// FetchCardSession loads the data behind a hosted payment form. A 410
// response still decodes: the bank reports expiry through the body.
func (c *Client) FetchCardSession(ctx context.Context, paymentID string) (*FormData, error) {
	var data FormData
	if err := c.getJSON(ctx, "/payment/form/"+paymentID, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

func (c *Client) FetchQRSession(ctx context.Context, paymentID string) (*QRData, error) {
	var data QRData
	if err := c.getJSON(ctx, "/qr/"+paymentID, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// SubmitCard posts the card form. Rejections come back as *PaymentError with
// the processor's message and optional recovery redirect.
func (c *Client) SubmitCard(ctx context.Context, req ProcessRequest) (*ConfirmResult, error) {
	return c.postConfirm(ctx, "/payment/process", req)
}

// ValidateQR asks the bank to validate a decoded payload.
func (c *Client) ValidateQR(ctx context.Context, payload string) (*ipsqr.Result, error) {
	body, err := json.Marshal(map[string]string{"payload": payload})
	if err != nil {
		return nil, fmt.Errorf("failed to encode validation request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/qr/validate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build validation request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("validation request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("validation request returned status %d", resp.StatusCode)
	}

	var result ipsqr.Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode validation response: %w", err)
	}
	return &result, nil
}

// ConfirmQR confirms a QR payment from the payer's settlement account.
func (c *Client) ConfirmQR(ctx context.Context, transactionID int64, accountNumber string) (*ConfirmResult, error) {
	req := map[string]any{
		"transactionId": transactionID,
		"accountNumber": accountNumber,
	}
	return c.postConfirm(ctx, "/qr/confirm", req)
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	// 410 Gone carries a body describing the expired session.
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusGone {
		return fmt.Errorf("unexpected status %d for %s", resp.StatusCode, path)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) postConfirm(ctx context.Context, path string, payload any) (*ConfirmResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("confirmation request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusOK {
		var result ConfirmResult
		if err := json.Unmarshal(raw, &result); err != nil {
			return nil, fmt.Errorf("failed to decode response: %w", err)
		}
		return &result, nil
	}

	// Failure bodies may still carry a recovery redirect for the payer.
	var failure struct {
		Error       string `json:"error"`
		Message     string `json:"message"`
		RedirectURL string `json:"redirectUrl"`
	}
	_ = json.Unmarshal(raw, &failure)

	message := failure.Message
	if message == "" {
		message = failure.Error
	}
	if message == "" {
		message = fmt.Sprintf("payment request failed with status %d", resp.StatusCode)
	}

	return nil, &PaymentError{
		StatusCode:  resp.StatusCode,
		Message:     message,
		RedirectURL: failure.RedirectURL,
	}
}
