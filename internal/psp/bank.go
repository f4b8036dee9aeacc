package psp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// AcquirerClient opens payment sessions at the acquiring bank.
type AcquirerClient interface {
	CreateSession(ctx context.Context, method PaymentMethod, req BankCreateRequest) (*BankCreateResult, error)
}

type BankCreateRequest struct {
	MerchantID   string    `json:"merchantId"`
	Amount       float64   `json:"amount"`
	Currency     string    `json:"currency"`
	Stan         string    `json:"stan"`
	PSPTimestamp time.Time `json:"pspTimestamp"`
}

type BankCreateResult struct {
	PaymentID    string `json:"paymentId"`
	PaymentURL   string `json:"paymentUrl"`
	QRCodeBase64 string `json:"qrCodeBase64,omitempty"`
	Status       string `json:"status"`
	Message      string `json:"message"`
}

type BankClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewBankClient(baseURL string, httpClient *http.Client) *BankClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &BankClient{baseURL: baseURL, httpClient: httpClient}
}

func (c *BankClient) CreateSession(ctx context.Context, method PaymentMethod, req BankCreateRequest) (*BankCreateResult, error) {
	var path string
	switch method {
	case MethodCard:
		path = "/payment/create"
	case MethodQR:
		path = "/qr/create"
	default:
		return nil, ErrUnsupportedMethod
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode bank create request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build bank create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("bank create request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bank create returned status %d", resp.StatusCode)
	}

	var result BankCreateResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode bank create response: %w", err)
	}
	return &result, nil
}
