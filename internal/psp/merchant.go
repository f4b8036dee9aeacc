package psp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// MerchantNotifier delivers the outcome to the merchant's callback URL and
// collects the redirect target the merchant wants the payer sent to.
type MerchantNotifier interface {
	Notify(ctx context.Context, callbackURL string, notification MerchantNotification) (string, error)
}

type MerchantNotification struct {
	MerchantOrderID     string    `json:"merchantOrderId"`
	Stan                string    `json:"stan"`
	GlobalTransactionID string    `json:"globalTransactionId,omitempty"`
	Status              string    `json:"status"`
	FailureReason       string    `json:"failureReason,omitempty"`
	Timestamp           time.Time `json:"timestamp"`
}

type HTTPMerchantNotifier struct {
	httpClient *http.Client
}

func NewMerchantNotifier(httpClient *http.Client) *HTTPMerchantNotifier {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPMerchantNotifier{httpClient: httpClient}
}

func (n *HTTPMerchantNotifier) Notify(ctx context.Context, callbackURL string, notification MerchantNotification) (string, error) {
	body, err := json.Marshal(notification)
	if err != nil {
		return "", fmt.Errorf("failed to encode merchant notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, callbackURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build merchant notification: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("merchant notification failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("merchant callback returned status %d", resp.StatusCode)
	}

	var reply struct {
		RedirectURL string `json:"redirectUrl"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return "", fmt.Errorf("failed to decode merchant callback reply: %w", err)
	}
	return reply.RedirectURL, nil
}
