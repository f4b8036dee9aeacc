package bank_http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/pavlovicisidora/sep/internal/bank/domain"
	"github.com/pavlovicisidora/sep/internal/bank/service"
	"github.com/pavlovicisidora/sep/internal/ipsqr"
)

// PaymentService is what the handlers need from the service layer.
// *service.Service satisfies it.
type PaymentService interface {
	CreatePayment(ctx context.Context, req service.CreateRequest) (*service.CreateResult, error)
	GetFormData(ctx context.Context, paymentID string) (*service.FormData, error)
	ProcessCard(ctx context.Context, req service.ProcessCardRequest) (*service.ProcessResult, error)
	CreateQRPayment(ctx context.Context, req service.CreateRequest) (*service.QRCreateResult, error)
	GetQRData(ctx context.Context, paymentID string) (*service.QRData, error)
	ValidateQRPayload(payload string) ipsqr.Result
	ConfirmQR(ctx context.Context, transactionID int64, accountNumber string) (*service.ProcessResult, error)
}

var _ PaymentService = (*service.Service)(nil)

type PaymentHandler struct {
	service PaymentService
	logger  *zap.Logger
}

func NewPaymentHandler(s PaymentService, l *zap.Logger) *PaymentHandler {
	return &PaymentHandler{service: s, logger: l}
}

type CreatePaymentRequest struct {
	MerchantID   string    `json:"merchantId"`
	Amount       float64   `json:"amount"`
	Currency     string    `json:"currency"`
	Stan         string    `json:"stan"`
	PSPTimestamp time.Time `json:"pspTimestamp"`
}

type CreatePaymentResponse struct {
	PaymentID    string `json:"paymentId"`
	PaymentURL   string `json:"paymentUrl"`
	QRCodeBase64 string `json:"qrCodeBase64,omitempty"`
	Status       string `json:"status"`
	Message      string `json:"message"`
}

type FormDataResponse struct {
	PaymentID string  `json:"paymentId"`
	Amount    float64 `json:"amount"`
	Currency  string  `json:"currency"`
	Expired   bool    `json:"expired"`
}

type ProcessCardRequest struct {
	PaymentID      string `json:"paymentId"`
	PAN            string `json:"pan"`
	CardHolderName string `json:"cardHolderName"`
	ExpiryDate     string `json:"expiryDate"`
	SecurityCode   string `json:"securityCode"`
}

type ConfirmResponse struct {
	GlobalTransactionID string `json:"globalTransactionId,omitempty"`
	Stan                string `json:"stan,omitempty"`
	Status              string `json:"status"`
	Message             string `json:"message"`
	RedirectURL         string `json:"redirectUrl"`
}

type QRDataResponse struct {
	PaymentID     string    `json:"paymentId"`
	Amount        float64   `json:"amount"`
	Currency      string    `json:"currency"`
	RecipientName string    `json:"recipientName"`
	QRCodeBase64  string    `json:"qrCodeBase64"`
	ExpiresAt     time.Time `json:"expiresAt"`
	Stan          string    `json:"stan"`
	Status        string    `json:"status"`
}

type ValidateQRRequest struct {
	Payload string `json:"payload"`
}

type ConfirmQRRequest struct {
	TransactionID int64  `json:"transactionId"`
	AccountNumber string `json:"accountNumber"`
}

type FailureResponse struct {
	Error       string `json:"error"`
	Message     string `json:"message"`
	RedirectURL string `json:"redirectUrl,omitempty"`
}

func (h *PaymentHandler) CreatePaymentHandler(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeCreateRequest(w, r)
	if !ok {
		return
	}

	result, err := h.service.CreatePayment(r.Context(), service.CreateRequest{
		MerchantID:   req.MerchantID,
		Amount:       req.Amount,
		Currency:     req.Currency,
		Stan:         req.Stan,
		PSPTimestamp: req.PSPTimestamp,
	})
	if err != nil {
		h.logger.Error("Failed to create payment session", zap.String("stan", req.Stan), zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusCreated, CreatePaymentResponse{
		PaymentID:  result.PaymentID,
		PaymentURL: result.PaymentURL,
		Status:     string(result.Status),
		Message:    result.Message,
	})
}

func (h *PaymentHandler) GetFormDataHandler(w http.ResponseWriter, r *http.Request) {
	paymentID := chi.URLParam(r, "id")
	if paymentID == "" {
		http.Error(w, "Payment ID is required", http.StatusBadRequest)
		return
	}

	data, err := h.service.GetFormData(r.Context(), paymentID)
	if err != nil {
		if errors.Is(err, domain.ErrTransactionNotFound) {
			http.Error(w, "Payment session not found", http.StatusNotFound)
			return
		}
		h.logger.Error("Failed to load payment form data", zap.String("payment_id", paymentID), zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	status := http.StatusOK
	if data.Expired {
		// The body still describes the session so the client can render the
		// expiry in place.
		status = http.StatusGone
	}
	h.writeJSON(w, status, FormDataResponse{
		PaymentID: data.PaymentID,
		Amount:    data.Amount,
		Currency:  data.Currency,
		Expired:   data.Expired,
	})
}

func (h *PaymentHandler) ProcessCardHandler(w http.ResponseWriter, r *http.Request) {
	var req ProcessCardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("Invalid request body for card processing", zap.Error(err))
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.PaymentID == "" {
		http.Error(w, "Payment ID is required", http.StatusBadRequest)
		return
	}

	result, err := h.service.ProcessCard(r.Context(), service.ProcessCardRequest{
		PaymentID:      req.PaymentID,
		PAN:            req.PAN,
		CardHolderName: req.CardHolderName,
		ExpiryDate:     req.ExpiryDate,
		SecurityCode:   req.SecurityCode,
		ClientIP:       clientIP(r),
	})
	if err != nil {
		h.writeProcessingError(w, req.PaymentID, err)
		return
	}

	h.writeJSON(w, http.StatusOK, ConfirmResponse{
		GlobalTransactionID: result.GlobalTransactionID,
		Stan:                result.Stan,
		Status:              string(result.Status),
		Message:             result.Message,
		RedirectURL:         result.RedirectURL,
	})
}

func (h *PaymentHandler) CreateQRHandler(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeCreateRequest(w, r)
	if !ok {
		return
	}

	result, err := h.service.CreateQRPayment(r.Context(), service.CreateRequest{
		MerchantID:   req.MerchantID,
		Amount:       req.Amount,
		Currency:     req.Currency,
		Stan:         req.Stan,
		PSPTimestamp: req.PSPTimestamp,
	})
	if err != nil {
		h.logger.Error("Failed to create QR payment session", zap.String("stan", req.Stan), zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusCreated, CreatePaymentResponse{
		PaymentID:    result.PaymentID,
		PaymentURL:   result.PaymentURL,
		QRCodeBase64: result.QRCodeBase64,
		Status:       string(result.Status),
		Message:      result.Message,
	})
}

func (h *PaymentHandler) GetQRDataHandler(w http.ResponseWriter, r *http.Request) {
	paymentID := chi.URLParam(r, "id")
	if paymentID == "" {
		http.Error(w, "Payment ID is required", http.StatusBadRequest)
		return
	}

	data, err := h.service.GetQRData(r.Context(), paymentID)
	if err != nil {
		if errors.Is(err, domain.ErrTransactionNotFound) {
			http.Error(w, "Payment session not found", http.StatusNotFound)
			return
		}
		h.logger.Error("Failed to load QR payment data", zap.String("payment_id", paymentID), zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	status := http.StatusOK
	if data.Status == domain.TransactionStatusExpired {
		status = http.StatusGone
	}
	h.writeJSON(w, status, QRDataResponse{
		PaymentID:     data.PaymentID,
		Amount:        data.Amount,
		Currency:      data.Currency,
		RecipientName: data.RecipientName,
		QRCodeBase64:  data.QRCodeBase64,
		ExpiresAt:     data.ExpiresAt,
		Stan:          data.Stan,
		Status:        string(data.Status),
	})
}

func (h *PaymentHandler) ValidateQRHandler(w http.ResponseWriter, r *http.Request) {
	var req ValidateQRRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("Invalid request body for QR validation", zap.Error(err))
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	result := h.service.ValidateQRPayload(req.Payload)
	h.writeJSON(w, http.StatusOK, result)
}

func (h *PaymentHandler) ConfirmQRHandler(w http.ResponseWriter, r *http.Request) {
	var req ConfirmQRRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("Invalid request body for QR confirmation", zap.Error(err))
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.TransactionID == 0 {
		http.Error(w, "Transaction ID is required", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.AccountNumber) == "" {
		http.Error(w, "Account number is required", http.StatusBadRequest)
		return
	}

	result, err := h.service.ConfirmQR(r.Context(), req.TransactionID, strings.TrimSpace(req.AccountNumber))
	if err != nil {
		h.writeProcessingError(w, chi.URLParam(r, "id"), err)
		return
	}

	h.writeJSON(w, http.StatusOK, ConfirmResponse{
		GlobalTransactionID: result.GlobalTransactionID,
		Stan:                result.Stan,
		Status:              string(result.Status),
		Message:             result.Message,
		RedirectURL:         result.RedirectURL,
	})
}

func (h *PaymentHandler) decodeCreateRequest(w http.ResponseWriter, r *http.Request) (CreatePaymentRequest, bool) {
	var req CreatePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("Invalid request body for payment creation", zap.Error(err))
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return req, false
	}
	if req.MerchantID == "" || req.Stan == "" {
		http.Error(w, "Merchant ID and STAN are required", http.StatusBadRequest)
		return req, false
	}
	if req.Amount <= 0 {
		http.Error(w, "Amount must be positive", http.StatusBadRequest)
		return req, false
	}
	return req, true
}

// writeProcessingError maps a processing failure onto the wire: declined
// payments carry a reason code and the merchant recovery redirect when one
// resolved.
func (h *PaymentHandler) writeProcessingError(w http.ResponseWriter, paymentID string, err error) {
	var failure *service.PaymentFailure
	if errors.As(err, &failure) {
		h.writeJSON(w, failureStatusCode(failure.Reason), FailureResponse{
			Error:       failure.Reason,
			Message:     failure.Message,
			RedirectURL: failure.RedirectURL,
		})
		return
	}
	if errors.Is(err, domain.ErrTransactionNotFound) {
		http.Error(w, "Payment session not found", http.StatusNotFound)
		return
	}
	h.logger.Error("Payment processing failed", zap.String("payment_id", paymentID), zap.Error(err))
	http.Error(w, "Internal server error", http.StatusInternalServerError)
}

func failureStatusCode(reason string) int {
	switch reason {
	case service.FailureExpired:
		return http.StatusGone
	case service.FailureAlreadyProcessed:
		return http.StatusConflict
	case service.FailureInvalidCard:
		return http.StatusBadRequest
	default:
		return http.StatusPaymentRequired
	}
}

func (h *PaymentHandler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("Failed to write JSON response", zap.Error(err))
	}
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}
	host := r.RemoteAddr
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		host = host[:idx]
	}
	return host
}
