package psp_http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/pavlovicisidora/sep/internal/psp"
)

type PSPHandler struct {
	service *psp.Service
	logger  *zap.Logger
}

func NewPSPHandler(s *psp.Service, l *zap.Logger) *PSPHandler {
	return &PSPHandler{service: s, logger: l}
}

type InitializeRequest struct {
	MerchantID       string  `json:"merchantId"`
	MerchantPassword string  `json:"merchantPassword"`
	Amount           float64 `json:"amount"`
	Currency         string  `json:"currency"`
	MerchantOrderID  string  `json:"merchantOrderId"`
	PaymentMethod    string  `json:"paymentMethod"`
	SuccessURL       string  `json:"successUrl"`
	FailedURL        string  `json:"failedUrl"`
	ErrorURL         string  `json:"errorUrl"`
	CallbackURL      string  `json:"callbackUrl"`
}

type InitializeResponse struct {
	PaymentID    string `json:"paymentId"`
	PaymentURL   string `json:"paymentUrl"`
	QRCodeBase64 string `json:"qrCodeBase64,omitempty"`
	Stan         string `json:"stan"`
	Status       string `json:"status"`
	Message      string `json:"message"`
}

type CallbackRequest struct {
	Stan                string    `json:"stan"`
	GlobalTransactionID string    `json:"globalTransactionId"`
	Status              string    `json:"status"`
	FailureReason       string    `json:"failureReason,omitempty"`
	AcquirerTimestamp   time.Time `json:"acquirerTimestamp"`
}

type CallbackResponse struct {
	RedirectURL string `json:"redirectUrl"`
}

type StatusResponse struct {
	MerchantOrderID     string  `json:"merchantOrderId"`
	Stan                string  `json:"stan"`
	GlobalTransactionID string  `json:"globalTransactionId,omitempty"`
	Amount              float64 `json:"amount"`
	Currency            string  `json:"currency"`
	Status              string  `json:"status"`
	FailureReason       string  `json:"failureReason,omitempty"`
}

func (h *PSPHandler) InitializeHandler(w http.ResponseWriter, r *http.Request) {
	var req InitializeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("Invalid request body for payment initialization", zap.Error(err))
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.MerchantOrderID == "" {
		http.Error(w, "Merchant order ID is required", http.StatusBadRequest)
		return
	}
	if req.Amount <= 0 {
		http.Error(w, "Amount must be positive", http.StatusBadRequest)
		return
	}

	result, err := h.service.Initialize(r.Context(), psp.InitializeRequest{
		MerchantID:       req.MerchantID,
		MerchantPassword: req.MerchantPassword,
		Amount:           req.Amount,
		Currency:         req.Currency,
		MerchantOrderID:  req.MerchantOrderID,
		PaymentMethod:    psp.PaymentMethod(req.PaymentMethod),
		SuccessURL:       req.SuccessURL,
		FailedURL:        req.FailedURL,
		ErrorURL:         req.ErrorURL,
		CallbackURL:      req.CallbackURL,
	})
	if err != nil {
		if errors.Is(err, psp.ErrMerchantInvalid) {
			http.Error(w, "Unknown merchant or bad credentials", http.StatusUnauthorized)
			return
		}
		if errors.Is(err, psp.ErrUnsupportedMethod) {
			http.Error(w, "Unsupported payment method", http.StatusBadRequest)
			return
		}
		h.logger.Error("Failed to initialize payment",
			zap.String("merchant_order_id", req.MerchantOrderID), zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusCreated, InitializeResponse{
		PaymentID:    result.PaymentID,
		PaymentURL:   result.PaymentURL,
		QRCodeBase64: result.QRCodeBase64,
		Stan:         result.Stan,
		Status:       string(result.Status),
		Message:      result.Message,
	})
}

func (h *PSPHandler) CallbackHandler(w http.ResponseWriter, r *http.Request) {
	var req CallbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("Invalid request body for payment callback", zap.Error(err))
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Stan == "" {
		http.Error(w, "STAN is required", http.StatusBadRequest)
		return
	}

	redirectURL, err := h.service.HandleCallback(r.Context(), psp.CallbackRequest{
		Stan:                req.Stan,
		GlobalTransactionID: req.GlobalTransactionID,
		Status:              req.Status,
		FailureReason:       req.FailureReason,
		AcquirerTimestamp:   req.AcquirerTimestamp,
	})
	if err != nil {
		if errors.Is(err, psp.ErrSessionNotFound) {
			http.Error(w, "Payment session not found", http.StatusNotFound)
			return
		}
		h.logger.Error("Failed to handle payment callback", zap.String("stan", req.Stan), zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, CallbackResponse{RedirectURL: redirectURL})
}

func (h *PSPHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	merchantOrderID := chi.URLParam(r, "merchantOrderId")
	if merchantOrderID == "" {
		http.Error(w, "Merchant order ID is required", http.StatusBadRequest)
		return
	}

	sess, err := h.service.Status(r.Context(), merchantOrderID)
	if err != nil {
		if errors.Is(err, psp.ErrSessionNotFound) {
			http.Error(w, "Payment session not found", http.StatusNotFound)
			return
		}
		h.logger.Error("Failed to load payment status",
			zap.String("merchant_order_id", merchantOrderID), zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, StatusResponse{
		MerchantOrderID:     sess.MerchantOrderID,
		Stan:                sess.Stan,
		GlobalTransactionID: sess.GlobalTransactionID,
		Amount:              sess.Amount,
		Currency:            sess.Currency,
		Status:              string(sess.Status),
		FailureReason:       sess.FailureReason,
	})
}

func (h *PSPHandler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("Failed to write JSON response", zap.Error(err))
	}
}
