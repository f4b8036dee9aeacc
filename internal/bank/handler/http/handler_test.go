package bank_http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/pavlovicisidora/sep/internal/bank/domain"
	"github.com/pavlovicisidora/sep/internal/bank/service"
	"github.com/pavlovicisidora/sep/internal/ipsqr"
)

type fakePaymentService struct {
	createResult  *service.CreateResult
	formData      *service.FormData
	processResult *service.ProcessResult
	processErr    error
	qrCreate      *service.QRCreateResult
	qrData        *service.QRData
	confirmResult *service.ProcessResult
	confirmErr    error

	lastProcess service.ProcessCardRequest
	lastConfirm struct {
		transactionID int64
		account       string
	}
}

func (f *fakePaymentService) CreatePayment(_ context.Context, req service.CreateRequest) (*service.CreateResult, error) {
	if f.createResult == nil {
		return nil, domain.ErrTransactionNotFound
	}
	return f.createResult, nil
}

func (f *fakePaymentService) GetFormData(_ context.Context, paymentID string) (*service.FormData, error) {
	if f.formData == nil {
		return nil, domain.ErrTransactionNotFound
	}
	return f.formData, nil
}

func (f *fakePaymentService) ProcessCard(_ context.Context, req service.ProcessCardRequest) (*service.ProcessResult, error) {
	f.lastProcess = req
	if f.processErr != nil {
		return nil, f.processErr
	}
	return f.processResult, nil
}

func (f *fakePaymentService) CreateQRPayment(_ context.Context, req service.CreateRequest) (*service.QRCreateResult, error) {
	return f.qrCreate, nil
}

func (f *fakePaymentService) GetQRData(_ context.Context, paymentID string) (*service.QRData, error) {
	if f.qrData == nil {
		return nil, domain.ErrTransactionNotFound
	}
	return f.qrData, nil
}

func (f *fakePaymentService) ValidateQRPayload(payload string) ipsqr.Result {
	return ipsqr.Parse(payload)
}

func (f *fakePaymentService) ConfirmQR(_ context.Context, transactionID int64, accountNumber string) (*service.ProcessResult, error) {
	f.lastConfirm.transactionID = transactionID
	f.lastConfirm.account = accountNumber
	if f.confirmErr != nil {
		return nil, f.confirmErr
	}
	return f.confirmResult, nil
}

func newTestRouter(svc PaymentService) http.Handler {
	r := chi.NewRouter()
	RegisterRoutes(r, svc, http.NotFoundHandler(), zap.NewNop())
	return r
}

func postJSON(t *testing.T, handler http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func getPath(handler http.Handler, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestCreatePaymentHandler(t *testing.T) {
	svc := &fakePaymentService{createResult: &service.CreateResult{
		PaymentID:  "PAY-1",
		PaymentURL: "https://localhost:4201/payment/PAY-1",
		Status:     domain.TransactionStatusPending,
		Message:    "Payment session created.",
	}}
	router := newTestRouter(svc)

	rec := postJSON(t, router, "/payment/create", CreatePaymentRequest{
		MerchantID: "rent-a-car", Amount: 5000, Currency: "RSD",
		Stan: "PSP-ABCD1234", PSPTimestamp: time.Now(),
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}
	body := decodeBody[CreatePaymentResponse](t, rec)
	if body.PaymentID != "PAY-1" || body.Status != "PENDING" {
		t.Errorf("body = %+v", body)
	}
}

func TestCreatePaymentHandlerRejectsBadInput(t *testing.T) {
	router := newTestRouter(&fakePaymentService{})

	tests := []struct {
		name string
		req  CreatePaymentRequest
	}{
		{name: "missing merchant", req: CreatePaymentRequest{Amount: 100, Stan: "S"}},
		{name: "missing stan", req: CreatePaymentRequest{MerchantID: "m", Amount: 100}},
		{name: "zero amount", req: CreatePaymentRequest{MerchantID: "m", Stan: "S"}},
		{name: "negative amount", req: CreatePaymentRequest{MerchantID: "m", Stan: "S", Amount: -5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postJSON(t, router, "/payment/create", tt.req)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestGetFormDataHandler(t *testing.T) {
	svc := &fakePaymentService{formData: &service.FormData{
		PaymentID: "PAY-1", Amount: 5000, Currency: "RSD",
	}}
	router := newTestRouter(svc)

	rec := getPath(router, "/payment/form/PAY-1")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decodeBody[FormDataResponse](t, rec)
	if body.PaymentID != "PAY-1" || body.Expired {
		t.Errorf("body = %+v", body)
	}
}

func TestGetFormDataHandlerExpired(t *testing.T) {
	svc := &fakePaymentService{formData: &service.FormData{
		PaymentID: "PAY-1", Amount: 5000, Currency: "RSD", Expired: true,
	}}
	router := newTestRouter(svc)

	rec := getPath(router, "/payment/form/PAY-1")
	if rec.Code != http.StatusGone {
		t.Fatalf("status = %d, want 410", rec.Code)
	}
	// The body still describes the session.
	body := decodeBody[FormDataResponse](t, rec)
	if !body.Expired || body.Amount != 5000 {
		t.Errorf("body = %+v", body)
	}
}

func TestGetFormDataHandlerNotFound(t *testing.T) {
	router := newTestRouter(&fakePaymentService{})
	if rec := getPath(router, "/payment/form/PAY-MISSING"); rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestProcessCardHandlerSuccess(t *testing.T) {
	svc := &fakePaymentService{processResult: &service.ProcessResult{
		GlobalTransactionID: "GTX-1",
		Stan:                "PSP-ABCD1234",
		Status:              domain.TransactionStatusCompleted,
		Message:             "Payment completed successfully.",
		RedirectURL:         "https://merchant.example/success",
	}}
	router := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/payment/process", bytes.NewReader(mustJSON(t, ProcessCardRequest{
		PaymentID: "PAY-1", PAN: "4111111111111111",
		CardHolderName: "Petar Petrovic", ExpiryDate: "12/28", SecurityCode: "123",
	})))
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decodeBody[ConfirmResponse](t, rec)
	if body.Status != "COMPLETED" || body.RedirectURL != "https://merchant.example/success" {
		t.Errorf("body = %+v", body)
	}
	if svc.lastProcess.ClientIP != "203.0.113.7" {
		t.Errorf("ClientIP = %q, want first forwarded address", svc.lastProcess.ClientIP)
	}
}

func TestProcessCardHandlerFailureStatusCodes(t *testing.T) {
	tests := []struct {
		reason   string
		wantCode int
	}{
		{reason: service.FailureExpired, wantCode: http.StatusGone},
		{reason: service.FailureAlreadyProcessed, wantCode: http.StatusConflict},
		{reason: service.FailureInvalidCard, wantCode: http.StatusBadRequest},
		{reason: service.FailureCardNotFound, wantCode: http.StatusPaymentRequired},
		{reason: service.FailureInsufficientFunds, wantCode: http.StatusPaymentRequired},
	}

	for _, tt := range tests {
		t.Run(tt.reason, func(t *testing.T) {
			svc := &fakePaymentService{processErr: &service.PaymentFailure{
				Reason:      tt.reason,
				Message:     "declined",
				RedirectURL: "https://merchant.example/failed",
			}}
			router := newTestRouter(svc)

			rec := postJSON(t, router, "/payment/process", ProcessCardRequest{PaymentID: "PAY-1"})
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			body := decodeBody[FailureResponse](t, rec)
			if body.Error != tt.reason || body.RedirectURL != "https://merchant.example/failed" {
				t.Errorf("body = %+v", body)
			}
		})
	}
}

func TestGetQRDataHandlerExpired(t *testing.T) {
	svc := &fakePaymentService{qrData: &service.QRData{
		PaymentID: "QR-7", Amount: 5000, Currency: "RSD",
		RecipientName: "Rent-a-Car SEP", Stan: "PSP-ABCD1234",
		Status: domain.TransactionStatusExpired,
	}}
	router := newTestRouter(svc)

	rec := getPath(router, "/qr/QR-7")
	if rec.Code != http.StatusGone {
		t.Fatalf("status = %d, want 410", rec.Code)
	}
	body := decodeBody[QRDataResponse](t, rec)
	if body.Status != "EXPIRED" || body.RecipientName != "Rent-a-Car SEP" {
		t.Errorf("body = %+v", body)
	}
}

func TestValidateQRHandler(t *testing.T) {
	router := newTestRouter(&fakePaymentService{})

	rec := postJSON(t, router, "/qr/validate", ValidateQRRequest{Payload: "K:PR|V:01"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	result := decodeBody[ipsqr.Result](t, rec)
	if result.Valid {
		t.Error("broken payload reported valid")
	}
	if len(result.Errors) == 0 {
		t.Error("no field errors returned")
	}
}

func TestConfirmQRHandler(t *testing.T) {
	svc := &fakePaymentService{confirmResult: &service.ProcessResult{
		GlobalTransactionID: "GTX-1",
		Status:              domain.TransactionStatusCompleted,
		Message:             "Payment completed successfully.",
	}}
	router := newTestRouter(svc)

	rec := postJSON(t, router, "/qr/confirm", ConfirmQRRequest{
		TransactionID: 7, AccountNumber: " 845-0000000012345-67 ",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if svc.lastConfirm.transactionID != 7 || svc.lastConfirm.account != "845-0000000012345-67" {
		t.Errorf("confirm args = %+v", svc.lastConfirm)
	}
}

func TestConfirmQRHandlerRejectsMissingFields(t *testing.T) {
	router := newTestRouter(&fakePaymentService{})

	if rec := postJSON(t, router, "/qr/confirm", ConfirmQRRequest{AccountNumber: "845"}); rec.Code != http.StatusBadRequest {
		t.Errorf("missing transaction id: status = %d, want 400", rec.Code)
	}
	if rec := postJSON(t, router, "/qr/confirm", ConfirmQRRequest{TransactionID: 7, AccountNumber: "  "}); rec.Code != http.StatusBadRequest {
		t.Errorf("blank account: status = %d, want 400", rec.Code)
	}
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return raw
}
