package service

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/pavlovicisidora/sep/internal/bank/domain"
	"github.com/pavlovicisidora/sep/internal/bank/pspclient"
	"github.com/pavlovicisidora/sep/internal/metrics"
)

// The service only ever uses the database handle to open and close
// transactions; all data access goes through the repositories, which the
// tests replace with in-memory fakes. A stub driver keeps BeginTx working.
type stubDriver struct{}

func (stubDriver) Open(string) (driver.Conn, error) { return &stubConn{}, nil }

type stubConn struct{}

func (*stubConn) Prepare(string) (driver.Stmt, error) { return nil, errors.New("not supported") }
func (*stubConn) Close() error                        { return nil }
func (*stubConn) Begin() (driver.Tx, error)           { return stubTx{}, nil }

type stubTx struct{}

func (stubTx) Commit() error   { return nil }
func (stubTx) Rollback() error { return nil }

func init() {
	sql.Register("servicetest", stubDriver{})
}

var serviceNow = time.Date(2026, time.June, 15, 12, 0, 0, 0, time.UTC)

type fakeTransactionRepo struct {
	mu     sync.Mutex
	nextID int64
	byID   map[int64]*domain.Transaction
}

func newFakeTransactionRepo() *fakeTransactionRepo {
	return &fakeTransactionRepo{byID: make(map[int64]*domain.Transaction)}
}

func cloneTxn(t *domain.Transaction) *domain.Transaction {
	c := *t
	return &c
}

func (r *fakeTransactionRepo) CreateTx(_ context.Context, _ domain.Querier, txn *domain.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	txn.ID = r.nextID
	r.byID[txn.ID] = cloneTxn(txn)
	return nil
}

func (r *fakeTransactionRepo) GetByIDTx(_ context.Context, _ domain.Querier, id int64) (*domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	txn, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrTransactionNotFound
	}
	return cloneTxn(txn), nil
}

func (r *fakeTransactionRepo) GetByPaymentIDTx(_ context.Context, _ domain.Querier, paymentID string) (*domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, txn := range r.byID {
		if txn.PaymentID == paymentID {
			return cloneTxn(txn), nil
		}
	}
	return nil, domain.ErrTransactionNotFound
}

func (r *fakeTransactionRepo) SetPaymentRefTx(_ context.Context, _ domain.Querier, id int64, paymentID, paymentURL string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	txn, ok := r.byID[id]
	if !ok {
		return domain.ErrTransactionNotFound
	}
	txn.PaymentID = paymentID
	txn.PaymentURL = paymentURL
	return nil
}

func (r *fakeTransactionRepo) GetByStanTx(_ context.Context, _ domain.Querier, merchantID, stan string) (*domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, txn := range r.byID {
		if txn.MerchantID == merchantID && txn.Stan == stan {
			return cloneTxn(txn), nil
		}
	}
	return nil, domain.ErrTransactionNotFound
}

func (r *fakeTransactionRepo) TransitionStatusTx(_ context.Context, _ domain.Querier, paymentID string, from, to domain.TransactionStatus, failureReason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, txn := range r.byID {
		if txn.PaymentID != paymentID {
			continue
		}
		if txn.Status != from {
			return domain.ErrIllegalTransition
		}
		txn.Status = to
		txn.FailureReason = sql.NullString{String: failureReason, Valid: failureReason != ""}
		return nil
	}
	return domain.ErrIllegalTransition
}

func (r *fakeTransactionRepo) SetAccountTx(_ context.Context, _ domain.Querier, paymentID string, accountID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, txn := range r.byID {
		if txn.PaymentID == paymentID {
			txn.AccountID = sql.NullInt64{Int64: accountID, Valid: true}
			return nil
		}
	}
	return domain.ErrTransactionNotFound
}

func (r *fakeTransactionRepo) ListExpiredPending(_ context.Context, now time.Time, limit int) ([]domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Transaction
	for _, txn := range r.byID {
		if txn.Status == domain.TransactionStatusPending && now.After(txn.PaymentURLExpiresAt) {
			out = append(out, *txn)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (r *fakeTransactionRepo) status(t *testing.T, paymentID string) domain.TransactionStatus {
	t.Helper()
	txn, err := r.GetByPaymentIDTx(context.Background(), nil, paymentID)
	if err != nil {
		t.Fatalf("transaction %s not stored: %v", paymentID, err)
	}
	return txn.Status
}

type fakeAccountRepo struct {
	mu       sync.Mutex
	accounts map[int64]*domain.Account
}

func (r *fakeAccountRepo) GetByNumberTx(_ context.Context, _ domain.Querier, accountNumber string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.accounts {
		if a.AccountNumber == accountNumber {
			c := *a
			return &c, nil
		}
	}
	return nil, domain.ErrAccountNotFound
}

func (r *fakeAccountRepo) GetByIDTx(_ context.Context, _ domain.Querier, id int64) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	c := *a
	return &c, nil
}

func (r *fakeAccountRepo) UpdateBalanceTx(_ context.Context, _ domain.Querier, accountID int64, amount float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[accountID]
	if !ok {
		return domain.ErrAccountNotFound
	}
	if a.Balance+amount < 0 {
		return domain.ErrInsufficientFunds
	}
	a.Balance += amount
	return nil
}

func (r *fakeAccountRepo) balance(t *testing.T, id int64) float64 {
	t.Helper()
	a, err := r.GetByIDTx(context.Background(), nil, id)
	if err != nil {
		t.Fatalf("account %d: %v", id, err)
	}
	return a.Balance
}

type fakeCardRepo struct {
	cards   []domain.Card
	lookups int
}

func (r *fakeCardRepo) FindMatchTx(_ context.Context, _ domain.Querier, pan, holderName, expiryDate, securityCode string) (*domain.Card, error) {
	r.lookups++
	for _, c := range r.cards {
		if c.PAN == pan && c.CardHolderName == holderName && c.ExpiryDate == expiryDate && c.SecurityCode == securityCode {
			match := c
			return &match, nil
		}
	}
	return nil, domain.ErrCardNotFound
}

type fakeOutboxRepo struct {
	mu       sync.Mutex
	messages []domain.OutboxMessage
}

func (r *fakeOutboxRepo) CreateMessageTx(_ context.Context, _ *sql.Tx, msg *domain.OutboxMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, *msg)
	return nil
}

func (r *fakeOutboxRepo) GetPendingMessages(context.Context) ([]domain.OutboxMessage, error) {
	return nil, nil
}
func (r *fakeOutboxRepo) MarkMessagesAsSent(context.Context, []string) error   { return nil }
func (r *fakeOutboxRepo) MarkMessagesAsFailed(context.Context, []string) error { return nil }

func (r *fakeOutboxRepo) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, m := range r.messages {
		out = append(out, m.MessageType)
	}
	return out
}

type fakePSPNotifier struct {
	mu          sync.Mutex
	calls       []pspclient.CallbackRequest
	redirectURL string
	err         error
}

func (f *fakePSPNotifier) NotifyOutcome(_ context.Context, req pspclient.CallbackRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if f.err != nil {
		return "", f.err
	}
	return f.redirectURL, nil
}

type serviceFixture struct {
	svc          *Service
	transactions *fakeTransactionRepo
	accounts     *fakeAccountRepo
	cards        *fakeCardRepo
	outbox       *fakeOutboxRepo
	psp          *fakePSPNotifier
}

const (
	merchantAccountID = int64(1)
	payerAccountID    = int64(2)
	merchantAccount   = "845-0000000004048-49"
	payerAccount      = "845-0000000012345-67"
)

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()

	db, err := sql.Open("servicetest", "")
	if err != nil {
		t.Fatalf("open stub database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	f := &serviceFixture{
		transactions: newFakeTransactionRepo(),
		accounts: &fakeAccountRepo{accounts: map[int64]*domain.Account{
			merchantAccountID: {ID: merchantAccountID, AccountNumber: merchantAccount, HolderName: "Rent-a-Car SEP", Balance: 0},
			payerAccountID:    {ID: payerAccountID, AccountNumber: payerAccount, HolderName: "Petar Petrovic", Balance: 250000},
		}},
		cards: &fakeCardRepo{cards: []domain.Card{{
			ID: 1, AccountID: payerAccountID,
			PAN: "4111111111111111", CardHolderName: "Petar Petrovic",
			ExpiryDate: "12/28", SecurityCode: "123",
		}}},
		outbox: &fakeOutboxRepo{},
		psp:    &fakePSPNotifier{redirectURL: "https://merchant.example/orders/42"},
	}

	f.svc = New(
		db,
		f.transactions,
		f.accounts,
		f.cards,
		f.outbox,
		f.psp,
		metrics.New(prometheus.NewRegistry()),
		Config{
			FrontendURL:           "https://localhost:4201",
			MerchantAccountNumber: merchantAccount,
			MerchantAccountName:   "Rent-a-Car SEP",
			StatusTopic:           "payment_status_updates",
			AuditTopic:            "payment_audit_log",
			SessionTTL:            10 * time.Minute,
		},
		zap.NewNop(),
	)
	f.svc.now = func() time.Time { return serviceNow }
	return f
}

func createRequest() CreateRequest {
	return CreateRequest{
		MerchantID:   "rent-a-car",
		Amount:       5000,
		Currency:     "RSD",
		Stan:         "PSP-ABCD1234",
		PSPTimestamp: serviceNow,
	}
}

func (f *serviceFixture) createCardPayment(t *testing.T) *CreateResult {
	t.Helper()
	result, err := f.svc.CreatePayment(context.Background(), createRequest())
	if err != nil {
		t.Fatalf("CreatePayment: %v", err)
	}
	return result
}

func cardRequest(paymentID string) ProcessCardRequest {
	return ProcessCardRequest{
		PaymentID:      paymentID,
		PAN:            "4111 1111 1111 1111",
		CardHolderName: "Petar Petrovic",
		ExpiryDate:     "12/28",
		SecurityCode:   "123",
		ClientIP:       "203.0.113.7",
	}
}

func assertFailure(t *testing.T, err error, reason string) *PaymentFailure {
	t.Helper()
	var failure *PaymentFailure
	if !errors.As(err, &failure) {
		t.Fatalf("error = %v, want *PaymentFailure", err)
	}
	if failure.Reason != reason {
		t.Fatalf("failure reason = %q, want %q (message %q)", failure.Reason, reason, failure.Message)
	}
	return failure
}

func TestCreatePayment(t *testing.T) {
	f := newServiceFixture(t)

	result := f.createCardPayment(t)
	if len(result.PaymentID) < 5 || result.PaymentID[:4] != "PAY-" {
		t.Errorf("PaymentID = %q, want PAY- prefix", result.PaymentID)
	}
	if result.PaymentURL != "https://localhost:4201/payment/"+result.PaymentID {
		t.Errorf("PaymentURL = %q", result.PaymentURL)
	}
	if result.Status != domain.TransactionStatusPending {
		t.Errorf("Status = %q, want PENDING", result.Status)
	}

	txn, err := f.transactions.GetByPaymentIDTx(context.Background(), nil, result.PaymentID)
	if err != nil {
		t.Fatalf("stored transaction: %v", err)
	}
	if !txn.PaymentURLExpiresAt.Equal(serviceNow.Add(10 * time.Minute)) {
		t.Errorf("PaymentURLExpiresAt = %v", txn.PaymentURLExpiresAt)
	}
	if txn.PaymentMethod != domain.PaymentMethodCard {
		t.Errorf("PaymentMethod = %q", txn.PaymentMethod)
	}
}

func TestCreatePaymentIdempotentByStan(t *testing.T) {
	f := newServiceFixture(t)

	first := f.createCardPayment(t)
	second, err := f.svc.CreatePayment(context.Background(), createRequest())
	if err != nil {
		t.Fatalf("retried CreatePayment: %v", err)
	}
	if second.PaymentID != first.PaymentID {
		t.Errorf("retry created a new session: %q vs %q", second.PaymentID, first.PaymentID)
	}
	if second.Message != "Payment session already exists." {
		t.Errorf("retry message = %q", second.Message)
	}
}

func TestGetFormData(t *testing.T) {
	f := newServiceFixture(t)
	created := f.createCardPayment(t)

	data, err := f.svc.GetFormData(context.Background(), created.PaymentID)
	if err != nil {
		t.Fatalf("GetFormData: %v", err)
	}
	if data.Expired || data.Amount != 5000 || data.Currency != "RSD" {
		t.Errorf("data = %+v", data)
	}

	if _, err := f.svc.GetFormData(context.Background(), "PAY-MISSING"); !errors.Is(err, domain.ErrTransactionNotFound) {
		t.Errorf("missing session = %v, want ErrTransactionNotFound", err)
	}
}

func TestGetFormDataExpiresStaleSession(t *testing.T) {
	f := newServiceFixture(t)
	created := f.createCardPayment(t)

	f.svc.now = func() time.Time { return serviceNow.Add(11 * time.Minute) }

	data, err := f.svc.GetFormData(context.Background(), created.PaymentID)
	if err != nil {
		t.Fatalf("GetFormData: %v", err)
	}
	if !data.Expired {
		t.Error("stale session not reported expired")
	}
	if got := f.transactions.status(t, created.PaymentID); got != domain.TransactionStatusExpired {
		t.Errorf("stored status = %q, want EXPIRED", got)
	}
	if len(f.psp.calls) != 1 || f.psp.calls[0].Status != string(domain.TransactionStatusExpired) {
		t.Errorf("psp calls = %+v, want one EXPIRED callback", f.psp.calls)
	}
}

func TestProcessCardSuccess(t *testing.T) {
	f := newServiceFixture(t)
	created := f.createCardPayment(t)

	result, err := f.svc.ProcessCard(context.Background(), cardRequest(created.PaymentID))
	if err != nil {
		t.Fatalf("ProcessCard: %v", err)
	}
	if result.Status != domain.TransactionStatusCompleted {
		t.Errorf("Status = %q, want COMPLETED", result.Status)
	}
	if result.RedirectURL != "https://merchant.example/orders/42" {
		t.Errorf("RedirectURL = %q", result.RedirectURL)
	}
	if result.Stan != "PSP-ABCD1234" || result.GlobalTransactionID == "" {
		t.Errorf("result = %+v", result)
	}

	if got := f.accounts.balance(t, payerAccountID); got != 245000 {
		t.Errorf("payer balance = %v, want 245000", got)
	}
	if got := f.accounts.balance(t, merchantAccountID); got != 5000 {
		t.Errorf("merchant balance = %v, want 5000", got)
	}

	txn, _ := f.transactions.GetByPaymentIDTx(context.Background(), nil, created.PaymentID)
	if txn.Status != domain.TransactionStatusCompleted {
		t.Errorf("stored status = %q", txn.Status)
	}
	if !txn.AccountID.Valid || txn.AccountID.Int64 != payerAccountID {
		t.Errorf("payer account not recorded: %+v", txn.AccountID)
	}

	types := f.outbox.types()
	if len(types) != 2 || types[0] != "payment.status" || types[1] != "payment.audit" {
		t.Errorf("outbox message types = %v", types)
	}

	if len(f.psp.calls) != 1 || f.psp.calls[0].Status != string(domain.TransactionStatusCompleted) {
		t.Errorf("psp calls = %+v", f.psp.calls)
	}
}

func TestProcessCardInvalidFormat(t *testing.T) {
	f := newServiceFixture(t)
	created := f.createCardPayment(t)

	req := cardRequest(created.PaymentID)
	req.PAN = "4111-not-a-card"

	_, err := f.svc.ProcessCard(context.Background(), req)
	failure := assertFailure(t, err, FailureInvalidCard)
	if failure.Message != "Invalid card number." {
		t.Errorf("message = %q", failure.Message)
	}
	if failure.RedirectURL != "https://merchant.example/orders/42" {
		t.Errorf("failure redirect = %q, want the PSP-resolved recovery URL", failure.RedirectURL)
	}

	if f.cards.lookups != 0 {
		t.Errorf("card lookup ran on malformed input (%d lookups)", f.cards.lookups)
	}
	if got := f.transactions.status(t, created.PaymentID); got != domain.TransactionStatusFailed {
		t.Errorf("stored status = %q, want FAILED", got)
	}
	if got := f.accounts.balance(t, payerAccountID); got != 250000 {
		t.Errorf("payer balance moved on a declined payment: %v", got)
	}
}

func TestProcessCardNoMatchingCard(t *testing.T) {
	f := newServiceFixture(t)
	created := f.createCardPayment(t)

	req := cardRequest(created.PaymentID)
	req.SecurityCode = "999"

	_, err := f.svc.ProcessCard(context.Background(), req)
	failure := assertFailure(t, err, FailureCardNotFound)
	if failure.Message != "Card details do not match any issued card." {
		t.Errorf("message = %q", failure.Message)
	}
	if got := f.transactions.status(t, created.PaymentID); got != domain.TransactionStatusFailed {
		t.Errorf("stored status = %q, want FAILED", got)
	}
}

func TestProcessCardInsufficientFunds(t *testing.T) {
	f := newServiceFixture(t)

	req := createRequest()
	req.Amount = 300000
	created, err := f.svc.CreatePayment(context.Background(), req)
	if err != nil {
		t.Fatalf("CreatePayment: %v", err)
	}

	_, err = f.svc.ProcessCard(context.Background(), cardRequest(created.PaymentID))
	failure := assertFailure(t, err, FailureInsufficientFunds)
	if failure.Message != "Insufficient funds." {
		t.Errorf("message = %q", failure.Message)
	}
	if got := f.accounts.balance(t, payerAccountID); got != 250000 {
		t.Errorf("payer balance = %v, want untouched 250000", got)
	}
	if got := f.transactions.status(t, created.PaymentID); got != domain.TransactionStatusFailed {
		t.Errorf("stored status = %q, want FAILED", got)
	}
}

func TestProcessCardAlreadyProcessed(t *testing.T) {
	f := newServiceFixture(t)
	created := f.createCardPayment(t)

	if _, err := f.svc.ProcessCard(context.Background(), cardRequest(created.PaymentID)); err != nil {
		t.Fatalf("first ProcessCard: %v", err)
	}
	pspCalls := len(f.psp.calls)

	_, err := f.svc.ProcessCard(context.Background(), cardRequest(created.PaymentID))
	assertFailure(t, err, FailureAlreadyProcessed)

	if len(f.psp.calls) != pspCalls {
		t.Error("resubmission of a settled payment notified the PSP again")
	}
	if got := f.accounts.balance(t, payerAccountID); got != 245000 {
		t.Errorf("payer charged twice: balance %v", got)
	}
}

func TestProcessCardExpiredDeadline(t *testing.T) {
	f := newServiceFixture(t)
	created := f.createCardPayment(t)

	f.svc.now = func() time.Time { return serviceNow.Add(11 * time.Minute) }

	_, err := f.svc.ProcessCard(context.Background(), cardRequest(created.PaymentID))
	assertFailure(t, err, FailureExpired)
	if got := f.transactions.status(t, created.PaymentID); got != domain.TransactionStatusExpired {
		t.Errorf("stored status = %q, want EXPIRED", got)
	}
}

func TestCreateQRPayment(t *testing.T) {
	f := newServiceFixture(t)

	result, err := f.svc.CreateQRPayment(context.Background(), createRequest())
	if err != nil {
		t.Fatalf("CreateQRPayment: %v", err)
	}
	if result.PaymentID != "QR-1" {
		t.Errorf("PaymentID = %q, want QR-1", result.PaymentID)
	}
	if result.PaymentURL != "https://localhost:4201/qr-payment/QR-1" {
		t.Errorf("PaymentURL = %q", result.PaymentURL)
	}
	if result.QRCodeBase64 == "" {
		t.Error("no rendered QR code")
	}

	retry, err := f.svc.CreateQRPayment(context.Background(), createRequest())
	if err != nil {
		t.Fatalf("retried CreateQRPayment: %v", err)
	}
	if retry.PaymentID != "QR-1" || retry.Message != "Payment session already exists." {
		t.Errorf("retry = %+v", retry)
	}
}

func TestGetQRData(t *testing.T) {
	f := newServiceFixture(t)
	if _, err := f.svc.CreateQRPayment(context.Background(), createRequest()); err != nil {
		t.Fatalf("CreateQRPayment: %v", err)
	}

	data, err := f.svc.GetQRData(context.Background(), "QR-1")
	if err != nil {
		t.Fatalf("GetQRData: %v", err)
	}
	if data.Status != domain.TransactionStatusPending {
		t.Errorf("Status = %q", data.Status)
	}
	if data.RecipientName != "Rent-a-Car SEP" || data.Stan != "PSP-ABCD1234" {
		t.Errorf("data = %+v", data)
	}
	if !data.ExpiresAt.Equal(serviceNow.Add(10 * time.Minute)) {
		t.Errorf("ExpiresAt = %v", data.ExpiresAt)
	}
	if data.QRCodeBase64 == "" {
		t.Error("no rendered QR code")
	}
}

func TestGetQRDataExpiresStaleSession(t *testing.T) {
	f := newServiceFixture(t)
	if _, err := f.svc.CreateQRPayment(context.Background(), createRequest()); err != nil {
		t.Fatalf("CreateQRPayment: %v", err)
	}

	f.svc.now = func() time.Time { return serviceNow.Add(11 * time.Minute) }

	data, err := f.svc.GetQRData(context.Background(), "QR-1")
	if err != nil {
		t.Fatalf("GetQRData: %v", err)
	}
	if data.Status != domain.TransactionStatusExpired {
		t.Errorf("Status = %q, want EXPIRED", data.Status)
	}
	if got := f.transactions.status(t, "QR-1"); got != domain.TransactionStatusExpired {
		t.Errorf("stored status = %q, want EXPIRED", got)
	}
}

func TestValidateQRPayload(t *testing.T) {
	f := newServiceFixture(t)

	valid := f.svc.ValidateQRPayload("K:PR|V:01|C:1|R:845000000000404849|N:Rent-a-Car SEP|I:RSD5000,00|SF:289")
	if !valid.Valid {
		t.Errorf("valid payload rejected: %v", valid.Errors)
	}

	invalid := f.svc.ValidateQRPayload("K:PR|V:01")
	if invalid.Valid {
		t.Error("broken payload accepted")
	}
}

func TestConfirmQRSuccess(t *testing.T) {
	f := newServiceFixture(t)
	if _, err := f.svc.CreateQRPayment(context.Background(), createRequest()); err != nil {
		t.Fatalf("CreateQRPayment: %v", err)
	}

	result, err := f.svc.ConfirmQR(context.Background(), 1, payerAccount)
	if err != nil {
		t.Fatalf("ConfirmQR: %v", err)
	}
	if result.Status != domain.TransactionStatusCompleted {
		t.Errorf("Status = %q, want COMPLETED", result.Status)
	}
	if result.RedirectURL != "https://merchant.example/orders/42" {
		t.Errorf("RedirectURL = %q", result.RedirectURL)
	}

	if got := f.accounts.balance(t, payerAccountID); got != 245000 {
		t.Errorf("payer balance = %v, want 245000", got)
	}
	if got := f.accounts.balance(t, merchantAccountID); got != 5000 {
		t.Errorf("merchant balance = %v, want 5000", got)
	}
}

func TestConfirmQRAccountNotFound(t *testing.T) {
	f := newServiceFixture(t)
	if _, err := f.svc.CreateQRPayment(context.Background(), createRequest()); err != nil {
		t.Fatalf("CreateQRPayment: %v", err)
	}

	_, err := f.svc.ConfirmQR(context.Background(), 1, "845-0000000000000-00")
	failure := assertFailure(t, err, FailureAccountNotFound)
	if failure.Message != "Account not found." {
		t.Errorf("message = %q", failure.Message)
	}
	if got := f.transactions.status(t, "QR-1"); got != domain.TransactionStatusFailed {
		t.Errorf("stored status = %q, want FAILED", got)
	}
}

func TestConfirmQRInsufficientFunds(t *testing.T) {
	f := newServiceFixture(t)

	req := createRequest()
	req.Amount = 300000
	if _, err := f.svc.CreateQRPayment(context.Background(), req); err != nil {
		t.Fatalf("CreateQRPayment: %v", err)
	}

	_, err := f.svc.ConfirmQR(context.Background(), 1, payerAccount)
	assertFailure(t, err, FailureInsufficientFunds)
	if got := f.accounts.balance(t, payerAccountID); got != 250000 {
		t.Errorf("payer balance = %v, want untouched 250000", got)
	}
}

func TestConfirmQRUnknownTransaction(t *testing.T) {
	f := newServiceFixture(t)
	if _, err := f.svc.ConfirmQR(context.Background(), 99, payerAccount); !errors.Is(err, domain.ErrTransactionNotFound) {
		t.Errorf("ConfirmQR = %v, want ErrTransactionNotFound", err)
	}
}

func TestConfirmQRAlreadyProcessed(t *testing.T) {
	f := newServiceFixture(t)
	if _, err := f.svc.CreateQRPayment(context.Background(), createRequest()); err != nil {
		t.Fatalf("CreateQRPayment: %v", err)
	}
	if _, err := f.svc.ConfirmQR(context.Background(), 1, payerAccount); err != nil {
		t.Fatalf("first ConfirmQR: %v", err)
	}

	_, err := f.svc.ConfirmQR(context.Background(), 1, payerAccount)
	assertFailure(t, err, FailureAlreadyProcessed)
	if got := f.accounts.balance(t, payerAccountID); got != 245000 {
		t.Errorf("payer charged twice: balance %v", got)
	}
}
