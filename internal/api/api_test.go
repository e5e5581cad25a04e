package api

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"database/sql"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"sync"
	"testing"

	"chatwallet/internal/database"
	"chatwallet/internal/models"
	"chatwallet/internal/store"
	"chatwallet/internal/transport"
)

type recordingHandler struct {
	mu       sync.Mutex
	handle   string
	text     string
	name     string
	imc      *models.InboundMessageContext
	canceled bool
}

func (h *recordingHandler) HandleMessage(ctx context.Context, handle, text, displayName string) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handle, h.text, h.name = handle, text, displayName
	h.imc = models.GetInboundMessageContext(ctx)
	h.canceled = ctx.Err() != nil
	return "reply to " + text
}

type recordingSender struct {
	mu   sync.Mutex
	to   string
	text string
	err  error
}

func (s *recordingSender) Send(ctx context.Context, to, text string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.to, s.text = to, text
	return "SM1", s.err
}

func setupTestDb(t *testing.T) *database.Service {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	db.SetMaxOpenConns(1)
	service, err := database.NewServiceFromDB(db)
	if err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}
	t.Cleanup(service.Close)
	return service
}

func postForm(t *testing.T, h http.Handler, form url.Values, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook/inbound", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestInbound_DeliversReply(t *testing.T) {
	handler := &recordingHandler{}
	sender := &recordingSender{}
	svc := NewService(Config{Handler: handler, Store: setupTestDb(t), Sender: sender})

	rec := postForm(t, svc.Router(), url.Values{
		"From":        {"whatsapp:+15551234567"},
		"Body":        {"balance"},
		"ProfileName": {"Ada"},
		"MessageSid":  {"SM42"},
	}, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "<Response></Response>") {
		t.Errorf("Expected empty TwiML, got %q", rec.Body.String())
	}
	if handler.handle != "+15551234567" || handler.text != "balance" || handler.name != "Ada" {
		t.Errorf("Unexpected handler input %q %q %q", handler.handle, handler.text, handler.name)
	}
	if handler.imc == nil || handler.imc.MessageId != "SM42" || handler.imc.Channel != transport.ChannelWhatsApp {
		t.Errorf("Inbound context not propagated: %+v", handler.imc)
	}
	if sender.to != "whatsapp:+15551234567" || sender.text != "reply to balance" {
		t.Errorf("Unexpected delivery to %q: %q", sender.to, sender.text)
	}
}

func TestInbound_SendFailureStillAcknowledges(t *testing.T) {
	sender := &recordingSender{err: errors.New("provider down")}
	svc := NewService(Config{Handler: &recordingHandler{}, Store: setupTestDb(t), Sender: sender})

	rec := postForm(t, svc.Router(), url.Values{"From": {"+15551234567"}, "Body": {"hi"}}, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200 so the provider does not re-deliver, got %d", rec.Code)
	}
}

func TestInbound_MissingSender(t *testing.T) {
	handler := &recordingHandler{}
	svc := NewService(Config{Handler: handler, Store: setupTestDb(t), Sender: &recordingSender{}})

	rec := postForm(t, svc.Router(), url.Values{"Body": {"hi"}}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", rec.Code)
	}
	if handler.text != "" {
		t.Error("Handler called for an invalid webhook")
	}
}

func TestInbound_Signature(t *testing.T) {
	const webhookURL = "https://wallet.example.com/webhook/inbound"
	handler := &recordingHandler{}
	svc := NewService(Config{
		Handler:        handler,
		Store:          setupTestDb(t),
		Sender:         &recordingSender{},
		SignatureToken: "token",
		WebhookURL:     webhookURL,
	})
	form := url.Values{"From": {"+15551234567"}, "Body": {"send 1 SOL"}}

	rec := postForm(t, svc.Router(), form, http.Header{transport.SignatureHeader: {"bogus"}})
	if rec.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for a bad signature, got %d", rec.Code)
	}
	if handler.text != "" {
		t.Error("Handler called for an unsigned webhook")
	}

	sig := signWebhook("token", webhookURL, form)
	rec = postForm(t, svc.Router(), form, http.Header{transport.SignatureHeader: {sig}})
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200 for a valid signature, got %d", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	svc := NewService(Config{Handler: &recordingHandler{}, Store: setupTestDb(t)})

	rec := httptest.NewRecorder()
	svc.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Errorf("Expected healthy, got %d %q", rec.Code, rec.Body.String())
	}
}

func TestHealthz_ClosedDatabase(t *testing.T) {
	db := setupTestDb(t)
	svc := NewService(Config{Handler: &recordingHandler{}, Store: db})
	db.Close()

	rec := httptest.NewRecorder()
	svc.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503, got %d", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	svc := NewService(Config{Handler: &recordingHandler{}, Store: setupTestDb(t)})

	rec := httptest.NewRecorder()
	svc.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Errorf("Expected prometheus exposition, got %d", rec.Code)
	}
}

func TestGetAccountSummary(t *testing.T) {
	ctx := context.Background()
	db := setupTestDb(t)
	svc := NewService(Config{Handler: &recordingHandler{}, Store: db})

	if _, err := svc.GetAccountSummary(ctx, "+1999", 0, 0); !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("Expected ErrAccountNotFound, got %v", err)
	}

	account, err := db.CreateAccount(ctx, store.CreateAccountParams{Handle: "+15551234567"})
	if err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}
	if _, err := db.CreateWallets(ctx, account.Id, store.ProvisionParams{Wallets: []store.CreateWalletParams{
		{Family: models.FamilySolana, Address: "sol-address", DerivationPath: "m/44'/501'/0'/0'", EncryptedSeed: "c", Salt: "s", IsDefault: true},
	}}); err != nil {
		t.Fatalf("CreateWallets failed: %v", err)
	}
	if _, err := db.RecordTransaction(ctx, store.RecordTransactionParams{
		AccountId:   account.Id,
		Family:      models.FamilySolana,
		Type:        models.TransactionSend,
		FromAddress: "sol-address",
		ToAddress:   "peer",
		Amount:      "1",
		TokenSymbol: "SOL",
		Hash:        "hash-1",
		Status:      models.StatusPending,
	}); err != nil {
		t.Fatalf("RecordTransaction failed: %v", err)
	}

	summary, err := svc.GetAccountSummary(ctx, "+15551234567", 0, -1)
	if err != nil {
		t.Fatalf("GetAccountSummary failed: %v", err)
	}
	if summary.Account.Id != account.Id || len(summary.Wallets) != 1 || len(summary.Transactions) != 1 {
		t.Errorf("Unexpected summary %+v", summary)
	}
}

func signWebhook(authToken, fullURL string, form url.Values) string {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	payload := fullURL
	for _, k := range keys {
		payload += k + form.Get(k)
	}
	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(payload))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
