package server

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	accountdomain "github.com/turioshq/gateway/internal/account/domain"
	accountrepo "github.com/turioshq/gateway/internal/account/repository"
	accountservice "github.com/turioshq/gateway/internal/account/service"
	"github.com/turioshq/gateway/internal/cache"
	"github.com/turioshq/gateway/internal/config"
	contactdomain "github.com/turioshq/gateway/internal/contact/domain"
	contactrepo "github.com/turioshq/gateway/internal/contact/repository"
	contactservice "github.com/turioshq/gateway/internal/contact/service"
	"github.com/turioshq/gateway/internal/forwarder"
	"github.com/turioshq/gateway/internal/inbound/normalizer"
	ledgerservice "github.com/turioshq/gateway/internal/ledger/service"
	messagedomain "github.com/turioshq/gateway/internal/message/domain"
	messageservice "github.com/turioshq/gateway/internal/message/service"
	"github.com/turioshq/gateway/internal/payment/adapters"
	"github.com/turioshq/gateway/internal/payment/adapters/stripe"
	"github.com/turioshq/gateway/internal/payment/checkout"
	paymentdomain "github.com/turioshq/gateway/internal/payment/domain"
	paymentrepo "github.com/turioshq/gateway/internal/payment/repository"
	paymentservice "github.com/turioshq/gateway/internal/payment/service"
	"github.com/turioshq/gateway/internal/pipeline"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type serverFixture struct {
	router     *gin.Engine
	db         *gorm.DB
	node       *snowflake.Node
	accountSvc accountdomain.Service
	contactSvc contactdomain.Service
}

func newServerFixture(t *testing.T, name string, cfg config.Config) *serverFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&accountdomain.Account{},
		&accountdomain.ChannelBinding{},
		&contactdomain.Contact{},
		&messagedomain.Message{},
		&paymentdomain.EventRecord{},
	))
	require.NoError(t, db.Exec(
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_messages_account_meta_msg_id
		 ON messages (account_id, meta_msg_id)
		 WHERE meta_msg_id IS NOT NULL`,
	).Error)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	log := zap.NewNop()

	accountSvc := accountservice.New(accountservice.Params{
		DB:            db,
		Log:           log,
		GenID:         node,
		Repo:          accountrepo.Provide(),
		ResolverCache: cache.NewBindingResolverCache(),
	})
	contactSvc := contactservice.New(contactservice.Params{
		DB:    db,
		Log:   log,
		GenID: node,
		Repo:  contactrepo.Provide(),
	})
	messageSvc := messageservice.New(messageservice.Params{DB: db, Log: log, GenID: node})
	ledgerSvc := ledgerservice.New(ledgerservice.Params{DB: db, Log: log})
	pipelineSvc := pipeline.New(pipeline.Params{
		Log:        log,
		AccountSvc: accountSvc,
		ContactSvc: contactSvc,
		MessageSvc: messageSvc,
		Forwarder:  forwarder.New(forwarder.Params{Cfg: cfg, Log: log}),
	})
	paymentSvc := paymentservice.NewService(paymentservice.Params{
		DB:        db,
		Log:       log,
		GenID:     node,
		Cfg:       cfg,
		LedgerSvc: ledgerSvc,
		Repo:      paymentrepo.Provide(),
		Adapters:  adapters.NewRegistry(stripe.NewFactory()),
	})

	router := gin.New()
	router.Use(ErrorHandlingMiddleware())

	NewServer(ServerParams{
		Gin:         router,
		Cfg:         cfg,
		DB:          db,
		GenID:       node,
		AccountSvc:  accountSvc,
		ContactSvc:  contactSvc,
		MessageSvc:  messageSvc,
		LedgerSvc:   ledgerSvc,
		PipelineSvc: pipelineSvc,
		Normalizer:  normalizer.New(normalizer.Config{TimestampOffset: cfg.TimestampOffset}),
		PaymentSvc:  paymentSvc,
		CheckoutSvc: checkout.NewService(checkout.Params{Cfg: cfg, Log: log}),
	})

	return &serverFixture{
		router:     router,
		db:         db,
		node:       node,
		accountSvc: accountSvc,
		contactSvc: contactSvc,
	}
}

func (f *serverFixture) postJSON(t *testing.T, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	f.router.ServeHTTP(resp, req)
	return resp
}

func (f *serverFixture) seedBoundAccount(t *testing.T, routingID string, credits int64) snowflake.ID {
	t.Helper()
	account, err := f.accountSvc.Create(context.Background(), accountdomain.CreateAccountRequest{
		Name:    "acct",
		Credits: credits,
	})
	require.NoError(t, err)
	if routingID != "" {
		_, err = f.accountSvc.Bind(context.Background(), accountdomain.BindChannelRequest{
			RoutingID: routingID,
			AccountID: account.ID.String(),
		})
		require.NoError(t, err)
	}
	return account.ID
}

func TestVerifyWebhookHandshake(t *testing.T) {
	f := newServerFixture(t, "srv_handshake", config.Config{WebhookVerifyToken: "token123"})

	req := httptest.NewRequest(http.MethodGet,
		"/webhook?hub.mode=subscribe&hub.verify_token=token123&hub.challenge=challenge42", nil)
	resp := httptest.NewRecorder()
	f.router.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "challenge42", resp.Body.String())
}

func TestVerifyWebhookRejectsBadToken(t *testing.T) {
	f := newServerFixture(t, "srv_handshake_bad", config.Config{WebhookVerifyToken: "token123"})

	for _, query := range []string{
		"hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=c",
		"hub.mode=unsubscribe&hub.verify_token=token123&hub.challenge=c",
		"",
	} {
		req := httptest.NewRequest(http.MethodGet, "/webhook?"+query, nil)
		resp := httptest.NewRecorder()
		f.router.ServeHTTP(resp, req)
		assert.Equal(t, http.StatusForbidden, resp.Code, "query %q", query)
	}
}

func TestIngestWebhookStoresRelayMessage(t *testing.T) {
	f := newServerFixture(t, "srv_ingest", config.Config{})
	accountID := f.seedBoundAccount(t, "556199998888", 100)

	resp := f.postJSON(t, "/webhook", `{
		"from": "5561911112222",
		"to": "556199998888",
		"content": "ola",
		"msg_id": "rel-1"
	}`)
	require.Equal(t, http.StatusOK, resp.Code)

	var count int64
	require.NoError(t, f.db.Raw(`SELECT COUNT(*) FROM messages WHERE account_id = ?`, accountID).Scan(&count).Error)
	assert.Equal(t, int64(1), count)

	contact, err := f.contactSvc.Get(context.Background(), accountID, "5561911112222")
	require.NoError(t, err)
	require.NotNil(t, contact)
}

func TestIngestWebhookMalformedPayload(t *testing.T) {
	f := newServerFixture(t, "srv_ingest_bad", config.Config{})

	resp := f.postJSON(t, "/webhook", `{"object": "unexpected"}`)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestAgentResponseConsumesTokens(t *testing.T) {
	f := newServerFixture(t, "srv_agent", config.Config{AttendantIdentity: "atendente"})
	accountID := f.seedBoundAccount(t, "", 100)

	resp := f.postJSON(t, "/ia-response", fmt.Sprintf(
		`{"account_id": "%s", "phone": "555", "tokens_used": 40, "reply_text": "tudo certo"}`, accountID))
	require.Equal(t, http.StatusOK, resp.Code)

	var used int64
	require.NoError(t, f.db.Raw(`SELECT ia_credits_used FROM accounts WHERE id = ?`, accountID).Scan(&used).Error)
	assert.Equal(t, int64(40), used)

	// the generated reply lands in history as an agent message
	var row struct {
		Sender   string
		FromRole string `gorm:"column:from_role"`
		IsAI     bool   `gorm:"column:is_ai"`
	}
	require.NoError(t, f.db.Raw(
		`SELECT sender, from_role, is_ai FROM messages WHERE account_id = ?`, accountID,
	).Scan(&row).Error)
	assert.Equal(t, "atendente", row.Sender)
	assert.Equal(t, string(messagedomain.FromRoleAgent), row.FromRole)
	assert.True(t, row.IsAI)
}

func TestAgentResponseQuotaExceeded(t *testing.T) {
	f := newServerFixture(t, "srv_agent_quota", config.Config{AutomationAutoDisable: true})
	accountID := f.seedBoundAccount(t, "", 10)
	_, err := f.contactSvc.EnsureExists(context.Background(), accountID, "555", "Cliente 555")
	require.NoError(t, err)

	resp := f.postJSON(t, "/ia-response", fmt.Sprintf(
		`{"account_id": "%s", "phone": "555", "tokens_used": 50}`, accountID))
	assert.Equal(t, http.StatusForbidden, resp.Code)

	var body struct {
		Error struct {
			Type string `json:"type"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, "quota_exceeded", body.Error.Type)

	// a denied settlement is not a completed turn, the contact keeps automation
	contact, err := f.contactSvc.Get(context.Background(), accountID, "555")
	require.NoError(t, err)
	require.NotNil(t, contact)
	assert.True(t, contact.AutomationEnabled)
}

func TestAgentResponseAutoDisablesAfterTurn(t *testing.T) {
	f := newServerFixture(t, "srv_agent_handoff", config.Config{
		AttendantIdentity:     "atendente",
		AutomationAutoDisable: true,
	})
	accountID := f.seedBoundAccount(t, "", 100)
	_, err := f.contactSvc.EnsureExists(context.Background(), accountID, "555", "Cliente 555")
	require.NoError(t, err)

	resp := f.postJSON(t, "/ia-response", fmt.Sprintf(
		`{"account_id": "%s", "phone": "555", "tokens_used": 40, "reply_text": "segue"}`, accountID))
	require.Equal(t, http.StatusOK, resp.Code)

	// one automated turn: after settling, the conversation goes to a human
	contact, err := f.contactSvc.Get(context.Background(), accountID, "555")
	require.NoError(t, err)
	require.NotNil(t, contact)
	assert.False(t, contact.AutomationEnabled)
}

func TestAgentResponseInvalidAccount(t *testing.T) {
	f := newServerFixture(t, "srv_agent_invalid", config.Config{})

	resp := f.postJSON(t, "/ia-response", `{"account_id": "abc", "phone": "555", "tokens_used": 1}`)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestAgentResponseUnknownAccount(t *testing.T) {
	f := newServerFixture(t, "srv_agent_unknown", config.Config{})

	resp := f.postJSON(t, "/ia-response", fmt.Sprintf(
		`{"account_id": "%d", "phone": "555", "tokens_used": 1}`, 987654321))
	assert.Equal(t, http.StatusInternalServerError, resp.Code)
}

func signStripePayload(secret string, payload []byte, ts int64) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(fmt.Sprintf("%d.%s", ts, string(payload))))
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func stripeTopUpPayload(accountID snowflake.ID, eventID string) []byte {
	return []byte(fmt.Sprintf(`{
		"id": "%s",
		"type": "checkout.session.completed",
		"created": 1700000000,
		"data": {"object": {"id": "cs_1", "payment_status": "paid", "metadata": {"account_id": "%s"}}}
	}`, eventID, accountID))
}

func (f *serverFixture) postSignedPaymentWebhook(t *testing.T, secret string, payload []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/payments/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Stripe-Signature", signStripePayload(secret, payload, time.Now().Unix()))
	resp := httptest.NewRecorder()
	f.router.ServeHTTP(resp, req)
	return resp
}

func TestPaymentWebhookTopUp(t *testing.T) {
	cfg := config.Config{
		PlanCredits: 1000,
		Payment:     config.PaymentConfig{WebhookSecret: "whsec_test"},
	}
	f := newServerFixture(t, "srv_payment", cfg)
	accountID := f.seedBoundAccount(t, "", 0)
	require.NoError(t, f.db.Exec(
		`UPDATE accounts SET ia_credits_used = 100, out_of_ia_credits = ? WHERE id = ?`, true, accountID,
	).Error)

	payload := stripeTopUpPayload(accountID, "evt_1")
	resp := f.postSignedPaymentWebhook(t, "whsec_test", payload)
	require.Equal(t, http.StatusOK, resp.Code)

	var row struct {
		Credits        int64
		IACreditsUsed  int64 `gorm:"column:ia_credits_used"`
		OutOfIACredits bool  `gorm:"column:out_of_ia_credits"`
	}
	require.NoError(t, f.db.Raw(
		`SELECT credits, ia_credits_used, out_of_ia_credits FROM accounts WHERE id = ?`, accountID,
	).Scan(&row).Error)
	assert.Equal(t, int64(1000), row.Credits)
	assert.Zero(t, row.IACreditsUsed)
	assert.False(t, row.OutOfIACredits)

	// a replay acknowledges without crediting twice
	resp = f.postSignedPaymentWebhook(t, "whsec_test", payload)
	assert.Equal(t, http.StatusOK, resp.Code)
	require.NoError(t, f.db.Raw(`SELECT credits FROM accounts WHERE id = ?`, accountID).Scan(&row.Credits).Error)
	assert.Equal(t, int64(1000), row.Credits)
}

func TestPaymentWebhookBadSignature(t *testing.T) {
	cfg := config.Config{
		PlanCredits: 1000,
		Payment:     config.PaymentConfig{WebhookSecret: "whsec_test"},
	}
	f := newServerFixture(t, "srv_payment_sig", cfg)
	accountID := f.seedBoundAccount(t, "", 0)

	resp := f.postSignedPaymentWebhook(t, "whsec_wrong", stripeTopUpPayload(accountID, "evt_1"))
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestPaymentWebhookUnknownProvider(t *testing.T) {
	f := newServerFixture(t, "srv_payment_provider", config.Config{})

	resp := f.postJSON(t, "/payments/webhooks/paypal", `{"id": "evt_1"}`)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestCreateCheckoutSession(t *testing.T) {
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/checkout/sessions", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.NotEmpty(t, r.PostForm.Get("metadata[account_id]"))
		assert.Equal(t, "price_basic", r.PostForm.Get("line_items[0][price]"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": "cs_test", "url": "https://pay.example.com/cs_test"}`))
	}))
	defer provider.Close()

	cfg := config.Config{
		Payment: config.PaymentConfig{
			APIKey:     "sk_test",
			APIBaseURL: provider.URL,
			SuccessURL: "https://app.example.com/ok",
			CancelURL:  "https://app.example.com/cancel",
		},
	}
	f := newServerFixture(t, "srv_checkout", cfg)
	accountID := f.seedBoundAccount(t, "", 0)

	resp := f.postJSON(t, "/create-checkout-session",
		fmt.Sprintf(`{"account_id": "%s", "price_id": "price_basic"}`, accountID))
	require.Equal(t, http.StatusOK, resp.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, "cs_test", body["id"])
	assert.Equal(t, "https://pay.example.com/cs_test", body["url"])
}

func TestCreateCheckoutSessionUnknownAccount(t *testing.T) {
	f := newServerFixture(t, "srv_checkout_unknown", config.Config{
		Payment: config.PaymentConfig{APIKey: "sk_test", APIBaseURL: "http://127.0.0.1:1"},
	})

	resp := f.postJSON(t, "/create-checkout-session",
		fmt.Sprintf(`{"account_id": "%s", "price_id": "price_basic"}`, f.node.Generate()))
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestCreateCheckoutSessionUnconfigured(t *testing.T) {
	f := newServerFixture(t, "srv_checkout_off", config.Config{})
	accountID := f.seedBoundAccount(t, "", 0)

	resp := f.postJSON(t, "/create-checkout-session",
		fmt.Sprintf(`{"account_id": "%s", "price_id": "price_basic"}`, accountID))
	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
}

func TestCreateCheckoutSessionMissingPrice(t *testing.T) {
	f := newServerFixture(t, "srv_checkout_price", config.Config{})
	accountID := f.seedBoundAccount(t, "", 0)

	resp := f.postJSON(t, "/create-checkout-session", fmt.Sprintf(`{"account_id": "%s"}`, accountID))
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestAccountLifecycle(t *testing.T) {
	f := newServerFixture(t, "srv_accounts", config.Config{})

	resp := f.postJSON(t, "/accounts", `{"name": "Clinic", "credits": 500}`)
	require.Equal(t, http.StatusCreated, resp.Code)

	var created accountdomain.Account
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &created))
	assert.Equal(t, "Clinic", created.Name)

	get := httptest.NewRequest(http.MethodGet, "/accounts/"+created.ID.String(), nil)
	getResp := httptest.NewRecorder()
	f.router.ServeHTTP(getResp, get)
	assert.Equal(t, http.StatusOK, getResp.Code)

	bind := f.postJSON(t, "/accounts/bind",
		fmt.Sprintf(`{"routing_id": "556199998888", "account_id": "%s"}`, created.ID))
	require.Equal(t, http.StatusCreated, bind.Code)

	// the same routing id cannot point at two tenants
	dup := f.postJSON(t, "/accounts/bind",
		fmt.Sprintf(`{"routing_id": "556199998888", "account_id": "%s"}`, created.ID))
	assert.Equal(t, http.StatusConflict, dup.Code)
}
