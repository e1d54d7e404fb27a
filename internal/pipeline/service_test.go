package pipeline

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
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
	inbounddomain "github.com/turioshq/gateway/internal/inbound/domain"
	messagedomain "github.com/turioshq/gateway/internal/message/domain"
	messageservice "github.com/turioshq/gateway/internal/message/service"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type forwardCapture struct {
	mu       sync.Mutex
	payloads []map[string]any
}

func (f *forwardCapture) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.payloads = append(f.payloads, body)
		f.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}
}

func (f *forwardCapture) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payloads)
}

type pipelineFixture struct {
	svc        *Service
	db         *gorm.DB
	node       *snowflake.Node
	accountSvc accountdomain.Service
	contactSvc contactdomain.Service
	capture    *forwardCapture
}

func newPipelineFixture(t *testing.T, name string) *pipelineFixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&accountdomain.Account{},
		&accountdomain.ChannelBinding{},
		&contactdomain.Contact{},
		&messagedomain.Message{},
	))
	require.NoError(t, db.Exec(
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_messages_account_meta_msg_id
		 ON messages (account_id, meta_msg_id)
		 WHERE meta_msg_id IS NOT NULL`,
	).Error)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	log := zap.NewNop()

	capture := &forwardCapture{}
	srv := httptest.NewServer(capture.handler())
	t.Cleanup(srv.Close)

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
	fwd := forwarder.New(forwarder.Params{
		Cfg: config.Config{
			ForwardURL:        srv.URL,
			ForwardTimeout:    2 * time.Second,
			AttendantIdentity: "atendente",
		},
		Log: log,
	})

	svc := New(Params{
		Log:        log,
		AccountSvc: accountSvc,
		ContactSvc: contactSvc,
		MessageSvc: messageSvc,
		Forwarder:  fwd,
	})

	return &pipelineFixture{
		svc:        svc,
		db:         db,
		node:       node,
		accountSvc: accountSvc,
		contactSvc: contactSvc,
		capture:    capture,
	}
}

func (f *pipelineFixture) bindAccount(t *testing.T, routingID string) snowflake.ID {
	t.Helper()
	account, err := f.accountSvc.Create(context.Background(), accountdomain.CreateAccountRequest{
		Name:    "acct",
		Credits: 1000,
	})
	require.NoError(t, err)
	_, err = f.accountSvc.Bind(context.Background(), accountdomain.BindChannelRequest{
		RoutingID: routingID,
		AccountID: account.ID.String(),
	})
	require.NoError(t, err)
	return account.ID
}

func inboundMessage(correlationID string) inbounddomain.Message {
	return inbounddomain.Message{
		From:          "5561911112222",
		To:            "556199998888",
		Content:       "oi",
		Timestamp:     time.Unix(1700000000, 0).UTC(),
		CorrelationID: correlationID,
		Format:        inbounddomain.FormatOfficial,
	}
}

func TestProcessBatchEndToEnd(t *testing.T) {
	f := newPipelineFixture(t, "pipeline_e2e")
	accountID := f.bindAccount(t, "556199998888")

	f.svc.ProcessBatch(context.Background(), inbounddomain.Batch{
		Messages: []inbounddomain.Message{inboundMessage("wamid.1")},
	})

	var count int64
	require.NoError(t, f.db.Raw(`SELECT COUNT(*) FROM messages WHERE account_id = ?`, accountID).Scan(&count).Error)
	assert.Equal(t, int64(1), count)

	contact, err := f.contactSvc.Get(context.Background(), accountID, "5561911112222")
	require.NoError(t, err)
	require.NotNil(t, contact)
	assert.Equal(t, "Cliente 5561911112222", contact.Name)

	require.Equal(t, 1, f.capture.count())
	payload := f.capture.payloads[0]
	assert.Equal(t, "5561911112222", payload["from"])
	assert.Equal(t, "oi", payload["content"])
	assert.Equal(t, "wamid.1", payload["msgId"])
	assert.Equal(t, accountID.String(), payload["accountId"])
	assert.Equal(t, "Cliente 5561911112222", payload["name"])
}

func TestProcessBatchUnknownRoutingSkipped(t *testing.T) {
	f := newPipelineFixture(t, "pipeline_unknown")

	f.svc.ProcessBatch(context.Background(), inbounddomain.Batch{
		Messages: []inbounddomain.Message{inboundMessage("wamid.1")},
	})

	var count int64
	require.NoError(t, f.db.Raw(`SELECT COUNT(*) FROM messages`).Scan(&count).Error)
	assert.Zero(t, count)
	assert.Zero(t, f.capture.count())
}

func TestProcessBatchRedeliveryForwardsOnce(t *testing.T) {
	f := newPipelineFixture(t, "pipeline_redelivery")
	accountID := f.bindAccount(t, "556199998888")

	batch := inbounddomain.Batch{Messages: []inbounddomain.Message{inboundMessage("wamid.1")}}
	f.svc.ProcessBatch(context.Background(), batch)
	f.svc.ProcessBatch(context.Background(), batch)

	var count int64
	require.NoError(t, f.db.Raw(`SELECT COUNT(*) FROM messages WHERE account_id = ?`, accountID).Scan(&count).Error)
	assert.Equal(t, int64(1), count)
	assert.Equal(t, 1, f.capture.count())
}

func TestProcessBatchRedeliveryRepairsContact(t *testing.T) {
	f := newPipelineFixture(t, "pipeline_redelivery_contact")
	accountID := f.bindAccount(t, "556199998888")

	batch := inbounddomain.Batch{Messages: []inbounddomain.Message{inboundMessage("wamid.1")}}
	f.svc.ProcessBatch(context.Background(), batch)

	// the first delivery stored the message but the contact row was lost
	require.NoError(t, f.db.Exec(
		`DELETE FROM contacts WHERE account_id = ? AND phone = ?`,
		accountID, "5561911112222",
	).Error)

	f.svc.ProcessBatch(context.Background(), batch)

	// the redelivery recreates the contact without forwarding again
	contact, err := f.contactSvc.Get(context.Background(), accountID, "5561911112222")
	require.NoError(t, err)
	require.NotNil(t, contact)

	var count int64
	require.NoError(t, f.db.Raw(`SELECT COUNT(*) FROM messages WHERE account_id = ?`, accountID).Scan(&count).Error)
	assert.Equal(t, int64(1), count)
	assert.Equal(t, 1, f.capture.count())
}

func TestProcessBatchAutomationDisabledNotForwarded(t *testing.T) {
	f := newPipelineFixture(t, "pipeline_disabled")
	accountID := f.bindAccount(t, "556199998888")

	_, err := f.contactSvc.EnsureExists(context.Background(), accountID, "5561911112222", "Cliente 5561911112222")
	require.NoError(t, err)
	require.NoError(t, f.contactSvc.SetAutomationEnabled(context.Background(), accountID, "5561911112222", false))

	f.svc.ProcessBatch(context.Background(), inbounddomain.Batch{
		Messages: []inbounddomain.Message{inboundMessage("wamid.1")},
	})

	// stored for history, withheld from the automation endpoint
	var count int64
	require.NoError(t, f.db.Raw(`SELECT COUNT(*) FROM messages WHERE account_id = ?`, accountID).Scan(&count).Error)
	assert.Equal(t, int64(1), count)
	assert.Zero(t, f.capture.count())
}

func TestProcessBatchAttendantNotForwarded(t *testing.T) {
	f := newPipelineFixture(t, "pipeline_attendant")
	f.bindAccount(t, "556199998888")

	msg := inboundMessage("wamid.1")
	msg.From = "atendente"
	f.svc.ProcessBatch(context.Background(), inbounddomain.Batch{
		Messages: []inbounddomain.Message{msg},
	})

	assert.Zero(t, f.capture.count())
}

func TestProcessBatchStatusUpdate(t *testing.T) {
	f := newPipelineFixture(t, "pipeline_status")
	accountID := f.bindAccount(t, "556199998888")

	f.svc.ProcessBatch(context.Background(), inbounddomain.Batch{
		Messages: []inbounddomain.Message{inboundMessage("wamid.1")},
	})
	f.svc.ProcessBatch(context.Background(), inbounddomain.Batch{
		Statuses: []inbounddomain.StatusUpdate{
			{RoutingID: "556199998888", CorrelationID: "wamid.1", Status: "read"},
			{RoutingID: "unbound", CorrelationID: "wamid.9", Status: "read"},
		},
	})

	var status string
	require.NoError(t, f.db.Raw(
		`SELECT status FROM messages WHERE account_id = ? AND meta_msg_id = ?`,
		accountID, "wamid.1",
	).Scan(&status).Error)
	assert.Equal(t, "read", status)
}
