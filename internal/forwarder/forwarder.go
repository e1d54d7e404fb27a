package forwarder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/turioshq/gateway/internal/config"
	contactdomain "github.com/turioshq/gateway/internal/contact/domain"
	messagedomain "github.com/turioshq/gateway/internal/message/domain"
	obsmetrics "github.com/turioshq/gateway/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Cfg        config.Config
	Log        *zap.Logger
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

// Forwarder pushes qualifying client messages to the automation endpoint.
type Forwarder struct {
	url        string
	attendant  string
	client     *http.Client
	log        *zap.Logger
	obsMetrics *obsmetrics.Metrics
}

func New(p Params) *Forwarder {
	timeout := p.Cfg.ForwardTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	attendant := strings.TrimSpace(p.Cfg.AttendantIdentity)
	if attendant == "" {
		attendant = "attendant"
	}
	return &Forwarder{
		url:        strings.TrimSpace(p.Cfg.ForwardURL),
		attendant:  attendant,
		client:     &http.Client{Timeout: timeout},
		log:        p.Log.Named("forwarder"),
		obsMetrics: p.ObsMetrics,
	}
}

type payload struct {
	From      string  `json:"from"`
	To        string  `json:"to"`
	Content   string  `json:"content"`
	Timestamp string  `json:"timestamp"`
	MsgID     string  `json:"msgId"`
	AccountID string  `json:"accountId"`
	Name      string  `json:"name"`
	PhotoURL  *string `json:"photoUrl"`
}

// MaybeForward applies the gate and, when it passes, delivers the message.
// Delivery failures are logged and swallowed: forwarding never blocks
// ingestion and is never retried here.
func (f *Forwarder) MaybeForward(ctx context.Context, msg *messagedomain.Message, contact *contactdomain.Contact) bool {
	if f.url == "" || msg == nil {
		return false
	}
	if contact == nil || !contact.AutomationEnabled {
		return false
	}
	if f.isAttendant(msg.From) {
		return false
	}

	name := strings.TrimSpace(contact.Name)
	if name == "" {
		name = fmt.Sprintf("Cliente %s", msg.From)
	}
	correlationID := ""
	if msg.CorrelationID != nil {
		correlationID = *msg.CorrelationID
	}

	body := payload{
		From:      msg.From,
		To:        msg.To,
		Content:   msg.Content,
		Timestamp: msg.Timestamp.UTC().Format(time.RFC3339),
		MsgID:     correlationID,
		AccountID: msg.AccountID.String(),
		Name:      name,
		PhotoURL:  contact.PhotoURL,
	}

	if err := f.post(ctx, body); err != nil {
		if f.obsMetrics != nil {
			f.obsMetrics.RecordForwardFailure()
		}
		f.log.Warn("forward failed",
			zap.String("account_id", msg.AccountID.String()),
			zap.String("from", msg.From),
			zap.Error(err),
		)
		return false
	}

	if f.obsMetrics != nil {
		f.obsMetrics.RecordMessageForwarded()
	}
	return true
}

func (f *Forwarder) isAttendant(from string) bool {
	return from == f.attendant || strings.HasPrefix(from, f.attendant)
}

func (f *Forwarder) post(ctx context.Context, body payload) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, bytes.NewReader(encoded))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("forward endpoint returned %d", resp.StatusCode)
	}
	return nil
}
