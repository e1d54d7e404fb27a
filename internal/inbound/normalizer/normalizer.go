package normalizer

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/turioshq/gateway/internal/inbound/domain"
)

// millisecond epoch values start around 1e12; second values top out near 1e10
const millisecondThreshold = int64(1e12)

type Config struct {
	// TimestampOffset is subtracted from official envelope timestamps.
	// Some provider tenants report wall clock in a fixed local zone.
	TimestampOffset time.Duration
}

// Normalizer converts raw webhook payloads into canonical batches.
// It is pure: no storage, no network, no side effects.
type Normalizer struct {
	offset time.Duration
	now    func() time.Time
}

func New(cfg Config) *Normalizer {
	return &Normalizer{
		offset: cfg.TimestampOffset,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Decode recognizes the official envelope and the relay object. Anything
// else is malformed. Individual unusable items are dropped, never fatal.
func (n *Normalizer) Decode(payload []byte) (domain.Batch, error) {
	if len(payload) == 0 {
		return domain.Batch{}, domain.ErrMalformedPayload
	}

	var envelope officialEnvelope
	if err := json.Unmarshal(payload, &envelope); err == nil && envelope.Object == "whatsapp_business_account" {
		return n.decodeOfficial(envelope), nil
	}

	var relay relayPayload
	if err := json.Unmarshal(payload, &relay); err == nil && strings.TrimSpace(relay.From) != "" {
		return n.decodeRelay(relay)
	}

	return domain.Batch{}, domain.ErrMalformedPayload
}

type officialEnvelope struct {
	Object string          `json:"object"`
	Entry  []officialEntry `json:"entry"`
}

type officialEntry struct {
	Changes []officialChange `json:"changes"`
}

type officialChange struct {
	Value officialValue `json:"value"`
}

type officialValue struct {
	Metadata officialMetadata  `json:"metadata"`
	Messages []officialMessage `json:"messages"`
	Statuses []officialStatus  `json:"statuses"`
}

type officialMetadata struct {
	PhoneNumberID string `json:"phone_number_id"`
}

type officialMessage struct {
	ID        string          `json:"id"`
	From      string          `json:"from"`
	Timestamp json.RawMessage `json:"timestamp"`
	Type      string          `json:"type"`
	Text      *officialText   `json:"text"`
}

type officialText struct {
	Body string `json:"body"`
}

type officialStatus struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func (n *Normalizer) decodeOfficial(envelope officialEnvelope) domain.Batch {
	var batch domain.Batch
	for _, entry := range envelope.Entry {
		for _, change := range entry.Changes {
			routingID := strings.TrimSpace(change.Value.Metadata.PhoneNumberID)

			for _, msg := range change.Value.Messages {
				from := strings.TrimSpace(msg.From)
				if from == "" || routingID == "" {
					continue
				}
				// echoes of our own outbound traffic
				if from == routingID {
					continue
				}

				content := domain.NoTextPlaceholder
				if msg.Text != nil && msg.Text.Body != "" {
					content = msg.Text.Body
				}

				ts := n.now()
				if unix, ok := parseFlexibleInt(msg.Timestamp); ok {
					ts = normalizeUnix(unix).Add(-n.offset)
				}

				batch.Messages = append(batch.Messages, domain.Message{
					From:          from,
					To:            routingID,
					Content:       content,
					Timestamp:     ts,
					CorrelationID: strings.TrimSpace(msg.ID),
					Format:        domain.FormatOfficial,
				})
			}

			for _, status := range change.Value.Statuses {
				correlationID := strings.TrimSpace(status.ID)
				state := strings.TrimSpace(status.Status)
				if correlationID == "" || state == "" {
					continue
				}
				batch.Statuses = append(batch.Statuses, domain.StatusUpdate{
					RoutingID:     routingID,
					CorrelationID: correlationID,
					Status:        state,
				})
			}
		}
	}
	return batch
}

type relayPayload struct {
	From      string          `json:"from"`
	To        string          `json:"to"`
	Content   string          `json:"content"`
	Timestamp json.RawMessage `json:"timestamp"`
	MsgID     string          `json:"msg_id"`
}

func (n *Normalizer) decodeRelay(relay relayPayload) (domain.Batch, error) {
	from := strings.TrimSpace(relay.From)
	to := strings.TrimSpace(relay.To)
	if to == "" {
		// without a routing id there is no way to attribute ownership
		return domain.Batch{}, domain.ErrMalformedPayload
	}
	if from == to {
		return domain.Batch{}, nil
	}

	content := relay.Content
	if content == "" {
		content = domain.NoTextPlaceholder
	}

	ts := n.now()
	if unix, ok := parseFlexibleInt(relay.Timestamp); ok {
		ts = normalizeUnix(unix)
	}

	return domain.Batch{
		Messages: []domain.Message{{
			From:          from,
			To:            to,
			Content:       content,
			Timestamp:     ts,
			CorrelationID: strings.TrimSpace(relay.MsgID),
			Format:        domain.FormatRelay,
		}},
	}, nil
}

// parseFlexibleInt accepts both "1700000000" and 1700000000.
func parseFlexibleInt(raw json.RawMessage) (int64, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	text := strings.TrimSpace(string(raw))
	text = strings.Trim(text, `"`)
	if text == "" || text == "null" {
		return 0, false
	}
	value, err := strconv.ParseInt(text, 10, 64)
	if err != nil || value <= 0 {
		return 0, false
	}
	return value, true
}

func normalizeUnix(value int64) time.Time {
	if value >= millisecondThreshold {
		return time.UnixMilli(value).UTC()
	}
	return time.Unix(value, 0).UTC()
}
