package normalizer

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/turioshq/gateway/internal/inbound/domain"
)

func TestDecodeOfficialEnvelope(t *testing.T) {
	n := New(Config{TimestampOffset: 3 * time.Hour})

	payload := []byte(`{
		"object": "whatsapp_business_account",
		"entry": [{
			"changes": [{
				"value": {
					"metadata": {"phone_number_id": "556199998888"},
					"messages": [
						{"id": "wamid.1", "from": "5561911112222", "timestamp": "1700000000", "type": "text", "text": {"body": "oi"}},
						{"id": "wamid.2", "from": "5561933334444", "timestamp": 1700000000, "type": "image"},
						{"id": "wamid.3", "from": "556199998888", "timestamp": "1700000000", "type": "text", "text": {"body": "echo"}}
					],
					"statuses": [
						{"id": "wamid.1", "status": "delivered"}
					]
				}
			}]
		}]
	}`)

	batch, err := n.Decode(payload)
	require.NoError(t, err)
	require.Len(t, batch.Messages, 2)

	first := batch.Messages[0]
	assert.Equal(t, "5561911112222", first.From)
	assert.Equal(t, "556199998888", first.To)
	assert.Equal(t, "oi", first.Content)
	assert.Equal(t, "wamid.1", first.CorrelationID)
	assert.Equal(t, domain.FormatOfficial, first.Format)
	assert.Equal(t, time.Unix(1700000000, 0).UTC().Add(-3*time.Hour), first.Timestamp)

	// no text body falls back to the placeholder, bare numeric timestamps parse too
	second := batch.Messages[1]
	assert.Equal(t, domain.NoTextPlaceholder, second.Content)
	assert.Equal(t, time.Unix(1700000000, 0).UTC().Add(-3*time.Hour), second.Timestamp)

	require.Len(t, batch.Statuses, 1)
	assert.Equal(t, "556199998888", batch.Statuses[0].RoutingID)
	assert.Equal(t, "wamid.1", batch.Statuses[0].CorrelationID)
	assert.Equal(t, "delivered", batch.Statuses[0].Status)
}

func TestDecodeOfficialMillisecondTimestamp(t *testing.T) {
	n := New(Config{})

	payload := []byte(`{
		"object": "whatsapp_business_account",
		"entry": [{
			"changes": [{
				"value": {
					"metadata": {"phone_number_id": "123"},
					"messages": [{"id": "m1", "from": "555", "timestamp": 1700000000000, "type": "text", "text": {"body": "x"}}]
				}
			}]
		}]
	}`)

	batch, err := n.Decode(payload)
	require.NoError(t, err)
	require.Len(t, batch.Messages, 1)
	assert.Equal(t, time.UnixMilli(1700000000000).UTC(), batch.Messages[0].Timestamp)
}

func TestDecodeRelay(t *testing.T) {
	n := New(Config{TimestampOffset: 3 * time.Hour})

	batch, err := n.Decode([]byte(`{
		"from": "5561911112222",
		"to": "556199998888",
		"content": "ola",
		"timestamp": 1700000000,
		"msg_id": "rel-1"
	}`))
	require.NoError(t, err)
	require.Len(t, batch.Messages, 1)

	msg := batch.Messages[0]
	assert.Equal(t, "5561911112222", msg.From)
	assert.Equal(t, "556199998888", msg.To)
	assert.Equal(t, "ola", msg.Content)
	assert.Equal(t, "rel-1", msg.CorrelationID)
	assert.Equal(t, domain.FormatRelay, msg.Format)
	// the offset applies to official traffic only
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), msg.Timestamp)
}

func TestDecodeRelayEmptyContent(t *testing.T) {
	n := New(Config{})

	batch, err := n.Decode([]byte(`{"from": "a", "to": "b", "content": ""}`))
	require.NoError(t, err)
	require.Len(t, batch.Messages, 1)
	assert.Equal(t, domain.NoTextPlaceholder, batch.Messages[0].Content)
}

func TestDecodeRelaySelfLoop(t *testing.T) {
	n := New(Config{})

	batch, err := n.Decode([]byte(`{"from": "same", "to": "same", "content": "x"}`))
	require.NoError(t, err)
	assert.Empty(t, batch.Messages)
	assert.Empty(t, batch.Statuses)
}

func TestDecodeRelayMissingRecipient(t *testing.T) {
	n := New(Config{})

	_, err := n.Decode([]byte(`{"from": "a", "content": "x"}`))
	assert.True(t, errors.Is(err, domain.ErrMalformedPayload))
}

func TestDecodeMalformed(t *testing.T) {
	n := New(Config{})

	for _, payload := range []string{"", "not json", `{"object": "something_else"}`, `{}`} {
		_, err := n.Decode([]byte(payload))
		assert.True(t, errors.Is(err, domain.ErrMalformedPayload), "payload %q", payload)
	}
}

func TestDecodeOfficialMissingTimestampUsesNow(t *testing.T) {
	n := New(Config{})
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	n.now = func() time.Time { return fixed }

	payload := []byte(`{
		"object": "whatsapp_business_account",
		"entry": [{
			"changes": [{
				"value": {
					"metadata": {"phone_number_id": "123"},
					"messages": [{"id": "m1", "from": "555", "type": "text", "text": {"body": "x"}}]
				}
			}]
		}]
	}`)

	batch, err := n.Decode(payload)
	require.NoError(t, err)
	require.Len(t, batch.Messages, 1)
	assert.Equal(t, fixed, batch.Messages[0].Timestamp)
}
