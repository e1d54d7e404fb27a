package domain

import (
	"errors"
	"time"
)

const (
	// FormatOfficial is the WhatsApp Business envelope.
	FormatOfficial = "official"
	// FormatRelay is the flat single-message relay object.
	FormatRelay = "relay"

	// NoTextPlaceholder replaces bodyless message content.
	NoTextPlaceholder = "[sem texto]"
)

// Message is the canonical shape every inbound format normalizes into.
type Message struct {
	From          string
	To            string
	Content       string
	Timestamp     time.Time
	CorrelationID string
	Format        string
}

// StatusUpdate reports a delivery state transition for an earlier message.
type StatusUpdate struct {
	RoutingID     string
	CorrelationID string
	Status        string
}

// Batch holds everything extracted from one webhook delivery.
type Batch struct {
	Messages []Message
	Statuses []StatusUpdate
}

var ErrMalformedPayload = errors.New("malformed_payload")
