// Package cloudevent builds CloudEvents 1.0 envelopes and posts them in
// structured mode with optional HMAC signing.
package cloudevent

import (
	"net/http"
	"time"
)

// SpecVersion is the CloudEvents version produced here.
const SpecVersion = "1.0"

// CloudEvent is a CloudEvents 1.0 envelope with a JSON object payload.
type CloudEvent struct {
	SpecVersion     string         `json:"specversion"`
	Type            string         `json:"type"`
	Source          string         `json:"source"`
	Subject         string         `json:"subject,omitempty"`
	ID              string         `json:"id"`
	Time            time.Time      `json:"time"`
	DataContentType string         `json:"datacontenttype"`
	Data            map[string]any `json:"data,omitempty"`
}

// New creates an event stamped with the current UTC time.
func New(eventType, source, subject, id string, data map[string]any) *CloudEvent {
	return &CloudEvent{
		SpecVersion:     SpecVersion,
		Type:            eventType,
		Source:          source,
		Subject:         subject,
		ID:              id,
		Time:            time.Now().UTC(),
		DataContentType: "application/json",
		Data:            data,
	}
}

// SetHeaders copies the context attributes into Ce-* headers.
func (e *CloudEvent) SetHeaders(h http.Header) {
	h.Set("Ce-Specversion", e.SpecVersion)
	h.Set("Ce-Type", e.Type)
	h.Set("Ce-Source", e.Source)
	h.Set("Ce-Id", e.ID)
	h.Set("Ce-Time", e.Time.Format(time.RFC3339))
	if e.Subject != "" {
		h.Set("Ce-Subject", e.Subject)
	}
}
