// Package dispatcher delivers outcome events to callback URLs in the
// background, with a bounded buffer, retries and a breaker per host.
package dispatcher

import (
	"context"
	"errors"

	"forcecode/pkg/cloudevent"
)

// ErrBufferFull is returned when an event is dropped because the buffer is full.
var ErrBufferFull = errors.New("dispatcher buffer full, event dropped")

// ErrClosed is returned by Dispatch after Close.
var ErrClosed = errors.New("dispatcher is closed")

// Dispatcher queues events for asynchronous delivery.
type Dispatcher interface {
	// Dispatch queues an event without blocking.
	Dispatch(event *Event) error
	Stats() Stats
	// Close stops accepting events and drains the queue until ctx is done.
	Close(ctx context.Context) error
}

// Event is one payload bound for one callback URL.
type Event struct {
	Payload     *cloudevent.CloudEvent
	Destination string
	SigningKey  string // HMAC key; empty disables signing
	Signature   string // pre-computed signature, wins over SigningKey
	requeues    int
}

// Stats is a snapshot of delivery counters.
type Stats struct {
	QueueDepth    int
	Queued        int64
	Delivered     int64
	Failed        int64
	Dropped       int64
	Requeued      int64
	RetriesTotal  int64
	BreakersTotal int
	BreakersOpen  int
}
