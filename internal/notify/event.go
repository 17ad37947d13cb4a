package notify

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"forcecode/internal/dispatcher"
	"forcecode/pkg/cloudevent"
)

// Event types.
const (
	EventTypeDeployFinished  = "forcecode.deploy.finished"
	EventTypeResourceBundled = "forcecode.resource.bundled"
)

// DefaultSource is the CloudEvent source of events built here.
const DefaultSource = "forcecode"

// BuildEvent converts an outcome to a CloudEvent whose subject is the file path.
func BuildEvent(source string, o Outcome) *cloudevent.CloudEvent {
	eventType := EventTypeDeployFinished
	if o.Strategy == "resource" {
		eventType = EventTypeResourceBundled
	}

	data := map[string]any{
		"deployId":    o.ID,
		"path":        o.Path,
		"name":        o.Name,
		"strategy":    o.Strategy,
		"kind":        o.Kind,
		"status":      o.Status,
		"success":     o.Success,
		"diagnostics": o.Diagnostics,
		"durationMs":  o.Duration.Milliseconds(),
	}
	if o.Message != "" {
		data["message"] = o.Message
	}
	if o.Err != nil {
		data["error"] = o.Err.Error()
	}
	return cloudevent.New(eventType, source, o.Path, uuid.NewString(), data)
}

// EventSink delivers outcomes to a callback URL through a dispatcher.
// Status lines are not forwarded.
type EventSink struct {
	dispatcher  dispatcher.Dispatcher
	destination string
	signingKey  string
	source      string
	logger      *slog.Logger
}

// NewEventSink creates a sink that posts to destination, signing with
// signingKey when it is not empty.
func NewEventSink(d dispatcher.Dispatcher, destination, signingKey string) *EventSink {
	return &EventSink{
		dispatcher:  d,
		destination: destination,
		signingKey:  signingKey,
		source:      DefaultSource,
		logger:      slog.With("component", "notify", "destination", destination),
	}
}

func (s *EventSink) Status(context.Context, string) {}

func (s *EventSink) Finished(ctx context.Context, o Outcome) {
	event := &dispatcher.Event{
		Payload:     BuildEvent(s.source, o),
		Destination: s.destination,
		SigningKey:  s.signingKey,
	}
	if err := s.dispatcher.Dispatch(event); err != nil {
		s.logger.WarnContext(ctx, "Outcome event not queued", "file", o.Path, "error", err)
	}
}

var _ Sink = (*EventSink)(nil)
