package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"forcecode/internal/dispatcher"
)

type fakeDispatcher struct {
	mu     sync.Mutex
	events []*dispatcher.Event
	err    error
}

func (f *fakeDispatcher) Dispatch(e *dispatcher.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, e)
	return nil
}

func (f *fakeDispatcher) Stats() dispatcher.Stats        { return dispatcher.Stats{} }
func (f *fakeDispatcher) Close(ctx context.Context) error { return nil }

type recordingSink struct {
	statuses []string
	outcomes []Outcome
}

func (r *recordingSink) Status(_ context.Context, line string) { r.statuses = append(r.statuses, line) }
func (r *recordingSink) Finished(_ context.Context, o Outcome) { r.outcomes = append(r.outcomes, o) }

func TestLogSink_Finished(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		outcome   Outcome
		wantLevel string
		wantMsg   string
	}{
		{
			name:      "success",
			outcome:   Outcome{Path: "src/classes/Foo.cls", Strategy: "container", Success: true, Polls: 3},
			wantLevel: "INFO",
			wantMsg:   "Deploy finished",
		},
		{
			name:      "failure",
			outcome:   Outcome{Path: "src/aura/Foo/Foo.cmp", Strategy: "bundle", Err: errors.New("boom"), Message: "bad syntax"},
			wantLevel: "WARN",
			wantMsg:   "Deploy finished with problems",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var buf bytes.Buffer
			sink := NewLogSink(slog.New(slog.NewJSONHandler(&buf, nil)))
			sink.Finished(context.Background(), tt.outcome)

			var entry map[string]any
			if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
				t.Fatalf("log entry is not JSON: %v (%s)", err, buf.String())
			}
			if entry["level"] != tt.wantLevel || entry["msg"] != tt.wantMsg {
				t.Errorf("unexpected entry %v", entry)
			}
			if entry["file"] != tt.outcome.Path || entry["component"] != "notify" {
				t.Errorf("missing attributes in %v", entry)
			}
			if tt.outcome.Err != nil && entry["error"] != tt.outcome.Err.Error() {
				t.Errorf("expected error attribute, got %v", entry["error"])
			}
		})
	}
}

func TestLogSink_StatusIsDebug(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	sink := NewLogSink(slog.New(slog.NewTextHandler(&buf, nil)))
	sink.Status(context.Background(), "ForceCode: Foo ApexClass")

	if buf.Len() != 0 {
		t.Errorf("status lines should be hidden at info level, got %q", buf.String())
	}
}

func TestBuildEvent(t *testing.T) {
	t.Parallel()
	o := Outcome{
		ID:          "d-1",
		Path:        "src/classes/Foo.cls",
		Name:        "Foo",
		Strategy:    "container",
		Kind:        "ApexClass",
		Status:      "ForceCode: Foo ApexClass $(alert)",
		Diagnostics: 2,
		Duration:    1500 * time.Millisecond,
		Err:         errors.New("Timeout"),
	}
	e := BuildEvent(DefaultSource, o)

	if e.Type != EventTypeDeployFinished || e.Source != "forcecode" || e.Subject != o.Path {
		t.Errorf("unexpected envelope %+v", e)
	}
	if e.ID == "" {
		t.Error("expected an event id")
	}
	if e.Data["diagnostics"] != 2 || e.Data["durationMs"] != int64(1500) || e.Data["error"] != "Timeout" {
		t.Errorf("unexpected data %v", e.Data)
	}

	if got := BuildEvent(DefaultSource, Outcome{Strategy: "resource"}).Type; got != EventTypeResourceBundled {
		t.Errorf("expected resource event type, got %q", got)
	}
}

func TestEventSink(t *testing.T) {
	t.Parallel()
	d := &fakeDispatcher{}
	sink := NewEventSink(d, "https://hooks.example.com/deploys", "key")

	sink.Status(context.Background(), "ignored")
	sink.Finished(context.Background(), Outcome{Path: "Foo.cls", Success: true})

	if len(d.events) != 1 {
		t.Fatalf("expected one event, got %d", len(d.events))
	}
	ev := d.events[0]
	if ev.Destination != "https://hooks.example.com/deploys" || ev.SigningKey != "key" {
		t.Errorf("unexpected delivery settings %+v", ev)
	}
	if ev.Payload.Data["success"] != true {
		t.Errorf("unexpected payload %v", ev.Payload.Data)
	}
}

func TestEventSink_DispatchErrorIsLogged(t *testing.T) {
	t.Parallel()
	d := &fakeDispatcher{err: dispatcher.ErrBufferFull}
	sink := NewEventSink(d, "https://hooks.example.com", "")

	// Must not panic or block.
	sink.Finished(context.Background(), Outcome{Path: "Foo.cls"})
}

func TestMulti(t *testing.T) {
	t.Parallel()
	a, b := &recordingSink{}, &recordingSink{}
	m := Multi{a, b}

	m.Status(context.Background(), "ForceCode: Deploying...")
	m.Finished(context.Background(), Outcome{Path: "Foo.cls"})

	for _, r := range []*recordingSink{a, b} {
		if len(r.statuses) != 1 || !strings.HasPrefix(r.statuses[0], "ForceCode:") || len(r.outcomes) != 1 {
			t.Errorf("unexpected recording %+v", r)
		}
	}

	Discard.Status(context.Background(), "x")
	Discard.Finished(context.Background(), Outcome{})
}
