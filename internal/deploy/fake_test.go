package deploy

import (
	"context"
	"fmt"
	"sync"

	"forcecode/internal/gateway"
)

type gatewayCall struct {
	Kind   string
	Fields gateway.Record
	Where  map[string]string
}

// fakeGateway is an in-memory org. Find returns the records stored for a kind;
// Query plays back pollStates, repeating the last one.
type fakeGateway struct {
	mu sync.Mutex

	records       map[string][]gateway.Record
	saveResults   map[string]gateway.SaveResult
	upsertResults []gateway.UpsertResult
	pollStates    []string
	failures      []ComponentFailure
	errorMsg      string
	findErr       error
	queryErr      error

	finds   []gatewayCall
	creates []gatewayCall
	updates []gatewayCall
	upserts []gatewayCall
	queries int
	nextID  int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		records:     map[string][]gateway.Record{},
		saveResults: map[string]gateway.SaveResult{},
	}
}

func (f *fakeGateway) Find(_ context.Context, kind string, where map[string]string) ([]gateway.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finds = append(f.finds, gatewayCall{Kind: kind, Where: where})
	if f.findErr != nil {
		return nil, f.findErr
	}
	return f.records[kind], nil
}

func (f *fakeGateway) Create(_ context.Context, kind string, fields gateway.Record) (gateway.SaveResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates = append(f.creates, gatewayCall{Kind: kind, Fields: fields})
	if res, ok := f.saveResults[kind]; ok {
		return res, nil
	}
	f.nextID++
	return gateway.SaveResult{ID: fmt.Sprintf("%s-%d", kind, f.nextID), Success: true}, nil
}

func (f *fakeGateway) Update(_ context.Context, kind string, fields gateway.Record) (gateway.SaveResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, gatewayCall{Kind: kind, Fields: fields})
	if res, ok := f.saveResults[kind]; ok {
		return res, nil
	}
	return gateway.SaveResult{ID: fields.ID(), Success: true}, nil
}

func (f *fakeGateway) Upsert(_ context.Context, kind string, items []gateway.Record) ([]gateway.UpsertResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, item := range items {
		f.upserts = append(f.upserts, gatewayCall{Kind: kind, Fields: item})
	}
	if f.upsertResults != nil {
		return f.upsertResults, nil
	}
	return []gateway.UpsertResult{{FullName: items[0].String("fullName"), Success: true}}, nil
}

func (f *fakeGateway) Query(_ context.Context, soql string) (gateway.QueryResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries++
	if f.queryErr != nil {
		return gateway.QueryResult{}, f.queryErr
	}
	if len(f.pollStates) == 0 {
		return gateway.QueryResult{Done: true}, nil
	}

	state := f.pollStates[min(f.queries, len(f.pollStates))-1]
	if state == "" {
		return gateway.QueryResult{Done: true}, nil
	}
	record := gateway.Record{
		"Id":       "1dr-1",
		"State":    state,
		"ErrorMsg": f.errorMsg,
		"DeployDetails": DeployDetails{
			ComponentFailures: f.failures,
		},
	}
	return gateway.QueryResult{TotalSize: 1, Done: true, Records: []gateway.Record{record}}, nil
}

func (f *fakeGateway) createsOf(kind string) []gatewayCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []gatewayCall
	for _, c := range f.creates {
		if c.Kind == kind {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeGateway) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finds, f.creates, f.updates, f.upserts = nil, nil, nil, nil
	f.queries = 0
}

func intPtr(n int) *int { return &n }

var _ gateway.Gateway = (*fakeGateway)(nil)
