// Package gateway is the remote org's metadata and tooling API as seen by a
// deploy: record lookup, create, update, query and metadata upsert.
package gateway

import (
	"context"
	"encoding/json"
	"strings"
)

// Record is a loosely typed remote record. Field names are the remote's.
type Record map[string]any

// ID returns the record's Id field, or "".
func (r Record) ID() string {
	return r.String("Id")
}

// String returns a string field, or "" when absent or of another type.
func (r Record) String(field string) string {
	s, _ := r[field].(string)
	return s
}

// Decode copies the record into a typed value through its JSON form.
func (r Record) Decode(v any) error {
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// RemoteError is one error entry of a save or upsert result.
type RemoteError struct {
	StatusCode string   `json:"statusCode,omitempty"`
	Message    string   `json:"message"`
	Fields     []string `json:"fields,omitempty"`
}

// SaveResult is the outcome of a create or update.
type SaveResult struct {
	ID      string        `json:"id"`
	Success bool          `json:"success"`
	Errors  []RemoteError `json:"errors,omitempty"`
}

// UpsertResult is the outcome of upserting one metadata item.
type UpsertResult struct {
	FullName string        `json:"fullName"`
	Created  bool          `json:"created"`
	Success  bool          `json:"success"`
	Errors   []RemoteError `json:"errors,omitempty"`
}

// QueryResult holds the rows of a query.
type QueryResult struct {
	TotalSize int      `json:"totalSize"`
	Done      bool     `json:"done"`
	Records   []Record `json:"records"`
}

// Gateway is everything a deploy needs from the remote. A rejection the
// remote reports inside a result (Success false) is not a Go error; transport
// and protocol failures are.
type Gateway interface {
	// Find returns records of kind whose fields equal every value in where.
	Find(ctx context.Context, kind string, where map[string]string) ([]Record, error)
	Create(ctx context.Context, kind string, fields Record) (SaveResult, error)
	// Update saves fields onto the record identified by fields["Id"].
	Update(ctx context.Context, kind string, fields Record) (SaveResult, error)
	Query(ctx context.Context, soql string) (QueryResult, error)
	// Upsert creates or updates metadata items keyed by fullName.
	Upsert(ctx context.Context, kind string, items []Record) ([]UpsertResult, error)
}

// FirstMessage returns the message of the first error entry, or "".
func FirstMessage(errs []RemoteError) string {
	if len(errs) == 0 {
		return ""
	}
	return errs[0].Message
}

// JoinMessages concatenates every error message, one per line.
func JoinMessages(errs []RemoteError) string {
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, e.Message)
	}
	return strings.Join(msgs, "\n")
}
