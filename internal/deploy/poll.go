package deploy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"

	"forcecode/internal/apperrors"
	"forcecode/internal/config"
	"forcecode/internal/gateway"
)

// MaxPolls is the number of status queries issued before giving up.
const MaxPolls = 30

// Compile request states.
const (
	StateQueued      = "Queued"
	StateCompleted   = "Completed"
	StateFailed      = "Failed"
	StateInvalidated = "Invalidated"
	StateError       = "Error"
	StateAborted     = "Aborted"
)

const statusQuery = "SELECT Id, MetadataContainerId, MetadataContainerMemberId, State, IsCheckOnly, " +
	"DeployDetails, ErrorMsg FROM ContainerAsyncRequest WHERE Id='%s'"

var errQueued = errors.New("compile request still queued")

// AsyncRequest is a ContainerAsyncRequest row.
type AsyncRequest struct {
	ID                        string         `json:"Id"`
	MetadataContainerID       string         `json:"MetadataContainerId"`
	MetadataContainerMemberID string         `json:"MetadataContainerMemberId"`
	State                     string         `json:"State"`
	IsCheckOnly               bool           `json:"IsCheckOnly"`
	ErrorMsg                  string         `json:"ErrorMsg"`
	DeployDetails             *DeployDetails `json:"DeployDetails"`
}

// DeployDetails carries the per-component outcome of a compile.
type DeployDetails struct {
	ComponentFailures  []ComponentFailure `json:"componentFailures"`
	ComponentSuccesses []ComponentFailure `json:"componentSuccesses"`
}

// ComponentFailure is one compile problem. Line and column may be absent.
type ComponentFailure struct {
	ComponentType string `json:"componentType"`
	FullName      string `json:"fullName"`
	FileName      string `json:"fileName"`
	LineNumber    *int   `json:"lineNumber"`
	ColumnNumber  *int   `json:"columnNumber"`
	Problem       string `json:"problem"`
	ProblemType   string `json:"problemType"`
}

// Poller queries a compile request until it leaves the queue.
type Poller struct {
	Gateway   gateway.Gateway
	Interval  time.Duration
	OnAttempt func(attempt int)
}

// Poll returns the request rows from the first query that shows no queued
// request, or no rows at all. After MaxPolls queued results it fails with a
// poll timeout without querying again. Query errors are not retried.
func (p Poller) Poll(ctx context.Context, requestID string) ([]AsyncRequest, int, error) {
	interval := p.Interval
	if interval <= 0 {
		interval = config.DefaultPollInterval
	}
	soql := fmt.Sprintf(statusQuery, requestID)
	backoff := retry.WithMaxRetries(MaxPolls-1, retry.NewConstant(interval))

	var (
		attempts int
		requests []AsyncRequest
	)
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		if p.OnAttempt != nil {
			p.OnAttempt(attempts)
		}

		res, err := p.Gateway.Query(ctx, soql)
		if err != nil {
			return err
		}
		requests, err = decodeRequests(res.Records)
		if err != nil {
			return apperrors.Parse("compile.status", err)
		}
		if queued(requests) {
			return retry.RetryableError(errQueued)
		}
		return nil
	})

	if errors.Is(err, errQueued) {
		return requests, attempts, apperrors.PollTimeout("compile.poll", attempts)
	}
	return requests, attempts, err
}

func decodeRequests(records []gateway.Record) ([]AsyncRequest, error) {
	requests := make([]AsyncRequest, 0, len(records))
	for _, r := range records {
		var req AsyncRequest
		if err := r.Decode(&req); err != nil {
			return nil, err
		}
		requests = append(requests, req)
	}
	return requests, nil
}

func queued(requests []AsyncRequest) bool {
	for _, r := range requests {
		if r.State == StateQueued {
			return true
		}
	}
	return false
}
