package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"forcecode/internal/apperrors"
	"forcecode/pkg/circuitbreaker"
)

const (
	defaultTimeout   = 60 * time.Second
	maxResponseBytes = 16 << 20
	findLimit        = 200
)

// Config identifies the org session a Client talks to.
type Config struct {
	InstanceURL string // e.g. https://na1.my.salesforce.com
	AccessToken string
	APIVersion  string // e.g. "37.0"
	Timeout     time.Duration
	Breaker     circuitbreaker.Config
}

// Client implements Gateway over the tooling REST API and the metadata SOAP API.
type Client struct {
	baseURL    string
	apiVersion string
	token      string
	http       *http.Client
	breaker    *circuitbreaker.Breaker
	logger     *slog.Logger
}

// StatusError is a non-success HTTP response.
type StatusError struct {
	Status int
	Errors []RemoteError
	Body   string
}

func (e *StatusError) Error() string {
	if msg := FirstMessage(e.Errors); msg != "" {
		return fmt.Sprintf("HTTP %d: %s", e.Status, msg)
	}
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.Body)
}

// New validates cfg and creates a client.
func New(cfg Config) (*Client, error) {
	u, err := url.Parse(cfg.InstanceURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, apperrors.Validation("instanceUrl", "instance URL must be an absolute URL")
	}
	if cfg.AccessToken == "" {
		return nil, apperrors.Validation("accessToken", "access token is required")
	}
	if cfg.APIVersion == "" {
		return nil, apperrors.Validation("apiVersion", "API version is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	return &Client{
		baseURL:    strings.TrimSuffix(u.String(), "/"),
		apiVersion: cfg.APIVersion,
		token:      cfg.AccessToken,
		http:       &http.Client{Timeout: cfg.Timeout},
		breaker:    circuitbreaker.New(cfg.Breaker),
		logger:     slog.With("component", "gateway", "instance", u.Host),
	}, nil
}

// BreakerState reports the state of the breaker guarding the org.
func (c *Client) BreakerState() circuitbreaker.State {
	return c.breaker.State()
}

// Ready checks that the org answers an authenticated request.
func (c *Client) Ready(ctx context.Context) error {
	status, body, err := c.send(ctx, http.MethodGet, c.baseURL+"/services/data/", nil, "")
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return c.statusError(status, body)
	}
	return nil
}

// Find runs an equality query over every field in where.
func (c *Client) Find(ctx context.Context, kind string, where map[string]string) ([]Record, error) {
	res, err := c.Query(ctx, FindQuery(kind, where))
	if err != nil {
		return nil, err
	}
	return res.Records, nil
}

// Query runs a tooling query and returns the first page of rows.
func (c *Client) Query(ctx context.Context, soql string) (QueryResult, error) {
	endpoint := c.toolingURL("query/") + "?" + url.Values{"q": {soql}}.Encode()
	status, body, err := c.send(ctx, http.MethodGet, endpoint, nil, "")
	if err != nil {
		return QueryResult{}, err
	}
	if status != http.StatusOK {
		return QueryResult{}, c.statusError(status, body)
	}

	var res QueryResult
	if err := json.Unmarshal(body, &res); err != nil {
		return QueryResult{}, fmt.Errorf("failed to decode query result: %w", err)
	}
	return res, nil
}

// Create inserts a tooling record.
func (c *Client) Create(ctx context.Context, kind string, fields Record) (SaveResult, error) {
	payload, err := json.Marshal(fields)
	if err != nil {
		return SaveResult{}, fmt.Errorf("failed to marshal %s: %w", kind, err)
	}

	status, body, err := c.send(ctx, http.MethodPost, c.toolingURL("sobjects/"+kind+"/"), payload, "application/json")
	if err != nil {
		return SaveResult{}, err
	}

	switch {
	case status == http.StatusCreated || status == http.StatusOK:
		var res SaveResult
		if err := json.Unmarshal(body, &res); err != nil {
			return SaveResult{}, fmt.Errorf("failed to decode save result: %w", err)
		}
		return res, nil
	case status == http.StatusBadRequest:
		if errs, ok := decodeErrors(body); ok {
			return SaveResult{Success: false, Errors: errs}, nil
		}
	}
	return SaveResult{}, c.statusError(status, body)
}

// Update patches the record named by fields["Id"].
func (c *Client) Update(ctx context.Context, kind string, fields Record) (SaveResult, error) {
	id := fields.ID()
	if id == "" {
		return SaveResult{}, apperrors.Validation("Id", "update requires an Id")
	}
	patch := maps.Clone(fields)
	delete(patch, "Id")

	payload, err := json.Marshal(patch)
	if err != nil {
		return SaveResult{}, fmt.Errorf("failed to marshal %s: %w", kind, err)
	}

	status, body, err := c.send(ctx, http.MethodPatch, c.toolingURL("sobjects/"+kind+"/"+url.PathEscape(id)), payload, "application/json")
	if err != nil {
		return SaveResult{}, err
	}

	switch {
	case status == http.StatusNoContent || status == http.StatusOK:
		return SaveResult{ID: id, Success: true}, nil
	case status == http.StatusBadRequest:
		if errs, ok := decodeErrors(body); ok {
			return SaveResult{ID: id, Success: false, Errors: errs}, nil
		}
	}
	return SaveResult{}, c.statusError(status, body)
}

// FindQuery builds the equality query Find runs. Predicates are ordered by
// field name so the text is stable.
func FindQuery(kind string, where map[string]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT FIELDS(ALL) FROM %s", kind)
	for i, field := range slices.Sorted(maps.Keys(where)) {
		if i == 0 {
			b.WriteString(" WHERE ")
		} else {
			b.WriteString(" AND ")
		}
		fmt.Fprintf(&b, "%s = %s", field, Quote(where[field]))
	}
	fmt.Fprintf(&b, " LIMIT %d", findLimit)
	return b.String()
}

// Quote renders s as a SOQL string literal.
func Quote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(s) + "'"
}

func (c *Client) toolingURL(path string) string {
	return fmt.Sprintf("%s/services/data/v%s/tooling/%s", c.baseURL, c.apiVersion, path)
}

// send performs one request through the breaker. Only transport failures and
// 5xx responses count against the breaker.
func (c *Client) send(ctx context.Context, method, endpoint string, payload []byte, contentType string, headers ...string) (int, []byte, error) {
	var (
		status int
		body   []byte
	)

	err := c.breaker.Do(func() error {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Accept", "application/json")
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		for i := 0; i+1 < len(headers); i += 2 {
			req.Header.Set(headers[i], headers[i+1])
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		body, err = io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return fmt.Errorf("failed to read response: %w", err)
		}
		status = resp.StatusCode
		if status >= http.StatusInternalServerError {
			return c.statusError(status, body)
		}
		return nil
	}, func(err error) bool {
		return !errors.Is(err, context.Canceled)
	})

	if errors.Is(err, circuitbreaker.ErrOpen) {
		c.logger.Warn("Remote call rejected, breaker open", "method", method)
		return 0, nil, apperrors.Internal("gateway."+strings.ToLower(method), err)
	}
	if err != nil {
		c.logger.Debug("Remote call failed", "method", method, "error", err)
		return status, body, err
	}
	return status, body, nil
}

type apiError struct {
	Message   string   `json:"message"`
	ErrorCode string   `json:"errorCode"`
	Fields    []string `json:"fields"`
}

// decodeErrors reads the REST error array, e.g. [{"message":..,"errorCode":..}].
func decodeErrors(body []byte) ([]RemoteError, bool) {
	var raw []apiError
	if err := json.Unmarshal(body, &raw); err != nil || len(raw) == 0 {
		return nil, false
	}
	errs := make([]RemoteError, 0, len(raw))
	for _, e := range raw {
		errs = append(errs, RemoteError{StatusCode: e.ErrorCode, Message: e.Message, Fields: e.Fields})
	}
	return errs, true
}

func (c *Client) statusError(status int, body []byte) error {
	errs, _ := decodeErrors(body)
	text := string(body)
	if len(text) > 512 {
		text = text[:512]
	}
	return &StatusError{Status: status, Errors: errs, Body: text}
}

var _ Gateway = (*Client)(nil)
