// Package pipedrive provides a read-only client for the Pipedrive REST API
// endpoints used by the deal export: deals, deal fields and stages.
package pipedrive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Endpoint names, used for logging and request observation.
const (
	EndpointDeals      = "deals"
	EndpointDealFields = "dealFields"
	EndpointStages     = "stages"
)

// DefaultBaseURL is the public Pipedrive API v1 root.
const DefaultBaseURL = "https://api.pipedrive.com/v1"

// Client defines the Pipedrive read operations.
type Client interface {
	// ListDeals fetches one page of deals in a pipeline.
	ListDeals(ctx context.Context, pipelineID int64, start, limit int) (*DealsPage, error)
	// ListDealFields fetches every deal field definition.
	ListDealFields(ctx context.Context) ([]DealField, error)
	// ListStages fetches the stages of a pipeline.
	ListStages(ctx context.Context, pipelineID int64) ([]Stage, error)
}

// DealsPage is one page of the deals collection. Items are decoded with
// json.Number for numbers.
type DealsPage struct {
	Items     []map[string]any
	MoreItems bool
	NextStart *int
}

// DealField is a deal field definition.
type DealField struct {
	ID        any      `json:"id"`
	Key       string   `json:"key"`
	Name      string   `json:"name"`
	FieldType string   `json:"field_type"`
	Options   []Option `json:"options"`
}

// Option is one choice of an enum or set field.
type Option struct {
	ID    any    `json:"id"`
	Label string `json:"label"`
}

// Stage is a pipeline stage.
type Stage struct {
	ID         any    `json:"id"`
	Name       string `json:"name"`
	PipelineID any    `json:"pipeline_id"`
}

// Observer is notified after every request with its endpoint, HTTP status
// (0 when no response arrived), error and duration.
type Observer func(endpoint string, status int, err error, d time.Duration)

// ClientOption configures the Pipedrive client.
type ClientOption func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(u string) ClientOption {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *httpClient) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithRateLimit paces requests to rps per second. Zero disables pacing.
func WithRateLimit(rps float64) ClientOption {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		} else {
			c.limiter = nil
		}
	}
}

// WithObserver registers a request observer.
func WithObserver(o Observer) ClientOption {
	return func(c *httpClient) {
		c.observe = o
	}
}

type httpClient struct {
	apiToken string
	baseURL  string
	http     *http.Client
	limiter  *rate.Limiter
	observe  Observer
}

// NewClient creates a new Pipedrive client authenticated by apiToken.
func NewClient(apiToken string, opts ...ClientOption) Client {
	c := &httpClient{
		apiToken: apiToken,
		baseURL:  DefaultBaseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type envelope struct {
	Success        *bool           `json:"success"`
	Error          string          `json:"error"`
	Data           json.RawMessage `json:"data"`
	AdditionalData struct {
		Pagination *pagination `json:"pagination"`
	} `json:"additional_data"`
}

type pagination struct {
	Start                 int  `json:"start"`
	Limit                 int  `json:"limit"`
	MoreItemsInCollection bool `json:"more_items_in_collection"`
	NextStart             *int `json:"next_start"`
}

func (c *httpClient) ListDeals(ctx context.Context, pipelineID int64, start, limit int) (*DealsPage, error) {
	q := url.Values{}
	q.Set("pipeline_id", strconv.FormatInt(pipelineID, 10))
	q.Set("start", strconv.Itoa(start))
	q.Set("limit", strconv.Itoa(limit))

	env, err := c.get(ctx, EndpointDeals, "/deals", q)
	if err != nil {
		return nil, err
	}

	var items []map[string]any
	if err := decodeData(env.Data, &items); err != nil {
		return nil, malformed(EndpointDeals, err.Error())
	}

	page := &DealsPage{Items: items}
	if p := env.AdditionalData.Pagination; p != nil {
		page.MoreItems = p.MoreItemsInCollection
		page.NextStart = p.NextStart
	}
	return page, nil
}

func (c *httpClient) ListDealFields(ctx context.Context) ([]DealField, error) {
	env, err := c.get(ctx, EndpointDealFields, "/dealFields", nil)
	if err != nil {
		return nil, err
	}

	var fields []DealField
	if err := decodeData(env.Data, &fields); err != nil {
		return nil, malformed(EndpointDealFields, err.Error())
	}
	return fields, nil
}

func (c *httpClient) ListStages(ctx context.Context, pipelineID int64) ([]Stage, error) {
	q := url.Values{}
	q.Set("pipeline_id", strconv.FormatInt(pipelineID, 10))

	env, err := c.get(ctx, EndpointStages, "/stages", q)
	if err != nil {
		return nil, err
	}

	var stages []Stage
	if err := decodeData(env.Data, &stages); err != nil {
		return nil, malformed(EndpointStages, err.Error())
	}
	return stages, nil
}

// get performs one GET request and decodes the response envelope. It makes
// a single attempt; retrying is left to the caller.
func (c *httpClient) get(ctx context.Context, endpoint, path string, q url.Values) (env *envelope, err error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrapf(err, "pipedrive: %s: rate limiter", endpoint)
		}
	}

	if q == nil {
		q = url.Values{}
	}
	q.Set("api_token", c.apiToken)
	reqURL := c.baseURL + path + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrapf(err, "pipedrive: %s: create request", endpoint)
	}
	req.Header.Set("Accept", "application/json")

	started := time.Now()
	status := 0
	defer func() {
		if c.observe != nil {
			c.observe(endpoint, status, err, time.Since(started))
		}
	}()

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &TransportError{Endpoint: endpoint, Err: redact(err)}
	}
	defer resp.Body.Close() //nolint:errcheck
	status = resp.StatusCode

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Endpoint: endpoint, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Endpoint: endpoint, StatusCode: resp.StatusCode, Body: truncate(body, 512)}
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var e envelope
	if err := dec.Decode(&e); err != nil {
		return nil, malformed(endpoint, "decode body: "+err.Error())
	}
	if e.Success != nil && !*e.Success {
		return nil, malformed(endpoint, "success=false: "+e.Error)
	}
	return &e, nil
}

// decodeData decodes the data member. A missing or null data member
// decodes to the zero value.
func decodeData(raw json.RawMessage, v any) error {
	if len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return eris.Wrap(err, "decode data")
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// redact strips the query string from url errors so the api token never
// reaches logs.
func redact(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		if u, perr := url.Parse(ue.URL); perr == nil {
			u.RawQuery = ""
			return &url.Error{Op: ue.Op, URL: u.String(), Err: ue.Err}
		}
	}
	return err
}
