package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hookyard/hookyard/internal/workerpool"
)

// DispatchError reports that a worker rejected a delivery, carrying the
// HTTP status code the gateway should reply to GitHub with: 503 when the
// worker's queue was full (so GitHub retries), 502 for any other
// rejection.
type DispatchError struct {
	Worker     string
	StatusCode int
	Err        error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("%s: %v", e.Worker, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// Dispatcher routes a raw webhook delivery to one worker and reports
// whether it was accepted. Implementations either call the worker's
// handler in-process or proxy over HTTP to a separately deployed worker.
// The gateway command builds only HTTP dispatchers, for workers whose URL
// is configured.
type Dispatcher interface {
	// Name identifies the worker this Dispatcher routes to (e.g.
	// "pr-reviewer", "issue-copier", "issue-scorer").
	Name() string
	// Dispatch delivers the webhook payload and returns an error if the
	// worker rejected or failed to process it.
	Dispatch(ctx context.Context, eventType string, payload []byte) error
}

// HTTPDispatcher proxies deliveries to a separately deployed worker
// process over HTTP, mirroring the original gateway's
// requests.post(f"{url}/webhook", ...) call.
type HTTPDispatcher struct {
	name       string
	baseURL    string
	httpClient *http.Client
}

// NewHTTPDispatcher builds an HTTPDispatcher that POSTs to baseURL+"/webhook".
func NewHTTPDispatcher(name, baseURL string, timeout time.Duration) *HTTPDispatcher {
	return &HTTPDispatcher{
		name:       name,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Name implements Dispatcher.
func (d *HTTPDispatcher) Name() string { return d.name }

// Dispatch implements Dispatcher.
func (d *HTTPDispatcher) Dispatch(ctx context.Context, eventType string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/webhook", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("gateway: build request to %s: %w", d.name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Event", eventType)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gateway: dispatch to %s: %w", d.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		respBody, _ := io.ReadAll(resp.Body)
		statusCode := http.StatusBadGateway
		if resp.StatusCode == http.StatusServiceUnavailable {
			statusCode = http.StatusServiceUnavailable
		}
		return &DispatchError{
			Worker:     d.name,
			StatusCode: statusCode,
			Err:        fmt.Errorf("rejected delivery (status %d): %s", resp.StatusCode, string(respBody)),
		}
	}
	return nil
}

// InProcessDispatcher calls a worker's handler function directly, for code
// that runs a worker in the same process as the gateway and needs no
// network hop. The gateway command does not construct one.
type InProcessDispatcher struct {
	name    string
	handler func(ctx context.Context, eventType string, payload []byte) error
}

// NewInProcessDispatcher wraps handler as a Dispatcher.
func NewInProcessDispatcher(name string, handler func(ctx context.Context, eventType string, payload []byte) error) *InProcessDispatcher {
	return &InProcessDispatcher{name: name, handler: handler}
}

// Name implements Dispatcher.
func (d *InProcessDispatcher) Name() string { return d.name }

// Dispatch implements Dispatcher.
func (d *InProcessDispatcher) Dispatch(ctx context.Context, eventType string, payload []byte) error {
	err := d.handler(ctx, eventType, payload)
	if err == nil {
		return nil
	}
	if errors.Is(err, workerpool.ErrQueueFull) {
		return &DispatchError{Worker: d.name, StatusCode: http.StatusServiceUnavailable, Err: err}
	}
	return err
}

// routeFor returns the Dispatchers that should receive an event of the
// given type, mirroring the original gateway's event-type routing table:
// pull_request -> pr-reviewer; issues/issue_comment -> issue-copier and
// issue-scorer.
func routeFor(eventType string, dispatchers Dispatchers) []Dispatcher {
	var targets []Dispatcher
	switch eventType {
	case "pull_request":
		if dispatchers.PRReviewer != nil {
			targets = append(targets, dispatchers.PRReviewer)
		}
	case "issues", "issue_comment":
		if dispatchers.IssueCopier != nil {
			targets = append(targets, dispatchers.IssueCopier)
		}
		if dispatchers.IssueScorer != nil {
			targets = append(targets, dispatchers.IssueScorer)
		}
	}
	return targets
}

// Dispatchers groups the gateway's three worker routes.
type Dispatchers struct {
	PRReviewer  Dispatcher
	IssueCopier Dispatcher
	IssueScorer Dispatcher
}

// dashboardFetch performs a bounded-timeout GET against a worker's read
// API and decodes the JSON body into v. A failed or timed-out fetch
// returns an error the caller can surface as a partial-dashboard entry
// rather than failing the whole aggregation.
func dashboardFetch(ctx context.Context, client *http.Client, url string, v interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gateway: GET %s returned status %d", url, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}
