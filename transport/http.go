package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sparesparrow/ai-servis/envelope"
)

// HTTPClient posts request envelopes to a fixed endpoint and decodes the
// response envelope from the body. Per spec.md §4.1, the HTTP transport
// always responds with status 200, including for envelopes carrying an
// Error; any other status is a transport-level failure.
type HTTPClient struct {
	endpoint string
	client   *http.Client
}

// NewHTTPClient constructs an HTTPClient posting to endpoint. A nil client
// defaults to a 30s-timeout http.Client, matching the teacher's HTTPOptions
// default.
func NewHTTPClient(endpoint string, client *http.Client) *HTTPClient {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPClient{endpoint: endpoint, client: client}
}

// Call posts req and returns the decoded response envelope.
func (c *HTTPClient) Call(ctx context.Context, req envelope.Envelope) (envelope.Envelope, error) {
	body, err := marshalEnvelope(req)
	if err != nil {
		return envelope.Envelope{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return envelope.Envelope{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return envelope.Envelope{}, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return envelope.Envelope{}, fmt.Errorf("transport: http status %d", resp.StatusCode)
	}
	var out envelope.Envelope
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return envelope.Envelope{}, err
	}
	return out, nil
}

// Dispatcher handles one request envelope and returns the response envelope
// to write back. It is implemented by rpc.Server.
type Dispatcher interface {
	Dispatch(ctx context.Context, req envelope.Envelope) envelope.Envelope
}

// Handler adapts a Dispatcher to an http.Handler: the request body is the
// request envelope, the response body is the response envelope, and the
// status is always 200 regardless of whether the envelope carries a result
// or an error (spec.md §4.1).
func Handler(d Dispatcher) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req envelope.Envelope
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_ = json.NewEncoder(w).Encode(envelope.NewErrorResponse("", envelope.ErrInvalidParams, err.Error()))
			return
		}
		resp := d.Dispatch(r.Context(), req)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(resp)
	})
}
