package ceremony

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ericfisherdev/passkeywallet/internal/domain/model"
	"github.com/ericfisherdev/passkeywallet/internal/domain/port/driven"
)

var _ driven.CeremonyProvider = (*RelayClient)(nil)

// relayGrace is added to the ceremony timeout so the relay, not the HTTP
// client, reports an expired ceremony.
const relayGrace = 5 * time.Second

// Relay response statuses.
const (
	relayStatusOK        = "ok"
	relayStatusCancelled = "cancelled"
	relayStatusTimeout   = "timeout"
	relayStatusError     = "error"
)

// relayResponse is the envelope a ceremony relay answers with.
type relayResponse struct {
	Status      string             `json:"status"`
	Message     string             `json:"message,omitempty"`
	Attestation *model.Attestation `json:"attestation,omitempty"`
	Assertion   *model.Assertion   `json:"assertion,omitempty"`
}

// RelayClient forwards ceremonies to a relay that drives the user's browser
// or native platform API and blocks until the user completes or abandons it.
//
// Endpoints: GET {base}/health, POST {base}/create, POST {base}/get.
type RelayClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewRelayClient creates a RelayClient. httpClient may be nil.
func NewRelayClient(baseURL string, httpClient *http.Client) *RelayClient {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &RelayClient{baseURL: strings.TrimRight(baseURL, "/"), httpClient: httpClient}
}

// Available reports whether the relay answers its health endpoint.
func (c *RelayClient) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Create forwards a creation ceremony.
func (c *RelayClient) Create(ctx context.Context, opts model.CreationOptions) (*model.Attestation, error) {
	resp, err := c.do(ctx, model.CeremonyCreate, "/create", opts, opts.Timeout)
	if err != nil {
		return nil, err
	}
	if resp.Attestation == nil {
		return nil, platformErr(model.CeremonyCreate, errors.New("relay returned no attestation"))
	}
	return resp.Attestation, nil
}

// Get forwards an authentication ceremony.
func (c *RelayClient) Get(ctx context.Context, opts model.AssertionOptions) (*model.Assertion, error) {
	resp, err := c.do(ctx, model.CeremonyGet, "/get", opts, opts.Timeout)
	if err != nil {
		return nil, err
	}
	if resp.Assertion == nil {
		return nil, platformErr(model.CeremonyGet, errors.New("relay returned no assertion"))
	}
	return resp.Assertion, nil
}

func (c *RelayClient) do(ctx context.Context, kind model.CeremonyKind, path string, body any, timeoutMs int64) (*relayResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Duration(timeoutMs)*time.Millisecond+relayGrace)
	defer cancel()

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, platformErr(kind, fmt.Errorf("encode options: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, platformErr(kind, fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, contextErr(kind, ctxErr)
		}
		return nil, platformErr(kind, fmt.Errorf("relay request: %w", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, platformErr(kind, fmt.Errorf("read relay response: %w", err))
	}

	var out relayResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, platformErr(kind, fmt.Errorf("relay status %d: undecodable body", resp.StatusCode))
	}

	switch out.Status {
	case relayStatusOK:
		return &out, nil
	case relayStatusCancelled:
		return nil, &model.CeremonyError{Kind: kind, Failure: model.CeremonyCancelled, Err: errors.New(orDefault(out.Message, "user cancelled"))}
	case relayStatusTimeout:
		return nil, &model.CeremonyError{Kind: kind, Failure: model.CeremonyTimeout, Err: errors.New(orDefault(out.Message, "ceremony timed out"))}
	case relayStatusError:
		return nil, platformErr(kind, errors.New(orDefault(out.Message, "relay error")))
	default:
		return nil, platformErr(kind, fmt.Errorf("relay status %d: unknown ceremony status %q", resp.StatusCode, out.Status))
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
