// Package paymaster implements the PaymasterProvider port against ERC-4337
// bundler/paymaster backends speaking JSON-RPC.
package paymaster

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/ericfisherdev/passkeywallet/internal/domain/model"
)

const (
	defaultTimeout    = 10 * time.Second
	apiKeyHeader      = "x-api-key"
	initialRetryDelay = 100 * time.Millisecond
	maxRetryDelay     = 2 * time.Second
)

// Options configures one backend.
type Options struct {
	URL        string
	APIKey     string
	EntryPoint string
	ChainID    uint64

	// Timeout bounds each attempt, not the whole call.
	Timeout time.Duration
	// MaxRetries is the number of additional attempts after a transport
	// fault. JSON-RPC errors from the backend are never retried.
	MaxRetries uint64

	HTTPClient *http.Client
	Logger     *slog.Logger
}

// backend is the JSON-RPC plumbing shared by every adapter.
type backend struct {
	name       string
	client     *rpc.Client
	entryPoint string
	chainID    uint64
	timeout    time.Duration
	maxRetries uint64
	logger     *slog.Logger
}

func newBackend(name string, opts Options) (*backend, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("%s: endpoint URL is required", name)
	}

	var clientOpts []rpc.ClientOption
	if opts.HTTPClient != nil {
		clientOpts = append(clientOpts, rpc.WithHTTPClient(opts.HTTPClient))
	}
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, rpc.WithHeader(apiKeyHeader, opts.APIKey))
	}

	client, err := rpc.DialOptions(context.Background(), opts.URL, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("%s: dial %s: %w", name, opts.URL, err)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &backend{
		name:       name,
		client:     client,
		entryPoint: opts.EntryPoint,
		chainID:    opts.ChainID,
		timeout:    timeout,
		maxRetries: opts.MaxRetries,
		logger:     logger.With("provider", name),
	}, nil
}

// Close releases the underlying RPC client.
func (b *backend) Close() { b.client.Close() }

// call issues method with bounded retry on transport faults and translates
// every failure into a *model.ProviderError.
func (b *backend) call(ctx context.Context, op model.ProviderOp, result any, method string, args ...any) error {
	attempt := func() error {
		callCtx, cancel := context.WithTimeout(ctx, b.timeout)
		defer cancel()

		err := b.client.CallContext(callCtx, result, method, args...)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = initialRetryDelay
	expo.MaxInterval = maxRetryDelay
	policy := backoff.WithContext(backoff.WithMaxRetries(expo, b.maxRetries), ctx)

	err := backoff.RetryNotify(attempt, policy, func(err error, wait time.Duration) {
		b.logger.Debug("retrying provider call", "method", method, "wait", wait, "error", err)
	})
	if err != nil {
		return b.fail(op, err)
	}
	return nil
}

// probe issues a single attempt with no retry, for health checks.
func (b *backend) probe(ctx context.Context, result any, method string, args ...any) error {
	callCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	return b.client.CallContext(callCtx, result, method, args...)
}

// fail wraps err as a ProviderError, surfacing the backend's own message
// for JSON-RPC errors.
func (b *backend) fail(op model.ProviderOp, err error) *model.ProviderError {
	pe := &model.ProviderError{Provider: b.name, Op: op, Err: err}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		pe.Message = fmt.Sprintf("%s (code %d)", rpcErr.Error(), rpcErr.ErrorCode())
	}
	return pe
}

// retryable reports whether err is a transport fault worth another attempt.
func retryable(err error) bool {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return false
	}
	if errors.Is(err, rpc.ErrNoResult) {
		return false
	}
	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode >= http.StatusInternalServerError || httpErr.StatusCode == http.StatusTooManyRequests
	}
	return true
}

// isRPCError reports whether err is an error answered by the backend itself.
func isRPCError(err error) bool {
	var rpcErr rpc.Error
	return errors.As(err, &rpcErr)
}

// quantity accepts a JSON-RPC quantity as either a hex string or a JSON
// number and normalizes it to 0x-prefixed hex. Some paymasters answer gas
// fields as plain integers.
type quantity string

func (q *quantity) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*q = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*q = quantity(s)
		return nil
	}
	n, ok := new(big.Int).SetString(string(data), 10)
	if !ok || n.Sign() < 0 {
		return fmt.Errorf("invalid quantity %s", data)
	}
	*q = quantity(hexutil.EncodeBig(n))
	return nil
}

// sponsorResponse is the pm_sponsorUserOperation result both backends share.
type sponsorResponse struct {
	PaymasterAndData     string   `json:"paymasterAndData"`
	PreVerificationGas   quantity `json:"preVerificationGas"`
	VerificationGasLimit quantity `json:"verificationGasLimit"`
	CallGasLimit         quantity `json:"callGasLimit"`
	MaxFeePerGas         quantity `json:"maxFeePerGas"`
	MaxPriorityFeePerGas quantity `json:"maxPriorityFeePerGas"`
}

func (b *backend) toResult(resp *sponsorResponse) (*model.PaymasterResult, error) {
	if resp == nil || resp.PaymasterAndData == "" || resp.PaymasterAndData == model.EmptyHex {
		return nil, &model.ProviderError{Provider: b.name, Op: model.OpSponsor, Message: "response carried no paymasterAndData"}
	}
	return &model.PaymasterResult{
		Provider:             b.name,
		PaymasterAndData:     resp.PaymasterAndData,
		PreVerificationGas:   string(resp.PreVerificationGas),
		VerificationGasLimit: string(resp.VerificationGasLimit),
		CallGasLimit:         string(resp.CallGasLimit),
		MaxFeePerGas:         string(resp.MaxFeePerGas),
		MaxPriorityFeePerGas: string(resp.MaxPriorityFeePerGas),
	}, nil
}

// receiptResponse is the eth_getUserOperationReceipt result.
type receiptResponse struct {
	UserOpHash    string   `json:"userOpHash"`
	Sender        string   `json:"sender"`
	Nonce         quantity `json:"nonce"`
	Paymaster     string   `json:"paymaster"`
	ActualGasCost quantity `json:"actualGasCost"`
	ActualGasUsed quantity `json:"actualGasUsed"`
	Success       bool     `json:"success"`
	Reason        string   `json:"reason"`
	Receipt       *struct {
		TransactionHash string `json:"transactionHash"`
	} `json:"receipt"`
}

func (b *backend) receipt(ctx context.Context, opHash string) (*model.UserOperationReceipt, error) {
	var resp *receiptResponse
	if err := b.call(ctx, model.OpReceipt, &resp, "eth_getUserOperationReceipt", opHash); err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, nil
	}

	out := &model.UserOperationReceipt{
		UserOpHash:    resp.UserOpHash,
		Sender:        resp.Sender,
		Nonce:         string(resp.Nonce),
		Paymaster:     resp.Paymaster,
		ActualGasCost: string(resp.ActualGasCost),
		ActualGasUsed: string(resp.ActualGasUsed),
		Success:       resp.Success,
		Reason:        resp.Reason,
	}
	if resp.Receipt != nil {
		out.TxHash = resp.Receipt.TransactionHash
	}
	return out, nil
}

func (b *backend) send(ctx context.Context, op model.UserOperation, target any) (string, error) {
	var hash string
	if err := b.call(ctx, model.OpSubmit, &hash, "eth_sendUserOperation", op.WithDefaults(), target); err != nil {
		return "", err
	}
	if !model.IsValidOpHash(hash) {
		return "", &model.ProviderError{Provider: b.name, Op: model.OpSubmit, Message: fmt.Sprintf("malformed operation hash %q", hash)}
	}
	return hash, nil
}

// guard converts a panic inside a health probe into false.
func (b *backend) guard(healthy *bool) {
	if r := recover(); r != nil {
		b.logger.Error("health probe panicked", "panic", r)
		*healthy = false
	}
}
