package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ericfisherdev/passkeywallet/internal/domain/model"
	"github.com/ericfisherdev/passkeywallet/internal/domain/port/driven"
)

const defaultAdapterTimeout = 30 * time.Second

// outcome is the result of one adapter call: a value or the reason it failed.
type outcome[T any] struct {
	value T
	err   *model.ProviderError
}

// PaymasterService fronts an ordered list of paymaster providers. Each
// request goes to the first provider and falls through to the next on
// failure; results are never merged across providers.
type PaymasterService struct {
	providers []driven.PaymasterProvider
	timeout   time.Duration
	metrics   driven.MetricsRecorder
	logger    *slog.Logger
}

// NewPaymasterService creates a PaymasterService trying providers in the
// given order. adapterTimeout bounds each provider call, retries included.
func NewPaymasterService(
	providers []driven.PaymasterProvider,
	adapterTimeout time.Duration,
	metrics driven.MetricsRecorder,
	logger *slog.Logger,
) *PaymasterService {
	if adapterTimeout <= 0 {
		adapterTimeout = defaultAdapterTimeout
	}
	if metrics == nil {
		metrics = driven.NopMetrics{}
	}
	return &PaymasterService{
		providers: providers,
		timeout:   adapterTimeout,
		metrics:   metrics,
		logger:    logger,
	}
}

// Providers returns the configured provider names in preference order.
func (s *PaymasterService) Providers() []string {
	names := make([]string, 0, len(s.providers))
	for _, p := range s.providers {
		names = append(names, p.Name())
	}
	return names
}

// Sponsor asks each provider in turn to sponsor op and returns the first
// answer.
func (s *PaymasterService) Sponsor(ctx context.Context, op model.UserOperation) (*model.PaymasterResult, error) {
	if !model.IsValidAddress(op.Sender) {
		return nil, &model.ValidationError{Field: "userOperation.sender", Reason: "must be a 0x-prefixed 20-byte address"}
	}
	if op.CallData == "" {
		return nil, &model.ValidationError{Field: "userOperation.callData", Reason: "required"}
	}

	return firstSuccess(ctx, s, model.OpSponsor, func(ctx context.Context, p driven.PaymasterProvider) (*model.PaymasterResult, error) {
		res, err := p.GetPaymasterData(ctx, op)
		if err != nil {
			return nil, err
		}
		if res == nil {
			return nil, &model.ProviderError{Provider: p.Name(), Op: model.OpSponsor, Message: "empty sponsorship result"}
		}
		res.Provider = p.Name()
		return res, nil
	})
}

// Submit hands a fully assembled op to each provider in turn until one
// accepts it.
func (s *PaymasterService) Submit(ctx context.Context, op model.UserOperation) (*model.SubmitResult, error) {
	op = op.WithDefaults()
	if err := op.ValidateForSubmission(); err != nil {
		return nil, err
	}
	if !model.IsValidAddress(op.Sender) {
		return nil, &model.ValidationError{Field: "userOperation.sender", Reason: "must be a 0x-prefixed 20-byte address"}
	}

	return firstSuccess(ctx, s, model.OpSubmit, func(ctx context.Context, p driven.PaymasterProvider) (*model.SubmitResult, error) {
		hash, err := p.SubmitUserOperation(ctx, op)
		if err != nil {
			return nil, err
		}
		if !model.IsValidOpHash(hash) {
			return nil, &model.ProviderError{Provider: p.Name(), Op: model.OpSubmit, Message: fmt.Sprintf("invalid operation hash %q", hash)}
		}
		return &model.SubmitResult{Provider: p.Name(), OpHash: hash}, nil
	})
}

// Receipt looks up the receipt for opHash. A nil receipt with no error means
// the operation is still pending.
func (s *PaymasterService) Receipt(ctx context.Context, opHash string) (*model.UserOperationReceipt, error) {
	if !model.IsValidOpHash(opHash) {
		return nil, &model.ValidationError{Field: "hash", Reason: "must be a 0x-prefixed 32-byte hash"}
	}

	return firstSuccess(ctx, s, model.OpReceipt, func(ctx context.Context, p driven.PaymasterProvider) (*model.UserOperationReceipt, error) {
		return p.GetUserOperationReceipt(ctx, opHash)
	})
}

// Health probes every provider concurrently and returns the full map. It
// never fails; a provider that errors, panics or times out reports false.
func (s *PaymasterService) Health(ctx context.Context) model.ProviderHealth {
	results := make([]bool, len(s.providers))

	var g errgroup.Group
	for i, p := range s.providers {
		g.Go(func() error {
			results[i] = s.probe(ctx, p)
			return nil
		})
	}
	_ = g.Wait()

	health := make(model.ProviderHealth, len(s.providers))
	for i, p := range s.providers {
		health[p.Name()] = results[i]
		s.metrics.RecordProviderHealth(p.Name(), results[i])
	}
	return health
}

func (s *PaymasterService) probe(ctx context.Context, p driven.PaymasterProvider) (healthy bool) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("health check panicked", "provider", p.Name(), "panic", r)
			healthy = false
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return p.HealthCheck(ctx)
}

// firstSuccess runs call against each provider in order and returns the
// first success. Every failure is logged and recorded; if all fail the
// result is *model.AllProvidersFailedError.
func firstSuccess[T any](
	ctx context.Context,
	s *PaymasterService,
	op model.ProviderOp,
	call func(context.Context, driven.PaymasterProvider) (T, error),
) (T, error) {
	var zero T
	failures := make([]*model.ProviderError, 0, len(s.providers))

	for _, p := range s.providers {
		if err := ctx.Err(); err != nil {
			return zero, fmt.Errorf("%s aborted: %w", op, err)
		}

		out := attempt(ctx, s.timeout, p, op, call)
		if out.err == nil {
			s.metrics.RecordProviderCall(p.Name(), string(op), model.OutcomeSuccess)
			if len(failures) > 0 {
				s.logger.Info("provider fallback succeeded", "op", op, "provider", p.Name(), "failed", len(failures))
			}
			return out.value, nil
		}

		s.metrics.RecordProviderCall(p.Name(), string(op), model.OutcomeFailure)
		s.logger.Warn("provider call failed, trying next", "op", op, "provider", p.Name(), "error", out.err)
		failures = append(failures, out.err)
	}

	s.logger.Error("all providers failed", "op", op, "providers", len(s.providers))
	return zero, &model.AllProvidersFailedError{Op: op, Failures: failures}
}

// attempt makes one bounded call and folds any error or panic into a
// *model.ProviderError.
func attempt[T any](
	ctx context.Context,
	timeout time.Duration,
	p driven.PaymasterProvider,
	op model.ProviderOp,
	call func(context.Context, driven.PaymasterProvider) (T, error),
) (out outcome[T]) {
	defer func() {
		if r := recover(); r != nil {
			out = outcome[T]{err: &model.ProviderError{Provider: p.Name(), Op: op, Message: fmt.Sprintf("panic: %v", r)}}
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	value, err := call(ctx, p)
	if err == nil {
		return outcome[T]{value: value}
	}

	var pe *model.ProviderError
	if !errors.As(err, &pe) {
		pe = &model.ProviderError{Provider: p.Name(), Op: op, Err: err}
	}
	return outcome[T]{err: pe}
}
