package paymaster

import (
	"context"

	"github.com/ericfisherdev/passkeywallet/internal/domain/model"
	"github.com/ericfisherdev/passkeywallet/internal/domain/port/driven"
)

var _ driven.PaymasterProvider = (*Pimlico)(nil)

// PimlicoName identifies the Pimlico-style backend.
const PimlicoName = "pimlico"

// Pimlico talks to a backend that keys both sponsorship and submission by
// entry point address.
type Pimlico struct {
	*backend
}

// NewPimlico creates the adapter. Options.EntryPoint is required.
func NewPimlico(opts Options) (*Pimlico, error) {
	b, err := newBackend(PimlicoName, opts)
	if err != nil {
		return nil, err
	}
	return &Pimlico{backend: b}, nil
}

// Name returns "pimlico".
func (p *Pimlico) Name() string { return p.name }

// GetPaymasterData requests sponsorship against the configured entry point.
func (p *Pimlico) GetPaymasterData(ctx context.Context, op model.UserOperation) (*model.PaymasterResult, error) {
	var resp *sponsorResponse
	if err := p.call(ctx, model.OpSponsor, &resp, "pm_sponsorUserOperation", op.WithDefaults(), p.entryPoint); err != nil {
		return nil, err
	}
	return p.toResult(resp)
}

// SubmitUserOperation sends op to the bundler for the configured entry point.
func (p *Pimlico) SubmitUserOperation(ctx context.Context, op model.UserOperation) (string, error) {
	return p.send(ctx, op, p.entryPoint)
}

// GetUserOperationReceipt looks up the receipt for opHash.
func (p *Pimlico) GetUserOperationReceipt(ctx context.Context, opHash string) (*model.UserOperationReceipt, error) {
	return p.receipt(ctx, opHash)
}

// HealthCheck estimates gas for an empty operation. The backend rejects it,
// and a JSON-RPC rejection proves the endpoint is up.
func (p *Pimlico) HealthCheck(ctx context.Context) (healthy bool) {
	defer p.guard(&healthy)

	var estimate map[string]any
	err := p.probe(ctx, &estimate, "eth_estimateUserOperationGas", model.UserOperation{}.WithDefaults(), p.entryPoint)
	if err == nil || isRPCError(err) {
		return true
	}
	p.logger.Debug("health probe failed", "error", err)
	return false
}
