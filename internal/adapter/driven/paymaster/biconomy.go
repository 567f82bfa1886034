package paymaster

import (
	"context"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/ericfisherdev/passkeywallet/internal/domain/model"
	"github.com/ericfisherdev/passkeywallet/internal/domain/port/driven"
)

var _ driven.PaymasterProvider = (*Biconomy)(nil)

// BiconomyName identifies the Biconomy-style backend.
const BiconomyName = "biconomy"

// sponsorshipExpiry is how long, in seconds, a sponsored quote stays valid.
const sponsorshipExpiry = 300

// sponsorContext is the second parameter of a Biconomy sponsorship request.
type sponsorContext struct {
	Mode               string `json:"mode"`
	ExpiryDuration     int    `json:"expiryDuration"`
	CalculateGasLimits bool   `json:"calculateGasLimits"`
}

// Biconomy talks to a paymaster that takes a sponsorship mode object and a
// bundler that keys submissions by chain ID.
type Biconomy struct {
	*backend
}

// NewBiconomy creates the adapter. Options.ChainID is required.
func NewBiconomy(opts Options) (*Biconomy, error) {
	b, err := newBackend(BiconomyName, opts)
	if err != nil {
		return nil, err
	}
	return &Biconomy{backend: b}, nil
}

// Name returns "biconomy".
func (p *Biconomy) Name() string { return p.name }

// GetPaymasterData requests SPONSORED mode with gas limits calculated by the
// paymaster.
func (p *Biconomy) GetPaymasterData(ctx context.Context, op model.UserOperation) (*model.PaymasterResult, error) {
	params := sponsorContext{Mode: "SPONSORED", ExpiryDuration: sponsorshipExpiry, CalculateGasLimits: true}

	var resp *sponsorResponse
	if err := p.call(ctx, model.OpSponsor, &resp, "pm_sponsorUserOperation", op.WithDefaults(), params); err != nil {
		return nil, err
	}
	return p.toResult(resp)
}

// SubmitUserOperation sends op to the bundler for the configured chain.
func (p *Biconomy) SubmitUserOperation(ctx context.Context, op model.UserOperation) (string, error) {
	return p.send(ctx, op, hexutil.Uint64(p.chainID))
}

// GetUserOperationReceipt looks up the receipt for opHash.
func (p *Biconomy) GetUserOperationReceipt(ctx context.Context, opHash string) (*model.UserOperationReceipt, error) {
	return p.receipt(ctx, opHash)
}

// HealthCheck lists the bundler's supported entry points.
func (p *Biconomy) HealthCheck(ctx context.Context) (healthy bool) {
	defer p.guard(&healthy)

	var entryPoints []string
	if err := p.probe(ctx, &entryPoints, "eth_supportedEntryPoints"); err != nil {
		p.logger.Debug("health probe failed", "error", err)
		return false
	}
	return len(entryPoints) > 0
}
