package driven

import (
	"context"

	"github.com/ericfisherdev/passkeywallet/internal/domain/model"
)

// PaymasterProvider is the fixed contract every bundler/paymaster backend
// implements. Failing calls return *model.ProviderError.
type PaymasterProvider interface {
	// Name identifies the backend in health maps, logs and metrics.
	Name() string

	// GetPaymasterData requests sponsorship for a draft operation.
	GetPaymasterData(ctx context.Context, op model.UserOperation) (*model.PaymasterResult, error)

	// SubmitUserOperation hands a fully assembled operation to the bundler
	// and returns its operation hash.
	SubmitUserOperation(ctx context.Context, op model.UserOperation) (string, error)

	// GetUserOperationReceipt returns the receipt for opHash, or (nil, nil)
	// while the operation is still pending.
	GetUserOperationReceipt(ctx context.Context, opHash string) (*model.UserOperationReceipt, error)

	// HealthCheck is a side-effect-free reachability probe. It never panics
	// or returns an error; internal faults become false.
	HealthCheck(ctx context.Context) bool
}
