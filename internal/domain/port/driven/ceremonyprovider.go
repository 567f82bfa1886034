package driven

import (
	"context"

	"github.com/ericfisherdev/passkeywallet/internal/domain/model"
)

// CeremonyProvider is the boundary over the platform credential API.
// Implementations report cancellation, timeout or platform faults as
// *model.CeremonyError.
type CeremonyProvider interface {
	// Available reports whether the platform can run a ceremony at all.
	Available(ctx context.Context) bool

	// Create runs a creation ceremony.
	Create(ctx context.Context, opts model.CreationOptions) (*model.Attestation, error)

	// Get runs an authentication ceremony.
	Get(ctx context.Context, opts model.AssertionOptions) (*model.Assertion, error)
}
