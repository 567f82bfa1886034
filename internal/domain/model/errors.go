package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupportedPlatform is returned when the platform credential API is not
// available. No ceremony is attempted.
var ErrUnsupportedPlatform = errors.New("platform credential API is not available")

// CeremonyError reports a creation or authentication ceremony that did not
// complete. It is terminal for the call; the controller never retries it.
type CeremonyError struct {
	Kind    CeremonyKind
	Failure CeremonyFailure
	Err     error
}

func (e *CeremonyError) Error() string {
	return fmt.Sprintf("%s ceremony %s: %v", e.Kind, e.Failure, e.Err)
}

func (e *CeremonyError) Unwrap() error { return e.Err }

// CredentialNotFoundError reports that no credential is stored for an identity.
type CredentialNotFoundError struct {
	IdentityKey string
}

func (e *CredentialNotFoundError) Error() string {
	return "no passkey credential registered for this identity"
}

// SignatureVerificationError reports an assertion that does not verify
// against the stored public key and the challenge that was sent.
type SignatureVerificationError struct {
	Reason string
}

func (e *SignatureVerificationError) Error() string {
	return "assertion signature verification failed: " + e.Reason
}

// SigningError relabels an authentication failure raised while signing a
// transaction. The underlying error stays reachable through errors.As.
type SigningError struct {
	Err error
}

func (e *SigningError) Error() string {
	return "transaction signing failed: " + e.Err.Error()
}

func (e *SigningError) Unwrap() error { return e.Err }

// ProviderError is one failed call against one paymaster backend.
type ProviderError struct {
	Provider string
	Op       ProviderOp
	Message  string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("provider %s %s: %s", e.Provider, e.Op, e.Message)
	}
	return fmt.Sprintf("provider %s %s: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// AllProvidersFailedError aggregates every ProviderError of one request.
type AllProvidersFailedError struct {
	Op       ProviderOp
	Failures []*ProviderError
}

func (e *AllProvidersFailedError) Error() string {
	if len(e.Failures) == 0 {
		return fmt.Sprintf("all providers failed for %s: no providers configured", e.Op)
	}
	msgs := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		msgs = append(msgs, f.Error())
	}
	return fmt.Sprintf("all providers failed for %s: %s", e.Op, strings.Join(msgs, "; "))
}

// ValidationError reports malformed caller input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
