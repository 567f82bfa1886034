package model

// COSEAlgorithm identifies a public-key credential signature algorithm by its
// COSE registry number.
type COSEAlgorithm int

const (
	AlgES256 COSEAlgorithm = -7
	AlgRS256 COSEAlgorithm = -257
)

// String returns the JOSE name of the algorithm.
func (a COSEAlgorithm) String() string {
	switch a {
	case AlgES256:
		return "ES256"
	case AlgRS256:
		return "RS256"
	default:
		return "unknown"
	}
}

// CeremonyKind distinguishes the two platform credential ceremonies.
type CeremonyKind string

const (
	CeremonyCreate CeremonyKind = "create"
	CeremonyGet    CeremonyKind = "get"
)

// CeremonyFailure classifies why a ceremony did not complete.
type CeremonyFailure string

const (
	CeremonyCancelled CeremonyFailure = "cancelled"
	CeremonyTimeout   CeremonyFailure = "timeout"
	CeremonyPlatform  CeremonyFailure = "platform"
)

// ProviderOp names an operation issued against a paymaster backend.
type ProviderOp string

const (
	OpSponsor ProviderOp = "sponsor"
	OpSubmit  ProviderOp = "submit"
	OpReceipt ProviderOp = "receipt"
	OpHealth  ProviderOp = "health"
)

// Outcome labels used for observability signals.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)
