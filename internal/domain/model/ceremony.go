package model

import "time"

// Wire constants for the platform credential ceremony.
const (
	PublicKeyCredentialType = "public-key"
	AttachmentPlatform      = "platform"
	UserVerificationRequire = "required"
	ResidentKeyPreferred    = "preferred"
	AttestationDirect       = "direct"

	ClientDataTypeCreate = "webauthn.create"
	ClientDataTypeGet    = "webauthn.get"
)

// RelyingParty identifies this service to the authenticator.
type RelyingParty struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// UserEntity is the account the credential is created for. ID is the user
// handle, never the raw identity string.
type UserEntity struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
}

// CredentialParameter is one accepted signature algorithm.
type CredentialParameter struct {
	Alg  COSEAlgorithm `json:"alg"`
	Type string        `json:"type"`
}

// AuthenticatorSelection constrains which authenticators may respond.
type AuthenticatorSelection struct {
	AuthenticatorAttachment string `json:"authenticatorAttachment"`
	UserVerification        string `json:"userVerification"`
	ResidentKey             string `json:"residentKey"`
}

// CredentialDescriptor names a credential the authenticator may use.
type CredentialDescriptor struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// CreationOptions is the request shape for a creation ceremony. Challenge
// and user ID are base64url encoded; Timeout is in milliseconds.
type CreationOptions struct {
	Challenge              string                 `json:"challenge"`
	RP                     RelyingParty           `json:"rp"`
	User                   UserEntity             `json:"user"`
	PubKeyCredParams       []CredentialParameter  `json:"pubKeyCredParams"`
	AuthenticatorSelection AuthenticatorSelection `json:"authenticatorSelection"`
	Timeout                int64                  `json:"timeout"`
	Attestation            string                 `json:"attestation"`
}

// AssertionOptions is the request shape for an authentication ceremony.
type AssertionOptions struct {
	Challenge        string                 `json:"challenge"`
	AllowCredentials []CredentialDescriptor `json:"allowCredentials"`
	UserVerification string                 `json:"userVerification"`
	Timeout          int64                  `json:"timeout"`
}

// Attestation is the result of a creation ceremony. PublicKey is the
// SubjectPublicKeyInfo DER the platform exposes, base64url encoded.
type Attestation struct {
	CredentialID   string        `json:"credentialId"`
	PublicKey      string        `json:"publicKey"`
	Algorithm      COSEAlgorithm `json:"algorithm"`
	ClientDataJSON string        `json:"clientDataJSON"`
}

// Assertion is the result of an authentication ceremony. All byte fields are
// base64url encoded.
type Assertion struct {
	CredentialID      string `json:"credentialId"`
	AuthenticatorData string `json:"authenticatorData"`
	ClientDataJSON    string `json:"clientDataJSON"`
	Signature         string `json:"signature"`
	UserHandle        string `json:"userHandle,omitempty"`
}

// ClientData is the decoded clientDataJSON the platform signs over.
type ClientData struct {
	Type      string `json:"type"`
	Challenge string `json:"challenge"`
	Origin    string `json:"origin"`
}

// WalletCreation is what a successful creation ceremony hands back.
type WalletCreation struct {
	WalletAddress string
	CredentialID  string
	Elapsed       time.Duration
}

// Authentication is what a successful authentication ceremony hands back.
// Signature is the raw assertion signature; Assertion carries the signed
// material needed to re-verify it later.
type Authentication struct {
	WalletAddress string
	Signature     []byte
	Assertion     Assertion
}

// Challenge is a freshly issued ceremony challenge.
type Challenge struct {
	Value     string
	ExpiresAt time.Time
}

// CeremonyStats is a point-in-time summary of ceremony activity.
type CeremonyStats struct {
	StoredCredentials int
	Creations         int64
	Authentications   int64
	Signatures        int64
	Failures          int64
	SLABreaches       int64
	AvgCreationMs     int64
}
