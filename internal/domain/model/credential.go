package model

import "time"

// Credential is the passkey record bound to one identity. IdentityKey is the
// opaque token derived from the identity string; the raw identity (an email
// address) is never used as a storage key.
//
// PublicKey holds the authenticator's SubjectPublicKeyInfo DER, base64url
// encoded. WalletAddress is a pure function of PublicKey.
type Credential struct {
	IdentityKey          string
	CredentialID         string
	PublicKey            string
	Algorithm            COSEAlgorithm
	WalletAddress        string
	EncryptedRecoveryKey string
	CreatedAt            time.Time
	LastUsedAt           time.Time
}

// Touch returns a copy of c with LastUsedAt set to t. Authentication is the
// only path that mutates a stored credential.
func (c Credential) Touch(t time.Time) Credential {
	c.LastUsedAt = t
	return c
}
