// Package passkey verifies authentication assertions against stored
// credential public keys.
//
// Public keys arrive as SubjectPublicKeyInfo DER, which platforms expose
// directly. Attestation objects are not parsed; no CBOR/COSE decoding happens here.
package passkey

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/subtle"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/ericfisherdev/passkeywallet/internal/domain/model"
)

// Encoding is the base64url alphabet WebAuthn uses, without padding.
var Encoding = base64.RawURLEncoding

// minAuthenticatorData is rpIdHash(32) + flags(1) + signCount(4).
const minAuthenticatorData = 37

// Authenticator data flag bits.
const (
	FlagUserPresent  byte = 0x01
	FlagUserVerified byte = 0x04
)

// SignedData returns the bytes an authenticator signs for an assertion:
// authenticatorData || SHA-256(clientDataJSON).
func SignedData(authenticatorData, clientDataJSON []byte) []byte {
	h := sha256.Sum256(clientDataJSON)
	out := make([]byte, 0, len(authenticatorData)+len(h))
	out = append(out, authenticatorData...)
	return append(out, h[:]...)
}

// VerifyAssertion checks that a was produced for challenge by the key in
// publicKey (base64url SPKI DER). Any mismatch is a *model.SignatureVerificationError.
func VerifyAssertion(publicKey string, alg model.COSEAlgorithm, challenge []byte, a model.Assertion) error {
	clientDataJSON, err := checkClientData(a.ClientDataJSON, model.ClientDataTypeGet, challenge)
	if err != nil {
		return err
	}

	authData, err := Encoding.DecodeString(a.AuthenticatorData)
	if err != nil || len(authData) < minAuthenticatorData {
		return verifyErr("malformed authenticator data")
	}
	if authData[32]&FlagUserVerified == 0 {
		return verifyErr("user verification flag not set")
	}

	sig, err := Encoding.DecodeString(a.Signature)
	if err != nil || len(sig) == 0 {
		return verifyErr("malformed signature")
	}

	der, err := Encoding.DecodeString(publicKey)
	if err != nil {
		return verifyErr("stored public key is not base64url")
	}
	pub, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return verifyErr("stored public key is not SPKI DER")
	}

	digest := sha256.Sum256(SignedData(authData, clientDataJSON))

	switch alg {
	case model.AlgES256:
		key, ok := pub.(*ecdsa.PublicKey)
		if !ok {
			return verifyErr("stored key is not an ECDSA key")
		}
		if !ecdsa.VerifyASN1(key, digest[:], sig) {
			return verifyErr("ES256 signature invalid")
		}
	case model.AlgRS256:
		key, ok := pub.(*rsa.PublicKey)
		if !ok {
			return verifyErr("stored key is not an RSA key")
		}
		if err := rsa.VerifyPKCS1v15(key, crypto.SHA256, digest[:], sig); err != nil {
			return verifyErr("RS256 signature invalid")
		}
	default:
		return verifyErr(fmt.Sprintf("unsupported algorithm %d", alg))
	}

	return nil
}

// CheckCreation confirms that the client data of an attestation was produced
// by a creation ceremony for challenge.
func CheckCreation(att model.Attestation, challenge []byte) error {
	_, err := checkClientData(att.ClientDataJSON, model.ClientDataTypeCreate, challenge)
	return err
}

// checkClientData decodes encoded clientDataJSON and checks its type and
// challenge. It returns the raw JSON the authenticator signed over.
func checkClientData(encoded, wantType string, challenge []byte) ([]byte, error) {
	clientDataJSON, err := Encoding.DecodeString(encoded)
	if err != nil {
		return nil, verifyErr("clientDataJSON is not base64url")
	}

	var cd model.ClientData
	if err := json.Unmarshal(clientDataJSON, &cd); err != nil {
		return nil, verifyErr("clientDataJSON is not valid JSON")
	}
	if cd.Type != wantType {
		return nil, verifyErr(fmt.Sprintf("unexpected client data type %q", cd.Type))
	}

	sent := Encoding.EncodeToString(challenge)
	if subtle.ConstantTimeCompare([]byte(cd.Challenge), []byte(sent)) != 1 {
		return nil, verifyErr("challenge mismatch")
	}
	return clientDataJSON, nil
}

func verifyErr(reason string) error {
	return &model.SignatureVerificationError{Reason: reason}
}
