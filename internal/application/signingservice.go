package application

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ericfisherdev/passkeywallet/internal/domain/model"
	"github.com/ericfisherdev/passkeywallet/internal/domain/passkey"
	"github.com/ericfisherdev/passkeywallet/internal/domain/wallet"
)

// Signature layout: version(1) || txHash[0:8] || assertion signature (DER).
const (
	SignatureVersion byte = 0x01
	bindingOffset         = 1
	bindingSize           = 8
	signatureHeader       = bindingOffset + bindingSize
)

// SignedTransaction is a transaction signature together with the assertion
// it wraps. Assertion carries the signed client and authenticator data a
// verifier needs.
type SignedTransaction struct {
	Signature     []byte
	TxHash        common.Hash
	WalletAddress string
	Assertion     model.Assertion
}

// SigningService signs pending transactions by running an authentication
// ceremony whose challenge is the transaction hash.
type SigningService struct {
	ceremonies *CeremonyService
	logger     *slog.Logger
}

// NewSigningService creates a SigningService on top of ceremonies.
func NewSigningService(ceremonies *CeremonyService, logger *slog.Logger) *SigningService {
	return &SigningService{ceremonies: ceremonies, logger: logger}
}

// Sign hashes tx, authenticates identity against that hash and assembles the
// final signature. Authentication failures come back as *model.SigningError
// wrapping the original error.
func (s *SigningService) Sign(ctx context.Context, identity string, tx model.PendingTransaction) (*SignedTransaction, error) {
	txHash, err := wallet.HashTransaction(tx)
	if err != nil {
		return nil, err
	}

	auth, err := s.ceremonies.Authenticate(ctx, identity, txHash.Bytes())
	if err != nil {
		return nil, &model.SigningError{Err: err}
	}

	sig := make([]byte, 0, signatureHeader+len(auth.Signature))
	sig = append(sig, SignatureVersion)
	sig = append(sig, txHash[:bindingSize]...)
	sig = append(sig, auth.Signature...)

	s.ceremonies.recordSignature()
	s.logger.Info("transaction signed", "wallet_address", auth.WalletAddress, "tx_hash", txHash.Hex())

	return &SignedTransaction{
		Signature:     sig,
		TxHash:        txHash,
		WalletAddress: auth.WalletAddress,
		Assertion:     auth.Assertion,
	}, nil
}

// Verify checks that signature was produced by identity's stored credential
// for exactly tx. A signature made for any other transaction fails with
// *model.SignatureVerificationError.
func (s *SigningService) Verify(ctx context.Context, identity string, tx model.PendingTransaction, signature []byte, assertion model.Assertion) error {
	txHash, err := wallet.HashTransaction(tx)
	if err != nil {
		return err
	}

	fragment, err := BindingFragment(signature)
	if err != nil {
		return err
	}
	if !bytes.Equal(fragment, txHash[:bindingSize]) {
		return &model.SignatureVerificationError{Reason: "signature is bound to a different transaction"}
	}

	assertionSig, err := passkey.Encoding.DecodeString(assertion.Signature)
	if err != nil || !bytes.Equal(assertionSig, signature[signatureHeader:]) {
		return &model.SignatureVerificationError{Reason: "signature does not match the supplied assertion"}
	}

	cred, err := s.ceremonies.Credential(ctx, identity)
	if err != nil {
		return err
	}
	return passkey.VerifyAssertion(cred.PublicKey, cred.Algorithm, txHash.Bytes(), assertion)
}

// BindingFragment returns the transaction hash prefix embedded in signature.
func BindingFragment(signature []byte) ([]byte, error) {
	if len(signature) <= signatureHeader {
		return nil, &model.SignatureVerificationError{Reason: fmt.Sprintf("signature too short: %d bytes", len(signature))}
	}
	if signature[0] != SignatureVersion {
		return nil, &model.SignatureVerificationError{Reason: fmt.Sprintf("unknown signature version %#x", signature[0])}
	}
	return signature[bindingOffset:signatureHeader], nil
}
