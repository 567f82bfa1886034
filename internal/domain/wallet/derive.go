// Package wallet derives wallet addresses and recovery backups from passkey
// public key material. Everything here is pure apart from the randomness a
// fresh recovery keypair needs.
//
// DeriveAddress hashes raw key bytes. It does not decode an elliptic-curve
// point or compute a CREATE2 smart-account address; production deployments
// substitute the counterfactual address of their account factory.
package wallet

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/hkdf"
)

const (
	recoverySalt = "passkeywallet/recovery/v1"
	recoveryInfo = "aes-256-gcm"
)

// DeriveAddress maps public key material to an EIP-55 checksummed address:
// the last 20 bytes of Keccak-256(publicKey).
func DeriveAddress(publicKey []byte) string {
	return common.BytesToAddress(crypto.Keccak256(publicKey)[12:]).Hex()
}

// CreateRecoveryBackup generates an independent secp256k1 keypair and returns
// its private key sealed with AES-256-GCM under a key derived from publicKey,
// hex encoded as nonce || ciphertext || tag. The backup key never signs
// on-chain operations.
func CreateRecoveryBackup(publicKey []byte) (string, error) {
	if len(publicKey) == 0 {
		return "", errors.New("empty public key")
	}

	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return "", fmt.Errorf("generate recovery key: %w", err)
	}

	gcm, err := recoveryCipher(publicKey)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("rand nonce: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, priv.Serialize(), nil)
	return hex.EncodeToString(sealed), nil
}

// OpenRecoveryBackup reverses CreateRecoveryBackup.
func OpenRecoveryBackup(publicKey []byte, backup string) (*btcec.PrivateKey, error) {
	data, err := hex.DecodeString(backup)
	if err != nil {
		return nil, fmt.Errorf("hex decode: %w", err)
	}

	gcm, err := recoveryCipher(publicKey)
	if err != nil {
		return nil, err
	}

	if len(data) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}
	nonce, ciphertext := data[:gcm.NonceSize()], data[gcm.NonceSize():]

	raw, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("gcm.Open: %w", err)
	}

	priv, _ := btcec.PrivKeyFromBytes(raw)
	return priv, nil
}

// RecoveryAddress is the address controlled by a recovery key.
func RecoveryAddress(priv *btcec.PrivateKey) string {
	pub := priv.PubKey().SerializeUncompressed()
	return common.BytesToAddress(crypto.Keccak256(pub[1:])[12:]).Hex()
}

func recoveryCipher(publicKey []byte) (cipher.AEAD, error) {
	key := make([]byte, 32)
	kdf := hkdf.New(sha256.New, publicKey, []byte(recoverySalt), []byte(recoveryInfo))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("derive recovery key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}
	return gcm, nil
}
