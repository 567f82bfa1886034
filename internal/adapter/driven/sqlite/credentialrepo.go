package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ericfisherdev/passkeywallet/internal/adapter/driven/vault"
	"github.com/ericfisherdev/passkeywallet/internal/domain/model"
	"github.com/ericfisherdev/passkeywallet/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.CredentialStore = (*CredentialRepo)(nil)

// CredentialRepo is the SQLite implementation of the CredentialStore port interface.
// The public key and recovery backup are sealed with AES-256-GCM before write,
// bound to the row's identity key, and opened after read.
type CredentialRepo struct {
	db     *DB
	sealer *vault.Sealer
}

// NewCredentialRepo creates a new CredentialRepo. A sealer without a key makes
// every operation that touches key material return driven.ErrEncryptionKeyNotSet.
func NewCredentialRepo(db *DB, sealer *vault.Sealer) *CredentialRepo {
	return &CredentialRepo{db: db, sealer: sealer}
}

// Put stores or replaces the credential for cred.IdentityKey.
func (r *CredentialRepo) Put(ctx context.Context, cred model.Credential) error {
	publicKey, err := r.sealer.Seal(cred.PublicKey, cred.IdentityKey)
	if err != nil {
		return fmt.Errorf("seal public key: %w", err)
	}
	recovery, err := r.sealer.Seal(cred.EncryptedRecoveryKey, cred.IdentityKey)
	if err != nil {
		return fmt.Errorf("seal recovery key: %w", err)
	}

	const query = `
		INSERT INTO credentials (identity_key, credential_id, public_key, algorithm, wallet_address, encrypted_recovery_key, created_at, last_used_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (identity_key) DO UPDATE SET
			credential_id = excluded.credential_id,
			public_key = excluded.public_key,
			algorithm = excluded.algorithm,
			wallet_address = excluded.wallet_address,
			encrypted_recovery_key = excluded.encrypted_recovery_key,
			created_at = excluded.created_at,
			last_used_at = excluded.last_used_at
	`
	_, err = r.db.Writer.ExecContext(ctx, query,
		cred.IdentityKey, cred.CredentialID, publicKey, int(cred.Algorithm), cred.WalletAddress,
		recovery, formatTime(cred.CreatedAt), formatTime(cred.LastUsedAt),
	)
	if err != nil {
		return fmt.Errorf("put credential: %w", err)
	}
	return nil
}

// Get retrieves the credential for identityKey. Returns (nil, nil) if none exists.
func (r *CredentialRepo) Get(ctx context.Context, identityKey string) (*model.Credential, error) {
	if !r.sealer.Enabled() {
		return nil, driven.ErrEncryptionKeyNotSet
	}

	const query = `
		SELECT identity_key, credential_id, public_key, algorithm, wallet_address, encrypted_recovery_key, created_at, last_used_at
		FROM credentials
		WHERE identity_key = ?
	`
	var (
		cred                  model.Credential
		algorithm             int
		publicKey, recovery   string
		createdAt, lastUsedAt string
	)
	err := r.db.Reader.QueryRowContext(ctx, query, identityKey).Scan(
		&cred.IdentityKey, &cred.CredentialID, &publicKey, &algorithm, &cred.WalletAddress,
		&recovery, &createdAt, &lastUsedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get credential: %w", err)
	}

	cred.Algorithm = model.COSEAlgorithm(algorithm)

	if cred.PublicKey, err = r.sealer.Open(publicKey, cred.IdentityKey); err != nil {
		return nil, fmt.Errorf("open public key: %w", err)
	}
	if cred.EncryptedRecoveryKey, err = r.sealer.Open(recovery, cred.IdentityKey); err != nil {
		return nil, fmt.Errorf("open recovery key: %w", err)
	}
	if cred.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if cred.LastUsedAt, err = parseTime(lastUsedAt); err != nil {
		return nil, fmt.Errorf("parse last_used_at: %w", err)
	}

	return &cred, nil
}

// Delete removes the credential for identityKey and reports whether one existed.
func (r *CredentialRepo) Delete(ctx context.Context, identityKey string) (bool, error) {
	const query = `DELETE FROM credentials WHERE identity_key = ?`
	res, err := r.db.Writer.ExecContext(ctx, query, identityKey)
	if err != nil {
		return false, fmt.Errorf("delete credential: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete credential rows affected: %w", err)
	}
	return n > 0, nil
}

// List returns the zero or one credential stored for identityKey.
func (r *CredentialRepo) List(ctx context.Context, identityKey string) ([]model.Credential, error) {
	cred, err := r.Get(ctx, identityKey)
	if err != nil {
		return nil, err
	}
	if cred == nil {
		return []model.Credential{}, nil
	}
	return []model.Credential{*cred}, nil
}

// Count returns the number of stored credentials.
func (r *CredentialRepo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.Reader.QueryRowContext(ctx, `SELECT COUNT(*) FROM credentials`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count credentials: %w", err)
	}
	return n, nil
}
