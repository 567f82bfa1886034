package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ericfisherdev/passkeywallet/internal/adapter/driven/vault"
	"github.com/ericfisherdev/passkeywallet/internal/domain/model"
	"github.com/ericfisherdev/passkeywallet/internal/domain/port/driven"
)

var _ driven.CredentialStore = (*CredentialRepo)(nil)

// CredentialRepo stores credentials in PostgreSQL with key material sealed
// the same way the SQLite adapter seals it.
type CredentialRepo struct {
	db     *sql.DB
	sealer *vault.Sealer
}

// NewCredentialRepo creates a CredentialRepo.
func NewCredentialRepo(db *sql.DB, sealer *vault.Sealer) *CredentialRepo {
	return &CredentialRepo{db: db, sealer: sealer}
}

// Put upserts the credential for cred.IdentityKey.
func (r *CredentialRepo) Put(ctx context.Context, cred model.Credential) error {
	publicKey, err := r.sealer.Seal(cred.PublicKey, cred.IdentityKey)
	if err != nil {
		return fmt.Errorf("seal public key: %w", err)
	}
	recovery, err := r.sealer.Seal(cred.EncryptedRecoveryKey, cred.IdentityKey)
	if err != nil {
		return fmt.Errorf("seal recovery key: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO credentials (identity_key, credential_id, public_key, algorithm, wallet_address, encrypted_recovery_key, created_at, last_used_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (identity_key) DO UPDATE SET
			credential_id = EXCLUDED.credential_id,
			public_key = EXCLUDED.public_key,
			algorithm = EXCLUDED.algorithm,
			wallet_address = EXCLUDED.wallet_address,
			encrypted_recovery_key = EXCLUDED.encrypted_recovery_key,
			created_at = EXCLUDED.created_at,
			last_used_at = EXCLUDED.last_used_at`,
		cred.IdentityKey, cred.CredentialID, publicKey, int(cred.Algorithm), cred.WalletAddress,
		recovery, cred.CreatedAt.UTC(), cred.LastUsedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("put credential: %w", err)
	}
	return nil
}

// Get returns the credential for identityKey, or (nil, nil) if none exists.
func (r *CredentialRepo) Get(ctx context.Context, identityKey string) (*model.Credential, error) {
	if !r.sealer.Enabled() {
		return nil, driven.ErrEncryptionKeyNotSet
	}

	var (
		cred                model.Credential
		algorithm           int
		publicKey, recovery string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT identity_key, credential_id, public_key, algorithm, wallet_address, encrypted_recovery_key, created_at, last_used_at
		 FROM credentials
		 WHERE identity_key = $1`,
		identityKey,
	).Scan(&cred.IdentityKey, &cred.CredentialID, &publicKey, &algorithm, &cred.WalletAddress,
		&recovery, &cred.CreatedAt, &cred.LastUsedAt)
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
	return &cred, nil
}

// Delete removes the credential for identityKey and reports whether one existed.
func (r *CredentialRepo) Delete(ctx context.Context, identityKey string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM credentials WHERE identity_key = $1`, identityKey)
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
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM credentials`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count credentials: %w", err)
	}
	return n, nil
}
