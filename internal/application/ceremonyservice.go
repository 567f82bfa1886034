// Package application contains use-case orchestration services.
package application

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/ericfisherdev/passkeywallet/internal/domain/model"
	"github.com/ericfisherdev/passkeywallet/internal/domain/passkey"
	"github.com/ericfisherdev/passkeywallet/internal/domain/port/driven"
	"github.com/ericfisherdev/passkeywallet/internal/domain/wallet"
)

// challengeSize is the length in bytes of every generated ceremony challenge.
const challengeSize = 32

const (
	defaultCeremonyTimeout = 60 * time.Second
	defaultWalletSLA       = 15 * time.Second
	maxDisplayName         = 64
)

// CeremonySettings holds the relying party identity and ceremony budgets.
type CeremonySettings struct {
	RPID   string
	RPName string

	// IdentitySalt keys the HMAC that turns identity strings into opaque
	// storage keys and user handles.
	IdentitySalt []byte

	CeremonyTimeout time.Duration
	// WalletSLA is the advisory latency target for wallet creation.
	WalletSLA time.Duration
}

// ceremonyCounters backs CeremonyStats.
type ceremonyCounters struct {
	creations       atomic.Int64
	authentications atomic.Int64
	signatures      atomic.Int64
	failures        atomic.Int64
	slaBreaches     atomic.Int64
	creationMsTotal atomic.Int64
}

// CeremonyService binds platform credentials to wallets and re-authenticates
// them. At most one ceremony runs per identity at a time.
type CeremonyService struct {
	store     driven.CredentialStore
	provider  driven.CeremonyProvider
	metrics   driven.MetricsRecorder
	logger    *slog.Logger
	settings  CeremonySettings
	locks     *identityLocks
	sanitizer *bluemonday.Policy
	now       func() time.Time
	counters  ceremonyCounters
}

// NewCeremonyService creates a CeremonyService. metrics may be nil.
func NewCeremonyService(
	store driven.CredentialStore,
	provider driven.CeremonyProvider,
	metrics driven.MetricsRecorder,
	logger *slog.Logger,
	settings CeremonySettings,
) *CeremonyService {
	if metrics == nil {
		metrics = driven.NopMetrics{}
	}
	if settings.CeremonyTimeout <= 0 {
		settings.CeremonyTimeout = defaultCeremonyTimeout
	}
	if settings.WalletSLA <= 0 {
		settings.WalletSLA = defaultWalletSLA
	}

	return &CeremonyService{
		store:     store,
		provider:  provider,
		metrics:   metrics,
		logger:    logger,
		settings:  settings,
		locks:     newIdentityLocks(),
		sanitizer: bluemonday.StrictPolicy(),
		now:       time.Now,
	}
}

// SetClock replaces the wall clock used for timestamps and elapsed time.
func (s *CeremonyService) SetClock(now func() time.Time) {
	s.now = now
}

// IdentityKey maps an email-shaped identity to the opaque key credentials are
// stored under. Matching is case-insensitive.
func (s *CeremonyService) IdentityKey(identity string) (string, error) {
	identity = strings.ToLower(strings.TrimSpace(identity))
	if !model.IsValidIdentity(identity) {
		return "", &model.ValidationError{Field: "email", Reason: "must be an email address"}
	}

	mac := hmac.New(sha256.New, s.settings.IdentitySalt)
	mac.Write([]byte(identity))
	return passkey.Encoding.EncodeToString(mac.Sum(nil)), nil
}

// CreateCredential runs a creation ceremony for identity and stores the
// resulting credential, replacing any previous one. Nothing is stored unless
// every step succeeds. Exceeding the wallet SLA is logged and counted but
// never fails the call.
func (s *CeremonyService) CreateCredential(ctx context.Context, identity, displayName string) (*model.WalletCreation, error) {
	key, err := s.IdentityKey(identity)
	if err != nil {
		return nil, err
	}

	unlock, err := s.locks.lock(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("wait for identity lock: %w", err)
	}
	defer unlock()

	start := s.now()
	result, err := s.create(ctx, key, identity, displayName)
	elapsed := s.now().Sub(start)

	if err != nil {
		s.counters.failures.Add(1)
		s.metrics.ObserveCeremony(string(model.CeremonyCreate), model.OutcomeFailure, elapsed)
		s.logger.Warn("credential creation failed", "identity_key", key, "error", err)
		return nil, err
	}

	result.Elapsed = elapsed
	s.counters.creations.Add(1)
	s.counters.creationMsTotal.Add(elapsed.Milliseconds())
	s.metrics.ObserveCeremony(string(model.CeremonyCreate), model.OutcomeSuccess, elapsed)

	if elapsed > s.settings.WalletSLA {
		s.counters.slaBreaches.Add(1)
		s.metrics.RecordSLABreach(elapsed)
		s.logger.Warn("wallet creation exceeded SLA",
			"identity_key", key,
			"elapsed_ms", elapsed.Milliseconds(),
			"sla_ms", s.settings.WalletSLA.Milliseconds(),
		)
	}

	s.logger.Info("credential created",
		"identity_key", key,
		"credential_id", result.CredentialID,
		"wallet_address", result.WalletAddress,
		"elapsed_ms", elapsed.Milliseconds(),
	)
	return result, nil
}

func (s *CeremonyService) create(ctx context.Context, key, identity, displayName string) (*model.WalletCreation, error) {
	if !s.provider.Available(ctx) {
		return nil, model.ErrUnsupportedPlatform
	}

	challenge, err := newChallenge()
	if err != nil {
		return nil, err
	}

	opts := model.CreationOptions{
		Challenge: passkey.Encoding.EncodeToString(challenge),
		RP:        model.RelyingParty{ID: s.settings.RPID, Name: s.settings.RPName},
		User: model.UserEntity{
			ID:          key,
			Name:        strings.ToLower(strings.TrimSpace(identity)),
			DisplayName: s.displayName(identity, displayName),
		},
		PubKeyCredParams: []model.CredentialParameter{
			{Alg: model.AlgES256, Type: model.PublicKeyCredentialType},
			{Alg: model.AlgRS256, Type: model.PublicKeyCredentialType},
		},
		AuthenticatorSelection: model.AuthenticatorSelection{
			AuthenticatorAttachment: model.AttachmentPlatform,
			UserVerification:        model.UserVerificationRequire,
			ResidentKey:             model.ResidentKeyPreferred,
		},
		Timeout:     s.settings.CeremonyTimeout.Milliseconds(),
		Attestation: model.AttestationDirect,
	}

	ceremonyCtx, cancel := context.WithTimeout(ctx, s.settings.CeremonyTimeout)
	defer cancel()

	att, err := s.provider.Create(ceremonyCtx, opts)
	if err != nil {
		return nil, asCeremonyError(ceremonyCtx, model.CeremonyCreate, err)
	}

	publicKey, err := checkAttestation(att, challenge)
	if err != nil {
		return nil, err
	}

	backup, err := wallet.CreateRecoveryBackup(publicKey)
	if err != nil {
		return nil, fmt.Errorf("create recovery backup: %w", err)
	}

	now := s.now().UTC()
	cred := model.Credential{
		IdentityKey:          key,
		CredentialID:         att.CredentialID,
		PublicKey:            att.PublicKey,
		Algorithm:            att.Algorithm,
		WalletAddress:        wallet.DeriveAddress(publicKey),
		EncryptedRecoveryKey: backup,
		CreatedAt:            now,
		LastUsedAt:           now,
	}
	if err := s.store.Put(ctx, cred); err != nil {
		return nil, fmt.Errorf("store credential: %w", err)
	}

	return &model.WalletCreation{WalletAddress: cred.WalletAddress, CredentialID: cred.CredentialID}, nil
}

// checkAttestation validates the ceremony result and returns the decoded
// public key bytes.
func checkAttestation(att *model.Attestation, challenge []byte) ([]byte, error) {
	malformed := func(reason string) error {
		return &model.CeremonyError{Kind: model.CeremonyCreate, Failure: model.CeremonyPlatform, Err: errors.New(reason)}
	}

	if att == nil || att.CredentialID == "" {
		return nil, malformed("attestation carried no credential id")
	}
	if att.Algorithm != model.AlgES256 && att.Algorithm != model.AlgRS256 {
		return nil, malformed(fmt.Sprintf("unsupported algorithm %d", att.Algorithm))
	}
	publicKey, err := passkey.Encoding.DecodeString(att.PublicKey)
	if err != nil || len(publicKey) == 0 {
		return nil, malformed("attestation carried no usable public key")
	}
	// Every creation must be bound to the issued challenge.
	if att.ClientDataJSON == "" {
		return nil, malformed("attestation carried no client data")
	}
	if err := passkey.CheckCreation(*att, challenge); err != nil {
		return nil, err
	}
	return publicKey, nil
}

// Authenticate runs an assertion ceremony against the stored credential and
// verifies the result. challenge may be nil, in which case a random one is
// generated. A verified assertion refreshes the credential's LastUsedAt.
func (s *CeremonyService) Authenticate(ctx context.Context, identity string, challenge []byte) (*model.Authentication, error) {
	key, err := s.IdentityKey(identity)
	if err != nil {
		return nil, err
	}

	unlock, err := s.locks.lock(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("wait for identity lock: %w", err)
	}
	defer unlock()

	start := s.now()
	result, err := s.authenticate(ctx, key, challenge)
	elapsed := s.now().Sub(start)

	if err != nil {
		s.counters.failures.Add(1)
		s.metrics.ObserveCeremony(string(model.CeremonyGet), model.OutcomeFailure, elapsed)
		s.logger.Warn("authentication failed", "identity_key", key, "error", err)
		return nil, err
	}

	s.counters.authentications.Add(1)
	s.metrics.ObserveCeremony(string(model.CeremonyGet), model.OutcomeSuccess, elapsed)
	s.logger.Info("authenticated", "identity_key", key, "wallet_address", result.WalletAddress)
	return result, nil
}

func (s *CeremonyService) authenticate(ctx context.Context, key string, challenge []byte) (*model.Authentication, error) {
	cred, err := s.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load credential: %w", err)
	}
	if cred == nil {
		return nil, &model.CredentialNotFoundError{IdentityKey: key}
	}

	if len(challenge) == 0 {
		if challenge, err = newChallenge(); err != nil {
			return nil, err
		}
	}

	opts := model.AssertionOptions{
		Challenge:        passkey.Encoding.EncodeToString(challenge),
		AllowCredentials: []model.CredentialDescriptor{{ID: cred.CredentialID, Type: model.PublicKeyCredentialType}},
		UserVerification: model.UserVerificationRequire,
		Timeout:          s.settings.CeremonyTimeout.Milliseconds(),
	}

	ceremonyCtx, cancel := context.WithTimeout(ctx, s.settings.CeremonyTimeout)
	defer cancel()

	assertion, err := s.provider.Get(ceremonyCtx, opts)
	if err != nil {
		return nil, asCeremonyError(ceremonyCtx, model.CeremonyGet, err)
	}
	if assertion == nil {
		return nil, &model.CeremonyError{Kind: model.CeremonyGet, Failure: model.CeremonyPlatform, Err: errors.New("empty assertion")}
	}
	if assertion.CredentialID != cred.CredentialID {
		return nil, &model.SignatureVerificationError{Reason: "assertion is for a different credential"}
	}

	if err := passkey.VerifyAssertion(cred.PublicKey, cred.Algorithm, challenge, *assertion); err != nil {
		return nil, err
	}

	sig, err := passkey.Encoding.DecodeString(assertion.Signature)
	if err != nil {
		return nil, &model.SignatureVerificationError{Reason: "malformed signature"}
	}

	if err := s.store.Put(ctx, cred.Touch(s.now().UTC())); err != nil {
		return nil, fmt.Errorf("update last used: %w", err)
	}

	return &model.Authentication{WalletAddress: cred.WalletAddress, Signature: sig, Assertion: *assertion}, nil
}

// Credential returns the stored credential for identity without running a
// ceremony. It fails with *model.CredentialNotFoundError when none exists.
func (s *CeremonyService) Credential(ctx context.Context, identity string) (*model.Credential, error) {
	key, err := s.IdentityKey(identity)
	if err != nil {
		return nil, err
	}
	cred, err := s.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load credential: %w", err)
	}
	if cred == nil {
		return nil, &model.CredentialNotFoundError{IdentityKey: key}
	}
	return cred, nil
}

// ListCredentials returns the zero or one credentials stored for identity.
func (s *CeremonyService) ListCredentials(ctx context.Context, identity string) ([]model.Credential, error) {
	key, err := s.IdentityKey(identity)
	if err != nil {
		return nil, err
	}
	creds, err := s.store.List(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	return creds, nil
}

// DeleteCredential removes the credential for identity and reports whether
// one existed.
func (s *CeremonyService) DeleteCredential(ctx context.Context, identity string) (bool, error) {
	key, err := s.IdentityKey(identity)
	if err != nil {
		return false, err
	}

	unlock, err := s.locks.lock(ctx, key)
	if err != nil {
		return false, fmt.Errorf("wait for identity lock: %w", err)
	}
	defer unlock()

	existed, err := s.store.Delete(ctx, key)
	if err != nil {
		return false, fmt.Errorf("delete credential: %w", err)
	}
	if existed {
		s.logger.Info("credential deleted", "identity_key", key)
	}
	return existed, nil
}

// IssueChallenge returns a fresh challenge for identity, valid for one
// ceremony timeout. Challenges are not remembered server side.
func (s *CeremonyService) IssueChallenge(identity string) (*model.Challenge, error) {
	if _, err := s.IdentityKey(identity); err != nil {
		return nil, err
	}
	challenge, err := newChallenge()
	if err != nil {
		return nil, err
	}
	return &model.Challenge{
		Value:     passkey.Encoding.EncodeToString(challenge),
		ExpiresAt: s.now().Add(s.settings.CeremonyTimeout).UTC(),
	}, nil
}

// Stats summarizes ceremony activity since startup.
func (s *CeremonyService) Stats(ctx context.Context) (*model.CeremonyStats, error) {
	stored, err := s.store.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count credentials: %w", err)
	}

	stats := &model.CeremonyStats{
		StoredCredentials: stored,
		Creations:         s.counters.creations.Load(),
		Authentications:   s.counters.authentications.Load(),
		Signatures:        s.counters.signatures.Load(),
		Failures:          s.counters.failures.Load(),
		SLABreaches:       s.counters.slaBreaches.Load(),
	}
	if stats.Creations > 0 {
		stats.AvgCreationMs = s.counters.creationMsTotal.Load() / stats.Creations
	}
	return stats, nil
}

// recordSignature counts a signature produced on top of an authentication.
func (s *CeremonyService) recordSignature() {
	s.counters.signatures.Add(1)
}

// displayName strips markup from the caller's display name, falling back to
// the local part of the identity.
func (s *CeremonyService) displayName(identity, requested string) string {
	name := strings.TrimSpace(s.sanitizer.Sanitize(requested))
	if name == "" {
		name, _, _ = strings.Cut(strings.TrimSpace(identity), "@")
	}
	if r := []rune(name); len(r) > maxDisplayName {
		name = string(r[:maxDisplayName])
	}
	return name
}

// asCeremonyError normalizes a provider failure into a *model.CeremonyError.
func asCeremonyError(ctx context.Context, kind model.CeremonyKind, err error) error {
	var cErr *model.CeremonyError
	if errors.As(err, &cErr) {
		return cErr
	}

	failure := model.CeremonyPlatform
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		failure = model.CeremonyTimeout
	case errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled):
		failure = model.CeremonyCancelled
	}
	return &model.CeremonyError{Kind: kind, Failure: failure, Err: err}
}

func newChallenge() ([]byte, error) {
	b := make([]byte, challengeSize)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("generate challenge: %w", err)
	}
	return b, nil
}
