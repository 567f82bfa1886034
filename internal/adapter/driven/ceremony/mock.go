// Package ceremony implements the CeremonyProvider port.
package ceremony

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/ericfisherdev/passkeywallet/internal/domain/model"
	"github.com/ericfisherdev/passkeywallet/internal/domain/passkey"
	"github.com/ericfisherdev/passkeywallet/internal/domain/port/driven"
)

var _ driven.CeremonyProvider = (*MockAuthenticator)(nil)

// mockCredential is one credential held by the mock platform authenticator.
type mockCredential struct {
	key        *ecdsa.PrivateKey
	rpID       string
	userHandle string
	signCount  uint32
}

// MockAuthenticator is a scripted platform authenticator. It produces real
// ES256 keys and signatures so assertions verify end to end, and its
// failure modes are set explicitly rather than left to chance.
type MockAuthenticator struct {
	mu          sync.Mutex
	origin      string
	unavailable bool
	failures    map[model.CeremonyKind]model.CeremonyFailure
	tamper      bool
	beforeHook  func(model.CeremonyKind)
	creds       map[string]*mockCredential
}

// NewMockAuthenticator creates an available mock that reports origin in its
// client data.
func NewMockAuthenticator(origin string) *MockAuthenticator {
	return &MockAuthenticator{
		origin:   origin,
		failures: make(map[model.CeremonyKind]model.CeremonyFailure),
		creds:    make(map[string]*mockCredential),
	}
}

// SetAvailable toggles whether the platform API appears to exist.
func (m *MockAuthenticator) SetAvailable(ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unavailable = !ok
}

// FailNext makes the next ceremony of kind fail with failure.
func (m *MockAuthenticator) FailNext(kind model.CeremonyKind, failure model.CeremonyFailure) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[kind] = failure
}

// SetTamper makes assertions sign over a challenge other than the one sent.
func (m *MockAuthenticator) SetTamper(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tamper = on
}

// OnCeremony registers a hook run at the start of every ceremony, before any
// failure is injected. Tests use it to advance clocks.
func (m *MockAuthenticator) OnCeremony(hook func(model.CeremonyKind)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.beforeHook = hook
}

// Available reports whether the mock platform API is present.
func (m *MockAuthenticator) Available(context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.unavailable
}

// Create registers a fresh ES256 credential.
func (m *MockAuthenticator) Create(ctx context.Context, opts model.CreationOptions) (*model.Attestation, error) {
	if err := m.begin(ctx, model.CeremonyCreate); err != nil {
		return nil, err
	}

	if opts.Challenge == "" || opts.RP.ID == "" || opts.User.ID == "" {
		return nil, platformErr(model.CeremonyCreate, errors.New("incomplete creation options"))
	}
	if !slices.ContainsFunc(opts.PubKeyCredParams, func(p model.CredentialParameter) bool { return p.Alg == model.AlgES256 }) {
		return nil, platformErr(model.CeremonyCreate, errors.New("no supported algorithm offered"))
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, platformErr(model.CeremonyCreate, err)
	}
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return nil, platformErr(model.CeremonyCreate, err)
	}

	rawID := make([]byte, 16)
	if _, err := rand.Read(rawID); err != nil {
		return nil, platformErr(model.CeremonyCreate, err)
	}
	credID := passkey.Encoding.EncodeToString(rawID)

	clientData, err := m.clientData(model.ClientDataTypeCreate, opts.Challenge)
	if err != nil {
		return nil, platformErr(model.CeremonyCreate, err)
	}

	m.mu.Lock()
	m.creds[credID] = &mockCredential{key: key, rpID: opts.RP.ID, userHandle: opts.User.ID}
	m.mu.Unlock()

	return &model.Attestation{
		CredentialID:   credID,
		PublicKey:      passkey.Encoding.EncodeToString(der),
		Algorithm:      model.AlgES256,
		ClientDataJSON: clientData,
	}, nil
}

// Get signs an assertion with the first allowed credential the mock holds.
func (m *MockAuthenticator) Get(ctx context.Context, opts model.AssertionOptions) (*model.Assertion, error) {
	if err := m.begin(ctx, model.CeremonyGet); err != nil {
		return nil, err
	}

	m.mu.Lock()
	var (
		credID string
		cred   *mockCredential
	)
	for _, d := range opts.AllowCredentials {
		if c, ok := m.creds[d.ID]; ok {
			credID, cred = d.ID, c
			break
		}
	}
	if cred != nil {
		cred.signCount++
	}
	tamper := m.tamper
	m.mu.Unlock()

	if cred == nil {
		return nil, platformErr(model.CeremonyGet, errors.New("no matching credential on this device"))
	}

	challenge := opts.Challenge
	if tamper {
		challenge = passkey.Encoding.EncodeToString([]byte("substituted-challenge"))
	}
	clientData, err := m.clientData(model.ClientDataTypeGet, challenge)
	if err != nil {
		return nil, platformErr(model.CeremonyGet, err)
	}
	clientDataJSON, _ := passkey.Encoding.DecodeString(clientData)

	rpHash := sha256.Sum256([]byte(cred.rpID))
	authData := make([]byte, 0, 37)
	authData = append(authData, rpHash[:]...)
	authData = append(authData, passkey.FlagUserPresent|passkey.FlagUserVerified)
	authData = binary.BigEndian.AppendUint32(authData, cred.signCount)

	digest := sha256.Sum256(passkey.SignedData(authData, clientDataJSON))
	sig, err := ecdsa.SignASN1(rand.Reader, cred.key, digest[:])
	if err != nil {
		return nil, platformErr(model.CeremonyGet, err)
	}

	return &model.Assertion{
		CredentialID:      credID,
		AuthenticatorData: passkey.Encoding.EncodeToString(authData),
		ClientDataJSON:    clientData,
		Signature:         passkey.Encoding.EncodeToString(sig),
		UserHandle:        cred.userHandle,
	}, nil
}

// begin runs the hook, then applies cancellation and injected failures.
func (m *MockAuthenticator) begin(ctx context.Context, kind model.CeremonyKind) error {
	m.mu.Lock()
	hook := m.beforeHook
	m.mu.Unlock()
	if hook != nil {
		hook(kind)
	}

	if err := ctx.Err(); err != nil {
		return contextErr(kind, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if failure, ok := m.failures[kind]; ok {
		delete(m.failures, kind)
		return &model.CeremonyError{Kind: kind, Failure: failure, Err: fmt.Errorf("injected %s", failure)}
	}
	return nil
}

func (m *MockAuthenticator) clientData(typ, challenge string) (string, error) {
	raw, err := json.Marshal(model.ClientData{Type: typ, Challenge: challenge, Origin: m.origin})
	if err != nil {
		return "", err
	}
	return passkey.Encoding.EncodeToString(raw), nil
}

func platformErr(kind model.CeremonyKind, err error) error {
	return &model.CeremonyError{Kind: kind, Failure: model.CeremonyPlatform, Err: err}
}

// contextErr maps a context error onto the ceremony taxonomy.
func contextErr(kind model.CeremonyKind, err error) error {
	failure := model.CeremonyCancelled
	if errors.Is(err, context.DeadlineExceeded) {
		failure = model.CeremonyTimeout
	}
	return &model.CeremonyError{Kind: kind, Failure: failure, Err: err}
}
