package ceremony

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/passkeywallet/internal/domain/model"
	"github.com/ericfisherdev/passkeywallet/internal/domain/passkey"
)

func creationOptions() model.CreationOptions {
	return model.CreationOptions{
		Challenge: passkey.Encoding.EncodeToString([]byte("create-challenge")),
		RP:        model.RelyingParty{ID: "localhost", Name: "Test"},
		User:      model.UserEntity{ID: "handle", Name: "alice", DisplayName: "alice"},
		PubKeyCredParams: []model.CredentialParameter{
			{Alg: model.AlgES256, Type: model.PublicKeyCredentialType},
			{Alg: model.AlgRS256, Type: model.PublicKeyCredentialType},
		},
		Timeout: 60000,
	}
}

func TestMockAuthenticator_CreateThenGetVerifies(t *testing.T) {
	m := NewMockAuthenticator("https://localhost")
	ctx := context.Background()

	att, err := m.Create(ctx, creationOptions())
	require.NoError(t, err)
	assert.NotEmpty(t, att.CredentialID)
	assert.Equal(t, model.AlgES256, att.Algorithm)

	challenge := []byte("get-challenge")
	a, err := m.Get(ctx, model.AssertionOptions{
		Challenge:        passkey.Encoding.EncodeToString(challenge),
		AllowCredentials: []model.CredentialDescriptor{{ID: att.CredentialID, Type: model.PublicKeyCredentialType}},
	})
	require.NoError(t, err)
	assert.Equal(t, "handle", a.UserHandle)

	assert.NoError(t, passkey.VerifyAssertion(att.PublicKey, att.Algorithm, challenge, *a))
}

func TestMockAuthenticator_Tamper(t *testing.T) {
	m := NewMockAuthenticator("https://localhost")
	ctx := context.Background()

	att, err := m.Create(ctx, creationOptions())
	require.NoError(t, err)

	m.SetTamper(true)
	challenge := []byte("get-challenge")
	a, err := m.Get(ctx, model.AssertionOptions{
		Challenge:        passkey.Encoding.EncodeToString(challenge),
		AllowCredentials: []model.CredentialDescriptor{{ID: att.CredentialID}},
	})
	require.NoError(t, err)

	var vErr *model.SignatureVerificationError
	assert.True(t, errors.As(passkey.VerifyAssertion(att.PublicKey, att.Algorithm, challenge, *a), &vErr))
}

func TestMockAuthenticator_FailNext(t *testing.T) {
	m := NewMockAuthenticator("https://localhost")
	m.FailNext(model.CeremonyCreate, model.CeremonyCancelled)

	_, err := m.Create(context.Background(), creationOptions())
	var cErr *model.CeremonyError
	require.True(t, errors.As(err, &cErr))
	assert.Equal(t, model.CeremonyCancelled, cErr.Failure)

	// Failure applies to one ceremony only.
	_, err = m.Create(context.Background(), creationOptions())
	assert.NoError(t, err)
}

func TestMockAuthenticator_ContextErrors(t *testing.T) {
	m := NewMockAuthenticator("https://localhost")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := m.Create(ctx, creationOptions())
	var cErr *model.CeremonyError
	require.True(t, errors.As(err, &cErr))
	assert.Equal(t, model.CeremonyCancelled, cErr.Failure)

	ctx, cancel = context.WithTimeout(context.Background(), 0)
	defer cancel()
	_, err = m.Create(ctx, creationOptions())
	require.True(t, errors.As(err, &cErr))
	assert.Equal(t, model.CeremonyTimeout, cErr.Failure)
}

func TestMockAuthenticator_UnknownCredential(t *testing.T) {
	m := NewMockAuthenticator("https://localhost")

	_, err := m.Get(context.Background(), model.AssertionOptions{
		Challenge:        "abc",
		AllowCredentials: []model.CredentialDescriptor{{ID: "missing"}},
	})
	var cErr *model.CeremonyError
	require.True(t, errors.As(err, &cErr))
	assert.Equal(t, model.CeremonyPlatform, cErr.Failure)
}

func TestMockAuthenticator_Availability(t *testing.T) {
	m := NewMockAuthenticator("https://localhost")
	assert.True(t, m.Available(context.Background()))

	m.SetAvailable(false)
	assert.False(t, m.Available(context.Background()))
}

func TestMockAuthenticator_HookRuns(t *testing.T) {
	m := NewMockAuthenticator("https://localhost")
	var kinds []model.CeremonyKind
	m.OnCeremony(func(k model.CeremonyKind) { kinds = append(kinds, k) })

	att, err := m.Create(context.Background(), creationOptions())
	require.NoError(t, err)
	_, err = m.Get(context.Background(), model.AssertionOptions{
		Challenge:        "abc",
		AllowCredentials: []model.CredentialDescriptor{{ID: att.CredentialID}},
	})
	require.NoError(t, err)

	assert.Equal(t, []model.CeremonyKind{model.CeremonyCreate, model.CeremonyGet}, kinds)
}
