package httphandler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/ericfisherdev/passkeywallet/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"success":false,"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Success: false, Error: message})
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// statusFor maps a service error to its HTTP status. Unknown errors are 500
// and their message is not exposed.
func statusFor(err error) (int, string) {
	var (
		validation   *model.ValidationError
		notFound     *model.CredentialNotFoundError
		verification *model.SignatureVerificationError
		ceremony     *model.CeremonyError
		allFailed    *model.AllProvidersFailedError
	)

	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest, err.Error()
	case errors.As(err, &notFound):
		return http.StatusNotFound, err.Error()
	case errors.As(err, &verification):
		return http.StatusUnauthorized, err.Error()
	case errors.Is(err, model.ErrUnsupportedPlatform):
		return http.StatusNotImplemented, err.Error()
	case errors.As(err, &ceremony):
		switch ceremony.Failure {
		case model.CeremonyCancelled:
			return http.StatusBadRequest, err.Error()
		case model.CeremonyTimeout:
			return http.StatusRequestTimeout, err.Error()
		default:
			return http.StatusBadGateway, err.Error()
		}
	case errors.As(err, &allFailed):
		return http.StatusBadGateway, err.Error()
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "request cancelled"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// CreateRequest is the JSON body for the create endpoint.
type CreateRequest struct {
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
}

// CreateResponse reports a newly bound wallet.
type CreateResponse struct {
	Success       bool   `json:"success"`
	WalletAddress string `json:"walletAddress"`
	CredentialID  string `json:"credentialId"`
	ElapsedMs     int64  `json:"elapsedMs"`
}

// AuthenticateRequest is the JSON body for the authenticate endpoint.
// Challenge is optional and base64url encoded.
type AuthenticateRequest struct {
	Email     string `json:"email"`
	Challenge string `json:"challenge"`
}

// AuthenticateResponse carries the assertion signature and the session token
// required by sign-transaction.
type AuthenticateResponse struct {
	Success       bool   `json:"success"`
	WalletAddress string `json:"walletAddress"`
	Signature     string `json:"signature"`
	SessionToken  string `json:"sessionToken"`
	ExpiresAt     string `json:"expiresAt"`
}

// SignRequest is the JSON body for the sign-transaction endpoint.
type SignRequest struct {
	Email       string                   `json:"email"`
	Transaction model.PendingTransaction `json:"transaction"`
}

// SignResponse is a signed transaction. Signature and TxHash are 0x hex.
type SignResponse struct {
	Success       bool            `json:"success"`
	Signature     string          `json:"signature"`
	TxHash        string          `json:"txHash"`
	WalletAddress string          `json:"walletAddress"`
	Assertion     model.Assertion `json:"assertion"`
}

// CredentialResponse is the public view of a stored credential. Key
// material and the recovery backup are never returned.
type CredentialResponse struct {
	CredentialID  string `json:"credentialId"`
	WalletAddress string `json:"walletAddress"`
	Algorithm     string `json:"algorithm"`
	CreatedAt     string `json:"createdAt"`
	LastUsedAt    string `json:"lastUsedAt,omitempty"`
}

// CredentialsResponse lists the credentials of one identity.
type CredentialsResponse struct {
	Success     bool                 `json:"success"`
	Credentials []CredentialResponse `json:"credentials"`
}

// DeleteResponse reports whether a credential was removed.
type DeleteResponse struct {
	Success bool `json:"success"`
	Deleted bool `json:"deleted"`
}

// EmailRequest is a body carrying only an identity.
type EmailRequest struct {
	Email string `json:"email"`
}

// ChallengeResponse is a freshly issued ceremony challenge.
type ChallengeResponse struct {
	Success   bool   `json:"success"`
	Challenge string `json:"challenge"`
	ExpiresAt string `json:"expiresAt"`
}

// StatsResponse summarizes ceremony activity.
type StatsResponse struct {
	Success           bool   `json:"success"`
	StoredCredentials int    `json:"storedCredentials"`
	Creations         int64  `json:"creations"`
	Authentications   int64  `json:"authentications"`
	Signatures        int64  `json:"signatures"`
	Failures          int64  `json:"failures"`
	SLABreaches       int64  `json:"slaBreaches"`
	AvgCreationMs     int64  `json:"avgCreationMs"`
	Time              string `json:"time"`
}

// UserOperationRequest is the JSON body for sponsor and submit.
type UserOperationRequest struct {
	UserOperation model.UserOperation `json:"userOperation"`
}

// SponsorResponse carries the sponsorship of the provider that answered.
type SponsorResponse struct {
	Success       bool                  `json:"success"`
	PaymasterData model.PaymasterResult `json:"paymasterData"`
	UserOperation model.UserOperation   `json:"userOperation"`
}

// SubmitResponse carries the operation hash of the provider that accepted it.
type SubmitResponse struct {
	Success    bool   `json:"success"`
	Provider   string `json:"provider"`
	UserOpHash string `json:"userOpHash"`
}

// ReceiptResponse is nil-receipt aware: Pending is true until a bundler
// reports the operation mined.
type ReceiptResponse struct {
	Success bool                        `json:"success"`
	Pending bool                        `json:"pending"`
	Receipt *model.UserOperationReceipt `json:"receipt,omitempty"`
}

// HealthResponse is the JSON representation of the health check endpoint.
type HealthResponse struct {
	Success   bool                 `json:"success"`
	Status    string               `json:"status"`
	Providers model.ProviderHealth `json:"providers"`
	CheckedAt string               `json:"checkedAt"`
	Time      string               `json:"time"`
}

func toCredentialResponse(c model.Credential) CredentialResponse {
	resp := CredentialResponse{
		CredentialID:  c.CredentialID,
		WalletAddress: c.WalletAddress,
		Algorithm:     c.Algorithm.String(),
		CreatedAt:     c.CreatedAt.UTC().Format(time.RFC3339),
	}
	if !c.LastUsedAt.IsZero() {
		resp.LastUsedAt = c.LastUsedAt.UTC().Format(time.RFC3339)
	}
	return resp
}
