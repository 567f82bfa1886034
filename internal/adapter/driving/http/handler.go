// Package httphandler is the HTTP driving adapter serving the wallet API.
package httphandler

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-chi/chi/v5"

	"github.com/ericfisherdev/passkeywallet/internal/application"
	"github.com/ericfisherdev/passkeywallet/internal/domain/model"
	"github.com/ericfisherdev/passkeywallet/internal/domain/passkey"
)

const (
	maxBodyBytes      = 64 << 10
	adminTokenHeader  = "X-Admin-Token"
	bearerPrefix      = "Bearer "
	statusOK          = "ok"
	statusDegraded    = "degraded"
	msgInvalidJSON    = "invalid JSON body"
	msgUnauthorized   = "a valid session token for this identity is required"
	msgStatsDisabled  = "not found"
	msgStatsForbidden = "forbidden"
)

// Deps are the services the handler drives.
type Deps struct {
	Ceremonies *application.CeremonyService
	Signer     *application.SigningService
	Paymaster  *application.PaymasterService
	Sessions   *application.SessionStore
	// Monitor, when set, runs health probes so the background view stays
	// current. Without it the handler probes the paymaster directly.
	Monitor    *application.HealthMonitor
	AdminToken string
}

// Handler is the HTTP driving adapter that serves the REST API.
type Handler struct {
	ceremonies *application.CeremonyService
	signer     *application.SigningService
	paymaster  *application.PaymasterService
	sessions   *application.SessionStore
	monitor    *application.HealthMonitor
	adminToken string
	now        func() time.Time
	logger     *slog.Logger
}

// NewHandler creates a Handler with all required dependencies.
func NewHandler(deps Deps, logger *slog.Logger) *Handler {
	return &Handler{
		ceremonies: deps.Ceremonies,
		signer:     deps.Signer,
		paymaster:  deps.Paymaster,
		sessions:   deps.Sessions,
		monitor:    deps.Monitor,
		adminToken: deps.AdminToken,
		now:        time.Now,
		logger:     logger,
	}
}

// NewRouter registers every route and wraps them with request ID, logging
// and recovery middleware. Ceremony routes go through limiter when it is
// non-nil; metrics, when non-nil, is served at /metrics.
func NewRouter(h *Handler, limiter *RateLimiter, metrics http.Handler, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	// Recovery innermost so panics are caught before logging.
	r.Use(requestIDMiddleware, loggingMiddleware(logger), recoveryMiddleware(logger))

	ceremonies := func(next http.Handler) http.Handler { return next }
	if limiter != nil {
		ceremonies = limiter.Middleware
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(ceremonies)
			r.Post("/create", h.Create)
			r.Post("/authenticate", h.Authenticate)
			r.Post("/sign-transaction", h.SignTransaction)
			r.Post("/challenge", h.Challenge)
		})

		r.Get("/credentials/{email}", h.ListCredentials)
		r.Delete("/credentials/{email}", h.DeleteCredential)
		r.Get("/stats", h.Stats)

		r.Route("/paymaster", func(r chi.Router) {
			r.Post("/sponsor", h.Sponsor)
			r.Post("/submit", h.Submit)
			r.Get("/receipt/{hash}", h.Receipt)
			r.Get("/health", h.Health)
		})

		r.Get("/health", h.Health)
	})

	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}

	return r
}

// Create binds a new passkey credential and wallet to an email identity.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if !h.decode(w, r, &req) {
		return
	}

	created, err := h.ceremonies.CreateCredential(r.Context(), req.Email, req.DisplayName)
	if err != nil {
		h.fail(w, r, "create", err)
		return
	}

	writeJSON(w, http.StatusOK, CreateResponse{
		Success:       true,
		WalletAddress: created.WalletAddress,
		CredentialID:  created.CredentialID,
		ElapsedMs:     created.Elapsed.Milliseconds(),
	})
}

// Authenticate runs an assertion ceremony and opens a signing session.
func (h *Handler) Authenticate(w http.ResponseWriter, r *http.Request) {
	var req AuthenticateRequest
	if !h.decode(w, r, &req) {
		return
	}

	var challenge []byte
	if req.Challenge != "" {
		var err error
		if challenge, err = passkey.Encoding.DecodeString(req.Challenge); err != nil {
			writeError(w, http.StatusBadRequest, "invalid challenge: must be base64url")
			return
		}
	}

	key, err := h.ceremonies.IdentityKey(req.Email)
	if err != nil {
		h.fail(w, r, "authenticate", err)
		return
	}

	auth, err := h.ceremonies.Authenticate(r.Context(), req.Email, challenge)
	if err != nil {
		h.fail(w, r, "authenticate", err)
		return
	}

	token, expires := h.sessions.Issue(key)
	writeJSON(w, http.StatusOK, AuthenticateResponse{
		Success:       true,
		WalletAddress: auth.WalletAddress,
		Signature:     passkey.Encoding.EncodeToString(auth.Signature),
		SessionToken:  token,
		ExpiresAt:     expires.UTC().Format(time.RFC3339),
	})
}

// SignTransaction signs a pending transaction for an identity holding a live
// session.
func (h *Handler) SignTransaction(w http.ResponseWriter, r *http.Request) {
	var req SignRequest
	if !h.decode(w, r, &req) {
		return
	}

	key, err := h.ceremonies.IdentityKey(req.Email)
	if err != nil {
		h.fail(w, r, "sign transaction", err)
		return
	}

	token, ok := bearerToken(r)
	if !ok || !h.sessions.Valid(token, key) {
		writeError(w, http.StatusUnauthorized, msgUnauthorized)
		return
	}

	signed, err := h.signer.Sign(r.Context(), req.Email, req.Transaction)
	if err != nil {
		h.fail(w, r, "sign transaction", err)
		return
	}

	writeJSON(w, http.StatusOK, SignResponse{
		Success:       true,
		Signature:     hexutil.Encode(signed.Signature),
		TxHash:        signed.TxHash.Hex(),
		WalletAddress: signed.WalletAddress,
		Assertion:     signed.Assertion,
	})
}

// ListCredentials returns the credentials registered for an email.
func (h *Handler) ListCredentials(w http.ResponseWriter, r *http.Request) {
	email, ok := emailParam(w, r)
	if !ok {
		return
	}

	creds, err := h.ceremonies.ListCredentials(r.Context(), email)
	if err != nil {
		h.fail(w, r, "list credentials", err)
		return
	}

	resp := make([]CredentialResponse, 0, len(creds))
	for _, c := range creds {
		resp = append(resp, toCredentialResponse(c))
	}

	writeJSON(w, http.StatusOK, CredentialsResponse{Success: true, Credentials: resp})
}

// DeleteCredential removes the credential of an email and revokes its
// sessions.
func (h *Handler) DeleteCredential(w http.ResponseWriter, r *http.Request) {
	email, ok := emailParam(w, r)
	if !ok {
		return
	}

	key, err := h.ceremonies.IdentityKey(email)
	if err != nil {
		h.fail(w, r, "delete credential", err)
		return
	}

	deleted, err := h.ceremonies.DeleteCredential(r.Context(), email)
	if err != nil {
		h.fail(w, r, "delete credential", err)
		return
	}
	h.sessions.Revoke(key)

	writeJSON(w, http.StatusOK, DeleteResponse{Success: true, Deleted: deleted})
}

// Challenge issues a fresh ceremony challenge.
func (h *Handler) Challenge(w http.ResponseWriter, r *http.Request) {
	var req EmailRequest
	if !h.decode(w, r, &req) {
		return
	}

	challenge, err := h.ceremonies.IssueChallenge(req.Email)
	if err != nil {
		h.fail(w, r, "issue challenge", err)
		return
	}

	writeJSON(w, http.StatusOK, ChallengeResponse{
		Success:   true,
		Challenge: challenge.Value,
		ExpiresAt: challenge.ExpiresAt.Format(time.RFC3339),
	})
}

// Stats returns ceremony counters. It is hidden unless an admin token is
// configured.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	if h.adminToken == "" {
		writeError(w, http.StatusNotFound, msgStatsDisabled)
		return
	}
	if subtle.ConstantTimeCompare([]byte(r.Header.Get(adminTokenHeader)), []byte(h.adminToken)) != 1 {
		writeError(w, http.StatusForbidden, msgStatsForbidden)
		return
	}

	stats, err := h.ceremonies.Stats(r.Context())
	if err != nil {
		h.fail(w, r, "stats", err)
		return
	}

	writeJSON(w, http.StatusOK, StatsResponse{
		Success:           true,
		StoredCredentials: stats.StoredCredentials,
		Creations:         stats.Creations,
		Authentications:   stats.Authentications,
		Signatures:        stats.Signatures,
		Failures:          stats.Failures,
		SLABreaches:       stats.SLABreaches,
		AvgCreationMs:     stats.AvgCreationMs,
		Time:              h.now().UTC().Format(time.RFC3339),
	})
}

// Sponsor requests paymaster sponsorship for a draft user operation.
func (h *Handler) Sponsor(w http.ResponseWriter, r *http.Request) {
	var req UserOperationRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.paymaster.Sponsor(r.Context(), req.UserOperation)
	if err != nil {
		h.fail(w, r, "sponsor", err)
		return
	}

	writeJSON(w, http.StatusOK, SponsorResponse{
		Success:       true,
		PaymasterData: *res,
		UserOperation: req.UserOperation.ApplySponsorship(*res),
	})
}

// Submit hands an assembled user operation to a bundler.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	var req UserOperationRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.paymaster.Submit(r.Context(), req.UserOperation)
	if err != nil {
		h.fail(w, r, "submit", err)
		return
	}

	writeJSON(w, http.StatusOK, SubmitResponse{Success: true, Provider: res.Provider, UserOpHash: res.OpHash})
}

// Receipt reports the receipt of a submitted user operation.
func (h *Handler) Receipt(w http.ResponseWriter, r *http.Request) {
	receipt, err := h.paymaster.Receipt(r.Context(), chi.URLParam(r, "hash"))
	if err != nil {
		h.fail(w, r, "receipt", err)
		return
	}

	writeJSON(w, http.StatusOK, ReceiptResponse{Success: true, Pending: receipt == nil, Receipt: receipt})
}

// Health reports provider reachability. It always answers 200; status is
// degraded when no provider is reachable. With ?cached=1 the monitor's last
// result is returned without probing, when one exists.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	providers, checkedAt, err := h.providerHealth(r)
	if err != nil {
		h.fail(w, r, "health", err)
		return
	}

	status := statusOK
	if !providers.Usable() {
		status = statusDegraded
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Success:   true,
		Status:    status,
		Providers: providers,
		CheckedAt: checkedAt.UTC().Format(time.RFC3339),
		Time:      h.now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) providerHealth(r *http.Request) (model.ProviderHealth, time.Time, error) {
	if h.monitor == nil {
		return h.paymaster.Health(r.Context()), h.now(), nil
	}

	if r.URL.Query().Get("cached") == "1" {
		if last, checked := h.monitor.Last(); last != nil {
			return last, checked, nil
		}
	}

	providers, err := h.monitor.Refresh(r.Context())
	if err != nil {
		return nil, time.Time{}, err
	}
	return providers, h.now(), nil
}

// decode reads a bounded JSON body into dst, writing a 400 on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, msgInvalidJSON)
		return false
	}
	return true
}

// fail maps err to a status and writes the error body. Unclassified errors
// are logged here; the services already logged the rest.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, msg := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error(op+" failed", "error", err, "request_id", RequestID(r.Context()))
	}
	writeError(w, status, msg)
}

func emailParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	email, err := url.PathUnescape(chi.URLParam(r, "email"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid email")
		return "", false
	}
	return email, true
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, bearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))
	return token, token != ""
}
