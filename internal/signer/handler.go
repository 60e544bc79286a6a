package signer

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
)

// Decrypter unwraps the KMS-encrypted attester key at activation time.
// Satisfied by *kms.Client; by a stub in tests.
type Decrypter interface {
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}

// Handler exposes the session over HTTP. Routes:
//
//	POST   /v1/session   activate from a KMS-encrypted key blob
//	GET    /v1/session   status
//	DELETE /v1/session   destroy
//	POST   /v1/sign      sign raw attestation-set bytes
type Handler struct {
	session *SessionManager
	kms     Decrypter
}

// NewHandler creates a Handler wired to the given SessionManager and
// key decrypter.
func NewHandler(session *SessionManager, kms Decrypter) *Handler {
	return &Handler{session: session, kms: kms}
}

// Mux returns the routed handler.
func (h *Handler) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/session", h.activate)
	mux.HandleFunc("GET /v1/session", h.status)
	mux.HandleFunc("DELETE /v1/session", h.destroy)
	mux.HandleFunc("POST /v1/sign", h.sign)
	return mux
}

type activateRequest struct {
	KeyCiphertext string `json:"key_ciphertext"` // base64 KMS blob
	MaxValue      string `json:"max_value"`      // decimal atomic units
}

type signRequest struct {
	Attestation string `json:"attestation"` // hex canonical set bytes
}

type signResponse struct {
	Signature string `json:"signature"` // hex r||s||v
}

type statusResponse struct {
	Active       bool   `json:"active"`
	TTLRemaining int64  `json:"ttl_remaining_sec"`
	MaxValue     string `json:"max_value"`
	ValueUsed    string `json:"value_used"`
	Identity     string `json:"identity"`
}

func (h *Handler) activate(w http.ResponseWriter, r *http.Request) {
	var req activateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	maxValue := new(big.Int)
	if _, ok := maxValue.SetString(req.MaxValue, 10); !ok || maxValue.Sign() < 0 {
		httpError(w, http.StatusBadRequest, "invalid max_value")
		return
	}

	ciphertext, err := base64.StdEncoding.DecodeString(req.KeyCiphertext)
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid key_ciphertext")
		return
	}

	keyBytes, err := h.kms.Decrypt(r.Context(), ciphertext)
	if err != nil {
		httpError(w, http.StatusBadGateway, "key decryption failed")
		return
	}

	err = h.session.Activate(keyBytes, maxValue)
	for i := range keyBytes {
		keyBytes[i] = 0
	}
	if err != nil {
		httpError(w, http.StatusBadRequest, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) sign(w http.ResponseWriter, r *http.Request) {
	var req signRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	raw, err := hex.DecodeString(req.Attestation)
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid attestation hex")
		return
	}

	sig, err := h.session.Sign(raw)
	switch {
	case errors.Is(err, ErrNoActiveSession), errors.Is(err, ErrSessionExpired):
		httpError(w, http.StatusConflict, err.Error())
		return
	case errors.Is(err, ErrValueLimitExceeded):
		httpError(w, http.StatusForbidden, err.Error())
		return
	case err != nil:
		httpError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, signResponse{Signature: hex.EncodeToString(sig)})
}

func (h *Handler) status(w http.ResponseWriter, _ *http.Request) {
	active, ttl, maxValue, used, identity := h.session.Status()
	writeJSON(w, statusResponse{
		Active:       active,
		TTLRemaining: ttl,
		MaxValue:     maxValue,
		ValueUsed:    used,
		Identity:     identity,
	})
}

func (h *Handler) destroy(w http.ResponseWriter, _ *http.Request) {
	h.session.Destroy()
	w.WriteHeader(http.StatusNoContent)
}

func httpError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
