// Package node exposes the gateway minter over HTTP: redemption
// submission and the WebSocket event feed.
package node

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gagliardetto/solana-go"

	"github.com/stablebridge/gateway-minter/internal/attester"
	"github.com/stablebridge/gateway-minter/internal/events"
	"github.com/stablebridge/gateway-minter/internal/minter"
	"github.com/stablebridge/gateway-minter/internal/wire"
)

// API routes requests into the minter program.
type API struct {
	program *minter.Program
	feed    *events.Feed
}

// NewAPI creates the HTTP surface for a program and its event feed.
func NewAPI(program *minter.Program, feed *events.Feed) *API {
	return &API{program: program, feed: feed}
}

// Mux returns the routed handler.
func (a *API) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/redeem", a.redeem)
	mux.Handle("GET /v1/events", a.feed)
	return mux
}

type redeemRequest struct {
	Attestation string   `json:"attestation"` // hex canonical set bytes
	Signature   string   `json:"signature"`   // hex r||s||v
	Payer       string   `json:"payer"`       // base58
	Caller      string   `json:"caller"`      // base58
	Accounts    []string `json:"accounts"`    // base58, flat triplet list
}

type redeemResponse struct {
	Redeemed uint32 `json:"redeemed"`
}

func (a *API) redeem(w http.ResponseWriter, r *http.Request) {
	var req redeemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	raw, err := hex.DecodeString(req.Attestation)
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid attestation hex")
		return
	}
	sig, err := hex.DecodeString(req.Signature)
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid signature hex")
		return
	}
	payer, err := solana.PublicKeyFromBase58(req.Payer)
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid payer")
		return
	}
	caller, err := solana.PublicKeyFromBase58(req.Caller)
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid caller")
		return
	}
	accounts := make([]solana.PublicKey, len(req.Accounts))
	for i, s := range req.Accounts {
		if accounts[i], err = solana.PublicKeyFromBase58(s); err != nil {
			httpError(w, http.StatusBadRequest, "invalid account "+s)
			return
		}
	}

	if err := a.program.RedeemWithBytes(payer, caller, raw, sig, accounts); err != nil {
		httpError(w, statusFor(err), err.Error())
		return
	}

	set, err := wire.DecodeSet(raw)
	if err != nil {
		// The redemption already parsed these bytes.
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, redeemResponse{Redeemed: set.NumAttestations()})
}

// statusFor maps minter errors onto HTTP statuses: caller mistakes are
// 400s, authorization failures 403, replays 409, policy rejections 422,
// everything else 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, wire.ErrAttestationTooShort),
		errors.Is(err, wire.ErrAttestationTooLong),
		errors.Is(err, wire.ErrAttestationMagicMismatch),
		errors.Is(err, wire.ErrEmptyAttestationSet),
		errors.Is(err, minter.ErrRemainingAccountsLengthMismatch),
		errors.Is(err, minter.ErrInvalidCustodyTokenAccount),
		errors.Is(err, minter.ErrInvalidDestinationTokenAccount),
		errors.Is(err, minter.ErrInvalidTransferSpecHashAccount),
		errors.Is(err, minter.ErrDestinationRecipientMismatch),
		errors.Is(err, minter.ErrDestinationTokenMismatch),
		errors.Is(err, minter.ErrInvalidAttestationValue):
		return http.StatusBadRequest
	case errors.Is(err, attester.ErrInvalidAttesterSignature),
		errors.Is(err, minter.ErrDestinationCallerMismatch),
		errors.Is(err, minter.ErrInvalidAuthority):
		return http.StatusForbidden
	case errors.Is(err, minter.ErrTransferSpecHashAlreadyUsed):
		return http.StatusConflict
	case errors.Is(err, minter.ErrProgramPaused),
		errors.Is(err, minter.ErrVersionMismatch),
		errors.Is(err, minter.ErrDestinationDomainMismatch),
		errors.Is(err, minter.ErrDestinationContractMismatch),
		errors.Is(err, minter.ErrAttestationExpired):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
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
