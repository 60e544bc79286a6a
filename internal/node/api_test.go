package node

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gagliardetto/solana-go"
	"github.com/holiman/uint256"

	"github.com/stablebridge/gateway-minter/internal/events"
	"github.com/stablebridge/gateway-minter/internal/minter"
	"github.com/stablebridge/gateway-minter/internal/runtime"
	"github.com/stablebridge/gateway-minter/internal/wire"
)

type apiFixture struct {
	t       *testing.T
	program *minter.Program
	led     *runtime.Ledger
	tok     *runtime.Token
	srv     *httptest.Server

	attesterKey *ecdsa.PrivateKey

	payer, caller solana.PublicKey
	mint, custody solana.PublicKey
	recipient     solana.PublicKey
	destAcct      solana.PublicKey
}

func pk(b byte) solana.PublicKey {
	var key solana.PublicKey
	key[0] = b
	return key
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	f := &apiFixture{
		t:         t,
		led:       runtime.NewLedger(),
		payer:     pk(0xB0),
		caller:    pk(0xB1),
		mint:      pk(0xC0),
		recipient: pk(0xD0),
		destAcct:  pk(0xD1),
	}
	f.tok = runtime.NewToken(f.led)
	f.led.Fund(f.payer, 100_000_000_000)

	clock := &runtime.Clock{Slot: 15_000}
	program, err := minter.New(pk(0x50), f.led, clock, runtime.DefaultRent(), nil)
	if err != nil {
		t.Fatalf("new program: %v", err)
	}
	f.program = program

	owner := wire.Identity(pk(0xA0))
	if err := program.Initialize(f.payer, 5, 1, owner, wire.Identity(pk(0xA1)), wire.Identity(pk(0xA2))); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	f.attesterKey, err = crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	var attesterID wire.Identity
	copy(attesterID[12:], crypto.PubkeyToAddress(f.attesterKey.PublicKey).Bytes())
	if err := program.AddAttester(owner, attesterID); err != nil {
		t.Fatalf("add attester: %v", err)
	}

	f.led.Account(f.mint).Owner = solana.TokenProgramID
	f.led.Account(f.mint).Data = make([]byte, runtime.MintLen)
	if err := f.tok.InitializeMint(f.mint, 6, pk(0xC1)); err != nil {
		t.Fatalf("initialize mint: %v", err)
	}
	if err := program.AddToken(f.payer, owner, f.mint); err != nil {
		t.Fatalf("add token: %v", err)
	}
	if f.custody, err = program.CustodyKey(f.mint); err != nil {
		t.Fatalf("custody key: %v", err)
	}
	if err := f.tok.MintTo(f.mint, f.custody, pk(0xC1), 1_000_000_000); err != nil {
		t.Fatalf("fund custody: %v", err)
	}

	f.led.Account(f.destAcct).Owner = solana.TokenProgramID
	f.led.Account(f.destAcct).Data = make([]byte, runtime.TokenAccountLen)
	if err := f.tok.InitializeAccount(f.destAcct, f.mint, f.recipient); err != nil {
		t.Fatalf("initialize destination: %v", err)
	}

	api := NewAPI(program, events.NewFeed(events.DefaultFeedConfig()))
	f.srv = httptest.NewServer(api.Mux())
	t.Cleanup(f.srv.Close)

	return f
}

// request builds a signed redeem request for one element.
func (f *apiFixture) request(value uint64, hashTag byte) redeemRequest {
	f.t.Helper()

	e := wire.ElementParams{
		SourceDomain:         1,
		DestinationDomain:    5,
		DestinationContract:  wire.Identity(f.program.ID()),
		DestinationToken:     wire.Identity(f.mint),
		DestinationRecipient: wire.Identity(f.recipient),
		Nonce:                uint64(hashTag),
		MaxBlockHeight:       20_000,
		Value:                uint256.NewInt(value),
	}
	e.TransferSpecHash[0] = hashTag

	raw := wire.EncodeSet(&wire.SetParams{Version: 1, Elements: []wire.ElementParams{e}})
	sig, err := crypto.Sign(crypto.Keccak256(raw), f.attesterKey)
	if err != nil {
		f.t.Fatalf("sign: %v", err)
	}

	marker, err := f.program.UsedHashKey(e.TransferSpecHash)
	if err != nil {
		f.t.Fatalf("used hash key: %v", err)
	}

	return redeemRequest{
		Attestation: hex.EncodeToString(raw),
		Signature:   hex.EncodeToString(sig),
		Payer:       f.payer.String(),
		Caller:      f.caller.String(),
		Accounts:    []string{f.custody.String(), f.destAcct.String(), marker.String()},
	}
}

func (f *apiFixture) post(req redeemRequest) *http.Response {
	f.t.Helper()
	body, err := json.Marshal(req)
	if err != nil {
		f.t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(f.srv.URL+"/v1/redeem", "application/json", bytes.NewReader(body))
	if err != nil {
		f.t.Fatalf("post: %v", err)
	}
	return resp
}

func TestRedeemEndpoint_Happy(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.post(f.request(100_000_000, 1))
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d, want 200", resp.StatusCode)
	}

	var out redeemResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if out.Redeemed != 1 {
		t.Fatalf("redeemed %d, want 1", out.Redeemed)
	}

	if bal, _ := f.tok.Balance(f.destAcct); bal != 100_000_000 {
		t.Fatalf("destination balance: %d", bal)
	}
}

func TestRedeemEndpoint_ReplayConflict(t *testing.T) {
	f := newAPIFixture(t)
	req := f.request(1_000, 1)

	resp := f.post(req)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("first submission: status %d", resp.StatusCode)
	}

	resp = f.post(req)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("replay: status %d, want 409", resp.StatusCode)
	}
}

func TestRedeemEndpoint_BadHex(t *testing.T) {
	f := newAPIFixture(t)
	req := f.request(1_000, 1)
	req.Attestation = "not-hex"

	resp := f.post(req)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", resp.StatusCode)
	}
}

func TestRedeemEndpoint_ForbiddenSignature(t *testing.T) {
	f := newAPIFixture(t)
	req := f.request(1_000, 1)

	rogue, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	raw, _ := hex.DecodeString(req.Attestation)
	sig, err := crypto.Sign(crypto.Keccak256(raw), rogue)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	req.Signature = hex.EncodeToString(sig)

	resp := f.post(req)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status %d, want 403", resp.StatusCode)
	}
}
