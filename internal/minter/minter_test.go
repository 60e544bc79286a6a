package minter

import (
	"crypto/ecdsa"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gagliardetto/solana-go"
	"github.com/holiman/uint256"

	"github.com/stablebridge/gateway-minter/internal/events"
	"github.com/stablebridge/gateway-minter/internal/runtime"
	"github.com/stablebridge/gateway-minter/internal/wire"
)

const (
	testLocalDomain = uint32(5)
	testVersion     = uint32(1)
	testSlot        = uint64(15_000)
	custodyReserve  = uint64(1_000_000_000)
)

// recordingSink captures emitted events in order.
type recordingSink struct {
	events []events.Event
}

func (r *recordingSink) Emit(ev events.Event) { r.events = append(r.events, ev) }

func (r *recordingSink) used() []events.AttestationUsed {
	var out []events.AttestationUsed
	for _, ev := range r.events {
		if u, ok := ev.(events.AttestationUsed); ok {
			out = append(out, u)
		}
	}
	return out
}

func pk(b byte) solana.PublicKey {
	var key solana.PublicKey
	key[0] = b
	return key
}

func idOf(key solana.PublicKey) wire.Identity { return wire.Identity(key) }

// fixture is a fully initialized deployment: config singleton, one
// enabled attester, one supported mint with a funded custody reserve,
// and a destination token account for the test recipient.
type fixture struct {
	t *testing.T

	led     *runtime.Ledger
	clock   *runtime.Clock
	tok     *runtime.Token
	program *Program
	sink    *recordingSink

	attesterKey *ecdsa.PrivateKey
	attesterID  wire.Identity

	owner      wire.Identity
	pauser     wire.Identity
	controller wire.Identity

	payer  solana.PublicKey
	caller solana.PublicKey

	mint      solana.PublicKey
	mintAuth  solana.PublicKey
	custody   solana.PublicKey
	recipient solana.PublicKey
	destAcct  solana.PublicKey
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		t:          t,
		led:        runtime.NewLedger(),
		clock:      &runtime.Clock{Slot: testSlot},
		sink:       &recordingSink{},
		owner:      idOf(pk(0xA0)),
		pauser:     idOf(pk(0xA1)),
		controller: idOf(pk(0xA2)),
		payer:      pk(0xB0),
		caller:     pk(0xB1),
		mint:       pk(0xC0),
		mintAuth:   pk(0xC1),
		recipient:  pk(0xD0),
		destAcct:   pk(0xD1),
	}
	f.tok = runtime.NewToken(f.led)
	f.led.Fund(f.payer, 100_000_000_000)

	program, err := New(pk(0x50), f.led, f.clock, runtime.DefaultRent(), f.sink)
	if err != nil {
		t.Fatalf("new program: %v", err)
	}
	f.program = program

	if err := program.Initialize(f.payer, testLocalDomain, testVersion, f.owner, f.pauser, f.controller); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	f.attesterKey, err = crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate attester key: %v", err)
	}
	copy(f.attesterID[12:], crypto.PubkeyToAddress(f.attesterKey.PublicKey).Bytes())
	if err := program.AddAttester(f.owner, f.attesterID); err != nil {
		t.Fatalf("add attester: %v", err)
	}

	// Mint, custody reserve, and the recipient's token account.
	f.led.Account(f.mint).Owner = solana.TokenProgramID
	f.led.Account(f.mint).Data = make([]byte, runtime.MintLen)
	if err := f.tok.InitializeMint(f.mint, 6, f.mintAuth); err != nil {
		t.Fatalf("initialize mint: %v", err)
	}
	if err := program.AddToken(f.payer, f.owner, f.mint); err != nil {
		t.Fatalf("add token: %v", err)
	}
	f.custody, err = program.CustodyKey(f.mint)
	if err != nil {
		t.Fatalf("custody key: %v", err)
	}
	if err := f.tok.MintTo(f.mint, f.custody, f.mintAuth, custodyReserve); err != nil {
		t.Fatalf("fund custody: %v", err)
	}

	f.led.Account(f.destAcct).Owner = solana.TokenProgramID
	f.led.Account(f.destAcct).Data = make([]byte, runtime.TokenAccountLen)
	if err := f.tok.InitializeAccount(f.destAcct, f.mint, f.recipient); err != nil {
		t.Fatalf("initialize destination: %v", err)
	}

	return f
}

// element builds a redeemable attestation element with a unique
// transfer-spec hash derived from hashTag.
func (f *fixture) element(value uint64, hashTag byte) wire.ElementParams {
	e := wire.ElementParams{
		SourceDomain:         1,
		DestinationDomain:    testLocalDomain,
		DestinationContract:  idOf(f.program.ID()),
		DestinationToken:     idOf(f.mint),
		DestinationRecipient: idOf(f.recipient),
		DestinationCaller:    idOf(f.caller),
		Nonce:                uint64(hashTag),
		MaxBlockHeight:       testSlot + 5_000,
		Value:                uint256.NewInt(value),
	}
	e.SourceToken[31] = 0x01
	e.SourceDepositor[31] = 0x02
	e.SourceSigner[31] = 0x03
	e.TransferSpecHash[0] = hashTag
	e.TransferSpecHash[31] = 0x5A
	return e
}

// sign signs the canonical bytes of a set with the fixture's attester.
func (f *fixture) sign(raw []byte) []byte {
	f.t.Helper()
	sig, err := crypto.Sign(crypto.Keccak256(raw), f.attesterKey)
	if err != nil {
		f.t.Fatalf("sign: %v", err)
	}
	sig[64] += 27
	return sig
}

// markerFor derives the replay-marker address for an element.
func (f *fixture) markerFor(e wire.ElementParams) solana.PublicKey {
	f.t.Helper()
	key, err := f.program.UsedHashKey(e.TransferSpecHash)
	if err != nil {
		f.t.Fatalf("used hash key: %v", err)
	}
	return key
}

// accountsFor builds the flat triplet list for a set of elements.
func (f *fixture) accountsFor(elements ...wire.ElementParams) []solana.PublicKey {
	var out []solana.PublicKey
	for _, e := range elements {
		out = append(out, f.custody, f.destAcct, f.markerFor(e))
	}
	return out
}

// redeem encodes, signs, and submits a set through the byte entry.
func (f *fixture) redeem(elements ...wire.ElementParams) error {
	set := &wire.SetParams{Version: testVersion, Elements: elements}
	raw := wire.EncodeSet(set)
	return f.program.RedeemWithBytes(f.payer, f.caller, raw, f.sign(raw), f.accountsFor(elements...))
}

func (f *fixture) balance(key solana.PublicKey) uint64 {
	f.t.Helper()
	bal, err := f.tok.Balance(key)
	if err != nil {
		f.t.Fatalf("balance of %s: %v", key, err)
	}
	return bal
}
