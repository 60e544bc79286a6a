// Package events carries the structured records the minter emits and the
// fan-out machinery (in-memory hub, Redis persistence, WebSocket feed)
// that downstream observers reconcile against.
package events

import (
	"github.com/holiman/uint256"

	"github.com/stablebridge/gateway-minter/internal/wire"
)

// Kind names an event type on the wire and in subscription filters.
type Kind string

const (
	KindInitialized     Kind = "gateway_minter_initialized"
	KindPaused          Kind = "paused"
	KindUnpaused        Kind = "unpaused"
	KindSignerAdded     Kind = "attestation_signer_added"
	KindSignerRemoved   Kind = "attestation_signer_removed"
	KindAttestationUsed Kind = "attestation_used"
)

// Event is any structured record emitted by the minter.
type Event interface {
	Kind() Kind
}

// Sink receives events as the minter emits them, in emission order.
type Sink interface {
	Emit(Event)
}

// GatewayMinterInitialized marks the creation of the config singleton.
type GatewayMinterInitialized struct{}

func (GatewayMinterInitialized) Kind() Kind { return KindInitialized }

// Paused records a pause by the named pauser.
type Paused struct {
	Account wire.Identity `json:"account"`
}

func (Paused) Kind() Kind { return KindPaused }

// Unpaused records an unpause by the named pauser.
type Unpaused struct {
	Account wire.Identity `json:"account"`
}

func (Unpaused) Kind() Kind { return KindUnpaused }

// AttestationSignerAdded records an attester enablement. Emitted even
// when the signer was already enabled.
type AttestationSignerAdded struct {
	Signer wire.Identity `json:"signer"`
}

func (AttestationSignerAdded) Kind() Kind { return KindSignerAdded }

// AttestationSignerRemoved records an attester removal. Emitted even
// when the signer was not enabled.
type AttestationSignerRemoved struct {
	Signer wire.Identity `json:"signer"`
}

func (AttestationSignerRemoved) Kind() Kind { return KindSignerRemoved }

// AttestationUsed is the per-element audit record of a redemption. One is
// emitted per element, in element order, only when the whole transaction
// commits.
type AttestationUsed struct {
	SourceDomain         uint32        `json:"source_domain"`
	DestinationDomain    uint32        `json:"destination_domain"`
	SourceToken          wire.Identity `json:"source_token"`
	DestinationToken     wire.Identity `json:"destination_token"`
	SourceDepositor      wire.Identity `json:"source_depositor"`
	DestinationRecipient wire.Identity `json:"destination_recipient"`
	Nonce                uint64        `json:"nonce"`
	Value                *uint256.Int  `json:"value"`
	TransferSpecHash     wire.Hash     `json:"transfer_spec_hash"`
}

func (AttestationUsed) Kind() Kind { return KindAttestationUsed }
