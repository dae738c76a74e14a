// Package secondary implements C4: the per-chain HTLC adapter that
// isolates every BTC/BCH-specific detail (script construction, fee
// sizing, broadcast, confirmation tracking) behind one interface, so
// that swap's state machine (C6) never imports a chain-specific
// package directly (spec §4.4/§6).
package secondary

import (
	"context"
	"time"
)

// FundingScript is the per-trade HTLC parameterization derived from
// the multisig participant data exchanged in Offer/AcceptOffer (spec
// §3 Invariant 4: the secondary script is uniquely determined by the
// two participants' pubkeys, the hash image, and the lock height/time
// union described in SPEC_FULL.md §9 Supplemented features).
type FundingScript struct {
	SellerPubkey []byte
	BuyerPubkey  []byte
	HashImage    []byte

	// Exactly one of LockHeight/LockTime is nonzero, selecting which
	// OP_CHECKLOCKTIMEVERIFY variant the redeem script uses (height-based
	// vs. Unix-time-based), per the lock-height-or-time union decision.
	LockHeight uint32
	LockTime   uint32
}

// BuiltScript is the output of BuildScript: the redeem script and the
// chain address that funds must be sent to.
type BuiltScript struct {
	RedeemScript []byte
	Address      string
}

// FundingStatus reports what has been observed about a secondary-chain
// HTLC output (spec §4.4 observe_funding).
type FundingStatus struct {
	Found         bool
	TxID          string
	Confirmations uint64
	AmountSat     int64
}

// Adapter is the per-chain capability C6/C7 use to drive the secondary
// leg of a swap. One Adapter instance is configured per currency (spec
// §6 "SecondaryClients map[currency.Currency]secondary.Adapter").
type Adapter interface {
	// BuildScript derives the redeem script and funding address for fs
	// (spec §4.4 build_script). Deterministic: the same FundingScript
	// always yields the same script and address.
	BuildScript(fs FundingScript) (*BuiltScript, error)

	// ObserveFunding queries the chain for the current status of the
	// HTLC output funding this trade (spec §4.4 observe_funding).
	ObserveFunding(ctx context.Context, script *BuiltScript) (*FundingStatus, error)

	// BuildRedeemTx builds (but does not broadcast) the transaction that
	// spends the HTLC output via the hash-image branch, paying to dest
	// (spec §4.4 build_redeem_tx).
	BuildRedeemTx(fs FundingScript, funding FundingStatus, preimage []byte, dest string) ([]byte, error)

	// BuildRefundTx builds the transaction that spends the HTLC output
	// via the timeout branch, paying back to dest (spec §4.4
	// build_refund_tx). Only valid once the funding output's lock has
	// expired.
	BuildRefundTx(fs FundingScript, funding FundingStatus, dest string) ([]byte, error)

	// Broadcast submits tx to the network and returns its txid (spec
	// §4.4 broadcast).
	Broadcast(ctx context.Context, tx []byte) (txid string, err error)

	// Confirmations returns the current confirmation depth of txid
	// (spec §4.4 confirmations).
	Confirmations(ctx context.Context, txid string) (uint64, error)
}

// clockNow follows the clock package's injectable-time pattern used
// elsewhere in this module (spec §5); nothing in this module reads or
// overrides it.
var clockNow = time.Now
