package swap

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lightningnetwork/lnswap/currency"
)

// Role identifies which side of the trade a record belongs to (spec §3).
type Role byte

const (
	RoleSeller Role = iota
	RoleBuyer
)

func (r Role) String() string {
	if r == RoleSeller {
		return "Seller"
	}
	return "Buyer"
}

// State is one of the protocol states named in spec §4.6.
type State string

const (
	StateCreated     State = "Created"
	StateOfferSent   State = "OfferSent"
	StateOffered     State = "Offered"
	StateAccepted    State = "Accepted"
	StateMWCLocking  State = "MwcLocking"
	StateMWCLocked   State = "MwcLocked"
	StateLocked      State = "Locked"
	StateInitRedeem  State = "InitRedeem"
	StateInitRedeemSent State = "InitRedeemSent"
	StateRedeem      State = "Redeem"
	StateRedeemReady State = "RedeemReady"

	StateSellerWaitingForRefund State = "SellerWaitingForRefund"
	StateBuyerWaitingForRefund  State = "BuyerWaitingForRefund"

	StateCompleted State = "Completed"
	StateRefunded  State = "Refunded"
	StateCancelled State = "Cancelled"
)

// IsTerminal reports whether a state ends the trade (spec §4.6).
func (s State) IsTerminal() bool {
	switch s {
	case StateCompleted, StateRefunded, StateCancelled:
		return true
	default:
		return false
	}
}

// SecondaryScript holds the derived HTLC parameters that uniquely
// determine the secondary-chain script and its address (spec §3
// Invariant 4).
type SecondaryScript struct {
	SellerPubkey HexBytes `json:"seller_pubkey"`
	BuyerPubkey  HexBytes `json:"buyer_pubkey"`
	LockHeight   uint32   `json:"lock_height,omitempty"`
	LockTime     uint32   `json:"lock_time,omitempty"`
	HashImage    HexBytes `json:"hash_image"`
	Address      string   `json:"address"`
	RedeemScript HexBytes `json:"redeem_script"`
}

// JournalEntry is an append-only, display-only log line (spec §3, §9
// Open Question: journal is display-only, never branched on).
type JournalEntry struct {
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
	Kind    string    `json:"kind,omitempty"`
}

// TradeRecord is the durable per-trade state described in spec §3.
type TradeRecord struct {
	mu sync.Mutex `json:"-"`

	Version  uint32 `json:"version"`
	Revision uint64 `json:"revision"`

	SwapID  uuid.UUID       `json:"swap_id"`
	Role    Role            `json:"role"`
	Network currency.Network `json:"network"`

	PrimaryAmount     uint64            `json:"primary_amount"`
	SecondaryAmount   uint64            `json:"secondary_amount"`
	SecondaryCurrency currency.Currency `json:"secondary_currency"`

	SellerLockFirst bool `json:"seller_lock_first"`

	RequiredMWCLockConfirmations       uint64 `json:"required_mwc_lock_confirmations"`
	RequiredSecondaryLockConfirmations uint64 `json:"required_secondary_lock_confirmations"`

	MessageExchangeTimeSec uint64    `json:"message_exchange_time_sec"`
	RedeemTimeSec          uint64    `json:"redeem_time_sec"`
	StartTime              time.Time `json:"start_time"`

	MultisigSelf ParticipantData `json:"multisig_self"`
	MultisigPeer ParticipantData `json:"multisig_peer"`

	LockSlate   HexBytes `json:"lock_slate"`
	RefundSlate HexBytes `json:"refund_slate"`
	RedeemSlate HexBytes `json:"redeem_slate"`

	RedeemPublicPeer HexBytes `json:"redeem_public_peer"`

	SecondaryScript SecondaryScript `json:"secondary_script"`
	RefundAddress   string          `json:"refund_address"`

	// Preimage is the secret behind SecondaryScript.HashImage. The
	// seller originates the hash-lock and so is the only party who
	// holds this from swap creation onward (spec §4.4 build_redeem_tx);
	// the buyer never learns it until the seller's redeem transaction
	// reveals it on the secondary chain.
	Preimage HexBytes `json:"preimage,omitempty"`

	SecondaryLockTxID  string `json:"secondary_lock_txid,omitempty"`
	MWCLockTxID        string `json:"mwc_lock_txid,omitempty"`
	MWCRedeemTxID      string `json:"mwc_redeem_txid,omitempty"`
	SecondaryRedeemTxID string `json:"secondary_redeem_txid,omitempty"`
	MWCRefundTxID      string `json:"mwc_refund_txid,omitempty"`
	SecondaryRefundTxID string `json:"secondary_refund_txid,omitempty"`

	// LastMWCConfirmations / LastSecondaryConfirmations enforce the
	// monotonic-confirmations testable property (spec §8 property 5).
	// Persisted so a restart doesn't forget a deeper confirmation count
	// already observed.
	LastMWCConfirmations       uint64 `json:"last_mwc_confirmations"`
	LastSecondaryConfirmations uint64 `json:"last_secondary_confirmations"`

	State   State          `json:"state"`
	Journal []JournalEntry `json:"journal"`

	LastMessageSentHash HexBytes `json:"last_message_sent_hash"`
	lastDispatchedStep  string

	Frozen bool `json:"frozen"`
}

// NewSellerRecord creates the Created-state record the seller holds
// starting at swap_start (spec §3 Lifecycle).
func NewSellerRecord(
	id uuid.UUID,
	net currency.Network,
	primaryAmount, secondaryAmount uint64,
	secondaryCurrency currency.Currency,
	sellerLockFirst bool,
	reqMWCConf, reqSecConf uint64,
	msgExchangeSec, redeemSec uint64,
	start time.Time,
) (*TradeRecord, error) {
	if reqMWCConf == 0 {
		return nil, fmt.Errorf("required_mwc_lock_confirmations must be >= 1")
	}
	if redeemSec < 2*msgExchangeSec {
		return nil, fmt.Errorf("redeem_time_sec must be >= 2 * message_exchange_time_sec")
	}

	return &TradeRecord{
		Version:                             1,
		SwapID:                              id,
		Role:                                RoleSeller,
		Network:                             net,
		PrimaryAmount:                       primaryAmount,
		SecondaryAmount:                     secondaryAmount,
		SecondaryCurrency:                   secondaryCurrency,
		SellerLockFirst:                     sellerLockFirst,
		RequiredMWCLockConfirmations:        reqMWCConf,
		RequiredSecondaryLockConfirmations:  reqSecConf,
		MessageExchangeTimeSec:              msgExchangeSec,
		RedeemTimeSec:                       redeemSec,
		StartTime:                           start,
		State:                               StateCreated,
	}, nil
}

// NewBuyerRecord creates the Created-state record the buyer holds on
// receipt of the first Offer message (spec §3 Lifecycle). Fields
// carried by the Offer itself (amounts, network, deadlines, slates)
// are filled in by applyOffer once Step processes that message, not
// here — the constructor only fixes identity (swap-id, role, refund
// address) before the buyer's first Step call.
func NewBuyerRecord(id uuid.UUID, refundAddress string) *TradeRecord {
	return &TradeRecord{
		Version:       1,
		SwapID:        id,
		Role:          RoleBuyer,
		RefundAddress: refundAddress,
		State:         StateCreated,
	}
}

// Lock acquires the per-trade lock guarding Load->Step->Save critical
// sections (spec §5). It must never be held across C4 network I/O or
// C7 SendMessage.
func (r *TradeRecord) Lock()   { r.mu.Lock() }
func (r *TradeRecord) Unlock() { r.mu.Unlock() }

// AddJournal appends a display-only journal entry (spec §3 Lifecycle,
// Glossary "Journal").
func (r *TradeRecord) AddJournal(kind, format string, args ...interface{}) {
	r.Journal = append(r.Journal, JournalEntry{
		Time:    time.Now().UTC(),
		Message: fmt.Sprintf(format, args...),
		Kind:    kind,
	})
}

// ObserveMWCConfirmations records a confirmation count, enforcing that
// observations never decrease within a run (spec §8 property 5). A
// smaller count than previously observed is ignored rather than
// propagated, protecting against a shallow reorg.
func (r *TradeRecord) ObserveMWCConfirmations(n uint64) uint64 {
	if n > r.LastMWCConfirmations {
		r.LastMWCConfirmations = n
	}
	return r.LastMWCConfirmations
}

// ObserveSecondaryConfirmations is the secondary-chain analogue of
// ObserveMWCConfirmations.
func (r *TradeRecord) ObserveSecondaryConfirmations(n uint64) uint64 {
	if n > r.LastSecondaryConfirmations {
		r.LastSecondaryConfirmations = n
	}
	return r.LastSecondaryConfirmations
}

// MWCLockDeadline is the absolute time after which the seller's refund
// branch is armed (spec §4.6).
func (r *TradeRecord) MWCLockDeadline() time.Time {
	return r.StartTime.Add(time.Duration(r.MessageExchangeTimeSec) * 3 * time.Second).
		Add(time.Duration(r.RedeemTimeSec) * time.Second)
}

// StepDeadline computes the cumulative deadline for a given protocol
// step count, per spec §4.6 ("Deadlines are computed from start_time
// plus cumulative message_exchange_time_sec per step, with the final
// redeem_time_sec covering steps 4-6").
func (r *TradeRecord) StepDeadline(step int) time.Time {
	if step >= 4 {
		msgSteps := 3 // steps 1-3 each consume one message_exchange_time_sec unit
		base := r.StartTime.Add(time.Duration(msgSteps) * time.Duration(r.MessageExchangeTimeSec) * time.Second)
		return base.Add(time.Duration(r.RedeemTimeSec) * time.Second)
	}
	return r.StartTime.Add(time.Duration(step) * time.Duration(r.MessageExchangeTimeSec) * time.Second)
}

// Dump renders a human-readable diagnostic snapshot of the record,
// grounded on original_source's controller/src/command.rs swap_dump
// formatting (labeled lines: id, role, state, network, amounts, txids,
// secondary script address, frozen flag, journal; no keys).
func (r *TradeRecord) Dump() string {
	var b strings.Builder
	fmt.Fprintf(&b, "swap_id: %s\n", r.SwapID)
	fmt.Fprintf(&b, "role: %s\n", r.Role)
	fmt.Fprintf(&b, "state: %s\n", r.State)
	fmt.Fprintf(&b, "network: %s\n", r.Network)
	fmt.Fprintf(&b, "primary_amount: %d\n", r.PrimaryAmount)
	fmt.Fprintf(&b, "secondary_amount: %d (%s)\n", r.SecondaryAmount, r.SecondaryCurrency)
	fmt.Fprintf(&b, "seller_lock_first: %t\n", r.SellerLockFirst)
	fmt.Fprintf(&b, "mwc_lock_txid: %s\n", r.MWCLockTxID)
	fmt.Fprintf(&b, "secondary_lock_txid: %s\n", r.SecondaryLockTxID)
	fmt.Fprintf(&b, "mwc_redeem_txid: %s\n", r.MWCRedeemTxID)
	fmt.Fprintf(&b, "secondary_redeem_txid: %s\n", r.SecondaryRedeemTxID)
	fmt.Fprintf(&b, "mwc_refund_txid: %s\n", r.MWCRefundTxID)
	fmt.Fprintf(&b, "secondary_refund_txid: %s\n", r.SecondaryRefundTxID)
	fmt.Fprintf(&b, "secondary_script.address: %s\n", r.SecondaryScript.Address)
	fmt.Fprintf(&b, "frozen: %t\n", r.Frozen)
	fmt.Fprintf(&b, "journal:\n")
	for _, j := range r.Journal {
		fmt.Fprintf(&b, "  [%s] %s: %s\n", j.Time.Format(time.RFC3339), j.Kind, j.Message)
	}
	return b.String()
}
