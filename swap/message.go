// Package swap implements C2 (message envelope & codec), C3 (multisig
// participant data), C5 (trade record & store), C6 (state machine) and
// C7 (action dispatcher) of the swap core.
//
// Message shapes are grounded field-for-field on
// original_source/libwallet/src/swap/message.rs; the Go encoding is
// JSON per spec §2/§6 rather than the Rust side's serde_json derive,
// using the same tagged-union discriminator idiom lnwire uses for its
// Message family (one Case tag, one payload field per variant).
package swap

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/lightningnetwork/lnswap/currency"
	"github.com/lightningnetwork/lnswap/swaperrors"
)

// UpdateCase discriminates the Update tagged union (spec §3).
type UpdateCase string

const (
	UpdateNone        UpdateCase = "None"
	UpdateOffer       UpdateCase = "Offer"
	UpdateAcceptOffer UpdateCase = "AcceptOffer"
	UpdateInitRedeem  UpdateCase = "InitRedeem"
	UpdateRedeem      UpdateCase = "Redeem"
)

// SecondaryUpdateCase discriminates the SecondaryUpdate tagged union.
type SecondaryUpdateCase string

const (
	SecondaryEmpty SecondaryUpdateCase = "Empty"
	SecondaryBTC   SecondaryUpdateCase = "BTC"
)

// SupportedVersions is the set of protocol versions this implementation
// accepts in an OfferUpdate.version field (spec §8 boundary behavior).
var SupportedVersions = map[uint8]bool{1: true}

// ParseNetwork maps the wire-level network name onto a currency.Network.
func ParseNetwork(s string) (currency.Network, error) {
	switch s {
	case "mainnet":
		return currency.Mainnet, nil
	case "floonet":
		return currency.Floonet, nil
	default:
		return 0, swaperrors.New(swaperrors.KindInvalidArgument, "unknown network %q", s)
	}
}

// HexBytes is a byte slice that (de)serializes as lower-case hex
// without a prefix, per spec §6.
type HexBytes []byte

func (h HexBytes) MarshalJSON() ([]byte, error) {
	return json.Marshal(hex.EncodeToString(h))
}

func (h *HexBytes) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return swaperrors.New(swaperrors.KindInvalidArgument, "invalid hex field: %v", err)
	}
	*h = b
	return nil
}

// Amount is an integer amount field that accepts either a JSON number
// or a decimal string on the wire (spec §2/§6), since values may
// exceed 2^53.
type Amount uint64

func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(strconv.FormatUint(uint64(a), 10))
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		v, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return swaperrors.New(swaperrors.KindInvalidArgument, "invalid amount string: %v", err)
		}
		*a = Amount(v)
		return nil
	}

	var v uint64
	if err := json.Unmarshal(data, &v); err != nil {
		return swaperrors.New(swaperrors.KindInvalidArgument, "invalid amount number: %v", err)
	}
	*a = Amount(v)
	return nil
}

// OfferUpdate is the Seller->Buyer payload for protocol step 1, field
// shapes grounded on message.rs's OfferUpdate.
type OfferUpdate struct {
	StartTime                        time.Time           `json:"start_time"`
	Version                          uint8                `json:"version"`
	NetworkName                      string               `json:"network"`
	PrimaryAmount                    Amount               `json:"primary_amount"`
	SecondaryAmount                  Amount               `json:"secondary_amount"`
	SecondaryCurrency                string               `json:"secondary_currency"`
	Multisig                         ParticipantData      `json:"multisig"`
	LockSlate                        HexBytes             `json:"lock_slate"`
	RefundSlate                      HexBytes             `json:"refund_slate"`
	RedeemParticipant                ParticipantData      `json:"redeem_participant"`
	RequiredMWCLockConfirmations     uint64               `json:"required_mwc_lock_confirmations"`
	RequiredSecondaryLockConfirmations uint64             `json:"required_secondary_lock_confirmations"`
	MWCLockTimeSeconds               uint64               `json:"mwc_lock_time_seconds"`
	SellerRedeemTime                 uint64               `json:"seller_redeem_time"`
}

// AcceptOfferUpdate is the Buyer->Seller payload for protocol step 2.
type AcceptOfferUpdate struct {
	Multisig          ParticipantData `json:"multisig"`
	RedeemPublic      HexBytes        `json:"redeem_public"`
	LockParticipant   ParticipantData `json:"lock_participant"`
	RefundParticipant ParticipantData `json:"refund_participant"`
}

// InitRedeemUpdate is the Buyer->Seller payload for protocol step 4.
type InitRedeemUpdate struct {
	RedeemSlate       HexBytes `json:"redeem_slate"`
	AdaptorSignature  HexBytes `json:"adaptor_signature"`
}

// RedeemUpdate is the Seller->Buyer payload for protocol step 5.
type RedeemUpdate struct {
	RedeemParticipant ParticipantData `json:"redeem_participant"`
}

// Update is the tagged union of swap-core payloads (spec §3).
type Update struct {
	Case        UpdateCase         `json:"case"`
	Offer       *OfferUpdate       `json:"offer,omitempty"`
	AcceptOffer *AcceptOfferUpdate `json:"accept_offer,omitempty"`
	InitRedeem  *InitRedeemUpdate  `json:"init_redeem,omitempty"`
	Redeem      *RedeemUpdate      `json:"redeem,omitempty"`
}

// BtcOfferUpdate / BtcAcceptUpdate carry the per-step secondary-chain
// fields referenced by spec §3's "BTC { step-specific fields }".
type BtcOfferUpdate struct {
	RefundAddress string `json:"refund_address"`
}

type BtcAcceptUpdate struct {
	PubkeyHash HexBytes `json:"pubkey_hash"`
	ChangeAddress string `json:"change_address"`
}

// SecondaryUpdate is the tagged union of secondary-chain payloads.
type SecondaryUpdate struct {
	Case SecondaryUpdateCase `json:"case"`
	BTC  *BtcPayload         `json:"btc,omitempty"`
}

// BtcPayload bundles whichever secondary-chain fields apply to the
// current step; unused fields are left at their zero value. This is
// shared between BTC and BCH since both chains have an identical
// HTLC/script shape (see secondary package).
type BtcPayload struct {
	Offer  *BtcOfferUpdate  `json:"offer,omitempty"`
	Accept *BtcAcceptUpdate `json:"accept,omitempty"`
}

// Message is the self-contained wire envelope of spec §3/§6.
type Message struct {
	ID              uuid.UUID       `json:"id"`
	Inner           Update          `json:"inner"`
	InnerSecondary  SecondaryUpdate `json:"inner_secondary"`
}

// NewSwapID generates a fresh swap-id (UUID v4), per spec §3.
func NewSwapID() uuid.UUID {
	return uuid.New()
}

// ToJSON encodes the message to its canonical wire form.
func (m *Message) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// FromJSON decodes a message from its wire form, rejecting unknown
// top-level fields and unrecognized Update/SecondaryUpdate case tags
// (spec §4.2 — unknown tags are errors, not ignored).
func FromJSON(data []byte) (*Message, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var m Message
	if err := dec.Decode(&m); err != nil {
		return nil, swaperrors.New(swaperrors.KindInvalidArgument, "malformed swap message: %v", err)
	}

	switch m.Inner.Case {
	case UpdateNone, UpdateOffer, UpdateAcceptOffer, UpdateInitRedeem, UpdateRedeem:
	default:
		return nil, swaperrors.New(swaperrors.KindInvalidArgument, "unknown Update case %q", m.Inner.Case)
	}

	switch m.InnerSecondary.Case {
	case SecondaryEmpty, SecondaryBTC:
	default:
		return nil, swaperrors.New(swaperrors.KindInvalidArgument, "unknown SecondaryUpdate case %q", m.InnerSecondary.Case)
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}

	return &m, nil
}

// Validate checks that Inner and InnerSecondary are jointly consistent
// (spec §4.2: Offer ⇒ BTC(BtcOffer); InitRedeem ⇒ Empty; etc). The
// codec never cryptographically validates; that remains C6's job.
func (m *Message) Validate() error {
	switch m.Inner.Case {
	case UpdateOffer:
		if m.Inner.Offer == nil {
			return swaperrors.New(swaperrors.KindInvalidArgument, "Offer case missing payload")
		}
		if !SupportedVersions[m.Inner.Offer.Version] {
			return swaperrors.New(swaperrors.KindInvalidArgument,
				"unsupported offer version %d", m.Inner.Offer.Version)
		}
		if m.InnerSecondary.Case != SecondaryBTC || m.InnerSecondary.BTC == nil ||
			m.InnerSecondary.BTC.Offer == nil {
			return swaperrors.New(swaperrors.KindInvalidArgument,
				"Offer requires a secondary BTC(Offer) payload")
		}

	case UpdateAcceptOffer:
		if m.Inner.AcceptOffer == nil {
			return swaperrors.New(swaperrors.KindInvalidArgument, "AcceptOffer case missing payload")
		}
		if m.InnerSecondary.Case != SecondaryBTC || m.InnerSecondary.BTC == nil ||
			m.InnerSecondary.BTC.Accept == nil {
			return swaperrors.New(swaperrors.KindInvalidArgument,
				"AcceptOffer requires a secondary BTC(Accept) payload")
		}

	case UpdateInitRedeem:
		if m.Inner.InitRedeem == nil {
			return swaperrors.New(swaperrors.KindInvalidArgument, "InitRedeem case missing payload")
		}
		if m.InnerSecondary.Case != SecondaryEmpty {
			return swaperrors.New(swaperrors.KindInvalidArgument, "InitRedeem requires Empty secondary payload")
		}

	case UpdateRedeem:
		if m.Inner.Redeem == nil {
			return swaperrors.New(swaperrors.KindInvalidArgument, "Redeem case missing payload")
		}
		if m.InnerSecondary.Case != SecondaryEmpty {
			return swaperrors.New(swaperrors.KindInvalidArgument, "Redeem requires Empty secondary payload")
		}

	case UpdateNone:
		if m.InnerSecondary.Case != SecondaryEmpty {
			return swaperrors.New(swaperrors.KindInvalidArgument, "None requires Empty secondary payload")
		}

	default:
		return swaperrors.New(swaperrors.KindInvalidArgument, "unknown Update case %q", m.Inner.Case)
	}

	return nil
}

// String is used by journal entries and diagnostics (spec §6 "dump").
func (m *Message) String() string {
	return fmt.Sprintf("Message{id=%s, case=%s}", m.ID, m.Inner.Case)
}
