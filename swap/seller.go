package swap

import (
	"time"

	"github.com/btcsuite/btcd/btcec/v2/ecdsa"

	"github.com/lightningnetwork/lnswap/swaperrors"
)

// sellerStep implements the seller side of the protocol table in spec
// §4.6 (steps 1, 2, 4->5, 6) plus the seller refund branch.
func sellerStep(rec *TradeRecord, ev Event) (Action, time.Time, error) {
	switch rec.State {

	case StateCreated:
		// Step 1: Seller -> Buyer, Offer + BTC(Offer). Created -> OfferSent.
		if ev.Kind != EventTick {
			return Action{Kind: ActionNone}, rec.StartTime, nil
		}
		msg := buildOfferMessage(rec)
		rec.State = StateOfferSent
		rec.AddJournal("info", "sent offer")
		return Action{Kind: ActionSendMessage, Message: msg}, rec.StepDeadline(1), nil

	case StateOfferSent:
		deadline := rec.StepDeadline(1)
		valid, completes := false, false

		if ev.Kind == EventMessageReceived {
			valid = ev.Message.Inner.Case == UpdateAcceptOffer
			completes = valid
		}

		if tieBreak(ev.Kind == EventTick && ev.Now.After(deadline), valid, completes) {
			rec.State = StateCancelled
			rec.AddJournal("timeout", "no AcceptOffer before deadline, cancelling pre-lock")
			return Action{Kind: ActionNone}, deadline, nil
		}

		if valid {
			if err := applyAcceptOffer(rec, ev.Message); err != nil {
				return Action{Kind: ActionNone}, deadline, err
			}
			rec.State = StateAccepted
			rec.AddJournal("info", "received accepted offer")
			return Action{Kind: ActionNone}, deadline, nil
		}

		return Action{Kind: ActionWait}, deadline, nil

	case StateAccepted:
		// Step 3 (on-chain): seller locks MWC, obeying seller_lock_first.
		if ev.Kind != EventTick {
			return Action{Kind: ActionNone}, rec.StartTime, nil
		}
		if rec.SellerLockFirst {
			rec.State = StateMWCLocking
			rec.AddJournal("info", "broadcasting MWC lock (seller locks first)")
			return Action{Kind: ActionBroadcastPrimary, Tx: rec.LockSlate}, rec.StepDeadline(3), nil
		}
		// Wait for the buyer to lock first; nothing to broadcast yet.
		return Action{Kind: ActionWait}, rec.StepDeadline(3), nil

	case StateMWCLocking:
		if ev.Kind != EventTick {
			return Action{Kind: ActionNone}, rec.StartTime, nil
		}
		conf := rec.ObserveMWCConfirmations(ev.Heights.MWCConfirmations)
		if conf >= rec.RequiredMWCLockConfirmations {
			rec.State = StateLocked
			rec.AddJournal("info", "MWC lock reached required confirmations")
			return Action{Kind: ActionNone}, rec.StepDeadline(4), nil
		}
		return Action{Kind: ActionWait}, rec.StepDeadline(4), nil

	case StateLocked:
		deadline := rec.StepDeadline(4)
		valid, completes := false, false
		if ev.Kind == EventMessageReceived {
			valid = ev.Message.Inner.Case == UpdateInitRedeem
			completes = valid
		}

		if tieBreak(ev.Kind == EventTick && ev.Now.After(rec.MWCLockDeadline()), valid, completes) {
			rec.State = StateSellerWaitingForRefund
			rec.AddJournal("timeout", "no InitRedeem before deadline, arming refund")
			return Action{Kind: ActionWait}, rec.MWCLockDeadline(), nil
		}

		if valid {
			if err := applyInitRedeem(rec, ev.Message); err != nil {
				if swaperrors.Is(err, swaperrors.KindCryptoFailure) {
					// Step-5 gate: adaptor signature verification
					// failed. Post-lock this arms the refund branch
					// rather than cancelling (spec §4.6 crypto gate).
					rec.State = StateSellerWaitingForRefund
					rec.AddJournal("error", "adaptor signature verification failed: %v", err)
					return Action{Kind: ActionWait}, rec.MWCLockDeadline(), nil
				}
				return Action{Kind: ActionNone}, deadline, err
			}
			rec.State = StateInitRedeem
			rec.AddJournal("info", "received InitRedeem, publishing Redeem")
			msg := buildRedeemMessage(rec)
			return Action{Kind: ActionSendMessage, Message: msg}, rec.StepDeadline(5), nil
		}

		return Action{Kind: ActionWait}, deadline, nil

	case StateInitRedeem:
		// Step 5 message has been sent; now claim the secondary chain
		// via the hash-image branch (spec §4.4 build_redeem_tx) before
		// waiting to observe the redeem reach its required confirmations.
		if ev.Kind != EventTick {
			return Action{Kind: ActionNone}, rec.StepDeadline(5), nil
		}
		rec.State = StateRedeem
		rec.AddJournal("info", "broadcasting secondary redeem")
		return Action{Kind: ActionBroadcastSecondary}, rec.StepDeadline(6), nil

	case StateRedeem:
		// Step 6 (on-chain): observe secondary redeem.
		if ev.Kind != EventTick {
			return Action{Kind: ActionNone}, rec.StepDeadline(6), nil
		}
		if ev.Heights.SecondaryConfirmations >= rec.RequiredSecondaryLockConfirmations &&
			rec.SecondaryRedeemTxID != "" {
			rec.State = StateCompleted
			rec.AddJournal("info", "swap completed, secondary redeem observed txid=%s", rec.SecondaryRedeemTxID)
			return Action{Kind: ActionNone}, rec.StepDeadline(6), nil
		}
		if ev.Now.After(rec.StepDeadline(6)) {
			rec.State = StateSellerWaitingForRefund
			rec.AddJournal("timeout", "redeem window expired without observing secondary redeem")
			return Action{Kind: ActionWait}, rec.MWCLockDeadline(), nil
		}
		return Action{Kind: ActionWait}, rec.StepDeadline(6), nil

	case StateSellerWaitingForRefund:
		if ev.Kind != EventTick {
			return Action{Kind: ActionNone}, rec.MWCLockDeadline(), nil
		}
		if ev.Now.Before(rec.MWCLockDeadline()) {
			return Action{Kind: ActionWait}, rec.MWCLockDeadline(), nil
		}
		rec.AddJournal("info", "broadcasting MWC refund")
		return Action{Kind: ActionPublishRefund, Tx: rec.RefundSlate}, rec.MWCLockDeadline(), nil

	case StateCompleted, StateRefunded, StateCancelled:
		return Action{Kind: ActionNone}, rec.StartTime, nil

	default:
		return Action{Kind: ActionNone}, rec.StartTime, swaperrors.New(swaperrors.KindFatal,
			"seller: unreachable state %s", rec.State)
	}
}

// applyAcceptOffer validates and applies an AcceptOffer message,
// populating the record's peer-side multisig/redeem-public fields
// (spec §4.6 step 2).
func applyAcceptOffer(rec *TradeRecord, msg *Message) error {
	if msg.Inner.Case != UpdateAcceptOffer || msg.Inner.AcceptOffer == nil {
		return swaperrors.New(swaperrors.KindUnexpectedMessageType,
			"expected AcceptOffer in state %s", rec.State)
	}
	u := msg.Inner.AcceptOffer
	rec.MultisigPeer = u.Multisig
	rec.RedeemPublicPeer = u.RedeemPublic
	return nil
}

// applyInitRedeem validates the adaptor signature in InitRedeem (spec
// §4.6 "Cryptographic gate on step 5"): the seller publishes Redeem
// only after verifying it. Verification failure returns a
// KindCryptoFailure error so the caller can drive the correct branch.
func applyInitRedeem(rec *TradeRecord, msg *Message) error {
	if msg.Inner.Case != UpdateInitRedeem || msg.Inner.InitRedeem == nil {
		return swaperrors.New(swaperrors.KindUnexpectedMessageType,
			"expected InitRedeem in state %s", rec.State)
	}
	u := msg.Inner.InitRedeem
	rec.RedeemSlate = u.RedeemSlate

	if err := verifyAdaptorSignature(rec, u.AdaptorSignature); err != nil {
		return swaperrors.Wrap(swaperrors.KindCryptoFailure, err)
	}
	return nil
}

// verifyAdaptorSignature checks the buyer's adaptor signature against
// the buyer's redeem public key, grounded on the "reveal scalar on
// redeem" pattern seen in noot-atomic-swap's swapState.getSecret,
// generalized to secp256k1/MWC. A signature that fails to parse or
// verify is treated identically: a crypto failure.
func verifyAdaptorSignature(rec *TradeRecord, sig []byte) error {
	pub, err := ecdsaPubFromHex(rec.RedeemPublicPeer)
	if err != nil {
		return err
	}

	parsedSig, err := ecdsa.ParseDERSignature(sig)
	if err != nil {
		return swaperrors.New(swaperrors.KindCryptoFailure, "malformed adaptor signature: %v", err)
	}

	digest := redeemDigest(rec)
	if !parsedSig.Verify(digest, pub) {
		return swaperrors.New(swaperrors.KindCryptoFailure, "adaptor signature does not verify")
	}
	return nil
}

// buildOfferMessage assembles the step-1 Offer message from the
// record's fields, field-for-field per OfferUpdate (grounded on
// original_source message.rs).
func buildOfferMessage(rec *TradeRecord) *Message {
	return &Message{
		ID: rec.SwapID,
		Inner: Update{
			Case: UpdateOffer,
			Offer: &OfferUpdate{
				StartTime:                         rec.StartTime,
				Version:                            1,
				NetworkName:                        rec.Network.String(),
				PrimaryAmount:                      Amount(rec.PrimaryAmount),
				SecondaryAmount:                    Amount(rec.SecondaryAmount),
				SecondaryCurrency:                  rec.SecondaryCurrency.String(),
				Multisig:                           rec.MultisigSelf,
				LockSlate:                          rec.LockSlate,
				RefundSlate:                        rec.RefundSlate,
				RequiredMWCLockConfirmations:       rec.RequiredMWCLockConfirmations,
				RequiredSecondaryLockConfirmations: rec.RequiredSecondaryLockConfirmations,
				MWCLockTimeSeconds:                 rec.MessageExchangeTimeSec * 3,
				SellerRedeemTime:                   rec.RedeemTimeSec,
			},
		},
		InnerSecondary: SecondaryUpdate{
			Case: SecondaryBTC,
			BTC: &BtcPayload{
				Offer: &BtcOfferUpdate{RefundAddress: rec.RefundAddress},
			},
		},
	}
}

// buildRedeemMessage assembles the step-5 Redeem message.
func buildRedeemMessage(rec *TradeRecord) *Message {
	return &Message{
		ID: rec.SwapID,
		Inner: Update{
			Case: UpdateRedeem,
			Redeem: &RedeemUpdate{
				RedeemParticipant: rec.MultisigSelf,
			},
		},
		InnerSecondary: SecondaryUpdate{Case: SecondaryEmpty},
	}
}
