package swap

import (
	"time"

	"github.com/lightningnetwork/lnswap/currency"
	"github.com/lightningnetwork/lnswap/swaperrors"
)

// buyerStep implements the buyer side of the protocol table in spec
// §4.6 (steps 1->2, 3, 4, 5->6) plus the buyer refund branch.
func buyerStep(rec *TradeRecord, ev Event) (Action, time.Time, error) {
	switch rec.State {

	case StateCreated:
		// The buyer's record is created on receipt of the first Offer
		// (spec §3 Lifecycle); there is no "Created" tick action for
		// the buyer, only message handling.
		if ev.Kind != EventMessageReceived {
			return Action{Kind: ActionNone}, rec.StartTime, nil
		}
		if ev.Message.Inner.Case != UpdateOffer {
			return Action{Kind: ActionNone}, rec.StartTime, swaperrors.New(
				swaperrors.KindUnexpectedMessageType, "expected Offer, got %s", ev.Message.Inner.Case)
		}
		if err := applyOffer(rec, ev.Message); err != nil {
			return Action{Kind: ActionNone}, rec.StartTime, err
		}
		rec.State = StateOffered
		rec.AddJournal("info", "received offer")
		return Action{Kind: ActionNone}, rec.StepDeadline(1), nil

	case StateOffered:
		if ev.Kind != EventTick {
			return Action{Kind: ActionNone}, rec.StepDeadline(1), nil
		}
		msg := buildAcceptOfferMessage(rec)
		rec.State = StateAccepted
		rec.AddJournal("info", "sent accepted offer")
		return Action{Kind: ActionSendMessage, Message: msg}, rec.StepDeadline(3), nil

	case StateAccepted:
		// Step 3 (on-chain): observe MWC lock, then lock secondary,
		// obeying seller_lock_first.
		if ev.Kind != EventTick {
			return Action{Kind: ActionNone}, rec.StartTime, nil
		}
		conf := rec.ObserveMWCConfirmations(ev.Heights.MWCConfirmations)
		if rec.SellerLockFirst && conf < rec.RequiredMWCLockConfirmations {
			// spec §4.6: buyer refuses to lock BTC until MWC lock has
			// the required confirmations when seller_lock_first.
			return Action{Kind: ActionWait}, rec.StepDeadline(3), nil
		}
		rec.State = StateMWCLocked
		rec.AddJournal("info", "MWC lock observed, broadcasting secondary lock")
		return Action{Kind: ActionBroadcastSecondary}, rec.StepDeadline(4), nil

	case StateMWCLocked:
		if ev.Kind != EventTick {
			return Action{Kind: ActionNone}, rec.StartTime, nil
		}
		conf := rec.ObserveSecondaryConfirmations(ev.Heights.SecondaryConfirmations)
		if conf >= rec.RequiredSecondaryLockConfirmations {
			rec.State = StateLocked
			rec.AddJournal("info", "secondary lock reached required confirmations")
			return Action{Kind: ActionNone}, rec.StepDeadline(4), nil
		}
		return Action{Kind: ActionWait}, rec.StepDeadline(4), nil

	case StateLocked:
		// Step 4: Buyer -> Seller, InitRedeem.
		if ev.Kind != EventTick {
			return Action{Kind: ActionNone}, rec.StartTime, nil
		}
		msg, err := buildInitRedeemMessage(rec)
		if err != nil {
			return Action{Kind: ActionNone}, rec.StepDeadline(4), err
		}
		rec.State = StateInitRedeemSent
		rec.AddJournal("info", "sent InitRedeem")
		return Action{Kind: ActionSendMessage, Message: msg}, rec.StepDeadline(5), nil

	case StateInitRedeemSent:
		deadline := rec.StepDeadline(5)
		valid, completes := false, false
		if ev.Kind == EventMessageReceived {
			valid = ev.Message.Inner.Case == UpdateRedeem
			completes = valid
		}

		if tieBreak(ev.Kind == EventTick && ev.Now.After(rec.secondaryLockExpiry()), valid, completes) {
			rec.State = StateBuyerWaitingForRefund
			rec.AddJournal("timeout", "no Redeem before secondary lock expiry, arming refund")
			return Action{Kind: ActionWait}, rec.secondaryLockExpiry(), nil
		}

		if valid {
			if err := applyRedeem(rec, ev.Message); err != nil {
				return Action{Kind: ActionNone}, deadline, err
			}
			rec.State = StateRedeemReady
			rec.AddJournal("info", "received Redeem, broadcasting MWC redeem")
			return Action{Kind: ActionPublishRedeem}, rec.StepDeadline(6), nil
		}

		return Action{Kind: ActionWait}, deadline, nil

	case StateRedeemReady:
		// Step 6 (on-chain): broadcast MWC redeem, complete once confirmed.
		if ev.Kind != EventTick {
			return Action{Kind: ActionNone}, rec.StartTime, nil
		}
		if rec.MWCRedeemTxID != "" {
			rec.State = StateCompleted
			rec.AddJournal("info", "swap completed, MWC redeem txid=%s", rec.MWCRedeemTxID)
		}
		return Action{Kind: ActionNone}, rec.StepDeadline(6), nil

	case StateBuyerWaitingForRefund:
		if ev.Kind != EventTick {
			return Action{Kind: ActionNone}, rec.secondaryLockExpiry(), nil
		}
		if ev.Now.Before(rec.secondaryLockExpiry()) {
			return Action{Kind: ActionWait}, rec.secondaryLockExpiry(), nil
		}
		rec.AddJournal("info", "broadcasting secondary refund")
		return Action{Kind: ActionPublishRefund}, rec.secondaryLockExpiry(), nil

	case StateCompleted, StateRefunded, StateCancelled:
		return Action{Kind: ActionNone}, rec.StartTime, nil

	default:
		return Action{Kind: ActionNone}, rec.StartTime, swaperrors.New(swaperrors.KindFatal,
			"buyer: unreachable state %s", rec.State)
	}
}

// secondaryLockExpiry is the buyer-side analogue of MWCLockDeadline:
// the point after which the secondary-chain HTLC's own locktime allows
// the buyer to reclaim their funds (spec §4.6 "BuyerWaitingForRefund
// ... after secondary lock expiry").
func (r *TradeRecord) secondaryLockExpiry() time.Time {
	return r.StartTime.Add(time.Duration(r.MessageExchangeTimeSec) * 3 * time.Second).
		Add(time.Duration(r.RedeemTimeSec) * time.Second)
}

// applyOffer validates and applies the step-1 Offer (spec §4.6,
// §8 boundary: disagreeing version is InvalidArgument), aborting with
// UnexpectedCoinType if the secondary update's currency tag disagrees.
// The buyer's own refund address is not checked against the declared
// secondary_currency here or anywhere else on the buyer side.
func applyOffer(rec *TradeRecord, msg *Message) error {
	o := msg.Inner.Offer
	if o == nil {
		return swaperrors.New(swaperrors.KindInvalidArgument, "Offer missing payload")
	}
	if !SupportedVersions[o.Version] {
		return swaperrors.New(swaperrors.KindInvalidArgument, "unsupported offer version %d", o.Version)
	}

	secCur, err := currency.ParseCurrency(o.SecondaryCurrency)
	if err != nil {
		return err
	}
	if msg.InnerSecondary.Case != SecondaryBTC {
		return swaperrors.New(swaperrors.KindUnexpectedCoinType,
			"secondary update case %s does not match declared currency %s",
			msg.InnerSecondary.Case, secCur)
	}

	net, err := ParseNetwork(o.NetworkName)
	if err != nil {
		return err
	}

	if o.RequiredMWCLockConfirmations == 0 {
		return swaperrors.New(swaperrors.KindInvalidArgument, "required_mwc_lock_confirmations must be >= 1")
	}
	if o.SellerRedeemTime < 2*(o.MWCLockTimeSeconds/3) {
		return swaperrors.New(swaperrors.KindInvalidArgument,
			"redeem_time_sec must be >= 2 * message_exchange_time_sec")
	}

	// Nothing below this point can fail: a rejected Offer must leave
	// rec untouched (spec §4.6 "reject must not mutate state").
	rec.Network = net
	rec.PrimaryAmount = uint64(o.PrimaryAmount)
	rec.SecondaryAmount = uint64(o.SecondaryAmount)
	rec.SecondaryCurrency = secCur
	rec.RequiredMWCLockConfirmations = o.RequiredMWCLockConfirmations
	rec.RequiredSecondaryLockConfirmations = o.RequiredSecondaryLockConfirmations
	rec.MessageExchangeTimeSec = o.MWCLockTimeSeconds / 3
	rec.RedeemTimeSec = o.SellerRedeemTime
	rec.StartTime = o.StartTime
	rec.MultisigPeer = o.Multisig
	rec.LockSlate = o.LockSlate
	rec.RefundSlate = o.RefundSlate

	return nil
}

// applyRedeem applies the seller's step-5 Redeem message.
func applyRedeem(rec *TradeRecord, msg *Message) error {
	if msg.Inner.Case != UpdateRedeem || msg.Inner.Redeem == nil {
		return swaperrors.New(swaperrors.KindUnexpectedMessageType,
			"expected Redeem in state %s", rec.State)
	}
	rec.MultisigPeer = msg.Inner.Redeem.RedeemParticipant
	return nil
}

// buildAcceptOfferMessage assembles the step-2 AcceptOffer message.
func buildAcceptOfferMessage(rec *TradeRecord) *Message {
	return &Message{
		ID: rec.SwapID,
		Inner: Update{
			Case: UpdateAcceptOffer,
			AcceptOffer: &AcceptOfferUpdate{
				Multisig:     rec.MultisigSelf,
				RedeemPublic: rec.RedeemPublicPeer,
			},
		},
		InnerSecondary: SecondaryUpdate{
			Case: SecondaryBTC,
			BTC: &BtcPayload{
				Accept: &BtcAcceptUpdate{ChangeAddress: rec.RefundAddress},
			},
		},
	}
}

// buildInitRedeemMessage assembles the step-4 InitRedeem message from
// the redeem slate under construction, sending the stored
// MultisigSelf.PartialSignature as the adaptor signature; it computes
// no signature itself.
func buildInitRedeemMessage(rec *TradeRecord) (*Message, error) {
	return &Message{
		ID: rec.SwapID,
		Inner: Update{
			Case: UpdateInitRedeem,
			InitRedeem: &InitRedeemUpdate{
				RedeemSlate:      rec.RedeemSlate,
				AdaptorSignature: rec.MultisigSelf.PartialSignature,
			},
		},
		InnerSecondary: SecondaryUpdate{Case: SecondaryEmpty},
	}, nil
}
