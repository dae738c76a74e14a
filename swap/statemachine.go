package swap

import (
	"context"
	"time"

	"github.com/lightningnetwork/lnswap/build"
	"github.com/lightningnetwork/lnswap/swaperrors"
)

var log = build.NewSubLogger("SWAP")

// EventKind discriminates the Event sum type of spec §4.6.
type EventKind byte

const (
	EventMessageReceived EventKind = iota
	EventTick
	EventUserAdjust
)

// ChainHeights snapshots both chain tips as observed by a Tick (spec §4.6).
type ChainHeights struct {
	MWCHeight       uint64
	SecondaryHeight uint64

	MWCConfirmations       uint64
	SecondaryConfirmations uint64
}

// Event is the input to Step (spec §4.6).
type Event struct {
	Kind EventKind

	Message *Message
	Now     time.Time
	Heights ChainHeights

	AdjustTarget State
}

// ActionKind discriminates the Action sum type of spec §4.6.
type ActionKind byte

const (
	ActionNone ActionKind = iota
	ActionSendMessage
	ActionBroadcastPrimary
	ActionBroadcastSecondary
	ActionPublishRedeem
	ActionPublishRefund
	ActionWait
)

// Action is the output of Step describing the side effect C7 must
// perform (spec §4.6).
type Action struct {
	Kind    ActionKind
	Message *Message
	Tx      []byte
}

// Step is the deterministic (state, event) -> (state, action,
// next-deadline) transition function of spec §4.6, dispatching to the
// role-specific pure functions chosen by rec.Role — no interface-based
// dynamic dispatch, per the design note in spec §9.
func Step(rec *TradeRecord, ev Event) (Action, time.Time, error) {
	if rec.Frozen {
		return Action{Kind: ActionNone}, rec.StartTime, swaperrors.New(swaperrors.KindFatal,
			"trade %s is frozen, no further automation", rec.SwapID)
	}

	if ev.Kind == EventUserAdjust {
		return adjust(rec, ev.AdjustTarget)
	}

	var (
		action   Action
		deadline time.Time
		err      error
	)

	switch rec.Role {
	case RoleSeller:
		action, deadline, err = sellerStep(rec, ev)
	case RoleBuyer:
		action, deadline, err = buyerStep(rec, ev)
	default:
		return Action{Kind: ActionNone}, rec.StartTime, swaperrors.New(swaperrors.KindFatal, "unknown role")
	}

	if swaperrors.Is(err, swaperrors.KindFatal) {
		rec.Frozen = true
	}
	return action, deadline, err
}

// tieBreak implements the ordering rule of spec §4.6: if both a
// deadline and a valid incoming message are true in one Tick, the
// deadline wins only if the message would NOT complete the current
// step; otherwise the message wins. messageCompletes is supplied by
// each role-step's handling of the expected message for its current
// state.
func tieBreak(deadlineExpired, haveValidMessage, messageCompletesStep bool) (useDeadline bool) {
	if !deadlineExpired {
		return false
	}
	if haveValidMessage && messageCompletesStep {
		return false
	}
	return true
}

// whitelistFor returns the set of Adjust targets reachable from
// current without violating monotonic confirmation observations (spec
// §4.6 Adjust). The whitelist intentionally never includes Completed,
// since reaching Completed always requires an on-chain observation,
// never an operator override.
func whitelistFor(rec *TradeRecord) map[State]bool {
	switch rec.State {
	case StateCreated, StateOfferSent, StateOffered, StateAccepted:
		return map[State]bool{StateCancelled: true}

	case StateMWCLocking, StateMWCLocked, StateLocked,
		StateInitRedeem, StateInitRedeemSent:
		wl := map[State]bool{}
		if rec.Role == RoleSeller {
			wl[StateSellerWaitingForRefund] = true
		} else {
			wl[StateBuyerWaitingForRefund] = true
		}
		return wl

	case StateRedeem, StateRedeemReady:
		wl := map[State]bool{}
		if rec.Role == RoleSeller {
			wl[StateSellerWaitingForRefund] = true
		} else {
			wl[StateBuyerWaitingForRefund] = true
		}
		return wl

	case StateSellerWaitingForRefund:
		return map[State]bool{StateRefunded: true}

	case StateBuyerWaitingForRefund:
		return map[State]bool{StateRefunded: true}

	default:
		return map[State]bool{}
	}
}

// adjust implements the operator override of spec §4.6: a target not
// in the whitelist for the current state returns InvalidAdjust.
func adjust(rec *TradeRecord, target State) (Action, time.Time, error) {
	wl := whitelistFor(rec)
	if !wl[target] {
		return Action{Kind: ActionNone}, rec.StartTime, swaperrors.ErrInvalidAdjust
	}

	rec.AddJournal("adjust", "operator forced state %s -> %s", rec.State, target)
	rec.State = target

	switch target {
	case StateSellerWaitingForRefund:
		return Action{Kind: ActionWait}, rec.MWCLockDeadline(), nil
	case StateBuyerWaitingForRefund:
		return Action{Kind: ActionWait}, rec.MWCLockDeadline(), nil
	case StateCancelled, StateRefunded:
		return Action{Kind: ActionNone}, rec.StartTime, nil
	default:
		return Action{Kind: ActionWait}, rec.StartTime, nil
	}
}

// Adjust is the public C6 operation an operator invokes directly (spec
// §4.6, §6 operator surface "adjust").
func Adjust(rec *TradeRecord, target State) (Action, time.Time, error) {
	return adjust(rec, target)
}

// contextDeadline returns ctx bounded by d. Nothing in this module
// calls it.
func contextDeadline(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, d)
}
