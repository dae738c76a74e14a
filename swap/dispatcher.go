package swap

import (
	"context"
	"fmt"
	"sync"

	"github.com/lightningnetwork/lnswap/currency"
	"github.com/lightningnetwork/lnswap/secondary"
	"github.com/lightningnetwork/lnswap/swaperrors"
)

// SecondaryAdapter is the subset of secondary.Adapter the dispatcher
// needs to turn a Locked/Redeem/Refund Action into an on-chain
// broadcast (spec §4.4/§4.7): observing the HTLC funding output and
// building the real redeem/refund transaction that spends it, rather
// than broadcasting the bare script.
type SecondaryAdapter interface {
	ObserveFunding(ctx context.Context, script *secondary.BuiltScript) (*secondary.FundingStatus, error)
	BuildRedeemTx(fs secondary.FundingScript, funding secondary.FundingStatus, preimage []byte, dest string) ([]byte, error)
	BuildRefundTx(fs secondary.FundingScript, funding secondary.FundingStatus, dest string) ([]byte, error)
	Broadcast(ctx context.Context, tx []byte) (txid string, err error)
	Confirmations(ctx context.Context, txid string) (uint64, error)
}

// Dispatcher executes the Action returned by Step, translating the
// state machine's pure decisions into the side effects of spec §4.7:
// sending a message, broadcasting a transaction on either chain, or
// doing nothing. It is the only component in this module that is
// allowed to perform network I/O, and it never holds a TradeRecord's
// lock while doing so (spec §5).
//
// Idempotency (spec §4.7 "Dispatch must be idempotent per (swap_id,
// step)"): Dispatch remembers each (swap-id, state, action-kind) key
// it has executed in an in-memory set and skips a repeat of the same
// key. The set lives only as long as the Dispatcher and is not
// persisted, so it does not survive a process restart.
type Dispatcher struct {
	Transport Transport
	MWC       MWCClient
	Secondary map[currency.Currency]SecondaryAdapter

	mu     sync.Mutex
	done   map[string]bool
}

// NewDispatcher builds a Dispatcher wired to the given transports and
// chain clients (spec §6).
func NewDispatcher(transport Transport, mwc MWCClient, secondaries map[currency.Currency]SecondaryAdapter) *Dispatcher {
	return &Dispatcher{
		Transport: transport,
		MWC:       mwc,
		Secondary: secondaries,
		done:      make(map[string]bool),
	}
}

// idempotencyKey identifies one (swap-id, step, action-kind) triple.
func idempotencyKey(rec *TradeRecord, act Action) string {
	return fmt.Sprintf("%s/%s/%d", rec.SwapID, rec.State, act.Kind)
}

// Dispatch executes act on behalf of rec. It must be called with
// rec's lock released (spec §5): Dispatch performs network I/O and
// must never be invoked while the caller holds rec.Lock().
func (d *Dispatcher) Dispatch(ctx context.Context, rec *TradeRecord, act Action) error {
	if act.Kind == ActionNone || act.Kind == ActionWait {
		return nil
	}

	key := idempotencyKey(rec, act)
	d.mu.Lock()
	if d.done[key] {
		d.mu.Unlock()
		return nil
	}
	d.mu.Unlock()

	var err error
	switch act.Kind {
	case ActionSendMessage:
		err = d.dispatchSendMessage(ctx, act)

	case ActionBroadcastPrimary:
		err = d.dispatchBroadcastPrimary(ctx, rec, act)

	case ActionBroadcastSecondary:
		err = d.dispatchBroadcastSecondary(ctx, rec, act)

	case ActionPublishRedeem:
		err = d.dispatchPublishRedeem(ctx, rec)

	case ActionPublishRefund:
		err = d.dispatchPublishRefund(ctx, rec, act)

	default:
		err = swaperrors.New(swaperrors.KindFatal, "dispatcher: unknown action kind %d", act.Kind)
	}

	if err != nil {
		return err
	}

	d.mu.Lock()
	d.done[key] = true
	d.mu.Unlock()
	return nil
}

func (d *Dispatcher) dispatchSendMessage(ctx context.Context, act Action) error {
	if d.Transport == nil {
		return swaperrors.New(swaperrors.KindFatal, "dispatcher: no transport configured")
	}
	ack, err := d.Transport.Send(ctx, act.Message)
	if err != nil {
		return swaperrors.Wrap(swaperrors.KindTransportFailure, err)
	}
	if !ack {
		return swaperrors.New(swaperrors.KindTransportFailure, "message %s was not acknowledged", act.Message.ID)
	}
	return nil
}

func (d *Dispatcher) dispatchBroadcastPrimary(ctx context.Context, rec *TradeRecord, act Action) error {
	if d.MWC == nil {
		return swaperrors.New(swaperrors.KindFatal, "dispatcher: no MWC client configured")
	}
	if err := d.MWC.PostTx(ctx, act.Tx, true); err != nil {
		return swaperrors.Wrap(swaperrors.KindChainFailure, err)
	}
	rec.MWCLockTxID = deriveTxID("lock", rec, act.Tx)
	return nil
}

// fundingScriptFor and builtScriptFor translate a record's persisted
// SecondaryScript into the per-call types secondary.Adapter expects.
func fundingScriptFor(rec *TradeRecord) secondary.FundingScript {
	return secondary.FundingScript{
		SellerPubkey: rec.SecondaryScript.SellerPubkey,
		BuyerPubkey:  rec.SecondaryScript.BuyerPubkey,
		HashImage:    rec.SecondaryScript.HashImage,
		LockHeight:   rec.SecondaryScript.LockHeight,
		LockTime:     rec.SecondaryScript.LockTime,
	}
}

func builtScriptFor(rec *TradeRecord) *secondary.BuiltScript {
	return &secondary.BuiltScript{
		RedeemScript: rec.SecondaryScript.RedeemScript,
		Address:      rec.SecondaryScript.Address,
	}
}

// dispatchBroadcastSecondary executes ActionBroadcastSecondary, which
// carries a different on-chain meaning per role: the buyer funds the
// HTLC output (a plain payment their own wallet already built and
// signed, carried in act.Tx - secondary.Adapter has no coin-selecting
// funding builder, spec §9's txauthor note), while the seller spends it
// via the hash-image branch (spec §4.4 build_redeem_tx).
func (d *Dispatcher) dispatchBroadcastSecondary(ctx context.Context, rec *TradeRecord, act Action) error {
	adapter, ok := d.Secondary[rec.SecondaryCurrency]
	if !ok {
		return swaperrors.New(swaperrors.KindUnexpectedCoinType,
			"no secondary adapter configured for %s", rec.SecondaryCurrency)
	}

	switch rec.Role {
	case RoleBuyer:
		txid, err := adapter.Broadcast(ctx, act.Tx)
		if err != nil {
			return swaperrors.Wrap(swaperrors.KindChainFailure, err)
		}
		rec.SecondaryLockTxID = txid
		return nil

	case RoleSeller:
		funding, err := adapter.ObserveFunding(ctx, builtScriptFor(rec))
		if err != nil {
			return swaperrors.Wrap(swaperrors.KindChainFailure, err)
		}
		if !funding.Found {
			return swaperrors.New(swaperrors.KindChainFailure, "secondary funding output not yet observed")
		}
		tx, err := adapter.BuildRedeemTx(fundingScriptFor(rec), *funding, rec.Preimage, rec.RefundAddress)
		if err != nil {
			return err
		}
		txid, err := adapter.Broadcast(ctx, tx)
		if err != nil {
			return swaperrors.Wrap(swaperrors.KindChainFailure, err)
		}
		rec.SecondaryRedeemTxID = txid
		return nil

	default:
		return swaperrors.New(swaperrors.KindFatal, "dispatcher: unknown role")
	}
}

func (d *Dispatcher) dispatchPublishRedeem(ctx context.Context, rec *TradeRecord) error {
	if d.MWC == nil {
		return swaperrors.New(swaperrors.KindFatal, "dispatcher: no MWC client configured")
	}
	if err := d.MWC.PostTx(ctx, rec.RedeemSlate, true); err != nil {
		return swaperrors.Wrap(swaperrors.KindChainFailure, err)
	}
	rec.MWCRedeemTxID = deriveTxID("redeem", rec, rec.RedeemSlate)
	return nil
}

func (d *Dispatcher) dispatchPublishRefund(ctx context.Context, rec *TradeRecord, act Action) error {
	switch rec.Role {
	case RoleSeller:
		if d.MWC == nil {
			return swaperrors.New(swaperrors.KindFatal, "dispatcher: no MWC client configured")
		}
		if err := d.MWC.PostTx(ctx, act.Tx, true); err != nil {
			return swaperrors.Wrap(swaperrors.KindChainFailure, err)
		}
		rec.MWCRefundTxID = deriveTxID("refund", rec, act.Tx)
		return nil

	case RoleBuyer:
		adapter, ok := d.Secondary[rec.SecondaryCurrency]
		if !ok {
			return swaperrors.New(swaperrors.KindUnexpectedCoinType,
				"no secondary adapter configured for %s", rec.SecondaryCurrency)
		}
		funding, err := adapter.ObserveFunding(ctx, builtScriptFor(rec))
		if err != nil {
			return swaperrors.Wrap(swaperrors.KindChainFailure, err)
		}
		if !funding.Found {
			return swaperrors.New(swaperrors.KindChainFailure, "secondary funding output not yet observed")
		}
		tx, err := adapter.BuildRefundTx(fundingScriptFor(rec), *funding, rec.RefundAddress)
		if err != nil {
			return err
		}
		txid, err := adapter.Broadcast(ctx, tx)
		if err != nil {
			return swaperrors.Wrap(swaperrors.KindChainFailure, err)
		}
		rec.SecondaryRefundTxID = txid
		return nil

	default:
		return swaperrors.New(swaperrors.KindFatal, "dispatcher: unknown role")
	}
}
