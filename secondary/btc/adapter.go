// Package btc implements secondary.Adapter for Bitcoin, grounded on
// lnwallet/script_utils.go's HTLC script builders (generalized from a
// commitment-transaction HTLC to a standalone two-branch swap HTLC)
// and on sweep/txgenerator.go's fee/dust sizing via
// btcwallet/wallet/txrules.
package btc

import (
	"bytes"
	"context"
	"crypto/sha256"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/wallet/txrules"

	"github.com/lightningnetwork/lnswap/secondary"
	"github.com/lightningnetwork/lnswap/swaperrors"
)

// FeeRatePerKW is the fixed fee rate this adapter uses when sizing
// redeem and refund transactions (spec §4.4); the adapter has no fee
// estimator.
const FeeRatePerKW btcutil.Amount = 2000

// Adapter is the Bitcoin secondary.Adapter implementation.
type Adapter struct {
	Params *chaincfg.Params

	// Broadcaster and ChainSource abstract the full-node RPC surface;
	// the caller supplies implementations backed by its own node
	// client, and tests supply fakes (spec §6).
	Broadcaster Broadcaster
	ChainSource ChainSource
}

// Broadcaster submits a raw transaction to the Bitcoin network.
type Broadcaster interface {
	SendRawTransaction(tx *wire.MsgTx) (string, error)
}

// ChainSource looks up confirmation and output status for the HTLC
// funding transaction.
type ChainSource interface {
	TxConfirmations(ctx context.Context, txid string) (uint64, error)
	FindOutput(ctx context.Context, address string) (txid string, amountSat int64, found bool, err error)
}

var _ secondary.Adapter = (*Adapter)(nil)

// htlcScript builds the two-branch HTLC redeem script: the hash branch
// (seller redeems with the preimage, spec §4.4 build_redeem_tx) and the
// timeout branch (buyer, the original owner who funded the output,
// reclaims after the lock expires, spec §4.4 build_refund_tx),
// generalizing senderHTLCScript's OP_IF/OP_ELSE shape down to the two
// branches this protocol needs - there is no revocation branch, since
// there is no commitment transaction here.
func htlcScript(fs secondary.FundingScript) ([]byte, error) {
	if len(fs.HashImage) != sha256.Size {
		return nil, swaperrors.New(swaperrors.KindInvalidArgument, "hash image must be %d bytes", sha256.Size)
	}

	sellerKey, err := btcec.ParsePubKey(fs.SellerPubkey)
	if err != nil {
		return nil, swaperrors.New(swaperrors.KindInvalidArgument, "invalid seller pubkey: %v", err)
	}
	buyerKey, err := btcec.ParsePubKey(fs.BuyerPubkey)
	if err != nil {
		return nil, swaperrors.New(swaperrors.KindInvalidArgument, "invalid buyer pubkey: %v", err)
	}

	builder := txscript.NewScriptBuilder()

	builder.AddOp(txscript.OP_IF)
	// Seller redeem branch: reveal the preimage, sign with the seller key.
	builder.AddOp(txscript.OP_SHA256)
	builder.AddData(fs.HashImage)
	builder.AddOp(txscript.OP_EQUALVERIFY)
	builder.AddData(sellerKey.SerializeCompressed())
	builder.AddOp(txscript.OP_CHECKSIG)
	builder.AddOp(txscript.OP_ELSE)
	// Buyer refund branch: wait for the lock, sign with the buyer key.
	if fs.LockTime != 0 {
		builder.AddInt64(int64(fs.LockTime))
	} else {
		builder.AddInt64(int64(fs.LockHeight))
	}
	builder.AddOp(txscript.OP_CHECKLOCKTIMEVERIFY)
	builder.AddOp(txscript.OP_DROP)
	builder.AddData(buyerKey.SerializeCompressed())
	builder.AddOp(txscript.OP_CHECKSIG)
	builder.AddOp(txscript.OP_ENDIF)

	return builder.Script()
}

// BuildScript implements secondary.Adapter.
func (a *Adapter) BuildScript(fs secondary.FundingScript) (*secondary.BuiltScript, error) {
	script, err := htlcScript(fs)
	if err != nil {
		return nil, err
	}

	scriptHash := btcutil.Hash160(script)
	addr, err := btcutil.NewAddressScriptHashFromHash(scriptHash, a.Params)
	if err != nil {
		return nil, swaperrors.Wrap(swaperrors.KindCryptoFailure, err)
	}

	return &secondary.BuiltScript{
		RedeemScript: script,
		Address:      addr.EncodeAddress(),
	}, nil
}

// ObserveFunding implements secondary.Adapter.
func (a *Adapter) ObserveFunding(ctx context.Context, script *secondary.BuiltScript) (*secondary.FundingStatus, error) {
	txid, amount, found, err := a.ChainSource.FindOutput(ctx, script.Address)
	if err != nil {
		return nil, swaperrors.Wrap(swaperrors.KindChainFailure, err)
	}
	if !found {
		return &secondary.FundingStatus{Found: false}, nil
	}

	confs, err := a.ChainSource.TxConfirmations(ctx, txid)
	if err != nil {
		return nil, swaperrors.Wrap(swaperrors.KindChainFailure, err)
	}

	return &secondary.FundingStatus{
		Found:         true,
		TxID:          txid,
		Confirmations: confs,
		AmountSat:     amount,
	}, nil
}

// spendTx builds the shared skeleton for both redeem and refund
// transactions: a single input spending the HTLC output, a single
// output paying dest, sized via txrules.GetDustThreshold the way
// sweep/txgenerator.go sizes its own sweep outputs.
func spendTx(funding secondary.FundingStatus, script []byte, dest btcutil.Address, net *chaincfg.Params) (*wire.MsgTx, error) {
	txidHash, err := chainhash.NewHashFromStr(funding.TxID)
	if err != nil {
		return nil, swaperrors.New(swaperrors.KindInvalidArgument, "invalid txid %q: %v", funding.TxID, err)
	}

	tx := wire.NewMsgTx(2)
	tx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: wire.OutPoint{Hash: *txidHash, Index: 0},
	})

	destScript, err := txscript.PayToAddrScript(dest)
	if err != nil {
		return nil, swaperrors.Wrap(swaperrors.KindInvalidArgument, err)
	}

	dust := txrules.GetDustThreshold(int64(len(destScript))+8, txrules.DefaultRelayFeePerKb)
	outputValue := funding.AmountSat - int64(feeEstimate(len(script)))
	if outputValue < int64(dust) {
		return nil, swaperrors.New(swaperrors.KindChainFailure,
			"htlc output value %d below dust threshold %d after fees", outputValue, dust)
	}

	tx.AddTxOut(&wire.TxOut{Value: outputValue, PkScript: destScript})
	return tx, nil
}

// feeEstimate approximates the marginal fee for spending the HTLC
// script, sized the way sweep/txgenerator.go estimates witness/input
// weight, simplified to a flat per-byte-of-redeem-script model since
// this adapter does not aggregate multiple sweepable inputs.
func feeEstimate(scriptLen int) btcutil.Amount {
	const baseVBytes = 200
	return btcutil.Amount(baseVBytes+scriptLen) * FeeRatePerKW / 1000
}

// BuildRedeemTx implements secondary.Adapter.
func (a *Adapter) BuildRedeemTx(fs secondary.FundingScript, funding secondary.FundingStatus, preimage []byte, dest string) ([]byte, error) {
	if !funding.Found {
		return nil, swaperrors.New(swaperrors.KindInvalidArgument, "no funding output to redeem")
	}

	script, err := htlcScript(fs)
	if err != nil {
		return nil, err
	}

	destAddr, err := btcutil.DecodeAddress(dest, a.Params)
	if err != nil {
		return nil, swaperrors.New(swaperrors.KindInvalidArgument, "invalid redeem destination: %v", err)
	}

	tx, err := spendTx(funding, script, destAddr, a.Params)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return nil, swaperrors.Wrap(swaperrors.KindFatal, err)
	}

	return buf.Bytes(), nil
}

// BuildRefundTx implements secondary.Adapter.
func (a *Adapter) BuildRefundTx(fs secondary.FundingScript, funding secondary.FundingStatus, dest string) ([]byte, error) {
	if !funding.Found {
		return nil, swaperrors.New(swaperrors.KindInvalidArgument, "no funding output to refund")
	}

	script, err := htlcScript(fs)
	if err != nil {
		return nil, err
	}

	destAddr, err := btcutil.DecodeAddress(dest, a.Params)
	if err != nil {
		return nil, swaperrors.New(swaperrors.KindInvalidArgument, "invalid refund destination: %v", err)
	}

	tx, err := spendTx(funding, script, destAddr, a.Params)
	if err != nil {
		return nil, err
	}

	if fs.LockTime != 0 {
		tx.LockTime = fs.LockTime
	} else {
		tx.LockTime = fs.LockHeight
	}
	tx.TxIn[0].Sequence = wire.MaxTxInSequenceNum - 1

	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return nil, swaperrors.Wrap(swaperrors.KindFatal, err)
	}

	return buf.Bytes(), nil
}

// Broadcast implements secondary.Adapter.
func (a *Adapter) Broadcast(ctx context.Context, rawTx []byte) (string, error) {
	tx := wire.NewMsgTx(2)
	if err := tx.Deserialize(bytes.NewReader(rawTx)); err != nil {
		return "", swaperrors.New(swaperrors.KindInvalidArgument, "malformed transaction: %v", err)
	}

	txid, err := a.Broadcaster.SendRawTransaction(tx)
	if err != nil {
		return "", swaperrors.Wrap(swaperrors.KindChainFailure, err)
	}
	return txid, nil
}

// Confirmations implements secondary.Adapter.
func (a *Adapter) Confirmations(ctx context.Context, txid string) (uint64, error) {
	confs, err := a.ChainSource.TxConfirmations(ctx, txid)
	if err != nil {
		return 0, swaperrors.Wrap(swaperrors.KindChainFailure, err)
	}
	return confs, nil
}
