// Package bch implements secondary.Adapter for Bitcoin Cash, mirroring
// secondary/btc's HTLC script and fee sizing but through the gcash
// fork of the btcsuite stack (bchd's txscript/wire/chaincfg, bchutil's
// address/amount helpers, bchwallet's txrules), grounded on
// baby636-multiwallet's bitcoincash wallet.
package bch

import (
	"bytes"
	"context"
	"crypto/sha256"

	"github.com/gcash/bchd/bchec"
	"github.com/gcash/bchd/chaincfg"
	"github.com/gcash/bchd/chaincfg/chainhash"
	"github.com/gcash/bchd/txscript"
	"github.com/gcash/bchd/wire"
	"github.com/gcash/bchutil"
	"github.com/gcash/bchwallet/wallet/txrules"

	"github.com/lightningnetwork/lnswap/secondary"
	"github.com/lightningnetwork/lnswap/swaperrors"
)

// FeeRatePerKB mirrors secondary/btc.FeeRatePerKW; BCH blocks are
// sized differently but the CHECKLOCKTIMEVERIFY HTLC shape and fee
// model used here are otherwise identical to the BTC adapter.
const FeeRatePerKB bchutil.Amount = 1000

// Adapter is the Bitcoin Cash secondary.Adapter implementation.
type Adapter struct {
	Params *chaincfg.Params

	Broadcaster Broadcaster
	ChainSource ChainSource
}

// Broadcaster submits a raw transaction to the BCH network.
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

// htlcScript mirrors secondary/btc's htlcScript, using bchec/bchd's
// types in place of btcec/btcd's: the hash branch is the seller's
// redeem path (spec §4.4 build_redeem_tx) and the timeout branch is
// the buyer's refund path, since the buyer is the original owner who
// funded the output (spec §4.4 build_refund_tx).
func htlcScript(fs secondary.FundingScript) ([]byte, error) {
	if len(fs.HashImage) != sha256.Size {
		return nil, swaperrors.New(swaperrors.KindInvalidArgument, "hash image must be %d bytes", sha256.Size)
	}

	sellerKey, err := bchec.ParsePubKey(fs.SellerPubkey, bchec.S256())
	if err != nil {
		return nil, swaperrors.New(swaperrors.KindInvalidArgument, "invalid seller pubkey: %v", err)
	}
	buyerKey, err := bchec.ParsePubKey(fs.BuyerPubkey, bchec.S256())
	if err != nil {
		return nil, swaperrors.New(swaperrors.KindInvalidArgument, "invalid buyer pubkey: %v", err)
	}

	builder := txscript.NewScriptBuilder()

	builder.AddOp(txscript.OP_IF)
	builder.AddOp(txscript.OP_SHA256)
	builder.AddData(fs.HashImage)
	builder.AddOp(txscript.OP_EQUALVERIFY)
	builder.AddData(sellerKey.SerializeCompressed())
	builder.AddOp(txscript.OP_CHECKSIG)
	builder.AddOp(txscript.OP_ELSE)
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

	addr, err := bchutil.NewAddressScriptHash(script, a.Params)
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

func spendTx(funding secondary.FundingStatus, script []byte, dest bchutil.Address) (*wire.MsgTx, error) {
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

	if txrules.IsDustAmount(bchutil.Amount(funding.AmountSat), len(destScript), txrules.DefaultRelayFeePerKb) {
		return nil, swaperrors.New(swaperrors.KindChainFailure, "htlc output value %d is dust", funding.AmountSat)
	}

	outputValue := funding.AmountSat - int64(feeEstimate(len(script)))
	tx.AddTxOut(&wire.TxOut{Value: outputValue, PkScript: destScript})
	return tx, nil
}

func feeEstimate(scriptLen int) bchutil.Amount {
	const baseVBytes = 200
	return bchutil.Amount(baseVBytes+scriptLen) * FeeRatePerKB / 1000
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

	destAddr, err := bchutil.DecodeAddress(dest, a.Params)
	if err != nil {
		return nil, swaperrors.New(swaperrors.KindInvalidArgument, "invalid redeem destination: %v", err)
	}

	tx, err := spendTx(funding, script, destAddr)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := tx.BchEncode(&buf, wire.ProtocolVersion, wire.BaseEncoding); err != nil {
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

	destAddr, err := bchutil.DecodeAddress(dest, a.Params)
	if err != nil {
		return nil, swaperrors.New(swaperrors.KindInvalidArgument, "invalid refund destination: %v", err)
	}

	tx, err := spendTx(funding, script, destAddr)
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
	if err := tx.BchEncode(&buf, wire.ProtocolVersion, wire.BaseEncoding); err != nil {
		return nil, swaperrors.Wrap(swaperrors.KindFatal, err)
	}

	return buf.Bytes(), nil
}

// Broadcast implements secondary.Adapter.
func (a *Adapter) Broadcast(ctx context.Context, rawTx []byte) (string, error) {
	tx := wire.NewMsgTx(2)
	if err := tx.BchDecode(bytes.NewReader(rawTx), wire.ProtocolVersion, wire.BaseEncoding); err != nil {
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
