package swap

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/lightningnetwork/lnswap/swaperrors"
)

// ecdsaPubFromHex parses a serialized compressed/uncompressed
// secp256k1 public key for the step-5 adaptor signature gate
// (verifyAdaptorSignature); a parse failure is a CryptoFailure.
func ecdsaPubFromHex(b []byte) (*btcec.PublicKey, error) {
	pub, err := btcec.ParsePubKey(b)
	if err != nil {
		return nil, swaperrors.New(swaperrors.KindCryptoFailure, "invalid public key: %v", err)
	}
	return pub, nil
}

// redeemDigest derives the message digest the adaptor signature is
// computed over: the hash
// of the redeem slate under construction plus the swap-id, binding the
// signature to this specific trade and to the exact slate bytes both
// sides are building.
func redeemDigest(rec *TradeRecord) []byte {
	h := sha256.New()
	h.Write(rec.SwapID[:])
	h.Write(rec.RedeemSlate)
	sum := h.Sum(nil)
	return sum[:]
}

// deriveTxID stands in for the transaction id an MWC node would
// normally hand back from posting a slate: MWCClient.PostTx reports
// only success or failure, so the dispatcher fingerprints the swap-id,
// a step tag, and the exact slate bytes it posted instead. The tag
// keeps the lock/redeem/refund ids from ever colliding with one
// another even when the underlying slate bytes happen to coincide.
func deriveTxID(tag string, rec *TradeRecord, payload []byte) string {
	h := sha256.New()
	h.Write(rec.SwapID[:])
	h.Write([]byte(tag))
	h.Write(payload)
	sum := h.Sum(nil)
	return hex.EncodeToString(sum)
}
