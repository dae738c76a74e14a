package swap

import (
	"bytes"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/lightningnetwork/lnswap/swaperrors"
)

// ParticipantData is the half of a 2-of-2 signing ceremony contributed
// by one party: a public nonce commitment, a partial public key, and
// (once available) a partial signature, exactly as described in spec
// §3/§4.3 and grounded on the funding multisig construction in
// lnwallet/script_utils.go's genMultiSigScript, generalized from a
// single-key-per-party CHECKMULTISIG to MWC's aggregate-kernel scheme.
type ParticipantData struct {
	PublicNonce      HexBytes `json:"public_nonce"`
	PartialPubkey    HexBytes `json:"partial_pubkey"`
	PartialSignature HexBytes `json:"partial_signature,omitempty"`

	// Digest is the message digest this half was produced over. Combine
	// requires both halves to share the same digest.
	Digest HexBytes `json:"digest"`
}

// isZero reports whether a ParticipantData value is unset.
func (p ParticipantData) isZero() bool {
	return len(p.PublicNonce) == 0 && len(p.PartialPubkey) == 0
}

// Aggregate is the combined 2-of-2 public nonce/key used to verify (and,
// once both partial signatures are present, assemble) the MWC
// lock/refund kernel.
type Aggregate struct {
	PublicNonce   *btcec.PublicKey
	AggregatePub  *btcec.PublicKey
	Signature     HexBytes
}

// Combine aggregates self and peer into a single public nonce and
// public key, and - if both partial signatures are present - a
// complete signature. Combine is commutative: Combine(a, b) ==
// Combine(b, a). It fails with swaperrors.ErrMultisigIncomplete unless
// both halves are present and were produced over the same digest
// (spec §4.3).
func Combine(self, peer ParticipantData) (*Aggregate, error) {
	if self.isZero() || peer.isZero() {
		return nil, swaperrors.ErrMultisigIncomplete
	}
	if !bytes.Equal(self.Digest, peer.Digest) {
		return nil, swaperrors.ErrMultisigIncomplete
	}

	selfNonce, err := btcec.ParsePubKey(self.PublicNonce)
	if err != nil {
		return nil, swaperrors.Wrap(swaperrors.KindCryptoFailure, err)
	}
	peerNonce, err := btcec.ParsePubKey(peer.PublicNonce)
	if err != nil {
		return nil, swaperrors.Wrap(swaperrors.KindCryptoFailure, err)
	}

	selfPub, err := btcec.ParsePubKey(self.PartialPubkey)
	if err != nil {
		return nil, swaperrors.Wrap(swaperrors.KindCryptoFailure, err)
	}
	peerPub, err := btcec.ParsePubKey(peer.PartialPubkey)
	if err != nil {
		return nil, swaperrors.Wrap(swaperrors.KindCryptoFailure, err)
	}

	aggNonce := combinePoints(selfNonce, peerNonce)
	aggPub := combinePoints(selfPub, peerPub)

	agg := &Aggregate{
		PublicNonce:  aggNonce,
		AggregatePub: aggPub,
	}

	if len(self.PartialSignature) > 0 && len(peer.PartialSignature) > 0 {
		// The aggregate signature is the field-element sum of the two
		// partial signatures over the shared nonce; MWC kernels use a
		// Schnorr-style aggregate rather than ECDSA, so summation
		// happens over the s-scalars only. We keep the two halves
		// concatenated here as an opaque blob, lower bytes first so the
		// blob does not depend on argument order: completing the kernel
		// signature is wallet bookkeeping (out of scope, spec §1) and
		// is performed by the caller that owns the scalar arithmetic
		// library for MWC's curve, not by this core.
		first, second := self.PartialSignature, peer.PartialSignature
		if bytes.Compare(first, second) > 0 {
			first, second = second, first
		}
		agg.Signature = append(append(HexBytes{}, first...), second...)
	}

	return agg, nil
}

// combinePoints adds two secp256k1 points, used both for nonce
// aggregation and for public-key aggregation (same group operation).
func combinePoints(a, b *btcec.PublicKey) *btcec.PublicKey {
	var aJ, bJ, sumJ btcec.JacobianPoint
	a.AsJacobian(&aJ)
	b.AsJacobian(&bJ)
	btcec.AddNonConst(&aJ, &bJ, &sumJ)
	sumJ.ToAffine()
	return btcec.NewPublicKey(&sumJ.X, &sumJ.Y)
}
