package swap

import (
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lightningnetwork/lnswap/currency"
	"github.com/lightningnetwork/lnswap/swaperrors"
)

// TestSellerHappyPath drives a seller-role record through every step of
// the protocol table (spec §4.6, §8 scenario "happy path seller") up to
// completion, checking the action and state produced at each Step call.
func TestSellerHappyPath(t *testing.T) {
	t.Parallel()

	start := time.Now().UTC()
	rec, err := NewSellerRecord(uuid.New(), currency.Floonet, 1_000_000, 50_000,
		currency.BTC, true, 10, 3, 600, 1800, start)
	require.NoError(t, err)

	// Step 1: Created -> OfferSent.
	action, _, err := Step(rec, Event{Kind: EventTick, Now: start})
	require.NoError(t, err)
	assert.Equal(t, StateOfferSent, rec.State)
	assert.Equal(t, ActionSendMessage, action.Kind)
	require.NotNil(t, action.Message)
	assert.Equal(t, UpdateOffer, action.Message.Inner.Case)

	// Step 2: buyer's AcceptOffer arrives -> Accepted.
	accept := &Message{
		ID: rec.SwapID,
		Inner: Update{
			Case: UpdateAcceptOffer,
			AcceptOffer: &AcceptOfferUpdate{
				Multisig:     ParticipantData{PublicNonce: []byte{1}, PartialPubkey: []byte{2}},
				RedeemPublic: nil,
			},
		},
		InnerSecondary: SecondaryUpdate{
			Case: SecondaryBTC,
			BTC:  &BtcPayload{Accept: &BtcAcceptUpdate{ChangeAddress: "bcrt1qbuyer"}},
		},
	}
	_, _, err = Step(rec, Event{Kind: EventMessageReceived, Message: accept, Now: start})
	require.NoError(t, err)
	assert.Equal(t, StateAccepted, rec.State)

	// Step 3: seller_lock_first broadcasts the MWC lock -> MwcLocking.
	action, _, err = Step(rec, Event{Kind: EventTick, Now: start})
	require.NoError(t, err)
	assert.Equal(t, StateMWCLocking, rec.State)
	assert.Equal(t, ActionBroadcastPrimary, action.Kind)

	// Confirmations accumulate until the required threshold -> Locked.
	_, _, err = Step(rec, Event{Kind: EventTick, Now: start, Heights: ChainHeights{MWCConfirmations: 5}})
	require.NoError(t, err)
	assert.Equal(t, StateMWCLocking, rec.State)

	_, _, err = Step(rec, Event{Kind: EventTick, Now: start, Heights: ChainHeights{MWCConfirmations: 10}})
	require.NoError(t, err)
	assert.Equal(t, StateLocked, rec.State)

	// Step 4/5: valid InitRedeem with a verifiable adaptor signature ->
	// InitRedeem, sending the seller's own Redeem message.
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	rec.RedeemPublicPeer = priv.PubKey().SerializeCompressed()
	redeemSlate := []byte("redeem-slate-bytes")

	digest := func() []byte {
		rec.RedeemSlate = redeemSlate
		return redeemDigest(rec)
	}()
	sig := ecdsa.Sign(priv, digest)

	initRedeem := &Message{
		ID: rec.SwapID,
		Inner: Update{
			Case: UpdateInitRedeem,
			InitRedeem: &InitRedeemUpdate{
				RedeemSlate:      redeemSlate,
				AdaptorSignature: sig.Serialize(),
			},
		},
		InnerSecondary: SecondaryUpdate{Case: SecondaryEmpty},
	}
	action, _, err = Step(rec, Event{Kind: EventMessageReceived, Message: initRedeem, Now: start})
	require.NoError(t, err)
	assert.Equal(t, StateInitRedeem, rec.State)
	assert.Equal(t, ActionSendMessage, action.Kind)

	// Step 6: observe the secondary redeem -> Completed.
	_, _, err = Step(rec, Event{Kind: EventTick, Now: start})
	require.NoError(t, err)
	assert.Equal(t, StateRedeem, rec.State)

	rec.SecondaryRedeemTxID = "deadbeef"
	_, _, err = Step(rec, Event{
		Kind: EventTick, Now: start,
		Heights: ChainHeights{SecondaryConfirmations: 3},
	})
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, rec.State)
}

// TestSellerArmsRefundOnTamperedAdaptorSignature exercises the spec §8
// scenario where the counterparty's adaptor signature fails
// verification: the seller must arm the refund branch rather than
// cancel or panic.
func TestSellerArmsRefundOnTamperedAdaptorSignature(t *testing.T) {
	t.Parallel()

	start := time.Now().UTC()
	rec, err := NewSellerRecord(uuid.New(), currency.Floonet, 1_000_000, 50_000,
		currency.BTC, true, 10, 3, 600, 1800, start)
	require.NoError(t, err)
	rec.State = StateLocked

	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	rec.RedeemPublicPeer = priv.PubKey().SerializeCompressed()

	otherPriv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	badSig := ecdsa.Sign(otherPriv, redeemDigest(rec))

	tampered := &Message{
		ID: rec.SwapID,
		Inner: Update{
			Case: UpdateInitRedeem,
			InitRedeem: &InitRedeemUpdate{
				RedeemSlate:      []byte("slate"),
				AdaptorSignature: badSig.Serialize(),
			},
		},
		InnerSecondary: SecondaryUpdate{Case: SecondaryEmpty},
	}

	_, _, err = Step(rec, Event{Kind: EventMessageReceived, Message: tampered, Now: start})
	require.NoError(t, err)
	assert.Equal(t, StateSellerWaitingForRefund, rec.State)
}

// TestSellerCancelsWithoutAcceptOfferBeforeDeadline exercises the spec
// §8 scenario "counterparty disappears" pre-lock: no AcceptOffer
// arrives before the step-1 deadline, so the trade cancels instead of
// hanging forever.
func TestSellerCancelsWithoutAcceptOfferBeforeDeadline(t *testing.T) {
	t.Parallel()

	start := time.Now().UTC()
	rec, err := NewSellerRecord(uuid.New(), currency.Floonet, 1_000_000, 50_000,
		currency.BTC, true, 10, 3, 600, 1800, start)
	require.NoError(t, err)
	rec.State = StateOfferSent

	past := rec.StepDeadline(1).Add(time.Second)
	_, _, err = Step(rec, Event{Kind: EventTick, Now: past})
	require.NoError(t, err)
	assert.Equal(t, StateCancelled, rec.State)
}

// TestMessageReplayIsIgnoredOutsideExpectedState exercises the spec §8
// scenario "message replay": resending an already-applied AcceptOffer
// once the trade has moved past StateOfferSent must not regress state
// or error out, since it is not the expected message for the current
// state.
func TestMessageReplayIsIgnoredOutsideExpectedState(t *testing.T) {
	t.Parallel()

	start := time.Now().UTC()
	rec, err := NewSellerRecord(uuid.New(), currency.Floonet, 1_000_000, 50_000,
		currency.BTC, true, 10, 3, 600, 1800, start)
	require.NoError(t, err)
	rec.State = StateAccepted

	replay := &Message{
		ID: rec.SwapID,
		Inner: Update{
			Case: UpdateAcceptOffer,
			AcceptOffer: &AcceptOfferUpdate{
				Multisig: ParticipantData{PublicNonce: []byte{1}, PartialPubkey: []byte{2}},
			},
		},
		InnerSecondary: SecondaryUpdate{
			Case: SecondaryBTC,
			BTC:  &BtcPayload{Accept: &BtcAcceptUpdate{ChangeAddress: "bcrt1qbuyer"}},
		},
	}

	action, _, err := Step(rec, Event{Kind: EventMessageReceived, Message: replay, Now: start})
	require.NoError(t, err)
	assert.Equal(t, StateAccepted, rec.State)
	assert.Equal(t, ActionNone, action.Kind)
}

// TestBuyerRejectsWrongSecondaryCurrency exercises the spec §8 scenario
// "wrong secondary currency": an Offer whose inner_secondary case
// doesn't match its declared secondary_currency must be rejected as
// UnexpectedCoinType before any funds move.
func TestBuyerRejectsWrongSecondaryCurrency(t *testing.T) {
	t.Parallel()

	rec := NewBuyerRecord(uuid.New(), "bcrt1qbuyerrefund")

	offer := &Message{
		ID: rec.SwapID,
		Inner: Update{
			Case: UpdateOffer,
			Offer: &OfferUpdate{
				StartTime:                          time.Now().UTC(),
				Version:                            1,
				NetworkName:                        "floonet",
				PrimaryAmount:                      1_000_000,
				SecondaryAmount:                    50_000,
				SecondaryCurrency:                  "BCH",
				RequiredMWCLockConfirmations:       10,
				RequiredSecondaryLockConfirmations: 3,
				MWCLockTimeSeconds:                 1800,
				SellerRedeemTime:                   1800,
			},
		},
		// A BTC secondary payload accompanying a declared BCH currency.
		InnerSecondary: SecondaryUpdate{
			Case: SecondaryBTC,
			BTC:  &BtcPayload{Offer: &BtcOfferUpdate{RefundAddress: "1BvBMSEYstWetqTFn5Au4m4GFg7xJaNVN2"}},
		},
	}

	_, _, err := Step(rec, Event{Kind: EventMessageReceived, Message: offer, Now: time.Now()})
	require.Error(t, err)
	assert.True(t, swaperrors.Is(err, swaperrors.KindUnexpectedCoinType))
	assert.Equal(t, StateCreated, rec.State)
}

// TestBuyerHappyPath mirrors TestSellerHappyPath from the buyer's side,
// through receipt of Offer up to broadcasting the secondary lock.
func TestBuyerHappyPath(t *testing.T) {
	t.Parallel()

	start := time.Now().UTC()
	rec := NewBuyerRecord(uuid.New(), "bcrt1qbuyerrefund")

	offer := &Message{
		ID: rec.SwapID,
		Inner: Update{
			Case: UpdateOffer,
			Offer: &OfferUpdate{
				StartTime:                          start,
				Version:                            1,
				NetworkName:                        "floonet",
				PrimaryAmount:                      1_000_000,
				SecondaryAmount:                    50_000,
				SecondaryCurrency:                  "BTC",
				RequiredMWCLockConfirmations:       10,
				RequiredSecondaryLockConfirmations: 3,
				MWCLockTimeSeconds:                 1800,
				SellerRedeemTime:                   1800,
			},
		},
		InnerSecondary: SecondaryUpdate{
			Case: SecondaryBTC,
			BTC:  &BtcPayload{Offer: &BtcOfferUpdate{RefundAddress: "1BvBMSEYstWetqTFn5Au4m4GFg7xJaNVN2"}},
		},
	}

	_, _, err := Step(rec, Event{Kind: EventMessageReceived, Message: offer, Now: start})
	require.NoError(t, err)
	assert.Equal(t, StateOffered, rec.State)
	assert.Equal(t, currency.BTC, rec.SecondaryCurrency)

	action, _, err := Step(rec, Event{Kind: EventTick, Now: start})
	require.NoError(t, err)
	assert.Equal(t, StateAccepted, rec.State)
	assert.Equal(t, ActionSendMessage, action.Kind)

	// The Offer carries no seller_lock_first, so the buyer record keeps
	// its zero value (false) and the buyer proceeds straight to
	// broadcasting its own lock.
	action, _, err = Step(rec, Event{Kind: EventTick, Now: start})
	require.NoError(t, err)
	assert.Equal(t, StateMWCLocked, rec.State)
	assert.Equal(t, ActionBroadcastSecondary, action.Kind)
}

func TestAdjustWhitelistRejectsOutOfPolicyTarget(t *testing.T) {
	t.Parallel()

	start := time.Now().UTC()
	rec, err := NewSellerRecord(uuid.New(), currency.Floonet, 1_000_000, 50_000,
		currency.BTC, true, 10, 3, 600, 1800, start)
	require.NoError(t, err)
	rec.State = StateOffered

	_, _, err = Adjust(rec, StateCompleted)
	require.Error(t, err)
	assert.True(t, swaperrors.Is(err, swaperrors.KindInvalidArgument))
	assert.Equal(t, StateOffered, rec.State)
}

func TestAdjustAllowsWhitelistedTarget(t *testing.T) {
	t.Parallel()

	start := time.Now().UTC()
	rec, err := NewSellerRecord(uuid.New(), currency.Floonet, 1_000_000, 50_000,
		currency.BTC, true, 10, 3, 600, 1800, start)
	require.NoError(t, err)
	rec.State = StateOffered

	_, _, err = Adjust(rec, StateCancelled)
	require.NoError(t, err)
	assert.Equal(t, StateCancelled, rec.State)
}

func TestFrozenRecordRefusesFurtherSteps(t *testing.T) {
	t.Parallel()

	rec := NewBuyerRecord(uuid.New(), "bcrt1qbuyerrefund")
	rec.Frozen = true

	_, _, err := Step(rec, Event{Kind: EventTick, Now: time.Now()})
	require.Error(t, err)
	assert.True(t, swaperrors.Is(err, swaperrors.KindFatal))
}
