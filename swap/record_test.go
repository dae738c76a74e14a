package swap

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lightningnetwork/lnswap/currency"
)

func TestNewSellerRecordRejectsZeroConfirmations(t *testing.T) {
	t.Parallel()

	_, err := NewSellerRecord(uuid.New(), currency.Floonet, 1_000_000, 50_000,
		currency.BTC, true, 0, 3, 600, 1800, time.Now())
	assert.Error(t, err)
}

func TestNewSellerRecordRejectsShortRedeemTime(t *testing.T) {
	t.Parallel()

	// redeem_time_sec must be >= 2 * message_exchange_time_sec (spec §8
	// boundary behavior).
	_, err := NewSellerRecord(uuid.New(), currency.Floonet, 1_000_000, 50_000,
		currency.BTC, true, 10, 3, 600, 999, time.Now())
	assert.Error(t, err)
}

func TestNewSellerRecordAccepts(t *testing.T) {
	t.Parallel()

	rec, err := NewSellerRecord(uuid.New(), currency.Floonet, 1_000_000, 50_000,
		currency.BTC, true, 10, 3, 600, 1800, time.Now())
	require.NoError(t, err)
	assert.Equal(t, StateCreated, rec.State)
	assert.Equal(t, RoleSeller, rec.Role)
}

func TestObserveConfirmationsIsMonotonic(t *testing.T) {
	t.Parallel()

	rec := &TradeRecord{}

	assert.Equal(t, uint64(3), rec.ObserveMWCConfirmations(3))
	// A shallower observation (simulating a reorg) must never regress
	// the recorded count (spec §8 property 5).
	assert.Equal(t, uint64(3), rec.ObserveMWCConfirmations(1))
	assert.Equal(t, uint64(5), rec.ObserveMWCConfirmations(5))

	assert.Equal(t, uint64(2), rec.ObserveSecondaryConfirmations(2))
	assert.Equal(t, uint64(2), rec.ObserveSecondaryConfirmations(0))
}

func TestIsTerminal(t *testing.T) {
	t.Parallel()

	terminal := []State{StateCompleted, StateRefunded, StateCancelled}
	for _, s := range terminal {
		assert.True(t, s.IsTerminal())
	}

	nonTerminal := []State{StateCreated, StateOfferSent, StateAccepted, StateLocked}
	for _, s := range nonTerminal {
		assert.False(t, s.IsTerminal())
	}
}

func TestDumpIncludesIdentifyingFields(t *testing.T) {
	t.Parallel()

	rec, err := NewSellerRecord(uuid.New(), currency.Floonet, 1_000_000, 50_000,
		currency.BTC, true, 10, 3, 600, 1800, time.Now())
	require.NoError(t, err)
	rec.AddJournal("info", "test entry")

	out := rec.Dump()
	assert.Contains(t, out, rec.SwapID.String())
	assert.Contains(t, out, "state: Created")
	assert.Contains(t, out, "test entry")
}
