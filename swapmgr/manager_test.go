package swapmgr

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lightningnetwork/lnswap/clock"
	"github.com/lightningnetwork/lnswap/currency"
	"github.com/lightningnetwork/lnswap/swap"
)

type fakeTransport struct{}

func (fakeTransport) Send(_ context.Context, _ *swap.Message) (bool, error) { return true, nil }
func (fakeTransport) WriteFile(_ *swap.Message, _ string) error             { return nil }

type fakeMWCClient struct{}

func (fakeMWCClient) TipHeight(_ context.Context) (uint64, error) { return 0, nil }
func (fakeMWCClient) PostTx(_ context.Context, _ []byte, _ bool) error {
	return nil
}
func (fakeMWCClient) GetKernel(_ context.Context, _ []byte) (uint64, bool, error) {
	return 0, false, nil
}

type fakeHeightSource struct {
	heights swap.ChainHeights
}

func (f *fakeHeightSource) Heights(_ context.Context, _ *swap.TradeRecord) (swap.ChainHeights, error) {
	return f.heights, nil
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	store, err := swap.NewFileStore(t.TempDir())
	require.NoError(t, err)
	return New(Config{
		Store:     store,
		Transport: fakeTransport{},
		MWC:       fakeMWCClient{},
		Heights:   &fakeHeightSource{},
		Clock:     clock.NewTestClock(time.Now()),
	})
}

func TestCreateFromOfferPersistsSellerRecord(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	rec, err := m.CreateFromOffer(currency.Floonet, 1_000_000, 50_000, currency.BTC,
		true, 10, 3, 600, 1800, "tb1qrp33g0q5c5txsp9arysrx4k6zdkfs4nce4xj0gdcccefvpysxf3q0sl5k7")
	require.NoError(t, err)

	loaded, err := m.Get(rec.SwapID)
	require.NoError(t, err)
	assert.Equal(t, rec.SwapID, loaded.SwapID)
	assert.Equal(t, swap.StateCreated, loaded.State)
}

func TestCreateFromOfferRejectsBadRefundAddress(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	_, err := m.CreateFromOffer(currency.Floonet, 1_000_000, 50_000, currency.BTC,
		true, 10, 3, 600, 1800, "not-a-real-address")
	assert.Error(t, err)
}

func TestAcceptOfferCreatesBuyerRecord(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	msg := &swap.Message{ID: swap.NewSwapID()}

	rec, err := m.AcceptOffer(msg, "tb1qrp33g0q5c5txsp9arysrx4k6zdkfs4nce4xj0gdcccefvpysxf3q0sl5k7")
	require.NoError(t, err)

	loaded, err := m.Get(rec.SwapID)
	require.NoError(t, err)
	assert.Equal(t, msg.ID, loaded.SwapID)
}

func TestListReturnsEveryStoredTrade(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	rec1, err := m.CreateFromOffer(currency.Floonet, 1_000_000, 50_000, currency.BTC,
		true, 10, 3, 600, 1800, "tb1qrp33g0q5c5txsp9arysrx4k6zdkfs4nce4xj0gdcccefvpysxf3q0sl5k7")
	require.NoError(t, err)
	rec2, err := m.CreateFromOffer(currency.Floonet, 2_000_000, 60_000, currency.BTC,
		true, 10, 3, 600, 1800, "tb1qrp33g0q5c5txsp9arysrx4k6zdkfs4nce4xj0gdcccefvpysxf3q0sl5k7")
	require.NoError(t, err)

	ids, err := m.List()
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{rec1.SwapID, rec2.SwapID}, ids)
}

func TestProcessAdvancesAndPersistsOneStep(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	rec, err := m.CreateFromOffer(currency.Floonet, 1_000_000, 50_000, currency.BTC,
		true, 10, 3, 600, 1800, "tb1qrp33g0q5c5txsp9arysrx4k6zdkfs4nce4xj0gdcccefvpysxf3q0sl5k7")
	require.NoError(t, err)

	updated, err := m.Process(context.Background(), rec.SwapID, swap.ChainHeights{})
	require.NoError(t, err)
	assert.Equal(t, swap.StateOfferSent, updated.State)

	loaded, err := m.Get(rec.SwapID)
	require.NoError(t, err)
	assert.Equal(t, swap.StateOfferSent, loaded.State)
}

func TestAdjustAppliesWhitelistedOverride(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	rec, err := m.CreateFromOffer(currency.Floonet, 1_000_000, 50_000, currency.BTC,
		true, 10, 3, 600, 1800, "tb1qrp33g0q5c5txsp9arysrx4k6zdkfs4nce4xj0gdcccefvpysxf3q0sl5k7")
	require.NoError(t, err)

	updated, err := m.Adjust(rec.SwapID, swap.StateCancelled)
	require.NoError(t, err)
	assert.Equal(t, swap.StateCancelled, updated.State)
}

func TestDeleteRefusesNonTerminalTrade(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	rec, err := m.CreateFromOffer(currency.Floonet, 1_000_000, 50_000, currency.BTC,
		true, 10, 3, 600, 1800, "tb1qrp33g0q5c5txsp9arysrx4k6zdkfs4nce4xj0gdcccefvpysxf3q0sl5k7")
	require.NoError(t, err)

	err = m.Delete(rec.SwapID)
	assert.Error(t, err)
}

func TestDeleteRemovesTerminalTrade(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	rec, err := m.CreateFromOffer(currency.Floonet, 1_000_000, 50_000, currency.BTC,
		true, 10, 3, 600, 1800, "tb1qrp33g0q5c5txsp9arysrx4k6zdkfs4nce4xj0gdcccefvpysxf3q0sl5k7")
	require.NoError(t, err)

	_, err = m.Adjust(rec.SwapID, swap.StateCancelled)
	require.NoError(t, err)

	require.NoError(t, m.Delete(rec.SwapID))

	_, err = m.Get(rec.SwapID)
	assert.Error(t, err)
}

func TestDumpIncludesSwapID(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	rec, err := m.CreateFromOffer(currency.Floonet, 1_000_000, 50_000, currency.BTC,
		true, 10, 3, 600, 1800, "tb1qrp33g0q5c5txsp9arysrx4k6zdkfs4nce4xj0gdcccefvpysxf3q0sl5k7")
	require.NoError(t, err)

	dump, err := m.Dump(rec.SwapID)
	require.NoError(t, err)
	assert.Contains(t, dump, rec.SwapID.String())
}

func TestAutoswapRefusesDoubleStart(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	rec, err := m.CreateFromOffer(currency.Floonet, 1_000_000, 50_000, currency.BTC,
		true, 10, 3, 600, 1800, "tb1qrp33g0q5c5txsp9arysrx4k6zdkfs4nce4xj0gdcccefvpysxf3q0sl5k7")
	require.NoError(t, err)

	require.NoError(t, m.Autoswap(rec.SwapID))
	t.Cleanup(func() { m.StopAutoswap(rec.SwapID) })

	err = m.Autoswap(rec.SwapID)
	assert.Error(t, err)
}

func TestStopAutoswapAllowsRestart(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	rec, err := m.CreateFromOffer(currency.Floonet, 1_000_000, 50_000, currency.BTC,
		true, 10, 3, 600, 1800, "tb1qrp33g0q5c5txsp9arysrx4k6zdkfs4nce4xj0gdcccefvpysxf3q0sl5k7")
	require.NoError(t, err)

	require.NoError(t, m.Autoswap(rec.SwapID))
	m.StopAutoswap(rec.SwapID)

	require.Eventually(t, func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		_, ok := m.running[rec.SwapID]
		return !ok
	}, time.Second, 10*time.Millisecond)

	err = m.Autoswap(rec.SwapID)
	require.NoError(t, err)
	m.StopAutoswap(rec.SwapID)
}
