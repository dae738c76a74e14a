package autoswap

import (
	"context"
	"testing"
	"time"

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
	err     error
}

func (f *fakeHeightSource) Heights(_ context.Context, _ *swap.TradeRecord) (swap.ChainHeights, error) {
	return f.heights, f.err
}

func newTestDriverRecord(t *testing.T) (swap.Store, *swap.TradeRecord) {
	t.Helper()
	store, err := swap.NewFileStore(t.TempDir())
	require.NoError(t, err)
	rec, err := swap.NewSellerRecord(swap.NewSwapID(), currency.Floonet, 1_000_000, 50_000,
		currency.BTC, true, 10, 3, 600, 1800, time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, store.Save(rec))
	return store, rec
}

func TestDriverExitsImmediatelyOnTerminalState(t *testing.T) {
	t.Parallel()

	store, rec := newTestDriverRecord(t)
	rec.State = swap.StateCompleted
	require.NoError(t, store.Save(rec))

	dispatcher := swap.NewDispatcher(fakeTransport{}, fakeMWCClient{}, nil)
	driver := NewDriver(rec.SwapID, store, dispatcher, &fakeHeightSource{}, clock.NewTestClock(time.Now()))

	err := driver.Run(context.Background())
	assert.NoError(t, err)
}

func TestDriverExitsOnGlobalStop(t *testing.T) {
	// Not run in parallel: this test mutates the process-wide stop flag
	// that every other driver test also reads.
	store, rec := newTestDriverRecord(t)

	StopAll()
	t.Cleanup(ResumeAll)

	dispatcher := swap.NewDispatcher(fakeTransport{}, fakeMWCClient{}, nil)
	driver := NewDriver(rec.SwapID, store, dispatcher, &fakeHeightSource{}, clock.NewTestClock(time.Now()))

	err := driver.Run(context.Background())
	assert.NoError(t, err)
}

func TestDriverExitsOnContextCancel(t *testing.T) {
	t.Parallel()

	store, rec := newTestDriverRecord(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	dispatcher := swap.NewDispatcher(fakeTransport{}, fakeMWCClient{}, nil)
	driver := NewDriver(rec.SwapID, store, dispatcher, &fakeHeightSource{}, clock.NewTestClock(time.Now()))

	err := driver.Run(ctx)
	assert.Error(t, err)
}

func TestDriverAdvancesOneStepAndPersists(t *testing.T) {
	// Not run in parallel: TestDriverExitsOnGlobalStop toggles the
	// process-wide stop flag this test's driver also reads.
	store, rec := newTestDriverRecord(t)

	tc := clock.NewTestClock(time.Now())
	dispatcher := swap.NewDispatcher(fakeTransport{}, fakeMWCClient{}, nil)
	driver := NewDriver(rec.SwapID, store, dispatcher, &fakeHeightSource{}, tc)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- driver.Run(ctx) }()

	// Let the first iteration (Created -> OfferSent) persist, then stop
	// the driver rather than waiting out its full poll interval.
	require.Eventually(t, func() bool {
		loaded, err := store.Load(rec.SwapID)
		return err == nil && loaded.State == swap.StateOfferSent
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done

	loaded, err := store.Load(rec.SwapID)
	require.NoError(t, err)
	assert.Equal(t, swap.StateOfferSent, loaded.State)
}
