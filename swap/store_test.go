package swap

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lightningnetwork/lnswap/currency"
	"github.com/lightningnetwork/lnswap/swaperrors"
)

func newTestRecord(t *testing.T) *TradeRecord {
	t.Helper()
	rec, err := NewSellerRecord(uuid.New(), currency.Floonet, 1_000_000, 50_000,
		currency.BTC, true, 10, 3, 600, 1800, time.Now().UTC())
	require.NoError(t, err)
	return rec
}

func TestFileStoreRoundTrip(t *testing.T) {
	t.Parallel()

	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	rec := newTestRecord(t)
	require.NoError(t, store.Save(rec))

	loaded, err := store.Load(rec.SwapID)
	require.NoError(t, err)
	assert.Equal(t, rec.SwapID, loaded.SwapID)
	assert.Equal(t, rec.State, loaded.State)
	assert.Equal(t, uint64(1), loaded.Revision)
}

func TestFileStoreRejectsStaleRevision(t *testing.T) {
	t.Parallel()

	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	rec := newTestRecord(t)
	require.NoError(t, store.Save(rec))

	a, err := store.Load(rec.SwapID)
	require.NoError(t, err)
	b, err := store.Load(rec.SwapID)
	require.NoError(t, err)

	a.AddJournal("info", "writer a")
	require.NoError(t, store.Save(a))

	b.AddJournal("info", "writer b")
	err = store.Save(b)
	require.Error(t, err)
	assert.True(t, swaperrors.Is(err, swaperrors.KindStateConflict))
}

func TestFileStoreListAndDelete(t *testing.T) {
	t.Parallel()

	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	rec1 := newTestRecord(t)
	rec2 := newTestRecord(t)
	require.NoError(t, store.Save(rec1))
	require.NoError(t, store.Save(rec2))

	ids, err := store.List()
	require.NoError(t, err)
	assert.Len(t, ids, 2)

	require.NoError(t, store.Delete(rec1.SwapID))

	ids, err = store.List()
	require.NoError(t, err)
	assert.Len(t, ids, 1)
	assert.Equal(t, rec2.SwapID, ids[0])
}

func TestFileStoreLoadMissingReturnsError(t *testing.T) {
	t.Parallel()

	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Load(uuid.New())
	assert.Error(t, err)
}
