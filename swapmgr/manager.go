// Package swapmgr implements the operator-facing surface of the swap
// core (spec §6): creating trades, inspecting them, driving a single
// step by hand, and starting/stopping background automation. It is
// the thin layer cmd/swapctl talks to.
package swapmgr

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lightningnetwork/lnswap/autoswap"
	"github.com/lightningnetwork/lnswap/build"
	"github.com/lightningnetwork/lnswap/clock"
	"github.com/lightningnetwork/lnswap/currency"
	"github.com/lightningnetwork/lnswap/secondary"
	"github.com/lightningnetwork/lnswap/swap"
	"github.com/lightningnetwork/lnswap/swaperrors"
)

var log = build.NewSubLogger("SWMG")

// Config collects every external dependency the Manager needs to wire
// together a swap.Dispatcher and drive trades (spec §6).
type Config struct {
	Store     swap.Store
	Transport swap.Transport
	MWC       swap.MWCClient
	Secondary map[currency.Currency]secondary.Adapter
	Heights   autoswap.HeightSource
	Clock     clock.Clock
}

// Manager is the swap core's single entry point for operator actions
// (spec §6 "operator surface"). It owns no protocol logic itself -
// every operation here either reads/writes a swap.TradeRecord through
// its Store, or calls into swap.Step/swap.Adjust/autoswap.Driver.
type Manager struct {
	cfg Config

	mu      sync.Mutex
	running map[uuid.UUID]context.CancelFunc
}

// New builds a Manager from cfg.
func New(cfg Config) *Manager {
	if cfg.Clock == nil {
		cfg.Clock = clock.NewDefaultClock()
	}
	return &Manager{
		cfg:     cfg,
		running: make(map[uuid.UUID]context.CancelFunc),
	}
}

// dispatcher builds the swap.Dispatcher wired to this Manager's
// configured transport/chain clients (spec §4.7/§6).
func (m *Manager) dispatcher() *swap.Dispatcher {
	secondaries := make(map[currency.Currency]swap.SecondaryAdapter, len(m.cfg.Secondary))
	for cur, adapter := range m.cfg.Secondary {
		secondaries[cur] = adapterShim{adapter}
	}
	return swap.NewDispatcher(m.cfg.Transport, m.cfg.MWC, secondaries)
}

// adapterShim adapts a secondary.Adapter to swap.SecondaryAdapter by
// embedding: swap.SecondaryAdapter only names the methods the
// dispatcher actually calls, so a shim is enough to satisfy it without
// swap importing secondary's Adapter type itself.
type adapterShim struct {
	secondary.Adapter
}

// CreateFromOffer creates a new seller-role trade record and persists
// it at StateCreated (spec §3 Lifecycle, §6 "CreateFromOffer").
func (m *Manager) CreateFromOffer(
	net currency.Network,
	primaryAmount, secondaryAmount uint64,
	secondaryCurrency currency.Currency,
	sellerLockFirst bool,
	reqMWCConf, reqSecConf uint64,
	msgExchangeSec, redeemSec uint64,
	refundAddress string,
) (*swap.TradeRecord, error) {
	if err := currency.ValidateRefundAddress(secondaryCurrency, net, refundAddress); err != nil {
		return nil, err
	}

	id := swap.NewSwapID()
	rec, err := swap.NewSellerRecord(
		id, net, primaryAmount, secondaryAmount, secondaryCurrency,
		sellerLockFirst, reqMWCConf, reqSecConf, msgExchangeSec, redeemSec,
		m.cfg.Clock.Now(),
	)
	if err != nil {
		return nil, swaperrors.New(swaperrors.KindInvalidArgument, "%v", err)
	}
	rec.RefundAddress = refundAddress

	preimage := make([]byte, 32)
	if _, err := rand.Read(preimage); err != nil {
		return nil, swaperrors.Wrap(swaperrors.KindFatal, err)
	}
	rec.Preimage = preimage
	hashImage := sha256.Sum256(preimage)
	rec.SecondaryScript.HashImage = hashImage[:]

	if err := m.cfg.Store.Save(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// AcceptOffer creates a new buyer-role trade from the first Offer
// message received for a swap-id not yet known to this wallet (spec
// §3 Lifecycle "buyer record created on receipt of first Offer").
func (m *Manager) AcceptOffer(msg *swap.Message, refundAddress string) (*swap.TradeRecord, error) {
	rec := swap.NewBuyerRecord(msg.ID, refundAddress)
	if err := m.cfg.Store.Save(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// List enumerates every trade this wallet holds a record for (spec §6).
func (m *Manager) List() ([]uuid.UUID, error) {
	return m.cfg.Store.List()
}

// Get loads a single trade record by id (spec §6).
func (m *Manager) Get(id uuid.UUID) (*swap.TradeRecord, error) {
	return m.cfg.Store.Load(id)
}

// Check performs a single Step driven by an incoming message, without
// starting background automation (spec §6 "Check").
func (m *Manager) Check(id uuid.UUID, msg *swap.Message) (*swap.TradeRecord, error) {
	rec, err := m.cfg.Store.Load(id)
	if err != nil {
		return nil, err
	}

	rec.Lock()
	_, _, err = swap.Step(rec, swap.Event{
		Kind:    swap.EventMessageReceived,
		Message: msg,
		Now:     m.cfg.Clock.Now(),
	})
	rec.Unlock()
	if err != nil {
		return nil, err
	}

	if err := m.cfg.Store.Save(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Process performs a single Tick-driven Step and dispatches its
// resulting action immediately, without starting background
// automation (spec §6 "Process" - a manual equivalent of one
// autoswap.Driver iteration).
func (m *Manager) Process(ctx context.Context, id uuid.UUID, heights swap.ChainHeights) (*swap.TradeRecord, error) {
	rec, err := m.cfg.Store.Load(id)
	if err != nil {
		return nil, err
	}

	rec.Lock()
	action, _, err := swap.Step(rec, swap.Event{
		Kind:    swap.EventTick,
		Now:     m.cfg.Clock.Now(),
		Heights: heights,
	})
	rec.Unlock()
	if err != nil {
		return nil, err
	}

	if err := m.dispatcher().Dispatch(ctx, rec, action); err != nil {
		return nil, err
	}

	if err := m.cfg.Store.Save(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Autoswap starts a background autoswap.Driver for the given trade, if
// one is not already running (spec §6 "Autoswap", §4.8).
func (m *Manager) Autoswap(id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.running[id]; ok {
		return swaperrors.New(swaperrors.KindStateConflict, "autoswap already running for %s", id)
	}

	ctx, cancel := context.WithCancel(context.Background())
	driver := autoswap.NewDriver(id, m.cfg.Store, m.dispatcher(), m.cfg.Heights, m.cfg.Clock)

	m.running[id] = cancel
	go func() {
		if err := driver.Run(ctx); err != nil {
			log.Errorf("autoswap driver for %s exited with error: %v", id, err)
		}
		m.mu.Lock()
		delete(m.running, id)
		m.mu.Unlock()
	}()

	return nil
}

// StopAutoswap cancels the background driver for a single trade, if
// one is running (spec §6).
func (m *Manager) StopAutoswap(id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cancel, ok := m.running[id]; ok {
		cancel()
		delete(m.running, id)
	}
}

// StopAllAutoswap halts every running driver process-wide (spec §6
// "StopAllAutoswap", §4.8 global stop-flag).
func (m *Manager) StopAllAutoswap() {
	autoswap.StopAll()

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, cancel := range m.running {
		cancel()
		delete(m.running, id)
	}
}

// ResumeAutoswap clears the global stop flag set by StopAllAutoswap,
// allowing subsequent Autoswap calls to run again (spec §6).
func (m *Manager) ResumeAutoswap() {
	autoswap.ResumeAll()
}

// Adjust applies an operator override to the trade's state (spec §6
// "Adjust", §4.6).
func (m *Manager) Adjust(id uuid.UUID, target swap.State) (*swap.TradeRecord, error) {
	rec, err := m.cfg.Store.Load(id)
	if err != nil {
		return nil, err
	}

	rec.Lock()
	_, _, err = swap.Adjust(rec, target)
	rec.Unlock()
	if err != nil {
		return nil, err
	}

	if err := m.cfg.Store.Save(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Delete removes a trade record, refusing to delete anything not in a
// terminal state (spec §6 "Delete").
func (m *Manager) Delete(id uuid.UUID) error {
	rec, err := m.cfg.Store.Load(id)
	if err != nil {
		return err
	}
	if !rec.State.IsTerminal() {
		return swaperrors.New(swaperrors.KindInvalidArgument,
			"refusing to delete trade %s in non-terminal state %s", id, rec.State)
	}
	return m.cfg.Store.Delete(id)
}

// Dump renders a human-readable diagnostic snapshot of a trade (spec
// §6 "Dump", grounded on original_source's swap_dump).
func (m *Manager) Dump(id uuid.UUID) (string, error) {
	rec, err := m.cfg.Store.Load(id)
	if err != nil {
		return "", err
	}
	return rec.Dump(), nil
}

// waitForTermination blocks until the trade at id reaches a terminal
// state or the context is cancelled, polling at the given interval.
// No test and no cmd/swapctl subcommand calls it.
func (m *Manager) waitForTermination(ctx context.Context, id uuid.UUID, poll time.Duration) (*swap.TradeRecord, error) {
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		rec, err := m.cfg.Store.Load(id)
		if err != nil {
			return nil, err
		}
		if rec.State.IsTerminal() {
			return rec, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
