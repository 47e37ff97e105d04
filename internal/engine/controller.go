// Package engine owns instrument state and executes trades against it.
//
// Each instrument has a single writer: trades on one instrument are serialized by a
// one-slot semaphore while trades on different instruments run in parallel. The
// state is an immutable value published through an atomic pointer after it has been
// persisted, so previews and queries never block and never see a state the store
// does not have.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"token-curve-engine/internal/address"
	"token-curve-engine/internal/candles"
	"token-curve-engine/internal/curve"
	"token-curve-engine/internal/domain"
	"token-curve-engine/internal/fees"
	"token-curve-engine/internal/ledger"
	"token-curve-engine/internal/observability"
	"token-curve-engine/internal/pool"
	"token-curve-engine/internal/storage"
)

// restoreConcurrency bounds the instruments loaded in parallel by Restore.
const restoreConcurrency = 8

// Options for creating a Controller.
type Options struct {
	// Required
	Store storage.Store

	// Pricing. A zero Params selects curve.DefaultParams; a zero Fees charges nothing.
	Params curve.Params
	Fees   fees.Policy

	// Optional collaborators
	Archive storage.TradeArchive   // non-authoritative copy of executed trades
	Ledger  *ledger.Ledger         // created when nil
	Logger  *zap.Logger            // zap.NewNop when nil
	Metrics *observability.Metrics // observability.DefaultMetrics when nil
	Now     func() time.Time       // time.Now when nil
}

// Controller is the single owner of instrument state.
type Controller struct {
	store   storage.Store
	archive storage.TradeArchive
	params  curve.Params
	fees    fees.Policy
	pool    pool.Model
	ledger  *ledger.Ledger
	candles *candles.Aggregator
	log     *zap.Logger
	metrics *observability.Metrics
	now     func() time.Time

	mu          sync.RWMutex
	instruments map[string]*instrument
	loads       singleflight.Group
}

// instrument is the live handle of one instrument.
type instrument struct {
	sem   chan struct{} // one slot: held by the writer
	state atomic.Pointer[domain.InstrumentState]
}

func newInstrument(state *domain.InstrumentState) *instrument {
	in := &instrument{sem: make(chan struct{}, 1)}
	in.state.Store(state)
	return in
}

func (in *instrument) lock(ctx context.Context) error {
	select {
	case in.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (in *instrument) unlock() {
	<-in.sem
}

// New creates a Controller.
func New(opts Options) (*Controller, error) {
	if opts.Store == nil {
		return nil, errors.New("engine: store is required")
	}
	params := opts.Params
	if params == (curve.Params{}) {
		params = curve.DefaultParams()
	}
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("engine: curve params: %w", err)
	}
	if err := opts.Fees.Validate(); err != nil {
		return nil, fmt.Errorf("engine: fee policy: %w", err)
	}

	c := &Controller{
		store:       opts.Store,
		archive:     opts.Archive,
		params:      params,
		fees:        opts.Fees,
		pool:        pool.Model{Fees: opts.Fees, TokenDecimals: params.TokenDecimals, SolDecimals: params.SolDecimals},
		ledger:      opts.Ledger,
		log:         opts.Logger,
		metrics:     opts.Metrics,
		now:         opts.Now,
		instruments: make(map[string]*instrument),
	}
	if c.ledger == nil {
		c.ledger = ledger.New(params.SolDecimals)
	}
	if c.log == nil {
		c.log = zap.NewNop()
	}
	if c.metrics == nil {
		c.metrics = observability.DefaultMetrics
	}
	if c.now == nil {
		c.now = time.Now
	}
	c.candles = candles.NewAggregator(c.ledger, params.SolDecimals)
	c.candles.OnLookup = c.metrics.RecordCandleLookup
	return c, nil
}

// Params returns the curve parameters.
func (c *Controller) Params() curve.Params {
	return c.params
}

// Fees returns the fee policy.
func (c *Controller) Fees() fees.Policy {
	return c.fees
}

// Ledger returns the trade ledger.
func (c *Controller) Ledger() *ledger.Ledger {
	return c.ledger
}

// InitInstrument creates a pre-graduation instrument with nothing raised.
func (c *Controller) InitInstrument(ctx context.Context, instrumentID, creator string) (*domain.InstrumentState, error) {
	const op = "init"
	if err := address.ValidateInstrument(instrumentID); err != nil {
		return nil, domain.NewTradeError(op, instrumentID, err)
	}
	if err := address.ValidateWallet(creator); err != nil {
		return nil, domain.NewTradeError(op, instrumentID, fmt.Errorf("creator: %w", err))
	}
	if c.lookup(instrumentID) != nil {
		return nil, domain.NewTradeError(op, instrumentID, domain.ErrInstrumentExists)
	}

	now := c.now().UnixMilli()
	state := &domain.InstrumentState{
		Instrument: instrumentID,
		Creator:    creator,
		Phase:      domain.PhasePreGraduation,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := c.store.CreateState(ctx, state); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return nil, domain.NewTradeError(op, instrumentID, domain.ErrInstrumentExists)
		}
		return nil, domain.NewTradeError(op, instrumentID, fmt.Errorf("%w: %v", domain.ErrPersistenceFailure, err))
	}

	c.mu.Lock()
	if _, ok := c.instruments[instrumentID]; !ok {
		c.instruments[instrumentID] = newInstrument(state)
	}
	c.mu.Unlock()

	c.log.Info("instrument initialized",
		zap.String("instrument", instrumentID),
		zap.String("creator", creator),
	)
	return state.Clone(), nil
}

// Restore loads every stored instrument and its trade history, replacing what is in
// memory. It returns the number of instruments loaded.
func (c *Controller) Restore(ctx context.Context) (int, error) {
	ids, err := c.store.ListInstruments(ctx)
	if err != nil {
		return 0, fmt.Errorf("list instruments: %w", err)
	}

	loaded := make([]*instrument, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(restoreConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			state, err := c.loadFromStore(gctx, id)
			if err != nil {
				return fmt.Errorf("restore %s: %w", id, err)
			}
			loaded[i] = newInstrument(state)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	c.mu.Lock()
	for i, id := range ids {
		c.instruments[id] = loaded[i]
	}
	c.mu.Unlock()
	for _, id := range ids {
		c.candles.Invalidate(id)
	}

	c.log.Info("engine restored", zap.Int("instruments", len(ids)))
	return len(ids), nil
}

// Instruments returns the ids of the instruments held in memory.
func (c *Controller) Instruments() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.instruments))
	for id := range c.instruments {
		out = append(out, id)
	}
	return out
}

// State returns a copy of the latest published state of an instrument.
func (c *Controller) State(ctx context.Context, instrumentID string) (*domain.InstrumentState, error) {
	in, err := c.get(ctx, "state", instrumentID)
	if err != nil {
		return nil, err
	}
	return in.state.Load().Clone(), nil
}

func (c *Controller) lookup(instrumentID string) *instrument {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.instruments[instrumentID]
}

// get returns the live instrument, loading it from the store on first use.
func (c *Controller) get(ctx context.Context, op, instrumentID string) (*instrument, error) {
	if in := c.lookup(instrumentID); in != nil {
		return in, nil
	}

	v, err, _ := c.loads.Do(instrumentID, func() (interface{}, error) {
		if in := c.lookup(instrumentID); in != nil {
			return in, nil
		}
		state, err := c.loadFromStore(ctx, instrumentID)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		in, ok := c.instruments[instrumentID]
		if !ok {
			in = newInstrument(state)
			c.instruments[instrumentID] = in
		}
		return in, nil
	})
	if err != nil {
		return nil, domain.NewTradeError(op, instrumentID, err)
	}
	return v.(*instrument), nil
}

// loadFromStore reads an instrument's state and trades and restores its ledger history.
func (c *Controller) loadFromStore(ctx context.Context, instrumentID string) (*domain.InstrumentState, error) {
	state, err := c.store.LoadState(ctx, instrumentID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, domain.ErrStateNotFound
		}
		return nil, fmt.Errorf("%w: load state: %v", domain.ErrPersistenceFailure, err)
	}
	trades, err := c.store.LoadTrades(ctx, instrumentID)
	if err != nil {
		return nil, fmt.Errorf("%w: load trades: %v", domain.ErrPersistenceFailure, err)
	}
	if uint64(len(trades)) != state.TradeCount {
		return nil, fmt.Errorf("%w: state at seq %d but %d trades stored",
			domain.ErrPersistenceFailure, state.TradeCount, len(trades))
	}
	if err := c.ledger.Restore(instrumentID, trades); err != nil {
		return nil, fmt.Errorf("%w: restore ledger: %v", domain.ErrPersistenceFailure, err)
	}
	return state, nil
}

// resync replaces the in-memory view of an instrument with the stored one.
// Called with the instrument's lock held after the store rejected a stale commit.
func (c *Controller) resync(ctx context.Context, in *instrument, instrumentID string) {
	state, err := c.loadFromStore(ctx, instrumentID)
	if err != nil {
		c.log.Error("resync failed", zap.String("instrument", instrumentID), zap.Error(err))
		return
	}
	in.state.Store(state)
	c.candles.Invalidate(instrumentID)
	c.log.Warn("instrument resynced from store",
		zap.String("instrument", instrumentID),
		zap.Uint64("trade_count", state.TradeCount),
	)
}
