package engine

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token-curve-engine/internal/address"
	"token-curve-engine/internal/curve"
	"token-curve-engine/internal/domain"
	"token-curve-engine/internal/fees"
	"token-curve-engine/internal/idhash"
	"token-curve-engine/internal/observability"
	"token-curve-engine/internal/storage"
	"token-curve-engine/internal/storage/memory"
)

const (
	solUnit  = 1_000_000_000
	baseTime = 1_700_000_040_000 // ms, a whole minute
)

var (
	mint    = idhash.DeriveMint("engine-test")
	creator = idhash.DeriveWallet("creator")
	alice   = idhash.DeriveWallet("alice")
	bob     = idhash.DeriveWallet("bob")
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.UnixMilli(baseTime)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

// failingStore fails commits while fail is set.
type failingStore struct {
	*memory.Store
	fail atomic.Bool
}

func (s *failingStore) CommitTrade(ctx context.Context, prevSeq uint64, state *domain.InstrumentState, trade *domain.Trade) error {
	if s.fail.Load() {
		return errors.New("connection reset")
	}
	return s.Store.CommitTrade(ctx, prevSeq, state, trade)
}

type fixture struct {
	ctrl  *Controller
	store storage.Store
	clock *fakeClock
}

func newFixture(t *testing.T, store storage.Store) *fixture {
	t.Helper()
	if store == nil {
		store = memory.NewStore()
	}
	clock := newFakeClock()
	ctrl, err := New(Options{
		Store:   store,
		Fees:    fees.DefaultPolicy(),
		Metrics: observability.NewMetrics("test", prometheus.NewRegistry()),
		Now:     clock.Now,
	})
	require.NoError(t, err)
	return &fixture{ctrl: ctrl, store: store, clock: clock}
}

func (f *fixture) init(t *testing.T) {
	t.Helper()
	_, err := f.ctrl.InitInstrument(context.Background(), mint, creator)
	require.NoError(t, err)
}

func buy(wallet string, lamports uint64) domain.TradeRequest {
	return domain.TradeRequest{Instrument: mint, Wallet: wallet, Amount: lamports}
}

func sell(wallet string, tokens uint64) domain.TradeRequest {
	return domain.TradeRequest{Instrument: mint, Wallet: wallet, Amount: tokens}
}

func requireKind(t *testing.T, err error, kind domain.ErrorKind) {
	t.Helper()
	require.Error(t, err)
	var te *domain.TradeError
	require.True(t, errors.As(err, &te), "expected *domain.TradeError, got %T", err)
	assert.Equal(t, kind, te.Kind(), err.Error())
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)

	_, err = New(Options{Store: memory.NewStore(), Fees: fees.Policy{TotalBps: 50, CreatorBps: 100}})
	require.Error(t, err)

	ctrl, err := New(Options{Store: memory.NewStore()})
	require.NoError(t, err)
	assert.Equal(t, curve.DefaultParams(), ctrl.Params())
}

func TestInitInstrument(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	state, err := f.ctrl.InitInstrument(ctx, mint, creator)
	require.NoError(t, err)
	assert.Equal(t, domain.PhasePreGraduation, state.Phase)
	assert.Equal(t, uint64(0), state.Curve.SolRaised)
	assert.Equal(t, int64(baseTime), state.CreatedAt)

	stored, err := f.store.LoadState(ctx, mint)
	require.NoError(t, err)
	assert.Equal(t, state, stored)

	_, err = f.ctrl.InitInstrument(ctx, mint, creator)
	requireKind(t, err, domain.KindInstrumentExists)

	_, err = f.ctrl.InitInstrument(ctx, "not-base58-0OIl", creator)
	requireKind(t, err, domain.KindInvalidAddress)

	_, err = f.ctrl.InitInstrument(ctx, idhash.DeriveMint("other"), "short")
	requireKind(t, err, domain.KindInvalidAddress)
}

func TestInitInstrument_ExistsInStoreOnly(t *testing.T) {
	store := memory.NewStore()
	first := newFixture(t, store)
	first.init(t)

	second := newFixture(t, store)
	_, err := second.ctrl.InitInstrument(context.Background(), mint, creator)
	requireKind(t, err, domain.KindInstrumentExists)
}

func TestExecuteBuy_Curve(t *testing.T) {
	f := newFixture(t, nil)
	f.init(t)
	ctx := context.Background()
	params := curve.DefaultParams()

	res, err := f.ctrl.ExecuteBuy(ctx, buy(alice, solUnit))
	require.NoError(t, err)

	net := uint64(990_000_000)
	want, err := params.QuoteBuy(net, 0)
	require.NoError(t, err)

	assert.Equal(t, want, res.OutputAmount)
	assert.Equal(t, domain.FeeBreakdown{CreatorFee: 5_000_000, PlatformFee: 5_000_000, Net: net}, res.Fees)
	assert.False(t, res.Graduated)

	assert.Equal(t, net, res.State.Curve.SolRaised)
	assert.Equal(t, uint64(1), res.State.TradeCount)
	assert.Equal(t, uint64(5_000_000), res.State.CreatorFees)
	assert.Equal(t, uint64(5_000_000), res.State.PlatformFees)

	trade := res.Trade
	assert.Equal(t, idhash.ComputeTradeID(mint, 1, baseTime), trade.TradeID)
	assert.Equal(t, domain.SideBuy, trade.Side)
	assert.Equal(t, domain.PhasePreGraduation, trade.Phase)
	assert.Equal(t, uint64(solUnit), trade.QuoteVolume)
	assert.Equal(t, net, trade.SolRaisedAfter)
	assert.True(t, trade.Price.GreaterThan(params.SpotPrice(0)))
	assert.True(t, trade.Price.LessThan(params.SpotPrice(net)))

	assert.Equal(t, 1, f.ctrl.Ledger().Len(mint))
	stored, err := f.store.LoadTrades(ctx, mint)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, trade.TradeID, stored[0].TradeID)
}

func TestPreviewMatchesExecution(t *testing.T) {
	f := newFixture(t, nil)
	f.init(t)
	ctx := context.Background()

	for _, lamports := range []uint64{1_000_000, solUnit, 10 * solUnit} {
		preview, err := f.ctrl.PreviewBuy(ctx, mint, lamports, 100)
		require.NoError(t, err)
		res, err := f.ctrl.ExecuteBuy(ctx, buy(alice, lamports))
		require.NoError(t, err)

		assert.Equal(t, preview.OutputAmount, res.OutputAmount)
		assert.Equal(t, preview.Fees, res.Fees)
		assert.True(t, preview.ExecutionPrice.Equal(res.ExecutionPrice))
		assert.Equal(t, preview.OutputAmount*99/100, preview.MinimumReceived)
	}

	preview, err := f.ctrl.PreviewSell(ctx, mint, 1_000_000, 0)
	require.NoError(t, err)
	res, err := f.ctrl.ExecuteSell(ctx, sell(alice, 1_000_000))
	require.NoError(t, err)
	assert.Equal(t, preview.OutputAmount, res.OutputAmount)
	assert.Equal(t, preview.OutputAmount, preview.MinimumReceived)
}

func TestPreview_DoesNotMutate(t *testing.T) {
	f := newFixture(t, nil)
	f.init(t)
	ctx := context.Background()

	preview, err := f.ctrl.PreviewBuy(ctx, mint, 200*solUnit, 0)
	require.NoError(t, err)
	assert.True(t, preview.WouldGraduate)
	assert.True(t, preview.PriceImpact.IsPositive())

	state, err := f.ctrl.State(ctx, mint)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), state.TradeCount)
	assert.False(t, state.IsGraduated())
	assert.Equal(t, 0, f.ctrl.Ledger().Len(mint))
}

func TestExecute_InvalidRequests(t *testing.T) {
	f := newFixture(t, nil)
	f.init(t)
	ctx := context.Background()

	tests := []struct {
		name string
		run  func() error
		kind domain.ErrorKind
	}{
		{"zero buy", func() error { _, err := f.ctrl.ExecuteBuy(ctx, buy(alice, 0)); return err }, domain.KindInvalidAmount},
		{"sell beyond sold", func() error { _, err := f.ctrl.ExecuteSell(ctx, sell(alice, 1)); return err }, domain.KindInsufficientLiquidity},
		{"bad wallet", func() error { _, err := f.ctrl.ExecuteBuy(ctx, buy("wallet", solUnit)); return err }, domain.KindInvalidAddress},
		{"exhausts supply", func() error { _, err := f.ctrl.ExecuteBuy(ctx, buy(alice, 1_000*solUnit)); return err }, domain.KindInsufficientLiquidity},
		{"unknown instrument", func() error {
			_, err := f.ctrl.ExecuteBuy(ctx, domain.TradeRequest{Instrument: idhash.DeriveMint("nope"), Wallet: alice, Amount: solUnit})
			return err
		}, domain.KindStateNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			requireKind(t, tt.run(), tt.kind)
		})
	}

	state, err := f.ctrl.State(ctx, mint)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), state.TradeCount)
}

func TestExecute_Slippage(t *testing.T) {
	f := newFixture(t, nil)
	f.init(t)
	ctx := context.Background()

	preview, err := f.ctrl.PreviewBuy(ctx, mint, solUnit, 0)
	require.NoError(t, err)

	req := buy(alice, solUnit)
	req.MinOut = preview.OutputAmount + 1
	_, err = f.ctrl.ExecuteBuy(ctx, req)
	requireKind(t, err, domain.KindSlippageExceeded)

	// A 1 SOL buy moves the curve by about 3.3%, so a 1% cap rejects it.
	req = buy(alice, solUnit)
	req.MaxSlippageBps = 100
	_, err = f.ctrl.ExecuteBuy(ctx, req)
	requireKind(t, err, domain.KindSlippageExceeded)

	state, err := f.ctrl.State(ctx, mint)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), state.TradeCount)
	assert.Equal(t, 0, f.ctrl.Ledger().Len(mint))

	req.MinOut = preview.OutputAmount
	req.MaxSlippageBps = 1_000
	res, err := f.ctrl.ExecuteBuy(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, preview.OutputAmount, res.OutputAmount)
}

func TestRoundTripLoses(t *testing.T) {
	f := newFixture(t, nil)
	f.init(t)
	ctx := context.Background()

	bought, err := f.ctrl.ExecuteBuy(ctx, buy(alice, 5*solUnit))
	require.NoError(t, err)
	sold, err := f.ctrl.ExecuteSell(ctx, sell(alice, bought.OutputAmount))
	require.NoError(t, err)

	assert.Less(t, sold.OutputAmount, uint64(5*solUnit))

	_, err = f.ctrl.ExecuteBuy(ctx, buy(alice, solUnit))
	require.NoError(t, err)
	_, err = f.ctrl.ExecuteSell(ctx, sell(alice, 1))
	requireKind(t, err, domain.KindInvalidAmount)
	assert.Equal(t, domain.SideSell, sold.Trade.Side)
	assert.Equal(t, sold.Trade.QuoteVolume, sold.OutputAmount+sold.Fees.Total())
	assert.Equal(t, uint64(2), sold.State.TradeCount)
	assert.Equal(t, bought.State.Curve.SolRaised-sold.Trade.QuoteVolume, sold.State.Curve.SolRaised)
}

func TestGraduation(t *testing.T) {
	f := newFixture(t, nil)
	f.init(t)
	ctx := context.Background()
	params := curve.DefaultParams()

	res, err := f.ctrl.ExecuteBuy(ctx, buy(alice, 100*solUnit))
	require.NoError(t, err)
	require.True(t, res.Graduated)
	assert.True(t, res.Trade.Graduated)
	assert.Equal(t, domain.PhasePreGraduation, res.Trade.Phase)

	state := res.State
	assert.Equal(t, domain.PhaseGraduated, state.Phase)
	assert.True(t, state.Curve.Graduated)
	require.NotNil(t, state.Pool)

	wantAddr, err := address.PoolAddress(mint)
	require.NoError(t, err)
	assert.Equal(t, wantAddr, state.Pool.Address)
	assert.Equal(t, int64(baseTime), state.Pool.GraduatedAt)
	assert.Equal(t, state.Pool.TokenReserve, res.Trade.TokenReserveAfter)
	assert.Equal(t, state.Pool.SolReserve, res.Trade.SolReserveAfter)

	// Conservation: every raised lamport is in the pool or residual, and so is
	// every token the curve did not sell.
	raised := uint64(99 * solUnit)
	assert.Equal(t, raised, state.Curve.SolRaised)
	assert.Equal(t, raised, state.Pool.SolReserve+state.Pool.ResidualSol)
	assert.Equal(t, params.RemainingSupply(raised), state.Pool.TokenReserve+state.Pool.ResidualTokens)

	// Spot price is continuous across graduation.
	spot, err := f.ctrl.SpotPrice(ctx, mint)
	require.NoError(t, err)
	curveSpot := params.SpotPrice(raised)
	rel := spot.Sub(curveSpot).Abs().Div(curveSpot)
	assert.True(t, rel.LessThan(decimal.New(1, -9)), "relative jump %s", rel)

	// Later trades price against the pool and keep k.
	k := func(p *domain.PoolState) decimal.Decimal {
		return decimal.NewFromUint64(p.TokenReserve).Mul(decimal.NewFromUint64(p.SolReserve))
	}
	before := k(state.Pool)
	next, err := f.ctrl.ExecuteBuy(ctx, buy(bob, solUnit))
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseGraduated, next.Trade.Phase)
	assert.False(t, next.Graduated)
	assert.Equal(t, raised, next.State.Curve.SolRaised)
	assert.True(t, k(next.State.Pool).GreaterThanOrEqual(before))

	before = k(next.State.Pool)
	out, err := f.ctrl.ExecuteSell(ctx, sell(bob, next.OutputAmount))
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseGraduated, out.Trade.Phase)
	assert.True(t, k(out.State.Pool).GreaterThanOrEqual(before))

	m, err := f.ctrl.Metrics(ctx, mint)
	require.NoError(t, err)
	assert.True(t, m.IsGraduated)
	assert.True(t, m.GraduationProgress.Equal(decimal.NewFromInt(100)))
}

func TestPoolTrades_CannotWrapReserves(t *testing.T) {
	f := newFixture(t, nil)
	f.init(t)
	ctx := context.Background()

	grad, err := f.ctrl.ExecuteBuy(ctx, buy(alice, 100*solUnit))
	require.NoError(t, err)
	require.True(t, grad.Graduated)
	pool := *grad.State.Pool

	// Only tokens held outside the pool can be sold into it.
	_, err = f.ctrl.ExecuteSell(ctx, sell(bob, math.MaxUint64-pool.TokenReserve/2))
	requireKind(t, err, domain.KindInsufficientLiquidity)
	_, err = f.ctrl.ExecuteSell(ctx, sell(alice, grad.OutputAmount+1))
	requireKind(t, err, domain.KindInsufficientLiquidity)

	state, err := f.ctrl.State(ctx, mint)
	require.NoError(t, err)
	assert.Equal(t, pool, *state.Pool)
	assert.Equal(t, uint64(1), state.TradeCount)

	_, err = f.ctrl.ExecuteSell(ctx, sell(alice, grad.OutputAmount))
	require.NoError(t, err)
}

func TestPoolBuy_ZeroFeeCannotWrapReserves(t *testing.T) {
	store := memory.NewStore()
	ctrl, err := New(Options{
		Store:   store,
		Metrics: observability.NewMetrics("test", prometheus.NewRegistry()),
		Now:     newFakeClock().Now,
	})
	require.NoError(t, err)
	ctx := context.Background()
	_, err = ctrl.InitInstrument(ctx, mint, creator)
	require.NoError(t, err)

	grad, err := ctrl.ExecuteBuy(ctx, buy(alice, 100*solUnit))
	require.NoError(t, err)
	require.True(t, grad.Graduated)
	pool := *grad.State.Pool

	_, err = ctrl.ExecuteBuy(ctx, buy(bob, math.MaxUint64-pool.SolReserve/2))
	requireKind(t, err, domain.KindInsufficientLiquidity)

	state, err := ctrl.State(ctx, mint)
	require.NoError(t, err)
	assert.Equal(t, pool, *state.Pool)
}

func TestGraduation_ExactThreshold(t *testing.T) {
	f := newFixture(t, nil)
	f.init(t)
	ctx := context.Background()

	// Gross amount whose net is exactly the threshold.
	gross, ok := fees.DefaultPolicy().GrossUp(curve.DefaultGraduationThreshold)
	require.True(t, ok)

	below, err := f.ctrl.PreviewBuy(ctx, mint, gross-1, 0)
	require.NoError(t, err)
	assert.False(t, below.WouldGraduate)

	res, err := f.ctrl.ExecuteBuy(ctx, buy(alice, gross))
	require.NoError(t, err)
	assert.True(t, res.Graduated)
}

func TestPersistenceFailure_LeavesStateUntouched(t *testing.T) {
	store := &failingStore{Store: memory.NewStore()}
	f := newFixture(t, store)
	f.init(t)
	ctx := context.Background()

	store.fail.Store(true)
	_, err := f.ctrl.ExecuteBuy(ctx, buy(alice, 100*solUnit))
	requireKind(t, err, domain.KindPersistenceFailure)

	state, err := f.ctrl.State(ctx, mint)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), state.TradeCount)
	assert.Equal(t, uint64(0), state.Curve.SolRaised)
	assert.False(t, state.IsGraduated())
	assert.Equal(t, 0, f.ctrl.Ledger().Len(mint))

	store.fail.Store(false)
	res, err := f.ctrl.ExecuteBuy(ctx, buy(alice, solUnit))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), res.Trade.Seq)
}

func TestConflict_Resyncs(t *testing.T) {
	store := memory.NewStore()
	first := newFixture(t, store)
	first.init(t)
	ctx := context.Background()

	second := newFixture(t, store)
	_, err := second.ctrl.SpotPrice(ctx, mint) // loads the empty state
	require.NoError(t, err)

	_, err = first.ctrl.ExecuteBuy(ctx, buy(alice, solUnit))
	require.NoError(t, err)

	_, err = second.ctrl.ExecuteBuy(ctx, buy(bob, solUnit))
	requireKind(t, err, domain.KindPersistenceFailure)

	res, err := second.ctrl.ExecuteBuy(ctx, buy(bob, solUnit))
	require.NoError(t, err)
	assert.Equal(t, uint64(2), res.Trade.Seq)
	assert.Equal(t, 2, second.ctrl.Ledger().Len(mint))
}

func TestConcurrentBuys(t *testing.T) {
	f := newFixture(t, nil)
	f.init(t)
	ctx := context.Background()

	const n = 50
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, err := f.ctrl.ExecuteBuy(ctx, buy(alice, solUnit/10)); err != nil {
				errs <- err
			}
		}()
		go func() {
			defer wg.Done()
			_, _ = f.ctrl.PreviewBuy(ctx, mint, solUnit, 0)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	state, err := f.ctrl.State(ctx, mint)
	require.NoError(t, err)
	assert.Equal(t, uint64(n), state.TradeCount)
	assert.Equal(t, uint64(n*99_000_000), state.Curve.SolRaised)

	trades := f.ctrl.Ledger().All(mint)
	require.Len(t, trades, n)
	var tokens uint64
	for i, tr := range trades {
		assert.Equal(t, uint64(i+1), tr.Seq)
		tokens += tr.OutputAmount
	}
	// Splitting a buy never yields more than buying at once.
	whole, err := curve.DefaultParams().QuoteBuy(n*99_000_000, 0)
	require.NoError(t, err)
	assert.LessOrEqual(t, tokens, whole)
}

func TestExecute_ContextCancelledWhileWaiting(t *testing.T) {
	f := newFixture(t, nil)
	f.init(t)

	in, err := f.ctrl.get(context.Background(), "test", mint)
	require.NoError(t, err)
	require.NoError(t, in.lock(context.Background()))
	defer in.unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = f.ctrl.ExecuteBuy(ctx, buy(alice, solUnit))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTimestampsNeverGoBackwards(t *testing.T) {
	f := newFixture(t, nil)
	f.init(t)
	ctx := context.Background()

	first, err := f.ctrl.ExecuteBuy(ctx, buy(alice, solUnit))
	require.NoError(t, err)

	f.clock.Advance(-10 * time.Second)
	second, err := f.ctrl.ExecuteBuy(ctx, buy(alice, solUnit))
	require.NoError(t, err)
	assert.Equal(t, first.Trade.Timestamp, second.Trade.Timestamp)
	assert.NotEqual(t, first.Trade.TradeID, second.Trade.TradeID)
}

func TestQuoteSolForTokens(t *testing.T) {
	f := newFixture(t, nil)
	f.init(t)
	ctx := context.Background()

	const want = 1_000_000_000_000 // 1,000,000 tokens
	gross, err := f.ctrl.QuoteSolForTokens(ctx, mint, want)
	require.NoError(t, err)

	short, err := f.ctrl.PreviewBuy(ctx, mint, gross-1, 0)
	require.NoError(t, err)
	assert.Less(t, short.OutputAmount, uint64(want))

	res, err := f.ctrl.ExecuteBuy(ctx, buy(alice, gross))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, res.OutputAmount, uint64(want))

	_, err = f.ctrl.QuoteSolForTokens(ctx, mint, curve.DefaultTotalSupply)
	requireKind(t, err, domain.KindInsufficientLiquidity)

	_, err = f.ctrl.ExecuteBuy(ctx, buy(alice, 100*solUnit))
	require.NoError(t, err)
	gross, err = f.ctrl.QuoteSolForTokens(ctx, mint, want)
	require.NoError(t, err)
	res, err = f.ctrl.ExecuteBuy(ctx, buy(bob, gross))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, res.OutputAmount, uint64(want))
}

func TestMetrics(t *testing.T) {
	f := newFixture(t, nil)
	f.init(t)
	ctx := context.Background()
	params := curve.DefaultParams()

	m, err := f.ctrl.Metrics(ctx, mint)
	require.NoError(t, err)
	assert.True(t, m.CurrentPrice.Equal(params.SpotPrice(0)))
	assert.True(t, m.MarketCap.Equal(params.SpotPrice(0).Mul(decimal.NewFromInt(1_000_000_000))))
	assert.True(t, m.Volume24h.IsZero())
	assert.True(t, m.PriceChange24h.IsZero())
	assert.Equal(t, 0, m.HolderCount)

	_, err = f.ctrl.ExecuteBuy(ctx, buy(alice, solUnit))
	require.NoError(t, err)
	f.clock.Advance(25 * time.Hour)
	_, err = f.ctrl.ExecuteBuy(ctx, buy(bob, 2*solUnit))
	require.NoError(t, err)

	m, err = f.ctrl.Metrics(ctx, mint)
	require.NoError(t, err)
	assert.True(t, m.Volume24h.Equal(decimal.NewFromInt(2)), m.Volume24h.String())
	assert.True(t, m.PriceChange24h.IsPositive())
	assert.Equal(t, 2, m.HolderCount)
	assert.Equal(t, uint64(2), m.TradeCount)
	assert.False(t, m.IsGraduated)
	assert.True(t, m.GraduationProgress.Equal(params.Progress(2_970_000_000)))
}

func TestCandles(t *testing.T) {
	f := newFixture(t, nil)
	f.init(t)
	ctx := context.Background()

	empty, err := f.ctrl.Candles(ctx, mint, 60, 0)
	require.NoError(t, err)
	require.Len(t, empty, 1)
	assert.True(t, empty[0].Volume.IsZero())
	assert.True(t, empty[0].Close.Equal(curve.DefaultParams().SpotPrice(0)))

	_, err = f.ctrl.ExecuteBuy(ctx, buy(alice, solUnit))
	require.NoError(t, err)
	f.clock.Advance(30 * time.Second)
	_, err = f.ctrl.ExecuteBuy(ctx, buy(alice, solUnit))
	require.NoError(t, err)
	f.clock.Advance(90 * time.Second)
	_, err = f.ctrl.ExecuteBuy(ctx, buy(bob, solUnit))
	require.NoError(t, err)

	got, err := f.ctrl.Candles(ctx, mint, 60, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(baseTime/1000), got[0].Time)
	assert.Equal(t, int64(baseTime/1000+120), got[1].Time)
	assert.Equal(t, 2, got[0].TradeCount)
	assert.True(t, got[0].Volume.Equal(decimal.NewFromInt(2)))
	assert.True(t, got[1].Open.Equal(got[0].Close))

	again, err := f.ctrl.Candles(ctx, mint, 60, 0)
	require.NoError(t, err)
	assert.Equal(t, got, again)

	_, err = f.ctrl.Candles(ctx, mint, 0, 0)
	requireKind(t, err, domain.KindInvalidAmount)
}

func TestRestoreAndLazyLoad(t *testing.T) {
	store := memory.NewStore()
	f := newFixture(t, store)
	f.init(t)
	ctx := context.Background()

	other := idhash.DeriveMint("engine-test", "other")
	_, err := f.ctrl.InitInstrument(ctx, other, creator)
	require.NoError(t, err)

	_, err = f.ctrl.ExecuteBuy(ctx, buy(alice, solUnit))
	require.NoError(t, err)
	_, err = f.ctrl.ExecuteBuy(ctx, buy(bob, 100*solUnit))
	require.NoError(t, err)
	want, err := f.ctrl.State(ctx, mint)
	require.NoError(t, err)

	restored := newFixture(t, store)
	n, err := restored.ctrl.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.ElementsMatch(t, []string{mint, other}, restored.ctrl.Instruments())

	got, err := restored.ctrl.State(ctx, mint)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, 2, restored.ctrl.Ledger().Len(mint))
	assert.Equal(t, 2, restored.ctrl.Ledger().HolderCount(mint))

	lazy := newFixture(t, store)
	spot, err := lazy.ctrl.SpotPrice(ctx, mint)
	require.NoError(t, err)
	wantSpot, err := f.ctrl.SpotPrice(ctx, mint)
	require.NoError(t, err)
	assert.True(t, wantSpot.Equal(spot))

	res, err := lazy.ctrl.ExecuteBuy(ctx, buy(alice, solUnit))
	require.NoError(t, err)
	assert.Equal(t, uint64(3), res.Trade.Seq)
}

func TestArchive(t *testing.T) {
	archive := memory.NewTradeArchive()
	clock := newFakeClock()
	ctrl, err := New(Options{
		Store:   memory.NewStore(),
		Archive: archive,
		Fees:    fees.DefaultPolicy(),
		Metrics: observability.NewMetrics("test", prometheus.NewRegistry()),
		Now:     clock.Now,
	})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = ctrl.InitInstrument(ctx, mint, creator)
	require.NoError(t, err)
	res, err := ctrl.ExecuteBuy(ctx, buy(alice, solUnit))
	require.NoError(t, err)

	got, err := archive.GetByTimeRange(ctx, mint, baseTime, baseTime)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, res.Trade.TradeID, got[0].TradeID)
}
