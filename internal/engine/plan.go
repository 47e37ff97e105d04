package engine

import (
	"fmt"

	"github.com/shopspring/decimal"

	"token-curve-engine/internal/address"
	"token-curve-engine/internal/domain"
	"token-curve-engine/internal/fixedpoint"
	"token-curve-engine/internal/pool"
)

// plan is a priced trade and the state it would produce. Previews and executions
// are both built from a plan, so they cannot disagree.
type plan struct {
	side        domain.Side
	phase       domain.Phase // phase the trade is priced in
	input       uint64
	output      uint64
	expectedOut uint64 // output at the pre-trade spot price
	quoteVolume uint64 // gross lamports
	fees        domain.FeeBreakdown
	price       decimal.Decimal
	impact      decimal.Decimal
	graduates   bool
	next        *domain.InstrumentState // TradeCount and UpdatedAt not yet advanced
}

func (c *Controller) plan(side domain.Side, state *domain.InstrumentState, amount uint64, now int64) (*plan, error) {
	if amount == 0 {
		return nil, fmt.Errorf("%w: amount must be positive", domain.ErrInvalidAmount)
	}
	switch {
	case side == domain.SideBuy && state.IsGraduated():
		return c.planPoolBuy(state, amount)
	case side == domain.SideBuy:
		return c.planCurveBuy(state, amount, now)
	case state.IsGraduated():
		return c.planPoolSell(state, amount)
	default:
		return c.planCurveSell(state, amount)
	}
}

func (c *Controller) planCurveBuy(state *domain.InstrumentState, solIn uint64, now int64) (*plan, error) {
	s := state.Curve.SolRaised
	split := c.fees.Split(solIn)
	if split.Net == 0 {
		return nil, fmt.Errorf("%w: %d lamports are consumed by fees", domain.ErrInvalidAmount, solIn)
	}
	out, err := c.params.QuoteBuy(split.Net, s)
	if err != nil {
		return nil, err
	}
	if remaining := c.params.RemainingSupply(s); out >= remaining {
		return nil, fmt.Errorf("%w: %d tokens requested, %d left on the curve",
			domain.ErrInsufficientLiquidity, out, remaining)
	}
	impact, err := c.params.PriceImpact(split.Net, s)
	if err != nil {
		return nil, err
	}
	expected, _ := fixedpoint.MulDiv(split.Net, c.params.VirtualTokenReserve(s), c.params.VirtualSolReserves+s)

	next := state.Clone()
	next.Curve.SolRaised = s + split.Net
	next.CreatorFees += split.CreatorFee
	next.PlatformFees += split.PlatformFee

	p := &plan{
		side:        domain.SideBuy,
		phase:       domain.PhasePreGraduation,
		input:       solIn,
		output:      out,
		expectedOut: expected,
		quoteVolume: solIn,
		fees:        split,
		price:       c.price(split.Net, out),
		impact:      impact,
		next:        next,
	}
	if c.params.ReachesThreshold(next.Curve.SolRaised) {
		if err := c.graduate(next, now); err != nil {
			return nil, err
		}
		p.graduates = true
	}
	return p, nil
}

// graduate freezes the curve and seeds the pool in place.
func (c *Controller) graduate(next *domain.InstrumentState, now int64) error {
	seeded, err := c.params.SeedPool(next.Curve.SolRaised, now)
	if err != nil {
		return err
	}
	addr, err := address.PoolAddress(next.Instrument)
	if err != nil {
		return fmt.Errorf("derive pool address: %w", err)
	}
	seeded.Address = addr
	next.Curve.Graduated = true
	next.Phase = domain.PhaseGraduated
	next.Pool = seeded
	return nil
}

func (c *Controller) planCurveSell(state *domain.InstrumentState, tokensIn uint64) (*plan, error) {
	s := state.Curve.SolRaised
	gross, err := c.params.QuoteSellTokensForSol(tokensIn, s)
	if err != nil {
		return nil, err
	}
	split := c.fees.Split(gross)
	if split.Net == 0 {
		return nil, fmt.Errorf("%w: proceeds are consumed by fees", domain.ErrInvalidAmount)
	}
	impact, err := c.params.SellPriceImpact(tokensIn, s)
	if err != nil {
		return nil, err
	}
	expectedGross, _ := fixedpoint.MulDiv(tokensIn, c.params.VirtualSolReserves+s, c.params.VirtualTokenReserve(s))

	next := state.Clone()
	next.Curve.SolRaised = s - gross
	next.CreatorFees += split.CreatorFee
	next.PlatformFees += split.PlatformFee

	return &plan{
		side:        domain.SideSell,
		phase:       domain.PhasePreGraduation,
		input:       tokensIn,
		output:      split.Net,
		expectedOut: c.fees.Split(expectedGross).Net,
		quoteVolume: gross,
		fees:        split,
		price:       c.price(gross, tokensIn),
		impact:      impact,
		next:        next,
	}, nil
}

func (c *Controller) planPoolBuy(state *domain.InstrumentState, solIn uint64) (*plan, error) {
	q, err := c.pool.QuoteBuy(solIn, *state.Pool)
	if err != nil {
		return nil, err
	}
	next := state.Clone()
	next.Pool.TokenReserve = q.TokenReserve
	next.Pool.SolReserve = q.SolReserve
	next.CreatorFees += q.Fees.CreatorFee
	next.PlatformFees += q.Fees.PlatformFee

	return &plan{
		side:        domain.SideBuy,
		phase:       domain.PhaseGraduated,
		input:       solIn,
		output:      q.AmountOut,
		expectedOut: q.ExpectedOut,
		quoteVolume: q.QuoteVolume,
		fees:        q.Fees,
		price:       q.Price,
		impact:      q.PriceImpact,
		next:        next,
	}, nil
}

func (c *Controller) planPoolSell(state *domain.InstrumentState, tokensIn uint64) (*plan, error) {
	if held := c.circulating(state); tokensIn > held {
		return nil, fmt.Errorf("%w: %d tokens exceed %d in circulation",
			domain.ErrInsufficientLiquidity, tokensIn, held)
	}
	q, err := c.pool.QuoteSell(tokensIn, *state.Pool)
	if err != nil {
		return nil, err
	}
	next := state.Clone()
	next.Pool.TokenReserve = q.TokenReserve
	next.Pool.SolReserve = q.SolReserve
	next.CreatorFees += q.Fees.CreatorFee
	next.PlatformFees += q.Fees.PlatformFee

	return &plan{
		side:        domain.SideSell,
		phase:       domain.PhaseGraduated,
		input:       tokensIn,
		output:      q.AmountOut,
		expectedOut: q.ExpectedOut,
		quoteVolume: q.QuoteVolume,
		fees:        q.Fees,
		price:       q.Price,
		impact:      q.PriceImpact,
		next:        next,
	}, nil
}

// circulating returns the graduated tokens held outside the pool.
func (c *Controller) circulating(state *domain.InstrumentState) uint64 {
	locked := state.Pool.TokenReserve + state.Pool.ResidualTokens
	if locked >= c.params.TotalSupply {
		return 0
	}
	return c.params.TotalSupply - locked
}

// price returns lamports per token base unit in SOL per whole token.
func (c *Controller) price(lamports, tokens uint64) decimal.Decimal {
	return fixedpoint.Ratio(fixedpoint.U(lamports), fixedpoint.U(tokens), c.params.TokenDecimals-c.params.SolDecimals)
}

// spot returns the marginal price of the state.
func (c *Controller) spot(state *domain.InstrumentState) decimal.Decimal {
	if state.IsGraduated() {
		return c.pool.SpotPrice(*state.Pool)
	}
	return c.params.SpotPrice(state.Curve.SolRaised)
}

// checkSlippage enforces the caller's limits on a plan.
func checkSlippage(p *plan, minOut uint64, maxSlippageBps uint32) error {
	if p.output < minOut {
		return fmt.Errorf("%w: output %d below minimum %d", domain.ErrSlippageExceeded, p.output, minOut)
	}
	return pool.CheckSlippage(p.expectedOut, p.output, maxSlippageBps)
}
