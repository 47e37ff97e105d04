package engine

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"token-curve-engine/internal/domain"
	"token-curve-engine/internal/fixedpoint"
	"token-curve-engine/internal/pool"
)

// PreviewBuy prices a buy of solIn lamports against the latest published state
// without changing anything. slippageBps only sets MinimumReceived.
func (c *Controller) PreviewBuy(ctx context.Context, instrumentID string, solIn uint64, slippageBps uint32) (*domain.TradePreview, error) {
	return c.preview(ctx, domain.SideBuy, instrumentID, solIn, slippageBps)
}

// PreviewSell prices a sell of tokensIn base units against the latest published state.
func (c *Controller) PreviewSell(ctx context.Context, instrumentID string, tokensIn uint64, slippageBps uint32) (*domain.TradePreview, error) {
	return c.preview(ctx, domain.SideSell, instrumentID, tokensIn, slippageBps)
}

func (c *Controller) preview(ctx context.Context, side domain.Side, instrumentID string, amount uint64, slippageBps uint32) (*domain.TradePreview, error) {
	op := "preview_" + string(side)
	in, err := c.get(ctx, op, instrumentID)
	if err != nil {
		return nil, err
	}
	state := in.state.Load()
	p, err := c.plan(side, state, amount, c.now().UnixMilli())
	if err != nil {
		return nil, domain.NewTradeError(op, instrumentID, err)
	}
	c.metrics.Previews.WithLabelValues(string(side)).Inc()

	return &domain.TradePreview{
		Instrument:      instrumentID,
		Side:            side,
		Phase:           p.phase,
		InputAmount:     p.input,
		OutputAmount:    p.output,
		MinimumReceived: pool.MinimumReceived(p.output, slippageBps),
		Fees:            p.fees,
		PriceImpact:     p.impact,
		ExecutionPrice:  p.price,
		WouldGraduate:   p.graduates,
	}, nil
}

// QuoteSolForTokens returns the gross lamports a buy must spend to receive at least
// tokensOut.
func (c *Controller) QuoteSolForTokens(ctx context.Context, instrumentID string, tokensOut uint64) (uint64, error) {
	const op = "quote_sol_for_tokens"
	in, err := c.get(ctx, op, instrumentID)
	if err != nil {
		return 0, err
	}
	state := in.state.Load()

	if state.IsGraduated() {
		gross, err := c.pool.GetAmountIn(tokensOut, state.Pool.SolReserve, state.Pool.TokenReserve)
		if err != nil {
			return 0, domain.NewTradeError(op, instrumentID, err)
		}
		return gross, nil
	}

	s := state.Curve.SolRaised
	if remaining := c.params.RemainingSupply(s); tokensOut >= remaining {
		return 0, domain.NewTradeError(op, instrumentID, fmt.Errorf("%w: %d tokens requested, %d left on the curve",
			domain.ErrInsufficientLiquidity, tokensOut, remaining))
	}
	net, err := c.params.QuoteBuyExactOut(tokensOut, s)
	if err != nil {
		return 0, domain.NewTradeError(op, instrumentID, err)
	}
	gross, ok := c.fees.GrossUp(net)
	if !ok {
		return 0, domain.NewTradeError(op, instrumentID, fmt.Errorf("%w: required input overflows", domain.ErrInvalidAmount))
	}
	return gross, nil
}

// SpotPrice returns the marginal price of the instrument in SOL per whole token.
func (c *Controller) SpotPrice(ctx context.Context, instrumentID string) (decimal.Decimal, error) {
	in, err := c.get(ctx, "spot_price", instrumentID)
	if err != nil {
		return decimal.Zero, err
	}
	return c.spot(in.state.Load()), nil
}

// Candles returns OHLCV candles of intervalSeconds, the most recent limit of them
// when limit is positive.
func (c *Controller) Candles(ctx context.Context, instrumentID string, intervalSeconds int64, limit int) ([]domain.Candle, error) {
	const op = "candles"
	if intervalSeconds <= 0 {
		return nil, domain.NewTradeError(op, instrumentID, fmt.Errorf("%w: interval must be positive", domain.ErrInvalidAmount))
	}
	in, err := c.get(ctx, op, instrumentID)
	if err != nil {
		return nil, err
	}
	spot := c.spot(in.state.Load())
	return c.candles.Get(instrumentID, intervalSeconds, limit, spot, c.now().UnixMilli()), nil
}

// Metrics summarizes an instrument.
func (c *Controller) Metrics(ctx context.Context, instrumentID string) (*domain.Metrics, error) {
	in, err := c.get(ctx, "metrics", instrumentID)
	if err != nil {
		return nil, err
	}
	state := in.state.Load()
	now := c.now().UnixMilli()
	spot := c.spot(state)

	progress := decimal.NewFromInt(100)
	if !state.IsGraduated() {
		progress = c.params.Progress(state.Curve.SolRaised)
	}

	return &domain.Metrics{
		Instrument:         instrumentID,
		CurrentPrice:       spot,
		MarketCap:          spot.Mul(fixedpoint.ToDecimal(c.params.TotalSupply, c.params.TokenDecimals)),
		Volume24h:          c.ledger.Volume24h(instrumentID, now),
		PriceChange24h:     c.ledger.PriceChange24h(instrumentID, now, spot),
		GraduationProgress: progress,
		IsGraduated:        state.IsGraduated(),
		HolderCount:        c.ledger.HolderCount(instrumentID),
		TradeCount:         state.TradeCount,
	}, nil
}
