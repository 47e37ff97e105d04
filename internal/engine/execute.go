package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"token-curve-engine/internal/address"
	"token-curve-engine/internal/domain"
	"token-curve-engine/internal/idhash"
	"token-curve-engine/internal/storage"
)

// ExecuteBuy spends req.Amount lamports on tokens. A buy that takes the curve to
// the graduation threshold is filled in full and graduates the instrument in the
// same operation.
func (c *Controller) ExecuteBuy(ctx context.Context, req domain.TradeRequest) (*domain.TradeResult, error) {
	return c.execute(ctx, domain.SideBuy, req)
}

// ExecuteSell sells req.Amount token base units for lamports.
func (c *Controller) ExecuteSell(ctx context.Context, req domain.TradeRequest) (*domain.TradeResult, error) {
	return c.execute(ctx, domain.SideSell, req)
}

func (c *Controller) execute(ctx context.Context, side domain.Side, req domain.TradeRequest) (*domain.TradeResult, error) {
	start := time.Now()
	result, err := c.executeLocked(ctx, side, req)
	if err != nil {
		kind := domain.KindOf(err)
		c.metrics.RecordTradeError(string(side), string(kind))
		log := c.log.Debug
		if kind == domain.KindPersistenceFailure || kind == domain.KindInternal {
			log = c.log.Error
		}
		log("trade rejected",
			zap.String("instrument", req.Instrument),
			zap.String("side", string(side)),
			zap.Uint64("amount", req.Amount),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
		return nil, err
	}

	c.metrics.RecordTrade(string(side), string(result.Trade.Phase), result.Graduated, time.Since(start))
	c.log.Info("trade executed",
		zap.String("instrument", req.Instrument),
		zap.String("trade_id", result.Trade.TradeID),
		zap.Uint64("seq", result.Trade.Seq),
		zap.String("side", string(side)),
		zap.String("phase", string(result.Trade.Phase)),
		zap.Uint64("input", result.Trade.InputAmount),
		zap.Uint64("output", result.OutputAmount),
		zap.String("price", result.ExecutionPrice.String()),
	)
	if result.Graduated {
		c.log.Info("instrument graduated",
			zap.String("instrument", req.Instrument),
			zap.String("pool", result.State.Pool.Address),
			zap.Uint64("token_reserve", result.State.Pool.TokenReserve),
			zap.Uint64("sol_reserve", result.State.Pool.SolReserve),
			zap.Uint64("residual_sol", result.State.Pool.ResidualSol),
			zap.Uint64("residual_tokens", result.State.Pool.ResidualTokens),
		)
	}
	return result, nil
}

func (c *Controller) executeLocked(ctx context.Context, side domain.Side, req domain.TradeRequest) (*domain.TradeResult, error) {
	op := string(side)
	if err := address.ValidateWallet(req.Wallet); err != nil {
		return nil, domain.NewTradeError(op, req.Instrument, fmt.Errorf("wallet: %w", err))
	}
	if req.Amount == 0 {
		return nil, domain.NewTradeError(op, req.Instrument, fmt.Errorf("%w: amount must be positive", domain.ErrInvalidAmount))
	}

	in, err := c.get(ctx, op, req.Instrument)
	if err != nil {
		return nil, err
	}
	if err := in.lock(ctx); err != nil {
		return nil, domain.NewTradeError(op, req.Instrument, err)
	}
	defer in.unlock()

	cur := in.state.Load()
	// Trade timestamps never go backwards, even if the clock does.
	now := c.now().UnixMilli()
	if now < cur.UpdatedAt {
		now = cur.UpdatedAt
	}

	p, err := c.plan(side, cur, req.Amount, now)
	if err != nil {
		return nil, domain.NewTradeError(op, req.Instrument, err)
	}
	if err := checkSlippage(p, req.MinOut, req.MaxSlippageBps); err != nil {
		return nil, domain.NewTradeError(op, req.Instrument, err)
	}

	next := p.next
	next.TradeCount = cur.TradeCount + 1
	next.UpdatedAt = now
	trade := c.newTrade(req, p, next, now)

	commitStart := time.Now()
	err = c.store.CommitTrade(ctx, cur.TradeCount, next, trade)
	c.metrics.RecordCommit(time.Since(commitStart), err)
	if err != nil {
		if errors.Is(err, storage.ErrConflict) {
			c.resync(ctx, in, req.Instrument)
		}
		return nil, domain.NewTradeError(op, req.Instrument, fmt.Errorf("%w: %v", domain.ErrPersistenceFailure, err))
	}

	// Persisted: publish.
	in.state.Store(next)
	if err := c.ledger.Append(trade); err != nil {
		c.log.Error("ledger append failed",
			zap.String("instrument", req.Instrument),
			zap.Uint64("seq", trade.Seq),
			zap.Error(err),
		)
	}
	c.candles.Invalidate(req.Instrument)
	c.archiveTrade(ctx, trade)

	return &domain.TradeResult{
		Trade:          trade,
		OutputAmount:   p.output,
		ExecutionPrice: p.price,
		Fees:           p.fees,
		State:          next.Clone(),
		Graduated:      p.graduates,
	}, nil
}

func (c *Controller) newTrade(req domain.TradeRequest, p *plan, next *domain.InstrumentState, now int64) *domain.Trade {
	trade := &domain.Trade{
		TradeID:        idhash.ComputeTradeID(next.Instrument, next.TradeCount, now),
		Instrument:     next.Instrument,
		Seq:            next.TradeCount,
		Side:           p.side,
		Phase:          p.phase,
		Wallet:         req.Wallet,
		InputAmount:    p.input,
		OutputAmount:   p.output,
		QuoteVolume:    p.quoteVolume,
		CreatorFee:     p.fees.CreatorFee,
		PlatformFee:    p.fees.PlatformFee,
		Price:          p.price,
		Timestamp:      now,
		SolRaisedAfter: next.Curve.SolRaised,
		Graduated:      p.graduates,
	}
	if next.Pool != nil {
		trade.TokenReserveAfter = next.Pool.TokenReserve
		trade.SolReserveAfter = next.Pool.SolReserve
	}
	return trade
}

// archiveTrade copies a committed trade to the archive. Failures are logged only.
func (c *Controller) archiveTrade(ctx context.Context, trade *domain.Trade) {
	if c.archive == nil {
		return
	}
	if err := c.archive.ArchiveTrades(ctx, []*domain.Trade{trade}); err != nil {
		c.metrics.ArchiveFailures.Inc()
		c.log.Warn("archive trade failed",
			zap.String("instrument", trade.Instrument),
			zap.String("trade_id", trade.TradeID),
			zap.Error(err),
		)
	}
}
