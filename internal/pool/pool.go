// Package pool implements post-graduation constant-product pricing.
//
// Fees are taken from the input on buys and from the output on sells through a
// fees.Policy; they are never added to the reserves, so k = tokenReserve*solReserve
// only grows by the rounding that always favours the pool.
package pool

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"token-curve-engine/internal/domain"
	"token-curve-engine/internal/fees"
	"token-curve-engine/internal/fixedpoint"
)

// Model prices trades against a pool's reserves.
type Model struct {
	Fees          fees.Policy
	TokenDecimals int32
	SolDecimals   int32
}

// Quote is the full breakdown of a pool trade.
type Quote struct {
	AmountIn     uint64 // gross input: lamports for buys, tokens for sells
	AmountOut    uint64 // output delivered to the trader
	Fees         domain.FeeBreakdown
	QuoteVolume  uint64 // gross lamports moved
	ExpectedOut  uint64 // output at the pre-trade spot price, no impact
	PriceImpact  decimal.Decimal
	Price        decimal.Decimal // average execution price, SOL per whole token
	TokenReserve uint64          // after the trade
	SolReserve   uint64          // after the trade
}

// constantProductOut returns floor(amountIn*reserveOut / (reserveIn+amountIn)).
func constantProductOut(amountIn, reserveIn, reserveOut uint64) uint64 {
	num := fixedpoint.Mul(amountIn, reserveOut)
	den := new(uint256.Int).Add(fixedpoint.U(reserveIn), fixedpoint.U(amountIn))
	return num.Div(num, den).Uint64()
}

// GetAmountOut returns (in*(1-f)*reserveOut) / (reserveIn + in*(1-f)), the fee taken from the input.
func (m Model) GetAmountOut(amountIn, reserveIn, reserveOut uint64) (uint64, error) {
	if amountIn == 0 {
		return 0, fmt.Errorf("%w: amount in must be positive", domain.ErrInvalidAmount)
	}
	if reserveIn == 0 || reserveOut == 0 {
		return 0, fmt.Errorf("%w: empty reserves", domain.ErrInsufficientLiquidity)
	}
	net := m.Fees.Split(amountIn).Net
	if net == 0 {
		return 0, fmt.Errorf("%w: %d is consumed by fees", domain.ErrInvalidAmount, amountIn)
	}
	out := constantProductOut(net, reserveIn, reserveOut)
	if out == 0 {
		return 0, fmt.Errorf("%w: %d buys nothing", domain.ErrInvalidAmount, amountIn)
	}
	return out, nil
}

// GetAmountIn returns the smallest gross input whose GetAmountOut is at least amountOut.
func (m Model) GetAmountIn(amountOut, reserveIn, reserveOut uint64) (uint64, error) {
	if amountOut == 0 {
		return 0, fmt.Errorf("%w: amount out must be positive", domain.ErrInvalidAmount)
	}
	if reserveIn == 0 || amountOut >= reserveOut {
		return 0, fmt.Errorf("%w: pool holds %d, %d requested", domain.ErrInsufficientLiquidity, reserveOut, amountOut)
	}
	net, ok := fixedpoint.MulDivUp(reserveIn, amountOut, reserveOut-amountOut)
	if !ok {
		return 0, fmt.Errorf("%w: required input overflows", domain.ErrInsufficientLiquidity)
	}
	gross, ok := m.Fees.GrossUp(net)
	if !ok {
		return 0, fmt.Errorf("%w: required input overflows", domain.ErrInsufficientLiquidity)
	}
	return gross, nil
}

// QuoteBuy prices spending solIn gross lamports on tokens.
func (m Model) QuoteBuy(solIn uint64, state domain.PoolState) (Quote, error) {
	out, err := m.GetAmountOut(solIn, state.SolReserve, state.TokenReserve)
	if err != nil {
		return Quote{}, err
	}
	split := m.Fees.Split(solIn)
	solAfter, ok := addU64(state.SolReserve, split.Net)
	if !ok {
		return Quote{}, fmt.Errorf("%w: sol reserve cannot absorb %d lamports", domain.ErrInsufficientLiquidity, split.Net)
	}
	expected, _ := fixedpoint.MulDiv(split.Net, state.TokenReserve, state.SolReserve)
	return Quote{
		AmountIn:     solIn,
		AmountOut:    out,
		Fees:         split,
		QuoteVolume:  solIn,
		ExpectedOut:  expected,
		PriceImpact:  m.impact(split.Net, out, state),
		Price:        m.price(split.Net, out),
		TokenReserve: state.TokenReserve - out,
		SolReserve:   solAfter,
	}, nil
}

// QuoteSell prices selling tokensIn for lamports; the fee is taken from the lamports.
func (m Model) QuoteSell(tokensIn uint64, state domain.PoolState) (Quote, error) {
	if tokensIn == 0 {
		return Quote{}, fmt.Errorf("%w: tokens in must be positive", domain.ErrInvalidAmount)
	}
	if state.TokenReserve == 0 || state.SolReserve == 0 {
		return Quote{}, fmt.Errorf("%w: empty reserves", domain.ErrInsufficientLiquidity)
	}
	tokensAfter, ok := addU64(state.TokenReserve, tokensIn)
	if !ok {
		return Quote{}, fmt.Errorf("%w: token reserve cannot absorb %d tokens", domain.ErrInsufficientLiquidity, tokensIn)
	}
	gross := constantProductOut(tokensIn, state.TokenReserve, state.SolReserve)
	if gross == 0 || gross >= state.SolReserve {
		return Quote{}, fmt.Errorf("%w: %d tokens release no sol", domain.ErrInsufficientLiquidity, tokensIn)
	}
	split := m.Fees.Split(gross)
	if split.Net == 0 {
		return Quote{}, fmt.Errorf("%w: proceeds are consumed by fees", domain.ErrInvalidAmount)
	}
	expectedGross, _ := fixedpoint.MulDiv(tokensIn, state.SolReserve, state.TokenReserve)
	return Quote{
		AmountIn:     tokensIn,
		AmountOut:    split.Net,
		Fees:         split,
		QuoteVolume:  gross,
		ExpectedOut:  m.Fees.Split(expectedGross).Net,
		PriceImpact:  m.impact(gross, tokensIn, state),
		Price:        m.price(gross, tokensIn),
		TokenReserve: tokensAfter,
		SolReserve:   state.SolReserve - gross,
	}, nil
}

// SpotPrice returns SolReserve/TokenReserve in SOL per whole token.
func (m Model) SpotPrice(state domain.PoolState) decimal.Decimal {
	return fixedpoint.Ratio(fixedpoint.U(state.SolReserve), fixedpoint.U(state.TokenReserve), m.TokenDecimals-m.SolDecimals)
}

// PriceImpact returns how far the average execution price of lamports for tokens
// deviates from the pre-trade spot price, in percent.
func (m Model) PriceImpact(lamports, tokens uint64, state domain.PoolState) decimal.Decimal {
	return m.impact(lamports, tokens, state)
}

func (m Model) impact(lamports, tokens uint64, state domain.PoolState) decimal.Decimal {
	if tokens == 0 || state.TokenReserve == 0 {
		return decimal.Zero
	}
	return fixedpoint.Percent(m.price(lamports, tokens), m.SpotPrice(state)).Abs()
}

func (m Model) price(lamports, tokens uint64) decimal.Decimal {
	return fixedpoint.Ratio(fixedpoint.U(lamports), fixedpoint.U(tokens), m.TokenDecimals-m.SolDecimals)
}

// CheckSlippage fails with ErrSlippageExceeded when actualOut falls short of
// expectedOut by more than maxSlippageBps. A zero maximum disables the check.
func CheckSlippage(expectedOut, actualOut uint64, maxSlippageBps uint32) error {
	if maxSlippageBps == 0 || expectedOut == 0 || actualOut >= expectedOut {
		return nil
	}
	slipped, _ := fixedpoint.MulDivUp(expectedOut-actualOut, fixedpoint.BpsDenominator, expectedOut)
	if slipped > uint64(maxSlippageBps) {
		return fmt.Errorf("%w: slipped %d bps, max %d bps", domain.ErrSlippageExceeded, slipped, maxSlippageBps)
	}
	return nil
}

// MinimumReceived applies a slippage tolerance to an expected output.
func MinimumReceived(out uint64, slippageBps uint32) uint64 {
	if slippageBps >= fixedpoint.BpsDenominator {
		return 0
	}
	floor, _ := fixedpoint.MulDiv(out, uint64(fixedpoint.BpsDenominator-slippageBps), fixedpoint.BpsDenominator)
	return floor
}

func addU64(a, b uint64) (uint64, bool) {
	c := a + b
	return c, c >= a
}
