// Package curve implements pre-graduation bonding-curve pricing.
//
// The curve sells tokensSold(s) = A - B/(C+s) tokens after s lamports have been
// raised, where A is the virtual token reserve, C the virtual SOL reserve and
// B = A*C, so tokensSold(0) = 0. Equivalently it is a constant-product market over
// the virtual reserves (C+s, B/(C+s)). All functions are pure.
package curve

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"token-curve-engine/internal/domain"
	"token-curve-engine/internal/fixedpoint"
)

// Default curve constants, in base units.
const (
	DefaultTokenDecimals        = 6
	DefaultSolDecimals          = 9
	DefaultVirtualTokenReserves = 1_073_000_191_000_000 // 1,073,000,191 tokens
	DefaultVirtualSolReserves   = 30_000_000_000        // 30 SOL
	DefaultTotalSupply          = 1_000_000_000_000_000 // 1,000,000,000 tokens
	DefaultGraduationThreshold  = 85_000_000_000        // 85 SOL
)

// Params are the constants of one bonding curve.
type Params struct {
	VirtualTokenReserves uint64 // A, token base units
	VirtualSolReserves   uint64 // C, lamports
	TotalSupply          uint64 // token base units minted for the instrument
	GraduationThreshold  uint64 // SolRaised that triggers graduation
	TokenDecimals        int32
	SolDecimals          int32
}

// DefaultParams returns the default launch curve.
func DefaultParams() Params {
	return Params{
		VirtualTokenReserves: DefaultVirtualTokenReserves,
		VirtualSolReserves:   DefaultVirtualSolReserves,
		TotalSupply:          DefaultTotalSupply,
		GraduationThreshold:  DefaultGraduationThreshold,
		TokenDecimals:        DefaultTokenDecimals,
		SolDecimals:          DefaultSolDecimals,
	}
}

// Validate checks that the constants describe a usable curve.
func (p Params) Validate() error {
	if p.VirtualTokenReserves == 0 || p.VirtualSolReserves == 0 {
		return errors.New("virtual reserves must be positive")
	}
	if p.TotalSupply == 0 {
		return errors.New("total supply must be positive")
	}
	if p.GraduationThreshold == 0 {
		return errors.New("graduation threshold must be positive")
	}
	if p.TokensSold(p.GraduationThreshold) >= p.TotalSupply {
		return fmt.Errorf("curve sells the whole supply before graduating at %d lamports", p.GraduationThreshold)
	}
	if p.TokenDecimals < 0 || p.SolDecimals < 0 {
		return errors.New("decimals must not be negative")
	}
	return nil
}

// k returns B = A*C.
func (p Params) k() *uint256.Int {
	return fixedpoint.Mul(p.VirtualTokenReserves, p.VirtualSolReserves)
}

// virtualSol returns C+s.
func (p Params) virtualSol(solRaised uint64) *uint256.Int {
	return new(uint256.Int).Add(fixedpoint.U(p.VirtualSolReserves), fixedpoint.U(solRaised))
}

// virtualTokens returns ceil(B/(C+s)), the tokens still held by the virtual reserve.
func (p Params) virtualTokens(solRaised uint64) *uint256.Int {
	return fixedpoint.DivUp(p.k(), p.virtualSol(solRaised))
}

// VirtualTokenReserve returns the virtual token reserve at solRaised.
func (p Params) VirtualTokenReserve(solRaised uint64) uint64 {
	return p.virtualTokens(solRaised).Uint64()
}

// TokensSold returns A - B/(C+s).
func (p Params) TokensSold(solRaised uint64) uint64 {
	return p.VirtualTokenReserves - p.VirtualTokenReserve(solRaised)
}

// RemainingSupply returns the minted supply not yet sold by the curve.
func (p Params) RemainingSupply(solRaised uint64) uint64 {
	sold := p.TokensSold(solRaised)
	if sold >= p.TotalSupply {
		return 0
	}
	return p.TotalSupply - sold
}

// QuoteBuy returns the tokens bought with solIn net lamports at solRaised.
func (p Params) QuoteBuy(solIn, solRaised uint64) (uint64, error) {
	if solIn == 0 {
		return 0, fmt.Errorf("%w: sol in must be positive", domain.ErrInvalidAmount)
	}
	after, ok := addU64(solRaised, solIn)
	if !ok {
		return 0, fmt.Errorf("%w: sol in overflows", domain.ErrInvalidAmount)
	}
	out := new(uint256.Int).Sub(p.virtualTokens(solRaised), p.virtualTokens(after))
	if out.IsZero() {
		return 0, fmt.Errorf("%w: %d lamports buys no tokens", domain.ErrInvalidAmount, solIn)
	}
	return out.Uint64(), nil
}

// QuoteBuyExactOut returns the smallest net lamport amount whose QuoteBuy yields at least tokensOut.
func (p Params) QuoteBuyExactOut(tokensOut, solRaised uint64) (uint64, error) {
	if tokensOut == 0 {
		return 0, fmt.Errorf("%w: tokens out must be positive", domain.ErrInvalidAmount)
	}
	vTok := p.virtualTokens(solRaised)
	if fixedpoint.U(tokensOut).Cmp(vTok) >= 0 {
		return 0, fmt.Errorf("%w: curve cannot supply %d tokens", domain.ErrInsufficientLiquidity, tokensOut)
	}
	target := new(uint256.Int).Sub(vTok, fixedpoint.U(tokensOut))
	need := fixedpoint.DivUp(p.k(), target)
	solIn := new(uint256.Int).Sub(need, p.virtualSol(solRaised))
	in, ok := fixedpoint.ToUint64(solIn)
	if !ok {
		return 0, fmt.Errorf("%w: required sol overflows", domain.ErrInsufficientLiquidity)
	}
	if in == 0 {
		in = 1
	}
	return in, nil
}

// QuoteSellTokensForSol returns the gross lamports released by selling tokensIn at solRaised.
func (p Params) QuoteSellTokensForSol(tokensIn, solRaised uint64) (uint64, error) {
	if tokensIn == 0 {
		return 0, fmt.Errorf("%w: tokens in must be positive", domain.ErrInvalidAmount)
	}
	if tokensIn > p.TokensSold(solRaised) {
		return 0, fmt.Errorf("%w: %d tokens exceed %d sold by the curve",
			domain.ErrInsufficientLiquidity, tokensIn, p.TokensSold(solRaised))
	}
	vTok := new(uint256.Int).Add(p.virtualTokens(solRaised), fixedpoint.U(tokensIn))
	newVSol := fixedpoint.DivUp(p.k(), vTok)
	vSol := p.virtualSol(solRaised)
	if newVSol.Cmp(vSol) >= 0 {
		return 0, fmt.Errorf("%w: %d tokens release no sol", domain.ErrInvalidAmount, tokensIn)
	}
	return new(uint256.Int).Sub(vSol, newVSol).Uint64(), nil
}

// SpotPrice returns the marginal price in SOL per whole token: (C+s)^2 / B.
func (p Params) SpotPrice(solRaised uint64) decimal.Decimal {
	vSol := p.virtualSol(solRaised)
	num := new(uint256.Int).Mul(vSol, vSol)
	return fixedpoint.Ratio(num, p.k(), p.TokenDecimals-p.SolDecimals)
}

// PriceImpact returns (spot(s+in) - spot(s)) / spot(s) * 100.
func (p Params) PriceImpact(solIn, solRaised uint64) (decimal.Decimal, error) {
	if solIn == 0 {
		return decimal.Zero, fmt.Errorf("%w: sol in must be positive", domain.ErrInvalidAmount)
	}
	after, ok := addU64(solRaised, solIn)
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: sol in overflows", domain.ErrInvalidAmount)
	}
	before := p.virtualSol(solRaised)
	beforeSq := new(uint256.Int).Mul(before, before)
	next := p.virtualSol(after)
	diff := new(uint256.Int).Sub(new(uint256.Int).Mul(next, next), beforeSq)
	return fixedpoint.Ratio(diff.Mul(diff, uint256.NewInt(100)), beforeSq, 0), nil
}

// SellPriceImpact returns the percent drop of the spot price caused by selling tokensIn.
func (p Params) SellPriceImpact(tokensIn, solRaised uint64) (decimal.Decimal, error) {
	solOut, err := p.QuoteSellTokensForSol(tokensIn, solRaised)
	if err != nil {
		return decimal.Zero, err
	}
	return fixedpoint.Percent(p.SpotPrice(solRaised-solOut), p.SpotPrice(solRaised)).Abs(), nil
}

// Progress returns SolRaised as a percent of the graduation threshold, capped at 100.
func (p Params) Progress(solRaised uint64) decimal.Decimal {
	if solRaised >= p.GraduationThreshold {
		return decimal.NewFromInt(100)
	}
	return fixedpoint.Ratio(fixedpoint.Mul(solRaised, 100), fixedpoint.U(p.GraduationThreshold), 0)
}

// ReachesThreshold reports whether solRaised graduates the curve.
func (p Params) ReachesThreshold(solRaised uint64) bool {
	return solRaised >= p.GraduationThreshold
}

func addU64(a, b uint64) (uint64, bool) {
	c := a + b
	return c, c >= a
}
