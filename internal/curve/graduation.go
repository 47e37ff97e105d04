package curve

import (
	"fmt"

	"github.com/holiman/uint256"

	"token-curve-engine/internal/domain"
	"token-curve-engine/internal/fixedpoint"
)

// SeedPool derives the pool that replaces the curve once solRaised graduates it.
//
// The pool is priced at the curve's terminal spot price p = (C+s)^2/B so the price is
// continuous across graduation. It holds min(remaining supply, s/p) tokens and the SOL
// that prices them at p; whatever raised SOL or curve supply is left over is reported as
// residual and never enters the pool.
func (p Params) SeedPool(solRaised uint64, now int64) (*domain.PoolState, error) {
	if solRaised == 0 {
		return nil, fmt.Errorf("%w: nothing raised to seed the pool", domain.ErrInsufficientLiquidity)
	}
	remaining := p.RemainingSupply(solRaised)
	if remaining == 0 {
		return nil, fmt.Errorf("%w: no supply left to seed the pool", domain.ErrInsufficientLiquidity)
	}

	vSol := p.virtualSol(solRaised)
	vSolSq := new(uint256.Int).Mul(vSol, vSol)

	// tokens = s * B / (C+s)^2, i.e. s at price p.
	tokens := new(uint256.Int).Mul(fixedpoint.U(solRaised), p.k())
	tokens.Div(tokens, vSolSq)
	tokenReserve := remaining
	if tokens.IsUint64() && tokens.Uint64() < remaining {
		tokenReserve = tokens.Uint64()
	}

	sol := new(uint256.Int).Mul(fixedpoint.U(tokenReserve), vSolSq)
	sol.Div(sol, p.k())
	solReserve, ok := fixedpoint.ToUint64(sol)
	if !ok || solReserve > solRaised {
		solReserve = solRaised
	}
	if tokenReserve == 0 || solReserve == 0 {
		return nil, fmt.Errorf("%w: pool reserves would be empty", domain.ErrInsufficientLiquidity)
	}

	return &domain.PoolState{
		TokenReserve:   tokenReserve,
		SolReserve:     solReserve,
		ResidualTokens: remaining - tokenReserve,
		ResidualSol:    solRaised - solReserve,
		GraduatedAt:    now,
	}, nil
}
