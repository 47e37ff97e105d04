// Package fees splits gross lamport amounts into creator, platform and net portions.
package fees

import (
	"errors"
	"fmt"

	"token-curve-engine/internal/domain"
	"token-curve-engine/internal/fixedpoint"
)

// Default rates: 1% total, half of it to the creator.
const (
	DefaultTotalBps   = 100
	DefaultCreatorBps = 50
)

// Policy is a fixed basis-point fee split.
type Policy struct {
	TotalBps   uint32 // total fee rate
	CreatorBps uint32 // creator share, part of TotalBps
}

// DefaultPolicy returns the default 0.5% creator / 0.5% platform split.
func DefaultPolicy() Policy {
	return Policy{TotalBps: DefaultTotalBps, CreatorBps: DefaultCreatorBps}
}

// Validate checks that the rates are consistent.
func (p Policy) Validate() error {
	if p.TotalBps >= fixedpoint.BpsDenominator {
		return fmt.Errorf("total fee %d bps must be below %d", p.TotalBps, fixedpoint.BpsDenominator)
	}
	if p.CreatorBps > p.TotalBps {
		return errors.New("creator fee exceeds total fee")
	}
	return nil
}

// PlatformBps returns the platform share.
func (p Policy) PlatformBps() uint32 {
	return p.TotalBps - p.CreatorBps
}

// Split divides gross into creator fee, platform fee and net.
// The three parts always sum to gross; the rounding remainder goes to the platform.
func (p Policy) Split(gross uint64) domain.FeeBreakdown {
	total, _ := fixedpoint.MulDiv(gross, uint64(p.TotalBps), fixedpoint.BpsDenominator)
	creator, _ := fixedpoint.MulDiv(gross, uint64(p.CreatorBps), fixedpoint.BpsDenominator)
	return domain.FeeBreakdown{
		CreatorFee:  creator,
		PlatformFee: total - creator,
		Net:         gross - total,
	}
}

// GrossUp returns the smallest gross amount whose Split leaves at least net.
func (p Policy) GrossUp(net uint64) (uint64, bool) {
	keep := uint64(fixedpoint.BpsDenominator - p.TotalBps)
	gross, ok := fixedpoint.MulDivUp(net, fixedpoint.BpsDenominator, keep)
	if !ok {
		return 0, false
	}
	// floor on the fee can leave a larger net than needed; step down while it still fits.
	for gross > 0 && p.Split(gross-1).Net >= net {
		gross--
	}
	return gross, true
}
