package vault

import "fmt"

// RiskParameters groups the operator-controlled safety limits governing
// vault activity, expressed in basis points.
type RiskParameters struct {
	// MaxLTV is the maximum aggregate-debt to aggregate-collateral ratio a
	// borrow may create.
	MaxLTV uint64
	// LiquidationThreshold is the ratio at which a position's health factor
	// reaches 1. Liquidation itself is handled outside this core.
	LiquidationThreshold uint64
}

// DefaultRiskParameters mirror the reference deployment: 75% max LTV with an
// 80% liquidation threshold.
func DefaultRiskParameters() RiskParameters {
	return RiskParameters{MaxLTV: 7_500, LiquidationThreshold: 8_000}
}

// Validate rejects parameter combinations that would let debt exceed the
// collateral backing it.
func (p RiskParameters) Validate() error {
	if p.MaxLTV == 0 || p.MaxLTV > 10_000 {
		return fmt.Errorf("vault params: MaxLTV %d outside (0, 10000]", p.MaxLTV)
	}
	if p.LiquidationThreshold == 0 || p.LiquidationThreshold > 10_000 {
		return fmt.Errorf("vault params: LiquidationThreshold %d outside (0, 10000]", p.LiquidationThreshold)
	}
	if p.LiquidationThreshold < p.MaxLTV {
		return fmt.Errorf("vault params: LiquidationThreshold %d below MaxLTV %d", p.LiquidationThreshold, p.MaxLTV)
	}
	return nil
}
