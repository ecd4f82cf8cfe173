package vault

import "math/big"

// InterestModel maps pool utilisation to supply and borrow rates. The model
// is a pure function with no state: supplyAPY = baseRate + utilisation ×
// slope, borrowAPY = supplyAPY × spread. Both curves are monotonic and
// continuous in utilisation by construction.
type InterestModel struct {
	// BaseRate is the supply APY paid at zero utilisation.
	BaseRate *big.Rat
	// Slope is the supply APY increase per unit of utilisation.
	Slope *big.Rat
	// Spread is the multiplier applied to the supply APY to obtain the
	// borrow APY.
	Spread *big.Rat
}

// NewInterestModel constructs a model from basis-point parameters, e.g. a 2%
// base rate is 200 bps and a 1.2x borrow spread is 12_000 bps.
func NewInterestModel(baseRateBps, slopeBps, spreadBps uint64) *InterestModel {
	bps := big.NewInt(10_000)
	return &InterestModel{
		BaseRate: new(big.Rat).SetFrac(new(big.Int).SetUint64(baseRateBps), bps),
		Slope:    new(big.Rat).SetFrac(new(big.Int).SetUint64(slopeBps), bps),
		Spread:   new(big.Rat).SetFrac(new(big.Int).SetUint64(spreadBps), bps),
	}
}

// Clone returns a deep copy of the interest model.
func (m *InterestModel) Clone() *InterestModel {
	if m == nil {
		return nil
	}
	clone := &InterestModel{
		BaseRate: new(big.Rat),
		Slope:    new(big.Rat),
		Spread:   new(big.Rat),
	}
	if m.BaseRate != nil {
		clone.BaseRate.Set(m.BaseRate)
	}
	if m.Slope != nil {
		clone.Slope.Set(m.Slope)
	}
	if m.Spread != nil {
		clone.Spread.Set(m.Spread)
	}
	return clone
}

// Utilisation computes U = totalUtilized / totalLiquidity. An empty pool is
// defined as zero utilisation.
func (m *InterestModel) Utilisation(totalUtilized, totalLiquidity *big.Int) *big.Rat {
	if totalUtilized == nil || totalUtilized.Sign() <= 0 {
		return new(big.Rat)
	}
	if totalLiquidity == nil || totalLiquidity.Sign() <= 0 {
		return new(big.Rat)
	}
	return new(big.Rat).SetFrac(totalUtilized, totalLiquidity)
}

// SupplyAPY derives the supply rate at the pool's current utilisation.
func (m *InterestModel) SupplyAPY(totalUtilized, totalLiquidity *big.Int) *big.Rat {
	if m == nil {
		return new(big.Rat)
	}
	rate := new(big.Rat)
	if m.BaseRate != nil {
		rate.Set(m.BaseRate)
	}
	utilisation := m.Utilisation(totalUtilized, totalLiquidity)
	if utilisation.Sign() == 0 || m.Slope == nil {
		return rate
	}
	return rate.Add(rate, new(big.Rat).Mul(m.Slope, utilisation))
}

// BorrowAPY derives the borrow rate at the pool's current utilisation.
func (m *InterestModel) BorrowAPY(totalUtilized, totalLiquidity *big.Int) *big.Rat {
	if m == nil {
		return new(big.Rat)
	}
	supply := m.SupplyAPY(totalUtilized, totalLiquidity)
	if m.Spread == nil {
		return supply
	}
	return supply.Mul(supply, m.Spread)
}

// DefaultInterestModel carries the documented reference parameters: 2% base
// rate, 10% slope, 1.2x borrow spread.
var DefaultInterestModel = NewInterestModel(200, 1_000, 12_000)
