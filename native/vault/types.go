package vault

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Position holds the balances an account carries on one instance. Amounts are
// denominated in wei of the reference unit and expressed as big integers to
// match on-chain precision. Positions are created lazily on first use and
// never deleted; zero balances persist.
type Position struct {
	// Account is the 20-byte account identity the position belongs to.
	Account common.Address
	// Instance names the deployment this position lives on.
	Instance string
	// Collateral is the amount locked as borrowing collateral here.
	Collateral *big.Int
	// Borrowed is the outstanding debt drawn from this instance's pool.
	Borrowed *big.Int
	// Supplied is the liquidity this account has lent to the local pool.
	Supplied *big.Int
	// LastAccrual is the unix timestamp of the last interest accrual touching
	// this position. Zero until the first state-changing operation.
	LastAccrual int64
}

// RemoteView mirrors, per remote instance, the contribution that instance has
// reported into the local aggregate through delta messages. The local engine
// never claims to know a remote balance exactly, only the sum of the deltas
// it has applied so far.
type RemoteView struct {
	Account    common.Address
	Instance   string
	Collateral *big.Int
	Borrowed   *big.Int
	Supplied   *big.Int
}

// Aggregate is the instance's current belief about an account's global
// position: the local balances plus every applied remote delta. Totals can
// dip negative transiently when deltas arrive out of order; derived figures
// clamp at zero.
type Aggregate struct {
	Account         common.Address
	TotalCollateral *big.Int
	TotalBorrowed   *big.Int
	TotalSupplied   *big.Int
}

// CreditLine derives the maximum aggregate debt permitted against the
// aggregated collateral at the given loan-to-value limit in basis points.
func (a *Aggregate) CreditLine(maxLTVBps uint64) *big.Int {
	if a == nil || a.TotalCollateral == nil || a.TotalCollateral.Sign() <= 0 {
		return big.NewInt(0)
	}
	line := new(big.Int).Mul(a.TotalCollateral, new(big.Int).SetUint64(maxLTVBps))
	return line.Quo(line, basisPoints)
}

// HealthFactor expresses how far aggregated collateral exceeds aggregated
// debt under the liquidation threshold. A nil result means the account has no
// debt and the factor is unbounded.
func (a *Aggregate) HealthFactor(liquidationThresholdBps uint64) *big.Rat {
	if a == nil || a.TotalBorrowed == nil || a.TotalBorrowed.Sign() <= 0 {
		return nil
	}
	collateral := a.TotalCollateral
	if collateral == nil || collateral.Sign() < 0 {
		collateral = big.NewInt(0)
	}
	num := new(big.Int).Mul(collateral, new(big.Int).SetUint64(liquidationThresholdBps))
	den := new(big.Int).Mul(a.TotalBorrowed, basisPoints)
	return new(big.Rat).SetFrac(num, den)
}

// Pool captures the instance-local liquidity accounting. Mutated on every
// supply, withdraw-supply, borrow and repay against this instance.
type Pool struct {
	Instance string
	// TotalLiquidity is the liquidity suppliers have deposited, including
	// interest credited to them.
	TotalLiquidity *big.Int
	// TotalUtilized is the portion of TotalLiquidity currently lent out.
	TotalUtilized *big.Int
}

// AvailableLiquidity returns the funds that physically remain in the pool,
// floored at zero.
func (p *Pool) AvailableLiquidity() *big.Int {
	if p == nil || p.TotalLiquidity == nil {
		return big.NewInt(0)
	}
	utilized := p.TotalUtilized
	if utilized == nil {
		utilized = big.NewInt(0)
	}
	available := new(big.Int).Sub(p.TotalLiquidity, utilized)
	if available.Sign() < 0 {
		return big.NewInt(0)
	}
	return available
}

// AccountStatus is the read-only aggregate view served to UIs and off-chain
// collaborators.
type AccountStatus struct {
	Aggregate    *Aggregate
	CreditLine   *big.Int
	HealthFactor *big.Rat
}

// PoolStatus is the read-only pool view with the derived rate figures.
type PoolStatus struct {
	Pool               *Pool
	AvailableLiquidity *big.Int
	Utilization        *big.Rat
	SupplyAPY          *big.Rat
	BorrowAPY          *big.Rat
}

func clonePosition(p *Position) *Position {
	if p == nil {
		return nil
	}
	clone := &Position{Account: p.Account, Instance: p.Instance, LastAccrual: p.LastAccrual}
	clone.Collateral = cloneInt(p.Collateral)
	clone.Borrowed = cloneInt(p.Borrowed)
	clone.Supplied = cloneInt(p.Supplied)
	return clone
}

func cloneInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
