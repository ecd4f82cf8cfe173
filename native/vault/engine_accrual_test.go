package vault

import (
	"math/big"
	"testing"
	"time"
)

const t0 = int64(1_700_000_000)

func newAccrualEngine(t *testing.T) (*Engine, *mockEngineState, *int64) {
	t.Helper()
	engine := NewEngine("chain-a", makeAccount(0xFE), DefaultRiskParameters())
	state := newMockEngineState()
	engine.SetState(state)
	now := t0
	engine.SetClock(func() time.Time { return time.Unix(now, 0) })
	return engine, state, &now
}

func TestFirstTouchStampsWithoutInterest(t *testing.T) {
	engine, state, now := newAccrualEngine(t)
	account := makeAccount(0x01)
	*now = t0 + secondsPerYear

	if _, err := engine.DepositCollateral(account, big.NewInt(100), nil); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	pos := state.positions[stateKey(account, "chain-a")]
	if pos.LastAccrual != t0+secondsPerYear {
		t.Fatalf("expected accrual stamp %d, got %d", t0+secondsPerYear, pos.LastAccrual)
	}
	if pos.Supplied.Sign() != 0 || pos.Borrowed.Sign() != 0 {
		t.Fatalf("a fresh position must not accrue interest")
	}
}

func TestSupplierInterestGrowsPoolLiquidity(t *testing.T) {
	engine, state, now := newAccrualEngine(t)
	supplier := makeAccount(0x01)

	// Half-utilised pool: supply APY is 2% + 50%*10% = 7%.
	state.pools["chain-a"] = &Pool{Instance: "chain-a", TotalLiquidity: big.NewInt(1_000), TotalUtilized: big.NewInt(500)}
	state.positions[stateKey(supplier, "chain-a")] = &Position{
		Account: supplier, Instance: "chain-a",
		Collateral: big.NewInt(0), Borrowed: big.NewInt(0), Supplied: big.NewInt(1_000),
		LastAccrual: t0,
	}
	state.aggregates[supplier] = &Aggregate{
		Account: supplier, TotalCollateral: big.NewInt(0), TotalBorrowed: big.NewInt(0), TotalSupplied: big.NewInt(1_000),
	}

	*now = t0 + secondsPerYear
	if _, err := engine.DepositCollateral(supplier, big.NewInt(1), nil); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	pos := state.positions[stateKey(supplier, "chain-a")]
	if pos.Supplied.Cmp(big.NewInt(1_070)) != 0 {
		t.Fatalf("expected supplied 1070 after a year at 7%%, got %s", pos.Supplied)
	}
	if got := state.pools["chain-a"].TotalLiquidity; got.Cmp(big.NewInt(1_070)) != 0 {
		t.Fatalf("expected pool liquidity 1070, got %s", got)
	}
	if got := state.aggregates[supplier].TotalSupplied; got.Cmp(big.NewInt(1_070)) != 0 {
		t.Fatalf("expected aggregate supplied 1070, got %s", got)
	}
}

func TestSupplierInterestScalesWithElapsedTime(t *testing.T) {
	engine, state, now := newAccrualEngine(t)
	supplier := makeAccount(0x01)

	state.pools["chain-a"] = &Pool{Instance: "chain-a", TotalLiquidity: big.NewInt(1_000), TotalUtilized: big.NewInt(500)}
	state.positions[stateKey(supplier, "chain-a")] = &Position{
		Account: supplier, Instance: "chain-a",
		Collateral: big.NewInt(0), Borrowed: big.NewInt(0), Supplied: big.NewInt(1_000),
		LastAccrual: t0,
	}

	*now = t0 + secondsPerYear/2
	if _, err := engine.DepositCollateral(supplier, big.NewInt(1), nil); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	pos := state.positions[stateKey(supplier, "chain-a")]
	if pos.Supplied.Cmp(big.NewInt(1_035)) != 0 {
		t.Fatalf("expected supplied 1035 after half a year, got %s", pos.Supplied)
	}
}

func TestBorrowerInterestCompoundsIntoDebt(t *testing.T) {
	engine, state, now := newAccrualEngine(t)
	borrower := makeAccount(0x01)

	// Borrow APY at half utilisation is 7% * 1.2 = 8.4%.
	state.pools["chain-a"] = &Pool{Instance: "chain-a", TotalLiquidity: big.NewInt(1_000), TotalUtilized: big.NewInt(500)}
	state.positions[stateKey(borrower, "chain-a")] = &Position{
		Account: borrower, Instance: "chain-a",
		Collateral: big.NewInt(1_000), Borrowed: big.NewInt(500), Supplied: big.NewInt(0),
		LastAccrual: t0,
	}
	state.aggregates[borrower] = &Aggregate{
		Account: borrower, TotalCollateral: big.NewInt(1_000), TotalBorrowed: big.NewInt(500), TotalSupplied: big.NewInt(0),
	}

	*now = t0 + secondsPerYear
	applied, _, err := engine.Repay(borrower, big.NewInt(1_000), nil)
	if err != nil {
		t.Fatalf("repay: %v", err)
	}
	// Accrual runs before the repayment is applied, so the cap includes the
	// year's interest: 500 + 42.
	if applied.Cmp(big.NewInt(542)) != 0 {
		t.Fatalf("expected repayment of 542, got %s", applied)
	}
	pos := state.positions[stateKey(borrower, "chain-a")]
	if pos.Borrowed.Sign() != 0 {
		t.Fatalf("expected debt cleared, got %s", pos.Borrowed)
	}
	if got := state.pools["chain-a"].TotalUtilized; got.Sign() != 0 {
		t.Fatalf("expected utilisation cleared, got %s", got)
	}
}

func TestAccrualIdempotentWithinSameSecond(t *testing.T) {
	engine, state, _ := newAccrualEngine(t)
	supplier := makeAccount(0x01)

	state.pools["chain-a"] = &Pool{Instance: "chain-a", TotalLiquidity: big.NewInt(1_000), TotalUtilized: big.NewInt(500)}
	state.positions[stateKey(supplier, "chain-a")] = &Position{
		Account: supplier, Instance: "chain-a",
		Collateral: big.NewInt(0), Borrowed: big.NewInt(0), Supplied: big.NewInt(1_000),
		LastAccrual: t0,
	}

	for i := 0; i < 3; i++ {
		if _, err := engine.DepositCollateral(supplier, big.NewInt(1), nil); err != nil {
			t.Fatalf("deposit %d: %v", i, err)
		}
	}
	pos := state.positions[stateKey(supplier, "chain-a")]
	if pos.Supplied.Cmp(big.NewInt(1_000)) != 0 {
		t.Fatalf("zero elapsed time must accrue nothing, got %s", pos.Supplied)
	}
}
