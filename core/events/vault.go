package events

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

const (
	// TypeCollateralDeposited is emitted when collateral is locked locally.
	TypeCollateralDeposited = "vault.collateral.deposited"
	// TypeCollateralWithdrawn is emitted when collateral is released locally.
	TypeCollateralWithdrawn = "vault.collateral.withdrawn"
	// TypeBorrowed is emitted when liquidity is lent out of the local pool.
	TypeBorrowed = "vault.borrowed"
	// TypeRepaid is emitted when outstanding debt is paid down.
	TypeRepaid = "vault.repaid"
	// TypeLiquiditySupplied is emitted when a supplier funds the local pool.
	TypeLiquiditySupplied = "vault.liquidity.supplied"
	// TypeLiquidityWithdrawn is emitted when supplied liquidity is redeemed.
	TypeLiquidityWithdrawn = "vault.liquidity.withdrawn"
	// TypeRemoteDeltaApplied is emitted when a peer instance's delta message
	// survives authentication and replay checks and lands in the aggregate.
	TypeRemoteDeltaApplied = "vault.remote.applied"
)

// LedgerChange describes a committed mutation of the local ledger.
type LedgerChange struct {
	Account  common.Address
	Instance string
	Amount   *big.Int
	Kind     string
}

func (e LedgerChange) EventType() string { return e.Kind }

// RemoteDeltaApplied records an inbound delta that updated the aggregate view.
type RemoteDeltaApplied struct {
	MessageID common.Hash
	Source    string
	Account   common.Address
	Action    string
	Delta     *big.Int
}

func (RemoteDeltaApplied) EventType() string { return TypeRemoteDeltaApplied }
