package bridge

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Action identifies which aggregated balance a delta message mutates.
type Action uint8

const (
	// ActionCollateralDeposit credits the account's aggregated collateral.
	ActionCollateralDeposit Action = iota + 1
	// ActionCollateralWithdraw debits the account's aggregated collateral.
	ActionCollateralWithdraw
	// ActionBorrow credits the account's aggregated debt.
	ActionBorrow
	// ActionRepay debits the account's aggregated debt.
	ActionRepay
	// ActionLiquiditySupply credits the account's aggregated supplied balance.
	ActionLiquiditySupply
	// ActionLiquidityWithdraw debits the account's aggregated supplied balance.
	ActionLiquidityWithdraw
)

// String returns the canonical wire name for the action.
func (a Action) String() string {
	switch a {
	case ActionCollateralDeposit:
		return "collateral_deposit"
	case ActionCollateralWithdraw:
		return "collateral_withdraw"
	case ActionBorrow:
		return "borrow"
	case ActionRepay:
		return "repay"
	case ActionLiquiditySupply:
		return "liquidity_supply"
	case ActionLiquidityWithdraw:
		return "liquidity_withdraw"
	default:
		return "unknown"
	}
}

// ParseAction maps a wire name back to its action code.
func ParseAction(name string) (Action, error) {
	switch name {
	case "collateral_deposit":
		return ActionCollateralDeposit, nil
	case "collateral_withdraw":
		return ActionCollateralWithdraw, nil
	case "borrow":
		return ActionBorrow, nil
	case "repay":
		return ActionRepay, nil
	case "liquidity_supply":
		return ActionLiquiditySupply, nil
	case "liquidity_withdraw":
		return ActionLiquidityWithdraw, nil
	default:
		return 0, fmt.Errorf("bridge: unknown action %q", name)
	}
}

// Valid reports whether the action code is one of the defined operations.
func (a Action) Valid() bool {
	return a >= ActionCollateralDeposit && a <= ActionLiquidityWithdraw
}

var (
	errEmptySource      = errors.New("bridge message: source instance required")
	errEmptyDestination = errors.New("bridge message: destination instance required")
	errSelfDestination  = errors.New("bridge message: source and destination must differ")
	errInvalidAction    = errors.New("bridge message: unknown action code")
	errZeroAccount      = errors.New("bridge message: account not set")
	errNilDelta         = errors.New("bridge message: delta not set")
	errZeroID           = errors.New("bridge message: identifier not set")
)

// Message is the immutable delta notification exchanged between vault
// instances. Deltas are signed: withdrawals and repayments carry negative
// amounts so that application order never matters.
type Message struct {
	ID          common.Hash
	Source      string
	Destination string
	Action      Action
	Account     common.Address
	Delta       *big.Int
	Timestamp   int64
	OriginVault common.Address
}

// NewMessage assembles a delta message and derives its identifier from the
// origin fields plus a per-sender nonce, so redeliveries of the same logical
// update share one ID while distinct updates never collide.
func NewMessage(source, destination string, action Action, account common.Address, delta *big.Int, originVault common.Address, timestamp int64, nonce uint64) *Message {
	msg := &Message{
		Source:      source,
		Destination: destination,
		Action:      action,
		Account:     account,
		Delta:       new(big.Int),
		Timestamp:   timestamp,
		OriginVault: originVault,
	}
	if delta != nil {
		msg.Delta.Set(delta)
	}
	msg.ID = messageID(msg, nonce)
	return msg
}

func messageID(m *Message, nonce uint64) common.Hash {
	var scratch [8]byte
	data := make([]byte, 0, 128)
	data = append(data, []byte(m.Source)...)
	data = append(data, 0x00)
	data = append(data, []byte(m.Destination)...)
	data = append(data, 0x00)
	data = append(data, byte(m.Action))
	data = append(data, m.Account.Bytes()...)
	data = append(data, []byte(m.Delta.String())...)
	binary.BigEndian.PutUint64(scratch[:], uint64(m.Timestamp))
	data = append(data, scratch[:]...)
	binary.BigEndian.PutUint64(scratch[:], nonce)
	data = append(data, scratch[:]...)
	return ethcrypto.Keccak256Hash(data)
}

// Validate performs the structural checks the receive path applies to every
// decoded payload before it can touch state.
func (m *Message) Validate() error {
	if m == nil {
		return errNilDelta
	}
	if m.Source == "" {
		return errEmptySource
	}
	if m.Destination == "" {
		return errEmptyDestination
	}
	if m.Source == m.Destination {
		return errSelfDestination
	}
	if !m.Action.Valid() {
		return errInvalidAction
	}
	if m.Account == (common.Address{}) {
		return errZeroAccount
	}
	if m.Delta == nil {
		return errNilDelta
	}
	if m.ID == (common.Hash{}) {
		return errZeroID
	}
	return nil
}

// Clone returns a deep copy so adapters and the router can hold messages
// without aliasing the sender's delta.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	clone := *m
	clone.Delta = new(big.Int)
	if m.Delta != nil {
		clone.Delta.Set(m.Delta)
	}
	return &clone
}
