package vault

import (
	"errors"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"crossvault/bridge"
	"crossvault/core/events"
)

var (
	// ErrNilState is returned when the engine has no persistence wired.
	ErrNilState = errors.New("vault engine: state not configured")
	// ErrInvalidAmount is returned for nil, zero or negative amounts.
	ErrInvalidAmount = errors.New("vault engine: amount must be positive")
	// ErrInsufficientCollateral is returned when a withdrawal exceeds the
	// collateral held on this instance.
	ErrInsufficientCollateral = errors.New("vault engine: withdrawal exceeds local collateral")
	// ErrCollateralFloor is returned when a withdrawal would leave aggregated
	// collateral below aggregated debt.
	ErrCollateralFloor = errors.New("vault engine: withdrawal would breach aggregated debt floor")
	// ErrCreditLineExceeded is returned when a borrow would push aggregated
	// debt beyond the credit line.
	ErrCreditLineExceeded = errors.New("vault engine: borrow exceeds aggregate credit line")
	// ErrInsufficientLiquidity is returned when the local pool cannot
	// physically release the requested amount because it is lent out.
	ErrInsufficientLiquidity = errors.New("vault engine: insufficient available liquidity")
	// ErrInsufficientSupply is returned when a supplier withdraws more than
	// their supplied balance on this instance.
	ErrInsufficientSupply = errors.New("vault engine: withdrawal exceeds supplied balance")
	// ErrNoDebtToRepay is returned when repaying an account with no debt.
	ErrNoDebtToRepay = errors.New("vault engine: no outstanding debt to repay")
	// ErrNotRemote is returned when a remote update names this instance as
	// its own source.
	ErrNotRemote = errors.New("vault engine: remote update originated locally")
	// ErrWrongInstance is returned when a remote update is addressed to a
	// different instance.
	ErrWrongInstance = errors.New("vault engine: update addressed to another instance")
)

var basisPoints = big.NewInt(10_000)

const secondsPerYear = 31_536_000

// IsValidation reports whether the error is one of the engine's synchronous
// validation failures, i.e. the operation aborted before any state mutation
// or message dispatch.
func IsValidation(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrInsufficientCollateral),
		errors.Is(err, ErrCollateralFloor),
		errors.Is(err, ErrCreditLineExceeded),
		errors.Is(err, ErrInsufficientLiquidity),
		errors.Is(err, ErrInsufficientSupply),
		errors.Is(err, ErrNoDebtToRepay):
		return true
	}
	return false
}

type engineState interface {
	GetPosition(account common.Address, instance string) (*Position, error)
	PutPosition(position *Position) error
	GetRemoteView(account common.Address, instance string) (*RemoteView, error)
	PutRemoteView(view *RemoteView) error
	GetAggregate(account common.Address) (*Aggregate, error)
	PutAggregate(aggregate *Aggregate) error
	GetPool(instance string) (*Pool, error)
	PutPool(pool *Pool) error
}

// Broadcaster dispatches a committed delta message towards its destination
// instance. The router is the production implementation.
type Broadcaster interface {
	Broadcast(msg *bridge.Message, feeBudget *big.Int) (string, error)
}

// BroadcastReceipt reports, per peer instance, how the outbound fan-out of a
// committed operation went. A populated Failures map means the local ledger
// moved while the named peers were not informed; the retained messages can be
// retried through Resync.
type BroadcastReceipt struct {
	Deliveries map[string]string
	Failures   map[string]error
}

func newBroadcastReceipt() *BroadcastReceipt {
	return &BroadcastReceipt{
		Deliveries: make(map[string]string),
		Failures:   make(map[string]error),
	}
}

// Engine owns the per-instance account ledger and the aggregated view of
// every account's global position. All operations execute sequentially
// relative to each other; the mutex is the instance's single logical thread
// of control.
type Engine struct {
	mu          sync.Mutex
	state       engineState
	instance    string
	originVault common.Address
	peers       []string
	params      RiskParameters
	model       *InterestModel
	broadcaster Broadcaster
	emitter     events.Emitter
	assets      map[string]struct{}
	outbox      []*bridge.Message
	nonce       uint64
	now         func() time.Time
}

// NewEngine constructs an engine for the named instance. The origin vault
// address identifies this ledger to its peers and is embedded in every
// outbound delta message.
func NewEngine(instance string, originVault common.Address, params RiskParameters) *Engine {
	return &Engine{
		instance:    strings.TrimSpace(instance),
		originVault: originVault,
		params:      params,
		model:       DefaultInterestModel.Clone(),
		emitter:     events.NoopEmitter{},
		assets:      map[string]struct{}{ReferenceAsset: {}},
		now:         time.Now,
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetInterestModel configures the rate model consulted before every
// interest-bearing state change.
func (e *Engine) SetInterestModel(model *InterestModel) {
	if e == nil {
		return
	}
	if model != nil {
		e.model = model.Clone()
	} else {
		e.model = nil
	}
}

// SetBroadcaster wires the outbound message path. A nil broadcaster leaves
// the engine in standalone mode: operations commit locally and queue their
// deltas in the outbox.
func (e *Engine) SetBroadcaster(b Broadcaster) {
	if e == nil {
		return
	}
	e.broadcaster = b
}

// SetPeers configures the peer instances every committed operation fans its
// delta out to.
func (e *Engine) SetPeers(peers []string) {
	if e == nil {
		return
	}
	filtered := make([]string, 0, len(peers))
	for _, peer := range peers {
		peer = strings.TrimSpace(peer)
		if peer == "" || peer == e.instance {
			continue
		}
		filtered = append(filtered, peer)
	}
	e.peers = filtered
}

// SetEmitter wires the event sink.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil || emitter == nil {
		return
	}
	e.emitter = emitter
}

// SetClock overrides the time source. Tests use this to drive accrual.
func (e *Engine) SetClock(now func() time.Time) {
	if e == nil || now == nil {
		return
	}
	e.now = now
}

// Instance returns the instance name this engine serves.
func (e *Engine) Instance() string {
	if e == nil {
		return ""
	}
	return e.instance
}

// DepositCollateral locks collateral on this instance and announces the
// increase to every peer. It never fails for a positive amount.
func (e *Engine) DepositCollateral(account common.Address, amount, feeBudget *big.Int) (*BroadcastReceipt, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	pos, pool, agg, err := e.loadAccountState(account, amount)
	if err != nil {
		return nil, err
	}

	pos.Collateral = new(big.Int).Add(pos.Collateral, amount)
	agg.TotalCollateral = new(big.Int).Add(agg.TotalCollateral, amount)

	if err := e.persist(pos, pool, agg, nil); err != nil {
		return nil, err
	}
	e.emitter.Emit(events.LedgerChange{Account: account, Instance: e.instance, Amount: amount, Kind: events.TypeCollateralDeposited})
	return e.broadcastDelta(account, bridge.ActionCollateralDeposit, amount, feeBudget)
}

// WithdrawCollateral releases collateral held on this instance, provided the
// aggregated position stays above the debt floor.
func (e *Engine) WithdrawCollateral(account common.Address, amount, feeBudget *big.Int) (*BroadcastReceipt, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	pos, pool, agg, err := e.loadAccountState(account, amount)
	if err != nil {
		return nil, err
	}

	if pos.Collateral.Cmp(amount) < 0 {
		return nil, ErrInsufficientCollateral
	}
	remaining := new(big.Int).Sub(agg.TotalCollateral, amount)
	if remaining.Cmp(agg.TotalBorrowed) < 0 {
		return nil, ErrCollateralFloor
	}

	pos.Collateral = new(big.Int).Sub(pos.Collateral, amount)
	agg.TotalCollateral = remaining

	if err := e.persist(pos, pool, agg, nil); err != nil {
		return nil, err
	}
	e.emitter.Emit(events.LedgerChange{Account: account, Instance: e.instance, Amount: amount, Kind: events.TypeCollateralWithdrawn})
	return e.broadcastDelta(account, bridge.ActionCollateralWithdraw, new(big.Int).Neg(amount), feeBudget)
}

// Borrow draws liquidity from the local pool against the aggregated credit
// line. Both the credit line check and the liquidity check run against this
// instance's current, possibly stale, view; the protocol accepts that window
// rather than blocking on global confirmation.
func (e *Engine) Borrow(account common.Address, amount, feeBudget *big.Int) (*BroadcastReceipt, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	pos, pool, agg, err := e.loadAccountState(account, amount)
	if err != nil {
		return nil, err
	}

	projected := new(big.Int).Add(agg.TotalBorrowed, amount)
	if projected.Cmp(agg.CreditLine(e.params.MaxLTV)) > 0 {
		return nil, ErrCreditLineExceeded
	}
	if pool.AvailableLiquidity().Cmp(amount) < 0 {
		return nil, ErrInsufficientLiquidity
	}

	pos.Borrowed = new(big.Int).Add(pos.Borrowed, amount)
	agg.TotalBorrowed = projected
	pool.TotalUtilized = new(big.Int).Add(pool.TotalUtilized, amount)

	if err := e.persist(pos, pool, agg, nil); err != nil {
		return nil, err
	}
	e.emitter.Emit(events.LedgerChange{Account: account, Instance: e.instance, Amount: amount, Kind: events.TypeBorrowed})
	return e.broadcastDelta(account, bridge.ActionBorrow, amount, feeBudget)
}

// Repay pays down debt on this instance, capped at the outstanding balance.
// The applied amount is returned so callers can refund any excess.
func (e *Engine) Repay(account common.Address, amount, feeBudget *big.Int) (*big.Int, *BroadcastReceipt, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	pos, pool, agg, err := e.loadAccountState(account, amount)
	if err != nil {
		return nil, nil, err
	}

	if pos.Borrowed.Sign() == 0 {
		return nil, nil, ErrNoDebtToRepay
	}
	applied := new(big.Int).Set(amount)
	if applied.Cmp(pos.Borrowed) > 0 {
		applied = new(big.Int).Set(pos.Borrowed)
	}

	pos.Borrowed = new(big.Int).Sub(pos.Borrowed, applied)
	agg.TotalBorrowed = new(big.Int).Sub(agg.TotalBorrowed, applied)
	pool.TotalUtilized = new(big.Int).Sub(pool.TotalUtilized, applied)
	if pool.TotalUtilized.Sign() < 0 {
		pool.TotalUtilized = big.NewInt(0)
	}

	if err := e.persist(pos, pool, agg, nil); err != nil {
		return nil, nil, err
	}
	e.emitter.Emit(events.LedgerChange{Account: account, Instance: e.instance, Amount: applied, Kind: events.TypeRepaid})
	receipt, err := e.broadcastDelta(account, bridge.ActionRepay, new(big.Int).Neg(applied), feeBudget)
	return applied, receipt, err
}

// Supply lends liquidity into the local pool.
func (e *Engine) Supply(account common.Address, amount, feeBudget *big.Int) (*BroadcastReceipt, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	pos, pool, agg, err := e.loadAccountState(account, amount)
	if err != nil {
		return nil, err
	}

	pos.Supplied = new(big.Int).Add(pos.Supplied, amount)
	agg.TotalSupplied = new(big.Int).Add(agg.TotalSupplied, amount)
	pool.TotalLiquidity = new(big.Int).Add(pool.TotalLiquidity, amount)

	if err := e.persist(pos, pool, agg, nil); err != nil {
		return nil, err
	}
	e.emitter.Emit(events.LedgerChange{Account: account, Instance: e.instance, Amount: amount, Kind: events.TypeLiquiditySupplied})
	return e.broadcastDelta(account, bridge.ActionLiquiditySupply, amount, feeBudget)
}

// WithdrawSupply redeems supplied liquidity. The withdrawal fails when the
// requested amount exceeds what physically remains in the pool, even if the
// supplier's own principal plus accrued interest nominally covers it; funds
// that are lent out cannot be drained.
func (e *Engine) WithdrawSupply(account common.Address, amount, feeBudget *big.Int) (*BroadcastReceipt, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	pos, pool, agg, err := e.loadAccountState(account, amount)
	if err != nil {
		return nil, err
	}

	if pos.Supplied.Cmp(amount) < 0 {
		return nil, ErrInsufficientSupply
	}
	if pool.AvailableLiquidity().Cmp(amount) < 0 {
		return nil, ErrInsufficientLiquidity
	}

	pos.Supplied = new(big.Int).Sub(pos.Supplied, amount)
	agg.TotalSupplied = new(big.Int).Sub(agg.TotalSupplied, amount)
	pool.TotalLiquidity = new(big.Int).Sub(pool.TotalLiquidity, amount)

	if err := e.persist(pos, pool, agg, nil); err != nil {
		return nil, err
	}
	e.emitter.Emit(events.LedgerChange{Account: account, Instance: e.instance, Amount: amount, Kind: events.TypeLiquidityWithdrawn})
	return e.broadcastDelta(account, bridge.ActionLiquidityWithdraw, new(big.Int).Neg(amount), feeBudget)
}

// ApplyRemoteUpdate folds an authenticated peer delta into the aggregated
// view. Only the router calls this, after origin checks and replay dedup. The
// update touches the aggregate and the per-peer mirror, never the local
// balances: this instance does not claim to know the remote ledger, only that
// its contribution changed by the delta.
func (e *Engine) ApplyRemoteUpdate(msg *bridge.Message) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return ErrNilState
	}
	if msg == nil {
		return ErrInvalidAmount
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	if msg.Destination != e.instance {
		return ErrWrongInstance
	}
	if msg.Source == e.instance {
		return ErrNotRemote
	}

	view, err := e.ensureRemoteView(msg.Account, msg.Source)
	if err != nil {
		return err
	}
	agg, err := e.ensureAggregate(msg.Account)
	if err != nil {
		return err
	}

	switch msg.Action {
	case bridge.ActionCollateralDeposit, bridge.ActionCollateralWithdraw:
		view.Collateral = new(big.Int).Add(view.Collateral, msg.Delta)
		agg.TotalCollateral = new(big.Int).Add(agg.TotalCollateral, msg.Delta)
	case bridge.ActionBorrow, bridge.ActionRepay:
		view.Borrowed = new(big.Int).Add(view.Borrowed, msg.Delta)
		agg.TotalBorrowed = new(big.Int).Add(agg.TotalBorrowed, msg.Delta)
	case bridge.ActionLiquiditySupply, bridge.ActionLiquidityWithdraw:
		view.Supplied = new(big.Int).Add(view.Supplied, msg.Delta)
		agg.TotalSupplied = new(big.Int).Add(agg.TotalSupplied, msg.Delta)
	}

	if err := e.state.PutRemoteView(view); err != nil {
		return err
	}
	if err := e.state.PutAggregate(agg); err != nil {
		return err
	}
	e.emitter.Emit(events.RemoteDeltaApplied{
		MessageID: msg.ID,
		Source:    msg.Source,
		Account:   msg.Account,
		Action:    msg.Action.String(),
		Delta:     msg.Delta,
	})
	return nil
}

// Resync retries every delta message whose dispatch previously failed.
// Messages keep their original identifiers, so peers that did receive an
// earlier delivery drop the retry as a replay while peers that missed it
// converge.
func (e *Engine) Resync(feeBudget *big.Int) (*BroadcastReceipt, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	receipt := newBroadcastReceipt()
	if e.broadcaster == nil || len(e.outbox) == 0 {
		return receipt, nil
	}
	var retained []*bridge.Message
	var failures []error
	for _, msg := range e.outbox {
		deliveryID, err := e.broadcaster.Broadcast(msg, feeBudget)
		if err != nil {
			retained = append(retained, msg)
			receipt.Failures[msg.Destination] = err
			failures = append(failures, err)
			continue
		}
		receipt.Deliveries[msg.Destination] = deliveryID
	}
	e.outbox = retained
	return receipt, errors.Join(failures...)
}

// PendingResync reports how many failed dispatches await retry.
func (e *Engine) PendingResync() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.outbox)
}

// PositionOf returns a copy of the account's local position.
func (e *Engine) PositionOf(account common.Address) (*Position, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return nil, ErrNilState
	}
	pos, err := e.ensurePosition(account)
	if err != nil {
		return nil, err
	}
	return clonePosition(pos), nil
}

// RemoteViewOf returns a copy of the contribution the named peer has reported
// for the account.
func (e *Engine) RemoteViewOf(account common.Address, instance string) (*RemoteView, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return nil, ErrNilState
	}
	view, err := e.ensureRemoteView(account, instance)
	if err != nil {
		return nil, err
	}
	return &RemoteView{
		Account:    view.Account,
		Instance:   view.Instance,
		Collateral: cloneInt(view.Collateral),
		Borrowed:   cloneInt(view.Borrowed),
		Supplied:   cloneInt(view.Supplied),
	}, nil
}

// AccountStatus returns the aggregated view with the derived credit line and
// health factor.
func (e *Engine) AccountStatus(account common.Address) (*AccountStatus, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return nil, ErrNilState
	}
	agg, err := e.ensureAggregate(account)
	if err != nil {
		return nil, err
	}
	copied := &Aggregate{
		Account:         agg.Account,
		TotalCollateral: cloneInt(agg.TotalCollateral),
		TotalBorrowed:   cloneInt(agg.TotalBorrowed),
		TotalSupplied:   cloneInt(agg.TotalSupplied),
	}
	return &AccountStatus{
		Aggregate:    copied,
		CreditLine:   copied.CreditLine(e.params.MaxLTV),
		HealthFactor: copied.HealthFactor(e.params.LiquidationThreshold),
	}, nil
}

// PoolStatus returns the local pool with its derived utilisation and rates.
func (e *Engine) PoolStatus() (*PoolStatus, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return nil, ErrNilState
	}
	pool, err := e.ensurePool()
	if err != nil {
		return nil, err
	}
	copied := &Pool{
		Instance:       pool.Instance,
		TotalLiquidity: cloneInt(pool.TotalLiquidity),
		TotalUtilized:  cloneInt(pool.TotalUtilized),
	}
	return &PoolStatus{
		Pool:               copied,
		AvailableLiquidity: copied.AvailableLiquidity(),
		Utilization:        e.model.Utilisation(copied.TotalUtilized, copied.TotalLiquidity),
		SupplyAPY:          e.model.SupplyAPY(copied.TotalUtilized, copied.TotalLiquidity),
		BorrowAPY:          e.model.BorrowAPY(copied.TotalUtilized, copied.TotalLiquidity),
	}, nil
}

// loadAccountState validates the amount, loads the touched records and runs
// lazy interest accrual before the caller applies its mutation.
func (e *Engine) loadAccountState(account common.Address, amount *big.Int) (*Position, *Pool, *Aggregate, error) {
	if e.state == nil {
		return nil, nil, nil, ErrNilState
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, nil, nil, ErrInvalidAmount
	}
	pos, err := e.ensurePosition(account)
	if err != nil {
		return nil, nil, nil, err
	}
	pool, err := e.ensurePool()
	if err != nil {
		return nil, nil, nil, err
	}
	agg, err := e.ensureAggregate(account)
	if err != nil {
		return nil, nil, nil, err
	}
	e.accrue(pos, pool, agg)
	return pos, pool, agg, nil
}

// accrue applies the lazy interest policy: interest = principal × APY ×
// elapsed / secondsPerYear, computed at the pool's pre-accrual utilisation.
// Supplier interest also grows the pool's total liquidity, borrower interest
// its utilised share. The staleness window equals the time since the
// position's last state-changing operation.
func (e *Engine) accrue(pos *Position, pool *Pool, agg *Aggregate) {
	now := e.now().Unix()
	if pos.LastAccrual == 0 {
		pos.LastAccrual = now
		return
	}
	elapsed := now - pos.LastAccrual
	if elapsed <= 0 {
		return
	}
	pos.LastAccrual = now
	if e.model == nil {
		return
	}

	if pos.Supplied.Sign() > 0 {
		interest := accruedInterest(pos.Supplied, e.model.SupplyAPY(pool.TotalUtilized, pool.TotalLiquidity), elapsed)
		if interest.Sign() > 0 {
			pos.Supplied = new(big.Int).Add(pos.Supplied, interest)
			agg.TotalSupplied = new(big.Int).Add(agg.TotalSupplied, interest)
			pool.TotalLiquidity = new(big.Int).Add(pool.TotalLiquidity, interest)
		}
	}
	if pos.Borrowed.Sign() > 0 {
		interest := accruedInterest(pos.Borrowed, e.model.BorrowAPY(pool.TotalUtilized, pool.TotalLiquidity), elapsed)
		if interest.Sign() > 0 {
			pos.Borrowed = new(big.Int).Add(pos.Borrowed, interest)
			agg.TotalBorrowed = new(big.Int).Add(agg.TotalBorrowed, interest)
			pool.TotalUtilized = new(big.Int).Add(pool.TotalUtilized, interest)
		}
	}
}

func accruedInterest(principal *big.Int, apy *big.Rat, elapsedSeconds int64) *big.Int {
	if principal == nil || principal.Sign() <= 0 || apy == nil || apy.Sign() <= 0 || elapsedSeconds <= 0 {
		return big.NewInt(0)
	}
	interest := new(big.Rat).SetInt(principal)
	interest.Mul(interest, apy)
	interest.Mul(interest, big.NewRat(elapsedSeconds, secondsPerYear))
	return new(big.Int).Quo(interest.Num(), interest.Denom())
}

func (e *Engine) broadcastDelta(account common.Address, action bridge.Action, delta, feeBudget *big.Int) (*BroadcastReceipt, error) {
	receipt := newBroadcastReceipt()
	if len(e.peers) == 0 {
		return receipt, nil
	}
	timestamp := e.now().Unix()
	var failures []error
	for _, peer := range e.peers {
		e.nonce++
		msg := bridge.NewMessage(e.instance, peer, action, account, delta, e.originVault, timestamp, e.nonce)
		if e.broadcaster == nil {
			e.outbox = append(e.outbox, msg)
			continue
		}
		deliveryID, err := e.broadcaster.Broadcast(msg, feeBudget)
		if err != nil {
			e.outbox = append(e.outbox, msg)
			receipt.Failures[peer] = err
			failures = append(failures, err)
			continue
		}
		receipt.Deliveries[peer] = deliveryID
	}
	return receipt, errors.Join(failures...)
}

func (e *Engine) persist(pos *Position, pool *Pool, agg *Aggregate, view *RemoteView) error {
	if pos != nil {
		if err := e.state.PutPosition(pos); err != nil {
			return err
		}
	}
	if pool != nil {
		if err := e.state.PutPool(pool); err != nil {
			return err
		}
	}
	if agg != nil {
		if err := e.state.PutAggregate(agg); err != nil {
			return err
		}
	}
	if view != nil {
		if err := e.state.PutRemoteView(view); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) ensurePosition(account common.Address) (*Position, error) {
	pos, err := e.state.GetPosition(account, e.instance)
	if err != nil {
		return nil, err
	}
	if pos == nil {
		pos = &Position{Account: account, Instance: e.instance}
	}
	if pos.Collateral == nil {
		pos.Collateral = big.NewInt(0)
	}
	if pos.Borrowed == nil {
		pos.Borrowed = big.NewInt(0)
	}
	if pos.Supplied == nil {
		pos.Supplied = big.NewInt(0)
	}
	return pos, nil
}

func (e *Engine) ensureRemoteView(account common.Address, instance string) (*RemoteView, error) {
	view, err := e.state.GetRemoteView(account, instance)
	if err != nil {
		return nil, err
	}
	if view == nil {
		view = &RemoteView{Account: account, Instance: instance}
	}
	if view.Collateral == nil {
		view.Collateral = big.NewInt(0)
	}
	if view.Borrowed == nil {
		view.Borrowed = big.NewInt(0)
	}
	if view.Supplied == nil {
		view.Supplied = big.NewInt(0)
	}
	return view, nil
}

func (e *Engine) ensureAggregate(account common.Address) (*Aggregate, error) {
	agg, err := e.state.GetAggregate(account)
	if err != nil {
		return nil, err
	}
	if agg == nil {
		agg = &Aggregate{Account: account}
	}
	if agg.TotalCollateral == nil {
		agg.TotalCollateral = big.NewInt(0)
	}
	if agg.TotalBorrowed == nil {
		agg.TotalBorrowed = big.NewInt(0)
	}
	if agg.TotalSupplied == nil {
		agg.TotalSupplied = big.NewInt(0)
	}
	return agg, nil
}

func (e *Engine) ensurePool() (*Pool, error) {
	pool, err := e.state.GetPool(e.instance)
	if err != nil {
		return nil, err
	}
	if pool == nil {
		pool = &Pool{Instance: e.instance}
	}
	if pool.TotalLiquidity == nil {
		pool.TotalLiquidity = big.NewInt(0)
	}
	if pool.TotalUtilized == nil {
		pool.TotalUtilized = big.NewInt(0)
	}
	return pool, nil
}
