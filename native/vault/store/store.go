// Package store persists vault ledger records as JSON documents in the
// generic key-value storage layer. Every record family lives under its own
// key prefix so an operator can inspect a database offline with nothing but
// the key scheme.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"crossvault/native/vault"
	"crossvault/storage"
)

const (
	prefixPosition   = "vault/position/"
	prefixRemoteView = "vault/remote/"
	prefixAggregate  = "vault/aggregate/"
	prefixPool       = "vault/pool/"
)

// Store implements the vault engine's persistence interface on top of a
// storage.Database.
type Store struct {
	db storage.Database
}

// New wraps the database.
func New(db storage.Database) *Store {
	return &Store{db: db}
}

type positionRecord struct {
	Account     string   `json:"account"`
	Instance    string   `json:"instance"`
	Collateral  *big.Int `json:"collateral"`
	Borrowed    *big.Int `json:"borrowed"`
	Supplied    *big.Int `json:"supplied"`
	LastAccrual int64    `json:"lastAccrual"`
}

type remoteViewRecord struct {
	Account    string   `json:"account"`
	Instance   string   `json:"instance"`
	Collateral *big.Int `json:"collateral"`
	Borrowed   *big.Int `json:"borrowed"`
	Supplied   *big.Int `json:"supplied"`
}

type aggregateRecord struct {
	Account         string   `json:"account"`
	TotalCollateral *big.Int `json:"totalCollateral"`
	TotalBorrowed   *big.Int `json:"totalBorrowed"`
	TotalSupplied   *big.Int `json:"totalSupplied"`
}

type poolRecord struct {
	Instance       string   `json:"instance"`
	TotalLiquidity *big.Int `json:"totalLiquidity"`
	TotalUtilized  *big.Int `json:"totalUtilized"`
}

func compositeKey(prefix string, account common.Address, instance string) []byte {
	return []byte(prefix + strings.TrimSpace(instance) + "/" + strings.ToLower(account.Hex()))
}

func (s *Store) get(key []byte, out any) (bool, error) {
	raw, err := s.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("store: corrupt record at %s: %w", key, err)
	}
	return true, nil
}

func (s *Store) put(key []byte, record any) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return s.db.Put(key, raw)
}

// GetPosition loads the account's position on the instance, nil when absent.
func (s *Store) GetPosition(account common.Address, instance string) (*vault.Position, error) {
	var rec positionRecord
	ok, err := s.get(compositeKey(prefixPosition, account, instance), &rec)
	if err != nil || !ok {
		return nil, err
	}
	return &vault.Position{
		Account:     common.HexToAddress(rec.Account),
		Instance:    rec.Instance,
		Collateral:  rec.Collateral,
		Borrowed:    rec.Borrowed,
		Supplied:    rec.Supplied,
		LastAccrual: rec.LastAccrual,
	}, nil
}

// PutPosition stores the position.
func (s *Store) PutPosition(position *vault.Position) error {
	if position == nil {
		return nil
	}
	return s.put(compositeKey(prefixPosition, position.Account, position.Instance), positionRecord{
		Account:     position.Account.Hex(),
		Instance:    position.Instance,
		Collateral:  position.Collateral,
		Borrowed:    position.Borrowed,
		Supplied:    position.Supplied,
		LastAccrual: position.LastAccrual,
	})
}

// GetRemoteView loads the applied contribution of the named remote instance.
func (s *Store) GetRemoteView(account common.Address, instance string) (*vault.RemoteView, error) {
	var rec remoteViewRecord
	ok, err := s.get(compositeKey(prefixRemoteView, account, instance), &rec)
	if err != nil || !ok {
		return nil, err
	}
	return &vault.RemoteView{
		Account:    common.HexToAddress(rec.Account),
		Instance:   rec.Instance,
		Collateral: rec.Collateral,
		Borrowed:   rec.Borrowed,
		Supplied:   rec.Supplied,
	}, nil
}

// PutRemoteView stores the contribution mirror.
func (s *Store) PutRemoteView(view *vault.RemoteView) error {
	if view == nil {
		return nil
	}
	return s.put(compositeKey(prefixRemoteView, view.Account, view.Instance), remoteViewRecord{
		Account:    view.Account.Hex(),
		Instance:   view.Instance,
		Collateral: view.Collateral,
		Borrowed:   view.Borrowed,
		Supplied:   view.Supplied,
	})
}

// GetAggregate loads the account's aggregated totals.
func (s *Store) GetAggregate(account common.Address) (*vault.Aggregate, error) {
	var rec aggregateRecord
	ok, err := s.get([]byte(prefixAggregate+strings.ToLower(account.Hex())), &rec)
	if err != nil || !ok {
		return nil, err
	}
	return &vault.Aggregate{
		Account:         common.HexToAddress(rec.Account),
		TotalCollateral: rec.TotalCollateral,
		TotalBorrowed:   rec.TotalBorrowed,
		TotalSupplied:   rec.TotalSupplied,
	}, nil
}

// PutAggregate stores the aggregated totals.
func (s *Store) PutAggregate(aggregate *vault.Aggregate) error {
	if aggregate == nil {
		return nil
	}
	return s.put([]byte(prefixAggregate+strings.ToLower(aggregate.Account.Hex())), aggregateRecord{
		Account:         aggregate.Account.Hex(),
		TotalCollateral: aggregate.TotalCollateral,
		TotalBorrowed:   aggregate.TotalBorrowed,
		TotalSupplied:   aggregate.TotalSupplied,
	})
}

// GetPool loads the instance pool, nil when absent.
func (s *Store) GetPool(instance string) (*vault.Pool, error) {
	var rec poolRecord
	ok, err := s.get([]byte(prefixPool+strings.TrimSpace(instance)), &rec)
	if err != nil || !ok {
		return nil, err
	}
	return &vault.Pool{
		Instance:       rec.Instance,
		TotalLiquidity: rec.TotalLiquidity,
		TotalUtilized:  rec.TotalUtilized,
	}, nil
}

// PutPool stores the instance pool.
func (s *Store) PutPool(pool *vault.Pool) error {
	if pool == nil {
		return nil
	}
	return s.put([]byte(prefixPool+strings.TrimSpace(pool.Instance)), poolRecord{
		Instance:       pool.Instance,
		TotalLiquidity: pool.TotalLiquidity,
		TotalUtilized:  pool.TotalUtilized,
	})
}
