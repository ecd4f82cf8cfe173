package bridge

import (
	"github.com/ethereum/go-ethereum/common"

	"crossvault/storage"
)

// ReplayGuard records which message identifiers have already been applied on
// this instance. Entries are inserted exactly once per message and never
// removed; re-delivery of a recorded identifier is a silent no-op in the
// router. The guard is only touched inside the router's receive path, which
// holds the router's receive mutex, so no locking is needed here.
type ReplayGuard struct {
	seen map[common.Hash]struct{}
	db   storage.Database
}

// NewReplayGuard builds an in-memory guard. Suitable for tests and for
// deployments where the transport already provides durable dedup.
func NewReplayGuard() *ReplayGuard {
	return &ReplayGuard{seen: make(map[common.Hash]struct{})}
}

// NewPersistentReplayGuard backs the guard with the given database so applied
// identifiers survive a restart. The in-memory set acts as a write-through
// cache.
func NewPersistentReplayGuard(db storage.Database) *ReplayGuard {
	return &ReplayGuard{seen: make(map[common.Hash]struct{}), db: db}
}

var replayKeyPrefix = []byte("bridge/replay/")

func replayKey(id common.Hash) []byte {
	return append(append([]byte(nil), replayKeyPrefix...), id.Bytes()...)
}

// Seen reports whether the identifier was already applied.
func (g *ReplayGuard) Seen(id common.Hash) (bool, error) {
	if g == nil {
		return false, nil
	}
	if _, ok := g.seen[id]; ok {
		return true, nil
	}
	if g.db == nil {
		return false, nil
	}
	ok, err := g.db.Has(replayKey(id))
	if err != nil {
		return false, err
	}
	if ok {
		g.seen[id] = struct{}{}
	}
	return ok, nil
}

// Mark records the identifier as applied.
func (g *ReplayGuard) Mark(id common.Hash) error {
	if g == nil {
		return nil
	}
	g.seen[id] = struct{}{}
	if g.db == nil {
		return nil
	}
	return g.db.Put(replayKey(id), []byte{1})
}
