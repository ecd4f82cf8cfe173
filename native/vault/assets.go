package vault

import (
	"errors"
	"sort"
	"strings"
)

// ReferenceAsset is the single collateral unit the core models today. All
// amounts across instances are denominated in it; multi-asset support is a
// registry extension point, not implemented.
const ReferenceAsset = "REF"

var errEmptyAssetSymbol = errors.New("vault engine: asset symbol required")

// RegisterAsset records a collateral asset symbol on the privileged
// configuration surface. Registration is bookkeeping only: operations still
// settle in the reference unit.
func (e *Engine) RegisterAsset(symbol string) error {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return errEmptyAssetSymbol
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.assets[symbol] = struct{}{}
	return nil
}

// SupportedAssets lists the registered collateral assets in sorted order.
func (e *Engine) SupportedAssets() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.assets))
	for symbol := range e.assets {
		out = append(out, symbol)
	}
	sort.Strings(out)
	return out
}
