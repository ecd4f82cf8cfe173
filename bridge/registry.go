package bridge

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// TrustedVaults maps each peer instance to the counterpart vault address
// accepted as the authentic origin of that instance's messages. The registry
// is configured by a privileged operator and read by the router on every
// inbound message as defense in depth on top of the transport's own origin
// verification.
type TrustedVaults struct {
	vaults map[string]common.Address
}

// NewTrustedVaults constructs an empty registry.
func NewTrustedVaults() *TrustedVaults {
	return &TrustedVaults{vaults: make(map[string]common.Address)}
}

// Set registers the trusted counterpart for an instance, replacing any
// previous entry. Privileged configuration path only.
func (t *TrustedVaults) Set(instance string, vault common.Address) {
	if t == nil {
		return
	}
	instance = strings.TrimSpace(instance)
	if instance == "" {
		return
	}
	t.vaults[instance] = vault
}

// Lookup returns the trusted counterpart for the instance.
func (t *TrustedVaults) Lookup(instance string) (common.Address, bool) {
	if t == nil {
		return common.Address{}, false
	}
	addr, ok := t.vaults[instance]
	return addr, ok
}

// Instances lists every instance with a registered counterpart.
func (t *TrustedVaults) Instances() []string {
	if t == nil {
		return nil
	}
	out := make([]string, 0, len(t.vaults))
	for name := range t.vaults {
		out = append(out, name)
	}
	return out
}
