package adapters

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"crossvault/bridge"
)

// ProtocolRelayBus names the custom relayer-polled message bus transport.
const ProtocolRelayBus = "relaybus"

// busVersion brands every envelope. Decoding rejects payloads that do not
// carry it, which keeps foreign wire formats from slipping through.
const busVersion = "relaybus/1"

var (
	errBusVersion     = errors.New("relaybus adapter: envelope version mismatch")
	errBusUnsupported = errors.New("relaybus adapter: destination not supported")
)

// busEnvelope is the JSON wire format. Addresses travel as 0x-prefixed hex,
// deltas as signed decimal strings.
type busEnvelope struct {
	Version     string `json:"version"`
	ID          string `json:"id"`
	Source      string `json:"source"`
	Destination string `json:"destination"`
	Action      string `json:"action"`
	Account     string `json:"account"`
	Delta       string `json:"delta"`
	Timestamp   int64  `json:"timestamp"`
	OriginVault string `json:"originVault"`
}

// RelayBus is an in-process message bus drained by an off-chain relayer loop.
// It charges a flat per-message fee and assigns random delivery identifiers.
type RelayBus struct {
	local     string
	instances map[string]struct{}
	flatFee   *big.Int

	// mu guards the queue: the engine enqueues while the relayer loop polls.
	mu    sync.Mutex
	queue []Delivery
}

// NewRelayBus constructs the bus adapter for the named local instance.
func NewRelayBus(local string, instances []string, flatFee *big.Int) *RelayBus {
	supported := make(map[string]struct{}, len(instances))
	for _, name := range instances {
		supported[name] = struct{}{}
	}
	b := &RelayBus{
		local:     local,
		instances: supported,
		flatFee:   new(big.Int),
	}
	if flatFee != nil {
		b.flatFee.Set(flatFee)
	}
	return b
}

// ProtocolName implements bridge.Adapter.
func (b *RelayBus) ProtocolName() string { return ProtocolRelayBus }

// SupportedInstances implements bridge.Adapter.
func (b *RelayBus) SupportedInstances() []string {
	out := make([]string, 0, len(b.instances))
	for name := range b.instances {
		out = append(out, name)
	}
	return out
}

// EstimateFee implements bridge.Adapter.
func (b *RelayBus) EstimateFee(destination string, payload []byte) (*big.Int, error) {
	if _, ok := b.instances[destination]; !ok {
		return nil, fmt.Errorf("%w: %q", errBusUnsupported, destination)
	}
	return new(big.Int).Set(b.flatFee), nil
}

// SendMessage implements bridge.Adapter.
func (b *RelayBus) SendMessage(destination string, destinationVault common.Address, payload []byte, feeToken string) (string, error) {
	if _, ok := b.instances[destination]; !ok {
		return "", fmt.Errorf("%w: %q", errBusUnsupported, destination)
	}
	deliveryID := uuid.NewString()
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queue = append(b.queue, Delivery{
		DeliveryID:       deliveryID,
		Source:           b.local,
		Destination:      destination,
		DestinationVault: destinationVault,
		Payload:          append([]byte(nil), payload...),
		FeeToken:         feeToken,
	})
	return deliveryID, nil
}

// Poll drains the deliveries queued since the last poll. The relayer forwards
// each payload to the destination router's Receive entrypoint; redelivering a
// payload more than once is safe.
func (b *RelayBus) Poll() []Delivery {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.queue
	b.queue = nil
	return out
}

// EncodePayload implements bridge.Adapter.
func (b *RelayBus) EncodePayload(msg *bridge.Message) ([]byte, error) {
	if msg == nil || msg.Delta == nil {
		return nil, errors.New("relaybus adapter: nil message")
	}
	env := busEnvelope{
		Version:     busVersion,
		ID:          msg.ID.Hex(),
		Source:      msg.Source,
		Destination: msg.Destination,
		Action:      msg.Action.String(),
		Account:     msg.Account.Hex(),
		Delta:       msg.Delta.String(),
		Timestamp:   msg.Timestamp,
		OriginVault: msg.OriginVault.Hex(),
	}
	return json.Marshal(env)
}

// DecodePayload implements bridge.Adapter.
func (b *RelayBus) DecodePayload(raw []byte) (*bridge.Message, error) {
	var env busEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("relaybus adapter: decode: %w", err)
	}
	if env.Version != busVersion {
		return nil, errBusVersion
	}
	action, err := bridge.ParseAction(env.Action)
	if err != nil {
		return nil, fmt.Errorf("relaybus adapter: %w", err)
	}
	if !strings.HasPrefix(env.ID, "0x") || len(env.ID) != 66 {
		return nil, fmt.Errorf("relaybus adapter: malformed message id %q", env.ID)
	}
	if !common.IsHexAddress(env.Account) || !common.IsHexAddress(env.OriginVault) {
		return nil, errors.New("relaybus adapter: malformed address")
	}
	delta, ok := new(big.Int).SetString(env.Delta, 10)
	if !ok {
		return nil, fmt.Errorf("relaybus adapter: malformed delta %q", env.Delta)
	}
	return &bridge.Message{
		ID:          common.HexToHash(env.ID),
		Source:      env.Source,
		Destination: env.Destination,
		Action:      action,
		Account:     common.HexToAddress(env.Account),
		Delta:       delta,
		Timestamp:   env.Timestamp,
		OriginVault: common.HexToAddress(env.OriginVault),
	}, nil
}
