package adapters

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"crossvault/bridge"
)

// ProtocolWarp names the generalised cross-chain messaging transport.
const ProtocolWarp = "warp"

// warpMagic is the first envelope field. Decoding rejects anything else, so a
// payload written by a different protocol fails loudly instead of silently
// producing a wrong address or amount.
const warpMagic = uint32(0x57415250)

var (
	errWarpMagic       = errors.New("warp adapter: payload magic mismatch")
	errWarpUnsupported = errors.New("warp adapter: destination not supported")
)

// warpEnvelope is the RLP wire format. Addresses travel as fixed 20-byte
// arrays; the delta is split into magnitude and sign because RLP cannot carry
// negative integers.
type warpEnvelope struct {
	Magic       uint32
	ID          [32]byte
	Source      string
	Destination string
	Action      uint8
	Account     [20]byte
	DeltaNeg    bool
	DeltaAbs    *big.Int
	Timestamp   uint64
	OriginVault [20]byte
}

// Delivery is a payload an adapter has accepted for transport, waiting for
// the off-chain relayer to move it to the destination instance.
type Delivery struct {
	DeliveryID       string
	Source           string
	Destination      string
	DestinationVault common.Address
	Payload          []byte
	FeeToken         string
}

// Warp carries delta messages over a generalised cross-chain messaging
// protocol. Fees scale with payload size the way such transports meter
// relayer gas.
type Warp struct {
	local     string
	instances map[string]struct{}
	baseFee   *big.Int
	perByte   *big.Int

	// mu guards the sequence and the pending queue: the engine enqueues
	// while a relayer goroutine drains.
	mu       sync.Mutex
	sequence uint64
	pending  []Delivery
}

// NewWarp constructs the adapter for the named local instance. The instance
// list declares which destinations the underlying protocol can reach.
func NewWarp(local string, instances []string, baseFee, perByteFee *big.Int) *Warp {
	supported := make(map[string]struct{}, len(instances))
	for _, name := range instances {
		supported[name] = struct{}{}
	}
	w := &Warp{
		local:     local,
		instances: supported,
		baseFee:   new(big.Int),
		perByte:   new(big.Int),
	}
	if baseFee != nil {
		w.baseFee.Set(baseFee)
	}
	if perByteFee != nil {
		w.perByte.Set(perByteFee)
	}
	return w
}

// ProtocolName implements bridge.Adapter.
func (w *Warp) ProtocolName() string { return ProtocolWarp }

// SupportedInstances implements bridge.Adapter.
func (w *Warp) SupportedInstances() []string {
	out := make([]string, 0, len(w.instances))
	for name := range w.instances {
		out = append(out, name)
	}
	return out
}

// EstimateFee implements bridge.Adapter.
func (w *Warp) EstimateFee(destination string, payload []byte) (*big.Int, error) {
	if _, ok := w.instances[destination]; !ok {
		return nil, fmt.Errorf("%w: %q", errWarpUnsupported, destination)
	}
	fee := new(big.Int).Mul(w.perByte, big.NewInt(int64(len(payload))))
	return fee.Add(fee, w.baseFee), nil
}

// SendMessage implements bridge.Adapter. The payload is queued for the
// off-chain relayer; the delivery identifier is derived deterministically from
// the payload and a local sequence number.
func (w *Warp) SendMessage(destination string, destinationVault common.Address, payload []byte, feeToken string) (string, error) {
	if _, ok := w.instances[destination]; !ok {
		return "", fmt.Errorf("%w: %q", errWarpUnsupported, destination)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.sequence++
	seed := append(append([]byte(nil), payload...), byte(w.sequence), byte(w.sequence>>8))
	deliveryID := hex.EncodeToString(ethcrypto.Keccak256(seed)[:16])
	w.pending = append(w.pending, Delivery{
		DeliveryID:       deliveryID,
		Source:           w.local,
		Destination:      destination,
		DestinationVault: destinationVault,
		Payload:          append([]byte(nil), payload...),
		FeeToken:         feeToken,
	})
	return deliveryID, nil
}

// Pending drains the queued deliveries for the relayer.
func (w *Warp) Pending() []Delivery {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := w.pending
	w.pending = nil
	return out
}

// EncodePayload implements bridge.Adapter.
func (w *Warp) EncodePayload(msg *bridge.Message) ([]byte, error) {
	if msg == nil || msg.Delta == nil {
		return nil, errors.New("warp adapter: nil message")
	}
	env := warpEnvelope{
		Magic:       warpMagic,
		ID:          msg.ID,
		Source:      msg.Source,
		Destination: msg.Destination,
		Action:      uint8(msg.Action),
		Account:     msg.Account,
		DeltaNeg:    msg.Delta.Sign() < 0,
		DeltaAbs:    new(big.Int).Abs(msg.Delta),
		Timestamp:   uint64(msg.Timestamp),
		OriginVault: msg.OriginVault,
	}
	return rlp.EncodeToBytes(&env)
}

// DecodePayload implements bridge.Adapter.
func (w *Warp) DecodePayload(raw []byte) (*bridge.Message, error) {
	var env warpEnvelope
	if err := rlp.DecodeBytes(raw, &env); err != nil {
		return nil, fmt.Errorf("warp adapter: decode: %w", err)
	}
	if env.Magic != warpMagic {
		return nil, errWarpMagic
	}
	delta := new(big.Int)
	if env.DeltaAbs != nil {
		delta.Set(env.DeltaAbs)
	}
	if env.DeltaNeg {
		delta.Neg(delta)
	}
	return &bridge.Message{
		ID:          common.Hash(env.ID),
		Source:      env.Source,
		Destination: env.Destination,
		Action:      bridge.Action(env.Action),
		Account:     common.Address(env.Account),
		Delta:       delta,
		Timestamp:   int64(env.Timestamp),
		OriginVault: common.Address(env.OriginVault),
	}, nil
}
