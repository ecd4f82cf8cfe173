package bridge

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Adapter is the pluggable transport that physically carries delta messages
// between vault instances. Every implementation owns its own wire encoding;
// the payload produced by EncodePayload on the origin side is only meaningful
// to the same protocol's DecodePayload on the destination side. Address width
// and packing must agree between the two or messages are lost silently, so
// each adapter ships with its own round-trip test.
type Adapter interface {
	// ProtocolName identifies the transport, e.g. "warp" or "relaybus".
	ProtocolName() string
	// SupportedInstances lists the destination instances this adapter can
	// reach.
	SupportedInstances() []string
	// EstimateFee quotes the transport cost for delivering the payload.
	EstimateFee(destination string, payload []byte) (*big.Int, error)
	// SendMessage hands the payload to the transport and returns the
	// transport-assigned delivery identifier. Delivery is fire-and-forget:
	// the call never waits for destination confirmation.
	SendMessage(destination string, destinationVault common.Address, payload []byte, feeToken string) (string, error)
	// EncodePayload serialises a message into this protocol's wire format.
	EncodePayload(msg *Message) ([]byte, error)
	// DecodePayload parses a wire payload produced by this protocol. Payloads
	// written by a different protocol must fail loudly, never decode into a
	// wrong address or amount.
	DecodePayload(raw []byte) (*Message, error)
}
