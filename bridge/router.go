package bridge

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
)

var (
	// ErrNoAdapter is returned when no registered adapter can reach the
	// destination instance.
	ErrNoAdapter = errors.New("bridge router: no adapter for destination")
	// ErrInsufficientFeeBudget is returned when the caller's fee budget does
	// not cover the adapter's quoted transport cost.
	ErrInsufficientFeeBudget = errors.New("bridge router: fee budget below estimated transport cost")
	// ErrUnknownInstance is returned when the claimed source has no adapter
	// registration.
	ErrUnknownInstance = errors.New("bridge router: instance has no registered adapter")
	// ErrAdapterMismatch is returned when the delivering adapter identity does
	// not match the adapter registered for the claimed source.
	ErrAdapterMismatch = errors.New("bridge router: caller adapter does not match registration")
	// ErrUntrustedSource is returned when the decoded origin vault is not the
	// registered counterpart for the claimed source instance.
	ErrUntrustedSource = errors.New("bridge router: origin vault not trusted for instance")
	// ErrWrongDestination is returned when a decoded message was addressed to
	// a different instance.
	ErrWrongDestination = errors.New("bridge router: message addressed to another instance")
	// ErrMalformedPayload wraps decode and structural validation failures. The
	// replay guard is deliberately not marked in this case so a corrected
	// re-delivery under the same identifier can still succeed.
	ErrMalformedPayload = errors.New("bridge router: malformed payload")
)

// TransportError reports an outbound dispatch failure. It always occurs after
// the local ledger mutation was committed, so callers must treat it as a
// partial success: the local position changed, the peers were not informed.
type TransportError struct {
	Destination string
	Protocol    string
	Err         error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("bridge router: dispatch to %s via %s: %v", e.Destination, e.Protocol, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// RemoteApplier consumes authenticated, deduplicated delta messages. The vault
// engine is its only implementation; nothing else may mutate aggregates.
type RemoteApplier interface {
	ApplyRemoteUpdate(msg *Message) error
}

// Router owns adapter selection for outbound deltas and the authentication,
// dedup and forwarding of inbound ones. The receive mutex serializes inbound
// deliveries: the HTTP entrypoint calls Receive from arbitrary goroutines,
// and the Seen/apply/Mark sequence on the replay guard must not interleave or
// a concurrent duplicate would apply twice.
type Router struct {
	recvMu    sync.Mutex
	local     string
	adapters  map[string]Adapter
	preferred map[string]string
	trusted   *TrustedVaults
	guard     *ReplayGuard
	applier   RemoteApplier
	log       *slog.Logger
	metrics   *routerMetrics
}

// NewRouter constructs a router for the named local instance.
func NewRouter(local string, trusted *TrustedVaults, guard *ReplayGuard, applier RemoteApplier, log *slog.Logger) *Router {
	if trusted == nil {
		trusted = NewTrustedVaults()
	}
	if guard == nil {
		guard = NewReplayGuard()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Router{
		local:     strings.TrimSpace(local),
		adapters:  make(map[string]Adapter),
		preferred: make(map[string]string),
		trusted:   trusted,
		guard:     guard,
		applier:   applier,
		log:       log,
		metrics:   defaultRouterMetrics(),
	}
}

// RegisterAdapter makes the adapter available under its protocol name.
// Privileged configuration path only.
func (r *Router) RegisterAdapter(adapter Adapter) error {
	if adapter == nil {
		return errors.New("bridge router: nil adapter")
	}
	name := strings.TrimSpace(adapter.ProtocolName())
	if name == "" {
		return errors.New("bridge router: adapter protocol name required")
	}
	r.adapters[name] = adapter
	return nil
}

// SetPreferredAdapter pins the protocol used for an instance, both for
// outbound dispatch to it and as the only identity accepted for inbound
// deliveries claiming it as source. Privileged configuration path only.
func (r *Router) SetPreferredAdapter(instance, protocol string) error {
	instance = strings.TrimSpace(instance)
	protocol = strings.TrimSpace(protocol)
	if instance == "" || protocol == "" {
		return errors.New("bridge router: instance and protocol required")
	}
	if _, ok := r.adapters[protocol]; !ok {
		return fmt.Errorf("bridge router: protocol %q not registered", protocol)
	}
	r.preferred[instance] = protocol
	return nil
}

func (r *Router) adapterFor(destination string) (Adapter, error) {
	if protocol, ok := r.preferred[destination]; ok {
		if adapter, ok := r.adapters[protocol]; ok {
			return adapter, nil
		}
	}
	for _, adapter := range r.adapters {
		for _, supported := range adapter.SupportedInstances() {
			if supported == destination {
				return adapter, nil
			}
		}
	}
	return nil, ErrNoAdapter
}

// Broadcast dispatches one delta message to its destination instance. The
// message must already be committed locally; a returned *TransportError means
// the peers were not informed while the local ledger already moved.
func (r *Router) Broadcast(msg *Message, feeBudget *big.Int) (string, error) {
	if msg == nil {
		return "", fmt.Errorf("%w: nil message", ErrMalformedPayload)
	}
	if err := msg.Validate(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	adapter, err := r.adapterFor(msg.Destination)
	if err != nil {
		r.metrics.transportErrs.Inc()
		return "", &TransportError{Destination: msg.Destination, Err: err}
	}
	destVault, ok := r.trusted.Lookup(msg.Destination)
	if !ok {
		r.metrics.transportErrs.Inc()
		return "", &TransportError{Destination: msg.Destination, Protocol: adapter.ProtocolName(), Err: ErrUnknownInstance}
	}
	payload, err := adapter.EncodePayload(msg)
	if err != nil {
		r.metrics.transportErrs.Inc()
		return "", &TransportError{Destination: msg.Destination, Protocol: adapter.ProtocolName(), Err: err}
	}
	fee, err := adapter.EstimateFee(msg.Destination, payload)
	if err != nil {
		r.metrics.transportErrs.Inc()
		return "", &TransportError{Destination: msg.Destination, Protocol: adapter.ProtocolName(), Err: err}
	}
	if feeBudget == nil || feeBudget.Cmp(fee) < 0 {
		r.metrics.transportErrs.Inc()
		return "", &TransportError{Destination: msg.Destination, Protocol: adapter.ProtocolName(), Err: ErrInsufficientFeeBudget}
	}
	deliveryID, err := adapter.SendMessage(msg.Destination, destVault, payload, "")
	if err != nil {
		r.metrics.transportErrs.Inc()
		return "", &TransportError{Destination: msg.Destination, Protocol: adapter.ProtocolName(), Err: err}
	}
	r.metrics.dispatched.Inc()
	r.log.Debug("dispatched delta message",
		"destination", msg.Destination,
		"protocol", adapter.ProtocolName(),
		"action", msg.Action.String(),
		"message_id", msg.ID.Hex(),
		"delivery_id", deliveryID,
	)
	return deliveryID, nil
}

// Receive is the inbound entrypoint invoked by the off-chain relay with a raw
// payload, the instance it claims the payload originated from and the
// delivering adapter's identity. Authenticated duplicates return nil without
// touching state; payloads that cannot be decoded abort before the replay
// guard is marked.
func (r *Router) Receive(raw []byte, claimedSource, callerAdapterIdentity string) error {
	r.recvMu.Lock()
	defer r.recvMu.Unlock()
	protocol, ok := r.preferred[strings.TrimSpace(claimedSource)]
	if !ok {
		r.metrics.authRejected.Inc()
		return fmt.Errorf("%w: %q", ErrUnknownInstance, claimedSource)
	}
	if protocol != strings.TrimSpace(callerAdapterIdentity) {
		r.metrics.authRejected.Inc()
		return fmt.Errorf("%w: got %q, want %q", ErrAdapterMismatch, callerAdapterIdentity, protocol)
	}
	adapter := r.adapters[protocol]
	msg, err := adapter.DecodePayload(raw)
	if err != nil {
		r.metrics.decodeFailed.Inc()
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if err := msg.Validate(); err != nil {
		r.metrics.decodeFailed.Inc()
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if msg.Source != claimedSource {
		r.metrics.authRejected.Inc()
		return fmt.Errorf("%w: payload source %q, claimed %q", ErrUntrustedSource, msg.Source, claimedSource)
	}
	if msg.Destination != r.local {
		r.metrics.authRejected.Inc()
		return fmt.Errorf("%w: %q", ErrWrongDestination, msg.Destination)
	}
	trusted, ok := r.trusted.Lookup(claimedSource)
	if !ok || trusted != msg.OriginVault {
		r.metrics.authRejected.Inc()
		return fmt.Errorf("%w: %s", ErrUntrustedSource, msg.OriginVault.Hex())
	}
	seen, err := r.guard.Seen(msg.ID)
	if err != nil {
		return err
	}
	if seen {
		r.metrics.replaysNoop.Inc()
		r.log.Debug("dropped replayed delta message",
			"source", claimedSource,
			"message_id", msg.ID.Hex(),
		)
		return nil
	}
	if r.applier == nil {
		return errors.New("bridge router: no remote applier configured")
	}
	if err := r.applier.ApplyRemoteUpdate(msg); err != nil {
		return err
	}
	if err := r.guard.Mark(msg.ID); err != nil {
		return err
	}
	r.metrics.applied.Inc()
	r.log.Debug("applied remote delta",
		"source", claimedSource,
		"action", msg.Action.String(),
		"message_id", msg.ID.Hex(),
	)
	return nil
}
