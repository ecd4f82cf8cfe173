package bridge

import (
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// stubAdapter keeps encoded messages in a table keyed by their payload so
// tests can hand the router exactly the bytes an earlier encode produced.
type stubAdapter struct {
	name      string
	instances []string
	fee       *big.Int
	sendErr   error
	decodeErr error
	sent      [][]byte
	byKey     map[string]*Message
}

func newStubAdapter(name string, instances ...string) *stubAdapter {
	return &stubAdapter{
		name:      name,
		instances: instances,
		fee:       big.NewInt(0),
		byKey:     make(map[string]*Message),
	}
}

func (s *stubAdapter) ProtocolName() string         { return s.name }
func (s *stubAdapter) SupportedInstances() []string { return s.instances }

func (s *stubAdapter) EstimateFee(destination string, payload []byte) (*big.Int, error) {
	return new(big.Int).Set(s.fee), nil
}

func (s *stubAdapter) SendMessage(destination string, destinationVault common.Address, payload []byte, feeToken string) (string, error) {
	if s.sendErr != nil {
		return "", s.sendErr
	}
	s.sent = append(s.sent, payload)
	return "delivery-1", nil
}

func (s *stubAdapter) EncodePayload(msg *Message) ([]byte, error) {
	key := msg.ID.Hex()
	s.byKey[key] = msg.Clone()
	return []byte(key), nil
}

func (s *stubAdapter) DecodePayload(raw []byte) (*Message, error) {
	if s.decodeErr != nil {
		return nil, s.decodeErr
	}
	msg, ok := s.byKey[string(raw)]
	if !ok {
		return nil, errors.New("stub adapter: unknown payload")
	}
	return msg.Clone(), nil
}

type stubApplier struct {
	applied []*Message
	err     error
}

func (s *stubApplier) ApplyRemoteUpdate(msg *Message) error {
	if s.err != nil {
		return s.err
	}
	s.applied = append(s.applied, msg.Clone())
	return nil
}

func testAccount(suffix byte) common.Address {
	var addr common.Address
	addr[len(addr)-1] = suffix
	return addr
}

func testMessage(source, destination string, nonce uint64) *Message {
	return NewMessage(source, destination, ActionCollateralDeposit, testAccount(0x01), big.NewInt(100), testAccount(0xAA), 1_700_000_000, nonce)
}

func newTestRouter(applier RemoteApplier) (*Router, *stubAdapter) {
	trusted := NewTrustedVaults()
	trusted.Set("chain-b", testAccount(0xAA))
	router := NewRouter("chain-a", trusted, NewReplayGuard(), applier, nil)
	adapter := newStubAdapter("stub", "chain-b")
	_ = router.RegisterAdapter(adapter)
	_ = router.SetPreferredAdapter("chain-b", "stub")
	return router, adapter
}

func TestBroadcastUsesPreferredAdapter(t *testing.T) {
	trusted := NewTrustedVaults()
	trusted.Set("chain-b", testAccount(0xAA))
	router := NewRouter("chain-a", trusted, nil, nil, nil)
	primary := newStubAdapter("primary", "chain-b")
	secondary := newStubAdapter("secondary", "chain-b")
	_ = router.RegisterAdapter(primary)
	_ = router.RegisterAdapter(secondary)
	if err := router.SetPreferredAdapter("chain-b", "secondary"); err != nil {
		t.Fatalf("set preferred: %v", err)
	}

	if _, err := router.Broadcast(testMessage("chain-a", "chain-b", 1), big.NewInt(0)); err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	if len(secondary.sent) != 1 || len(primary.sent) != 0 {
		t.Fatalf("expected dispatch via the pinned adapter, got primary=%d secondary=%d", len(primary.sent), len(secondary.sent))
	}
}

func TestBroadcastRejectsUnderfundedBudget(t *testing.T) {
	router, adapter := newTestRouter(nil)
	adapter.fee = big.NewInt(5)

	_, err := router.Broadcast(testMessage("chain-a", "chain-b", 1), big.NewInt(4))
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if !errors.Is(err, ErrInsufficientFeeBudget) {
		t.Fatalf("expected fee budget cause, got %v", err)
	}
	if len(adapter.sent) != 0 {
		t.Fatalf("underfunded message must not be sent")
	}
}

func TestBroadcastRequiresDestinationVault(t *testing.T) {
	router := NewRouter("chain-a", NewTrustedVaults(), nil, nil, nil)
	_ = router.RegisterAdapter(newStubAdapter("stub", "chain-b"))

	_, err := router.Broadcast(testMessage("chain-a", "chain-b", 1), big.NewInt(10))
	if !errors.Is(err, ErrUnknownInstance) {
		t.Fatalf("expected ErrUnknownInstance, got %v", err)
	}
}

func TestBroadcastWithoutRouteFails(t *testing.T) {
	router, _ := newTestRouter(nil)
	_, err := router.Broadcast(testMessage("chain-a", "chain-c", 1), big.NewInt(10))
	if !errors.Is(err, ErrNoAdapter) {
		t.Fatalf("expected ErrNoAdapter, got %v", err)
	}
}

func TestReceiveRejectsUnknownSource(t *testing.T) {
	router, _ := newTestRouter(&stubApplier{})
	if err := router.Receive([]byte("payload"), "chain-z", "stub"); !errors.Is(err, ErrUnknownInstance) {
		t.Fatalf("expected ErrUnknownInstance, got %v", err)
	}
}

func TestReceiveRejectsAdapterIdentityMismatch(t *testing.T) {
	router, _ := newTestRouter(&stubApplier{})
	if err := router.Receive([]byte("payload"), "chain-b", "other"); !errors.Is(err, ErrAdapterMismatch) {
		t.Fatalf("expected ErrAdapterMismatch, got %v", err)
	}
}

func TestReceiveRejectsSpoofedPayloadSource(t *testing.T) {
	applier := &stubApplier{}
	router, adapter := newTestRouter(applier)
	// The payload claims chain-c inside while the delivery claims chain-b.
	payload, err := adapter.EncodePayload(testMessage("chain-c", "chain-a", 1))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := router.Receive(payload, "chain-b", "stub"); !errors.Is(err, ErrUntrustedSource) {
		t.Fatalf("expected ErrUntrustedSource, got %v", err)
	}
	if len(applier.applied) != 0 {
		t.Fatalf("spoofed payload must not reach the applier")
	}
}

func TestReceiveRejectsWrongDestination(t *testing.T) {
	router, adapter := newTestRouter(&stubApplier{})
	payload, _ := adapter.EncodePayload(testMessage("chain-b", "chain-c", 1))
	if err := router.Receive(payload, "chain-b", "stub"); !errors.Is(err, ErrWrongDestination) {
		t.Fatalf("expected ErrWrongDestination, got %v", err)
	}
}

func TestReceiveRejectsUntrustedOriginVault(t *testing.T) {
	router, adapter := newTestRouter(&stubApplier{})
	msg := NewMessage("chain-b", "chain-a", ActionBorrow, testAccount(0x01), big.NewInt(10), testAccount(0xEE), 1_700_000_000, 1)
	payload, _ := adapter.EncodePayload(msg)
	if err := router.Receive(payload, "chain-b", "stub"); !errors.Is(err, ErrUntrustedSource) {
		t.Fatalf("expected ErrUntrustedSource, got %v", err)
	}
}

func TestReceiveDuplicateIsSilentNoop(t *testing.T) {
	applier := &stubApplier{}
	router, adapter := newTestRouter(applier)
	payload, _ := adapter.EncodePayload(testMessage("chain-b", "chain-a", 1))

	if err := router.Receive(payload, "chain-b", "stub"); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if err := router.Receive(payload, "chain-b", "stub"); err != nil {
		t.Fatalf("duplicate delivery must return nil, got %v", err)
	}
	if len(applier.applied) != 1 {
		t.Fatalf("expected exactly one application, got %d", len(applier.applied))
	}
}

func TestReceiveDecodeFailureLeavesGuardUnmarked(t *testing.T) {
	applier := &stubApplier{}
	router, adapter := newTestRouter(applier)
	payload, _ := adapter.EncodePayload(testMessage("chain-b", "chain-a", 1))

	adapter.decodeErr = errors.New("truncated")
	if err := router.Receive(payload, "chain-b", "stub"); !errors.Is(err, ErrMalformedPayload) {
		t.Fatalf("expected ErrMalformedPayload, got %v", err)
	}

	// The identifier was never marked, so the corrected re-delivery applies.
	adapter.decodeErr = nil
	if err := router.Receive(payload, "chain-b", "stub"); err != nil {
		t.Fatalf("re-delivery: %v", err)
	}
	if len(applier.applied) != 1 {
		t.Fatalf("expected one application after recovery, got %d", len(applier.applied))
	}
}

// slowApplier widens the window between the guard check and the guard mark so
// interleaved deliveries of the same message would be caught.
type slowApplier struct {
	mu      sync.Mutex
	delay   time.Duration
	applied int
}

func (s *slowApplier) ApplyRemoteUpdate(msg *Message) error {
	time.Sleep(s.delay)
	s.mu.Lock()
	s.applied++
	s.mu.Unlock()
	return nil
}

func TestReceiveConcurrentDuplicatesApplyOnce(t *testing.T) {
	applier := &slowApplier{delay: 50 * time.Millisecond}
	router, adapter := newTestRouter(applier)
	payload, err := adapter.EncodePayload(testMessage("chain-b", "chain-a", 1))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	errs := make([]error, 4)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = router.Receive(payload, "chain-b", "stub")
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("delivery %d: %v", i, err)
		}
	}
	if applier.applied != 1 {
		t.Fatalf("duplicate delivery applied %d times, want 1", applier.applied)
	}
}

func TestReceiveApplyFailureAllowsRetry(t *testing.T) {
	applier := &stubApplier{err: errors.New("state write failed")}
	router, adapter := newTestRouter(applier)
	payload, _ := adapter.EncodePayload(testMessage("chain-b", "chain-a", 1))

	if err := router.Receive(payload, "chain-b", "stub"); err == nil {
		t.Fatalf("expected apply failure to propagate")
	}
	applier.err = nil
	if err := router.Receive(payload, "chain-b", "stub"); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if len(applier.applied) != 1 {
		t.Fatalf("expected one application, got %d", len(applier.applied))
	}
}
