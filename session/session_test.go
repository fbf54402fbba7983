package session

import (
	"encoding/binary"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/nomadproto/nomad/cryptosession"
	"github.com/nomadproto/nomad/extensions"
	"github.com/nomadproto/nomad/primitives"
	"github.com/nomadproto/nomad/statecontract"
)

// loopbackChannel connects two Sessions in one test process: Send on one
// end appends to the other end's queue, Recv pops from its own.
type loopbackChannel struct {
	mu   sync.Mutex
	self netip.AddrPort
	peer *loopbackChannel
	in   [][]byte
}

func newLoopbackPair(a, b netip.AddrPort) (*loopbackChannel, *loopbackChannel) {
	ca := &loopbackChannel{self: a}
	cb := &loopbackChannel{self: b}
	ca.peer = cb
	cb.peer = ca
	return ca, cb
}

func (c *loopbackChannel) Send(data []byte, remote netip.AddrPort) error {
	cp := make([]byte, len(data))
	copy(cp, data)
	c.peer.mu.Lock()
	c.peer.in = append(c.peer.in, cp)
	c.peer.mu.Unlock()
	return nil
}

func (c *loopbackChannel) Recv() ([]byte, netip.AddrPort, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.in) == 0 {
		return nil, netip.AddrPort{}, nil
	}
	data := c.in[0]
	c.in = c.in[1:]
	return data, c.peer.self, nil
}

func (c *loopbackChannel) drain(t *testing.T, dst *Session[counterState, counterDiff], from netip.AddrPort, now time.Time) {
	t.Helper()
	for {
		data, addr, err := c.Recv()
		if err != nil {
			t.Fatalf("recv: %v", err)
		}
		if data == nil {
			return
		}
		if err := dst.HandleDatagram(data, addr, now); err != nil {
			t.Fatalf("handle datagram: %v", err)
		}
	}
}

type counterState struct {
	Value int64
}

type counterDiff struct {
	Delta int64
}

func newCounterContract(t *testing.T) *statecontract.Contract[counterState, counterDiff] {
	t.Helper()
	c, err := statecontract.New[counterState, counterDiff](
		"nomad.session.counter.v1",
		func(old, new counterState) counterDiff {
			return counterDiff{Delta: new.Value - old.Value}
		},
		func(state counterState, diff counterDiff) (counterState, error) {
			return counterState{Value: state.Value + diff.Delta}, nil
		},
		func(diff counterDiff) []byte {
			buf := make([]byte, 8)
			binary.LittleEndian.PutUint64(buf, uint64(diff.Delta))
			return buf
		},
		func(data []byte) (counterDiff, error) {
			return counterDiff{Delta: int64(binary.LittleEndian.Uint64(data))}, nil
		},
		func(diff counterDiff) bool { return diff.Delta == 0 },
	)
	if err != nil {
		t.Fatalf("new contract: %v", err)
	}
	return c
}

// openEstablished drives a full Open/Accept handshake over a loopback pair
// and returns both ends in PhaseEstablished.
func openEstablished(t *testing.T) (initiator, responder *Session[counterState, counterDiff], initChan, respChan *loopbackChannel) {
	t.Helper()
	now := time.Now()

	initKP, err := cryptosession.GenerateStaticKeypair()
	if err != nil {
		t.Fatalf("generate initiator keypair: %v", err)
	}
	respKP, err := cryptosession.GenerateStaticKeypair()
	if err != nil {
		t.Fatalf("generate responder keypair: %v", err)
	}

	initAddr := netip.MustParseAddrPort("127.0.0.1:9001")
	respAddr := netip.MustParseAddrPort("127.0.0.1:9002")
	initChan, respChan = newLoopbackPair(initAddr, respAddr)

	contractA := newCounterContract(t)
	contractB := newCounterContract(t)

	initiator, err = Open[counterState, counterDiff](
		initChan, initKP, respKP.Public, respAddr, contractA, counterState{}, nil,
	)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if initiator.Phase().String() != "Handshaking" {
		t.Fatalf("initiator phase after Open = %s, want Handshaking", initiator.Phase())
	}

	data, from, err := respChan.Recv()
	if err != nil {
		t.Fatalf("recv handshake init: %v", err)
	}
	if data == nil {
		t.Fatalf("responder received nothing")
	}

	responder, err = Accept[counterState, counterDiff](
		respChan, respKP, contractB, counterState{}, nil, data, from,
	)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if responder.Phase().String() != "Established" {
		t.Fatalf("responder phase after Accept = %s, want Established", responder.Phase())
	}

	initChan.drain(t, initiator, respAddr, now)
	if initiator.Phase().String() != "Established" {
		t.Fatalf("initiator phase after handshake response = %s, want Established", initiator.Phase())
	}

	initEvents := initiator.Events()
	if len(initEvents) != 1 {
		t.Fatalf("initiator events after handshake = %d, want 1", len(initEvents))
	}
	if _, ok := initEvents[0].(Connected); !ok {
		t.Fatalf("initiator's first event = %T, want Connected", initEvents[0])
	}

	respEvents := responder.Events()
	if len(respEvents) != 1 {
		t.Fatalf("responder events after accept = %d, want 1", len(respEvents))
	}
	if _, ok := respEvents[0].(Connected); !ok {
		t.Fatalf("responder's first event = %T, want Connected", respEvents[0])
	}

	return initiator, responder, initChan, respChan
}

func TestOpenAcceptHandshakeEstablishes(t *testing.T) {
	initiator, responder, _, _ := openEstablished(t)
	if initiator.State().Value != 0 {
		t.Fatalf("initiator initial state = %d, want 0", initiator.State().Value)
	}
	if responder.State().Value != 0 {
		t.Fatalf("responder initial state = %d, want 0", responder.State().Value)
	}
}

func TestUpdateStateDeliversStateUpdatedEvent(t *testing.T) {
	initiator, responder, initChan, respChan := openEstablished(t)
	now := time.Now()

	initiator.UpdateState(counterState{Value: 7}, now)
	// The pacer holds a state change for its collection interval and
	// enforces the minimum send interval since Open's handshake frame.
	sendAt := now.Add(primitives.PacerMinInterval)
	if _, err := initiator.Poll(sendAt); err != nil {
		t.Fatalf("initiator poll: %v", err)
	}

	respChan.drain(t, responder, initiator.RemoteEndpoint(), sendAt)

	var gotUpdate bool
	for _, ev := range responder.Events() {
		if su, ok := ev.(StateUpdated[counterState]); ok {
			gotUpdate = true
			if su.State.Value != 7 {
				t.Fatalf("responder StateUpdated value = %d, want 7", su.State.Value)
			}
		}
	}
	if !gotUpdate {
		t.Fatalf("responder did not emit StateUpdated")
	}
	if responder.State().Value != 7 {
		t.Fatalf("responder state = %d, want 7", responder.State().Value)
	}

	// Responder now owes an ack; let it send one and the initiator pick
	// it up so the round trip quiesces. The ack is delayed by up to
	// PacerDelayedAckMax.
	ackAt := sendAt.Add(primitives.PacerDelayedAckMax)
	if _, err := responder.Poll(ackAt); err != nil {
		t.Fatalf("responder poll: %v", err)
	}
	initChan.drain(t, initiator, responder.RemoteEndpoint(), ackAt)
}

func TestCloseRoundTripEmitsClosedOnBothEnds(t *testing.T) {
	initiator, responder, initChan, respChan := openEstablished(t)
	now := time.Now()

	if err := initiator.Close(now); err != nil {
		t.Fatalf("close: %v", err)
	}
	if initiator.Phase().String() != "Closing" {
		t.Fatalf("initiator phase after Close = %s, want Closing", initiator.Phase())
	}

	respChan.drain(t, responder, initiator.RemoteEndpoint(), now)
	if responder.Phase().String() != "Closed" {
		t.Fatalf("responder phase after peer close = %s, want Closed", responder.Phase())
	}
	var responderClosed bool
	for _, ev := range responder.Events() {
		if _, ok := ev.(Closed); ok {
			responderClosed = true
		}
	}
	if !responderClosed {
		t.Fatalf("responder did not emit Closed")
	}

	initChan.drain(t, initiator, responder.RemoteEndpoint(), now)
	if initiator.Phase().String() != "Closed" {
		t.Fatalf("initiator phase after echoed close = %s, want Closed", initiator.Phase())
	}
	var initiatorClosed bool
	for _, ev := range initiator.Events() {
		if _, ok := ev.(Closed); ok {
			initiatorClosed = true
		}
	}
	if !initiatorClosed {
		t.Fatalf("initiator did not emit Closed")
	}
}

func TestExtensionTLVsSurviveHandshake(t *testing.T) {
	now := time.Now()

	initKP, err := cryptosession.GenerateStaticKeypair()
	if err != nil {
		t.Fatalf("generate initiator keypair: %v", err)
	}
	respKP, err := cryptosession.GenerateStaticKeypair()
	if err != nil {
		t.Fatalf("generate responder keypair: %v", err)
	}
	initAddr := netip.MustParseAddrPort("127.0.0.1:9101")
	respAddr := netip.MustParseAddrPort("127.0.0.1:9102")
	initChan, respChan := newLoopbackPair(initAddr, respAddr)

	contractA := newCounterContract(t)
	contractB := newCounterContract(t)

	localExts := []extensions.TLV{extensions.EncodePriorityHint(extensions.PriorityRealtime)}
	initiator, err := Open[counterState, counterDiff](
		initChan, initKP, respKP.Public, respAddr, contractA, counterState{}, localExts,
	)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	data, from, err := respChan.Recv()
	if err != nil || data == nil {
		t.Fatalf("recv handshake init: %v", err)
	}
	responder, err := Accept[counterState, counterDiff](
		respChan, respKP, contractB, counterState{}, nil, data, from,
	)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}

	if len(responder.remoteExts) != 1 {
		t.Fatalf("responder saw %d extension TLVs, want 1", len(responder.remoteExts))
	}
	class, err := extensions.DecodePriorityHint(responder.remoteExts[0].Value)
	if err != nil {
		t.Fatalf("decode priority hint: %v", err)
	}
	if class != extensions.PriorityRealtime {
		t.Fatalf("priority class = %v, want PriorityRealtime", class)
	}

	initChan.drain(t, initiator, respAddr, now)
	if initiator.Phase().String() != "Established" {
		t.Fatalf("initiator phase = %s, want Established", initiator.Phase())
	}
}
