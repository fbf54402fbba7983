package syncengine

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/nomadproto/nomad/statecontract"
)

type counterState struct {
	Value int64
}

type counterDiff struct {
	Delta int64
}

func newCounterContract(t *testing.T) *statecontract.Contract[counterState, counterDiff] {
	t.Helper()
	c, err := statecontract.New[counterState, counterDiff](
		"nomad.counter.v1",
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

func TestEngineIdempotentApply(t *testing.T) {
	contract := newCounterContract(t)
	diffBytes := contract.EncodeDiff(counterDiff{Delta: 5})
	if len(diffBytes) != 8 {
		t.Fatalf("encoded diff length = %d, want 8", len(diffBytes))
	}

	state := counterState{Value: 0}
	diff, err := contract.DecodeDiff(diffBytes)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	state, err = contract.ApplyDiff(state, diff)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if state.Value != 5 {
		t.Fatalf("value after first apply = %d, want 5", state.Value)
	}

	// The host's sequence guard (peer_state_num matching) is what makes
	// a second physical apply of the same diff safe in practice; the
	// contract itself only needs apply(apply(s,d) via same base, d) to
	// be consistent when re-derived from the same base, which a
	// delta-based diff naturally is not — so the engine never re-applies
	// without the tracker's duplicate/stale check ruling it out first.
	tracker := NewSyncTracker()
	inbound := &Message{SenderStateNum: 1, Diff: diffBytes}
	ackAdvanced, outcome := tracker.ApplyInbound(inbound)
	_ = ackAdvanced
	if outcome != InboundNew {
		t.Fatalf("outcome = %v, want InboundNew", outcome)
	}
	if _, outcome := tracker.ApplyInbound(inbound); outcome != InboundDuplicate {
		t.Fatalf("re-delivered outcome = %v, want InboundDuplicate", outcome)
	}
}

func TestEngineOutboundAndInboundRoundTrip(t *testing.T) {
	contractA := newCounterContract(t)
	contractB := newCounterContract(t)

	a := NewEngine[counterState, counterDiff](contractA, counterState{})
	b := NewEngine[counterState, counterDiff](contractB, counterState{})

	a.UpdateState(counterState{Value: 5})

	msg, ok := a.BuildOutbound(time.Now(), 100*time.Millisecond)
	if !ok {
		t.Fatalf("BuildOutbound returned ok=false with pending local change")
	}
	if msg.SenderStateNum != 1 {
		t.Fatalf("sender_state_num = %d, want 1", msg.SenderStateNum)
	}

	if _, err := b.ApplyInbound(msg); err != nil {
		t.Fatalf("apply inbound: %v", err)
	}
	if b.State().Value != 5 {
		t.Fatalf("b's state = %d, want 5", b.State().Value)
	}

	// b now owes an ack; its next outbound must be ack-only.
	ackMsg, ok := b.BuildOutbound(time.Now(), 100*time.Millisecond)
	if !ok {
		t.Fatalf("BuildOutbound returned ok=false with ack owed")
	}
	if !ackMsg.IsAckOnly() {
		t.Fatalf("expected ack-only message, got diff of length %d", len(ackMsg.Diff))
	}
	if ackMsg.AckedStateNum != 1 {
		t.Fatalf("acked_state_num = %d, want 1", ackMsg.AckedStateNum)
	}
}

func TestEngineQuiescentAfterFullRoundTrip(t *testing.T) {
	contractA := newCounterContract(t)
	contractB := newCounterContract(t)

	a := NewEngine[counterState, counterDiff](contractA, counterState{})
	b := NewEngine[counterState, counterDiff](contractB, counterState{})

	a.UpdateState(counterState{Value: 5})
	msg, _ := a.BuildOutbound(time.Now(), 100*time.Millisecond)
	b.ApplyInbound(msg)
	ackMsg, _ := b.BuildOutbound(time.Now(), 100*time.Millisecond)
	a.ApplyInbound(ackMsg)

	if _, ok := a.BuildOutbound(time.Now(), 100*time.Millisecond); ok {
		t.Fatalf("BuildOutbound returned ok=true after full round trip with nothing new")
	}
}
