package syncengine

import "testing"

func TestDecideOutboundNothingWhenQuiescent(t *testing.T) {
	tr := NewSyncTracker()
	if got := tr.DecideOutbound(); got != OutboundNothing {
		t.Fatalf("DecideOutbound = %v, want OutboundNothing", got)
	}
}

func TestDecideOutboundAckOnlyWhenNoNewState(t *testing.T) {
	tr := NewSyncTracker()
	tr.peerStateNum = 5
	if got := tr.DecideOutbound(); got != OutboundAckOnly {
		t.Fatalf("DecideOutbound = %v, want OutboundAckOnly", got)
	}
}

func TestDecideOutboundDiffWhenNewState(t *testing.T) {
	tr := NewSyncTracker()
	tr.OnLocalChange()
	if got := tr.DecideOutbound(); got != OutboundDiff {
		t.Fatalf("DecideOutbound = %v, want OutboundDiff", got)
	}
}

func TestApplyInboundStaleIsIgnored(t *testing.T) {
	tr := NewSyncTracker()
	tr.peerStateNum = 10

	_, outcome := tr.ApplyInbound(&Message{SenderStateNum: 5})
	if outcome != InboundStale {
		t.Fatalf("outcome = %v, want InboundStale", outcome)
	}
	if tr.peerStateNum != 10 {
		t.Fatalf("peerStateNum mutated by stale message: %d", tr.peerStateNum)
	}
}

func TestApplyInboundDuplicate(t *testing.T) {
	tr := NewSyncTracker()
	tr.peerStateNum = 10

	_, outcome := tr.ApplyInbound(&Message{SenderStateNum: 10})
	if outcome != InboundDuplicate {
		t.Fatalf("outcome = %v, want InboundDuplicate", outcome)
	}
}

func TestApplyInboundNewAdvancesPeerStateNum(t *testing.T) {
	tr := NewSyncTracker()
	_, outcome := tr.ApplyInbound(&Message{SenderStateNum: 7})
	if outcome != InboundNew {
		t.Fatalf("outcome = %v, want InboundNew", outcome)
	}
	if tr.peerStateNum != 7 {
		t.Fatalf("peerStateNum = %d, want 7", tr.peerStateNum)
	}
}

func TestApplyInboundAckAdvance(t *testing.T) {
	tr := NewSyncTracker()
	ackAdvanced, _ := tr.ApplyInbound(&Message{SenderStateNum: 1, AckedStateNum: 3})
	if !ackAdvanced {
		t.Fatalf("ackAdvanced = false, want true")
	}
	if tr.lastAcked != 3 {
		t.Fatalf("lastAcked = %d, want 3", tr.lastAcked)
	}

	ackAdvanced, _ = tr.ApplyInbound(&Message{SenderStateNum: 2, AckedStateNum: 3})
	if ackAdvanced {
		t.Fatalf("ackAdvanced = true for non-increasing acked_state_num")
	}
}

func TestOutOfOrderDuplicateBitmap(t *testing.T) {
	tr := NewSyncTracker()
	tr.ApplyInbound(&Message{SenderStateNum: 100})

	if !tr.IsDuplicateOutOfOrder(100) {
		t.Fatalf("IsDuplicateOutOfOrder(100) = false, want true (already seen)")
	}
	if tr.IsDuplicateOutOfOrder(50) {
		t.Fatalf("IsDuplicateOutOfOrder(50) = true, want false (within window but never marked seen)")
	}
	if !tr.IsDuplicateOutOfOrder(30) {
		t.Fatalf("IsDuplicateOutOfOrder(30) = false, want true (more than 64 behind the top, conservatively seen)")
	}
}
