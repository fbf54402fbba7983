package syncengine

import (
	"testing"
	"time"
)

func TestAckTrackerSamplesUnretransmittedSend(t *testing.T) {
	a := NewAckTracker()
	start := time.Now()
	a.Register(1, start, 100*time.Millisecond)

	var sampled time.Duration
	a.Ack(1, start.Add(30*time.Millisecond), func(d time.Duration) { sampled = d })

	if sampled != 30*time.Millisecond {
		t.Fatalf("sampled RTT = %v, want 30ms", sampled)
	}
	if a.Pending() != 0 {
		t.Fatalf("pending = %d, want 0 after ack", a.Pending())
	}
}

func TestAckTrackerSuppressesSampleAfterRetransmit(t *testing.T) {
	a := NewAckTracker()
	start := time.Now()
	a.Register(1, start, 10*time.Millisecond)

	due, exceeded := a.DueForRetransmit(start.Add(20*time.Millisecond), 20*time.Millisecond)
	if len(due) != 1 || len(exceeded) != 0 {
		t.Fatalf("due=%v exceeded=%v, want one due, none exceeded", due, exceeded)
	}

	sampleCalled := false
	a.Ack(1, start.Add(40*time.Millisecond), func(time.Duration) { sampleCalled = true })
	if sampleCalled {
		t.Fatalf("RTT sample taken for a retransmitted send")
	}
}

func TestAckTrackerClearsOnlyUpToAckedVersion(t *testing.T) {
	a := NewAckTracker()
	start := time.Now()
	a.Register(1, start, time.Second)
	a.Register(2, start, time.Second)
	a.Register(5, start, time.Second)

	a.Ack(2, start, nil)
	if a.Pending() != 1 {
		t.Fatalf("pending = %d, want 1 (only version 5 should remain)", a.Pending())
	}
}

func TestAckTrackerRetransmitCapExceeded(t *testing.T) {
	a := NewAckTracker()
	start := time.Now()
	a.Register(1, start, time.Millisecond)

	now := start
	var exceeded []uint64
	for i := 0; i < 11; i++ {
		now = now.Add(2 * time.Millisecond)
		_, exceeded = a.DueForRetransmit(now, time.Millisecond)
	}
	if len(exceeded) != 1 || exceeded[0] != 1 {
		t.Fatalf("exceeded = %v, want [1] after 11 retransmit attempts", exceeded)
	}
}
