package transport

import (
	"testing"
	"time"

	"github.com/nomadproto/nomad/primitives"
)

func TestRetransmitBacksOffAndClamps(t *testing.T) {
	r := NewRetransmitController(100 * time.Millisecond)
	for i := 0; i < 5; i++ {
		if err := r.OnRetransmit(); err != nil {
			t.Fatalf("OnRetransmit #%d: %v", i, err)
		}
	}
	if r.Timeout() <= 100*time.Millisecond {
		t.Fatalf("timeout did not grow: %v", r.Timeout())
	}
	if r.Timeout() > primitives.RTOMax {
		t.Fatalf("timeout exceeded MAX_RTO: %v", r.Timeout())
	}
}

func TestRetransmitFailsAfterCap(t *testing.T) {
	r := NewRetransmitController(10 * time.Millisecond)
	var err error
	for i := 0; i < primitives.MaxRetransmits; i++ {
		err = r.OnRetransmit()
		if err != nil {
			t.Fatalf("OnRetransmit #%d: %v", i, err)
		}
	}
	if err := r.OnRetransmit(); err != ErrMaxRetransmitsExceeded {
		t.Fatalf("error on exceeding cap = %v, want ErrMaxRetransmitsExceeded", err)
	}
}

func TestRetransmitResetsOnAck(t *testing.T) {
	r := NewRetransmitController(50 * time.Millisecond)
	_ = r.OnRetransmit()
	_ = r.OnRetransmit()
	r.OnAck()
	if r.RetransmitCount() != 0 {
		t.Fatalf("count after ack = %d, want 0", r.RetransmitCount())
	}
	if r.Timeout() != 50*time.Millisecond {
		t.Fatalf("timeout after ack = %v, want base 50ms", r.Timeout())
	}
}
