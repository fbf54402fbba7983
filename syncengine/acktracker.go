package syncengine

import (
	"time"

	"github.com/nomadproto/nomad/primitives"
)

type pendingSend struct {
	sentAt           time.Time
	rto              time.Duration
	retransmitCount  int
}

// AckTracker registers every outbound message carrying a non-empty diff
// and retires entries as the peer acknowledges them, producing RTT
// samples for entries that were never retransmitted (Karn's algorithm).
type AckTracker struct {
	pending map[uint64]*pendingSend
}

func NewAckTracker() *AckTracker {
	return &AckTracker{pending: make(map[uint64]*pendingSend)}
}

// Register records a new outbound send awaiting acknowledgment.
func (a *AckTracker) Register(senderStateNum uint64, sentAt time.Time, rto time.Duration) {
	a.pending[senderStateNum] = &pendingSend{sentAt: sentAt, rto: rto}
}

// Ack clears every pending entry with version <= ackedStateNum, calling
// sample for each one that was never retransmitted with the elapsed RTT.
func (a *AckTracker) Ack(ackedStateNum uint64, now time.Time, sample func(time.Duration)) {
	for version, p := range a.pending {
		if version > ackedStateNum {
			continue
		}
		if p.retransmitCount == 0 && sample != nil {
			sample(now.Sub(p.sentAt))
		}
		delete(a.pending, version)
	}
}

// DueForRetransmit returns the versions whose send_time+rto has elapsed
// as of now, marking them retransmitted (so their RTT sample is
// suppressed) and refreshing their deadline to newRTO. Entries that have
// already hit the retransmit cap are reported via exceeded.
func (a *AckTracker) DueForRetransmit(now time.Time, newRTO time.Duration) (due []uint64, exceeded []uint64) {
	for version, p := range a.pending {
		if now.Before(p.sentAt.Add(p.rto)) {
			continue
		}
		p.retransmitCount++
		if p.retransmitCount > primitives.MaxRetransmits {
			exceeded = append(exceeded, version)
			continue
		}
		p.sentAt = now
		p.rto = newRTO
		due = append(due, version)
	}
	return due, exceeded
}

// Pending reports how many sends are awaiting acknowledgment.
func (a *AckTracker) Pending() int { return len(a.pending) }

// NextDeadline returns the earliest send_time+rto across all pending
// entries, for a host's timer wheel. ok is false with nothing pending.
func (a *AckTracker) NextDeadline() (deadline time.Time, ok bool) {
	for _, p := range a.pending {
		d := p.sentAt.Add(p.rto)
		if !ok || d.Before(deadline) {
			deadline = d
			ok = true
		}
	}
	return deadline, ok
}
