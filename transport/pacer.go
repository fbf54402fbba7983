package transport

import (
	"time"

	"github.com/nomadproto/nomad/primitives"
)

// FramePacer decides when an outbound frame may leave: minimum send
// interval, collection-window batching of rapid state changes, delayed
// acks, and keepalive/dead-peer detection.
type FramePacer struct {
	lastFrameSent    time.Time
	stateChangeTime  time.Time
	ackPendingSince  time.Time
	dataPending      bool
	ackPending       bool
	lastReceived     time.Time
	haveLastReceived bool
}

func NewFramePacer() *FramePacer {
	return &FramePacer{}
}

// OnStateChange records that local application state changed, starting
// (or refreshing) the collection window if this is the first change
// since the last send.
func (p *FramePacer) OnStateChange(now time.Time) {
	if !p.dataPending {
		p.stateChangeTime = now
	}
	p.dataPending = true
}

// OnAckOwed records that the peer's last message asked for an ack we
// have not yet sent.
func (p *FramePacer) OnAckOwed(now time.Time) {
	if !p.ackPending {
		p.ackPendingSince = now
	}
	p.ackPending = true
}

// OnFrameSent resets the pending flags after a frame carrying data
// and/or an ack has actually gone out.
func (p *FramePacer) OnFrameSent(now time.Time) {
	p.lastFrameSent = now
	p.dataPending = false
	p.ackPending = false
}

// OnFrameReceived records the most recent inbound frame's arrival time,
// used for keepalive and dead-peer detection.
func (p *FramePacer) OnFrameReceived(now time.Time) {
	p.lastReceived = now
	p.haveLastReceived = true
}

// minInterval computes max(SRTT/2, 20ms, 1/50s) using the estimator's
// current SRTT, or zero SRTT before any sample exists.
func minInterval(srtt time.Duration) time.Duration {
	interval := primitives.PacerMinInterval
	if srtt/2 > interval {
		interval = srtt / 2
	}
	if primitives.PacerMinRate > interval {
		interval = primitives.PacerMinRate
	}
	return interval
}

// ShouldSendNow reports whether the pacer currently permits an outbound
// frame, given the RTT estimator's current SRTT.
func (p *FramePacer) ShouldSendNow(now time.Time, srtt time.Duration) bool {
	if !p.lastFrameSent.IsZero() && now.Sub(p.lastFrameSent) < minInterval(srtt) {
		return false
	}

	if p.dataPending {
		if now.Sub(p.stateChangeTime) >= primitives.PacerCollectionInterval {
			return true
		}
		return false
	}

	if p.ackPending {
		if now.Sub(p.ackPendingSince) >= primitives.PacerDelayedAckMax {
			return true
		}
		return false
	}

	if p.keepaliveDue(now) {
		return true
	}

	return false
}

// keepaliveDue reports whether 25s have elapsed since the last send and
// the last receive is still within 60s — the condition under which the
// pacer forces an ack-only frame to keep NAT bindings alive.
func (p *FramePacer) keepaliveDue(now time.Time) bool {
	if p.lastFrameSent.IsZero() || now.Sub(p.lastFrameSent) < primitives.KeepaliveInterval {
		return false
	}
	if !p.haveLastReceived || now.Sub(p.lastReceived) > primitives.KeepaliveRecvWindow {
		return false
	}
	return true
}

// Dead reports whether no frame has arrived within the dead-peer
// timeout.
func (p *FramePacer) Dead(now time.Time) bool {
	if !p.haveLastReceived {
		return false
	}
	return now.Sub(p.lastReceived) >= primitives.DeadPeerTimeout
}

// NextWake estimates the earliest instant the pacer's own state would
// change a ShouldSendNow decision, for a host's timer wheel. It is an
// upper bound, not a guarantee: DueForRetransmit and other inputs can
// still move the real wake time earlier.
func (p *FramePacer) NextWake(now time.Time, srtt time.Duration) time.Time {
	candidates := make([]time.Time, 0, 4)

	if !p.lastFrameSent.IsZero() {
		candidates = append(candidates, p.lastFrameSent.Add(minInterval(srtt)))
	}
	if p.dataPending {
		candidates = append(candidates, p.stateChangeTime.Add(primitives.PacerCollectionInterval))
	}
	if p.ackPending {
		candidates = append(candidates, p.ackPendingSince.Add(primitives.PacerDelayedAckMax))
	}
	if !p.lastFrameSent.IsZero() {
		candidates = append(candidates, p.lastFrameSent.Add(primitives.KeepaliveInterval))
	}
	if p.haveLastReceived {
		candidates = append(candidates, p.lastReceived.Add(primitives.DeadPeerTimeout))
	}

	if len(candidates) == 0 {
		return now
	}
	earliest := candidates[0]
	for _, c := range candidates[1:] {
		if c.Before(earliest) {
			earliest = c
		}
	}
	return earliest
}
