package transport

import (
	"time"

	"github.com/nomadproto/nomad/primitives"
)

// RttEstimator implements the RFC 6298 smoothed-RTT/RTO calculation.
type RttEstimator struct {
	srtt        time.Duration
	rttvar      time.Duration
	rto         time.Duration
	initialized bool
}

// NewRttEstimator returns an estimator seeded at the minimum RTO, as
// used before any sample has been collected.
func NewRttEstimator() *RttEstimator {
	return &RttEstimator{rto: primitives.RTOMin}
}

// Sample folds one RTT measurement into the estimator. Callers must only
// pass samples measured from an unretransmitted send — Karn's algorithm
// forbids sampling a retransmitted frame's RTT, since an ack cannot be
// attributed to a specific attempt.
func (e *RttEstimator) Sample(r time.Duration) {
	if !e.initialized {
		e.srtt = r
		e.rttvar = r / 2
		e.initialized = true
	} else {
		diff := e.srtt - r
		if diff < 0 {
			diff = -diff
		}
		e.rttvar = e.rttvar + time.Duration(primitives.RTOBeta*(float64(diff)-float64(e.rttvar)))
		e.srtt = e.srtt + time.Duration(primitives.RTOAlpha*(float64(r)-float64(e.srtt)))
	}
	e.recomputeRTO()
}

func (e *RttEstimator) recomputeRTO() {
	variancePart := time.Duration(primitives.RTOK) * e.rttvar
	if variancePart < primitives.RTOClockGranularity {
		variancePart = primitives.RTOClockGranularity
	}
	rto := e.srtt + variancePart
	if rto < primitives.RTOMin {
		rto = primitives.RTOMin
	}
	if rto > primitives.RTOMax {
		rto = primitives.RTOMax
	}
	e.rto = rto
}

// RTO returns the current retransmission timeout.
func (e *RttEstimator) RTO() time.Duration { return e.rto }

// SRTT returns the current smoothed RTT, or zero if no sample has been
// collected yet.
func (e *RttEstimator) SRTT() time.Duration { return e.srtt }

// Initialized reports whether at least one sample has been folded in.
func (e *RttEstimator) Initialized() bool { return e.initialized }
