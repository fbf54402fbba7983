package transport

import (
	"time"

	"github.com/nomadproto/nomad/primitives"
)

// RetransmitController tracks exponential-backoff retries for a single
// connection. Base RTO comes from the RttEstimator; the controller only
// owns the multiplier and retry count.
type RetransmitController struct {
	baseRTO    time.Duration
	currentRTO time.Duration
	count      int
}

func NewRetransmitController(baseRTO time.Duration) *RetransmitController {
	return &RetransmitController{baseRTO: baseRTO, currentRTO: baseRTO}
}

// SetBaseRTO updates the base RTO, e.g. after the RttEstimator produces
// a fresh value. Has no effect on an in-progress backoff.
func (r *RetransmitController) SetBaseRTO(base time.Duration) {
	r.baseRTO = base
}

// Timeout returns the currently active retransmission timeout.
func (r *RetransmitController) Timeout() time.Duration {
	return r.currentRTO
}

// OnRetransmit doubles the current timeout (clamped at MAX_RTO) and
// increments the retry count. Returns ErrMaxRetransmitsExceeded when a
// retransmit beyond the 10-retransmit cap is attempted; the connection
// must transition to Failed in that case.
func (r *RetransmitController) OnRetransmit() error {
	r.count++
	if r.count > primitives.MaxRetransmits {
		return ErrMaxRetransmitsExceeded
	}
	next := r.currentRTO * 2
	if next > primitives.RTOMax {
		next = primitives.RTOMax
	}
	r.currentRTO = next
	return nil
}

// OnAck restores the timeout to the base RTO and clears the retry count,
// as happens whenever a send is acknowledged without needing a retry.
func (r *RetransmitController) OnAck() {
	r.count = 0
	r.currentRTO = r.baseRTO
}

// RetransmitCount returns the number of retransmits attempted so far in
// the current backoff sequence.
func (r *RetransmitController) RetransmitCount() int { return r.count }
