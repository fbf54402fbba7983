package syncengine

import (
	"time"

	"github.com/nomadproto/nomad/statecontract"
)

// Engine binds a SyncTracker, AckTracker, current application state, and
// the acked snapshot diffs are computed against, to a single bound
// statecontract.Contract.
type Engine[S any, D any] struct {
	contract *statecontract.Contract[S, D]

	tracker    *SyncTracker
	ackTracker *AckTracker

	current       S
	ackedSnapshot S
}

func NewEngine[S any, D any](contract *statecontract.Contract[S, D], initial S) *Engine[S, D] {
	return &Engine[S, D]{
		contract:      contract,
		tracker:       NewSyncTracker(),
		ackTracker:    NewAckTracker(),
		current:       initial,
		ackedSnapshot: initial,
	}
}

// UpdateState records a new local application state, bumping the
// version counter that downstream diffs key off of.
func (e *Engine[S, D]) UpdateState(newState S) {
	e.current = newState
	e.tracker.OnLocalChange()
}

// State returns the engine's current local application state.
func (e *Engine[S, D]) State() S { return e.current }

// Tracker exposes the underlying SyncTracker for read-only inspection
// (e.g. by the orchestrator's timer wheel).
func (e *Engine[S, D]) Tracker() *SyncTracker { return e.tracker }

// BuildOutbound runs the outbound algorithm. It returns (nil, false) if
// the pacer should not have been asked to send at all (nothing pending),
// otherwise the message to wrap in a frame.
func (e *Engine[S, D]) BuildOutbound(now time.Time, rto time.Duration) (*Message, bool) {
	switch e.tracker.DecideOutbound() {
	case OutboundNothing:
		return nil, false

	case OutboundAckOnly:
		msg := &Message{
			SenderStateNum: e.tracker.currentNum,
			AckedStateNum:  e.tracker.peerStateNum,
		}
		e.tracker.MarkSent(msg.SenderStateNum)
		return msg, true

	default: // OutboundDiff
		diff := e.contract.DiffFrom(e.ackedSnapshot, e.current)
		msg := &Message{
			SenderStateNum: e.tracker.currentNum,
			AckedStateNum:  e.tracker.peerStateNum,
			BaseStateNum:   e.tracker.lastAcked,
			Diff:           e.contract.EncodeDiff(diff),
		}
		e.tracker.MarkSent(msg.SenderStateNum)
		if !e.contract.IsDiffEmpty(diff) {
			e.ackTracker.Register(msg.SenderStateNum, now, rto)
		}
		return msg, true
	}
}

// ApplyInbound runs the inbound algorithm: version bookkeeping via the
// tracker, diff decode/apply via the bound contract when the message is
// new and non-empty, and acked-snapshot refresh when last_acked
// advanced. It returns the tracker's classification of the message so a
// host orchestrator can decide whether to surface a state-updated event
// or mark an ack owed, without duplicating the tracker's bookkeeping.
func (e *Engine[S, D]) ApplyInbound(msg *Message) (InboundOutcome, error) {
	ackAdvanced, outcome := e.tracker.ApplyInbound(msg)

	if outcome == InboundNew && len(msg.Diff) > 0 {
		diff, err := e.contract.DecodeDiff(msg.Diff)
		if err != nil {
			return outcome, err
		}
		newState, err := e.contract.ApplyDiff(e.current, diff)
		if err != nil {
			return outcome, err
		}
		e.current = newState
	}

	if ackAdvanced {
		e.ackedSnapshot = e.current
	}
	return outcome, nil
}

// AckOutbound feeds an inbound acked_state_num into the ack tracker,
// sampling RTT for entries that were never retransmitted.
func (e *Engine[S, D]) AckOutbound(ackedStateNum uint64, now time.Time, sample func(time.Duration)) {
	e.ackTracker.Ack(ackedStateNum, now, sample)
}

// DueForRetransmit surfaces pending sends whose RTO has elapsed.
func (e *Engine[S, D]) DueForRetransmit(now time.Time, newRTO time.Duration) (due []uint64, exceeded []uint64) {
	return e.ackTracker.DueForRetransmit(now, newRTO)
}

// NextRetransmitDeadline surfaces the ack tracker's earliest pending
// deadline, for a host's timer wheel.
func (e *Engine[S, D]) NextRetransmitDeadline() (time.Time, bool) {
	return e.ackTracker.NextDeadline()
}
