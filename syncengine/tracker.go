package syncengine

import "github.com/nomadproto/nomad/primitives"

// SyncTracker holds the per-side version bookkeeping: our own version
// counter, what we've sent and had acknowledged, and the highest version
// we've received from the peer.
type SyncTracker struct {
	currentNum    uint64
	lastSentNum   uint64
	lastAcked     uint64
	peerStateNum  uint64
	lastAckedToPeer uint64

	dupBitmap uint64
	haveDup   bool
}

func NewSyncTracker() *SyncTracker {
	return &SyncTracker{}
}

// OnLocalChange bumps our version counter after an application-level
// state change.
func (t *SyncTracker) OnLocalChange() {
	t.currentNum++
}

// CurrentNum, LastSentNum, LastAcked, and PeerStateNum expose the
// tracker's counters for the outbound/inbound algorithms and for tests.
func (t *SyncTracker) CurrentNum() uint64   { return t.currentNum }
func (t *SyncTracker) LastSentNum() uint64  { return t.lastSentNum }
func (t *SyncTracker) LastAcked() uint64    { return t.lastAcked }
func (t *SyncTracker) PeerStateNum() uint64 { return t.peerStateNum }

// OutboundDecision is what the outbound algorithm decided to do.
type OutboundDecision int

const (
	OutboundNothing OutboundDecision = iota
	OutboundAckOnly
	OutboundDiff
)

// DecideOutbound implements the pacer-triggered send decision: nothing
// if there is no new state and no ack owed; an ack-only message if
// there's no new state but the peer needs an ack; otherwise a diff
// against the acked snapshot.
func (t *SyncTracker) DecideOutbound() OutboundDecision {
	if t.currentNum == t.lastSentNum && t.peerStateNum == t.lastAckedToPeer {
		return OutboundNothing
	}
	if t.currentNum == t.lastSentNum {
		return OutboundAckOnly
	}
	return OutboundDiff
}

// MarkSent records that a message with the given sender_state_num has
// gone out, acknowledging the current peer_state_num.
func (t *SyncTracker) MarkSent(senderStateNum uint64) {
	t.lastSentNum = senderStateNum
	t.lastAckedToPeer = t.peerStateNum
}

// InboundOutcome classifies how an inbound message related to prior
// state.
type InboundOutcome int

const (
	InboundStale InboundOutcome = iota
	InboundDuplicate
	InboundNew
)

// ApplyInbound runs the inbound algorithm's version-tracking steps
// (ack advancement and stale/duplicate/new classification), leaving the
// actual diff decode/apply to the caller since that needs the bound
// statecontract.Contract. Returns whether last_acked advanced (meaning
// the caller must refresh its acked snapshot) and the classification of
// msg.SenderStateNum.
func (t *SyncTracker) ApplyInbound(msg *Message) (ackAdvanced bool, outcome InboundOutcome) {
	if msg.AckedStateNum > t.lastAcked {
		t.lastAcked = msg.AckedStateNum
		ackAdvanced = true
	}

	switch {
	case msg.SenderStateNum < t.peerStateNum:
		return ackAdvanced, InboundStale
	case msg.SenderStateNum == t.peerStateNum && msg.SenderStateNum > 0:
		return ackAdvanced, InboundDuplicate
	}

	t.advanceDuplicateBitmap(msg.SenderStateNum)
	t.peerStateNum = msg.SenderStateNum
	return ackAdvanced, InboundNew
}

// advanceDuplicateBitmap shifts the ordered duplicate-detection bitmap
// so that bit 63 tracks newStateNum, for out-of-order receive paths that
// bypass ApplyInbound's version-ordering fast path.
func (t *SyncTracker) advanceDuplicateBitmap(newStateNum uint64) {
	if !t.haveDup {
		t.dupBitmap = 1 << 63
		t.haveDup = true
		return
	}
	if newStateNum <= t.peerStateNum {
		return
	}
	shift := newStateNum - t.peerStateNum
	if shift >= primitives.DuplicateBitmapBits {
		t.dupBitmap = 1 << 63
		return
	}
	t.dupBitmap = (t.dupBitmap >> shift) | (1 << 63)
}

// IsDuplicateOutOfOrder reports whether stateNum, arriving out of the
// strictly-increasing fast path ApplyInbound assumes, has already been
// seen according to the sliding 64-bit bitmap. Versions 64 or more
// behind the bitmap's top are conservatively treated as seen.
func (t *SyncTracker) IsDuplicateOutOfOrder(stateNum uint64) bool {
	if !t.haveDup || stateNum > t.peerStateNum {
		return false
	}
	age := t.peerStateNum - stateNum
	if age >= primitives.DuplicateBitmapBits {
		return true
	}
	bit := uint64(1) << (63 - age)
	return t.dupBitmap&bit != 0
}
