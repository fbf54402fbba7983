package extensions

import "fmt"

// PriorityHintType is an application-range extension: the sender's classification of
// the traffic this session will mostly carry, grounded in the same
// small/frequent vs. large/infrequent distinction a traffic
// prioritizer uses to keep game-sized packets from queuing behind
// bulk transfers.
const PriorityHintType Type = 0x0101

// PriorityClass mirrors the three-level split: real-time traffic that
// must never queue behind anything else, interactive traffic that
// tolerates brief delay, and bulk traffic that yields to both.
type PriorityClass uint8

const (
	PriorityRealtime    PriorityClass = 0
	PriorityInteractive PriorityClass = 1
	PriorityBulk        PriorityClass = 2
)

func (c PriorityClass) String() string {
	switch c {
	case PriorityRealtime:
		return "realtime"
	case PriorityInteractive:
		return "interactive"
	case PriorityBulk:
		return "bulk"
	default:
		return fmt.Sprintf("PriorityClass(%d)", uint8(c))
	}
}

// EncodePriorityHint produces the 1-byte TLV value for a priority hint.
func EncodePriorityHint(class PriorityClass) TLV {
	return TLV{Type: PriorityHintType, Value: []byte{byte(class)}}
}

// DecodePriorityHint reads a priority hint TLV's value. A peer offering
// an out-of-range class is not an error here: callers that care about
// normalizing unknown classes should fall back to PriorityInteractive
// themselves.
func DecodePriorityHint(value []byte) (PriorityClass, error) {
	if len(value) != 1 {
		return 0, fmt.Errorf("extensions: priority hint value must be 1 byte, got %d", len(value))
	}
	return PriorityClass(value[0]), nil
}
