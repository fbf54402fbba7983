package extensions

import "fmt"

// RateHintType is an application-range extension: a target update rate the sender is
// willing to accept, expressed as updates-per-second times 10 so a
// half-update-per-second hint still fits a uint16. Grounded on the
// richer global/region rate-hints extension in the system this one was
// distilled from; only the global form survives here.
const RateHintType Type = 0x0102

// RateHint is the 4-byte TLV value: target rate and burst allowance.
type RateHint struct {
	TargetRateX10   uint16
	BurstAllowance  uint16
}

const rateHintWireSize = 4

func EncodeRateHint(h RateHint) TLV {
	buf := make([]byte, rateHintWireSize)
	buf[0] = byte(h.TargetRateX10)
	buf[1] = byte(h.TargetRateX10 >> 8)
	buf[2] = byte(h.BurstAllowance)
	buf[3] = byte(h.BurstAllowance >> 8)
	return TLV{Type: RateHintType, Value: buf}
}

func DecodeRateHint(value []byte) (RateHint, error) {
	if len(value) != rateHintWireSize {
		return RateHint{}, fmt.Errorf("extensions: rate hint value must be %d bytes, got %d", rateHintWireSize, len(value))
	}
	return RateHint{
		TargetRateX10:  uint16(value[0]) | uint16(value[1])<<8,
		BurstAllowance: uint16(value[2]) | uint16(value[3])<<8,
	}, nil
}

// TargetRate returns the hint's rate in updates per second.
func (h RateHint) TargetRate() float64 { return float64(h.TargetRateX10) / 10.0 }

// Negotiate picks the more conservative of two rate hints, matching
// the min-of-both-sides negotiation the richer extension used.
func Negotiate(local, remote RateHint) RateHint {
	result := local
	if remote.TargetRateX10 < result.TargetRateX10 {
		result.TargetRateX10 = remote.TargetRateX10
	}
	if remote.BurstAllowance < result.BurstAllowance {
		result.BurstAllowance = remote.BurstAllowance
	}
	return result
}
