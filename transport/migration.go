package transport

import (
	"net"
	"net/netip"
	"time"

	"golang.org/x/time/rate"

	"github.com/nomadproto/nomad/primitives"
)

// addressState is the per-candidate-address bookkeeping the migration
// validator needs for anti-amplification and validation tracking.
type addressState struct {
	firstSeen     time.Time
	bytesReceived uint64
	bytesSent     uint64
	validated     bool
}

// MigrationValidator tracks which remote address is currently trusted
// for a connection, enforcing anti-amplification on unvalidated
// addresses and rate-limiting how often the connection may migrate
// between subnets.
type MigrationValidator struct {
	current    netip.Addr
	haveCurrent bool

	addrs map[netip.Addr]*addressState

	subnetLimiters map[string]*rate.Limiter

	maxAddressAge time.Duration
}

func NewMigrationValidator(maxAddressAge time.Duration) *MigrationValidator {
	return &MigrationValidator{
		addrs:          make(map[netip.Addr]*addressState),
		subnetLimiters: make(map[string]*rate.Limiter),
		maxAddressAge:  maxAddressAge,
	}
}

func (v *MigrationValidator) stateFor(addr netip.Addr, now time.Time) *addressState {
	st, ok := v.addrs[addr]
	if !ok {
		st = &addressState{firstSeen: now}
		v.addrs[addr] = st
	}
	return st
}

// subnetKey returns the first 3 octets for IPv4 or the first 48 bits for
// IPv6, the granularity migration rate-limiting operates at.
func subnetKey(addr netip.Addr) string {
	if addr.Is4() {
		b := addr.As4()
		return net.IP(b[:3]).String()
	}
	b := addr.As16()
	return net.IP(b[:6]).String()
}

// CanSend reports whether count bytes may be sent to addr right now,
// enforcing the anti-amplification cap (3x bytes received) on any
// address that has not yet produced an authenticated frame.
func (v *MigrationValidator) CanSend(addr netip.Addr, count uint64, now time.Time) bool {
	st := v.stateFor(addr, now)
	if st.validated {
		return true
	}
	return st.bytesSent+count <= primitives.AntiAmplificationFactor*st.bytesReceived
}

// RecordSent accounts bytes sent toward addr, for anti-amplification.
func (v *MigrationValidator) RecordSent(addr netip.Addr, count uint64, now time.Time) {
	v.stateFor(addr, now).bytesSent += count
}

// RecordReceived accounts bytes received from addr, for anti-
// amplification, prior to any authentication decision.
func (v *MigrationValidator) RecordReceived(addr netip.Addr, count uint64, now time.Time) {
	v.stateFor(addr, now).bytesReceived += count
}

// ValidateAndMaybeMigrate is called when an authenticated frame arrives
// from addr. It marks addr as validated and, if addr differs from the
// current validated endpoint and lies in a different subnet, attempts to
// migrate subject to the per-subnet rate limit (1 migration per second).
// Returns the address that should be treated as current after the call,
// and whether a migration actually occurred.
func (v *MigrationValidator) ValidateAndMaybeMigrate(addr netip.Addr, now time.Time) (current netip.Addr, migrated bool) {
	st := v.stateFor(addr, now)
	st.validated = true

	if !v.haveCurrent {
		v.current = addr
		v.haveCurrent = true
		return v.current, false
	}
	if addr == v.current {
		return v.current, false
	}
	if subnetKey(addr) == subnetKey(v.current) {
		v.current = addr
		return v.current, true
	}

	limiter := v.limiterFor(subnetKey(addr))
	if !limiter.AllowN(now, 1) {
		return v.current, false
	}

	v.current = addr
	return v.current, true
}

func (v *MigrationValidator) limiterFor(key string) *rate.Limiter {
	l, ok := v.subnetLimiters[key]
	if !ok {
		l = rate.NewLimiter(rate.Every(primitives.SubnetMigrationInterval), 1)
		v.subnetLimiters[key] = l
	}
	return l
}

// Current returns the currently validated remote endpoint, if any.
func (v *MigrationValidator) Current() (netip.Addr, bool) {
	return v.current, v.haveCurrent
}

// GC removes address entries first seen more than maxAddressAge ago,
// bounding memory use under address churn. The currently
// validated address is never collected.
func (v *MigrationValidator) GC(now time.Time) {
	for addr, st := range v.addrs {
		if v.haveCurrent && addr == v.current {
			continue
		}
		if now.Sub(st.firstSeen) > v.maxAddressAge {
			delete(v.addrs, addr)
		}
	}
}
