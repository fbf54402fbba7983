// Package session implements the orchestrator binding one CryptoSession,
// one transport.ConnectionState, and one syncengine.Engine to a single
// peer, driving their timers and turning inbound datagrams into
// host-visible events.
package session

import (
	"crypto/rand"
	"fmt"
	"net/netip"
	"time"

	"github.com/nomadproto/nomad/cryptosession"
	"github.com/nomadproto/nomad/extensions"
	"github.com/nomadproto/nomad/primitives"
	"github.com/nomadproto/nomad/statecontract"
	"github.com/nomadproto/nomad/syncengine"
	"github.com/nomadproto/nomad/transport"
)

// DatagramChannel is the only I/O surface a Session needs from its host.
// Send should be non-blocking where the host's transport allows it; Recv
// is driven by the host's own event loop, one datagram at a time.
type DatagramChannel interface {
	Send(data []byte, remote netip.AddrPort) error
	Recv() ([]byte, netip.AddrPort, error)
}

const defaultMaxAddressAge = 5 * time.Minute

// Session is a single-threaded cooperative state machine: every method
// here must be called from one goroutine at a time. Multiple Sessions
// are independent and may run on parallel goroutines; that partitioning
// is the host's job, per the concurrency model this type implements.
type Session[S any, D any] struct {
	role    cryptosession.Role
	channel DatagramChannel

	local       *cryptosession.StaticKeypair
	stateTypeID string
	localExts   []extensions.TLV

	crypto *cryptosession.CryptoSession
	conn   *transport.ConnectionState
	engine *syncengine.Engine[S, D]

	sessionID primitives.SessionID
	remote    netip.AddrPort

	initHS          *cryptosession.InitiatorHandshake
	initWire        []byte
	handshakeSentAt time.Time

	remoteExts []extensions.TLV

	rekeyEphemeral  *cryptosession.RekeyEphemeral
	rekeyInProgress bool

	closeRequested bool

	lastPeerTimestamp uint32

	obs observability

	events []Event
}

func newSessionID() (primitives.SessionID, error) {
	var id primitives.SessionID
	if _, err := rand.Read(id[:]); err != nil {
		return id, fmt.Errorf("session: generate session id: %w", err)
	}
	return id, nil
}

func (s *Session[S, D]) emit(e Event) { s.events = append(s.events, e) }

// Events drains and returns every event produced since the last call.
func (s *Session[S, D]) Events() []Event {
	out := s.events
	s.events = nil
	return out
}

// Phase reports the connection's current lifecycle phase.
func (s *Session[S, D]) Phase() transport.Phase { return s.conn.Phase() }

// State returns the engine's current state: the latest value given to
// UpdateState with inbound diffs applied on top, or the initial value
// given to Open or Accept before either.
func (s *Session[S, D]) State() S { return s.engine.State() }

// RemoteEndpoint returns the currently validated remote address.
func (s *Session[S, D]) RemoteEndpoint() netip.AddrPort { return s.remote }

// Open starts the initiator side of a handshake toward a known
// responder static public key, sending the Handshake Init frame
// immediately. The returned Session is in PhaseHandshaking; feed it
// inbound datagrams via HandleDatagram to complete the exchange.
func Open[S any, D any](
	channel DatagramChannel,
	local *cryptosession.StaticKeypair,
	remoteStatic primitives.Key,
	remote netip.AddrPort,
	contract *statecontract.Contract[S, D],
	initial S,
	localExts []extensions.TLV,
	opts ...Option,
) (_ *Session[S, D], err error) {
	obs := buildObservability(opts)
	obs.metrics.IncHandshakeStarted()
	defer func() {
		if err != nil {
			obs.metrics.IncHandshakeFailed()
			obs.logger().Warn("handshake init failed", "role", "initiator", "error", err)
		}
	}()

	hs, err := cryptosession.NewInitiatorHandshake(local, remoteStatic)
	if err != nil {
		return nil, err
	}

	payload, err := encodeInitPayload(contract.StateTypeID, localExts)
	if err != nil {
		return nil, err
	}

	msg1, err := hs.WriteMessage1(payload)
	if err != nil {
		return nil, err
	}
	frame, err := splitHandshakeInit(msg1)
	if err != nil {
		return nil, err
	}
	wire, err := frame.Marshal()
	if err != nil {
		return nil, err
	}
	if err := channel.Send(wire, remote); err != nil {
		return nil, fmt.Errorf("session: send handshake init: %w", err)
	}

	now := time.Now()
	s := &Session[S, D]{
		role:            cryptosession.RoleInitiator,
		channel:         channel,
		local:           local,
		stateTypeID:     contract.StateTypeID,
		localExts:       localExts,
		conn:            transport.NewConnectionState(defaultMaxAddressAge),
		engine:          syncengine.NewEngine[S, D](contract, initial),
		remote:          remote,
		initHS:          hs,
		initWire:        wire,
		handshakeSentAt: now,
		obs:             obs,
	}
	s.conn.Pacer.OnFrameSent(now)
	return s, nil
}

// splitHandshakeInit recovers the three wire fields from a raw Noise_IK
// first message: Noise_IK's own wire format (e || encrypted_s ||
// encrypted_payload) is already byte-identical to the frame layout past
// the type/reserved/version prefix.
func splitHandshakeInit(msg1 []byte) (*transport.HandshakeInitFrame, error) {
	if len(msg1) < 32+48 {
		return nil, fmt.Errorf("session: handshake message 1 too short: %d bytes", len(msg1))
	}
	f := &transport.HandshakeInitFrame{ProtocolVersion: primitives.ProtocolVersion}
	copy(f.InitiatorEphemeralPublic[:], msg1[:32])
	f.EncryptedInitiatorStatic = msg1[32:80]
	f.EncryptedPayload = msg1[80:]
	return f, nil
}

// Accept consumes a raw inbound datagram believed to be a Handshake
// Init and, on success, completes the responder side immediately,
// sending the Handshake Response and returning an established Session.
func Accept[S any, D any](
	channel DatagramChannel,
	local *cryptosession.StaticKeypair,
	contract *statecontract.Contract[S, D],
	initial S,
	localExts []extensions.TLV,
	data []byte,
	from netip.AddrPort,
	opts ...Option,
) (_ *Session[S, D], err error) {
	obs := buildObservability(opts)
	defer func() {
		if err != nil && err != ErrUnsupportedProtocolVersion {
			obs.metrics.IncHandshakeFailed()
			obs.logger().Warn("handshake accept failed", "role", "responder", "remote", from, "error", err)
		}
	}()

	frame, err := transport.UnmarshalHandshakeInit(data)
	if err != nil {
		return nil, err
	}
	if frame.ProtocolVersion != primitives.ProtocolVersion {
		obs.metrics.IncUnknownProtocolVersion()
		return nil, ErrUnsupportedProtocolVersion
	}

	obs.metrics.IncHandshakeStarted()

	msg1 := make([]byte, 0, 32+48+len(frame.EncryptedPayload))
	msg1 = append(msg1, frame.InitiatorEphemeralPublic[:]...)
	msg1 = append(msg1, frame.EncryptedInitiatorStatic...)
	msg1 = append(msg1, frame.EncryptedPayload...)

	hs, err := cryptosession.NewResponderHandshake(local)
	if err != nil {
		return nil, err
	}
	payload, remoteStatic, err := hs.ReadMessage1(msg1)
	if err != nil {
		return nil, err
	}
	peerStateTypeID, peerExts, err := decodeInitPayload(payload)
	if err != nil {
		return nil, err
	}
	if peerStateTypeID != contract.StateTypeID {
		return nil, ErrStateTypeMismatch
	}

	sessionID, err := newSessionID()
	if err != nil {
		return nil, err
	}

	respPayload := encodeRespPayload(ackOK, localExts)
	msg2, result, err := hs.WriteMessage2(respPayload, remoteStatic)
	if err != nil {
		return nil, err
	}
	if len(msg2) < 32 {
		return nil, fmt.Errorf("session: handshake message 2 too short: %d bytes", len(msg2))
	}
	respFrame := &transport.HandshakeRespFrame{SessionID: sessionID, EncryptedPayload: msg2[32:]}
	copy(respFrame.ResponderEphemeralPublic[:], msg2[:32])
	wire, err := respFrame.Marshal()
	if err != nil {
		return nil, err
	}
	if err := channel.Send(wire, from); err != nil {
		return nil, fmt.Errorf("session: send handshake response: %w", err)
	}

	crypto, err := cryptosession.NewFromHandshake(cryptosession.RoleResponder, result)
	if err != nil {
		return nil, err
	}

	s := &Session[S, D]{
		role:        cryptosession.RoleResponder,
		channel:     channel,
		local:       local,
		stateTypeID: contract.StateTypeID,
		localExts:   localExts,
		crypto:      crypto,
		conn:        transport.NewConnectionState(defaultMaxAddressAge),
		engine:      syncengine.NewEngine[S, D](contract, initial),
		sessionID:   sessionID,
		remote:      from,
		remoteExts:  peerExts,
		obs:         obs,
	}
	if err := s.conn.Transition(transport.PhaseEstablished); err != nil {
		return nil, err
	}
	now := time.Now()
	s.conn.Pacer.OnFrameSent(now)
	s.conn.Migration.RecordReceived(from.Addr(), uint64(len(data)), now)
	s.conn.Migration.ValidateAndMaybeMigrate(from.Addr(), now)
	s.obs.metrics.IncHandshakeCompleted("responder")
	s.obs.logger().Info("session established", "role", "responder", "remote", from)
	s.emit(Connected{RemoteStatic: result.RemoteStatic})
	return s, nil
}
