package session

import (
	"net/netip"
	"time"

	"github.com/nomadproto/nomad/cryptosession"
	"github.com/nomadproto/nomad/primitives"
	"github.com/nomadproto/nomad/syncengine"
	"github.com/nomadproto/nomad/transport"
)

// UpdateState records a new local application state, to be diffed and
// sent on the next Poll that the pacer permits.
func (s *Session[S, D]) UpdateState(newState S, now time.Time) {
	s.engine.UpdateState(newState)
	s.conn.Pacer.OnStateChange(now)
}

// Close requests a graceful shutdown: the session moves to PhaseClosing
// and sends a Close frame carrying the highest state version it has
// acknowledged. Poll applies no close-acknowledgement timeout: the
// session stays in PhaseClosing until the peer's Close frame arrives or
// a fatal condition such as the dead-peer timeout fails it.
func (s *Session[S, D]) Close(now time.Time) error {
	if s.conn.Phase() != transport.PhaseEstablished {
		return ErrNotEstablished
	}
	if err := s.conn.Transition(transport.PhaseClosing); err != nil {
		return err
	}
	s.closeRequested = true
	return s.sendCloseFrame(now)
}

// HandleDatagram is the sole entry point for inbound bytes. Every error
// it returns is a fatal condition that has already moved the session to
// PhaseFailed and emitted a Failed event; silent-drop conditions (bad
// frames, replay, auth failure, unknown session) return nil and simply
// produce no visible effect.
func (s *Session[S, D]) HandleDatagram(data []byte, from netip.AddrPort, now time.Time) error {
	ft, err := transport.PeekFrameType(data)
	if err != nil {
		s.obs.metrics.IncSilentDrop("malformed_header")
		return nil
	}

	if s.conn.Phase() == transport.PhaseHandshaking {
		if s.role != cryptosession.RoleInitiator || ft != transport.FrameHandshakeResp {
			s.obs.metrics.IncSilentDrop("wrong_phase")
			return nil
		}
		return s.completeInitiatorHandshake(data, from, now)
	}

	switch ft {
	case transport.FrameData, transport.FrameRekey, transport.FrameClose:
		return s.handleAuthenticated(data, from, now)
	default:
		s.obs.metrics.IncSilentDrop("wrong_phase")
		return nil
	}
}

func (s *Session[S, D]) completeInitiatorHandshake(data []byte, from netip.AddrPort, now time.Time) error {
	frame, err := transport.UnmarshalHandshakeResp(data)
	if err != nil {
		return nil
	}

	msg2 := make([]byte, 0, 32+len(frame.EncryptedPayload))
	msg2 = append(msg2, frame.ResponderEphemeralPublic[:]...)
	msg2 = append(msg2, frame.EncryptedPayload...)

	payload, result, err := s.initHS.ReadMessage2(msg2)
	if err != nil {
		s.fail(err, now)
		return err
	}
	status, peerExts, err := decodeRespPayload(payload)
	if err != nil {
		s.fail(err, now)
		return err
	}
	if status != ackOK {
		s.fail(ErrStateTypeMismatch, now)
		return ErrStateTypeMismatch
	}

	crypto, err := cryptosession.NewFromHandshake(cryptosession.RoleInitiator, result)
	if err != nil {
		s.fail(err, now)
		return err
	}
	if err := s.conn.Transition(transport.PhaseEstablished); err != nil {
		s.fail(err, now)
		return err
	}

	s.crypto = crypto
	s.sessionID = frame.SessionID
	s.remoteExts = peerExts
	s.initHS = nil
	s.initWire = nil
	s.remote = from

	s.conn.Migration.RecordReceived(from.Addr(), uint64(len(data)), now)
	s.conn.Migration.ValidateAndMaybeMigrate(from.Addr(), now)
	s.conn.Pacer.OnFrameReceived(now)
	s.obs.metrics.IncHandshakeCompleted("initiator")
	s.obs.logger().Info("session established", "role", "initiator", "remote", from)
	s.emit(Connected{RemoteStatic: result.RemoteStatic})
	return nil
}

func (s *Session[S, D]) handleAuthenticated(data []byte, from netip.AddrPort, now time.Time) error {
	header, ciphertext, err := transport.UnmarshalAuthenticatedHeader(data)
	if err != nil {
		s.obs.metrics.IncSilentDrop("malformed_header")
		return nil
	}
	if header.SessionID != s.sessionID {
		s.obs.metrics.IncSilentDrop("unknown_session")
		return nil
	}

	s.conn.Migration.RecordReceived(from.Addr(), uint64(len(data)), now)

	plaintext, err := s.crypto.Decrypt(byte(header.Type), header.Flags, s.sessionID, header.Counter, ciphertext)
	if err != nil {
		s.obs.metrics.IncSilentDrop("auth_failure")
		return nil
	}

	current, migrated := s.conn.Migration.ValidateAndMaybeMigrate(from.Addr(), now)
	if migrated {
		old := s.remote
		s.remote = netip.AddrPortFrom(current, from.Port())
		s.obs.metrics.IncMigration()
		s.obs.logger().Info("remote address migrated", "old", old, "new", s.remote)
		s.emit(RemoteAddressChanged{Old: old, New: s.remote})
	}

	s.conn.Pacer.OnFrameReceived(now)

	switch header.Type {
	case transport.FrameData:
		return s.handleData(plaintext, header.Flags, now)
	case transport.FrameRekey:
		return s.handleRekey(plaintext, now)
	case transport.FrameClose:
		return s.handleClose(plaintext, now)
	}
	return nil
}

func (s *Session[S, D]) handleData(plaintext []byte, flags byte, now time.Time) error {
	dph, rest, err := transport.UnmarshalDataPayloadHeader(plaintext)
	if err != nil {
		return nil
	}
	msg, err := syncengine.UnmarshalMessage(rest)
	if err != nil {
		return nil
	}
	if msg.IsAckOnly() != (flags&transport.FlagAckOnly != 0) {
		s.obs.metrics.IncSilentDrop("ack_only_flag_mismatch")
		return nil
	}
	s.lastPeerTimestamp = dph.Timestamp

	outcome, err := s.engine.ApplyInbound(msg)
	if err != nil {
		// DecodeDiff/ApplyDiff failures are recoverable: surfaced to
		// nothing but a dropped message, the session itself lives on.
		return nil
	}

	s.engine.AckOutbound(msg.AckedStateNum, now, func(d time.Duration) {
		s.conn.RTT.Sample(d)
		s.conn.Retransmit.SetBaseRTO(s.conn.RTT.RTO())
	})

	if outcome == syncengine.InboundNew {
		s.conn.Pacer.OnAckOwed(now)
		if len(msg.Diff) > 0 {
			s.emit(StateUpdated[S]{State: s.engine.State()})
		}
	}
	return nil
}

func (s *Session[S, D]) handleRekey(plaintext []byte, now time.Time) error {
	p, err := transport.UnmarshalRekeyPlaintext(plaintext)
	if err != nil {
		return nil
	}

	if !s.rekeyInProgress {
		if err := s.initiateRekey(now); err != nil {
			s.fail(err, now)
			return err
		}
	}

	if err := s.crypto.CompleteRekey(s.rekeyEphemeral, p.PeerEphemeralPublic); err != nil {
		s.fail(err, now)
		return err
	}
	s.rekeyEphemeral.Scrub()
	s.rekeyEphemeral = nil
	s.rekeyInProgress = false
	s.obs.metrics.IncRekeyCompleted()
	s.obs.logger().Debug("rekey completed")
	return nil
}

func (s *Session[S, D]) handleClose(plaintext []byte, now time.Time) error {
	if _, err := transport.UnmarshalClosePlaintext(plaintext); err != nil {
		return nil
	}

	if s.conn.Phase() == transport.PhaseEstablished {
		if err := s.conn.Transition(transport.PhaseClosing); err != nil {
			s.fail(err, now)
			return err
		}
	}
	if !s.closeRequested {
		s.closeRequested = true
		if err := s.sendCloseFrame(now); err != nil {
			s.fail(err, now)
			return err
		}
	}
	if err := s.conn.Transition(transport.PhaseClosed); err != nil {
		return nil
	}
	s.crypto.Close()
	s.obs.metrics.IncClosed(roleLabel(s.role), "Closed")
	s.obs.logger().Info("session closed", "role", roleLabel(s.role))
	s.emit(Closed{})
	return nil
}

// Poll advances every timer the session owns: old-key expiry, the hard
// key-expiry ceiling, dead-peer detection, ack-tracker retransmit
// deadlines, the soft rekey trigger, and the pacer's send decision. It
// returns the instant the caller should invoke Poll again at the
// latest.
func (s *Session[S, D]) Poll(now time.Time) (time.Time, error) {
	switch s.conn.Phase() {
	case transport.PhaseFailed, transport.PhaseClosed:
		return now, nil
	case transport.PhaseHandshaking:
		return s.pollHandshaking(now)
	}

	s.crypto.ExpireOldKeys(now)
	if s.crypto.KeysExpired(now) {
		s.fail(cryptosession.ErrKeysExpired, now)
		return now, cryptosession.ErrKeysExpired
	}
	if s.conn.Pacer.Dead(now) {
		s.fail(transport.ErrDeadPeer, now)
		return now, transport.ErrDeadPeer
	}

	due, exceeded := s.engine.DueForRetransmit(now, s.conn.RTT.RTO())
	if len(exceeded) > 0 {
		s.fail(transport.ErrMaxRetransmitsExceeded, now)
		return now, transport.ErrMaxRetransmitsExceeded
	}

	if s.conn.Phase() == transport.PhaseEstablished && !s.rekeyInProgress && s.crypto.ShouldRekey(now) {
		if err := s.initiateRekey(now); err != nil {
			s.fail(err, now)
			return now, err
		}
	}

	retransmitting := len(due) > 0
	wantsSend := retransmitting || s.conn.Pacer.ShouldSendNow(now, s.conn.RTT.SRTT())
	if s.conn.Phase() == transport.PhaseEstablished && wantsSend {
		if err := s.sendOutboundData(now); err != nil {
			s.fail(err, now)
			return now, err
		}
		if retransmitting {
			s.obs.metrics.IncRetransmit()
		}
	}

	s.conn.Migration.GC(now)
	return s.nextWake(now), nil
}

func (s *Session[S, D]) pollHandshaking(now time.Time) (time.Time, error) {
	if s.role != cryptosession.RoleInitiator {
		return now.Add(primitives.RTOMin), nil
	}
	if now.Sub(s.handshakeSentAt) < s.conn.Retransmit.Timeout() {
		return s.handshakeSentAt.Add(s.conn.Retransmit.Timeout()), nil
	}
	if err := s.conn.Retransmit.OnRetransmit(); err != nil {
		s.fail(err, now)
		return now, err
	}
	if err := s.channel.Send(s.initWire, s.remote); err != nil {
		s.fail(err, now)
		return now, err
	}
	s.handshakeSentAt = now
	s.obs.metrics.IncRetransmit()
	return now.Add(s.conn.Retransmit.Timeout()), nil
}

func (s *Session[S, D]) initiateRekey(now time.Time) error {
	eph, err := cryptosession.GenerateRekeyEphemeral()
	if err != nil {
		return err
	}
	s.rekeyEphemeral = eph
	s.rekeyInProgress = true
	return s.sendRekeyFrame(eph, now)
}

func (s *Session[S, D]) sendRekeyFrame(eph *cryptosession.RekeyEphemeral, now time.Time) error {
	plaintext := (&transport.RekeyPlaintext{PeerEphemeralPublic: eph.Public, Timestamp: uint32(now.UnixMilli())}).Marshal()
	return s.sendAuthenticated(transport.FrameRekey, 0, plaintext, now)
}

func (s *Session[S, D]) sendCloseFrame(now time.Time) error {
	plaintext := (&transport.ClosePlaintext{FinalAck: s.engine.Tracker().LastAcked()}).Marshal()
	return s.sendAuthenticated(transport.FrameClose, 0, plaintext, now)
}

func (s *Session[S, D]) sendOutboundData(now time.Time) error {
	msg, ok := s.engine.BuildOutbound(now, s.conn.RTT.RTO())
	if !ok {
		return nil
	}
	wire := msg.Marshal()
	dph := &transport.DataPayloadHeader{
		Timestamp:     uint32(now.UnixMilli()),
		TimestampEcho: s.lastPeerTimestamp,
		PayloadLength: uint16(len(wire)),
	}
	plaintext := append(dph.Marshal(), wire...)

	var flags byte
	if msg.IsAckOnly() {
		flags = transport.FlagAckOnly
	}
	return s.sendAuthenticated(transport.FrameData, flags, plaintext, now)
}

func (s *Session[S, D]) sendAuthenticated(ft transport.FrameType, flags byte, plaintext []byte, now time.Time) error {
	ciphertext, counter, err := s.crypto.Encrypt(byte(ft), flags, s.sessionID, plaintext)
	if err != nil {
		return err
	}
	header := &transport.AuthenticatedHeader{Type: ft, Flags: flags, SessionID: s.sessionID, Counter: counter}
	wire := append(header.Marshal(), ciphertext...)

	if !s.conn.Migration.CanSend(s.remote.Addr(), uint64(len(wire)), now) {
		return nil
	}
	if err := s.channel.Send(wire, s.remote); err != nil {
		return err
	}
	s.conn.Migration.RecordSent(s.remote.Addr(), uint64(len(wire)), now)
	s.conn.Pacer.OnFrameSent(now)
	return nil
}

func (s *Session[S, D]) fail(reason error, now time.Time) {
	if s.conn.Phase() == transport.PhaseFailed || s.conn.Phase() == transport.PhaseClosed {
		return
	}
	_ = s.conn.Transition(transport.PhaseFailed)
	if s.crypto != nil {
		s.crypto.Close()
	}
	s.obs.logger().Warn("session failed", "reason", reason)
	s.obs.metrics.IncClosed(roleLabel(s.role), "Failed")
	s.emit(Failed{Reason: reason})
}

func (s *Session[S, D]) nextWake(now time.Time) time.Time {
	best := s.conn.Pacer.NextWake(now, s.conn.RTT.SRTT())

	if d, ok := s.engine.NextRetransmitDeadline(); ok && d.Before(best) {
		best = d
	}
	if d := s.crypto.RekeyDeadline(); d.Before(best) {
		best = d
	}
	if d := s.crypto.HardExpiryDeadline(); d.Before(best) {
		best = d
	}
	if d, ok := s.crypto.OldKeyExpiryDeadline(); ok && d.Before(best) {
		best = d
	}
	if !best.After(now) {
		best = now.Add(primitives.PacerMinInterval)
	}
	return best
}
