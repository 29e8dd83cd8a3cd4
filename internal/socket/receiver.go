package socket

import (
	"net"

	"github.com/relaylabs/rudp/internal/frame"
	"github.com/relaylabs/rudp/internal/rrecv"
)

// receiveLoop reads frames off the current transport and dispatches them:
// a zero-length read is a sentinel enqueued into RRecv directly (no
// decode, no ACK); a DATA frame is enqueued and then acknowledged; an ACK
// frame is removed from the unacknowledged-send table.
func (s *Socket) receiveLoop() {
	defer s.wg.Done()
	buf := make([]byte, frame.HeaderSize+s.cfg.PayloadCap)

	for {
		if s.ctx.Err() != nil {
			return
		}
		tr := s.currentTransport()
		n, addr, err := tr.ReadFrom(buf)
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			// Bind may have swapped and closed this transport out from
			// under us; loop around to pick up the new one.
			continue
		}

		udpAddr, ok := addr.(*net.UDPAddr)
		if !ok {
			resolved, rerr := net.ResolveUDPAddr("udp", addr.String())
			if rerr != nil {
				continue
			}
			udpAddr = resolved
		}

		if n == 0 {
			s.handleSentinel(udpAddr)
			continue
		}

		if s.cfg.Dropper.Drop(n) {
			s.rec.FramesDropped.Inc()
			continue
		}

		f, err := frame.Decode(buf[:n])
		if err != nil {
			s.rec.MalformedFrames.Inc()
			s.cfg.Logger.Debug("discarding malformed frame", "socket", s.id, "from", udpAddr, "err", err)
			continue
		}

		switch f.Type {
		case frame.TypeAck:
			s.handleAck(f)
		case frame.TypeData:
			s.handleData(f, udpAddr)
		}
	}
}

// handleSentinel enqueues an empty RRecv entry for a zero-length
// transport read — a valid, deliverable "no payload" receive per
// spec.md §4.5 step 3 — without sending an ACK, since a sentinel has no
// message id to echo.
func (s *Socket) handleSentinel(src *net.UDPAddr) {
	entry := &rrecv.Entry{Payload: []byte{}, Src: src}
	if err := s.rrecv.EnqueueWithBackoff(s.ctx, entry, s.cfg.BackoffInterval); err != nil {
		if s.ctx.Err() == nil {
			s.cfg.Logger.Debug("failed to enqueue sentinel", "socket", s.id, "err", err)
		}
		return
	}
	s.rec.RRecvDepth.Set(float64(s.rrecv.Count()))
}

func (s *Socket) handleAck(f frame.Frame) {
	if !s.usend.Remove(f.ID) {
		s.rec.AcksUnmatched.Inc()
		if s.acktrck.wasRecentlySent(f.ID) {
			s.cfg.Logger.Debug("late ack for already-resolved id", "socket", s.id, "id", f.ID)
		} else {
			s.cfg.Logger.Debug("ack for unrecognized id", "socket", s.id, "id", f.ID)
		}
		return
	}
	s.rec.USendDepth.Set(float64(s.usend.Count()))
}

// handleData enqueues the payload into RRecv and only then acknowledges
// it, so the sender never sees an ACK for a payload this socket has not
// actually accepted into its received-ready table — if the enqueue never
// completes (e.g. RRecv stays full until Close cancels the wait), no ACK
// is sent and the sender's retransmitter will resend.
func (s *Socket) handleData(f frame.Frame, src *net.UDPAddr) {
	if !s.dedup.seen(src.String(), f.ID) {
		payload := make([]byte, len(f.Payload))
		copy(payload, f.Payload)
		entry := &rrecv.Entry{ID: f.ID, Payload: payload, Src: src}
		if err := s.rrecv.EnqueueWithBackoff(s.ctx, entry, s.cfg.BackoffInterval); err != nil {
			if s.ctx.Err() == nil {
				s.cfg.Logger.Debug("failed to enqueue received data", "socket", s.id, "id", f.ID, "err", err)
			}
			return
		}
		s.rec.RRecvDepth.Set(float64(s.rrecv.Count()))
	} else {
		s.rec.DedupHits.Inc()
	}

	ack := frame.EncodeAck(f.ID)
	if _, err := s.currentTransport().WriteTo(ack, src); err != nil && s.ctx.Err() == nil {
		s.cfg.Logger.Debug("failed to send ack", "socket", s.id, "id", f.ID, "err", err)
	}
}
