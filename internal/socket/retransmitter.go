package socket

import "github.com/relaylabs/rudp/internal/usend"

// retransmitLoop wakes every RetransmitPeriod and resends any USend entry
// that has been outstanding for Timeout or longer. Each resend is
// dispatched onto the worker pool so a slow or blocked transport write
// can't stall the scan of the rest of the table, and is rate-limited
// independently of the initial-send path in SendTo.
func (s *Socket) retransmitLoop() {
	defer s.wg.Done()
	ticker := s.cfg.Clock.NewTicker(s.cfg.RetransmitPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.Chan():
			s.retransmitTimedOut()
		}
	}
}

func (s *Socket) retransmitTimedOut() {
	now := s.cfg.Clock.Now()
	s.usend.WalkTimedOut(now, s.cfg.Timeout, func(e *usend.Entry) {
		s.pool.Submit(func() {
			s.lim.Take()
			if s.ctx.Err() != nil {
				return
			}
			if _, err := s.currentTransport().WriteTo(e.Frame, e.Dest); err != nil {
				s.cfg.Logger.Debug("retransmit failed", "socket", s.id, "id", e.ID, "err", err)
				return
			}
			s.rec.TotalTransmissions.Inc()
			s.rec.Retransmissions.Inc()
		})
	})
	s.rec.USendDepth.Set(float64(s.usend.Count()))
}
