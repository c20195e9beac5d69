package tcvdm

import (
	"errors"

	"github.com/epdlink/go-typec"
	"github.com/epdlink/go-typec/pdmsg"
)

var errNoMode = errors.New("tcvdm: no supported mode discovered")

// Start clears s and returns the Discover Identity request beginning DFP
// discovery. It returns false if the engine is not configured as an
// alternate mode DFP.
func (e *Engine) Start(s *State) ([]uint32, bool) {
	if !e.cfg.AltMode || !e.cfg.DFP {
		return nil, false
	}
	e.Reset(s)
	s.phase = PhaseIdentityPending
	s.buf[0] = uint32(pdmsg.NewVDMHeader(pdmsg.SVIDPowerDelivery, pdmsg.CommandDiscoverIdentity))
	return e.request(s, 1)
}

// Reset exits every entered mode through its handler and clears s. It must be
// called on detach and hard reset before any further VDM is handled.
func (e *Engine) Reset(s *State) {
	for i := range s.active {
		if s.active[i].handler != nil && s.active[i].opos != 0 {
			s.active[i].handler.Exit(s.mode(i))
		}
	}
	s.clear()
}

// EnterMode returns the request entering the mode at object position opos of
// svid. svid 0 picks the first configured AltMode the partner supports and
// opos 0 picks the lowest position. It returns false if no mode can be
// entered.
func (e *Engine) EnterMode(s *State, svid uint16, opos uint8) ([]uint32, bool) {
	if !e.cfg.AltMode || !e.cfg.DFP {
		return nil, false
	}
	return e.enter(s, svid, opos)
}

// ExitMode exits the entered mode at opos of svid and returns the ExitMode
// request for the partner. svid 0 resets s instead, sending nothing. Exiting
// a mode that is not entered sends nothing.
func (e *Engine) ExitMode(s *State, svid uint16, opos uint8) ([]uint32, bool) {
	if svid == 0 {
		e.Reset(s)
		return nil, false
	}
	i := s.slot(svid)
	if i < 0 || !s.active[i].entered || s.active[i].opos != opos {
		e.log.Debug("exit of inactive mode", "port", s.Port, "svid", svid, "opos", opos)
		return nil, false
	}
	s.active[i].handler.Exit(s.mode(i))
	s.active[i].opos, s.active[i].entered = 0, false
	s.phase = PhaseModeExiting

	h := pdmsg.NewVDMHeader(svid, pdmsg.CommandExitMode)
	h.SetObjectPosition(opos)
	s.buf[0] = uint32(h)
	return e.request(s, 1)
}

func (e *Engine) enter(s *State, svid uint16, opos uint8) ([]uint32, bool) {
	i, err := e.allocate(s, svid)
	if err != nil {
		if errors.Is(err, typec.ErrResourceExhausted) {
			e.log.Warn("no active mode slot", "err", err, "port", s.Port, "svid", svid)
		} else {
			e.log.Info("no alternate mode entered", "port", s.Port, "svid", svid, "err", err)
		}
		e.noMode(s)
		return nil, false
	}
	a := &s.active[i]
	entry := &s.svids[a.svidIdx]
	if a.entered {
		e.log.Debug("mode already entered", "port", s.Port, "svid", entry.SVID, "opos", a.opos)
		return nil, false
	}

	switch {
	case opos == 0 && entry.count > 0:
		opos = 1
	case opos == 0 || opos > entry.count:
		h := pdmsg.NewVDMHeader(entry.SVID, pdmsg.CommandEnterMode)
		h.SetObjectPosition(opos)
		e.violation(s, h, typec.ErrProtocolViolation, "invalid object position")
		e.release(s, i)
		e.noMode(s)
		return nil, false
	}
	a.opos = opos

	if err := a.handler.Enter(s.mode(i)); err != nil {
		e.log.Info("mode entry refused", "port", s.Port, "svid", entry.SVID, "opos", opos, "err", err)
		e.release(s, i)
		e.noMode(s)
		return nil, false
	}

	h := pdmsg.NewVDMHeader(entry.SVID, pdmsg.CommandEnterMode)
	h.SetObjectPosition(opos)
	s.buf[0] = uint32(h)
	s.phase = PhaseModeEntering
	return e.request(s, 1)
}

// allocate returns the slot for svid, assigning a free one to the first
// configured AltMode matching a discovered SVID. svid 0 matches any.
func (e *Engine) allocate(s *State, svid uint16) (int, error) {
	if svid != 0 {
		if i := s.slot(svid); i >= 0 {
			return i, nil
		}
	}
	for _, m := range e.modes {
		if svid != 0 && m.SVID() != svid {
			continue
		}
		for j := range s.SVIDs() {
			if s.svids[j].SVID != m.SVID() {
				continue
			}
			if i := s.slot(m.SVID()); i >= 0 {
				return i, nil
			}
			for i := range s.active {
				if s.active[i].handler == nil {
					s.active[i] = activeMode{svidIdx: j, handler: m}
					return i, nil
				}
			}
			return -1, typec.ErrResourceExhausted
		}
	}
	return -1, errNoMode
}

func (e *Engine) release(s *State, i int) {
	s.active[i] = activeMode{}
}

func (e *Engine) handleAck(s *State, h pdmsg.VDMHeader, msg []uint32) ([]uint32, bool) {
	data := msg[1:]
	switch h.Command() {
	case pdmsg.CommandDiscoverIdentity:
		e.consumeIdentity(s, data)
		s.phase = PhaseSVIDPending
		s.buf[0] = uint32(pdmsg.NewVDMHeader(pdmsg.SVIDPowerDelivery, pdmsg.CommandDiscoverSVIDs))
		return e.request(s, 1)

	case pdmsg.CommandDiscoverSVIDs:
		if e.consumeSVIDs(s, h, data) {
			s.buf[0] = uint32(pdmsg.NewVDMHeader(pdmsg.SVIDPowerDelivery, pdmsg.CommandDiscoverSVIDs))
			return e.request(s, 1)
		}
		return e.discoverModes(s)

	case pdmsg.CommandDiscoverModes:
		e.consumeModes(s, h, data)
		s.cursor++
		return e.discoverModes(s)

	case pdmsg.CommandEnterMode:
		i := s.slot(h.SVID())
		if i < 0 || s.active[i].opos == 0 {
			e.violation(s, h, typec.ErrProtocolViolation, "enter acknowledged for unknown mode")
			return nil, false
		}
		s.active[i].entered = true
		s.phase = PhaseModeActive
		return e.request(s, s.active[i].handler.Status(s.mode(i), s.buf[:]))

	case pdmsg.CommandDPStatus:
		i := s.slot(h.SVID())
		if i < 0 || !s.active[i].entered {
			return nil, false
		}
		// Status words are consumed from msg before buf is overwritten.
		var status [pdmsg.MaxDataObjects]uint32
		n := copy(status[:], msg)
		return e.request(s, s.active[i].handler.Config(s.mode(i), status[:n], s.buf[:]))

	case pdmsg.CommandDPConfig:
		i := s.slot(h.SVID())
		if i >= 0 && s.active[i].entered {
			if pc, ok := s.active[i].handler.(PostConfigurer); ok {
				pc.PostConfig(s.mode(i))
			}
		}
		return nil, false

	case pdmsg.CommandExitMode:
		e.exited(s)
		return nil, false

	case pdmsg.CommandAttention:
		return nil, false

	default:
		e.violation(s, h, typec.ErrProtocolViolation, "unknown command acknowledged")
		return e.reply(s, h, pdmsg.CommandTypeNAK, 0)
	}
}

func (e *Engine) handleBusy(s *State, h pdmsg.VDMHeader) ([]uint32, bool) {
	switch h.Command() {
	case pdmsg.CommandDiscoverIdentity, pdmsg.CommandDiscoverSVIDs, pdmsg.CommandDiscoverModes:
		h.SetCommandType(pdmsg.CommandTypeInit)
		s.buf[0] = uint32(h)
		return e.request(s, 1)
	case pdmsg.CommandEnterMode:
		e.violation(s, h, errors.New("tcvdm: partner busy on enter"), "mode entry abandoned")
		if i := s.slot(h.SVID()); i >= 0 && !s.active[i].entered {
			s.active[i].handler.Exit(s.mode(i))
			e.release(s, i)
		}
		e.noMode(s)
	case pdmsg.CommandExitMode:
		e.exited(s)
	}
	return nil, false
}

func (e *Engine) handleNak(s *State, h pdmsg.VDMHeader) ([]uint32, bool) {
	switch h.Command() {
	case pdmsg.CommandDiscoverIdentity, pdmsg.CommandDiscoverSVIDs, pdmsg.CommandDiscoverModes:
		e.log.Info("discovery refused", "port", s.Port, "cmd", h.Command().String())
		s.phase = PhaseNoAltMode
	case pdmsg.CommandEnterMode:
		e.log.Info("mode entry refused by partner", "port", s.Port, "svid", h.SVID(), "opos", h.ObjectPosition())
		if i := s.slot(h.SVID()); i >= 0 && !s.active[i].entered {
			s.active[i].handler.Exit(s.mode(i))
			e.release(s, i)
		}
		e.noMode(s)
	case pdmsg.CommandExitMode:
		e.exited(s)
	default:
		e.log.Debug("request refused", "port", s.Port, "svid", h.SVID(), "cmd", h.Command().String())
	}
	return nil, false
}

// noMode records a failed mode entry. Modes entered earlier stay active.
func (e *Engine) noMode(s *State) {
	if s.enteredModes() > 0 {
		s.phase = PhaseModeActive
	} else {
		s.phase = PhaseNoAltMode
	}
}

func (e *Engine) exited(s *State) {
	if s.enteredModes() > 0 {
		s.phase = PhaseModeActive
	} else {
		s.phase = PhaseDisconnected
	}
}

func (e *Engine) consumeIdentity(s *State, data []uint32) {
	s.clear()
	copy(s.identity[:], data)

	id := pdmsg.IDHeaderVDO(s.identity[0])
	e.log.Info("partner identity", "port", s.Port, "vid", id.VID(), "pid", s.PID(), "ptype", id.ProductType().String())
	if id.ProductType() == pdmsg.ProductTypeAMA {
		ama := pdmsg.AMAVDO(s.identity[3])
		e.log.Debug("alternate mode adapter", "port", s.Port, "vbus", ama.VBUSRequired(), "vconn", ama.VCONNRequired())
	}
}

// consumeSVIDs stores the SVIDs of a Discover SVIDs response. It returns true
// if the response was full without a terminator and more SVIDs may follow.
func (e *Engine) consumeSVIDs(s *State, h pdmsg.VDMHeader, data []uint32) bool {
	var got int
	for _, w := range data {
		v := pdmsg.SVIDVDO(w)
		for _, svid := range [2]uint16{v.SVID0(), v.SVID1()} {
			if svid == 0 {
				s.svidsDone = true
				return false
			}
			if s.svidCount == MaxSVIDs {
				e.violation(s, h, typec.ErrResourceExhausted, "SVID table full")
				s.svidsDone = true
				return false
			}
			s.svids[s.svidCount].SVID = svid
			s.svidCount++
			got++
		}
	}
	return got == 2*(pdmsg.MaxDataObjects-1) && s.svidCount < MaxSVIDs
}

func (e *Engine) consumeModes(s *State, h pdmsg.VDMHeader, data []uint32) {
	if s.cursor >= s.svidCount {
		return
	}
	entry := &s.svids[s.cursor]
	if len(data) == 0 {
		e.log.Info("SVID without modes", "port", s.Port, "svid", entry.SVID)
	}
	if len(data) > MaxModesPerSVID {
		e.violation(s, h, typec.ErrResourceExhausted, "mode table full")
	}
	entry.count = uint8(copy(entry.modes[:], data))
}

// discoverModes requests the modes of the SVID at the cursor, or enters the
// default mode once every SVID was visited.
func (e *Engine) discoverModes(s *State) ([]uint32, bool) {
	if s.cursor < s.svidCount {
		s.phase = PhaseModesPending
		s.buf[0] = uint32(pdmsg.NewVDMHeader(s.svids[s.cursor].SVID, pdmsg.CommandDiscoverModes))
		return e.request(s, 1)
	}
	if s.svidCount == 0 {
		e.log.Info("partner has no SVIDs", "port", s.Port)
		s.phase = PhaseNoAltMode
		return nil, false
	}
	return e.enter(s, 0, 0)
}
