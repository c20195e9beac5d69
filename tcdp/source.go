package tcdp

import (
	"fmt"
	"log/slog"

	"github.com/epdlink/go-typec"
	"github.com/epdlink/go-typec/pdmsg"
	"github.com/epdlink/go-typec/tcvdm"
)

// Source is the DFP_D side of the DisplayPort mode. It is registered with a
// tcvdm engine through tcvdm.WithAltModes.
type Source struct {
	mux Mux
	log *slog.Logger

	ports map[int]*sourcePort
}

type sourcePort struct {
	status pdmsg.DPStatusVDO
	pin    uint8
}

// SourceOption configures a Source.
type SourceOption func(*Source)

// WithMux sets the lane mux driven from the configured pin assignment.
func WithMux(m Mux) SourceOption {
	return func(s *Source) {
		s.mux = m
	}
}

// WithSourceLogger sets the logger. nil means slog.Default().
func WithSourceLogger(l *slog.Logger) SourceOption {
	return func(s *Source) {
		s.log = l
	}
}

// NewSource returns a Source.
func NewSource(opts ...SourceOption) *Source {
	s := &Source{ports: make(map[int]*sourcePort)}
	for _, o := range opts {
		o(s)
	}
	if s.mux == nil {
		s.mux = nopMux{}
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	s.log = s.log.With("component", "tcdp", "role", "source")
	return s
}

var _ tcvdm.AltMode = (*Source)(nil)
var _ tcvdm.PostConfigurer = (*Source)(nil)

// SVID returns the DisplayPort SVID.
func (s *Source) SVID() uint16 {
	return pdmsg.SVIDDisplayPort
}

// Enter refuses partners that cannot act as UFP_D.
func (s *Source) Enter(m tcvdm.Mode) error {
	caps := pdmsg.DPModeVDO(m.Caps)
	if caps.Capability()&pdmsg.DPPortSink == 0 {
		return fmt.Errorf("tcdp: partner mode %08x is not UFP_D capable: %w", m.Caps, typec.ErrPolicyReject)
	}
	s.ports[m.Port] = &sourcePort{}
	s.setMux(m.Port, MuxNone)
	return nil
}

// Status asks the partner for its DisplayPort status.
func (s *Source) Status(m tcvdm.Mode, vdm []uint32) int {
	h := pdmsg.NewVDMHeader(pdmsg.SVIDDisplayPort, pdmsg.CommandDPStatus)
	h.SetObjectPosition(m.Position)
	vdm[0] = uint32(h)
	vdm[1] = uint32(pdmsg.MakeDPStatusVDO(pdmsg.DPStatus{
		Enabled:   true,
		Connected: pdmsg.DPConnectedDFPD,
	}))
	return 2
}

// Config configures the pin assignment chosen by SelectPinMode from the
// partner's status. It sends nothing if no assignment is usable.
func (s *Source) Config(m tcvdm.Mode, status []uint32, vdm []uint32) int {
	p := s.port(m.Port)
	if len(status) > 1 {
		p.status = pdmsg.DPStatusVDO(status[1])
	}
	pin := SelectPinMode(pdmsg.DPModeVDO(m.Caps), p.status)
	if pin == 0 {
		s.log.Warn("no usable pin assignment", "port", m.Port, "caps", m.Caps, "status", uint32(p.status))
		return 0
	}
	p.pin = pin
	s.setMux(m.Port, MuxModeForPin(pin))

	h := pdmsg.NewVDMHeader(pdmsg.SVIDDisplayPort, pdmsg.CommandDPConfig)
	h.SetObjectPosition(m.Position)
	vdm[0] = uint32(h)
	vdm[1] = uint32(pdmsg.MakeDPConfigVDO(pin, pdmsg.DPSignalingV13, pdmsg.DPConfigUFPD))
	return 2
}

// PostConfig runs once the partner acknowledged the configuration.
func (s *Source) PostConfig(m tcvdm.Mode) {
	p := s.port(m.Port)
	s.log.Info("DisplayPort configured", "port", m.Port, "pin", PinName(p.pin), "hpd", p.status.HPD())
}

// Attention records the status carried by a DisplayPort Attention.
func (s *Source) Attention(m tcvdm.Mode, msg []uint32) {
	if len(msg) < 2 {
		return
	}
	p := s.port(m.Port)
	prev := p.status
	p.status = pdmsg.DPStatusVDO(msg[1])
	if prev.HPD() != p.status.HPD() || p.status.IRQHPD() {
		s.log.Info("HPD", "port", m.Port, "level", p.status.HPD(), "irq", p.status.IRQHPD())
	}
	if p.status.ExitRequest() {
		s.log.Info("partner requests exit", "port", m.Port)
	}
}

// Exit returns the lanes to USB.
func (s *Source) Exit(m tcvdm.Mode) {
	delete(s.ports, m.Port)
	s.setMux(m.Port, MuxUSB)
}

// HPD reports the last HPD level the partner on port reported.
func (s *Source) HPD(port int) bool {
	p, ok := s.ports[port]
	return ok && p.status.HPD()
}

// Pin returns the configured pin assignment on port, 0 if none.
func (s *Source) Pin(port int) uint8 {
	if p, ok := s.ports[port]; ok {
		return p.pin
	}
	return 0
}

func (s *Source) port(port int) *sourcePort {
	p, ok := s.ports[port]
	if !ok {
		p = &sourcePort{}
		s.ports[port] = p
	}
	return p
}

func (s *Source) setMux(port int, mode MuxMode) {
	if err := s.mux.SetMux(port, mode); err != nil {
		s.log.Warn("mux", "port", port, "mode", mode.String(), "err", err)
	}
}
