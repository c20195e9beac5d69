package tcdp

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/epdlink/go-typec"
	"github.com/epdlink/go-typec/pdmsg"
	"github.com/epdlink/go-typec/tcvdm"
)

// VIDGoogle is the USB vendor ID reported by default.
const VIDGoogle uint16 = 0x18d1

// sinkModePosition is the object position of the only mode a Sink offers.
const sinkModePosition = 1

// Identity is what a Sink reports in its Discover Identity response.
type Identity struct {
	VID       uint16
	PID       uint16
	BCDDevice uint16
	HWVersion uint8
	FWVersion uint8
}

// Sink answers DisplayPort discovery, entry and configuration from a DFP as
// a UFP_D receptacle supporting pin assignments C and D.
//
// Sink is driven from the port's policy engine loop. Enabled may be read from
// any goroutine.
type Sink struct {
	id  Identity
	log *slog.Logger

	active  uint8 // entered object position, 0 if none
	enabled atomic.Bool
	hpdSent bool
}

// SinkOption configures a Sink.
type SinkOption func(*Sink)

// WithSinkLogger sets the logger. nil means slog.Default().
func WithSinkLogger(l *slog.Logger) SinkOption {
	return func(s *Sink) {
		s.log = l
	}
}

// NewSink returns a Sink reporting id. A zero VID is replaced by VIDGoogle.
func NewSink(id Identity, opts ...SinkOption) *Sink {
	if id.VID == 0 {
		id.VID = VIDGoogle
	}
	s := &Sink{id: id}
	for _, o := range opts {
		o(s)
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	s.log = s.log.With("component", "tcdp", "role", "sink")
	return s
}

// ModeVDO returns the DisplayPort mode advertised in Discover Modes.
func ModeVDO() pdmsg.DPModeVDO {
	return pdmsg.MakeDPModeVDO(pdmsg.DPMode{
		UFPDPins:   pdmsg.DPPinC | pdmsg.DPPinD,
		Receptacle: true,
		Signaling:  pdmsg.DPSignalingV13,
		Capability: pdmsg.DPPortSink,
	})
}

// Enabled reports whether the DFP configured DisplayPort signaling.
func (s *Sink) Enabled() bool {
	return s.enabled.Load()
}

// Active reports whether the DFP entered the DisplayPort mode.
func (s *Sink) Active() bool {
	return s.active != 0
}

// Reset drops the mode as on detach or hard reset.
func (s *Sink) Reset() {
	s.active = 0
	s.enabled.Store(false)
	s.hpdSent = false
}

// Status returns the DP status word the Sink reports.
func (s *Sink) Status() pdmsg.DPStatusVDO {
	en := s.enabled.Load()
	return pdmsg.MakeDPStatusVDO(pdmsg.DPStatus{
		HPD:       en,
		Enabled:   en,
		Connected: pdmsg.DPConnectedUFPD,
	})
}

// PendingHPD returns the status to send in an Attention message to signal
// HPD high, once per configuration. ok is false when there is nothing to send.
func (s *Sink) PendingHPD() (status pdmsg.DPStatusVDO, opos uint8, ok bool) {
	if s.hpdSent || s.active == 0 || !s.enabled.Load() {
		return 0, 0, false
	}
	s.hpdSent = true
	s.log.Info("asserting HPD")
	return s.Status(), s.active, true
}

// Identity answers Discover Identity with an AMA identity.
func (s *Sink) Identity(req tcvdm.Request, data []uint32) (int, error) {
	data[0] = uint32(pdmsg.MakeIDHeaderVDO(false, false, pdmsg.ProductTypeAMA, true, s.id.VID))
	data[1] = uint32(pdmsg.MakeCertStatVDO(0))
	data[2] = uint32(pdmsg.MakeProductVDO(s.id.PID, s.id.BCDDevice))
	data[3] = uint32(pdmsg.MakeAMAVDO(pdmsg.AMA{
		HWVersion:    s.id.HWVersion,
		FWVersion:    s.id.FWVersion,
		VBUSRequired: true,
		USBSS:        pdmsg.AMABillboardOnly,
	}))
	return 4, nil
}

// SVIDs answers Discover SVIDs with the DisplayPort SVID only.
func (s *Sink) SVIDs(req tcvdm.Request, data []uint32) (int, error) {
	data[0] = uint32(pdmsg.MakeSVIDVDO(pdmsg.SVIDDisplayPort, 0))
	return 1, nil
}

// Modes answers Discover Modes for the DisplayPort SVID with ModeVDO and
// refuses every other SVID.
func (s *Sink) Modes(req tcvdm.Request, data []uint32) (int, error) {
	if req.Header.SVID() != pdmsg.SVIDDisplayPort {
		return 0, tcvdm.ErrNak
	}
	data[0] = uint32(ModeVDO())
	return 1, nil
}

// EnterMode accepts the DisplayPort mode at object position 1.
func (s *Sink) EnterMode(req tcvdm.Request, data []uint32) (int, error) {
	if req.Header.SVID() != pdmsg.SVIDDisplayPort || req.Header.ObjectPosition() != sinkModePosition {
		return 0, tcvdm.ErrNak
	}
	s.active = sinkModePosition
	s.log.Info("entered DisplayPort mode", "port", req.Port)
	return 0, nil
}

// ExitMode drops the mode. It is always acknowledged.
func (s *Sink) ExitMode(req tcvdm.Request, data []uint32) (int, error) {
	if s.active != 0 {
		s.log.Info("exited DisplayPort mode", "port", req.Port)
	}
	s.Reset()
	return 0, nil
}

// Command answers DisplayPort Status and Configure.
func (s *Sink) Command(req tcvdm.Request, data []uint32) (int, error) {
	if req.Header.SVID() != pdmsg.SVIDDisplayPort {
		return 0, tcvdm.ErrNak
	}
	switch req.Header.Command() {
	case pdmsg.CommandDPStatus:
		if s.active == 0 || req.Header.ObjectPosition() != s.active {
			return 0, tcvdm.ErrNak
		}
		data[0] = uint32(s.Status())
		return 1, nil

	case pdmsg.CommandDPConfig:
		if len(req.Data) == 0 {
			return 0, fmt.Errorf("tcdp: configure without data object: %w", typec.ErrProtocolViolation)
		}
		cfg := pdmsg.DPConfigVDO(req.Data[0])
		if cfg.DPOn() {
			s.enabled.Store(true)
			s.log.Info("DisplayPort configured", "port", req.Port, "pin", PinName(cfg.Pin()))
		}
		return 0, nil
	}
	return 0, tcvdm.ErrNak
}

// PendingAttention returns the HPD Attention as svid, object position and
// status word.
func (s *Sink) PendingAttention() (svid uint16, opos uint8, data uint32, ok bool) {
	st, opos, ok := s.PendingHPD()
	return pdmsg.SVIDDisplayPort, opos, uint32(st), ok
}
