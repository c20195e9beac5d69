// Package tcvdm implements structured vendor defined message handling for
// USB-C alternate modes: answering discovery as a UFP, and driving discovery,
// mode entry and the per mode status/configure exchange as a DFP.
//
// The engine performs no I/O. The caller hands it one received VDM at a time
// along with the port's State, and transmits whatever words it returns.
package tcvdm

import (
	"errors"
	"log/slog"

	"github.com/epdlink/go-typec"
	"github.com/epdlink/go-typec/pdmsg"
)

// Config selects the features of an Engine.
type Config struct {
	// AltMode enables alternate mode handling. Without it inbound VDMs are
	// dropped unanswered.
	AltMode bool

	// DFP enables driving discovery and consuming responses. Without it the
	// engine only answers commands through its Responder.
	DFP bool
}

// Engine dispatches structured VDMs. An Engine holds no per port state and
// may be shared by several ports.
type Engine struct {
	cfg   Config
	rsp   Responder
	modes []AltMode
	log   *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithResponder sets the responder answering INIT commands. Without one every
// command is answered with NAK.
func WithResponder(r Responder) Option {
	return func(e *Engine) {
		e.rsp = r
	}
}

// WithAltModes sets the alternate modes the DFP may enter, in order of
// preference.
func WithAltModes(m ...AltMode) Option {
	return func(e *Engine) {
		e.modes = append(e.modes, m...)
	}
}

// WithLogger sets the logger. nil means slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.log = l
	}
}

// New returns an engine.
func New(cfg Config, opts ...Option) *Engine {
	e := &Engine{cfg: cfg}
	for _, o := range opts {
		o(e)
	}
	if e.log == nil {
		e.log = slog.Default()
	}
	e.log = e.log.With("component", "tcvdm")
	return e
}

// Config returns the engine configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// HandleInbound processes one received structured VDM. msg holds the header
// followed by its data objects. It returns the words to transmit and whether
// to transmit at all. The returned slice is backed by s and is valid until the
// next call with s.
func (e *Engine) HandleInbound(s *State, msg []uint32) ([]uint32, bool) {
	if !e.cfg.AltMode || len(msg) == 0 {
		return nil, false
	}
	h := pdmsg.VDMHeader(msg[0])
	if !h.Structured() {
		e.log.Debug("unstructured VDM dropped", "port", s.Port, "svid", h.SVID())
		return nil, false
	}
	switch h.CommandType() {
	case pdmsg.CommandTypeInit:
		return e.handleInit(s, h, msg[1:])
	case pdmsg.CommandTypeACK:
		if !e.solicited(s, h) {
			e.violation(s, h, typec.ErrProtocolViolation, "unsolicited response")
			return e.reply(s, h, pdmsg.CommandTypeNAK, 0)
		}
		return e.handleAck(s, h, msg)
	case pdmsg.CommandTypeBusy:
		if !e.solicited(s, h) {
			e.violation(s, h, typec.ErrProtocolViolation, "unsolicited response")
			return nil, false
		}
		return e.handleBusy(s, h)
	default:
		if !e.solicited(s, h) {
			e.violation(s, h, typec.ErrProtocolViolation, "unsolicited response")
			return nil, false
		}
		return e.handleNak(s, h)
	}
}

// solicited reports whether h responds to the request s is waiting on, and
// if so clears it.
func (e *Engine) solicited(s *State, h pdmsg.VDMHeader) bool {
	if !e.cfg.DFP || s.pending == 0 {
		return false
	}
	if h.Command() != s.pending.Command() || h.SVID() != s.pending.SVID() {
		return false
	}
	// Mode commands must answer for the mode they addressed.
	if p := s.pending.ObjectPosition(); p != 0 && h.ObjectPosition() != p {
		return false
	}
	s.pending = 0
	return true
}

func (e *Engine) handleInit(s *State, h pdmsg.VDMHeader, data []uint32) ([]uint32, bool) {
	cmd := h.Command()
	if cmd == pdmsg.CommandAttention {
		e.attention(s, h, data)
		return nil, false
	}
	if e.rsp == nil {
		return e.reply(s, h, pdmsg.CommandTypeNAK, 0)
	}

	req := Request{Port: s.Port, Header: h, Data: data}
	out := s.buf[1:]
	var (
		n   int
		err error
	)
	switch {
	case cmd == pdmsg.CommandDiscoverIdentity:
		n, err = e.rsp.Identity(req, out)
	case cmd == pdmsg.CommandDiscoverSVIDs:
		n, err = e.rsp.SVIDs(req, out)
	case cmd == pdmsg.CommandDiscoverModes:
		n, err = e.rsp.Modes(req, out)
	case cmd == pdmsg.CommandEnterMode:
		n, err = e.rsp.EnterMode(req, out)
	case cmd == pdmsg.CommandExitMode:
		n, err = e.rsp.ExitMode(req, out)
	case cmd >= 16:
		n, err = e.rsp.Command(req, out)
	default:
		e.violation(s, h, typec.ErrProtocolViolation, "unknown command")
		return e.reply(s, h, pdmsg.CommandTypeNAK, 0)
	}

	switch {
	case err == nil:
		return e.reply(s, h, pdmsg.CommandTypeACK, min(n, len(out)))
	case errors.Is(err, ErrBusy):
		return e.reply(s, h, pdmsg.CommandTypeBusy, 0)
	default:
		if !errors.Is(err, ErrNak) {
			e.log.Debug("command refused", "port", s.Port, "cmd", cmd, "err", err)
		}
		return e.reply(s, h, pdmsg.CommandTypeNAK, 0)
	}
}

// reply writes a response to h with n data objects already in s.buf[1:].
func (e *Engine) reply(s *State, h pdmsg.VDMHeader, t pdmsg.CommandType, n int) ([]uint32, bool) {
	h.SetCommandType(t)
	h.SetVersion(s.version)
	s.buf[0] = uint32(h)
	return s.buf[:1+n], true
}

// request finishes an INIT request whose words are in s.buf[:n] and records
// it as pending.
func (e *Engine) request(s *State, n int) ([]uint32, bool) {
	if n <= 0 {
		return nil, false
	}
	h := pdmsg.VDMHeader(s.buf[0])
	h.SetStructured(true)
	h.SetCommandType(pdmsg.CommandTypeInit)
	h.SetVersion(s.version)
	s.buf[0] = uint32(h)
	s.pending = h
	return s.buf[:min(n, len(s.buf))], true
}

// Attention builds an Attention message from the mode at svid and opos
// carrying data. Attention is never answered, so nothing is recorded as
// pending.
func (e *Engine) Attention(s *State, svid uint16, opos uint8, data ...uint32) ([]uint32, bool) {
	if !e.cfg.AltMode {
		return nil, false
	}
	h := pdmsg.NewVDMHeader(svid, pdmsg.CommandAttention)
	h.SetObjectPosition(opos)
	h.SetVersion(s.version)
	s.buf[0] = uint32(h)
	return s.buf[:1+copy(s.buf[1:], data)], true
}

// attention forwards an Attention message to the entered mode it addresses.
func (e *Engine) attention(s *State, h pdmsg.VDMHeader, data []uint32) {
	if !e.cfg.DFP {
		e.log.Debug("attention ignored", "port", s.Port, "svid", h.SVID())
		return
	}
	i := s.slot(h.SVID())
	if i < 0 || !s.active[i].entered || s.active[i].opos != h.ObjectPosition() {
		e.violation(s, h, typec.ErrProtocolViolation, "attention for inactive mode")
		return
	}
	msg := s.buf[:1+copy(s.buf[1:], data)]
	msg[0] = uint32(h)
	s.active[i].handler.Attention(s.mode(i), msg)
}

func (e *Engine) violation(s *State, h pdmsg.VDMHeader, err error, msg string) {
	e.log.Warn(msg,
		"err", err,
		"port", s.Port,
		"svid", h.SVID(),
		"cmd", h.Command().String(),
		"cmdt", h.CommandType().String(),
		"opos", h.ObjectPosition(),
	)
}
