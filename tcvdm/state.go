package tcvdm

import (
	"github.com/epdlink/go-typec/pdmsg"
)

// Table bounds of a State.
const (
	MaxSVIDs        = 24
	MaxModesPerSVID = pdmsg.MaxDataObjects - 1
	MaxActiveModes  = 2

	identityObjects = 4
)

// Phase is the discovery phase of a port.
type Phase uint8

// Discovery phases.
const (
	PhaseDisconnected Phase = iota
	PhaseIdentityPending
	PhaseSVIDPending
	PhaseModesPending
	PhaseModeEntering
	PhaseModeActive
	PhaseModeExiting
	PhaseNoAltMode
)

var phaseNames = [...]string{
	"disconnected", "identity-pending", "svid-pending", "modes-pending",
	"mode-entering", "mode-active", "mode-exiting", "no-alt-mode",
}

func (p Phase) String() string {
	if int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return "unknown"
}

// SVIDEntry is a discovered SVID and its modes.
type SVIDEntry struct {
	SVID  uint16
	modes [MaxModesPerSVID]uint32
	count uint8
}

// Modes returns the discovered mode VDOs in object position order.
func (e *SVIDEntry) Modes() []uint32 {
	return e.modes[:e.count]
}

type activeMode struct {
	svidIdx int
	opos    uint8 // 0 when the slot holds no entered or entering mode
	entered bool
	handler AltMode
}

// State is the alternate mode state of one port. It is owned by the caller
// and passed to every Engine call; it must not be used concurrently.
//
// All tables are fixed size. SVID slots are filled in order and never reused
// until Reset.
type State struct {
	Port int

	identity  [identityObjects]uint32
	svids     [MaxSVIDs]SVIDEntry
	svidCount int
	cursor    int
	svidsDone bool
	active    [MaxActiveModes]activeMode

	phase   Phase
	pending pdmsg.VDMHeader // INIT sent and awaiting a response, 0 for none
	version pdmsg.VDMVersion

	buf [pdmsg.MaxDataObjects]uint32
}

// NewState returns an empty state for port.
func NewState(port int) *State {
	return &State{Port: port}
}

// SetVersion sets the negotiated structured VDM version stamped into every
// outgoing header.
func (s *State) SetVersion(v pdmsg.VDMVersion) {
	s.version = v
}

// Version returns the negotiated structured VDM version.
func (s *State) Version() pdmsg.VDMVersion {
	return s.version
}

// Phase returns the discovery phase.
func (s *State) Phase() Phase {
	return s.phase
}

// Identity returns the partner's Discover Identity data objects: ID header,
// cert stat, product and the first product type VDO. All zero means not yet
// discovered.
func (s *State) Identity() [identityObjects]uint32 {
	return s.identity
}

// VID returns the partner's USB vendor ID.
func (s *State) VID() uint16 {
	return pdmsg.IDHeaderVDO(s.identity[0]).VID()
}

// PID returns the partner's USB product ID.
func (s *State) PID() uint16 {
	return pdmsg.ProductVDO(s.identity[2]).PID()
}

// ProductType returns the partner's product type.
func (s *State) ProductType() pdmsg.ProductType {
	return pdmsg.IDHeaderVDO(s.identity[0]).ProductType()
}

// SVIDs returns the discovered SVIDs.
func (s *State) SVIDs() []SVIDEntry {
	return s.svids[:s.svidCount]
}

// ActiveModePosition returns the object position of the entered mode for svid.
func (s *State) ActiveModePosition(svid uint16) (uint8, bool) {
	if i := s.slot(svid); i >= 0 && s.active[i].entered {
		return s.active[i].opos, true
	}
	return 0, false
}

// slot returns the index of the active mode slot allocated to svid, or -1.
func (s *State) slot(svid uint16) int {
	for i := range s.active {
		a := &s.active[i]
		if a.handler != nil && s.svids[a.svidIdx].SVID == svid {
			return i
		}
	}
	return -1
}

func (s *State) mode(i int) Mode {
	a := &s.active[i]
	e := &s.svids[a.svidIdx]
	m := Mode{Port: s.Port, SVID: e.SVID, Position: a.opos}
	if a.opos >= 1 && a.opos <= e.count {
		m.Caps = e.modes[a.opos-1]
	}
	return m
}

func (s *State) enteredModes() int {
	var n int
	for i := range s.active {
		if s.active[i].entered {
			n++
		}
	}
	return n
}

// clear empties every table, keeping the port and negotiated version.
func (s *State) clear() {
	*s = State{Port: s.Port, version: s.version}
}
