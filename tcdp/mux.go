package tcdp

import "github.com/epdlink/go-typec/pdmsg"

// MuxMode is the routing of the USB-C superspeed lanes.
type MuxMode uint8

// Mux modes.
const (
	MuxNone MuxMode = iota
	MuxUSB
	MuxDP
	MuxDock // DP on two lanes, USB on the others
)

func (m MuxMode) String() string {
	switch m {
	case MuxNone:
		return "none"
	case MuxUSB:
		return "usb"
	case MuxDP:
		return "dp"
	case MuxDock:
		return "dock"
	}
	return "unknown"
}

// Mux switches the superspeed lanes of a port.
type Mux interface {
	SetMux(port int, mode MuxMode) error
}

// MuxModeForPin returns the lane routing a pin assignment needs. 0 means no
// DisplayPort, leaving the lanes to USB.
func MuxModeForPin(pin uint8) MuxMode {
	switch {
	case pin == 0:
		return MuxUSB
	case pin&pdmsg.DPPinMultiFunction != 0:
		return MuxDock
	default:
		return MuxDP
	}
}

type nopMux struct{}

func (nopMux) SetMux(int, MuxMode) error { return nil }
