// Package tcdp implements the DisplayPort alternate mode on both sides of a
// link: Sink answers a DFP as a UFP_D receptacle, Source drives a UFP_D
// partner through status and configuration as a DFP_D.
package tcdp

import (
	"math/bits"

	"github.com/epdlink/go-typec/pdmsg"
)

// SelectPinMode picks the pin assignment a DFP_D configures on a partner
// that advertised caps and reported status. It returns a single pin bit, or 0
// if no assignment is usable.
//
// Multi-function assignments are dropped unless the partner prefers them, USB
// Gen2 assignments are never used, and C or D take precedence over E and F.
// The lowest remaining assignment wins.
func SelectPinMode(caps pdmsg.DPModeVDO, status pdmsg.DPStatusVDO) uint8 {
	pins := caps.PinCaps()
	if !status.MultiFunction() {
		pins &^= pdmsg.DPPinMultiFunction
	}
	pins &^= pdmsg.DPPinUSBGen2
	if pins&(pdmsg.DPPinC|pdmsg.DPPinD) != 0 {
		pins &^= pdmsg.DPPinE | pdmsg.DPPinF
	}
	if pins == 0 {
		return 0
	}
	return 1 << bits.TrailingZeros8(pins)
}

// PinName returns the letter of a single pin assignment bit, or "-".
func PinName(pin uint8) string {
	if bits.OnesCount8(pin) != 1 || pin > pdmsg.DPPinF {
		return "-"
	}
	return string(rune('A' + bits.TrailingZeros8(pin)))
}
