// Package tcdpm implements the device policy manager side of power
// negotiation: choosing which advertised power data object to request and
// building the request data object for it.
package tcdpm

import (
	"errors"
	"slices"

	"github.com/epdlink/go-typec/tcpe"
)

// Policy is the interface which simply embeds CapabilityEvaluator.
type Policy interface {
	// Validate returns an error if the policy parameters are invalid.
	Validate() error
	tcpe.CapabilityEvaluator
}

// VoltagePreference breaks ties between PDOs offering the same power.
type VoltagePreference uint8

// Voltage preferences. With PreferNone the first PDO found wins a tie.
const (
	PreferNone VoltagePreference = iota
	PreferLowVoltage
	PreferHighVoltage
)

// BoardPolicy holds the board's power limits used when evaluating source
// capabilities.
type BoardPolicy struct {
	// Maximum voltage in millivolts the board accepts on its input.
	MaxVoltage uint16

	// Maximum current in milliamps the board draws.
	MaxCurrent uint16

	// Maximum power in milliwatts the board draws.
	MaxPower uint32

	// Typical operating power in milliwatts. Offers below it are requested
	// with the capability mismatch flag set.
	OperatingPower uint32

	// GiveBack declares the board can drop to MinCurrent/MinPower on a GotoMin
	// request from the source.
	GiveBack   bool
	MinCurrent uint16 // mA
	MinPower   uint32 // mW

	// Prefer selects the tie breaker between equal power offers.
	Prefer VoltagePreference

	// InputVoltages restricts acceptable voltages in millivolts. Empty means
	// any voltage up to MaxVoltage.
	InputVoltages []uint16
}

// DefaultBoardPolicy returns the limits of a 5V only, 15W board.
func DefaultBoardPolicy() BoardPolicy {
	return BoardPolicy{
		MaxVoltage:     5000,
		MaxCurrent:     3000,
		MaxPower:       15000,
		OperatingPower: 2250,
	}
}

var (
	errBadVoltage     = errors.New("tcdpm: max voltage must be >= 5000mV & <= 21000mV")
	errBadCurrent     = errors.New("tcdpm: max current must be > 0mA & <= 5000mA")
	errBadPower       = errors.New("tcdpm: max power must be > 0mW & <= 100000mW")
	errOperatingPower = errors.New("tcdpm: operating power must be <= max power")
	errGiveBackMin    = errors.New("tcdpm: give back minimums must not exceed the maximums")
)

// Validate returns an error if the policy parameters are invalid.
func (b BoardPolicy) Validate() error {
	if b.MaxVoltage < 5000 || b.MaxVoltage > 21000 {
		return errBadVoltage
	}
	if b.MaxCurrent == 0 || b.MaxCurrent > 5000 {
		return errBadCurrent
	}
	if b.MaxPower == 0 || b.MaxPower > 100000 {
		return errBadPower
	}
	if b.OperatingPower > b.MaxPower {
		return errOperatingPower
	}
	if b.GiveBack && (b.MinCurrent > b.MaxCurrent || b.MinPower > b.MaxPower) {
		return errGiveBackMin
	}
	return nil
}

func (b BoardPolicy) validInputVoltage(mv uint16) bool {
	return len(b.InputVoltages) == 0 || slices.Contains(b.InputVoltages, mv)
}
