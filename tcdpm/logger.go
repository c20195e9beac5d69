package tcdpm

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"

	"github.com/epdlink/go-typec/pdmsg"
)

// Logger is a passthrough policy that writes a textual description of source
// capabilities to a given io.Writer. It's mostly used for debugging purposes.
type Logger struct {
	w    io.Writer
	sep  string
	base Policy
}

// NewLogger creates a new logger which will write to the given writer and
// optionally passes through the evaluate calls. If no base is provided,
// this policy will respond with pdmsg.EmptyRequestDO when EvaluateCapabilities
// is called by the policy engine. Line separator is written to the writer after
// each line of output. Some common values are "\n", "\r", "\r\n".
func NewLogger(w io.Writer, lineSep string, base Policy) *Logger {
	return &Logger{
		w:    w,
		sep:  lineSep,
		base: base,
	}
}

// Validate returns nil if the policy is valid.
func (l *Logger) Validate() error {
	if l.base != nil {
		return l.base.Validate()
	}
	return nil
}

// EvaluateCapabilities writes out the textual description of the provided
// power data objects and passes it down to the underlying DPM and returns its
// response.
func (l *Logger) EvaluateCapabilities(pdos []pdmsg.PDO) pdmsg.RequestDO {
	fmt.Fprintf(l.w, "Received %d profiles:%s", len(pdos), l.sep)
	for i, p := range pdos {
		fmt.Fprintf(l.w, "  %d) %s%s", i+1, DescribePDO(p), l.sep)
	}
	if l.base != nil {
		rdo := l.base.EvaluateCapabilities(pdos)
		if rdo == pdmsg.EmptyRequestDO {
			fmt.Fprintf(l.w, "Requesting nothing%s", l.sep)
		} else {
			fmt.Fprintf(l.w, "Requesting profile %d%s", rdo.SelectedObjectPosition(), l.sep)
		}
		return rdo
	}
	return pdmsg.EmptyRequestDO
}

// DescribePDO returns a one line human readable description of p.
func DescribePDO(p pdmsg.PDO) string {
	switch p.Type() {
	case pdmsg.PDOTypeFixedSupply:
		fs := pdmsg.FixedSupplyPDO(p)
		return fmt.Sprintf("Fixed %s @ max. %s (%s)", volts(fs.Voltage()), amps(fs.MaxCurrent()),
			watts(uint64(fs.Voltage())*uint64(fs.MaxCurrent())/1000))
	case pdmsg.PDOTypeBattery:
		b := pdmsg.BatteryPDO(p)
		return fmt.Sprintf("Battery %s-%s @ max. %s", volts(b.MinVoltage()), volts(b.MaxVoltage()), watts(uint64(b.MaxPower())))
	case pdmsg.PDOTypeVariableSupply:
		v := pdmsg.VariablePDO(p)
		return fmt.Sprintf("Variable %s-%s @ max. %s", volts(v.MinVoltage()), volts(v.MaxVoltage()), amps(v.MaxCurrent()))
	default:
		return "Augmented (not supported)"
	}
}

func volts(mv uint16) string {
	return humanize.SIWithDigits(float64(mv)/1000, 2, "V")
}

func amps(ma uint16) string {
	return humanize.SIWithDigits(float64(ma)/1000, 2, "A")
}

func watts(mw uint64) string {
	return humanize.SIWithDigits(float64(mw)/1000, 2, "W")
}
