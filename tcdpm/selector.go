package tcdpm

import (
	"github.com/epdlink/go-typec/pdmsg"
)

// SelectBestPDO returns the index of the PDO offering the most power the board
// can use at or below maxMV (further capped by the board's MaxVoltage).
// Augmented and zero voltage PDOs are never selected. Ties keep the first PDO
// found unless the policy sets a voltage preference.
//
// If no PDO qualifies, SelectBestPDO returns 0 and false. The caller must treat
// that as no usable offer.
func (b BoardPolicy) SelectBestPDO(pdos []pdmsg.PDO, maxMV uint16) (int, bool) {
	maxMV = min(maxMV, b.MaxVoltage)

	var (
		best   int
		bestUW uint64
		bestMV uint16
		found  bool
	)
	for i, p := range pdos {
		if p.Type() == pdmsg.PDOTypeAugmented {
			continue
		}
		mv := p.Voltage()
		if mv == 0 || !b.validInputVoltage(mv) || mv > maxMV {
			continue
		}
		uw := b.availablePower(p, mv)
		if uw == 0 {
			continue
		}

		var tie bool
		if found && uw == bestUW {
			switch b.Prefer {
			case PreferLowVoltage:
				tie = mv < bestMV
			case PreferHighVoltage:
				tie = mv > bestMV
			}
		}
		if uw > bestUW || tie {
			best, bestUW, bestMV, found = i, uw, mv, true
		}
	}
	return best, found
}

// availablePower returns the power in microwatts the board could draw from p
// at mv, capped by MaxCurrent and MaxPower.
func (b BoardPolicy) availablePower(p pdmsg.PDO, mv uint16) uint64 {
	var uw uint64
	if p.Type() == pdmsg.PDOTypeBattery {
		uw = uint64(pdmsg.BatteryPDO(p).MaxPower()) * 1000
	} else {
		ma := min(uint64(maxCurrent(p)), uint64(b.MaxCurrent))
		uw = ma * uint64(mv)
	}
	return min(uw, uint64(b.MaxPower)*1000)
}

// ExtractPower returns the current in milliamps and voltage in millivolts the
// board would draw under a contract for p. Current is limited by the PDO, by
// MaxPower at that voltage and by MaxCurrent.
//
// A PDO with a zero voltage field yields 0, 0.
func (b BoardPolicy) ExtractPower(p pdmsg.PDO) (ma, mv uint32) {
	mv = uint32(p.Voltage())
	if mv == 0 {
		return 0, 0
	}
	var maxMA uint32
	if p.Type() == pdmsg.PDOTypeBattery {
		mw := min(pdmsg.BatteryPDO(p).MaxPower(), b.MaxPower)
		maxMA = mw * 1000 / mv
	} else {
		maxMA = min(uint32(maxCurrent(p)), b.MaxPower*1000/mv)
	}
	return min(maxMA, uint32(b.MaxCurrent)), mv
}

// maxCurrent returns the current field of a fixed or variable supply PDO.
func maxCurrent(p pdmsg.PDO) uint16 {
	if p.Type() == pdmsg.PDOTypeVariableSupply {
		return pdmsg.VariablePDO(p).MaxCurrent()
	}
	return pdmsg.FixedSupplyPDO(p).MaxCurrent()
}
